package topic

import (
	"strings"
	"testing"
)

func TestRouteAliases(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Topic
	}{
		{"numeric one", "1", DailyConversations},
		{"numeric two", "2", Grammar},
		{"numeric three", "3", Vocabulary},
		{"numeric four", "4", Pronunciation},
		{"numeric five", "5", Writing},
		{"keyword grammar", "grammar", Grammar},
		{"keyword daily", "daily", DailyConversations},
		{"keyword conversations", "conversations", DailyConversations},
		{"keyword vocabulary", "Vocabulary please", Vocabulary},
		{"keyword pronunciation", "pronunciation", Pronunciation},
		{"keyword writing", "I want writing", Writing},
		{"case and whitespace", "  GRAMMAR  ", Grammar},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Route(tt.in)
			if !ok {
				t.Fatalf("Route(%q) did not match", tt.in)
			}
			if got != Opening(tt.want) {
				t.Errorf("Route(%q) routed to the wrong opening", tt.in)
			}
		})
	}
}

func TestNumberAndKeywordRouteSame(t *testing.T) {
	byNumber, ok1 := Route("2")
	byKeyword, ok2 := Route("grammar")
	if !ok1 || !ok2 {
		t.Fatal("both selections should match")
	}
	if byNumber != byKeyword {
		t.Error("\"2\" and \"grammar\" must route to the same opening message")
	}
}

func TestRouteNoMatch(t *testing.T) {
	if _, ok := Route("xyz"); ok {
		t.Error("unrelated input should not match")
	}
	if _, ok := Route(""); ok {
		t.Error("empty input should not match")
	}
}

func TestOrderedOverlap(t *testing.T) {
	// "1" appears in the table before keyword aliases, so a message
	// containing both resolves to the numeric alias.
	got, ok := Route("1 grammar")
	if !ok {
		t.Fatal("expected a match")
	}
	if got != Opening(DailyConversations) {
		t.Error("numeric alias must win by table order")
	}
}

func TestPronunciationOpeningContainsSoundPairs(t *testing.T) {
	opening := Opening(Pronunciation)
	for _, pair := range []string{"'Think' vs 'Sink'", "'Three' vs 'Tree'", "'Ship' vs 'Sheep'"} {
		if !strings.Contains(opening, pair) {
			t.Errorf("pronunciation opening missing %q", pair)
		}
	}
}
