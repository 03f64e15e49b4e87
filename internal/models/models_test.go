package models

import "testing"

func TestParseProficiencyLevel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ProficiencyLevel
		wantErr bool
	}{
		{"exact lowercase", "beginner", LevelBeginner, false},
		{"uppercase", "INTERMEDIATE", LevelIntermediate, false},
		{"surrounding whitespace", "  elementary\n", LevelElementary, false},
		{"hyphenated", "upper-intermediate", LevelUpperIntermediate, false},
		{"spaced", "Upper Intermediate", LevelUpperIntermediate, false},
		{"trailing punctuation", "Advanced.", LevelAdvanced, false},
		{"unknown label", "fluent", LevelUnassigned, true},
		{"empty", "", LevelUnassigned, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProficiencyLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProficiencyLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseProficiencyLevel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestProficiencyLevelOrdering(t *testing.T) {
	ordered := []ProficiencyLevel{
		LevelBeginner, LevelElementary, LevelIntermediate, LevelUpperIntermediate, LevelAdvanced,
	}
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1].Rank() >= ordered[i].Rank() {
			t.Errorf("expected %q to rank below %q", ordered[i-1], ordered[i])
		}
	}
	if LevelUnassigned.Rank() != -1 {
		t.Errorf("LevelUnassigned.Rank() = %d, want -1", LevelUnassigned.Rank())
	}
	if LevelUnassigned.IsAssigned() {
		t.Error("LevelUnassigned should not count as assigned")
	}
	if !LevelBeginner.IsAssigned() {
		t.Error("LevelBeginner should count as assigned")
	}
}

func TestProficiencyLevelDisplay(t *testing.T) {
	if got := LevelUpperIntermediate.Display(); got != "UPPER INTERMEDIATE" {
		t.Errorf("Display() = %q, want %q", got, "UPPER INTERMEDIATE")
	}
}

func TestIsValidConversationStatus(t *testing.T) {
	valid := []ConversationStatus{ConversationActive, ConversationCompleted, ConversationReset}
	for _, s := range valid {
		if !IsValidConversationStatus(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if IsValidConversationStatus("archived") {
		t.Error("expected unknown status to be invalid")
	}
	if IsValidConversationStatus("") {
		t.Error("expected empty status to be invalid")
	}
}

func TestIsValidMessageDirection(t *testing.T) {
	if !IsValidMessageDirection(DirectionIncoming) || !IsValidMessageDirection(DirectionOutgoing) {
		t.Error("expected both directions to be valid")
	}
	if IsValidMessageDirection("sideways") {
		t.Error("expected unknown direction to be invalid")
	}
}
