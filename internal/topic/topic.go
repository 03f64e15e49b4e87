// Package topic maps a user's post-assessment selection to one of five
// fixed lesson-opening messages.
package topic

import "strings"

// Topic identifies one of the fixed lesson categories.
type Topic string

const (
	DailyConversations Topic = "daily_conversations"
	Grammar            Topic = "grammar"
	Vocabulary         Topic = "vocabulary"
	Pronunciation      Topic = "pronunciation"
	Writing            Topic = "writing"
)

// alias maps one selection token to a topic. Matching is substring
// containment on the normalized input; the table is ordered and the first
// match wins, so overlapping aliases resolve deterministically.
type alias struct {
	token string
	topic Topic
}

var aliases = []alias{
	{"1", DailyConversations},
	{"2", Grammar},
	{"3", Vocabulary},
	{"4", Pronunciation},
	{"5", Writing},
	{"daily", DailyConversations},
	{"conversations", DailyConversations},
	{"grammar", Grammar},
	{"vocabulary", Vocabulary},
	{"pronunciation", Pronunciation},
	{"writing", Writing},
}

var openings = map[Topic]string{
	DailyConversations: "Let's practice daily conversations! 💬\n\n" +
		"We'll focus on common situations like:\n" +
		"- Ordering food\n" +
		"- Shopping\n" +
		"- Asking for directions\n\n" +
		"Let's start with introductions. How would you introduce yourself to someone you just met?",
	Grammar: "Time to improve your grammar! 📚\n\n" +
		"We'll work on:\n" +
		"- Present tense\n" +
		"- Past tense\n" +
		"- Question formation\n\n" +
		"Let's start with a simple exercise. Complete this sentence:\n" +
		"Yesterday, I _____ (go) to the store.",
	Vocabulary: "Let's expand your vocabulary! 📖\n\n" +
		"We'll learn new words through:\n" +
		"- Themes and categories\n" +
		"- Context and usage\n" +
		"- Word families\n\n" +
		"Today's theme is 'Food and Cooking'\n" +
		"What are some foods you like to cook?",
	Pronunciation: "Great choice! Let's work on your pronunciation. 🗣️\n\n" +
		"I'll help you improve your pronunciation through:\n" +
		"1. Word-by-word practice\n" +
		"2. Sentence rhythm and intonation\n" +
		"3. Common sound pairs\n\n" +
		"Let's start with some common words that English learners often find challenging.\n\n" +
		"Please say these words (you can send an audio message):\n" +
		"- 'Think' vs 'Sink'\n" +
		"- 'Three' vs 'Tree'\n" +
		"- 'Ship' vs 'Sheep'\n\n" +
		"I'll listen and give you feedback on your pronunciation!",
	Writing: "Let's improve your writing skills! ✍️\n\n" +
		"We'll practice:\n" +
		"- Sentence structure\n" +
		"- Paragraph organization\n" +
		"- Email writing\n\n" +
		"Let's start with a simple task:\n" +
		"Write 3-4 sentences about your favorite hobby.",
}

// Route matches the selection text against the alias table and returns the
// topic's opening message. The boolean is false when no alias matches and
// the caller must fall through to the free-form responder.
func Route(selection string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(selection))
	if normalized == "" {
		return "", false
	}
	for _, a := range aliases {
		if strings.Contains(normalized, a.token) {
			return openings[a.topic], true
		}
	}
	return "", false
}

// Opening returns the fixed opening message for a topic.
func Opening(t Topic) string {
	return openings[t]
}
