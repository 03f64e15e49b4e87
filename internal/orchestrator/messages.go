package orchestrator

import (
	"fmt"

	"github.com/3ndigital/professor/internal/models"
)

// Fixed protocol messages. The orchestrator recognizes some of these by
// content (completionMarker), so their texts are part of the protocol, not
// just copy.

// completionMarker identifies the assessment-completion message when it is
// the most recent outgoing message, which makes the next inbound message a
// candidate topic selection.
const completionMarker = "Assessment completed"

// transcriptionApology is stored and sent when a voice note cannot be
// transcribed.
const transcriptionApology = "Sorry, I couldn't process your audio message. Could you try again or type your message?"

// welcomeMessage opens the assessment; its closing line is the first
// question, so the user's reply is the first scored turn.
const welcomeMessage = "👋 Welcome to Professor AI - Your Personal English Teacher! 🌟\n\n" +
	"I'm here to help you improve your English skills through personalized lessons and conversations. " +
	"Before we start our journey together, I need to assess your current English level.\n\n" +
	"The assessment will consist of a few questions. Please answer them naturally in English - " +
	"you can use text or voice messages!\n\n" +
	"First, could you tell me your name?"

// completionMessage announces the assessed level and presents the topic
// menu. Must contain completionMarker.
func completionMessage(level models.ProficiencyLevel) string {
	return fmt.Sprintf(
		"🎉 Assessment completed! Your English level is: %s\n\n"+
			"I've created a personalized study plan for you. Here's what you can expect:\n"+
			"- Daily conversations to practice English\n"+
			"- Grammar and vocabulary exercises\n"+
			"- Progress tracking and feedback\n"+
			"- Regular level assessments\n\n"+
			"Let's start our first lesson! Choose a topic:\n\n"+
			"1. Daily conversations (greetings, shopping, travel)\n"+
			"2. Grammar exercises\n"+
			"3. Vocabulary building\n"+
			"4. Pronunciation help\n"+
			"5. Writing practice\n\n"+
			"Just type the number or name of what you'd like to practice!",
		level.Display(),
	)
}

// pronunciationFeedback is the canned reply for a voice note sent during
// pronunciation practice, built around what was heard.
func pronunciationFeedback(heard string) string {
	return fmt.Sprintf(
		"Thanks for practicing! 🎯\n\n"+
			"I heard: '%s'\n\n"+
			"Here's my feedback:\n"+
			"✓ Good attempt at the sounds!\n\n"+
			"Tips for improvement:\n"+
			"- Try placing your tongue between your teeth for 'th' sounds\n"+
			"- Make 'ee' longer in 'sheep' compared to 'ship'\n"+
			"- For 'three', make sure the 'th' and 'r' are distinct\n\n"+
			"Would you like to:\n"+
			"1. Try these words again\n"+
			"2. Practice different words\n"+
			"3. Move to sentence pronunciation\n"+
			"Just type the number of your choice!",
		heard,
	)
}

// fallbackReplies are the level-keyed responses used when every generative
// provider fails during free-form conversation.
var fallbackReplies = map[models.ProficiencyLevel]string{
	models.LevelBeginner:   "Thank you for your message! I'm here to help you learn English. Can you tell me more about what you want to practice today?",
	models.LevelElementary: "That's interesting! I'd like to help you improve your English. What specific areas would you like to work on?",
	models.LevelIntermediate: "Great! I appreciate you sharing that with me. How can I help you practice English today? " +
		"Would you like to focus on conversation, grammar, or vocabulary?",
	models.LevelUpperIntermediate: "Great! I appreciate you sharing that with me. How can I help you practice English today? " +
		"Would you like to focus on conversation, grammar, or vocabulary?",
	models.LevelAdvanced: "Excellent! I can see you have good English skills. Let's continue our conversation and work on " +
		"refining your language abilities. What topics interest you most?",
}

// fallbackReply returns the level-keyed canned response, defaulting to the
// beginner text for unassigned levels.
func fallbackReply(level models.ProficiencyLevel) string {
	if reply, ok := fallbackReplies[level]; ok {
		return reply
	}
	return fallbackReplies[models.LevelBeginner]
}

// systemPrompt frames the free-form responder as an English teacher tuned
// to the student's level.
func systemPrompt(level models.ProficiencyLevel) string {
	display := "Beginner"
	if level.IsAssigned() {
		display = level.Display()
	}
	return fmt.Sprintf(
		"You are Professor AI, a friendly and professional English teacher.\n\n"+
			"Student Profile:\n"+
			"- English Level: %s\n"+
			"- Learning Goals: Improve English through conversation practice\n\n"+
			"Guidelines:\n"+
			"1. Always respond in English\n"+
			"2. Adjust your language complexity to match the student's level\n"+
			"3. Provide corrections and explanations when needed\n"+
			"4. Be encouraging and supportive\n"+
			"5. Ask follow-up questions to maintain engagement\n"+
			"6. Include practical examples and exercises when appropriate\n"+
			"7. For pronunciation topics, provide specific phonetic guidance\n"+
			"8. Keep responses concise but helpful (max 200 words)",
		display,
	)
}
