// Package assessment implements the English leveling protocol for Professor.
//
// The engine sequences canned questions from escalating banks, scores the
// user's answers with the generative gateway once enough turns have been
// completed, and falls back to a deterministic word-count heuristic so the
// protocol always terminates with a level. On completion it synthesizes a
// study plan and records level and plan on the user.
package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/3ndigital/professor/internal/genai"
	"github.com/3ndigital/professor/internal/models"
	"github.com/3ndigital/professor/internal/store"
)

// MinScoringTurns is the number of completed turns required before a
// scoring attempt is made.
const MinScoringTurns = 3

// Word-count thresholds for the heuristic classifier.
const (
	heuristicBeginnerMax     = 5
	heuristicElementaryMax   = 15
	heuristicIntermediateMax = 30
)

// Result is the outcome of one assessment turn.
type Result struct {
	// Reply is the next question, or the level summary when Complete.
	Reply string
	// Complete reports whether the user was leveled this turn.
	Complete bool
	// Level is set only when Complete.
	Level models.ProficiencyLevel
}

// Engine drives the leveling protocol. It is the only component allowed to
// mutate a user's level, progress and study plan.
type Engine struct {
	store store.Store
	ai    genai.ClientInterface
}

// NewEngine creates an assessment engine backed by the given store and
// generative gateway.
func NewEngine(s store.Store, ai genai.ClientInterface) *Engine {
	return &Engine{store: s, ai: ai}
}

// FirstQuestion returns the opening assessment question, suffixed with its
// sequence position. It is embedded in the welcome message; the user's
// first answer is the first scored turn.
func FirstQuestion() string {
	return formatQuestion(questionFor(0))
}

// ScoreAndAdvance processes one answer turn. The progress counter is
// incremented and persisted before any scoring decision, so the check reads
// the count including the current turn. The passed user is updated in place
// to reflect the persisted state.
func (e *Engine) ScoreAndAdvance(ctx context.Context, user *models.User, answer string) (Result, error) {
	progress := user.AssessmentProgress + 1
	if err := e.store.UpdateUser(user.ID, models.UserUpdate{Progress: &progress}); err != nil {
		return Result{}, fmt.Errorf("failed to persist assessment progress: %w", err)
	}
	user.AssessmentProgress = progress

	if progress < MinScoringTurns {
		return Result{Reply: formatQuestion(questionFor(progress))}, nil
	}

	level, err := e.scoreAnswer(ctx, answer)
	if err != nil {
		if !bankExhausted(progress) {
			slog.Warn("Assessment.ScoreAndAdvance scoring failed, continuing with next question",
				"error", err, "user_id", user.ID, "progress", progress)
			return Result{Reply: formatQuestion(questionFor(progress))}, nil
		}
		// Question banks exhausted: the heuristic guarantees termination.
		level = HeuristicLevel(answer)
		slog.Warn("Assessment.ScoreAndAdvance bank exhausted, applying heuristic level",
			"user_id", user.ID, "level", level)
	}

	plan := e.studyPlan(ctx, level)
	if err := e.store.UpdateUser(user.ID, models.UserUpdate{Level: &level, StudyPlan: &plan}); err != nil {
		return Result{}, fmt.Errorf("failed to persist assessment result: %w", err)
	}
	user.Level = level
	user.StudyPlan = plan

	slog.Info("Assessment.ScoreAndAdvance completed", "user_id", user.ID, "level", level, "turns", progress)
	return Result{
		Reply:    completionSummary(level),
		Complete: true,
		Level:    level,
	}, nil
}

// scoreAnswer asks the generative gateway for exactly one level label and
// maps it onto the enumeration. An unrecognized label from a successful
// call defaults to Intermediate.
func (e *Engine) scoreAnswer(ctx context.Context, answer string) (models.ProficiencyLevel, error) {
	prompt := fmt.Sprintf(
		"Analyze the following English response and determine the user's English level "+
			"(BEGINNER, ELEMENTARY, INTERMEDIATE, UPPER_INTERMEDIATE, or ADVANCED) "+
			"based on grammar, vocabulary, and complexity:\n\n"+
			"User response: %s\n\n"+
			"Provide the level only as a single word response.",
		answer,
	)

	label, err := e.ai.Complete(ctx, genai.Request{UserMessage: prompt})
	if err != nil {
		return models.LevelUnassigned, fmt.Errorf("scoring call failed: %w", err)
	}

	level, parseErr := models.ParseProficiencyLevel(label)
	if parseErr != nil {
		slog.Warn("Assessment.scoreAnswer unrecognized level label, defaulting to intermediate", "label", label)
		return models.LevelIntermediate, nil
	}
	return level, nil
}

// HeuristicLevel classifies an answer by word count. Deterministic and
// always produces an assigned level.
func HeuristicLevel(answer string) models.ProficiencyLevel {
	words := len(strings.Fields(answer))
	switch {
	case words < heuristicBeginnerMax:
		return models.LevelBeginner
	case words < heuristicElementaryMax:
		return models.LevelElementary
	case words < heuristicIntermediateMax:
		return models.LevelIntermediate
	default:
		return models.LevelUpperIntermediate
	}
}

// studyPlan synthesizes a study plan for the level, substituting the static
// default plan when the gateway fails or returns an invalid document.
func (e *Engine) studyPlan(ctx context.Context, level models.ProficiencyLevel) string {
	prompt := fmt.Sprintf(
		"Create a personalized 30-day English study plan for a %s level student.\n"+
			"Include:\n"+
			"- Daily conversation topics\n"+
			"- Grammar focus points\n"+
			"- Vocabulary themes\n"+
			"- Suggested activities\n"+
			"- Weekly goals\n\n"+
			"Format the response as a JSON string with the following structure:\n"+
			"{\n"+
			"    \"weekly_plans\": [\n"+
			"        {\n"+
			"            \"week\": 1,\n"+
			"            \"focus_points\": [\"point1\", \"point2\"],\n"+
			"            \"daily_topics\": [\"topic1\", \"topic2\", \"topic3\", \"topic4\", \"topic5\"],\n"+
			"            \"grammar\": \"focus area\",\n"+
			"            \"vocabulary\": \"theme\",\n"+
			"            \"activities\": [\"activity1\", \"activity2\"]\n"+
			"        }\n"+
			"    ]\n"+
			"}",
		level,
	)

	raw, err := e.ai.Complete(ctx, genai.Request{UserMessage: prompt})
	if err != nil {
		slog.Warn("Assessment.studyPlan generation failed, using default plan", "error", err, "level", level)
		return DefaultStudyPlan(level)
	}

	raw = stripCodeFence(raw)
	var plan models.StudyPlan
	if jsonErr := json.Unmarshal([]byte(raw), &plan); jsonErr != nil || len(plan.WeeklyPlans) == 0 {
		slog.Warn("Assessment.studyPlan invalid plan document, using default plan", "error", jsonErr, "level", level)
		return DefaultStudyPlan(level)
	}
	return raw
}

// stripCodeFence removes a surrounding markdown code fence, which chat
// models frequently wrap JSON responses in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// formatQuestion appends the sequence-position suffix to a bank question.
func formatQuestion(text string, number int) string {
	if number < QuestionSequenceLength {
		return fmt.Sprintf("%s\n\n(Question %d of %d)", text, number, QuestionSequenceLength)
	}
	return fmt.Sprintf("%s\n\n(Final question! After this, I'll assess your English level.)", text)
}

// completionSummary is the level summary returned on the completing turn.
func completionSummary(level models.ProficiencyLevel) string {
	return fmt.Sprintf(
		"Based on your responses, your English level is: %s\n\n"+
			"I've created a personalized study plan for you. "+
			"We'll have daily conversations to improve your English skills.",
		level.Display(),
	)
}

// defaultPlans are the static fallback study plans keyed by level, used
// when plan generation fails.
var defaultPlans = map[models.ProficiencyLevel]models.StudyPlan{
	models.LevelBeginner: {WeeklyPlans: []models.WeeklyPlan{
		{
			Week:        1,
			FocusPoints: []string{"Basic greetings", "Introducing yourself"},
			DailyTopics: []string{"My name and family", "My daily routine", "Food I like", "My home", "The weather"},
			Grammar:     "Present simple: to be, to have",
			Vocabulary:  "Everyday objects and family members",
			Activities:  []string{"Repeat short phrases aloud", "Label objects around your home in English"},
		},
		{
			Week:        2,
			FocusPoints: []string{"Asking simple questions", "Numbers and time"},
			DailyTopics: []string{"Telling the time", "Days of the week", "Shopping basics", "Colors and clothes", "My city"},
			Grammar:     "Question words: what, where, when",
			Vocabulary:  "Numbers, dates and common places",
			Activities:  []string{"Practice asking one question a day", "Count objects in English"},
		},
	}},
	models.LevelElementary: {WeeklyPlans: []models.WeeklyPlan{
		{
			Week:        1,
			FocusPoints: []string{"Describing habits", "Talking about the past"},
			DailyTopics: []string{"My weekend", "A trip I took", "My favorite meal", "Sports I play", "Music I enjoy"},
			Grammar:     "Past simple of regular and common irregular verbs",
			Vocabulary:  "Free-time activities and travel",
			Activities:  []string{"Write three sentences about yesterday", "Describe a photo out loud"},
		},
		{
			Week:        2,
			FocusPoints: []string{"Making plans", "Expressing preferences"},
			DailyTopics: []string{"Next weekend's plans", "A film I liked", "My dream holiday", "Eating out", "My neighborhood"},
			Grammar:     "Going to and present continuous for future",
			Vocabulary:  "Food, entertainment and places in town",
			Activities:  []string{"Plan an imaginary trip in English", "Record yourself describing your day"},
		},
	}},
	models.LevelIntermediate: {WeeklyPlans: []models.WeeklyPlan{
		{
			Week:        1,
			FocusPoints: []string{"Giving opinions", "Agreeing and disagreeing"},
			DailyTopics: []string{"Technology in daily life", "City versus countryside", "Learning styles", "Work-life balance", "Social media"},
			Grammar:     "Present perfect versus past simple",
			Vocabulary:  "Opinion and discussion phrases",
			Activities:  []string{"Summarize a news article in five sentences", "Debate a topic with yourself, both sides"},
		},
		{
			Week:        2,
			FocusPoints: []string{"Hypothetical situations", "Storytelling"},
			DailyTopics: []string{"If I could live anywhere", "A challenge I overcame", "Future of my profession", "Cultural differences", "A book or film that changed my mind"},
			Grammar:     "Second conditional",
			Vocabulary:  "Abstract nouns and linking words",
			Activities:  []string{"Tell a two-minute story about your week", "Rewrite a paragraph using new vocabulary"},
		},
	}},
	models.LevelUpperIntermediate: {WeeklyPlans: []models.WeeklyPlan{
		{
			Week:        1,
			FocusPoints: []string{"Nuanced argumentation", "Register and tone"},
			DailyTopics: []string{"Ethics of artificial intelligence", "Remote work culture", "Environmental policy", "Education reform", "Media literacy"},
			Grammar:     "Mixed conditionals and modals of deduction",
			Vocabulary:  "Formal versus informal registers",
			Activities:  []string{"Write a short opinion essay", "Paraphrase arguments from a podcast"},
		},
		{
			Week:        2,
			FocusPoints: []string{"Persuasion", "Precision in description"},
			DailyTopics: []string{"Globalization trade-offs", "Urban planning", "Scientific breakthroughs", "Art and society", "Negotiation scenarios"},
			Grammar:     "Inversion and emphatic structures",
			Vocabulary:  "Collocations and idiomatic expressions",
			Activities:  []string{"Hold a mock negotiation", "Present a topic for three minutes without notes"},
		},
	}},
	models.LevelAdvanced: {WeeklyPlans: []models.WeeklyPlan{
		{
			Week:        1,
			FocusPoints: []string{"Rhetorical techniques", "Idiomatic fluency"},
			DailyTopics: []string{"Philosophy of technology", "Macroeconomic trends", "Comparative politics", "Literary criticism", "Cognitive science"},
			Grammar:     "Discourse markers and cleft sentences",
			Vocabulary:  "Low-frequency academic vocabulary",
			Activities:  []string{"Write an abstract for an imaginary paper", "Critique an editorial's argument structure"},
		},
		{
			Week:        2,
			FocusPoints: []string{"Style adaptation", "Sustained argument"},
			DailyTopics: []string{"Ethics in journalism", "History of language", "Emerging markets", "Public health policy", "Cultural criticism"},
			Grammar:     "Nominalization and hedging language",
			Vocabulary:  "Register shifts across genres",
			Activities:  []string{"Rewrite one text in three registers", "Deliver a ten-minute talk and self-review"},
		},
	}},
}

// DefaultStudyPlan returns the static fallback plan for the level as JSON.
// Unassigned or unknown levels get the intermediate plan.
func DefaultStudyPlan(level models.ProficiencyLevel) string {
	plan, ok := defaultPlans[level]
	if !ok {
		plan = defaultPlans[models.LevelIntermediate]
	}
	data, err := json.Marshal(plan)
	if err != nil {
		// Marshalling a static struct cannot fail; guard anyway.
		slog.Error("Assessment.DefaultStudyPlan marshal failed", "error", err)
		return `{"weekly_plans":[]}`
	}
	return string(data)
}
