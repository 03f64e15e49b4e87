// Package models defines the core data structures for Professor.
//
// It includes the user/conversation/message domain types, the closed
// enumerations for proficiency level, conversation status, message
// direction and inbound event kind, and the error variables shared
// across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// ProficiencyLevel is the ordered classification of a user's English ability.
// The zero value means no level has been assigned yet.
type ProficiencyLevel string

const (
	// LevelUnassigned indicates the user has not completed an assessment.
	LevelUnassigned ProficiencyLevel = ""
	// LevelBeginner is the lowest assessable level.
	LevelBeginner ProficiencyLevel = "beginner"
	// LevelElementary follows beginner.
	LevelElementary ProficiencyLevel = "elementary"
	// LevelIntermediate is the default when a scoring label is unrecognized.
	LevelIntermediate ProficiencyLevel = "intermediate"
	// LevelUpperIntermediate follows intermediate.
	LevelUpperIntermediate ProficiencyLevel = "upper_intermediate"
	// LevelAdvanced is the highest assessable level.
	LevelAdvanced ProficiencyLevel = "advanced"
)

// Error variables for better error handling and testability
var (
	ErrEmptyIdentity      = errors.New("user identity cannot be empty")
	ErrUnknownLevel       = errors.New("unknown proficiency level")
	ErrInvalidStatus      = errors.New("invalid conversation status")
	ErrInvalidDirection   = errors.New("invalid message direction")
	ErrUserNotFound         = errors.New("user not found")
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrRecipientNotPermitted is the distinguished delivery failure for
	// recipients the channel is not authorized to message (e.g. unverified
	// numbers on a trial account). Callers log and swallow it.
	ErrRecipientNotPermitted = errors.New("recipient not permitted to receive messages")
)

// proficiencyOrder lists the assessable levels from lowest to highest.
var proficiencyOrder = []ProficiencyLevel{
	LevelBeginner,
	LevelElementary,
	LevelIntermediate,
	LevelUpperIntermediate,
	LevelAdvanced,
}

// ParseProficiencyLevel maps a raw label (any case, surrounding whitespace,
// spaces or hyphens instead of underscores) to a ProficiencyLevel.
// Returns ErrUnknownLevel for labels outside the enumeration.
func ParseProficiencyLevel(label string) (ProficiencyLevel, error) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	normalized = strings.Trim(normalized, ".!\"'")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	for _, level := range proficiencyOrder {
		if normalized == string(level) {
			return level, nil
		}
	}
	return LevelUnassigned, ErrUnknownLevel
}

// IsAssigned reports whether the level is one of the assessable levels.
func (l ProficiencyLevel) IsAssigned() bool {
	return l.Rank() >= 0
}

// Rank returns the position of the level in the ordered enumeration,
// or -1 for LevelUnassigned and unknown values.
func (l ProficiencyLevel) Rank() int {
	for i, level := range proficiencyOrder {
		if l == level {
			return i
		}
	}
	return -1
}

// Display returns the level formatted for user-facing messages.
func (l ProficiencyLevel) Display() string {
	return strings.ToUpper(strings.ReplaceAll(string(l), "_", " "))
}

// ConversationStatus represents the lifecycle state of a conversation.
type ConversationStatus string

const (
	// ConversationActive is the single in-progress conversation for a user.
	ConversationActive ConversationStatus = "active"
	// ConversationCompleted is a finished conversation; history is retained.
	ConversationCompleted ConversationStatus = "completed"
	// ConversationReset marks a conversation ended by an admin reset.
	// A reset conversation never transitions to any other status.
	ConversationReset ConversationStatus = "reset"
)

// IsValidConversationStatus checks if the given status is supported.
func IsValidConversationStatus(s ConversationStatus) bool {
	switch s {
	case ConversationActive, ConversationCompleted, ConversationReset:
		return true
	default:
		return false
	}
}

// MessageDirection distinguishes user messages from system messages.
type MessageDirection string

const (
	// DirectionIncoming is a message received from the user.
	DirectionIncoming MessageDirection = "incoming"
	// DirectionOutgoing is a message produced by the system.
	DirectionOutgoing MessageDirection = "outgoing"
)

// IsValidMessageDirection checks if the given direction is supported.
func IsValidMessageDirection(d MessageDirection) bool {
	return d == DirectionIncoming || d == DirectionOutgoing
}

// EventKind classifies an inbound event's payload.
type EventKind string

const (
	// EventText carries a plain text body.
	EventText EventKind = "text"
	// EventAudio carries a reference to an audio payload to transcribe.
	EventAudio EventKind = "audio"
	// EventUnsupported is any other media type; accepted but produces a no-op.
	EventUnsupported EventKind = "unsupported"
)

// User is one end user keyed by their channel identity (WhatsApp number).
// Level, AssessmentProgress and StudyPlan are mutated only by the
// assessment engine and the admin reset operation.
type User struct {
	ID                 string           `json:"id"`
	Identity           string           `json:"identity"`
	Name               string           `json:"name,omitempty"`
	Level              ProficiencyLevel `json:"level,omitempty"`
	AssessmentProgress int              `json:"assessment_progress"`
	StudyPlan          string           `json:"study_plan,omitempty"` // JSON document, see StudyPlan
	CreatedAt          time.Time        `json:"created_at"`
	LastInteraction    time.Time        `json:"last_interaction"`
}

// Conversation is a bounded span of messages between the system and one user.
type Conversation struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id"`
	Status        ConversationStatus `json:"status"`
	StartedAt     time.Time          `json:"started_at"`
	LastMessageAt time.Time          `json:"last_message_at,omitempty"`
}

// Message belongs to exactly one conversation. Messages are immutable once
// stored and are always read in timestamp order.
type Message struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	Direction      MessageDirection `json:"direction"`
	Body           string           `json:"body"`
	Timestamp      time.Time        `json:"timestamp"`
}

// InboundEvent is one normalized message delivery attributed to a user identity.
type InboundEvent struct {
	Sender   string    `json:"sender"`
	Kind     EventKind `json:"kind"`
	Text     string    `json:"text,omitempty"`
	AudioRef string    `json:"audio_ref,omitempty"` // channel media id for audio events
	// Audio carries the raw bytes for audio events once the channel layer
	// has fetched them; never serialized.
	Audio            []byte `json:"-"`
	AudioContentType string `json:"audio_content_type,omitempty"`
}

// OutboundAction summarizes what handling an inbound event produced.
type OutboundAction string

const (
	// ActionNoContent means the event carried nothing to process.
	ActionNoContent OutboundAction = "no_content"
	// ActionUnsupportedType means the event kind is not handled.
	ActionUnsupportedType OutboundAction = "unsupported_message_type"
	// ActionAudioFailed means transcription failed and an apology was sent.
	ActionAudioFailed OutboundAction = "audio_processing_failed"
	// ActionWelcomeSent means a first-contact welcome was sent.
	ActionWelcomeSent OutboundAction = "new_user_welcome"
	// ActionAssessmentInProgress means the next assessment question was sent.
	ActionAssessmentInProgress OutboundAction = "assessment_in_progress"
	// ActionAssessmentCompleted means the user was leveled this turn.
	ActionAssessmentCompleted OutboundAction = "assessment_completed"
	// ActionTopicSelected means a topic opening was sent.
	ActionTopicSelected OutboundAction = "topic_selected"
	// ActionPronunciationFeedback means canned pronunciation feedback was sent.
	ActionPronunciationFeedback OutboundAction = "pronunciation_feedback_sent"
	// ActionConversationProcessed means a free-form reply was produced.
	ActionConversationProcessed OutboundAction = "conversation_processed"
)

// WeeklyPlan is one week of a study plan.
type WeeklyPlan struct {
	Week        int      `json:"week"`
	FocusPoints []string `json:"focus_points"`
	DailyTopics []string `json:"daily_topics"`
	Grammar     string   `json:"grammar"`
	Vocabulary  string   `json:"vocabulary"`
	Activities  []string `json:"activities"`
}

// StudyPlan is the structured learning document generated on assessment
// completion and stored on the user as JSON.
type StudyPlan struct {
	WeeklyPlans []WeeklyPlan `json:"weekly_plans"`
}

// UserUpdate carries the fields the assessment engine and the admin reset
// are allowed to mutate on a user. Nil fields are left unchanged.
type UserUpdate struct {
	Name      *string           `json:"name,omitempty"`
	Level     *ProficiencyLevel `json:"level,omitempty"`
	Progress  *int              `json:"progress,omitempty"`
	StudyPlan *string           `json:"study_plan,omitempty"`
}
