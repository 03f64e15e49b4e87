// Package store provides storage backends for Professor.
//
// It defines the conversation store contract used by the orchestrator and
// assessment engine, with in-memory, SQLite and PostgreSQL implementations.
package store

import (
	"strings"

	"github.com/3ndigital/professor/internal/models"
)

// Store is the durable per-user and per-conversation state contract.
//
// Implementations must keep messages immutable and return them in
// timestamp order, and must treat GetActiveConversations as ordered
// newest-first so callers can apply read-repair reconciliation.
type Store interface {
	// GetOrCreateUser resolves a user by channel identity, creating an
	// unleveled user on first contact. Bumps last_interaction.
	GetOrCreateUser(identity string) (models.User, error)

	// GetUser fetches a user by internal id.
	GetUser(id string) (models.User, error)

	// UpdateUser applies the non-nil fields of the update.
	UpdateUser(id string, update models.UserUpdate) error

	// GetActiveConversations returns the user's active conversations
	// ordered by start time descending (newest first).
	GetActiveConversations(userID string) ([]models.Conversation, error)

	// CreateConversation opens a new active conversation for the user.
	CreateConversation(userID string) (models.Conversation, error)

	// GetConversation fetches a conversation by id.
	GetConversation(id string) (models.Conversation, error)

	// SetConversationStatus transitions a conversation's lifecycle status.
	SetConversationStatus(id string, status models.ConversationStatus) error

	// AppendMessage stores an immutable message and bumps the owning
	// conversation's last_message_at.
	AppendMessage(conversationID string, direction models.MessageDirection, body string) (models.Message, error)

	// ListMessages returns all messages of a conversation in timestamp order.
	ListMessages(conversationID string) ([]models.Message, error)

	// RecentMessages returns up to limit messages of a conversation,
	// newest first.
	RecentMessages(conversationID string, limit int) ([]models.Message, error)

	// CountMessages returns the number of messages in a conversation.
	CountMessages(conversationID string) (int, error)

	// ListConversations returns summaries of all conversations, optionally
	// filtered by status (empty status means all). Used by the admin API.
	ListConversations(status models.ConversationStatus) ([]ConversationSummary, error)

	// Close releases backend resources.
	Close() error
}

// ConversationSummary joins a conversation with its owner for reporting.
type ConversationSummary struct {
	Conversation models.Conversation     `json:"conversation"`
	UserIdentity string                  `json:"user_identity"`
	UserName     string                  `json:"user_name,omitempty"`
	UserLevel    models.ProficiencyLevel `json:"user_level,omitempty"`
	MessageCount int                     `json:"message_count"`
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path as the store DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string as the store DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite3" so callers can
// pick the matching backend and database/sql driver name.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}
