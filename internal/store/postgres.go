// Package store provides storage backends for Professor.
//
// This file implements the PostgreSQL-backed conversation store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/3ndigital/professor/internal/models"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetOrCreateUser(identity string) (models.User, error) {
	if identity == "" {
		return models.User{}, models.ErrEmptyIdentity
	}
	now := time.Now().UTC()
	_, err := s.db.Exec(`INSERT INTO users (id, identity, created_at, last_interaction) VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity) DO NOTHING`, uuid.NewString(), identity, now, now)
	if err != nil {
		slog.Error("PostgresStore GetOrCreateUser insert failed", "error", err, "identity", identity)
		return models.User{}, fmt.Errorf("failed to create user %s: %w", identity, err)
	}
	if _, err := s.db.Exec(`UPDATE users SET last_interaction = $1 WHERE identity = $2`, now, identity); err != nil {
		slog.Error("PostgresStore GetOrCreateUser touch failed", "error", err, "identity", identity)
		return models.User{}, fmt.Errorf("failed to touch user %s: %w", identity, err)
	}
	row := s.db.QueryRow(`SELECT id, identity, name, level, assessment_progress, study_plan, created_at, last_interaction
		FROM users WHERE identity = $1`, identity)
	user, err := scanUser(row)
	if err != nil {
		slog.Error("PostgresStore GetOrCreateUser scan failed", "error", err, "identity", identity)
		return models.User{}, fmt.Errorf("failed to load user %s: %w", identity, err)
	}
	return user, nil
}

func (s *PostgresStore) GetUser(id string) (models.User, error) {
	row := s.db.QueryRow(`SELECT id, identity, name, level, assessment_progress, study_plan, created_at, last_interaction
		FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return models.User{}, models.ErrUserNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetUser failed", "error", err, "id", id)
		return models.User{}, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	return user, nil
}

func (s *PostgresStore) UpdateUser(id string, update models.UserUpdate) error {
	user, err := s.GetUser(id)
	if err != nil {
		return err
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.Level != nil {
		user.Level = *update.Level
	}
	if update.Progress != nil {
		user.AssessmentProgress = *update.Progress
	}
	if update.StudyPlan != nil {
		user.StudyPlan = *update.StudyPlan
	}
	_, err = s.db.Exec(`UPDATE users SET name = $1, level = $2, assessment_progress = $3, study_plan = $4 WHERE id = $5`,
		user.Name, string(user.Level), user.AssessmentProgress, user.StudyPlan, id)
	if err != nil {
		slog.Error("PostgresStore UpdateUser failed", "error", err, "id", id)
		return fmt.Errorf("failed to update user %s: %w", id, err)
	}
	slog.Debug("PostgresStore UpdateUser succeeded", "id", id, "level", user.Level, "progress", user.AssessmentProgress)
	return nil
}

func (s *PostgresStore) GetActiveConversations(userID string) ([]models.Conversation, error) {
	rows, err := s.db.Query(`SELECT id, user_id, status, started_at, last_message_at FROM conversations
		WHERE user_id = $1 AND status = $2 ORDER BY started_at DESC`, userID, string(models.ConversationActive))
	if err != nil {
		slog.Error("PostgresStore GetActiveConversations query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query active conversations: %w", err)
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			slog.Error("PostgresStore GetActiveConversations scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation rows: %w", err)
	}
	return conversations, nil
}

func (s *PostgresStore) CreateConversation(userID string) (models.Conversation, error) {
	conv := models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    models.ConversationActive,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(`INSERT INTO conversations (id, user_id, status, started_at) VALUES ($1, $2, $3, $4)`,
		conv.ID, conv.UserID, string(conv.Status), conv.StartedAt)
	if err != nil {
		slog.Error("PostgresStore CreateConversation failed", "error", err, "user_id", userID)
		return models.Conversation{}, fmt.Errorf("failed to create conversation for %s: %w", userID, err)
	}
	slog.Debug("PostgresStore CreateConversation succeeded", "conversation_id", conv.ID, "user_id", userID)
	return conv, nil
}

func (s *PostgresStore) GetConversation(id string) (models.Conversation, error) {
	row := s.db.QueryRow(`SELECT id, user_id, status, started_at, last_message_at FROM conversations WHERE id = $1`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return models.Conversation{}, models.ErrConversationNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetConversation failed", "error", err, "id", id)
		return models.Conversation{}, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}
	return conv, nil
}

func (s *PostgresStore) SetConversationStatus(id string, status models.ConversationStatus) error {
	if !models.IsValidConversationStatus(status) {
		return models.ErrInvalidStatus
	}
	res, err := s.db.Exec(`UPDATE conversations SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		slog.Error("PostgresStore SetConversationStatus failed", "error", err, "id", id, "status", status)
		return fmt.Errorf("failed to update conversation %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrConversationNotFound
	}
	return nil
}

func (s *PostgresStore) AppendMessage(conversationID string, direction models.MessageDirection, body string) (models.Message, error) {
	if !models.IsValidMessageDirection(direction) {
		return models.Message{}, models.ErrInvalidDirection
	}
	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Direction:      direction,
		Body:           body,
		Timestamp:      time.Now().UTC(),
	}
	_, err := s.db.Exec(`INSERT INTO messages (id, conversation_id, direction, body, timestamp) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.ConversationID, string(msg.Direction), msg.Body, msg.Timestamp)
	if err != nil {
		slog.Error("PostgresStore AppendMessage failed", "error", err, "conversation_id", conversationID)
		return models.Message{}, fmt.Errorf("failed to insert message for %s: %w", conversationID, err)
	}
	if _, err := s.db.Exec(`UPDATE conversations SET last_message_at = $1 WHERE id = $2`, msg.Timestamp, conversationID); err != nil {
		slog.Error("PostgresStore AppendMessage touch failed", "error", err, "conversation_id", conversationID)
	}
	return msg, nil
}

func (s *PostgresStore) ListMessages(conversationID string) ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT id, conversation_id, direction, body, timestamp FROM messages
		WHERE conversation_id = $1 ORDER BY timestamp ASC`, conversationID)
	if err != nil {
		slog.Error("PostgresStore ListMessages query failed", "error", err, "conversation_id", conversationID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *PostgresStore) RecentMessages(conversationID string, limit int) ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT id, conversation_id, direction, body, timestamp FROM messages
		WHERE conversation_id = $1 ORDER BY timestamp DESC LIMIT $2`, conversationID, limit)
	if err != nil {
		slog.Error("PostgresStore RecentMessages query failed", "error", err, "conversation_id", conversationID)
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *PostgresStore) CountMessages(conversationID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListConversations(status models.ConversationStatus) ([]ConversationSummary, error) {
	query := `SELECT c.id, c.user_id, c.status, c.started_at, c.last_message_at,
		u.identity, u.name, u.level,
		(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c JOIN users u ON u.id = c.user_id`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE c.status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY c.started_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore ListConversations query failed", "error", err)
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()
	return collectSummaries(rows)
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
