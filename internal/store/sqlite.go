// Package store provides storage backends for Professor.
//
// This file implements the SQLite-backed conversation store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/3ndigital/professor/internal/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetOrCreateUser(identity string) (models.User, error) {
	if identity == "" {
		return models.User{}, models.ErrEmptyIdentity
	}
	now := time.Now().UTC()
	// Insert-if-absent keeps concurrent first contacts from racing on the
	// unique identity column.
	_, err := s.db.Exec(`INSERT INTO users (id, identity, created_at, last_interaction) VALUES (?, ?, ?, ?)
		ON CONFLICT(identity) DO NOTHING`, uuid.NewString(), identity, now, now)
	if err != nil {
		slog.Error("SQLiteStore GetOrCreateUser insert failed", "error", err, "identity", identity)
		return models.User{}, fmt.Errorf("failed to create user %s: %w", identity, err)
	}
	if _, err := s.db.Exec(`UPDATE users SET last_interaction = ? WHERE identity = ?`, now, identity); err != nil {
		slog.Error("SQLiteStore GetOrCreateUser touch failed", "error", err, "identity", identity)
		return models.User{}, fmt.Errorf("failed to touch user %s: %w", identity, err)
	}
	row := s.db.QueryRow(`SELECT id, identity, name, level, assessment_progress, study_plan, created_at, last_interaction
		FROM users WHERE identity = ?`, identity)
	user, err := scanUser(row)
	if err != nil {
		slog.Error("SQLiteStore GetOrCreateUser scan failed", "error", err, "identity", identity)
		return models.User{}, fmt.Errorf("failed to load user %s: %w", identity, err)
	}
	return user, nil
}

func (s *SQLiteStore) GetUser(id string) (models.User, error) {
	row := s.db.QueryRow(`SELECT id, identity, name, level, assessment_progress, study_plan, created_at, last_interaction
		FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return models.User{}, models.ErrUserNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetUser failed", "error", err, "id", id)
		return models.User{}, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	return user, nil
}

func (s *SQLiteStore) UpdateUser(id string, update models.UserUpdate) error {
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
	_, err = s.db.Exec(`UPDATE users SET name = ?, level = ?, assessment_progress = ?, study_plan = ? WHERE id = ?`,
		user.Name, string(user.Level), user.AssessmentProgress, user.StudyPlan, id)
	if err != nil {
		slog.Error("SQLiteStore UpdateUser failed", "error", err, "id", id)
		return fmt.Errorf("failed to update user %s: %w", id, err)
	}
	slog.Debug("SQLiteStore UpdateUser succeeded", "id", id, "level", user.Level, "progress", user.AssessmentProgress)
	return nil
}

func (s *SQLiteStore) GetActiveConversations(userID string) ([]models.Conversation, error) {
	rows, err := s.db.Query(`SELECT id, user_id, status, started_at, last_message_at FROM conversations
		WHERE user_id = ? AND status = ? ORDER BY started_at DESC`, userID, string(models.ConversationActive))
	if err != nil {
		slog.Error("SQLiteStore GetActiveConversations query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query active conversations: %w", err)
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			slog.Error("SQLiteStore GetActiveConversations scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation rows: %w", err)
	}
	return conversations, nil
}

func (s *SQLiteStore) CreateConversation(userID string) (models.Conversation, error) {
	conv := models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    models.ConversationActive,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(`INSERT INTO conversations (id, user_id, status, started_at) VALUES (?, ?, ?, ?)`,
		conv.ID, conv.UserID, string(conv.Status), conv.StartedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateConversation failed", "error", err, "user_id", userID)
		return models.Conversation{}, fmt.Errorf("failed to create conversation for %s: %w", userID, err)
	}
	slog.Debug("SQLiteStore CreateConversation succeeded", "conversation_id", conv.ID, "user_id", userID)
	return conv, nil
}

func (s *SQLiteStore) GetConversation(id string) (models.Conversation, error) {
	row := s.db.QueryRow(`SELECT id, user_id, status, started_at, last_message_at FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return models.Conversation{}, models.ErrConversationNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversation failed", "error", err, "id", id)
		return models.Conversation{}, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}
	return conv, nil
}

func (s *SQLiteStore) SetConversationStatus(id string, status models.ConversationStatus) error {
	if !models.IsValidConversationStatus(status) {
		return models.ErrInvalidStatus
	}
	res, err := s.db.Exec(`UPDATE conversations SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		slog.Error("SQLiteStore SetConversationStatus failed", "error", err, "id", id, "status", status)
		return fmt.Errorf("failed to update conversation %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrConversationNotFound
	}
	return nil
}

func (s *SQLiteStore) AppendMessage(conversationID string, direction models.MessageDirection, body string) (models.Message, error) {
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
	_, err := s.db.Exec(`INSERT INTO messages (id, conversation_id, direction, body, timestamp) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, string(msg.Direction), msg.Body, msg.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore AppendMessage failed", "error", err, "conversation_id", conversationID)
		return models.Message{}, fmt.Errorf("failed to insert message for %s: %w", conversationID, err)
	}
	if _, err := s.db.Exec(`UPDATE conversations SET last_message_at = ? WHERE id = ?`, msg.Timestamp, conversationID); err != nil {
		slog.Error("SQLiteStore AppendMessage touch failed", "error", err, "conversation_id", conversationID)
	}
	return msg, nil
}

func (s *SQLiteStore) ListMessages(conversationID string) ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT id, conversation_id, direction, body, timestamp FROM messages
		WHERE conversation_id = ? ORDER BY timestamp ASC`, conversationID)
	if err != nil {
		slog.Error("SQLiteStore ListMessages query failed", "error", err, "conversation_id", conversationID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *SQLiteStore) RecentMessages(conversationID string, limit int) ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT id, conversation_id, direction, body, timestamp FROM messages
		WHERE conversation_id = ? ORDER BY timestamp DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		slog.Error("SQLiteStore RecentMessages query failed", "error", err, "conversation_id", conversationID)
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *SQLiteStore) CountMessages(conversationID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) ListConversations(status models.ConversationStatus) ([]ConversationSummary, error) {
	query := `SELECT c.id, c.user_id, c.status, c.started_at, c.last_message_at,
		u.identity, u.name, u.level,
		(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c JOIN users u ON u.id = c.user_id`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE c.status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY c.started_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListConversations query failed", "error", err)
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()
	return collectSummaries(rows)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

func collectMessages(rows *sql.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return messages, nil
}

func collectSummaries(rows *sql.Rows) ([]ConversationSummary, error) {
	var summaries []ConversationSummary
	for rows.Next() {
		var sum ConversationSummary
		var convStatus, userLevel string
		var lastMessageAt sql.NullTime
		err := rows.Scan(&sum.Conversation.ID, &sum.Conversation.UserID, &convStatus,
			&sum.Conversation.StartedAt, &lastMessageAt,
			&sum.UserIdentity, &sum.UserName, &userLevel, &sum.MessageCount)
		if err != nil {
			return nil, fmt.Errorf("scan conversation summary failed: %w", err)
		}
		sum.Conversation.Status = models.ConversationStatus(convStatus)
		if lastMessageAt.Valid {
			sum.Conversation.LastMessageAt = lastMessageAt.Time
		}
		sum.UserLevel = models.ProficiencyLevel(userLevel)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate summary rows: %w", err)
	}
	return summaries, nil
}
