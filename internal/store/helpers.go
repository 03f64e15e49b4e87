package store

import (
	"database/sql"
	"fmt"

	"github.com/3ndigital/professor/internal/models"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUser scans a user row in column order
// (id, identity, name, level, assessment_progress, study_plan, created_at, last_interaction).
func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	var level string
	err := row.Scan(&u.ID, &u.Identity, &u.Name, &level, &u.AssessmentProgress, &u.StudyPlan, &u.CreatedAt, &u.LastInteraction)
	if err != nil {
		return u, err
	}
	u.Level = models.ProficiencyLevel(level)
	return u, nil
}

// scanConversation scans a conversation row in column order
// (id, user_id, status, started_at, last_message_at).
func scanConversation(row rowScanner) (models.Conversation, error) {
	var c models.Conversation
	var status string
	var lastMessageAt sql.NullTime
	err := row.Scan(&c.ID, &c.UserID, &status, &c.StartedAt, &lastMessageAt)
	if err != nil {
		return c, err
	}
	c.Status = models.ConversationStatus(status)
	if lastMessageAt.Valid {
		c.LastMessageAt = lastMessageAt.Time
	}
	return c, nil
}

// scanMessage scans a message row in column order
// (id, conversation_id, direction, body, timestamp).
func scanMessage(row rowScanner) (models.Message, error) {
	var m models.Message
	var direction string
	err := row.Scan(&m.ID, &m.ConversationID, &direction, &m.Body, &m.Timestamp)
	if err != nil {
		return m, fmt.Errorf("scan message failed: %w", err)
	}
	m.Direction = models.MessageDirection(direction)
	return m, nil
}
