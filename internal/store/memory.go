package store

import (
	"sort"
	"sync"
	"time"

	"github.com/3ndigital/professor/internal/models"
	"github.com/google/uuid"
)

// InMemoryStore keeps all state in process memory. It backs tests and
// development runs where no database DSN is configured.
type InMemoryStore struct {
	mu            sync.Mutex
	users         map[string]models.User // keyed by id
	byIdentity    map[string]string      // identity -> user id
	conversations map[string]models.Conversation
	messages      map[string][]models.Message // conversation id -> ordered messages
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:         make(map[string]models.User),
		byIdentity:    make(map[string]string),
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string][]models.Message),
	}
}

func (s *InMemoryStore) GetOrCreateUser(identity string) (models.User, error) {
	if identity == "" {
		return models.User{}, models.ErrEmptyIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if id, ok := s.byIdentity[identity]; ok {
		user := s.users[id]
		user.LastInteraction = now
		s.users[id] = user
		return user, nil
	}
	user := models.User{
		ID:              uuid.NewString(),
		Identity:        identity,
		CreatedAt:       now,
		LastInteraction: now,
	}
	s.users[user.ID] = user
	s.byIdentity[identity] = user.ID
	return user, nil
}

func (s *InMemoryStore) GetUser(id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return user, nil
}

func (s *InMemoryStore) UpdateUser(id string, update models.UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.ErrUserNotFound
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
	s.users[id] = user
	return nil
}

func (s *InMemoryStore) GetActiveConversations(userID string) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []models.Conversation
	for _, conv := range s.conversations {
		if conv.UserID == userID && conv.Status == models.ConversationActive {
			active = append(active, conv)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].StartedAt.After(active[j].StartedAt)
	})
	return active, nil
}

func (s *InMemoryStore) CreateConversation(userID string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return models.Conversation{}, models.ErrUserNotFound
	}
	conv := models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    models.ConversationActive,
		StartedAt: time.Now().UTC(),
	}
	s.conversations[conv.ID] = conv
	return conv, nil
}

func (s *InMemoryStore) GetConversation(id string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, models.ErrConversationNotFound
	}
	return conv, nil
}

func (s *InMemoryStore) SetConversationStatus(id string, status models.ConversationStatus) error {
	if !models.IsValidConversationStatus(status) {
		return models.ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return models.ErrConversationNotFound
	}
	conv.Status = status
	s.conversations[id] = conv
	return nil
}

func (s *InMemoryStore) AppendMessage(conversationID string, direction models.MessageDirection, body string) (models.Message, error) {
	if !models.IsValidMessageDirection(direction) {
		return models.Message{}, models.ErrInvalidDirection
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return models.Message{}, models.ErrConversationNotFound
	}
	now := time.Now().UTC()
	// Keep timestamps strictly increasing within a conversation so ordering
	// is stable even when appends land in the same clock tick.
	if msgs := s.messages[conversationID]; len(msgs) > 0 {
		if last := msgs[len(msgs)-1].Timestamp; !now.After(last) {
			now = last.Add(time.Microsecond)
		}
	}
	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Direction:      direction,
		Body:           body,
		Timestamp:      now,
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	conv.LastMessageAt = now
	s.conversations[conversationID] = conv
	return msg, nil
}

func (s *InMemoryStore) ListMessages(conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *InMemoryStore) RecentMessages(conversationID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	if limit <= 0 || limit > len(msgs) {
		limit = len(msgs)
	}
	out := make([]models.Message, 0, limit)
	for i := len(msgs) - 1; i >= len(msgs)-limit; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

func (s *InMemoryStore) CountMessages(conversationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[conversationID]), nil
}

func (s *InMemoryStore) ListConversations(status models.ConversationStatus) ([]ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ConversationSummary
	for _, conv := range s.conversations {
		if status != "" && conv.Status != status {
			continue
		}
		user := s.users[conv.UserID]
		out = append(out, ConversationSummary{
			Conversation: conv,
			UserIdentity: user.Identity,
			UserName:     user.Name,
			UserLevel:    user.Level,
			MessageCount: len(s.messages[conv.ID]),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Conversation.StartedAt.Before(out[j].Conversation.StartedAt)
	})
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
