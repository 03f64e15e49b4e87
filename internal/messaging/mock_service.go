package messaging

import (
	"context"

	"github.com/3ndigital/professor/internal/models"
)

// MockService implements Service for tests. It records outbound sends and
// lets tests inject inbound events.
type MockService struct {
	SentTexts []MockSentText
	SentAudio []MockSentAudio
	SendErr   error
	events    chan models.InboundEvent
}

// MockSentText is one recorded text send.
type MockSentText struct {
	To   string
	Body string
}

// MockSentAudio is one recorded audio send.
type MockSentAudio struct {
	To    string
	Audio AudioPayload
}

// NewMockService creates an empty mock messaging service.
func NewMockService() *MockService {
	return &MockService{
		events: make(chan models.InboundEvent, DefaultChannelBufferSize),
	}
}

func (m *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhoneNumber(recipient)
}

func (m *MockService) SendText(ctx context.Context, to string, body string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.SentTexts = append(m.SentTexts, MockSentText{To: to, Body: body})
	return nil
}

func (m *MockService) SendAudio(ctx context.Context, to string, audio AudioPayload) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.SentAudio = append(m.SentAudio, MockSentAudio{To: to, Audio: audio})
	return nil
}

func (m *MockService) Start(ctx context.Context) error { return nil }

func (m *MockService) Stop() error {
	close(m.events)
	return nil
}

func (m *MockService) Events() <-chan models.InboundEvent {
	return m.events
}

// Inject pushes an inbound event into the mock's event channel.
func (m *MockService) Inject(event models.InboundEvent) {
	m.events <- event
}
