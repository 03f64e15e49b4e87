package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/3ndigital/professor/internal/models"
	"github.com/3ndigital/professor/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client   whatsapp.Sender
	waClient *whatsapp.Client // access to underlying client for event handling
	events   chan models.InboundEvent
	done     chan struct{}
	mu       sync.RWMutex
	stopped  bool
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		client: client,
		events: make(chan models.InboundEvent, DefaultChannelBufferSize),
		done:   make(chan struct{}),
	}

	// If the client is a full Client (not just an interface), store it for event handling
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}

	return service
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhoneNumber(recipient)
}

// Start begins background processing (event polling).
func (s *WhatsAppService) Start(ctx context.Context) error {
	slog.Debug("WhatsAppService Start invoked")

	if s.waClient != nil {
		go s.handleEvents(ctx)
		slog.Debug("WhatsAppService event handler started")
	} else {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
	}

	return nil
}

// Stop stops background processing.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.events)
	}()

	slog.Info("WhatsAppService stopped")
	return nil
}

// SendText sends a text message through the Whatsmeow client.
func (s *WhatsAppService) SendText(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendText validation error", "error", err, "to", to)
		return err
	}

	return s.client.SendMessage(ctx, canonicalTo, body)
}

// SendAudio uploads and sends an audio message through the Whatsmeow client.
func (s *WhatsAppService) SendAudio(ctx context.Context, to string, audio AudioPayload) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	if len(audio.Data) == 0 {
		return fmt.Errorf("whatsmeow audio delivery requires raw audio bytes")
	}

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendAudio validation error", "error", err, "to", to)
		return err
	}

	return s.client.SendAudio(ctx, canonicalTo, audio.Data, audio.ContentType)
}

// Events returns the channel of normalized inbound events.
func (s *WhatsAppService) Events() <-chan models.InboundEvent {
	return s.events
}

// handleEvents registers the Whatsmeow event handler and feeds inbound
// messages into the events channel.
func (s *WhatsAppService) handleEvents(ctx context.Context) {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Error("WhatsAppService handleEvents: no client available")
		return
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(ctx, v)
		default:
			// Ignore receipts, presence and connection events
		}
	})

	slog.Debug("WhatsAppService event handler registered")

	// Keep handler running until context is cancelled
	<-ctx.Done()
	slog.Debug("WhatsAppService handleEvents stopping due to context cancellation")
}

// handleIncomingMessage normalizes an inbound Whatsmeow message into an
// InboundEvent. Voice notes are downloaded so downstream processing can
// transcribe them.
func (s *WhatsAppService) handleIncomingMessage(ctx context.Context, evt *events.Message) {
	if evt.Message == nil {
		return
	}

	sender := evt.Info.Sender.User
	event := models.InboundEvent{Sender: sender}

	switch {
	case evt.Message.Conversation != nil:
		event.Kind = models.EventText
		event.Text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		event.Kind = models.EventText
		event.Text = *evt.Message.ExtendedTextMessage.Text
	case evt.Message.AudioMessage != nil:
		event.Kind = models.EventAudio
		event.AudioRef = evt.Info.ID
		if evt.Message.AudioMessage.Mimetype != nil {
			event.AudioContentType = *evt.Message.AudioMessage.Mimetype
		}
		data, err := s.waClient.DownloadAudio(ctx, evt.Message.AudioMessage)
		if err != nil {
			// Leave Audio empty; downstream treats it as a failed voice note.
			slog.Error("WhatsAppService failed to download voice note", "error", err, "from", sender)
		} else {
			event.Audio = data
		}
	default:
		slog.Debug("WhatsAppService ignoring unsupported message", "from", sender)
		event.Kind = models.EventUnsupported
	}

	slog.Debug("WhatsAppService processing incoming message", "from", sender, "kind", event.Kind)
	s.safeEmit(event)
}

// safeEmit safely pushes events into the events channel.
func (s *WhatsAppService) safeEmit(event models.InboundEvent) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		slog.Warn("WhatsAppService dropping inbound event (service stopped)", "from", event.Sender)
		return
	}

	select {
	case s.events <- event:
		slog.Debug("WhatsAppService emitted inbound event", "from", event.Sender, "kind", event.Kind)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService events channel blocked, dropping message", "from", event.Sender)
	}
}
