package messaging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/3ndigital/professor/internal/models"
	"github.com/3ndigital/professor/internal/twiliowhatsapp"
)

// MaxInboundMediaBytes caps how much of an inbound media attachment is read.
const MaxInboundMediaBytes = 25 << 20

// TwilioService implements the Service interface using the Twilio API.
// Inbound traffic arrives through the webhook handler; outbound audio is
// delivered by media URL.
type TwilioService struct {
	client      twiliowhatsapp.Sender // real Twilio client or MockClient
	events      chan models.InboundEvent
	done        chan struct{}
	mediaClient *http.Client
	mu          sync.RWMutex
	stopped     bool
}

// NewTwilioService creates a new TwilioService wrapping the given sender.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		client:      client,
		events:      make(chan models.InboundEvent, DefaultChannelBufferSize),
		done:        make(chan struct{}),
		mediaClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhoneNumber(recipient)
}

// Start is a no-op for Twilio; events arrive via the webhook handler.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes channels and stops the service.
func (s *TwilioService) Stop() error {
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

	return nil
}

// SendText sends a text message via Twilio.
func (s *TwilioService) SendText(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendText validation error", "error", err, "to", to)
		return err
	}

	return s.client.SendMessage(ctx, "+"+canonicalTo, body)
}

// SendAudio sends an audio message via Twilio by media URL.
func (s *TwilioService) SendAudio(ctx context.Context, to string, audio AudioPayload) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	if audio.URL == "" {
		return fmt.Errorf("twilio audio delivery requires a media URL")
	}

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendAudio validation error", "error", err, "to", to)
		return err
	}

	return s.client.SendAudio(ctx, "+"+canonicalTo, audio.URL)
}

// Events returns the channel of normalized inbound events.
func (s *TwilioService) Events() <-chan models.InboundEvent {
	return s.events
}

// WebhookHandler handles inbound Twilio webhook requests.
// It parses incoming messages (text and audio attachments) and emits them as
// models.InboundEvent into the Events() channel.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	slog.Info("Twilio webhook received")

	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	if from == "" {
		slog.Warn("Twilio webhook missing From field")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	// Strip the channel prefix ("whatsapp:+5511...") down to digits.
	sender := phoneNumberRegex.ReplaceAllString(from, "")

	event := s.buildInboundEvent(r, sender)
	slog.Info("Inbound WhatsApp message from Twilio", "from", sender, "kind", event.Kind)
	s.safeEmit(event)

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// buildInboundEvent classifies the webhook form into a normalized event.
func (s *TwilioService) buildInboundEvent(r *http.Request, sender string) models.InboundEvent {
	numMedia, _ := strconv.Atoi(r.FormValue("NumMedia"))
	if numMedia > 0 {
		mediaURL := r.FormValue("MediaUrl0")
		contentType := r.FormValue("MediaContentType0")
		if strings.HasPrefix(contentType, "audio/") {
			event := models.InboundEvent{
				Sender:           sender,
				Kind:             models.EventAudio,
				AudioRef:         mediaURL,
				AudioContentType: contentType,
			}
			data, err := s.fetchMedia(r.Context(), mediaURL)
			if err != nil {
				// Leave Audio empty; downstream treats it as a failed voice note.
				slog.Error("TwilioService failed to fetch inbound media", "error", err, "from", sender)
			} else {
				event.Audio = data
			}
			return event
		}
		slog.Debug("TwilioService ignoring unsupported media", "from", sender, "content_type", contentType)
		return models.InboundEvent{Sender: sender, Kind: models.EventUnsupported}
	}

	return models.InboundEvent{
		Sender: sender,
		Kind:   models.EventText,
		Text:   r.FormValue("Body"),
	}
}

// fetchMedia downloads an inbound attachment from Twilio's media endpoint.
func (s *TwilioService) fetchMedia(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("media URL is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build media request: %w", err)
	}
	resp, err := s.mediaClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media fetch returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxInboundMediaBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read media body: %w", err)
	}
	return data, nil
}

// safeEmit safely pushes events into the events channel.
func (s *TwilioService) safeEmit(event models.InboundEvent) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		slog.Warn("TwilioService dropping inbound event (service stopped)", "from", event.Sender)
		return
	}

	select {
	case s.events <- event:
		slog.Debug("TwilioService emitted inbound event", "from", event.Sender, "kind", event.Kind)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService events channel blocked, dropping message", "from", event.Sender)
	}
}
