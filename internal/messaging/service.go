// Package messaging provides the channel abstraction between the delivery
// providers (Twilio, Whatsmeow) and the tutoring orchestrator.
//
// A Service normalizes inbound traffic into models.InboundEvent values and
// accepts outbound text and audio regardless of which provider carries them.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/3ndigital/professor/internal/models"
)

// Constants for messaging service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for the event channel
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned when operations are attempted on a stopped service.
var ErrServiceStopped = errors.New("messaging service is stopped")

// phoneNumberRegex matches everything that is not a digit, for canonicalization.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// AudioPayload describes outbound audio. Twilio-backed services deliver by
// URL; Whatsmeow-backed services upload the raw bytes.
type AudioPayload struct {
	URL         string
	Data        []byte
	ContentType string
}

// Service defines a pluggable message delivery abstraction.
// It supports sending text and audio, and exposes a channel of normalized
// inbound events.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	// Returns the canonicalized recipient and an error if validation fails.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendText sends a text message to a recipient.
	SendText(ctx context.Context, to string, body string) error

	// SendAudio sends an audio message to a recipient.
	SendAudio(ctx context.Context, to string, audio AudioPayload) error

	// Start begins any background processing (e.g., polling for events).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Events returns a channel of normalized inbound events.
	Events() <-chan models.InboundEvent
}

// canonicalizePhoneNumber removes all non-numeric characters and validates
// the result has at least 6 digits. Shared by the concrete services.
func canonicalizePhoneNumber(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}

	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	wasModified := recipient != canonical

	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}

	if wasModified {
		slog.Debug("Messaging canonicalized recipient", "original", recipient, "canonical", canonical)
	}

	return canonical, nil
}
