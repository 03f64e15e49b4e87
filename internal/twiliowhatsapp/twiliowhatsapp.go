// Package twiliowhatsapp wraps the Twilio API for WhatsApp delivery in Professor.
package twiliowhatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/3ndigital/professor/internal/models"
	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Sender is the delivery surface the messaging layer consumes;
// satisfied by Client and MockClient.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
	SendAudio(ctx context.Context, to string, mediaURL string) error
}

// Twilio error codes that mean the recipient is not authorized to receive
// messages (trial-account unverified numbers, opted-out recipients).
var permissionErrorCodes = map[int]bool{
	21608: true, // unverified number on trial account
	21610: true, // recipient has unsubscribed
	63003: true, // channel could not find the To address
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending WhatsApp number ("whatsapp:+1234567890").
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// Client wraps the Twilio REST API for WhatsApp.
type Client struct {
	client    *twilio.RestClient
	fromWhats string // WhatsApp number in "whatsapp:+1234567890" format
}

// NewClient creates a Twilio WhatsApp client, falling back to environment
// variables for credentials not provided via options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &Client{
		client:    client,
		fromWhats: cfg.FromWhats,
	}, nil
}

// SendMessage sends a WhatsApp text message using the Twilio API.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + to)
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	_, err := c.client.Api.CreateMessage(params)
	if err != nil {
		return c.classifySendError(err, to)
	}

	slog.Debug("Twilio message sent", "to", to)
	return nil
}

// SendAudio sends a WhatsApp audio message by media URL using the Twilio API.
func (c *Client) SendAudio(ctx context.Context, to string, mediaURL string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + to)
	params.SetFrom(c.fromWhats)
	params.SetMediaUrl([]string{mediaURL})

	_, err := c.client.Api.CreateMessage(params)
	if err != nil {
		return c.classifySendError(err, to)
	}

	slog.Debug("Twilio audio message sent", "to", to, "media_url", mediaURL)
	return nil
}

// classifySendError maps Twilio REST errors for unauthorized recipients to
// the distinguished permission error so callers can swallow them.
func (c *Client) classifySendError(err error, to string) error {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) && permissionErrorCodes[restErr.Code] {
		slog.Warn("Twilio recipient not permitted", "to", to, "code", restErr.Code)
		return fmt.Errorf("twilio code %d: %w", restErr.Code, models.ErrRecipientNotPermitted)
	}
	slog.Error("Twilio send failed", "to", to, "error", err)
	return fmt.Errorf("failed to send message to %s: %w", to, err)
}

// MockClient records sends for tests.
type MockClient struct {
	SentMessages []SentMessage
	SentAudio    []SentAudio
	Err          error
}

// SentMessage is one recorded text send.
type SentMessage struct {
	To   string
	Body string
}

// SentAudio is one recorded audio send.
type SentAudio struct {
	To       string
	MediaURL string
}

// NewMockClient creates an empty recording mock.
func NewMockClient() *MockClient {
	return &MockClient{
		SentMessages: []SentMessage{},
		SentAudio:    []SentAudio{},
	}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}

func (m *MockClient) SendAudio(ctx context.Context, to string, mediaURL string) error {
	if m.Err != nil {
		return m.Err
	}
	m.SentAudio = append(m.SentAudio, SentAudio{To: to, MediaURL: mediaURL})
	return nil
}
