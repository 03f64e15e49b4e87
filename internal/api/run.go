package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/3ndigital/professor/internal/genai"
	"github.com/3ndigital/professor/internal/messaging"
	"github.com/3ndigital/professor/internal/orchestrator"
	"github.com/3ndigital/professor/internal/speech"
	"github.com/3ndigital/professor/internal/store"
	"github.com/3ndigital/professor/internal/twiliowhatsapp"
	"github.com/3ndigital/professor/internal/whatsapp"
)

// Messaging channel names accepted by Run.
const (
	// ChannelTwilio delivers messages through the Twilio WhatsApp API and
	// receives them on the inbound webhook.
	ChannelTwilio = "twilio"
	// ChannelWhatsmeow delivers and receives messages over a direct
	// WhatsApp Web connection.
	ChannelWhatsmeow = "whatsmeow"
)

// Run wires up the store, AI client, speech gateway, messaging channel,
// orchestrator and HTTP server, then serves until SIGINT or SIGTERM.
func Run(channel string, storeOpts []store.Option, genaiOpts []genai.Option, speechOpts []speech.Option, twilioOpts []twiliowhatsapp.Option, waOpts []whatsapp.Option, apiOpts []Option) error {
	st, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Run failed to close store", "error", err)
		}
	}()

	ai, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize AI client: %w", err)
	}

	speechGateway, err := speech.NewGateway(speechOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize speech gateway: %w", err)
	}

	messenger, webhook, err := buildMessenger(channel, twilioOpts, waOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging channel: %w", err)
	}

	orch := orchestrator.New(st, ai, speechGateway, messenger)

	// The speech gateway's audio directory is the default; explicit
	// options still override it.
	apiOpts = append([]Option{WithAudioDir(speechGateway.AudioDir())}, apiOpts...)
	srv := NewServer(st, orch, messenger, webhook, apiOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Run starting Professor", "channel", channel)
	return srv.Start(ctx)
}

// buildStore picks the backend matching the configured DSN.
func buildStore(storeOpts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range storeOpts {
		opt(&cfg)
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		slog.Debug("Run using Postgres store")
		return store.NewPostgresStore(storeOpts...)
	}
	slog.Debug("Run using SQLite store", "dsn", cfg.DSN)
	return store.NewSQLiteStore(storeOpts...)
}

// buildMessenger constructs the selected messaging channel. Only the
// Twilio channel has an inbound webhook; whatsmeow receives messages on
// its own connection.
func buildMessenger(channel string, twilioOpts []twiliowhatsapp.Option, waOpts []whatsapp.Option) (messaging.Service, http.HandlerFunc, error) {
	switch channel {
	case ChannelWhatsmeow:
		waClient, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(waClient), nil, nil
	case ChannelTwilio, "":
		twilioClient, err := twiliowhatsapp.NewClient(twilioOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		svc := messaging.NewTwilioService(twilioClient)
		return svc, svc.WebhookHandler, nil
	default:
		return nil, nil, fmt.Errorf("unknown messaging channel %q", channel)
	}
}
