// Package api provides the HTTP surface and top-level wiring for Professor.
//
// It mounts the Twilio inbound webhook, serves synthesized audio files, and
// exposes the admin reporting and reset endpoints behind an API key. The
// server also owns the event loop that feeds inbound messaging events into
// the orchestrator.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/3ndigital/professor/internal/messaging"
	"github.com/3ndigital/professor/internal/models"
	"github.com/3ndigital/professor/internal/orchestrator"
	"github.com/3ndigital/professor/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Constants for API server configuration
const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"
	// DefaultReadTimeout bounds request reads.
	DefaultReadTimeout = 30 * time.Second
	// DefaultWriteTimeout bounds response writes.
	DefaultWriteTimeout = 60 * time.Second
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultEventTimeout bounds handling of one inbound event.
	DefaultEventTimeout = 2 * time.Minute
	// APIKeyHeader carries the admin API key.
	APIKeyHeader = "X-API-Key"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr     string
	AdminKey string
	AudioDir string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithAdminAPIKey sets the key required by the admin endpoints.
func WithAdminAPIKey(key string) Option {
	return func(o *Opts) { o.AdminKey = key }
}

// WithAudioDir sets the directory synthesized audio is served from.
func WithAudioDir(dir string) Option {
	return func(o *Opts) { o.AudioDir = dir }
}

// Server is the Professor HTTP server plus the inbound event loop.
type Server struct {
	store      store.Store
	orch       *orchestrator.Orchestrator
	messenger  messaging.Service
	webhook    http.HandlerFunc // inbound Twilio webhook; nil for channels without one
	addr       string
	adminKey   string
	audioDir   string
	httpServer *http.Server
}

// NewServer creates the API server, falling back to environment variables
// for options not provided explicitly.
func NewServer(s store.Store, orch *orchestrator.Orchestrator, messenger messaging.Service, webhook http.HandlerFunc, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = os.Getenv("API_ADDR")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.AdminKey == "" {
		cfg.AdminKey = os.Getenv("ADMIN_API_KEY")
	}
	if cfg.AdminKey == "" {
		slog.Warn("Server admin API key not configured; admin endpoints will reject all requests")
	}
	slog.Debug("Server config loaded", "addr", cfg.Addr, "admin_key_set", cfg.AdminKey != "", "audio_dir", cfg.AudioDir)

	return &Server{
		store:     s,
		orch:      orch,
		messenger: messenger,
		webhook:   webhook,
		addr:      cfg.Addr,
		adminKey:  cfg.AdminKey,
		audioDir:  cfg.AudioDir,
	}
}

// Router builds the chi router for the server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	if s.webhook != nil {
		r.Post("/webhook/twilio", s.webhook)
	}
	if s.audioDir != "" {
		r.Get("/audio/{filename}", s.handleAudio)
	}

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Get("/conversations", s.handleListConversations)
		r.Get("/conversations/{conversationID}/messages", s.handleConversationMessages)
		r.Post("/conversations/{conversationID}/reset", s.handleResetConversation)
		r.Get("/users/{userID}", s.handleGetUser)
	})

	return r
}

// Start runs the event loop and the HTTP server until the context is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if err := s.messenger.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	go s.consumeEvents(ctx)

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Router(),
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := s.messenger.Stop(); err != nil {
		slog.Error("Server failed to stop messaging service", "error", err)
	}
	return nil
}

// consumeEvents drains the messaging service's inbound events into the
// orchestrator. One failed event never stops the loop.
func (s *Server) consumeEvents(ctx context.Context) {
	events := s.messenger.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				slog.Info("Server event channel closed")
				return
			}
			eventCtx, cancel := context.WithTimeout(ctx, DefaultEventTimeout)
			action, err := s.orch.HandleEvent(eventCtx, event)
			cancel()
			if err != nil {
				slog.Error("Server event handling failed", "error", err, "sender", event.Sender)
				continue
			}
			slog.Info("Server event processed", "sender", event.Sender, "action", action)
		}
	}
}

// requireAPIKey guards the admin endpoints. An unset key rejects every
// request.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminKey == "" || r.Header.Get(APIKeyHeader) != s.adminKey {
			writeJSON(w, http.StatusUnauthorized, models.Error("Invalid API Key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes the standard response envelope.
func writeJSON(w http.ResponseWriter, status int, resp models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Server failed to encode response", "error", err)
	}
}
