// Package genai provides the generative responder gateway for Professor.
//
// It fronts a ranked list of chat-completion providers (DeepSeek first,
// then OpenAI) behind one capability interface; callers only see
// success-with-text or failure. The fallback policy is data, not control
// flow: the client walks the provider list and returns the first success.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Constants for generation defaults shared by all providers.
const (
	// DefaultMaxTokens bounds reply length for conversational responses.
	DefaultMaxTokens = 300
	// DefaultTemperature is the sampling temperature for replies.
	DefaultTemperature = 0.7
	// DefaultTimeout bounds every provider call.
	DefaultTimeout = 30 * time.Second
	// DeepSeekBaseURL is the OpenAI-compatible DeepSeek endpoint.
	DeepSeekBaseURL = "https://api.deepseek.com/v1"
	// DeepSeekModel is the chat model served at DeepSeekBaseURL.
	DeepSeekModel = "deepseek-chat"
)

// Turn is one prior exchange in a conversation context window.
type Turn struct {
	FromUser bool
	Content  string
}

// Request carries everything a provider needs to produce one completion.
type Request struct {
	SystemPrompt string
	History      []Turn
	UserMessage  string
}

// Provider is one chat-completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// ClientInterface is the surface the orchestrator and assessment engine
// consume; satisfied by Client and MockClient.
type ClientInterface interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Opts holds configuration options for the gateway.
type Opts struct {
	OpenAIKey   string
	DeepSeekKey string
	Timeout     time.Duration
}

// Option defines a configuration option for the gateway.
type Option func(*Opts)

// WithOpenAIKey sets the OpenAI API key.
func WithOpenAIKey(key string) Option {
	return func(o *Opts) { o.OpenAIKey = key }
}

// WithDeepSeekKey sets the DeepSeek API key.
func WithDeepSeekKey(key string) Option {
	return func(o *Opts) { o.DeepSeekKey = key }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client iterates a ranked provider list and returns the first success.
type Client struct {
	providers []Provider
	timeout   time.Duration
}

// NewClient builds the gateway from options, falling back to environment
// variables for keys not provided explicitly. At least one provider key
// must be available.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.OpenAIKey == "" {
		cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.DeepSeekKey == "" {
		cfg.DeepSeekKey = os.Getenv("DEEPSEEK_API_KEY")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	slog.Debug("GenAI client config loaded",
		"openai_key_set", cfg.OpenAIKey != "",
		"deepseek_key_set", cfg.DeepSeekKey != "")

	var providers []Provider
	if cfg.DeepSeekKey != "" {
		providers = append(providers, newChatProvider("deepseek", cfg.DeepSeekKey, DeepSeekBaseURL, DeepSeekModel))
	}
	if cfg.OpenAIKey != "" {
		providers = append(providers, newChatProvider("openai", cfg.OpenAIKey, "", openai.ChatModelGPT4oMini))
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no provider API key configured")
	}
	return &Client{providers: providers, timeout: cfg.Timeout}, nil
}

// NewClientWithProviders builds a gateway over an explicit provider list.
// Used by tests and anywhere the ranking needs to be customized.
func NewClientWithProviders(timeout time.Duration, providers ...Provider) *Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{providers: providers, timeout: timeout}
}

// Complete tries each provider in rank order and returns the first success.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for _, p := range c.providers {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		text, err := p.Complete(callCtx, req)
		cancel()
		if err != nil {
			slog.Warn("GenAI provider failed, trying next", "provider", p.Name(), "error", err)
			lastErr = err
			continue
		}
		slog.Debug("GenAI completion succeeded", "provider", p.Name(), "response_length", len(text))
		return text, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no providers configured")
	}
	return "", fmt.Errorf("all providers failed: %w", lastErr)
}

// chatProvider adapts one OpenAI-compatible endpoint to the Provider interface.
type chatProvider struct {
	name   string
	client openai.Client
	model  openai.ChatModel
}

func newChatProvider(name, apiKey, baseURL string, model openai.ChatModel) *chatProvider {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	return &chatProvider{
		name:   name,
		client: openai.NewClient(reqOpts...),
		model:  model,
	}
}

func (p *chatProvider) Name() string {
	return p.name
}

func (p *chatProvider) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, turn := range req.History {
		if turn.FromUser {
			messages = append(messages, openai.UserMessage(turn.Content))
		} else {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.UserMessage))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   openai.Int(DefaultMaxTokens),
		Temperature: openai.Float(DefaultTemperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// MockClient records requests and returns scripted responses for tests.
type MockClient struct {
	Requests  []Request
	Responses []string
	Err       error
}

// NewMockClient creates a mock that always errors until responses are queued.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Complete(ctx context.Context, req Request) (string, error) {
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", fmt.Errorf("mock has no responses queued")
	}
	resp := m.Responses[0]
	m.Responses = m.Responses[1:]
	return resp, nil
}
