// Package speech provides the speech gateway for Professor.
//
// It converts inbound voice notes to text with the Whisper API and
// outbound text to MP3 audio with the TTS API, storing synthesized files
// locally so the HTTP layer can serve them by URL.
package speech

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Constants for speech gateway configuration
const (
	// DefaultAudioDir is the default directory for synthesized audio files.
	DefaultAudioDir = "/var/lib/professor/audio"
	// DefaultTimeout bounds every transcription and synthesis call.
	DefaultTimeout = 30 * time.Second
	// DefaultDirPermissions defines permissions for the audio directory.
	DefaultDirPermissions = 0755
)

// SynthesisResult describes one generated audio file.
type SynthesisResult struct {
	Filename string // unique file name under the audio directory
	Path     string // absolute path on disk
	URL      string // public URL if a base URL is configured, else empty
}

// Service is the speech capability consumed by the orchestrator;
// satisfied by Gateway and MockService.
type Service interface {
	// Transcribe converts audio bytes to text. language is a BCP-47 hint
	// ("en", "pt") passed through to the recognizer.
	Transcribe(ctx context.Context, audio io.Reader, filename, contentType, language string) (string, error)
	// Synthesize renders text to an MP3 file and returns its location.
	Synthesize(ctx context.Context, text string) (SynthesisResult, error)
}

// Opts holds configuration options for the speech gateway.
type Opts struct {
	APIKey   string
	AudioDir string
	BaseURL  string // public base URL for serving synthesized audio
	Timeout  time.Duration
}

// Option defines a configuration option for the speech gateway.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithAudioDir sets the directory for synthesized audio files.
func WithAudioDir(dir string) Option {
	return func(o *Opts) { o.AudioDir = dir }
}

// WithBaseURL sets the public base URL under which audio files are served.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Gateway implements Service against the OpenAI audio APIs.
type Gateway struct {
	client   openai.Client
	audioDir string
	baseURL  string
	timeout  time.Duration
}

// NewGateway creates a speech gateway, applying any provided options.
// Falls back to OPENAI_API_KEY when no key is provided explicitly.
func NewGateway(opts ...Option) (*Gateway, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key must be provided")
	}
	if cfg.AudioDir == "" {
		cfg.AudioDir = DefaultAudioDir
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if err := os.MkdirAll(cfg.AudioDir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create audio directory", "error", err, "dir", cfg.AudioDir)
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}
	slog.Debug("Speech gateway config loaded", "audio_dir", cfg.AudioDir, "base_url_set", cfg.BaseURL != "")

	return &Gateway{
		client:   openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		audioDir: cfg.AudioDir,
		baseURL:  cfg.BaseURL,
		timeout:  cfg.Timeout,
	}, nil
}

// AudioDir returns the directory synthesized files are written to.
func (g *Gateway) AudioDir() string {
	return g.audioDir
}

// Transcribe sends the audio to the Whisper API and returns the text.
func (g *Gateway) Transcribe(ctx context.Context, audio io.Reader, filename, contentType, language string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelWhisper1,
		File:  openai.File(audio, filename, contentType),
	}
	if language != "" {
		params.Language = openai.String(language)
	}

	transcription, err := g.client.Audio.Transcriptions.New(callCtx, params)
	if err != nil {
		slog.Error("Speech.Transcribe failed", "error", err, "filename", filename)
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	slog.Debug("Speech.Transcribe succeeded", "filename", filename, "text_length", len(transcription.Text))
	return transcription.Text, nil
}

// Synthesize renders the text as MP3 via the TTS API and writes it under
// the audio directory with a unique name.
func (g *Gateway) Synthesize(ctx context.Context, text string) (SynthesisResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Audio.Speech.New(callCtx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModelTTS1,
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoiceAlloy,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		slog.Error("Speech.Synthesize failed", "error", err)
		return SynthesisResult{}, fmt.Errorf("speech synthesis failed: %w", err)
	}
	defer resp.Body.Close()

	filename := fmt.Sprintf("response_%s.mp3", uuid.NewString())
	path := filepath.Join(g.audioDir, filename)
	f, err := os.Create(path)
	if err != nil {
		slog.Error("Speech.Synthesize file create failed", "error", err, "path", path)
		return SynthesisResult{}, fmt.Errorf("failed to create audio file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		slog.Error("Speech.Synthesize file write failed", "error", err, "path", path)
		return SynthesisResult{}, fmt.Errorf("failed to write audio file: %w", err)
	}

	result := SynthesisResult{Filename: filename, Path: path}
	if g.baseURL != "" {
		result.URL = g.baseURL + "/audio/" + filename
	}
	slog.Debug("Speech.Synthesize succeeded", "filename", filename, "url_set", result.URL != "")
	return result, nil
}

// MockService records calls and returns scripted results for tests.
type MockService struct {
	Transcriptions  []string // queued Transcribe results
	TranscribeErr   error
	SynthesisResult SynthesisResult
	SynthesizeErr   error
	TranscribeCalls []string // languages passed to Transcribe
	SynthesizedText []string
}

// NewMockService creates an empty mock speech service.
func NewMockService() *MockService {
	return &MockService{}
}

func (m *MockService) Transcribe(ctx context.Context, audio io.Reader, filename, contentType, language string) (string, error) {
	m.TranscribeCalls = append(m.TranscribeCalls, language)
	if m.TranscribeErr != nil {
		return "", m.TranscribeErr
	}
	if len(m.Transcriptions) == 0 {
		return "", fmt.Errorf("mock has no transcriptions queued")
	}
	text := m.Transcriptions[0]
	m.Transcriptions = m.Transcriptions[1:]
	return text, nil
}

func (m *MockService) Synthesize(ctx context.Context, text string) (SynthesisResult, error) {
	m.SynthesizedText = append(m.SynthesizedText, text)
	if m.SynthesizeErr != nil {
		return SynthesisResult{}, m.SynthesizeErr
	}
	if m.SynthesisResult.Filename == "" {
		return SynthesisResult{Filename: "response_mock.mp3", URL: "https://example.test/audio/response_mock.mp3"}, nil
	}
	return m.SynthesisResult, nil
}
