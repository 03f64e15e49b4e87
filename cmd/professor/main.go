package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/3ndigital/professor/internal/api"
	"github.com/3ndigital/professor/internal/genai"
	"github.com/3ndigital/professor/internal/lockfile"
	"github.com/3ndigital/professor/internal/speech"
	"github.com/3ndigital/professor/internal/store"
	"github.com/3ndigital/professor/internal/twiliowhatsapp"
	"github.com/3ndigital/professor/internal/util"
	"github.com/3ndigital/professor/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Professor state data
	DefaultStateDir = "/var/lib/professor"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "professor.db"
	// DefaultAudioDirName is the synthesized-audio subdirectory of the state dir
	DefaultAudioDirName = "audio"
	// DefaultWhatsAppDBFileName is the whatsmeow session database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// One instance per state directory
	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	// Build module options
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	speechOpts := buildSpeechOptions(flags)
	twilioOpts := buildTwilioOptions(flags)
	waOpts := buildWhatsAppOptions(flags)
	apiOpts := buildAPIOptions(flags)

	// Start the service
	slog.Info("Bootstrapping Professor with configured modules")
	slog.Debug("Module options counts", "store", len(storeOpts), "genai", len(genaiOpts), "speech", len(speechOpts), "twilio", len(twilioOpts), "whatsapp", len(waOpts), "api", len(apiOpts))
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "channel", *flags.channel, "api_addr", *flags.apiAddr)
	if err := api.Run(*flags.channel, storeOpts, genaiOpts, speechOpts, twilioOpts, waOpts, apiOpts); err != nil {
		slog.Error("Professor failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("Professor exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir     string
	DatabaseURL  string
	WhatsAppDSN  string
	Channel      string
	OpenAIKey    string
	DeepSeekKey  string
	APIAddr      string
	AdminAPIKey  string
	AudioBaseURL string
}

// Flags holds command line flag values
type Flags struct {
	stateDir     *string
	dbDSN        *string
	channel      *string
	qrOutput     *string
	numeric      *bool
	waDBDSN      *string
	openaiKey    *string
	deepseekKey  *string
	apiAddr      *string
	adminAPIKey  *string
	audioBaseURL *string
}

// initializeLogger sets up structured logging. PROFESSOR_DEBUG enables
// debug-level output.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("PROFESSOR_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:     os.Getenv("PROFESSOR_STATE_DIR"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		WhatsAppDSN:  os.Getenv("WHATSAPP_DB_DSN"),
		Channel:      os.Getenv("MESSAGING_CHANNEL"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		DeepSeekKey:  os.Getenv("DEEPSEEK_API_KEY"),
		APIAddr:      os.Getenv("API_ADDR"),
		AdminAPIKey:  os.Getenv("ADMIN_API_KEY"),
		AudioBaseURL: os.Getenv("AUDIO_BASE_URL"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No PROFESSOR_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	// The whatsmeow session store defaults to its own SQLite file so it
	// never shares a schema with the conversation store
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)
	}

	if config.Channel == "" {
		config.Channel = api.ChannelTwilio
	}

	slog.Debug("environment variables loaded",
		"PROFESSOR_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"MESSAGING_CHANNEL", config.Channel,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"DEEPSEEK_API_KEY_SET", config.DeepSeekKey != "",
		"API_ADDR", config.APIAddr,
		"ADMIN_API_KEY_SET", config.AdminAPIKey != "",
		"AUDIO_BASE_URL", config.AudioBaseURL)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for Professor data (overrides $PROFESSOR_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "conversation store DSN, SQLite path or postgres:// URL (overrides $DATABASE_URL)"),
		channel:      flag.String("channel", config.Channel, "messaging channel, twilio or whatsmeow (overrides $MESSAGING_CHANNEL)"),
		qrOutput:     flag.String("qr-output", "", "path to write WhatsApp login QR code (whatsmeow channel)"),
		numeric:      flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		waDBDSN:      flag.String("wa-db-dsn", config.WhatsAppDSN, "whatsmeow session store DSN (overrides $WHATSAPP_DB_DSN)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		deepseekKey:  flag.String("deepseek-api-key", config.DeepSeekKey, "DeepSeek API key for completion fallback (overrides $DEEPSEEK_API_KEY)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		adminAPIKey:  flag.String("admin-api-key", config.AdminAPIKey, "API key guarding the admin endpoints (overrides $ADMIN_API_KEY)"),
		audioBaseURL: flag.String("audio-base-url", config.AudioBaseURL, "public base URL for synthesized audio (overrides $AUDIO_BASE_URL)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"channel", *flags.channel,
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"openaiKeySet", *flags.openaiKey != "",
		"deepseekKeySet", *flags.deepseekKey != "",
		"apiAddr", *flags.apiAddr,
		"audioBaseURL", *flags.audioBaseURL)

	// Keep the default DSNs inside the state directory when only the
	// state directory was overridden
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
			slog.Debug("Updated db-dsn based on state directory", "db_dsn", *flags.dbDSN)
		}
		if *flags.waDBDSN == filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) {
			*flags.waDBDSN = filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName)
		}
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	dirs := []string{*flags.stateDir, filepath.Join(*flags.stateDir, DefaultAudioDirName)}
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		dirs = append(dirs, filepath.Dir(*flags.dbDSN))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create directory", "error", err, "dir", dir)
			return err
		}
	}
	return nil
}

// buildStoreOptions constructs conversation store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithOpenAIKey(*flags.openaiKey))
	}
	if *flags.deepseekKey != "" {
		genaiOpts = append(genaiOpts, genai.WithDeepSeekKey(*flags.deepseekKey))
	}
	return genaiOpts
}

// buildSpeechOptions constructs speech gateway configuration options
func buildSpeechOptions(flags Flags) []speech.Option {
	speechOpts := []speech.Option{
		speech.WithAudioDir(filepath.Join(*flags.stateDir, DefaultAudioDirName)),
	}
	if *flags.openaiKey != "" {
		speechOpts = append(speechOpts, speech.WithAPIKey(*flags.openaiKey))
	}
	if *flags.audioBaseURL != "" {
		speechOpts = append(speechOpts, speech.WithBaseURL(*flags.audioBaseURL))
	}
	return speechOpts
}

// buildTwilioOptions constructs Twilio configuration options. Credentials
// come from the environment inside the client constructor.
func buildTwilioOptions(flags Flags) []twiliowhatsapp.Option {
	return nil
}

// buildWhatsAppOptions constructs whatsmeow channel configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.waDBDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDBDSN))
	}
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	return waOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.adminAPIKey != "" {
		apiOpts = append(apiOpts, api.WithAdminAPIKey(*flags.adminAPIKey))
	}
	return apiOpts
}
