package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port       string
	Env        string
	PublicHost string // Host name the telephony provider uses to reach /media-stream
	ClientSlug string // Identifies this shop in the call log

	// Business
	BusinessName     string
	BusinessGreeting string
	BusinessLocation string
	BusinessPhone    string
	TaxRate          float64

	// Realtime AI
	OpenAIAPIKey            string
	RealtimeURL             string
	RealtimeModel           string
	RealtimeVoice           string
	TranscriptionModel      string
	VADThreshold            float64
	VADPrefixPaddingMs      int
	VADSilenceDurationMs    int
	MaxResponseOutputTokens int

	// Telephony
	TwilioAuthToken    string
	CallSetupTimeoutMs int
	ValidateTwilioSig  bool

	// Turn taking
	GreetingSilenceWindowMs int // No forced responses this long after the greeting
	GreetingPassWindowMs    int // The greeting response itself may start inside this window
	ResponseDebounceMs      int // Minimum gap between forced response.create calls
	RateLimitRetries        int
	RateLimitBackoffMs      int

	// Audio relay
	PreConnectQueueFrames int

	// Reconnect
	ReconnectInitialMs int
	ReconnectMaxMs     int

	// Menu
	MenuSheetURL     string // Published spreadsheet (HTML) holding the menu
	MenuCacheTTL     int    // Seconds
	MenuFetchTimeout int    // Seconds

	// Google Sheets order log
	GoogleSheetsID              string
	GoogleSheetsCredentialsPath string
	GoogleSheetsCredentials64   string
	GoogleSheetsRange           string

	// POS
	POSWebhookURL string
	POSAPIKey     string

	// Neo4j customer graph
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Discord kitchen channel
	DiscordBotToken        string
	DiscordOrdersChannelID string

	// Call log
	DatabaseURL string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	businessName := getEnv("BUSINESS_NAME", "Your Pizza Company")

	cfg := &Config{
		Port:       getEnv("PORT", "8080"),
		Env:        getEnv("ENV", "development"),
		PublicHost: getEnv("PUBLIC_HOST", ""),
		ClientSlug: getEnv("CLIENT_SLUG", "default"),

		BusinessName:     businessName,
		BusinessGreeting: getEnv("BUSINESS_GREETING", fmt.Sprintf("Welcome to %s. How can I help you today?", businessName)),
		BusinessLocation: getEnv("BUSINESS_LOCATION", "Your City, State"),
		BusinessPhone:    getEnv("BUSINESS_PHONE", ""),
		TaxRate:          getEnvFloat("TAX_RATE", 0.08),

		OpenAIAPIKey:            getEnv("OPENAI_API_KEY", ""),
		RealtimeURL:             getEnv("REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		RealtimeModel:           getEnv("REALTIME_MODEL", "gpt-4o-realtime-preview"),
		RealtimeVoice:           getEnv("REALTIME_VOICE", "alloy"),
		TranscriptionModel:      getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
		VADThreshold:            getEnvFloat("VAD_THRESHOLD", 0.6),
		VADPrefixPaddingMs:      getEnvInt("VAD_PREFIX_PADDING_MS", 300),
		VADSilenceDurationMs:    getEnvInt("VAD_SILENCE_DURATION_MS", 700),
		MaxResponseOutputTokens: getEnvInt("MAX_RESPONSE_OUTPUT_TOKENS", 400),

		TwilioAuthToken:    getEnv("TWILIO_AUTH_TOKEN", ""),
		CallSetupTimeoutMs: getEnvInt("CALL_SETUP_TIMEOUT_MS", 3000),
		ValidateTwilioSig:  getEnvBool("VALIDATE_TWILIO_SIGNATURE", false),

		GreetingSilenceWindowMs: getEnvInt("GREETING_SILENCE_WINDOW_MS", 4000),
		GreetingPassWindowMs:    getEnvInt("GREETING_PASS_WINDOW_MS", 1500),
		ResponseDebounceMs:      getEnvInt("RESPONSE_DEBOUNCE_MS", 1000),
		RateLimitRetries:        getEnvInt("RATE_LIMIT_RETRIES", 3),
		RateLimitBackoffMs:      getEnvInt("RATE_LIMIT_BACKOFF_MS", 1000),

		PreConnectQueueFrames: getEnvInt("PRE_CONNECT_QUEUE_FRAMES", 250),

		ReconnectInitialMs: getEnvInt("RECONNECT_INITIAL_MS", 500),
		ReconnectMaxMs:     getEnvInt("RECONNECT_MAX_MS", 8000),

		MenuSheetURL:     getEnv("MENU_SHEET_URL", ""),
		MenuCacheTTL:     getEnvInt("MENU_CACHE_TTL", 300),
		MenuFetchTimeout: getEnvInt("MENU_FETCH_TIMEOUT", 5),

		GoogleSheetsID:              getEnv("GOOGLE_SHEETS_ID", ""),
		GoogleSheetsCredentialsPath: getEnv("GOOGLE_SHEETS_CREDENTIALS_PATH", ""),
		GoogleSheetsCredentials64:   getEnv("GOOGLE_SHEETS_CREDENTIALS_BASE64", ""),
		GoogleSheetsRange:           getEnv("GOOGLE_SHEETS_RANGE", "Orders!A:G"),

		POSWebhookURL: getEnv("POS_WEBHOOK_URL", ""),
		POSAPIKey:     getEnv("POS_API_KEY", ""),

		Neo4jURI:      getEnv("NEO4J_URI", ""),
		Neo4jUser:     getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", ""),

		DiscordBotToken:        getEnv("DISCORD_BOT_TOKEN", ""),
		DiscordOrdersChannelID: getEnv("DISCORD_ORDERS_CHANNEL_ID", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.RealtimeURL == "" {
		return fmt.Errorf("REALTIME_URL is required")
	}
	if c.TaxRate < 0 || c.TaxRate >= 1 {
		return fmt.Errorf("TAX_RATE must be in [0, 1), got %v", c.TaxRate)
	}
	if c.ValidateTwilioSig && c.TwilioAuthToken == "" {
		return fmt.Errorf("TWILIO_AUTH_TOKEN is required when VALIDATE_TWILIO_SIGNATURE is set")
	}
	if c.PreConnectQueueFrames <= 0 {
		return fmt.Errorf("PRE_CONNECT_QUEUE_FRAMES must be positive")
	}
	if c.CallSetupTimeoutMs <= 0 {
		return fmt.Errorf("CALL_SETUP_TIMEOUT_MS must be positive")
	}
	// Sinks, graph, Discord and the call log are optional for development
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Ms converts one of the millisecond knobs into a duration.
func Ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}
