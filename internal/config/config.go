// Package config provides application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	// ReviewPath is where a finished session sends the candidate.
	ReviewPath      string
	Chat            ChatConfig
	Sessions        SessionConfig
	Bridge          BridgeConfig
	Timeout         TimeoutConfig
	ConversationLog ConversationLogConfig
}

// ChatConfig points at the remote interview chat service.
type ChatConfig struct {
	URL     string
	Timeout time.Duration
}

// SessionConfig controls how long abandoned live records are kept.
type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// BridgeConfig throttles inbound device frames per connection.
type BridgeConfig struct {
	EventsPerSecond float64
	EventBurst      int
}

// TimeoutConfig holds server-side timeouts.
type TimeoutConfig struct {
	HealthCheck time.Duration
	Shutdown    time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/prepy.db"),
		ReviewPath:  getEnv("REVIEW_PATH", "/review"),
		Chat: ChatConfig{
			URL:     getEnv("CHAT_API_URL", "http://localhost:5000"),
			Timeout: getEnvDuration("CHAT_TIMEOUT", 60*time.Second),
		},
		Sessions: SessionConfig{
			TTL:           getEnvDuration("SESSION_TTL", 24*time.Hour),
			SweepInterval: getEnvDuration("SWEEP_INTERVAL", 10*time.Minute),
		},
		Bridge: BridgeConfig{
			EventsPerSecond: getEnvFloat("BRIDGE_EVENTS_PER_SECOND", 50),
			EventBurst:      getEnvInt("BRIDGE_EVENT_BURST", 100),
		},
		Timeout: TimeoutConfig{
			HealthCheck: 5 * time.Second,
			Shutdown:    30 * time.Second,
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if !strings.HasPrefix(c.ReviewPath, "/") {
		return fmt.Errorf("REVIEW_PATH must start with /")
	}
	if u, err := url.Parse(c.Chat.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("CHAT_API_URL must be an absolute URL")
	}
	if c.Chat.Timeout <= 0 {
		return fmt.Errorf("CHAT_TIMEOUT must be > 0")
	}
	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.Sessions.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if c.Bridge.EventsPerSecond <= 0 || c.Bridge.EventBurst <= 0 {
		return fmt.Errorf("BRIDGE_EVENTS_PER_SECOND and BRIDGE_EVENT_BURST must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{strings.TrimRight(c.FrontendURL, "/")}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
