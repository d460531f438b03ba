package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               int
	LogLevel           string
	Env                string
	DatabaseURL        string
	SQLitePath         string
	AnthropicAPIKey    string
	Model              string
	MaxTokens          int
	LLMMaxTries        int
	FrappeBaseURL      string
	FrappeClientID     string
	FrappeClientSecret string
	NatsURL            string
	NatsToken          string
	RedisURL           string
	PortfolioCacheTTL  time.Duration
	APIToken           string
	AutoExtract        bool
	SlackBotToken      string
	SlackChannel       string
}

// Load reads a .env file when one exists, then the process environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:               envInt("CMP_PORT", 8000),
		LogLevel:           envStr("LOG_LEVEL", "info"),
		Env:                envStr("CMP_ENV", "dev"),
		DatabaseURL:        envStr("DATABASE_URL", ""),
		SQLitePath:         envStr("SQLITE_PATH", "./data/cmp.db"),
		AnthropicAPIKey:    envStr("ANTHROPIC_API_KEY", ""),
		Model:              envStr("CMP_MODEL", "claude-sonnet-4-20250514"),
		MaxTokens:          envInt("CMP_MAX_TOKENS", 8096),
		LLMMaxTries:        envInt("LLM_MAX_TRIES", 5),
		FrappeBaseURL:      strings.TrimRight(envStr("FRAPPE_BASE_URL", ""), "/"),
		FrappeClientID:     envStr("FRAPPE_CLIENT_ID", ""),
		FrappeClientSecret: envStr("FRAPPE_CLIENT_SECRET", ""),
		NatsURL:            envStr("NATS_URL", ""),
		NatsToken:          envStr("NATS_TOKEN", ""),
		RedisURL:           envStr("REDIS_URL", ""),
		PortfolioCacheTTL:  time.Duration(envInt("PORTFOLIO_CACHE_TTL", 300)) * time.Second,
		APIToken:           envStr("CMP_API_TOKEN", ""),
		AutoExtract:        envBool("AUTO_EXTRACT", false),
		SlackBotToken:      envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:       envStr("SLACK_CHANNEL", ""),
	}
}

func (c Config) Validate() error {
	if c.Port <= 0 {
		return fmt.Errorf("CMP_PORT must be > 0, got %d", c.Port)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("CMP_MAX_TOKENS must be > 0, got %d", c.MaxTokens)
	}
	if c.LLMMaxTries < 1 {
		return fmt.Errorf("LLM_MAX_TRIES must be >= 1, got %d", c.LLMMaxTries)
	}
	if c.DatabaseURL == "" && c.SQLitePath == "" {
		return fmt.Errorf("one of DATABASE_URL or SQLITE_PATH is required")
	}
	return nil
}

// CMSEnabled reports whether the Frappe system of record is configured.
func (c Config) CMSEnabled() bool {
	return c.FrappeBaseURL != ""
}

// SlackEnabled reports whether extractions are posted for review.
func (c Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
