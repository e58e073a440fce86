package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	Provider          string
	APIKey            string
	EmbeddingModel    string
	ChatModel         string
	DatabaseURL       string
	HTTPPort          string
	LogLevel          string
	LogJSON           bool
	CapabilityTimeout time.Duration
	MaxUploadBytes    int64
}

// Load reads an optional .env file, then the process environment.
// A missing credential is a configuration error, not a later runtime failure.
func Load() (*Config, error) {
	// .env is optional; environment variables always win.
	_ = godotenv.Load()

	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from the given lookup function.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := &Config{
		Provider:       strings.ToLower(get("LLM_PROVIDER", ProviderGemini)),
		EmbeddingModel: get("EMBEDDING_MODEL", ""),
		ChatModel:      get("CHAT_MODEL", ""),
		DatabaseURL:    get("DATABASE_URL", "resume_screening.db"),
		HTTPPort:       get("HTTP_PORT", "8080"),
		LogLevel:       strings.ToLower(get("LOG_LEVEL", "info")),
	}

	switch cfg.Provider {
	case ProviderGemini:
		cfg.APIKey = get("GEMINI_API_KEY", "")
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
		}
	case ProviderOpenAI:
		cfg.APIKey = get("OPENAI_API_KEY", "")
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required")
		}
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q (expected %q or %q)", cfg.Provider, ProviderGemini, ProviderOpenAI)
	}

	var err error
	if cfg.LogJSON, err = strconv.ParseBool(get("LOG_JSON", "false")); err != nil {
		return nil, fmt.Errorf("invalid LOG_JSON: %w", err)
	}
	if cfg.CapabilityTimeout, err = time.ParseDuration(get("CAPABILITY_TIMEOUT", "60s")); err != nil {
		return nil, fmt.Errorf("invalid CAPABILITY_TIMEOUT: %w", err)
	}
	if cfg.CapabilityTimeout <= 0 {
		return nil, fmt.Errorf("CAPABILITY_TIMEOUT must be positive")
	}
	if cfg.MaxUploadBytes, err = strconv.ParseInt(get("MAX_UPLOAD_BYTES", "10485760"), 10, 64); err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %w", err)
	}

	return cfg, nil
}
