package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(map[string]string{"GEMINI_API_KEY": "k"}))
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.Provider)
	assert.Equal(t, "k", cfg.APIKey)
	assert.Equal(t, "resume_screening.db", cfg.DatabaseURL)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.CapabilityTimeout)
	assert.Equal(t, int64(10485760), cfg.MaxUploadBytes)
	assert.False(t, cfg.LogJSON)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestFromEnvOpenAI(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(map[string]string{
		"LLM_PROVIDER":       "OpenAI",
		"OPENAI_API_KEY":     "sk-test",
		"CHAT_MODEL":         "gpt-4.1-mini",
		"LOG_LEVEL":          "DEBUG",
		"CAPABILITY_TIMEOUT": "5s",
	}))
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "gpt-4.1-mini", cfg.ChatModel)
	assert.Equal(t, 5*time.Second, cfg.CapabilityTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestFromEnvErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing gemini key", map[string]string{}},
		{"missing openai key", map[string]string{"LLM_PROVIDER": "openai", "GEMINI_API_KEY": "k"}},
		{"unknown provider", map[string]string{"LLM_PROVIDER": "llama", "GEMINI_API_KEY": "k"}},
		{"bad timeout", map[string]string{"GEMINI_API_KEY": "k", "CAPABILITY_TIMEOUT": "soon"}},
		{"negative timeout", map[string]string{"GEMINI_API_KEY": "k", "CAPABILITY_TIMEOUT": "-1s"}},
		{"bad log json", map[string]string{"GEMINI_API_KEY": "k", "LOG_JSON": "maybe"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromEnv(lookupFrom(tc.env))
			assert.Error(t, err)
		})
	}
}
