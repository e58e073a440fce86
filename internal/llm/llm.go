// Package llm wraps the external embedding and chat-completion services.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/screening/resume-rag/internal/config"
	"go.uber.org/zap"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

type GenerateOptions struct {
	Temperature float32
	// JSON asks the provider to return a single valid JSON object.
	JSON bool
}

// Embedder returns one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces a single reply for a role-tagged conversation.
type Generator interface {
	Generate(ctx context.Context, messages []Message, opts GenerateOptions) (string, error)
}

type Client interface {
	Embedder
	Generator
	Provider() string
	ChatModel() string
	Close() error
}

var ErrEmptyResponse = errors.New("provider returned an empty response")

// CapabilityError marks a failure of the external embedding/generation service.
type CapabilityError struct {
	Provider string
	Op       string
	Err      error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// IsCapabilityError reports whether err came from the external service.
func IsCapabilityError(err error) bool {
	var ce *CapabilityError
	return errors.As(err, &ce)
}

// New builds the client for cfg.Provider.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiService(ctx, cfg.APIKey, cfg.ChatModel, cfg.EmbeddingModel, logger)
	case config.ProviderOpenAI:
		return NewOpenAIService(cfg.APIKey, cfg.ChatModel, cfg.EmbeddingModel, logger), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
