package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/screening/resume-rag/internal/logger"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	defaultOpenAIChatModel      = "gpt-4.1-mini"
	defaultOpenAIEmbeddingModel = openai.SmallEmbedding3
)

type OpenAIService struct {
	client         *openai.Client
	chatModel      string
	embeddingModel openai.EmbeddingModel
	logger         *zap.Logger
}

func NewOpenAIService(apiKey, chatModel, embeddingModel string, l *zap.Logger) *OpenAIService {
	return NewOpenAIServiceWithConfig(openai.DefaultConfig(apiKey), chatModel, embeddingModel, l)
}

// NewOpenAIServiceWithConfig allows overriding the base URL, e.g. for a proxy.
func NewOpenAIServiceWithConfig(cfg openai.ClientConfig, chatModel, embeddingModel string, l *zap.Logger) *OpenAIService {
	if chatModel == "" {
		chatModel = defaultOpenAIChatModel
	}
	em := defaultOpenAIEmbeddingModel
	if embeddingModel != "" {
		em = openai.EmbeddingModel(embeddingModel)
	}
	return &OpenAIService{
		client:         openai.NewClientWithConfig(cfg),
		chatModel:      chatModel,
		embeddingModel: em,
		logger:         logger.WithCommonFields(l, "openai", chatModel),
	}
}

func (s *OpenAIService) Provider() string  { return "openai" }
func (s *OpenAIService) ChatModel() string { return s.chatModel }
func (s *OpenAIService) Close() error      { return nil }

func (s *OpenAIService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: s.embeddingModel,
	})
	if err != nil {
		return nil, &CapabilityError{Provider: s.Provider(), Op: "embedding", Err: err}
	}
	if len(resp.Data) != len(texts) {
		return nil, &CapabilityError{Provider: s.Provider(), Op: "embedding",
			Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))}
	}

	vectors := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := i
		if d.Index >= 0 && d.Index < len(texts) {
			idx = d.Index
		}
		vectors[idx] = d.Embedding
	}
	for _, v := range vectors {
		if len(v) == 0 {
			return nil, &CapabilityError{Provider: s.Provider(), Op: "embedding", Err: ErrEmptyResponse}
		}
	}
	return vectors, nil
}

func (s *OpenAIService) Generate(ctx context.Context, messages []Message, opts GenerateOptions) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("prompt history is empty for chat completion")
	}
	req := openai.ChatCompletionRequest{
		Model:       s.chatModel,
		Temperature: opts.Temperature,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &CapabilityError{Provider: s.Provider(), Op: "generation", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &CapabilityError{Provider: s.Provider(), Op: "generation", Err: ErrEmptyResponse}
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", &CapabilityError{Provider: s.Provider(), Op: "generation", Err: ErrEmptyResponse}
	}
	s.logger.Debug("chat completion finished",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return out, nil
}
