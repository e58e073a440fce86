package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/screening/resume-rag/internal/logger"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	defaultGeminiChatModel      = "gemini-1.5-flash-latest"
	defaultGeminiEmbeddingModel = "text-embedding-004"
	geminiRoleModel             = "model"
)

type GeminiService struct {
	client         *genai.Client
	chatModel      string
	embeddingModel string
	logger         *zap.Logger
}

func NewGeminiService(ctx context.Context, apiKey, chatModel, embeddingModel string, l *zap.Logger) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if chatModel == "" {
		chatModel = defaultGeminiChatModel
	}
	if embeddingModel == "" {
		embeddingModel = defaultGeminiEmbeddingModel
	}

	return &GeminiService{
		client:         client,
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		logger:         logger.WithCommonFields(l, "gemini", chatModel),
	}, nil
}

func (s *GeminiService) Provider() string  { return "gemini" }
func (s *GeminiService) ChatModel() string { return s.chatModel }

func (s *GeminiService) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *GeminiService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	em := s.client.EmbeddingModel(s.embeddingModel)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, &CapabilityError{Provider: s.Provider(), Op: "embedding", Err: err}
	}
	if res == nil || len(res.Embeddings) != len(texts) {
		return nil, &CapabilityError{Provider: s.Provider(), Op: "embedding",
			Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), embeddingCount(res))}
	}

	vectors := make([][]float32, len(texts))
	for i, e := range res.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, &CapabilityError{Provider: s.Provider(), Op: "embedding", Err: ErrEmptyResponse}
		}
		vectors[i] = e.Values
	}
	return vectors, nil
}

func embeddingCount(res *genai.BatchEmbedContentsResponse) int {
	if res == nil {
		return 0
	}
	return len(res.Embeddings)
}

func (s *GeminiService) Generate(ctx context.Context, messages []Message, opts GenerateOptions) (string, error) {
	system, history, last, err := toGeminiContents(messages)
	if err != nil {
		return "", err
	}

	model := s.client.GenerativeModel(s.chatModel)
	model.SetTemperature(opts.Temperature)
	if opts.JSON {
		model.ResponseMIMEType = "application/json"
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	chatSession := model.StartChat()
	chatSession.History = history

	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", &CapabilityError{Provider: s.Provider(), Op: "generation", Err: err}
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", &CapabilityError{Provider: s.Provider(), Op: "generation", Err: ErrEmptyResponse}
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			s.logger.Debug("gemini response part was not text", zap.String("type", fmt.Sprintf("%T", part)))
		}
	}

	out := strings.TrimSpace(responseText.String())
	if out == "" {
		return "", &CapabilityError{Provider: s.Provider(), Op: "generation", Err: ErrEmptyResponse}
	}
	return out, nil
}

// toGeminiContents folds system messages into one instruction and splits off
// the final user turn, which Gemini expects to be sent rather than stored in history.
func toGeminiContents(messages []Message) (string, []*genai.Content, *genai.Content, error) {
	var system []string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleUser:
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		case RoleAssistant:
			contents = append(contents, &genai.Content{Role: geminiRoleModel, Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			return "", nil, nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}

	if len(contents) == 0 {
		return "", nil, nil, fmt.Errorf("prompt history is empty for chat completion")
	}
	last := contents[len(contents)-1]
	if last.Role != "user" {
		return "", nil, nil, fmt.Errorf("last message in history is not from 'user', cannot proceed with chat completion")
	}
	return strings.Join(system, "\n\n"), contents[:len(contents)-1], last, nil
}
