package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/screening/resume-rag/internal/llm"
	"github.com/screening/resume-rag/internal/logger"
	"github.com/screening/resume-rag/internal/store"
	"github.com/screening/resume-rag/internal/utils"
	"go.uber.org/zap"
)

const (
	historyTurns        = 6
	chatTemperature     = 0.2
	contextChunkMaxChar = 1500
)

const chatInstructions = `Answering rules:
- Answer the recruiter's question using the resume and job description context above.
- Cite concrete evidence from the resume (roles, projects, tools, dates) instead of generic claims.
- When asked about gaps or weaknesses, name them relative to the job description requirements.
- Keep the match analysis consistent with the values given above; do not re-score the candidate.
- If the context does not contain the answer, say you don't have that information.
- Keep answers under 200 words unless asked for more detail.`

// AnswerResult is returned for one question.
type AnswerResult struct {
	Answer     string                 `json:"answer"`
	Sources    []store.RetrievedChunk `json:"sources"`
	ExchangeID string                 `json:"exchange_id"`
}

type ChatService struct {
	store      Store
	ragService *RAGService
	generator  llm.Generator
	timeout    time.Duration
	logger     *zap.Logger
}

func NewChatService(s Store, rag *RAGService, generator llm.Generator, timeout time.Duration, l *zap.Logger) *ChatService {
	return &ChatService{
		store:      s,
		ragService: rag,
		generator:  generator,
		timeout:    timeout,
		logger:     logger.OrNop(l),
	}
}

// Answer records the question, retrieves balanced context, and asks the
// generator once. The user entry is kept even when generation fails.
func (s *ChatService) Answer(ctx context.Context, sessionID, question string) (*AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	session, err := getSession(ctx, s.store, sessionID)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String(logger.FieldSessionID, session.ID))

	userMsg := store.Message{SessionID: session.ID, Role: store.RoleUser, Question: question}
	if err := s.store.CreateMessage(ctx, &userMsg); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	retrieved, err := s.ragService.Retrieve(ctx, session.ID, question)
	if err != nil {
		return nil, err
	}

	prior, err := s.store.GetLastNMessages(ctx, session.ID, historyTurns, userMsg.Seq)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	slices.Reverse(prior)

	messages := BuildPrompt(session, retrieved, prior, question)

	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	answer, err := s.generator.Generate(callCtx, messages, llm.GenerateOptions{Temperature: chatTemperature})
	if err != nil {
		log.Error("answer generation failed", zap.Error(err))
		return nil, fmt.Errorf("failed to get LLM completion: %w", err)
	}

	sources := make([]store.RetrievedChunk, len(retrieved))
	for i, sc := range retrieved {
		sources[i] = sc.Source()
	}

	modelMsg := store.Message{
		SessionID: session.ID,
		Role:      store.RoleAssistant,
		Question:  question,
		Answer:    answer,
		Retrieved: sources,
	}
	if err := s.store.CreateMessage(ctx, &modelMsg); err != nil {
		return nil, fmt.Errorf("failed to store model message: %w", err)
	}

	log.Info("question answered", zap.Int("sources", len(sources)), zap.Int("history", len(prior)))
	return &AnswerResult{Answer: answer, Sources: sources, ExchangeID: modelMsg.ID}, nil
}

// History returns the session's conversation log, oldest first.
func (s *ChatService) History(ctx context.Context, sessionID string) ([]store.Message, error) {
	session, err := getSession(ctx, s.store, sessionID)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.GetMessages(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []store.Message{}
	}
	return messages, nil
}

// BuildPrompt assembles the generation request: a system instruction with the
// stored match analysis and partitioned context, then prior turns in
// chronological order, then the new question.
func BuildPrompt(session *store.Session, retrieved []ScoredChunk, prior []store.Message, question string) []llm.Message {
	messages := make([]llm.Message, 0, len(prior)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt(session, retrieved)})

	// Only answered questions are replayed so turns alternate. A user entry
	// left by a failed exchange, or an answer whose question fell outside the
	// window, is skipped.
	for i, m := range prior {
		if m.Role != store.RoleUser || i+1 >= len(prior) || prior[i+1].Role != store.RoleAssistant {
			continue
		}
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: m.Question},
			llm.Message{Role: llm.RoleAssistant, Content: prior[i+1].Answer},
		)
	}

	return append(messages, llm.Message{Role: llm.RoleUser, Content: question})
}

func systemPrompt(session *store.Session, retrieved []ScoredChunk) string {
	var b strings.Builder
	b.WriteString("You are an assistant helping a recruiter evaluate a candidate's resume against a job description.\n\n")

	b.WriteString("MATCH ANALYSIS\n")
	if session.MatchScore == nil {
		b.WriteString("Match analysis: not available.\n")
	} else {
		fmt.Fprintf(&b, "Match score: %.2f/100\n", *session.MatchScore)
		fmt.Fprintf(&b, "Strengths: %s\n", joinOrNone(session.Strengths))
		fmt.Fprintf(&b, "Gaps: %s\n", joinOrNone(session.Gaps))
		fmt.Fprintf(&b, "Insights: %s\n", orNone(session.Insights))
	}

	partitions := map[store.DocType][]ScoredChunk{}
	for _, sc := range retrieved {
		docType := store.ParseDocType(string(sc.Chunk.DocType))
		partitions[docType] = append(partitions[docType], sc)
	}
	writeContext(&b, "RESUME CONTEXT", partitions[store.DocTypeResume])
	writeContext(&b, "JOB DESCRIPTION CONTEXT", partitions[store.DocTypeJobDescription])
	writeContext(&b, "OTHER CONTEXT", partitions[store.DocTypeOther])

	b.WriteString("\n")
	b.WriteString(chatInstructions)
	return b.String()
}

func writeContext(b *strings.Builder, title string, chunks []ScoredChunk) {
	fmt.Fprintf(b, "\n%s\n", title)
	if len(chunks) == 0 {
		b.WriteString("(none)\n")
		return
	}
	for _, sc := range chunks {
		fmt.Fprintf(b, "[#%d | score %.3f] %s\n", sc.Chunk.Index, sc.Similarity, utils.Preview(sc.Chunk.Text, contextChunkMaxChar))
	}
}

func joinOrNone(list []string) string {
	if len(list) == 0 {
		return "none"
	}
	return strings.Join(list, "; ")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}
