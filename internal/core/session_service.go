package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/screening/resume-rag/internal/llm"
	"github.com/screening/resume-rag/internal/logger"
	"github.com/screening/resume-rag/internal/parsing"
	"github.com/screening/resume-rag/internal/store"
	"go.uber.org/zap"
)

// SessionSummary is what callers see of an analysed session.
type SessionSummary struct {
	ID                   string    `json:"id"`
	MatchScore           *float64  `json:"match_score"`
	Strengths            []string  `json:"strengths"`
	Gaps                 []string  `json:"gaps"`
	Insights             string    `json:"insights"`
	ResumeChunks         int       `json:"resume_chunks"`
	JobDescriptionChunks int       `json:"job_description_chunks"`
	CreatedAt            time.Time `json:"created_at"`
}

type SessionService struct {
	store    Store
	embedder llm.Embedder
	matcher  *Matcher
	chunker  *parsing.Chunker
	timeout  time.Duration
	logger   *zap.Logger
}

func NewSessionService(s Store, embedder llm.Embedder, matcher *Matcher, timeout time.Duration, l *zap.Logger) *SessionService {
	return &SessionService{
		store:    s,
		embedder: embedder,
		matcher:  matcher,
		chunker:  parsing.NewChunker(),
		timeout:  timeout,
		logger:   logger.OrNop(l),
	}
}

// Ingest analyses a resume against a job description and stores the session.
// Both documents are embedded before anything is written, and the session and
// its chunks are persisted in one transaction: ingestion is all-or-nothing.
func (s *SessionService) Ingest(ctx context.Context, resume, jobDescription []byte) (*SessionSummary, error) {
	resumeText := parsing.NormalizeWhitespace(parsing.DecodeDocument(resume))
	jdText := parsing.NormalizeWhitespace(parsing.DecodeDocument(jobDescription))
	if resumeText == "" || jdText == "" {
		return nil, ErrEmptyDocument
	}

	resumeChunks := s.chunker.ChunkDocument(resumeText)
	jdChunks := s.chunker.ChunkDocument(jdText)
	terms := parsing.ExtractTerms(resumeText)

	analysis := s.matcher.Score(ctx, terms, jdText, resumeText)
	s.logger.Info("match analysis complete",
		zap.Float64("score", analysis.Score),
		zap.Bool("fallback", analysis.Fallback),
		zap.Int("resume_terms", len(terms)),
	)

	var chunks []store.Chunk
	for _, doc := range []struct {
		docType store.DocType
		texts   []string
	}{
		{store.DocTypeResume, resumeChunks},
		{store.DocTypeJobDescription, jdChunks},
	} {
		embedded, err := s.embedChunks(ctx, doc.docType, doc.texts)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, embedded...)
	}
	if err := checkDimensions(chunks); err != nil {
		return nil, err
	}

	score := analysis.Score
	session := &store.Session{
		ResumeText:     resumeText,
		JobDescription: jdText,
		MatchScore:     &score,
		Strengths:      analysis.Strengths,
		Gaps:           analysis.Gaps,
		Insights:       analysis.Insights,
	}
	if err := s.store.CreateSessionWithChunks(ctx, session, chunks); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	s.logger.Info("session ingested",
		zap.String(logger.FieldSessionID, session.ID),
		zap.Int("resume_chunks", len(resumeChunks)),
		zap.Int("job_description_chunks", len(jdChunks)),
	)

	return summarize(session, map[store.DocType]int{
		store.DocTypeResume:         len(resumeChunks),
		store.DocTypeJobDescription: len(jdChunks),
	}), nil
}

func (s *SessionService) embedChunks(ctx context.Context, docType store.DocType, texts []string) ([]store.Chunk, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	vectors, err := s.embedder.Embed(callCtx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %s chunks: %w", docType, err)
	}
	if len(vectors) != len(texts) {
		return nil, &llm.CapabilityError{Provider: "embedder", Op: "embedding",
			Err: fmt.Errorf("expected %d %s embeddings, got %d", len(texts), docType, len(vectors))}
	}

	chunks := make([]store.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = store.Chunk{DocType: docType, Index: i, Text: text, Embedding: vectors[i]}
	}
	return chunks, nil
}

// checkDimensions enforces one embedding dimension per session.
func checkDimensions(chunks []store.Chunk) error {
	for _, c := range chunks {
		if len(c.Embedding) == 0 || len(c.Embedding) != len(chunks[0].Embedding) {
			return &llm.CapabilityError{Provider: "embedder", Op: "embedding",
				Err: fmt.Errorf("inconsistent embedding dimension for %s chunk %d", c.DocType, c.Index)}
		}
	}
	return nil
}

func (s *SessionService) GetAnalysis(ctx context.Context, sessionID string) (*SessionSummary, error) {
	session, err := getSession(ctx, s.store, sessionID)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.CountChunks(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	return summarize(session, counts), nil
}

func (s *SessionService) DeleteSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	err := s.store.DeleteSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err == nil {
		s.logger.Info("session deleted", zap.String(logger.FieldSessionID, sessionID))
	}
	return err
}

func summarize(session *store.Session, counts map[store.DocType]int) *SessionSummary {
	strengths, gaps := session.Strengths, session.Gaps
	if strengths == nil {
		strengths = []string{}
	}
	if gaps == nil {
		gaps = []string{}
	}
	return &SessionSummary{
		ID:                   session.ID,
		MatchScore:           session.MatchScore,
		Strengths:            strengths,
		Gaps:                 gaps,
		Insights:             session.Insights,
		ResumeChunks:         counts[store.DocTypeResume],
		JobDescriptionChunks: counts[store.DocTypeJobDescription],
		CreatedAt:            session.CreatedAt,
	}
}
