package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/screening/resume-rag/internal/llm"
	"github.com/screening/resume-rag/internal/logger"
	"github.com/screening/resume-rag/internal/store"
	"github.com/screening/resume-rag/internal/utils"
	"go.uber.org/zap"
)

const (
	DefaultTopK     = 6 // Number of chunks passed to generation
	DefaultPerDocK  = 3 // Guaranteed chunks per document type
	PreviewMaxChars = 400
)

// bucketOrder fixes the iteration order over document types.
var bucketOrder = []store.DocType{store.DocTypeResume, store.DocTypeJobDescription, store.DocTypeOther}

type ScoredChunk struct {
	Chunk      store.Chunk
	Similarity float64
	order      int // position in the scanned pool, used as tie-break
}

// Source is the public record of a retrieved chunk.
func (sc ScoredChunk) Source() store.RetrievedChunk {
	return store.RetrievedChunk{
		ChunkIndex: sc.Chunk.Index,
		DocType:    sc.Chunk.DocType,
		Score:      sc.Similarity,
		Preview:    utils.Preview(sc.Chunk.Text, PreviewMaxChars),
	}
}

func byScore(list []ScoredChunk) func(i, j int) bool {
	return func(i, j int) bool {
		if list[i].Similarity != list[j].Similarity {
			return list[i].Similarity > list[j].Similarity
		}
		return list[i].order < list[j].order
	}
}

// RankChunks scores every chunk against query and picks at most topK of them.
// The best perDocK chunks of each document type are taken first; the remaining
// slots are backfilled from the leftovers regardless of type.
func RankChunks(chunks []store.Chunk, query []float32, topK, perDocK int) ([]ScoredChunk, error) {
	if len(chunks) == 0 || topK <= 0 {
		return []ScoredChunk{}, nil
	}
	if perDocK < 0 {
		perDocK = 0
	}

	buckets := make(map[store.DocType][]ScoredChunk, len(bucketOrder))
	for i, c := range chunks {
		sim, err := utils.CosineSimilarity(query, c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("chunk %s/%d: %w", c.DocType, c.Index, err)
		}
		docType := store.ParseDocType(string(c.DocType))
		buckets[docType] = append(buckets[docType], ScoredChunk{Chunk: c, Similarity: sim, order: i})
	}

	var selected, leftover []ScoredChunk
	for _, docType := range bucketOrder {
		bucket := buckets[docType]
		sort.SliceStable(bucket, byScore(bucket))
		n := min(perDocK, len(bucket))
		selected = append(selected, bucket[:n]...)
		leftover = append(leftover, bucket[n:]...)
	}

	sort.SliceStable(leftover, byScore(leftover))
	for _, sc := range leftover {
		if len(selected) >= topK {
			break
		}
		selected = append(selected, sc)
	}

	sort.SliceStable(selected, byScore(selected))
	if len(selected) > topK {
		selected = selected[:topK]
	}
	return selected, nil
}

type RAGService struct {
	store    Store
	embedder llm.Embedder
	timeout  time.Duration
	logger   *zap.Logger
	TopK     int
	PerDocK  int
}

func NewRAGService(s Store, embedder llm.Embedder, timeout time.Duration, l *zap.Logger) *RAGService {
	return &RAGService{
		store:    s,
		embedder: embedder,
		timeout:  timeout,
		logger:   logger.OrNop(l),
		TopK:     DefaultTopK,
		PerDocK:  DefaultPerDocK,
	}
}

// Retrieve embeds the question and returns balanced context for the session.
// A session without chunks yields an empty result and no embedding call.
func (s *RAGService) Retrieve(ctx context.Context, sessionID, question string) ([]ScoredChunk, error) {
	chunks, err := s.store.GetChunks(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	if len(chunks) == 0 {
		s.logger.Info("no chunks available for retrieval", zap.String(logger.FieldSessionID, sessionID))
		return []ScoredChunk{}, nil
	}

	queryEmbedding, err := s.embedQuestion(ctx, question)
	if err != nil {
		return nil, err
	}

	ranked, err := RankChunks(chunks, queryEmbedding, s.TopK, s.PerDocK)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("retrieved chunks",
		zap.String(logger.FieldSessionID, sessionID),
		zap.Int("pool", len(chunks)),
		zap.Int("retrieved", len(ranked)),
	)
	return ranked, nil
}

func (s *RAGService) embedQuestion(ctx context.Context, question string) ([]float32, error) {
	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	vectors, err := s.embedder.Embed(callCtx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("failed to get query embedding: %w", err)
	}
	if len(vectors) != 1 {
		return nil, &llm.CapabilityError{Provider: "embedder", Op: "embedding",
			Err: fmt.Errorf("expected 1 query embedding, got %d", len(vectors))}
	}
	return vectors[0], nil
}
