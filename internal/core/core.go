package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/screening/resume-rag/internal/store"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyDocument   = errors.New("resume and job description must both contain text")
	ErrEmptyQuestion   = errors.New("question must not be empty")
)

// Store is the storage collaborator used by the services.
type Store interface {
	CreateSessionWithChunks(ctx context.Context, session *store.Session, chunks []store.Chunk) error
	GetSession(ctx context.Context, id string) (*store.Session, error)
	DeleteSession(ctx context.Context, id string) error
	GetChunks(ctx context.Context, sessionID string) ([]store.Chunk, error)
	CountChunks(ctx context.Context, sessionID string) (map[store.DocType]int, error)
	CreateMessage(ctx context.Context, msg *store.Message) error
	GetMessages(ctx context.Context, sessionID string) ([]store.Message, error)
	GetLastNMessages(ctx context.Context, sessionID string, n int, beforeSeq int64) ([]store.Message, error)
}

// withTimeout bounds a single call to the external service.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func getSession(ctx context.Context, s Store, id string) (*store.Session, error) {
	session, err := s.GetSession(ctx, strings.TrimSpace(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return session, err
}
