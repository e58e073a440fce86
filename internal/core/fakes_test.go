package core

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/screening/resume-rag/internal/llm"
	"github.com/screening/resume-rag/internal/store"
	"github.com/stretchr/testify/require"
)

var errCapability = &llm.CapabilityError{Provider: "fake", Op: "generation", Err: errors.New("unreachable")}

// fakeLLM embeds text by counting a few keywords and replays canned replies.
type fakeLLM struct {
	embedErr    error
	embedCalls  [][]string
	replies     []string
	generateErr error
	calls       [][]llm.Message
	opts        []llm.GenerateOptions
}

var fakeVocabulary = []string{"go", "python", "kubernetes", "docker"}

func (f *fakeLLM) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.embedCalls = append(f.embedCalls, texts)
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		vec := make([]float32, len(fakeVocabulary))
		for j, w := range fakeVocabulary {
			vec[j] = float32(strings.Count(lower, w))
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeLLM) Generate(_ context.Context, messages []llm.Message, opts llm.GenerateOptions) (string, error) {
	f.calls = append(f.calls, messages)
	f.opts = append(f.opts, opts)
	if f.generateErr != nil {
		return "", f.generateErr
	}
	if len(f.replies) == 0 {
		return "ok", nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "core.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
