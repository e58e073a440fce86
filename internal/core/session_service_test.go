package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/screening/resume-rag/internal/llm"
	"github.com/screening/resume-rag/internal/parsing"
	"github.com/screening/resume-rag/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testResume = "Jane Doe. Summary Backend engineer with Go and Python. " +
		"Experience Built Kubernetes operators in Go at Acme. Migrated services to Docker. " +
		"Skills Go, Python, Docker, Kubernetes."
	testJD = "We are hiring a platform engineer. Requirements Go, Kubernetes, Terraform. Nice to have Python."
)

func newSessionService(t *testing.T, fake *fakeLLM) (*SessionService, *store.SQLiteStore) {
	t.Helper()
	s := newTestStore(t)
	return NewSessionService(s, fake, NewMatcher(fake, 0, nil), 0, nil), s
}

func TestIngestStoresSessionAndChunks(t *testing.T) {
	fake := &fakeLLM{replies: []string{`{"match_score": 71, "strengths": ["Go","Kubernetes","Docker","Python"], "gaps": ["Terraform","Platform"], "insights": "Good fit."}`}}
	svc, s := newSessionService(t, fake)
	ctx := context.Background()

	summary, err := svc.Ingest(ctx, []byte(testResume), []byte(testJD))
	require.NoError(t, err)

	require.NotNil(t, summary.MatchScore)
	assert.Equal(t, 71.0, *summary.MatchScore)
	assert.Equal(t, []string{"Terraform", "Platform"}, summary.Gaps)
	assert.Equal(t, 1, summary.ResumeChunks)
	assert.Equal(t, 1, summary.JobDescriptionChunks)

	require.Len(t, fake.embedCalls, 2)
	chunks, err := s.GetChunks(ctx, summary.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, store.DocTypeResume, chunks[0].DocType)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, store.DocTypeJobDescription, chunks[1].DocType)
	assert.Equal(t, 0, chunks[1].Index)

	again, err := svc.GetAnalysis(ctx, summary.ID)
	require.NoError(t, err)
	assert.Equal(t, summary.MatchScore, again.MatchScore)
	assert.Equal(t, summary.Strengths, again.Strengths)
	assert.Equal(t, 1, again.ResumeChunks)
}

func TestIngestNormalizesWhitespace(t *testing.T) {
	fake := &fakeLLM{generateErr: errCapability}
	svc, s := newSessionService(t, fake)
	ctx := context.Background()

	summary, err := svc.Ingest(ctx, []byte("Go\n\n  developer\t"), []byte("  Go   engineer "))
	require.NoError(t, err)

	session, err := s.GetSession(ctx, summary.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go developer", session.ResumeText)
	assert.Equal(t, "Go engineer", session.JobDescription)
}

func TestIngestFallbackScoringWhenGenerationFails(t *testing.T) {
	fake := &fakeLLM{generateErr: errCapability}
	svc, _ := newSessionService(t, fake)

	summary, err := svc.Ingest(context.Background(), []byte(testResume), []byte(testJD))
	require.NoError(t, err)

	want := FallbackMatch(parsing.ExtractTerms(testResume), testJD)
	require.NotNil(t, summary.MatchScore)
	assert.Equal(t, want.Score, *summary.MatchScore)
	assert.GreaterOrEqual(t, *summary.MatchScore, 0.0)
	assert.LessOrEqual(t, *summary.MatchScore, 100.0)
	assert.Contains(t, summary.Strengths, "kubernetes")
	assert.Contains(t, summary.Gaps, "terraform")
	assert.Contains(t, summary.Insights, "Keyword coverage")
}

func TestIngestEmptyDocuments(t *testing.T) {
	svc, _ := newSessionService(t, &fakeLLM{})

	_, err := svc.Ingest(context.Background(), []byte("  \n "), []byte(testJD))
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = svc.Ingest(context.Background(), []byte(testResume), nil)
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestIngestEmbeddingFailureLeavesNoSession(t *testing.T) {
	fake := &fakeLLM{embedErr: &llm.CapabilityError{Provider: "fake", Op: "embedding", Err: errors.New("401")}}
	rec := &recordingStore{Store: newTestStore(t)}
	svc := NewSessionService(rec, fake, NewMatcher(fake, 0, nil), 0, nil)

	_, err := svc.Ingest(context.Background(), []byte(testResume), []byte(testJD))
	require.Error(t, err)
	assert.True(t, llm.IsCapabilityError(err))
	assert.Zero(t, rec.creates)
}

type recordingStore struct {
	Store
	creates int
}

func (r *recordingStore) CreateSessionWithChunks(ctx context.Context, session *store.Session, chunks []store.Chunk) error {
	r.creates++
	return r.Store.CreateSessionWithChunks(ctx, session, chunks)
}

type flakyEmbedder struct {
	fakeLLM
	failOn int
}

func (f *flakyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(f.embedCalls)+1 == f.failOn {
		f.embedCalls = append(f.embedCalls, texts)
		return nil, &llm.CapabilityError{Provider: "fake", Op: "embedding", Err: errors.New("timeout")}
	}
	return f.fakeLLM.Embed(ctx, texts)
}

func TestIngestSecondEmbeddingFailureIsAllOrNothing(t *testing.T) {
	rec := &recordingStore{Store: newTestStore(t)}
	embedder := &flakyEmbedder{failOn: 2}
	svc := NewSessionService(rec, embedder, NewMatcher(nil, 0, nil), 0, nil)

	_, err := svc.Ingest(context.Background(), []byte(testResume), []byte(testJD))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "job_description"))
	assert.Len(t, embedder.embedCalls, 2)
	assert.Zero(t, rec.creates)
}

func TestGetAnalysisAndDeleteMissingSession(t *testing.T) {
	svc, _ := newSessionService(t, &fakeLLM{})

	_, err := svc.GetAnalysis(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.DeleteSession(context.Background(), "nope"), ErrSessionNotFound)
}

func TestSessionIDIsTrimmed(t *testing.T) {
	svc, s := newSessionService(t, &fakeLLM{})
	ctx := context.Background()

	summary, err := svc.Ingest(ctx, []byte(testResume), []byte(testJD))
	require.NoError(t, err)

	got, err := svc.GetAnalysis(ctx, "  "+summary.ID+"\n")
	require.NoError(t, err)
	assert.Equal(t, summary.ID, got.ID)

	require.NoError(t, svc.DeleteSession(ctx, " "+summary.ID+" "))
	_, err = s.GetSession(ctx, summary.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCheckDimensions(t *testing.T) {
	assert.NoError(t, checkDimensions(nil))
	assert.NoError(t, checkDimensions([]store.Chunk{{Embedding: []float32{1, 2}}, {Embedding: []float32{3, 4}}}))
	assert.Error(t, checkDimensions([]store.Chunk{{Embedding: []float32{1, 2}}, {Embedding: []float32{3}}}))
}
