package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/screening/resume-rag/internal/core"
	"github.com/screening/resume-rag/internal/llm"
	"github.com/screening/resume-rag/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLLM struct {
	generateErr error
}

func (s *stubLLM) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)%7) + 1, 1}
	}
	return out, nil
}

func (s *stubLLM) Generate(_ context.Context, messages []llm.Message, opts llm.GenerateOptions) (string, error) {
	if s.generateErr != nil {
		return "", s.generateErr
	}
	if opts.JSON {
		return `{"match_score": 75, "strengths": ["Go"], "gaps": ["Rust"], "insights": "Decent fit."}`, nil
	}
	return "answer to: " + messages[len(messages)-1].Content, nil
}

func newTestServer(t *testing.T, fake *stubLLM) *httptest.Server {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	sessions := core.NewSessionService(s, fake, core.NewMatcher(fake, 0, nil), 0, nil)
	chat := core.NewChatService(s, core.NewRAGService(s, fake, 0, nil), fake, 0, nil)
	srv := httptest.NewServer(NewRouter(NewAPIHandler(sessions, chat, 0, nil)))
	t.Cleanup(srv.Close)
	return srv
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for field, content := range files {
		fw, err := mw.CreateFormFile(field, field+".txt")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func createSession(t *testing.T, srv *httptest.Server) core.SessionSummary {
	t.Helper()
	body, contentType := multipartBody(t, map[string]string{
		"resume":          "Skills Go, SQL. Experience Built APIs.",
		"job_description": "Looking for Go and Rust engineers.",
	})
	resp, err := http.Post(srv.URL+"/api/sessions", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var summary core.SessionSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	return summary
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubLLM{})
	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t, &stubLLM{})
	summary := createSession(t, srv)

	require.NotNil(t, summary.MatchScore)
	assert.Equal(t, 75.0, *summary.MatchScore)
	assert.Equal(t, 1, summary.ResumeChunks)
	assert.Equal(t, 1, summary.JobDescriptionChunks)

	resp, err := http.Get(srv.URL + "/api/sessions/" + summary.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	chatResp, err := http.Post(srv.URL+"/api/sessions/"+summary.ID+"/chat", "application/json",
		strings.NewReader(`{"question": "Does the candidate know Rust?"}`))
	require.NoError(t, err)
	defer chatResp.Body.Close()
	require.Equal(t, http.StatusOK, chatResp.StatusCode)

	var answer core.AnswerResult
	require.NoError(t, json.NewDecoder(chatResp.Body).Decode(&answer))
	assert.Equal(t, "answer to: Does the candidate know Rust?", answer.Answer)
	assert.Len(t, answer.Sources, 2)

	histResp, err := http.Get(srv.URL + "/api/sessions/" + summary.ID + "/chat")
	require.NoError(t, err)
	defer histResp.Body.Close()
	var history []store.Message
	require.NoError(t, json.NewDecoder(histResp.Body).Decode(&history))
	require.Len(t, history, 2)
	assert.Equal(t, answer.ExchangeID, history[1].ID)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/"+summary.ID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/sessions/" + summary.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateSessionRequiresBothDocuments(t *testing.T) {
	srv := newTestServer(t, &stubLLM{})
	body, contentType := multipartBody(t, map[string]string{"resume": "Go developer"})

	resp, err := http.Post(srv.URL+"/api/sessions", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatErrors(t *testing.T) {
	fake := &stubLLM{}
	srv := newTestServer(t, fake)
	summary := createSession(t, srv)

	cases := []struct {
		name      string
		sessionID string
		body      string
		genErr    error
		want      int
	}{
		{"missing session", "nope", `{"question":"hi"}`, nil, http.StatusNotFound},
		{"empty question", summary.ID, `{"question":"  "}`, nil, http.StatusBadRequest},
		{"bad json", summary.ID, `{`, nil, http.StatusBadRequest},
		{"oversized body", summary.ID, `{"question":"` + strings.Repeat("a", maxChatBodyBytes) + `"}`, nil, http.StatusBadRequest},
		{"generation failure", summary.ID, `{"question":"hi"}`,
			&llm.CapabilityError{Provider: "stub", Op: "generation", Err: errors.New("down")}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake.generateErr = tc.genErr
			resp, err := http.Post(srv.URL+"/api/sessions/"+tc.sessionID+"/chat", "application/json", strings.NewReader(tc.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}
