package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/screening/resume-rag/internal/core"
	"github.com/screening/resume-rag/internal/llm"
	"github.com/screening/resume-rag/internal/logger"
	"go.uber.org/zap"
)

const (
	defaultMaxUploadBytes = 10 << 20
	maxChatBodyBytes      = 64 << 10
)

type APIHandler struct {
	sessionService *core.SessionService
	chatService    *core.ChatService
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewAPIHandler(ss *core.SessionService, cs *core.ChatService, maxUploadBytes int64, l *zap.Logger) *APIHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &APIHandler{
		sessionService: ss,
		chatService:    cs,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.OrNop(l),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps core errors onto HTTP status codes.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, core.ErrEmptyDocument), errors.Is(err, core.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, err.Error())
	case llm.IsCapabilityError(err):
		h.logger.Error("language model request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusBadGateway, "The language model service is unavailable, please try again")
	default:
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// readDocument accepts either an uploaded file or a plain form field.
func readDocument(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err == nil {
		defer file.Close()
		return io.ReadAll(file)
	}
	if !errors.Is(err, http.ErrMissingFile) {
		return nil, err
	}
	return []byte(r.FormValue(field)), nil
}

func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}

	resume, err := readDocument(r, "resume")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read resume: %v", err))
		return
	}
	jd, err := readDocument(r, "job_description")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read job description: %v", err))
		return
	}
	if len(resume) == 0 || len(jd) == 0 {
		writeError(w, http.StatusBadRequest, "Both resume and job description files are required.")
		return
	}

	summary, err := h.sessionService.Ingest(r.Context(), resume, jd)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := h.sessionService.GetAnalysis(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *APIHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionService.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ChatRequest struct {
	Question string `json:"question"`
}

func (h *APIHandler) PostChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, err := h.chatService.Answer(r.Context(), chi.URLParam(r, "sessionID"), req.Question)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *APIHandler) ListChatHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatService.History(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}
