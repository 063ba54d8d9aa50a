package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cortexhub/cortexd/internal/docs"
	"github.com/cortexhub/cortexd/internal/llm"
	"github.com/cortexhub/cortexd/internal/rag"
	"github.com/cortexhub/cortexd/internal/storage"
	"github.com/cortexhub/cortexd/internal/worker"
)

const maxUploadSize = 50 << 20 // 50MB

type AppDeps struct {
	Store        *storage.Store
	Docs         *docs.Manager
	Orchestrator *rag.Orchestrator
	Token        string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/upload", handleUpload(deps))
		r.Get("/documents", handleListDocuments(deps))
		r.Post("/documents/{id}/embed", handleReembed(deps))
		r.Post("/query", handleQuery(deps))
		r.Get("/queries", handleListQueries(deps))
		r.Get("/sessions/{id}/history", handleSessionHistory(deps))
		r.Delete("/sessions/{id}/history", handleClearSession(deps))
		r.Post("/graph", handleGraph(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// documentResponse is the wire form of a document record.
type documentResponse struct {
	ID           string `json:"id"`
	WorkspaceID  string `json:"workspace_id"`
	FileName     string `json:"file_name"`
	MimeType     string `json:"mime_type"`
	Processed    bool   `json:"processed"`
	VectorHandle string `json:"vector_handle,omitempty"`
	UploadedAt   string `json:"uploaded_at"`
}

func toDocumentResponse(d storage.Document) documentResponse {
	return documentResponse{
		ID:           d.ID,
		WorkspaceID:  d.WorkspaceID,
		FileName:     d.FileName,
		MimeType:     d.MimeType,
		Processed:    d.Processed,
		VectorHandle: d.VectorHandle,
		UploadedAt:   d.UploadedAt.UTC().Format(time.RFC3339),
	}
}

func handleUpload(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}

		workspaceID := r.FormValue("workspace_id")
		if workspaceID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "workspace_id is required")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required: %v", err)
			return
		}
		defer file.Close()

		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		doc, err := deps.Docs.Upload(r.Context(), file, header.Filename, mimeType, workspaceID)
		if err != nil {
			var embedErr *docs.EmbedError
			if errors.As(err, &embedErr) {
				// The record survives as pending; report the failure with it.
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadGateway)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"message":     fmt.Sprintf("embedding failed: %v", embedErr.Err),
						"type":        "worker_failure",
						"document_id": embedErr.DocumentID,
					},
				})
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "upload failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(toDocumentResponse(doc))
	}
}

func handleListDocuments(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID := r.URL.Query().Get("workspace_id")
		if workspaceID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "workspace_id is required")
			return
		}
		processedOnly := r.URL.Query().Get("processed") == "true"

		list, err := deps.Docs.List(workspaceID, processedOnly)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}

		resp := make([]documentResponse, 0, len(list))
		for _, d := range list {
			resp = append(resp, toDocumentResponse(d))
		}
		writeJSON(w, resp)
	}
}

func handleReembed(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		workspaceID := r.URL.Query().Get("workspace_id")
		if workspaceID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "workspace_id is required")
			return
		}

		doc, err := deps.Docs.Reembed(r.Context(), id, workspaceID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		case errors.Is(err, docs.ErrAlreadyProcessed):
			httpError(w, http.StatusConflict, "invalid_request_error", "document already processed")
			return
		case err != nil:
			var werr *worker.Error
			if errors.As(err, &werr) {
				httpError(w, http.StatusBadGateway, "worker_failure", "embedding failed: %v", werr)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "re-embed failed: %v", err)
			return
		}

		writeJSON(w, toDocumentResponse(doc))
	}
}

type queryRequest struct {
	Question    string   `json:"question"`
	WorkspaceID string   `json:"workspace_id"`
	DocumentIDs []string `json:"document_ids"`
	SessionID   string   `json:"session_id"`
}

type queryResponse struct {
	QueryID   string   `json:"query_id"`
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
	NextSteps []string `json:"next_steps"`
	ChartHint string   `json:"chart_hint,omitempty"`
}

func handleQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}
		if req.WorkspaceID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "workspace_id is required")
			return
		}

		result, err := deps.Orchestrator.Answer(r.Context(), rag.Request{
			Question:    req.Question,
			WorkspaceID: req.WorkspaceID,
			DocumentIDs: req.DocumentIDs,
			SessionID:   req.SessionID,
		})
		switch {
		case errors.Is(err, rag.ErrNoProcessedDocuments):
			httpError(w, http.StatusBadRequest, "no_processed_documents", "no processed documents available to answer from")
			return
		case errors.Is(err, llm.ErrInvalidCredentials):
			httpError(w, http.StatusUnauthorized, "authentication_error", "invalid LLM API credentials")
			return
		case err != nil:
			var werr *worker.Error
			if errors.As(err, &werr) {
				httpError(w, http.StatusBadGateway, "worker_failure", "retrieval failed: %v", werr)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "query failed: %v", err)
			return
		}

		writeJSON(w, queryResponse{
			QueryID:   result.QueryID,
			Answer:    result.Answer,
			Citations: result.Citations,
			NextSteps: result.NextSteps,
			ChartHint: result.ChartHint,
		})
	}
}

type queryLogResponse struct {
	ID        string   `json:"id"`
	Question  string   `json:"question"`
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
	ChartHint string   `json:"chart_hint,omitempty"`
	CreatedAt string   `json:"created_at"`
}

func handleListQueries(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID := r.URL.Query().Get("workspace_id")
		if workspaceID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "workspace_id is required")
			return
		}
		limit := parseIntParam(r, "limit", 20, 100)

		entries, err := deps.Store.RecentQueries(workspaceID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list queries: %v", err)
			return
		}

		resp := make([]queryLogResponse, 0, len(entries))
		for _, e := range entries {
			var citations []string
			if err := json.Unmarshal([]byte(e.Citations), &citations); err != nil {
				citations = []string{}
			}
			resp = append(resp, queryLogResponse{
				ID:        e.ID,
				Question:  e.Question,
				Answer:    e.Answer,
				Citations: citations,
				ChartHint: e.ChartHint,
				CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, resp)
	}
}

type sessionMessageResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func handleSessionHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		history, err := deps.Store.SessionHistory(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load history: %v", err)
			return
		}

		resp := make([]sessionMessageResponse, 0, len(history))
		for _, m := range history {
			resp = append(resp, sessionMessageResponse{Role: m.Role, Content: m.Content})
		}
		writeJSON(w, resp)
	}
}

func handleClearSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := deps.Store.ClearSession(id); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear session: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "cleared"})
	}
}

type graphRequest struct {
	Text string `json:"text"`
}

func handleGraph(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req graphRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}

		graph, err := deps.Orchestrator.GenerateGraph(r.Context(), req.Text)
		switch {
		case errors.Is(err, llm.ErrInvalidCredentials):
			httpError(w, http.StatusUnauthorized, "authentication_error", "invalid LLM API credentials")
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "graph generation failed: %v", err)
			return
		}

		writeJSON(w, graph)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
