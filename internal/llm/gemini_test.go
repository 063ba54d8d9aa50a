package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func candidateResponse(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]string{{"text": text}}}},
		},
	}
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-pro:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "key123" {
			t.Errorf("api key header = %q", r.Header.Get("x-goog-api-key"))
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if len(req.Contents) != 1 || req.Contents[0].Role != "user" {
			t.Errorf("expected single user turn, got %+v", req.Contents)
		}
		if len(req.SafetySettings) != 4 {
			t.Errorf("expected 4 safety settings, got %d", len(req.SafetySettings))
		}
		for _, s := range req.SafetySettings {
			if s.Threshold != "BLOCK_NONE" {
				t.Errorf("safety threshold = %q, want BLOCK_NONE", s.Threshold)
			}
		}

		json.NewEncoder(w).Encode(candidateResponse("Revenue was $5M"))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("key123", "", srv.URL)
	got, err := c.Generate(context.Background(), "What is the revenue?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Revenue was $5M" {
		t.Errorf("answer = %q", got)
	}
}

func TestGenerateInvalidCredentialsHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("bad", "", srv.URL)
	_, err := c.Generate(context.Background(), "q")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestGenerateInvalidCredentialsErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 400, "status": "UNAUTHENTICATED", "message": "API key not valid"},
		})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("bad", "", srv.URL)
	_, err := c.Generate(context.Background(), "q")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestGenerateUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 503, "status": "UNAVAILABLE", "message": "overloaded"},
		})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("key", "", srv.URL)
	_, err := c.Generate(context.Background(), "q")
	if err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected generic upstream error, got %v", err)
	}
}

func TestGenerateJSONSetsResponseSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.GenerationConfig == nil {
			t.Fatal("missing generationConfig")
		}
		if req.GenerationConfig.ResponseMimeType != "application/json" {
			t.Errorf("responseMimeType = %q", req.GenerationConfig.ResponseMimeType)
		}
		if req.GenerationConfig.ResponseSchema == nil {
			t.Error("missing responseSchema")
		}
		json.NewEncoder(w).Encode(candidateResponse(`{"concepts":[]}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("key", "", srv.URL)
	got, err := c.GenerateJSON(context.Background(), "extract", &Schema{Type: "object"})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if got != `{"concepts":[]}` {
		t.Errorf("json = %q", got)
	}
}

func TestGenerateEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("key", "", srv.URL)
	if _, err := c.Generate(context.Background(), "q"); err == nil {
		t.Error("expected error for empty candidates")
	}
}
