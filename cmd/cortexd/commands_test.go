package main

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	Auth        string
	ContentType string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			Auth:        r.Header.Get("Authorization"),
			ContentType: r.Header.Get("Content-Type"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

func TestQueryRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /query": `{"query_id":"q1","answer":"42","citations":["report.pdf (Page 1)"],"next_steps":[]}`,
	})

	client := ts.client()
	resp, err := client.post("/query", map[string]any{
		"question":     "what is the answer",
		"workspace_id": "w1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Answer    string   `json:"answer"`
		Citations []string `json:"citations"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.Answer != "42" {
		t.Errorf("answer = %q", result.Answer)
	}
	if len(result.Citations) != 1 {
		t.Errorf("citations = %v", result.Citations)
	}

	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q", r.Auth)
	}
	if !strings.Contains(r.Body, `"workspace_id":"w1"`) {
		t.Errorf("body = %q", r.Body)
	}
}

func TestUploadRequest_Multipart(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /upload": `{"id":"d1","file_name":"notes.txt","processed":true,"vector_handle":"d1"}`,
	})

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("some notes"), 0o644); err != nil {
		t.Fatal(err)
	}

	client := ts.client()
	resp, err := client.upload(path, "w1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var doc struct {
		ID        string `json:"id"`
		Processed bool   `json:"processed"`
	}
	if err := decodeJSON(resp, &doc); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if doc.ID != "d1" || !doc.Processed {
		t.Errorf("doc = %+v", doc)
	}

	r := ts.requests[0]
	if !strings.HasPrefix(r.ContentType, "multipart/form-data") {
		t.Errorf("content type = %q", r.ContentType)
	}
	if !strings.Contains(r.Body, "some notes") {
		t.Error("multipart body missing file content")
	}
	if !strings.Contains(r.Body, `name="workspace_id"`) {
		t.Error("multipart body missing workspace_id field")
	}
}

func TestUploadRequest_FilePartContentType(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /upload": `{"id":"d2","file_name":"report.pdf","processed":true,"vector_handle":"d2"}`,
	})

	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	client := ts.client()
	resp, err := client.upload(path, "w1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	r := ts.requests[0]
	_, params, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		t.Fatalf("parsing content type: %v", err)
	}

	mr := multipart.NewReader(strings.NewReader(r.Body), params["boundary"])
	var fileType string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading part: %v", err)
		}
		if part.FormName() == "file" {
			fileType = part.Header.Get("Content-Type")
		}
	}
	if fileType != "application/pdf" {
		t.Errorf("file part content type = %q, want %q", fileType, "application/pdf")
	}
}

func TestUploadRequest_MissingFile(t *testing.T) {
	ts := newTestServer(t, nil)

	client := ts.client()
	if _, err := client.upload(filepath.Join(t.TempDir(), "absent.txt"), "w1"); err == nil {
		t.Fatal("expected error for missing file")
	}
	if len(ts.requests) != 0 {
		t.Error("no request should be sent when the file is missing")
	}
}

func TestErrorResponseSurfaced(t *testing.T) {
	ts := newTestServer(t, nil)

	client := ts.client()
	resp, err := client.get("/documents?workspace_id=w1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out any
	err = decodeJSON(resp, &out)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "not_found") {
		t.Errorf("error = %v", err)
	}
}

func TestSessionClearRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /sessions/s1/history": `{"status":"cleared"}`,
	})

	client := ts.client()
	resp, err := client.delete("/sessions/s1/history")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["status"] != "cleared" {
		t.Errorf("status = %q", result["status"])
	}
	if ts.requests[0].Method != "DELETE" {
		t.Errorf("method = %q", ts.requests[0].Method)
	}
}
