package retrieval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/cortexhub/cortexd/internal/worker"
)

// stubEmbedder derives deterministic vectors from text so similarity checks
// in tests are stable: vector[0] counts "revenue", vector[1] counts "cost".
type stubEmbedder struct {
	fail bool
}

func (s *stubEmbedder) Embed(_ context.Context, _ string, text string) ([]float32, error) {
	if s.fail {
		return nil, errors.New("engine unavailable")
	}
	vec := []float32{0, 0, 1}
	for i, word := range []string{"revenue", "cost"} {
		if containsWord(text, word) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func containsWord(text, word string) bool {
	for i := 0; i+len(word) <= len(text); i++ {
		if text[i:i+len(word)] == word {
			return true
		}
	}
	return false
}

func newTestNative(t *testing.T, embedder Embedder) *Native {
	t.Helper()
	return NewNative(embedder, "test-model", newTestVectorStore(t), 4)
}

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing doc: %v", err)
	}
	return path
}

func TestNativeEmbedAndQuery(t *testing.T) {
	n := newTestNative(t, &stubEmbedder{})
	path := writeDoc(t, "The revenue grew strongly this year.")

	handle, err := n.Embed(context.Background(), path, "text/plain", "doc1")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if handle != "doc1" {
		t.Errorf("handle = %q, want doc1", handle)
	}

	passages, err := n.Query(context.Background(), "what was the revenue", []string{"doc1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(passages) != 1 {
		t.Fatalf("got %d passages, want 1", len(passages))
	}
	if passages[0].Source != "doc.txt" {
		t.Errorf("source = %q, want doc.txt", passages[0].Source)
	}
}

func TestNativeEmbedRetryReplacesVectors(t *testing.T) {
	store := newTestVectorStore(t)
	n := NewNative(&stubEmbedder{}, "test-model", store, 4)
	path := writeDoc(t, "The revenue grew.")

	for range 2 {
		if _, err := n.Embed(context.Background(), path, "text/plain", "doc1"); err != nil {
			t.Fatalf("Embed: %v", err)
		}
	}

	count, err := store.Count(context.Background(), "doc1")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("re-embedding duplicated vectors: count = %d, want 1", count)
	}
}

func TestNativeEmbedMissingFile(t *testing.T) {
	n := newTestNative(t, &stubEmbedder{})

	_, err := n.Embed(context.Background(), "/nonexistent/file.txt", "text/plain", "doc1")
	var werr *worker.Error
	if !errors.As(err, &werr) {
		t.Fatalf("expected *worker.Error, got %v", err)
	}
}

func TestNativeEmbedEngineFailure(t *testing.T) {
	n := newTestNative(t, &stubEmbedder{fail: true})
	path := writeDoc(t, "content")

	_, err := n.Embed(context.Background(), path, "text/plain", "doc1")
	var werr *worker.Error
	if !errors.As(err, &werr) {
		t.Fatalf("expected *worker.Error, got %v", err)
	}
}

func TestNativeQueryEmptyHandles(t *testing.T) {
	n := newTestNative(t, &stubEmbedder{})

	if _, err := n.Query(context.Background(), "q", nil); err == nil {
		t.Error("expected error for empty handles")
	}
}

func TestNativeQueryTopK(t *testing.T) {
	store := newTestVectorStore(t)
	n := NewNative(&stubEmbedder{}, "test-model", store, 2)

	// Insert more records than topK directly.
	var records []Record
	for i := range 5 {
		records = append(records, Record{
			ID:          fmt.Sprintf("r%d", i),
			DocumentID:  "doc1",
			SourceLabel: "a.txt",
			TextChunk:   "revenue notes",
			Embedding:   []float32{1, 0, 1},
		})
	}
	insertRecords(t, store, records)

	passages, err := n.Query(context.Background(), "revenue", []string{"doc1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(passages) != 2 {
		t.Errorf("got %d passages, want topK=2", len(passages))
	}
}
