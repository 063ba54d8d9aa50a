// Package worker defines the capability interfaces for the external embedding
// and retrieval workers, plus the subprocess-backed implementation that speaks
// the line-based worker protocol.
package worker

import (
	"context"
	"fmt"
)

// Passage is a retrieved context fragment with its provenance label.
// Passages are query-scoped and never persisted.
type Passage struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// EmbeddingService extracts text from an uploaded file and upserts its
// embeddings into the vector store. Implementations may be in-process or
// out-of-process; callers only see the handle or the failure.
type EmbeddingService interface {
	// Embed processes the file and returns the vector-store handle on success.
	// Re-embedding the same document is safe and overwrites its handle.
	Embed(ctx context.Context, filePath, mimeType, documentID string) (string, error)
}

// RetrievalService searches the vector store restricted to a set of document
// handles and returns relevance-ranked passages, most relevant first.
// An empty result is valid and distinct from an error.
type RetrievalService interface {
	Query(ctx context.Context, text string, handles []string) ([]Passage, error)
}

// Error is a worker invocation failure. Reason carries the captured process
// output (or transport error); Timeout is set when the invocation deadline
// expired and the process was killed.
type Error struct {
	Op      string
	Reason  string
	Timeout bool
}

func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s worker timed out: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s worker failed: %s", e.Op, e.Reason)
}
