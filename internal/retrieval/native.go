package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cortexhub/cortexd/internal/extract"
	"github.com/cortexhub/cortexd/internal/worker"
)

// Embedder generates embedding vectors for text.
type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// Native is the in-process implementation of the embedding and retrieval
// worker interfaces: extraction and chunking happen locally, embeddings come
// from a local model, and vectors live in the shared SQLite database.
type Native struct {
	embedder Embedder
	model    string
	store    *VectorStore
	chunker  *extract.Chunker
	topK     int
	logger   *slog.Logger
}

var _ worker.EmbeddingService = (*Native)(nil)
var _ worker.RetrievalService = (*Native)(nil)

// NewNative creates a Native backend. topK controls how many passages a query
// returns (default 4, matching the worker script).
func NewNative(embedder Embedder, model string, store *VectorStore, topK int) *Native {
	if topK <= 0 {
		topK = 4
	}
	return &Native{
		embedder: embedder,
		model:    model,
		store:    store,
		chunker:  extract.NewChunker(0, -1),
		topK:     topK,
		logger:   slog.Default(),
	}
}

// Embed extracts, chunks, and embeds the file, storing the vectors under the
// document ID, which doubles as the vector handle. Prior vectors for the same
// document are removed first, so retrying is safe.
func (n *Native) Embed(ctx context.Context, filePath, mimeType, documentID string) (string, error) {
	sections, err := extract.File(filePath, mimeType)
	if err != nil {
		return "", &worker.Error{Op: "embed_document", Reason: err.Error()}
	}

	type pending struct {
		label string
		text  string
	}
	var chunks []pending
	for _, sec := range sections {
		for _, text := range n.chunker.Chunk(sec.Text) {
			chunks = append(chunks, pending{label: sec.Label, text: text})
		}
	}
	if len(chunks) == 0 {
		return "", &worker.Error{Op: "embed_document", Reason: fmt.Sprintf("no chunks produced for %s", filePath)}
	}

	// Embed chunks with bounded concurrency to avoid overwhelming the engine.
	vectors := make([][]float32, len(chunks))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, ch := range chunks {
		g.Go(func() error {
			vec, err := n.embedder.Embed(gCtx, n.model, ch.text)
			if err != nil {
				return fmt.Errorf("embedding chunk %d: %w", i, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", &worker.Error{Op: "embed_document", Reason: err.Error()}
	}

	if err := n.store.DeleteByDocument(ctx, documentID); err != nil {
		return "", &worker.Error{Op: "embed_document", Reason: err.Error()}
	}

	records := make([]Record, len(chunks))
	now := time.Now().UTC()
	for i, ch := range chunks {
		records[i] = Record{
			ID:          uuid.New().String(),
			DocumentID:  documentID,
			SourceLabel: ch.label,
			TextChunk:   ch.text,
			Embedding:   vectors[i],
			CreatedAt:   now,
		}
	}
	if err := n.store.Insert(ctx, records); err != nil {
		return "", &worker.Error{Op: "embed_document", Reason: err.Error()}
	}

	n.logger.Info("document embedded", "document_id", documentID, "chunks", len(records))
	return documentID, nil
}

// Query embeds the question and returns the top-K passages across the given
// document handles, most similar first.
func (n *Native) Query(ctx context.Context, text string, handles []string) ([]worker.Passage, error) {
	if len(handles) == 0 {
		return nil, &worker.Error{Op: "query_documents", Reason: "no candidate handles"}
	}

	vec, err := n.embedder.Embed(ctx, n.model, text)
	if err != nil {
		return nil, &worker.Error{Op: "query_documents", Reason: fmt.Sprintf("embedding query: %v", err)}
	}

	scored, err := n.store.Search(ctx, vec, handles, n.topK)
	if err != nil {
		return nil, &worker.Error{Op: "query_documents", Reason: err.Error()}
	}

	passages := make([]worker.Passage, len(scored))
	for i, s := range scored {
		passages[i] = worker.Passage{Text: s.TextChunk, Source: s.SourceLabel}
	}
	return passages, nil
}
