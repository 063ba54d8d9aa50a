// Package docs manages the document lifecycle: upload, embedding hand-off,
// and the pending → processed transition.
package docs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/cortexhub/cortexd/internal/storage"
	"github.com/cortexhub/cortexd/internal/worker"
)

// ErrAlreadyProcessed is returned when re-embedding is requested for a
// document that already carries a vector handle.
var ErrAlreadyProcessed = errors.New("document already processed")

// DocumentStore is the metadata-store surface the manager needs.
type DocumentStore interface {
	CreateDocument(d storage.Document) error
	GetDocument(id, workspaceID string) (storage.Document, error)
	MarkProcessed(id, vectorHandle string) (storage.Document, error)
	ListByWorkspace(workspaceID string, processedOnly bool) ([]storage.Document, error)
}

// EmbedError wraps an embedding failure together with the document ID, so a
// client can retry embedding against the same record.
type EmbedError struct {
	DocumentID string
	Err        error
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("embedding document %s: %v", e.DocumentID, e.Err)
}

func (e *EmbedError) Unwrap() error { return e.Err }

// Manager orchestrates upload → embed → mark-processed.
type Manager struct {
	store      DocumentStore
	embedder   worker.EmbeddingService
	uploadsDir string
	logger     *slog.Logger
}

// NewManager creates a Manager writing uploaded files into uploadsDir.
func NewManager(store DocumentStore, embedder worker.EmbeddingService, uploadsDir string) *Manager {
	return &Manager{
		store:      store,
		embedder:   embedder,
		uploadsDir: uploadsDir,
		logger:     slog.Default(),
	}
}

// Upload persists the file and its metadata record, then invokes the
// embedding worker. The record is created before embedding starts, so a
// failed embedding never loses the fact that a file was uploaded: on failure
// the record stays pending and the returned *EmbedError carries its ID.
//
// Embedding runs on a context detached from the caller's cancellation (but
// still bounded by the worker timeout), so a client disconnect does not kill
// an in-flight job.
func (m *Manager) Upload(ctx context.Context, r io.Reader, fileName, mimeType, workspaceID string) (storage.Document, error) {
	id := uuid.New().String()

	filePath, err := m.saveFile(r, id, fileName)
	if err != nil {
		return storage.Document{}, fmt.Errorf("saving upload: %w", err)
	}

	doc := storage.Document{
		ID:          id,
		WorkspaceID: workspaceID,
		FileName:    fileName,
		MimeType:    mimeType,
		FilePath:    filePath,
	}
	if err := m.store.CreateDocument(doc); err != nil {
		os.Remove(filePath)
		return storage.Document{}, fmt.Errorf("creating document record: %w", err)
	}

	return m.embed(context.WithoutCancel(ctx), doc)
}

// Reembed re-runs embedding for a still-pending document. The stored file
// must still exist; documents whose file was cleaned up after a failure must
// be re-uploaded instead.
func (m *Manager) Reembed(ctx context.Context, id, workspaceID string) (storage.Document, error) {
	doc, err := m.store.GetDocument(id, workspaceID)
	if err != nil {
		return storage.Document{}, err
	}
	if doc.Processed {
		return storage.Document{}, ErrAlreadyProcessed
	}
	if _, err := os.Stat(doc.FilePath); err != nil {
		return storage.Document{}, &EmbedError{DocumentID: doc.ID, Err: fmt.Errorf("stored file missing, re-upload required: %w", err)}
	}
	return m.embed(context.WithoutCancel(ctx), doc)
}

// List returns the documents of a workspace.
func (m *Manager) List(workspaceID string, processedOnly bool) ([]storage.Document, error) {
	return m.store.ListByWorkspace(workspaceID, processedOnly)
}

func (m *Manager) embed(ctx context.Context, doc storage.Document) (storage.Document, error) {
	handle, err := m.embedder.Embed(ctx, doc.FilePath, doc.MimeType, doc.ID)
	if err != nil {
		m.logger.Warn("embedding failed",
			"document_id", doc.ID,
			"workspace_id", doc.WorkspaceID,
			"error", err,
		)
		// The worker cleans up nothing on its side; remove the stored file so
		// failed uploads don't accumulate. The metadata record stays pending.
		os.Remove(doc.FilePath)
		return doc, &EmbedError{DocumentID: doc.ID, Err: err}
	}

	processed, err := m.store.MarkProcessed(doc.ID, handle)
	if err != nil {
		return doc, fmt.Errorf("marking document %s processed: %w", doc.ID, err)
	}

	m.logger.Info("document processed",
		"document_id", processed.ID,
		"workspace_id", processed.WorkspaceID,
		"vector_handle", processed.VectorHandle,
	)
	return processed, nil
}

func (m *Manager) saveFile(r io.Reader, id, fileName string) (string, error) {
	if err := os.MkdirAll(m.uploadsDir, 0o755); err != nil {
		return "", fmt.Errorf("creating uploads directory: %w", err)
	}

	// Prefix with the document ID so same-named uploads never collide.
	path := filepath.Join(m.uploadsDir, id+"-"+filepath.Base(fileName))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing file: %w", err)
	}
	return path, nil
}
