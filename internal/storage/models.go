package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateHandle is returned when a vector handle is already claimed by
// another document. Handles are externally visible and must be unique.
var ErrDuplicateHandle = errors.New("vector handle already in use")

// Document is the metadata record for an uploaded file. Processed and
// VectorHandle change together: a document either carries a handle and is
// processed, or carries neither.
type Document struct {
	ID           string
	WorkspaceID  string
	FileName     string
	MimeType     string
	FilePath     string
	Processed    bool
	VectorHandle string
	UploadedAt   time.Time
}

// QueryEntry is one answered question recorded in the query log.
type QueryEntry struct {
	ID          string
	WorkspaceID string
	Question    string
	Answer      string
	Citations   string // JSON array stored as text
	ChartHint   string
	CreatedAt   time.Time
}

// SessionMessage is a single turn in a conversation session.
type SessionMessage struct {
	ID        string
	SessionID string
	Role      string // "human" or "ai"
	Content   string
	CreatedAt time.Time
}
