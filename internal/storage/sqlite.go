package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for documents, the query log,
// and conversation sessions.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "cortexd.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying database for components that share the same file,
// such as the native vector index.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Documents ---

const documentColumns = "id, workspace_id, file_name, mime_type, file_path, processed, vector_handle, uploaded_at"

// CreateDocument inserts a new unprocessed document record.
func (s *Store) CreateDocument(d Document) error {
	uploadedAt := d.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO documents (id, workspace_id, file_name, mime_type, file_path, processed, vector_handle, uploaded_at)
		VALUES (?, ?, ?, ?, ?, 0, NULL, ?)`,
		d.ID, d.WorkspaceID, d.FileName, d.MimeType, d.FilePath,
		uploadedAt.Format(time.RFC3339),
	)
	return err
}

// GetDocument returns the document with the given ID scoped to the workspace.
func (s *Store) GetDocument(id, workspaceID string) (Document, error) {
	row := s.db.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE id = ? AND workspace_id = ?`, id, workspaceID)
	return scanDocument(row)
}

// MarkProcessed flips a document to processed and records its vector handle in
// a single update, so no reader ever observes one without the other.
func (s *Store) MarkProcessed(id, vectorHandle string) (Document, error) {
	res, err := s.db.Exec(`UPDATE documents SET processed = 1, vector_handle = ? WHERE id = ?`, vectorHandle, id)
	if err != nil {
		if isUniqueViolation(err) {
			return Document{}, ErrDuplicateHandle
		}
		return Document{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Document{}, err
	}
	if n == 0 {
		return Document{}, ErrNotFound
	}

	row := s.db.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// ListByWorkspace returns documents for a workspace, newest first.
// When processedOnly is true, unprocessed documents are excluded.
func (s *Store) ListByWorkspace(workspaceID string, processedOnly bool) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE workspace_id = ?`
	if processedOnly {
		query += ` AND processed = 1`
	}
	query += ` ORDER BY uploaded_at DESC`

	rows, err := s.db.Query(query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// FindByIDs returns the documents matching the given IDs within the workspace.
// IDs outside the workspace are silently omitted, never returned.
func (s *Store) FindByIDs(ids []string, workspaceID string, processedOnly bool) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE workspace_id = ? AND id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	if processedOnly {
		query += ` AND processed = 1`
	}
	query += ` ORDER BY uploaded_at DESC`

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, workspaceID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (Document, error) {
	var d Document
	var processed int
	var handle sql.NullString
	var uploadedAt string
	err := row.Scan(&d.ID, &d.WorkspaceID, &d.FileName, &d.MimeType, &d.FilePath, &processed, &handle, &uploadedAt)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	d.Processed = processed != 0
	d.VectorHandle = handle.String
	t, err := time.Parse(time.RFC3339, uploadedAt)
	if err != nil {
		return Document{}, fmt.Errorf("parsing uploaded_at: %w", err)
	}
	d.UploadedAt = t
	return d, nil
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	var results []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- Query log ---

// SaveQueryEntry records an answered question.
func (s *Store) SaveQueryEntry(q QueryEntry) error {
	citations := q.Citations
	if citations == "" {
		citations = "[]"
	}
	createdAt := q.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO query_log (id, workspace_id, question, answer, citations, chart_hint, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.WorkspaceID, q.Question, q.Answer, citations, q.ChartHint,
		createdAt.Format(time.RFC3339),
	)
	return err
}

// RecentQueries returns the most recent query log entries for a workspace.
func (s *Store) RecentQueries(workspaceID string, limit int) ([]QueryEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, workspace_id, question, answer, citations, chart_hint, created_at
		FROM query_log WHERE workspace_id = ? ORDER BY created_at DESC LIMIT ?`,
		workspaceID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []QueryEntry
	for rows.Next() {
		var q QueryEntry
		var createdAt string
		if err := rows.Scan(&q.ID, &q.WorkspaceID, &q.Question, &q.Answer, &q.Citations, &q.ChartHint, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		q.CreatedAt = t
		results = append(results, q)
	}
	return results, rows.Err()
}

// --- Sessions ---

// AppendSessionMessage adds one turn to a conversation session.
func (s *Store) AppendSessionMessage(m SessionMessage) error {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO session_messages (id, session_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.Role, m.Content, createdAt.Format(time.RFC3339),
	)
	return err
}

// SessionHistory returns all messages of a session in chronological order.
func (s *Store) SessionHistory(sessionID string) ([]SessionMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, created_at
		FROM session_messages WHERE session_id = ? ORDER BY rowid ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SessionMessage
	for rows.Next() {
		var m SessionMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		m.CreatedAt = t
		results = append(results, m)
	}
	return results, rows.Err()
}

// ClearSession deletes all messages of a session. Clearing an unknown session
// is not an error.
func (s *Store) ClearSession(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM session_messages WHERE session_id = ?`, sessionID)
	return err
}
