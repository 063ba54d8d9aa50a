package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

const (
	defaultEmbedTimeout = 2 * time.Minute
	defaultQueryTimeout = 30 * time.Second
)

// successLine matches the worker's success sentinel on stdout.
var successLine = regexp.MustCompile(`^SUCCESS:(.+)$`)

// ScriptInvoker runs the embedding/retrieval worker script as a subprocess.
//
// Protocol:
//
//	<python> <script> embed_document <filePath> <mimeType> <documentID>
//	  stdout last line "SUCCESS:<handle>" on success; anything else is failure
//	<python> <script> query_documents <queryText> <comma-separated handles>
//	  stdout is a JSON array of {"text","source"} objects
//
// A non-zero exit, an expired deadline, or unparsable output is reported as a
// *Error with the combined output captured as the reason.
type ScriptInvoker struct {
	pythonBin    string
	scriptPath   string
	embedTimeout time.Duration
	queryTimeout time.Duration
	logger       *slog.Logger
}

var _ EmbeddingService = (*ScriptInvoker)(nil)
var _ RetrievalService = (*ScriptInvoker)(nil)

// NewScriptInvoker creates a ScriptInvoker for the given interpreter and
// script path. Non-positive timeouts fall back to the defaults (2m for
// embedding, 30s for queries).
func NewScriptInvoker(pythonBin, scriptPath string, embedTimeout, queryTimeout time.Duration) *ScriptInvoker {
	if embedTimeout <= 0 {
		embedTimeout = defaultEmbedTimeout
	}
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &ScriptInvoker{
		pythonBin:    pythonBin,
		scriptPath:   scriptPath,
		embedTimeout: embedTimeout,
		queryTimeout: queryTimeout,
		logger:       slog.Default(),
	}
}

// Embed runs the embed_document operation and returns the vector handle.
func (s *ScriptInvoker) Embed(ctx context.Context, filePath, mimeType, documentID string) (string, error) {
	out, err := s.run(ctx, "embed_document", s.embedTimeout, filePath, mimeType, documentID)
	if err != nil {
		return "", err
	}

	if handle, ok := parseSuccess(out); ok {
		return handle, nil
	}
	return "", &Error{Op: "embed_document", Reason: strings.TrimSpace(out)}
}

// Query runs the query_documents operation. Handles must be non-empty; the
// orchestrator rejects empty candidate sets before reaching this boundary.
func (s *ScriptInvoker) Query(ctx context.Context, text string, handles []string) ([]Passage, error) {
	if len(handles) == 0 {
		return nil, &Error{Op: "query_documents", Reason: "no candidate handles"}
	}

	out, err := s.run(ctx, "query_documents", s.queryTimeout, text, strings.Join(handles, ","))
	if err != nil {
		return nil, err
	}

	// The worker prints exactly one JSON array on stdout.
	var passages []Passage
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &passages); err != nil {
		return nil, &Error{Op: "query_documents", Reason: fmt.Sprintf("unparsable output: %s", strings.TrimSpace(out))}
	}
	return passages, nil
}

// run executes one worker operation, bounding it with the given timeout.
// The process is killed when the deadline expires.
func (s *ScriptInvoker) run(ctx context.Context, op string, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmdArgs := append([]string{s.scriptPath, op}, args...)
	cmd := exec.CommandContext(ctx, s.pythonBin, cmdArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	s.logger.Debug("worker invocation finished",
		"op", op,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)

	if err != nil {
		reason := strings.TrimSpace(stderr.String())
		if reason == "" {
			reason = strings.TrimSpace(stdout.String())
		}
		if reason == "" {
			reason = err.Error()
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &Error{Op: op, Reason: fmt.Sprintf("killed after %s", timeout), Timeout: true}
		}
		return "", &Error{Op: op, Reason: reason}
	}

	return stdout.String(), nil
}

// parseSuccess scans stdout for the last line matching SUCCESS:<handle>.
func parseSuccess(out string) (string, bool) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if m := successLine.FindStringSubmatch(strings.TrimSpace(lines[i])); m != nil {
			return m[1], true
		}
	}
	return "", false
}
