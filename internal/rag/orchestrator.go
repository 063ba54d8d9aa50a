// Package rag answers natural-language questions over processed documents:
// it resolves the candidate set, retrieves passages, builds a grounded
// prompt, invokes the LLM, and post-processes the answer into structured
// output.
package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cortexhub/cortexd/internal/llm"
	"github.com/cortexhub/cortexd/internal/storage"
	"github.com/cortexhub/cortexd/internal/worker"
)

// ErrNoProcessedDocuments is returned when the workspace (or the explicit
// document list) contains no processed documents to search. This is a valid
// empty state, not a system fault.
var ErrNoProcessedDocuments = errors.New("no processed documents to search")

// insufficientAnswer is the fixed response when retrieval finds nothing.
const insufficientAnswer = "I don't have enough information in the selected documents to answer that."

// Result is the structured answer to one question.
type Result struct {
	QueryID   string
	Answer    string
	Citations []string
	NextSteps []string
	ChartHint string // empty when no hint applies
}

// DocumentStore is the metadata-store surface the orchestrator needs.
type DocumentStore interface {
	ListByWorkspace(workspaceID string, processedOnly bool) ([]storage.Document, error)
	FindByIDs(ids []string, workspaceID string, processedOnly bool) ([]storage.Document, error)
	SaveQueryEntry(q storage.QueryEntry) error
	AppendSessionMessage(m storage.SessionMessage) error
	SessionHistory(sessionID string) ([]storage.SessionMessage, error)
}

// Synthesizer is the LLM boundary.
type Synthesizer interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string, schema *llm.Schema) (string, error)
}

// Request describes one question. DocumentIDs restricts the search to those
// documents; when empty the whole workspace's processed set is searched.
// SessionID, when set, threads the exchange into a conversation session.
type Request struct {
	Question    string
	WorkspaceID string
	DocumentIDs []string
	SessionID   string
}

// Orchestrator coordinates document resolution, retrieval, synthesis, and
// post-processing.
type Orchestrator struct {
	store     DocumentStore
	retriever worker.RetrievalService
	synth     Synthesizer
	prompts   *PromptBuilder
	logger    *slog.Logger
}

// NewOrchestrator wires the orchestrator to its collaborators.
func NewOrchestrator(store DocumentStore, retriever worker.RetrievalService, synth Synthesizer, prompts *PromptBuilder) *Orchestrator {
	if prompts == nil {
		prompts = NewPromptBuilder(0)
	}
	return &Orchestrator{
		store:     store,
		retriever: retriever,
		synth:     synth,
		prompts:   prompts,
		logger:    slog.Default(),
	}
}

// Answer runs the full query pipeline and returns the structured result.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (Result, error) {
	candidates, err := o.resolveDocuments(req)
	if err != nil {
		return Result{}, err
	}

	handles := make([]string, len(candidates))
	for i, d := range candidates {
		handles[i] = d.VectorHandle
	}

	passages, err := o.retriever.Query(ctx, req.Question, handles)
	if err != nil {
		return Result{}, fmt.Errorf("retrieving passages: %w", err)
	}

	// No matches is a valid terminal outcome, not a failure.
	if len(passages) == 0 {
		result := Result{
			QueryID:   uuid.New().String(),
			Answer:    insufficientAnswer,
			Citations: []string{},
			NextSteps: []string{},
		}
		o.record(req, result)
		return result, nil
	}

	var history []storage.SessionMessage
	if req.SessionID != "" {
		history, err = o.store.SessionHistory(req.SessionID)
		if err != nil {
			return Result{}, fmt.Errorf("loading session history: %w", err)
		}
	}

	prompt := o.prompts.Build(req.Question, passages, history)

	answer, err := o.synth.Generate(ctx, prompt)
	if err != nil {
		// Credential failures are deployment-level; let them surface intact.
		return Result{}, err
	}

	// Citations mirror the retrieved passages positionally, duplicates and all.
	citations := make([]string, len(passages))
	for i, p := range passages {
		citations[i] = p.Source
	}

	result := Result{
		QueryID:   uuid.New().String(),
		Answer:    answer,
		Citations: citations,
		NextSteps: suggestNextSteps(answer),
		ChartHint: chartHint(answer),
	}

	o.record(req, result)
	return result, nil
}

// resolveDocuments returns the processed documents to search, scoped to the
// workspace. Fails with ErrNoProcessedDocuments when nothing qualifies.
func (o *Orchestrator) resolveDocuments(req Request) ([]storage.Document, error) {
	var docs []storage.Document
	var err error
	if len(req.DocumentIDs) > 0 {
		docs, err = o.store.FindByIDs(req.DocumentIDs, req.WorkspaceID, true)
	} else {
		docs, err = o.store.ListByWorkspace(req.WorkspaceID, true)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNoProcessedDocuments
	}
	return docs, nil
}

// record persists the query-log entry and, when a session is attached, the
// conversation turns. Logging failures are reported but do not fail the
// already-computed answer.
func (o *Orchestrator) record(req Request, result Result) {
	citations, err := json.Marshal(result.Citations)
	if err != nil {
		citations = []byte("[]")
	}
	entry := storage.QueryEntry{
		ID:          result.QueryID,
		WorkspaceID: req.WorkspaceID,
		Question:    req.Question,
		Answer:      result.Answer,
		Citations:   string(citations),
		ChartHint:   result.ChartHint,
		CreatedAt:   time.Now().UTC(),
	}
	if err := o.store.SaveQueryEntry(entry); err != nil {
		o.logger.Warn("saving query log entry", "query_id", result.QueryID, "error", err)
	}

	if req.SessionID == "" {
		return
	}
	turns := []storage.SessionMessage{
		{ID: uuid.New().String(), SessionID: req.SessionID, Role: "human", Content: req.Question},
		{ID: uuid.New().String(), SessionID: req.SessionID, Role: "ai", Content: result.Answer},
	}
	for _, m := range turns {
		if err := o.store.AppendSessionMessage(m); err != nil {
			o.logger.Warn("appending session message", "session_id", req.SessionID, "error", err)
		}
	}
}
