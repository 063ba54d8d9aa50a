package rag

import (
	"fmt"
	"strings"

	"github.com/cortexhub/cortexd/internal/storage"
	"github.com/cortexhub/cortexd/internal/worker"
)

const (
	defaultMaxContextTokens = 4000
	maxHistoryTurns         = 10
	passageSeparator        = "\n---\n"
)

// PromptBuilder assembles grounded prompts from retrieved passages and
// optional conversation history, keeping the injected context within a token
// budget.
type PromptBuilder struct {
	MaxContextTokens int
}

// NewPromptBuilder creates a PromptBuilder with the given token budget for
// injected context. If maxContextTokens <= 0, the default (4000) is used.
func NewPromptBuilder(maxContextTokens int) *PromptBuilder {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &PromptBuilder{MaxContextTokens: maxContextTokens}
}

// Build produces the grounded prompt. Passages arrive relevance-ranked;
// their order is preserved and, when the budget forces drops, the least
// relevant (tail) passages are dropped first.
func (b *PromptBuilder) Build(question string, passages []worker.Passage, history []storage.SessionMessage) string {
	var sb strings.Builder

	sb.WriteString("You are a document analysis assistant. Answer the question using ONLY the context below. ")
	sb.WriteString("If the context does not contain the information needed, say so plainly instead of guessing.\n\n")

	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		start := 0
		if len(history) > maxHistoryTurns {
			start = len(history) - maxHistoryTurns
		}
		for _, m := range history[start:] {
			role := "User"
			if m.Role == "ai" {
				role = "Assistant"
			}
			fmt.Fprintf(&sb, "%s: %s\n", role, m.Content)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Context:\n")
	remaining := b.MaxContextTokens
	for i, p := range passages {
		entry := formatPassage(p)
		tokens := EstimateTokens(entry)
		if tokens > remaining {
			break
		}
		if i > 0 {
			sb.WriteString(passageSeparator)
		}
		sb.WriteString(entry)
		remaining -= tokens
	}

	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}

func formatPassage(p worker.Passage) string {
	return fmt.Sprintf("[Source: %s]\n%s", p.Source, p.Text)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
