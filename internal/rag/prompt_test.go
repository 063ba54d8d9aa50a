package rag

import (
	"strings"
	"testing"

	"github.com/cortexhub/cortexd/internal/storage"
	"github.com/cortexhub/cortexd/internal/worker"
)

func TestBuildIncludesPassagesAndQuestion(t *testing.T) {
	b := NewPromptBuilder(0)
	prompt := b.Build("What is the total?", []worker.Passage{
		{Text: "Total is 42.", Source: "report.pdf (Page 1)"},
		{Text: "Breakdown follows.", Source: "report.pdf (Page 2)"},
	}, nil)

	if !strings.Contains(prompt, "[Source: report.pdf (Page 1)]\nTotal is 42.") {
		t.Errorf("prompt missing labeled passage:\n%s", prompt)
	}
	if !strings.Contains(prompt, passageSeparator) {
		t.Error("prompt missing passage separator")
	}
	if !strings.Contains(prompt, "Question: What is the total?") {
		t.Error("prompt missing question")
	}
	if !strings.Contains(prompt, "ONLY the context below") {
		t.Error("prompt missing grounding instruction")
	}
}

func TestBuildBudgetDropsTailPassages(t *testing.T) {
	// ~20 tokens per passage; a 30-token budget fits the first only.
	b := NewPromptBuilder(30)
	prompt := b.Build("q", []worker.Passage{
		{Text: strings.Repeat("alpha ", 12), Source: "s1"},
		{Text: strings.Repeat("beta ", 12), Source: "s2"},
	}, nil)

	if !strings.Contains(prompt, "alpha") {
		t.Error("first passage should survive the budget")
	}
	if strings.Contains(prompt, "beta") {
		t.Error("tail passage should be dropped by the budget")
	}
}

func TestBuildHistoryWindow(t *testing.T) {
	b := NewPromptBuilder(0)
	var history []storage.SessionMessage
	for i := 0; i < 14; i++ {
		role := "human"
		if i%2 == 1 {
			role = "ai"
		}
		history = append(history, storage.SessionMessage{Role: role, Content: "turn" + string(rune('a'+i))})
	}

	prompt := b.Build("q", []worker.Passage{{Text: "x", Source: "s"}}, history)
	if strings.Contains(prompt, "turna") {
		t.Error("oldest turn should be outside the history window")
	}
	if !strings.Contains(prompt, "turn"+string(rune('a'+13))) {
		t.Error("latest turn should be included")
	}
	if !strings.Contains(prompt, "Assistant: ") || !strings.Contains(prompt, "User: ") {
		t.Error("history roles should be rendered")
	}
}

func TestBuildNoHistorySection(t *testing.T) {
	b := NewPromptBuilder(0)
	prompt := b.Build("q", []worker.Passage{{Text: "x", Source: "s"}}, nil)
	if strings.Contains(prompt, "Conversation so far") {
		t.Error("history header should be absent without history")
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("empty = %d", got)
	}
	if got := EstimateTokens("abcd"); got != 1 {
		t.Errorf("abcd = %d", got)
	}
	if got := EstimateTokens("abcde"); got != 2 {
		t.Errorf("abcde = %d", got)
	}
}
