package rag

import "strings"

// Chart hints derived from the answer text. Best-effort annotations only;
// they inform the UI, never correctness.
const (
	hintPie     = "Pie chart showing proportions."
	hintBar     = "Bar chart comparing values."
	hintLine    = "Line chart showing trends over time."
	hintGeneric = "Chart visualizing the answer data."
)

// cannedNextSteps is returned whenever the answer invites follow-up work.
var cannedNextSteps = []string{
	"Review the cited passages in the source documents.",
	"Upload additional documents to broaden the context.",
	"Ask a follow-up question to drill into specifics.",
}

// chartHint inspects the answer for charting vocabulary, most specific match
// first. Returns "" when nothing applies.
func chartHint(answer string) string {
	lower := strings.ToLower(answer)
	switch {
	case strings.Contains(lower, "pie chart"):
		return hintPie
	case strings.Contains(lower, "bar chart"):
		return hintBar
	case strings.Contains(lower, "line chart"):
		return hintLine
	case strings.Contains(lower, "chart"), strings.Contains(lower, "visualize"):
		return hintGeneric
	default:
		return ""
	}
}

// suggestNextSteps returns the canned follow-up list when the answer signals
// there is more to do, otherwise an empty (non-nil) list.
func suggestNextSteps(answer string) []string {
	lower := strings.ToLower(answer)
	if strings.Contains(lower, "suggested next steps") || strings.Contains(lower, "further analysis") {
		steps := make([]string, len(cannedNextSteps))
		copy(steps, cannedNextSteps)
		return steps
	}
	return []string{}
}
