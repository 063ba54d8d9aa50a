package rag

import "testing"

func TestChartHint(t *testing.T) {
	cases := []struct {
		name   string
		answer string
		want   string
	}{
		{"pie", "A pie chart would show the split clearly.", hintPie},
		{"pie uppercase", "See the PIE CHART breakdown.", hintPie},
		{"bar", "A bar chart comparing regions helps.", hintBar},
		{"line", "A line chart of monthly revenue shows the trend.", hintLine},
		{"generic chart", "You could chart these figures.", hintGeneric},
		{"visualize", "It may help to visualize the data.", hintGeneric},
		{"pie beats generic", "Visualize this with a pie chart.", hintPie},
		{"none", "Revenue grew 12% year over year.", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := chartHint(tc.answer); got != tc.want {
				t.Errorf("chartHint(%q) = %q, want %q", tc.answer, got, tc.want)
			}
		})
	}
}

func TestSuggestNextSteps(t *testing.T) {
	steps := suggestNextSteps("Suggested next steps: review the appendix.")
	if len(steps) != len(cannedNextSteps) {
		t.Errorf("got %d steps, want %d", len(steps), len(cannedNextSteps))
	}

	steps = suggestNextSteps("This warrants further analysis of Q3.")
	if len(steps) == 0 {
		t.Error("expected steps for further-analysis trigger")
	}

	steps = suggestNextSteps("Revenue was $5M.")
	if steps == nil {
		t.Error("expected non-nil empty slice")
	}
	if len(steps) != 0 {
		t.Errorf("expected no steps, got %v", steps)
	}
}
