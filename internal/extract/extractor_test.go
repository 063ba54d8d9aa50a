package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestFilePlainText(t *testing.T) {
	path := writeTempFile(t, "notes.txt", "Revenue was $5M in Q3.\n")

	sections, err := File(path, "text/plain")
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(sections))
	}
	if sections[0].Label != "notes.txt" {
		t.Errorf("label = %q, want notes.txt", sections[0].Label)
	}
	if sections[0].Text != "Revenue was $5M in Q3." {
		t.Errorf("text = %q", sections[0].Text)
	}
}

func TestFileUnknownTypeFallsBackToText(t *testing.T) {
	path := writeTempFile(t, "data.bin", "some content")

	sections, err := File(path, "application/octet-stream")
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if len(sections) != 1 || sections[0].Text != "some content" {
		t.Errorf("sections = %+v", sections)
	}
}

func TestFileCSV(t *testing.T) {
	path := writeTempFile(t, "sales.csv", "region,revenue\nnorth,5000000\nsouth,2000000\n")

	sections, err := File(path, "text/csv")
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(sections))
	}
	text := sections[0].Text
	for _, want := range []string{"region, revenue", "north, 5000000", "south, 2000000"} {
		if !strings.Contains(text, want) {
			t.Errorf("csv text missing %q:\n%s", want, text)
		}
	}
}

func TestFileEmpty(t *testing.T) {
	path := writeTempFile(t, "empty.txt", "  \n ")

	if _, err := File(path, "text/plain"); err == nil {
		t.Error("expected error for empty file")
	}
}
