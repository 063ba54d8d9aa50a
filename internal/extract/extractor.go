// Package extract turns uploaded files into plain-text sections ready for
// chunking and embedding. Extraction is keyed by MIME type; unknown types are
// treated as plain text.
package extract

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Section is a contiguous piece of extracted text with its provenance label,
// e.g. "report.pdf (Page 3)". Labels become passage sources at query time.
type Section struct {
	Label string
	Text  string
}

// File extracts text sections from the file at path according to mimeType.
func File(path, mimeType string) ([]Section, error) {
	name := filepath.Base(path)

	switch {
	case mimeType == "application/pdf":
		return pdfSections(path, name)
	case mimeType == "text/csv":
		return csvSections(path, name)
	default:
		return textSections(path, name)
	}
}

// pdfSections extracts one section per PDF page so passages can cite pages.
func pdfSections(path, name string) ([]Section, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	var sections []Section
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages the parser cannot handle rather than failing the
			// whole document.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		sections = append(sections, Section{
			Label: fmt.Sprintf("%s (Page %d)", name, i),
			Text:  text,
		})
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("no extractable text in %s", name)
	}
	return sections, nil
}

// csvSections renders each row as a comma-joined line, one section per file.
func csvSections(path, name string) ([]Section, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var sb strings.Builder
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		sb.WriteString(strings.Join(row, ", "))
		sb.WriteString("\n")
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, fmt.Errorf("no extractable text in %s", name)
	}
	return []Section{{Label: name, Text: text}}, nil
}

func textSections(path, name string) ([]Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("no extractable text in %s", name)
	}
	return []Section{{Label: name, Text: text}}, nil
}
