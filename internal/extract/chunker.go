package extract

import (
	"strings"
	"unicode/utf8"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// Chunker splits section text into overlapping character chunks, preferring
// to break at paragraph, then sentence, then word boundaries.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a Chunker. Non-positive size falls back to 1000 chars;
// a negative overlap falls back to 200. Overlap is clamped below size.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 {
		overlap = defaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk splits text into chunks of at most the configured size. Consecutive
// chunks share the configured overlap so sentences straddling a boundary stay
// queryable.
func (c *Chunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + c.size
		if end >= len(text) {
			chunk := strings.TrimSpace(text[start:])
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		cut := breakPoint(text[start:end])
		end = start + cut

		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := end - c.overlap
		if next <= start {
			next = end
		}
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		start = next
	}
	return chunks
}

// breakPoint finds the best split offset within window, scanning backwards for
// a paragraph break, then a sentence end, then whitespace. Falls back to the
// full window for unbroken runs, rounded down to a rune boundary so multibyte
// text is never split mid-rune.
func breakPoint(window string) int {
	if i := strings.LastIndex(window, "\n\n"); i > len(window)/2 {
		return i + 2
	}
	for i := len(window) - 1; i > len(window)/2; i-- {
		switch window[i] {
		case '.', '!', '?':
			return i + 1
		}
	}
	if i := strings.LastIndexAny(window, " \t\n"); i > len(window)/2 {
		return i + 1
	}

	cut := len(window)
	start := cut
	for start > 0 && !utf8.RuneStart(window[start-1]) {
		start--
	}
	if start > 0 {
		if r, size := utf8.DecodeRuneInString(window[start-1:]); r == utf8.RuneError && size == 1 {
			cut = start - 1
		}
	}
	if cut == 0 {
		return len(window)
	}
	return cut
}
