package extract

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunkShortTextSingleChunk(t *testing.T) {
	c := NewChunker(1000, 200)

	chunks := c.Chunk("a short paragraph")
	if len(chunks) != 1 || chunks[0] != "a short paragraph" {
		t.Errorf("Chunk = %v, want single unchanged chunk", chunks)
	}
}

func TestChunkEmptyText(t *testing.T) {
	c := NewChunker(1000, 200)

	if chunks := c.Chunk("   \n  "); chunks != nil {
		t.Errorf("Chunk(whitespace) = %v, want nil", chunks)
	}
}

func TestChunkRespectsSize(t *testing.T) {
	c := NewChunker(100, 20)
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 30)

	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch) > 100 {
			t.Errorf("chunk %d exceeds size: %d chars", i, len(ch))
		}
	}
}

func TestChunkOverlapCoversBoundaries(t *testing.T) {
	c := NewChunker(100, 40)
	text := strings.Repeat("alpha beta gamma delta epsilon zeta. ", 20)

	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// Every piece of the input must appear in some chunk.
	joined := strings.Join(chunks, " ")
	for _, word := range []string{"alpha", "epsilon", "zeta"} {
		if !strings.Contains(joined, word) {
			t.Errorf("word %q lost during chunking", word)
		}
	}
}

func TestChunkPrefersSentenceBreaks(t *testing.T) {
	c := NewChunker(80, 0)
	text := "First sentence ends here. Second sentence is a bit longer and ends here. Third one."

	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], ".") {
		t.Errorf("first chunk should end at a sentence boundary, got %q", chunks[0])
	}
}

func TestChunkUnbrokenMultibyteRun(t *testing.T) {
	c := NewChunker(50, 10)
	// CJK text with no spaces or ASCII sentence punctuation forces the raw
	// fallback cut, which must still land on rune boundaries.
	text := strings.Repeat("文書処理", 40)

	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if !utf8.ValidString(ch) {
			t.Errorf("chunk %d is not valid UTF-8: %q", i, ch)
		}
		if len(ch) > 50 {
			t.Errorf("chunk %d exceeds size: %d", i, len(ch))
		}
	}
}

func TestChunkUnbrokenRun(t *testing.T) {
	c := NewChunker(50, 10)
	text := strings.Repeat("x", 200)

	chunks := c.Chunk(text)
	if len(chunks) == 0 {
		t.Fatal("expected chunks for unbroken run")
	}
	for i, ch := range chunks {
		if len(ch) > 50 {
			t.Errorf("chunk %d exceeds size: %d", i, len(ch))
		}
	}
}
