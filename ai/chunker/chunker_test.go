package chunker

import (
	"strings"
	"testing"
)

func TestChunkEmptyInput(t *testing.T) {
	if got := Chunk("", 100, 10); got != nil {
		t.Errorf("Chunk(\"\") = %v, want nil", got)
	}
	if got := Chunk("   \n\n  ", 100, 10); got != nil {
		t.Errorf("Chunk(blank) = %v, want nil", got)
	}
}

func TestChunkTwoParagraphScenarios(t *testing.T) {
	text := "Paragraph A.\n\nParagraph B."

	// Both paragraphs fit into one chunk.
	chunks := Chunk(text, 50, 0)
	if len(chunks) != 1 {
		t.Fatalf("Chunk(size=50) = %d chunks, want 1", len(chunks))
	}
	if chunks[0] != "Paragraph A.\n\nParagraph B." {
		t.Errorf("unexpected chunk content: %q", chunks[0])
	}

	// A smaller budget forces one chunk per paragraph.
	chunks = Chunk(text, 12, 0)
	if len(chunks) != 2 {
		t.Fatalf("Chunk(size=12) = %d chunks, want 2", len(chunks))
	}
	if chunks[0] != "Paragraph A." || chunks[1] != "Paragraph B." {
		t.Errorf("unexpected chunks: %q", chunks)
	}
}

func TestChunkSizeBound(t *testing.T) {
	text := strings.Repeat("one two three four five six seven eight nine ten.\n\n", 20)

	for _, size := range []int{10, 25, 60, 200} {
		for _, chunk := range Chunk(text, size, 0) {
			if len(chunk) > size && strings.ContainsAny(chunk, " \n") {
				t.Errorf("size=%d: chunk %q exceeds budget and is not a single word", size, chunk)
			}
		}
	}
}

func TestChunkNeverSplitsWords(t *testing.T) {
	long := strings.Repeat("x", 40)
	chunks := Chunk("short words here "+long+" more words", 10, 0)

	found := false
	for _, c := range chunks {
		for _, w := range strings.Fields(c) {
			if w == long {
				found = true
			}
			if strings.Contains(long, w) && w != long && len(w) > 10 {
				t.Errorf("word was split: %q", w)
			}
		}
	}
	if !found {
		t.Errorf("oversized word missing from output: %v", chunks)
	}
}

func TestChunkOrderPreserved(t *testing.T) {
	text := "alpha\n\nbravo\n\ncharlie\n\ndelta\n\necho"
	joined := strings.Join(Chunk(text, 12, 0), " ")

	last := -1
	for _, word := range []string{"alpha", "bravo", "charlie", "delta", "echo"} {
		idx := strings.Index(joined, word)
		if idx < 0 {
			t.Fatalf("word %q missing from chunks", word)
		}
		if idx < last {
			t.Errorf("word %q out of order", word)
		}
		last = idx
	}
}

func TestChunkIdempotent(t *testing.T) {
	// Covers paragraph accumulation, word-splitting of an oversized
	// paragraph, and the tail-merge with a following paragraph.
	text := "alpha beta gamma\n\ndelta epsilon\n\n" +
		strings.Repeat("word ", 30) + "tail\n\nfinal bit\n\nanother paragraph here"

	for _, size := range []int{15, 30, 60, 120} {
		for i, chunk := range Chunk(text, size, 0) {
			again := Chunk(chunk, size, 0)
			if len(again) != 1 || again[0] != chunk {
				t.Errorf("size=%d: boundaries drifted re-chunking chunk %d %q: got %v", size, i, chunk, again)
			}
		}
	}
}

func TestChunkOverlap(t *testing.T) {
	text := "one two three four five\n\nsix seven eight nine ten\n\neleven twelve thirteen fourteen"
	const overlap = 2

	plain := Chunk(text, 24, 0)
	if len(plain) < 2 {
		t.Fatalf("expected multiple chunks, got %v", plain)
	}

	got := Chunk(text, 24, overlap)
	if len(got) != len(plain) {
		t.Fatalf("overlap changed chunk count: %d vs %d", len(got), len(plain))
	}
	if got[0] != plain[0] {
		t.Errorf("first chunk must be untouched: %q vs %q", got[0], plain[0])
	}
	for i := 1; i < len(got); i++ {
		prevWords := strings.Fields(plain[i-1])
		tail := strings.Join(prevWords[len(prevWords)-overlap:], " ")
		want := tail + " " + plain[i]
		if got[i] != want {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want)
		}
	}
}

func TestChunkOverlapSkippedForSingleChunk(t *testing.T) {
	chunks := Chunk("just one small paragraph", 100, 5)
	if len(chunks) != 1 || chunks[0] != "just one small paragraph" {
		t.Errorf("unexpected chunks: %v", chunks)
	}
}
