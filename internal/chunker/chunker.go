// Package chunker splits loaded documents into bounded, overlapping segments.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Chunker splits document text into chunks of at most size characters,
// where each chunk after the first repeats the trailing overlap characters
// of its predecessor. Splitting prefers natural boundaries: paragraph break,
// then sentence end, then word break, then a hard character cut.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker. size must be positive and overlap must satisfy
// 0 <= overlap < size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrConfiguration, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d",
			domain.ErrConfiguration, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split chunks a single document. Identical input always yields an identical
// chunk sequence. An empty document yields no chunks.
func (c *Chunker) Split(doc domain.Document) []domain.Chunk {
	text := doc.Text
	if text == "" {
		return nil
	}

	var chunks []domain.Chunk
	start := 0
	for {
		end := start + c.size
		if end >= len(text) {
			chunks = append(chunks, c.newChunk(doc, start, text[start:]))
			return chunks
		}

		end = c.cutPoint(text, start, end)
		chunks = append(chunks, c.newChunk(doc, start, text[start:end]))
		start = overlapStart(text, start, end, c.overlap)
	}
}

// SplitAll chunks multiple documents in order.
func (c *Chunker) SplitAll(docs []domain.Document) []domain.Chunk {
	var chunks []domain.Chunk
	for _, doc := range docs {
		chunks = append(chunks, c.Split(doc)...)
	}
	return chunks
}

func (c *Chunker) newChunk(doc domain.Document, offset int, text string) domain.Chunk {
	return domain.Chunk{
		ID:     domain.ChunkID(doc.Source, doc.Page, offset),
		Source: doc.Source,
		Page:   doc.Page,
		Offset: offset,
		Text:   text,
	}
}

// cutPoint picks the end of the chunk starting at start, given the hard
// window end hardEnd (start+size, known to be inside text). A boundary is
// only usable if it leaves the next chunk a positive amount of new text,
// i.e. the cut must land strictly after start+overlap.
func (c *Chunker) cutPoint(text string, start, hardEnd int) int {
	window := text[start:hardEnd]
	minCut := c.overlap + 1 // relative to start

	if cut := lastParagraphBreak(window); cut >= minCut {
		return start + cut
	}
	if cut := lastSentenceEnd(window); cut >= minCut {
		return start + cut
	}
	if cut := lastWordBreak(window); cut >= minCut {
		return start + cut
	}

	// Hard cut must not land inside a multi-byte rune.
	cut := runeFloor(text, hardEnd)
	if cut < start+minCut {
		return runeCeil(text, hardEnd)
	}
	return cut
}

// overlapStart positions the next chunk's start so it repeats the trailing
// overlap bytes, adjusted to a rune boundary. The result always advances
// past the previous start.
func overlapStart(text string, start, end, overlap int) int {
	next := runeFloor(text, end-overlap)
	if next <= start {
		next = runeCeil(text, end-overlap)
	}
	return next
}

// runeFloor backs i up to the nearest rune start at or before it.
func runeFloor(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// runeCeil advances i to the nearest rune start at or after it.
func runeCeil(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// lastParagraphBreak returns the cut position just after the last blank-line
// separator in the window, or -1.
func lastParagraphBreak(window string) int {
	idx := strings.LastIndex(window, "\n\n")
	if idx < 0 {
		return -1
	}
	return idx + 2
}

// lastSentenceEnd returns the cut position just after the last sentence
// terminator that is followed by whitespace, or -1.
func lastSentenceEnd(window string) int {
	for i := len(window) - 1; i > 0; i-- {
		if !isSpace(window[i]) {
			continue
		}
		switch window[i-1] {
		case '.', '!', '?':
			return i
		}
	}
	return -1
}

// lastWordBreak returns the cut position just after the last whitespace
// character in the window, or -1.
func lastWordBreak(window string) int {
	for i := len(window) - 1; i >= 0; i-- {
		if isSpace(window[i]) {
			return i + 1
		}
	}
	return -1
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
