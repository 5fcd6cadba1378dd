// Package chunker splits cleaned article text into overlapping
// fixed-size windows, the unit of embedding and retrieval.
package chunker

import (
	"regexp"
	"strings"
)

// DefaultSize is the default maximum number of characters per chunk.
const DefaultSize = 950

// DefaultOverlap is the default number of characters shared between
// consecutive chunks.
const DefaultOverlap = 200

var (
	trailingBlanks = regexp.MustCompile(`[ \t]+\n`)
	manyNewlines   = regexp.MustCompile(`\n{3,}`)
)

// Chunker produces deterministic overlapping windows over text.
// Re-chunking identical input with identical configuration always yields
// identical output.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithSize sets the maximum characters per chunk.
func WithSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the characters shared between consecutive chunks.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a Chunker. Overlap is always clamped below size so the
// window advances on every step.
func New(opts ...Option) *Chunker {
	c := &Chunker{size: DefaultSize, overlap: DefaultOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size - 1
	}
	return c
}

// Clean normalizes raw article text before windowing: carriage returns
// dropped, trailing blanks before newlines removed, runs of three or
// more newlines collapsed to two, surrounding whitespace trimmed.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r", "")
	text = trailingBlanks.ReplaceAllString(text, "\n")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Chunk splits text into windows of at most size characters, each
// consecutive pair overlapping by the configured amount. Empty or
// whitespace-only windows are dropped.
func (c *Chunker) Chunk(text string) []string {
	cleaned := Clean(text)
	if cleaned == "" {
		return nil
	}

	runes := []rune(cleaned)
	if len(runes) <= c.size {
		return []string{cleaned}
	}

	chunks := make([]string, 0, len(runes)/(c.size-c.overlap)+1)
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		if slice := strings.TrimSpace(string(runes[start:end])); slice != "" {
			chunks = append(chunks, slice)
		}
		if end == len(runes) {
			break
		}
		start = end - c.overlap
	}
	return chunks
}
