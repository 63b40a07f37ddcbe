package ingest

import "strings"

// Chunker splits text into chunks suitable for embedding.
type Chunker interface {
	Chunk(text string) []string
}

// WordChunker splits text into fixed-size word windows with overlap. Windows
// slide by size-overlap words, so every chunk after the first repeats the
// tail of its predecessor. This keeps retrieval stable across chunk
// boundaries without any model in the loop.
type WordChunker struct {
	size    int // words per chunk
	overlap int // words shared with the previous chunk
}

// ChunkerOption configures a WordChunker.
type ChunkerOption func(*WordChunker)

// WithChunkSize sets the window size in words (default 500).
func WithChunkSize(n int) ChunkerOption {
	return func(c *WordChunker) { c.size = n }
}

// WithChunkOverlap sets the overlap in words (default 50). Overlap is
// clamped below the window size.
func WithChunkOverlap(n int) ChunkerOption {
	return func(c *WordChunker) { c.overlap = n }
}

// NewWordChunker creates a WordChunker with the given options.
func NewWordChunker(opts ...ChunkerOption) *WordChunker {
	c := &WordChunker{size: 500, overlap: 50}
	for _, o := range opts {
		o(c)
	}
	if c.size < 1 {
		c.size = 1
	}
	if c.overlap >= c.size {
		c.overlap = c.size - 1
	}
	if c.overlap < 0 {
		c.overlap = 0
	}
	return c
}

// Chunk splits text into overlapping word windows. Whitespace runs collapse
// to single spaces inside each chunk. Empty input yields no chunks.
func (c *WordChunker) Chunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= c.size {
		return []string{strings.Join(words, " ")}
	}

	stride := c.size - c.overlap
	var chunks []string
	for start := 0; start < len(words); start += stride {
		end := start + c.size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
