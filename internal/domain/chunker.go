package domain

import (
	"strings"
)

// ChunkerVersion identifies the chunking algorithm that produced a source's
// chunks. Sources chunked under an older version are re-chunked on ingest.
type ChunkerVersion string

const (
	// ChunkerVersionV1 split on blank lines only.
	ChunkerVersionV1 ChunkerVersion = "v1"
	// ChunkerVersionV2 adds length constraints: short paragraphs are merged
	// with neighbors and long ones are split at sentence boundaries.
	ChunkerVersionV2 ChunkerVersion = "v2"
)

const (
	// MinChunkLength is the minimum chunk length in runes. Scheme pages are
	// heavy on one-line bullets ("Aadhaar card", "Income certificate") that
	// are useless as standalone retrieval units.
	MinChunkLength = 80
	// MaxChunkLength is the maximum chunk length in runes before a paragraph
	// is split at sentence boundaries.
	MaxChunkLength = 1000
)

// Chunk is one piece of a scheme source text.
type Chunk struct {
	Ordinal int
	Content string
}

// Chunker splits a scheme source text into retrieval-sized chunks.
type Chunker interface {
	Chunk(text string) ([]Chunk, error)
	Version() ChunkerVersion
}

type paragraphChunker struct{}

// NewChunker creates the default Chunker.
func NewChunker() Chunker {
	return &paragraphChunker{}
}

func (c *paragraphChunker) Version() ChunkerVersion {
	return ChunkerVersionV2
}

// Chunk splits text at blank lines, then normalizes chunk sizes. Bullet
// blocks (consecutive "- " lines with no blank line between them) stay in
// one paragraph, so a scheme's document checklist survives as a unit.
func (c *paragraphChunker) Chunk(text string) ([]Chunk, error) {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	var paragraphs []string
	for _, part := range strings.Split(normalized, "\n\n") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	merged := mergeShortChunks(paragraphs)
	merged = mergeConsecutiveShortChunks(merged)
	split := splitLongChunks(merged)

	var chunks []Chunk
	for i, content := range split {
		chunks = append(chunks, Chunk{
			Ordinal: i,
			Content: content,
		})
	}

	return chunks, nil
}
