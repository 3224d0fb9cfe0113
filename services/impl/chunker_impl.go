package impl

import (
	"unicode"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/models"
	"github.com/byerlikaya/SmartRAG-sub014/services"
)

// chunkerImpl cuts text into windows of at most maxSize characters that
// advance by maxSize-overlap, realigning each cut backwards to the
// nearest paragraph break, sentence end, or whitespace within lookback
// characters. Offsets are rune offsets into the original text.
type chunkerImpl struct {
	minSize  int
	maxSize  int
	overlap  int
	lookback int
}

func NewChunker(cfg *config.ChunkingConfig) services.Chunker {
	c := &chunkerImpl{
		minSize:  cfg.MinChunkSize,
		maxSize:  cfg.MaxChunkSize,
		overlap:  cfg.ChunkOverlap,
		lookback: cfg.BoundaryLookback,
	}
	if c.maxSize <= 0 {
		c.maxSize = 1000
	}
	if c.minSize <= 0 || c.minSize > c.maxSize {
		c.minSize = c.maxSize / 10
	}
	if c.overlap < 0 {
		c.overlap = 0
	}
	if c.overlap >= c.maxSize {
		c.overlap = c.maxSize / 5
	}
	if c.lookback <= 0 {
		c.lookback = 100
	}
	return c
}

func (c *chunkerImpl) Chunk(text string) []models.DocumentChunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.maxSize {
		return []models.DocumentChunk{{
			Content:       text,
			ChunkIndex:    0,
			StartPosition: 0,
			EndPosition:   n,
		}}
	}

	var chunks []models.DocumentChunk
	start := 0
	for start < n {
		end := start + c.maxSize
		if end >= n {
			end = n
		} else {
			end = c.realign(runes, start, end)
		}

		chunks = append(chunks, models.DocumentChunk{
			Content:       string(runes[start:end]),
			ChunkIndex:    len(chunks),
			StartPosition: start,
			EndPosition:   end,
		})
		if end == n {
			break
		}

		next := end - c.overlap
		if next <= start {
			// Overlap would stall the window; step without it.
			next = end
		}
		start = next
	}
	return chunks
}

// realign walks backwards from the hard cut looking for a paragraph
// break, then a sentence end, then any whitespace. The search floor keeps
// the chunk at least minSize long and within the lookback window.
func (c *chunkerImpl) realign(runes []rune, start, end int) int {
	floor := end - c.lookback
	if m := start + c.minSize; m > floor {
		floor = m
	}
	if floor >= end {
		return end
	}

	for i := end - 1; i > floor; i-- {
		if runes[i-1] == '\n' && runes[i] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i > floor; i-- {
		r := runes[i-1]
		if (r == '.' || r == '!' || r == '?') && unicode.IsSpace(runes[i]) {
			return i
		}
	}
	for i := end - 1; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
