package impl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byerlikaya/SmartRAG-sub014/config"
)

func TestChunker_ShortTextIsOneChunk(t *testing.T) {
	chunker := NewChunker(&config.ChunkingConfig{MaxChunkSize: 100})

	chunks := chunker.Chunk("short text")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 0, chunks[0].StartPosition)
	assert.Equal(t, len("short text"), chunks[0].EndPosition)
}

func TestChunker_EmptyTextHasNoChunks(t *testing.T) {
	chunker := NewChunker(&config.ChunkingConfig{MaxChunkSize: 100})
	assert.Nil(t, chunker.Chunk(""))
}

func TestChunker_WindowsOverlapAndCoverText(t *testing.T) {
	chunker := NewChunker(&config.ChunkingConfig{
		MinChunkSize:     20,
		MaxChunkSize:     80,
		ChunkOverlap:     20,
		BoundaryLookback: 30,
	})

	sentence := "The quick brown fox jumps over the lazy dog near the river bank. "
	text := strings.TrimSpace(strings.Repeat(sentence, 10))
	runes := []rune(text)

	chunks := chunker.Chunk(text)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.LessOrEqual(t, chunk.EndPosition-chunk.StartPosition, 80)
		// Offsets are rune offsets into the original text.
		assert.Equal(t, string(runes[chunk.StartPosition:chunk.EndPosition]), chunk.Content)
		if i > 0 {
			assert.Equal(t, chunks[i-1].EndPosition-20, chunk.StartPosition)
		}
	}
	assert.Equal(t, len(runes), chunks[len(chunks)-1].EndPosition)
}

func TestChunker_PrefersSentenceBoundaries(t *testing.T) {
	chunker := NewChunker(&config.ChunkingConfig{
		MinChunkSize:     10,
		MaxChunkSize:     60,
		ChunkOverlap:     0,
		BoundaryLookback: 40,
	})

	text := "First sentence ends here. Second sentence keeps going for a while. Third one too."
	chunks := chunker.Chunk(text)
	require.Greater(t, len(chunks), 1)

	// Every cut except the last lands right after a sentence end.
	for _, chunk := range chunks[:len(chunks)-1] {
		trimmed := strings.TrimRight(chunk.Content, " ")
		assert.True(t, strings.HasSuffix(trimmed, "."),
			"chunk should end at a sentence boundary, got %q", chunk.Content)
	}
}

func TestChunker_ParagraphBreakWinsOverSentence(t *testing.T) {
	chunker := NewChunker(&config.ChunkingConfig{
		MinChunkSize:     5,
		MaxChunkSize:     50,
		ChunkOverlap:     0,
		BoundaryLookback: 45,
	})

	text := "Intro line one. More text.\n\nSecond paragraph starts here and continues on."
	chunks := chunker.Chunk(text)
	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasPrefix(chunks[1].Content, "Second paragraph"),
		"second chunk should start at the paragraph break, got %q", chunks[1].Content)
}

func TestChunker_UnicodeOffsetsAreRunes(t *testing.T) {
	chunker := NewChunker(&config.ChunkingConfig{
		MinChunkSize:     2,
		MaxChunkSize:     10,
		ChunkOverlap:     2,
		BoundaryLookback: 4,
	})

	text := strings.Repeat("çğüöşé ", 6)
	runes := []rune(text)
	chunks := chunker.Chunk(text)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.Equal(t, string(runes[chunk.StartPosition:chunk.EndPosition]), chunk.Content)
	}
}

func TestChunker_DegenerateOverlapStillAdvances(t *testing.T) {
	// Overlap nearly as large as the window must not stall chunking.
	chunker := NewChunker(&config.ChunkingConfig{
		MinChunkSize:     9,
		MaxChunkSize:     10,
		ChunkOverlap:     9,
		BoundaryLookback: 2,
	})

	chunks := chunker.Chunk(strings.Repeat("a", 100))
	require.NotEmpty(t, chunks)
	assert.Less(t, len(chunks), 200)
	assert.Equal(t, 100, chunks[len(chunks)-1].EndPosition)
}
