package storage

import (
	"sort"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// rankSemantic scores chunks by cosine similarity against the query
// embedding. Chunks without embeddings are skipped; if none carry one the
// result is empty and the caller falls back to lexical scoring.
func rankSemantic(chunks []models.DocumentChunk, queryEmbedding []float32, maxResults int) []models.DocumentChunk {
	scored := make([]models.DocumentChunk, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		c.RelevanceScore = CosineSimilarity(queryEmbedding, c.Embedding)
		scored = append(scored, c)
	}
	return topChunks(scored, maxResults)
}

// rankLexical scores chunks by query-token overlap and drops chunks with
// no overlap at all.
func rankLexical(chunks []models.DocumentChunk, query string, maxResults int) []models.DocumentChunk {
	queryTokens := Tokenize(query)
	scored := make([]models.DocumentChunk, 0, len(chunks))
	for _, c := range chunks {
		score := LexicalScore(Tokenize(c.Content), queryTokens)
		if score <= 0 {
			continue
		}
		c.RelevanceScore = score
		scored = append(scored, c)
	}
	return topChunks(scored, maxResults)
}

// topChunks orders by score descending, ties by (documentId, chunkIndex)
// ascending, and truncates to maxResults.
func topChunks(chunks []models.DocumentChunk, maxResults int) []models.DocumentChunk {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].RelevanceScore != chunks[j].RelevanceScore {
			return chunks[i].RelevanceScore > chunks[j].RelevanceScore
		}
		di, dj := chunks[i].DocumentID.String(), chunks[j].DocumentID.String()
		if di != dj {
			return di < dj
		}
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})
	if maxResults > 0 && len(chunks) > maxResults {
		chunks = chunks[:maxResults]
	}
	return chunks
}
