package storage

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// DocumentStore persists documents with their chunks and embeddings and
// serves semantic and lexical chunk search. Implementations: memory,
// redis, sqlite (sqlite-vec).
type DocumentStore interface {
	Upsert(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	GetAll(ctx context.Context) ([]models.Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int, error)

	// FindByFileHash returns the document carrying the FileHash metadata
	// value, or nil when none exists.
	FindByFileHash(ctx context.Context, hash string) (*models.Document, error)

	// SearchChunks returns the top-k chunks for the query: cosine over
	// embeddings when queryEmbedding is usable, lexical scoring otherwise.
	SearchChunks(ctx context.Context, query string, queryEmbedding []float32, maxResults int) ([]models.DocumentChunk, error)

	Name() string
	Ping(ctx context.Context) error
}

// ConversationStore is the append-only per-session turn log. Writes are
// serialized per session; reads may run concurrently.
type ConversationStore interface {
	GetHistory(ctx context.Context, sessionID string) (string, error)
	Append(ctx context.Context, sessionID, userText, assistantText string) error
	SetHistory(ctx context.Context, sessionID, history string) error
	Clear(ctx context.Context, sessionID string) error
	ClearAll(ctx context.Context) error
	Exists(ctx context.Context, sessionID string) (bool, error)
	AllSessionIDs(ctx context.Context) ([]string, error)
	GetTimestamps(ctx context.Context, sessionID string) (createdAt, lastUpdated time.Time, err error)

	// AppendSources records the source list of one assistant turn; the
	// store keeps a list-of-lists in turn order under a derived key.
	AppendSources(ctx context.Context, sessionID string, sources []models.Source) error
	GetSources(ctx context.Context, sessionID string) ([][]models.Source, error)

	Name() string
	Ping(ctx context.Context) error
}

// CosineSimilarity returns the cosine of the angle between two vectors,
// or 0 when either has no magnitude or the dimensions differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
