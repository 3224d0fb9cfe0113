package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// Chunker splits text into overlap-preserving chunks with original-text
// character offsets. Content, ChunkIndex, StartPosition, and EndPosition
// are populated; identity fields are assigned by the upload path.
type Chunker interface {
	Chunk(text string) []models.DocumentChunk
}

// EmbeddingEngine batch-embeds chunks through the gateway with cache
// lookups. A chunk is never partially embedded: on failure its vector
// stays empty and the document is stored anyway.
type EmbeddingEngine interface {
	EmbedChunks(ctx context.Context, chunks []models.DocumentChunk) ([]models.DocumentChunk, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// UploadRequest carries one file through the ingestion pipeline.
type UploadRequest struct {
	FileName    string
	ContentType string
	Content     []byte
	UploadedBy  string
	Language    string
	Metadata    map[string]string
}

// DocumentService is the ingestion and listing facade used by the HTTP
// handlers and the file watcher: parse, chunk, embed, store, and the
// hash-based duplicate check.
type DocumentService interface {
	UploadDocument(ctx context.Context, req UploadRequest) (*models.Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	GetDocumentChunks(ctx context.Context, id uuid.UUID) ([]models.DocumentChunk, error)
	ListDocuments(ctx context.Context, skip, take int, schemaDocuments bool) (*models.DocumentListResponse, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	DeleteAllDocuments(ctx context.Context) error
	FindByFileHash(ctx context.Context, hash string) (*models.Document, error)
	SearchChunks(ctx context.Context, query string, maxResults int) ([]models.DocumentChunk, error)
	SupportedTypes() []models.SupportedFileType
}
