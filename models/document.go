package models

import (
	"time"

	"github.com/google/uuid"
)

// Reserved metadata keys. Stores persist them verbatim; the upload and
// routing paths interpret them.
const (
	MetaFileHash       = "FileHash"
	MetaFilePath       = "FilePath"
	MetaCollectionName = "CollectionName"
	MetaDocumentType   = "documentType"
	MetaDatabaseType   = "databaseType"
	MetaLanguage       = "Language"
)

// SchemaDocumentType marks a document as a serialized database schema.
// Schema documents are excluded from normal listings and considered only
// by the database subsystem.
const SchemaDocumentType = "Schema"

type Document struct {
	ID          uuid.UUID         `json:"id"`
	FileName    string            `json:"fileName"`
	ContentType string            `json:"contentType"`
	UploadedBy  string            `json:"uploadedBy"`
	UploadedAt  time.Time         `json:"uploadedAt"`
	FileSize    int64             `json:"fileSize"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Chunks      []DocumentChunk   `json:"chunks,omitempty"`
}

func (d *Document) IsSchemaDocument() bool {
	return d.Metadata[MetaDocumentType] == SchemaDocumentType
}

// FileHash returns the MD5 content hash recorded at upload time, or "".
func (d *Document) FileHash() string {
	return d.Metadata[MetaFileHash]
}

// DocumentChunk is a contiguous substring of a document used as the unit
// of retrieval. StartPosition and EndPosition are character offsets into
// the original text; EndPosition > StartPosition.
type DocumentChunk struct {
	ID            uuid.UUID `json:"id"`
	DocumentID    uuid.UUID `json:"documentId"`
	ChunkIndex    int       `json:"chunkIndex"`
	Content       string    `json:"content"`
	StartPosition int       `json:"startPosition"`
	EndPosition   int       `json:"endPosition"`
	DocumentType  string    `json:"documentType,omitempty"`
	Embedding     []float32 `json:"embedding,omitempty"`

	// RelevanceScore is populated by search, never persisted.
	RelevanceScore float64 `json:"relevanceScore,omitempty"`
}

// DocumentSummary is the listing shape returned by the documents API.
type DocumentSummary struct {
	ID          uuid.UUID `json:"id"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	UploadedBy  string    `json:"uploadedBy"`
	UploadedAt  time.Time `json:"uploadedAt"`
	FileSize    int64     `json:"fileSize"`
	ChunkCount  int       `json:"chunkCount"`
	Language    string    `json:"language,omitempty"`
}

func (d *Document) Summary() DocumentSummary {
	return DocumentSummary{
		ID:          d.ID,
		FileName:    d.FileName,
		ContentType: d.ContentType,
		UploadedBy:  d.UploadedBy,
		UploadedAt:  d.UploadedAt,
		FileSize:    d.FileSize,
		ChunkCount:  len(d.Chunks),
		Language:    d.Metadata[MetaLanguage],
	}
}

type DocumentListResponse struct {
	Documents []DocumentSummary `json:"documents"`
	Total     int               `json:"total"`
	Skip      int               `json:"skip"`
	Take      int               `json:"take"`
}

// SupportedFileType describes one accepted upload format.
type SupportedFileType struct {
	Extension string `json:"extension"`
	MimeType  string `json:"mimeType"`
}
