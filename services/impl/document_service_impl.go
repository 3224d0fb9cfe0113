package impl

import (
	"context"
	"crypto/md5"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/models"
	"github.com/byerlikaya/SmartRAG-sub014/services"
	"github.com/byerlikaya/SmartRAG-sub014/services/parser"
	"github.com/byerlikaya/SmartRAG-sub014/services/storage"
)

const defaultListPageSize = 50

// documentServiceImpl runs the ingestion pipeline: duplicate check by
// content hash, parse, chunk, embed, store. Duplicate uploads return the
// already-stored document.
type documentServiceImpl struct {
	store      storage.DocumentStore
	registry   *parser.Registry
	chunker    services.Chunker
	embedder   services.EmbeddingEngine
	logger     *zap.Logger
	maxResults int
}

func NewDocumentService(store storage.DocumentStore, registry *parser.Registry, chunker services.Chunker, embedder services.EmbeddingEngine, cfg *config.Config, logger *zap.Logger) services.DocumentService {
	maxResults := cfg.Query.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	return &documentServiceImpl{
		store:      store,
		registry:   registry,
		chunker:    chunker,
		embedder:   embedder,
		logger:     logger,
		maxResults: maxResults,
	}
}

func (s *documentServiceImpl) UploadDocument(ctx context.Context, req services.UploadRequest) (*models.Document, error) {
	if strings.TrimSpace(req.FileName) == "" {
		return nil, models.NewValidationError("fileName is required")
	}
	if strings.TrimSpace(req.UploadedBy) == "" {
		return nil, models.NewValidationError("uploadedBy is required")
	}
	if len(req.Content) == 0 {
		return nil, &models.DocumentSkippedError{FileName: req.FileName, Reason: "file is empty"}
	}

	hash := fmt.Sprintf("%x", md5.Sum(req.Content))
	existing, err := s.store.FindByFileHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicate content: %w", err)
	}
	if existing != nil {
		s.logger.Info("skipping duplicate upload",
			zap.String("fileName", req.FileName),
			zap.String("existingDocument", existing.FileName))
		return existing, nil
	}

	text, err := s.registry.Parse(ctx, req.FileName, req.Content)
	if err != nil {
		return nil, err
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = s.registry.MimeType(req.FileName)
	}

	doc := &models.Document{
		ID:          uuid.New(),
		FileName:    req.FileName,
		ContentType: contentType,
		UploadedBy:  req.UploadedBy,
		UploadedAt:  time.Now().UTC(),
		FileSize:    int64(len(req.Content)),
		Metadata:    map[string]string{models.MetaFileHash: hash},
	}
	for k, v := range req.Metadata {
		doc.Metadata[k] = v
	}
	if req.Language != "" {
		doc.Metadata[models.MetaLanguage] = req.Language
	}

	chunks := s.chunker.Chunk(text)
	docType := doc.Metadata[models.MetaDocumentType]
	for i := range chunks {
		chunks[i].ID = uuid.New()
		chunks[i].DocumentID = doc.ID
		chunks[i].DocumentType = docType
	}
	chunks, err = s.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	doc.Chunks = chunks

	if err := s.store.Upsert(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	s.logger.Info("document ingested",
		zap.String("documentId", doc.ID.String()),
		zap.String("fileName", doc.FileName),
		zap.Int("chunks", len(doc.Chunks)))
	return doc, nil
}

func (s *documentServiceImpl) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return s.store.GetByID(ctx, id)
}

func (s *documentServiceImpl) GetDocumentChunks(ctx context.Context, id uuid.UUID) ([]models.DocumentChunk, error) {
	doc, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.Chunks, nil
}

func (s *documentServiceImpl) ListDocuments(ctx context.Context, skip, take int, schemaDocuments bool) (*models.DocumentListResponse, error) {
	docs, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	var filtered []models.Document
	for _, d := range docs {
		if d.IsSchemaDocument() == schemaDocuments {
			filtered = append(filtered, d)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].UploadedAt.Equal(filtered[j].UploadedAt) {
			return filtered[i].UploadedAt.After(filtered[j].UploadedAt)
		}
		return filtered[i].FileName < filtered[j].FileName
	})

	if skip < 0 {
		skip = 0
	}
	if take <= 0 {
		take = defaultListPageSize
	}
	total := len(filtered)
	if skip > total {
		skip = total
	}
	end := min(skip+take, total)

	summaries := make([]models.DocumentSummary, 0, end-skip)
	for _, d := range filtered[skip:end] {
		summaries = append(summaries, d.Summary())
	}
	return &models.DocumentListResponse{Documents: summaries, Total: total, Skip: skip, Take: take}, nil
}

func (s *documentServiceImpl) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}

func (s *documentServiceImpl) DeleteAllDocuments(ctx context.Context) error {
	return s.store.DeleteAll(ctx)
}

func (s *documentServiceImpl) FindByFileHash(ctx context.Context, hash string) (*models.Document, error) {
	return s.store.FindByFileHash(ctx, hash)
}

func (s *documentServiceImpl) SearchChunks(ctx context.Context, query string, maxResults int) ([]models.DocumentChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, models.NewValidationError("query must not be empty")
	}
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		s.logger.Warn("query embedding failed, using lexical search", zap.Error(err))
		embedding = nil
	}

	chunks, err := s.store.SearchChunks(ctx, query, embedding, maxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	return chunks, nil
}

func (s *documentServiceImpl) SupportedTypes() []models.SupportedFileType {
	return s.registry.SupportedTypes()
}
