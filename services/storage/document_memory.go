package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// MemoryDocumentStore keeps documents and their embeddings in process
// memory. Search scans every chunk, which is fine at development scale.
type MemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[uuid.UUID]*models.Document
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[uuid.UUID]*models.Document)}
}

func cloneDocument(doc *models.Document) *models.Document {
	clone := *doc
	clone.Metadata = make(map[string]string, len(doc.Metadata))
	for k, v := range doc.Metadata {
		clone.Metadata[k] = v
	}
	clone.Chunks = make([]models.DocumentChunk, len(doc.Chunks))
	copy(clone.Chunks, doc.Chunks)
	return &clone
}

func (s *MemoryDocumentStore) Upsert(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = cloneDocument(doc)
	return nil
}

func (s *MemoryDocumentStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, models.NewNotFoundError("document", id.String())
	}
	return cloneDocument(doc), nil
}

func (s *MemoryDocumentStore) GetAll(ctx context.Context) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]models.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, *cloneDocument(doc))
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].UploadedAt.Equal(docs[j].UploadedAt) {
			return docs[i].UploadedAt.Before(docs[j].UploadedAt)
		}
		return docs[i].ID.String() < docs[j].ID.String()
	})
	return docs, nil
}

func (s *MemoryDocumentStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return models.NewNotFoundError("document", id.String())
	}
	delete(s.docs, id)
	return nil
}

func (s *MemoryDocumentStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[uuid.UUID]*models.Document)
	return nil
}

func (s *MemoryDocumentStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

func (s *MemoryDocumentStore) FindByFileHash(ctx context.Context, hash string) (*models.Document, error) {
	if hash == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.docs {
		if doc.FileHash() == hash {
			return cloneDocument(doc), nil
		}
	}
	return nil, nil
}

func (s *MemoryDocumentStore) SearchChunks(ctx context.Context, query string, queryEmbedding []float32, maxResults int) ([]models.DocumentChunk, error) {
	s.mu.RLock()
	var chunks []models.DocumentChunk
	for _, doc := range s.docs {
		chunks = append(chunks, doc.Chunks...)
	}
	s.mu.RUnlock()

	if len(queryEmbedding) > 0 {
		if results := rankSemantic(chunks, queryEmbedding, maxResults); len(results) > 0 {
			return results, nil
		}
	}
	return rankLexical(chunks, query, maxResults), nil
}

func (s *MemoryDocumentStore) Name() string {
	return "memory"
}

func (s *MemoryDocumentStore) Ping(ctx context.Context) error {
	return nil
}
