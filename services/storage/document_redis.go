package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// RedisDocumentStore persists each document (chunks and embeddings
// included) as one JSON blob. A set under indexKey tracks document IDs and
// filehash keys give O(1) de-duplication lookups. Search loads the corpus
// and ranks in process; Redis here is durability, not an ANN index.
type RedisDocumentStore struct {
	redisClient *redis.Client
	keyPrefix   string
	hashPrefix  string
	indexKey    string
}

func NewRedisDocumentStore(redisClient *redis.Client) *RedisDocumentStore {
	return &RedisDocumentStore{
		redisClient: redisClient,
		keyPrefix:   "document:",
		hashPrefix:  "filehash:",
		indexKey:    "documents:index",
	}
}

func (s *RedisDocumentStore) docKey(id uuid.UUID) string {
	return s.keyPrefix + id.String()
}

func (s *RedisDocumentStore) hashKey(hash string) string {
	return s.hashPrefix + hash
}

func (s *RedisDocumentStore) load(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	data, err := s.redisClient.Get(ctx, s.docKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document from Redis: %w", err)
	}
	var doc models.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &doc, nil
}

func (s *RedisDocumentStore) Upsert(ctx context.Context, doc *models.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	old, err := s.load(ctx, doc.ID)
	if err != nil {
		return err
	}

	pipe := s.redisClient.TxPipeline()
	if old != nil && old.FileHash() != "" && old.FileHash() != doc.FileHash() {
		pipe.Del(ctx, s.hashKey(old.FileHash()))
	}
	pipe.Set(ctx, s.docKey(doc.ID), data, 0)
	pipe.SAdd(ctx, s.indexKey, doc.ID.String())
	if hash := doc.FileHash(); hash != "" {
		pipe.Set(ctx, s.hashKey(hash), doc.ID.String(), 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store document in Redis: %w", err)
	}
	return nil
}

func (s *RedisDocumentStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, models.NewNotFoundError("document", id.String())
	}
	return doc, nil
}

func (s *RedisDocumentStore) GetAll(ctx context.Context) ([]models.Document, error) {
	ids, err := s.redisClient.SMembers(ctx, s.indexKey).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to list documents in Redis: %w", err)
	}
	docs := make([]models.Document, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		doc, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			docs = append(docs, *doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].UploadedAt.Equal(docs[j].UploadedAt) {
			return docs[i].UploadedAt.Before(docs[j].UploadedAt)
		}
		return docs[i].ID.String() < docs[j].ID.String()
	})
	return docs, nil
}

func (s *RedisDocumentStore) Delete(ctx context.Context, id uuid.UUID) error {
	doc, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return models.NewNotFoundError("document", id.String())
	}
	pipe := s.redisClient.TxPipeline()
	pipe.Del(ctx, s.docKey(id))
	pipe.SRem(ctx, s.indexKey, id.String())
	if hash := doc.FileHash(); hash != "" {
		pipe.Del(ctx, s.hashKey(hash))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete document from Redis: %w", err)
	}
	return nil
}

func (s *RedisDocumentStore) DeleteAll(ctx context.Context) error {
	docs, err := s.GetAll(ctx)
	if err != nil {
		return err
	}
	pipe := s.redisClient.TxPipeline()
	for i := range docs {
		pipe.Del(ctx, s.docKey(docs[i].ID))
		if hash := docs[i].FileHash(); hash != "" {
			pipe.Del(ctx, s.hashKey(hash))
		}
	}
	pipe.Del(ctx, s.indexKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear documents in Redis: %w", err)
	}
	return nil
}

func (s *RedisDocumentStore) Count(ctx context.Context) (int, error) {
	n, err := s.redisClient.SCard(ctx, s.indexKey).Result()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("failed to count documents in Redis: %w", err)
	}
	return int(n), nil
}

func (s *RedisDocumentStore) FindByFileHash(ctx context.Context, hash string) (*models.Document, error) {
	if hash == "" {
		return nil, nil
	}
	raw, err := s.redisClient.Get(ctx, s.hashKey(hash)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up file hash in Redis: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document id for hash %s: %w", hash, err)
	}
	return s.load(ctx, id)
}

func (s *RedisDocumentStore) SearchChunks(ctx context.Context, query string, queryEmbedding []float32, maxResults int) ([]models.DocumentChunk, error) {
	docs, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var chunks []models.DocumentChunk
	for i := range docs {
		chunks = append(chunks, docs[i].Chunks...)
	}

	if len(queryEmbedding) > 0 {
		if results := rankSemantic(chunks, queryEmbedding, maxResults); len(results) > 0 {
			return results, nil
		}
	}
	return rankLexical(chunks, query, maxResults), nil
}

func (s *RedisDocumentStore) Name() string {
	return "redis"
}

func (s *RedisDocumentStore) Ping(ctx context.Context) error {
	if err := s.redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}
