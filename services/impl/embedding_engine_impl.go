package impl

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/models"
	"github.com/byerlikaya/SmartRAG-sub014/services"
)

// embeddingEngineImpl embeds chunks in gateway batches with cache
// lookups. A chunk that cannot be embedded keeps an empty vector; the
// document is stored anyway and served by lexical search.
type embeddingEngineImpl struct {
	gateway   services.AIGateway
	cache     services.EmbeddingCache
	logger    *zap.Logger
	batchSize int
}

func NewEmbeddingEngine(gateway services.AIGateway, cache services.EmbeddingCache, cfg *config.AIConfig, logger *zap.Logger) services.EmbeddingEngine {
	batchSize := cfg.EmbeddingBatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	return &embeddingEngineImpl{
		gateway:   gateway,
		cache:     cache,
		logger:    logger,
		batchSize: batchSize,
	}
}

func (e *embeddingEngineImpl) EmbedChunks(ctx context.Context, chunks []models.DocumentChunk) ([]models.DocumentChunk, error) {
	provider, model := e.gateway.ProviderName(), e.gateway.ModelName()

	missing := make([]int, 0, len(chunks))
	for i := range chunks {
		if len(chunks[i].Embedding) > 0 {
			continue
		}
		if vector, ok := e.cache.Get(ctx, EmbeddingCacheKey(provider, model, chunks[i].Content)); ok {
			chunks[i].Embedding = vector
			continue
		}
		missing = append(missing, i)
	}

	for batchStart := 0; batchStart < len(missing); batchStart += e.batchSize {
		if err := ctx.Err(); err != nil {
			return chunks, err
		}
		indices := missing[batchStart:min(batchStart+e.batchSize, len(missing))]
		if done := e.embedBatch(ctx, chunks, indices, provider, model); done {
			break
		}
	}
	return chunks, nil
}

// embedBatch fills the given chunk indices from one batch call, falling
// back to per-item calls for indices the batch left empty. It reports
// true when the provider looks dead (batch and a per-item call both
// failed), which stops further embedding for this document.
func (e *embeddingEngineImpl) embedBatch(ctx context.Context, chunks []models.DocumentChunk, indices []int, provider, model string) bool {
	texts := make([]string, len(indices))
	for j, idx := range indices {
		texts[j] = chunks[idx].Content
	}

	vectors, batchErr := e.gateway.GenerateEmbeddingsBatch(ctx, texts)
	if batchErr != nil {
		e.logger.Warn("batch embedding failed, falling back to per-item calls",
			zap.Int("batchSize", len(texts)), zap.Error(batchErr))
	}

	for j, idx := range indices {
		if j < len(vectors) && len(vectors[j]) > 0 {
			chunks[idx].Embedding = vectors[j]
			e.cacheSet(ctx, provider, model, chunks[idx].Content, vectors[j])
			continue
		}

		vector, itemErr := e.gateway.GenerateEmbedding(ctx, chunks[idx].Content)
		if itemErr != nil || len(vector) == 0 {
			e.logger.Warn("chunk left without embedding",
				zap.Int("chunkIndex", chunks[idx].ChunkIndex), zap.Error(itemErr))
			if batchErr != nil {
				// Both paths failing means the provider is down; do not
				// hammer it once per remaining chunk.
				return true
			}
			continue
		}
		chunks[idx].Embedding = vector
		e.cacheSet(ctx, provider, model, chunks[idx].Content, vector)
	}
	return false
}

func (e *embeddingEngineImpl) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	provider, model := e.gateway.ProviderName(), e.gateway.ModelName()
	key := EmbeddingCacheKey(provider, model, text)
	if vector, ok := e.cache.Get(ctx, key); ok {
		return vector, nil
	}

	vector, err := e.gateway.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if err := e.cache.Set(ctx, key, vector); err != nil {
		e.logger.Debug("failed to cache query embedding", zap.Error(err))
	}
	return vector, nil
}

func (e *embeddingEngineImpl) cacheSet(ctx context.Context, provider, model, text string, vector []float32) {
	if err := e.cache.Set(ctx, EmbeddingCacheKey(provider, model, text), vector); err != nil {
		e.logger.Debug("failed to cache embedding", zap.Error(err))
	}
}
