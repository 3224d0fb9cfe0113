package impl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/services"
)

const (
	// embeddingCachePrefix namespaces embedding keys in Redis.
	embeddingCachePrefix = "embedding"

	// defaultEmbeddingCacheTTL applies when no TTL is configured.
	defaultEmbeddingCacheTTL = time.Hour
)

// EmbeddingCacheKey derives the cache key for one text under one provider
// and model. Different models must never share vectors.
func EmbeddingCacheKey(provider, model, text string) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// embeddingCacheImpl memoizes embedding vectors in Redis when a client is
// provided, in a TTL-checked map otherwise. A disabled cache misses on
// every lookup and drops every write.
type embeddingCacheImpl struct {
	redis   *redis.Client
	ttl     time.Duration
	enabled bool

	mu      sync.RWMutex
	entries map[string]embeddingCacheEntry
}

type embeddingCacheEntry struct {
	vector    []float32
	expiresAt time.Time
}

func NewEmbeddingCache(redisClient *redis.Client, cfg *config.RedisConfig) services.EmbeddingCache {
	cache := &embeddingCacheImpl{
		redis:   redisClient,
		enabled: cfg.EnableEmbeddingCache,
		ttl:     time.Duration(cfg.EmbeddingCacheTTL) * time.Second,
	}
	if cache.ttl <= 0 {
		cache.ttl = defaultEmbeddingCacheTTL
	}
	if redisClient == nil {
		cache.entries = make(map[string]embeddingCacheEntry)
	}
	return cache
}

func (c *embeddingCacheImpl) Get(ctx context.Context, key string) ([]float32, bool) {
	if !c.enabled {
		return nil, false
	}

	if c.redis != nil {
		data, err := c.redis.Get(ctx, c.prefixKey(key)).Bytes()
		if err != nil {
			return nil, false
		}
		var vector []float32
		if err := json.Unmarshal(data, &vector); err != nil {
			// Invalid cache data, drop it.
			c.redis.Del(ctx, c.prefixKey(key))
			return nil, false
		}
		return vector, true
	}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.vector, true
}

func (c *embeddingCacheImpl) Set(ctx context.Context, key string, embedding []float32) error {
	if !c.enabled || len(embedding) == 0 {
		return nil
	}

	if c.redis != nil {
		data, err := json.Marshal(embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		return c.redis.Set(ctx, c.prefixKey(key), data, c.ttl).Err()
	}

	c.mu.Lock()
	c.entries[key] = embeddingCacheEntry{vector: embedding, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *embeddingCacheImpl) Clear(ctx context.Context) error {
	if c.redis != nil {
		var cursor uint64
		for {
			keys, next, err := c.redis.Scan(ctx, cursor, embeddingCachePrefix+":*", 100).Result()
			if err != nil {
				return fmt.Errorf("failed to scan embedding cache keys: %w", err)
			}
			if len(keys) > 0 {
				if err := c.redis.Del(ctx, keys...).Err(); err != nil {
					return fmt.Errorf("failed to delete embedding cache keys: %w", err)
				}
			}
			cursor = next
			if cursor == 0 {
				return nil
			}
		}
	}

	c.mu.Lock()
	c.entries = make(map[string]embeddingCacheEntry)
	c.mu.Unlock()
	return nil
}

func (c *embeddingCacheImpl) prefixKey(key string) string {
	return embeddingCachePrefix + ":" + key
}
