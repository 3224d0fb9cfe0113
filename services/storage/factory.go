package storage

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/byerlikaya/SmartRAG-sub014/config"
)

// Stores bundles the document and conversation backends selected by
// configuration, plus whatever needs closing at shutdown.
type Stores struct {
	Documents     DocumentStore
	Conversations ConversationStore

	closers []func() error
}

// Close releases database handles. Safe to call once at shutdown.
func (s *Stores) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewStores builds the configured storage backends. redisClient may be nil
// when neither provider is redis.
func NewStores(cfg *config.Config, redisClient *redis.Client) (*Stores, error) {
	stores := &Stores{}

	switch cfg.Storage.Provider {
	case "memory":
		stores.Documents = NewMemoryDocumentStore()
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("storage provider redis requires a redis connection")
		}
		stores.Documents = NewRedisDocumentStore(redisClient)
	case "sqlite":
		store, err := NewSqliteDocumentStore(cfg.Storage.SqlitePath, cfg.Storage.EmbeddingDim)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite document store: %w", err)
		}
		stores.closers = append(stores.closers, store.Close)
		stores.Documents = store
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Storage.Provider)
	}

	maxLen := cfg.Conversation.MaxConversationLength
	switch cfg.Conversation.Provider {
	case "memory":
		stores.Conversations = NewMemoryConversationStore(maxLen)
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("conversation provider redis requires a redis connection")
		}
		ttl := time.Duration(cfg.Conversation.SessionTTLSeconds) * time.Second
		stores.Conversations = NewRedisConversationStore(redisClient, maxLen, ttl)
	case "sqlite":
		store, err := openSQLConversationStore(sqlite.Open(cfg.Conversation.SqlitePath), "sqlite", maxLen, stores)
		if err != nil {
			return nil, err
		}
		stores.Conversations = store
	case "postgres":
		store, err := openSQLConversationStore(postgres.Open(cfg.Conversation.PostgresDSN), "postgres", maxLen, stores)
		if err != nil {
			return nil, err
		}
		stores.Conversations = store
	default:
		return nil, fmt.Errorf("unsupported conversation provider: %s", cfg.Conversation.Provider)
	}

	return stores, nil
}

func openSQLConversationStore(dialector gorm.Dialector, name string, maxLen int, stores *Stores) (*SQLConversationStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s conversation store: %w", name, err)
	}
	store, err := NewSQLConversationStore(db, name, maxLen)
	if err != nil {
		return nil, err
	}
	stores.closers = append(stores.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	return store, nil
}
