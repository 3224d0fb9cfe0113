package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// RedisConversationStore persists sessions as JSON blobs in Redis. A set
// under indexKey tracks live session IDs so ClearAll and AllSessionIDs do
// not need SCAN.
type RedisConversationStore struct {
	redisClient *redis.Client
	keyPrefix   string
	srcPrefix   string
	indexKey    string
	maxLen      int
	ttl         time.Duration
	locks       *sessionLocks
}

func NewRedisConversationStore(redisClient *redis.Client, maxConversationLength int, sessionTTL time.Duration) *RedisConversationStore {
	return &RedisConversationStore{
		redisClient: redisClient,
		keyPrefix:   "conversation:",
		srcPrefix:   "sources:",
		indexKey:    "conversation:index",
		maxLen:      maxConversationLength,
		ttl:         sessionTTL,
		locks:       newSessionLocks(),
	}
}

func (s *RedisConversationStore) sessionKey(sessionID string) string {
	return s.keyPrefix + sessionID
}

func (s *RedisConversationStore) sourcesKey(sessionID string) string {
	return s.srcPrefix + sessionID
}

func (s *RedisConversationStore) load(ctx context.Context, sessionID string) (*models.ConversationSession, error) {
	data, err := s.redisClient.Get(ctx, s.sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}
	var session models.ConversationSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *RedisConversationStore) save(ctx context.Context, session *models.ConversationSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	pipe := s.redisClient.TxPipeline()
	pipe.Set(ctx, s.sessionKey(session.SessionID), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey, session.SessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session in Redis: %w", err)
	}
	return nil
}

func (s *RedisConversationStore) GetHistory(ctx context.Context, sessionID string) (string, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", nil
	}
	return session.History, nil
}

func (s *RedisConversationStore) Append(ctx context.Context, sessionID, userText, assistantText string) error {
	lock := s.locks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if session == nil {
		session = &models.ConversationSession{SessionID: sessionID, CreatedAt: now}
	}
	session.History = truncateHistory(appendTurn(session.History, userText, assistantText), s.maxLen)
	session.LastUpdated = now
	return s.save(ctx, session)
}

func (s *RedisConversationStore) SetHistory(ctx context.Context, sessionID, history string) error {
	lock := s.locks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if session == nil {
		session = &models.ConversationSession{SessionID: sessionID, CreatedAt: now}
	}
	session.History = truncateHistory(history, s.maxLen)
	session.LastUpdated = now
	return s.save(ctx, session)
}

func (s *RedisConversationStore) Clear(ctx context.Context, sessionID string) error {
	pipe := s.redisClient.TxPipeline()
	pipe.Del(ctx, s.sessionKey(sessionID))
	pipe.Del(ctx, s.sourcesKey(sessionID))
	pipe.SRem(ctx, s.indexKey, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	s.locks.drop(sessionID)
	return nil
}

func (s *RedisConversationStore) ClearAll(ctx context.Context) error {
	ids, err := s.redisClient.SMembers(ctx, s.indexKey).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to list sessions in Redis: %w", err)
	}
	pipe := s.redisClient.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.sessionKey(id))
		pipe.Del(ctx, s.sourcesKey(id))
	}
	pipe.Del(ctx, s.indexKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear sessions in Redis: %w", err)
	}
	return nil
}

func (s *RedisConversationStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.redisClient.Exists(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session in Redis: %w", err)
	}
	return n > 0, nil
}

func (s *RedisConversationStore) AllSessionIDs(ctx context.Context) ([]string, error) {
	ids, err := s.redisClient.SMembers(ctx, s.indexKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions in Redis: %w", err)
	}
	// Expired sessions can linger in the index; filter them out.
	live := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := s.redisClient.Exists(ctx, s.sessionKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check session in Redis: %w", err)
		}
		if n > 0 {
			live = append(live, id)
		} else {
			s.redisClient.SRem(ctx, s.indexKey, id)
		}
	}
	return live, nil
}

func (s *RedisConversationStore) GetTimestamps(ctx context.Context, sessionID string) (time.Time, time.Time, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if session == nil {
		return time.Time{}, time.Time{}, models.NewNotFoundError("session", sessionID)
	}
	return session.CreatedAt, session.LastUpdated, nil
}

func (s *RedisConversationStore) AppendSources(ctx context.Context, sessionID string, sources []models.Source) error {
	lock := s.locks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	key := s.sourcesKey(sessionID)
	var all [][]models.Source
	data, err := s.redisClient.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to get sources from Redis: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal([]byte(data), &all); err != nil {
			return fmt.Errorf("failed to unmarshal sources: %w", err)
		}
	}
	all = append(all, sources)
	encoded, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}
	if err := s.redisClient.Set(ctx, key, encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store sources in Redis: %w", err)
	}
	return nil
}

func (s *RedisConversationStore) GetSources(ctx context.Context, sessionID string) ([][]models.Source, error) {
	data, err := s.redisClient.Get(ctx, s.sourcesKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sources from Redis: %w", err)
	}
	var all [][]models.Source
	if err := json.Unmarshal([]byte(data), &all); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
	}
	return all, nil
}

func (s *RedisConversationStore) Name() string {
	return "redis"
}

func (s *RedisConversationStore) Ping(ctx context.Context) error {
	if err := s.redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}
