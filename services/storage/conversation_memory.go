package storage

import (
	"context"
	"sync"
	"time"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// MemoryConversationStore keeps sessions in process memory. Used for
// development and tests; everything is lost on restart.
type MemoryConversationStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.ConversationSession
	sources  map[string][][]models.Source
	maxLen   int
	locks    *sessionLocks
}

func NewMemoryConversationStore(maxConversationLength int) *MemoryConversationStore {
	return &MemoryConversationStore{
		sessions: make(map[string]*models.ConversationSession),
		sources:  make(map[string][][]models.Source),
		maxLen:   maxConversationLength,
		locks:    newSessionLocks(),
	}
}

func (s *MemoryConversationStore) GetHistory(ctx context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := s.sessions[sessionID]; ok {
		return session.History, nil
	}
	return "", nil
}

func (s *MemoryConversationStore) Append(ctx context.Context, sessionID, userText, assistantText string) error {
	lock := s.locks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		session = &models.ConversationSession{SessionID: sessionID, CreatedAt: now}
		s.sessions[sessionID] = session
	}
	session.History = truncateHistory(appendTurn(session.History, userText, assistantText), s.maxLen)
	session.LastUpdated = now
	return nil
}

func (s *MemoryConversationStore) SetHistory(ctx context.Context, sessionID, history string) error {
	lock := s.locks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		session = &models.ConversationSession{SessionID: sessionID, CreatedAt: now}
		s.sessions[sessionID] = session
	}
	session.History = truncateHistory(history, s.maxLen)
	session.LastUpdated = now
	return nil
}

func (s *MemoryConversationStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	delete(s.sources, sessionID)
	s.locks.drop(sessionID)
	return nil
}

func (s *MemoryConversationStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*models.ConversationSession)
	s.sources = make(map[string][][]models.Source)
	return nil
}

func (s *MemoryConversationStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok, nil
}

func (s *MemoryConversationStore) AllSessionIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MemoryConversationStore) GetTimestamps(ctx context.Context, sessionID string) (time.Time, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return time.Time{}, time.Time{}, models.NewNotFoundError("session", sessionID)
	}
	return session.CreatedAt, session.LastUpdated, nil
}

func (s *MemoryConversationStore) AppendSources(ctx context.Context, sessionID string, sources []models.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[sessionID] = append(s.sources[sessionID], sources)
	return nil
}

func (s *MemoryConversationStore) GetSources(ctx context.Context, sessionID string) ([][]models.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sources[sessionID], nil
}

func (s *MemoryConversationStore) Name() string {
	return "memory"
}

func (s *MemoryConversationStore) Ping(ctx context.Context) error {
	return nil
}
