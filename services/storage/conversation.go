package storage

import (
	"strings"
	"sync"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// appendTurn concatenates one user/assistant exchange onto the history.
func appendTurn(history, userText, assistantText string) string {
	turn := models.UserLinePrefix + userText + "\n" + models.AssistantLinePrefix + assistantText
	if history == "" {
		return turn
	}
	return history + "\n" + turn
}

// truncateHistory drops oldest complete turns until the history fits
// maxLen. A turn is never split; a single oversized final turn is kept.
func truncateHistory(history string, maxLen int) string {
	if maxLen <= 0 {
		return history
	}
	for len(history) > maxLen {
		next := strings.Index(history, "\n"+models.UserLinePrefix)
		if next < 0 {
			break
		}
		history = history[next+1:]
	}
	return history
}

// CountTurns counts user lines, which open each turn.
func CountTurns(history string) int {
	if history == "" {
		return 0
	}
	n := 0
	if strings.HasPrefix(history, models.UserLinePrefix) {
		n++
	}
	return n + strings.Count(history, "\n"+models.UserLinePrefix)
}

// HistoryPreview returns the first user line of the history, capped at
// maxLen runes, for session listings.
func HistoryPreview(history string, maxLen int) string {
	if history == "" {
		return ""
	}
	line := history
	if idx := strings.Index(line, "\n"); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimPrefix(line, models.UserLinePrefix)
	runes := []rune(line)
	if maxLen > 0 && len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return line
}

// sessionLocks hands out one write mutex per session. The map itself is
// guarded by a global init mutex.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

func (s *sessionLocks) get(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[sessionID]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[sessionID] = l
	return l
}

func (s *sessionLocks) drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, sessionID)
}
