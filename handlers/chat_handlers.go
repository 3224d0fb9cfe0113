package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/byerlikaya/SmartRAG-sub014/models"
	"github.com/byerlikaya/SmartRAG-sub014/services"
	"github.com/byerlikaya/SmartRAG-sub014/services/storage"
)

const sessionPreviewLength = 80

type ChatHandlers struct {
	orchestrator  services.QueryOrchestrator
	conversations storage.ConversationStore
}

func NewChatHandlers(orchestrator services.QueryOrchestrator, conversations storage.ConversationStore) *ChatHandlers {
	return &ChatHandlers{orchestrator: orchestrator, conversations: conversations}
}

// PostMessage runs one full query turn: intent analysis, retrieval,
// synthesis, and conversation append. A missing sessionId starts a new
// session.
func (h *ChatHandlers) PostMessage(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	resp, err := h.orchestrator.ProcessQuery(c.Request.Context(), req.Message, sessionID)
	if err != nil {
		respondError(c, "Failed to process message", err)
		return
	}

	sources := resp.Sources
	if sources == nil {
		sources = []models.Source{}
	}

	lastUpdated := time.Now().UTC()
	if _, updated, err := h.conversations.GetTimestamps(c.Request.Context(), sessionID); err == nil && !updated.IsZero() {
		lastUpdated = updated
	}

	c.JSON(http.StatusOK, models.ChatResponse{
		Answer:      resp.Answer,
		SessionID:   sessionID,
		Sources:     sources,
		LastUpdated: lastUpdated,
	})
}

func (h *ChatHandlers) ListSessions(c *gin.Context) {
	ids, err := h.conversations.AllSessionIDs(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to list sessions", err)
		return
	}

	summaries := make([]models.SessionSummary, 0, len(ids))
	for _, id := range ids {
		history, err := h.conversations.GetHistory(c.Request.Context(), id)
		if err != nil {
			continue
		}
		createdAt, lastUpdated, err := h.conversations.GetTimestamps(c.Request.Context(), id)
		if err != nil {
			continue
		}
		summaries = append(summaries, models.SessionSummary{
			SessionID:   id,
			TurnCount:   storage.CountTurns(history),
			Preview:     storage.HistoryPreview(history, sessionPreviewLength),
			CreatedAt:   createdAt,
			LastUpdated: lastUpdated,
		})
	}
	c.JSON(http.StatusOK, gin.H{"count": len(summaries), "sessions": summaries})
}

func (h *ChatHandlers) GetSession(c *gin.Context) {
	sessionID := c.Param("id")

	exists, err := h.conversations.Exists(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, "Failed to get session", err)
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	history, err := h.conversations.GetHistory(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, "Failed to get session", err)
		return
	}
	createdAt, lastUpdated, err := h.conversations.GetTimestamps(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, "Failed to get session", err)
		return
	}
	sources, err := h.conversations.GetSources(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, "Failed to get session", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": models.ConversationSession{
			SessionID:   sessionID,
			History:     history,
			CreatedAt:   createdAt,
			LastUpdated: lastUpdated,
		},
		"turnCount": storage.CountTurns(history),
		"sources":   sources,
	})
}

func (h *ChatHandlers) DeleteSession(c *gin.Context) {
	sessionID := c.Param("id")

	exists, err := h.conversations.Exists(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, "Failed to delete session", err)
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	if err := h.conversations.Clear(c.Request.Context(), sessionID); err != nil {
		respondError(c, "Failed to delete session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session deleted successfully"})
}

func (h *ChatHandlers) DeleteAllSessions(c *gin.Context) {
	if err := h.conversations.ClearAll(c.Request.Context()); err != nil {
		respondError(c, "Failed to delete sessions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All sessions deleted successfully"})
}
