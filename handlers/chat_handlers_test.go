package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byerlikaya/SmartRAG-sub014/models"
	"github.com/byerlikaya/SmartRAG-sub014/services/storage"
)

// stubOrchestrator returns a scripted response and records the queries and
// session ids it was handed.
type stubOrchestrator struct {
	resp     *models.RagResponse
	analysis *models.QueryAnalysisResponse
	err      error

	queries    []string
	sessionIDs []string
}

func (s *stubOrchestrator) ProcessQuery(_ context.Context, query, sessionID string) (*models.RagResponse, error) {
	s.queries = append(s.queries, query)
	s.sessionIDs = append(s.sessionIDs, sessionID)
	return s.resp, s.err
}

func (s *stubOrchestrator) AnalyzeQuery(_ context.Context, query string) (*models.QueryAnalysisResponse, error) {
	s.queries = append(s.queries, query)
	return s.analysis, s.err
}

func chatRouter(orch *stubOrchestrator, store storage.ConversationStore) *gin.Engine {
	h := NewChatHandlers(orch, store)
	router := gin.New()
	chat := router.Group("/chat")
	{
		chat.POST("/messages", h.PostMessage)
		chat.GET("/sessions", h.ListSessions)
		chat.GET("/sessions/:id", h.GetSession)
		chat.DELETE("/sessions", h.DeleteAllSessions)
		chat.DELETE("/sessions/:id", h.DeleteSession)
	}
	return router
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPostMessage(t *testing.T) {
	t.Run("generates a session id when none is sent", func(t *testing.T) {
		orch := &stubOrchestrator{resp: &models.RagResponse{Answer: "Hello!"}}
		router := chatRouter(orch, storage.NewMemoryConversationStore(0))

		w := postJSON(router, "/chat/messages", `{"message": "hi"}`)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decodeBody(t, w)
		assert.Equal(t, "Hello!", body["answer"])

		generated, ok := body["sessionId"].(string)
		require.True(t, ok)
		_, err := uuid.Parse(generated)
		assert.NoError(t, err, "generated session ids are UUIDs")
		assert.Equal(t, []string{generated}, orch.sessionIDs)
	})

	t.Run("keeps the caller's session id", func(t *testing.T) {
		orch := &stubOrchestrator{resp: &models.RagResponse{Answer: "done"}}
		router := chatRouter(orch, storage.NewMemoryConversationStore(0))

		w := postJSON(router, "/chat/messages", `{"message": "next step?", "sessionId": "abc-123"}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "abc-123", decodeBody(t, w)["sessionId"])
		assert.Equal(t, []string{"abc-123"}, orch.sessionIDs)
		assert.Equal(t, []string{"next step?"}, orch.queries)
	})

	t.Run("sources are never null", func(t *testing.T) {
		orch := &stubOrchestrator{resp: &models.RagResponse{Answer: "plain answer"}}
		router := chatRouter(orch, storage.NewMemoryConversationStore(0))

		w := postJSON(router, "/chat/messages", `{"message": "hi"}`)

		require.Equal(t, http.StatusOK, w.Code)
		sources, ok := decodeBody(t, w)["sources"].([]any)
		require.True(t, ok, "sources must decode as an array, not null")
		assert.Empty(t, sources)
	})

	t.Run("last updated comes from the conversation store", func(t *testing.T) {
		store := storage.NewMemoryConversationStore(0)
		require.NoError(t, store.Append(context.Background(), "s1", "earlier", "reply"))
		_, updated, err := store.GetTimestamps(context.Background(), "s1")
		require.NoError(t, err)

		orch := &stubOrchestrator{resp: &models.RagResponse{Answer: "ok"}}
		router := chatRouter(orch, store)

		w := postJSON(router, "/chat/messages", `{"message": "again", "sessionId": "s1"}`)

		require.Equal(t, http.StatusOK, w.Code)
		var resp models.ChatResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.WithinDuration(t, updated, resp.LastUpdated, time.Second)
	})

	t.Run("missing message is rejected", func(t *testing.T) {
		orch := &stubOrchestrator{}
		router := chatRouter(orch, storage.NewMemoryConversationStore(0))

		w := postJSON(router, "/chat/messages", `{"sessionId": "s1"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, orch.queries)
	})

	t.Run("validation failures map to 400", func(t *testing.T) {
		orch := &stubOrchestrator{err: models.NewValidationError("query must not be empty")}
		router := chatRouter(orch, storage.NewMemoryConversationStore(0))

		w := postJSON(router, "/chat/messages", `{"message": "   "}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "query must not be empty", decodeBody(t, w)["error"])
	})

	t.Run("provider failures map to 502", func(t *testing.T) {
		orch := &stubOrchestrator{err: &models.ProviderError{Provider: "openai", StatusCode: 500, Message: "upstream exploded"}}
		router := chatRouter(orch, storage.NewMemoryConversationStore(0))

		w := postJSON(router, "/chat/messages", `{"message": "hi"}`)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Contains(t, decodeBody(t, w)["details"], "upstream exploded")
	})
}

func TestListSessions(t *testing.T) {
	store := storage.NewMemoryConversationStore(0)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "s1", "what is the refund policy for enterprise customers", "30 days"))
	require.NoError(t, store.Append(ctx, "s1", "and for individuals?", "14 days"))
	require.NoError(t, store.Append(ctx, "s2", "hello", "hi"))

	router := chatRouter(&stubOrchestrator{}, store)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat/sessions", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(2), body["count"])

	sessions, ok := body["sessions"].([]any)
	require.True(t, ok)
	byID := make(map[string]map[string]any, len(sessions))
	for _, raw := range sessions {
		entry := raw.(map[string]any)
		byID[entry["sessionId"].(string)] = entry
	}

	require.Contains(t, byID, "s1")
	assert.Equal(t, float64(2), byID["s1"]["turnCount"])
	preview := byID["s1"]["preview"].(string)
	assert.True(t, strings.HasPrefix(preview, "what is the refund policy"), preview)
	assert.Equal(t, float64(1), byID["s2"]["turnCount"])
}

func TestGetSession(t *testing.T) {
	t.Run("unknown session", func(t *testing.T) {
		router := chatRouter(&stubOrchestrator{}, storage.NewMemoryConversationStore(0))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat/sessions/ghost", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Session not found", decodeBody(t, w)["error"])
	})

	t.Run("returns history, turn count, and sources", func(t *testing.T) {
		store := storage.NewMemoryConversationStore(0)
		ctx := context.Background()
		require.NoError(t, store.Append(ctx, "s1", "question", "answer"))
		require.NoError(t, store.AppendSources(ctx, "s1", []models.Source{
			{Type: models.SourceTypeDocument, FileName: "doc.pdf", RelevanceScore: 0.9},
		}))

		router := chatRouter(&stubOrchestrator{}, store)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat/sessions/s1", nil))

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, float64(1), body["turnCount"])

		session := body["session"].(map[string]any)
		assert.Equal(t, "s1", session["sessionId"])
		assert.Contains(t, session["history"], "User: question")

		sources := body["sources"].([]any)
		require.Len(t, sources, 1)
		assert.Equal(t, "doc.pdf", sources[0].(map[string]any)["fileName"])
	})
}

func TestDeleteSessions(t *testing.T) {
	t.Run("unknown session", func(t *testing.T) {
		router := chatRouter(&stubOrchestrator{}, storage.NewMemoryConversationStore(0))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/chat/sessions/ghost", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("existing session", func(t *testing.T) {
		store := storage.NewMemoryConversationStore(0)
		ctx := context.Background()
		require.NoError(t, store.Append(ctx, "s1", "q", "a"))

		router := chatRouter(&stubOrchestrator{}, store)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/chat/sessions/s1", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		exists, err := store.Exists(ctx, "s1")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("all sessions", func(t *testing.T) {
		store := storage.NewMemoryConversationStore(0)
		ctx := context.Background()
		require.NoError(t, store.Append(ctx, "s1", "q", "a"))
		require.NoError(t, store.Append(ctx, "s2", "q", "a"))

		router := chatRouter(&stubOrchestrator{}, store)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/chat/sessions", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		ids, err := store.AllSessionIDs(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}
