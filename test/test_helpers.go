package test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/handlers"
	"github.com/byerlikaya/SmartRAG-sub014/models"
	"github.com/byerlikaya/SmartRAG-sub014/services"
	"github.com/byerlikaya/SmartRAG-sub014/services/database"
	"github.com/byerlikaya/SmartRAG-sub014/services/impl"
	"github.com/byerlikaya/SmartRAG-sub014/services/parser"
	"github.com/byerlikaya/SmartRAG-sub014/services/storage"
)

// scriptedCall records one text generation request for later inspection.
type scriptedCall struct {
	Kind    string // intent, sql, or answer
	Prompt  string
	System  string
	History string
}

// routedGateway replaces the real AI gateway with scripted replies. Text
// requests are routed to a reply queue by the system message the caller
// built: the classifier, the SQL generator, and the synthesizer each open
// with a distinct instruction, so the fake never depends on call order
// within a turn. Embeddings are deterministic letter-frequency vectors,
// which keeps cosine ranking meaningful without a provider.
type routedGateway struct {
	mu sync.Mutex

	intentReplies []string
	sqlReplies    []string
	answerReplies []string

	calls []scriptedCall
}

func (g *routedGateway) queueIntent(replies ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intentReplies = append(g.intentReplies, replies...)
}

func (g *routedGateway) queueSQL(replies ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sqlReplies = append(g.sqlReplies, replies...)
}

func (g *routedGateway) queueAnswer(replies ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.answerReplies = append(g.answerReplies, replies...)
}

func (g *routedGateway) GenerateText(_ context.Context, req services.TextRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	kind, queue := "answer", &g.answerReplies
	switch {
	case strings.HasPrefix(req.SystemMessage, "You are a query router"):
		kind, queue = "intent", &g.intentReplies
	case strings.HasPrefix(req.SystemMessage, "You are a SQL generation engine"):
		kind, queue = "sql", &g.sqlReplies
	}
	g.calls = append(g.calls, scriptedCall{
		Kind:    kind,
		Prompt:  req.Prompt,
		System:  req.SystemMessage,
		History: req.History,
	})

	if len(*queue) == 0 {
		return "", fmt.Errorf("no scripted %s reply left (call %d)", kind, len(g.calls))
	}
	reply := (*queue)[0]
	*queue = (*queue)[1:]
	return reply, nil
}

func (g *routedGateway) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	return letterVector(text), nil
}

func (g *routedGateway) GenerateEmbeddingsBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = letterVector(text)
	}
	return out, nil
}

func (g *routedGateway) ProviderName() string { return "scripted" }
func (g *routedGateway) ModelName() string    { return "scripted-model" }

// textCalls returns the recorded generation requests of one kind, or all
// of them when kind is empty.
func (g *routedGateway) textCalls(kind string) []scriptedCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]scriptedCall, 0, len(g.calls))
	for _, c := range g.calls {
		if kind == "" || c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// letterVector maps text onto a fixed 8-dimensional letter-bucket count.
// Components are never negative, so any two non-empty texts have positive
// cosine similarity and semantic ranking stays total.
func letterVector(text string) []float32 {
	v := make([]float32, 8)
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			v[int(r)%8]++
		}
	}
	return v
}

// smallTalkVerdict is the classifier reply for a conversational message.
func smallTalkVerdict(answer string) string {
	return marshalJSON(map[string]any{
		"isConversation":       true,
		"conversationalAnswer": answer,
		"confidence":           0.95,
		"reasoning":            "greeting, no retrieval needed",
	})
}

// retrievalVerdict is the classifier reply for a retrieval question,
// optionally routed to databases built with databaseTarget.
func retrievalVerdict(databases ...map[string]any) string {
	if databases == nil {
		databases = []map[string]any{}
	}
	return marshalJSON(map[string]any{
		"isConversation": false,
		"understanding":  "the user asks about stored data",
		"confidence":     0.9,
		"reasoning":      "retrieval keywords present",
		"databases":      databases,
	})
}

func databaseTarget(name string, tables ...string) map[string]any {
	return map[string]any{
		"databaseName":   name,
		"requiredTables": tables,
		"purpose":        "answer the question",
		"priority":       1,
	}
}

// sqlPlan is the SQL generator reply carrying one statement per database.
func sqlPlan(queries map[string]string) string {
	type generated struct {
		DatabaseID string `json:"databaseId"`
		Sql        string `json:"sql"`
	}
	plan := struct {
		Queries []generated `json:"queries"`
	}{}
	for id, stmt := range queries {
		plan.Queries = append(plan.Queries, generated{DatabaseID: id, Sql: stmt})
	}
	return marshalJSON(plan)
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// ragStack wires the full service graph the way cmd/main.go does, with the
// scripted gateway in place of real providers, and serves the same route
// table through an in-process gin engine.
type ragStack struct {
	cfg          *config.Config
	gateway      *routedGateway
	router       *gin.Engine
	stores       *storage.Stores
	catalog      *database.SchemaCatalog
	documents    services.DocumentService
	orchestrator services.QueryOrchestrator
}

// stackConfig is the baseline test configuration: memory stores, document
// and database search on, no MCP, no file watcher.
func stackConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{BasePath: ""},
		AI: config.AIConfig{
			Provider:           "scripted",
			EmbeddingBatchSize: 8,
			MaxRetryAttempts:   1,
		},
		Storage:      config.StorageConfig{Provider: "memory"},
		Conversation: config.ConversationConfig{Provider: "memory", MaxConversationLength: 8000},
		Chunking: config.ChunkingConfig{
			MinChunkSize:     40,
			MaxChunkSize:     400,
			ChunkOverlap:     40,
			BoundaryLookback: 40,
		},
		Query: config.QueryConfig{
			MaxResults:          5,
			MaxContextChars:     24000,
			QueryTimeoutSeconds: 10,
			MaxRowsPerQuery:     50,
			ConfidenceThreshold: 0.6,
		},
		Redis: config.RedisConfig{EnableEmbeddingCache: true},
		Features: config.FeatureFlags{
			EnableDocumentSearch:     true,
			EnableDatabaseSearch:     true,
			AssumeDocumentsCanAnswer: true,
		},
	}
}

func newRagStack(t *testing.T, cfg *config.Config) *ragStack {
	t.Helper()
	logger := zap.NewNop()
	gateway := &routedGateway{}

	stores, err := storage.NewStores(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stores.Close() })

	catalog, err := database.NewSchemaCatalog(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = catalog.Close() })
	if len(cfg.Databases) > 0 {
		require.NoError(t, catalog.Refresh(context.Background()))
	}

	registry := parser.NewRegistry()
	chunker := impl.NewChunker(&cfg.Chunking)
	embedder := impl.NewEmbeddingEngine(gateway, impl.NewEmbeddingCache(nil, &cfg.Redis), &cfg.AI, logger)
	documents := impl.NewDocumentService(stores.Documents, registry, chunker, embedder, cfg, logger)

	coordinator := database.NewCoordinator(catalog, gateway, cfg, logger)
	analyzer := impl.NewIntentAnalyzer(gateway, catalog, logger)
	synthesizer := impl.NewAnswerSynthesizer(gateway, stores.Documents, logger)
	mcpClient := impl.NewMcpClient(logger)
	orchestrator := impl.NewQueryOrchestrator(
		cfg,
		analyzer,
		documents,
		coordinator,
		synthesizer,
		mcpClient,
		gateway,
		stores.Documents,
		stores.Conversations,
		logger,
	)
	health := impl.NewHealthService(gateway, stores.Documents, stores.Conversations, catalog, logger)

	router := gin.New()
	registerRoutes(router, cfg,
		handlers.NewDocumentHandlers(documents),
		handlers.NewChatHandlers(orchestrator, stores.Conversations),
		handlers.NewAdminHandlers(cfg, catalog, health, orchestrator),
	)

	return &ragStack{
		cfg:          cfg,
		gateway:      gateway,
		router:       router,
		stores:       stores,
		catalog:      catalog,
		documents:    documents,
		orchestrator: orchestrator,
	}
}

// registerRoutes mirrors the route table from cmd/main.go.
func registerRoutes(
	router *gin.Engine,
	cfg *config.Config,
	documentHandlers *handlers.DocumentHandlers,
	chatHandlers *handlers.ChatHandlers,
	adminHandlers *handlers.AdminHandlers,
) {
	api := router.Group(cfg.Server.BasePath + "/api")

	documents := api.Group("/documents")
	documents.GET("/schemas", documentHandlers.ListSchemaDocuments)
	documents.GET("", documentHandlers.ListDocuments)
	documents.GET("/:id", documentHandlers.GetDocument)
	documents.GET("/:id/chunks", documentHandlers.GetDocumentChunks)
	documents.POST("", documentHandlers.UploadDocument)
	documents.DELETE("/:id", documentHandlers.DeleteDocument)
	documents.DELETE("", documentHandlers.DeleteAllDocuments)
	api.GET("/upload/supported-types", documentHandlers.GetSupportedTypes)

	chat := api.Group("/chat")
	chat.POST("/messages", chatHandlers.PostMessage)
	chat.GET("/sessions", chatHandlers.ListSessions)
	chat.GET("/sessions/:id", chatHandlers.GetSession)
	chat.DELETE("/sessions", chatHandlers.DeleteAllSessions)
	chat.DELETE("/sessions/:id", chatHandlers.DeleteSession)

	api.GET("/settings", adminHandlers.GetSettings)
	api.GET("/connections", adminHandlers.GetConnections)
	api.GET("/health", adminHandlers.GetHealth)
	api.GET("/schemas", adminHandlers.GetSchemas)
	api.POST("/query-analysis", adminHandlers.AnalyzeQuery)
}

func (s *ragStack) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *ragStack) getJSON(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, http.MethodGet, path, nil, "")
}

func (s *ragStack) postJSON(t *testing.T, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return s.do(t, http.MethodPost, path, bytes.NewReader(body), "application/json")
}

// chat posts one message and decodes the typed response. The scripted
// replies for the whole turn must be queued before calling.
func (s *ragStack) chat(t *testing.T, message, sessionID string) models.ChatResponse {
	t.Helper()
	payload := map[string]string{"message": message}
	if sessionID != "" {
		payload["sessionId"] = sessionID
	}
	w := s.postJSON(t, "/api/chat/messages", payload)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// tryUpload pushes one file through the multipart endpoint and returns
// the recorder, whatever the outcome.
func (s *ragStack) tryUpload(t *testing.T, fileName, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("uploadedBy", "integration"))
	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return s.do(t, http.MethodPost, "/api/documents", &buf, mw.FormDataContentType())
}

// uploadDocument is tryUpload for the happy path: it asserts the 201 and
// returns the created document summary.
func (s *ragStack) uploadDocument(t *testing.T, fileName, content string) map[string]any {
	t.Helper()
	w := s.tryUpload(t, fileName, content)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody(t, w)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

// createSqliteDatabase seeds a throwaway database file for catalog tests.
// The driver is registered by the database package's blank imports.
func createSqliteDatabase(t *testing.T, path string, statements ...string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
}
