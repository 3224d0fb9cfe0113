package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/models"
	"github.com/byerlikaya/SmartRAG-sub014/services"
	"github.com/byerlikaya/SmartRAG-sub014/services/database"
)

type stubHealth struct {
	report services.HealthReport
}

func (s *stubHealth) Check(context.Context) services.HealthReport { return s.report }

func adminRouter(h *AdminHandlers) *gin.Engine {
	router := gin.New()
	admin := router.Group("/admin")
	{
		admin.GET("/settings", h.GetSettings)
		admin.GET("/connections", h.GetConnections)
		admin.GET("/health", h.GetHealth)
		admin.GET("/schemas", h.GetSchemas)
		admin.POST("/query-analysis", h.AnalyzeQuery)
	}
	return router
}

// salesCatalog builds a refreshed catalog over one throwaway sqlite file.
func salesCatalog(t *testing.T) *database.SchemaCatalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sales.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE Orders (Id INTEGER PRIMARY KEY, Total REAL)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cfg := &config.Config{Databases: []config.DatabaseConnectionConfig{
		{ID: "sales", Name: "Sales", Type: "SQLite", ConnectionString: path, Enabled: true},
	}}
	catalog, err := database.NewSchemaCatalog(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })
	require.NoError(t, catalog.Refresh(context.Background()))
	return catalog
}

func TestGetSettings_MasksSecrets(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "0.0.0.0", Port: 8080},
		AI: config.AIConfig{
			Provider: "openai",
			OpenAI:   config.ProviderSettings{APIKey: "sk-live-secret", Model: "gpt-4o-mini"},
		},
		Redis: config.RedisConfig{Host: "localhost", Password: "hunter2"},
		Databases: []config.DatabaseConnectionConfig{
			{ID: "crm", Name: "CRM", Type: "SQLite", ConnectionString: "/data/crm.db", Enabled: true},
		},
	}

	catalog, err := database.NewSchemaCatalog(&config.Config{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	router := adminRouter(NewAdminHandlers(cfg, catalog, &stubHealth{}, &stubOrchestrator{}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/settings", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)

	ai := body["ai"].(map[string]any)
	openai := ai["openai"].(map[string]any)
	assert.Equal(t, "***", openai["api_key"], "api keys never leave the process")
	assert.Equal(t, "gpt-4o-mini", openai["model"], "non-secret values pass through")

	redisCfg := body["redis"].(map[string]any)
	assert.Equal(t, "***", redisCfg["password"])

	databases := body["databases"].([]any)
	first := databases[0].(map[string]any)
	assert.Equal(t, "***", first["connectionString"])
	assert.Equal(t, "CRM", first["name"])

	// Unset secrets stay empty so the caller can tell configured from
	// unconfigured.
	anthropic := ai["anthropic"].(map[string]any)
	assert.Equal(t, "", anthropic["api_key"])
}

func TestGetConnections(t *testing.T) {
	router := adminRouter(NewAdminHandlers(&config.Config{}, salesCatalog(t), &stubHealth{}, &stubOrchestrator{}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/connections", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(1), body["count"])

	connections := body["connections"].([]any)
	first := connections[0].(map[string]any)
	assert.Equal(t, "Sales", first["name"])
	assert.Equal(t, true, first["isValid"])
	assert.Equal(t, float64(1), first["tableCount"])
}

func TestGetHealth(t *testing.T) {
	t.Run("healthy report returns 200", func(t *testing.T) {
		health := &stubHealth{report: services.HealthReport{Healthy: true, CheckedAt: time.Now()}}
		catalog, err := database.NewSchemaCatalog(&config.Config{}, zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { catalog.Close() })

		router := adminRouter(NewAdminHandlers(&config.Config{}, catalog, health, &stubOrchestrator{}))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decodeBody(t, w)["healthy"])
	})

	t.Run("unhealthy report returns 503", func(t *testing.T) {
		health := &stubHealth{report: services.HealthReport{
			Healthy: false,
			Ai:      services.ProbeResult{Healthy: false, Message: "provider unreachable"},
		}}
		catalog, err := database.NewSchemaCatalog(&config.Config{}, zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { catalog.Close() })

		router := adminRouter(NewAdminHandlers(&config.Config{}, catalog, health, &stubOrchestrator{}))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, false, decodeBody(t, w)["healthy"])
	})
}

func TestGetSchemas(t *testing.T) {
	router := adminRouter(NewAdminHandlers(&config.Config{}, salesCatalog(t), &stubHealth{}, &stubOrchestrator{}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/schemas", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(1), body["count"])

	schemas := body["schemas"].([]any)
	first := schemas[0].(map[string]any)
	assert.Equal(t, "sales", first["databaseId"])

	tables := first["tables"].([]any)
	require.Len(t, tables, 1)
	assert.Equal(t, "Orders", tables[0].(map[string]any)["name"])
}

func TestAnalyzeQuery(t *testing.T) {
	catalog, err := database.NewSchemaCatalog(&config.Config{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	t.Run("returns the routing decision", func(t *testing.T) {
		orch := &stubOrchestrator{analysis: &models.QueryAnalysisResponse{
			IsConversation: false,
			Intent: &models.QueryIntent{
				Query:      "total revenue by region",
				Confidence: 0.8,
				DatabaseIntents: []models.DatabaseQueryIntent{
					{DatabaseID: "sales", DatabaseName: "Sales", GeneratedSql: "SELECT Region, SUM(Total) FROM Orders GROUP BY Region"},
				},
			},
			AnalyzedAt: time.Now().UTC(),
		}}
		router := adminRouter(NewAdminHandlers(&config.Config{}, catalog, &stubHealth{}, orch))

		w := postJSON(router, "/admin/query-analysis", `{"query": "total revenue by region"}`)

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, false, body["isConversation"])
		intent := body["intent"].(map[string]any)
		assert.Equal(t, 0.8, intent["confidence"])
		dbIntents := intent["databaseIntents"].([]any)
		require.Len(t, dbIntents, 1)
		assert.Contains(t, dbIntents[0].(map[string]any)["generatedSql"], "SELECT")
		assert.Equal(t, []string{"total revenue by region"}, orch.queries)
	})

	t.Run("missing query is rejected", func(t *testing.T) {
		orch := &stubOrchestrator{}
		router := adminRouter(NewAdminHandlers(&config.Config{}, catalog, &stubHealth{}, orch))

		w := postJSON(router, "/admin/query-analysis", `{}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, orch.queries)
	})

	t.Run("validation errors map to 400", func(t *testing.T) {
		orch := &stubOrchestrator{err: models.NewValidationError("query must not be empty")}
		router := adminRouter(NewAdminHandlers(&config.Config{}, catalog, &stubHealth{}, orch))

		w := postJSON(router, "/admin/query-analysis", `{"query": "   "}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "query must not be empty", decodeBody(t, w)["error"])
	})
}
