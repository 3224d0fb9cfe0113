package impl

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/models"
	"github.com/byerlikaya/SmartRAG-sub014/services"
	"github.com/byerlikaya/SmartRAG-sub014/services/database"
	"github.com/byerlikaya/SmartRAG-sub014/services/storage"
)

// stubGateway returns scripted text replies in order and records every
// request, including system messages and history.
type stubGateway struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	requests []services.TextRequest
}

func (g *stubGateway) GenerateText(_ context.Context, req services.TextRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	idx := len(g.requests) - 1
	if idx < len(g.errs) && g.errs[idx] != nil {
		return "", g.errs[idx]
	}
	if idx < len(g.replies) {
		return g.replies[idx], nil
	}
	return "", fmt.Errorf("no scripted reply left")
}

func (g *stubGateway) GenerateEmbedding(context.Context, string) ([]float32, error) {
	return []float32{0.5, 0.5}, nil
}

func (g *stubGateway) GenerateEmbeddingsBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.5, 0.5}
	}
	return out, nil
}

func (g *stubGateway) ProviderName() string { return "stub" }
func (g *stubGateway) ModelName() string    { return "stub-model" }

func (g *stubGateway) recorded() []services.TextRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]services.TextRequest(nil), g.requests...)
}

// crmCatalog builds a refreshed single-database catalog over a throwaway
// sqlite file.
func crmCatalog(t *testing.T) *database.SchemaCatalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crm.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE Customers (Id INTEGER PRIMARY KEY, Name TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO Customers (Id, Name) VALUES (1, 'Acme')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cfg := &config.Config{Databases: []config.DatabaseConnectionConfig{
		{ID: "crm", Name: "CRM", Type: "SQLite", ConnectionString: path, Enabled: true},
	}}
	catalog, err := database.NewSchemaCatalog(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })
	require.NoError(t, catalog.Refresh(context.Background()))
	return catalog
}

func emptyCatalog(t *testing.T) *database.SchemaCatalog {
	t.Helper()
	catalog, err := database.NewSchemaCatalog(&config.Config{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })
	return catalog
}

func TestIntentAnalyzer_ConversationalVerdict(t *testing.T) {
	gateway := &stubGateway{replies: []string{
		`{"isConversation": true, "conversationalAnswer": "  Hi there!  "}`,
	}}
	analyzer := NewIntentAnalyzer(gateway, emptyCatalog(t), zap.NewNop())

	result, err := analyzer.Analyze(context.Background(), "hello there my friend", "")
	require.NoError(t, err)
	assert.True(t, result.IsConversation)
	assert.Equal(t, "Hi there!", result.ConversationalAnswer)
	assert.Nil(t, result.Intent)
}

func TestIntentAnalyzer_ConversationalVerdictWithoutAnswerGetsFallback(t *testing.T) {
	gateway := &stubGateway{replies: []string{`{"isConversation": true}`}}
	analyzer := NewIntentAnalyzer(gateway, emptyCatalog(t), zap.NewNop())

	result, err := analyzer.Analyze(context.Background(), "good morning", "")
	require.NoError(t, err)
	assert.True(t, result.IsConversation)
	assert.Equal(t, conversationalFallbackAnswer, result.ConversationalAnswer)
}

func TestIntentAnalyzer_RetrievalVerdictResolvesDatabases(t *testing.T) {
	gateway := &stubGateway{replies: []string{
		`{"isConversation": false, "understanding": "count customers", "confidence": 1.4,
		  "databases": [
		    {"databaseName": "crm", "requiredTables": ["Customers"], "purpose": "lookup", "priority": 0},
		    {"databaseName": "Warehouse", "requiredTables": ["Boxes"], "priority": 2}
		  ]}`,
	}}
	analyzer := NewIntentAnalyzer(gateway, crmCatalog(t), zap.NewNop())

	result, err := analyzer.Analyze(context.Background(), "how many customers do we have", "")
	require.NoError(t, err)
	assert.False(t, result.IsConversation)
	require.NotNil(t, result.Intent)
	assert.Equal(t, "count customers", result.Intent.Understanding)
	assert.Equal(t, 1.0, result.Intent.Confidence, "confidence is clamped to [0,1]")

	require.Len(t, result.Intent.DatabaseIntents, 2)
	// Case-insensitive catalog match resolves id and display name.
	assert.Equal(t, "crm", result.Intent.DatabaseIntents[0].DatabaseID)
	assert.Equal(t, "CRM", result.Intent.DatabaseIntents[0].DatabaseName)
	assert.Equal(t, 1, result.Intent.DatabaseIntents[0].Priority, "non-positive priority defaults to 1")
	// Unknown names are kept verbatim; the coordinator isolates them later.
	assert.Equal(t, "Warehouse", result.Intent.DatabaseIntents[1].DatabaseID)
	assert.Equal(t, 2, result.Intent.DatabaseIntents[1].Priority)
}

func TestIntentAnalyzer_SystemMessageListsSchemas(t *testing.T) {
	gateway := &stubGateway{replies: []string{`{"isConversation": true, "conversationalAnswer": "hi"}`}}
	analyzer := NewIntentAnalyzer(gateway, crmCatalog(t), zap.NewNop())

	_, err := analyzer.Analyze(context.Background(), "what can you do", "")
	require.NoError(t, err)

	requests := gateway.recorded()
	require.Len(t, requests, 1)
	assert.Contains(t, requests[0].SystemMessage, "Available databases:")
	assert.Contains(t, requests[0].SystemMessage, "CRM (SQLite): tables Customers")
}

func TestIntentAnalyzer_HistoryIsForwarded(t *testing.T) {
	gateway := &stubGateway{replies: []string{`{"isConversation": true, "conversationalAnswer": "hi"}`}}
	analyzer := NewIntentAnalyzer(gateway, emptyCatalog(t), zap.NewNop())

	_, err := analyzer.Analyze(context.Background(), "and the second one?", "User: first\nAssistant: answer")
	require.NoError(t, err)

	requests := gateway.recorded()
	require.Len(t, requests, 1)
	assert.Equal(t, "User: first\nAssistant: answer", requests[0].History)
}

func TestIntentAnalyzer_GatewayFailureFallsBackToHeuristics(t *testing.T) {
	gateway := &stubGateway{errs: []error{fmt.Errorf("provider down")}}
	analyzer := NewIntentAnalyzer(gateway, emptyCatalog(t), zap.NewNop())

	t.Run("greeting stays conversational", func(t *testing.T) {
		result, err := analyzer.Analyze(context.Background(), "hello", "")
		require.NoError(t, err)
		assert.True(t, result.IsConversation)
		assert.Equal(t, conversationalFallbackAnswer, result.ConversationalAnswer)
	})

	t.Run("information request becomes retrieval intent", func(t *testing.T) {
		gateway := &stubGateway{errs: []error{fmt.Errorf("provider down")}}
		analyzer := NewIntentAnalyzer(gateway, emptyCatalog(t), zap.NewNop())

		result, err := analyzer.Analyze(context.Background(), "total revenue by region", "")
		require.NoError(t, err)
		assert.False(t, result.IsConversation)
		require.NotNil(t, result.Intent)
		assert.Equal(t, 0.5, result.Intent.Confidence)
		assert.Empty(t, result.Intent.DatabaseIntents)
	})
}

func TestIntentAnalyzer_UnparseableReplyFallsBackToHeuristics(t *testing.T) {
	gateway := &stubGateway{replies: []string{"sorry, I cannot produce JSON today"}}
	analyzer := NewIntentAnalyzer(gateway, emptyCatalog(t), zap.NewNop())

	result, err := analyzer.Analyze(context.Background(), "list open invoices", "")
	require.NoError(t, err)
	assert.False(t, result.IsConversation)
	require.NotNil(t, result.Intent)
	assert.Equal(t, "list open invoices", result.Intent.Query)
}

func TestIntentAnalyzer_JSONIsExtractedFromProse(t *testing.T) {
	gateway := &stubGateway{replies: []string{
		"Here is the classification:\n```json\n{\"isConversation\": true, \"conversationalAnswer\": \"hey\"}\n```",
	}}
	analyzer := NewIntentAnalyzer(gateway, emptyCatalog(t), zap.NewNop())

	result, err := analyzer.Analyze(context.Background(), "hey", "")
	require.NoError(t, err)
	assert.True(t, result.IsConversation)
	assert.Equal(t, "hey", result.ConversationalAnswer)
}

func TestIntentAnalyzer_EmptyQueryIsRejected(t *testing.T) {
	analyzer := NewIntentAnalyzer(&stubGateway{}, emptyCatalog(t), zap.NewNop())

	_, err := analyzer.Analyze(context.Background(), "   ", "")
	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestLooksConversational(t *testing.T) {
	cases := []struct {
		query string
		want  bool
	}{
		{"hello", true},
		{"hi", true},
		{"hi!", true},
		{"merhaba", true},
		{"thanks bye", true},
		{"GOODBYE", true},
		{"", true},
		{"hello what is the revenue", false},
		{"list customers", false},
		{"hello hello hello hello", false},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			tokens := storage.Tokenize(tc.query)
			assert.Equal(t, tc.want, looksConversational(tc.query, tokens), "query %q", tc.query)
		})
	}
}
