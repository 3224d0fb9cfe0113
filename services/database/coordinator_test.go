package database

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/models"
	"github.com/byerlikaya/SmartRAG-sub014/services"
)

// fakeGateway returns scripted replies in order and records every request.
type fakeGateway struct {
	mu       sync.Mutex
	replies  []string
	requests []services.TextRequest
}

func (g *fakeGateway) GenerateText(_ context.Context, req services.TextRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if len(g.replies) == 0 {
		return "", fmt.Errorf("no scripted reply left")
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply, nil
}

func (g *fakeGateway) GenerateEmbedding(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("not scripted")
}

func (g *fakeGateway) GenerateEmbeddingsBatch(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("not scripted")
}

func (g *fakeGateway) ProviderName() string { return "fake" }
func (g *fakeGateway) ModelName() string    { return "fake-model" }

func hrFixture(t *testing.T) string {
	t.Helper()
	return newSqliteFixture(t, "hr.db",
		`CREATE TABLE Employees (Id INTEGER PRIMARY KEY, FullName TEXT NOT NULL)`,
		`INSERT INTO Employees (Id, FullName) VALUES (1, 'Jo Birch'), (2, 'Sam Hale')`,
	)
}

func newTestCoordinator(t *testing.T, gateway *fakeGateway) (*Coordinator, *SchemaCatalog) {
	t.Helper()
	cfg := &config.Config{
		Query: config.QueryConfig{QueryTimeoutSeconds: 5, MaxRowsPerQuery: 10},
		Databases: []config.DatabaseConnectionConfig{
			{ID: "sales", Name: "Sales", Type: "SQLite", ConnectionString: salesFixture(t), Enabled: true},
			{ID: "hr", Name: "HR", Type: "SQLite", ConnectionString: hrFixture(t), Enabled: true},
		},
	}
	catalog, err := NewSchemaCatalog(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })
	require.NoError(t, catalog.Refresh(context.Background()))

	return NewCoordinator(catalog, gateway, cfg, zap.NewNop()), catalog
}

func twoDatabaseIntent() *models.QueryIntent {
	return &models.QueryIntent{
		Query:      "order totals and employee names",
		Confidence: 0.9,
		DatabaseIntents: []models.DatabaseQueryIntent{
			{DatabaseID: "sales", DatabaseName: "Sales", RequiredTables: []string{"Orders", "Customers"}, Priority: 1},
			{DatabaseID: "hr", DatabaseName: "HR", RequiredTables: []string{"Employees"}, Priority: 5},
		},
	}
}

func TestCoordinator_Execute_TwoDatabases(t *testing.T) {
	gateway := &fakeGateway{replies: []string{
		`{"queries":[
			{"databaseId":"sales","sql":"SELECT c.Name, o.Amount FROM Orders o JOIN Customers c ON o.CustomerId = c.Id"},
			{"databaseId":"hr","sql":"SELECT FullName FROM Employees"}
		]}`,
	}}
	coordinator, _ := newTestCoordinator(t, gateway)
	intent := twoDatabaseIntent()

	result, err := coordinator.Execute(context.Background(), intent)
	require.NoError(t, err)
	require.Len(t, result.Results, 2)

	// Higher priority merges first.
	assert.Equal(t, "hr", result.Results[0].DatabaseID)
	assert.Equal(t, "sales", result.Results[1].DatabaseID)

	hr, sales := result.Results[0], result.Results[1]
	assert.True(t, hr.Success)
	assert.Equal(t, 2, hr.RowCount)
	assert.Contains(t, hr.Table, "Jo Birch")
	assert.True(t, sales.Success)
	assert.Equal(t, 3, sales.RowCount)
	assert.Greater(t, sales.Duration.Nanoseconds(), int64(0))

	assert.Less(t,
		strings.Index(result.Context, "=== Database: HR ==="),
		strings.Index(result.Context, "=== Database: Sales ==="))

	assert.Equal(t, 5, result.TotalRows())

	sources := result.Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, models.SourceTypeDatabase, sources[0].Type)
	assert.Equal(t, "HR", sources[0].DatabaseName)
	assert.Contains(t, sources[0].ExecutedQuery, "LIMIT 10")
	assert.Equal(t, []string{"Employees"}, sources[0].Tables)

	// The generated SQL is written back onto the intent.
	assert.Contains(t, intent.DatabaseIntents[0].GeneratedSql, "FROM Orders")
}

func TestCoordinator_Execute_IsolatesInvalidSql(t *testing.T) {
	gateway := &fakeGateway{replies: []string{
		`{"queries":[
			{"databaseId":"sales","sql":"SELECT * FROM Invoices"},
			{"databaseId":"hr","sql":"SELECT FullName FROM Employees"}
		]}`,
	}}
	coordinator, _ := newTestCoordinator(t, gateway)

	result, err := coordinator.Execute(context.Background(), twoDatabaseIntent())
	require.NoError(t, err)
	require.Len(t, result.Results, 2)

	assert.True(t, result.Results[0].Success)

	sales := result.Results[1]
	assert.False(t, sales.Success)
	assert.Contains(t, sales.Error, `"Invoices"`)

	assert.Contains(t, result.Context, "Query failed:")
	assert.Len(t, result.Sources(), 1)
}

func TestCoordinator_Execute_RejectsForbiddenStatements(t *testing.T) {
	gateway := &fakeGateway{replies: []string{
		`{"queries":[
			{"databaseId":"sales","sql":"DELETE FROM Orders"},
			{"databaseId":"hr","sql":"SELECT FullName FROM Employees"}
		]}`,
	}}
	coordinator, catalog := newTestCoordinator(t, gateway)

	result, err := coordinator.Execute(context.Background(), twoDatabaseIntent())
	require.NoError(t, err)

	sales := result.Results[1]
	assert.False(t, sales.Success)
	assert.Contains(t, sales.Error, "forbidden keyword DELETE")

	// The statement never ran.
	db, _, err := catalog.DB("sales")
	require.NoError(t, err)
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM Orders").Scan(&count))
	assert.Equal(t, 3, count)
}

func TestCoordinator_Execute_RetriesMalformedReply(t *testing.T) {
	gateway := &fakeGateway{replies: []string{
		"Of course! Here is some SQL for you.",
		`{"queries":[{"databaseId":"sales","sql":"SELECT COUNT(*) AS OrderCount FROM Orders"}]}`,
	}}
	coordinator, _ := newTestCoordinator(t, gateway)
	intent := &models.QueryIntent{
		Query:      "how many orders",
		Confidence: 0.9,
		DatabaseIntents: []models.DatabaseQueryIntent{
			{DatabaseID: "sales", DatabaseName: "Sales", RequiredTables: []string{"Orders"}, Priority: 1},
		},
	}

	result, err := coordinator.Execute(context.Background(), intent)
	require.NoError(t, err)

	require.Len(t, gateway.requests, 2)
	assert.Contains(t, gateway.requests[1].Prompt, "not valid JSON")

	require.Len(t, result.Results, 1)
	assert.True(t, result.Results[0].Success)
	assert.Equal(t, 1, result.Results[0].RowCount)
	assert.Contains(t, result.Results[0].Table, "OrderCount")
}

func TestCoordinator_Execute_FailsWhenRetryStaysMalformed(t *testing.T) {
	gateway := &fakeGateway{replies: []string{"nope", "still nope"}}
	coordinator, _ := newTestCoordinator(t, gateway)

	_, err := coordinator.Execute(context.Background(), twoDatabaseIntent())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse generated SQL")
}

func TestCoordinator_Execute_EmptyIntent(t *testing.T) {
	gateway := &fakeGateway{}
	coordinator, _ := newTestCoordinator(t, gateway)

	result, err := coordinator.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.Empty(t, result.Context)

	result, err = coordinator.Execute(context.Background(), &models.QueryIntent{Query: "hi"})
	require.NoError(t, err)
	assert.Empty(t, result.Results)

	assert.Empty(t, gateway.requests)
}

func TestCoordinator_Execute_UnknownDatabaseIntent(t *testing.T) {
	gateway := &fakeGateway{replies: []string{
		`{"queries":[{"databaseId":"warehouse","sql":"SELECT 1"}]}`,
	}}
	coordinator, _ := newTestCoordinator(t, gateway)
	intent := &models.QueryIntent{
		Query:      "stock levels",
		Confidence: 0.9,
		DatabaseIntents: []models.DatabaseQueryIntent{
			{DatabaseID: "warehouse", DatabaseName: "Warehouse", Priority: 1},
		},
	}

	result, err := coordinator.Execute(context.Background(), intent)
	require.NoError(t, err)

	require.Len(t, result.Results, 1)
	assert.False(t, result.Results[0].Success)
	assert.Contains(t, result.Results[0].Error, "not available for routing")
}

func TestCoordinator_GenerateQueries_FillsIntentWithoutExecuting(t *testing.T) {
	gateway := &fakeGateway{replies: []string{
		`{"queries":[
			{"databaseId":"sales","sql":"SELECT Amount FROM Orders"},
			{"databaseId":"hr","sql":"SELECT FullName FROM Employees"}
		]}`,
	}}
	coordinator, _ := newTestCoordinator(t, gateway)
	intent := twoDatabaseIntent()

	require.NoError(t, coordinator.GenerateQueries(context.Background(), intent))

	assert.Equal(t, "SELECT Amount FROM Orders LIMIT 10", intent.DatabaseIntents[0].GeneratedSql)
	assert.Equal(t, "SELECT FullName FROM Employees LIMIT 10", intent.DatabaseIntents[1].GeneratedSql)
	assert.Len(t, gateway.requests, 1)
}
