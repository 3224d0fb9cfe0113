package impl

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/services/database"
	"github.com/byerlikaya/SmartRAG-sub014/services/storage"
)

// hangGateway blocks embedding probes until the probe deadline fires.
type hangGateway struct {
	embedGateway
}

func (g *hangGateway) GenerateEmbedding(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestHealthService_AllDependenciesHealthy(t *testing.T) {
	svc := NewHealthService(
		&embedGateway{},
		storage.NewMemoryDocumentStore(),
		storage.NewMemoryConversationStore(0),
		crmCatalog(t),
		zap.NewNop(),
	)

	report := svc.Check(context.Background())

	assert.True(t, report.Healthy)
	assert.True(t, report.Ai.Healthy)
	assert.True(t, report.Storage.Healthy)
	assert.True(t, report.Conversation.Healthy)
	assert.False(t, report.CheckedAt.IsZero())

	require.Len(t, report.Databases, 1)
	assert.Equal(t, "CRM", report.Databases[0].Name)
	assert.True(t, report.Databases[0].Healthy)
	assert.Empty(t, report.Databases[0].Message, "analyzed database needs no caveat")
}

func TestHealthService_UnanalyzedDatabaseGetsCaveat(t *testing.T) {
	// Reachable sqlite database that was never refreshed: the probe
	// connects but the catalog has no tables for it yet.
	path := filepath.Join(t.TempDir(), "pending.db")
	cfg := &config.Config{Databases: []config.DatabaseConnectionConfig{
		{ID: "pending", Name: "Pending", Type: "SQLite", ConnectionString: path, Enabled: true},
	}}
	catalog, err := database.NewSchemaCatalog(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	svc := NewHealthService(
		&embedGateway{},
		storage.NewMemoryDocumentStore(),
		storage.NewMemoryConversationStore(0),
		catalog,
		zap.NewNop(),
	)

	report := svc.Check(context.Background())

	require.Len(t, report.Databases, 1)
	assert.True(t, report.Databases[0].Healthy)
	assert.Equal(t, "connected, schema not analyzed yet", report.Databases[0].Message)
	assert.True(t, report.Healthy)
}

func TestHealthService_ProviderFailureDoesNotHideOtherProbes(t *testing.T) {
	svc := NewHealthService(
		&embedGateway{itemErr: assertableError("embedding endpoint down")},
		storage.NewMemoryDocumentStore(),
		storage.NewMemoryConversationStore(0),
		emptyCatalog(t),
		zap.NewNop(),
	)

	report := svc.Check(context.Background())

	assert.False(t, report.Healthy)
	assert.False(t, report.Ai.Healthy)
	assert.Contains(t, report.Ai.Message, "embedding endpoint down")
	assert.True(t, report.Storage.Healthy, "storage probe still ran")
	assert.True(t, report.Conversation.Healthy, "conversation probe still ran")
}

func TestHealthService_UnreachableDatabaseFailsAggregate(t *testing.T) {
	// sqlite cannot create a file inside a directory that does not
	// exist, so this connection pings as dead.
	cfg := &config.Config{Databases: []config.DatabaseConnectionConfig{
		{ID: "dead", Name: "Dead", Type: "SQLite",
			ConnectionString: filepath.Join(t.TempDir(), "missing", "dead.db"), Enabled: true},
	}}
	catalog, err := database.NewSchemaCatalog(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	svc := NewHealthService(
		&embedGateway{},
		storage.NewMemoryDocumentStore(),
		storage.NewMemoryConversationStore(0),
		catalog,
		zap.NewNop(),
	)

	report := svc.Check(context.Background())

	assert.False(t, report.Healthy)
	assert.True(t, report.Ai.Healthy)
	require.Len(t, report.Databases, 1)
	assert.False(t, report.Databases[0].Healthy)
	assert.NotEmpty(t, report.Databases[0].Message)
}

func TestHealthService_ProbeDeadlineBoundsSlowDependencies(t *testing.T) {
	svc := &healthServiceImpl{
		gateway:       &hangGateway{},
		documents:     storage.NewMemoryDocumentStore(),
		conversations: storage.NewMemoryConversationStore(0),
		catalog:       emptyCatalog(t),
		logger:        zap.NewNop(),
		probeTimeout:  20 * time.Millisecond,
	}

	start := time.Now()
	report := svc.Check(context.Background())

	assert.False(t, report.Ai.Healthy)
	assert.Contains(t, report.Ai.Message, "context deadline exceeded")
	assert.Less(t, time.Since(start), 5*time.Second, "the probe deadline cut the hang short")
	assert.True(t, report.Storage.Healthy)
}
