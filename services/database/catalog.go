package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/models"
)

const sampleRowLimit = 3

// SchemaCatalog owns one database/sql handle per enabled connection and
// caches the introspected schema for each. Analysis is best-effort: a
// database that fails introspection keeps status Failed and is excluded
// from routing, but its handle stays open for connection validation.
type SchemaCatalog struct {
	logger *zap.Logger

	mu      sync.RWMutex
	schemas map[string]*models.DatabaseSchemaInfo

	// conns and order are fixed at construction.
	conns map[string]*catalogConnection
	order []string
}

type catalogConnection struct {
	cfg      config.DatabaseConnectionConfig
	strategy DialectStrategy
	db       *sql.DB
}

// NewSchemaCatalog opens a handle per enabled database and seeds every
// schema entry as Pending. No connection is dialed until analysis or a
// ping touches it.
func NewSchemaCatalog(cfg *config.Config, logger *zap.Logger) (*SchemaCatalog, error) {
	c := &SchemaCatalog{
		logger:  logger,
		schemas: make(map[string]*models.DatabaseSchemaInfo),
		conns:   make(map[string]*catalogConnection),
	}

	for _, dbCfg := range cfg.EnabledDatabases() {
		strategy, err := StrategyFor(models.DatabaseType(dbCfg.Type))
		if err != nil {
			return nil, fmt.Errorf("database %q: %w", dbCfg.Name, err)
		}
		handle, err := sql.Open(strategy.DriverName(), dbCfg.ConnectionString)
		if err != nil {
			return nil, fmt.Errorf("failed to open database %q: %w", dbCfg.Name, err)
		}
		handle.SetMaxOpenConns(4)
		handle.SetMaxIdleConns(2)
		handle.SetConnMaxLifetime(30 * time.Minute)

		id := dbCfg.DatabaseID()
		c.conns[id] = &catalogConnection{cfg: dbCfg, strategy: strategy, db: handle}
		c.schemas[id] = &models.DatabaseSchemaInfo{
			DatabaseID:   id,
			DatabaseName: dbCfg.Name,
			DatabaseType: strategy.Type(),
			Status:       models.AnalysisStatusPending,
		}
		c.order = append(c.order, id)
	}

	return c, nil
}

func (c *SchemaCatalog) Close() error {
	var firstErr error
	for _, conn := range c.conns {
		if err := conn.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Refresh re-analyzes every database concurrently. Per-database failures
// are recorded on the cached entry and logged, never propagated, so one
// unreachable database cannot block the others.
func (c *SchemaCatalog) Refresh(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range c.order {
		g.Go(func() error {
			if err := c.RefreshDatabase(ctx, id); err != nil {
				c.logger.Warn("schema analysis failed",
					zap.String("databaseId", id),
					zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

// RefreshDatabase re-introspects one database and swaps its cached entry.
func (c *SchemaCatalog) RefreshDatabase(ctx context.Context, id string) error {
	conn, ok := c.conns[id]
	if !ok {
		return models.NewNotFoundError("database", id)
	}

	tables, err := introspectTables(ctx, conn)
	if err != nil {
		c.storeFailure(id, err)
		return fmt.Errorf("failed to analyze database %q: %w", conn.cfg.Name, err)
	}

	var total int64
	for i := range tables {
		count, err := c.tableRowCount(ctx, conn, tables[i].Name)
		if err != nil {
			c.storeFailure(id, err)
			return fmt.Errorf("failed to count rows of %q in %q: %w", tables[i].Name, conn.cfg.Name, err)
		}
		tables[i].RowCount = count
		total += count

		if count > 0 {
			sample, err := c.tableSample(ctx, conn, tables[i].Name)
			if err != nil {
				// Sample rendering is advisory, never fatal.
				c.logger.Debug("sample fetch failed",
					zap.String("databaseId", id),
					zap.String("table", tables[i].Name),
					zap.Error(err))
			} else {
				tables[i].SampleData = sample
			}
		}
	}

	info := &models.DatabaseSchemaInfo{
		DatabaseID:    id,
		DatabaseName:  conn.cfg.Name,
		DatabaseType:  conn.strategy.Type(),
		LastAnalyzed:  time.Now().UTC(),
		Tables:        tables,
		TotalRowCount: total,
		Status:        models.AnalysisStatusCompleted,
	}

	c.mu.Lock()
	c.schemas[id] = info
	c.mu.Unlock()

	c.logger.Info("schema analyzed",
		zap.String("databaseId", id),
		zap.Int("tables", len(tables)),
		zap.Int64("rows", total))
	return nil
}

// storeFailure marks the entry Failed while keeping the previous tables,
// so a transient refresh error does not wipe a usable cache.
func (c *SchemaCatalog) storeFailure(id string, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.schemas[id]
	info := &models.DatabaseSchemaInfo{
		DatabaseID:   id,
		DatabaseName: previous.DatabaseName,
		DatabaseType: previous.DatabaseType,
		LastAnalyzed: time.Now().UTC(),
		Tables:       previous.Tables,
		Status:       models.AnalysisStatusFailed,
		ErrorMessage: cause.Error(),
	}
	c.schemas[id] = info
}

// Schema returns a copy of one cached entry.
func (c *SchemaCatalog) Schema(id string) (*models.DatabaseSchemaInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.schemas[id]
	if !ok {
		return nil, models.NewNotFoundError("database", id)
	}
	copied := *info
	return &copied, nil
}

// Schemas returns every cached entry in configuration order.
func (c *SchemaCatalog) Schemas() []models.DatabaseSchemaInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.DatabaseSchemaInfo, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.schemas[id])
	}
	return out
}

// RoutableSchemas returns only the databases whose analysis completed.
// Everything else stays invisible to SQL generation.
func (c *SchemaCatalog) RoutableSchemas() []models.DatabaseSchemaInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.DatabaseSchemaInfo
	for _, id := range c.order {
		if c.schemas[id].Status == models.AnalysisStatusCompleted {
			out = append(out, *c.schemas[id])
		}
	}
	return out
}

// DatabaseNames lists every configured database name. The validator uses
// it to detect queries that leak tables across databases.
func (c *SchemaCatalog) DatabaseNames() []string {
	names := make([]string, 0, len(c.order))
	for _, id := range c.order {
		names = append(names, c.conns[id].cfg.Name)
	}
	return names
}

// DB exposes the handle and dialect strategy for one database.
func (c *SchemaCatalog) DB(id string) (*sql.DB, DialectStrategy, error) {
	conn, ok := c.conns[id]
	if !ok {
		return nil, nil, models.NewNotFoundError("database", id)
	}
	return conn.db, conn.strategy, nil
}

// Ping validates connectivity for one database.
func (c *SchemaCatalog) Ping(ctx context.Context, id string) error {
	conn, ok := c.conns[id]
	if !ok {
		return models.NewNotFoundError("database", id)
	}
	if err := conn.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database %q: %w", conn.cfg.Name, err)
	}
	return nil
}

// ConnectionStatuses pings every database and pairs the result with the
// cached analysis summary.
func (c *SchemaCatalog) ConnectionStatuses(ctx context.Context) []models.ConnectionStatus {
	out := make([]models.ConnectionStatus, 0, len(c.order))
	for _, id := range c.order {
		conn := c.conns[id]

		c.mu.RLock()
		info := c.schemas[id]
		status := models.ConnectionStatus{
			Name:          info.DatabaseName,
			Type:          info.DatabaseType,
			TableCount:    len(info.Tables),
			TotalRowCount: info.TotalRowCount,
			Status:        info.Status,
		}
		c.mu.RUnlock()

		status.IsValid = conn.db.PingContext(ctx) == nil
		out = append(out, status)
	}
	return out
}

func (c *SchemaCatalog) tableRowCount(ctx context.Context, conn *catalogConnection, table string) (int64, error) {
	query := "SELECT COUNT(*) FROM " + conn.strategy.EscapeIdentifier(table)
	var count int64
	if err := conn.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (c *SchemaCatalog) tableSample(ctx context.Context, conn *catalogConnection, table string) (string, error) {
	query := conn.strategy.ApplyLimit("SELECT * FROM "+conn.strategy.EscapeIdentifier(table), sampleRowLimit)
	rows, err := conn.db.QueryContext(ctx, query)
	if err != nil {
		return "", err
	}
	headers, data, err := scanRowsAsStrings(rows, sampleRowLimit)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}
	return renderTextTable(headers, data), nil
}

// RenderSchemaDocument serializes one analyzed schema as plain text. The
// result is ingested as a document with documentType Schema so schema
// facts participate in document retrieval.
func RenderSchemaDocument(schema *models.DatabaseSchemaInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Database: %s (%s)\n", schema.DatabaseName, schema.DatabaseType)
	if !schema.LastAnalyzed.IsZero() {
		fmt.Fprintf(&b, "Analyzed: %s\n", schema.LastAnalyzed.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Total rows: %d\n", schema.TotalRowCount)

	for _, t := range schema.Tables {
		fmt.Fprintf(&b, "\nTable: %s (%d rows)\n", t.Name, t.RowCount)
		b.WriteString("Columns:\n")
		for _, col := range t.Columns {
			b.WriteString("  - " + describeColumn(col) + "\n")
		}
		if len(t.ForeignKeys) > 0 {
			b.WriteString("Foreign keys:\n")
			for _, fk := range t.ForeignKeys {
				fmt.Fprintf(&b, "  - %s references %s.%s\n", fk.ColumnName, fk.ReferencedTable, fk.ReferencedColumn)
			}
		}
		if t.SampleData != "" {
			b.WriteString("Sample rows:\n")
			b.WriteString(t.SampleData)
		}
	}
	return b.String()
}
