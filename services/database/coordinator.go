package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/models"
	"github.com/byerlikaya/SmartRAG-sub014/services"
)

// DatabaseQueryResult is the outcome of one routed database execution.
// A result with Success false carries the reason in Error; execution
// failures never abort the sibling databases.
type DatabaseQueryResult struct {
	DatabaseID   string
	DatabaseName string
	Sql          string
	Success      bool
	Error        string
	RowCount     int
	Table        string
	Duration     time.Duration
	Priority     int
	Tables       []string
}

// ExecutionResult is the merged outcome across all routed databases.
// Context is the labeled per-database text the synthesizer grounds on.
type ExecutionResult struct {
	Context string
	Results []DatabaseQueryResult
}

// Sources builds one provenance record per successful database section.
func (r *ExecutionResult) Sources() []models.Source {
	var out []models.Source
	for _, q := range r.Results {
		if !q.Success {
			continue
		}
		excerpt := fmt.Sprintf("%d rows", q.RowCount)
		if q.Table != "" {
			excerpt = clipCell(strings.ReplaceAll(q.Table, "\n", " "))
		}
		out = append(out, models.Source{
			Type:           models.SourceTypeDatabase,
			RelevanceScore: 1.0,
			Excerpt:        excerpt,
			Location:       q.DatabaseName,
			DatabaseID:     q.DatabaseID,
			DatabaseName:   q.DatabaseName,
			Tables:         q.Tables,
			ExecutedQuery:  q.Sql,
		})
	}
	return out
}

// TotalRows sums the row counts of the successful executions.
func (r *ExecutionResult) TotalRows() int {
	total := 0
	for _, q := range r.Results {
		if q.Success {
			total += q.RowCount
		}
	}
	return total
}

// Coordinator turns a routed intent into per-database SQL, validates and
// repairs each statement, runs them in parallel under one deadline, and
// merges the results in priority order.
type Coordinator struct {
	catalog *SchemaCatalog
	gateway services.AIGateway
	logger  *zap.Logger

	queryTimeout time.Duration
	maxRows      int
}

func NewCoordinator(catalog *SchemaCatalog, gateway services.AIGateway, cfg *config.Config, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		catalog:      catalog,
		gateway:      gateway,
		logger:       logger,
		queryTimeout: time.Duration(cfg.Query.QueryTimeoutSeconds) * time.Second,
		maxRows:      cfg.Query.MaxRowsPerQuery,
	}
}

// Execute runs the full pipeline for an already-analyzed intent. An intent
// with no database rows short-circuits to an empty result.
func (c *Coordinator) Execute(ctx context.Context, intent *models.QueryIntent) (*ExecutionResult, error) {
	if intent == nil || len(intent.DatabaseIntents) == 0 {
		return &ExecutionResult{}, nil
	}

	results, err := c.prepare(ctx, intent)
	if err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	g, execCtx := errgroup.WithContext(execCtx)
	for i := range results {
		r := &results[i]
		if r.Error != "" || r.Sql == "" {
			continue
		}
		g.Go(func() error {
			dbCtx, dbCancel := context.WithTimeout(execCtx, c.queryTimeout)
			defer dbCancel()
			c.runQuery(dbCtx, r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Priority > results[j].Priority
	})

	return &ExecutionResult{
		Context: mergeResults(results),
		Results: results,
	}, nil
}

// GenerateQueries runs generation, repair, and validation only, writing the
// final SQL back onto each database intent. The analysis endpoint uses it
// to expose the routing plan without touching any database.
func (c *Coordinator) GenerateQueries(ctx context.Context, intent *models.QueryIntent) error {
	if intent == nil || len(intent.DatabaseIntents) == 0 {
		return nil
	}
	_, err := c.prepare(ctx, intent)
	return err
}

// prepare generates one SQL per database intent, applies dialect repair
// and validation, and caps the result set. Per-database problems are
// recorded on the result, never returned; only a generation failure that
// affects every database is an error.
func (c *Coordinator) prepare(ctx context.Context, intent *models.QueryIntent) ([]DatabaseQueryResult, error) {
	schemas := c.catalog.RoutableSchemas()
	generated, err := c.generateSql(ctx, intent, schemas)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.DatabaseSchemaInfo, len(schemas))
	for i := range schemas {
		byID[schemas[i].DatabaseID] = &schemas[i]
	}
	allNames := c.catalog.DatabaseNames()

	results := make([]DatabaseQueryResult, 0, len(intent.DatabaseIntents))
	for i := range intent.DatabaseIntents {
		di := &intent.DatabaseIntents[i]
		result := DatabaseQueryResult{
			DatabaseID:   di.DatabaseID,
			DatabaseName: di.DatabaseName,
			Priority:     di.Priority,
			Tables:       di.RequiredTables,
		}

		sqlText := strings.TrimSpace(generated[di.DatabaseID])
		schema := byID[di.DatabaseID]
		switch {
		case schema == nil:
			result.Error = fmt.Sprintf("database %q is not available for routing", di.DatabaseID)
		case sqlText == "":
			result.Error = "no SQL was generated for this database"
		default:
			prepared, problems := c.prepareStatement(schema, di.RequiredTables, allNames, sqlText)
			di.GeneratedSql = prepared
			if len(problems) > 0 {
				result.Error = strings.Join(problems, "; ")
				c.logger.Warn("generated SQL rejected",
					zap.String("databaseId", di.DatabaseID),
					zap.String("sql", prepared),
					zap.Strings("problems", problems))
			} else {
				result.Sql = prepared
			}
		}
		results = append(results, result)
	}
	return results, nil
}

func (c *Coordinator) generateSql(ctx context.Context, intent *models.QueryIntent, schemas []models.DatabaseSchemaInfo) (map[string]string, error) {
	system := BuildSchemaSystemMessage(schemas)
	user := BuildSqlGenerationMessage(intent.Query, intent, schemas)

	reply, err := c.gateway.GenerateText(ctx, services.TextRequest{Prompt: user, SystemMessage: system})
	if err != nil {
		return nil, fmt.Errorf("failed to generate SQL: %w", err)
	}

	generated, parseErr := parseGeneratedQueries(reply)
	if parseErr == nil {
		return generated, nil
	}

	c.logger.Warn("SQL generation reply was malformed, retrying once", zap.Error(parseErr))
	reply, err = c.gateway.GenerateText(ctx, services.TextRequest{
		Prompt:        BuildStrictRetryMessage(user),
		SystemMessage: system,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate SQL on retry: %w", err)
	}
	generated, parseErr = parseGeneratedQueries(reply)
	if parseErr != nil {
		return nil, fmt.Errorf("failed to parse generated SQL: %w", parseErr)
	}
	return generated, nil
}

// prepareStatement repairs and validates one statement. The returned SQL is
// always the repaired text so callers can expose it even when invalid.
func (c *Coordinator) prepareStatement(schema *models.DatabaseSchemaInfo, requiredTables, allNames []string, sqlText string) (string, []string) {
	strategy, err := StrategyFor(schema.DatabaseType)
	if err != nil {
		return sqlText, []string{err.Error()}
	}

	check := func(s string) []string {
		problems := strategy.ValidateSyntax(s)
		validation := ValidateQuery(s, schema, requiredTables, allNames)
		problems = append(problems, validation.Errors...)
		for _, w := range validation.Warnings {
			c.logger.Debug("SQL validation warning",
				zap.String("databaseId", schema.DatabaseID),
				zap.String("warning", w))
		}
		return problems
	}

	repaired := strategy.Repair(sqlText, schema)
	problems := check(repaired)
	if len(problems) > 0 {
		// A second pass catches rewrites unlocked by the first one.
		again := strategy.Repair(repaired, schema)
		if again != repaired {
			repaired = again
			problems = check(repaired)
		}
	}
	if len(problems) > 0 {
		return repaired, problems
	}
	return strategy.ApplyLimit(repaired, c.maxRows), nil
}

func (c *Coordinator) runQuery(ctx context.Context, r *DatabaseQueryResult) {
	db, _, err := c.catalog.DB(r.DatabaseID)
	if err != nil {
		r.Error = err.Error()
		return
	}

	start := time.Now()
	rows, err := db.QueryContext(ctx, r.Sql)
	if err != nil {
		r.Duration = time.Since(start)
		r.Error = fmt.Sprintf("query failed: %v", err)
		c.logger.Warn("database query failed",
			zap.String("databaseId", r.DatabaseID),
			zap.Duration("duration", r.Duration),
			zap.Error(err))
		return
	}

	headers, data, err := scanRowsAsStrings(rows, c.maxRows)
	r.Duration = time.Since(start)
	if err != nil {
		r.Error = fmt.Sprintf("query failed: %v", err)
		return
	}

	r.RowCount = len(data)
	if len(data) > 0 {
		r.Table = renderTextTable(headers, data)
	}
	r.Success = true
	c.logger.Info("database query completed",
		zap.String("databaseId", r.DatabaseID),
		zap.Int("rows", r.RowCount),
		zap.Duration("duration", r.Duration))
}

// mergeResults composes the labeled per-database blocks in the priority
// order the caller already applied. Failed databases surface as annotated
// sections instead of disappearing.
func mergeResults(results []DatabaseQueryResult) string {
	var b strings.Builder
	for _, r := range results {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "=== Database: %s ===\n", r.DatabaseName)
		if !r.Success {
			fmt.Fprintf(&b, "Query failed: %s\n", r.Error)
			continue
		}
		fmt.Fprintf(&b, "SQL: %s\n", r.Sql)
		fmt.Fprintf(&b, "Rows: %d\n", r.RowCount)
		if r.Table != "" {
			b.WriteString(r.Table)
		}
	}
	return b.String()
}

type generatedQuery struct {
	DatabaseID string `json:"databaseId"`
	Sql        string `json:"sql"`
}

type generationReply struct {
	Queries []generatedQuery `json:"queries"`
}

func parseGeneratedQueries(reply string) (map[string]string, error) {
	raw, ok := models.ExtractJSONObject(reply)
	if !ok {
		return nil, fmt.Errorf("no JSON object in model reply")
	}
	var parsed generationReply
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode generated queries: %w", err)
	}
	if len(parsed.Queries) == 0 {
		return nil, fmt.Errorf("model reply contained no queries")
	}
	out := make(map[string]string, len(parsed.Queries))
	for _, q := range parsed.Queries {
		out[q.DatabaseID] = q.Sql
	}
	return out, nil
}
