package impl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/models"
	"github.com/byerlikaya/SmartRAG-sub014/services"
	"github.com/byerlikaya/SmartRAG-sub014/services/database"
	"github.com/byerlikaya/SmartRAG-sub014/services/storage"
)

// queryOrchestratorImpl selects exactly one retrieval path per query and
// persists the turn only after synthesis succeeds. Per-source failures
// degrade the answer; orchestrator-level failures abort without writing
// a turn.
type queryOrchestratorImpl struct {
	cfg           *config.Config
	analyzer      services.IntentAnalyzer
	documents     services.DocumentService
	coordinator   *database.Coordinator
	synthesizer   services.AnswerSynthesizer
	mcp           services.McpClient
	gateway       services.AIGateway
	docStore      storage.DocumentStore
	conversations storage.ConversationStore
	logger        *zap.Logger

	confidenceThreshold float64
}

func NewQueryOrchestrator(
	cfg *config.Config,
	analyzer services.IntentAnalyzer,
	documents services.DocumentService,
	coordinator *database.Coordinator,
	synthesizer services.AnswerSynthesizer,
	mcp services.McpClient,
	gateway services.AIGateway,
	docStore storage.DocumentStore,
	conversations storage.ConversationStore,
	logger *zap.Logger,
) services.QueryOrchestrator {
	threshold := cfg.Query.ConfidenceThreshold
	if threshold <= 0 {
		threshold = 0.7
	}
	return &queryOrchestratorImpl{
		cfg:                 cfg,
		analyzer:            analyzer,
		documents:           documents,
		coordinator:         coordinator,
		synthesizer:         synthesizer,
		mcp:                 mcp,
		gateway:             gateway,
		docStore:            docStore,
		conversations:       conversations,
		logger:              logger,
		confidenceThreshold: threshold,
	}
}

func (o *queryOrchestratorImpl) ProcessQuery(ctx context.Context, query, sessionID string) (*models.RagResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, models.NewValidationError("query must not be empty")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	history, err := o.conversations.GetHistory(ctx, sessionID)
	if err != nil {
		o.logger.Warn("failed to load conversation history",
			zap.String("sessionId", sessionID), zap.Error(err))
		history = ""
	}

	analysis, err := o.analyzer.Analyze(ctx, query, history)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze query: %w", err)
	}

	if analysis.IsConversation {
		resp := o.conversationalResponse(query, analysis.ConversationalAnswer)
		o.persistTurn(ctx, sessionID, query, resp)
		return resp, nil
	}

	req := &services.QueryStrategyRequest{
		Query:     query,
		SessionID: sessionID,
		Tokens:    analysis.Tokens,
		History:   history,
		Intent:    analysis.Intent,
	}
	var candidateErr error
	if o.cfg.Features.EnableDocumentSearch {
		req.CandidateChunks, candidateErr = o.documents.SearchChunks(ctx, query, o.cfg.Query.MaxResults)
		if candidateErr != nil {
			o.logger.Warn("candidate chunk retrieval failed", zap.Error(candidateErr))
		}
	}

	synth, err := o.buildSynthesisRequest(ctx, req, candidateErr)
	if err != nil {
		return nil, err
	}

	resp, err := o.synthesizer.Synthesize(ctx, *synth)
	if err != nil {
		return nil, err
	}
	o.persistTurn(ctx, sessionID, query, resp)
	return resp, nil
}

func (o *queryOrchestratorImpl) AnalyzeQuery(ctx context.Context, query string) (*models.QueryAnalysisResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, models.NewValidationError("query must not be empty")
	}
	analysis, err := o.analyzer.Analyze(ctx, query, "")
	if err != nil {
		return nil, fmt.Errorf("failed to analyze query: %w", err)
	}

	resp := &models.QueryAnalysisResponse{
		IsConversation: analysis.IsConversation,
		AnalyzedAt:     time.Now().UTC(),
	}
	if analysis.IsConversation {
		return resp, nil
	}
	if o.cfg.Features.EnableDatabaseSearch && analysis.Intent != nil && len(analysis.Intent.DatabaseIntents) > 0 {
		if err := o.coordinator.GenerateQueries(ctx, analysis.Intent); err != nil {
			return nil, fmt.Errorf("failed to generate queries: %w", err)
		}
	}
	resp.Intent = analysis.Intent
	return resp, nil
}

// buildSynthesisRequest applies the path selection: document-only when the
// intent is confident and names no database, database-only when documents
// cannot answer, hybrid otherwise. MCP context is added on top whenever
// the feature is on.
func (o *queryOrchestratorImpl) buildSynthesisRequest(ctx context.Context, req *services.QueryStrategyRequest, candidateErr error) (*services.SynthesisRequest, error) {
	synth := &services.SynthesisRequest{
		Query:             req.Query,
		History:           req.History,
		PreferredLanguage: o.cfg.Query.PreferredLanguage,
	}

	hasDBTargets := req.Intent != nil && len(req.Intent.DatabaseIntents) > 0
	useDocs := o.cfg.Features.EnableDocumentSearch
	useDB := o.cfg.Features.EnableDatabaseSearch && hasDBTargets

	if useDocs && useDB && !o.canAnswerFromDocuments(req, candidateErr) {
		useDocs = false
	}

	if useDocs {
		synth.DocumentChunks = req.CandidateChunks
		synth.SearchMetadata.DocumentSearchPerformed = true
		synth.SearchMetadata.DocumentResultsFound = len(req.CandidateChunks)
	}

	if useDB {
		exec, err := o.coordinator.Execute(ctx, req.Intent)
		switch {
		case err != nil && !useDocs:
			return nil, fmt.Errorf("failed to execute database queries: %w", err)
		case err != nil:
			// Documents still contribute; the database side degrades.
			o.logger.Warn("database execution failed, answering from documents only", zap.Error(err))
			synth.SearchMetadata.DatabaseSearchPerformed = true
		default:
			synth.DatabaseContext = exec.Context
			synth.DatabaseSources = exec.Sources()
			synth.SearchMetadata.DatabaseSearchPerformed = true
			synth.SearchMetadata.DatabaseResultsFound = exec.TotalRows()
		}
	}

	if o.cfg.Features.EnableMcpClient && o.mcp != nil {
		mcpContext, found := o.gatherMcpContext(ctx, req.Query)
		synth.McpContext = mcpContext
		synth.SearchMetadata.McpSearchPerformed = true
		synth.SearchMetadata.McpResultsFound = found
	}

	return synth, nil
}

// canAnswerFromDocuments is the cheap overlap check: at least half of the
// query tokens must appear in the candidate chunks. A failed candidate
// fetch defers to the configured bias instead of guessing.
func (o *queryOrchestratorImpl) canAnswerFromDocuments(req *services.QueryStrategyRequest, candidateErr error) bool {
	if candidateErr != nil {
		return o.cfg.Features.AssumeDocumentsCanAnswer
	}
	if len(req.CandidateChunks) == 0 || len(req.Tokens) == 0 {
		return false
	}

	chunkTokens := make(map[string]struct{}, 64)
	for _, chunk := range req.CandidateChunks {
		for _, tok := range storage.Tokenize(chunk.Content) {
			chunkTokens[tok] = struct{}{}
		}
	}

	matched := 0
	for _, tok := range req.Tokens {
		if _, ok := chunkTokens[tok]; ok {
			matched++
			continue
		}
		for candidate := range chunkTokens {
			if storage.TokensMatch(tok, candidate) {
				matched++
				break
			}
		}
	}
	needed := (len(req.Tokens) + 1) / 2
	return matched >= needed
}

// gatherMcpContext asks every connected server's first search-capable tool
// about the query. Server failures are isolated; a server without a
// matching tool contributes nothing.
func (o *queryOrchestratorImpl) gatherMcpContext(ctx context.Context, query string) (string, int) {
	var b strings.Builder
	found := 0
	for _, serverID := range o.mcp.ConnectedServers() {
		tools, err := o.mcp.DiscoverTools(ctx, serverID)
		if err != nil {
			o.logger.Warn("mcp tool discovery failed", zap.String("serverId", serverID), zap.Error(err))
			continue
		}
		tool := pickSearchTool(tools)
		if tool == nil {
			continue
		}
		resp, err := o.mcp.CallTool(ctx, serverID, tool.Name, map[string]any{"query": query})
		if err != nil {
			o.logger.Warn("mcp tool call failed",
				zap.String("serverId", serverID), zap.String("tool", tool.Name), zap.Error(err))
			continue
		}
		if !resp.IsSuccess {
			o.logger.Warn("mcp tool reported failure",
				zap.String("serverId", serverID), zap.String("tool", tool.Name),
				zap.Any("mcpError", resp.Error))
			continue
		}
		fmt.Fprintf(&b, "=== %s/%s ===\n%s\n", serverID, tool.Name, string(resp.Result))
		found++
	}
	return b.String(), found
}

func pickSearchTool(tools []models.McpTool) *models.McpTool {
	for i := range tools {
		name := strings.ToLower(tools[i].Name)
		if strings.Contains(name, "search") || strings.Contains(name, "query") ||
			strings.Contains(name, "lookup") || strings.Contains(name, "find") {
			return &tools[i]
		}
	}
	return nil
}

func (o *queryOrchestratorImpl) conversationalResponse(query, answer string) *models.RagResponse {
	return &models.RagResponse{
		Query:      query,
		Answer:     answer,
		SearchedAt: time.Now().UTC(),
		Configuration: models.RagConfiguration{
			AIProvider:      o.gateway.ProviderName(),
			StorageProvider: o.docStore.Name(),
			Model:           o.gateway.ModelName(),
		},
	}
}

// persistTurn appends the question, answer, and sources to the session
// log. Persistence problems are logged, never surfaced; the caller
// already holds a valid answer.
func (o *queryOrchestratorImpl) persistTurn(ctx context.Context, sessionID, query string, resp *models.RagResponse) {
	if err := o.conversations.Append(ctx, sessionID, query, resp.Answer); err != nil {
		o.logger.Warn("failed to persist conversation turn",
			zap.String("sessionId", sessionID), zap.Error(err))
		return
	}
	if err := o.conversations.AppendSources(ctx, sessionID, resp.Sources); err != nil {
		o.logger.Warn("failed to persist turn sources",
			zap.String("sessionId", sessionID), zap.Error(err))
	}
}
