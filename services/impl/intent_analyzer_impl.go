package impl

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/byerlikaya/SmartRAG-sub014/models"
	"github.com/byerlikaya/SmartRAG-sub014/services"
	"github.com/byerlikaya/SmartRAG-sub014/services/database"
	"github.com/byerlikaya/SmartRAG-sub014/services/storage"
)

// conversationalFallbackAnswer is returned when the heuristics classify a
// query as small talk but no model-generated answer is available.
const conversationalFallbackAnswer = "Hello! How can I help you today?"

// greetingWords covers small-talk tokens across the languages the service
// is commonly deployed with. Matching is done on normalized tokens.
var greetingWords = map[string]struct{}{
	"hello": {}, "hey": {}, "hiya": {}, "greetings": {},
	"thanks": {}, "thank": {}, "bye": {}, "goodbye": {},
	"morning": {}, "evening": {}, "afternoon": {},
	"merhaba": {}, "selam": {}, "tesekkurler": {}, "sagol": {},
	"hallo": {}, "hola": {}, "bonjour": {}, "ciao": {},
}

// shortGreetings are matched against the raw lowercased query because the
// tokenizer drops words of length <= 2.
var shortGreetings = map[string]struct{}{
	"hi": {}, "yo": {}, "ok": {},
}

// intentVerdict is the JSON shape the classification prompt asks for.
type intentVerdict struct {
	IsConversation            bool                    `json:"isConversation"`
	ConversationalAnswer      string                  `json:"conversationalAnswer"`
	Understanding             string                  `json:"understanding"`
	Confidence                float64                 `json:"confidence"`
	Reasoning                 string                  `json:"reasoning"`
	RequiresCrossDatabaseJoin bool                    `json:"requiresCrossDatabaseJoin"`
	Databases                 []intentVerdictDatabase `json:"databases"`
}

type intentVerdictDatabase struct {
	DatabaseName   string   `json:"databaseName"`
	RequiredTables []string `json:"requiredTables"`
	Purpose        string   `json:"purpose"`
	Priority       int      `json:"priority"`
}

// intentAnalyzerImpl classifies queries with one gateway call and falls
// back to deterministic heuristics when the model reply is unusable.
type intentAnalyzerImpl struct {
	gateway services.AIGateway
	catalog *database.SchemaCatalog
	logger  *zap.Logger
}

func NewIntentAnalyzer(gateway services.AIGateway, catalog *database.SchemaCatalog, logger *zap.Logger) services.IntentAnalyzer {
	return &intentAnalyzerImpl{gateway: gateway, catalog: catalog, logger: logger}
}

func (a *intentAnalyzerImpl) Analyze(ctx context.Context, query, history string) (*models.QueryIntentAnalysisResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, models.NewValidationError("query must not be empty")
	}
	tokens := storage.Tokenize(query)

	reply, err := a.gateway.GenerateText(ctx, services.TextRequest{
		Prompt:        a.buildUserMessage(query),
		SystemMessage: a.buildSystemMessage(),
		History:       history,
	})
	if err != nil {
		a.logger.Warn("intent classification call failed, using heuristics", zap.Error(err))
		return a.heuristicResult(query, tokens), nil
	}

	verdict, err := parseIntentVerdict(reply)
	if err != nil {
		a.logger.Warn("intent verdict unparseable, using heuristics",
			zap.Error(err),
			zap.Int("replyLength", len(reply)))
		return a.heuristicResult(query, tokens), nil
	}

	result := &models.QueryIntentAnalysisResult{
		IsConversation: verdict.IsConversation,
		Tokens:         tokens,
	}
	if verdict.IsConversation {
		result.ConversationalAnswer = strings.TrimSpace(verdict.ConversationalAnswer)
		if result.ConversationalAnswer == "" {
			result.ConversationalAnswer = conversationalFallbackAnswer
		}
		return result, nil
	}

	result.Intent = a.buildIntent(query, verdict)
	return result, nil
}

// buildIntent maps the verdict onto the routing plan, resolving database
// names against the catalog. Names the catalog does not know are kept
// verbatim; the coordinator isolates them as per-database errors.
func (a *intentAnalyzerImpl) buildIntent(query string, verdict *intentVerdict) *models.QueryIntent {
	intent := &models.QueryIntent{
		Query:                     query,
		Understanding:             strings.TrimSpace(verdict.Understanding),
		Confidence:                clampConfidence(verdict.Confidence),
		Reasoning:                 strings.TrimSpace(verdict.Reasoning),
		RequiresCrossDatabaseJoin: verdict.RequiresCrossDatabaseJoin,
	}
	if intent.Understanding == "" {
		intent.Understanding = query
	}

	schemas := a.catalog.RoutableSchemas()
	for _, db := range verdict.Databases {
		name := strings.TrimSpace(db.DatabaseName)
		if name == "" {
			continue
		}
		target := models.DatabaseQueryIntent{
			DatabaseID:     name,
			DatabaseName:   name,
			RequiredTables: db.RequiredTables,
			Purpose:        db.Purpose,
			Priority:       db.Priority,
		}
		if target.Priority <= 0 {
			target.Priority = 1
		}
		if schema := matchSchema(schemas, name); schema != nil {
			target.DatabaseID = schema.DatabaseID
			target.DatabaseName = schema.DatabaseName
		} else {
			a.logger.Warn("intent names an unknown database", zap.String("database", name))
		}
		intent.DatabaseIntents = append(intent.DatabaseIntents, target)
	}
	return intent
}

func (a *intentAnalyzerImpl) buildSystemMessage() string {
	var b strings.Builder
	b.WriteString("You are a query router for a retrieval system. ")
	b.WriteString("Classify the user's message and reply with a single JSON object, no prose, no code fences.\n\n")
	b.WriteString("Reply shape:\n")
	b.WriteString(`{"isConversation": bool, "conversationalAnswer": string, "understanding": string, "confidence": number, "reasoning": string, "requiresCrossDatabaseJoin": bool, "databases": [{"databaseName": string, "requiredTables": [string], "purpose": string, "priority": number}]}`)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- isConversation is true for greetings, small talk, and questions about yourself; then fill conversationalAnswer with a short friendly reply and leave databases empty.\n")
	b.WriteString("- For information requests set isConversation to false, describe the request in understanding, and rate confidence between 0 and 1.\n")
	b.WriteString("- List a database only when its tables are needed to answer. Use the exact database and table names below.\n")
	b.WriteString("- Higher priority means its results matter more; use 1 for the least important.\n")

	schemas := a.catalog.RoutableSchemas()
	if len(schemas) == 0 {
		b.WriteString("\nNo databases are available; databases must stay empty.\n")
		return b.String()
	}
	b.WriteString("\nAvailable databases:\n")
	for _, s := range schemas {
		tables := make([]string, 0, len(s.Tables))
		for _, t := range s.Tables {
			tables = append(tables, t.Name)
		}
		fmt.Fprintf(&b, "- %s (%s): tables %s\n", s.DatabaseName, s.DatabaseType, strings.Join(tables, ", "))
	}
	return b.String()
}

func (a *intentAnalyzerImpl) buildUserMessage(query string) string {
	return "Classify this message and reply with the JSON object only:\n" + query
}

// heuristicResult is the deterministic fallback: empty or greeting-only
// queries are conversational, everything else becomes a document-oriented
// retrieval intent at moderate confidence.
func (a *intentAnalyzerImpl) heuristicResult(query string, tokens []string) *models.QueryIntentAnalysisResult {
	if looksConversational(query, tokens) {
		return &models.QueryIntentAnalysisResult{
			IsConversation:       true,
			Tokens:               tokens,
			ConversationalAnswer: conversationalFallbackAnswer,
		}
	}
	return &models.QueryIntentAnalysisResult{
		Tokens: tokens,
		Intent: &models.QueryIntent{
			Query:         query,
			Understanding: query,
			Confidence:    0.5,
			Reasoning:     "classifier unavailable, defaulting to document retrieval",
		},
	}
}

func looksConversational(query string, tokens []string) bool {
	if len(tokens) == 0 {
		trimmed := strings.ToLower(strings.TrimSpace(query))
		trimmed = strings.TrimRight(trimmed, "!.?")
		_, short := shortGreetings[trimmed]
		return short || trimmed == ""
	}
	if len(tokens) > 3 {
		return false
	}
	for _, tok := range tokens {
		if _, ok := greetingWords[tok]; !ok {
			return false
		}
	}
	return true
}

func parseIntentVerdict(reply string) (*intentVerdict, error) {
	raw, ok := models.ExtractJSONObject(reply)
	if !ok {
		return nil, fmt.Errorf("no JSON object in model reply")
	}
	var verdict intentVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, fmt.Errorf("failed to decode intent verdict: %w", err)
	}
	return &verdict, nil
}

func matchSchema(schemas []models.DatabaseSchemaInfo, name string) *models.DatabaseSchemaInfo {
	for i := range schemas {
		if strings.EqualFold(schemas[i].DatabaseID, name) || strings.EqualFold(schemas[i].DatabaseName, name) {
			return &schemas[i]
		}
	}
	return nil
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
