package services

import (
	"context"
	"time"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// IntentAnalyzer classifies a query as conversational or retrieval and,
// for retrieval, produces the routing intent (without SQL).
type IntentAnalyzer interface {
	Analyze(ctx context.Context, query, history string) (*models.QueryIntentAnalysisResult, error)
}

// QueryOrchestrator drives one query end to end: intent, strategy
// selection, source execution, synthesis, and turn persistence.
type QueryOrchestrator interface {
	ProcessQuery(ctx context.Context, query, sessionID string) (*models.RagResponse, error)
	AnalyzeQuery(ctx context.Context, query string) (*models.QueryAnalysisResponse, error)
}

// QueryStrategyRequest carries the per-query precomputations through the
// strategy pipeline so tokenization and candidate retrieval happen once.
type QueryStrategyRequest struct {
	Query           string
	SessionID       string
	Tokens          []string
	History         string
	Intent          *models.QueryIntent
	CandidateChunks []models.DocumentChunk
}

// SynthesisRequest is the synthesizer input. DocumentChunks and the
// database fields may each be empty; the populated ones pick the prompt.
type SynthesisRequest struct {
	Query             string
	DocumentChunks    []models.DocumentChunk
	DatabaseContext   string
	DatabaseSources   []models.Source
	McpContext        string
	History           string
	PreferredLanguage string
	SearchMetadata    models.SearchMetadata
}

// AnswerSynthesizer builds the grounded prompt, generates the answer, and
// assembles the source list.
type AnswerSynthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*models.RagResponse, error)
}

// FileWatcherService observes the configured folders and ingests new
// files through the document service.
type FileWatcherService interface {
	Start(ctx context.Context) error
	Stop() error
}

// StartupService runs the once-after-wiring lifecycle hook: MCP
// auto-connect, watcher start, detached schema analysis.
type StartupService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ProbeResult is one bounded-time dependency probe.
type ProbeResult struct {
	Healthy   bool   `json:"healthy"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
}

type DatabaseProbeResult struct {
	Name string `json:"name"`
	ProbeResult
}

type HealthReport struct {
	Healthy      bool                  `json:"healthy"`
	Ai           ProbeResult           `json:"ai"`
	Storage      ProbeResult           `json:"storage"`
	Conversation ProbeResult           `json:"conversation"`
	Databases    []DatabaseProbeResult `json:"databases"`
	CheckedAt    time.Time             `json:"checkedAt"`
}

// HealthService probes every configured dependency. Probe failures are
// isolated; one unreachable dependency never hides the others.
type HealthService interface {
	Check(ctx context.Context) HealthReport
}
