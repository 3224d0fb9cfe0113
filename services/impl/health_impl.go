package impl

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/byerlikaya/SmartRAG-sub014/services"
	"github.com/byerlikaya/SmartRAG-sub014/services/database"
	"github.com/byerlikaya/SmartRAG-sub014/services/storage"
)

const (
	healthProbeTimeout = 5 * time.Second
	healthProbeText    = "ping"
)

// healthServiceImpl probes each configured dependency under its own
// bounded deadline. Probes run independently: an unreachable provider
// reports unhealthy without hiding the store and database results.
type healthServiceImpl struct {
	gateway       services.AIGateway
	documents     storage.DocumentStore
	conversations storage.ConversationStore
	catalog       *database.SchemaCatalog
	logger        *zap.Logger
	probeTimeout  time.Duration
}

func NewHealthService(
	gateway services.AIGateway,
	documents storage.DocumentStore,
	conversations storage.ConversationStore,
	catalog *database.SchemaCatalog,
	logger *zap.Logger,
) services.HealthService {
	return &healthServiceImpl{
		gateway:       gateway,
		documents:     documents,
		conversations: conversations,
		catalog:       catalog,
		logger:        logger,
		probeTimeout:  healthProbeTimeout,
	}
}

func (h *healthServiceImpl) Check(ctx context.Context) services.HealthReport {
	report := services.HealthReport{
		Healthy:   true,
		CheckedAt: time.Now().UTC(),
	}

	report.Ai = h.probe(ctx, "ai", func(ctx context.Context) error {
		_, err := h.gateway.GenerateEmbedding(ctx, healthProbeText)
		return err
	})
	report.Storage = h.probe(ctx, "storage", h.documents.Ping)
	report.Conversation = h.probe(ctx, "conversation", h.conversations.Ping)

	for _, schema := range h.catalog.Schemas() {
		id := schema.DatabaseID
		result := services.DatabaseProbeResult{
			Name:        schema.DatabaseName,
			ProbeResult: h.probe(ctx, "database "+id, func(ctx context.Context) error { return h.catalog.Ping(ctx, id) }),
		}
		if result.Healthy && len(schema.Tables) == 0 {
			result.Message = "connected, schema not analyzed yet"
		}
		report.Databases = append(report.Databases, result)
		if !result.Healthy {
			report.Healthy = false
		}
	}

	if !report.Ai.Healthy || !report.Storage.Healthy || !report.Conversation.Healthy {
		report.Healthy = false
	}
	return report
}

// probe runs one check under the probe deadline and folds the outcome
// into a result. Failures are logged at debug; the report already carries
// the message.
func (h *healthServiceImpl) probe(ctx context.Context, name string, fn func(context.Context) error) services.ProbeResult {
	probeCtx, cancel := context.WithTimeout(ctx, h.probeTimeout)
	defer cancel()

	start := time.Now()
	err := fn(probeCtx)
	result := services.ProbeResult{
		Healthy:   err == nil,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Message = err.Error()
		h.logger.Debug("health probe failed", zap.String("probe", name), zap.Error(err))
	}
	return result
}
