package impl

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/models"
	"github.com/byerlikaya/SmartRAG-sub014/services"
	"github.com/byerlikaya/SmartRAG-sub014/services/database"
)

const schemaDocumentUploader = "system"

// startupServiceImpl runs the once-after-wiring lifecycle: MCP
// auto-connect, watcher start, and schema analysis in a detached goroutine
// so boot latency stays bounded by the fast steps.
type startupServiceImpl struct {
	cfg       *config.Config
	mcp       services.McpClient
	watcher   services.FileWatcherService
	catalog   *database.SchemaCatalog
	documents services.DocumentService
	logger    *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewStartupService(
	cfg *config.Config,
	mcp services.McpClient,
	watcher services.FileWatcherService,
	catalog *database.SchemaCatalog,
	documents services.DocumentService,
	logger *zap.Logger,
) services.StartupService {
	return &startupServiceImpl{
		cfg:       cfg,
		mcp:       mcp,
		watcher:   watcher,
		catalog:   catalog,
		documents: documents,
		logger:    logger,
	}
}

func (s *startupServiceImpl) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	if s.cfg.Features.EnableMcpClient {
		s.connectMcpServers(ctx)
	}

	if s.cfg.Features.EnableFileWatcher && len(s.cfg.FileWatcher.Folders) > 0 {
		if err := s.watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start file watcher: %w", err)
		}
	}

	if len(s.cfg.EnabledDatabases()) > 0 {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.cancel = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.analyzeSchemas(runCtx)
		}()
	}

	s.started = true
	return nil
}

func (s *startupServiceImpl) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	var errs []error
	if s.cfg.Features.EnableFileWatcher {
		if err := s.watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop file watcher: %w", err))
		}
	}
	for _, serverID := range s.mcp.ConnectedServers() {
		if err := s.mcp.Disconnect(serverID); err != nil {
			errs = append(errs, fmt.Errorf("failed to disconnect mcp server %s: %w", serverID, err))
		}
	}

	s.started = false
	return errors.Join(errs...)
}

// connectMcpServers brings up every AutoConnect server. Failures are
// isolated so one unreachable server does not block boot.
func (s *startupServiceImpl) connectMcpServers(ctx context.Context) {
	for _, server := range s.cfg.McpServers {
		if !server.AutoConnect || !server.Enabled {
			continue
		}
		if err := s.mcp.Connect(ctx, server); err != nil {
			s.logger.Error("mcp auto-connect failed",
				zap.String("serverId", server.ServerID), zap.Error(err))
			continue
		}
		if err := s.mcp.Ping(ctx, server.ServerID); err != nil {
			s.logger.Warn("mcp server unresponsive after connect",
				zap.String("serverId", server.ServerID), zap.Error(err))
		}
	}
}

// analyzeSchemas refreshes the catalog and stores each analyzed schema as
// a retrievable schema document. Unchanged schemas hash to the same
// content and are skipped by the upload de-duplication.
func (s *startupServiceImpl) analyzeSchemas(ctx context.Context) {
	if err := s.catalog.Refresh(ctx); err != nil {
		s.logger.Error("schema analysis failed", zap.Error(err))
		return
	}

	schemas := s.catalog.RoutableSchemas()
	for i := range schemas {
		s.storeSchemaDocument(ctx, &schemas[i])
	}
	s.logger.Info("schema analysis completed", zap.Int("databases", len(schemas)))
}

func (s *startupServiceImpl) storeSchemaDocument(ctx context.Context, schema *models.DatabaseSchemaInfo) {
	text := database.RenderSchemaDocument(schema)
	_, err := s.documents.UploadDocument(ctx, services.UploadRequest{
		FileName:   fmt.Sprintf("schema-%s.txt", schema.DatabaseID),
		Content:    []byte(text),
		UploadedBy: schemaDocumentUploader,
		Metadata: map[string]string{
			models.MetaDocumentType: models.SchemaDocumentType,
			models.MetaDatabaseType: string(schema.DatabaseType),
		},
	})
	if err != nil {
		var skipped *models.DocumentSkippedError
		if errors.As(err, &skipped) {
			return
		}
		s.logger.Warn("failed to store schema document",
			zap.String("databaseId", schema.DatabaseID), zap.Error(err))
	}
}
