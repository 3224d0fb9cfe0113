package services

import (
	"context"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// McpClient manages JSON-RPC 2.0 tool server connections keyed by server
// id. Disconnect is idempotent. Tool-call failures surface as
// McpToolResponse values with IsSuccess false, not as Go errors.
type McpClient interface {
	Connect(ctx context.Context, cfg models.McpServerConfig) error
	Disconnect(serverID string) error
	DiscoverTools(ctx context.Context, serverID string) ([]models.McpTool, error)
	CallTool(ctx context.Context, serverID, toolName string, params map[string]any) (*models.McpToolResponse, error)
	Ping(ctx context.Context, serverID string) error
	IsConnected(serverID string) bool
	ConnectedServers() []string
}
