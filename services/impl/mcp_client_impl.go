package impl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/byerlikaya/SmartRAG-sub014/models"
	"github.com/byerlikaya/SmartRAG-sub014/services"
)

const (
	mcpProtocolVersion = "2024-11-05"
	mcpClientName      = "smartrag"
	mcpClientVersion   = "1.0.0"

	defaultMcpTimeout = 30 * time.Second
)

type jsonRpcRequest struct {
	JsonRpc string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      *int64 `json:"id,omitempty"`
}

type jsonRpcResponse struct {
	JsonRpc string           `json:"jsonrpc"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *models.McpError `json:"error,omitempty"`
	ID      json.RawMessage  `json:"id,omitempty"`
}

type mcpInitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      mcpClientInfo  `json:"clientInfo"`
}

type mcpClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type mcpInitializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

type mcpToolsListResult struct {
	Tools      []models.McpTool `json:"tools"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// mcpConnection is one initialized server. The request id counter is
// per-connection, as the protocol requires ids unique per session.
type mcpConnection struct {
	cfg    models.McpServerConfig
	client *http.Client
	nextID int64
}

func (c *mcpConnection) call(ctx context.Context, method string, params any) (json.RawMessage, *models.McpError, error) {
	id := atomic.AddInt64(&c.nextID, 1)
	raw, err := c.post(ctx, jsonRpcRequest{JsonRpc: "2.0", Method: method, Params: params, ID: &id})
	if err != nil {
		return nil, nil, err
	}
	var parsed jsonRpcResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, parsed.Error, nil
	}
	return parsed.Result, nil, nil
}

// notify sends a request without an id; the server must not reply with a
// result, so the body is discarded.
func (c *mcpConnection) notify(ctx context.Context, method string, params any) error {
	_, err := c.post(ctx, jsonRpcRequest{JsonRpc: "2.0", Method: method, Params: params})
	return err
}

func (c *mcpConnection) post(ctx context.Context, payload jsonRpcRequest) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

// mcpClientImpl manages JSON-RPC 2.0 tool servers keyed by server id.
// Connections are mutated only by Connect and Disconnect; everything else
// takes the read lock.
type mcpClientImpl struct {
	mu     sync.RWMutex
	conns  map[string]*mcpConnection
	logger *zap.Logger
}

func NewMcpClient(logger *zap.Logger) services.McpClient {
	return &mcpClientImpl{conns: make(map[string]*mcpConnection), logger: logger}
}

func (m *mcpClientImpl) Connect(ctx context.Context, cfg models.McpServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cfg.Enabled {
		return models.NewValidationError("mcp server %s is disabled", cfg.ServerID)
	}

	timeout := defaultMcpTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	conn := &mcpConnection{cfg: cfg, client: &http.Client{Timeout: timeout}}

	result, rpcErr, err := conn.call(ctx, "initialize", mcpInitializeParams{
		ProtocolVersion: mcpProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      mcpClientInfo{Name: mcpClientName, Version: mcpClientVersion},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize mcp server %s: %w", cfg.ServerID, err)
	}
	if rpcErr != nil {
		return fmt.Errorf("failed to initialize mcp server %s: %w", cfg.ServerID, rpcErr)
	}

	var init mcpInitializeResult
	if err := json.Unmarshal(result, &init); err != nil {
		return fmt.Errorf("failed to decode initialize result from %s: %w", cfg.ServerID, err)
	}
	if init.ProtocolVersion != "" && init.ProtocolVersion != mcpProtocolVersion {
		m.logger.Warn("mcp server negotiated a different protocol version",
			zap.String("serverId", cfg.ServerID),
			zap.String("requested", mcpProtocolVersion),
			zap.String("negotiated", init.ProtocolVersion))
	}
	if err := conn.notify(ctx, "notifications/initialized", map[string]any{}); err != nil {
		m.logger.Warn("initialized notification failed",
			zap.String("serverId", cfg.ServerID), zap.Error(err))
	}

	m.mu.Lock()
	m.conns[cfg.ServerID] = conn
	m.mu.Unlock()

	m.logger.Info("mcp server connected",
		zap.String("serverId", cfg.ServerID),
		zap.String("serverName", init.ServerInfo.Name),
		zap.String("serverVersion", init.ServerInfo.Version))
	return nil
}

func (m *mcpClientImpl) Disconnect(serverID string) error {
	m.mu.Lock()
	_, existed := m.conns[serverID]
	delete(m.conns, serverID)
	m.mu.Unlock()

	if existed {
		m.logger.Info("mcp server disconnected", zap.String("serverId", serverID))
	}
	return nil
}

func (m *mcpClientImpl) DiscoverTools(ctx context.Context, serverID string) ([]models.McpTool, error) {
	conn, err := m.connection(serverID)
	if err != nil {
		return nil, err
	}

	var tools []models.McpTool
	cursor := ""
	for {
		params := map[string]any{}
		if cursor != "" {
			params["cursor"] = cursor
		}
		result, rpcErr, err := conn.call(ctx, "tools/list", params)
		if err != nil {
			return nil, fmt.Errorf("failed to list tools on %s: %w", serverID, err)
		}
		if rpcErr != nil {
			return nil, fmt.Errorf("failed to list tools on %s: %w", serverID, rpcErr)
		}
		var page mcpToolsListResult
		if err := json.Unmarshal(result, &page); err != nil {
			return nil, fmt.Errorf("failed to decode tool list from %s: %w", serverID, err)
		}
		tools = append(tools, page.Tools...)
		if page.NextCursor == "" {
			return tools, nil
		}
		cursor = page.NextCursor
	}
}

// CallTool reports tool-level problems through the response, not as Go
// errors; only an unknown server or caller cancellation is an error.
func (m *mcpClientImpl) CallTool(ctx context.Context, serverID, toolName string, params map[string]any) (*models.McpToolResponse, error) {
	conn, err := m.connection(serverID)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}

	resp := &models.McpToolResponse{ServerID: serverID, ToolName: toolName}
	start := time.Now()
	result, rpcErr, callErr := conn.call(ctx, "tools/call", map[string]any{
		"name":      toolName,
		"arguments": params,
	})
	resp.DurationMs = time.Since(start).Milliseconds()

	switch {
	case callErr != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp.Error = &models.McpError{Code: -32000, Message: callErr.Error()}
	case rpcErr != nil:
		resp.Error = rpcErr
	default:
		resp.Result = result
		var flags struct {
			IsError bool `json:"isError"`
		}
		if json.Unmarshal(result, &flags) == nil && flags.IsError {
			resp.Error = &models.McpError{Code: -32000, Message: "tool execution reported an error"}
		} else {
			resp.IsSuccess = true
		}
	}

	if !resp.IsSuccess {
		m.logger.Warn("mcp tool call failed",
			zap.String("serverId", serverID),
			zap.String("tool", toolName),
			zap.Any("mcpError", resp.Error))
	}
	return resp, nil
}

func (m *mcpClientImpl) Ping(ctx context.Context, serverID string) error {
	conn, err := m.connection(serverID)
	if err != nil {
		return err
	}
	_, rpcErr, callErr := conn.call(ctx, "ping", map[string]any{})
	if callErr != nil {
		return fmt.Errorf("failed to ping mcp server %s: %w", serverID, callErr)
	}
	if rpcErr != nil {
		return fmt.Errorf("failed to ping mcp server %s: %w", serverID, rpcErr)
	}
	return nil
}

func (m *mcpClientImpl) IsConnected(serverID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.conns[serverID]
	return ok
}

func (m *mcpClientImpl) ConnectedServers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *mcpClientImpl) connection(serverID string) (*mcpConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[serverID]
	if !ok {
		return nil, models.NewNotFoundError("mcp server", serverID)
	}
	return conn, nil
}
