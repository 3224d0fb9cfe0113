package models

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// McpServerConfig identifies one JSON-RPC tool server.
type McpServerConfig struct {
	ServerID       string            `json:"serverId"`
	Endpoint       string            `json:"endpoint"`
	Headers        map[string]string `json:"headers,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty"`
	AutoConnect    bool              `json:"autoConnect"`
	Enabled        bool              `json:"enabled"`
}

// Validate rejects configs without a server id or with a non-absolute
// endpoint URL.
func (c *McpServerConfig) Validate() error {
	if c.ServerID == "" {
		return NewValidationError("mcp server config requires a serverId")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return NewValidationError("mcp server %s requires an absolute endpoint URL, got %q", c.ServerID, c.Endpoint)
	}
	return nil
}

// McpTool is one tool advertised by a connected server.
type McpTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type McpError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *McpError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// McpToolResponse is the outcome of one tool call. IsSuccess mirrors
// whether the JSON-RPC response carried a result or an error object.
type McpToolResponse struct {
	ServerID   string          `json:"serverId"`
	ToolName   string          `json:"toolName"`
	IsSuccess  bool            `json:"isSuccess"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *McpError       `json:"error,omitempty"`
	DurationMs int64           `json:"durationMs"`
}
