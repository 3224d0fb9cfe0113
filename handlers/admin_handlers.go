package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/models"
	"github.com/byerlikaya/SmartRAG-sub014/services"
	"github.com/byerlikaya/SmartRAG-sub014/services/database"
)

// secretKeyPattern matches setting names whose values must never leave the
// process: api keys, passwords, tokens, connection strings.
var secretKeyPattern = regexp.MustCompile(`(?i)key|password|secret|token|authorization|connectionstring`)

type AdminHandlers struct {
	cfg           *config.Config
	catalog       *database.SchemaCatalog
	healthService services.HealthService
	orchestrator  services.QueryOrchestrator
}

func NewAdminHandlers(
	cfg *config.Config,
	catalog *database.SchemaCatalog,
	healthService services.HealthService,
	orchestrator services.QueryOrchestrator,
) *AdminHandlers {
	return &AdminHandlers{
		cfg:           cfg,
		catalog:       catalog,
		healthService: healthService,
		orchestrator:  orchestrator,
	}
}

// GetSettings returns the effective configuration with every secret-bearing
// field replaced by "***".
func (h *AdminHandlers) GetSettings(c *gin.Context) {
	raw, err := json.Marshal(h.cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read settings", "details": err.Error()})
		return
	}
	var snapshot map[string]any
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read settings", "details": err.Error()})
		return
	}
	maskSecrets(snapshot)
	c.JSON(http.StatusOK, snapshot)
}

// maskSecrets walks the settings tree and overwrites values whose key looks
// secret-bearing. Only string leaves are masked; empty strings stay empty so
// unset settings remain recognizable.
func maskSecrets(node map[string]any) {
	for key, value := range node {
		switch v := value.(type) {
		case map[string]any:
			maskSecrets(v)
		case []any:
			for _, item := range v {
				if child, ok := item.(map[string]any); ok {
					maskSecrets(child)
				}
			}
		case string:
			if v != "" && secretKeyPattern.MatchString(key) {
				node[key] = "***"
			}
		}
	}
}

func (h *AdminHandlers) GetConnections(c *gin.Context) {
	statuses := h.catalog.ConnectionStatuses(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"count": len(statuses), "connections": statuses})
}

func (h *AdminHandlers) GetHealth(c *gin.Context) {
	report := h.healthService.Check(c.Request.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func (h *AdminHandlers) GetSchemas(c *gin.Context) {
	schemas := h.catalog.Schemas()
	c.JSON(http.StatusOK, gin.H{"count": len(schemas), "schemas": schemas})
}

// AnalyzeQuery returns the routing decision and generated SQL for a query
// without executing anything against the databases.
func (h *AdminHandlers) AnalyzeQuery(c *gin.Context) {
	var req models.QueryAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	resp, err := h.orchestrator.AnalyzeQuery(c.Request.Context(), req.Query)
	if err != nil {
		respondError(c, "Failed to analyze query", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
