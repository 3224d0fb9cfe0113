package models

import "time"

// RagConfiguration is the configuration snapshot echoed with each answer.
type RagConfiguration struct {
	AIProvider      string `json:"aiProvider"`
	StorageProvider string `json:"storageProvider"`
	Model           string `json:"model"`
}

// SearchMetadata records which subsystems were consulted for an answer and
// how many results each returned.
type SearchMetadata struct {
	DocumentSearchPerformed bool `json:"documentSearchPerformed"`
	DocumentResultsFound    int  `json:"documentResultsFound"`
	DatabaseSearchPerformed bool `json:"databaseSearchPerformed"`
	DatabaseResultsFound    int  `json:"databaseResultsFound"`
	McpSearchPerformed      bool `json:"mcpSearchPerformed"`
	McpResultsFound         int  `json:"mcpResultsFound"`
}

type RagResponse struct {
	Query          string           `json:"query"`
	Answer         string           `json:"answer"`
	Sources        []Source         `json:"sources"`
	SearchedAt     time.Time        `json:"searchedAt"`
	Configuration  RagConfiguration `json:"configuration"`
	SearchMetadata SearchMetadata   `json:"searchMetadata"`
}

// QueryAnalysisRequest asks for the routing plan of a query without
// executing it.
type QueryAnalysisRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"sessionId,omitempty"`
}

// QueryAnalysisResponse exposes the intent and the generated SQL per
// database for inspection.
type QueryAnalysisResponse struct {
	IsConversation bool         `json:"isConversation"`
	Intent         *QueryIntent `json:"intent,omitempty"`
	AnalyzedAt     time.Time    `json:"analyzedAt"`
}
