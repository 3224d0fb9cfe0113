package models

// QueryIntent is the structured interpretation of a retrieval query,
// naming which databases and tables should be consulted.
type QueryIntent struct {
	Query                     string                `json:"query"`
	Understanding             string                `json:"understanding"`
	Confidence                float64               `json:"confidence"`
	Reasoning                 string                `json:"reasoning,omitempty"`
	RequiresCrossDatabaseJoin bool                  `json:"requiresCrossDatabaseJoin"`
	DatabaseIntents           []DatabaseQueryIntent `json:"databaseIntents,omitempty"`
}

// DatabaseQueryIntent targets one database. GeneratedSql stays empty until
// the coordinator fills it. Higher Priority merges first.
type DatabaseQueryIntent struct {
	DatabaseID     string   `json:"databaseId"`
	DatabaseName   string   `json:"databaseName"`
	RequiredTables []string `json:"requiredTables,omitempty"`
	GeneratedSql   string   `json:"generatedSql,omitempty"`
	Purpose        string   `json:"purpose,omitempty"`
	Priority       int      `json:"priority"`
}

// QueryIntentAnalysisResult is the analyzer verdict for one user query.
// When IsConversation is true the answer is pre-generated and no retrieval
// runs; otherwise Intent carries the routing plan.
type QueryIntentAnalysisResult struct {
	IsConversation       bool         `json:"isConversation"`
	Tokens               []string     `json:"tokens,omitempty"`
	ConversationalAnswer string       `json:"conversationalAnswer,omitempty"`
	Intent               *QueryIntent `json:"intent,omitempty"`
}
