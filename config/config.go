package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/byerlikaya/SmartRAG-sub014/models"
)

type Config struct {
	Server       ServerConfig               `json:"server"`
	AI           AIConfig                   `json:"ai"`
	Storage      StorageConfig              `json:"storage"`
	Conversation ConversationConfig         `json:"conversation"`
	Chunking     ChunkingConfig             `json:"chunking"`
	Query        QueryConfig                `json:"query"`
	Redis        RedisConfig                `json:"redis"`
	Logging      LoggingConfig              `json:"logging"`
	Features     FeatureFlags               `json:"features"`
	Databases    []DatabaseConnectionConfig `json:"databases"`
	McpServers   []models.McpServerConfig   `json:"mcpServers"`
	FileWatcher  FileWatcherConfig          `json:"fileWatcher"`
}

type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	BasePath       string   `json:"base_path"`
	ReadTimeout    int      `json:"read_timeout"`
	WriteTimeout   int      `json:"write_timeout"`
	IdleTimeout    int      `json:"idle_timeout"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// ProviderSettings holds per-provider credentials and model names.
type ProviderSettings struct {
	APIKey         string `json:"api_key"`
	Model          string `json:"model"`
	EmbeddingModel string `json:"embedding_model"`
	BaseURL        string `json:"base_url"`
	MaxTokens      int    `json:"max_tokens"`
}

type AIConfig struct {
	Provider               string           `json:"provider"`
	FallbackProviders      []string         `json:"fallback_providers"`
	MaxRetryAttempts       int              `json:"max_retry_attempts"`
	RetryDelayMs           int              `json:"retry_delay_ms"`
	RetryPolicy            string           `json:"retry_policy"` // fixed, linear, exponential
	EmbeddingMinIntervalMs int              `json:"embedding_min_interval_ms"`
	EmbeddingBatchSize     int              `json:"embedding_batch_size"`
	TimeoutSeconds         int              `json:"timeout_seconds"`
	SystemMessage          string           `json:"system_message"`
	OpenAI                 ProviderSettings `json:"openai"`
	Anthropic              ProviderSettings `json:"anthropic"`
	Gemini                 ProviderSettings `json:"gemini"`
	Custom                 ProviderSettings `json:"custom"`
}

// ProviderSettingsFor returns the settings block for a provider name.
func (c *AIConfig) ProviderSettingsFor(name string) (ProviderSettings, bool) {
	switch strings.ToLower(name) {
	case "openai":
		return c.OpenAI, true
	case "anthropic":
		return c.Anthropic, true
	case "gemini":
		return c.Gemini, true
	case "custom":
		return c.Custom, true
	}
	return ProviderSettings{}, false
}

type StorageConfig struct {
	Provider       string `json:"provider"` // memory, redis, sqlite
	SqlitePath     string `json:"sqlite_path"`
	CollectionName string `json:"collection_name"`
	EmbeddingDim   int    `json:"embedding_dim"`
}

type ConversationConfig struct {
	Provider              string `json:"provider"` // memory, redis, sqlite, postgres
	MaxConversationLength int    `json:"max_conversation_length"`
	SqlitePath            string `json:"sqlite_path"`
	PostgresDSN           string `json:"postgres_dsn"`
	SessionTTLSeconds     int    `json:"session_ttl_seconds"`
}

type ChunkingConfig struct {
	MinChunkSize     int `json:"min_chunk_size"`
	MaxChunkSize     int `json:"max_chunk_size"`
	ChunkOverlap     int `json:"chunk_overlap"`
	BoundaryLookback int `json:"boundary_lookback"`
}

type QueryConfig struct {
	MaxResults          int     `json:"max_results"`
	MaxContextChars     int     `json:"max_context_chars"`
	QueryTimeoutSeconds int     `json:"query_timeout_seconds"`
	MaxRowsPerQuery     int     `json:"max_rows_per_query"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	PreferredLanguage   string  `json:"preferred_language"` // ISO 639-1, empty means detect
}

type RedisConfig struct {
	Host                 string `json:"host"`
	Port                 int    `json:"port"`
	Password             string `json:"password"`
	DB                   int    `json:"db"`
	EmbeddingCacheTTL    int    `json:"embedding_cache_ttl"` // seconds
	EnableEmbeddingCache bool   `json:"enable_embedding_cache"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type FeatureFlags struct {
	EnableDocumentSearch     bool `json:"enable_document_search"`
	EnableDatabaseSearch     bool `json:"enable_database_search"`
	EnableMcpClient          bool `json:"enable_mcp_client"`
	EnableFallbackProviders  bool `json:"enable_fallback_providers"`
	EnableFileWatcher        bool `json:"enable_file_watcher"`
	AssumeDocumentsCanAnswer bool `json:"assume_documents_can_answer"`
}

// DatabaseConnectionConfig describes one relational database the
// coordinator may route queries to.
type DatabaseConnectionConfig struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Type             string `json:"type"` // SQLite, SqlServer, MySQL, PostgreSQL
	ConnectionString string `json:"connectionString"`
	Enabled          bool   `json:"enabled"`
}

// DatabaseID returns the configured id, deriving one from the name when
// absent (lowercased, spaces collapsed to dashes).
func (d *DatabaseConnectionConfig) DatabaseID() string {
	if d.ID != "" {
		return d.ID
	}
	id := strings.ToLower(strings.TrimSpace(d.Name))
	return strings.Join(strings.Fields(id), "-")
}

type WatchedFolderConfig struct {
	Path                  string   `json:"path"`
	IncludeSubdirectories bool     `json:"includeSubdirectories"`
	AllowedExtensions     []string `json:"allowedExtensions,omitempty"`
}

type FileWatcherConfig struct {
	BaseDirectory    string                `json:"base_directory"`
	Folders          []WatchedFolderConfig `json:"folders"`
	DebounceMs       int                   `json:"debounce_ms"`
	MaxRetryAttempts int                   `json:"max_retry_attempts"`
	RetryDelayMs     int                   `json:"retry_delay_ms"`
}

func LoadConfig() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			BasePath:       getEnv("SERVER_BASE_PATH", "/smartrag"),
			ReadTimeout:    getEnvAsInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvAsInt("SERVER_WRITE_TIMEOUT", 120),
			IdleTimeout:    getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		AI: AIConfig{
			Provider:               getEnv("AI_PROVIDER", "openai"),
			FallbackProviders:      getEnvAsSlice("AI_FALLBACK_PROVIDERS", nil),
			MaxRetryAttempts:       getEnvAsInt("AI_MAX_RETRY_ATTEMPTS", 3),
			RetryDelayMs:           getEnvAsInt("AI_RETRY_DELAY_MS", 1000),
			RetryPolicy:            getEnv("AI_RETRY_POLICY", "exponential"),
			EmbeddingMinIntervalMs: getEnvAsInt("AI_EMBEDDING_MIN_INTERVAL_MS", 0),
			EmbeddingBatchSize:     getEnvAsInt("AI_EMBEDDING_BATCH_SIZE", 32),
			TimeoutSeconds:         getEnvAsInt("AI_TIMEOUT_SECONDS", 120),
			SystemMessage:          getEnv("AI_SYSTEM_MESSAGE", ""),
			OpenAI: ProviderSettings{
				APIKey:         getEnv("OPENAI_API_KEY", ""),
				Model:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
				EmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
				BaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				MaxTokens:      getEnvAsInt("OPENAI_MAX_TOKENS", 4096),
			},
			Anthropic: ProviderSettings{
				APIKey:    getEnv("ANTHROPIC_API_KEY", ""),
				Model:     getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
				MaxTokens: getEnvAsInt("ANTHROPIC_MAX_TOKENS", 4096),
			},
			Gemini: ProviderSettings{
				APIKey:         getEnv("GEMINI_API_KEY", ""),
				Model:          getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
				EmbeddingModel: getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),
				MaxTokens:      getEnvAsInt("GEMINI_MAX_TOKENS", 4096),
			},
			Custom: ProviderSettings{
				APIKey:         getEnv("CUSTOM_API_KEY", ""),
				Model:          getEnv("CUSTOM_MODEL", ""),
				EmbeddingModel: getEnv("CUSTOM_EMBEDDING_MODEL", ""),
				BaseURL:        getEnv("CUSTOM_BASE_URL", ""),
				MaxTokens:      getEnvAsInt("CUSTOM_MAX_TOKENS", 4096),
			},
		},
		Storage: StorageConfig{
			Provider:       getEnv("STORAGE_PROVIDER", "memory"),
			SqlitePath:     getEnv("STORAGE_SQLITE_PATH", "data/smartrag.db"),
			CollectionName: getEnv("STORAGE_COLLECTION_NAME", "documents"),
			EmbeddingDim:   getEnvAsInt("STORAGE_EMBEDDING_DIM", 1536),
		},
		Conversation: ConversationConfig{
			Provider:              getEnv("CONVERSATION_PROVIDER", "memory"),
			MaxConversationLength: getEnvAsInt("MAX_CONVERSATION_LENGTH", 8000),
			SqlitePath:            getEnv("CONVERSATION_SQLITE_PATH", "data/conversations.db"),
			PostgresDSN:           getEnv("CONVERSATION_POSTGRES_DSN", ""),
			SessionTTLSeconds:     getEnvAsInt("CONVERSATION_SESSION_TTL", 0),
		},
		Chunking: ChunkingConfig{
			MinChunkSize:     getEnvAsInt("MIN_CHUNK_SIZE", 100),
			MaxChunkSize:     getEnvAsInt("MAX_CHUNK_SIZE", 1000),
			ChunkOverlap:     getEnvAsInt("CHUNK_OVERLAP", 200),
			BoundaryLookback: getEnvAsInt("CHUNK_BOUNDARY_LOOKBACK", 100),
		},
		Query: QueryConfig{
			MaxResults:          getEnvAsInt("QUERY_MAX_RESULTS", 5),
			MaxContextChars:     getEnvAsInt("QUERY_MAX_CONTEXT_CHARS", 24000),
			QueryTimeoutSeconds: getEnvAsInt("QUERY_TIMEOUT_SECONDS", 30),
			MaxRowsPerQuery:     getEnvAsInt("QUERY_MAX_ROWS", 100),
			ConfidenceThreshold: getEnvAsFloat("QUERY_CONFIDENCE_THRESHOLD", 0.6),
			PreferredLanguage:   getEnv("QUERY_PREFERRED_LANGUAGE", ""),
		},
		Redis: RedisConfig{
			Host:                 getEnv("REDIS_HOST", "localhost"),
			Port:                 getEnvAsInt("REDIS_PORT", 6379),
			Password:             getEnv("REDIS_PASSWORD", ""),
			DB:                   getEnvAsInt("REDIS_DB", 0),
			EmbeddingCacheTTL:    getEnvAsInt("REDIS_EMBEDDING_CACHE_TTL", 86400),
			EnableEmbeddingCache: getEnvAsBool("REDIS_ENABLE_EMBEDDING_CACHE", true),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Features: FeatureFlags{
			EnableDocumentSearch:     getEnvAsBool("ENABLE_DOCUMENT_SEARCH", true),
			EnableDatabaseSearch:     getEnvAsBool("ENABLE_DATABASE_SEARCH", true),
			EnableMcpClient:          getEnvAsBool("ENABLE_MCP_CLIENT", false),
			EnableFallbackProviders:  getEnvAsBool("ENABLE_FALLBACK_PROVIDERS", false),
			EnableFileWatcher:        getEnvAsBool("ENABLE_FILE_WATCHER", false),
			AssumeDocumentsCanAnswer: getEnvAsBool("ASSUME_DOCUMENTS_CAN_ANSWER", true),
		},
		FileWatcher: FileWatcherConfig{
			BaseDirectory:    getEnv("WATCHER_BASE_DIRECTORY", ""),
			DebounceMs:       getEnvAsInt("WATCHER_DEBOUNCE_MS", 750),
			MaxRetryAttempts: getEnvAsInt("WATCHER_MAX_RETRY_ATTEMPTS", 3),
			RetryDelayMs:     getEnvAsInt("WATCHER_RETRY_DELAY_MS", 1000),
		},
	}

	if err := getEnvAsJSON("DATABASE_CONNECTIONS", &config.Databases); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_CONNECTIONS: %w", err)
	}
	if err := getEnvAsJSON("MCP_SERVERS", &config.McpServers); err != nil {
		return nil, fmt.Errorf("parsing MCP_SERVERS: %w", err)
	}
	if err := getEnvAsJSON("WATCHED_FOLDERS", &config.FileWatcher.Folders); err != nil {
		return nil, fmt.Errorf("parsing WATCHED_FOLDERS: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// EnabledDatabases filters the configured connections down to the ones
// the catalog should analyze.
func (c *Config) EnabledDatabases() []DatabaseConnectionConfig {
	var enabled []DatabaseConnectionConfig
	for _, db := range c.Databases {
		if db.Enabled {
			enabled = append(enabled, db)
		}
	}
	return enabled
}

func validateConfig(config *Config) error {
	switch strings.ToLower(config.AI.Provider) {
	case "openai", "anthropic", "gemini", "custom":
	default:
		return fmt.Errorf("unknown AI provider %q (AI_PROVIDER)", config.AI.Provider)
	}

	switch config.AI.RetryPolicy {
	case "fixed", "linear", "exponential":
	default:
		return fmt.Errorf("retry policy must be fixed, linear, or exponential (AI_RETRY_POLICY)")
	}

	switch config.Storage.Provider {
	case "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("unknown storage provider %q (STORAGE_PROVIDER)", config.Storage.Provider)
	}

	switch config.Conversation.Provider {
	case "memory", "redis", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown conversation provider %q (CONVERSATION_PROVIDER)", config.Conversation.Provider)
	}
	if config.Conversation.Provider == "postgres" && config.Conversation.PostgresDSN == "" {
		return fmt.Errorf("postgres conversation store requires CONVERSATION_POSTGRES_DSN")
	}

	if config.Chunking.MaxChunkSize <= 0 || config.Chunking.MinChunkSize <= 0 {
		return fmt.Errorf("chunk sizes must be positive (MIN_CHUNK_SIZE, MAX_CHUNK_SIZE)")
	}
	if config.Chunking.MinChunkSize > config.Chunking.MaxChunkSize {
		return fmt.Errorf("MIN_CHUNK_SIZE cannot exceed MAX_CHUNK_SIZE")
	}
	if config.Chunking.ChunkOverlap >= config.Chunking.MaxChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be smaller than MAX_CHUNK_SIZE")
	}

	for i := range config.Databases {
		db := &config.Databases[i]
		switch models.DatabaseType(db.Type) {
		case models.DatabaseTypeSQLite, models.DatabaseTypeSqlServer, models.DatabaseTypeMySQL, models.DatabaseTypePostgreSQL:
		default:
			return fmt.Errorf("database %q has unknown type %q", db.Name, db.Type)
		}
		if db.Enabled && db.ConnectionString == "" {
			return fmt.Errorf("database %q is enabled but has no connection string", db.Name)
		}
	}

	for i := range config.McpServers {
		if err := config.McpServers[i].Validate(); err != nil {
			return err
		}
	}

	if !strings.HasPrefix(config.Server.BasePath, "/") {
		config.Server.BasePath = "/" + config.Server.BasePath
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

// getEnvAsJSON unmarshals a JSON-encoded environment variable into out.
// An unset variable leaves out untouched.
func getEnvAsJSON(key string, out any) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	return json.Unmarshal([]byte(value), out)
}
