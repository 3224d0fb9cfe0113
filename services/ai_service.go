package services

import "context"

// TextRequest is a single generation request through the gateway.
// SystemMessage overrides the configured default when set. History, when
// present, is prepended to the prompt so the model sees prior turns.
type TextRequest struct {
	Prompt        string
	SystemMessage string
	History       string
}

// AIGateway fronts the active provider with retry, fallback, and
// embedding rate-limiting. All orchestration code talks to providers
// through this interface only.
type AIGateway interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddingsBatch(ctx context.Context, texts []string) ([][]float32, error)
	ProviderName() string
	ModelName() string
}

// EmbeddingCache memoizes embedding vectors keyed by provider, model, and
// text hash. Backends: Redis or in-process memory.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, embedding []float32) error
	Clear(ctx context.Context) error
}
