package impl

import (
	"context"
	"strings"
	"time"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// AIProvider is one concrete model backend. A provider performs a single
// call per operation; retry, fallback, and rate limiting belong to the
// gateway in front of it.
type AIProvider interface {
	Name() string
	Model() string
	GenerateText(ctx context.Context, prompt, systemMessage string) (string, error)
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddingsBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// newProvider resolves one provider by configured name. The custom
// provider speaks the OpenAI wire format against an arbitrary base URL.
func newProvider(ctx context.Context, name string, cfg *config.AIConfig) (AIProvider, error) {
	settings, ok := cfg.ProviderSettingsFor(name)
	if !ok {
		return nil, models.NewValidationError("unknown AI provider %q", name)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	switch strings.ToLower(name) {
	case "openai":
		return newOpenAIProvider("openai", settings, timeout), nil
	case "custom":
		if settings.BaseURL == "" {
			return nil, models.NewValidationError("custom provider requires AI_CUSTOM_BASE_URL")
		}
		return newOpenAIProvider("custom", settings, timeout), nil
	case "anthropic":
		return newAnthropicProvider(settings), nil
	case "gemini":
		return newGeminiProvider(ctx, settings)
	}
	return nil, models.NewValidationError("unknown AI provider %q", name)
}
