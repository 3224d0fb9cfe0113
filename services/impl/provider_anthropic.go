package impl

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// anthropicProvider fronts the Claude Messages API. Anthropic exposes no
// embeddings endpoint, so embedding calls fail fast with a validation
// error telling the operator to configure a fallback provider.
type anthropicProvider struct {
	messages *sdk.MessageService
	settings config.ProviderSettings
}

func newAnthropicProvider(settings config.ProviderSettings) *anthropicProvider {
	client := sdk.NewClient(option.WithAPIKey(settings.APIKey))
	return &anthropicProvider{messages: &client.Messages, settings: settings}
}

func (p *anthropicProvider) Name() string  { return "anthropic" }
func (p *anthropicProvider) Model() string { return p.settings.Model }

func (p *anthropicProvider) GenerateText(ctx context.Context, prompt, systemMessage string) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.settings.Model),
		MaxTokens: int64(p.settings.MaxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	}
	if systemMessage != "" {
		params.System = []sdk.TextBlockParam{{Text: systemMessage}}
	}

	msg, err := p.messages.New(ctx, params)
	if err != nil {
		return "", anthropicProviderError(err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

func (p *anthropicProvider) GenerateEmbedding(context.Context, string) ([]float32, error) {
	return nil, errAnthropicEmbeddings()
}

func (p *anthropicProvider) GenerateEmbeddingsBatch(context.Context, []string) ([][]float32, error) {
	return nil, errAnthropicEmbeddings()
}

func errAnthropicEmbeddings() error {
	return models.NewValidationError("anthropic does not support embeddings; configure an embedding-capable fallback provider")
}

// anthropicProviderError lifts SDK failures into the provider error
// taxonomy so the gateway can tell retryable from terminal.
func anthropicProviderError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &models.ProviderError{
			Provider:   "anthropic",
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Error(),
			Err:        err,
		}
	}
	return &models.ProviderError{Provider: "anthropic", Message: "request failed", Err: err}
}
