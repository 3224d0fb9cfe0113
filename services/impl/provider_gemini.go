package impl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// geminiProvider fronts the Gemini API for both generation and
// embeddings through the official genai client.
type geminiProvider struct {
	client   *genai.Client
	settings config.ProviderSettings
}

func newGeminiProvider(ctx context.Context, settings config.ProviderSettings) (*geminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: settings.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &geminiProvider{client: client, settings: settings}, nil
}

func (p *geminiProvider) Name() string  { return "gemini" }
func (p *geminiProvider) Model() string { return p.settings.Model }

func (p *geminiProvider) GenerateText(ctx context.Context, prompt, systemMessage string) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if systemMessage != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemMessage, genai.RoleUser)
	}
	if p.settings.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.settings.MaxTokens)
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := p.client.Models.GenerateContent(ctx, p.settings.Model, contents, cfg)
	if err != nil {
		return "", geminiProviderError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", &models.ProviderError{Provider: "gemini", Message: "no candidates in response"}
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), nil
}

func (p *geminiProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.GenerateEmbeddingsBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, &models.ProviderError{Provider: "gemini", Message: "no embedding in response"}
	}
	return vectors[0], nil
}

func (p *geminiProvider) GenerateEmbeddingsBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := p.client.Models.EmbedContent(ctx, p.settings.EmbeddingModel, contents, &genai.EmbedContentConfig{
		TaskType: "SEMANTIC_SIMILARITY",
	})
	if err != nil {
		return nil, geminiProviderError(err)
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func geminiProviderError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &models.ProviderError{
			Provider:   "gemini",
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	return &models.ProviderError{Provider: "gemini", Message: "request failed", Err: err}
}
