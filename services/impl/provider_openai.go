package impl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/models"
)

// openAIProvider speaks the OpenAI wire format (chat/completions and
// embeddings). The custom provider reuses it with a different name and
// base URL, which covers Ollama, LM Studio, and other compatible servers.
type openAIProvider struct {
	name     string
	settings config.ProviderSettings
	client   *http.Client
}

func newOpenAIProvider(name string, settings config.ProviderSettings, timeout time.Duration) *openAIProvider {
	return &openAIProvider{
		name:     name,
		settings: settings,
		client:   &http.Client{Timeout: timeout},
	}
}

func (p *openAIProvider) Name() string  { return p.name }
func (p *openAIProvider) Model() string { return p.settings.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (p *openAIProvider) GenerateText(ctx context.Context, prompt, systemMessage string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if systemMessage != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemMessage})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := p.doPost(ctx, "/chat/completions", chatCompletionRequest{
		Model:     p.settings.Model,
		Messages:  messages,
		MaxTokens: p.settings.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", &models.ProviderError{Provider: p.name, Message: "no choices in response"}
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *openAIProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.GenerateEmbeddingsBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, &models.ProviderError{Provider: p.name, Message: "no embedding in response"}
	}
	return vectors[0], nil
}

func (p *openAIProvider) GenerateEmbeddingsBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := p.doPost(ctx, "/embeddings", embeddingRequest{
		Model: p.settings.EmbeddingModel,
		Input: texts,
	})
	if err != nil {
		return nil, err
	}

	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	// Responses may arrive out of order; place each vector by index.
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	return vectors, nil
}

func (p *openAIProvider) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(p.settings.BaseURL, "/")+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.settings.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.settings.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &models.ProviderError{Provider: p.name, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.ProviderError{Provider: p.name, Message: "failed to read response body", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &models.ProviderError{
			Provider:   p.name,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return body, nil
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
