package impl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/models"
	"github.com/byerlikaya/SmartRAG-sub014/services"
)

// aiGatewayImpl wraps the primary provider with the configured retry
// policy and tries each fallback provider once after the primary is
// exhausted. Embedding calls are spaced by EmbeddingMinIntervalMs.
type aiGatewayImpl struct {
	cfg       *config.Config
	logger    *zap.Logger
	primary   AIProvider
	fallbacks []AIProvider

	embedMu   sync.Mutex
	lastEmbed time.Time
	interval  time.Duration
}

func NewAIGateway(ctx context.Context, cfg *config.Config, logger *zap.Logger) (services.AIGateway, error) {
	primary, err := newProvider(ctx, cfg.AI.Provider, &cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("failed to build AI provider %s: %w", cfg.AI.Provider, err)
	}

	g := &aiGatewayImpl{
		cfg:      cfg,
		logger:   logger,
		primary:  primary,
		interval: time.Duration(cfg.AI.EmbeddingMinIntervalMs) * time.Millisecond,
	}
	for _, name := range cfg.AI.FallbackProviders {
		fb, err := newProvider(ctx, name, &cfg.AI)
		if err != nil {
			logger.Warn("skipping fallback provider", zap.String("provider", name), zap.Error(err))
			continue
		}
		g.fallbacks = append(g.fallbacks, fb)
	}
	return g, nil
}

func (g *aiGatewayImpl) ProviderName() string { return g.primary.Name() }
func (g *aiGatewayImpl) ModelName() string    { return g.primary.Model() }

func (g *aiGatewayImpl) GenerateText(ctx context.Context, req services.TextRequest) (string, error) {
	prompt := req.Prompt
	if req.History != "" {
		prompt = "Conversation so far:\n" + req.History + "\n\n" + prompt
	}
	system := req.SystemMessage
	if system == "" {
		system = g.cfg.AI.SystemMessage
	}

	var answer string
	err := g.call(ctx, "generate text", func(p AIProvider) error {
		var callErr error
		answer, callErr = p.GenerateText(ctx, prompt, system)
		return callErr
	})
	if err != nil {
		return "", err
	}
	return answer, nil
}

func (g *aiGatewayImpl) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := g.call(ctx, "generate embedding", func(p AIProvider) error {
		if err := g.waitEmbeddingSlot(ctx); err != nil {
			return err
		}
		var callErr error
		vector, callErr = p.GenerateEmbedding(ctx, text)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

func (g *aiGatewayImpl) GenerateEmbeddingsBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := g.call(ctx, "generate embeddings batch", func(p AIProvider) error {
		if err := g.waitEmbeddingSlot(ctx); err != nil {
			return err
		}
		var callErr error
		vectors, callErr = p.GenerateEmbeddingsBatch(ctx, texts)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// call runs one operation with retries against the primary, then tries
// each fallback exactly once. Fallbacks also run on terminal primary
// errors: a provider without embedding support is exactly the case a
// fallback is configured for.
func (g *aiGatewayImpl) call(ctx context.Context, operation string, fn func(AIProvider) error) error {
	attempts := g.cfg.AI.MaxRetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(g.primary)
		if lastErr == nil {
			return nil
		}
		if !retryableError(lastErr) || attempt == attempts {
			break
		}
		delay := g.retryDelay(attempt, lastErr)
		g.logger.Warn("provider call failed, retrying",
			zap.String("operation", operation),
			zap.String("provider", g.primary.Name()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if !g.cfg.Features.EnableFallbackProviders {
		return lastErr
	}
	for _, fb := range g.fallbacks {
		g.logger.Warn("trying fallback provider",
			zap.String("operation", operation),
			zap.String("provider", fb.Name()),
			zap.Error(lastErr))
		if err := fn(fb); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return lastErr
}

func retryableError(err error) bool {
	var pe *models.ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}

// retryDelay applies the configured policy; a 429 Retry-After acts as a
// floor on the computed delay.
func (g *aiGatewayImpl) retryDelay(attempt int, err error) time.Duration {
	base := time.Duration(g.cfg.AI.RetryDelayMs) * time.Millisecond
	if base <= 0 {
		base = time.Second
	}

	var delay time.Duration
	switch strings.ToLower(g.cfg.AI.RetryPolicy) {
	case "fixed":
		delay = base
	case "linear":
		delay = base * time.Duration(attempt)
	default:
		delay = base * time.Duration(1<<(attempt-1))
	}

	var pe *models.ProviderError
	if errors.As(err, &pe) && pe.RetryAfter > delay {
		delay = pe.RetryAfter
	}
	return delay
}

// waitEmbeddingSlot reserves the next embedding slot, spacing requests by
// the configured minimum interval (token bucket of one).
func (g *aiGatewayImpl) waitEmbeddingSlot(ctx context.Context) error {
	if g.interval <= 0 {
		return nil
	}
	g.embedMu.Lock()
	next := g.lastEmbed.Add(g.interval)
	now := time.Now()
	if next.Before(now) {
		next = now
	}
	g.lastEmbed = next
	g.embedMu.Unlock()

	if wait := time.Until(next); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
