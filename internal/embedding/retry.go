package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// BOUNDED RETRY WRAPPER
// =============================================================================

// RetryEngine wraps an Engine with bounded retry and exponential
// backoff for transient provider failures. Retries are local to a
// single call; exhaustion surfaces as an error to the caller rather
// than a silently-missing result.
type RetryEngine struct {
	inner       Engine
	maxAttempts int
	baseDelay   time.Duration
	logger      *zap.Logger
}

// NewRetryEngine wraps engine with up to maxAttempts attempts per
// call. The delay doubles after each failed attempt.
func NewRetryEngine(inner Engine, maxAttempts int, baseDelay time.Duration, logger *zap.Logger) *RetryEngine {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryEngine{
		inner:       inner,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      logger,
	}
}

// Embed generates an embedding, retrying transient failures.
func (r *RetryEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	delay := r.baseDelay

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		vec, err := r.inner.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err

		// Context cancellation is not transient
		if ctx.Err() != nil {
			return nil, fmt.Errorf("embed cancelled: %w", ctx.Err())
		}

		if attempt < r.maxAttempts {
			r.logger.Warn("embedding attempt failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.maxAttempts),
				zap.Duration("delay", delay),
				zap.Error(err))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("embed cancelled during backoff: %w", ctx.Err())
			}
			delay *= 2
		}
	}

	return nil, fmt.Errorf("embedding failed after %d attempts: %w", r.maxAttempts, lastErr)
}

// EmbedBatch embeds each text with per-item retry, so a transient
// failure midway through does not re-embed earlier items.
func (r *RetryEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := r.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

// Dimensions returns the wrapped engine's dimensionality.
func (r *RetryEngine) Dimensions() int {
	return r.inner.Dimensions()
}

// Name returns the wrapped engine's name.
func (r *RetryEngine) Name() string {
	return r.inner.Name()
}

// HealthCheck delegates to the wrapped engine when supported.
func (r *RetryEngine) HealthCheck(ctx context.Context) error {
	if hc, ok := r.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
