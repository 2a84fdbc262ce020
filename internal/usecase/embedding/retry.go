package embedding

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/mnemo/internal/domain"
)

// DefaultAttemptTimeout bounds a single provider call.
const DefaultAttemptTimeout = 30 * time.Second

// RetryProvider decorates a provider with a per-attempt timeout and a single
// retry on transient failures. Non-transient errors surface immediately.
type RetryProvider struct {
	inner          domain.Provider
	attemptTimeout time.Duration
	logger         *zap.Logger
}

// NewRetryProvider wraps a provider with retry behavior.
func NewRetryProvider(inner domain.Provider, attemptTimeout time.Duration, logger *zap.Logger) *RetryProvider {
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	return &RetryProvider{inner: inner, attemptTimeout: attemptTimeout, logger: logger}
}

// Name delegates to the wrapped provider.
func (r *RetryProvider) Name() string { return r.inner.Name() }

// Models delegates to the wrapped provider.
func (r *RetryProvider) Models() []domain.ModelInfo { return r.inner.Models() }

// IsConfigured delegates to the wrapped provider.
func (r *RetryProvider) IsConfigured() bool { return r.inner.IsConfigured() }

// Embed calls the wrapped provider, retrying once on ErrProviderUnavailable.
func (r *RetryProvider) Embed(ctx context.Context, text, modelID string) (domain.EmbeddingResult, error) {
	var res domain.EmbeddingResult
	err := r.withRetry(ctx, modelID, func(attemptCtx context.Context) error {
		var innerErr error
		res, innerErr = r.inner.Embed(attemptCtx, text, modelID)
		return innerErr
	})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return res, nil
}

// BatchEmbed calls the wrapped provider, retrying once on ErrProviderUnavailable.
func (r *RetryProvider) BatchEmbed(
	ctx context.Context, texts []string, modelID string,
) (domain.BatchEmbeddingResult, error) {
	var res domain.BatchEmbeddingResult
	err := r.withRetry(ctx, modelID, func(attemptCtx context.Context) error {
		var innerErr error
		res, innerErr = r.inner.BatchEmbed(attemptCtx, texts, modelID)
		return innerErr
	})
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	return res, nil
}

func (r *RetryProvider) withRetry(ctx context.Context, modelID string, call func(context.Context) error) error {
	err := r.attempt(ctx, call)
	if err == nil || !errors.Is(err, domain.ErrProviderUnavailable) {
		return err
	}
	if ctx.Err() != nil {
		return err
	}

	r.logger.Warn("Embedding provider unavailable, retrying once",
		zap.String("provider", r.inner.Name()),
		zap.String("model", modelID),
		zap.Error(err),
	)

	return r.attempt(ctx, call)
}

func (r *RetryProvider) attempt(ctx context.Context, call func(context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()
	return call(attemptCtx)
}
