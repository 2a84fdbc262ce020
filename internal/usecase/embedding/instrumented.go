package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/mnemo/internal/domain"
	"github.com/kailas-cloud/mnemo/internal/metrics"
)

// DefaultMaxAPIBatchSize caps how many texts go into one upstream API call.
const DefaultMaxAPIBatchSize = 256

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// InstrumentedProvider decorates a provider with budget enforcement, request
// logging and per-request usage accounting. Transport metrics (requests,
// duration, tokens) are recorded in transport/openai; this layer owns budget
// tracking and budget metrics only.
type InstrumentedProvider struct {
	inner  domain.Provider
	budget BudgetChecker
	logger *zap.Logger
}

// NewInstrumentedProvider wraps a provider with budget and observability.
func NewInstrumentedProvider(inner domain.Provider, budget BudgetChecker, logger *zap.Logger) *InstrumentedProvider {
	return &InstrumentedProvider{inner: inner, budget: budget, logger: logger}
}

// Name delegates to the wrapped provider.
func (p *InstrumentedProvider) Name() string { return p.inner.Name() }

// Models delegates to the wrapped provider.
func (p *InstrumentedProvider) Models() []domain.ModelInfo { return p.inner.Models() }

// IsConfigured delegates to the wrapped provider.
func (p *InstrumentedProvider) IsConfigured() bool { return p.inner.IsConfigured() }

// Embed checks budget, delegates to the wrapped provider, and records usage.
func (p *InstrumentedProvider) Embed(ctx context.Context, text, modelID string) (domain.EmbeddingResult, error) {
	if err := p.checkBudget(ctx, modelID, 1); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.inner.Embed(ctx, text, modelID)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.inner.Name()),
			zap.String("model", modelID),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.recordUsage(ctx, result.TotalTokens)

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.inner.Name()),
		zap.String("model", modelID),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// BatchEmbed checks budget, splits into API-sized chunks, delegates to the
// wrapped provider, and records usage.
func (p *InstrumentedProvider) BatchEmbed(
	ctx context.Context, texts []string, modelID string,
) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{Model: modelID}, nil
	}

	if err := p.checkBudget(ctx, modelID, len(texts)); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.embedChunked(ctx, texts, modelID)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	duration := time.Since(start)

	p.recordUsage(ctx, result.TotalTokens)

	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.inner.Name()),
		zap.String("model", modelID),
		zap.Duration("duration", duration),
		zap.Int("batch_size", len(texts)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// embedChunked splits texts into chunks of DefaultMaxAPIBatchSize, re-checking
// the budget between chunks.
func (p *InstrumentedProvider) embedChunked(
	ctx context.Context, texts []string, modelID string,
) (domain.BatchEmbeddingResult, error) {
	out := domain.BatchEmbeddingResult{Model: modelID}

	for offset := 0; offset < len(texts); offset += DefaultMaxAPIBatchSize {
		if offset > 0 {
			if err := p.checkBudget(ctx, modelID, len(texts)-offset); err != nil {
				return domain.BatchEmbeddingResult{}, fmt.Errorf("chunk %d: %w", offset, err)
			}
		}

		end := min(offset+DefaultMaxAPIBatchSize, len(texts))
		chunk, err := p.inner.BatchEmbed(ctx, texts[offset:end], modelID)
		if err != nil {
			p.logger.Error("Batch embedding request failed",
				zap.String("provider", p.inner.Name()),
				zap.String("model", modelID),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", end-offset),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}

		out.Embeddings = append(out.Embeddings, chunk.Embeddings...)
		out.Dimensions = chunk.Dimensions
		out.PromptTokens += chunk.PromptTokens
		out.TotalTokens += chunk.TotalTokens
	}

	return out, nil
}

func (p *InstrumentedProvider) checkBudget(ctx context.Context, modelID string, batchSize int) error {
	if p.budget == nil {
		return nil
	}
	if err := p.budget.Check(ctx); err != nil {
		p.logger.Error("Budget exceeded",
			zap.String("provider", p.inner.Name()),
			zap.String("model", modelID),
			zap.Int("batch_size", batchSize),
			zap.Error(err),
		)
		return fmt.Errorf("budget check: %w", err)
	}
	return nil
}

// recordUsage feeds consumed tokens into the budget tracker and the
// per-request usage collector, if the handler installed one.
func (p *InstrumentedProvider) recordUsage(ctx context.Context, totalTokens int) {
	if totalTokens <= 0 {
		return
	}

	domain.UsageFromContext(ctx).AddTokens(totalTokens)

	if p.budget == nil {
		return
	}
	p.budget.Record(int64(totalTokens))
	remaining := metrics.EmbeddingBudgetTokensRemaining
	remaining.WithLabelValues(p.inner.Name(), "daily").Set(float64(p.budget.RemainingDaily()))
	remaining.WithLabelValues(p.inner.Name(), "monthly").Set(float64(p.budget.RemainingMonthly()))
}
