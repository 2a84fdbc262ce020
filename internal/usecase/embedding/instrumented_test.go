package embedding

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/mnemo/internal/domain"
	"github.com/kailas-cloud/mnemo/internal/metrics"
)

func init() {
	metrics.RegisterEmbeddingMetrics()
}

func TestInstrumentedProvider_RecordsBudget(t *testing.T) {
	inner := &mockProvider{name: "openai", configured: true}
	inner.embedFn = func(_ context.Context, _, _ string) (domain.EmbeddingResult, error) {
		return domain.EmbeddingResult{Embedding: []float32{0.1}, TotalTokens: 42}, nil
	}
	budget := &mockBudget{}
	ip := NewInstrumentedProvider(inner, budget, zap.NewNop())

	if _, err := ip.Embed(context.Background(), "hi", "m1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if budget.recorded != 42 {
		t.Errorf("expected 42 tokens recorded, got %d", budget.recorded)
	}
}

func TestInstrumentedProvider_BudgetRejects(t *testing.T) {
	inner := &mockProvider{name: "openai", configured: true}
	budget := &mockBudget{checkErr: domain.ErrEmbeddingQuotaExceeded}
	ip := NewInstrumentedProvider(inner, budget, zap.NewNop())

	_, err := ip.Embed(context.Background(), "hi", "m1")
	if !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected ErrEmbeddingQuotaExceeded, got %v", err)
	}
	if inner.embedCalls != 0 {
		t.Errorf("provider must not be called past a rejected budget, got %d calls", inner.embedCalls)
	}
}

func TestInstrumentedProvider_UsageCollector(t *testing.T) {
	inner := &mockProvider{name: "openai", configured: true}
	inner.embedFn = func(_ context.Context, _, _ string) (domain.EmbeddingResult, error) {
		return domain.EmbeddingResult{Embedding: []float32{0.1}, TotalTokens: 7}, nil
	}
	ip := NewInstrumentedProvider(inner, nil, zap.NewNop())

	ctx, usage := domain.NewContextWithUsage(context.Background())
	if _, err := ip.Embed(ctx, "hi", "m1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !usage.Used || usage.TotalTokens != 7 {
		t.Errorf("expected usage collector to see 7 tokens, got %+v", usage)
	}
}

func TestInstrumentedProvider_BatchChunks(t *testing.T) {
	inner := &mockProvider{name: "openai", configured: true}
	var chunkSizes []int
	inner.batchEmbedFn = func(_ context.Context, texts []string, _ string) (domain.BatchEmbeddingResult, error) {
		chunkSizes = append(chunkSizes, len(texts))
		return domain.BatchEmbeddingResult{
			Embeddings:  make([][]float32, len(texts)),
			TotalTokens: len(texts),
		}, nil
	}
	ip := NewInstrumentedProvider(inner, &mockBudget{}, zap.NewNop())

	texts := make([]string, DefaultMaxAPIBatchSize+10)
	res, err := ip.BatchEmbed(context.Background(), texts, "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunkSizes) != 2 || chunkSizes[0] != DefaultMaxAPIBatchSize || chunkSizes[1] != 10 {
		t.Errorf("unexpected chunking: %v", chunkSizes)
	}
	if len(res.Embeddings) != len(texts) {
		t.Errorf("expected %d embeddings, got %d", len(texts), len(res.Embeddings))
	}
	if res.TotalTokens != len(texts) {
		t.Errorf("expected aggregated tokens %d, got %d", len(texts), res.TotalTokens)
	}
}

func TestInstrumentedProvider_EmptyBatch(t *testing.T) {
	inner := &mockProvider{name: "openai", configured: true}
	ip := NewInstrumentedProvider(inner, &mockBudget{}, zap.NewNop())

	res, err := ip.BatchEmbed(context.Background(), nil, "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 0 || inner.batchEmbedCalls != 0 {
		t.Errorf("expected no-op for empty batch")
	}
}
