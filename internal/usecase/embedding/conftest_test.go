package embedding

import (
	"context"

	"github.com/kailas-cloud/mnemo/internal/domain"
)

// mockProvider implements domain.Provider for tests.
type mockProvider struct {
	name       string
	models     []domain.ModelInfo
	configured bool

	embedFn      func(ctx context.Context, text, modelID string) (domain.EmbeddingResult, error)
	batchEmbedFn func(ctx context.Context, texts []string, modelID string) (domain.BatchEmbeddingResult, error)

	embedCalls      int
	batchEmbedCalls int
}

func (m *mockProvider) Name() string               { return m.name }
func (m *mockProvider) Models() []domain.ModelInfo { return m.models }
func (m *mockProvider) IsConfigured() bool         { return m.configured }

func (m *mockProvider) Embed(ctx context.Context, text, modelID string) (domain.EmbeddingResult, error) {
	m.embedCalls++
	if m.embedFn != nil {
		return m.embedFn(ctx, text, modelID)
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1}, Model: modelID, Dimensions: 1}, nil
}

func (m *mockProvider) BatchEmbed(
	ctx context.Context, texts []string, modelID string,
) (domain.BatchEmbeddingResult, error) {
	m.batchEmbedCalls++
	if m.batchEmbedFn != nil {
		return m.batchEmbedFn(ctx, texts, modelID)
	}
	embeddings := make([][]float32, len(texts))
	for i := range embeddings {
		embeddings[i] = []float32{0.1}
	}
	return domain.BatchEmbeddingResult{Embeddings: embeddings, Model: modelID, Dimensions: 1}, nil
}

// mockBudget implements BudgetChecker for tests.
type mockBudget struct {
	checkErr error
	recorded int64
}

func (m *mockBudget) Check(_ context.Context) error { return m.checkErr }
func (m *mockBudget) Record(tokens int64)           { m.recorded += tokens }
func (m *mockBudget) RemainingDaily() int64         { return 1000 }
func (m *mockBudget) RemainingMonthly() int64       { return 10000 }

func model(id, provider string, dims int) domain.ModelInfo {
	return domain.ModelInfo{ID: id, Provider: provider, Dimensions: dims}
}
