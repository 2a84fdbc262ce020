package record

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/mnemo/internal/domain"
	domrec "github.com/kailas-cloud/mnemo/internal/domain/record"
	"github.com/kailas-cloud/mnemo/internal/domain/search/filter"
)

type mockRepo struct {
	upsertFn         func(ctx context.Context, rec *domrec.Record) (bool, error)
	getFn            func(ctx context.Context, tenantID, id string) (domrec.Record, error)
	listFn           func(ctx context.Context, tenantID string, filters filter.Filter, offset, limit int) ([]domrec.Record, int, error)
	deleteFn         func(ctx context.Context, tenantID, id string) error
	saveEmbeddingFn  func(ctx context.Context, rec *domrec.Record, model domain.ModelInfo, vector []float32) error
	listEmbeddingsFn func(ctx context.Context, tenantID, id string) ([]domain.StoredEmbedding, error)
	deleteEmbedsFn   func(ctx context.Context, tenantID, id string) error
	savedEmbeddings  []string
	upsertCalls      int
}

func (m *mockRepo) Upsert(ctx context.Context, rec *domrec.Record) (bool, error) {
	m.upsertCalls++
	if m.upsertFn != nil {
		return m.upsertFn(ctx, rec)
	}
	return true, nil
}

func (m *mockRepo) Get(ctx context.Context, tenantID, id string) (domrec.Record, error) {
	if m.getFn != nil {
		return m.getFn(ctx, tenantID, id)
	}
	return domrec.Record{}, domain.ErrRecordNotFound
}

func (m *mockRepo) List(
	ctx context.Context, tenantID string, filters filter.Filter, offset, limit int,
) ([]domrec.Record, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, tenantID, filters, offset, limit)
	}
	return nil, 0, nil
}

func (m *mockRepo) Delete(ctx context.Context, tenantID, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, tenantID, id)
	}
	return nil
}

func (m *mockRepo) SaveEmbedding(
	ctx context.Context, rec *domrec.Record, model domain.ModelInfo, vector []float32,
) error {
	m.savedEmbeddings = append(m.savedEmbeddings, model.ID)
	if m.saveEmbeddingFn != nil {
		return m.saveEmbeddingFn(ctx, rec, model, vector)
	}
	return nil
}

func (m *mockRepo) ListEmbeddings(ctx context.Context, tenantID, id string) ([]domain.StoredEmbedding, error) {
	if m.listEmbeddingsFn != nil {
		return m.listEmbeddingsFn(ctx, tenantID, id)
	}
	return nil, nil
}

func (m *mockRepo) DeleteEmbeddings(ctx context.Context, tenantID, id string) error {
	if m.deleteEmbedsFn != nil {
		return m.deleteEmbedsFn(ctx, tenantID, id)
	}
	return nil
}

type mockProvider struct {
	embedFn      func(ctx context.Context, text, modelID string) (domain.EmbeddingResult, error)
	batchEmbedFn func(ctx context.Context, texts []string, modelID string) (domain.BatchEmbeddingResult, error)
	embedCalls   int
	batchCalls   int
	embedTexts   []string
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Models() []domain.ModelInfo {
	return []domain.ModelInfo{{ID: "test-model", Dimensions: 4}}
}

func (m *mockProvider) IsConfigured() bool { return true }

func (m *mockProvider) Embed(ctx context.Context, text, modelID string) (domain.EmbeddingResult, error) {
	m.embedCalls++
	m.embedTexts = append(m.embedTexts, text)
	if m.embedFn != nil {
		return m.embedFn(ctx, text, modelID)
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3, 0.4}, TotalTokens: 3}, nil
}

func (m *mockProvider) BatchEmbed(
	ctx context.Context, texts []string, modelID string,
) (domain.BatchEmbeddingResult, error) {
	m.batchCalls++
	if m.batchEmbedFn != nil {
		return m.batchEmbedFn(ctx, texts, modelID)
	}
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i := range texts {
		out.Embeddings[i] = []float32{0.1, 0.2, 0.3, 0.4}
	}
	return out, nil
}

type mockRegistry struct {
	provider   *mockProvider
	resolveErr error
	resolved   []string
}

func (m *mockRegistry) Resolve(modelID string) (domain.Provider, domain.ModelInfo, error) {
	m.resolved = append(m.resolved, modelID)
	if m.resolveErr != nil {
		return nil, domain.ModelInfo{}, m.resolveErr
	}
	if modelID == "" {
		modelID = "test-model"
	}
	return m.provider, domain.ModelInfo{ID: modelID, Dimensions: 4}, nil
}

func newTestService(repo *mockRepo, registry *mockRegistry) *Service {
	return New(repo, registry, domrec.NewTypeRegistry(nil), zap.NewNop())
}

func testParams() SaveParams {
	return SaveParams{
		ID:      "rec-1",
		Type:    "note",
		Title:   "Title",
		Content: "Body text",
	}
}
