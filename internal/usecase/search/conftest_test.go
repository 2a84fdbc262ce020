package search

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/mnemo/internal/domain"
	domrec "github.com/kailas-cloud/mnemo/internal/domain/record"
	"github.com/kailas-cloud/mnemo/internal/domain/search/filter"
	"github.com/kailas-cloud/mnemo/internal/domain/search/mode"
	"github.com/kailas-cloud/mnemo/internal/domain/search/request"
	"github.com/kailas-cloud/mnemo/internal/domain/search/result"
	"github.com/kailas-cloud/mnemo/internal/metrics"
)

func init() {
	metrics.RegisterSearchMetrics()
}

// mockRepo implements Repository for tests.
type mockRepo struct {
	searchSemanticFn func(ctx context.Context, tenantID, modelID string, vector []float32, filters filter.Filter, k int) ([]result.Candidate, error)
	searchLexicalFn  func(ctx context.Context, tenantID, query string, filters filter.Filter, k int) ([]result.Candidate, error)
}

func (m *mockRepo) SearchSemantic(
	ctx context.Context, tenantID, modelID string,
	vector []float32, filters filter.Filter, k int,
) ([]result.Candidate, error) {
	if m.searchSemanticFn != nil {
		return m.searchSemanticFn(ctx, tenantID, modelID, vector, filters, k)
	}
	return nil, nil
}

func (m *mockRepo) SearchLexical(
	ctx context.Context, tenantID, query string,
	filters filter.Filter, k int,
) ([]result.Candidate, error) {
	if m.searchLexicalFn != nil {
		return m.searchLexicalFn(ctx, tenantID, query, filters, k)
	}
	return nil, nil
}

// mockRecords implements RecordReader for tests. By default every requested
// id hydrates into a minimal record.
type mockRecords struct {
	getMultiFn     func(ctx context.Context, tenantID string, ids []string) ([]domrec.Record, error)
	getEmbeddingFn func(ctx context.Context, tenantID, id, modelID string) ([]float32, error)
}

func (m *mockRecords) GetMulti(ctx context.Context, tenantID string, ids []string) ([]domrec.Record, error) {
	if m.getMultiFn != nil {
		return m.getMultiFn(ctx, tenantID, ids)
	}
	records := make([]domrec.Record, len(ids))
	for i, id := range ids {
		records[i] = stubRecord(tenantID, id)
	}
	return records, nil
}

func (m *mockRecords) GetEmbedding(ctx context.Context, tenantID, id, modelID string) ([]float32, error) {
	if m.getEmbeddingFn != nil {
		return m.getEmbeddingFn(ctx, tenantID, id, modelID)
	}
	return []float32{0.1, 0.2}, nil
}

// mockResolver implements ModelResolver for tests.
type mockResolver struct {
	embedFn    func(ctx context.Context, text string) (domain.EmbeddingResult, error)
	resolveErr error
	model      domain.ModelInfo
}

func (m *mockResolver) EmbedderFor(modelID string) (domain.Embedder, domain.ModelInfo, error) {
	if m.resolveErr != nil {
		return nil, domain.ModelInfo{}, m.resolveErr
	}
	info := m.model
	if info.ID == "" {
		info = domain.ModelInfo{ID: "test-model", Provider: "openai", Dimensions: 2}
	}
	return &mockEmbedder{embedFn: m.embedFn}, info, nil
}

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}, Model: "test-model", TotalTokens: 3}, nil
}

func stubRecord(tenantID, id string) domrec.Record {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return domrec.Reconstruct(tenantID, id, "note", "t", "c", "", "", "", nil, now, now)
}

func newTestService(t *testing.T, policy FailurePolicy) (*Service, *mockRepo, *mockRecords, *mockResolver) {
	t.Helper()
	repo := &mockRepo{}
	records := &mockRecords{}
	resolver := &mockResolver{}
	svc := New(repo, records, resolver, policy, zap.NewNop())
	return svc, repo, records, resolver
}

func mustRequest(t *testing.T, m mode.Mode, limit, offset int, minSimilarity float64) *request.Request {
	t.Helper()
	req, err := request.New("acme", "hello world", m, "", filter.Filter{}, limit, offset, minSimilarity)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return &req
}

func mustSimilar(t *testing.T, seedID string, limit, offset int) *request.SimilarRequest {
	t.Helper()
	req, err := request.NewSimilar("acme", seedID, "", filter.Filter{}, limit, offset, 0)
	if err != nil {
		t.Fatalf("new similar request: %v", err)
	}
	return &req
}
