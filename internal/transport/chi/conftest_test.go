package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/mnemo/internal/domain"
	domrec "github.com/kailas-cloud/mnemo/internal/domain/record"
	"github.com/kailas-cloud/mnemo/internal/domain/search/filter"
	"github.com/kailas-cloud/mnemo/internal/domain/search/request"
	domusage "github.com/kailas-cloud/mnemo/internal/domain/usage"
	"github.com/kailas-cloud/mnemo/internal/domain/usage/budget"
	usagemetrics "github.com/kailas-cloud/mnemo/internal/domain/usage/metrics"
	healthuc "github.com/kailas-cloud/mnemo/internal/usecase/health"
	recorduc "github.com/kailas-cloud/mnemo/internal/usecase/record"
	searchuc "github.com/kailas-cloud/mnemo/internal/usecase/search"
)

type mockRecordService struct {
	saveFn           func(ctx context.Context, tenantID string, p recorduc.SaveParams) (domrec.Record, bool, error)
	getFn            func(ctx context.Context, tenantID, id string) (domrec.Record, error)
	listFn           func(ctx context.Context, tenantID string, filters filter.Filter, offset, limit int) ([]domrec.Record, int, error)
	deleteFn         func(ctx context.Context, tenantID, id string) error
	listEmbeddingsFn func(ctx context.Context, tenantID, id string) ([]domain.StoredEmbedding, error)
	embedFn          func(ctx context.Context, tenantID, id, modelID string) (domain.ModelInfo, error)
	batchSaveFn      func(ctx context.Context, tenantID, modelID string, items []recorduc.SaveParams) ([]recorduc.BatchResult, error)
}

func (m *mockRecordService) Save(ctx context.Context, tenantID string, p recorduc.SaveParams) (domrec.Record, bool, error) {
	if m.saveFn != nil {
		return m.saveFn(ctx, tenantID, p)
	}
	return stubRecord(tenantID, "rec-1"), true, nil
}

func (m *mockRecordService) Get(ctx context.Context, tenantID, id string) (domrec.Record, error) {
	if m.getFn != nil {
		return m.getFn(ctx, tenantID, id)
	}
	return stubRecord(tenantID, id), nil
}

func (m *mockRecordService) List(
	ctx context.Context, tenantID string, filters filter.Filter, offset, limit int,
) ([]domrec.Record, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, tenantID, filters, offset, limit)
	}
	return nil, 0, nil
}

func (m *mockRecordService) Delete(ctx context.Context, tenantID, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, tenantID, id)
	}
	return nil
}

func (m *mockRecordService) ListEmbeddings(ctx context.Context, tenantID, id string) ([]domain.StoredEmbedding, error) {
	if m.listEmbeddingsFn != nil {
		return m.listEmbeddingsFn(ctx, tenantID, id)
	}
	return nil, nil
}

func (m *mockRecordService) Embed(ctx context.Context, tenantID, id, modelID string) (domain.ModelInfo, error) {
	if m.embedFn != nil {
		return m.embedFn(ctx, tenantID, id, modelID)
	}
	return domain.ModelInfo{ID: "test-model", Dimensions: 4}, nil
}

func (m *mockRecordService) BatchSave(
	ctx context.Context, tenantID, modelID string, items []recorduc.SaveParams,
) ([]recorduc.BatchResult, error) {
	if m.batchSaveFn != nil {
		return m.batchSaveFn(ctx, tenantID, modelID, items)
	}
	out := make([]recorduc.BatchResult, len(items))
	for i, item := range items {
		out[i] = recorduc.BatchResult{ID: item.ID, Created: true}
	}
	return out, nil
}

type mockSearchService struct {
	searchFn  func(ctx context.Context, req *request.Request) (*searchuc.Response, error)
	similarFn func(ctx context.Context, req *request.SimilarRequest) (*searchuc.Response, error)
}

func (m *mockSearchService) Search(ctx context.Context, req *request.Request) (*searchuc.Response, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, req)
	}
	return &searchuc.Response{}, nil
}

func (m *mockSearchService) Similar(ctx context.Context, req *request.SimilarRequest) (*searchuc.Response, error) {
	if m.similarFn != nil {
		return m.similarFn(ctx, req)
	}
	return &searchuc.Response{}, nil
}

type mockModelCatalog struct {
	models     []domain.ModelInfo
	defaultErr error
}

func (m *mockModelCatalog) Models() []domain.ModelInfo { return m.models }

func (m *mockModelCatalog) DefaultModel() (domain.ModelInfo, error) {
	if m.defaultErr != nil {
		return domain.ModelInfo{}, m.defaultErr
	}
	if len(m.models) == 0 {
		return domain.ModelInfo{}, domain.ErrNoProviderConfigured
	}
	return m.models[0], nil
}

type mockUsageService struct{}

func (m *mockUsageService) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	b := budget.New(1000, 700, false, 0)
	mt := usagemetrics.New(0, 300, 0)
	return domusage.NewReport(period, 0, 0, "", mt, b)
}

type mockHealthService struct {
	report healthuc.Report
}

func (m *mockHealthService) Check(_ context.Context) healthuc.Report {
	if m.report.Status == "" {
		return healthuc.Report{
			Status: healthuc.Healthy,
			Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK},
		}
	}
	return m.report
}

type testServer struct {
	records *mockRecordService
	search  *mockSearchService
	models  *mockModelCatalog
	health  *mockHealthService
	handler http.Handler
}

func newTestServer() *testServer {
	ts := &testServer{
		records: &mockRecordService{},
		search:  &mockSearchService{},
		models:  &mockModelCatalog{},
		health:  &mockHealthService{},
	}
	srv := NewServer(
		ts.records, ts.search, ts.models,
		&mockUsageService{}, ts.health,
		domrec.NewTypeRegistry(nil), zap.NewNop(),
	)
	ts.handler = srv.Router(nil)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(TenantHeader, "acme")
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func stubRecord(tenantID, id string) domrec.Record {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return domrec.Reconstruct(
		tenantID, id, "note", "Title "+id, "Body "+id,
		"", "", "", nil, now, now,
	)
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}
