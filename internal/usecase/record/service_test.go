package record

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/mnemo/internal/domain"
	domrec "github.com/kailas-cloud/mnemo/internal/domain/record"
	"github.com/kailas-cloud/mnemo/internal/domain/search/filter"
)

func TestSaveCreatesRecord(t *testing.T) {
	repo := &mockRepo{}
	registry := &mockRegistry{provider: &mockProvider{}}
	svc := newTestService(repo, registry)

	rec, created, err := svc.Save(context.Background(), "acme", testParams())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !created {
		t.Error("expected created=true for a new record")
	}
	if rec.ID() != "rec-1" || rec.TenantID() != "acme" {
		t.Errorf("unexpected identity: %s/%s", rec.TenantID(), rec.ID())
	}
	if len(repo.savedEmbeddings) != 1 || repo.savedEmbeddings[0] != "test-model" {
		t.Errorf("expected one embedding with default model, got %v", repo.savedEmbeddings)
	}
}

func TestSaveGeneratesID(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(repo, &mockRegistry{provider: &mockProvider{}})

	p := testParams()
	p.ID = ""
	rec, _, err := svc.Save(context.Background(), "acme", p)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rec.ID() == "" {
		t.Fatal("expected a generated record id")
	}
}

func TestSaveRejectsUnknownType(t *testing.T) {
	svc := newTestService(&mockRepo{}, &mockRegistry{provider: &mockProvider{}})

	p := testParams()
	p.Type = "spreadsheet"
	_, _, err := svc.Save(context.Background(), "acme", p)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSaveRejectsEmptyContent(t *testing.T) {
	svc := newTestService(&mockRepo{}, &mockRegistry{provider: &mockProvider{}})

	p := testParams()
	p.Content = ""
	_, _, err := svc.Save(context.Background(), "acme", p)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSavePreservesCreationTime(t *testing.T) {
	createdAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	existing := domrec.Reconstruct(
		"acme", "rec-1", "note", "Old", "Old body",
		"", "", "", nil, createdAt, createdAt,
	)
	repo := &mockRepo{
		getFn: func(ctx context.Context, tenantID, id string) (domrec.Record, error) {
			return existing, nil
		},
		upsertFn: func(ctx context.Context, rec *domrec.Record) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(repo, &mockRegistry{provider: &mockProvider{}})

	rec, created, err := svc.Save(context.Background(), "acme", testParams())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if created {
		t.Error("expected created=false for a replace")
	}
	if !rec.CreatedAt().Equal(createdAt) {
		t.Errorf("created_at changed on replace: %v", rec.CreatedAt())
	}
	if !rec.UpdatedAt().After(createdAt) {
		t.Errorf("updated_at not bumped: %v", rec.UpdatedAt())
	}
}

func TestSaveSurvivesEmbedFailure(t *testing.T) {
	repo := &mockRepo{}
	provider := &mockProvider{
		embedFn: func(ctx context.Context, text, modelID string) (domain.EmbeddingResult, error) {
			return domain.EmbeddingResult{}, domain.ErrProviderUnavailable
		},
	}
	svc := newTestService(repo, &mockRegistry{provider: provider})

	_, created, err := svc.Save(context.Background(), "acme", testParams())
	if err != nil {
		t.Fatalf("Save should tolerate embed failures: %v", err)
	}
	if !created {
		t.Error("record should still be created")
	}
	if len(repo.savedEmbeddings) != 0 {
		t.Errorf("no embedding should be stored, got %v", repo.savedEmbeddings)
	}
}

func TestSaveSkipsEmbedWithoutProvider(t *testing.T) {
	repo := &mockRepo{}
	registry := &mockRegistry{resolveErr: domain.ErrNoProviderConfigured}
	svc := newTestService(repo, registry)

	_, _, err := svc.Save(context.Background(), "acme", testParams())
	if err != nil {
		t.Fatalf("Save should tolerate missing providers: %v", err)
	}
	if repo.upsertCalls != 1 {
		t.Errorf("record not stored: %d upserts", repo.upsertCalls)
	}
}

func TestSaveReembedsStoredModels(t *testing.T) {
	existing := domrec.Reconstruct(
		"acme", "rec-1", "note", "Old", "Old body",
		"", "", "", nil, time.Now().UTC(), time.Now().UTC(),
	)
	repo := &mockRepo{
		getFn: func(ctx context.Context, tenantID, id string) (domrec.Record, error) {
			return existing, nil
		},
		upsertFn: func(ctx context.Context, rec *domrec.Record) (bool, error) {
			return false, nil
		},
		listEmbeddingsFn: func(ctx context.Context, tenantID, id string) ([]domain.StoredEmbedding, error) {
			return []domain.StoredEmbedding{
				{ModelID: "test-model", Dimensions: 4},
				{ModelID: "other-model", Dimensions: 4},
			}, nil
		},
	}
	svc := newTestService(repo, &mockRegistry{provider: &mockProvider{}})

	if _, _, err := svc.Save(context.Background(), "acme", testParams()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(repo.savedEmbeddings) != 2 {
		t.Fatalf("expected refresh of both stored models, got %v", repo.savedEmbeddings)
	}
	seen := map[string]bool{}
	for _, m := range repo.savedEmbeddings {
		seen[m] = true
	}
	if !seen["test-model"] || !seen["other-model"] {
		t.Errorf("missing model refresh: %v", repo.savedEmbeddings)
	}
}

func TestSaveEmbedsTitleAndContent(t *testing.T) {
	provider := &mockProvider{}
	svc := newTestService(&mockRepo{}, &mockRegistry{provider: provider})

	if _, _, err := svc.Save(context.Background(), "acme", testParams()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(provider.embedTexts) != 1 || provider.embedTexts[0] != "Title\n\nBody text" {
		t.Errorf("unexpected embed text: %q", provider.embedTexts)
	}
}

func TestListValidatesPagination(t *testing.T) {
	svc := newTestService(&mockRepo{}, &mockRegistry{provider: &mockProvider{}})

	if _, _, err := svc.List(context.Background(), "acme", filter.Filter{}, 0, 101); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("limit over max: expected ErrValidation, got %v", err)
	}
	if _, _, err := svc.List(context.Background(), "acme", filter.Filter{}, -1, 10); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("negative offset: expected ErrValidation, got %v", err)
	}
}

func TestListAppliesDefaultLimit(t *testing.T) {
	var gotLimit int
	repo := &mockRepo{
		listFn: func(ctx context.Context, tenantID string, filters filter.Filter, offset, limit int) ([]domrec.Record, int, error) {
			gotLimit = limit
			return nil, 0, nil
		},
	}
	svc := newTestService(repo, &mockRegistry{provider: &mockProvider{}})

	if _, _, err := svc.List(context.Background(), "acme", filter.Filter{}, 0, 0); err != nil {
		t.Fatalf("List: %v", err)
	}
	if gotLimit != 20 {
		t.Errorf("expected default limit 20, got %d", gotLimit)
	}
}

func TestEmbedSurfacesErrors(t *testing.T) {
	existing := domrec.Reconstruct(
		"acme", "rec-1", "note", "T", "body",
		"", "", "", nil, time.Now().UTC(), time.Now().UTC(),
	)
	repo := &mockRepo{
		getFn: func(ctx context.Context, tenantID, id string) (domrec.Record, error) {
			return existing, nil
		},
	}
	registry := &mockRegistry{resolveErr: domain.ErrModelNotFound}
	svc := newTestService(repo, registry)

	_, err := svc.Embed(context.Background(), "acme", "rec-1", "nope")
	if !errors.Is(err, domain.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestEmbedMissingRecord(t *testing.T) {
	svc := newTestService(&mockRepo{}, &mockRegistry{provider: &mockProvider{}})

	_, err := svc.Embed(context.Background(), "acme", "ghost", "")
	if !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestBatchSaveReportsPerItem(t *testing.T) {
	repo := &mockRepo{}
	provider := &mockProvider{}
	svc := newTestService(repo, &mockRegistry{provider: provider})

	items := []SaveParams{
		{ID: "a", Type: "note", Content: "first"},
		{ID: "b", Type: "spreadsheet", Content: "bad type"},
		{ID: "c", Type: "note", Content: ""},
		{ID: "d", Type: "note", Content: "last"},
	}
	results, err := svc.BatchSave(context.Background(), "acme", "", items)
	if err != nil {
		t.Fatalf("BatchSave: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if results[0].Err != nil || !results[0].Created {
		t.Errorf("item a should succeed: %+v", results[0])
	}
	if !errors.Is(results[1].Err, domain.ErrValidation) {
		t.Errorf("item b should fail validation: %v", results[1].Err)
	}
	if !errors.Is(results[2].Err, domain.ErrValidation) {
		t.Errorf("item c should fail validation: %v", results[2].Err)
	}
	if results[3].Err != nil {
		t.Errorf("item d should succeed: %v", results[3].Err)
	}
	if provider.batchCalls != 1 {
		t.Errorf("expected one batched provider call, got %d", provider.batchCalls)
	}
	if len(repo.savedEmbeddings) != 2 {
		t.Errorf("expected embeddings for the 2 valid items, got %v", repo.savedEmbeddings)
	}
}

func TestBatchSaveEmbedFailureKeepsRecords(t *testing.T) {
	repo := &mockRepo{}
	provider := &mockProvider{
		batchEmbedFn: func(ctx context.Context, texts []string, modelID string) (domain.BatchEmbeddingResult, error) {
			return domain.BatchEmbeddingResult{}, domain.ErrProviderUnavailable
		},
	}
	svc := newTestService(repo, &mockRegistry{provider: provider})

	results, err := svc.BatchSave(context.Background(), "acme", "", []SaveParams{
		{ID: "a", Type: "note", Content: "first"},
	})
	if err != nil {
		t.Fatalf("BatchSave: %v", err)
	}
	if results[0].Err != nil {
		t.Errorf("record save should not fail with the embed call: %v", results[0].Err)
	}
	if len(repo.savedEmbeddings) != 0 {
		t.Errorf("no embeddings expected, got %v", repo.savedEmbeddings)
	}
}

func TestListEmbeddingsRequiresRecord(t *testing.T) {
	svc := newTestService(&mockRepo{}, &mockRegistry{provider: &mockProvider{}})

	_, err := svc.ListEmbeddings(context.Background(), "acme", "ghost")
	if !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}
