package record

import (
	"context"

	"github.com/kailas-cloud/mnemo/internal/domain"
	domrec "github.com/kailas-cloud/mnemo/internal/domain/record"
	"github.com/kailas-cloud/mnemo/internal/domain/search/filter"
)

// Repository defines the storage contract for records and their embeddings.
//
//nolint:interfacebloat // record lifecycle spans content and embedding storage
type Repository interface {
	Upsert(ctx context.Context, rec *domrec.Record) (bool, error)
	Get(ctx context.Context, tenantID, id string) (domrec.Record, error)
	List(ctx context.Context, tenantID string, filters filter.Filter, offset, limit int) ([]domrec.Record, int, error)
	Delete(ctx context.Context, tenantID, id string) error
	SaveEmbedding(ctx context.Context, rec *domrec.Record, model domain.ModelInfo, vector []float32) error
	ListEmbeddings(ctx context.Context, tenantID, id string) ([]domain.StoredEmbedding, error)
	DeleteEmbeddings(ctx context.Context, tenantID, id string) error
}

// Registry resolves embedding models to providers.
type Registry interface {
	Resolve(modelID string) (domain.Provider, domain.ModelInfo, error)
}
