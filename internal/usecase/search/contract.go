package search

import (
	"context"

	"github.com/kailas-cloud/mnemo/internal/domain"
	domrec "github.com/kailas-cloud/mnemo/internal/domain/record"
	"github.com/kailas-cloud/mnemo/internal/domain/search/filter"
	"github.com/kailas-cloud/mnemo/internal/domain/search/result"
)

// Repository defines the ranker contract: each call restricts candidates to
// the tenant and filter before ranking, and returns them best first.
type Repository interface {
	SearchSemantic(
		ctx context.Context, tenantID, modelID string,
		vector []float32, filters filter.Filter, k int,
	) ([]result.Candidate, error)

	SearchLexical(
		ctx context.Context, tenantID, query string,
		filters filter.Filter, k int,
	) ([]result.Candidate, error)
}

// RecordReader hydrates result pages and serves seed embeddings.
type RecordReader interface {
	GetMulti(ctx context.Context, tenantID string, ids []string) ([]domrec.Record, error)
	GetEmbedding(ctx context.Context, tenantID, id, modelID string) ([]float32, error)
}

// ModelResolver picks the embedding model and a bound embedder for a request.
type ModelResolver interface {
	EmbedderFor(modelID string) (domain.Embedder, domain.ModelInfo, error)
}
