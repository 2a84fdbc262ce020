package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/mnemo/internal/db"
	"github.com/kailas-cloud/mnemo/internal/domain/search/filter"
	"github.com/kailas-cloud/mnemo/internal/domain/search/result"
	reprec "github.com/kailas-cloud/mnemo/internal/repository/record"
)

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
}

// Repo implements the ranker side of usecase/search: one call per engine,
// both restricted by the same tenant and filter pre-condition.
type Repo struct {
	store store
}

// New creates a search repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// SearchSemantic runs KNN over the model's vector index and returns ranked
// candidates, best first. A model whose index does not exist yet has embedded
// nothing, which is an empty candidate list, not an error.
func (r *Repo) SearchSemantic(
	ctx context.Context, tenantID, modelID string,
	vector []float32, filters filter.Filter, k int,
) ([]result.Candidate, error) {
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    reprec.VectorIndexName(modelID),
		TenantID:     tenantID,
		Filters:      filters,
		Vector:       vector,
		K:            k,
		ReturnFields: []string{"__vector_score"},
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("semantic search %s: %w", modelID, err)
	}

	return toCandidates(sr), nil
}

// SearchLexical runs BM25 over the record index and returns ranked
// candidates, best first.
func (r *Repo) SearchLexical(
	ctx context.Context, tenantID, query string,
	filters filter.Filter, k int,
) ([]result.Candidate, error) {
	sr, err := r.store.SearchBM25(ctx, &db.TextQuery{
		IndexName:    reprec.RecordIndexName(),
		TenantID:     tenantID,
		Query:        query,
		Filters:      filters,
		TopK:         k,
		ReturnFields: []string{"created_at"},
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	return toCandidates(sr), nil
}

// toCandidates converts hits into rank-stamped candidates. The engines return
// hits best first, so slice position is the 1-based rank.
func toCandidates(sr *db.SearchResult) []result.Candidate {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}
	candidates := make([]result.Candidate, 0, len(sr.Entries))
	for i, entry := range sr.Entries {
		candidates = append(candidates, result.NewCandidate(idFromKey(entry.Key), i+1, entry.Score))
	}
	return candidates
}

func idFromKey(key string) string {
	return key[strings.LastIndexByte(key, ':')+1:]
}
