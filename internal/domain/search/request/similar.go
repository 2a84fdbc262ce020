package request

import (
	"fmt"

	"github.com/kailas-cloud/mnemo/internal/domain"
	"github.com/kailas-cloud/mnemo/internal/domain/search/filter"
)

// SimilarRequest is a validated "find records similar to this one" query.
// Identical to a semantic query except the vector comes from the seed
// record's stored embedding instead of embedding query text.
type SimilarRequest struct {
	tenantID      string
	seedID        string
	modelID       string
	filters       filter.Filter
	limit         int
	offset        int
	minSimilarity float64
}

// NewSimilar validates and normalizes similar-search parameters.
func NewSimilar(
	tenantID, seedID, modelID string,
	filters filter.Filter,
	limit, offset int,
	minSimilarity float64,
) (SimilarRequest, error) {
	if tenantID == "" {
		return SimilarRequest{}, fmt.Errorf("%w: tenant id is required", domain.ErrValidation)
	}
	if seedID == "" {
		return SimilarRequest{}, fmt.Errorf("%w: seed record id is required", domain.ErrValidation)
	}
	if limit < 0 || limit > MaxLimit {
		return SimilarRequest{}, fmt.Errorf("%w: limit must be between 0 and %d", domain.ErrValidation, MaxLimit)
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if offset < 0 || offset > MaxOffset {
		return SimilarRequest{}, fmt.Errorf("%w: offset must be between 0 and %d", domain.ErrValidation, MaxOffset)
	}
	if minSimilarity < 0 || minSimilarity > 1 {
		return SimilarRequest{}, fmt.Errorf("%w: min_similarity must be between 0 and 1", domain.ErrValidation)
	}

	return SimilarRequest{
		tenantID:      tenantID,
		seedID:        seedID,
		modelID:       modelID,
		filters:       filters,
		limit:         limit,
		offset:        offset,
		minSimilarity: minSimilarity,
	}, nil
}

// TenantID returns the isolation scope of the query.
func (r *SimilarRequest) TenantID() string { return r.tenantID }

// SeedID returns the record whose embedding seeds the query.
func (r *SimilarRequest) SeedID() string { return r.seedID }

// ModelID returns the explicitly requested embedding model, empty for default.
func (r *SimilarRequest) ModelID() string { return r.modelID }

// Filters returns the pre-filter.
func (r *SimilarRequest) Filters() filter.Filter { return r.filters }

// Limit returns the page size.
func (r *SimilarRequest) Limit() int { return r.limit }

// Offset returns the page offset.
func (r *SimilarRequest) Offset() int { return r.offset }

// MinSimilarity returns the similarity threshold, 0 when unset.
func (r *SimilarRequest) MinSimilarity() float64 { return r.minSimilarity }

// Depth returns the candidate depth, one extra to cover self-exclusion.
func (r *SimilarRequest) Depth() int { return r.limit + r.offset + 1 }
