package request

import (
	"fmt"

	"github.com/kailas-cloud/mnemo/internal/domain"
	"github.com/kailas-cloud/mnemo/internal/domain/search/filter"
	"github.com/kailas-cloud/mnemo/internal/domain/search/mode"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 8192
	DefaultLimit   = 20
	MaxLimit       = 100
	MaxOffset      = 10000
)

// Request is a validated search query. Query text is required for every mode
// except similar (which seeds from a stored embedding, see SimilarRequest).
type Request struct {
	tenantID      string
	query         string
	searchMode    mode.Mode
	modelID       string
	filters       filter.Filter
	limit         int
	offset        int
	minSimilarity float64
}

// New validates and normalizes search parameters.
// Defaults: mode=hybrid, limit=20. Offset-based paging applies to the fused
// list, so engines are asked for limit+offset candidates (see Depth).
func New(
	tenantID, query string,
	m mode.Mode,
	modelID string,
	filters filter.Filter,
	limit, offset int,
	minSimilarity float64,
) (Request, error) {
	if tenantID == "" {
		return Request{}, fmt.Errorf("%w: tenant id is required", domain.ErrValidation)
	}
	if query == "" {
		return Request{}, fmt.Errorf("%w: query is required", domain.ErrValidation)
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrValidation, MaxQueryLength)
	}
	if m == "" {
		m = mode.Hybrid
	}
	if !m.IsValid() || m == mode.Similar {
		return Request{}, fmt.Errorf("%w: invalid search mode %q", domain.ErrValidation, m)
	}
	if limit < 0 || limit > MaxLimit {
		return Request{}, fmt.Errorf("%w: limit must be between 0 and %d", domain.ErrValidation, MaxLimit)
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if offset < 0 || offset > MaxOffset {
		return Request{}, fmt.Errorf("%w: offset must be between 0 and %d", domain.ErrValidation, MaxOffset)
	}
	if minSimilarity < 0 || minSimilarity > 1 {
		return Request{}, fmt.Errorf("%w: min_similarity must be between 0 and 1", domain.ErrValidation)
	}

	return Request{
		tenantID:      tenantID,
		query:         query,
		searchMode:    m,
		modelID:       modelID,
		filters:       filters,
		limit:         limit,
		offset:        offset,
		minSimilarity: minSimilarity,
	}, nil
}

// TenantID returns the isolation scope of the query.
func (r *Request) TenantID() string { return r.tenantID }

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// Mode returns the search strategy.
func (r *Request) Mode() mode.Mode { return r.searchMode }

// ModelID returns the explicitly requested embedding model, empty for default.
func (r *Request) ModelID() string { return r.modelID }

// Filters returns the pre-filter.
func (r *Request) Filters() filter.Filter { return r.filters }

// Limit returns the page size.
func (r *Request) Limit() int { return r.limit }

// Offset returns the page offset into the fused list.
func (r *Request) Offset() int { return r.offset }

// MinSimilarity returns the semantic similarity threshold, 0 when unset.
func (r *Request) MinSimilarity() float64 { return r.minSimilarity }

// Depth returns the candidate depth each engine must produce so that
// offset/limit paging over the fused list stays correct.
func (r *Request) Depth() int { return r.limit + r.offset }
