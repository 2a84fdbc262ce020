package chi

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/mnemo/internal/domain"
	domrec "github.com/kailas-cloud/mnemo/internal/domain/record"
	"github.com/kailas-cloud/mnemo/internal/domain/search/filter"
	searchuc "github.com/kailas-cloud/mnemo/internal/usecase/search"
)

// Error codes returned in error response bodies.
const (
	codeBadRequest            = "bad_request"
	codeUnauthorized          = "unauthorized"
	codeTenantRequired        = "tenant_required"
	codeValidationFailed      = "validation_failed"
	codeRecordNotFound        = "record_not_found"
	codeEmbeddingNotFound     = "embedding_not_found"
	codeModelNotFound         = "model_not_found"
	codeNoProviderConfigured  = "no_provider_configured"
	codeProviderUnavailable   = "provider_unavailable"
	codeEmbeddingProviderErr  = "embedding_provider_error"
	codeEmbeddingQuotaExceeds = "embedding_quota_exceeded"
	codeVectorDimMismatch     = "vector_dim_mismatch"
	codeInternalError         = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type recordPayload struct {
	Type         string            `json:"type"`
	Title        string            `json:"title,omitempty"`
	Content      string            `json:"content"`
	Source       string            `json:"source,omitempty"`
	SourceSystem string            `json:"source_system,omitempty"`
	ParentID     string            `json:"parent_id,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Model        string            `json:"model,omitempty"`
}

type recordResponse struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	Title        string            `json:"title,omitempty"`
	Content      string            `json:"content"`
	Source       string            `json:"source,omitempty"`
	SourceSystem string            `json:"source_system,omitempty"`
	ParentID     string            `json:"parent_id,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type recordListResponse struct {
	Items  []recordResponse `json:"items"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

type batchItem struct {
	ID string `json:"id,omitempty"`
	recordPayload
}

type batchRequest struct {
	Model   string      `json:"model,omitempty"`
	Records []batchItem `json:"records"`
}

type batchItemResult struct {
	ID      string         `json:"id"`
	Created bool           `json:"created"`
	Error   *errorResponse `json:"error,omitempty"`
}

type batchResponse struct {
	Items     []batchItemResult `json:"items"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

type filterPayload struct {
	Types         []string          `json:"types,omitempty"`
	Sources       []string          `json:"sources,omitempty"`
	SourceSystems []string          `json:"source_systems,omitempty"`
	CreatedAfter  *time.Time        `json:"created_after,omitempty"`
	CreatedBefore *time.Time        `json:"created_before,omitempty"`
	UpdatedAfter  *time.Time        `json:"updated_after,omitempty"`
	UpdatedBefore *time.Time        `json:"updated_before,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	ParentID      string            `json:"parent_id,omitempty"`
}

type searchPayload struct {
	Query         string         `json:"query"`
	Mode          string         `json:"mode,omitempty"`
	Model         string         `json:"model,omitempty"`
	Filters       *filterPayload `json:"filters,omitempty"`
	Limit         int            `json:"limit,omitempty"`
	Offset        int            `json:"offset,omitempty"`
	MinSimilarity float64        `json:"min_similarity,omitempty"`
}

type similarPayload struct {
	Model         string         `json:"model,omitempty"`
	Filters       *filterPayload `json:"filters,omitempty"`
	Limit         int            `json:"limit,omitempty"`
	Offset        int            `json:"offset,omitempty"`
	MinSimilarity float64        `json:"min_similarity,omitempty"`
}

type searchItem struct {
	recordResponse
	Score        float64 `json:"score"`
	RankSemantic int     `json:"rank_semantic,omitempty"`
	RankLexical  int     `json:"rank_lexical,omitempty"`
}

type searchResponse struct {
	Items         []searchItem   `json:"items"`
	Total         int            `json:"total"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
	Partial       bool           `json:"partial,omitempty"`
	Model         string         `json:"model,omitempty"`
	AppliedFilter *filterPayload `json:"applied_filter,omitempty"`
}

type embeddingInfoResponse struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

type embeddingListResponse struct {
	Items []embeddingInfoResponse `json:"items"`
}

type embedRequest struct {
	Model string `json:"model,omitempty"`
}

type modelResponse struct {
	ID          string `json:"id"`
	Provider    string `json:"provider"`
	DisplayName string `json:"display_name,omitempty"`
	Dimensions  int    `json:"dimensions"`
	MaxTokens   int    `json:"max_tokens,omitempty"`
}

type modelListResponse struct {
	Models  []modelResponse `json:"models"`
	Default string          `json:"default,omitempty"`
}

func recordToResponse(rec *domrec.Record) recordResponse {
	return recordResponse{
		ID:           rec.ID(),
		Type:         rec.Type(),
		Title:        rec.Title(),
		Content:      rec.Content(),
		Source:       rec.Source(),
		SourceSystem: rec.SourceSystem(),
		ParentID:     rec.ParentID(),
		Metadata:     rec.Metadata(),
		CreatedAt:    rec.CreatedAt(),
		UpdatedAt:    rec.UpdatedAt(),
	}
}

func searchToResponse(resp *searchuc.Response, applied filter.Filter, limit, offset int) searchResponse {
	items := make([]searchItem, len(resp.Items))
	for i := range resp.Items {
		items[i] = searchItem{
			recordResponse: recordToResponse(&resp.Items[i].Record),
			Score:          resp.Items[i].Score,
			RankSemantic:   resp.Items[i].RankSemantic,
			RankLexical:    resp.Items[i].RankLexical,
		}
	}
	return searchResponse{
		Items:         items,
		Total:         resp.Total,
		Limit:         limit,
		Offset:        offset,
		Partial:       resp.Partial,
		Model:         resp.Model,
		AppliedFilter: filterToPayload(applied),
	}
}

// filterToPayload echoes the filter the results were restricted to. An empty
// filter comes back as nil so the field is omitted.
func filterToPayload(f filter.Filter) *filterPayload {
	if f.IsEmpty() {
		return nil
	}
	return &filterPayload{
		Types:         f.Types(),
		Sources:       f.Sources(),
		SourceSystems: f.SourceSystems(),
		CreatedAfter:  f.CreatedAfter(),
		CreatedBefore: f.CreatedBefore(),
		UpdatedAfter:  f.UpdatedAfter(),
		UpdatedBefore: f.UpdatedBefore(),
		Metadata:      f.Metadata(),
		ParentID:      f.ParentID(),
	}
}

func modelToResponse(m domain.ModelInfo) modelResponse {
	return modelResponse{
		ID:          m.ID,
		Provider:    m.Provider,
		DisplayName: m.DisplayName,
		Dimensions:  m.Dimensions,
		MaxTokens:   m.MaxTokens,
	}
}

// filtersFromPayload compiles the wire filter into the domain predicate.
// Type tags are validated against the tenant vocabulary here, so both the
// filter path and the record-save path reject the same unknown tags.
func filtersFromPayload(p *filterPayload, types *domrec.TypeRegistry) (filter.Filter, error) {
	if p == nil {
		return filter.Filter{}, nil
	}
	f, err := filter.New(filter.Spec{
		Types:         p.Types,
		Sources:       p.Sources,
		SourceSystems: p.SourceSystems,
		CreatedAfter:  p.CreatedAfter,
		CreatedBefore: p.CreatedBefore,
		UpdatedAfter:  p.UpdatedAfter,
		UpdatedBefore: p.UpdatedBefore,
		Metadata:      p.Metadata,
		ParentID:      p.ParentID,
	}, types)
	if err != nil {
		return filter.Filter{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return f, nil
}
