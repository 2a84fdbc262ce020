package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/mnemo/internal/domain"
	domrec "github.com/kailas-cloud/mnemo/internal/domain/record"
	"github.com/kailas-cloud/mnemo/internal/domain/search/mode"
	"github.com/kailas-cloud/mnemo/internal/domain/search/request"
	"github.com/kailas-cloud/mnemo/internal/domain/search/result"
	"github.com/kailas-cloud/mnemo/internal/metrics"
)

// FailurePolicy decides what a hybrid search does when one engine fails.
type FailurePolicy string

const (
	// PolicyStrict fails the whole request on any engine error.
	PolicyStrict FailurePolicy = "strict"
	// PolicyPartial serves the surviving engine's results marked partial.
	PolicyPartial FailurePolicy = "partial"
)

// Item is one search hit: the hydrated record plus its ranking evidence.
// Score is engine-native for single-engine modes and an RRF sum for hybrid.
type Item struct {
	Record       domrec.Record
	Score        float64
	RankSemantic int
	RankLexical  int
}

// Response is one page of search results. Total counts the whole candidate
// union before paging; Partial marks a hybrid response that lost one engine.
type Response struct {
	Items   []Item
	Total   int
	Partial bool
	Model   string
}

// Service runs record search across hybrid, semantic, lexical and similar modes.
type Service struct {
	repo    Repository
	records RecordReader
	models  ModelResolver
	policy  FailurePolicy
	logger  *zap.Logger
}

// New creates a search service. An empty policy defaults to partial.
func New(
	repo Repository, records RecordReader, models ModelResolver,
	policy FailurePolicy, logger *zap.Logger,
) *Service {
	if policy == "" {
		policy = PolicyPartial
	}
	return &Service{repo: repo, records: records, models: models, policy: policy, logger: logger}
}

// Search executes a validated search request.
func (s *Service) Search(ctx context.Context, req *request.Request) (*Response, error) {
	start := time.Now()

	var resp *Response
	var err error
	switch req.Mode() {
	case mode.Semantic:
		resp, err = s.searchSemantic(ctx, req)
	case mode.Lexical:
		resp, err = s.searchLexical(ctx, req)
	case mode.Hybrid:
		resp, err = s.searchHybrid(ctx, req)
	default:
		return nil, fmt.Errorf("%w: unsupported search mode %q", domain.ErrValidation, req.Mode())
	}

	s.observe(string(req.Mode()), start, resp, err)
	return resp, err
}

// Similar runs "more like this": the seed record's stored embedding becomes
// the query vector. A seed without a stored embedding for the resolved model
// yields an empty response, not an error.
func (s *Service) Similar(ctx context.Context, req *request.SimilarRequest) (*Response, error) {
	start := time.Now()
	resp, err := s.similar(ctx, req)
	s.observe(string(mode.Similar), start, resp, err)
	return resp, err
}

func (s *Service) similar(ctx context.Context, req *request.SimilarRequest) (*Response, error) {
	_, info, err := s.models.EmbedderFor(req.ModelID())
	if err != nil {
		return nil, err
	}

	seed, err := s.records.GetMulti(ctx, req.TenantID(), []string{req.SeedID()})
	if err != nil {
		return nil, fmt.Errorf("load seed record: %w", err)
	}
	if len(seed) == 0 {
		return nil, domain.ErrRecordNotFound
	}

	vector, err := s.records.GetEmbedding(ctx, req.TenantID(), req.SeedID(), info.ID)
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingNotFound) {
			return &Response{Model: info.ID}, nil
		}
		return nil, fmt.Errorf("load seed embedding: %w", err)
	}

	candidates, err := s.repo.SearchSemantic(
		ctx, req.TenantID(), info.ID, vector, req.Filters(), req.Depth(),
	)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	candidates = excludeItem(candidates, req.SeedID())
	candidates = applyMinSimilarity(candidates, req.MinSimilarity())

	return s.buildResponse(ctx, req.TenantID(), singleSideFused(candidates, true),
		req.Offset(), req.Limit(), info.ID)
}

func (s *Service) searchSemantic(ctx context.Context, req *request.Request) (*Response, error) {
	vector, modelID, err := s.embedQuery(ctx, req)
	if err != nil {
		return nil, err
	}

	candidates, err := s.repo.SearchSemantic(
		ctx, req.TenantID(), modelID, vector, req.Filters(), req.Depth(),
	)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	candidates = applyMinSimilarity(candidates, req.MinSimilarity())

	return s.buildResponse(ctx, req.TenantID(), singleSideFused(candidates, true),
		req.Offset(), req.Limit(), modelID)
}

func (s *Service) searchLexical(ctx context.Context, req *request.Request) (*Response, error) {
	candidates, err := s.repo.SearchLexical(
		ctx, req.TenantID(), req.Query(), req.Filters(), req.Depth(),
	)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	return s.buildResponse(ctx, req.TenantID(), singleSideFused(candidates, false),
		req.Offset(), req.Limit(), "")
}

// searchHybrid runs both engines concurrently over the same filtered
// universe, then fuses their rankings via RRF. Engine failures follow the
// configured policy: strict surfaces them, partial degrades to the surviving
// engine and marks the response.
func (s *Service) searchHybrid(ctx context.Context, req *request.Request) (*Response, error) {
	embedder, info, err := s.models.EmbedderFor(req.ModelID())
	if err != nil {
		// An explicitly requested unknown model is a caller mistake, never
		// something to degrade around.
		if errors.Is(err, domain.ErrModelNotFound) || s.policy == PolicyStrict {
			return nil, err
		}
		s.logger.Warn("Hybrid search degrading to lexical only",
			zap.String("tenant_id", req.TenantID()),
			zap.Error(err),
		)
		resp, lexErr := s.searchLexical(ctx, req)
		if lexErr != nil {
			return nil, errors.Join(err, lexErr)
		}
		resp.Partial = true
		return resp, nil
	}

	var semCands, lexCands []result.Candidate
	var semErr, lexErr error

	// Both sides are independent round-trips; run them concurrently. Errors
	// are collected per side so the partial policy can keep the survivor.
	var g errgroup.Group
	g.Go(func() error {
		embRes, err := embedder.Embed(ctx, req.Query())
		if err != nil {
			semErr = fmt.Errorf("vectorize query: %w", err)
			return nil
		}
		semCands, semErr = s.repo.SearchSemantic(
			ctx, req.TenantID(), info.ID, embRes.Embedding, req.Filters(), req.Depth(),
		)
		return nil
	})
	g.Go(func() error {
		lexCands, lexErr = s.repo.SearchLexical(
			ctx, req.TenantID(), req.Query(), req.Filters(), req.Depth(),
		)
		return nil
	})
	_ = g.Wait()

	partial := false
	switch {
	case semErr != nil && lexErr != nil:
		return nil, errors.Join(semErr, lexErr)
	case semErr != nil:
		if s.policy == PolicyStrict {
			return nil, semErr
		}
		s.logger.Warn("Hybrid search lost semantic engine",
			zap.String("tenant_id", req.TenantID()), zap.Error(semErr))
		semCands = nil
		partial = true
	case lexErr != nil:
		if s.policy == PolicyStrict {
			return nil, lexErr
		}
		s.logger.Warn("Hybrid search lost lexical engine",
			zap.String("tenant_id", req.TenantID()), zap.Error(lexErr))
		lexCands = nil
		partial = true
	}

	semCands = applyMinSimilarity(semCands, req.MinSimilarity())

	fused := fuseRRF(semCands, lexCands)
	metrics.SearchFusedResults.Observe(float64(len(fused)))

	resp, err := s.buildResponse(ctx, req.TenantID(), fused, req.Offset(), req.Limit(), info.ID)
	if err != nil {
		return nil, err
	}
	resp.Partial = partial
	return resp, nil
}

func (s *Service) embedQuery(ctx context.Context, req *request.Request) ([]float32, string, error) {
	embedder, info, err := s.models.EmbedderFor(req.ModelID())
	if err != nil {
		return nil, "", err
	}
	res, err := embedder.Embed(ctx, req.Query())
	if err != nil {
		return nil, "", fmt.Errorf("vectorize query: %w", err)
	}
	return res.Embedding, info.ID, nil
}

// buildResponse pages the fused list and hydrates the page's records.
// Candidates whose record vanished between ranking and hydration are dropped
// from the page rather than failing it.
func (s *Service) buildResponse(
	ctx context.Context, tenantID string, fused []result.Fused,
	offset, limit int, modelID string,
) (*Response, error) {
	resp := &Response{Total: len(fused), Model: modelID}

	if offset >= len(fused) {
		return resp, nil
	}
	page := fused[offset:min(offset+limit, len(fused))]
	if len(page) == 0 {
		return resp, nil
	}

	ids := make([]string, len(page))
	for i := range page {
		ids[i] = page[i].ItemID()
	}

	records, err := s.records.GetMulti(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate results: %w", err)
	}
	byID := make(map[string]domrec.Record, len(records))
	for _, rec := range records {
		byID[rec.ID()] = rec
	}

	resp.Items = make([]Item, 0, len(page))
	for i := range page {
		rec, ok := byID[page[i].ItemID()]
		if !ok {
			continue
		}
		resp.Items = append(resp.Items, Item{
			Record:       rec,
			Score:        page[i].Score(),
			RankSemantic: page[i].RankSemantic(),
			RankLexical:  page[i].RankLexical(),
		})
	}
	return resp, nil
}

func (s *Service) observe(searchMode string, start time.Time, resp *Response, err error) {
	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case resp != nil && resp.Partial:
		status = "partial"
	}
	metrics.SearchRequestsTotal.WithLabelValues(searchMode, status).Inc()
	metrics.SearchRequestDuration.WithLabelValues(searchMode).Observe(time.Since(start).Seconds())
}

// applyMinSimilarity drops semantic candidates below the threshold and
// re-ranks the survivors so fusion sees contiguous 1-based ranks.
func applyMinSimilarity(candidates []result.Candidate, minSimilarity float64) []result.Candidate {
	if minSimilarity <= 0 || len(candidates) == 0 {
		return candidates
	}
	kept := candidates[:0]
	for _, c := range candidates {
		if c.Score() >= minSimilarity {
			kept = append(kept, c)
		}
	}
	result.Rerank(kept)
	return kept
}

// excludeItem removes one item and re-ranks, keeping order contiguous.
func excludeItem(candidates []result.Candidate, itemID string) []result.Candidate {
	kept := candidates[:0]
	for _, c := range candidates {
		if c.ItemID() != itemID {
			kept = append(kept, c)
		}
	}
	result.Rerank(kept)
	return kept
}
