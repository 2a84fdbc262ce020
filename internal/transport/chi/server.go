package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/mnemo/internal/domain"
	domrec "github.com/kailas-cloud/mnemo/internal/domain/record"
	"github.com/kailas-cloud/mnemo/internal/domain/search/filter"
	"github.com/kailas-cloud/mnemo/internal/domain/search/mode"
	"github.com/kailas-cloud/mnemo/internal/domain/search/request"
	domusage "github.com/kailas-cloud/mnemo/internal/domain/usage"
	"github.com/kailas-cloud/mnemo/internal/metrics"
	healthuc "github.com/kailas-cloud/mnemo/internal/usecase/health"
	recorduc "github.com/kailas-cloud/mnemo/internal/usecase/record"
	searchuc "github.com/kailas-cloud/mnemo/internal/usecase/search"
)

const maxBatchSize = 100

type recordService interface {
	Save(ctx context.Context, tenantID string, p recorduc.SaveParams) (domrec.Record, bool, error)
	Get(ctx context.Context, tenantID, id string) (domrec.Record, error)
	List(ctx context.Context, tenantID string, filters filter.Filter, offset, limit int) ([]domrec.Record, int, error)
	Delete(ctx context.Context, tenantID, id string) error
	ListEmbeddings(ctx context.Context, tenantID, id string) ([]domain.StoredEmbedding, error)
	Embed(ctx context.Context, tenantID, id, modelID string) (domain.ModelInfo, error)
	BatchSave(ctx context.Context, tenantID, modelID string, items []recorduc.SaveParams) ([]recorduc.BatchResult, error)
}

type searchService interface {
	Search(ctx context.Context, req *request.Request) (*searchuc.Response, error)
	Similar(ctx context.Context, req *request.SimilarRequest) (*searchuc.Response, error)
}

type modelCatalog interface {
	Models() []domain.ModelInfo
	DefaultModel() (domain.ModelInfo, error)
}

type usageService interface {
	GetReport(ctx context.Context, period domusage.Period) domusage.Report
}

type healthService interface {
	Check(ctx context.Context) healthuc.Report
}

// Server is the HTTP API surface.
type Server struct {
	records recordService
	search  searchService
	models  modelCatalog
	usage   usageService
	health  healthService
	types   *domrec.TypeRegistry
	logger  *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	records recordService,
	search searchService,
	models modelCatalog,
	usage usageService,
	health healthService,
	types *domrec.TypeRegistry,
	logger *zap.Logger,
) *Server {
	return &Server{
		records: records,
		search:  search,
		models:  models,
		usage:   usage,
		health:  health,
		types:   types,
		logger:  logger,
	}
}

// Router assembles the route tree. Data-plane routes live under /v1 behind
// bearer auth and the tenant header; health and metrics stay open.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(apiKeys))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Use(TenantMiddleware())

		r.Post("/search", s.handleSearch)
		r.Get("/models", s.handleModels)
		r.Get("/usage", s.handleUsage)

		r.Route("/records", func(r chi.Router) {
			r.Post("/", s.handleCreateRecord)
			r.Get("/", s.handleListRecords)
			r.Post("/batch", s.handleBatchSave)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", s.handleUpsertRecord)
				r.Get("/", s.handleGetRecord)
				r.Delete("/", s.handleDeleteRecord)
				r.Post("/similar", s.handleSimilar)
				r.Get("/embeddings", s.handleListEmbeddings)
				r.Post("/embeddings", s.handleEmbedRecord)
			})
		})
	})

	return r
}

// handleCreateRecord handles POST /v1/records.
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req recordPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	rec, _, err := s.records.Save(ctx, tenantFromContext(ctx), saveParams("", req))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	w.Header().Set("Location", "/v1/records/"+rec.ID())
	writeJSON(w, http.StatusCreated, recordToResponse(&rec))
}

// handleUpsertRecord handles PUT /v1/records/{id}.
func (s *Server) handleUpsertRecord(w http.ResponseWriter, r *http.Request) {
	var req recordPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	ctx, usage := domain.NewContextWithUsage(r.Context())
	rec, created, err := s.records.Save(ctx, tenantFromContext(ctx), saveParams(id, req))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		w.Header().Set("Location", "/v1/records/"+rec.ID())
	}
	setEmbeddingHeaders(w, usage)
	writeJSON(w, status, recordToResponse(&rec))
}

// handleGetRecord handles GET /v1/records/{id}.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.records.Get(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordToResponse(&rec))
}

// handleDeleteRecord handles DELETE /v1/records/{id}.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.records.Delete(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListRecords handles GET /v1/records.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	filters, err := filtersFromQuery(r, s.types)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	records, total, err := s.records.List(r.Context(), tenantFromContext(r.Context()), filters, offset, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]recordResponse, len(records))
	for i := range records {
		items[i] = recordToResponse(&records[i])
	}
	if limit == 0 {
		limit = request.DefaultLimit
	}
	writeJSON(w, http.StatusOK, recordListResponse{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// handleBatchSave handles POST /v1/records/batch.
func (s *Server) handleBatchSave(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Records) == 0 || len(req.Records) > maxBatchSize {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			fmt.Sprintf("records count must be between 1 and %d", maxBatchSize))
		return
	}

	items := make([]recorduc.SaveParams, len(req.Records))
	for i, item := range req.Records {
		items[i] = saveParams(item.ID, item.recordPayload)
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	results, err := s.records.BatchSave(ctx, tenantFromContext(ctx), req.Model, items)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	succeeded, failed := 0, 0
	out := make([]batchItemResult, len(results))
	for i, res := range results {
		out[i] = batchItemResult{ID: res.ID, Created: res.Created}
		if res.Err != nil {
			failed++
			out[i].Error = &errorResponse{
				Code:    errorCode(res.Err),
				Message: safeDomainMessage(res.Err),
			}
		} else {
			succeeded++
		}
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, batchResponse{Items: out, Succeeded: succeeded, Failed: failed})
}

// handleSearch handles POST /v1/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	filters, err := filtersFromPayload(req.Filters, s.types)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	searchReq, err := request.New(
		tenantFromContext(r.Context()), req.Query,
		mode.Mode(req.Mode), req.Model, filters,
		req.Limit, req.Offset, req.MinSimilarity,
	)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	resp, err := s.search.Search(ctx, &searchReq)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, searchToResponse(resp, searchReq.Filters(), searchReq.Limit(), searchReq.Offset()))
}

// handleSimilar handles POST /v1/records/{id}/similar.
func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	var req similarPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	filters, err := filtersFromPayload(req.Filters, s.types)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	similarReq, err := request.NewSimilar(
		tenantFromContext(r.Context()), chi.URLParam(r, "id"),
		req.Model, filters, req.Limit, req.Offset, req.MinSimilarity,
	)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp, err := s.search.Similar(r.Context(), &similarReq)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchToResponse(resp, similarReq.Filters(), similarReq.Limit(), similarReq.Offset()))
}

// handleListEmbeddings handles GET /v1/records/{id}/embeddings.
func (s *Server) handleListEmbeddings(w http.ResponseWriter, r *http.Request) {
	stored, err := s.records.ListEmbeddings(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]embeddingInfoResponse, len(stored))
	for i, emb := range stored {
		items[i] = embeddingInfoResponse{Model: emb.ModelID, Dimensions: emb.Dimensions}
	}
	writeJSON(w, http.StatusOK, embeddingListResponse{Items: items})
}

// handleEmbedRecord handles POST /v1/records/{id}/embeddings.
// An empty body embeds with the default model.
func (s *Server) handleEmbedRecord(w http.ResponseWriter, r *http.Request) {
	var req embedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	info, err := s.records.Embed(ctx, tenantFromContext(ctx), chi.URLParam(r, "id"), req.Model)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusCreated, embeddingInfoResponse{Model: info.ID, Dimensions: info.Dimensions})
}

// handleModels handles GET /v1/models.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models := s.models.Models()
	items := make([]modelResponse, len(models))
	for i, m := range models {
		items[i] = modelToResponse(m)
	}

	resp := modelListResponse{Models: items}
	if def, err := s.models.DefaultModel(); err == nil {
		resp.Default = def.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUsage handles GET /v1/usage.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	period := domusage.PeriodMonth
	switch r.URL.Query().Get("period") {
	case "day":
		period = domusage.PeriodDay
	case "total":
		period = domusage.PeriodTotal
	case "", "month":
	default:
		writeError(w, http.StatusBadRequest, codeValidationFailed, "period must be day, month, or total")
		return
	}

	report := s.usage.GetReport(r.Context(), period)

	isExhausted := report.Budget().IsExhausted()
	resp := map[string]any{
		"period": string(report.Period()),
		"usage": map[string]any{
			"embedding_requests": report.Metrics().EmbeddingRequests(),
			"tokens":             report.Metrics().Tokens(),
		},
		"budget": map[string]any{
			"tokens_limit":     report.Budget().TokensLimit(),
			"tokens_remaining": report.Budget().TokensRemaining(),
			"is_exhausted":     isExhausted,
		},
	}
	if report.PeriodStart() > 0 {
		resp["period_start_at"] = time.UnixMilli(report.PeriodStart()).UTC()
		resp["period_end_at"] = time.UnixMilli(report.PeriodEnd()).UTC()
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	writeJSON(w, httpStatus, map[string]any{
		"status": string(report.Status),
		"checks": checks,
	})
}

func saveParams(id string, p recordPayload) recorduc.SaveParams {
	return recorduc.SaveParams{
		ID:           id,
		Type:         p.Type,
		Title:        p.Title,
		Content:      p.Content,
		Source:       p.Source,
		SourceSystem: p.SourceSystem,
		ParentID:     p.ParentID,
		Metadata:     p.Metadata,
		ModelID:      p.Model,
	}
}

// filtersFromQuery builds a filter from list query params. Multi-value
// clauses repeat the param (?type=note&type=decision); metadata uses
// ?metadata=k=v pairs.
func filtersFromQuery(r *http.Request, types *domrec.TypeRegistry) (filter.Filter, error) {
	q := r.URL.Query()
	spec := filter.Spec{
		Types:         q["type"],
		Sources:       q["source"],
		SourceSystems: q["source_system"],
		ParentID:      q.Get("parent_id"),
	}

	for _, name := range []string{"created_after", "created_before", "updated_after", "updated_before"} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter.Filter{}, fmt.Errorf("%w: %s must be RFC 3339", domain.ErrValidation, name)
		}
		switch name {
		case "created_after":
			spec.CreatedAfter = &t
		case "created_before":
			spec.CreatedBefore = &t
		case "updated_after":
			spec.UpdatedAfter = &t
		case "updated_before":
			spec.UpdatedBefore = &t
		}
	}

	for _, pair := range q["metadata"] {
		k, v, found := cutPair(pair)
		if !found {
			return filter.Filter{}, fmt.Errorf("%w: metadata filter must be key=value", domain.ErrValidation)
		}
		if spec.Metadata == nil {
			spec.Metadata = make(map[string]string)
		}
		spec.Metadata[k] = v
	}

	f, err := filter.New(spec, types)
	if err != nil {
		return filter.Filter{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return f, nil
}

func cutPair(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Used {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// statusMapping pairs a domain sentinel with its HTTP projection.
type statusMapping struct {
	sentinel error
	status   int
	code     string
}

var statusMappings = []statusMapping{
	{domain.ErrValidation, http.StatusBadRequest, codeValidationFailed},
	{domain.ErrRecordNotFound, http.StatusNotFound, codeRecordNotFound},
	{domain.ErrEmbeddingNotFound, http.StatusNotFound, codeEmbeddingNotFound},
	{domain.ErrModelNotFound, http.StatusBadRequest, codeModelNotFound},
	{domain.ErrNoProviderConfigured, http.StatusServiceUnavailable, codeNoProviderConfigured},
	{domain.ErrProviderUnavailable, http.StatusServiceUnavailable, codeProviderUnavailable},
	{domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, codeEmbeddingQuotaExceeds},
	{domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProviderErr},
	{domain.ErrVectorDimMismatch, http.StatusBadRequest, codeVectorDimMismatch},
	{domain.ErrAlreadyExists, http.StatusConflict, codeValidationFailed},
	{domain.ErrNotFound, http.StatusNotFound, codeRecordNotFound},
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	for _, m := range statusMappings {
		if errors.Is(err, m.sentinel) {
			s.logger.Warn("domain error", zap.Error(err))
			writeError(w, m.status, m.code, safeDomainMessage(err))
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

func errorCode(err error) string {
	for _, m := range statusMappings {
		if errors.Is(err, m.sentinel) {
			return m.code
		}
	}
	return codeInternalError
}

// safeDomainMessage returns a client-facing message without exposing
// internals. Validation errors carry their detail; everything else reduces
// to the sentinel text.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrValidation) {
		return err.Error()
	}
	for _, m := range statusMappings {
		if errors.Is(err, m.sentinel) {
			return m.sentinel.Error()
		}
	}
	return "internal error"
}
