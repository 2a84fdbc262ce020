package record

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/mnemo/internal/domain"
	domrec "github.com/kailas-cloud/mnemo/internal/domain/record"
	"github.com/kailas-cloud/mnemo/internal/domain/search/filter"
	"github.com/kailas-cloud/mnemo/internal/domain/search/request"
)

// SaveParams carries the writable attributes of a record. An empty ID means
// "generate one". ModelID picks the auto-embed model, empty for the default.
type SaveParams struct {
	ID           string
	Type         string
	Title        string
	Content      string
	Source       string
	SourceSystem string
	ParentID     string
	Metadata     map[string]string
	ModelID      string
}

// BatchResult reports the outcome for one item of a batch save.
type BatchResult struct {
	ID      string
	Created bool
	Err     error
}

// Service owns the record lifecycle: validation, persistence, and keeping
// embeddings in step with content.
type Service struct {
	repo     Repository
	registry Registry
	types    *domrec.TypeRegistry
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a record service.
func New(repo Repository, registry Registry, types *domrec.TypeRegistry, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		types:    types,
		now:      time.Now,
		logger:   logger,
	}
}

// Save creates or replaces a record and refreshes its embeddings.
// Embedding is best effort: a record that cannot be vectorized right now is
// still stored and lexically searchable. Returns true when created.
func (s *Service) Save(ctx context.Context, tenantID string, p SaveParams) (domrec.Record, bool, error) {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	if !s.types.Valid(p.Type) {
		return domrec.Record{}, false, fmt.Errorf("%w: unknown record type %q", domain.ErrValidation, p.Type)
	}

	rec, err := domrec.New(
		tenantID, id, p.Type, p.Title, p.Content,
		p.Source, p.SourceSystem, p.ParentID, p.Metadata, s.now(),
	)
	if err != nil {
		return domrec.Record{}, false, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	// A replace keeps the original creation time.
	existing, err := s.repo.Get(ctx, tenantID, id)
	if err == nil {
		rec = domrec.Reconstruct(
			tenantID, id, p.Type, p.Title, p.Content,
			p.Source, p.SourceSystem, p.ParentID, p.Metadata,
			existing.CreatedAt(), s.now().UTC(),
		)
	} else if !errors.Is(err, domain.ErrRecordNotFound) {
		return domrec.Record{}, false, fmt.Errorf("load existing record: %w", err)
	}

	created, err := s.repo.Upsert(ctx, &rec)
	if err != nil {
		return domrec.Record{}, false, fmt.Errorf("save record: %w", err)
	}

	s.refreshEmbeddings(ctx, &rec, p.ModelID, created)

	return rec, created, nil
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, tenantID, id string) (domrec.Record, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// List returns one page of records under a filter, newest first.
func (s *Service) List(
	ctx context.Context, tenantID string, filters filter.Filter, offset, limit int,
) ([]domrec.Record, int, error) {
	if limit < 0 || limit > request.MaxLimit {
		return nil, 0, fmt.Errorf("%w: limit must be between 0 and %d", domain.ErrValidation, request.MaxLimit)
	}
	if limit == 0 {
		limit = request.DefaultLimit
	}
	if offset < 0 || offset > request.MaxOffset {
		return nil, 0, fmt.Errorf("%w: offset must be between 0 and %d", domain.ErrValidation, request.MaxOffset)
	}
	return s.repo.List(ctx, tenantID, filters, offset, limit)
}

// Delete removes a record and its embeddings.
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	return s.repo.Delete(ctx, tenantID, id)
}

// ListEmbeddings reports which models cover a record.
func (s *Service) ListEmbeddings(ctx context.Context, tenantID, id string) ([]domain.StoredEmbedding, error) {
	if _, err := s.repo.Get(ctx, tenantID, id); err != nil {
		return nil, err
	}
	return s.repo.ListEmbeddings(ctx, tenantID, id)
}

// Embed vectorizes a record with an explicit model. Unlike the best-effort
// path inside Save, failures here surface to the caller.
func (s *Service) Embed(ctx context.Context, tenantID, id, modelID string) (domain.ModelInfo, error) {
	rec, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return domain.ModelInfo{}, err
	}
	return s.embedOne(ctx, &rec, modelID)
}

// BatchSave stores many records in one request, embedding them with a single
// batched provider call. Item failures are reported per item, not as a
// request failure.
func (s *Service) BatchSave(
	ctx context.Context, tenantID, modelID string, items []SaveParams,
) ([]BatchResult, error) {
	results := make([]BatchResult, len(items))
	records := make([]*domrec.Record, len(items))

	for i, p := range items {
		id := p.ID
		if id == "" {
			id = uuid.NewString()
		}
		results[i].ID = id

		if !s.types.Valid(p.Type) {
			results[i].Err = fmt.Errorf("%w: unknown record type %q", domain.ErrValidation, p.Type)
			continue
		}
		rec, err := domrec.New(
			tenantID, id, p.Type, p.Title, p.Content,
			p.Source, p.SourceSystem, p.ParentID, p.Metadata, s.now(),
		)
		if err != nil {
			results[i].Err = fmt.Errorf("%w: %w", domain.ErrValidation, err)
			continue
		}

		created, err := s.repo.Upsert(ctx, &rec)
		if err != nil {
			results[i].Err = fmt.Errorf("save record: %w", err)
			continue
		}
		results[i].Created = created
		records[i] = &rec
	}

	s.batchEmbed(ctx, modelID, records)

	return results, nil
}

// batchEmbed vectorizes the saved records of a batch in one provider call.
// Best effort like the Save path.
func (s *Service) batchEmbed(ctx context.Context, modelID string, records []*domrec.Record) {
	var saved []*domrec.Record
	for _, rec := range records {
		if rec != nil {
			saved = append(saved, rec)
		}
	}
	if len(saved) == 0 {
		return
	}

	provider, info, err := s.registry.Resolve(modelID)
	if err != nil {
		s.logEmbedSkip(err, "batch")
		return
	}

	texts := make([]string, len(saved))
	for i, rec := range saved {
		texts[i] = embedText(rec)
	}

	res, err := provider.BatchEmbed(ctx, texts, info.ID)
	if err != nil {
		s.logger.Warn("Batch embedding failed, records stored without vectors",
			zap.String("model", info.ID),
			zap.Int("batch_size", len(saved)),
			zap.Error(err),
		)
		return
	}

	for i, rec := range saved {
		if i >= len(res.Embeddings) {
			break
		}
		if err := s.repo.SaveEmbedding(ctx, rec, info, res.Embeddings[i]); err != nil {
			s.logger.Warn("Failed to store embedding",
				zap.String("record_id", rec.ID()),
				zap.String("model", info.ID),
				zap.Error(err),
			)
		}
	}
}

// refreshEmbeddings re-vectorizes a record after a write: the requested (or
// default) model always, plus every other model that already covered the
// record, so stale vectors never serve searches.
func (s *Service) refreshEmbeddings(ctx context.Context, rec *domrec.Record, modelID string, created bool) {
	embedded := make(map[string]bool)

	if info, err := s.embedOne(ctx, rec, modelID); err != nil {
		s.logEmbedSkip(err, rec.ID())
	} else {
		embedded[info.ID] = true
	}

	if created {
		return
	}

	stored, err := s.repo.ListEmbeddings(ctx, rec.TenantID(), rec.ID())
	if err != nil {
		s.logger.Warn("Failed to list stored embeddings",
			zap.String("record_id", rec.ID()), zap.Error(err))
		return
	}
	for _, emb := range stored {
		if embedded[emb.ModelID] {
			continue
		}
		if _, err := s.embedOne(ctx, rec, emb.ModelID); err != nil {
			s.logEmbedSkip(err, rec.ID())
		}
	}
}

func (s *Service) embedOne(ctx context.Context, rec *domrec.Record, modelID string) (domain.ModelInfo, error) {
	provider, info, err := s.registry.Resolve(modelID)
	if err != nil {
		return domain.ModelInfo{}, err
	}

	res, err := provider.Embed(ctx, embedText(rec), info.ID)
	if err != nil {
		return domain.ModelInfo{}, fmt.Errorf("embed record: %w", err)
	}

	if err := s.repo.SaveEmbedding(ctx, rec, info, res.Embedding); err != nil {
		return domain.ModelInfo{}, fmt.Errorf("store embedding: %w", err)
	}
	return info, nil
}

func (s *Service) logEmbedSkip(err error, recordID string) {
	if errors.Is(err, domain.ErrNoProviderConfigured) {
		s.logger.Warn("No embedding provider configured, record stored without vectors",
			zap.String("record_id", recordID))
		return
	}
	s.logger.Warn("Embedding failed, record stored without vectors",
		zap.String("record_id", recordID),
		zap.Error(err),
	)
}

// embedText is what providers see for a record: the title gives the vector
// context the body alone may lack.
func embedText(rec *domrec.Record) string {
	if rec.Title() == "" {
		return rec.Content()
	}
	return rec.Title() + "\n\n" + rec.Content()
}
