package record

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kailas-cloud/mnemo/internal/db"
	"github.com/kailas-cloud/mnemo/internal/domain"
	domrec "github.com/kailas-cloud/mnemo/internal/domain/record"
	"github.com/kailas-cloud/mnemo/internal/domain/search/filter"
)

// store is the consumer interface for record persistence (ISP).
//
//nolint:interfacebloat // record repo needs hash + index management operations
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
}

// HNSWConfig holds HNSW index build parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo implements usecase/record.Repository: record hashes plus one embedding
// hash per (record, model) pair, with the FT indexes that cover them.
type Repo struct {
	store store
	hnsw  HNSWConfig

	mu      sync.Mutex
	ensured map[string]bool
}

// New creates a record repository.
func New(s store) *Repo {
	return &Repo{
		store:   s,
		hnsw:    HNSWConfig{M: 32, EFConstruct: 400},
		ensured: make(map[string]bool),
	}
}

// WithHNSW overrides HNSW index build parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// EnsureRecordIndex creates the lexical index if it does not exist yet.
// Called once at startup; new vector indexes appear lazily per model.
func (r *Repo) EnsureRecordIndex(ctx context.Context) error {
	def, err := buildRecordIndex()
	if err != nil {
		return fmt.Errorf("build record index: %w", err)
	}
	return r.ensureIndex(ctx, def)
}

// Upsert writes the record hash. Returns true when the record did not exist before.
func (r *Repo) Upsert(ctx context.Context, rec *domrec.Record) (bool, error) {
	key := recKey(rec.TenantID(), rec.ID())

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check exists %s: %w", key, err)
	}

	fields, err := buildRecordHash(rec)
	if err != nil {
		return false, err
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return false, fmt.Errorf("hset record %s: %w", key, err)
	}

	return !exists, nil
}

// Get returns one record of a tenant.
func (r *Repo) Get(ctx context.Context, tenantID, id string) (domrec.Record, error) {
	key := recKey(tenantID, id)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return domrec.Record{}, fmt.Errorf("hgetall record %s: %w", key, err)
	}
	if len(m) == 0 {
		return domrec.Record{}, domain.ErrRecordNotFound
	}
	return recordFromHash(tenantID, id, m), nil
}

// GetMulti hydrates records preserving the order of ids. Missing ids are
// skipped, not errors: search candidates can outlive their records briefly.
func (r *Repo) GetMulti(ctx context.Context, tenantID string, ids []string) ([]domrec.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recKey(tenantID, id)
	}

	results, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi records: %w", err)
	}

	records := make([]domrec.Record, 0, len(ids))
	for i, m := range results {
		if len(m) == 0 {
			continue
		}
		records = append(records, recordFromHash(tenantID, ids[i], m))
	}
	return records, nil
}

// List returns one page of a tenant's records, newest first, plus the total
// count under the same filter.
func (r *Repo) List(
	ctx context.Context, tenantID string, filters filter.Filter, offset, limit int,
) ([]domrec.Record, int, error) {
	sr, err := r.store.SearchList(ctx, &db.ListQuery{
		IndexName: RecordIndexName(),
		TenantID:  tenantID,
		Filters:   filters,
		Offset:    offset,
		Limit:     limit,
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	if sr == nil || sr.Total == 0 {
		return nil, 0, nil
	}

	records := make([]domrec.Record, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		records = append(records, recordFromHash(tenantID, idFromKey(entry.Key), entry.Fields))
	}
	return records, sr.Total, nil
}

// Delete removes the record and every embedding stored for it.
func (r *Repo) Delete(ctx context.Context, tenantID, id string) error {
	key := recKey(tenantID, id)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", key, err)
	}
	if !exists {
		return domain.ErrRecordNotFound
	}

	if err := r.DeleteEmbeddings(ctx, tenantID, id); err != nil {
		return err
	}
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del record %s: %w", key, err)
	}
	return nil
}

// SaveEmbedding stores one vector for a (record, model) pair. The vector must
// match the model's declared dimensions; the per-model index is created on
// first use.
func (r *Repo) SaveEmbedding(
	ctx context.Context, rec *domrec.Record, model domain.ModelInfo, vector []float32,
) error {
	if len(vector) != model.Dimensions {
		return fmt.Errorf("model %s expects %d dimensions, got %d: %w",
			model.ID, model.Dimensions, len(vector), domain.ErrVectorDimMismatch)
	}

	def, err := buildVectorIndex(model, r.hnsw)
	if err != nil {
		return err
	}
	if err := r.ensureIndex(ctx, def); err != nil {
		return err
	}

	key := embKey(ModelSlug(model.ID), rec.TenantID(), rec.ID())
	if err := r.store.HSet(ctx, key, buildEmbeddingHash(rec, model.ID, vector)); err != nil {
		return fmt.Errorf("hset embedding %s: %w", key, err)
	}
	return nil
}

// GetEmbedding returns the stored vector for a (record, model) pair.
func (r *Repo) GetEmbedding(ctx context.Context, tenantID, id, modelID string) ([]float32, error) {
	key := embKey(ModelSlug(modelID), tenantID, id)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("hgetall embedding %s: %w", key, err)
	}
	raw := m["vector"]
	if raw == "" {
		return nil, domain.ErrEmbeddingNotFound
	}
	return bytesToVector(raw), nil
}

// ListEmbeddings returns which models have a stored vector for the record,
// sorted by model id.
func (r *Repo) ListEmbeddings(ctx context.Context, tenantID, id string) ([]domain.StoredEmbedding, error) {
	keys, err := r.embeddingKeys(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	results, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi embeddings: %w", err)
	}

	infos := make([]domain.StoredEmbedding, 0, len(results))
	for _, m := range results {
		if m["model"] == "" {
			continue
		}
		dims, _ := strconv.Atoi(m["dimensions"])
		infos = append(infos, domain.StoredEmbedding{ModelID: m["model"], Dimensions: dims})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ModelID < infos[j].ModelID })
	return infos, nil
}

// DeleteEmbeddings removes every embedding hash of a record across all models.
func (r *Repo) DeleteEmbeddings(ctx context.Context, tenantID, id string) error {
	keys, err := r.embeddingKeys(ctx, tenantID, id)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := r.store.Del(ctx, key); err != nil {
			return fmt.Errorf("del embedding %s: %w", key, err)
		}
	}
	return nil
}

func (r *Repo) embeddingKeys(ctx context.Context, tenantID, id string) ([]string, error) {
	pattern := embPrefix + "*:" + tenantID + ":" + id
	keys, err := r.store.Scan(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("scan embeddings %s: %w", pattern, err)
	}
	return keys, nil
}

// ensureIndex creates an index once per process; concurrent creation races
// resolve via ErrIndexExists.
func (r *Repo) ensureIndex(ctx context.Context, def *db.IndexDefinition) error {
	r.mu.Lock()
	done := r.ensured[def.Name]
	r.mu.Unlock()
	if done {
		return nil
	}

	exists, err := r.store.IndexExists(ctx, def.Name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", def.Name, err)
	}
	if !exists {
		if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
			return fmt.Errorf("create index %s: %w", def.Name, err)
		}
	}

	r.mu.Lock()
	r.ensured[def.Name] = true
	r.mu.Unlock()
	return nil
}

func idFromKey(key string) string {
	return key[strings.LastIndexByte(key, ':')+1:]
}
