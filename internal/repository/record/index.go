package record

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/mnemo/internal/db"
	"github.com/kailas-cloud/mnemo/internal/domain"
)

// Key layout:
//
//	mnemo:rec:<tenant>:<id>          record hash, lexical index mnemo:rec:idx
//	mnemo:emb:<slug>:<tenant>:<id>   embedding hash, vector index mnemo:emb:<slug>:idx
//
// Tenant and record ids never contain a colon, so the final segment of any
// key is always the record id.
const (
	recPrefix = domain.KeyPrefix + "rec:"
	embPrefix = domain.KeyPrefix + "emb:"
)

func recKey(tenantID, id string) string {
	return recPrefix + tenantID + ":" + id
}

// RecordIndexName is the lexical FT index over all record hashes.
func RecordIndexName() string {
	return recPrefix + "idx"
}

func embKeyPrefix(slug string) string {
	return embPrefix + slug + ":"
}

func embKey(slug, tenantID, id string) string {
	return embKeyPrefix(slug) + tenantID + ":" + id
}

// VectorIndexName is the per-model FT index over embedding hashes.
func VectorIndexName(modelID string) string {
	return embKeyPrefix(ModelSlug(modelID)) + "idx"
}

// ModelSlug folds a model id into the FT identifier alphabet. Model ids like
// "voyage-3.5" carry dots, which FT.CREATE rejects in index names.
func ModelSlug(modelID string) string {
	var b strings.Builder
	b.Grow(len(modelID))
	for _, r := range strings.ToLower(modelID) {
		isAlpha := r >= 'a' && r <= 'z'
		isDigit := r >= '0' && r <= '9'
		if isAlpha || isDigit || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// filterFields are the tag and numeric fields shared by the lexical and every
// vector index. Keeping the schemas aligned lets one pre-filter string
// restrict both rankers identically.
func filterFields(b *db.IndexBuilder) *db.IndexBuilder {
	return b.
		Tag("tenant_id").
		Tag("record_type").
		Tag("source").
		Tag("source_system").
		Tag("parent_id").
		Tag("metadata").
		NumericSortable("created_at").
		Numeric("updated_at")
}

// buildRecordIndex defines the lexical index: shared filter fields plus TEXT
// over title and content for BM25 ranking.
func buildRecordIndex() (*db.IndexDefinition, error) {
	return filterFields(db.NewIndex(RecordIndexName()).OnHash().Prefix(recPrefix)).
		Text("title").
		Text("content").
		Build()
}

// buildVectorIndex defines one per-model HNSW index. Dimensions come from the
// provider catalog, so a vector that fits the index fits the model.
func buildVectorIndex(model domain.ModelInfo, hnsw HNSWConfig) (*db.IndexDefinition, error) {
	if model.Dimensions <= 0 {
		return nil, fmt.Errorf("model %s has no declared dimensions", model.ID)
	}
	slug := ModelSlug(model.ID)
	return filterFields(db.NewIndex(embKeyPrefix(slug) + "idx").OnHash().Prefix(embKeyPrefix(slug))).
		VectorHNSW("vector", model.Dimensions, db.DistanceCosine, hnsw.M, hnsw.EFConstruct).
		Build()
}
