package record

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	domrec "github.com/kailas-cloud/mnemo/internal/domain/record"
)

// buildRecordHash flattens a record into HSET fields. Timestamps are unix
// seconds so the index can range-filter and sort them. Metadata is written
// twice: as a TAG payload for filtering and as JSON for lossless hydration.
func buildRecordHash(rec *domrec.Record) (map[string]string, error) {
	m := map[string]string{
		"tenant_id":   rec.TenantID(),
		"record_type": rec.Type(),
		"title":       rec.Title(),
		"content":     rec.Content(),
		"created_at":  strconv.FormatInt(rec.CreatedAt().Unix(), 10),
		"updated_at":  strconv.FormatInt(rec.UpdatedAt().Unix(), 10),
	}
	if rec.Source() != "" {
		m["source"] = rec.Source()
	}
	if rec.SourceSystem() != "" {
		m["source_system"] = rec.SourceSystem()
	}
	if rec.ParentID() != "" {
		m["parent_id"] = rec.ParentID()
	}
	if len(rec.Metadata()) > 0 {
		m["metadata"] = metadataTag(rec.Metadata())
		data, err := json.Marshal(rec.Metadata())
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		m["metadata_json"] = string(data)
	}
	return m, nil
}

// recordFromHash hydrates a record from flat hash fields.
func recordFromHash(tenantID, id string, m map[string]string) domrec.Record {
	var metadata map[string]string
	if raw := m["metadata_json"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &metadata)
	}
	return domrec.Reconstruct(
		tenantID, id,
		m["record_type"], m["title"], m["content"],
		m["source"], m["source_system"], m["parent_id"],
		metadata,
		unixField(m, "created_at"),
		unixField(m, "updated_at"),
	)
}

// buildEmbeddingHash packs one vector plus the record's filter fields. The
// duplicated tags are what make the shared pre-filter string valid against
// the vector index.
func buildEmbeddingHash(rec *domrec.Record, modelID string, vector []float32) map[string]string {
	m := map[string]string{
		"vector":      vectorToBytes(vector),
		"model":       modelID,
		"dimensions":  strconv.Itoa(len(vector)),
		"tenant_id":   rec.TenantID(),
		"record_type": rec.Type(),
		"created_at":  strconv.FormatInt(rec.CreatedAt().Unix(), 10),
		"updated_at":  strconv.FormatInt(rec.UpdatedAt().Unix(), 10),
	}
	if rec.Source() != "" {
		m["source"] = rec.Source()
	}
	if rec.SourceSystem() != "" {
		m["source_system"] = rec.SourceSystem()
	}
	if rec.ParentID() != "" {
		m["parent_id"] = rec.ParentID()
	}
	if len(rec.Metadata()) > 0 {
		m["metadata"] = metadataTag(rec.Metadata())
	}
	return m
}

// metadataTag encodes metadata as comma-separated k=v tag values, sorted for
// stable output. Matches the k=v encoding the query-side filter emits.
func metadataTag(metadata map[string]string) string {
	pairs := make([]string, 0, len(metadata))
	for k, v := range metadata {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func unixField(m map[string]string, field string) time.Time {
	sec, err := strconv.ParseInt(m[field], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
