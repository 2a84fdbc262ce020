package record

import (
	"fmt"
	"regexp"
	"time"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Content limits.
const (
	MaxContentSize  = 163840 // 160KB
	MaxTitleLength  = 512
	MaxMetadataKeys = 64
)

// Record is a tenant-owned knowledge record (immutable value object).
// The search core reads projections of it; mutation goes through With* copies.
type Record struct {
	tenantID     string
	id           string
	recordType   string
	title        string
	content      string
	source       string
	sourceSystem string
	parentID     string
	metadata     map[string]string
	createdAt    time.Time
	updatedAt    time.Time
}

// New validates and creates a Record.
// ID: ^[a-zA-Z0-9_-]+$, 1-256 chars. Content: non-empty, max 160KB.
// Type validity against the tenant vocabulary is checked in the service layer.
func New(
	tenantID, id, recordType, title, content, source, sourceSystem, parentID string,
	metadata map[string]string, now time.Time,
) (Record, error) {
	if tenantID == "" {
		return Record{}, fmt.Errorf("tenant id is required")
	}
	if id == "" {
		return Record{}, fmt.Errorf("record ID is required")
	}
	if len(id) > 256 {
		return Record{}, fmt.Errorf("record ID too long (max 256)")
	}
	if !idRegex.MatchString(id) {
		return Record{}, fmt.Errorf("record ID must be alphanumeric with underscores and hyphens")
	}
	if recordType == "" {
		return Record{}, fmt.Errorf("record type is required")
	}
	if content == "" {
		return Record{}, fmt.Errorf("content is required")
	}
	if len(content) > MaxContentSize {
		return Record{}, fmt.Errorf("content too large (max %d bytes)", MaxContentSize)
	}
	if len(title) > MaxTitleLength {
		return Record{}, fmt.Errorf("title too long (max %d chars)", MaxTitleLength)
	}
	if len(metadata) > MaxMetadataKeys {
		return Record{}, fmt.Errorf("too many metadata keys (max %d)", MaxMetadataKeys)
	}
	for k := range metadata {
		if k == "" {
			return Record{}, fmt.Errorf("metadata key must be non-empty")
		}
	}

	return Record{
		tenantID:     tenantID,
		id:           id,
		recordType:   recordType,
		title:        title,
		content:      content,
		source:       source,
		sourceSystem: sourceSystem,
		parentID:     parentID,
		metadata:     cloneStringMap(metadata),
		createdAt:    now.UTC(),
		updatedAt:    now.UTC(),
	}, nil
}

// Reconstruct creates a Record without validation (storage hydration).
func Reconstruct(
	tenantID, id, recordType, title, content, source, sourceSystem, parentID string,
	metadata map[string]string, createdAt, updatedAt time.Time,
) Record {
	return Record{
		tenantID: tenantID, id: id, recordType: recordType,
		title: title, content: content,
		source: source, sourceSystem: sourceSystem, parentID: parentID,
		metadata: metadata, createdAt: createdAt, updatedAt: updatedAt,
	}
}

// TenantID returns the owning tenant.
func (r *Record) TenantID() string { return r.tenantID }

// ID returns the record identifier.
func (r *Record) ID() string { return r.id }

// Type returns the record type tag.
func (r *Record) Type() string { return r.recordType }

// Title returns the record title.
func (r *Record) Title() string { return r.title }

// Content returns the record body text.
func (r *Record) Content() string { return r.content }

// Source returns the origin label.
func (r *Record) Source() string { return r.source }

// SourceSystem returns the originating system label.
func (r *Record) SourceSystem() string { return r.sourceSystem }

// ParentID returns the parent record id, empty for root records.
func (r *Record) ParentID() string { return r.parentID }

// Metadata returns the open key-value metadata map.
func (r *Record) Metadata() map[string]string { return r.metadata }

// CreatedAt returns the creation timestamp.
func (r *Record) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns the last update timestamp.
func (r *Record) UpdatedAt() time.Time { return r.updatedAt }

// WithContent returns a copy with new title/content/metadata and a bumped
// update timestamp.
func (r *Record) WithContent(title, content string, metadata map[string]string, now time.Time) (Record, error) {
	if content == "" {
		return Record{}, fmt.Errorf("content is required")
	}
	if len(content) > MaxContentSize {
		return Record{}, fmt.Errorf("content too large (max %d bytes)", MaxContentSize)
	}
	if len(title) > MaxTitleLength {
		return Record{}, fmt.Errorf("title too long (max %d chars)", MaxTitleLength)
	}

	out := *r
	out.title = title
	out.content = content
	out.metadata = cloneStringMap(metadata)
	out.updatedAt = now.UTC()
	return out, nil
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
