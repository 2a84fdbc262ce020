package filter

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/mnemo/internal/domain/record"
)

// MaxValuesPerClause caps each membership clause.
const MaxValuesPerClause = 32

// Filter is an immutable predicate over record attributes.
// It restricts the search universe before either engine ranks candidates, so
// both rankers order the same restricted set. Pure value; never mutates data.
type Filter struct {
	types         []string
	sources       []string
	sourceSystems []string
	createdAfter  *time.Time
	createdBefore *time.Time
	updatedAfter  *time.Time
	updatedBefore *time.Time
	metadata      map[string]string
	parentID      string
}

// Spec is the raw, serializable form of a Filter as it arrives on the wire.
type Spec struct {
	Types         []string
	Sources       []string
	SourceSystems []string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	UpdatedAfter  *time.Time
	UpdatedBefore *time.Time
	Metadata      map[string]string
	ParentID      string
}

// New validates a Spec and compiles it into a Filter. Type tags are checked
// against the tenant vocabulary; bounds must form non-empty intervals.
func New(spec Spec, types *record.TypeRegistry) (Filter, error) {
	if len(spec.Types) > MaxValuesPerClause {
		return Filter{}, fmt.Errorf("too many type values (max %d)", MaxValuesPerClause)
	}
	if len(spec.Sources) > MaxValuesPerClause {
		return Filter{}, fmt.Errorf("too many source values (max %d)", MaxValuesPerClause)
	}
	if len(spec.SourceSystems) > MaxValuesPerClause {
		return Filter{}, fmt.Errorf("too many source_system values (max %d)", MaxValuesPerClause)
	}
	if types != nil {
		if err := types.Validate(spec.Types...); err != nil {
			return Filter{}, err
		}
	}
	for _, s := range spec.Sources {
		if s == "" {
			return Filter{}, fmt.Errorf("source value must be non-empty")
		}
	}
	for _, s := range spec.SourceSystems {
		if s == "" {
			return Filter{}, fmt.Errorf("source_system value must be non-empty")
		}
	}
	for k := range spec.Metadata {
		if k == "" {
			return Filter{}, fmt.Errorf("metadata key must be non-empty")
		}
	}
	if err := validateBounds(spec.CreatedAfter, spec.CreatedBefore, "created"); err != nil {
		return Filter{}, err
	}
	if err := validateBounds(spec.UpdatedAfter, spec.UpdatedBefore, "updated"); err != nil {
		return Filter{}, err
	}

	return Filter{
		types:         cloneSlice(spec.Types),
		sources:       cloneSlice(spec.Sources),
		sourceSystems: cloneSlice(spec.SourceSystems),
		createdAfter:  spec.CreatedAfter,
		createdBefore: spec.CreatedBefore,
		updatedAfter:  spec.UpdatedAfter,
		updatedBefore: spec.UpdatedBefore,
		metadata:      cloneMap(spec.Metadata),
		parentID:      spec.ParentID,
	}, nil
}

func validateBounds(after, before *time.Time, name string) error {
	if after != nil && before != nil && !after.Before(*before) {
		return fmt.Errorf("%s_after must precede %s_before", name, name)
	}
	return nil
}

// Types returns the type membership clause.
func (f Filter) Types() []string { return f.types }

// Sources returns the source membership clause.
func (f Filter) Sources() []string { return f.sources }

// SourceSystems returns the source-system membership clause.
func (f Filter) SourceSystems() []string { return f.sourceSystems }

// CreatedAfter returns the lower created-at bound.
func (f Filter) CreatedAfter() *time.Time { return f.createdAfter }

// CreatedBefore returns the upper created-at bound.
func (f Filter) CreatedBefore() *time.Time { return f.createdBefore }

// UpdatedAfter returns the lower updated-at bound.
func (f Filter) UpdatedAfter() *time.Time { return f.updatedAfter }

// UpdatedBefore returns the upper updated-at bound.
func (f Filter) UpdatedBefore() *time.Time { return f.updatedBefore }

// Metadata returns the subset-containment clause.
func (f Filter) Metadata() map[string]string { return f.metadata }

// ParentID returns the parent-scope clause, empty when absent.
func (f Filter) ParentID() string { return f.parentID }

// IsEmpty reports whether the filter restricts nothing.
func (f Filter) IsEmpty() bool {
	return len(f.types) == 0 && len(f.sources) == 0 && len(f.sourceSystems) == 0 &&
		f.createdAfter == nil && f.createdBefore == nil &&
		f.updatedAfter == nil && f.updatedBefore == nil &&
		len(f.metadata) == 0 && f.parentID == ""
}

// Matches evaluates the compiled predicate against one record. Side-effect
// free; the same semantics the storage layer applies as an index pre-filter.
func (f Filter) Matches(r *record.Record) bool {
	if len(f.types) > 0 && !contains(f.types, r.Type()) {
		return false
	}
	if len(f.sources) > 0 && !contains(f.sources, r.Source()) {
		return false
	}
	if len(f.sourceSystems) > 0 && !contains(f.sourceSystems, r.SourceSystem()) {
		return false
	}
	if f.parentID != "" && r.ParentID() != f.parentID {
		return false
	}
	if !within(r.CreatedAt(), f.createdAfter, f.createdBefore) {
		return false
	}
	if !within(r.UpdatedAt(), f.updatedAfter, f.updatedBefore) {
		return false
	}
	for k, v := range f.metadata {
		if r.Metadata()[k] != v {
			return false
		}
	}
	return true
}

func within(t time.Time, after, before *time.Time) bool {
	if after != nil && t.Before(*after) {
		return false
	}
	if before != nil && !t.Before(*before) {
		return false
	}
	return true
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func cloneSlice(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
