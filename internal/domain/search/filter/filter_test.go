package filter

import (
	"testing"
	"time"

	"github.com/kailas-cloud/mnemo/internal/domain/record"
)

func tstamp(day int) time.Time {
	return time.Date(2025, 6, day, 0, 0, 0, 0, time.UTC)
}

func tptr(day int) *time.Time {
	t := tstamp(day)
	return &t
}

func mustFilter(t *testing.T, spec Spec) Filter {
	t.Helper()
	f, err := New(spec, nil)
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}
	return f
}

func stubRecord(recordType, source, sourceSystem, parentID string, metadata map[string]string, created time.Time) *record.Record {
	r := record.Reconstruct(
		"acme", "rec-1", recordType, "t", "c",
		source, sourceSystem, parentID, metadata, created, created,
	)
	return &r
}

func TestNew_RejectsInvertedBounds(t *testing.T) {
	_, err := New(Spec{CreatedAfter: tptr(10), CreatedBefore: tptr(5)}, nil)
	if err == nil {
		t.Fatal("expected error for created_after >= created_before")
	}
	_, err = New(Spec{UpdatedAfter: tptr(5), UpdatedBefore: tptr(5)}, nil)
	if err == nil {
		t.Fatal("expected error for equal updated bounds")
	}
}

func TestNew_RejectsOversizedClause(t *testing.T) {
	values := make([]string, MaxValuesPerClause+1)
	for i := range values {
		values[i] = "s"
	}
	if _, err := New(Spec{Sources: values}, nil); err == nil {
		t.Fatal("expected error for clause over the value cap")
	}
}

func TestNew_RejectsEmptyValues(t *testing.T) {
	if _, err := New(Spec{Sources: []string{""}}, nil); err == nil {
		t.Error("expected error for empty source value")
	}
	if _, err := New(Spec{Metadata: map[string]string{"": "v"}}, nil); err == nil {
		t.Error("expected error for empty metadata key")
	}
}

func TestNew_ValidatesTypesAgainstVocabulary(t *testing.T) {
	types := record.NewTypeRegistry(nil)
	if _, err := New(Spec{Types: []string{"note"}}, types); err != nil {
		t.Errorf("known type rejected: %v", err)
	}
	if _, err := New(Spec{Types: []string{"invoice"}}, types); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestMatches_EmptyFilterMatchesEverything(t *testing.T) {
	f := Filter{}
	if !f.Matches(stubRecord("note", "", "", "", nil, tstamp(1))) {
		t.Error("empty filter must match any record")
	}
}

func TestMatches_Membership(t *testing.T) {
	f := mustFilter(t, Spec{
		Types:   []string{"note", "decision"},
		Sources: []string{"wiki"},
	})

	if !f.Matches(stubRecord("decision", "wiki", "", "", nil, tstamp(1))) {
		t.Error("record in both sets must match")
	}
	if f.Matches(stubRecord("conversation", "wiki", "", "", nil, tstamp(1))) {
		t.Error("type outside the set must not match")
	}
	if f.Matches(stubRecord("note", "crawler", "", "", nil, tstamp(1))) {
		t.Error("source outside the set must not match")
	}
}

func TestMatches_ParentScope(t *testing.T) {
	f := mustFilter(t, Spec{ParentID: "proj-1"})

	if !f.Matches(stubRecord("note", "", "", "proj-1", nil, tstamp(1))) {
		t.Error("matching parent must pass")
	}
	if f.Matches(stubRecord("note", "", "", "proj-2", nil, tstamp(1))) {
		t.Error("other parent must fail")
	}
	if f.Matches(stubRecord("note", "", "", "", nil, tstamp(1))) {
		t.Error("parentless record must fail a parent-scoped filter")
	}
}

func TestMatches_MetadataSubset(t *testing.T) {
	f := mustFilter(t, Spec{Metadata: map[string]string{"lang": "go", "team": "infra"}})

	if !f.Matches(stubRecord("note", "", "", "", map[string]string{"lang": "go", "team": "infra", "extra": "x"}, tstamp(1))) {
		t.Error("superset metadata must match")
	}
	if f.Matches(stubRecord("note", "", "", "", map[string]string{"lang": "go"}, tstamp(1))) {
		t.Error("missing pair must not match")
	}
	if f.Matches(stubRecord("note", "", "", "", map[string]string{"lang": "go", "team": "web"}, tstamp(1))) {
		t.Error("differing value must not match")
	}
}

func TestMatches_TimeBounds(t *testing.T) {
	f := mustFilter(t, Spec{CreatedAfter: tptr(10), CreatedBefore: tptr(20)})

	// Lower bound inclusive, upper bound exclusive.
	if !f.Matches(stubRecord("note", "", "", "", nil, tstamp(10))) {
		t.Error("record at the lower bound must match")
	}
	if !f.Matches(stubRecord("note", "", "", "", nil, tstamp(19))) {
		t.Error("record inside the interval must match")
	}
	if f.Matches(stubRecord("note", "", "", "", nil, tstamp(20))) {
		t.Error("record at the upper bound must not match")
	}
	if f.Matches(stubRecord("note", "", "", "", nil, tstamp(9))) {
		t.Error("record before the interval must not match")
	}
}

func TestMatches_IsEmpty(t *testing.T) {
	if !(Filter{}).IsEmpty() {
		t.Error("zero filter must report empty")
	}
	if mustFilter(t, Spec{ParentID: "p"}).IsEmpty() {
		t.Error("parent-scoped filter must not report empty")
	}
}
