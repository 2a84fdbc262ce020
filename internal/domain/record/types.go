package record

import "fmt"

// DefaultTypes is the starting vocabulary of record types. The registry is
// data, not an enumeration: deployments extend it through configuration
// without touching the search core.
var DefaultTypes = []string{"conversation", "document", "note", "decision", "annotation"}

// TypeRegistry validates record type tags against the configured vocabulary.
// Read-only after construction, safe for concurrent use.
type TypeRegistry struct {
	allowed map[string]struct{}
}

// NewTypeRegistry builds a registry from the configured vocabulary.
// An empty list falls back to DefaultTypes.
func NewTypeRegistry(types []string) *TypeRegistry {
	if len(types) == 0 {
		types = DefaultTypes
	}
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		if t != "" {
			allowed[t] = struct{}{}
		}
	}
	return &TypeRegistry{allowed: allowed}
}

// Valid reports whether t is part of the vocabulary.
func (r *TypeRegistry) Valid(t string) bool {
	_, ok := r.allowed[t]
	return ok
}

// Validate returns an error naming the first unknown type tag.
func (r *TypeRegistry) Validate(types ...string) error {
	for _, t := range types {
		if !r.Valid(t) {
			return fmt.Errorf("unknown record type %q", t)
		}
	}
	return nil
}

// Types returns the vocabulary in unspecified order.
func (r *TypeRegistry) Types() []string {
	out := make([]string, 0, len(r.allowed))
	for t := range r.allowed {
		out = append(out, t)
	}
	return out
}
