package db

import "github.com/kailas-cloud/mnemo/internal/domain/search/filter"

// KNNQuery is the input for vector similarity search. TenantID always becomes
// part of the index pre-filter; isolation is structural, never a post-check.
type KNNQuery struct {
	IndexName    string
	TenantID     string
	Filters      filter.Filter
	Vector       []float32
	K            int
	ReturnFields []string
}

// TextQuery is the input for BM25 lexical search. Query supports quoted
// phrases, OR, and -negation; everything else is matched as stemmed terms.
type TextQuery struct {
	IndexName    string
	TenantID     string
	Query        string
	Filters      filter.Filter
	TopK         int
	ReturnFields []string
}

// ListQuery is the input for filtered record listing (newest first).
type ListQuery struct {
	IndexName    string
	TenantID     string
	Filters      filter.Filter
	Offset       int
	Limit        int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
