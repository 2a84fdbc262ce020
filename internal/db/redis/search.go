package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/mnemo/internal/db"
	"github.com/kailas-cloud/mnemo/internal/domain/search/filter"
)

// SearchKNN runs a KNN vector similarity search via FT.SEARCH.
// The tenant and filter become the KNN pre-filter, so ranking happens over the
// restricted universe, never before it.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.TenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	filterStr := buildFilter(q.TenantID, q.Filters)

	knnPart := fmt.Sprintf("[KNN %d @vector $BLOB]", q.K)
	queryStr := fmt.Sprintf("(%s)=>%s", filterStr, knnPart)

	args := []string{q.IndexName, queryStr}

	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)))
		args = append(args, q.ReturnFields...)
	}

	args = append(args,
		"SORTBY", "__vector_score",
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", vectorToBytes(q.Vector),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "no such index") {
			return nil, db.ErrIndexNotFound
		}
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseKNNResult(raw)
}

// SearchBM25 runs a BM25 lexical search via FT.SEARCH. The query text goes
// through buildTextQuery, which preserves phrases, OR and -negation and
// escapes everything else; stemming and stop words are handled by the index's
// english profile.
func (s *Store) SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.TenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	if q.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if q.TopK <= 0 {
		return nil, fmt.Errorf("topK must be positive")
	}

	filterStr := buildFilter(q.TenantID, q.Filters)

	textPart := buildTextQuery(q.Query)
	if textPart == "" {
		// Query was all stop-characters; nothing can match.
		return &db.SearchResult{}, nil
	}

	queryStr := fmt.Sprintf("%s %s", filterStr, textPart)

	args := []string{q.IndexName, queryStr}

	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)))
		args = append(args, q.ReturnFields...)
	}

	args = append(args,
		"WITHSCORES",
		"LIMIT", "0", strconv.Itoa(q.TopK),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "no such index") {
			return nil, db.ErrIndexNotFound
		}
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseBM25Result(raw)
}

// SearchList performs paginated listing via FT.SEARCH, newest first.
func (s *Store) SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.TenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	args := []string{q.IndexName, buildFilter(q.TenantID, q.Filters)}

	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)))
		args = append(args, q.ReturnFields...)
	}

	args = append(args,
		"SORTBY", "created_at", "DESC",
		"LIMIT", strconv.Itoa(q.Offset), strconv.Itoa(q.Limit),
	)

	args = append(args, "DIALECT", "2")

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "no such index") {
			return nil, db.ErrIndexNotFound
		}
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseListResult(raw)
}

// --- Result parsing ---

func parseKNNResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fields),
		}

		if scoreStr, ok := entry.Fields["__vector_score"]; ok {
			if d, err := strconv.ParseFloat(scoreStr, 64); err == nil {
				entry.Score = max(0, 1.0-d) // cosine distance -> similarity, clamped to [0,1]
			}
			delete(entry.Fields, "__vector_score")
		}

		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseBM25Result(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, total)
	// 3-stride: [total, key1, score1, fields1, key2, score2, fields2, ...]
	for i := 1; i+2 < len(raw); i += 3 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}

		fields, err := raw[i+2].ToArray()
		if err != nil {
			continue
		}

		entries = append(entries, db.SearchEntry{
			Key:    key,
			Score:  score,
			Fields: parseFieldPairs(fields),
		})
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseListResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entries = append(entries, db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fields),
		})
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Filter building ---

// buildFilter translates the tenant scope plus a filter.Filter into an
// FT.SEARCH pre-filter string. Both the lexical and the per-model vector
// indexes carry the same tag and numeric fields, so the same string restricts
// both rankers identically.
func buildFilter(tenantID string, f filter.Filter) string {
	parts := []string{buildTagClause("tenant_id", []string{tenantID})}

	if len(f.Types()) > 0 {
		parts = append(parts, buildTagClause("record_type", f.Types()))
	}
	if len(f.Sources()) > 0 {
		parts = append(parts, buildTagClause("source", f.Sources()))
	}
	if len(f.SourceSystems()) > 0 {
		parts = append(parts, buildTagClause("source_system", f.SourceSystems()))
	}
	if f.ParentID() != "" {
		parts = append(parts, buildTagClause("parent_id", []string{f.ParentID()}))
	}
	for _, pair := range metadataPairs(f.Metadata()) {
		parts = append(parts, buildTagClause("metadata", []string{pair}))
	}
	if clause := buildTimeClause("created_at", f.CreatedAfter(), f.CreatedBefore()); clause != "" {
		parts = append(parts, clause)
	}
	if clause := buildTimeClause("updated_at", f.UpdatedAfter(), f.UpdatedBefore()); clause != "" {
		parts = append(parts, clause)
	}

	return strings.Join(parts, " ")
}

func buildTagClause(field string, values []string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = tagEscaper.Replace(v)
	}
	return fmt.Sprintf("@%s:{%s}", field, strings.Join(escaped, "|"))
}

// buildTimeClause emits a numeric range over unix seconds: inclusive lower
// bound, exclusive upper bound, matching filter.Filter.Matches.
func buildTimeClause(field string, after, before *time.Time) string {
	if after == nil && before == nil {
		return ""
	}

	minBound := "-inf"
	maxBound := "+inf"
	if after != nil {
		minBound = strconv.FormatInt(after.Unix(), 10)
	}
	if before != nil {
		maxBound = "(" + strconv.FormatInt(before.Unix(), 10)
	}

	return fmt.Sprintf("@%s:[%s %s]", field, minBound, maxBound)
}

// metadataPairs flattens the containment clause into sorted k=v entries, the
// same encoding MetadataTag uses at write time.
func metadataPairs(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, k+"="+v)
	}
	// Deterministic clause order keeps query strings byte-identical across runs.
	sort.Strings(pairs)
	return pairs
}

// --- Lexical query building ---

// buildTextQuery turns raw query text into an FT.SEARCH TEXT expression.
// Supported operators: "quoted phrases", OR between terms, -term negation.
// Everything else is escaped and matched as stemmed terms (implicit AND).
func buildTextQuery(query string) string {
	tokens := tokenizeQuery(query)

	var parts []string
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		if tok.text == "OR" && !tok.phrase {
			// Fuse the previous and next clause into an alternation.
			if len(parts) == 0 || i+1 >= len(tokens) {
				continue
			}
			next := renderToken(tokens[i+1])
			if next == "" {
				continue
			}
			prev := parts[len(parts)-1]
			parts[len(parts)-1] = "(" + prev + "|" + next + ")"
			i++
			continue
		}

		if rendered := renderToken(tok); rendered != "" {
			parts = append(parts, rendered)
		}
	}

	return strings.Join(parts, " ")
}

type queryToken struct {
	text    string
	phrase  bool
	negated bool
}

// tokenizeQuery splits on whitespace, keeping quoted segments whole.
func tokenizeQuery(query string) []queryToken {
	var tokens []queryToken
	var buf strings.Builder
	inQuotes := false
	negated := false

	flush := func(phrase bool) {
		if buf.Len() == 0 {
			negated = false
			return
		}
		tokens = append(tokens, queryToken{text: buf.String(), phrase: phrase, negated: negated})
		buf.Reset()
		negated = false
	}

	for _, r := range query {
		switch {
		case r == '"':
			flush(inQuotes)
			inQuotes = !inQuotes
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inQuotes {
				buf.WriteRune(r)
			} else {
				flush(false)
			}
		case r == '-' && !inQuotes && buf.Len() == 0:
			negated = true
		default:
			buf.WriteRune(r)
		}
	}
	flush(inQuotes)

	return tokens
}

func renderToken(tok queryToken) string {
	var rendered string
	if tok.phrase {
		words := strings.Fields(tok.text)
		for i, w := range words {
			words[i] = escapeQueryTerm(w)
		}
		if len(words) == 0 {
			return ""
		}
		rendered = `"` + strings.Join(words, " ") + `"`
	} else {
		rendered = escapeQueryTerm(tok.text)
		if rendered == "" {
			return ""
		}
	}
	if tok.negated {
		return "-" + rendered
	}
	return rendered
}

func escapeQueryTerm(s string) string {
	return queryEscaper.Replace(s)
}

// --- Escapers ---

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
)

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
