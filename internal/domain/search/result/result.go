package result

// Candidate is a single hit from one ranker: the item, its 1-based rank in
// that ranker's ordering, and the ranker's native score (cosine similarity or
// BM25 relevance). Created per request, never persisted.
type Candidate struct {
	itemID string
	rank   int
	score  float64
}

// NewCandidate creates a ranked candidate.
func NewCandidate(itemID string, rank int, score float64) Candidate {
	return Candidate{itemID: itemID, rank: rank, score: score}
}

// ItemID returns the record identifier.
func (c *Candidate) ItemID() string { return c.itemID }

// Rank returns the 1-based position in the ranker's ordering.
func (c *Candidate) Rank() int { return c.rank }

// Score returns the ranker's native score.
func (c *Candidate) Score() float64 { return c.score }

// Rerank assigns fresh 1-based ranks to candidates in slice order.
func Rerank(candidates []Candidate) {
	for i := range candidates {
		candidates[i].rank = i + 1
	}
}

// Fused is one entry of a fused result list. Score is an RRF sum comparable
// only within one fusion run. A zero rank means the item was absent from that
// side's candidate list.
type Fused struct {
	itemID       string
	score        float64
	rankSemantic int
	rankLexical  int
}

// NewFused creates a fused result entry.
func NewFused(itemID string, score float64, rankSemantic, rankLexical int) Fused {
	return Fused{itemID: itemID, score: score, rankSemantic: rankSemantic, rankLexical: rankLexical}
}

// ItemID returns the record identifier.
func (f *Fused) ItemID() string { return f.itemID }

// Score returns the fused RRF score.
func (f *Fused) Score() float64 { return f.score }

// RankSemantic returns the semantic-side rank, 0 when absent.
func (f *Fused) RankSemantic() int { return f.rankSemantic }

// RankLexical returns the lexical-side rank, 0 when absent.
func (f *Fused) RankLexical() int { return f.rankLexical }

// Page is the shaped search response: one page of the fused list plus the
// total size of the fused union and the degraded-side marker.
type Page struct {
	Items   []Fused
	Total   int
	Partial bool
}
