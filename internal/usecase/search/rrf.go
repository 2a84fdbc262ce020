package search

import (
	"sort"

	"github.com/kailas-cloud/mnemo/internal/domain/search/result"
)

// rrfK is the Reciprocal Rank Fusion constant (standard value from Cormack et al. 2009).
const rrfK = 60

// fuseRRF merges two ranked candidate lists via Reciprocal Rank Fusion:
// score(d) = sum over rankings of 1/(k + rank(d)), with 1-based ranks.
// Output is sorted by fused score descending; equal scores break ties by
// item id ascending, so a fixed corpus and query always produce the same
// ordering. An item absent from one side simply contributes nothing for it.
func fuseRRF(semantic, lexical []result.Candidate) []result.Fused {
	type entry struct {
		score   float64
		rankSem int
		rankLex int
	}

	merged := make(map[string]*entry, len(semantic)+len(lexical))

	for i := range semantic {
		c := &semantic[i]
		merged[c.ItemID()] = &entry{
			score:   1.0 / float64(rrfK+c.Rank()),
			rankSem: c.Rank(),
		}
	}

	for i := range lexical {
		c := &lexical[i]
		contribution := 1.0 / float64(rrfK+c.Rank())
		if e, ok := merged[c.ItemID()]; ok {
			e.score += contribution
			e.rankLex = c.Rank()
		} else {
			merged[c.ItemID()] = &entry{score: contribution, rankLex: c.Rank()}
		}
	}

	fused := make([]result.Fused, 0, len(merged))
	for id, e := range merged {
		fused = append(fused, result.NewFused(id, e.score, e.rankSem, e.rankLex))
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score() != fused[j].Score() {
			return fused[i].Score() > fused[j].Score()
		}
		return fused[i].ItemID() < fused[j].ItemID()
	})

	return fused
}

// singleSideFused lifts one engine's candidates into the fused shape without
// RRF scoring: the engine's native score and rank carry through unchanged.
func singleSideFused(candidates []result.Candidate, semantic bool) []result.Fused {
	fused := make([]result.Fused, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		if semantic {
			fused = append(fused, result.NewFused(c.ItemID(), c.Score(), c.Rank(), 0))
		} else {
			fused = append(fused, result.NewFused(c.ItemID(), c.Score(), 0, c.Rank()))
		}
	}
	return fused
}
