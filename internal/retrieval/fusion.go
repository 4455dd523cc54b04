package retrieval

import "sort"

// fuseRRF applies Reciprocal Rank Fusion over the vector-ranked and
// lexical-ranked candidate lists. Each candidate accumulates
// 1/(k + rank + 1) for every list it appears in, where rank is its 0-based
// position within that list. Rank-based fusion sidesteps score normalization
// across the two scales entirely.
func fuseRRF(vectorRanked, lexicalRanked []*Candidate, k int) {
	for _, ranked := range [][]*Candidate{vectorRanked, lexicalRanked} {
		for rank, c := range ranked {
			contribution := 1.0 / float64(k+rank+1)
			if c.RRFScore == nil {
				score := contribution
				c.RRFScore = &score
			} else {
				*c.RRFScore += contribution
			}
		}
	}
}

// sortByEffectiveScore orders candidates best-first, with the key as a stable
// tie breaker so fusion output is deterministic.
func sortByEffectiveScore(candidates []*Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := candidates[i].EffectiveScore(), candidates[j].EffectiveScore()
		if si != sj {
			return si > sj
		}
		return candidates[i].Key < candidates[j].Key
	})
}
