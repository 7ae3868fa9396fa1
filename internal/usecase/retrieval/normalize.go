package retrieval

import "hybrid-retrieval/internal/domain"

// normalizeScores min-max scales raw source scores into [0,1].
// When every hit has the same score they all map to 1. Duplicate ids keep the best score.
func normalizeScores(hits []domain.ScoredHit) map[string]float64 {
	out := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return out
	}

	lo, hi := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < lo {
			lo = h.Score
		}
		if h.Score > hi {
			hi = h.Score
		}
	}

	span := hi - lo
	for _, h := range hits {
		n := 1.0
		if span > 0 {
			n = (h.Score - lo) / span
		}
		if prev, ok := out[h.ID]; !ok || n > prev {
			out[h.ID] = n
		}
	}
	return out
}
