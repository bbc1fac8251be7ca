package similarity

import (
	"sort"

	"github.com/seanblong/relatedwork/pkg/models"
)

// RankBySimilarity scores every candidate against seed and orders them by
// descending score. Equal scores keep their input order.
func RankBySimilarity(seed models.Item, candidates []models.Item) []models.ScoredCandidate {
	out := make([]models.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, ScoreCandidate(seed, c))
	}
	sortScored(out)
	return out
}

func sortScored(s []models.ScoredCandidate) {
	sort.SliceStable(s, func(i, j int) bool { return greater(s[i].Score, s[j].Score) })
}

// greater treats NaN as equal to everything.
func greater(a, b float64) bool {
	if a != a || b != b {
		return false
	}
	return a > b
}
