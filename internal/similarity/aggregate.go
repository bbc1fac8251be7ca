package similarity

import (
	"sort"

	"github.com/seanblong/relatedwork/pkg/models"
)

// Options bounds an aggregated result. A nil MinScore keeps everything; a
// Limit of zero or less means no cap.
type Options struct {
	MinScore *float64
	Limit    int
}

// MinScore is a convenience for building Options literals.
func MinScore(v float64) *float64 { return &v }

// Aggregate merges batches, sorts by descending score (stable, NaN compares
// equal), drops later duplicates by identity, removes entries scoring below
// MinScore and truncates to Limit. An empty identity is never deduplicated.
//
// Batches must come from the same ranking path: heuristic scores and text
// index scores are on unrelated scales.
func Aggregate[T any](batches [][]T, identify func(T) (string, float64), opts Options) []T {
	type entry struct {
		v     T
		id    string
		score float64
	}

	var all []entry
	for _, b := range batches {
		for _, v := range b {
			id, score := identify(v)
			all = append(all, entry{v: v, id: id, score: score})
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return greater(all[i].score, all[j].score) })

	seen := make(map[string]struct{}, len(all))
	out := make([]T, 0, len(all))
	for _, e := range all {
		if e.id != "" {
			if _, dup := seen[e.id]; dup {
				continue
			}
			seen[e.id] = struct{}{}
		}
		if opts.MinScore != nil && e.score < *opts.MinScore {
			continue
		}
		out = append(out, e.v)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out
}

// AggregateCandidates aggregates heuristic results, identified by item key.
func AggregateCandidates(opts Options, batches ...[]models.ScoredCandidate) []models.ScoredCandidate {
	return Aggregate(batches, func(s models.ScoredCandidate) (string, float64) {
		id := s.Candidate.Key
		if id == "" {
			id = s.Candidate.ID
		}
		return id, s.Score
	}, opts)
}

// AggregateResults aggregates text index results, identified by document ID.
func AggregateResults(opts Options, batches ...[]models.RankedResult) []models.RankedResult {
	return Aggregate(batches, func(r models.RankedResult) (string, float64) {
		return r.DocID, r.Score
	}, opts)
}
