package similarity

import (
	"strings"

	"github.com/seanblong/relatedwork/pkg/models"
)

// Rule weights. A direct link alone outranks any realistic pile of component
// and label overlaps.
const (
	WeightDirectLink = 5.0
	WeightSameEpic   = 4.0
	WeightParent     = 3.5
	WeightSibling    = 3.0
	WeightComponent  = 0.5
	WeightLabel      = 0.3
)

// FallbackReason is reported when no rule matches.
const FallbackReason = "Similar based on content and description"

// signal is one matched rule.
type signal struct {
	weight float64
	reason string
}

// signals evaluates every rule in priority order. Score and Reasons both read
// from it so the number and the text cannot drift apart.
func signals(seed, cand models.Item) []signal {
	var out []signal

	for _, k := range seed.InwardLinkKeys() {
		if k == cand.Key {
			out = append(out, signal{WeightDirectLink, "Directly linked issue"})
			break
		}
	}

	if seed.Epic != nil && cand.Epic != nil && seed.Epic.ID != "" && seed.Epic.ID == cand.Epic.ID {
		out = append(out, signal{WeightSameEpic, "Same epic"})
	}

	if seed.Parent != nil && seed.Parent.Key != "" {
		switch {
		case cand.Key == seed.Parent.Key:
			out = append(out, signal{WeightParent, "This is the parent ticket"})
		case cand.Parent != nil && cand.Parent.Key == seed.Parent.Key:
			out = append(out, signal{WeightSibling, "Shares same parent"})
		}
	}

	if seed.Project != "" && seed.Project == cand.Project {
		if names := sharedComponents(seed.Components, cand.Components); len(names) > 0 {
			out = append(out, signal{
				weight: WeightComponent * float64(len(names)),
				reason: "Shared components: " + strings.Join(names, ", "),
			})
		}
		if labels := sharedLabels(seed.Labels, cand.Labels); len(labels) > 0 {
			out = append(out, signal{
				weight: WeightLabel * float64(len(labels)),
				reason: "Shared labels: " + strings.Join(labels, ", "),
			})
		}
	}

	return out
}

// Score is the plain sum of every matching rule weight. No signal scores 0.
func Score(seed, cand models.Item) float64 {
	var total float64
	for _, s := range signals(seed, cand) {
		total += s.weight
	}
	return total
}

// Reasons lists one phrase per matching rule, or the fallback phrase.
func Reasons(seed, cand models.Item) []string {
	sigs := signals(seed, cand)
	if len(sigs) == 0 {
		return []string{FallbackReason}
	}
	out := make([]string, len(sigs))
	for i, s := range sigs {
		out[i] = s.reason
	}
	return out
}

// ScoreCandidate scores one pair.
func ScoreCandidate(seed, cand models.Item) models.ScoredCandidate {
	return models.ScoredCandidate{
		Candidate: cand,
		Score:     Score(seed, cand),
		Reasons:   Reasons(seed, cand),
	}
}

// sharedComponents matches components by ID and reports names in seed order.
func sharedComponents(seed, cand []models.Component) []string {
	ids := make(map[string]struct{}, len(cand))
	for _, c := range cand {
		ids[c.ID] = struct{}{}
	}
	seen := make(map[string]struct{})
	var names []string
	for _, c := range seed {
		if _, ok := ids[c.ID]; !ok {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		name := c.Name
		if name == "" {
			name = c.ID
		}
		names = append(names, name)
	}
	return names
}

func sharedLabels(seed, cand []string) []string {
	set := make(map[string]struct{}, len(cand))
	for _, l := range cand {
		set[l] = struct{}{}
	}
	seen := make(map[string]struct{})
	var out []string
	for _, l := range seed {
		if _, ok := set[l]; !ok {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
