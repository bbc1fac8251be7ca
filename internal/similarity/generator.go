package similarity

import (
	"github.com/seanblong/relatedwork/internal/query"
	"github.com/seanblong/relatedwork/pkg/models"
)

// CandidateFields is the field selection requested for every candidate fetch.
var CandidateFields = []string{
	"summary",
	"status",
	"issuetype",
	"components",
	"labels",
	"parent",
	"epic",
	"issuelinks",
	"project",
	"description",
	"comment",
	"creator",
}

// OrderByUpdated orders fetched candidates newest first.
const OrderByUpdated = "updated DESC"

// BuildCandidateQueries turns the relationship fields of seed into at most two
// fetch requests: one across the whole corpus for direct links, the shared
// epic and the parent family, and one scoped to the seed's project for shared
// components and labels. The seed's own key is excluded from both. A seed
// without any relationship signal yields no requests.
func BuildCandidateQueries(seed models.Item) []query.Request {
	exclude := query.NotIn(query.FieldKey, seed.Key)

	var include []string
	include = append(include, seed.InwardLinkKeys()...)

	var cross []query.Expr
	if seed.Epic != nil {
		cross = append(cross, query.Eq(query.FieldEpic, seed.Epic.ID))
	}
	if seed.Parent != nil {
		// the parent itself, and everything under it
		include = append(include, seed.Parent.Key)
		cross = append(cross, query.Eq(query.FieldParent, seed.Parent.Key))
	}

	var reqs []query.Request

	related := query.Or(append([]query.Expr{query.In(query.FieldKey, include...)}, cross...)...)
	if !related.IsEmpty() {
		reqs = append(reqs, newRequest(query.And(related, exclude), query.Scope{}))
	}

	if seed.Project != "" {
		ids := make([]string, 0, len(seed.Components))
		for _, c := range seed.Components {
			ids = append(ids, c.ID)
		}
		shared := query.Or(
			query.In(query.FieldComponent, ids...),
			query.In(query.FieldLabels, seed.Labels...),
		)
		if !shared.IsEmpty() {
			reqs = append(reqs, newRequest(query.And(shared, exclude), query.Scope{Project: seed.Project}))
		}
	}

	return reqs
}

func newRequest(pred query.Expr, scope query.Scope) query.Request {
	fields := make([]string, len(CandidateFields))
	copy(fields, CandidateFields)
	return query.Request{
		Predicate: pred,
		Scope:     scope,
		Fields:    fields,
		OrderBy:   OrderByUpdated,
	}
}
