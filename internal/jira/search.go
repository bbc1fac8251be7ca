package jira

import (
	"context"
	"strings"

	"github.com/seanblong/relatedwork/internal/query"
)

// SearchParams is an ad-hoc issue search. Empty fields impose no filter.
type SearchParams struct {
	Keywords   string   `json:"keywords,omitempty"`
	Components []string `json:"components,omitempty"`
	Labels     []string `json:"labels,omitempty"`
	Projects   []string `json:"projects,omitempty"`
}

// Request builds the search: keywords match summary or description, the list
// filters must all hold, newest issues first.
func (p SearchParams) Request() query.Request {
	kw := strings.TrimSpace(p.Keywords)
	return query.Request{
		Predicate: query.And(
			query.Or(
				query.Contains(query.FieldSummary, kw),
				query.Contains(query.FieldText, kw),
			),
			query.In(query.FieldComponent, trimAll(p.Components)...),
			query.In(query.FieldLabels, trimAll(p.Labels)...),
			query.In(query.FieldProject, trimAll(p.Projects)...),
		),
		Fields:  []string{"*all"},
		OrderBy: "created DESC",
	}
}

// SplitList splits a comma separated flag or query value.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return trimAll(strings.Split(s, ","))
}

func trimAll(vs []string) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// SearchIssues runs an ad-hoc search returning at most maxResults issues.
func (c *Client) SearchIssues(ctx context.Context, p SearchParams, maxResults int) (SearchResult, error) {
	req := p.Request()
	return c.Search(ctx, query.JQL(req), req.Fields, query.Page{MaxResults: maxResults})
}
