// Package jira is the issue tracker collaborator: issue lookup, JQL search,
// and pull requests attached through the development status panel.
package jira

import (
	"context"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/relatedwork/internal/query"
	"github.com/seanblong/relatedwork/internal/remote"
	"github.com/seanblong/relatedwork/pkg/models"
)

const service = "jira"

// Client talks to the Jira REST API with basic auth.
type Client struct {
	api *remote.Client
}

// New returns a client for the Jira instance at baseURL.
func New(baseURL, email, apiToken string) *Client {
	return &Client{api: remote.NewClient(service, baseURL, remote.BasicAuth(email, apiToken))}
}

// SearchResult is one page of a JQL search.
type SearchResult struct {
	StartAt    int           `json:"start_at"`
	MaxResults int           `json:"max_results"`
	Total      int           `json:"total"`
	Items      []models.Item `json:"items"`
}

// GetIssue fetches one issue by key with its pull requests attached. A failed
// pull request lookup is logged and the issue returned without them.
func (c *Client) GetIssue(ctx context.Context, key string) (models.Item, error) {
	var raw issueJSON
	if err := c.api.GetJSON(ctx, "get_issue", "/rest/agile/1.0/issue/"+url.PathEscape(key), nil, &raw); err != nil {
		return models.Item{}, err
	}
	it := raw.item()
	prs, err := c.FetchChangeProposals(ctx, it.ID)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("pull request lookup failed")
		return it, nil
	}
	it.ChangeProposals = prs
	return it, nil
}

// Search runs jql and returns the requested page.
func (c *Client) Search(ctx context.Context, jql string, fields []string, page query.Page) (SearchResult, error) {
	req := searchRequest{
		JQL:           jql,
		StartAt:       page.StartAt,
		MaxResults:    page.MaxResults,
		Fields:        fields,
		ValidateQuery: true,
	}
	var resp searchResponse
	if err := c.api.PostJSON(ctx, "search", "/rest/api/2/search", req, &resp); err != nil {
		return SearchResult{}, err
	}
	out := SearchResult{
		StartAt:    resp.StartAt,
		MaxResults: resp.MaxResults,
		Total:      resp.Total,
		Items:      make([]models.Item, 0, len(resp.Issues)),
	}
	for _, is := range resp.Issues {
		out.Items = append(out.Items, is.item())
	}
	return out, nil
}

// FetchByQuery renders req as JQL and returns the matching issues.
func (c *Client) FetchByQuery(ctx context.Context, req query.Request, page query.Page) ([]models.Item, error) {
	jql := query.JQL(req)
	log.Debug().Str("jql", jql).Msg("jira fetch")
	res, err := c.Search(ctx, jql, req.Fields, page)
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// FetchChangeProposals lists the GitHub pull requests linked to the issue
// with the given numeric id.
func (c *Client) FetchChangeProposals(ctx context.Context, itemID string) ([]models.ChangeProposal, error) {
	q := url.Values{
		"issueId":         {itemID},
		"applicationType": {"GitHub"},
		"dataType":        {"pullrequest"},
	}
	var resp devStatusResponse
	if err := c.api.GetJSON(ctx, "pull_requests", "/rest/dev-status/latest/issue/detail", q, &resp); err != nil {
		return nil, err
	}
	var out []models.ChangeProposal
	for _, d := range resp.Detail {
		for _, pr := range d.PullRequests {
			out = append(out, models.ChangeProposal{
				Name:       pr.Name,
				URL:        pr.URL,
				Status:     pr.Status,
				Repository: pr.RepositoryName,
			})
		}
	}
	return out, nil
}
