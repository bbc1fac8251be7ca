// Package github is the code host collaborator that feeds the text index:
// recently merged pull requests and their full details.
package github

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/relatedwork/internal/remote"
	"github.com/seanblong/relatedwork/pkg/models"
)

const (
	service = "github"

	// DefaultAPIURL is the public GitHub REST endpoint.
	DefaultAPIURL = "https://api.github.com"

	perPage   = 100
	diffMedia = "application/vnd.github.v3.diff"
)

// Client reads pull requests of one repository.
type Client struct {
	api   *remote.Client
	owner string
	repo  string
}

// New returns a client for owner/repo. An empty apiURL uses DefaultAPIURL;
// an empty token makes unauthenticated requests.
func New(apiURL, owner, repo, token string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	api := remote.NewClient(service, apiURL, remote.BearerToken(token))
	api.Accept = "application/vnd.github+json"
	api.Headers = map[string]string{"X-GitHub-Api-Version": "2022-11-28"}
	return &Client{api: api, owner: owner, repo: repo}
}

func (c *Client) repoPath(suffix string) string {
	return "/repos/" + url.PathEscape(c.owner) + "/" + url.PathEscape(c.repo) + suffix
}

type pullJSON struct {
	Number    int     `json:"number"`
	Title     *string `json:"title"`
	Body      *string `json:"body"`
	State     string  `json:"state"`
	MergedAt  *string `json:"merged_at"`
	Mergeable *bool   `json:"mergeable"`
	Head      struct {
		SHA string `json:"sha"`
	} `json:"head"`
}

func (p pullJSON) state() string {
	switch p.State {
	case "open", "closed":
		return p.State
	case "":
		return "unknown"
	}
	return "other"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ListRecentClosed returns up to limit merged pull requests, newest first,
// paging until enough are found or a page comes back empty.
func (c *Client) ListRecentClosed(ctx context.Context, limit int) ([]models.PullRequestSummary, error) {
	var out []models.PullRequestSummary
	for page := 1; len(out) < limit; page++ {
		q := url.Values{
			"state":     {"closed"},
			"sort":      {"created"},
			"direction": {"desc"},
			"per_page":  {strconv.Itoa(perPage)},
			"page":      {strconv.Itoa(page)},
		}
		var pulls []pullJSON
		if err := c.api.GetJSON(ctx, "list_pulls", c.repoPath("/pulls"), q, &pulls); err != nil {
			return nil, err
		}
		if len(pulls) == 0 {
			break
		}
		for _, p := range pulls {
			if len(out) >= limit {
				break
			}
			if p.MergedAt == nil {
				continue
			}
			out = append(out, models.PullRequestSummary{
				Number: p.Number,
				Title:  deref(p.Title),
				State:  p.state(),
				Merged: true,
			})
		}
		log.Debug().Int("page", page).Int("merged", len(out)).Msg("listed pull requests")
	}
	return out, nil
}

// FetchDetail gathers the pull request, its comments, the workflow runs of
// its head commit, its commits and its diff.
func (c *Client) FetchDetail(ctx context.Context, number int) (models.PullRequestDetails, error) {
	n := strconv.Itoa(number)
	var p pullJSON
	if err := c.api.GetJSON(ctx, "get_pull", c.repoPath("/pulls/"+n), nil, &p); err != nil {
		return models.PullRequestDetails{}, err
	}
	comments, err := c.comments(ctx, n)
	if err != nil {
		return models.PullRequestDetails{}, err
	}
	runs, err := c.workflowRuns(ctx, p.Head.SHA)
	if err != nil {
		return models.PullRequestDetails{}, err
	}
	commits, err := c.commits(ctx, n)
	if err != nil {
		return models.PullRequestDetails{}, err
	}
	diff, err := c.api.GetText(ctx, "get_diff", c.repoPath("/pulls/"+n), nil, diffMedia)
	if err != nil {
		return models.PullRequestDetails{}, err
	}
	return models.PullRequestDetails{
		Number:      p.Number,
		Title:       deref(p.Title),
		Description: deref(p.Body),
		Comments:    comments,
		State:       p.state(),
		Mergeable:   p.Mergeable,
		Merged:      p.MergedAt != nil,
		Workflows:   runs,
		Commits:     commits,
		Diff:        diff,
	}, nil
}

func (c *Client) comments(ctx context.Context, n string) ([]string, error) {
	var raw []struct {
		Body *string `json:"body"`
	}
	q := url.Values{"per_page": {strconv.Itoa(perPage)}}
	if err := c.api.GetJSON(ctx, "list_comments", c.repoPath("/issues/"+n+"/comments"), q, &raw); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		out = append(out, deref(r.Body))
	}
	return out, nil
}

func (c *Client) workflowRuns(ctx context.Context, sha string) ([]models.WorkflowRun, error) {
	if sha == "" {
		return nil, nil
	}
	var raw struct {
		WorkflowRuns []struct {
			ID         int64   `json:"id"`
			Name       *string `json:"name"`
			HeadSHA    string  `json:"head_sha"`
			Status     *string `json:"status"`
			Conclusion *string `json:"conclusion"`
			HTMLURL    string  `json:"html_url"`
			RunAttempt *int    `json:"run_attempt"`
		} `json:"workflow_runs"`
	}
	q := url.Values{"head_sha": {sha}}
	if err := c.api.GetJSON(ctx, "list_runs", c.repoPath("/actions/runs"), q, &raw); err != nil {
		return nil, err
	}
	out := make([]models.WorkflowRun, 0, len(raw.WorkflowRuns))
	for _, r := range raw.WorkflowRuns {
		run := models.WorkflowRun{
			ID:         strconv.FormatInt(r.ID, 10),
			Name:       deref(r.Name),
			Status:     deref(r.Status),
			Conclusion: r.Conclusion,
			HTMLURL:    r.HTMLURL,
			HeadSHA:    r.HeadSHA,
		}
		if run.Name == "" {
			run.Name = "Unknown"
		}
		if run.Status == "" {
			run.Status = "unknown"
		}
		if r.RunAttempt != nil {
			logs := fmt.Sprintf("%s%s", c.api.BaseURL,
				c.repoPath(fmt.Sprintf("/actions/runs/%d/attempts/%d/logs", r.ID, *r.RunAttempt)))
			run.LogsURL = &logs
		}
		out = append(out, run)
	}
	return out, nil
}

func (c *Client) commits(ctx context.Context, n string) ([]models.CommitInfo, error) {
	var raw []struct {
		SHA     string `json:"sha"`
		HTMLURL string `json:"html_url"`
		Commit  struct {
			Message string `json:"message"`
			Author  struct {
				Name  string  `json:"name"`
				Email *string `json:"email"`
			} `json:"author"`
		} `json:"commit"`
	}
	q := url.Values{"per_page": {strconv.Itoa(perPage)}}
	if err := c.api.GetJSON(ctx, "list_commits", c.repoPath("/pulls/"+n+"/commits"), q, &raw); err != nil {
		return nil, err
	}
	out := make([]models.CommitInfo, 0, len(raw))
	for _, r := range raw {
		out = append(out, models.CommitInfo{
			SHA:         r.SHA,
			Message:     r.Commit.Message,
			Author:      r.Commit.Author.Name,
			AuthorEmail: r.Commit.Author.Email,
			URL:         r.HTMLURL,
		})
	}
	return out, nil
}
