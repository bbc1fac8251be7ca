package models

type PullRequestSummary struct {
	Number int    `json:"number" yaml:"number"`
	Title  string `json:"title" yaml:"title"`
	State  string `json:"state" yaml:"state"`
	Merged bool   `json:"merged" yaml:"merged"`
}

type WorkflowRun struct {
	ID         string  `json:"id" yaml:"id"`
	Name       string  `json:"name" yaml:"name"`
	Status     string  `json:"status" yaml:"status"`
	Conclusion *string `json:"conclusion,omitempty" yaml:"conclusion,omitempty"`
	HTMLURL    string  `json:"html_url" yaml:"html_url"`
	LogsURL    *string `json:"logs_url,omitempty" yaml:"logs_url,omitempty"`
	HeadSHA    string  `json:"head_sha" yaml:"head_sha"`
}

type CommitInfo struct {
	SHA         string  `json:"sha" yaml:"sha"`
	Message     string  `json:"message" yaml:"message"`
	Author      string  `json:"author" yaml:"author"`
	AuthorEmail *string `json:"author_email,omitempty" yaml:"author_email,omitempty"`
	URL         string  `json:"url" yaml:"url"`
}

// PullRequestDetails is everything the indexer needs about one pull request.
type PullRequestDetails struct {
	Number      int           `json:"number" yaml:"number"`
	Title       string        `json:"title" yaml:"title"`
	Description string        `json:"description" yaml:"description"`
	Comments    []string      `json:"comments,omitempty" yaml:"comments,omitempty"`
	State       string        `json:"state" yaml:"state"`
	Mergeable   *bool         `json:"mergeable,omitempty" yaml:"mergeable,omitempty"`
	Merged      bool          `json:"merged" yaml:"merged"`
	Workflows   []WorkflowRun `json:"workflows,omitempty" yaml:"workflows,omitempty"`
	Commits     []CommitInfo  `json:"commits,omitempty" yaml:"commits,omitempty"`
	Diff        string        `json:"diff" yaml:"diff"`
}

// Summary returns the listing view of the details.
func (d PullRequestDetails) Summary() PullRequestSummary {
	return PullRequestSummary{Number: d.Number, Title: d.Title, State: d.State, Merged: d.Merged}
}
