package models

import "strings"

// Ref points at another tracked item. Epics carry an ID and a Name, parents and
// link targets carry an ID and a Key.
type Ref struct {
	ID   string `json:"id" yaml:"id"`
	Key  string `json:"key,omitempty" yaml:"key,omitempty"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

type Component struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Link is a directed relationship. Only links with an Inward side count as
// direct links for similarity.
type Link struct {
	ID     string `json:"id" yaml:"id"`
	Type   string `json:"type" yaml:"type"`
	Inward *Ref   `json:"inward,omitempty" yaml:"inward,omitempty"`
}

// ChangeProposal is a pull or merge request attached to an item.
type ChangeProposal struct {
	Name       string `json:"name" yaml:"name"`
	URL        string `json:"url" yaml:"url"`
	Status     string `json:"status" yaml:"status"`
	Repository string `json:"repository,omitempty" yaml:"repository,omitempty"`
}

// Item is a tracked work item. Seeds and candidates share this shape.
type Item struct {
	ID              string           `json:"id"`
	Key             string           `json:"key"`
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	Project         string           `json:"project"`
	Status          string           `json:"status,omitempty"`
	Resolution      string           `json:"resolution,omitempty"`
	Components      []Component      `json:"components,omitempty"`
	Labels          []string         `json:"labels,omitempty"`
	Parent          *Ref             `json:"parent,omitempty"`
	Epic            *Ref             `json:"epic,omitempty"`
	Links           []Link           `json:"links,omitempty"`
	ChangeProposals []ChangeProposal `json:"change_proposals,omitempty"`
}

// InwardLinkKeys returns the keys of inbound link targets in link order.
func (it Item) InwardLinkKeys() []string {
	var keys []string
	for _, l := range it.Links {
		if l.Inward != nil && l.Inward.Key != "" {
			keys = append(keys, l.Inward.Key)
		}
	}
	return keys
}

// ScoredCandidate is a candidate with its relevance score and the reasons that
// produced it, in rule order.
type ScoredCandidate struct {
	Candidate Item     `json:"candidate"`
	Score     float64  `json:"score"`
	Reasons   []string `json:"reasons"`
}

// Justification joins the reasons for display.
func (s ScoredCandidate) Justification() string {
	return strings.Join(s.Reasons, "; ")
}

// IndexDocument is the write-once projection of a change proposal that the
// text index stores.
type IndexDocument struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Status       string   `json:"status"`
	ChecksStatus string   `json:"checks_status"`
	Files        []string `json:"files"`
	Diff         string   `json:"diff"`
}

// RankedResult is one text index hit. Score is only comparable within a single
// query's result set.
type RankedResult struct {
	DocID        string   `json:"doc_id"`
	Score        float64  `json:"score"`
	Title        string   `json:"title"`
	Status       string   `json:"status"`
	ChecksStatus string   `json:"checks_status"`
	Files        []string `json:"files"`
}

// Aggregate check states for an indexed pull request.
const (
	ChecksAllPassed  = "all_passed"
	ChecksSomeFailed = "some_failed"
	ChecksIncomplete = "incomplete"
)
