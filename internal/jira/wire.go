package jira

import (
	"encoding/json"

	"github.com/seanblong/relatedwork/pkg/models"
)

// Jira REST payloads. Optional fields are pointers so absent and empty stay
// distinguishable until mapped onto models.Item.

type searchRequest struct {
	JQL           string   `json:"jql"`
	StartAt       int      `json:"startAt"`
	MaxResults    int      `json:"maxResults"`
	Fields        []string `json:"fields"`
	ValidateQuery bool     `json:"validateQuery"`
}

type searchResponse struct {
	StartAt    int         `json:"startAt"`
	MaxResults int         `json:"maxResults"`
	Total      int         `json:"total"`
	Issues     []issueJSON `json:"issues"`
}

type idName struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type idKey struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

type epicJSON struct {
	ID   json.Number `json:"id"`
	Key  string      `json:"key"`
	Name string      `json:"name"`
}

type issueLinkJSON struct {
	ID          string `json:"id"`
	Type        idName `json:"type"`
	InwardIssue *idKey `json:"inwardIssue"`
}

type fieldsJSON struct {
	Summary     *string         `json:"summary"`
	Description *string         `json:"description"`
	Labels      []string        `json:"labels"`
	Status      *idName         `json:"status"`
	Project     *idKey          `json:"project"`
	Components  []idName        `json:"components"`
	Resolution  *idName         `json:"resolution"`
	Epic        *epicJSON       `json:"epic"`
	Parent      *idKey          `json:"parent"`
	IssueLinks  []issueLinkJSON `json:"issuelinks"`
}

type issueJSON struct {
	ID     string     `json:"id"`
	Key    string     `json:"key"`
	Fields fieldsJSON `json:"fields"`
}

type devStatusResponse struct {
	Detail []struct {
		PullRequests []struct {
			Name           string `json:"name"`
			Status         string `json:"status"`
			URL            string `json:"url"`
			RepositoryName string `json:"repositoryName"`
		} `json:"pullRequests"`
	} `json:"detail"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (i issueJSON) item() models.Item {
	f := i.Fields
	it := models.Item{
		ID:          i.ID,
		Key:         i.Key,
		Title:       str(f.Summary),
		Description: str(f.Description),
		Labels:      f.Labels,
	}
	if f.Status != nil {
		it.Status = f.Status.Name
	}
	if f.Resolution != nil {
		it.Resolution = f.Resolution.Name
	}
	if f.Project != nil {
		it.Project = f.Project.Key
	}
	for _, c := range f.Components {
		it.Components = append(it.Components, models.Component{ID: c.ID, Name: c.Name})
	}
	if f.Epic != nil && f.Epic.ID.String() != "" {
		it.Epic = &models.Ref{ID: f.Epic.ID.String(), Key: f.Epic.Key, Name: f.Epic.Name}
	}
	if f.Parent != nil {
		it.Parent = &models.Ref{ID: f.Parent.ID, Key: f.Parent.Key}
	}
	for _, l := range f.IssueLinks {
		link := models.Link{ID: l.ID, Type: l.Type.Name}
		if l.InwardIssue != nil {
			link.Inward = &models.Ref{ID: l.InwardIssue.ID, Key: l.InwardIssue.Key}
		}
		it.Links = append(it.Links, link)
	}
	return it
}
