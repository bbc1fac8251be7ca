package textindex

import (
	"strconv"
	"strings"

	"github.com/seanblong/relatedwork/pkg/models"
)

// Field names of the index schema.
const (
	FieldID           = "id"
	FieldTitle        = "title"
	FieldDescription  = "description"
	FieldStatus       = "status"
	FieldChecksStatus = "checks_status"
	FieldFiles        = "files"
	FieldDiff         = "diff"
)

// DefaultField is searched by query terms that name no field.
const DefaultField = FieldDescription

// searchable lists the tokenized fields a query may target.
var searchable = map[string]bool{
	FieldTitle:       true,
	FieldDescription: true,
	FieldFiles:       true,
	FieldDiff:        true,
}

// NewDocument projects pull request details onto the index schema.
func NewDocument(d models.PullRequestDetails) models.IndexDocument {
	return models.IndexDocument{
		ID:           strconv.Itoa(d.Number),
		Title:        d.Title,
		Description:  d.Description,
		Status:       d.State,
		ChecksStatus: ChecksStatus(d.Workflows),
		Files:        ExtractFilesFromDiff(d.Diff),
		Diff:         d.Diff,
	}
}

// ChecksStatus aggregates workflow conclusions: all_passed when every run
// succeeded (vacuously true with no runs), some_failed when any run failed,
// incomplete otherwise.
func ChecksStatus(runs []models.WorkflowRun) string {
	allPassed := true
	anyFailed := false
	for _, r := range runs {
		c := ""
		if r.Conclusion != nil {
			c = *r.Conclusion
		}
		if c != "success" {
			allPassed = false
		}
		if c == "failure" {
			anyFailed = true
		}
	}
	switch {
	case allPassed:
		return models.ChecksAllPassed
	case anyFailed:
		return models.ChecksSomeFailed
	}
	return models.ChecksIncomplete
}

// ExtractFilesFromDiff returns the new-side path of every "diff --git" header
// in diff, in order. It is a heuristic: renames and unusual quoting may come
// out imperfect.
func ExtractFilesFromDiff(diff string) []string {
	var files []string
	for _, line := range strings.Split(diff, "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, "diff --git ") {
			continue
		}
		if p := newPath(strings.TrimPrefix(line, "diff --git ")); p != "" {
			files = append(files, p)
		}
	}
	return files
}

func newPath(rest string) string {
	rest = strings.ReplaceAll(rest, `"`, "")
	// "a/P b/P" is by far the common shape and survives spaces in P.
	if strings.HasPrefix(rest, "a/") && (len(rest)-5)%2 == 0 && len(rest) > 5 {
		n := (len(rest) - 5) / 2
		old, sep, nw := rest[2:2+n], rest[2+n:2+n+3], rest[2+n+3:]
		if sep == " b/" && old == nw {
			return nw
		}
	}
	if i := strings.LastIndex(rest, " b/"); i >= 0 {
		return rest[i+3:]
	}
	return ""
}
