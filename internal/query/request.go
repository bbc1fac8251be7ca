package query

// Scope limits a fetch to one project. The zero value means any project.
type Scope struct {
	Project string
}

// AnyProject reports whether the scope spans the whole corpus.
func (s Scope) AnyProject() bool { return s.Project == "" }

// Request is one fetch against the remote corpus.
type Request struct {
	Predicate Expr
	Scope     Scope
	Fields    []string
	OrderBy   string
}

// Page selects a window of a fetch result.
type Page struct {
	StartAt    int
	MaxResults int
}

// DefaultPage is the window used for candidate fetches.
var DefaultPage = Page{StartAt: 0, MaxResults: 50}
