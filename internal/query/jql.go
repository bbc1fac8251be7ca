package query

import (
	"strings"
)

// jqlFields maps abstract field names onto JQL field references.
var jqlFields = map[string]string{
	FieldKey:       "key",
	FieldEpic:      `"Epic Link"`,
	FieldParent:    "parent",
	FieldComponent: "component",
	FieldLabels:    "labels",
	FieldProject:   "project",
	FieldSummary:   "summary",
	FieldText:      "description",
}

// JQL renders the request as a JQL string: the predicate, the project scope
// and the ordering. An empty predicate renders only scope and ordering.
func JQL(r Request) string {
	where := RenderJQL(r.Predicate)
	if !r.Scope.AnyProject() {
		scope := "project = " + quoteJQL(r.Scope.Project)
		if where == "" {
			where = scope
		} else {
			where += " AND " + scope
		}
	}
	if r.OrderBy != "" {
		if where == "" {
			return "ORDER BY " + r.OrderBy
		}
		return where + " ORDER BY " + r.OrderBy
	}
	return where
}

// RenderJQL renders e as a JQL clause. Values are always quoted.
func RenderJQL(e Expr) string {
	switch e.op {
	case OpLeaf:
		f, ok := jqlFields[e.field]
		if !ok {
			f = e.field
		}
		switch e.cmp {
		case CmpEq:
			return f + " = " + quoteJQL(e.values[0])
		case CmpContains:
			return f + " ~ " + quoteJQL(e.values[0])
		case CmpIn:
			return f + " in (" + quoteAll(e.values) + ")"
		default:
			return f + " NOT in (" + quoteAll(e.values) + ")"
		}
	case OpAnd, OpOr:
		sep := " AND "
		if e.op == OpOr {
			sep = " OR "
		}
		parts := make([]string, len(e.children))
		for i, c := range e.children {
			parts[i] = RenderJQL(c)
		}
		return "(" + strings.Join(parts, sep) + ")"
	case OpNot:
		return "NOT " + RenderJQL(e.children[0])
	}
	return ""
}

func quoteAll(vs []string) string {
	q := make([]string, len(vs))
	for i, v := range vs {
		q[i] = quoteJQL(v)
	}
	return strings.Join(q, ",")
}

func quoteJQL(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(v) + `"`
}
