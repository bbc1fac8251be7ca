package query

import "strings"

// Op identifies the kind of node in an expression tree.
type Op int

const (
	OpNone Op = iota
	OpLeaf
	OpAnd
	OpOr
	OpNot
)

// Comparator is the test a leaf applies to its field.
type Comparator int

const (
	CmpEq Comparator = iota
	CmpIn
	CmpNotIn
	CmpContains
)

// Abstract field names. Renderers map them onto their own query language.
const (
	FieldKey       = "key"
	FieldEpic      = "epic"
	FieldParent    = "parent"
	FieldComponent = "component"
	FieldLabels    = "labels"
	FieldProject   = "project"
	FieldSummary   = "summary"
	FieldText      = "description"
)

// Expr is an immutable boolean expression over field predicates. The zero
// value is the empty expression and matches nothing in particular; And and Or
// drop empty operands.
type Expr struct {
	op       Op
	field    string
	cmp      Comparator
	values   []string
	children []Expr
}

// Eq matches items whose field equals value.
func Eq(field, value string) Expr {
	if field == "" || value == "" {
		return Expr{}
	}
	return Expr{op: OpLeaf, field: field, cmp: CmpEq, values: []string{value}}
}

// In matches items whose field equals any of values. Duplicate and empty
// values are removed; with no values left the result is empty.
func In(field string, values ...string) Expr {
	return set(field, CmpIn, values)
}

// NotIn matches items whose field equals none of values.
func NotIn(field string, values ...string) Expr {
	return set(field, CmpNotIn, values)
}

// Contains matches items whose text field contains value.
func Contains(field, value string) Expr {
	if field == "" || strings.TrimSpace(value) == "" {
		return Expr{}
	}
	return Expr{op: OpLeaf, field: field, cmp: CmpContains, values: []string{value}}
}

func set(field string, cmp Comparator, values []string) Expr {
	vs := dedupe(values)
	if field == "" || len(vs) == 0 {
		return Expr{}
	}
	return Expr{op: OpLeaf, field: field, cmp: cmp, values: vs}
}

// And joins the non-empty operands. A single operand is returned as is.
func And(exprs ...Expr) Expr { return join(OpAnd, exprs) }

// Or joins the non-empty operands. A single operand is returned as is.
func Or(exprs ...Expr) Expr { return join(OpOr, exprs) }

// Not negates e. Not of the empty expression is empty.
func Not(e Expr) Expr {
	if e.IsEmpty() {
		return Expr{}
	}
	return Expr{op: OpNot, children: []Expr{e}}
}

func join(op Op, exprs []Expr) Expr {
	var kids []Expr
	for _, e := range exprs {
		if e.IsEmpty() {
			continue
		}
		// flatten nested nodes of the same kind
		if e.op == op {
			kids = append(kids, e.children...)
			continue
		}
		kids = append(kids, e)
	}
	switch len(kids) {
	case 0:
		return Expr{}
	case 1:
		return kids[0]
	}
	return Expr{op: op, children: kids}
}

func (e Expr) Op() Op                 { return e.op }
func (e Expr) Field() string          { return e.field }
func (e Expr) Comparator() Comparator { return e.cmp }
func (e Expr) Values() []string       { return e.values }
func (e Expr) Children() []Expr       { return e.children }

// IsEmpty reports whether the expression has no predicates.
func (e Expr) IsEmpty() bool { return e.op == OpNone }

// String renders a neutral debug form, e.g. (key IN [A B] OR parent = P).
func (e Expr) String() string {
	switch e.op {
	case OpLeaf:
		switch e.cmp {
		case CmpEq:
			return e.field + " = " + e.values[0]
		case CmpIn:
			return e.field + " IN [" + strings.Join(e.values, " ") + "]"
		case CmpContains:
			return e.field + " ~ " + e.values[0]
		default:
			return e.field + " NOT IN [" + strings.Join(e.values, " ") + "]"
		}
	case OpAnd, OpOr:
		sep := " AND "
		if e.op == OpOr {
			sep = " OR "
		}
		parts := make([]string, len(e.children))
		for i, c := range e.children {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, sep) + ")"
	case OpNot:
		return "NOT " + e.children[0].String()
	}
	return ""
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
