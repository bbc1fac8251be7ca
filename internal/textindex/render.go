package textindex

import (
	"strings"
)

// fts5Match renders n as an SQLite FTS5 MATCH expression. Every phrase is
// restricted to its column, so a bare term never leaks into title or diff.
func fts5Match(n *Node) string {
	switch n.Kind {
	case NodePhrase:
		return n.Field + ` : "` + strings.Join(n.Tokens, " ") + `"`
	case NodeOr:
		return "(" + joinNodes(n.Children, " OR ", fts5Match) + ")"
	}
	s := "(" + joinNodes(n.Children, " AND ", fts5Match) + ")"
	for _, ex := range n.Excluded {
		s = "(" + s + " NOT " + fts5Match(ex) + ")"
	}
	return s
}

// tsWeights maps searchable fields to the setweight labels of the postgres
// search vector.
var tsWeights = map[string]string{
	FieldTitle:       "A",
	FieldDescription: "B",
	FieldFiles:       "C",
	FieldDiff:        "D",
}

// tsQuery renders n for to_tsquery('simple', ...). Field targeting becomes a
// weight restriction on each lexeme.
func tsQuery(n *Node) string {
	switch n.Kind {
	case NodePhrase:
		w := tsWeights[n.Field]
		lex := make([]string, len(n.Tokens))
		for i, t := range n.Tokens {
			lex[i] = "'" + t + "':" + w
		}
		if len(lex) == 1 {
			return lex[0]
		}
		return "(" + strings.Join(lex, " <-> ") + ")"
	case NodeOr:
		return "(" + joinNodes(n.Children, " | ", tsQuery) + ")"
	}
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(joinNodes(n.Children, " & ", tsQuery))
	for _, ex := range n.Excluded {
		b.WriteString(" & !")
		b.WriteString(tsQuery(ex))
	}
	b.WriteString(")")
	return b.String()
}
