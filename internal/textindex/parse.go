package textindex

import (
	"fmt"
	"strings"
	"unicode"
)

// NodeKind discriminates query tree nodes.
type NodeKind int

const (
	// NodePhrase matches its tokens adjacently in Field. A single token is a
	// plain term.
	NodePhrase NodeKind = iota
	// NodeAnd matches every Children node and none of the Excluded nodes.
	NodeAnd
	// NodeOr matches any Children node.
	NodeOr
)

// Node is a parsed, normalized query.
type Node struct {
	Kind     NodeKind
	Field    string
	Tokens   []string
	Children []*Node
	Excluded []*Node
}

// String renders n in a stable debug form such as
// (description:"retry" AND title:"flaky test" -files:"vendor").
func (n *Node) String() string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case NodePhrase:
		return fmt.Sprintf("%s:%q", n.Field, strings.Join(n.Tokens, " "))
	case NodeOr:
		return "(" + joinNodes(n.Children, " OR ", (*Node).String) + ")"
	}
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(joinNodes(n.Children, " AND ", (*Node).String))
	for _, ex := range n.Excluded {
		b.WriteString(" -")
		b.WriteString(ex.String())
	}
	b.WriteString(")")
	return b.String()
}

func joinNodes(nodes []*Node, sep string, render func(*Node) string) string {
	parts := make([]string, len(nodes))
	for i, c := range nodes {
		parts[i] = render(c)
	}
	return strings.Join(parts, sep)
}

// Parse turns query text into a Node. Bare terms go to the description field
// and combine with OR; "quoted phrases", +required and -excluded clauses,
// AND, OR, NOT, parentheses and field:term targeting are supported.
//
// A nil Node with a nil error means the query can match nothing: it was
// empty, contained no indexable tokens, or was purely negative.
func Parse(q string) (*Node, error) {
	toks, err := lex(q)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, nil
	}
	p := &parser{query: q, toks: toks}
	n, err := p.disjunction(DefaultField)
	if err != nil {
		return nil, err
	}
	if t, ok := p.peek(); ok {
		return nil, p.errorf(t.pos, "unexpected %s", t)
	}
	if !matchable(n) {
		return nil, nil
	}
	return n, nil
}

type tokKind int

const (
	tkWord tokKind = iota
	tkPhrase
	tkLParen
	tkRParen
	tkColon
	tkPlus
	tkMinus
	tkAnd
	tkOr
	tkNot
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func (t token) String() string { return fmt.Sprintf("%q", t.text) }

func isDelim(r rune) bool {
	return unicode.IsSpace(r) || r == '(' || r == ')' || r == '"' || r == ':'
}

func lex(q string) ([]token, error) {
	var toks []token
	rs := []rune(q)
	// byte offsets for error positions
	offs := make([]int, len(rs)+1)
	o := 0
	for i, r := range rs {
		offs[i] = o
		o += len(string(r))
	}
	offs[len(rs)] = o

	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{tkLParen, "(", offs[i]})
			i++
		case r == ')':
			toks = append(toks, token{tkRParen, ")", offs[i]})
			i++
		case r == ':':
			toks = append(toks, token{tkColon, ":", offs[i]})
			i++
		case r == '"':
			j := i + 1
			for j < len(rs) && rs[j] != '"' {
				j++
			}
			if j == len(rs) {
				return nil, &ParseError{Query: q, Pos: offs[i], Msg: "unterminated phrase"}
			}
			toks = append(toks, token{tkPhrase, string(rs[i+1 : j]), offs[i]})
			i = j + 1
		case (r == '+' || r == '-') && i+1 < len(rs) && !unicode.IsSpace(rs[i+1]) && atClauseStart(toks, rs, i):
			k := tkPlus
			if r == '-' {
				k = tkMinus
			}
			toks = append(toks, token{k, string(r), offs[i]})
			i++
		default:
			j := i
			for j < len(rs) && !isDelim(rs[j]) {
				j++
			}
			w := string(rs[i:j])
			k := tkWord
			switch w {
			case "AND":
				k = tkAnd
			case "OR":
				k = tkOr
			case "NOT":
				k = tkNot
			}
			toks = append(toks, token{k, w, offs[i]})
			i = j
		}
	}
	return toks, nil
}

// atClauseStart reports whether a +/- at rs[i] begins a clause rather than
// sitting inside a word or after a field colon.
func atClauseStart(toks []token, rs []rune, i int) bool {
	if i > 0 && !unicode.IsSpace(rs[i-1]) && rs[i-1] != '(' {
		return false
	}
	return len(toks) == 0 || toks[len(toks)-1].kind != tkColon
}

type parser struct {
	query string
	toks  []token
	pos   int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) next() (token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return &ParseError{Query: p.query, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) endErr(what string) error {
	return p.errorf(len(p.query), "unexpected end of query, expected %s", what)
}

func (p *parser) disjunction(field string) (*Node, error) {
	first, err := p.conjunction(field)
	if err != nil {
		return nil, err
	}
	kids := []*Node{first}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tkOr {
			break
		}
		p.pos++
		n, err := p.conjunction(field)
		if err != nil {
			return nil, err
		}
		kids = append(kids, n)
	}
	return orNode(kids), nil
}

func (p *parser) conjunction(field string) (*Node, error) {
	acc, err := p.sequence(field)
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tkAnd {
			break
		}
		p.pos++
		n, err := p.sequence(field)
		if err != nil {
			return nil, err
		}
		acc = and2(acc, n)
	}
	return acc, nil
}

func startsClause(k tokKind) bool {
	switch k {
	case tkWord, tkPhrase, tkLParen, tkPlus, tkMinus, tkNot:
		return true
	}
	return false
}

type occur int

const (
	should occur = iota
	must
	mustNot
)

// sequence parses juxtaposed clauses. Required clauses make plain ones
// optional; without any, plain clauses are alternatives.
func (p *parser) sequence(field string) (*Node, error) {
	var musts, shoulds, nots []*Node
	parsed := 0
	for {
		t, ok := p.peek()
		if !ok || !startsClause(t.kind) {
			break
		}
		oc, n, err := p.unary(field)
		if err != nil {
			return nil, err
		}
		parsed++
		if n == nil {
			continue
		}
		switch oc {
		case must:
			musts = append(musts, n)
		case mustNot:
			nots = append(nots, n)
		default:
			shoulds = append(shoulds, n)
		}
	}
	if parsed == 0 {
		t, ok := p.peek()
		if !ok {
			return nil, p.endErr("a term")
		}
		return nil, p.errorf(t.pos, "unexpected %s", t)
	}

	var pos, neg []*Node
	for _, m := range musts {
		pp, nn := parts(m)
		pos = append(pos, pp...)
		neg = append(neg, nn...)
	}
	if len(musts) == 0 {
		if o := orNode(shoulds); o != nil {
			pos = append(pos, o)
		}
	}
	for _, n := range nots {
		if matchable(n) {
			neg = append(neg, n)
		}
	}
	return andNode(pos, neg), nil
}

func (p *parser) unary(field string) (occur, *Node, error) {
	oc := should
	t, _ := p.peek()
	switch t.kind {
	case tkPlus:
		oc = must
		p.pos++
	case tkMinus, tkNot:
		oc = mustNot
		p.pos++
	}
	n, err := p.primary(field)
	return oc, n, err
}

func (p *parser) primary(field string) (*Node, error) {
	t, ok := p.next()
	if !ok {
		return nil, p.endErr("a term")
	}
	switch t.kind {
	case tkWord:
		if c, ok := p.peek(); ok && c.kind == tkColon {
			p.pos++
			name := strings.ToLower(t.text)
			if !searchable[name] {
				if isStoredOnly(name) {
					return nil, p.errorf(t.pos, "field %q is not searchable", t.text)
				}
				return nil, p.errorf(t.pos, "unknown field %q", t.text)
			}
			v, ok := p.peek()
			if !ok {
				return nil, p.endErr("a value after " + t.text + ":")
			}
			if v.kind != tkWord && v.kind != tkPhrase && v.kind != tkLParen {
				return nil, p.errorf(v.pos, "expected a value after %s:", t.text)
			}
			return p.primary(name)
		}
		return phraseNode(field, t.text), nil
	case tkPhrase:
		return phraseNode(field, t.text), nil
	case tkLParen:
		n, err := p.disjunction(field)
		if err != nil {
			return nil, err
		}
		c, ok := p.next()
		if !ok {
			return nil, p.errorf(t.pos, "missing closing parenthesis")
		}
		if c.kind != tkRParen {
			return nil, p.errorf(c.pos, "unexpected %s", c)
		}
		return n, nil
	}
	return nil, p.errorf(t.pos, "unexpected %s", t)
}

func isStoredOnly(name string) bool {
	return name == FieldID || name == FieldStatus || name == FieldChecksStatus
}

func phraseNode(field, text string) *Node {
	toks := Analyze(text)
	if len(toks) == 0 {
		return nil
	}
	return &Node{Kind: NodePhrase, Field: field, Tokens: toks}
}

// matchable is false for nil and for purely negative conjunctions.
func matchable(n *Node) bool {
	return n != nil && !(n.Kind == NodeAnd && len(n.Children) == 0)
}

func parts(n *Node) (pos, neg []*Node) {
	if n == nil {
		return nil, nil
	}
	if n.Kind == NodeAnd {
		return n.Children, n.Excluded
	}
	return []*Node{n}, nil
}

func andNode(pos, neg []*Node) *Node {
	if len(pos) == 0 && len(neg) == 0 {
		return nil
	}
	if len(pos) == 1 && len(neg) == 0 {
		return pos[0]
	}
	return &Node{Kind: NodeAnd, Children: pos, Excluded: neg}
}

func and2(a, b *Node) *Node {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	pa, na := parts(a)
	pb, nb := parts(b)
	pos := append(append([]*Node{}, pa...), pb...)
	neg := append(append([]*Node{}, na...), nb...)
	return andNode(pos, neg)
}

func orNode(kids []*Node) *Node {
	var out []*Node
	for _, k := range kids {
		if !matchable(k) {
			continue
		}
		if k.Kind == NodeOr {
			out = append(out, k.Children...)
			continue
		}
		out = append(out, k)
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return &Node{Kind: NodeOr, Children: out}
}
