package term

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// ANSWER TERM PARSER
// =============================================================================
//
// Engine answers arrive as rendered terms. The shapes seen in practice are a
// bare symbol ("found"), a symbol wrapping a pair ("goto((3,4))"), and the
// same pair printed with a bare comma functor ("goto(,(3,4))"). The grammar
// below covers those plus plain compounds and integers:
//
//	term    := INT | NAME [ "(" args ")" ] | "," "(" args ")" | "(" args ")"
//	args    := term { "," term }

// Node is a parsed term. Compound terms carry Args; parenthesized sequences and
// the comma functor are both represented with Name ",".
type Node struct {
	Name   string
	Args   []Node
	Number bool
}

// Int returns the integer value of a numeric node.
func (n Node) Int() (int, bool) {
	if !n.Number {
		return 0, false
	}
	v, err := strconv.Atoi(n.Name)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Pair interprets n as an integer pair.
func (n Node) Pair() (Coordinate, bool) {
	if n.Name != "," || len(n.Args) != 2 {
		return Coordinate{}, false
	}
	x, okX := n.Args[0].Int()
	y, okY := n.Args[1].Int()
	if !okX || !okY {
		return Coordinate{}, false
	}
	return Coordinate{X: x, Y: y}, true
}

// FindPair returns the first integer pair in n, searching depth first. A
// compound with exactly two integer arguments counts as a pair as well.
func (n Node) FindPair() (Coordinate, bool) {
	if c, ok := n.Pair(); ok {
		return c, true
	}
	if len(n.Args) == 2 {
		x, okX := n.Args[0].Int()
		y, okY := n.Args[1].Int()
		if okX && okY {
			return Coordinate{X: x, Y: y}, true
		}
	}
	for _, a := range n.Args {
		if c, ok := a.FindPair(); ok {
			return c, true
		}
	}
	return Coordinate{}, false
}

// Parse parses a single term. Trailing input (other than an optional final
// period) is an error.
func Parse(text string) (Node, error) {
	p := &parser{lex: lexer{src: text}}
	if err := p.advance(); err != nil {
		return Node{}, err
	}
	n, err := p.term()
	if err != nil {
		return Node{}, err
	}
	if p.tok.kind == tokEnd {
		return n, nil
	}
	if p.tok.kind == tokName && p.tok.text == "." {
		if err := p.advance(); err != nil {
			return Node{}, err
		}
		if p.tok.kind == tokEnd {
			return n, nil
		}
	}
	return Node{}, fmt.Errorf("unexpected %q at offset %d", p.tok.text, p.tok.pos)
}

// ParseGoal decodes the engine's Goal answer. It never fails: text outside the
// grammar degrades to a Goal whose type is the leading token and whose value
// is empty.
func ParseGoal(text string) Goal {
	text = strings.TrimSpace(text)
	n, err := Parse(text)
	if err != nil {
		if i := strings.IndexByte(text, '('); i >= 0 {
			return Goal{Type: strings.TrimSpace(text[:i])}
		}
		return Goal{Type: text}
	}
	g := Goal{Type: n.Name}
	if len(n.Args) > 0 {
		if c, ok := n.FindPair(); ok {
			g.Value = &c
		}
	}
	return g
}

// -----------------------------------------------------------------------------
// parser
// -----------------------------------------------------------------------------

type parser struct {
	lex lexer
	tok token
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) expect(kind tokKind) error {
	if p.tok.kind != kind {
		return fmt.Errorf("expected %s, got %q at offset %d", kind, p.tok.text, p.tok.pos)
	}
	return p.advance()
}

func (p *parser) term() (Node, error) {
	switch p.tok.kind {
	case tokInt:
		n := Node{Name: p.tok.text, Number: true}
		return n, p.advance()

	case tokName, tokComma:
		name := p.tok.text
		wasComma := p.tok.kind == tokComma
		if err := p.advance(); err != nil {
			return Node{}, err
		}
		if p.tok.kind != tokOpen || !p.tok.glued {
			if wasComma {
				return Node{}, fmt.Errorf("dangling comma at offset %d", p.tok.pos)
			}
			return Node{Name: name}, nil
		}
		if err := p.advance(); err != nil {
			return Node{}, err
		}
		args, err := p.args()
		if err != nil {
			return Node{}, err
		}
		return Node{Name: name, Args: args}, nil

	case tokOpen:
		if err := p.advance(); err != nil {
			return Node{}, err
		}
		args, err := p.args()
		if err != nil {
			return Node{}, err
		}
		if len(args) == 1 {
			return args[0], nil
		}
		return Node{Name: ",", Args: args}, nil
	}
	return Node{}, fmt.Errorf("unexpected %q at offset %d", p.tok.text, p.tok.pos)
}

// args parses a comma separated list and the closing parenthesis.
func (p *parser) args() ([]Node, error) {
	var out []Node
	for {
		n, err := p.term()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
		if p.tok.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if err := p.expect(tokClose); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// -----------------------------------------------------------------------------
// lexer
// -----------------------------------------------------------------------------

type tokKind int

const (
	tokEnd tokKind = iota
	tokInt
	tokName
	tokComma
	tokOpen
	tokClose
)

func (k tokKind) String() string {
	switch k {
	case tokEnd:
		return "end of input"
	case tokInt:
		return "integer"
	case tokName:
		return "name"
	case tokComma:
		return `","`
	case tokOpen:
		return `"("`
	case tokClose:
		return `")"`
	}
	return "token"
}

type token struct {
	kind tokKind
	text string
	pos  int
	// glued is set on "(" tokens that immediately follow the previous token,
	// which is what makes "f(" a functor application.
	glued bool
}

type lexer struct {
	src string
	pos int
}

const symbolChars = "+-*/\\^<>=~:.?@#&$"

func (l *lexer) next() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
	glued := l.pos == start
	if l.pos >= len(l.src) {
		return token{kind: tokEnd, pos: l.pos}, nil
	}

	begin := l.pos
	c := l.src[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tokOpen, text: "(", pos: begin, glued: glued}, nil
	case c == ')':
		l.pos++
		return token{kind: tokClose, text: ")", pos: begin}, nil
	case c == ',':
		l.pos++
		return token{kind: tokComma, text: ",", pos: begin}, nil
	case c == '\'':
		return l.quoted()
	case isDigit(c), c == '-' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]):
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokInt, text: l.src[begin:l.pos], pos: begin}, nil
	case isAlnum(c):
		for l.pos < len(l.src) && isAlnum(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokName, text: l.src[begin:l.pos], pos: begin}, nil
	case strings.IndexByte(symbolChars, c) >= 0:
		for l.pos < len(l.src) && strings.IndexByte(symbolChars, l.src[l.pos]) >= 0 {
			l.pos++
		}
		return token{kind: tokName, text: l.src[begin:l.pos], pos: begin}, nil
	}
	return token{}, fmt.Errorf("unexpected character %q at offset %d", c, begin)
}

// quoted reads a single-quoted atom. A doubled quote is a literal quote. The
// quoted comma ',' lexes as the comma functor.
func (l *lexer) quoted() (token, error) {
	begin := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '\'' {
			if l.pos+1 < len(l.src) && l.src[l.pos+1] == '\'' {
				sb.WriteByte('\'')
				l.pos += 2
				continue
			}
			l.pos++
			if sb.String() == "," {
				return token{kind: tokComma, text: ",", pos: begin}, nil
			}
			return token{kind: tokName, text: sb.String(), pos: begin}, nil
		}
		sb.WriteByte(c)
		l.pos++
	}
	return token{}, fmt.Errorf("unterminated quoted atom at offset %d", begin)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func isAlnum(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
