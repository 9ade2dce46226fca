package workflow

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// EvaluateCondition evaluates a restricted boolean expression against the
// workflow context. The language allows boolean operators (and/or/not and
// their &&/||/! forms), comparisons (== != < <= > >= in, not in, is, is
// not), numeric/string/bool literals, parentheses, and bare context
// variable references. Anything else fails the parse, and any failure
// evaluates to false. An empty condition is vacuously true. Unknown
// variables resolve to nil; comparisons against nil are false.
func EvaluateCondition(condition string, ctx map[string]any) bool {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return true
	}
	node, err := parseCondition(condition)
	if err != nil {
		return false
	}
	return truthy(node.eval(ctx))
}

// ── lexer ────────────────────────────────────────────────────────────

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
}

type lexer struct {
	input []rune
	pos   int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(l.input[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokEOF}, nil
	}

	ch := l.input[l.pos]
	switch {
	case ch == '(':
		l.pos++
		return token{kind: tokLParen, text: "("}, nil
	case ch == ')':
		l.pos++
		return token{kind: tokRParen, text: ")"}, nil
	case ch == '\'' || ch == '"':
		return l.lexString(ch)
	case unicode.IsDigit(ch) || (ch == '.' && l.peekDigit()):
		return l.lexNumber()
	case ch == '-' && l.peekDigit():
		return l.lexNumber()
	case isIdentRune(ch):
		return l.lexIdent()
	default:
		return l.lexOperator()
	}
}

func (l *lexer) peekDigit() bool {
	return l.pos+1 < len(l.input) && unicode.IsDigit(l.input[l.pos+1])
}

func (l *lexer) lexString(quote rune) (token, error) {
	l.pos++
	start := l.pos
	for l.pos < len(l.input) && l.input[l.pos] != quote {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{}, fmt.Errorf("unterminated string literal")
	}
	text := string(l.input[start:l.pos])
	l.pos++
	return token{kind: tokString, text: text}, nil
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	if l.input[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.input) && (unicode.IsDigit(l.input[l.pos]) || l.input[l.pos] == '.') {
		l.pos++
	}
	text := string(l.input[start:l.pos])
	if _, err := strconv.ParseFloat(text, 64); err != nil {
		return token{}, fmt.Errorf("bad number literal %q", text)
	}
	return token{kind: tokNumber, text: text}, nil
}

func (l *lexer) lexIdent() (token, error) {
	start := l.pos
	for l.pos < len(l.input) && isIdentRune(l.input[l.pos]) {
		l.pos++
	}
	return token{kind: tokIdent, text: string(l.input[start:l.pos])}, nil
}

// operators the lexer accepts; everything else is a parse failure
var operators = []string{"==", "!=", "<=", ">=", "&&", "||", "<", ">", "!"}

func (l *lexer) lexOperator() (token, error) {
	rest := string(l.input[l.pos:])
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			l.pos += len([]rune(op))
			return token{kind: tokOp, text: op}, nil
		}
	}
	return token{}, fmt.Errorf("unexpected character %q", l.input[l.pos])
}

func isIdentRune(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch) || unicode.IsDigit(ch)
}

// ── parser ───────────────────────────────────────────────────────────

type parser struct {
	tokens []token
	pos    int
}

func parseCondition(input string) (condNode, error) {
	lex := &lexer{input: []rune(input)}
	var tokens []token
	for {
		tok, err := lex.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.kind == tokEOF {
			break
		}
	}

	p := &parser{tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.current().kind != tokEOF {
		return nil, fmt.Errorf("trailing input at %q", p.current().text)
	}
	return node, nil
}

func (p *parser) current() token { return p.tokens[p.pos] }

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) matchWord(words ...string) bool {
	tok := p.current()
	if tok.kind != tokIdent && tok.kind != tokOp {
		return false
	}
	for _, w := range words {
		if tok.text == w {
			p.advance()
			return true
		}
	}
	return false
}

func (p *parser) parseOr() (condNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.matchWord("or", "||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &boolNode{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (condNode, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.matchWord("and", "&&") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &boolNode{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (condNode, error) {
	if p.matchWord("not", "!") {
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (condNode, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	op, ok, err := p.comparisonOp()
	if err != nil {
		return nil, err
	}
	if !ok {
		return left, nil
	}
	right, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return &compareNode{op: op, left: left, right: right}, nil
}

// comparisonOp consumes one comparison operator, folding the two-word
// forms "not in" and "is not".
func (p *parser) comparisonOp() (string, bool, error) {
	tok := p.current()
	switch {
	case tok.kind == tokOp && (tok.text == "==" || tok.text == "!=" ||
		tok.text == "<" || tok.text == "<=" || tok.text == ">" || tok.text == ">="):
		p.advance()
		return tok.text, true, nil
	case tok.kind == tokIdent && tok.text == "in":
		p.advance()
		return "in", true, nil
	case tok.kind == tokIdent && tok.text == "not":
		p.advance()
		if !p.matchWord("in") {
			return "", false, fmt.Errorf("expected %q after %q", "in", "not")
		}
		return "not in", true, nil
	case tok.kind == tokIdent && tok.text == "is":
		p.advance()
		if p.matchWord("not") {
			return "!=", true, nil
		}
		return "==", true, nil
	}
	return "", false, nil
}

func (p *parser) parsePrimary() (condNode, error) {
	tok := p.advance()
	switch tok.kind {
	case tokNumber:
		v, _ := strconv.ParseFloat(tok.text, 64)
		return &literalNode{value: v}, nil
	case tokString:
		return &literalNode{value: tok.text}, nil
	case tokIdent:
		switch tok.text {
		case "true", "True":
			return &literalNode{value: true}, nil
		case "false", "False":
			return &literalNode{value: false}, nil
		case "None", "nil":
			return &literalNode{value: nil}, nil
		case "and", "or", "not", "in", "is":
			return nil, fmt.Errorf("misplaced keyword %q", tok.text)
		}
		return &varNode{name: tok.text}, nil
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.advance().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		return inner, nil
	default:
		return nil, fmt.Errorf("unexpected token %q", tok.text)
	}
}

// ── evaluation ───────────────────────────────────────────────────────

type condNode interface {
	eval(ctx map[string]any) any
}

type literalNode struct{ value any }

func (n *literalNode) eval(map[string]any) any { return n.value }

type varNode struct{ name string }

func (n *varNode) eval(ctx map[string]any) any { return ctx[n.name] }

type notNode struct{ inner condNode }

func (n *notNode) eval(ctx map[string]any) any { return !truthy(n.inner.eval(ctx)) }

type boolNode struct {
	op          string
	left, right condNode
}

func (n *boolNode) eval(ctx map[string]any) any {
	left := truthy(n.left.eval(ctx))
	if n.op == "and" {
		return left && truthy(n.right.eval(ctx))
	}
	return left || truthy(n.right.eval(ctx))
}

type compareNode struct {
	op          string
	left, right condNode
}

func (n *compareNode) eval(ctx map[string]any) any {
	left := n.left.eval(ctx)
	right := n.right.eval(ctx)
	switch n.op {
	case "==":
		return valueEqual(left, right)
	case "!=":
		return !valueEqual(left, right)
	case "<", "<=", ">", ">=":
		return valueOrder(n.op, left, right)
	case "in":
		return valueIn(left, right)
	case "not in":
		return !valueIn(left, right)
	}
	return false
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	default:
		if f, ok := toFloat(v); ok {
			return f != 0
		}
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// valueEqual compares like types only; mixed types (and nil on one side)
// are never equal.
func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

// valueOrder orders two numbers or two strings; anything else is false.
func valueOrder(op string, a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return false
		}
		switch op {
		case "<":
			return fa < fb
		case "<=":
			return fa <= fb
		case ">":
			return fa > fb
		case ">=":
			return fa >= fb
		}
		return false
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if !okA || !okB {
		return false
	}
	switch op {
	case "<":
		return sa < sb
	case "<=":
		return sa <= sb
	case ">":
		return sa > sb
	case ">=":
		return sa >= sb
	}
	return false
}

// valueIn is substring containment on strings and membership on slices.
func valueIn(needle, haystack any) bool {
	switch h := haystack.(type) {
	case string:
		s, ok := needle.(string)
		return ok && strings.Contains(h, s)
	case []any:
		for _, item := range h {
			if valueEqual(needle, item) {
				return true
			}
		}
	case []string:
		s, ok := needle.(string)
		if !ok {
			return false
		}
		for _, item := range h {
			if item == s {
				return true
			}
		}
	}
	return false
}
