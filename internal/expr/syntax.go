package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// rewrite parses src with the usual mathematical precedence and returns a
// fully parenthesized equivalent for govaluate. Unary minus binds looser than
// ** (-x**2 is -(x**2)), ** groups right to left (2**3**2 is 2**9) and number
// literals may carry an exponent (1e-3). Negation is emitted as (0 - a) since
// govaluate cannot lex a sign directly after another operator.
//
//	comparison = sum { ("<" | "<=" | ">" | ">=" | "==" | "!=") sum }
//	sum        = term { ("+" | "-") term }
//	term       = unary { ("*" | "/" | "%") unary }
//	unary      = ("-" | "+") unary | power
//	power      = primary [ "**" unary ]
//	primary    = number | name | name "(" [ comparison { "," comparison } ] ")" | "(" comparison ")"
func rewrite(src string) (string, error) {
	toks, err := tokenize(src)
	if err != nil {
		return "", err
	}
	p := &parser{toks: toks}
	out, err := p.comparison()
	if err != nil {
		return "", err
	}
	if t := p.peek(); t.kind != tokEOF {
		return "", fmt.Errorf("unexpected %q at position %d", t.text, t.pos)
	}
	return out, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokName
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// operators is ordered so two-character operators match first.
var operators = []string{"**", "<=", ">=", "==", "!=", "+", "-", "*", "/", "%", "<", ">"}

func tokenize(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isDigit(c) || (c == '.' && i+1 < len(s) && isDigit(s[i+1])):
			j := scanNumber(s, i)
			v, err := strconv.ParseFloat(s[i:j], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q at position %d", s[i:j], i)
			}
			toks = append(toks, token{kind: tokNumber, text: strconv.FormatFloat(v, 'f', -1, 64), pos: i})
			i = j
		case isNameStart(c):
			j := i + 1
			for j < len(s) && (isNameStart(s[j]) || isDigit(s[j])) {
				j++
			}
			toks = append(toks, token{kind: tokName, text: s[i:j], pos: i})
			i = j
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
		default:
			op := matchOperator(s[i:])
			if op == "" {
				r, _ := utf8.DecodeRuneInString(s[i:])
				return nil, fmt.Errorf("unexpected character %q at position %d", r, i)
			}
			toks = append(toks, token{kind: tokOp, text: op, pos: i})
			i += len(op)
		}
	}
	return append(toks, token{kind: tokEOF, text: "end of expression", pos: len(s)}), nil
}

// scanNumber returns the end of the literal starting at i: digits, an
// optional fraction and an optional exponent.
func scanNumber(s string, i int) int {
	j := i
	for j < len(s) && isDigit(s[j]) {
		j++
	}
	if j < len(s) && s[j] == '.' {
		j++
		for j < len(s) && isDigit(s[j]) {
			j++
		}
	}
	if j < len(s) && (s[j] == 'e' || s[j] == 'E') {
		k := j + 1
		if k < len(s) && (s[k] == '+' || s[k] == '-') {
			k++
		}
		if k < len(s) && isDigit(s[k]) {
			for k < len(s) && isDigit(s[k]) {
				k++
			}
			j = k
		}
	}
	return j
}

func matchOperator(s string) string {
	for _, op := range operators {
		if strings.HasPrefix(s, op) {
			return op
		}
	}
	return ""
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// acceptOp consumes the next token if it is one of ops.
func (p *parser) acceptOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *parser) comparison() (string, error) {
	return p.binary(p.sum, "<", "<=", ">", ">=", "==", "!=")
}

func (p *parser) sum() (string, error) {
	return p.binary(p.term, "+", "-")
}

func (p *parser) term() (string, error) {
	return p.binary(p.unary, "*", "/", "%")
}

// binary parses a left-associative chain of ops over operand.
func (p *parser) binary(operand func() (string, error), ops ...string) (string, error) {
	left, err := operand()
	if err != nil {
		return "", err
	}
	for {
		op, ok := p.acceptOp(ops...)
		if !ok {
			return left, nil
		}
		right, err := operand()
		if err != nil {
			return "", err
		}
		left = "(" + left + " " + op + " " + right + ")"
	}
}

func (p *parser) unary() (string, error) {
	if op, ok := p.acceptOp("-", "+"); ok {
		operand, err := p.unary()
		if err != nil {
			return "", err
		}
		if op == "+" {
			return operand, nil
		}
		return "(0 - " + operand + ")", nil
	}
	return p.power()
}

func (p *parser) power() (string, error) {
	base, err := p.primary()
	if err != nil {
		return "", err
	}
	if _, ok := p.acceptOp("**"); !ok {
		return base, nil
	}
	exp, err := p.unary()
	if err != nil {
		return "", err
	}
	return "(" + base + " ** " + exp + ")", nil
}

func (p *parser) primary() (string, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return t.text, nil

	case tokName:
		if p.peek().kind != tokLParen {
			return t.text, nil
		}
		if _, ok := functions[t.text]; !ok {
			return "", fmt.Errorf("unknown function %q at position %d", t.text, t.pos)
		}
		p.next()
		var args []string
		if p.peek().kind != tokRParen {
			for {
				arg, err := p.comparison()
				if err != nil {
					return "", err
				}
				args = append(args, arg)
				if p.peek().kind != tokComma {
					break
				}
				p.next()
			}
		}
		if err := p.expect(tokRParen); err != nil {
			return "", err
		}
		return t.text + "(" + strings.Join(args, ", ") + ")", nil

	case tokLParen:
		inner, err := p.comparison()
		if err != nil {
			return "", err
		}
		if err := p.expect(tokRParen); err != nil {
			return "", err
		}
		return inner, nil

	default:
		return "", fmt.Errorf("unexpected %q at position %d", t.text, t.pos)
	}
}

func (p *parser) expect(kind tokenKind) error {
	if t := p.next(); t.kind != kind {
		return fmt.Errorf("expected \")\" at position %d, found %q", t.pos, t.text)
	}
	return nil
}
