package sandbox

import (
	"unicode"

	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/zerr"
)

// Node types of the calc language.
const (
	TypeProgram = "calc.Program"
	TypeLet     = "calc.Let"
	TypePrint   = "calc.Print"
	TypeAdd     = "calc.Add"
	TypeNum     = "calc.Num"
	TypeRef     = "calc.Ref"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokPunct
)

type token struct {
	kind  tokenKind
	text  string
	start int
	end   int
}

type parser struct {
	src  string
	pos  int
	tok  token
	errs error
}

// Parse builds a calc program:
//
//	Program ::= Stmt*
//	Stmt    ::= "let" ident "=" Expr ";" | "print" Expr ";"
//	Expr    ::= Term ("+" Term)*
//	Term    ::= int | ident | "(" Expr ")"
//
// Lines starting with "#" are comments.
func Parse(src string) (*Node, error) {
	p := &parser{src: src}
	p.next()
	root := NewNode(TypeProgram, "", 0, len(src))
	for p.tok.kind != tokEOF && p.errs == nil {
		if stmt := p.stmt(); stmt != nil {
			root.Add(stmt)
		}
	}
	if p.errs != nil {
		return nil, p.errs
	}
	return root, nil
}

func (p *parser) fail(msg string) {
	if p.errs == nil {
		err := zerr.Wrap(domain.ErrSourceSyntax, msg)
		err = zerr.With(err, "offset", p.tok.start)
		p.errs = zerr.With(err, "token", p.tok.text)
	}
	p.tok = token{kind: tokEOF, start: len(p.src), end: len(p.src)}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '#':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		case unicode.IsSpace(rune(c)):
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) next() {
	p.skipSpace()
	start := p.pos
	if p.pos >= len(p.src) {
		p.tok = token{kind: tokEOF, start: start, end: start}
		return
	}
	c := rune(p.src[p.pos])
	switch {
	case unicode.IsLetter(c) || c == '_':
		for p.pos < len(p.src) && (isIdentRune(rune(p.src[p.pos]))) {
			p.pos++
		}
		p.tok = token{kind: tokIdent, text: p.src[start:p.pos], start: start, end: p.pos}
	case unicode.IsDigit(c):
		for p.pos < len(p.src) && unicode.IsDigit(rune(p.src[p.pos])) {
			p.pos++
		}
		p.tok = token{kind: tokInt, text: p.src[start:p.pos], start: start, end: p.pos}
	default:
		p.pos++
		p.tok = token{kind: tokPunct, text: p.src[start:p.pos], start: start, end: p.pos}
	}
}

func isIdentRune(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}

func (p *parser) expect(text string) int {
	if p.tok.kind != tokPunct || p.tok.text != text {
		p.fail("expected '" + text + "'")
		return p.tok.end
	}
	end := p.tok.end
	p.next()
	return end
}

func (p *parser) stmt() *Node {
	start := p.tok.start
	if p.tok.kind != tokIdent {
		p.fail("expected statement")
		return nil
	}
	switch p.tok.text {
	case "let":
		p.next()
		if p.tok.kind != tokIdent {
			p.fail("expected name")
			return nil
		}
		name := p.tok.text
		p.next()
		p.expect("=")
		expr := p.expr()
		end := p.expect(";")
		if expr == nil {
			return nil
		}
		return NewNode(TypeLet, name, start, end, expr)
	case "print":
		p.next()
		expr := p.expr()
		end := p.expect(";")
		if expr == nil {
			return nil
		}
		return NewNode(TypePrint, "", start, end, expr)
	default:
		p.fail("unknown statement")
		return nil
	}
}

func (p *parser) expr() *Node {
	left := p.term()
	for left != nil && p.tok.kind == tokPunct && p.tok.text == "+" {
		p.next()
		right := p.term()
		if right == nil {
			return nil
		}
		left = NewNode(TypeAdd, "+", left.Start, right.End, left, right)
	}
	return left
}

func (p *parser) term() *Node {
	t := p.tok
	switch {
	case t.kind == tokInt:
		p.next()
		return NewNode(TypeNum, t.text, t.start, t.end)
	case t.kind == tokIdent:
		p.next()
		return NewNode(TypeRef, t.text, t.start, t.end)
	case t.kind == tokPunct && t.text == "(":
		p.next()
		inner := p.expr()
		p.expect(")")
		return inner
	default:
		p.fail("expected expression")
		return nil
	}
}
