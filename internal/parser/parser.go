// Package parser implements a recursive-descent parser over the
// indentation-aware token stream: Pratt expression parsing plus
// recursive-descent statements with one-token lookahead.
package parser

import (
	"fmt"

	"github.com/storylang/storylang/internal/ast"
	"github.com/storylang/storylang/internal/lexer"
	"github.com/storylang/storylang/internal/token"
)

// Precedence levels, lowest to highest.
const (
	_ int = iota
	LOWEST
	OR
	AND
	COMPARE
	SUM
	PRODUCT
	PREFIX
	POSTFIX
)

var precedences = map[token.Type]int{
	token.OR:        OR,
	token.AND:       AND,
	token.ASSIGN_EQ: COMPARE,
	token.NEQ:       COMPARE,
	token.GT:        COMPARE,
	token.LT:        COMPARE,
	token.GTE:       COMPARE,
	token.LTE:       COMPARE,
	token.PLUS:      SUM,
	token.MINUS:     SUM,
	token.STAR:      PRODUCT,
	token.SLASH:     PRODUCT,
	token.PERCENT:   PRODUCT,
	token.LPAREN:    POSTFIX,
	token.LBRACKET:  POSTFIX,
	token.DOT:       POSTFIX,
}

// Error is a parse error with expected/found description and position.
type Error struct {
	Message string
	Pos     token.Position
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Pos, e.Message) }

// Parser consumes a token stream with one-token lookahead.
type Parser struct {
	l *lexer.Lexer

	cur  token.Token
	peek token.Token

	// blockClosed is set when expectBlock has just consumed a DEDENT, so
	// statement terminators know the newline was already swallowed by the
	// block (e.g. "T is Do in background: <block>").
	blockClosed bool

	errs []error
}

// New creates a Parser over l, priming the one-token lookahead.
func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}
	p.next()
	p.next()
	return p
}

// Errors returns accumulated parse errors (the lexer's errors are included
// first, since a malformed token stream is reported before any parse
// error that stems from it).
func (p *Parser) Errors() []error {
	all := make([]error, 0, len(p.l.Errors())+len(p.errs))
	all = append(all, p.l.Errors()...)
	all = append(all, p.errs...)
	return all
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.l.NextToken()
}

func (p *Parser) curIs(t token.Type) bool  { return p.cur.Type == t }
func (p *Parser) peekIs(t token.Type) bool { return p.peek.Type == t }

func (p *Parser) errorf(pos token.Position, format string, args ...any) {
	p.errs = append(p.errs, &Error{Message: fmt.Sprintf(format, args...), Pos: pos})
}

func (p *Parser) expect(t token.Type) bool {
	if p.curIs(t) {
		p.next()
		return true
	}
	p.errorf(p.cur.Pos, "expected %s, found %s", t, p.cur.Type)
	return false
}

// skipNewlines consumes zero or more NEWLINE tokens, used inside bracketed
// literals where the grammar allows line continuation.
func (p *Parser) skipNewlines() {
	for p.curIs(token.NEWLINE) {
		p.next()
	}
}

// expectBlock consumes the NEWLINE INDENT prologue a ':' introduces and
// returns the parsed statement list up to (and consuming) the DEDENT.
func (p *Parser) expectBlock() []ast.Statement {
	if !p.expect(token.NEWLINE) {
		return nil
	}
	if !p.expect(token.INDENT) {
		return nil
	}
	var stmts []ast.Statement
	for !p.curIs(token.DEDENT) && !p.curIs(token.EOF) {
		if s := p.parseStatement(); s != nil {
			stmts = append(stmts, s)
		}
	}
	p.expect(token.DEDENT)
	p.blockClosed = true
	return stmts
}

// expectStatementEnd consumes the terminating NEWLINE of a simple
// statement. A statement whose trailing expression carried its own block
// (Do in background) already consumed the newline with the block's
// DEDENT, which blockClosed records.
func (p *Parser) expectStatementEnd() {
	if p.curIs(token.NEWLINE) {
		p.next()
		return
	}
	if p.blockClosed {
		return
	}
	p.expect(token.NEWLINE)
}

// ParseProgram parses a whole source file into a Program: Use statements
// lower into the Story body in declaration order, Story blocks
// concatenate, and Concept/Situation blocks register separately.
func (p *Parser) ParseProgram() *ast.Program {
	prog := &ast.Program{}

	for !p.curIs(token.EOF) {
		p.skipNewlines()
		if p.curIs(token.EOF) {
			break
		}
		switch p.cur.Type {
		case token.USE:
			if u := p.parseUse(); u != nil {
				prog.Story = append(prog.Story, u)
			}
		case token.STORY:
			p.next()
			p.expect(token.COLON)
			prog.Story = append(prog.Story, p.expectBlock()...)
		case token.CONCEPT:
			if c := p.parseConcept(); c != nil {
				prog.Concepts = append(prog.Concepts, c)
			}
		case token.SITUATION:
			if s := p.parseSituation(); s != nil {
				prog.Situations = append(prog.Situations, s)
			}
		default:
			p.errorf(p.cur.Pos, "expected Use, Story, Concept, or Situation, found %s", p.cur.Type)
			p.next()
		}
	}

	return prog
}

func (p *Parser) parseUse() ast.Statement {
	tok := p.cur
	p.next()
	var path []string
	if !p.curIs(token.IDENT) {
		p.errorf(p.cur.Pos, "expected module path after Use, found %s", p.cur.Type)
		return nil
	}
	path = append(path, p.cur.Literal)
	p.next()
	for p.curIs(token.DOT) {
		p.next()
		if !p.curIs(token.IDENT) {
			p.errorf(p.cur.Pos, "expected identifier after '.', found %s", p.cur.Type)
			break
		}
		path = append(path, p.cur.Literal)
		p.next()
	}
	return &ast.UseStatement{Tok: tok, Path: path}
}

func (p *Parser) parseConcept() *ast.ConceptDecl {
	tok := p.cur
	p.next()
	p.expect(token.COLON)
	if !p.curIs(token.IDENT) {
		p.errorf(p.cur.Pos, "expected concept name, found %s", p.cur.Type)
		return nil
	}
	name := p.cur.Literal
	p.next()

	decl := &ast.ConceptDecl{Tok: tok, Name: name, Observers: map[string][]ast.Statement{}}

	if !p.expect(token.NEWLINE) || !p.expect(token.INDENT) {
		return decl
	}
	for !p.curIs(token.DEDENT) && !p.curIs(token.EOF) {
		switch {
		case p.curIs(token.TO):
			decl.Methods = append(decl.Methods, p.parseMethod())
		case p.curIs(token.WHEN) && p.peekIs(token.IDENT):
			field, body := p.parseObserver()
			decl.Observers[field] = body
		case p.curIs(token.IDENT):
			decl.Fields = append(decl.Fields, p.cur.Literal)
			p.next()
			if !p.expect(token.NEWLINE) {
				break
			}
		default:
			p.errorf(p.cur.Pos, "unexpected token in concept body: %s", p.cur.Type)
			p.next()
		}
	}
	p.expect(token.DEDENT)
	return decl
}

// parseObserver parses "When <field> changes: <block>".
func (p *Parser) parseObserver() (string, []ast.Statement) {
	p.next() // When
	field := p.cur.Literal
	p.next()
	p.expect(token.CHANGES)
	p.expect(token.COLON)
	return field, p.expectBlock()
}

func (p *Parser) parseMethod() *ast.MethodDecl {
	tok := p.cur
	p.next() // To
	name := p.cur.Literal
	p.next()

	var params []string
	if p.curIs(token.WITH) {
		p.next()
		params = append(params, p.cur.Literal)
		p.next()
		for p.curIs(token.AND) {
			p.next()
			params = append(params, p.cur.Literal)
			p.next()
		}
	}
	p.expect(token.COLON)
	body := p.expectBlock()
	return &ast.MethodDecl{Tok: tok, Name: name, Params: params, Body: body}
}

func (p *Parser) parseSituation() *ast.SituationDecl {
	tok := p.cur
	p.next()
	p.expect(token.COLON)
	name := p.cur.Literal
	p.next()

	decl := &ast.SituationDecl{Tok: tok, Name: name}
	if !p.expect(token.NEWLINE) || !p.expect(token.INDENT) {
		return decl
	}
	for !p.curIs(token.DEDENT) && !p.curIs(token.EOF) {
		if p.curIs(token.ADJUST) {
			decl.Adjustments = append(decl.Adjustments, p.parseAdjustment())
			continue
		}
		p.errorf(p.cur.Pos, "expected Adjust, found %s", p.cur.Type)
		p.next()
	}
	p.expect(token.DEDENT)
	return decl
}

func (p *Parser) parseAdjustment() *ast.AdjustmentDecl {
	tok := p.cur
	p.next() // Adjust
	concept := p.cur.Literal
	p.next()
	p.expect(token.COLON)

	adj := &ast.AdjustmentDecl{Tok: tok, ConceptName: concept}
	if !p.expect(token.NEWLINE) || !p.expect(token.INDENT) {
		return adj
	}
	for !p.curIs(token.DEDENT) && !p.curIs(token.EOF) {
		if p.curIs(token.TO) {
			adj.Methods = append(adj.Methods, p.parseMethod())
			continue
		}
		p.errorf(p.cur.Pos, "expected method declaration, found %s", p.cur.Type)
		p.next()
	}
	p.expect(token.DEDENT)
	return adj
}
