package parser

import (
	"github.com/storylang/storylang/internal/ast"
	"github.com/storylang/storylang/internal/token"
)

// parseStatement parses one Story/method/block-body statement.
func (p *Parser) parseStatement() ast.Statement {
	p.blockClosed = false
	switch p.cur.Type {
	case token.NEWLINE:
		p.next()
		return nil
	case token.USE:
		return p.parseUse()
	case token.CREATE:
		return p.parseCreate()
	case token.SET:
		return p.parseSet()
	case token.PRINT:
		return p.parsePrint()
	case token.SWITCH:
		return p.parseSwitch()
	case token.IF:
		return p.parseIf()
	case token.WHEN:
		return p.parseMatch()
	case token.TRY:
		return p.parseTry()
	case token.REPEAT:
		return p.parseRepeat()
	case token.FOR:
		return p.parseForEach()
	case token.RETURN:
		return p.parseReturn()
	case token.BREAK:
		s := &ast.BreakStatement{Tok: p.cur}
		p.next()
		p.expect(token.NEWLINE)
		return s
	case token.CONTINUE:
		s := &ast.ContinueStatement{Tok: p.cur}
		p.next()
		p.expect(token.NEWLINE)
		return s
	case token.IDENT:
		if p.peekIs(token.IS) {
			return p.parseAssignment()
		}
		return p.parseExpressionStatement()
	default:
		return p.parseExpressionStatement()
	}
}

func (p *Parser) parseAssignment() ast.Statement {
	tok := p.cur
	name := p.cur.Literal
	p.next() // ident
	p.next() // is
	val := p.parseExpression(LOWEST)
	p.expectStatementEnd()
	return &ast.AssignmentStatement{Tok: tok, Name: name, Value: val}
}

func (p *Parser) parseExpressionStatement() ast.Statement {
	tok := p.cur
	expr := p.parseExpression(LOWEST)
	p.expectStatementEnd()
	return &ast.ExpressionStatement{Tok: tok, Value: expr}
}

// parseCreate parses "Create <Concept> called <Name> [with F v and F v …]".
func (p *Parser) parseCreate() ast.Statement {
	tok := p.cur
	p.next()
	concept := p.cur.Literal
	p.next()
	p.expect(token.CALLED)
	name := p.cur.Literal
	p.next()

	stmt := &ast.CreateStatement{Tok: tok, ConceptName: concept, InstName: name}
	if p.curIs(token.WITH) {
		p.next()
		stmt.With = append(stmt.With, p.parseFieldInit())
		for p.curIs(token.AND) {
			p.next()
			stmt.With = append(stmt.With, p.parseFieldInit())
		}
	}
	p.expect(token.NEWLINE)
	return stmt
}

// parseFieldInit parses one "Field Expr" pair. The value is parsed at
// COMPARE precedence (above AND) so the "and" separator between field
// initializers is never swallowed by the expression.
func (p *Parser) parseFieldInit() ast.FieldInit {
	field := p.cur.Literal
	p.next()
	val := p.parseExpression(COMPARE)
	return ast.FieldInit{Field: field, Value: val}
}

func (p *Parser) parseSet() ast.Statement {
	tok := p.cur
	p.next()
	target := p.parsePostfix(p.parsePrimary())
	if p.curIs(token.TO) {
		p.next()
	}
	val := p.parseExpression(LOWEST)
	p.expectStatementEnd()
	return &ast.SetStatement{Tok: tok, Target: target, Value: val}
}

func (p *Parser) parsePrint() ast.Statement {
	tok := p.cur
	p.next()
	val := p.parseExpression(LOWEST)
	p.expectStatementEnd()
	return &ast.PrintStatement{Tok: tok, Value: val}
}

func (p *Parser) parseSwitch() ast.Statement {
	tok := p.cur
	p.next()
	on := p.curIs(token.ON)
	p.next() // on/off
	name := p.cur.Literal
	p.next()
	p.expect(token.NEWLINE)
	return &ast.SwitchStatement{Tok: tok, SituationName: name, On: on}
}

func (p *Parser) parseIf() ast.Statement {
	tok := p.cur
	p.next()
	cond := p.parseExpression(LOWEST)
	p.expect(token.COLON)
	body := p.expectBlock()

	stmt := &ast.IfStatement{Tok: tok, Condition: cond, Consequence: body}
	p.skipNewlines()
	if p.curIs(token.ELSE) {
		p.next()
		if p.curIs(token.IF) {
			stmt.Alternative = []ast.Statement{p.parseIf()}
			return stmt
		}
		p.expect(token.COLON)
		stmt.Alternative = p.expectBlock()
	}
	return stmt
}

func (p *Parser) parseMatch() ast.Statement {
	tok := p.cur
	p.next()
	scrutinee := p.parseExpression(LOWEST)
	p.expect(token.COLON)
	if !p.expect(token.NEWLINE) || !p.expect(token.INDENT) {
		return &ast.MatchStatement{Tok: tok, Scrutinee: scrutinee}
	}

	stmt := &ast.MatchStatement{Tok: tok, Scrutinee: scrutinee}
	for p.curIs(token.IS) {
		p.next()
		val := p.parseExpression(LOWEST)
		p.expect(token.COLON)
		body := p.expectBlock()
		stmt.Arms = append(stmt.Arms, ast.MatchArm{Value: val, Body: body})
	}
	if p.curIs(token.OTHERWISE) {
		p.next()
		p.expect(token.COLON)
		stmt.Otherwise = p.expectBlock()
	}
	p.expect(token.DEDENT)
	return stmt
}

func (p *Parser) parseTry() ast.Statement {
	tok := p.cur
	p.next()
	p.expect(token.COLON)
	body := p.expectBlock()

	stmt := &ast.TryStatement{Tok: tok, Body: body}
	p.skipNewlines()
	if p.curIs(token.CATCH) {
		p.next()
		if p.curIs(token.IDENT) {
			stmt.CatchName = p.cur.Literal
			p.next()
		}
		p.expect(token.COLON)
		stmt.HasCatch = true
		stmt.Catch = p.expectBlock()
		p.skipNewlines()
	}
	if p.curIs(token.ALWAYS) {
		p.next()
		p.expect(token.COLON)
		stmt.HasAlways = true
		stmt.Always = p.expectBlock()
	}
	return stmt
}

func (p *Parser) parseRepeat() ast.Statement {
	tok := p.cur
	p.next()
	if p.curIs(token.WHILE) {
		p.next()
		cond := p.parseExpression(LOWEST)
		p.expect(token.COLON)
		body := p.expectBlock()
		return &ast.RepeatWhileStatement{Tok: tok, Condition: cond, Body: body}
	}

	count := p.parseExpression(COMPARE)
	p.expect(token.TIMES)
	stmt := &ast.RepeatTimesStatement{Tok: tok, Count: count}
	if p.curIs(token.CALLED) {
		p.next()
		stmt.Counter = p.cur.Literal
		p.next()
	}
	p.expect(token.COLON)
	stmt.Body = p.expectBlock()
	return stmt
}

func (p *Parser) parseForEach() ast.Statement {
	tok := p.cur
	p.next() // For
	p.expect(token.EACH)
	name := p.cur.Literal
	p.next()
	p.expect(token.IN)
	iterable := p.parseExpression(LOWEST)
	p.expect(token.COLON)
	body := p.expectBlock()
	return &ast.ForEachStatement{Tok: tok, VarName: name, Iterable: iterable, Body: body}
}

func (p *Parser) parseReturn() ast.Statement {
	tok := p.cur
	p.next()
	if p.curIs(token.NEWLINE) {
		p.next()
		return &ast.ReturnStatement{Tok: tok}
	}
	val := p.parseExpression(LOWEST)
	p.expectStatementEnd()
	return &ast.ReturnStatement{Tok: tok, Value: val}
}
