package parser

import (
	"strings"

	"github.com/storylang/storylang/internal/ast"
	"github.com/storylang/storylang/internal/token"
)

// parseExpression implements precedence climbing over the expression
// grammar: or, and, comparison (single-step, non-associative), additive,
// multiplicative, unary, postfix, primary.
func (p *Parser) parseExpression(prec int) ast.Expression {
	left := p.parseUnary()

	for {
		opPrec, ok := precedences[p.cur.Type]
		if !ok || opPrec <= prec || opPrec > PRODUCT {
			break
		}
		tok := p.cur
		opLit := tok.Type.String()
		p.next()
		right := p.parseExpression(opPrec)
		left = &ast.BinaryExpression{Tok: tok, Operator: opLit, Left: left, Right: right}

		if opPrec == COMPARE {
			if nextPrec, ok := precedences[p.cur.Type]; ok && nextPrec == COMPARE {
				break
			}
		}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expression {
	if p.curIs(token.NOT) || p.curIs(token.MINUS) {
		tok := p.cur
		op := tok.Type.String()
		p.next()
		operand := p.parseUnary()
		return &ast.UnaryExpression{Tok: tok, Operator: op, Operand: operand}
	}
	return p.parsePostfix(p.parsePrimary())
}

// parsePostfix chains Index/MemberAccess/MethodCall/FunctionCall onto a
// primary expression.
func (p *Parser) parsePostfix(left ast.Expression) ast.Expression {
	for {
		switch p.cur.Type {
		case token.DOT:
			tok := p.cur
			p.next()
			member := p.cur.Literal
			p.next()
			switch {
			case p.curIs(token.WITH):
				p.next()
				args := []ast.Expression{p.parseExpression(COMPARE)}
				for p.curIs(token.AND) {
					p.next()
					args = append(args, p.parseExpression(COMPARE))
				}
				left = &ast.MethodCallExpression{Tok: tok, Object: left, Method: member, Arguments: args}
			case p.curIs(token.LPAREN):
				p.next()
				args := p.parseArgList(token.RPAREN)
				left = &ast.MethodCallExpression{Tok: tok, Object: left, Method: member, Arguments: args}
			default:
				left = &ast.MemberAccessExpression{Tok: tok, Object: left, Member: member}
			}
		case token.LBRACKET:
			tok := p.cur
			p.next()
			idx := p.parseExpression(LOWEST)
			p.expect(token.RBRACKET)
			left = &ast.IndexExpression{Tok: tok, Left: left, Index: idx}
		case token.LPAREN:
			tok := p.cur
			p.next()
			args := p.parseArgList(token.RPAREN)
			left = &ast.FunctionCallExpression{Tok: tok, Callee: left, Arguments: args}
		default:
			return left
		}
	}
}

// parseArgList parses a comma-separated expression list up to (and
// consuming) the closing token.
func (p *Parser) parseArgList(closing token.Type) []ast.Expression {
	var args []ast.Expression
	if p.curIs(closing) {
		p.next()
		return args
	}
	args = append(args, p.parseExpression(LOWEST))
	for p.curIs(token.COMMA) {
		p.next()
		args = append(args, p.parseExpression(LOWEST))
	}
	p.expect(closing)
	return args
}

func (p *Parser) parsePrimary() ast.Expression {
	tok := p.cur
	switch tok.Type {
	case token.NUMBER:
		p.next()
		return &ast.NumberLiteral{Tok: tok, Lit: tok.Literal}
	case token.STRING:
		p.next()
		return p.parseInterpolatedString(tok)
	case token.TRUE:
		p.next()
		return &ast.BooleanLiteral{Tok: tok, Val: true}
	case token.FALSE:
		p.next()
		return &ast.BooleanLiteral{Tok: tok, Val: false}
	case token.IDENT:
		p.next()
		return &ast.Identifier{Tok: tok, Value: tok.Literal}
	case token.LPAREN:
		p.next()
		expr := p.parseExpression(LOWEST)
		p.expect(token.RPAREN)
		return expr
	case token.LBRACKET:
		return p.parseSeqLiteral(tok)
	case token.LBRACE:
		return p.parseDictLiteral(tok)
	case token.DO:
		return p.parseDoInBackground(tok)
	case token.PROCEED:
		return p.parseProceed(tok)
	default:
		p.errorf(tok.Pos, "unexpected token in expression: %s", tok.Type)
		p.next()
		return &ast.Identifier{Tok: tok, Value: tok.Literal}
	}
}

func (p *Parser) parseSeqLiteral(tok token.Token) ast.Expression {
	p.next() // [
	p.skipNewlines()
	lit := &ast.SeqLiteral{Tok: tok}
	if p.curIs(token.RBRACKET) {
		p.next()
		return lit
	}
	lit.Elements = append(lit.Elements, p.parseExpression(LOWEST))
	p.skipNewlines()
	for p.curIs(token.COMMA) {
		p.next()
		p.skipNewlines()
		if p.curIs(token.RBRACKET) {
			break
		}
		lit.Elements = append(lit.Elements, p.parseExpression(LOWEST))
		p.skipNewlines()
	}
	p.expect(token.RBRACKET)
	return lit
}

func (p *Parser) parseDictLiteral(tok token.Token) ast.Expression {
	p.next() // {
	p.skipNewlines()
	lit := &ast.DictLiteral{Tok: tok}
	if p.curIs(token.RBRACE) {
		p.next()
		return lit
	}
	for {
		key := p.parseExpression(COMPARE)
		p.expect(token.COLON)
		val := p.parseExpression(COMPARE)
		lit.Entries = append(lit.Entries, ast.DictEntry{Key: key, Value: val})
		p.skipNewlines()
		if !p.curIs(token.COMMA) {
			break
		}
		p.next()
		p.skipNewlines()
		if p.curIs(token.RBRACE) {
			break
		}
	}
	p.expect(token.RBRACE)
	return lit
}

func (p *Parser) parseDoInBackground(tok token.Token) ast.Expression {
	p.next() // Do
	if !p.curIs(token.COLON) {
		// "Do in background:" — "in" and "background" lex as keyword
		// tokens; the next two tokens are skipped without checking them.
		p.next()
		p.next()
	}
	p.expect(token.COLON)
	body := p.expectBlock()
	return &ast.DoInBackgroundExpression{Tok: tok, Body: body}
}

func (p *Parser) parseProceed(tok token.Token) ast.Expression {
	p.next() // Proceed
	expr := &ast.ProceedExpression{Tok: tok}
	switch {
	case p.curIs(token.LPAREN):
		p.next()
		expr.Arguments = p.parseArgList(token.RPAREN)
	case p.curIs(token.WITH):
		p.next()
		expr.Arguments = append(expr.Arguments, p.parseExpression(COMPARE))
		for p.curIs(token.AND) {
			p.next()
			expr.Arguments = append(expr.Arguments, p.parseExpression(COMPARE))
		}
	}
	return expr
}

// parseInterpolatedString lowers "Hello {Name}" into a sum of alternating
// string-literal and identifier/member-access expressions at parse time.
// Only {identifier} and {identifier.member} are recognized.
func (p *Parser) parseInterpolatedString(tok token.Token) ast.Expression {
	s := tok.Literal
	if !strings.Contains(s, "{") {
		return &ast.StringLiteral{Tok: tok, Val: s}
	}

	var parts []ast.Expression
	var lit strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == '{' {
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				lit.WriteByte(s[i])
				i++
				continue
			}
			inner := s[i+1 : i+end]
			if lit.Len() > 0 {
				parts = append(parts, &ast.StringLiteral{Tok: tok, Val: lit.String()})
				lit.Reset()
			}
			if dot := strings.IndexByte(inner, '.'); dot >= 0 {
				parts = append(parts, &ast.MemberAccessExpression{
					Tok:    tok,
					Object: &ast.Identifier{Tok: tok, Value: inner[:dot]},
					Member: inner[dot+1:],
				})
			} else {
				parts = append(parts, &ast.Identifier{Tok: tok, Value: inner})
			}
			i += end + 1
			continue
		}
		lit.WriteByte(s[i])
		i++
	}
	if lit.Len() > 0 {
		parts = append(parts, &ast.StringLiteral{Tok: tok, Val: lit.String()})
	}
	if len(parts) == 0 {
		return &ast.StringLiteral{Tok: tok, Val: ""}
	}

	expr := parts[0]
	for _, part := range parts[1:] {
		expr = &ast.BinaryExpression{Tok: tok, Operator: "+", Left: expr, Right: part}
	}
	return expr
}
