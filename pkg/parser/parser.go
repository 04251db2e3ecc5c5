// Package parser implements the sigil language parser.
//
// The parser is a recursive-descent parser over pkg/lexer's token
// stream, producing the AST node types in pkg/ast. Expression parsing is
// split out into expr.go, a shunting-yard operator-precedence parser
// invoked wherever the grammar expects an expression.
//
// Token management mirrors the lexer's own lookahead: the parser never
// buffers tokens itself, it only calls Peek/PeekN/Next on the lexer, the
// same way the original C parser drove its lexer directly rather than
// keeping a separate token buffer.
//
// Error handling. Every parse function returns (value, bool); on failure
// it sets a sticky Parser.failed flag so that outer call frames unwind
// without re-reporting or attempting further diagnostics for the same
// parse. This mirrors the original's `parser->error` flag.
package parser

import (
	"github.com/kristofer/sigil/pkg/ast"
	"github.com/kristofer/sigil/pkg/diag"
	"github.com/kristofer/sigil/pkg/lexer"
)

// Parser drives a lexer.Lexer to produce an *ast.Ast, reporting errors to
// a diag.Diagnostics sink.
type Parser struct {
	lex    *lexer.Lexer
	d      *diag.Diagnostics
	failed bool
}

// New creates a Parser reading from l and reporting to d.
func New(l *lexer.Lexer, d *diag.Diagnostics) *Parser {
	return &Parser{lex: l, d: d}
}

// Failed reports whether any parse error has occurred.
func (p *Parser) Failed() bool { return p.failed }

func spanOf(tok lexer.Token) ast.Span {
	length := len(tok.Literal)
	if length == 0 {
		length = 1
	}
	return ast.Span{Line: tok.Line, Column: tok.Column, Len: length}
}

func posOf(tok lexer.Token) diag.Pos {
	return diag.Pos{Line: tok.Line, Column: tok.Column}
}

// errorAt reports a caret-underlined error at tok, honoring the sticky
// failure flag: once set, no further diagnostics are emitted for this
// parse so outer frames unwind silently.
func (p *Parser) errorAt(tok lexer.Token, format string, args ...any) {
	if p.failed {
		return
	}
	length := len(tok.Literal)
	if length == 0 {
		length = 1
	}
	p.d.Error(posOf(tok), length, 1, format, args...)
	p.failed = true
}

// unexpectedEOF reports "input unexpectedly ended" anchored at the end
// of the last consumed token, with a help line naming what was wanted.
func (p *Parser) unexpectedEOF(expected lexer.TokenKind) {
	if p.failed {
		return
	}
	pos := diag.Pos{}
	if last, ok := p.lex.LastConsumed(0); ok {
		pos = diag.Pos{Line: last.Line, Column: last.Column + len(last.Literal)}
	}
	p.d.Error(pos, 1, 1, "input unexpectedly ended")
	p.d.Help("expected a %s token", expected)
	p.failed = true
}

// reportLexErr surfaces a pending lexer error, if any, as a parser
// diagnostic. Returns true if an error was (or already had been)
// reported.
func (p *Parser) reportLexErr() bool {
	err := p.lex.Err()
	if err == nil {
		return false
	}
	if p.failed {
		return true
	}
	if le, ok := err.(*lexer.LexError); ok {
		length := len(le.Token.Literal)
		if length == 0 {
			length = 1
		}
		p.d.Error(posOf(le.Token), length, 1, "%s", le.Message)
		if le.Help != "" {
			p.d.Help("%s", le.Help)
		}
		if le.Note != "" {
			p.d.Note("%s", le.Note)
		}
	} else {
		p.d.Error(diag.Pos{}, 1, 0, "%s", err.Error())
	}
	p.failed = true
	return true
}

// expect consumes the next token if it matches kind, otherwise reports a
// diagnostic (unexpected-EOF, lex error, or unexpected-token as
// appropriate) and returns ok=false.
func (p *Parser) expect(kind lexer.TokenKind) (lexer.Token, bool) {
	if p.failed {
		return lexer.Token{}, false
	}
	tok, ok := p.lex.Peek()
	if !ok {
		if tok.Kind == lexer.TokenEOF {
			p.unexpectedEOF(kind)
			return lexer.Token{}, false
		}
		p.reportLexErr()
		return lexer.Token{}, false
	}
	if tok.Kind != kind {
		p.errorAt(tok, "got an unexpected %s token", tok.Kind)
		p.d.Help("expected a %s token", kind)
		return lexer.Token{}, false
	}
	p.lex.Next()
	return tok, true
}

// ParseAst parses the entire token stream into an *ast.Ast. On any
// parse error it returns (nil, false) and no partial AST.
func ParseAst(l *lexer.Lexer, d *diag.Diagnostics) (*ast.Ast, bool) {
	p := New(l, d)
	var consts []*ast.Const

	for {
		tok, ok := p.lex.Peek()
		if !ok {
			if tok.Kind == lexer.TokenEOF {
				break
			}
			p.reportLexErr()
			return nil, false
		}
		if tok.Kind == lexer.TokenEOF {
			break
		}

		c, ok := p.parseConst()
		if !ok {
			return nil, false
		}
		consts = append(consts, c)
	}

	if p.failed {
		return nil, false
	}
	return &ast.Ast{Consts: consts}, true
}

func (p *Parser) parseConst() (*ast.Const, bool) {
	identTok, ok := p.expect(lexer.TokenIdent)
	if !ok {
		return nil, false
	}
	if _, ok := p.expect(lexer.TokenDoubleColon); !ok {
		return nil, false
	}

	tok, ok := p.lex.Peek()
	if !ok {
		if tok.Kind == lexer.TokenEOF {
			p.unexpectedEOF(lexer.TokenProc)
		} else {
			p.reportLexErr()
		}
		return nil, false
	}

	switch tok.Kind {
	case lexer.TokenProc:
		return p.parseProcConst(identTok)
	case lexer.TokenString:
		p.lex.Next()
		if _, ok := p.expect(lexer.TokenSemicolon); !ok {
			return nil, false
		}
		return &ast.Const{
			Ident:  identTok.Literal,
			Kind:   ast.ConstString,
			String: lexer.StringContents(tok.Literal),
			Span:   spanOf(identTok),
		}, true
	default:
		expr, ok := p.parseExpression()
		if !ok {
			return nil, false
		}
		if _, ok := p.expect(lexer.TokenSemicolon); !ok {
			return nil, false
		}
		return &ast.Const{
			Ident: identTok.Literal,
			Kind:  ast.ConstExpr,
			Expr:  expr,
			Span:  spanOf(identTok),
		}, true
	}
}

func (p *Parser) parseProcConst(identTok lexer.Token) (*ast.Const, bool) {
	if _, ok := p.expect(lexer.TokenProc); !ok {
		return nil, false
	}
	if _, ok := p.expect(lexer.TokenLParen); !ok {
		return nil, false
	}
	if _, ok := p.expect(lexer.TokenRParen); !ok {
		return nil, false
	}

	tok, ok := p.lex.Peek()
	if !ok {
		if tok.Kind == lexer.TokenEOF {
			p.unexpectedEOF(lexer.TokenLBrace)
		} else {
			p.reportLexErr()
		}
		return nil, false
	}

	if tok.Kind == lexer.TokenSemicolon {
		p.lex.Next()
		return &ast.Const{Ident: identTok.Literal, Kind: ast.ConstProcDecl, Span: spanOf(identTok)}, true
	}

	if _, ok := p.expect(lexer.TokenLBrace); !ok {
		return nil, false
	}
	stmts, ok := p.parseStmtList(lexer.TokenRBrace)
	if !ok {
		return nil, false
	}

	// ';' is optional immediately after the closing '}'.
	if t, ok := p.lex.Peek(); ok && t.Kind == lexer.TokenSemicolon {
		p.lex.Next()
	}

	return &ast.Const{
		Ident: identTok.Literal,
		Kind:  ast.ConstProc,
		Proc:  &ast.Proc{Stmts: stmts},
		Span:  spanOf(identTok),
	}, true
}

// parseStmtList parses statements until end is seen, consuming end.
func (p *Parser) parseStmtList(end lexer.TokenKind) ([]ast.Stmt, bool) {
	var stmts []ast.Stmt
	for {
		tok, ok := p.lex.Peek()
		if !ok {
			if tok.Kind == lexer.TokenEOF {
				p.unexpectedEOF(end)
			} else {
				p.reportLexErr()
			}
			return nil, false
		}
		if tok.Kind == end {
			p.lex.Next()
			return stmts, true
		}
		stmt, ok := p.parseStmt()
		if !ok {
			return nil, false
		}
		stmts = append(stmts, stmt)
	}
}

func (p *Parser) parseStmt() (ast.Stmt, bool) {
	tok, ok := p.lex.Peek()
	if !ok {
		if tok.Kind == lexer.TokenEOF {
			p.unexpectedEOF(lexer.TokenSemicolon)
		} else {
			p.reportLexErr()
		}
		return nil, false
	}

	switch tok.Kind {
	case lexer.TokenReturn:
		return p.parseReturn()
	case lexer.TokenIf:
		chain, ok := p.parseIfChain()
		if !ok {
			return nil, false
		}
		return &ast.If{Chain: chain}, true
	case lexer.TokenIdent:
		next, nok := p.lex.PeekN(2)
		if nok && next.Kind == lexer.TokenColonEquals {
			return p.parseLet()
		}
		if nok && next.Kind == lexer.TokenEquals {
			return p.parseAssign()
		}
		return p.parseExprStmt()
	default:
		return p.parseExprStmt()
	}
}

func (p *Parser) parseReturn() (ast.Stmt, bool) {
	if _, ok := p.expect(lexer.TokenReturn); !ok {
		return nil, false
	}
	tok, ok := p.lex.Peek()
	if ok && tok.Kind == lexer.TokenSemicolon {
		p.lex.Next()
		return &ast.Return{}, true
	}
	if !ok && tok.Kind == lexer.TokenEOF {
		p.unexpectedEOF(lexer.TokenSemicolon)
		return nil, false
	}
	expr, ok := p.parseExpression()
	if !ok {
		return nil, false
	}
	if _, ok := p.expect(lexer.TokenSemicolon); !ok {
		return nil, false
	}
	return &ast.Return{Expr: expr}, true
}

func (p *Parser) parseLet() (ast.Stmt, bool) {
	identTok, ok := p.expect(lexer.TokenIdent)
	if !ok {
		return nil, false
	}
	if _, ok := p.expect(lexer.TokenColonEquals); !ok {
		return nil, false
	}
	expr, ok := p.parseExpression()
	if !ok {
		return nil, false
	}
	if _, ok := p.expect(lexer.TokenSemicolon); !ok {
		return nil, false
	}
	return &ast.Let{Ident: identTok.Literal, Expr: expr, Span: spanOf(identTok)}, true
}

func (p *Parser) parseAssign() (ast.Stmt, bool) {
	identTok, ok := p.expect(lexer.TokenIdent)
	if !ok {
		return nil, false
	}
	if _, ok := p.expect(lexer.TokenEquals); !ok {
		return nil, false
	}
	expr, ok := p.parseExpression()
	if !ok {
		return nil, false
	}
	if _, ok := p.expect(lexer.TokenSemicolon); !ok {
		return nil, false
	}
	return &ast.Assign{Ident: identTok.Literal, Expr: expr, Span: spanOf(identTok)}, true
}

func (p *Parser) parseExprStmt() (ast.Stmt, bool) {
	expr, ok := p.parseExpression()
	if !ok {
		return nil, false
	}
	if _, ok := p.expect(lexer.TokenSemicolon); !ok {
		return nil, false
	}
	return &ast.ExprStmt{Expr: expr}, true
}

// parseIfChain parses `if expr { stmt* } ( else if expr { stmt* } )* ( else { stmt* } )?`
// with an optional trailing ';'.
func (p *Parser) parseIfChain() (ast.IfChain, bool) {
	var chain ast.IfChain

	first, ok := p.parseBranch()
	if !ok {
		return chain, false
	}
	chain.Branches = append(chain.Branches, first)

	for {
		tok, ok := p.lex.Peek()
		if !ok || tok.Kind != lexer.TokenElse {
			break
		}
		p.lex.Next()

		next, nok := p.lex.Peek()
		if nok && next.Kind == lexer.TokenIf {
			branch, ok := p.parseBranch()
			if !ok {
				return chain, false
			}
			chain.Branches = append(chain.Branches, branch)
			continue
		}

		if _, ok := p.expect(lexer.TokenLBrace); !ok {
			return chain, false
		}
		body, ok := p.parseStmtList(lexer.TokenRBrace)
		if !ok {
			return chain, false
		}
		chain.HasElse = true
		chain.ElseBody = body
		break
	}

	// The trailing ';' after an if statement is optional.
	if tok, ok := p.lex.Peek(); ok && tok.Kind == lexer.TokenSemicolon {
		p.lex.Next()
	}

	return chain, true
}

func (p *Parser) parseBranch() (ast.Branch, bool) {
	var branch ast.Branch
	if _, ok := p.expect(lexer.TokenIf); !ok {
		return branch, false
	}
	cond, ok := p.parseExpression()
	if !ok {
		return branch, false
	}
	if _, ok := p.expect(lexer.TokenLBrace); !ok {
		return branch, false
	}
	body, ok := p.parseStmtList(lexer.TokenRBrace)
	if !ok {
		return branch, false
	}
	branch.Cond = cond
	branch.Body = body
	return branch, true
}
