package parser

import (
	"github.com/kristofer/sigil/pkg/ast"
	"github.com/kristofer/sigil/pkg/lexer"
)

// exprState is the shunting-yard automaton's two live states (a third,
// stop, is not a value: the step functions signal it by returning
// cont=false, so the driving loop in parseExpression can simply break).
type exprState int

const (
	exprUnary exprState = iota
	exprBinary
)

type markerKind int

const (
	markerOp markerKind = iota
	markerLParen
	markerFunction
)

// opMarker is an entry on the operator stack: either a real operator
// awaiting its operands, or a bracket/call marker blocking pops until
// its matching close is seen.
type opMarker struct {
	kind markerKind
	op   ast.Op
	tok  lexer.Token
}

// parseExpression runs the shunting-yard algorithm described in
// spec.md §4.3: a two-state automaton over operand and operator stacks,
// terminating cleanly (without consuming) on any token it doesn't
// recognize as extending the expression.
func (p *Parser) parseExpression() (ast.Expr, bool) {
	var operands []ast.Expr
	var operators []opMarker

	state := exprUnary
	for {
		tok, ok := p.lex.Peek()
		if !ok && tok.Kind != lexer.TokenEOF {
			p.reportLexErr()
			return nil, false
		}

		var cont bool
		switch state {
		case exprUnary:
			state, cont = p.exprStepUnary(tok, ok, &operands, &operators)
		default:
			state, cont = p.exprStepBinary(tok, ok, &operands, &operators)
		}
		if p.failed {
			return nil, false
		}
		if !cont {
			break
		}
	}

	for len(operators) > 0 {
		m := operators[len(operators)-1]
		operators = operators[:len(operators)-1]
		if m.kind != markerOp {
			p.errorAt(m.tok, "unclosed bracket")
			return nil, false
		}
		if !popOperation(m, &operands) {
			p.errorAt(m.tok, "malformed expression")
			return nil, false
		}
	}

	if len(operands) != 1 || operands[0] == nil {
		tok, _ := p.lex.Peek()
		p.errorAt(tok, "expected an expression, got %s", tok.Kind)
		return nil, false
	}
	return operands[0], true
}

func spanUnion(a, b ast.Span) ast.Span {
	if a.Line != b.Line {
		return a
	}
	start := a.Column
	end := a.Column + a.Len
	if b.Column < start {
		start = b.Column
	}
	if b.Column+b.Len > end {
		end = b.Column + b.Len
	}
	return ast.Span{Line: a.Line, Column: start, Len: end - start}
}

// popOperation pops operands for marker m (one for unary, two for
// binary) and pushes the synthesized ast.Operation node.
func popOperation(m opMarker, operands *[]ast.Expr) bool {
	ops := *operands
	if m.op.IsUnary() {
		if len(ops) < 1 {
			return false
		}
		x := ops[len(ops)-1]
		ops = ops[:len(ops)-1]
		span := spanUnion(spanOf(m.tok), x.Span())
		*operands = append(ops, &ast.Operation{Op: m.op, Lhs: x, Loc: span})
		return true
	}
	if len(ops) < 2 {
		return false
	}
	rhs := ops[len(ops)-1]
	lhs := ops[len(ops)-2]
	ops = ops[:len(ops)-2]
	span := spanUnion(lhs.Span(), rhs.Span())
	*operands = append(ops, &ast.Operation{Op: m.op, Lhs: lhs, Rhs: rhs, Loc: span})
	return true
}

// pushOperatorWithPrecedence pops operators of greater-or-equal binding
// power off the stack (equal only for left-associative incoming ops)
// before pushing op, exactly as Dijkstra's shunting yard requires.
func (p *Parser) pushOperatorWithPrecedence(op ast.Op, tok lexer.Token, operands *[]ast.Expr, operators *[]opMarker) bool {
	ops := *operators
	for len(ops) > 0 {
		top := ops[len(ops)-1]
		if top.kind != markerOp {
			break
		}
		if top.op.Precedence() > op.Precedence() ||
			(top.op.Precedence() == op.Precedence() && op.IsLeftAssociative()) {
			ops = ops[:len(ops)-1]
			if !popOperation(top, operands) {
				p.errorAt(tok, "malformed expression")
				return false
			}
			continue
		}
		break
	}
	ops = append(ops, opMarker{kind: markerOp, op: op, tok: tok})
	*operators = ops
	return true
}

func binaryOpFor(kind lexer.TokenKind) (ast.Op, bool) {
	switch kind {
	case lexer.TokenEq, lexer.TokenNeq, lexer.TokenGt, lexer.TokenLt,
		lexer.TokenGte, lexer.TokenLte, lexer.TokenBOr, lexer.TokenXor,
		lexer.TokenAnd, lexer.TokenShl, lexer.TokenShr, lexer.TokenAdd,
		lexer.TokenSub, lexer.TokenMul, lexer.TokenDiv, lexer.TokenMod:
		return ast.Op(kind), true
	default:
		return 0, false
	}
}

func (p *Parser) exprStepUnary(tok lexer.Token, ok bool, operands *[]ast.Expr, operators *[]opMarker) (exprState, bool) {
	if !ok && tok.Kind == lexer.TokenEOF {
		return exprUnary, false
	}

	switch tok.Kind {
	case lexer.TokenInteger:
		p.lex.Next()
		val, err := lexer.ParseInt(tok.Literal)
		if err != nil {
			p.errorAt(tok, "integer literal out of range")
			return exprUnary, false
		}
		*operands = append(*operands, &ast.Int{Value: val, Loc: spanOf(tok)})
		return exprBinary, true

	case lexer.TokenIdent:
		p.lex.Next()
		*operands = append(*operands, &ast.Ident{Name: tok.Literal, Loc: spanOf(tok)})
		return exprBinary, true

	case lexer.TokenSub:
		p.lex.Next()
		if !p.pushOperatorWithPrecedence(ast.OpNeg, tok, operands, operators) {
			return exprUnary, false
		}
		return exprUnary, true

	case lexer.TokenLParen:
		p.lex.Next()
		*operators = append(*operators, opMarker{kind: markerLParen, tok: tok})
		return exprUnary, true

	case lexer.TokenRParen:
		// Only an empty argument list, `callee()`, closes a bracket here.
		ops := *operators
		if len(ops) == 0 || ops[len(ops)-1].kind != markerFunction {
			return exprUnary, false
		}
		p.lex.Next()
		*operators = ops[:len(ops)-1]
		return p.buildCall(ops[len(ops)-1], tok, operands)

	case lexer.TokenString:
		p.errorAt(tok, "use of string in expression")
		return exprUnary, false

	default:
		return exprUnary, false
	}
}

func (p *Parser) exprStepBinary(tok lexer.Token, ok bool, operands *[]ast.Expr, operators *[]opMarker) (exprState, bool) {
	if !ok && tok.Kind == lexer.TokenEOF {
		return exprBinary, false
	}

	if op, isBinary := binaryOpFor(tok.Kind); isBinary {
		p.lex.Next()
		if !p.pushOperatorWithPrecedence(op, tok, operands, operators) {
			return exprBinary, false
		}
		return exprUnary, true
	}

	switch tok.Kind {
	case lexer.TokenLParen:
		p.lex.Next()
		*operators = append(*operators, opMarker{kind: markerFunction, tok: tok})
		*operands = append(*operands, nil)
		return exprUnary, true

	case lexer.TokenRParen:
		p.lex.Next()
		return p.closeBracket(tok, operands, operators)

	case lexer.TokenComma:
		p.lex.Next()
		ops := *operators
		for {
			if len(ops) == 0 {
				p.errorAt(tok, "use of comma outside of function arguments")
				return exprBinary, false
			}
			top := ops[len(ops)-1]
			if top.kind == markerFunction {
				break
			}
			if top.kind == markerLParen {
				p.errorAt(tok, "tuples do not exist")
				return exprBinary, false
			}
			ops = ops[:len(ops)-1]
			if !popOperation(top, operands) {
				p.errorAt(tok, "malformed expression")
				return exprBinary, false
			}
		}
		*operators = ops
		return exprUnary, true

	default:
		return exprBinary, false
	}
}

// closeBracket handles a consumed ')': pop operators until a LPAREN or
// FUNCTION marker is exposed. A FUNCTION marker builds a Call node from
// the operands pushed since the marker.
func (p *Parser) closeBracket(rparen lexer.Token, operands *[]ast.Expr, operators *[]opMarker) (exprState, bool) {
	ops := *operators
	for {
		if len(ops) == 0 {
			p.errorAt(rparen, "unmatched ')'")
			return exprBinary, false
		}
		top := ops[len(ops)-1]
		ops = ops[:len(ops)-1]
		if top.kind == markerLParen {
			*operators = ops
			return exprBinary, true
		}
		if top.kind == markerFunction {
			*operators = ops
			return p.buildCall(top, rparen, operands)
		}
		if !popOperation(top, operands) {
			p.errorAt(rparen, "malformed expression")
			return exprBinary, false
		}
	}
}

func (p *Parser) buildCall(marker opMarker, rparen lexer.Token, operands *[]ast.Expr) (exprState, bool) {
	vals := *operands
	var args []ast.Expr
	for {
		if len(vals) == 0 {
			p.errorAt(marker.tok, "malformed function call")
			return exprBinary, false
		}
		top := vals[len(vals)-1]
		vals = vals[:len(vals)-1]
		if top == nil {
			break
		}
		args = append(args, top)
	}
	for i, j := 0, len(args)-1; i < j; i, j = i+1, j-1 {
		args[i], args[j] = args[j], args[i]
	}

	if len(vals) == 0 {
		p.errorAt(marker.tok, "malformed function call")
		return exprBinary, false
	}
	callee := vals[len(vals)-1]
	vals = vals[:len(vals)-1]

	span := spanUnion(callee.Span(), spanOf(rparen))
	*operands = append(vals, &ast.Call{Callee: callee, Args: args, Loc: span})
	return exprBinary, true
}
