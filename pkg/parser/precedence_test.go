package parser

import (
	"bytes"
	"testing"

	"github.com/kristofer/sigil/pkg/ast"
	"github.com/kristofer/sigil/pkg/diag"
	"github.com/kristofer/sigil/pkg/lexer"
	"github.com/stretchr/testify/require"
)

func parseExprOnly(t *testing.T, src string) ast.Expr {
	t.Helper()
	var buf bytes.Buffer
	d := diag.New(&buf, src)
	p := New(lexer.New(src), d)
	expr, ok := p.parseExpression()
	require.True(t, ok, "parse failed: %s", buf.String())
	return expr
}

// TestOperatorPrecedence checks that `x + y * z` parses as `x + (y * z)`,
// the testable property spec.md §8 states directly: for prec(a) > prec(b),
// `x b y a z` parses as `x b (y a z)`.
func TestOperatorPrecedence(t *testing.T) {
	expr := parseExprOnly(t, "1 + 2 * 3")

	top, ok := expr.(*ast.Operation)
	require.True(t, ok)
	require.Equal(t, ast.OpAdd, top.Op)

	lhs, ok := top.Lhs.(*ast.Int)
	require.True(t, ok)
	require.EqualValues(t, 1, lhs.Value)

	rhs, ok := top.Rhs.(*ast.Operation)
	require.True(t, ok, "expected rhs to be the nested multiplication")
	require.Equal(t, ast.OpMul, rhs.Op)
}

func TestLeftAssociativity(t *testing.T) {
	expr := parseExprOnly(t, "1 - 2 - 3")

	top, ok := expr.(*ast.Operation)
	require.True(t, ok)
	require.Equal(t, ast.OpSub, top.Op)

	lhs, ok := top.Lhs.(*ast.Operation)
	require.True(t, ok, "expected left-associative grouping ((1 - 2) - 3)")
	require.Equal(t, ast.OpSub, lhs.Op)
}

func TestUnaryNegationBindsTighterThanBinary(t *testing.T) {
	expr := parseExprOnly(t, "-1 + 2")

	top, ok := expr.(*ast.Operation)
	require.True(t, ok)
	require.Equal(t, ast.OpAdd, top.Op)

	lhs, ok := top.Lhs.(*ast.Operation)
	require.True(t, ok)
	require.Equal(t, ast.OpNeg, lhs.Op)
	require.Nil(t, lhs.Rhs)
}

func TestParenthesesOverridePrecedence(t *testing.T) {
	expr := parseExprOnly(t, "(1 + 2) * 3")

	top, ok := expr.(*ast.Operation)
	require.True(t, ok)
	require.Equal(t, ast.OpMul, top.Op)

	lhs, ok := top.Lhs.(*ast.Operation)
	require.True(t, ok)
	require.Equal(t, ast.OpAdd, lhs.Op)
}

func TestFunctionCallParsing(t *testing.T) {
	expr := parseExprOnly(t, "foo(1, 2 + 3)")

	call, ok := expr.(*ast.Call)
	require.True(t, ok)

	callee, ok := call.Callee.(*ast.Ident)
	require.True(t, ok)
	require.Equal(t, "foo", callee.Name)

	require.Len(t, call.Args, 2)
	require.IsType(t, &ast.Int{}, call.Args[0])
	require.IsType(t, &ast.Operation{}, call.Args[1])
}

func TestCommaOutsideCallIsError(t *testing.T) {
	var buf bytes.Buffer
	d := diag.New(&buf, "(1, 2)")
	p := New(lexer.New("(1, 2)"), d)
	_, ok := p.parseExpression()
	require.False(t, ok)
	require.True(t, d.Failed())
}

func TestStringInExpressionIsError(t *testing.T) {
	var buf bytes.Buffer
	d := diag.New(&buf, `"hi"`)
	p := New(lexer.New(`"hi"`), d)
	_, ok := p.parseExpression()
	require.False(t, ok)
	require.True(t, d.Failed())
}

func TestUnclosedBracketIsError(t *testing.T) {
	var buf bytes.Buffer
	d := diag.New(&buf, "(1 + 2")
	p := New(lexer.New("(1 + 2"), d)
	_, ok := p.parseExpression()
	require.False(t, ok)
	require.True(t, d.Failed())
}
