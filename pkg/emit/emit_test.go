package emit

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kristofer/sigil/pkg/diag"
	"github.com/kristofer/sigil/pkg/lexer"
	"github.com/kristofer/sigil/pkg/parser"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, src string) (string, *diag.Diagnostics) {
	t.Helper()
	var buf bytes.Buffer
	d := diag.New(&buf, src)
	root, ok := parser.ParseAst(lexer.New(src), d)
	require.True(t, ok, "parse failed: %s", buf.String())
	out, ok := Emit(root, d)
	if !ok {
		return "", d
	}
	return out, d
}

// S1 — Integer constant + return.
func TestIntegerConstantAndReturn(t *testing.T) {
	out, d := compile(t, "main :: proc() { return 42; }")
	require.False(t, d.Failed())
	require.Contains(t, out, "export function l $main")
	require.Contains(t, out, "%t_0 =l copy 42")
	require.Contains(t, out, "ret %t_0")
}

// S2 — Let and arithmetic: multiplication temp precedes addition temp,
// x is stored to an alloc8 cell, and the return path loads it.
func TestLetAndArithmeticOrdering(t *testing.T) {
	out, d := compile(t, "main :: proc() { x := 2 + 3 * 4; return x; }")
	require.False(t, d.Failed())
	mulIdx := indexOf(t, out, "=l mul")
	addIdx := indexOf(t, out, "=l add")
	require.Less(t, mulIdx, addIdx, "multiplication temp must be emitted before addition temp")
	require.Contains(t, out, "%x =l alloc8 8")
	require.Contains(t, out, "%t_5 =l copy %x\n\t%t_6 =l loadl %t_5\n\tret %t_6")
}

// S3 — Global integer reference: data item emitted, load on use.
func TestGlobalIntegerReference(t *testing.T) {
	out, d := compile(t, "K :: 7; main :: proc() { return K; }")
	require.False(t, d.Failed())
	require.Contains(t, out, "data $K = { l 7 }")
	require.Contains(t, out, "copy $K")
	require.Contains(t, out, "loadl")
}

// S4 — If/else if/else chain: one jnz per conditional branch (two here),
// one join label (@L_0, allocated first) reached by one jmp per arm.
func TestIfElseIfElseChain(t *testing.T) {
	out, d := compile(t, `main :: proc() {
		if 1 { return 1; } else if 0 { return 2; } else { return 3; };
	}`)
	require.False(t, d.Failed())
	require.Equal(t, 2, count(out, "jnz"))
	require.Equal(t, 3, count(out, "jmp @L_"))
	require.Equal(t, 1, count(out, "\n@L_0\n"))
}

// S5 — Undefined identifier.
func TestUndefinedIdentifierFails(t *testing.T) {
	_, d := compile(t, "main :: proc() { return zzz; }")
	require.True(t, d.Failed())
}

// S6 — A global Expr referencing another identifier is rejected (the
// literal-only rule for Expr-kind constants subsumes this cycle case).
func TestExprGlobalReferencingAnotherIsRejected(t *testing.T) {
	_, d := compile(t, "A :: B; B :: A; main :: proc() { return A; }")
	require.True(t, d.Failed())
}

func TestRedefinitionInSameScopeFails(t *testing.T) {
	_, d := compile(t, "main :: proc() { x := 1; x := 2; return x; }")
	require.True(t, d.Failed())
}

func TestShadowingInNestedScopeSucceeds(t *testing.T) {
	out, d := compile(t, `main :: proc() {
		x := 1;
		if 1 { x := 2; return x; };
		return x;
	}`)
	require.False(t, d.Failed())
	require.NotEmpty(t, out)
}

func TestStringConstant(t *testing.T) {
	out, d := compile(t, `greeting :: "hi"; main :: proc() { return 0; }`)
	require.False(t, d.Failed())
	require.Contains(t, out, `data $greeting = { b "hi", b 0 }`)
}

func TestProcDeclEmitsNothing(t *testing.T) {
	out, d := compile(t, "helper :: proc(); main :: proc() { return 0; }")
	require.False(t, d.Failed())
	require.NotContains(t, out, "$helper")
}

func TestFunctionCallEmission(t *testing.T) {
	out, d := compile(t, `
		add1 :: proc() { return 1; };
		main :: proc() { return add1(); }
	`)
	require.False(t, d.Failed())
	require.Contains(t, out, "=l call")
}

// A constant referenced before its own declaration in source order must
// be fully emitted, braces and all, above the constant that forces it —
// not spliced into the middle of that constant's own body.
func TestForwardReferenceHoistsDependencyBeforeCaller(t *testing.T) {
	out, d := compile(t, `
		main :: proc() { return add1(); }
		add1 :: proc() { return 1; };
	`)
	require.False(t, d.Failed())

	mainIdx := indexOf(t, out, "export function l $main")
	add1Idx := indexOf(t, out, "export function l $add1")
	require.Less(t, add1Idx, mainIdx, "add1 must be hoisted above main, which forces its emission")

	closeOffset := strings.Index(out[mainIdx:], "\n}\n")
	require.NotEqual(t, -1, closeOffset)
	mainBody := out[mainIdx+len("export function l $main") : mainIdx+closeOffset]
	require.NotContains(t, mainBody, "export function", "add1's body must not be nested inside main's braces")
}

func indexOf(t *testing.T, haystack, needle string) int {
	t.Helper()
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	t.Fatalf("expected to find %q in output:\n%s", needle, haystack)
	return -1
}

func count(haystack, needle string) int {
	n := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			n++
		}
	}
	return n
}
