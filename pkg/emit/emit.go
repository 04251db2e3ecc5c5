// Package emit lowers a parsed *ast.Ast into textual SSA-style assembly
// suitable for a downstream code generator (see cmd/sigil). It maintains
// lexical scope chains, resolves top-level constant dependencies in
// topological order with cycle detection, and allocates per-procedure
// temporary and label ids with correct load/store discipline for
// mutable locals.
package emit

import (
	"fmt"
	"strings"

	"github.com/kristofer/sigil/pkg/ast"
	"github.com/kristofer/sigil/pkg/diag"
)

// temp is a reference to an emitted SSA temporary. load mirrors the
// FlagLoad bit: a temp with load=true holds the *address* of a value and
// must be dereferenced with loadl before use.
type temp struct {
	id   uint64
	load bool
}

// Emitter walks the AST and writes SSA text to out. t and l are the
// per-procedure temporary and label counters; both reset to 0 at the
// start of every top-level constant's emission (spec.md §3's EmitCtx).
//
// out accumulates only completed constant bodies; cur is the buffer the
// constant currently being emitted writes into. A forced dependency
// (resolveIdent -> ensureEmitted on a not-yet-VISITED global) gets its
// own nested buffer and is appended to out as soon as it completes,
// ahead of the dependent constant's own buffer — this is what keeps a
// later-declared dependency's `data`/`export function` block from
// landing in the middle of the referencing procedure's braces, matching
// the original's two-level buffer scheme (emit.c:218, emit.c:258).
type Emitter struct {
	d      *diag.Diagnostics
	global *Scope
	scope  *Scope
	out    strings.Builder
	cur    *strings.Builder
	t      uint64
	l      uint64
	failed bool
}

// Emit lowers root to SSA text. On any semantic error it returns
// ("", false) and no partial IR; the caller (cmd/sigil) must not write
// the output file in that case.
func Emit(root *ast.Ast, d *diag.Diagnostics) (string, bool) {
	e := &Emitter{d: d}
	e.global = NewScope(nil)

	for _, c := range root.Consts {
		if _, exists := e.global.GetImmediate(c.Ident); exists {
			e.errorAt(c.Span, "redefinition of %q", c.Ident)
			return "", false
		}
		e.global.Set(&Variable{Ident: c.Ident, Flags: FlagGlobal, Global: c})
	}
	e.scope = e.global

	for _, c := range root.Consts {
		v, _ := e.global.GetImmediate(c.Ident)
		if v.Flags.has(FlagVisited) {
			continue
		}
		if !e.ensureEmitted(v) {
			return "", false
		}
	}

	if e.failed {
		return "", false
	}
	return e.out.String(), true
}

func (e *Emitter) errorAt(span ast.Span, format string, args ...any) {
	if e.failed {
		return
	}
	e.failed = true
	length := span.Len
	if length < 1 {
		length = 1
	}
	e.d.Error(diag.Pos{Line: span.Line, Column: span.Column}, length, 1, format, args...)
}

// ensureEmitted emits v's owning constant if it hasn't been already,
// implementing the white/gray/black cycle check: VISITING is gray, a
// lookup that finds a gray variable is a cycle.
func (e *Emitter) ensureEmitted(v *Variable) bool {
	if v.Flags.has(FlagVisited) {
		return true
	}
	if v.Flags.has(FlagVisiting) {
		e.errorAt(v.Global.Span, "dependency cycle involving %q", v.Ident)
		return false
	}

	v.Flags |= FlagVisiting

	savedScope, savedT, savedL, savedCur := e.scope, e.t, e.l, e.cur
	e.scope = e.global
	e.t, e.l = 0, 0
	var buf strings.Builder
	e.cur = &buf

	ok := e.emitConstantBody(v)

	e.scope, e.t, e.l, e.cur = savedScope, savedT, savedL, savedCur

	if !ok {
		return false
	}

	e.out.WriteString(buf.String())

	v.Flags &^= FlagVisiting
	v.Flags |= FlagVisited
	if v.Global.Kind == ast.ConstExpr {
		v.Flags |= FlagLoad
	}
	return true
}

func (e *Emitter) emitConstantBody(v *Variable) bool {
	c := v.Global
	switch c.Kind {
	case ast.ConstString:
		fmt.Fprintf(e.cur, "data $%s = { b \"%s\", b 0 }\n", c.Ident, c.String)
		return true

	case ast.ConstExpr:
		lit, ok := c.Expr.(*ast.Int)
		if !ok {
			e.errorAt(c.Expr.Span(), "expressions cannot be assigned to constants")
			return false
		}
		fmt.Fprintf(e.cur, "data $%s = { l %d }\n", c.Ident, lit.Value)
		return true

	case ast.ConstProc:
		fmt.Fprintf(e.cur, "export function l $%s ( ) {\n@start\n", c.Ident)
		e.scope = NewScope(e.scope)
		if !e.emitStmts(c.Proc.Stmts) {
			return false
		}
		e.cur.WriteString("}\n")
		return true

	case ast.ConstProcDecl:
		return true

	default:
		return false
	}
}

func (e *Emitter) emitStmts(stmts []ast.Stmt) bool {
	for _, s := range stmts {
		if !e.emitStmt(s) {
			return false
		}
	}
	return true
}

func (e *Emitter) emitStmt(s ast.Stmt) bool {
	switch st := s.(type) {
	case *ast.ExprStmt:
		_, ok := e.emitExpr(st.Expr)
		return ok

	case *ast.Return:
		if st.Expr == nil {
			e.cur.WriteString("\tret\n")
			return true
		}
		val, ok := e.emitExpr(st.Expr)
		if !ok {
			return false
		}
		val = e.materialize(val)
		fmt.Fprintf(e.cur, "\tret %%t_%d\n", val.id)
		return true

	case *ast.Let:
		return e.emitLet(st)

	case *ast.Assign:
		return e.emitAssign(st)

	case *ast.If:
		return e.emitIf(st.Chain)

	default:
		return false
	}
}

func (e *Emitter) emitLet(st *ast.Let) bool {
	if _, exists := e.scope.GetImmediate(st.Ident); exists {
		e.errorAt(st.Span, "redefinition of %q", st.Ident)
		return false
	}
	val, ok := e.emitExpr(st.Expr)
	if !ok {
		return false
	}
	fmt.Fprintf(e.cur, "\t%%%s =l alloc8 8\n", st.Ident)
	fmt.Fprintf(e.cur, "\tstorel %%t_%d, %%%s\n", val.id, st.Ident)
	e.scope.Set(&Variable{Ident: st.Ident, Flags: FlagLoad})
	return true
}

func (e *Emitter) emitAssign(st *ast.Assign) bool {
	v, ok := e.scope.Get(st.Ident)
	if !ok {
		e.errorAt(st.Span, "undefined identifier %q", st.Ident)
		return false
	}
	val, ok := e.emitExpr(st.Expr)
	if !ok {
		return false
	}
	sigil := "%"
	if v.Flags.has(FlagGlobal) {
		sigil = "$"
	}
	fmt.Fprintf(e.cur, "\tstorel %%t_%d, %s%s\n", val.id, sigil, v.Ident)
	return true
}

func (e *Emitter) emitIf(chain ast.IfChain) bool {
	final := e.l
	e.l++

	for _, br := range chain.Branches {
		condVal, ok := e.emitExpr(br.Cond)
		if !ok {
			return false
		}
		condVal = e.materialize(condVal)

		trueL, falseL := e.l, e.l+1
		e.l += 2

		fmt.Fprintf(e.cur, "\tjnz %%t_%d, @L_%d, @L_%d\n", condVal.id, trueL, falseL)
		fmt.Fprintf(e.cur, "@L_%d\n", trueL)

		saved := e.scope
		e.scope = NewScope(saved)
		ok = e.emitStmts(br.Body)
		e.scope = saved
		if !ok {
			return false
		}

		fmt.Fprintf(e.cur, "\tjmp @L_%d\n", final)
		fmt.Fprintf(e.cur, "@L_%d\n", falseL)
	}

	saved := e.scope
	e.scope = NewScope(saved)
	ok := e.emitStmts(chain.ElseBody)
	e.scope = saved
	if !ok {
		return false
	}

	fmt.Fprintf(e.cur, "\tjmp @L_%d\n", final)
	fmt.Fprintf(e.cur, "@L_%d\n", final)
	return true
}

func (e *Emitter) newTemp(load bool) temp {
	id := e.t
	e.t++
	return temp{id: id, load: load}
}

// materialize emits a loadl for t if it's LOAD-flagged, returning a
// fresh value-temp; otherwise returns t unchanged.
func (e *Emitter) materialize(t temp) temp {
	if !t.load {
		return t
	}
	nt := e.newTemp(false)
	fmt.Fprintf(e.cur, "\t%%t_%d =l loadl %%t_%d\n", nt.id, t.id)
	return nt
}

func (e *Emitter) resolveIdent(name string, span ast.Span) (*Variable, bool) {
	v, ok := e.scope.Get(name)
	if !ok {
		e.errorAt(span, "undefined identifier %q", name)
		return nil, false
	}
	if v.Flags.has(FlagGlobal) {
		if !e.ensureEmitted(v) {
			return nil, false
		}
	}
	return v, true
}

func (e *Emitter) emitExpr(expr ast.Expr) (temp, bool) {
	switch x := expr.(type) {
	case *ast.Int:
		t := e.newTemp(false)
		fmt.Fprintf(e.cur, "\t%%t_%d =l copy %d\n", t.id, x.Value)
		return t, true

	case *ast.Ident:
		v, ok := e.resolveIdent(x.Name, x.Loc)
		if !ok {
			return temp{}, false
		}
		sigil := "%"
		if v.Flags.has(FlagGlobal) {
			sigil = "$"
		}
		t := e.newTemp(v.Flags.has(FlagLoad))
		fmt.Fprintf(e.cur, "\t%%t_%d =l copy %s%s\n", t.id, sigil, v.Ident)
		return t, true

	case *ast.Call:
		return e.emitCall(x)

	case *ast.Operation:
		return e.emitOperation(x)

	default:
		return temp{}, false
	}
}

func (e *Emitter) emitCall(call *ast.Call) (temp, bool) {
	calleeVal, ok := e.emitExpr(call.Callee)
	if !ok {
		return temp{}, false
	}
	calleeVal = e.materialize(calleeVal)

	argVals := make([]temp, 0, len(call.Args))
	for _, arg := range call.Args {
		av, ok := e.emitExpr(arg)
		if !ok {
			return temp{}, false
		}
		argVals = append(argVals, e.materialize(av))
	}

	t := e.newTemp(false)
	var b strings.Builder
	fmt.Fprintf(&b, "\t%%t_%d =l call %%t_%d (", t.id, calleeVal.id)
	for i, av := range argVals {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, " l %%t_%d", av.id)
	}
	b.WriteString(" )\n")
	e.cur.WriteString(b.String())
	return t, true
}

func (e *Emitter) emitOperation(op *ast.Operation) (temp, bool) {
	if op.Op.IsUnary() {
		x, ok := e.emitExpr(op.Lhs)
		if !ok {
			return temp{}, false
		}
		x = e.materialize(x)
		t := e.newTemp(false)
		fmt.Fprintf(e.cur, "\t%%t_%d =l %s %%t_%d\n", t.id, op.Op.Opcode(), x.id)
		return t, true
	}

	lhs, ok := e.emitExpr(op.Lhs)
	if !ok {
		return temp{}, false
	}
	lhs = e.materialize(lhs)

	rhs, ok := e.emitExpr(op.Rhs)
	if !ok {
		return temp{}, false
	}
	rhs = e.materialize(rhs)

	t := e.newTemp(false)
	fmt.Fprintf(e.cur, "\t%%t_%d =l %s %%t_%d, %%t_%d\n", t.id, op.Op.Opcode(), lhs.id, rhs.id)
	return t, true
}
