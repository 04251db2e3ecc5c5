package emit

import "github.com/kristofer/sigil/pkg/ast"

// VarFlags is a bitset recording a Variable's emission state. It is kept
// as a single bitset rather than separate booleans because every lookup
// must read and possibly mutate all four bits atomically with respect to
// the recursive dependency-resolution it participates in (spec.md §9).
type VarFlags uint8

const (
	FlagGlobal VarFlags = 1 << iota
	FlagVisiting
	FlagVisited
	FlagLoad
)

func (f VarFlags) has(bit VarFlags) bool { return f&bit != 0 }

// Variable is a scope entry: a name bound either to a global constant
// (Global != nil) or to a local stack slot/temporary.
type Variable struct {
	Ident  string
	Flags  VarFlags
	Global *ast.Const // non-nil only when Flags has FlagGlobal
}

// Scope is one level of lexical nesting: a map from identifier to
// Variable plus a parent pointer. Scopes are created and torn down in
// LIFO order matching block structure, mirroring spec.md §5's resource
// discipline even though Go's GC makes explicit destruction unnecessary.
type Scope struct {
	members map[string]*Variable
	parent  *Scope
}

// NewScope creates a child scope of parent (nil for the global scope).
func NewScope(parent *Scope) *Scope {
	return &Scope{members: make(map[string]*Variable), parent: parent}
}

// GetImmediate looks up ident only in this scope, not its ancestors.
// Used by Let to enforce "no redefinition within the same scope".
func (s *Scope) GetImmediate(ident string) (*Variable, bool) {
	v, ok := s.members[ident]
	return v, ok
}

// Get resolves ident by walking from this scope up through its parents,
// implementing lexical shadowing: the innermost definition wins.
func (s *Scope) Get(ident string) (*Variable, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.members[ident]; ok {
			return v, true
		}
	}
	return nil, false
}

// Set inserts or overwrites a binding in this scope.
func (s *Scope) Set(v *Variable) {
	s.members[v.Ident] = v
}
