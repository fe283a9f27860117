package parse

import (
	"sort"

	"github.com/roach88/ccbind/internal/ir"
	"github.com/roach88/ccbind/internal/span"
)

// NodeKind classifies arena nodes.
type NodeKind string

const (
	NodeTranslationUnit NodeKind = "translation_unit"
	NodeFunction        NodeKind = "function"
	NodeStruct          NodeKind = "struct"
	NodeUnion           NodeKind = "union"
	NodeEnum            NodeKind = "enum"
	NodeEnumerator      NodeKind = "enumerator"
	NodeField           NodeKind = "field"
	NodeParam           NodeKind = "param"
	NodeTypedef         NodeKind = "typedef"
	NodeGlobal          NodeKind = "global"
	NodeNamespace       NodeKind = "namespace"
)

// DerivKind is one type-constructor step applied over a base type.
type DerivKind string

const (
	DerivPointer  DerivKind = "pointer"
	DerivArray    DerivKind = "array"
	DerivFunction DerivKind = "function"
)

// Deriv is one derivation step. Len is the element count for arrays
// (-1 when the bracket is empty or the size is not an integer literal).
type Deriv struct {
	Kind DerivKind
	Len  int64
}

// TypeExpr is a compact type expression: a base spelling plus derivation
// steps in semantic order, outermost constructor first. "int *x[3]" gives
// Base "int", Derivs [array 3, pointer]: x is an array of 3 pointers to
// int. "int (*x)[3]" gives [pointer, array 3]: a pointer to an array.
type TypeExpr struct {
	Base string

	// Inline points at the arena node of a record or enum defined inline
	// in this type position ("struct { int x; } s;"). NodeNone when the
	// base is a plain spelling.
	Inline ir.NodeID

	Derivs    []Deriv
	Reference bool // C++ reference (outermost)
}

// Named reports whether the base refers to something by name rather than
// an inline definition.
func (t *TypeExpr) Named() bool {
	return t.Inline == ir.NodeNone
}

// Node is one record in a tree's arena. Nodes are immutable after the
// arena is built; they are addressed by ir.NodeID and shared across
// generations of the same content, so nothing may write to them.
type Node struct {
	Kind     NodeKind
	Name     string // unqualified name; "" for anonymous
	QName    string // namespace-qualified name; equal to Name outside namespaces
	Parent   ir.NodeID
	Children []ir.NodeID
	Span     span.SpanID

	// Type is the return type for functions, the declared type for
	// fields/params/globals, and the target type for typedefs.
	Type *TypeExpr

	Variadic bool   // functions: trailing ellipsis
	BitWidth int64  // fields: bit-field width; 0 = plain member
	Value    int64  // enumerators
	Template bool   // declared inside a template declaration
	NonPOD   string // records: non-empty names why the record is not plain data
}

// Tree is one parsed header: an owned arena of nodes plus the name index
// built during extraction. Immutable. The Gen token identifies this parse
// instance; reissues of identical content share the arena under fresh
// generations.
type Tree struct {
	Gen         string
	Path        string
	Lang        Language
	ContentHash string
	File        span.FileID

	nodes []Node
	index map[string][]ir.NodeID
}

// Root returns the translation unit node id.
func (t *Tree) Root() ir.NodeID { return 0 }

// Len returns the arena size.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns the arena node for id. The returned pointer aliases the
// shared arena; treat it as read-only.
func (t *Tree) Node(id ir.NodeID) (*Node, bool) {
	if int(id) >= len(t.nodes) {
		return nil, false
	}
	return &t.nodes[id], true
}

// LookupName returns every declaration indexed under the exact qualified
// name, in source order. Records are indexed under both their bare tag
// ("Point") and the elaborated spelling ("struct Point"); nothing else is
// aliased.
func (t *Tree) LookupName(qname string) []ir.NodeID {
	ids := t.index[qname]
	if len(ids) == 0 {
		return nil
	}
	out := make([]ir.NodeID, len(ids))
	copy(out, ids)
	return out
}

// DeclNames returns every indexed name, sorted. Intended for tests and
// "did you mean" style host tooling.
func (t *Tree) DeclNames() []string {
	names := make([]string, 0, len(t.index))
	for name := range t.index {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// withGeneration reissues the tree under a new generation token. The
// arena and index are shared: both are immutable after extraction.
func (t *Tree) withGeneration(gen string) *Tree {
	out := *t
	out.Gen = gen
	return &out
}
