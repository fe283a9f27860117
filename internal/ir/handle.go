package ir

import "fmt"

// AstID identifies one header lineage: the interned (path, flags) pair a
// parsed tree was produced from. The id is stable across reparses of the
// same lineage; the generation token distinguishes individual parses.
type AstID int32

// NodeID addresses one node inside a parsed tree's arena. Ids are assigned
// by a deterministic pre-order walk at parse time, so identical source
// yields identical ids. NodeID 0 is always the translation unit root.
type NodeID uint32

// NodeNone is the absent-node sentinel (no parent, no match).
const NodeNone NodeID = ^NodeID(0)

// DeclHandle identifies one declaration inside one generation of one parsed
// tree. A handle is invalidated when its tree is reparsed: the generation
// token of the superseding parse differs, and lookups through a stale
// handle fail rather than silently reading the wrong tree.
type DeclHandle struct {
	Ast  AstID  `json:"ast"`
	Gen  string `json:"gen"`
	Node NodeID `json:"node"`
}

// String renders the handle for logs and diagnostics.
func (h DeclHandle) String() string {
	return fmt.Sprintf("decl(ast=%d gen=%s node=%d)", h.Ast, h.Gen, h.Node)
}

func (h DeclHandle) canonicalMap() map[string]any {
	return map[string]any{
		"ast":  int64(h.Ast),
		"gen":  h.Gen,
		"node": int64(h.Node),
	}
}
