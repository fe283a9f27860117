// Package resolve maps qualified names to declarations inside one parsed
// header.
//
// Resolution is exact-match over the declaration namespace the parser
// indexed: functions, records, enums, typedefs, and globals, under their
// namespace-qualified names. Records answer to both their bare tag and
// the elaborated spelling ("Point" and "struct Point"). A name with
// several declarations - a C++ overload set, or a record/typedef pair
// sharing a tag - resolves to all of them in source order; choosing
// among overloads is the caller's problem, not resolution's.
package resolve

import (
	"fmt"

	"github.com/roach88/ccbind/internal/ir"
	"github.com/roach88/ccbind/internal/parse"
)

// NotFoundError reports a name with no declaration in the header. It is
// an expected outcome, not an engine failure: callers probe for names
// the header may or may not provide.
type NotFoundError struct {
	Name string
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no declaration named %q in %s", e.Name, e.Path)
}

// Decls returns the arena ids of every declaration matching the exact
// qualified name, in source order.
func Decls(tree *parse.Tree, name string) ([]ir.NodeID, error) {
	ids := tree.LookupName(name)
	if len(ids) == 0 {
		return nil, &NotFoundError{Name: name, Path: tree.Path}
	}
	return ids, nil
}

// Handles resolves name and binds each match to the tree's current
// generation. The resulting handles go stale the moment the header is
// reparsed; the engine detects that through the generation token rather
// than by chasing pointers into a dead arena.
func Handles(tree *parse.Tree, ast ir.AstID, name string) ([]ir.DeclHandle, error) {
	ids, err := Decls(tree, name)
	if err != nil {
		return nil, err
	}
	handles := make([]ir.DeclHandle, len(ids))
	for i, id := range ids {
		handles[i] = ir.DeclHandle{Ast: ast, Gen: tree.Gen, Node: id}
	}
	return handles, nil
}
