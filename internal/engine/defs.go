package engine

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/ccbind/internal/diag"
	"github.com/roach88/ccbind/internal/ir"
	"github.com/roach88/ccbind/internal/parse"
	"github.com/roach88/ccbind/internal/resolve"
)

// lineageTable interns (path, flags) pairs as stable AstIDs. The id
// survives reparses of the lineage; only the generation token moves.
// Pairs are flattened to a separator-joined key so the generic interner
// can carry them; header paths and compiler flags never contain the
// separator byte.
type lineageTable struct {
	keys *ir.Interner[string]
}

type lineage struct {
	path  string
	flags []string
}

func newLineageTable() *lineageTable {
	return &lineageTable{keys: ir.NewInterner[string]()}
}

func lineageKey(path string, flags []string) string {
	if len(flags) == 0 {
		return path
	}
	return path + "\x1f" + strings.Join(flags, "\x1f")
}

func (t *lineageTable) intern(path string, flags []string) ir.AstID {
	return ir.AstID(t.keys.Intern(lineageKey(path, flags)))
}

func (t *lineageTable) lookup(id ir.AstID) (lineage, bool) {
	key, ok := t.keys.Lookup(int32(id))
	if !ok {
		return lineage{}, false
	}
	parts := strings.Split(key, "\x1f")
	if len(parts) == 1 {
		return lineage{path: key}, true
	}
	return lineage{path: parts[0], flags: parts[1:]}, true
}

// genIndex tracks which translate entries were produced under which tree
// generation, so a reparse can sweep the entries its new generation
// orphans. Swept entries would never be demanded again (new handles carry
// the new generation); the sweep just reclaims the memory promptly.
type genIndex struct {
	mu      sync.Mutex
	lastGen map[string]string   // parse fingerprint -> generation of its last tree
	byGen   map[string][]string // generation -> translate fingerprints
}

func newGenIndex() *genIndex {
	return &genIndex{
		lastGen: make(map[string]string),
		byGen:   make(map[string][]string),
	}
}

// supersede records that parseFP now yields gen and returns the translate
// fingerprints of the generation it replaced.
func (g *genIndex) supersede(parseFP, gen string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	old := g.lastGen[parseFP]
	g.lastGen[parseFP] = gen
	if old == "" || old == gen {
		return nil
	}
	stale := g.byGen[old]
	delete(g.byGen, old)
	return stale
}

// register records one translate entry under its handle's generation.
func (g *genIndex) register(gen, translateFP string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.byGen[gen] = append(g.byGen[gen], translateFP)
}

// Standard handlers. Each is a method so it reaches the session's loader,
// parser, and translator; the session registers them at construction.

func (s *Session) fileTextHandler(c *Ctx, q ir.Query) (any, []diag.Diagnostic, error) {
	path, ok := q.Key["path"].(string)
	if !ok {
		return nil, nil, newError(CodeInternal, q.String(), "malformed file_text key", nil)
	}
	data, err := s.loader.Load(path)
	if err != nil {
		return nil, nil, newError(CodeSourceUnavailable, q.String(), "", err)
	}
	c.Stamp(ir.ContentHash(data))
	return data, nil, nil
}

func (s *Session) parseHandler(c *Ctx, q ir.Query) (any, []diag.Diagnostic, error) {
	path, okPath := q.Key["path"].(string)
	flags, okFlags := q.Key["flags"].([]string)
	if !okPath || !okFlags {
		return nil, nil, newError(CodeInternal, q.String(), "malformed parse_header key", nil)
	}

	v, _, err := c.Get(ir.FileTextQuery(path))
	if err != nil {
		return nil, nil, err
	}
	src, _ := v.([]byte)

	tree, diags, err := s.parser.Parse(c, path, flags, src)
	if err != nil {
		return nil, nil, newError(CodeParseFailed, q.String(), "", err)
	}

	for _, fp := range s.gens.supersede(q.Fingerprint(), tree.Gen) {
		s.rt.Store().Remove(fp)
	}
	return tree, diags, nil
}

func (s *Session) resolveHandler(c *Ctx, q ir.Query) (any, []diag.Diagnostic, error) {
	astN, okAst := q.Key["ast"].(int64)
	name, okName := q.Key["name"].(string)
	if !okAst || !okName {
		return nil, nil, newError(CodeInternal, q.String(), "malformed resolve_name key", nil)
	}
	ast := ir.AstID(astN)
	lin, ok := s.lineages.lookup(ast)
	if !ok {
		return nil, nil, newError(CodeInternal, q.String(),
			fmt.Sprintf("unknown ast id %d", astN), nil)
	}

	v, _, err := c.Get(ir.ParseHeaderQuery(lin.path, lin.flags))
	if err != nil {
		return nil, nil, err
	}
	tree, _ := v.(*parse.Tree)

	handles, err := resolve.Handles(tree, ast, name)
	if err != nil {
		var nf *resolve.NotFoundError
		if errors.As(err, &nf) {
			return nil, nil, newError(CodeNotFound, q.String(), "", err)
		}
		return nil, nil, newError(CodeInternal, q.String(), "", err)
	}
	return handles, nil, nil
}

func (s *Session) translateHandler(c *Ctx, q ir.Query) (any, []diag.Diagnostic, error) {
	h, ok := handleFromKey(q.Key)
	if !ok {
		return nil, nil, newError(CodeInternal, q.String(), "malformed translate key", nil)
	}
	lin, ok := s.lineages.lookup(h.Ast)
	if !ok {
		return nil, nil, newError(CodeInternal, q.String(),
			fmt.Sprintf("unknown ast id %d", h.Ast), nil)
	}

	v, _, err := c.Get(ir.ParseHeaderQuery(lin.path, lin.flags))
	if err != nil {
		return nil, nil, err
	}
	tree, _ := v.(*parse.Tree)

	if tree.Gen != h.Gen {
		return nil, nil, newError(CodeStaleHandle, q.String(),
			fmt.Sprintf("handle generation %s superseded by %s", h.Gen, tree.Gen), nil)
	}
	s.gens.register(h.Gen, q.Fingerprint())

	desc, diags, err := s.translator.Decl(tree, h.Node)
	if err != nil {
		return nil, diags, newError(CodeTranslateFailed, q.String(), "", err)
	}
	return desc, diags, nil
}

func handleFromKey(key map[string]any) (ir.DeclHandle, bool) {
	decl, ok := key["decl"].(map[string]any)
	if !ok {
		return ir.DeclHandle{}, false
	}
	ast, okAst := decl["ast"].(int64)
	gen, okGen := decl["gen"].(string)
	node, okNode := decl["node"].(int64)
	if !okAst || !okGen || !okNode {
		return ir.DeclHandle{}, false
	}
	return ir.DeclHandle{Ast: ir.AstID(ast), Gen: gen, Node: ir.NodeID(node)}, true
}
