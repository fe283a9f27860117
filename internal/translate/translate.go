package translate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/ccbind/internal/diag"
	"github.com/roach88/ccbind/internal/ir"
	"github.com/roach88/ccbind/internal/parse"
	"github.com/roach88/ccbind/internal/span"
)

// Error is a translation failure for one declaration: the construct is
// real and was understood, but no faithful descriptor can be produced
// for it. The Code is a diagnostic code; Diagnostic converts the error
// for aggregation so one failed declaration never aborts its siblings.
type Error struct {
	Code string
	Name string
	Span span.SpanID
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("translate %s: %s", e.Name, e.Msg)
}

// Diagnostic renders the failure as an error-severity diagnostic.
func (e *Error) Diagnostic() diag.Diagnostic {
	return diag.Errorf(e.Code, e.Span, "%s: %s", e.Name, e.Msg)
}

// IsUnsupportedSignature reports whether err is a signature rejection
// (variadic functions, conventions the translator will not guess at).
func IsUnsupportedSignature(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Code == diag.CodeUnsupportedSignature
}

// IsUnsupportedConstruct reports whether err rejects a language construct
// (templates, non-trivial classes, incomplete types).
func IsUnsupportedConstruct(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Code == diag.CodeUnsupportedConstruct
}

func unsupportedSignature(name string, sp span.SpanID, format string, args ...any) *Error {
	return &Error{Code: diag.CodeUnsupportedSignature, Name: name, Span: sp, Msg: fmt.Sprintf(format, args...)}
}

func unsupportedConstruct(name string, sp span.SpanID, format string, args ...any) *Error {
	return &Error{Code: diag.CodeUnsupportedConstruct, Name: name, Span: sp, Msg: fmt.Sprintf(format, args...)}
}

// Translator maps resolved declarations to binding descriptors under one
// target profile. Stateless between calls and safe for concurrent use.
type Translator struct {
	profile *Profile
}

// New builds a Translator. A nil profile selects the default (LP64).
func New(profile *Profile) *Translator {
	if profile == nil {
		profile = DefaultProfile()
	}
	return &Translator{profile: profile}
}

// Profile returns the active target profile.
func (t *Translator) Profile() *Profile { return t.profile }

// Decl translates one declaration node into a binding descriptor.
//
// The returned diagnostics are warnings attached to a successful
// translation (approximate layouts). A non-nil error means no descriptor:
// semantic rejections are *Error; anything else is an internal fault.
func (t *Translator) Decl(tree *parse.Tree, id ir.NodeID) (*ir.BindingDescriptor, []diag.Diagnostic, error) {
	n, ok := tree.Node(id)
	if !ok {
		return nil, nil, fmt.Errorf("translate: no node %d in tree %s", id, tree.Gen)
	}

	w := &walker{
		profile:  t.profile,
		tree:     tree,
		visiting: make(map[ir.NodeID]bool),
	}

	var desc *ir.BindingDescriptor
	var err error
	switch n.Kind {
	case parse.NodeFunction:
		desc, err = w.function(n)
	case parse.NodeStruct, parse.NodeUnion, parse.NodeEnum, parse.NodeTypedef:
		desc, err = w.typeDecl(n, id)
	case parse.NodeGlobal:
		desc, err = w.global(n)
	default:
		err = unsupportedConstruct(n.QName, n.Span, "declaration kind %s cannot be bound", n.Kind)
	}
	if err != nil {
		return nil, nil, err
	}
	return desc, w.diags, nil
}

// walker carries the per-translation state: accumulated warnings and the
// set of records currently being laid out, which is how reference cycles
// are cut and value cycles are rejected.
type walker struct {
	profile  *Profile
	tree     *parse.Tree
	diags    []diag.Diagnostic
	visiting map[ir.NodeID]bool
	ptrDepth int
}

func (w *walker) warn(d diag.Diagnostic) {
	w.diags = append(w.diags, d)
}

func (w *walker) function(n *parse.Node) (*ir.BindingDescriptor, error) {
	if n.Template {
		return nil, unsupportedConstruct(n.QName, n.Span, "template function requires an instantiation")
	}
	if n.Variadic {
		return nil, unsupportedSignature(n.QName, n.Span, "variadic signature")
	}

	ret, err := w.typeOf(n.Type, n.QName, n.Span)
	if err != nil {
		return nil, err
	}
	switch ret.Kind {
	case ir.TypeArray:
		return nil, unsupportedSignature(n.QName, n.Span, "function returning an array")
	case ir.TypeOpaque:
		return nil, unsupportedConstruct(n.QName, n.Span, "return type %s is incomplete", ret.Name)
	}

	var params []ir.ParamDesc
	for _, childID := range n.Children {
		p, ok := w.tree.Node(childID)
		if !ok || p.Kind != parse.NodeParam {
			continue
		}

		expr := p.Type
		// Array parameters decay to pointers, exactly as the compiler
		// treats them.
		if len(expr.Derivs) > 0 && expr.Derivs[0].Kind == parse.DerivArray {
			decayed := *expr
			decayed.Derivs = append([]parse.Deriv{{Kind: parse.DerivPointer}}, expr.Derivs[1:]...)
			expr = &decayed
		}

		pd, err := w.typeOf(expr, n.QName, p.Span)
		if err != nil {
			return nil, err
		}
		if pd.Kind == ir.TypeOpaque {
			return nil, unsupportedConstruct(n.QName, p.Span,
				"parameter %q has incomplete type %s", p.Name, pd.Name)
		}

		pass := ir.PassByValue
		if p.Type.Reference {
			pass = ir.PassByPointer
		}
		params = append(params, ir.ParamDesc{Name: p.Name, Type: pd, Pass: pass})
	}

	return &ir.BindingDescriptor{
		Kind:       ir.DescFunction,
		Name:       n.QName,
		Convention: ir.CallCdecl,
		Params:     params,
		Return:     &ret,
	}, nil
}

func (w *walker) typeDecl(n *parse.Node, id ir.NodeID) (*ir.BindingDescriptor, error) {
	desc, err := w.typeDescOf(id)
	if err != nil {
		return nil, err
	}
	return &ir.BindingDescriptor{
		Kind: ir.DescType,
		Name: n.QName,
		Type: &desc,
	}, nil
}

func (w *walker) global(n *parse.Node) (*ir.BindingDescriptor, error) {
	desc, err := w.typeOf(n.Type, n.QName, n.Span)
	if err != nil {
		return nil, err
	}
	if desc.Kind == ir.TypeOpaque {
		return nil, unsupportedConstruct(n.QName, n.Span, "global has incomplete type %s", desc.Name)
	}
	if n.Template {
		return nil, unsupportedConstruct(n.QName, n.Span, "template variable requires an instantiation")
	}
	return &ir.BindingDescriptor{
		Kind: ir.DescGlobal,
		Name: n.QName,
		Type: &desc,
	}, nil
}

// typeOf materializes a type expression: resolve the base spelling, then
// apply derivation steps innermost-first. owner and sp locate errors.
func (w *walker) typeOf(expr *parse.TypeExpr, owner string, sp span.SpanID) (ir.TypeDesc, error) {
	if expr == nil {
		return ir.TypeDesc{Kind: ir.TypeVoid}, nil
	}

	// A base that only ever sits behind a pointer may refer back into a
	// record currently being laid out; layout cycles are legal there.
	if hasPointer(expr) {
		w.ptrDepth++
		defer func() { w.ptrDepth-- }()
	}

	var cur ir.TypeDesc
	var err error
	if expr.Inline != ir.NodeNone {
		cur, err = w.typeDescOf(expr.Inline)
	} else {
		cur, err = w.named(expr.Base, owner, sp)
	}
	if err != nil {
		return ir.TypeDesc{}, err
	}

	for i := len(expr.Derivs) - 1; i >= 0; i-- {
		d := expr.Derivs[i]
		switch d.Kind {
		case parse.DerivPointer:
			pointee := cur
			cur = ir.TypeDesc{
				Kind:    ir.TypePointer,
				Size:    w.profile.Pointer.Size,
				Align:   w.profile.Pointer.Align,
				Pointee: &pointee,
			}
		case parse.DerivArray:
			if cur.Kind == ir.TypeVoid {
				return ir.TypeDesc{}, unsupportedConstruct(owner, sp, "array of void")
			}
			if cur.Kind == ir.TypeOpaque {
				return ir.TypeDesc{}, unsupportedConstruct(owner, sp, "array of incomplete type %s", cur.Name)
			}
			elem := cur
			if d.Len < 0 {
				w.warn(diag.Warningf(diag.CodePartialLayout, sp,
					"%s: array size is not a constant the translator evaluates; layout is partial", owner))
				cur = ir.TypeDesc{
					Kind:          ir.TypeArray,
					Align:         elem.Align,
					Elem:          &elem,
					PartialLayout: true,
				}
			} else {
				cur = ir.TypeDesc{
					Kind:  ir.TypeArray,
					Size:  elem.Size * d.Len,
					Align: elem.Align,
					Elem:  &elem,
					Count: d.Len,
				}
			}
		case parse.DerivFunction:
			// A bare function type is only meaningful behind a pointer;
			// the pointer layer right above restores the sizes.
			cur = ir.TypeDesc{Kind: ir.TypeOpaque, Name: "function"}
		}
	}

	if expr.Reference {
		pointee := cur
		cur = ir.TypeDesc{
			Kind:    ir.TypePointer,
			Size:    w.profile.Pointer.Size,
			Align:   w.profile.Pointer.Align,
			Pointee: &pointee,
		}
	}
	return cur, nil
}

func hasPointer(expr *parse.TypeExpr) bool {
	if expr.Reference {
		return true
	}
	for _, d := range expr.Derivs {
		if d.Kind == parse.DerivPointer {
			return true
		}
	}
	return false
}

// named resolves a base type spelling: builtin scalars from the profile
// first, then declarations in the same tree, then opaque.
func (w *walker) named(base, owner string, sp span.SpanID) (ir.TypeDesc, error) {
	if base == "" {
		return ir.TypeDesc{Kind: ir.TypeOpaque}, nil
	}
	if base == "void" {
		return ir.TypeDesc{Kind: ir.TypeVoid}, nil
	}
	if s, canon, ok := w.profile.ScalarFor(base); ok {
		return ir.TypeDesc{
			Kind:  ir.TypeScalar,
			Name:  canon,
			Class: s.Class,
			Size:  s.Size,
			Align: s.Align,
		}, nil
	}

	for _, id := range w.tree.LookupName(base) {
		n, ok := w.tree.Node(id)
		if !ok {
			continue
		}
		switch n.Kind {
		case parse.NodeStruct, parse.NodeUnion, parse.NodeEnum, parse.NodeTypedef:
			return w.typeDescOf(id)
		}
	}

	if strings.ContainsAny(base, "<>") {
		return ir.TypeDesc{}, unsupportedConstruct(owner, sp, "template type %s requires an instantiation", base)
	}
	return ir.TypeDesc{Kind: ir.TypeOpaque, Name: base}, nil
}

// typeDescOf materializes a record, enum, or typedef declaration node as
// a full type descriptor.
func (w *walker) typeDescOf(id ir.NodeID) (ir.TypeDesc, error) {
	n, ok := w.tree.Node(id)
	if !ok {
		return ir.TypeDesc{}, fmt.Errorf("translate: dangling type reference to node %d", id)
	}

	if w.visiting[id] {
		// Back-edge. Behind a pointer this is an ordinary self-referential
		// type and the name alone suffices; by value it is an impossible
		// layout.
		if w.ptrDepth > 0 {
			return ir.TypeDesc{Kind: recordTypeKind(n.Kind), Name: n.QName}, nil
		}
		return ir.TypeDesc{}, unsupportedConstruct(n.QName, n.Span, "recursive value type")
	}
	w.visiting[id] = true
	defer delete(w.visiting, id)

	if n.Template {
		return ir.TypeDesc{}, unsupportedConstruct(n.QName, n.Span, "template type requires an instantiation")
	}

	switch n.Kind {
	case parse.NodeStruct, parse.NodeUnion:
		if n.NonPOD != "" {
			return ir.TypeDesc{}, unsupportedConstruct(n.QName, n.Span,
				"not a plain data type: %s", n.NonPOD)
		}
		return w.layoutRecord(n)
	case parse.NodeEnum:
		return w.enumDesc(n), nil
	case parse.NodeTypedef:
		target, err := w.typeOf(n.Type, n.QName, n.Span)
		if err != nil {
			return ir.TypeDesc{}, err
		}
		return ir.TypeDesc{
			Kind:   ir.TypeAlias,
			Name:   n.QName,
			Size:   target.Size,
			Align:  target.Align,
			Target: &target,
		}, nil
	default:
		return ir.TypeDesc{}, unsupportedConstruct(n.QName, n.Span, "not a type declaration")
	}
}

func recordTypeKind(k parse.NodeKind) ir.TypeKind {
	switch k {
	case parse.NodeUnion:
		return ir.TypeUnion
	case parse.NodeEnum:
		return ir.TypeEnum
	default:
		return ir.TypeStruct
	}
}

func (w *walker) enumDesc(n *parse.Node) ir.TypeDesc {
	var enums []ir.EnumeratorDesc
	for _, childID := range n.Children {
		c, ok := w.tree.Node(childID)
		if !ok || c.Kind != parse.NodeEnumerator {
			continue
		}
		enums = append(enums, ir.EnumeratorDesc{Name: c.Name, Value: c.Value})
	}
	return ir.TypeDesc{
		Kind:        ir.TypeEnum,
		Name:        n.QName,
		Size:        w.profile.Enum.Size,
		Align:       w.profile.Enum.Align,
		Enumerators: enums,
	}
}
