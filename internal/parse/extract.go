package parse

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/roach88/ccbind/internal/diag"
	"github.com/roach88/ccbind/internal/ir"
	"github.com/roach88/ccbind/internal/span"
)

// extractor builds a Tree arena from one tree-sitter parse. It walks the
// tree-sitter tree once, in source order, and never stores a tree-sitter
// node past the walk.
type extractor struct {
	src   []byte
	lang  Language
	file  span.FileID
	spans *span.Registry

	nodes []Node
	index map[string][]ir.NodeID
	diags []diag.Diagnostic
}

func extract(root *sitter.Node, src []byte, lang Language, file span.FileID, spans *span.Registry) ([]Node, map[string][]ir.NodeID, []diag.Diagnostic) {
	e := &extractor{
		src:   src,
		lang:  lang,
		file:  file,
		spans: spans,
		index: make(map[string][]ir.NodeID),
	}

	rootID := e.addNode(Node{
		Kind:   NodeTranslationUnit,
		Parent: ir.NodeNone,
		Span:   e.spanOf(root),
	})
	e.walkScope(root, rootID, "", false)

	return e.nodes, e.index, e.diags
}

func (e *extractor) text(n *sitter.Node) string {
	return string(e.src[n.StartByte():n.EndByte()])
}

func (e *extractor) spanOf(n *sitter.Node) span.SpanID {
	return e.spans.InternSpan(e.file, n.StartByte(), n.EndByte())
}

func (e *extractor) addNode(n Node) ir.NodeID {
	id := ir.NodeID(len(e.nodes))
	e.nodes = append(e.nodes, n)
	if n.Parent != ir.NodeNone {
		e.nodes[n.Parent].Children = append(e.nodes[n.Parent].Children, id)
	}
	return id
}

func (e *extractor) addDiag(d diag.Diagnostic) {
	e.diags = append(e.diags, d)
}

// indexUnder registers a declaration under its exact qualified name.
func (e *extractor) indexUnder(qname string, id ir.NodeID) {
	if qname == "" {
		return
	}
	e.index[qname] = append(e.index[qname], id)
}

// walkScope extracts the declarations of one scope: the translation unit,
// a namespace body, or an extern "C" block.
func (e *extractor) walkScope(scope *sitter.Node, parent ir.NodeID, prefix string, template bool) {
	for i := 0; i < int(scope.NamedChildCount()); i++ {
		e.dispatch(scope.NamedChild(i), parent, prefix, template)
	}
}

func (e *extractor) dispatch(child *sitter.Node, parent ir.NodeID, prefix string, template bool) {
	t := child.Type()

	if child.IsError() {
		e.addDiag(diag.Errorf(diag.CodeParse, e.spanOf(child),
			"unparsable region near %q", firstLine(e.text(child))))
		return
	}
	if t == "comment" {
		return
	}

	// Conditional preprocessor blocks contain ordinary declarations: an
	// include guard wraps the whole header. All branches are walked; the
	// guard condition itself is not.
	switch t {
	case "preproc_ifdef", "preproc_if", "preproc_else", "preproc_elif", "preproc_elifdef":
		name := child.ChildByFieldName("name")
		cond := child.ChildByFieldName("condition")
		for i := 0; i < int(child.NamedChildCount()); i++ {
			inner := child.NamedChild(i)
			if sameRange(inner, name) || sameRange(inner, cond) {
				continue
			}
			e.dispatch(inner, parent, prefix, template)
		}
		return
	}
	if strings.HasPrefix(t, "preproc") {
		return
	}

	switch t {
	case "function_definition", "declaration":
		if child.HasError() {
			e.addDiag(diag.Errorf(diag.CodeParse, e.spanOf(child),
				"declaration contains syntax errors: %q", firstLine(e.text(child))))
			return
		}
		e.handleDeclaration(child, parent, prefix, template)
	case "type_definition":
		if child.HasError() {
			e.addDiag(diag.Errorf(diag.CodeParse, e.spanOf(child),
				"typedef contains syntax errors: %q", firstLine(e.text(child))))
			return
		}
		e.handleTypedef(child, parent, prefix, template)
	case "struct_specifier", "union_specifier", "class_specifier":
		if child.ChildByFieldName("body") != nil {
			e.handleRecord(child, parent, prefix, template)
		}
	case "enum_specifier":
		if child.ChildByFieldName("body") != nil {
			e.handleEnum(child, parent, prefix, template)
		}
	case "namespace_definition":
		e.handleNamespace(child, parent, prefix)
	case "linkage_specification":
		// extern "C" { ... }: contents keep the surrounding scope's name
		// prefix; the convention is cdecl either way.
		for i := 0; i < int(child.NamedChildCount()); i++ {
			inner := child.NamedChild(i)
			if inner.Type() == "string_literal" {
				continue
			}
			if inner.Type() == "declaration_list" {
				e.walkScope(inner, parent, prefix, template)
			} else {
				e.dispatch(inner, parent, prefix, template)
			}
		}
	case "template_declaration":
		// The declaration inside is extracted normally but flagged: the
		// translator refuses non-concrete templates.
		for i := 0; i < int(child.NamedChildCount()); i++ {
			inner := child.NamedChild(i)
			switch inner.Type() {
			case "template_parameter_list", "comment":
			default:
				e.dispatch(inner, parent, prefix, true)
			}
		}
	default:
		// Expression statements, using declarations, attributes: nothing
		// bindable lives here.
	}
}

// handleNamespace recurses into a namespace body with an extended name
// prefix. Anonymous namespaces extend nothing.
func (e *extractor) handleNamespace(ns *sitter.Node, parent ir.NodeID, prefix string) {
	name := ""
	if nameNode := ns.ChildByFieldName("name"); nameNode != nil {
		name = e.text(nameNode)
	}

	id := e.addNode(Node{
		Kind:   NodeNamespace,
		Name:   name,
		QName:  prefix + name,
		Parent: parent,
		Span:   e.spanOf(ns),
	})

	inner := prefix
	if name != "" {
		inner = prefix + name + "::"
	}
	if body := ns.ChildByFieldName("body"); body != nil {
		e.walkScope(body, id, inner, false)
	}
}

// chainStep is one declarator layer collected while walking from the
// outermost declarator down to the identifier.
type chainStep struct {
	kind   DerivKind
	length int64
	params *sitter.Node // function steps: the parameter_list
}

// declarator walks a declarator chain and returns the declared name, the
// derivation steps in semantic order (outermost constructor first), and
// whether the outermost layer is a C++ reference.
func (e *extractor) declarator(d *sitter.Node) (name string, steps []chainStep, ref bool) {
	for d != nil {
		switch d.Type() {
		case "identifier", "field_identifier", "type_identifier", "operator_name", "destructor_name":
			name = e.text(d)
			d = nil
		case "pointer_declarator", "abstract_pointer_declarator":
			steps = append(steps, chainStep{kind: DerivPointer})
			d = declaratorChild(d)
		case "array_declarator", "abstract_array_declarator":
			length := int64(-1)
			if size := d.ChildByFieldName("size"); size != nil {
				if v, ok := e.intLiteral(size); ok {
					length = v
				}
			}
			steps = append(steps, chainStep{kind: DerivArray, length: length})
			d = declaratorChild(d)
		case "function_declarator", "abstract_function_declarator":
			steps = append(steps, chainStep{kind: DerivFunction, params: d.ChildByFieldName("parameters")})
			d = declaratorChild(d)
		case "parenthesized_declarator", "abstract_parenthesized_declarator":
			d = firstNamedChild(d)
		case "reference_declarator", "abstract_reference_declarator":
			ref = true
			d = firstNamedChild(d)
		case "init_declarator":
			d = d.ChildByFieldName("declarator")
		default:
			d = nil
		}
	}

	// The walk collects outermost-first in tree terms; C reads the other
	// way (brackets and parameter lists bind before stars), so reverse to
	// get semantic order: steps[0] is what the name IS.
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return name, steps, ref
}

func declaratorChild(d *sitter.Node) *sitter.Node {
	if c := d.ChildByFieldName("declarator"); c != nil {
		return c
	}
	return firstNamedChild(d)
}

func firstNamedChild(d *sitter.Node) *sitter.Node {
	if d.NamedChildCount() == 0 {
		return nil
	}
	return d.NamedChild(0)
}

func sameRange(a, b *sitter.Node) bool {
	return b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}

// derivs converts chain steps to Derivs, dropping parameter references.
func derivs(steps []chainStep) []Deriv {
	if len(steps) == 0 {
		return nil
	}
	out := make([]Deriv, len(steps))
	for i, s := range steps {
		out[i] = Deriv{Kind: s.kind, Len: s.length}
	}
	return out
}

// handleDeclaration extracts functions and file-scope variables from a
// declaration or function_definition node.
func (e *extractor) handleDeclaration(decl *sitter.Node, parent ir.NodeID, prefix string, template bool) {
	typeNode := decl.ChildByFieldName("type")
	if typeNode == nil {
		return
	}
	base, inline := e.baseType(typeNode, parent, prefix, template)

	declarators := declaratorNodes(decl)
	for _, d := range declarators {
		name, steps, ref := e.declarator(d)
		if len(steps) > 0 && steps[0].kind == DerivFunction {
			e.addFunction(decl, parent, name, base, inline, steps, prefix, template)
			continue
		}
		if name == "" {
			continue
		}
		id := e.addNode(Node{
			Kind:   NodeGlobal,
			Name:   name,
			QName:  prefix + name,
			Parent: parent,
			Span:   e.spanOf(d),
			Type: &TypeExpr{
				Base:      base,
				Inline:    inline,
				Derivs:    derivs(steps),
				Reference: ref,
			},
			Template: template,
		})
		e.indexUnder(prefix+name, id)
	}
}

// declaratorNodes collects the declarator children of a declaration,
// skipping type specifiers and qualifiers.
func declaratorNodes(decl *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		c := decl.NamedChild(i)
		switch c.Type() {
		case "init_declarator", "pointer_declarator", "array_declarator",
			"function_declarator", "parenthesized_declarator",
			"reference_declarator", "identifier":
			out = append(out, c)
		}
	}
	return out
}

// addFunction records one function declaration. steps[0] is the function
// layer; steps beyond it describe the return type.
func (e *extractor) addFunction(decl *sitter.Node, parent ir.NodeID, name, base string, inline ir.NodeID, steps []chainStep, prefix string, template bool) {
	if name == "" {
		return
	}

	fnID := e.addNode(Node{
		Kind:   NodeFunction,
		Name:   name,
		QName:  prefix + name,
		Parent: parent,
		Span:   e.spanOf(decl),
		Type: &TypeExpr{
			Base:   base,
			Inline: inline,
			Derivs: derivs(steps[1:]),
		},
		Template: template,
	})
	e.indexUnder(prefix+name, fnID)

	if steps[0].params != nil {
		e.addParams(steps[0].params, fnID)
	}
}

// addParams extracts the parameter list of one function.
func (e *extractor) addParams(paramList *sitter.Node, fnID ir.NodeID) {
	for i := 0; i < int(paramList.NamedChildCount()); i++ {
		p := paramList.NamedChild(i)
		switch p.Type() {
		case "parameter_declaration":
			typeNode := p.ChildByFieldName("type")
			if typeNode == nil {
				continue
			}
			base, inline := e.baseType(typeNode, fnID, "", false)

			var name string
			var steps []chainStep
			var ref bool
			if d := p.ChildByFieldName("declarator"); d != nil {
				name, steps, ref = e.declarator(d)
			}

			// f(void) declares zero parameters.
			if base == "void" && name == "" && len(steps) == 0 {
				continue
			}

			e.addNode(Node{
				Kind:   NodeParam,
				Name:   name,
				QName:  name,
				Parent: fnID,
				Span:   e.spanOf(p),
				Type: &TypeExpr{
					Base:      base,
					Inline:    inline,
					Derivs:    derivs(steps),
					Reference: ref,
				},
			})
		case "variadic_parameter":
			e.nodes[fnID].Variadic = true
		}
	}
}

// handleTypedef extracts a type_definition: one node per declared alias.
func (e *extractor) handleTypedef(td *sitter.Node, parent ir.NodeID, prefix string, template bool) {
	typeNode := td.ChildByFieldName("type")
	if typeNode == nil {
		return
	}
	base, inline := e.baseType(typeNode, parent, prefix, template)

	for i := 0; i < int(td.NamedChildCount()); i++ {
		d := td.NamedChild(i)
		switch d.Type() {
		case "type_identifier", "pointer_declarator", "array_declarator",
			"function_declarator", "parenthesized_declarator":
		default:
			continue
		}
		// The type node itself can be a type_identifier; skip it.
		if sameRange(d, typeNode) {
			continue
		}

		name, steps, _ := e.declarator(d)
		if name == "" {
			continue
		}
		id := e.addNode(Node{
			Kind:   NodeTypedef,
			Name:   name,
			QName:  prefix + name,
			Parent: parent,
			Span:   e.spanOf(td),
			Type: &TypeExpr{
				Base:   base,
				Inline: inline,
				Derivs: derivs(steps),
			},
			Template: template,
		})
		e.indexUnder(prefix+name, id)
	}
}

// recordElaboration maps a specifier node type to its elaborated keyword.
var recordElaboration = map[string]string{
	"struct_specifier": "struct",
	"union_specifier":  "union",
	"class_specifier":  "class",
	"enum_specifier":   "enum",
}

// handleRecord extracts a struct/union/class definition with its fields,
// and scans for anything that makes the record unsafe to bind as plain
// data.
func (e *extractor) handleRecord(spec *sitter.Node, parent ir.NodeID, prefix string, template bool) ir.NodeID {
	kind := NodeStruct
	if spec.Type() == "union_specifier" {
		kind = NodeUnion
	}

	name := ""
	if nameNode := spec.ChildByFieldName("name"); nameNode != nil {
		name = e.text(nameNode)
	}

	recID := e.addNode(Node{
		Kind:     kind,
		Name:     name,
		QName:    prefix + name,
		Parent:   parent,
		Span:     e.spanOf(spec),
		Template: template,
	})
	if name != "" {
		e.indexUnder(prefix+name, recID)
		e.indexUnder(prefix+recordElaboration[spec.Type()]+" "+name, recID)
	}

	nonPOD := func(reason string) {
		if e.nodes[recID].NonPOD == "" {
			e.nodes[recID].NonPOD = reason
		}
	}

	for i := 0; i < int(spec.NamedChildCount()); i++ {
		if spec.NamedChild(i).Type() == "base_class_clause" {
			nonPOD("has base classes")
		}
	}

	body := spec.ChildByFieldName("body")
	if body == nil {
		return recID
	}

	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "field_declaration":
			e.addFields(member, recID, prefix, nonPOD)
		case "function_definition":
			nonPOD("has member functions")
		case "access_specifier":
			nonPOD("has access specifiers")
		case "comment":
		case "declaration", "friend_declaration", "using_declaration",
			"alias_declaration", "template_declaration":
			nonPOD("has non-data members")
		}
	}
	return recID
}

// addFields extracts the fields of one field_declaration. A declaration
// whose declarator is a function layer is a method, which disqualifies
// the record from plain-data binding.
func (e *extractor) addFields(fd *sitter.Node, recID ir.NodeID, prefix string, nonPOD func(string)) {
	typeNode := fd.ChildByFieldName("type")
	if typeNode == nil {
		return
	}
	base, inline := e.baseType(typeNode, recID, prefix, false)

	bitWidth := int64(0)
	for i := 0; i < int(fd.NamedChildCount()); i++ {
		if c := fd.NamedChild(i); c.Type() == "bitfield_clause" {
			if v := firstNamedChild(c); v != nil {
				if w, ok := e.intLiteral(v); ok {
					bitWidth = w
				}
			}
		}
	}

	added := false
	for i := 0; i < int(fd.NamedChildCount()); i++ {
		d := fd.NamedChild(i)
		switch d.Type() {
		case "field_identifier", "pointer_declarator", "array_declarator",
			"function_declarator", "parenthesized_declarator",
			"reference_declarator":
		default:
			continue
		}

		name, steps, ref := e.declarator(d)
		if len(steps) > 0 && steps[0].kind == DerivFunction {
			nonPOD("has member functions")
			return
		}
		e.addNode(Node{
			Kind:   NodeField,
			Name:   name,
			QName:  name,
			Parent: recID,
			Span:   e.spanOf(d),
			Type: &TypeExpr{
				Base:      base,
				Inline:    inline,
				Derivs:    derivs(steps),
				Reference: ref,
			},
			BitWidth: bitWidth,
		})
		added = true
	}

	// Anonymous member: "union { ... };" or an unnamed bit-field. Both
	// occupy layout without a declarator.
	if !added && (inline != ir.NodeNone || bitWidth != 0) {
		e.addNode(Node{
			Kind:     NodeField,
			Parent:   recID,
			Span:     e.spanOf(fd),
			Type:     &TypeExpr{Base: base, Inline: inline},
			BitWidth: bitWidth,
		})
	}
}

// handleEnum extracts an enum definition with its enumerators. Values
// follow C rules: an explicit integer literal sets the counter, anything
// else continues from the previous value.
func (e *extractor) handleEnum(spec *sitter.Node, parent ir.NodeID, prefix string, template bool) ir.NodeID {
	name := ""
	if nameNode := spec.ChildByFieldName("name"); nameNode != nil {
		name = e.text(nameNode)
	}

	enumID := e.addNode(Node{
		Kind:     NodeEnum,
		Name:     name,
		QName:    prefix + name,
		Parent:   parent,
		Span:     e.spanOf(spec),
		Template: template,
	})
	if name != "" {
		e.indexUnder(prefix+name, enumID)
		e.indexUnder(prefix+"enum "+name, enumID)
	}

	body := spec.ChildByFieldName("body")
	if body == nil {
		return enumID
	}

	next := int64(0)
	for i := 0; i < int(body.NamedChildCount()); i++ {
		en := body.NamedChild(i)
		if en.Type() != "enumerator" {
			continue
		}
		enName := ""
		if nameNode := en.ChildByFieldName("name"); nameNode != nil {
			enName = e.text(nameNode)
		}
		value := next
		if valNode := en.ChildByFieldName("value"); valNode != nil {
			if v, ok := e.intLiteral(valNode); ok {
				value = v
			} else {
				e.addDiag(diag.Warningf(diag.CodeUnsupportedConstruct, e.spanOf(valNode),
					"enumerator %s has a non-literal value; assuming %d", enName, value))
			}
		}
		e.addNode(Node{
			Kind:   NodeEnumerator,
			Name:   enName,
			QName:  enName,
			Parent: enumID,
			Span:   e.spanOf(en),
			Value:  value,
		})
		next = value + 1
	}
	return enumID
}

// baseType resolves the base spelling of a type specifier node. Inline
// record and enum definitions are extracted on the spot; the returned
// node id points at them.
func (e *extractor) baseType(typeNode *sitter.Node, parent ir.NodeID, prefix string, template bool) (string, ir.NodeID) {
	switch typeNode.Type() {
	case "primitive_type", "type_identifier", "qualified_identifier", "template_type":
		return e.text(typeNode), ir.NodeNone
	case "sized_type_specifier":
		// Collapse source whitespace: "unsigned   long" and
		// "unsigned long" are the same spelling.
		return strings.Join(strings.Fields(e.text(typeNode)), " "), ir.NodeNone
	case "struct_specifier", "union_specifier", "class_specifier":
		if typeNode.ChildByFieldName("body") != nil {
			id := e.handleRecord(typeNode, parent, prefix, template)
			return e.elaboratedName(typeNode), id
		}
		return e.elaboratedName(typeNode), ir.NodeNone
	case "enum_specifier":
		if typeNode.ChildByFieldName("body") != nil {
			id := e.handleEnum(typeNode, parent, prefix, template)
			return e.elaboratedName(typeNode), id
		}
		return e.elaboratedName(typeNode), ir.NodeNone
	default:
		return strings.Join(strings.Fields(e.text(typeNode)), " "), ir.NodeNone
	}
}

// elaboratedName renders "struct Point" style spellings; anonymous
// definitions have none.
func (e *extractor) elaboratedName(spec *sitter.Node) string {
	nameNode := spec.ChildByFieldName("name")
	if nameNode == nil {
		return ""
	}
	return recordElaboration[spec.Type()] + " " + e.text(nameNode)
}

// intLiteral evaluates integer literal expressions: decimal, hex, octal,
// optionally under a unary minus, with C suffixes stripped.
func (e *extractor) intLiteral(n *sitter.Node) (int64, bool) {
	switch n.Type() {
	case "number_literal":
		text := strings.TrimRight(e.text(n), "uUlL")
		v, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	case "unary_expression":
		arg := n.ChildByFieldName("argument")
		if arg == nil || !strings.HasPrefix(e.text(n), "-") {
			return 0, false
		}
		v, ok := e.intLiteral(arg)
		if !ok {
			return 0, false
		}
		return -v, true
	default:
		return 0, false
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 60 {
		s = s[:60] + "..."
	}
	return s
}
