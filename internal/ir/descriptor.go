package ir

// DescriptorKind classifies what a binding descriptor describes.
type DescriptorKind string

const (
	DescFunction DescriptorKind = "function"
	DescType     DescriptorKind = "type"
	DescGlobal   DescriptorKind = "global"
)

// PassMode is how a parameter crosses the boundary.
type PassMode string

const (
	PassByValue   PassMode = "by_value"
	PassByPointer PassMode = "by_pointer"
)

// CallCdecl is the default C calling convention. It is the only convention
// the translator emits today; anything else it can detect is rejected as an
// unsupported signature rather than guessed at.
const CallCdecl = "cdecl"

// TypeKind classifies a type descriptor.
type TypeKind string

const (
	TypeVoid    TypeKind = "void"
	TypeScalar  TypeKind = "scalar"
	TypePointer TypeKind = "pointer"
	TypeArray   TypeKind = "array"
	TypeStruct  TypeKind = "struct"
	TypeUnion   TypeKind = "union"
	TypeEnum    TypeKind = "enum"
	TypeAlias   TypeKind = "alias"

	// TypeOpaque names a type without exposing layout. Used behind
	// pointers to break reference cycles: the pointer's own size is known
	// even when the pointee's layout is not.
	TypeOpaque TypeKind = "opaque"
)

// ScalarClass subdivides scalar descriptors. char is its own class because
// C leaves its signedness implementation-defined.
type ScalarClass string

const (
	ScalarInt   ScalarClass = "int"
	ScalarUint  ScalarClass = "uint"
	ScalarFloat ScalarClass = "float"
	ScalarBool  ScalarClass = "bool"
	ScalarChar  ScalarClass = "char"
)

// TypeDesc is a target-language-neutral type description carrying the
// layout facts needed for safe memory interpretation. Which fields are
// populated depends on Kind; Size and Align are bytes and are meaningful
// for every kind except void and opaque (where both are zero).
type TypeDesc struct {
	Kind  TypeKind    `json:"kind"`
	Name  string      `json:"name,omitempty"`
	Class ScalarClass `json:"class,omitempty"`
	Size  int64       `json:"size"`
	Align int64       `json:"align"`

	Pointee *TypeDesc `json:"pointee,omitempty"` // pointer
	Elem    *TypeDesc `json:"elem,omitempty"`    // array
	Count   int64     `json:"count,omitempty"`   // array

	Fields      []FieldDesc      `json:"fields,omitempty"`      // struct, union
	Enumerators []EnumeratorDesc `json:"enumerators,omitempty"` // enum
	Target      *TypeDesc        `json:"target,omitempty"`      // alias

	// PartialLayout marks layouts that are best-effort rather than
	// guaranteed: unions, and records containing bit-fields. Descriptors
	// carrying this flag are still emitted, accompanied by a
	// warning-severity diagnostic.
	PartialLayout bool `json:"partial_layout,omitempty"`
}

// FieldDesc is one record member with its computed byte offset. BitWidth
// is zero for ordinary members; a non-zero width marks a bit-field, whose
// offset is the byte offset of its storage unit.
type FieldDesc struct {
	Name     string   `json:"name"`
	Offset   int64    `json:"offset"`
	BitWidth int64    `json:"bit_width,omitempty"`
	Type     TypeDesc `json:"type"`
}

// EnumeratorDesc is one named enum constant.
type EnumeratorDesc struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// ParamDesc is one function parameter.
type ParamDesc struct {
	Name string   `json:"name"`
	Type TypeDesc `json:"type"`
	Pass PassMode `json:"pass"`
}

// BindingDescriptor describes one foreign declaration, sufficient for an
// emission layer to synthesize a safe wrapper. Produced once per
// (declaration handle, translation revision); immutable after creation.
//
// Functions populate Convention, Params, and Return. Types and globals
// populate Type.
type BindingDescriptor struct {
	Kind       DescriptorKind `json:"kind"`
	Name       string         `json:"name"`
	Convention string         `json:"convention,omitempty"`
	Params     []ParamDesc    `json:"params,omitempty"`
	Return     *TypeDesc      `json:"return,omitempty"`
	Type       *TypeDesc      `json:"type,omitempty"`
}

// CanonicalMap converts the descriptor to a map for canonical JSON
// serialization. This is the form hashed by DescriptorFingerprint and
// snapshotted by golden tests; every field that influences emitted
// bindings must appear here.
func (d BindingDescriptor) CanonicalMap() map[string]any {
	m := map[string]any{
		"kind": string(d.Kind),
		"name": d.Name,
	}
	if d.Convention != "" {
		m["convention"] = d.Convention
	}
	if d.Params != nil {
		params := make([]any, len(d.Params))
		for i, p := range d.Params {
			params[i] = p.canonicalMap()
		}
		m["params"] = params
	}
	if d.Return != nil {
		m["return"] = d.Return.canonicalMap()
	}
	if d.Type != nil {
		m["type"] = d.Type.canonicalMap()
	}
	return m
}

func (p ParamDesc) canonicalMap() map[string]any {
	return map[string]any{
		"name": p.Name,
		"pass": string(p.Pass),
		"type": p.Type.canonicalMap(),
	}
}

func (t *TypeDesc) canonicalMap() map[string]any {
	m := map[string]any{
		"kind":  string(t.Kind),
		"size":  t.Size,
		"align": t.Align,
	}
	if t.Name != "" {
		m["name"] = t.Name
	}
	if t.Class != "" {
		m["class"] = string(t.Class)
	}
	if t.Pointee != nil {
		m["pointee"] = t.Pointee.canonicalMap()
	}
	if t.Elem != nil {
		m["elem"] = t.Elem.canonicalMap()
		m["count"] = t.Count
	}
	if t.Fields != nil {
		fields := make([]any, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = f.canonicalMap()
		}
		m["fields"] = fields
	}
	if t.Enumerators != nil {
		enums := make([]any, len(t.Enumerators))
		for i, e := range t.Enumerators {
			enums[i] = map[string]any{
				"name":  e.Name,
				"value": e.Value,
			}
		}
		m["enumerators"] = enums
	}
	if t.Target != nil {
		m["target"] = t.Target.canonicalMap()
	}
	if t.PartialLayout {
		m["partial_layout"] = true
	}
	return m
}

func (f FieldDesc) canonicalMap() map[string]any {
	m := map[string]any{
		"name":   f.Name,
		"offset": f.Offset,
		"type":   f.Type.canonicalMap(),
	}
	if f.BitWidth != 0 {
		m["bit_width"] = f.BitWidth
	}
	return m
}
