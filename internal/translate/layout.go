package translate

import (
	"github.com/roach88/ccbind/internal/diag"
	"github.com/roach88/ccbind/internal/ir"
	"github.com/roach88/ccbind/internal/parse"
	"github.com/roach88/ccbind/internal/span"
)

func alignTo(n, align int64) int64 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

// layoutRecord computes the byte layout of one struct or union under the
// active profile: offsets for every field, then total size and alignment.
// Layouts involving bit-fields or unions are marked partial; they are
// still produced, with a warning, because an approximate layout plus a
// caveat beats refusing to bind at all.
func (w *walker) layoutRecord(n *parse.Node) (ir.TypeDesc, error) {
	kind := ir.TypeStruct
	if n.Kind == parse.NodeUnion {
		kind = ir.TypeUnion
	}
	desc := ir.TypeDesc{Kind: kind, Name: n.QName}

	warned := false
	markPartial := func(format string, args ...any) {
		desc.PartialLayout = true
		if !warned {
			w.warn(diag.Warningf(diag.CodePartialLayout, n.Span, format, args...))
			warned = true
		}
	}

	var (
		cursor   int64
		unionMax int64
		maxAlign int64 = 1

		// Active bit-field storage unit, struct layout only.
		unitOffset int64 = -1
		unitSize   int64
		bitsUsed   int64
	)

	for _, childID := range n.Children {
		f, ok := w.tree.Node(childID)
		if !ok || f.Kind != parse.NodeField {
			// Inline record definitions sit among the children; fields
			// reference them through their type.
			continue
		}
		if f.Type.Reference {
			return ir.TypeDesc{}, unsupportedConstruct(n.QName, f.Span,
				"reference member %q", f.Name)
		}

		ft, err := w.typeOf(f.Type, n.QName, f.Span)
		if err != nil {
			return ir.TypeDesc{}, err
		}
		switch ft.Kind {
		case ir.TypeVoid:
			return ir.TypeDesc{}, unsupportedConstruct(n.QName, f.Span, "field %q of void type", f.Name)
		case ir.TypeOpaque:
			return ir.TypeDesc{}, unsupportedConstruct(n.QName, f.Span,
				"field %q has incomplete type %s", f.Name, ft.Name)
		}

		align := max(ft.Align, 1)
		maxAlign = max(maxAlign, align)
		if ft.PartialLayout {
			markPartial("%s: field %q has an approximate layout", n.QName, f.Name)
		}

		if f.BitWidth > 0 {
			if ft.Kind != ir.TypeScalar && ft.Kind != ir.TypeEnum {
				return ir.TypeDesc{}, unsupportedConstruct(n.QName, f.Span,
					"bit-field %q of non-integral type", f.Name)
			}
			markPartial("%s: bit-field layout is approximate", n.QName)

			unit := ft.Size
			width := min(f.BitWidth, unit*8)

			var offset int64
			if kind == ir.TypeUnion {
				unionMax = max(unionMax, unit)
			} else {
				if unitOffset < 0 || unit != unitSize || bitsUsed+width > unitSize*8 {
					unitOffset = alignTo(cursor, align)
					cursor = unitOffset + unit
					unitSize = unit
					bitsUsed = 0
				}
				offset = unitOffset
				bitsUsed += width
			}
			if f.Name != "" {
				desc.Fields = append(desc.Fields, ir.FieldDesc{
					Name: f.Name, Offset: offset, BitWidth: width, Type: ft,
				})
			}
			continue
		}

		// A plain member closes any open bit-field unit.
		unitOffset = -1

		if kind == ir.TypeUnion {
			desc.Fields = append(desc.Fields, ir.FieldDesc{Name: f.Name, Type: ft})
			unionMax = max(unionMax, ft.Size)
			continue
		}

		offset := alignTo(cursor, align)
		desc.Fields = append(desc.Fields, ir.FieldDesc{Name: f.Name, Offset: offset, Type: ft})
		cursor = offset + ft.Size
	}

	if kind == ir.TypeUnion {
		markPartial("%s: union member overlap is approximate", n.QName)
		desc.Size = alignTo(unionMax, maxAlign)
		desc.Align = maxAlign
	} else {
		desc.Size = alignTo(cursor, maxAlign)
		desc.Align = maxAlign
	}

	if len(desc.Fields) == 0 && cursor == 0 && unionMax == 0 {
		desc.Align = 1
		desc.Size = 0
		// An empty C++ record still occupies one byte so distinct objects
		// get distinct addresses.
		if w.tree.Lang == parse.LangCPP {
			desc.Size = 1
		}
	}

	if kind == ir.TypeStruct && !desc.PartialLayout {
		w.verifyLayout(&desc, n.Span)
	}
	return desc, nil
}

// verifyLayout re-checks a computed struct layout against the invariants
// every downstream consumer assumes: aligned offsets, monotonic field
// placement, fields inside the record, and a size that is a multiple of
// the alignment. Violations mean a profile or translator defect, and are
// reported rather than silently shipped to an emitter.
func (w *walker) verifyLayout(desc *ir.TypeDesc, sp span.SpanID) {
	var prevEnd int64
	for _, f := range desc.Fields {
		align := max(f.Type.Align, 1)
		if f.Offset%align != 0 {
			w.warn(diag.Errorf(diag.CodeLayoutMismatch, sp,
				"%s.%s: offset %d not aligned to %d", desc.Name, f.Name, f.Offset, align))
		}
		if f.Offset < prevEnd {
			w.warn(diag.Errorf(diag.CodeLayoutMismatch, sp,
				"%s.%s: offset %d overlaps previous field ending at %d", desc.Name, f.Name, f.Offset, prevEnd))
		}
		end := f.Offset + f.Type.Size
		if end > desc.Size {
			w.warn(diag.Errorf(diag.CodeLayoutMismatch, sp,
				"%s.%s: field ends at %d beyond record size %d", desc.Name, f.Name, end, desc.Size))
		}
		prevEnd = end
	}
	if desc.Align > 0 && desc.Size%desc.Align != 0 {
		w.warn(diag.Errorf(diag.CodeLayoutMismatch, sp,
			"%s: size %d not a multiple of alignment %d", desc.Name, desc.Size, desc.Align))
	}
}
