// Package translate maps resolved declarations to binding descriptors.
//
// # ARCHITECTURE
//
// Translation is the only stage that knows target ABI facts. Everything
// it knows comes from a Profile: scalar widths, pointer width, and the
// underlying type of plain enums. Profiles are data (embedded YAML,
// strictly decoded), so supporting another data model is a new profile,
// not new code. LP64 is the default.
//
// The translator is deliberately conservative. Anything it cannot bind
// faithfully is rejected with a typed error rather than approximated:
// variadic signatures, template declarations without an instantiation,
// classes that are not plain data (methods, access specifiers, base
// classes), incomplete types used by value. The two sanctioned
// approximations are unions and bit-fields, whose layouts are produced
// but flagged PartialLayout and accompanied by a warning, because hosts
// routinely need those types as opaque-ish blobs.
//
// Record layout is a straight C layout walk: align each field to its
// natural alignment, pad the tail to the record alignment. A separate
// verification pass re-checks every computed struct layout against the
// invariants downstream emitters assume (aligned, monotonic,
// in-bounds, tail-padded); a violation is a translator or profile
// defect and surfaces as a layout_mismatch diagnostic instead of a
// silently wrong binding.
//
// Self-referential types are handled by cutting back-edges behind
// pointers: a pointer field whose pointee is currently being laid out
// gets a name-only descriptor. The same back-edge reached by value is
// an impossible layout and is rejected.
package translate
