// Package span assigns stable identifiers to regions of source text.
//
// Diagnostics never carry raw file paths or byte ranges around; they carry
// a SpanID into this registry. The excluded reporting layer resolves ids
// back to (path, byte range) when it renders output. Interning gives two
// properties the engine relies on: span identity is comparable with ==,
// and identical regions of identical files always get the same id, which
// keeps golden snapshots deterministic.
package span

import (
	"fmt"

	"github.com/roach88/ccbind/internal/ir"
)

// FileID identifies one interned source file (host or foreign).
type FileID int32

// SpanID identifies one interned span.
type SpanID int32

// None is the absent-span sentinel for diagnostics with no useful
// location (engine-internal failures, unreadable files).
const None SpanID = -1

// Span is a half-open byte range [Start, End) within one file.
type Span struct {
	File  FileID
	Start uint32
	End   uint32
}

// Registry interns files and spans. Safe for concurrent use; both
// interners assign dense ids in first-seen order, so a deterministic
// sequence of parses yields deterministic ids.
type Registry struct {
	files *ir.Interner[string]
	spans *ir.Interner[Span]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		files: ir.NewInterner[string](),
		spans: ir.NewInterner[Span](),
	}
}

// InternFile returns the FileID for path, assigning one if new.
func (r *Registry) InternFile(path string) FileID {
	return FileID(r.files.Intern(path))
}

// FilePath returns the path for id.
func (r *Registry) FilePath(id FileID) (string, bool) {
	return r.files.Lookup(int32(id))
}

// InternSpan returns the SpanID for the given region, assigning one if new.
func (r *Registry) InternSpan(file FileID, start, end uint32) SpanID {
	return SpanID(r.spans.Intern(Span{File: file, Start: start, End: end}))
}

// Lookup returns the span for id.
func (r *Registry) Lookup(id SpanID) (Span, bool) {
	if id == None {
		return Span{}, false
	}
	return r.spans.Lookup(int32(id))
}

// Describe renders a span for logs: "path[start:end)". Unknown ids render
// as "<no span>"; the reporting layer is the place for anything prettier.
func (r *Registry) Describe(id SpanID) string {
	s, ok := r.Lookup(id)
	if !ok {
		return "<no span>"
	}
	path, ok := r.FilePath(s.File)
	if !ok {
		path = fmt.Sprintf("file#%d", s.File)
	}
	return fmt.Sprintf("%s[%d:%d)", path, s.Start, s.End)
}
