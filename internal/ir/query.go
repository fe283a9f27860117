package ir

import (
	"fmt"
	"strings"
)

// QueryKind discriminates the cacheable computations the engine knows how
// to evaluate. Kinds are part of query identity: two queries with equal
// keys but different kinds are different queries.
type QueryKind string

const (
	// QueryFileText is the input leaf: the content (and content hash) of
	// one header path, read through the loader.
	QueryFileText QueryKind = "file_text"

	// QueryParseHeader parses one header under one flag set into an owned
	// tree plus parse diagnostics.
	QueryParseHeader QueryKind = "parse_header"

	// QueryResolveName locates declarations matching a qualified name
	// inside a parsed tree.
	QueryResolveName QueryKind = "resolve_name"

	// QueryTranslate maps one resolved declaration into a binding
	// descriptor.
	QueryTranslate QueryKind = "translate"
)

// Query is an identifiable, pure computation request. Immutable once
// created; equality is by kind plus key, realized as the canonical
// fingerprint. Construct queries through the typed constructors below so
// key shapes stay uniform.
type Query struct {
	Kind QueryKind
	Key  map[string]any

	fp string
}

// FileTextQuery keys the content of one header path.
func FileTextQuery(path string) Query {
	return newQuery(QueryFileText, map[string]any{"path": path})
}

// ParseHeaderQuery keys the parse of one header under one flag set.
func ParseHeaderQuery(path string, flags []string) Query {
	return newQuery(QueryParseHeader, map[string]any{
		"path":  path,
		"flags": flags,
	})
}

// ResolveQuery keys a qualified-name lookup inside one header lineage.
func ResolveQuery(ast AstID, name string) Query {
	return newQuery(QueryResolveName, map[string]any{
		"ast":  int64(ast),
		"name": name,
	})
}

// TranslateQuery keys the translation of one declaration handle. The
// generation token is part of the key: translations never survive a
// reparse of their tree, which is what makes descriptor immutability per
// (handle, revision) sound.
func TranslateQuery(h DeclHandle) Query {
	return newQuery(QueryTranslate, map[string]any{
		"decl": h.canonicalMap(),
	})
}

func newQuery(kind QueryKind, key map[string]any) Query {
	q := Query{Kind: kind, Key: key}
	q.fp = MustQueryFingerprint(q)
	return q
}

// Fingerprint returns the content-addressed identity of the query:
// the canonical-JSON hash of (kind, key). Two queries are the same query
// exactly when their fingerprints are equal.
func (q Query) Fingerprint() string {
	if q.fp == "" {
		return MustQueryFingerprint(q)
	}
	return q.fp
}

// String renders a compact human-readable form for logs and diagnostics,
// e.g. parse_header(path=point.h). Not suitable for identity; use
// Fingerprint for that.
func (q Query) String() string {
	if len(q.Key) == 0 {
		return string(q.Kind) + "()"
	}
	keys := sortedKeysUTF16(q.Key)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, q.Key[k]))
	}
	return fmt.Sprintf("%s(%s)", q.Kind, strings.Join(parts, " "))
}
