// Package parse is the foreign AST provider: it turns C and C++ header
// text into an owned, immutable declaration tree.
//
// ARCHITECTURE:
//
// Owned Arena:
// Lexing and parsing are delegated to tree-sitter. The provider walks the
// tree-sitter tree exactly once, copies everything the engine will ever
// need into a flat arena of Node records addressed by ir.NodeID, then
// closes the tree-sitter tree. Downstream components hold integer handles
// only - never pointers into parser-owned memory - so a tree can be
// dropped and reparsed without dangling state.
//
// Determinism:
// The arena is built by a pre-order walk in source order, so identical
// source bytes always produce identical node ids. That property is what
// lets declaration handles survive cache verification: a handle minted
// against one parse addresses the same declaration in any parse of the
// same content.
//
// Generations:
// Every parse instance carries a generation token from a TokenGenerator
// (UUIDv7 in production, fixed sequences in tests). Handles embed the
// token; a handle whose generation is not the live one is stale and is
// refused rather than resolved against the wrong tree.
//
// Reparse Cache:
// Below the engine's memo layer sits a small content-keyed LRU. When the
// memo layer decides a parse must rerun (after invalidation), the provider
// first checks whether it has already built an arena for identical bytes
// under the same language and file; a hit re-issues the arena under a
// fresh generation without invoking tree-sitter. Eviction only ever costs
// a reparse.
//
// Partial Failure:
// tree-sitter recovers from syntax errors, so a header with one bad
// declaration still yields a tree. ERROR and MISSING regions become
// error-severity diagnostics and the declarations inside them are
// skipped; every other declaration is extracted normally. Only an
// unusable parse (no tree at all, unknown language) is fatal.
package parse
