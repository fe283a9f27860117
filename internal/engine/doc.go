// Package engine is the demand-driven core: queries go in, memoized
// results come out, and nothing recomputes unless something underneath
// it actually changed.
//
// # ARCHITECTURE
//
// A query is (kind, key), fingerprinted canonically. The runtime owns a
// handler per kind; Get either returns a still-valid memo entry or runs
// the handler, recording every query the handler reads as a dependency
// edge. Freshness is decided structurally by the revision walk in
// runtime.go: an entry is valid when every dependency is valid and none
// changed after the entry was computed. Result values are never compared.
//
// Invalidation is an input-side operation. SetInput re-stamps one input
// entry and bumps the revision clock; everything downstream stays memoized
// and simply stops validating until the walk confirms or refutes it. An
// input refresh whose content stamp is unchanged does not bump the clock
// at all, which is what makes a no-op invalidation free.
//
// Evaluation is single-flight per fingerprint: concurrent demands for the
// same query elect one leader through the store's latch and everyone else
// reuses its published result. Cycles are caught by the evaluation stack
// carried on the Ctx; a query that transitively demands itself fails with
// CodeCyclicDependency rather than deadlocking. The stack travels with
// the top-level call, so one demand graph's shape never poisons another's.
//
// The standard kinds wire the pipeline back to front: translate demands
// parse_header, resolve_name demands parse_header, parse_header demands
// file_text. file_text is the only input. Session is the host facade
// over one runtime with the standard kinds registered; Bind is its main
// entry point and maps per-name failures to diagnostics so one bad name
// never blocks the rest of a request.
package engine
