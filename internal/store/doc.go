// Package store is the versioned memo table behind the query engine.
//
// # ARCHITECTURE
//
// The store maps query fingerprints to entries. An entry is the recorded
// outcome of one evaluation: the value (or error), the diagnostics it
// emitted, the fingerprints of the queries it depended on, and two
// revisions. ChangedAt is the revision at which the result last actually
// changed; VerifiedAt is the revision at which the result was last
// confirmed still valid. The engine's staleness walk runs entirely on
// those two numbers plus the dependency edges; it never compares result
// values, so values carry no equality obligations.
//
// Revisions come from a Clock owned by the store: one atomic counter.
// Bumping the clock is what an invalidation fundamentally is; entries
// are never eagerly deleted by invalidation, they just stop validating.
//
// The store also carries the per-fingerprint in-flight latches that give
// the engine its single-computation guarantee. Acquire either makes the
// caller the computing leader or blocks until the current leader
// releases. The store never runs user code while holding its lock, and
// results live for the process lifetime unless explicitly evicted.
package store
