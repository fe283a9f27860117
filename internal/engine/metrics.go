package engine

import "github.com/roach88/ccbind/internal/ir"

// MetricsSnapshot is a point-in-time copy of the runtime counters. Hits
// count demands served from the store (including ones revalidated by the
// freshness walk); misses count actual handler evaluations, which the
// per-kind map breaks down further.
type MetricsSnapshot struct {
	Hits     uint64
	Misses   uint64
	Computes map[ir.QueryKind]uint64
}

// ComputeCount returns the number of evaluations for one kind.
func (s MetricsSnapshot) ComputeCount(kind ir.QueryKind) uint64 {
	return s.Computes[kind]
}

// Metrics returns a snapshot of the runtime counters.
func (r *Runtime) Metrics() MetricsSnapshot {
	snap := MetricsSnapshot{
		Hits:     r.hits.Load(),
		Misses:   r.misses.Load(),
		Computes: make(map[ir.QueryKind]uint64),
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for kind, ctr := range r.computes {
		snap.Computes[kind] = ctr.Load()
	}
	return snap
}
