package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/ccbind/internal/diag"
	"github.com/roach88/ccbind/internal/ir"
	"github.com/roach88/ccbind/internal/store"
)

// Handler evaluates one query kind. It receives an evaluation context for
// demanding other queries (which records the dependency edges) and returns
// the query's value, the diagnostics the evaluation itself produced, and
// an error when the evaluation failed outright. Errors are memoized the
// same way values are.
type Handler func(c *Ctx, q ir.Query) (any, []diag.Diagnostic, error)

// Ctx is the evaluation context handed to handlers. It is a
// context.Context (cancellation flows through), records every query the
// handler reads as a dependency edge, and carries the active evaluation
// stack for cycle detection.
type Ctx struct {
	context.Context
	rt      *Runtime
	stack   []frame
	deps    []string
	depSeen map[string]bool
	stamp   string
}

type frame struct {
	fp   string
	name string
}

// Get demands another query from inside a handler. The demanded query is
// recorded as a dependency of the running evaluation; the engine uses the
// recorded edges for the freshness walk on later demands.
func (c *Ctx) Get(q ir.Query) (any, []diag.Diagnostic, error) {
	fp := q.Fingerprint()
	if c.depSeen == nil {
		c.depSeen = make(map[string]bool)
	}
	if !c.depSeen[fp] {
		c.depSeen[fp] = true
		c.deps = append(c.deps, fp)
	}
	return c.rt.get(c.Context, c.stack, q)
}

// Stamp sets the content fingerprint for an input evaluation. Input
// handlers call it so later refreshes can compare stamps and skip the
// revision bump when the underlying bytes did not change. Derived
// handlers never call it.
func (c *Ctx) Stamp(s string) { c.stamp = s }

// Runtime is the demand-driven query engine: a memo store, a revision
// clock, and one registered handler per query kind. All methods are safe
// for concurrent use.
type Runtime struct {
	store  *store.Store
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[ir.QueryKind]Handler
	computes map[ir.QueryKind]*atomic.Uint64

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRuntime builds a runtime over the given memo store. A nil store gets
// a fresh empty one; a nil logger discards.
func NewRuntime(st *store.Store, logger *slog.Logger) *Runtime {
	if st == nil {
		st = store.New(nil)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runtime{
		store:    st,
		logger:   logger,
		handlers: make(map[ir.QueryKind]Handler),
		computes: make(map[ir.QueryKind]*atomic.Uint64),
	}
}

// Register installs the handler for a query kind, replacing any previous
// one. Registration is not synchronized against in-flight evaluations;
// wire all kinds before the first Get.
func (r *Runtime) Register(kind ir.QueryKind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
	if _, ok := r.computes[kind]; !ok {
		r.computes[kind] = new(atomic.Uint64)
	}
}

// Store exposes the underlying memo store.
func (r *Runtime) Store() *store.Store { return r.store }

// Get evaluates a query: cached result if still valid, fresh evaluation
// otherwise. Concurrent demands for the same query share one evaluation.
func (r *Runtime) Get(ctx context.Context, q ir.Query) (any, []diag.Diagnostic, error) {
	return r.get(ctx, nil, q)
}

// SetInput publishes the value of an input query. The revision clock
// advances only when the stamp differs from the cached entry's, which is
// what keeps a content-preserving refresh from invalidating anything.
// Returns whether the input actually changed.
func (r *Runtime) SetInput(q ir.Query, value any, stamp string) bool {
	fp := q.Fingerprint()
	if e, ok := r.store.Lookup(fp); ok && e.Err == nil && e.Stamp == stamp {
		return false
	}
	rev := r.store.Clock().Next()
	r.store.Put(fp, store.Entry{
		Query:      q,
		Value:      value,
		Stamp:      stamp,
		ChangedAt:  rev,
		VerifiedAt: rev,
	})
	r.logger.Debug("input changed", "query", q.String(), "revision", int64(rev))
	return true
}

// SetInputError publishes a failed input read, for example a header that
// was deleted out from under the session. Dependents recompute and
// observe the failure. Always advances the clock.
func (r *Runtime) SetInputError(q ir.Query, err error) bool {
	fp := q.Fingerprint()
	rev := r.store.Clock().Next()
	r.store.Put(fp, store.Entry{
		Query:      q,
		Err:        err,
		ChangedAt:  rev,
		VerifiedAt: rev,
	})
	r.logger.Debug("input failed", "query", q.String(), "revision", int64(rev), "err", err)
	return true
}

// Evict drops a memoized entry. Eviction never changes results, only the
// cost of the next demand. The clock advances so that recomputed entries
// are distinguishable from the evicted ones they replace; without the
// bump, a dependent verified against the old entry could keep results
// derived from a tree generation that no longer exists.
func (r *Runtime) Evict(q ir.Query) {
	r.store.Remove(q.Fingerprint())
	r.store.Clock().Next()
}

func (r *Runtime) get(ctx context.Context, stack []frame, q ir.Query) (any, []diag.Diagnostic, error) {
	fp := q.Fingerprint()

	for i, f := range stack {
		if f.fp == fp {
			chain := make([]string, 0, len(stack)-i+1)
			for _, g := range stack[i:] {
				chain = append(chain, g.name)
			}
			chain = append(chain, q.String())
			return nil, nil, cycleError(chain)
		}
	}

	now := r.store.Clock().Current()
	seen := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		if e, ok := r.store.Lookup(fp); ok && r.fresh(e, fp, now, seen) {
			r.hits.Add(1)
			return e.Value, e.Diags, e.Err
		}

		release, waited, err := r.store.Acquire(ctx, fp)
		if err != nil {
			return nil, nil, err
		}
		if waited {
			// A leader finished while we blocked; re-read the store.
			continue
		}

		// Leader. Another leader may have published between our lookup
		// and the latch, so check once more before paying for the work.
		if e, ok := r.store.Lookup(fp); ok && r.fresh(e, fp, now, seen) {
			release()
			r.hits.Add(1)
			return e.Value, e.Diags, e.Err
		}

		r.misses.Add(1)
		value, diags, stamp, deps, err := r.compute(ctx, stack, q, fp)
		if err != nil && !cacheable(err) {
			release()
			return nil, nil, err
		}

		// ChangedAt uses the revision observed at entry to this demand:
		// an input invalidated mid-evaluation stays newer than us, so
		// the next demand re-verifies instead of trusting this result.
		r.store.Put(fp, store.Entry{
			Query:      q,
			Value:      value,
			Diags:      diags,
			Err:        err,
			Stamp:      stamp,
			Deps:       deps,
			ChangedAt:  now,
			VerifiedAt: now,
		})
		release()
		return value, diags, err
	}
}

// fresh reports whether a memoized entry is still valid at the given
// revision, walking recorded dependency edges. Validity is structural:
// a dependency that changed after this entry was computed makes the
// entry stale regardless of what the new value looks like. Entries that
// pass the walk are stamped so the next demand short-circuits.
func (r *Runtime) fresh(e store.Entry, fp string, now store.Revision, seen map[string]bool) bool {
	if seen[fp] {
		return true
	}
	if e.VerifiedAt >= now {
		seen[fp] = true
		return true
	}
	for _, dep := range e.Deps {
		de, ok := r.store.Lookup(dep)
		if !ok {
			return false
		}
		if de.ChangedAt > e.ChangedAt {
			return false
		}
		if !r.fresh(de, dep, now, seen) {
			return false
		}
	}
	r.store.MarkVerified(fp, now)
	seen[fp] = true
	return true
}

func (r *Runtime) compute(ctx context.Context, stack []frame, q ir.Query, fp string) (any, []diag.Diagnostic, string, []string, error) {
	r.mu.RLock()
	h := r.handlers[q.Kind]
	ctr := r.computes[q.Kind]
	r.mu.RUnlock()
	if h == nil {
		err := newError(CodeInternal, q.String(),
			fmt.Sprintf("no handler registered for query kind %q", q.Kind), nil)
		return nil, nil, "", nil, err
	}
	ctr.Add(1)

	child := &Ctx{
		Context: ctx,
		rt:      r,
		stack:   append(slices.Clone(stack), frame{fp: fp, name: q.String()}),
	}
	value, diags, err := h(child, q)
	r.logger.Debug("evaluated query",
		"query", q.String(), "deps", len(child.deps), "diags", len(diags), "failed", err != nil)
	return value, diags, child.stamp, child.deps, err
}

// cacheable reports whether a handler error should be memoized. Results
// of the computation itself (parse failures, unresolved names, rejected
// signatures) are; interruptions and wiring defects are not, because
// they describe the call, not the query.
func cacheable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code != CodeCyclicDependency && e.Code != CodeInternal
	}
	return true
}
