package store

import (
	"context"
	"sort"
	"sync"

	"github.com/roach88/ccbind/internal/diag"
	"github.com/roach88/ccbind/internal/ir"
)

// Entry is one memoized evaluation outcome. Failed evaluations are
// cached exactly like successful ones: Err is set, Value is nil, and the
// entry revalidates and invalidates by the same rules. Deps holds the
// fingerprints of the queries read during evaluation, in first-read
// order.
type Entry struct {
	Query ir.Query
	Value any
	Diags []diag.Diagnostic
	Err   error

	// Stamp is an opaque content fingerprint for input entries. The
	// engine compares stamps on refresh to skip the revision bump when
	// the bytes behind an input did not actually change. Derived
	// entries leave it empty.
	Stamp string

	Deps       []string
	ChangedAt  Revision
	VerifiedAt Revision
}

// Store is the memo table: fingerprint to entry, plus the in-flight
// latches. Safe for concurrent use.
type Store struct {
	clock *Clock

	mu      sync.RWMutex
	entries map[string]*Entry
	flights map[string]chan struct{}
}

// New returns an empty store. A nil clock gets a fresh one.
func New(clock *Clock) *Store {
	if clock == nil {
		clock = NewClock()
	}
	return &Store{
		clock:   clock,
		entries: make(map[string]*Entry),
		flights: make(map[string]chan struct{}),
	}
}

// Clock returns the revision clock this store runs on.
func (s *Store) Clock() *Clock { return s.clock }

// Lookup returns a snapshot of the entry for fp. The snapshot is shallow:
// Value, Diags, and Deps alias the stored data and must be treated as
// read-only.
func (s *Store) Lookup(fp string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[fp]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Put records an evaluation outcome, replacing any previous entry.
func (s *Store) Put(fp string, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := e
	s.entries[fp] = &stored
}

// MarkVerified stamps the entry as confirmed valid at rev. A missing
// entry is a no-op: a concurrent eviction simply loses the stamp.
func (s *Store) MarkVerified(fp string, rev Revision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[fp]; ok {
		e.VerifiedAt = rev
	}
}

// Remove evicts one entry. The next demand for the query recomputes it;
// eviction can never make results wrong, only slower.
func (s *Store) Remove(fp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, fp)
}

// Len returns the number of memoized entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Fingerprints returns all memoized fingerprints, sorted. Diagnostic
// surface for tests and debug dumps.
func (s *Store) Fingerprints() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for fp := range s.entries {
		out = append(out, fp)
	}
	sort.Strings(out)
	return out
}

// Acquire takes the in-flight latch for fp. The first caller becomes the
// leader: it gets a release function and waited=false, and must call
// release exactly once, after publishing its result with Put. Any caller
// arriving while a leader holds the latch blocks until release (or ctx
// cancellation), then returns waited=true with a nil release; the waiter
// re-reads the store and decides for itself whether the leader's work
// settled its query.
func (s *Store) Acquire(ctx context.Context, fp string) (release func(), waited bool, err error) {
	for {
		s.mu.Lock()
		ch, inFlight := s.flights[fp]
		if !inFlight {
			done := make(chan struct{})
			s.flights[fp] = done
			s.mu.Unlock()
			var once sync.Once
			return func() {
				once.Do(func() {
					s.mu.Lock()
					delete(s.flights, fp)
					s.mu.Unlock()
					close(done)
				})
			}, false, nil
		}
		s.mu.Unlock()

		select {
		case <-ch:
			return nil, true, nil
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	}
}
