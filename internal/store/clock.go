package store

import "sync/atomic"

// Revision is a monotonically increasing logical timestamp. All staleness
// reasoning uses revisions, never wall time: logical time makes
// recomputation decisions reproducible no matter when they run.
type Revision int64

// Clock issues revisions from an atomic counter. The zero value is ready
// to use and starts at revision 0; the first Next returns 1.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock starting at revision 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock whose Current is start. Tests use this to
// pin revision arithmetic.
func NewClockAt(start Revision) *Clock {
	c := &Clock{}
	c.seq.Store(int64(start))
	return c
}

// Next advances the clock and returns the new revision.
func (c *Clock) Next() Revision {
	return Revision(c.seq.Add(1))
}

// Current returns the latest issued revision without advancing.
func (c *Clock) Current() Revision {
	return Revision(c.seq.Load())
}
