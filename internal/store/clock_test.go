package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_NextIsMonotonic(t *testing.T) {
	c := NewClock()

	assert.Equal(t, Revision(0), c.Current())
	assert.Equal(t, Revision(1), c.Next())
	assert.Equal(t, Revision(2), c.Next())
	assert.Equal(t, Revision(2), c.Current())
}

func TestClock_NewClockAt(t *testing.T) {
	c := NewClockAt(41)
	assert.Equal(t, Revision(41), c.Current())
	assert.Equal(t, Revision(42), c.Next())
}

func TestClock_ConcurrentNextNeverRepeats(t *testing.T) {
	c := NewClock()

	const goroutines = 8
	const perGoroutine = 200

	var mu sync.Mutex
	seen := make(map[Revision]bool)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]Revision, 0, perGoroutine)
			for j := 0; j < perGoroutine; j++ {
				local = append(local, c.Next())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, r := range local {
				assert.False(t, seen[r], "revision %d issued twice", r)
				seen[r] = true
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
	assert.Equal(t, Revision(goroutines*perGoroutine), c.Current())
}
