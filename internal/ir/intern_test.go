package ir

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterner_AssignsDenseIDs(t *testing.T) {
	in := NewInterner[string]()

	assert.Equal(t, int32(0), in.Intern("point.h"))
	assert.Equal(t, int32(1), in.Intern("vec.h"))
	assert.Equal(t, int32(2), in.Intern("mat.h"))
	assert.Equal(t, 3, in.Len())
}

func TestInterner_SameValueSameID(t *testing.T) {
	in := NewInterner[string]()

	id1 := in.Intern("point.h")
	id2 := in.Intern("point.h")

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, in.Len())
}

func TestInterner_Lookup(t *testing.T) {
	in := NewInterner[string]()
	id := in.Intern("point.h")

	got, ok := in.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, "point.h", got)
}

func TestInterner_LookupUnknownID(t *testing.T) {
	in := NewInterner[string]()

	_, ok := in.Lookup(7)
	assert.False(t, ok)

	_, ok = in.Lookup(-1)
	assert.False(t, ok)
}

func TestInterner_StructKeys(t *testing.T) {
	type lineage struct {
		Path  string
		Flags string
	}
	in := NewInterner[lineage]()

	c := in.Intern(lineage{Path: "point.h", Flags: "-x c"})
	cpp := in.Intern(lineage{Path: "point.h", Flags: "-x c++"})

	assert.NotEqual(t, c, cpp, "distinct flag sets are distinct lineages")
}

func TestInterner_ConcurrentIntern(t *testing.T) {
	in := NewInterner[int]()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for v := 0; v < 100; v++ {
				in.Intern(v)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, in.Len(), "each distinct value interned exactly once")
}
