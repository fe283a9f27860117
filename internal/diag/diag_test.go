package diag

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/ccbind/internal/span"
)

func TestAggregator_AddAndAll(t *testing.T) {
	a := NewAggregator()

	a.Add(Errorf(CodeNotFound, span.None, "no declaration named %q", "distance"))
	a.Add(Warningf(CodePartialLayout, span.None, "union layout is best-effort"))

	all := a.All()
	assert.Len(t, all, 2)
	assert.Equal(t, CodeNotFound, all[0].Code)
	assert.Equal(t, CodePartialLayout, all[1].Code)
}

func TestAggregator_All_ReturnsCopy(t *testing.T) {
	a := NewAggregator()
	a.Add(Notef("note", span.None, "just a note"))

	got := a.All()
	got[0].Message = "mutated"

	assert.Equal(t, "just a note", a.All()[0].Message, "mutating the returned slice must not affect the aggregator")
}

func TestAggregator_HasErrors(t *testing.T) {
	a := NewAggregator()
	assert.False(t, a.HasErrors(), "empty aggregator has no errors")

	a.Add(Warningf(CodePartialLayout, span.None, "warning only"))
	assert.False(t, a.HasErrors(), "a build with only warnings succeeds")

	a.Add(Errorf(CodeParse, span.None, "bad token"))
	assert.True(t, a.HasErrors())
}

func TestAggregator_CountSeverity(t *testing.T) {
	a := NewAggregator()
	a.Add(
		Errorf(CodeParse, span.None, "one"),
		Warningf(CodePartialLayout, span.None, "two"),
		Errorf(CodeNotFound, span.None, "three"),
	)

	assert.Equal(t, 2, a.CountSeverity(SeverityError))
	assert.Equal(t, 1, a.CountSeverity(SeverityWarning))
	assert.Equal(t, 0, a.CountSeverity(SeverityNote))
	assert.Equal(t, 3, a.Count())
}

func TestAggregator_Reset(t *testing.T) {
	a := NewAggregator()
	a.Add(Errorf(CodeParse, span.None, "stale"))

	a.Reset()

	assert.Equal(t, 0, a.Count())
	assert.False(t, a.HasErrors())
}

func TestAggregator_ConcurrentAdd(t *testing.T) {
	a := NewAggregator()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				a.Add(Notef("note", span.None, "concurrent"))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, a.Count())
}

func TestDiagnostic_WithOrigin(t *testing.T) {
	d := Errorf(CodeNotFound, span.None, "missing").WithOrigin("resolve_name(ast=0 name=missing)")
	assert.Equal(t, "resolve_name(ast=0 name=missing)", d.Origin)
}

func TestDiagnostic_CanonicalMap(t *testing.T) {
	d := Errorf(CodeParse, span.SpanID(3), "unexpected token")
	m := d.CanonicalMap()

	assert.Equal(t, "error", m["severity"])
	assert.Equal(t, CodeParse, m["code"])
	assert.Equal(t, int64(3), m["span"])
	assert.NotContains(t, m, "origin", "empty origin is omitted")

	withOrigin := d.WithOrigin("parse_header(path=x.h)")
	assert.Equal(t, "parse_header(path=x.h)", withOrigin.CanonicalMap()["origin"])
}
