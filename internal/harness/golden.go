package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ccbind/internal/ir"
)

// Snapshot converts the recorded outcomes to a canonical map. The
// serialized form is what golden files pin down: descriptor content,
// diagnostic content, and their order, for every bind step.
func (r *Result) Snapshot() map[string]any {
	steps := make([]any, 0, len(r.Binds))
	for _, b := range r.Binds {
		descs := make([]any, len(b.Out.Descriptors))
		for i, d := range b.Out.Descriptors {
			descs[i] = d.CanonicalMap()
		}
		diags := make([]any, len(b.Out.Diags))
		for i, d := range b.Out.Diags {
			diags[i] = d.CanonicalMap()
		}
		steps = append(steps, map[string]any{
			"step":        int64(b.Step),
			"header":      b.Header,
			"names":       b.Names,
			"descriptors": descs,
			"diagnostics": diags,
		})
	}
	return map[string]any{
		"scenario": r.Scenario.Name,
		"steps":    steps,
	}
}

// RunWithGolden executes a scenario and compares its snapshot against
// the golden file testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) error {
	t.Helper()

	result, err := Run(s)
	if err != nil {
		return err
	}

	data, err := ir.MarshalCanonical(result.Snapshot())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, data)
	return nil
}
