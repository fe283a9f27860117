package harness

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/roach88/ccbind/internal/diag"
	"github.com/roach88/ccbind/internal/engine"
	"github.com/roach88/ccbind/internal/parse"
	"github.com/roach88/ccbind/internal/translate"
)

// Result is the recorded outcome of running a scenario: one BindOutcome
// per bind step, in step order. The session survives in the result so
// property checks can keep interrogating it.
type Result struct {
	Scenario *Scenario
	Binds    []BindOutcome

	sess *engine.Session
}

// BindOutcome pairs one bind step with what it produced.
type BindOutcome struct {
	Step   int
	Header string
	Flags  []string
	Names  []string
	Out    *engine.BindResult
}

// Session returns the session the scenario ran on.
func (r *Result) Session() *engine.Session { return r.sess }

// Run executes a scenario against a fresh session. Expectation failures
// and step errors abort the run with an error naming the step; the
// recorded outcomes up to that point are discarded with it.
func Run(s *Scenario) (*Result, error) {
	loader := parse.NewFileLoader()
	for _, h := range s.Headers {
		loader.SetOverlay(h.Path, []byte(h.Source))
	}

	tokens := make([]string, 128)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("gen-%03d", i+1)
	}
	opts := []engine.SessionOption{
		engine.WithLoader(loader),
		engine.WithTokenGenerator(parse.NewFixedGenerator(tokens...)),
	}
	if s.Profile != "" {
		profile, err := translate.LoadNamed(s.Profile)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		opts = append(opts, engine.WithProfile(profile))
	}
	sess, err := engine.NewSession(opts...)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	ctx := context.Background()
	result := &Result{Scenario: s, sess: sess}
	for i, step := range s.Steps {
		switch {
		case step.Bind != nil:
			out, err := sess.Bind(ctx, engine.BindRequest{
				Header: step.Bind.Header,
				Flags:  step.Bind.Flags,
				Names:  step.Bind.Names,
			})
			if err != nil {
				return nil, fmt.Errorf("scenario %s: steps[%d]: bind %s: %w", s.Name, i, step.Bind.Header, err)
			}
			result.Binds = append(result.Binds, BindOutcome{
				Step:   i,
				Header: step.Bind.Header,
				Flags:  step.Bind.Flags,
				Names:  step.Bind.Names,
				Out:    out,
			})
			if step.Expect != nil {
				if err := checkExpect(i, step.Expect, out); err != nil {
					return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
				}
			}

		case step.Edit != nil:
			if _, err := sess.SetOverlay(step.Edit.Path, []byte(step.Edit.Source)); err != nil {
				return nil, fmt.Errorf("scenario %s: steps[%d]: edit %s: %w", s.Name, i, step.Edit.Path, err)
			}

		case step.Remove != nil:
			if _, err := sess.DropOverlay(step.Remove.Path); err != nil {
				return nil, fmt.Errorf("scenario %s: steps[%d]: remove %s: %w", s.Name, i, step.Remove.Path, err)
			}
		}
	}
	return result, nil
}

func checkExpect(index int, expect *ExpectClause, out *engine.BindResult) error {
	if expect.Descriptors != nil && len(out.Descriptors) != *expect.Descriptors {
		return fmt.Errorf("steps[%d].expect: got %d descriptors, want %d",
			index, len(out.Descriptors), *expect.Descriptors)
	}

	if expect.Names != nil {
		got := make([]string, len(out.Descriptors))
		for i, d := range out.Descriptors {
			got[i] = d.Name
		}
		if !slices.Equal(got, expect.Names) {
			return fmt.Errorf("steps[%d].expect: bound names %v, want %v", index, got, expect.Names)
		}
	}

	if expect.Codes != nil {
		got := diagCodes(out.Diags)
		want := append([]string(nil), expect.Codes...)
		sort.Strings(got)
		sort.Strings(want)
		if !slices.Equal(got, want) {
			return fmt.Errorf("steps[%d].expect: diagnostic codes %v, want %v", index, got, want)
		}
	}
	return nil
}

func diagCodes(diags []diag.Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Code
	}
	return out
}
