package harness

import (
	"bytes"
	"context"
	"fmt"

	"github.com/roach88/ccbind/internal/engine"
	"github.com/roach88/ccbind/internal/ir"
)

// Property checks. These verify the engine's observable guarantees hold
// for a whole scenario, not just for the hand-picked cases in unit
// tests; any scenario fixture can be run through them.

// VerifyDeterminism runs the scenario twice in fresh sessions and
// requires byte-identical canonical snapshots. Nothing about session
// construction, map ordering, or token generation may leak into results.
func VerifyDeterminism(s *Scenario) error {
	first, err := Run(s)
	if err != nil {
		return err
	}
	second, err := Run(s)
	if err != nil {
		return err
	}

	a, err := ir.MarshalCanonical(first.Snapshot())
	if err != nil {
		return err
	}
	b, err := ir.MarshalCanonical(second.Snapshot())
	if err != nil {
		return err
	}
	if !bytes.Equal(a, b) {
		return fmt.Errorf("scenario %s: two runs produced different snapshots", s.Name)
	}
	return nil
}

// VerifyMemoization replays the scenario's final bind step against the
// session it already ran on and requires that no query kind evaluated
// again and the frontend parsed nothing. This is the cache-hit
// guarantee: an unchanged world costs no work beyond the freshness walk.
func VerifyMemoization(s *Scenario) error {
	result, err := Run(s)
	if err != nil {
		return err
	}
	if len(result.Binds) == 0 {
		return fmt.Errorf("scenario %s: no bind steps to replay", s.Name)
	}
	last := result.Binds[len(result.Binds)-1]

	sess := result.Session()
	before := sess.Metrics()
	replay, err := sess.Bind(context.Background(), engine.BindRequest{
		Header: last.Header,
		Flags:  last.Flags,
		Names:  last.Names,
	})
	if err != nil {
		return fmt.Errorf("scenario %s: replay: %w", s.Name, err)
	}
	after := sess.Metrics()

	for kind, count := range after.Engine.Computes {
		if count != before.Engine.Computes[kind] {
			return fmt.Errorf("scenario %s: replay recomputed %s", s.Name, kind)
		}
	}
	if after.Frontend.FrontendParses != before.Frontend.FrontendParses {
		return fmt.Errorf("scenario %s: replay reran the frontend", s.Name)
	}

	if len(replay.Descriptors) != len(last.Out.Descriptors) {
		return fmt.Errorf("scenario %s: replay bound %d descriptors, first run bound %d",
			s.Name, len(replay.Descriptors), len(last.Out.Descriptors))
	}
	for i := range replay.Descriptors {
		if ir.MustDescriptorFingerprint(replay.Descriptors[i]) != ir.MustDescriptorFingerprint(last.Out.Descriptors[i]) {
			return fmt.Errorf("scenario %s: replay descriptor %d differs", s.Name, i)
		}
	}
	return nil
}
