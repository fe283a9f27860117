// Package harness runs conformance scenarios end to end: YAML fixtures
// describing headers, binds, and edits execute against a real session,
// and golden files pin the canonical serialization of everything that
// came out.
//
// Scenarios are deliberately small and human-readable; each one
// demonstrates a single observable behavior (a layout, an invalidation,
// a failure mode) and doubles as documentation. The runner builds the
// session the same way a host would, except that header content comes
// from overlays and generation tokens come from a fixed sequence so
// snapshots stay byte-stable.
//
// Property checks (VerifyDeterminism, VerifyMemoization) re-run whole
// scenarios to confirm the engine's guarantees hold for arbitrary
// fixtures, not just for hand-written unit test cases.
package harness
