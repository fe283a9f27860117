// Package ir defines the shared value types of the binding engine: query
// identities, declaration handles, binding descriptors, and the canonical
// serialization used to fingerprint all of them.
//
// This package contains type definitions and serialization only. All other
// internal packages import ir; ir imports nothing internal. This keeps ir
// the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO float values anywhere in canonical form - sizes, alignments,
//     offsets, and enumerator values are int64
//   - All JSON tags use snake_case
//   - Canonical JSON (RFC 8785) is the ONLY serialization used for
//     fingerprints and golden snapshots
//   - Cross-references into parsed trees are integer handles (NodeID),
//     never pointers, so a tree can be dropped without dangling state
package ir
