// Package mapping provides the canonical domain types and the pure
// rule-resolution core for the field-mapping engine.
//
// This package contains no side effects. All other internal packages
// import mapping; mapping imports nothing internal. This keeps the
// resolution semantics testable in isolation and safely invocable
// concurrently (the resolver never mutates its inputs).
//
// Key design constraints:
//   - A FieldBag is never mutated by resolution
//   - Date transforms are total, deterministic functions of their input
//   - "Blank" means empty, absent, or extractor-flagged low confidence;
//     a zero-confidence extraction is never silently accepted
//   - Configuration errors (duplicate targets, bad patterns) are caught
//     at validation time, never at resolution time
package mapping
