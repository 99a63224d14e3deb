// Package engine drives invoice synchronization: it selects the mapping
// profile for an invoice, runs the resolution pipeline, enforces the
// review lifecycle, and posts the assembled payload to the accounting
// system.
//
// The pipeline itself is pure (see Execute); all side effects are
// concentrated in the Engine methods, which serialize per invoice so a
// concurrent retry can never produce a second external record.
package engine
