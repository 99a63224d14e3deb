// Package store provides SQLite-backed durable storage for mapping
// profiles, invoices and the sync-attempt log.
//
// # Invariants owned here
//
//   - Profile names are unique per organization (UNIQUE constraint).
//   - At most one default profile per organization, enforced with a
//     clear-then-set transactional update plus a partial unique index
//     as a backstop.
//   - Vendor patterns are compiled at save time; an invalid pattern can
//     never reach profile selection.
//   - Listing profiles returns creation order. That order is the
//     persisted, stable evaluation order for vendor-pattern selection.
//   - sync_attempts is append-only and snapshots the exact rule set each
//     attempt ran with, so editing a live profile never rewrites history.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//   - Single-writer pool: SQLite allows one writer at a time, so the
//     pool is capped at one connection to avoid SQLITE_BUSY
//
// Schema changes are tracked via PRAGMA user_version.
package store
