package engine

import "sync"

// lockTable serializes sync attempts per invoice.
//
// Two concurrent AttemptSync calls for the same invoice must not both
// reach the accounting system: the second caller blocks until the first
// finishes, then observes the recorded outcome. Locks for distinct
// invoices are independent.
//
// Entries are reference-counted and removed when the last holder
// releases, so the table stays bounded by in-flight attempts rather
// than growing with every invoice ever synced.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*lockEntry)}
}

// acquire blocks until the caller holds the lock for id.
func (t *lockTable) acquire(id string) {
	t.mu.Lock()
	e, ok := t.locks[id]
	if !ok {
		e = &lockEntry{}
		t.locks[id] = e
	}
	e.refs++
	t.mu.Unlock()

	e.mu.Lock()
}

// release drops the lock for id, deleting the entry once nobody else
// is waiting on it.
func (t *lockTable) release(id string) {
	t.mu.Lock()
	e := t.locks[id]
	e.refs--
	if e.refs == 0 {
		delete(t.locks, id)
	}
	t.mu.Unlock()

	e.mu.Unlock()
}

// size returns the number of live entries. Used for testing cleanup.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
