package settlement

import "sync"

// recordLocks hands out one mutex per donation uuid so the completed guard,
// the gateway call and the completion write form a single critical section
// for a given record. Entries are reference counted and freed on release.
type recordLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newRecordLocks() *recordLocks {
	return &recordLocks{locks: make(map[string]*lockEntry)}
}

// acquire blocks until the per-record lock is held and returns the release
// function.
func (r *recordLocks) acquire(key string) func() {
	r.mu.Lock()
	entry, ok := r.locks[key]
	if !ok {
		entry = &lockEntry{}
		r.locks[key] = entry
	}
	entry.refs++
	r.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		r.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(r.locks, key)
		}
		r.mu.Unlock()
	}
}
