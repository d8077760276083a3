// Package flood is a counter-based throttle bounding events per identity
// bucket within a trailing time window. Administrators are exempt at the call
// site; the limiter itself is never consulted for them.
package flood

import (
	"sync"
	"time"
)

// Limiter records events per bucket and answers whether another event is
// allowed. Expired events are dropped lazily on each check; there is no
// eviction goroutine.
type Limiter struct {
	mu     sync.Mutex
	now    func() time.Time
	events map[string][]time.Time
}

// NewLimiter builds a limiter with the given clock. A nil clock means
// time.Now.
func NewLimiter(now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{now: now, events: make(map[string][]time.Time)}
}

// IsAllowed reports whether fewer than limit events are registered for the
// bucket within the trailing window.
func (l *Limiter) IsAllowed(bucket string, limit int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(bucket, window)) < limit
}

// Register records one event for the bucket at the current time.
func (l *Limiter) Register(bucket string, window time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[bucket] = append(l.prune(bucket, window), l.now())
}

// Attempt checks the limit and records the event in one critical section, so
// two concurrent callers at limit-1 can never both be admitted. It reports
// whether the event was recorded.
func (l *Limiter) Attempt(bucket string, limit int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	live := l.prune(bucket, window)
	if len(live) >= limit {
		return false
	}
	l.events[bucket] = append(live, l.now())
	return true
}

// Unregister drops the newest event from the bucket, compensating for an
// Attempt whose guarded action failed.
func (l *Limiter) Unregister(bucket string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	events := l.events[bucket]
	switch len(events) {
	case 0:
	case 1:
		delete(l.events, bucket)
	default:
		l.events[bucket] = events[:len(events)-1]
	}
}

// prune drops events older than the window. Caller holds the mutex.
func (l *Limiter) prune(bucket string, window time.Duration) []time.Time {
	cutoff := l.now().Add(-window)
	kept := l.events[bucket][:0]
	for _, at := range l.events[bucket] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) == 0 {
		delete(l.events, bucket)
		return nil
	}
	l.events[bucket] = kept
	return kept
}
