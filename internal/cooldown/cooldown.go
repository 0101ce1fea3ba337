// Package cooldown tracks "has enough time elapsed since this key last
// triggered" for restart and recovery actions. Both the service monitor and
// the resource monitor share this ledger type, each with its own instance.
package cooldown

import (
	"sync"
	"time"
)

// Tracker records the last trigger time per key. Timestamps come from
// time.Now(), whose monotonic clock reading makes elapsed-time comparison
// immune to wall-clock adjustments. Safe for concurrent use.
type Tracker struct {
	mu   sync.Mutex
	last map[string]time.Time

	// now is replaceable for tests
	now func() time.Time
}

// NewTracker creates an empty cooldown tracker.
func NewTracker() *Tracker {
	return &Tracker{
		last: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Allow reports whether an action keyed by key may trigger given the
// configured cooldown. A key that has never triggered is always allowed.
// A non-positive cooldown disables the gate.
func (t *Tracker) Allow(key string, cooldown time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowLocked(key, cooldown)
}

// Record marks key as having triggered now.
func (t *Tracker) Record(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[key] = t.now()
}

// TryAcquire atomically checks the cooldown and, if allowed, records the
// trigger. Concurrent callers sharing a key cannot both acquire within one
// window: the check and the record happen under a single lock.
func (t *Tracker) TryAcquire(key string, cooldown time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.allowLocked(key, cooldown) {
		return false
	}
	t.last[key] = t.now()
	return true
}

// Reset forgets all recorded triggers. Used when configuration is reloaded.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = make(map[string]time.Time)
}

func (t *Tracker) allowLocked(key string, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return true
	}
	last, ok := t.last[key]
	if !ok {
		return true
	}
	return t.now().Sub(last) >= cooldown
}
