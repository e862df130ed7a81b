package statestore

import (
	"sync"
	"time"

	"github.com/holoncore/travel-orchestrator/holon"
)

// keyLock is a per-key advisory lock: re-entrant for the same owner,
// exclusive across owners, and self-expiring so a crashed holder cannot
// wedge a key forever (§4.4).
type keyLock struct {
	owner     string
	acquired  time.Time
	expiresAt time.Time
}

// lockTable owns the keyLocks for one namespace.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*keyLock
	clock holon.Clock
}

func newLockTable(clock holon.Clock) *lockTable {
	if clock == nil {
		clock = holon.RealClock
	}
	return &lockTable{locks: make(map[string]*keyLock), clock: clock}
}

// acquire grants key to owner for ttl, re-entering if owner already holds
// it. Returns ErrConflict if another live owner holds the lock.
func (t *lockTable) acquire(key, owner string, ttl time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()

	if existing, ok := t.locks[key]; ok && now.Before(existing.expiresAt) {
		if existing.owner != owner {
			return holon.NewError(holon.KindConflict, "key is locked by another owner", holon.WithRule(key))
		}
	}
	t.locks[key] = &keyLock{owner: owner, acquired: now, expiresAt: now.Add(ttl)}
	return nil
}

// release drops the lock on key if owner currently holds it.
func (t *lockTable) release(key, owner string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.locks[key]
	if !ok {
		return nil
	}
	now := t.clock.Now()
	if now.After(existing.expiresAt) {
		delete(t.locks, key)
		return nil
	}
	if existing.owner != owner {
		return holon.NewError(holon.KindConflict, "lock is held by another owner", holon.WithRule(key))
	}
	delete(t.locks, key)
	return nil
}

// heldByOther reports whether key is currently locked by a live, non-expired
// holder other than owner.
func (t *lockTable) heldByOther(key, owner string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.locks[key]
	if !ok {
		return false
	}
	if t.clock.Now().After(existing.expiresAt) {
		return false
	}
	return existing.owner != owner
}

func (t *lockTable) sweepExpired() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	n := 0
	for k, l := range t.locks {
		if now.After(l.expiresAt) {
			delete(t.locks, k)
			n++
		}
	}
	return n
}
