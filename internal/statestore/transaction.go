package statestore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/holoncore/travel-orchestrator/holon"
)

type txnOp struct {
	kind  string // "set" or "delete"
	value any
	opts  SetOptions
}

// Transaction batches writes to a single namespace under canonical-order
// key locking (§4.4): every participant locks its key set in the same
// sorted order, which rules out the classic lock-order deadlock. Reads
// inside a transaction are read-committed — they see the namespace's
// already-committed state, plus the transaction's own staged writes, but
// never another transaction's in-flight staging.
type Transaction struct {
	ID    string
	ns    *Namespace
	owner string

	keys   []string
	staged map[string]txnOp

	locked    bool
	committed bool
	rolledBack bool
}

// beginTransaction sorts keys into canonical order and acquires a lock for
// each, releasing everything already acquired if any key is held by
// another owner.
func beginTransaction(ns *Namespace, owner string, keys []string, lockTTL time.Duration) (*Transaction, error) {
	sorted := append([]string{}, keys...)
	sort.Strings(sorted)

	acquired := make([]string, 0, len(sorted))
	for _, k := range sorted {
		if err := ns.locks.acquire(k, owner, lockTTL); err != nil {
			for _, a := range acquired {
				_ = ns.locks.release(a, owner)
			}
			return nil, err
		}
		acquired = append(acquired, k)
	}

	return &Transaction{
		ID:     uuid.NewString(),
		ns:     ns,
		owner:  owner,
		keys:   sorted,
		staged: make(map[string]txnOp),
		locked: true,
	}, nil
}

func (t *Transaction) requireLocked(key string) error {
	found := false
	for _, k := range t.keys {
		if k == key {
			found = true
			break
		}
	}
	if !found {
		return holon.NewError(holon.KindSchema, "key was not part of the transaction's lock set", holon.WithRule(key))
	}
	return nil
}

// Set stages a write, applied only on Commit.
func (t *Transaction) Set(key string, value any, opts SetOptions) error {
	if err := t.requireLocked(key); err != nil {
		return err
	}
	t.staged[key] = txnOp{kind: "set", value: value, opts: opts}
	return nil
}

// Delete stages a delete, applied only on Commit.
func (t *Transaction) Delete(key string) error {
	if err := t.requireLocked(key); err != nil {
		return err
	}
	t.staged[key] = txnOp{kind: "delete"}
	return nil
}

// Get reads read-committed state: the transaction's own staged value if
// present, otherwise the namespace's committed value.
func (t *Transaction) Get(key string) (GetResult, bool) {
	if op, ok := t.staged[key]; ok {
		if op.kind == "delete" {
			return GetResult{}, false
		}
		return GetResult{Value: op.value}, true
	}
	return t.ns.get(key, time.Now())
}

// Commit applies every staged operation and releases the transaction's
// locks. A context deadline exceeded mid-apply rolls the whole batch back
// (§4.4 rollback on timeout): partial application is never observed by
// other readers because every op hits an already-exclusively-locked key.
func (t *Transaction) Commit(ctx context.Context) error {
	if !t.locked || t.committed || t.rolledBack {
		return holon.NewError(holon.KindInternal, "transaction is not active")
	}
	defer t.release()

	now := time.Now()
	for _, key := range t.keys {
		select {
		case <-ctx.Done():
			return holon.NewError(holon.KindTimeout, "transaction commit timed out")
		default:
		}
		op, ok := t.staged[key]
		if !ok {
			continue
		}
		switch op.kind {
		case "set":
			if _, err := t.ns.set(key, op.value, op.opts, now, t.owner); err != nil {
				return err
			}
		case "delete":
			t.ns.delete(key)
		}
	}
	t.committed = true
	return nil
}

// Rollback discards all staged operations, leaving the namespace
// unmodified, and releases the transaction's locks.
func (t *Transaction) Rollback() {
	t.rolledBack = true
	t.release()
}

func (t *Transaction) release() {
	if !t.locked {
		return
	}
	for _, k := range t.keys {
		_ = t.ns.locks.release(k, t.owner)
	}
	t.locked = false
}
