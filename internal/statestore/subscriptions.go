package statestore

import (
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ChangeEvent is delivered to a key-pattern subscriber on set/delete.
type ChangeEvent struct {
	Key   string
	Kind  string // "set" or "delete"
	Entry *Entry
}

// ChangeHandler receives namespace change notifications.
type ChangeHandler func(ChangeEvent)

type changeSubscription struct {
	id      string
	pattern string
	handler ChangeHandler
}

// subscriptionHub fans out per-key changes to glob-pattern subscribers
// (§4.6). Pattern matching uses filepath.Match, the same glob semantics
// the teacher's config watchers use for path patterns.
type subscriptionHub struct {
	mu   sync.RWMutex
	subs map[string]*changeSubscription
}

func newSubscriptionHub() *subscriptionHub {
	return &subscriptionHub{subs: make(map[string]*changeSubscription)}
}

func (h *subscriptionHub) subscribe(pattern string, handler ChangeHandler) string {
	id := uuid.NewString()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[id] = &changeSubscription{id: id, pattern: pattern, handler: handler}
	return id
}

func (h *subscriptionHub) unsubscribe(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[id]; !ok {
		return false
	}
	delete(h.subs, id)
	return true
}

func (h *subscriptionHub) notify(key, kind string, entry *Entry) {
	h.mu.RLock()
	matched := make([]*changeSubscription, 0)
	for _, s := range h.subs {
		if ok, _ := filepath.Match(s.pattern, key); ok {
			matched = append(matched, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range matched {
		go s.handler(ChangeEvent{Key: key, Kind: kind, Entry: entry})
	}
}
