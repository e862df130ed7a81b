package statestore

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holoncore/travel-orchestrator/holon"
)

// Namespace is an isolated keyspace with its own policy (§4.2).
type Namespace struct {
	Name string
	cfg  NamespaceConfig

	codec      Codec
	compressor Compressor
	cipher     Cipher
	replicator Replicator

	log holon.Logger

	mu   sync.RWMutex
	data map[string]*Entry

	locks     *lockTable
	index     *namespaceIndex
	conflicts *conflictRing

	// recency tracks access order for LRU-ish eviction. It is a cache in
	// its own right (bounded to a generous fixed size rather than MaxSize,
	// since data may exceed MaxSize between eviction sweeps) used purely
	// for its ordered-eviction bookkeeping, not as the system of record —
	// data is.
	recency *lru.Cache[string, struct{}]

	subs *subscriptionHub
}

func newNamespace(name string, cfg NamespaceConfig, log holon.Logger, replicator Replicator) (*Namespace, error) {
	if log == nil {
		log = holon.NopLogger{}
	}
	var idx *namespaceIndex
	if cfg.Indexing {
		var err error
		idx, err = newNamespaceIndex(cfg.IndexFields)
		if err != nil {
			return nil, err
		}
	}

	recency, err := lru.New[string, struct{}](1 << 20)
	if err != nil {
		return nil, err
	}

	var cipher Cipher
	if cfg.Encryption {
		cipher = newXORStubCipher(nil)
	}

	ns := &Namespace{
		Name:       name,
		cfg:        cfg,
		codec:      gobCodec{},
		compressor: gzipCompressor{},
		cipher:     cipher,
		replicator: replicator,
		log:        log,
		data:       make(map[string]*Entry),
		locks:      newLockTable(holon.RealClock),
		index:      idx,
		conflicts:  newConflictRing(1000),
		recency:    recency,
		subs:       newSubscriptionHub(),
	}
	return ns, nil
}

// encode runs the full write-side pipeline: serialize, compress above
// threshold, encrypt if configured (§3).
func (ns *Namespace) encode(v any) ([]byte, int, error) {
	raw, err := ns.codec.Encode(v)
	if err != nil {
		return nil, 0, holon.NewError(holon.KindSchema, "failed to encode value", holon.WithCause(err))
	}
	size := len(raw)

	out := raw
	if ns.cfg.CompressionThreshold > 0 && size > ns.cfg.CompressionThreshold {
		out, err = ns.compressor.Compress(out)
		if err != nil {
			return nil, 0, holon.NewError(holon.KindInternal, "compression failed", holon.WithCause(err))
		}
	}
	if ns.cipher != nil {
		out, err = ns.cipher.Encrypt(out)
		if err != nil {
			return nil, 0, holon.NewError(holon.KindInternal, "encryption failed", holon.WithCause(err))
		}
	}
	return out, size, nil
}

func (ns *Namespace) decode(stored []byte, wasCompressed bool) (any, error) {
	data := stored
	var err error
	if ns.cipher != nil {
		data, err = ns.cipher.Decrypt(data)
		if err != nil {
			return nil, holon.NewError(holon.KindInternal, "decryption failed", holon.WithCause(err))
		}
	}
	if wasCompressed {
		data, err = ns.compressor.Decompress(data)
		if err != nil {
			return nil, holon.NewError(holon.KindInternal, "decompression failed", holon.WithCause(err))
		}
	}
	var out any
	if err := ns.codec.Decode(data, &out); err != nil {
		return nil, holon.NewError(holon.KindInternal, "decode failed", holon.WithCause(err))
	}
	return out, nil
}

// set stages and commits a single write, resolving conflicts per
// cfg.ConflictMode when expectedVersion is stale (§4.2). owner identifies
// the caller holding any lock on key — empty for a plain, non-transactional
// write, or the transaction's owner id when called from Transaction.Commit,
// so a transaction can commit its own staged writes under the very lock it
// acquired instead of being rejected as held by another owner.
func (ns *Namespace) set(key string, value any, opts SetOptions, now time.Time, owner string) (SetResult, error) {
	if ns.locks.heldByOther(key, owner) {
		return SetResult{}, holon.NewError(holon.KindConflict, "key is locked")
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	existing, exists := ns.data[key]

	var version uint64 = 1
	finalValue := value
	if exists {
		version = existing.Version + 1
		if opts.ExpectedVersion != nil && *opts.ExpectedVersion != existing.Version {
			resolved, resolvedErr := resolveConflict(ns.cfg.ConflictMode, existing.Value, value)
			if resolvedErr != nil {
				ns.conflicts.record(ConflictRecord{Key: key, Existing: existing.Value, Incoming: value, Timestamp: now})
				return SetResult{}, resolvedErr
			}
			finalValue = resolved
		}
	}

	stored, rawSize, err := ns.encode(finalValue)
	if err != nil {
		return SetResult{}, err
	}
	wasCompressed := ns.cfg.CompressionThreshold > 0 && rawSize > ns.cfg.CompressionThreshold

	ttl := opts.TTL
	if ttl == nil {
		ttl = ns.cfg.TTL
	}
	var expiresAt *time.Time
	if ttl != nil {
		t := now.Add(*ttl)
		expiresAt = &t
	}

	entry := &Entry{
		Key:          key,
		Value:        finalValue,
		stored:       stored,
		compressed:   wasCompressed,
		Version:      version,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastAccessed: now,
		TTL:          ttl,
		ExpiresAt:    expiresAt,
		Size:         rawSize,
		Tags:         opts.Tags,
		Metadata:     opts.Metadata,
	}
	if exists {
		entry.CreatedAt = existing.CreatedAt
	}

	ns.data[key] = entry
	ns.recency.Add(key, struct{}{})

	if ns.index != nil {
		if err := ns.index.upsert(key, opts.Indexes); err != nil {
			return SetResult{}, holon.NewError(holon.KindInternal, "index update failed", holon.WithCause(err))
		}
	}

	ns.subs.notify(key, "set", entry)

	return SetResult{Version: entry.Version, Timestamp: entry.UpdatedAt, ExpiresAt: entry.ExpiresAt}, nil
}

// get reads a key, honoring TTL expiry as a side-effecting delete
// (invariant: readers never observe an expired value).
func (ns *Namespace) get(key string, now time.Time) (GetResult, bool) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	entry, ok := ns.data[key]
	if !ok {
		return GetResult{}, false
	}
	if entry.expired(now) {
		ns.deleteLocked(key)
		return GetResult{}, false
	}
	entry.LastAccessed = now
	entry.AccessCount++
	ns.recency.Add(key, struct{}{})
	return GetResult{Value: entry.Value, Version: entry.Version, Metadata: entry.Metadata}, true
}

func (ns *Namespace) delete(key string) bool {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.deleteLocked(key)
}

func (ns *Namespace) deleteLocked(key string) bool {
	entry, ok := ns.data[key]
	if !ok {
		return false
	}
	delete(ns.data, key)
	ns.recency.Remove(key)
	if ns.index != nil {
		_ = ns.index.remove(key)
	}
	ns.subs.notify(key, "delete", entry)
	return true
}

func (ns *Namespace) exists(key string, now time.Time) bool {
	ns.mu.RLock()
	entry, ok := ns.data[key]
	ns.mu.RUnlock()
	if !ok {
		return false
	}
	if entry.expired(now) {
		ns.delete(key)
		return false
	}
	return true
}

// keys returns every key matching the glob pattern (§4.2's keys(pattern,
// limit?)), using the same filepath.Match semantics subscriptions match
// against. An empty pattern matches everything. limit<=0 means unbounded.
func (ns *Namespace) keys(pattern string, limit int) []string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	out := make([]string, 0, len(ns.data))
	for k := range ns.data {
		if pattern == "" {
			out = append(out, k)
			continue
		}
		if ok, _ := filepath.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (ns *Namespace) ttl(key string, now time.Time) (time.Duration, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	entry, ok := ns.data[key]
	if !ok || entry.ExpiresAt == nil {
		return 0, false
	}
	return entry.ExpiresAt.Sub(now), true
}

func (ns *Namespace) expire(key string, ttl time.Duration, now time.Time) bool {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	entry, ok := ns.data[key]
	if !ok {
		return false
	}
	t := now.Add(ttl)
	entry.TTL = &ttl
	entry.ExpiresAt = &t
	return true
}

func (ns *Namespace) persist(key string) bool {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	entry, ok := ns.data[key]
	if !ok {
		return false
	}
	entry.TTL = nil
	entry.ExpiresAt = nil
	return true
}

// increment atomically adds delta to a numeric entry, creating it at
// delta if absent.
func (ns *Namespace) increment(key string, delta int64, now time.Time) (int64, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	entry, ok := ns.data[key]
	if !ok {
		stored, _, err := ns.encode(delta)
		if err != nil {
			return 0, err
		}
		ns.data[key] = &Entry{Key: key, Value: delta, stored: stored, Version: 1, CreatedAt: now, UpdatedAt: now, LastAccessed: now}
		ns.recency.Add(key, struct{}{})
		return delta, nil
	}

	var current int64
	switch v := entry.Value.(type) {
	case int64:
		current = v
	case int:
		current = int64(v)
	default:
		return 0, holon.NewError(holon.KindSchema, "value is not numeric")
	}
	next := current + delta
	stored, rawSize, err := ns.encode(next)
	if err != nil {
		return 0, err
	}
	entry.Value = next
	entry.stored = stored
	entry.compressed = ns.cfg.CompressionThreshold > 0 && rawSize > ns.cfg.CompressionThreshold
	entry.Version++
	entry.UpdatedAt = now
	return next, nil
}

// evictLRU drops the 10% least-recently-used entries once the namespace
// exceeds MaxSize (§4.5).
func (ns *Namespace) evictLRU(now time.Time) int {
	if ns.cfg.MaxSize <= 0 {
		return 0
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if len(ns.data) <= ns.cfg.MaxSize {
		return 0
	}
	toEvict := len(ns.data) / 10
	if toEvict == 0 {
		toEvict = 1
	}
	keys := ns.recency.Keys() // oldest first
	evicted := 0
	for _, k := range keys {
		if evicted >= toEvict {
			break
		}
		if ns.deleteLocked(k) {
			evicted++
		}
	}
	return evicted
}

// sweepExpired deletes every entry whose TTL has lapsed.
func (ns *Namespace) sweepExpired(now time.Time) int {
	ns.mu.Lock()
	var expiredKeys []string
	for k, e := range ns.data {
		if e.expired(now) {
			expiredKeys = append(expiredKeys, k)
		}
	}
	ns.mu.Unlock()

	for _, k := range expiredKeys {
		ns.delete(k)
	}
	return len(expiredKeys)
}

func (ns *Namespace) size() int {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return len(ns.data)
}

func (ns *Namespace) recentConflicts(n int) []ConflictRecord {
	return ns.conflicts.recent(n)
}

func (ns *Namespace) queryIndex(field, value string) ([]string, error) {
	if ns.index == nil {
		return nil, holon.NewError(holon.KindSchema, "namespace does not have indexing enabled")
	}
	return ns.index.query(field, value)
}

// resolveConflict applies cfg.ConflictMode when a write's expectedVersion
// does not match the stored version (§4.2).
func resolveConflict(mode ConflictMode, existing, incoming any) (any, error) {
	switch mode {
	case ConflictFirstWriteWins:
		return existing, nil
	case ConflictAppend:
		existingSlice, ok1 := existing.([]any)
		if !ok1 {
			existingSlice = []any{existing}
		}
		return append(existingSlice, incoming), nil
	case ConflictMerge:
		existingMap, ok1 := existing.(map[string]any)
		incomingMap, ok2 := incoming.(map[string]any)
		if !ok1 || !ok2 {
			return incoming, nil
		}
		merged := make(map[string]any, len(existingMap)+len(incomingMap))
		for k, v := range existingMap {
			merged[k] = v
		}
		for k, v := range incomingMap {
			merged[k] = v
		}
		return merged, nil
	case ConflictManual:
		return nil, holon.NewError(holon.KindConflict, "version mismatch requires manual resolution")
	case ConflictLastWriteWins:
		fallthrough
	default:
		return incoming, nil
	}
}
