package statestore

import (
	"context"
	"sync"
	"time"

	"github.com/holoncore/travel-orchestrator/holon"
)

// Store is the State Manager: a registry of namespaces plus the
// cross-cutting maintenance (TTL sweep, eviction, lock expiry, snapshotting,
// health) that keeps them healthy (§4). There is no replication catch-up
// sweep.
type Store struct {
	log        holon.Logger
	clock      holon.Clock
	replicator Replicator
	persister  Persister

	mu         sync.RWMutex
	namespaces map[string]*Namespace
	configs    map[string]NamespaceConfig

	periodic *holon.PeriodicTask
}

// NewStore constructs a Store. baseDir, when non-empty, backs namespaces
// that enable Persistence.
func NewStore(log holon.Logger, baseDir string) *Store {
	if log == nil {
		log = holon.NopLogger{}
	}
	var persister Persister
	if baseDir != "" {
		persister = newFilePersister(baseDir, log)
	}
	return &Store{
		log:        log,
		clock:      holon.RealClock,
		replicator: newSimReplicator(log),
		persister:  persister,
		namespaces: make(map[string]*Namespace),
		configs:    make(map[string]NamespaceConfig),
		periodic:   holon.NewPeriodicTask(),
	}
}

// CreateNamespace registers a namespace with cfg, restoring from disk if
// Persistence is enabled and a prior snapshot exists.
func (s *Store) CreateNamespace(name string, cfg NamespaceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.namespaces[name]; ok {
		return holon.NewError(holon.KindConflict, "namespace already exists", holon.WithRule(name))
	}
	ns, err := newNamespace(name, cfg, s.log, s.replicator)
	if err != nil {
		return holon.NewError(holon.KindInternal, "failed to create namespace", holon.WithCause(err))
	}
	if cfg.Persistence && s.persister != nil {
		entries, err := s.persister.Load(name)
		if err != nil {
			return err
		}
		ns.restore(entries, s.clock.Now())
	}
	s.namespaces[name] = ns
	s.configs[name] = cfg
	return nil
}

// DeleteNamespace removes a namespace and all its data.
func (s *Store) DeleteNamespace(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.namespaces[name]; !ok {
		return false
	}
	delete(s.namespaces, name)
	delete(s.configs, name)
	return true
}

// ListNamespaces returns every registered namespace name.
func (s *Store) ListNamespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.namespaces))
	for name := range s.namespaces {
		out = append(out, name)
	}
	return out
}

func (s *Store) namespace(name string) (*Namespace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.namespaces[name]
	if !ok {
		return nil, holon.NewError(holon.KindNotFound, "namespace not found", holon.WithRule(name))
	}
	return ns, nil
}

// checkReadQuorum enforces §4.2's strong consistency read quorum: a read in
// a replicated strong namespace fails fast if too few replicas are currently
// reachable, rather than silently returning stale data. Eventual, weak, and
// session namespaces read the local value without a quorum check.
func (s *Store) checkReadQuorum(ns *Namespace) error {
	if !ns.cfg.Replication || ns.cfg.Consistency != ConsistencyStrong {
		return nil
	}
	available, err := s.replicator.ReadQuorumAvailable(ns.Name, ns.cfg.ReadQuorum)
	if err != nil {
		return err
	}
	if available < ns.cfg.ReadQuorum {
		return holon.NewError(holon.KindTimeout, "read quorum not reachable", holon.WithRule(ns.Name))
	}
	return nil
}

// checkWriteQuorum enforces the write-side counterpart: a write that
// cannot reach WriteQuorum replicas fails rather than being silently
// under-replicated.
func (s *Store) checkWriteQuorum(ns *Namespace, acked int) error {
	if !ns.cfg.Replication {
		return nil
	}
	if acked < ns.cfg.WriteQuorum {
		return holon.NewError(holon.KindTimeout, "write quorum not reached", holon.WithRule(ns.Name))
	}
	return nil
}

// Set writes key in namespace, applying conflict resolution and quorum
// checks per the namespace's policy. A write that cannot reach write
// quorum is rejected before it ever touches the namespace's data, so a
// failed write leaves a subsequent Get returning the prior value (§8
// scenario 5) rather than the rejected write.
func (s *Store) Set(namespace, key string, value any, opts SetOptions) (SetResult, error) {
	ns, err := s.namespace(namespace)
	if err != nil {
		return SetResult{}, err
	}
	if ns.cfg.Replication {
		acked, _ := s.replicator.Replicate(ns.Name, key, nil, ns.cfg.ReplicationFactor)
		if err := s.checkWriteQuorum(ns, acked); err != nil {
			return SetResult{}, err
		}
	}
	res, err := ns.set(key, value, opts, s.clock.Now(), "")
	if err != nil {
		return SetResult{}, err
	}
	if ns.cfg.Persistence && s.persister != nil {
		if err := s.persister.Save(namespace, ns.snapshot()); err != nil {
			s.log.Warn("failed to persist namespace snapshot", "namespace", namespace, "error", err.Error())
		}
	}
	return res, nil
}

// Get reads key from namespace.
func (s *Store) Get(namespace, key string, opts GetOptions) (GetResult, error) {
	ns, err := s.namespace(namespace)
	if err != nil {
		return GetResult{}, err
	}
	if err := s.checkReadQuorum(ns); err != nil {
		return GetResult{}, err
	}
	res, ok := ns.get(key, s.clock.Now())
	if !ok {
		return GetResult{}, holon.NewError(holon.KindNotFound, "key not found", holon.WithRule(key))
	}
	return res, nil
}

func (s *Store) Delete(namespace, key string) (bool, error) {
	ns, err := s.namespace(namespace)
	if err != nil {
		return false, err
	}
	return ns.delete(key), nil
}

func (s *Store) Exists(namespace, key string) (bool, error) {
	ns, err := s.namespace(namespace)
	if err != nil {
		return false, err
	}
	return ns.exists(key, s.clock.Now()), nil
}

// Keys returns every key in namespace matching the glob pattern, e.g.
// "user:*", capped at limit entries when limit > 0 (§4.2).
func (s *Store) Keys(namespace, pattern string, limit int) ([]string, error) {
	ns, err := s.namespace(namespace)
	if err != nil {
		return nil, err
	}
	return ns.keys(pattern, limit), nil
}

func (s *Store) MGet(namespace string, keys []string) (map[string]GetResult, error) {
	ns, err := s.namespace(namespace)
	if err != nil {
		return nil, err
	}
	out := make(map[string]GetResult, len(keys))
	now := s.clock.Now()
	for _, k := range keys {
		if res, ok := ns.get(k, now); ok {
			out[k] = res
		}
	}
	return out, nil
}

func (s *Store) MSet(namespace string, values map[string]any, opts SetOptions) error {
	ns, err := s.namespace(namespace)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	for k, v := range values {
		if _, err := ns.set(k, v, opts, now, ""); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Increment(namespace, key string, delta int64) (int64, error) {
	ns, err := s.namespace(namespace)
	if err != nil {
		return 0, err
	}
	return ns.increment(key, delta, s.clock.Now())
}

func (s *Store) Expire(namespace, key string, ttl time.Duration) (bool, error) {
	ns, err := s.namespace(namespace)
	if err != nil {
		return false, err
	}
	return ns.expire(key, ttl, s.clock.Now()), nil
}

func (s *Store) PersistKey(namespace, key string) (bool, error) {
	ns, err := s.namespace(namespace)
	if err != nil {
		return false, err
	}
	return ns.persist(key), nil
}

func (s *Store) TTL(namespace, key string) (time.Duration, bool, error) {
	ns, err := s.namespace(namespace)
	if err != nil {
		return 0, false, err
	}
	d, ok := ns.ttl(key, s.clock.Now())
	return d, ok, nil
}

// RecentConflicts returns the last n manual-mode conflicts recorded
// against namespace (§4.2's "record a conflict event" for ConflictManual).
func (s *Store) RecentConflicts(namespace string, n int) ([]ConflictRecord, error) {
	ns, err := s.namespace(namespace)
	if err != nil {
		return nil, err
	}
	return ns.recentConflicts(n), nil
}

func (s *Store) QueryIndex(namespace, field, value string) ([]string, error) {
	ns, err := s.namespace(namespace)
	if err != nil {
		return nil, err
	}
	return ns.queryIndex(field, value)
}

// Lock acquires a per-key advisory lock (§4.4).
func (s *Store) Lock(namespace, key, owner string, ttl time.Duration) error {
	ns, err := s.namespace(namespace)
	if err != nil {
		return err
	}
	return ns.locks.acquire(key, owner, ttl)
}

// Unlock releases a previously acquired lock.
func (s *Store) Unlock(namespace, key, owner string) error {
	ns, err := s.namespace(namespace)
	if err != nil {
		return err
	}
	return ns.locks.release(key, owner)
}

// BeginTransaction locks every key in canonical order and returns a handle
// for staged reads/writes (§4.4).
func (s *Store) BeginTransaction(namespace, owner string, keys []string, lockTTL time.Duration) (*Transaction, error) {
	ns, err := s.namespace(namespace)
	if err != nil {
		return nil, err
	}
	return beginTransaction(ns, owner, keys, lockTTL)
}

// Subscribe registers a glob-pattern change handler on a namespace.
func (s *Store) Subscribe(namespace, keyPattern string, handler ChangeHandler) (string, error) {
	ns, err := s.namespace(namespace)
	if err != nil {
		return "", err
	}
	return ns.subs.subscribe(keyPattern, handler), nil
}

func (s *Store) Unsubscribe(namespace, subscriptionID string) (bool, error) {
	ns, err := s.namespace(namespace)
	if err != nil {
		return false, err
	}
	return ns.subs.unsubscribe(subscriptionID), nil
}

// InjectReplicaFailure is a test/operational hook that forces the next
// quorum checks on namespace to see unreachableReplicas fewer replicas.
func (s *Store) InjectReplicaFailure(namespace string, unreachableReplicas int) {
	s.replicator.Inject(namespace, unreachableReplicas)
}

// Start arms the maintenance sweeps: TTL expiry, LRU eviction, and
// (if Persistence is enabled anywhere) periodic snapshotting (§4.5).
func (s *Store) Start(ctx context.Context) error {
	s.periodic.Every(ctx, 30*time.Second, func(ctx context.Context) {
		s.mu.RLock()
		names := make([]*Namespace, 0, len(s.namespaces))
		for _, ns := range s.namespaces {
			names = append(names, ns)
		}
		s.mu.RUnlock()

		now := s.clock.Now()
		for _, ns := range names {
			if n := ns.sweepExpired(now); n > 0 {
				s.log.Debug("expired entries swept", "namespace", ns.Name, "count", n)
			}
			if n := ns.evictLRU(now); n > 0 {
				s.log.Debug("LRU eviction ran", "namespace", ns.Name, "count", n)
			}
			ns.locks.sweepExpired()
			if ns.cfg.Persistence && s.persister != nil {
				if err := s.persister.Save(ns.Name, ns.snapshot()); err != nil {
					s.log.Warn("periodic snapshot failed", "namespace", ns.Name, "error", err.Error())
				}
			}
		}
	})
	s.periodic.Start()
	return nil
}

func (s *Store) Stop(ctx context.Context) error {
	s.periodic.Stop()
	return nil
}

// HealthCheck reports degraded when any namespace is materially over its
// configured size ceiling, which means eviction is falling behind load.
func (s *Store) HealthCheck() holon.HealthReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := holon.HealthOK
	details := make(map[string]any, len(s.namespaces))
	for name, ns := range s.namespaces {
		size := ns.size()
		details[name] = size
		if ns.cfg.MaxSize > 0 && size > ns.cfg.MaxSize*2 {
			status = holon.HealthDegraded
		}
	}
	return holon.HealthReport{Module: "statestore", Status: status, Details: details}
}
