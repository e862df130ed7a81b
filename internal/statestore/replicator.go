package statestore

import (
	"sync"

	"github.com/holoncore/travel-orchestrator/holon"
)

// Replicator propagates a committed write to a namespace's replica set and
// reports how many replicas acknowledged it, so the store can enforce write
// quorum (§4.2).
type Replicator interface {
	// Replicate fans a write out to replicationFactor replicas and returns
	// the number that acknowledged.
	Replicate(namespace, key string, entry *Entry, replicationFactor int) (acked int, err error)

	// ReadQuorumAvailable returns how many replicas are currently
	// reachable, for read quorum enforcement.
	ReadQuorumAvailable(namespace string, readQuorum int) (available int, err error)

	// Inject makes every later replicate/read call for namespace behave as
	// if unreachableReplicas replicas are unreachable, until Inject is
	// called again. Test-only hook for the induced-failure quorum scenario
	// (§8).
	Inject(namespace string, unreachableReplicas int)
}

// simReplicator simulates an N-replica cluster in-process: every
// Replicate call "succeeds" against replicationFactor-unreachable
// replicas, where unreachable is a per-namespace fault injected by tests
// or operators exercising the quorum-failure path. There is no real
// network fan-out here (Non-goal: durable cross-node replication); this
// is the seam a production deployment would replace with an actual
// replicated backend.
type simReplicator struct {
	log holon.Logger

	mu          sync.Mutex
	unreachable map[string]int
}

func newSimReplicator(log holon.Logger) *simReplicator {
	return &simReplicator{log: log, unreachable: make(map[string]int)}
}

func (r *simReplicator) Inject(namespace string, unreachableReplicas int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unreachable[namespace] = unreachableReplicas
}

func (r *simReplicator) unreachableCount(namespace string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unreachable[namespace]
}

func (r *simReplicator) Replicate(namespace, key string, entry *Entry, replicationFactor int) (int, error) {
	down := r.unreachableCount(namespace)
	acked := replicationFactor - down
	if acked < 0 {
		acked = 0
	}
	r.log.Debug("replicated write", "namespace", namespace, "key", key, "acked", acked, "of", replicationFactor)
	return acked, nil
}

func (r *simReplicator) ReadQuorumAvailable(namespace string, readQuorum int) (int, error) {
	down := r.unreachableCount(namespace)
	available := readQuorum + 1 - down
	if available < 0 {
		available = 0
	}
	return available, nil
}
