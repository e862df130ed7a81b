package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(nil, "")
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateNamespace("bookings", DefaultNamespaceConfig()))

	res, err := s.Set("bookings", "b1", map[string]any{"status": "confirmed"}, SetOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Version)

	got, err := s.Get("bookings", "b1", GetOptions{})
	require.NoError(t, err)
	require.Equal(t, "confirmed", got.Value.(map[string]any)["status"])
}

func TestTTLExpiryDrivesDelete(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateNamespace("sessions", DefaultNamespaceConfig()))

	ttl := 10 * time.Millisecond
	_, err := s.Set("sessions", "sess1", "alive", SetOptions{TTL: &ttl})
	require.NoError(t, err)

	exists, err := s.Exists("sessions", "sess1")
	require.NoError(t, err)
	require.True(t, exists)

	time.Sleep(20 * time.Millisecond)

	_, err = s.Get("sessions", "sess1", GetOptions{})
	require.Error(t, err, "expired entries must not be returned")

	exists, err = s.Exists("sessions", "sess1")
	require.NoError(t, err)
	require.False(t, exists, "expiry must also delete the entry")
}

func TestIncrementCreatesThenAccumulates(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateNamespace("counters", DefaultNamespaceConfig()))

	v, err := s.Increment("counters", "views", 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	v, err = s.Increment("counters", "views", 4)
	require.NoError(t, err)
	require.EqualValues(t, 5, v)
}

func TestConflictResolutionModes(t *testing.T) {
	s := newTestStore(t)

	lww := DefaultNamespaceConfig()
	lww.ConflictMode = ConflictLastWriteWins
	require.NoError(t, s.CreateNamespace("lww", lww))

	res, err := s.Set("lww", "k", "v1", SetOptions{})
	require.NoError(t, err)
	stale := uint64(999)
	got, err := s.Set("lww", "k", "v2", SetOptions{ExpectedVersion: &stale})
	require.NoError(t, err)
	require.NotEqual(t, res.Version, got.Version)
	read, err := s.Get("lww", "k", GetOptions{})
	require.NoError(t, err)
	require.Equal(t, "v2", read.Value)

	manual := DefaultNamespaceConfig()
	manual.ConflictMode = ConflictManual
	require.NoError(t, s.CreateNamespace("manual", manual))
	_, err = s.Set("manual", "k", "v1", SetOptions{})
	require.NoError(t, err)
	_, err = s.Set("manual", "k", "v2", SetOptions{ExpectedVersion: &stale})
	require.Error(t, err, "manual conflict mode must surface a conflict instead of picking a winner")

	conflicts, err := s.RecentConflicts("manual", 0)
	require.NoError(t, err)
	require.Len(t, conflicts, 1, "manual conflict mode must record the conflict for an operator to inspect")
	require.Equal(t, "k", conflicts[0].Key)
	require.Equal(t, "v1", conflicts[0].Existing)
	require.Equal(t, "v2", conflicts[0].Incoming)
}

func TestLockExcludesOtherOwners(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateNamespace("locks", DefaultNamespaceConfig()))

	require.NoError(t, s.Lock("locks", "k1", "owner-a", time.Second))
	require.NoError(t, s.Lock("locks", "k1", "owner-a", time.Second), "same owner re-acquiring must not conflict")

	err := s.Lock("locks", "k1", "owner-b", time.Second)
	require.Error(t, err)

	require.NoError(t, s.Unlock("locks", "k1", "owner-a"))
	require.NoError(t, s.Lock("locks", "k1", "owner-b", time.Second))
}

func TestTransactionCommitsAllOrNothing(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateNamespace("ledger", DefaultNamespaceConfig()))

	txn, err := s.BeginTransaction("ledger", "txn-owner", []string{"acct:a", "acct:b"}, time.Second)
	require.NoError(t, err)

	require.NoError(t, txn.Set("acct:a", 90, SetOptions{}))
	require.NoError(t, txn.Set("acct:b", 110, SetOptions{}))
	require.NoError(t, txn.Commit(context.Background()))

	a, err := s.Get("ledger", "acct:a", GetOptions{})
	require.NoError(t, err)
	require.Equal(t, 90, a.Value)
	b, err := s.Get("ledger", "acct:b", GetOptions{})
	require.NoError(t, err)
	require.Equal(t, 110, b.Value)
}

func TestTransactionRollbackLeavesStoreUnchanged(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateNamespace("ledger2", DefaultNamespaceConfig()))
	_, err := s.Set("ledger2", "acct:a", 100, SetOptions{})
	require.NoError(t, err)

	txn, err := s.BeginTransaction("ledger2", "txn-owner", []string{"acct:a"}, time.Second)
	require.NoError(t, err)
	require.NoError(t, txn.Set("acct:a", 0, SetOptions{}))
	txn.Rollback()

	a, err := s.Get("ledger2", "acct:a", GetOptions{})
	require.NoError(t, err)
	require.Equal(t, 100, a.Value, "a rolled-back transaction must not mutate the namespace")
}

func TestTransactionLocksBlockConcurrentTransaction(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateNamespace("ledger3", DefaultNamespaceConfig()))

	txn, err := s.BeginTransaction("ledger3", "owner-1", []string{"x"}, time.Second)
	require.NoError(t, err)
	defer txn.Rollback()

	_, err = s.BeginTransaction("ledger3", "owner-2", []string{"x"}, time.Second)
	require.Error(t, err, "a key already locked by another transaction must not be grantable")
}

func TestIndexQueryFindsMatchingEntries(t *testing.T) {
	s := newTestStore(t)
	cfg := DefaultNamespaceConfig()
	cfg.Indexing = true
	require.NoError(t, s.CreateNamespace("itineraries", cfg))

	_, err := s.Set("itineraries", "it1", "paris trip", SetOptions{Indexes: map[string]string{"status": "pending"}})
	require.NoError(t, err)
	_, err = s.Set("itineraries", "it2", "tokyo trip", SetOptions{Indexes: map[string]string{"status": "confirmed"}})
	require.NoError(t, err)
	_, err = s.Set("itineraries", "it3", "rome trip", SetOptions{Indexes: map[string]string{"status": "pending"}})
	require.NoError(t, err)

	keys, err := s.QueryIndex("itineraries", "status", "pending")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"it1", "it3"}, keys)
}

func TestWriteQuorumFailure(t *testing.T) {
	s := newTestStore(t)
	cfg := DefaultNamespaceConfig()
	cfg.Replication = true
	cfg.ReplicationFactor = 3
	cfg.WriteQuorum = 2
	require.NoError(t, s.CreateNamespace("critical", cfg))

	_, err := s.Set("critical", "k", "before", SetOptions{})
	require.NoError(t, err)

	// Two of three replicas down: acked (1) falls below WriteQuorum (2).
	s.InjectReplicaFailure("critical", 2)

	_, err = s.Set("critical", "k", "after", SetOptions{})
	require.Error(t, err, "a write that cannot reach quorum must fail rather than silently under-replicate")

	got, err := s.Get("critical", "k", GetOptions{})
	require.NoError(t, err)
	require.Equal(t, "before", got.Value, "a failed quorum write must not be observable by a subsequent read")
}

func TestReadQuorumFailure(t *testing.T) {
	s := newTestStore(t)
	cfg := DefaultNamespaceConfig()
	cfg.Replication = true
	cfg.Consistency = ConsistencyStrong
	cfg.ReplicationFactor = 3
	cfg.ReadQuorum = 2
	require.NoError(t, s.CreateNamespace("strong", cfg))

	_, err := s.Set("strong", "k", "v", SetOptions{})
	require.NoError(t, err)

	s.InjectReplicaFailure("strong", 3)

	_, err = s.Get("strong", "k", GetOptions{})
	require.Error(t, err, "a read that cannot reach read quorum must fail")
}

func TestKeysGlobMatchesAndRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateNamespace("sessions2", DefaultNamespaceConfig()))

	for _, k := range []string{"user:1", "user:2", "user:3", "order:1"} {
		_, err := s.Set("sessions2", k, "v", SetOptions{})
		require.NoError(t, err)
	}

	matched, err := s.Keys("sessions2", "user:*", 0)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"user:1", "user:2", "user:3"}, matched)

	limited, err := s.Keys("sessions2", "user:*", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestLRUEvictionDropsOldestTenPercent(t *testing.T) {
	s := newTestStore(t)
	cfg := DefaultNamespaceConfig()
	cfg.MaxSize = 10
	require.NoError(t, s.CreateNamespace("bounded", cfg))

	for i := 0; i < 12; i++ {
		_, err := s.Set("bounded", string(rune('a'+i)), i, SetOptions{})
		require.NoError(t, err)
	}

	ns, err := s.namespace("bounded")
	require.NoError(t, err)
	require.Equal(t, 12, ns.size())

	evicted := ns.evictLRU(time.Now())
	require.Equal(t, 1, evicted, "12 entries over a MaxSize of 10 should evict 10% (1 entry)")
	require.Equal(t, 11, ns.size())
}
