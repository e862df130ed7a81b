// Package statestore implements the State Manager (SM): a namespaced
// key/value store with TTL, LRU-ish eviction, secondary indexes, optimistic
// versioning, locks, transactions, subscriptions, pluggable consistency, and
// pluggable conflict resolution.
package statestore

import "time"

// Consistency selects replication/read semantics for a namespace (§4.2).
type Consistency string

const (
	ConsistencyStrong   Consistency = "strong"
	ConsistencyEventual Consistency = "eventual"
	ConsistencyWeak     Consistency = "weak"
	ConsistencySession  Consistency = "session"
)

// ConflictMode selects how a write with a stale expectedVersion is resolved.
type ConflictMode string

const (
	ConflictLastWriteWins  ConflictMode = "last-write-wins"
	ConflictFirstWriteWins ConflictMode = "first-write-wins"
	ConflictMerge          ConflictMode = "merge"
	ConflictAppend         ConflictMode = "append"
	ConflictManual         ConflictMode = "manual"
)

// NamespaceConfig is the per-namespace policy bundle (§4.2).
type NamespaceConfig struct {
	Consistency Consistency

	// TTL is the default entry lifetime, nil meaning "never expires
	// unless set per-entry".
	TTL *time.Duration

	// MaxSize triggers LRU-ish eviction (10% of least-recently-accessed
	// entries) once |data| exceeds it. Zero means unbounded.
	MaxSize int

	// CompressionThreshold is the serialized size, in bytes, above which
	// values are compressed. Default 1024 (>1 KB).
	CompressionThreshold int

	Encryption  bool
	Replication bool
	Persistence bool
	Indexing    bool
	Versioning  bool

	ConflictMode ConflictMode

	// ReplicationFactor, WriteQuorum, and ReadQuorum only apply when
	// Replication is true (strong/eventual consistency).
	ReplicationFactor int
	WriteQuorum       int
	ReadQuorum        int

	// IndexFields augments the default projection
	// {type,category,status,userId,id} with caller-declared fields.
	IndexFields []string
}

// DefaultNamespaceConfig mirrors the built-in namespace defaults (§6).
func DefaultNamespaceConfig() NamespaceConfig {
	return NamespaceConfig{
		Consistency:          ConsistencyEventual,
		CompressionThreshold: 1024,
		ConflictMode:         ConflictLastWriteWins,
		ReplicationFactor:    3,
		WriteQuorum:          2,
		ReadQuorum:           2,
	}
}

// Entry is a single stored record (§3).
type Entry struct {
	Key string

	// Value is the value as returned to callers (decoded/decompressed).
	Value any

	// stored is the on-the-wire representation: possibly compressed and/or
	// encrypted bytes. nil when the entry has never round-tripped through
	// a codec (e.g. right after construction, before set() finishes).
	stored     []byte
	compressed bool

	Version   uint64
	CreatedAt time.Time
	UpdatedAt time.Time

	LastAccessed time.Time
	AccessCount  int64

	TTL       *time.Duration
	ExpiresAt *time.Time

	Size int
	Tags []string

	Metadata map[string]any
}

// expired reports whether the entry should no longer be visible at t
// (invariant c: reads that find now >= expiresAt must not return the value
// and must delete the entry).
func (e *Entry) expired(t time.Time) bool {
	return e.ExpiresAt != nil && !t.Before(*e.ExpiresAt)
}

// SetOptions configures a single Set call.
type SetOptions struct {
	TTL             *time.Duration
	ExpectedVersion *uint64
	Indexes         map[string]string
	Metadata        map[string]any
	Tags            []string
}

// SetResult is returned from a successful Set.
type SetResult struct {
	Version   uint64
	Timestamp time.Time
	ExpiresAt *time.Time
}

// GetOptions configures a single Get call.
type GetOptions struct {
	// SessionID is accepted but not used: Get reads the local namespace
	// for every consistency class, and session reads are not routed to the
	// replica that handled the caller's preceding write.
	SessionID string
}

// GetResult is returned from a successful Get.
type GetResult struct {
	Value    any
	Version  uint64
	Metadata map[string]any
}
