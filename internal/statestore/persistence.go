package statestore

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"github.com/holoncore/travel-orchestrator/holon"
)

// persistedEntry is the on-disk shape of an Entry (§6 persistence layout:
// one snapshot file per namespace, under <baseDir>/<namespace>.snapshot).
// Stored holds the entry's already-compressed/encrypted wire bytes, so a
// restore runs back through the same decode pipeline a live read would.
type persistedEntry struct {
	Key        string
	Stored     []byte
	Compressed bool
	Version    uint64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	TTL        *time.Duration
	ExpiresAt  *time.Time
	Tags       []string
	Metadata   map[string]any
}

// Persister snapshots and restores a namespace's data for namespaces with
// Persistence enabled.
type Persister interface {
	Save(namespace string, entries []persistedEntry) error
	Load(namespace string) ([]persistedEntry, error)
}

// filePersister is the built-in Persister: one gob-encoded snapshot file
// per namespace on local disk. Real deployments needing durable
// cross-process storage plug in a different Persister (Non-goal: durable
// distributed storage backend).
type filePersister struct {
	baseDir string
	log     holon.Logger
}

func newFilePersister(baseDir string, log holon.Logger) *filePersister {
	return &filePersister{baseDir: baseDir, log: log}
}

func (p *filePersister) path(namespace string) string {
	return filepath.Join(p.baseDir, namespace+".snapshot")
}

func (p *filePersister) Save(namespace string, entries []persistedEntry) error {
	if err := os.MkdirAll(p.baseDir, 0o755); err != nil {
		return holon.NewError(holon.KindInternal, "failed to create statestore base directory", holon.WithCause(err))
	}
	tmp := p.path(namespace) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return holon.NewError(holon.KindInternal, "failed to open snapshot file", holon.WithCause(err))
	}
	if err := gob.NewEncoder(f).Encode(entries); err != nil {
		f.Close()
		return holon.NewError(holon.KindInternal, "failed to encode snapshot", holon.WithCause(err))
	}
	if err := f.Close(); err != nil {
		return holon.NewError(holon.KindInternal, "failed to close snapshot file", holon.WithCause(err))
	}
	return os.Rename(tmp, p.path(namespace))
}

func (p *filePersister) Load(namespace string) ([]persistedEntry, error) {
	f, err := os.Open(p.path(namespace))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, holon.NewError(holon.KindInternal, "failed to open snapshot file", holon.WithCause(err))
	}
	defer f.Close()

	var entries []persistedEntry
	if err := gob.NewDecoder(f).Decode(&entries); err != nil {
		return nil, holon.NewError(holon.KindInternal, "failed to decode snapshot", holon.WithCause(err))
	}
	return entries, nil
}

// snapshot captures a namespace's current entries for Save.
func (ns *Namespace) snapshot() []persistedEntry {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	out := make([]persistedEntry, 0, len(ns.data))
	for _, e := range ns.data {
		out = append(out, persistedEntry{
			Key: e.Key, Stored: e.stored, Compressed: e.compressed, Version: e.Version,
			CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
			TTL: e.TTL, ExpiresAt: e.ExpiresAt,
			Tags: e.Tags, Metadata: e.Metadata,
		})
	}
	return out
}

// restore reloads entries from a snapshot, decoding each one back through
// the namespace's codec/compressor/cipher pipeline and skipping anything
// already expired (consistent with the TTL-on-read invariant).
func (ns *Namespace) restore(entries []persistedEntry, now time.Time) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	for _, pe := range entries {
		if pe.ExpiresAt != nil && !now.Before(*pe.ExpiresAt) {
			continue
		}
		value, err := ns.decode(pe.Stored, pe.Compressed)
		if err != nil {
			ns.log.Warn("skipping snapshot entry that failed to decode", "key", pe.Key, "error", err.Error())
			continue
		}
		ns.data[pe.Key] = &Entry{
			Key: pe.Key, Value: value, stored: pe.Stored, compressed: pe.Compressed, Version: pe.Version,
			CreatedAt: pe.CreatedAt, UpdatedAt: pe.UpdatedAt, LastAccessed: now,
			TTL: pe.TTL, ExpiresAt: pe.ExpiresAt,
			Tags: pe.Tags, Metadata: pe.Metadata,
		}
		ns.recency.Add(pe.Key, struct{}{})
	}
}
