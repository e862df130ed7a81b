package statestore

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-memdb"
)

// indexRecord is the projection of an Entry that go-memdb indexes. Only
// string-valued index fields are supported; everything else about the
// entry lives in Namespace.data and is looked up by key after an index
// query narrows the candidate set.
type indexRecord struct {
	Key    string
	Fields map[string]string
}

// keyFieldIndexer indexes indexRecord.Key, used as the memdb primary index.
type keyFieldIndexer struct{}

func (keyFieldIndexer) FromObject(obj any) (bool, []byte, error) {
	rec, ok := obj.(*indexRecord)
	if !ok {
		return false, nil, fmt.Errorf("statestore: expected *indexRecord, got %T", obj)
	}
	if rec.Key == "" {
		return false, nil, nil
	}
	return true, append([]byte(rec.Key), 0), nil
}

func (keyFieldIndexer) FromArgs(args ...any) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("statestore: index requires exactly one argument")
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("statestore: index argument must be a string")
	}
	return append([]byte(s), 0), nil
}

// mapFieldIndexer indexes indexRecord.Fields[field], used for every
// secondary index a namespace declares.
type mapFieldIndexer struct{ field string }

func (m mapFieldIndexer) FromObject(obj any) (bool, []byte, error) {
	rec, ok := obj.(*indexRecord)
	if !ok {
		return false, nil, fmt.Errorf("statestore: expected *indexRecord, got %T", obj)
	}
	val, ok := rec.Fields[m.field]
	if !ok || val == "" {
		return false, nil, nil
	}
	return true, append([]byte(val), 0), nil
}

func (m mapFieldIndexer) FromArgs(args ...any) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("statestore: index requires exactly one argument")
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("statestore: index argument must be a string")
	}
	return append([]byte(s), 0), nil
}

// defaultIndexFields is the baseline secondary-index projection every
// indexed namespace gets for free (§4.3).
var defaultIndexFields = []string{"type", "category", "status", "userId"}

// namespaceIndex wraps a memdb.MemDB scoped to one namespace's declared
// index fields.
type namespaceIndex struct {
	mu     sync.Mutex
	db     *memdb.MemDB
	fields []string
}

func newNamespaceIndex(extraFields []string) (*namespaceIndex, error) {
	fields := append(append([]string{}, defaultIndexFields...), extraFields...)
	seen := make(map[string]bool, len(fields))
	unique := fields[:0]
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		unique = append(unique, f)
	}

	indexes := map[string]*memdb.IndexSchema{
		"id": {
			Name:    "id",
			Unique:  true,
			Indexer: keyFieldIndexer{},
		},
	}
	for _, f := range unique {
		indexes[f] = &memdb.IndexSchema{
			Name:         f,
			Unique:       false,
			AllowMissing: true,
			Indexer:      mapFieldIndexer{field: f},
		}
	}

	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			"entries": {Name: "entries", Indexes: indexes},
		},
	}
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, err
	}
	return &namespaceIndex{db: db, fields: unique}, nil
}

func (ni *namespaceIndex) upsert(key string, fields map[string]string) error {
	ni.mu.Lock()
	defer ni.mu.Unlock()
	txn := ni.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert("entries", &indexRecord{Key: key, Fields: fields}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (ni *namespaceIndex) remove(key string) error {
	ni.mu.Lock()
	defer ni.mu.Unlock()
	txn := ni.db.Txn(true)
	defer txn.Abort()
	if _, err := txn.DeleteAll("entries", "id", key); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// query returns the keys of every record whose field equals value.
func (ni *namespaceIndex) query(field, value string) ([]string, error) {
	ni.mu.Lock()
	defer ni.mu.Unlock()
	txn := ni.db.Txn(false)
	it, err := txn.Get("entries", field, value)
	if err != nil {
		return nil, err
	}
	var keys []string
	for raw := it.Next(); raw != nil; raw = it.Next() {
		keys = append(keys, raw.(*indexRecord).Key)
	}
	return keys, nil
}
