package chain

import (
	"fmt"
	"os"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Namespace names one of the store's three column families.
type Namespace string

const (
	NamespaceState  Namespace = "state"
	NamespaceBlocks Namespace = "blocks"
	NamespaceTxPool Namespace = "tx_pool"
)

// Store is a namespaced key-value store backed by goleveldb. Namespaces
// are realized as key prefixes ("<namespace>/<key>"), which gives
// per-namespace range scans via goleveldb's prefix iterator and atomic
// multi-key writes via leveldb.Batch.
type Store struct {
	name string
	db   *leveldb.DB
}

// KV is a single namespaced write.
type KV struct {
	Namespace Namespace
	Key       string
	Value     []byte
}

func namespacedKey(ns Namespace, key string) []byte {
	return []byte(string(ns) + "/" + key)
}

// OpenStore opens (creating if absent) the goleveldb database directory
// for the chain named name, rooted at baseDir.
func OpenStore(baseDir, name string) (*Store, error) {
	path := baseDir + "/" + name
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create base dir: %w", err)
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return &Store{name: name, db: db}, nil
}

// Get returns the value stored under (ns, key). Missing keys return
// (nil, false), never an error.
func (s *Store) Get(ns Namespace, key string) ([]byte, bool) {
	v, err := s.db.Get(namespacedKey(ns, key), nil)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Put writes a single key outside of a batch. Block-import callers must
// use CommitBatch instead so multi-key writes stay atomic.
func (s *Store) Put(ns Namespace, key string, value []byte) error {
	return s.db.Put(namespacedKey(ns, key), value, nil)
}

// Delete removes a single key.
func (s *Store) Delete(ns Namespace, key string) error {
	return s.db.Delete(namespacedKey(ns, key), nil)
}

// CommitBatch applies every write atomically: either all land or none
// do. This is the only path block import and mempool admission use to
// mutate more than one key.
func (s *Store) CommitBatch(writes []KV) error {
	batch := new(leveldb.Batch)
	for _, w := range writes {
		batch.Put(namespacedKey(w.Namespace, w.Key), w.Value)
	}
	return s.db.Write(batch, nil)
}

// Scan iterates every key in namespace ns, stripped of its namespace
// prefix, in key order.
func (s *Store) Scan(ns Namespace) func(yield func(key string, value []byte) bool) {
	prefix := []byte(string(ns) + "/")
	return func(yield func(key string, value []byte) bool) {
		it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
		defer it.Release()
		walk(it, prefix, yield)
	}
}

func walk(it iterator.Iterator, prefix []byte, yield func(key string, value []byte) bool) {
	for it.Next() {
		key := string(it.Key()[len(prefix):])
		value := append([]byte(nil), it.Value()...)
		if !yield(key, value) {
			return
		}
	}
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Destroy removes the on-disk database directory. The store must
// already be closed.
func Destroy(baseDir, name string) error {
	return os.RemoveAll(baseDir + "/" + name)
}

// Snapshot is a read-only view over the store layered with pending
// in-memory writes, so transactions within a block observe the effects
// of the ones before them without anything reaching disk. It never
// touches the underlying store for writes.
type Snapshot struct {
	store   *Store
	pending map[string][]byte
	deleted map[string]bool
}

// NewSnapshot returns a snapshot reading through to store with no
// pending writes layered yet.
func NewSnapshot(store *Store) *Snapshot {
	return &Snapshot{store: store, pending: map[string][]byte{}, deleted: map[string]bool{}}
}

func snapKey(ns Namespace, key string) string {
	return string(ns) + "/" + key
}

// Get reads the pending overlay first, falling back to the store.
func (s *Snapshot) Get(ns Namespace, key string) ([]byte, bool) {
	k := snapKey(ns, key)
	if s.deleted[k] {
		return nil, false
	}
	if v, ok := s.pending[k]; ok {
		return v, true
	}
	return s.store.Get(ns, key)
}

// Apply layers writes onto the snapshot so later reads within the same
// block see them, without touching the store.
func (s *Snapshot) Apply(writes []KV) {
	for _, w := range writes {
		k := snapKey(w.Namespace, w.Key)
		s.pending[k] = w.Value
		delete(s.deleted, k)
	}
}

// Writes returns the accumulated pending writes in map-iteration order;
// callers that need determinism should look the values up by the keys
// they expect rather than relying on iteration order here.
func (s *Snapshot) Writes() []KV {
	out := make([]KV, 0, len(s.pending))
	for k, v := range s.pending {
		ns, key := splitKey(k)
		out = append(out, KV{Namespace: ns, Key: key, Value: v})
	}
	return out
}

func splitKey(k string) (Namespace, string) {
	for i := 0; i < len(k); i++ {
		if k[i] == '/' {
			return Namespace(k[:i]), k[i+1:]
		}
	}
	return Namespace(k), ""
}
