package chain

import "testing"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(t.TempDir(), "store-test")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreNamespaceIsolation(t *testing.T) {
	store := newTestStore(t)

	if err := store.Put(NamespaceState, "k", []byte("state-value")); err != nil {
		t.Fatalf("put state: %v", err)
	}
	if err := store.Put(NamespaceTxPool, "k", []byte("pool-value")); err != nil {
		t.Fatalf("put tx_pool: %v", err)
	}

	got, ok := store.Get(NamespaceState, "k")
	if !ok || string(got) != "state-value" {
		t.Fatalf("state k = %q, %v; want state-value, true", got, ok)
	}

	var poolKeys []string
	for key := range store.Scan(NamespaceTxPool) {
		poolKeys = append(poolKeys, key)
	}
	if len(poolKeys) != 1 || poolKeys[0] != "k" {
		t.Fatalf("tx_pool scan = %v, want exactly [k]", poolKeys)
	}
}

func TestStoreCommitBatchVisibility(t *testing.T) {
	store := newTestStore(t)

	writes := []KV{
		{Namespace: NamespaceState, Key: "a", Value: []byte("1")},
		{Namespace: NamespaceState, Key: "b", Value: []byte("2")},
		{Namespace: NamespaceBlocks, Key: "c", Value: []byte("3")},
	}
	if err := store.CommitBatch(writes); err != nil {
		t.Fatalf("commit batch: %v", err)
	}
	for _, w := range writes {
		got, ok := store.Get(w.Namespace, w.Key)
		if !ok || string(got) != string(w.Value) {
			t.Fatalf("(%s, %s) = %q, %v; want %q, true", w.Namespace, w.Key, got, ok, w.Value)
		}
	}
}

func TestStoreGetMissingKey(t *testing.T) {
	store := newTestStore(t)
	if _, ok := store.Get(NamespaceState, "absent"); ok {
		t.Fatalf("expected missing key to report ok=false")
	}
}

func TestSnapshotOverlaysPendingWrites(t *testing.T) {
	store := newTestStore(t)
	if err := store.Put(NamespaceState, "k", []byte("committed")); err != nil {
		t.Fatalf("put: %v", err)
	}

	snap := NewSnapshot(store)
	if got, _ := snap.Get(NamespaceState, "k"); string(got) != "committed" {
		t.Fatalf("snapshot read-through = %q, want committed", got)
	}

	snap.Apply([]KV{{Namespace: NamespaceState, Key: "k", Value: []byte("pending")}})
	if got, _ := snap.Get(NamespaceState, "k"); string(got) != "pending" {
		t.Fatalf("snapshot overlay = %q, want pending", got)
	}

	// The overlay never reaches the store until the caller commits it.
	if got, _ := store.Get(NamespaceState, "k"); string(got) != "committed" {
		t.Fatalf("store value = %q, want committed", got)
	}
}
