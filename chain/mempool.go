package chain

import "encoding/json"

// Mempool is the admission-validated pending-transaction pool, keyed
// by hash and persisted in its own store namespace so pending work
// survives a restart.
type Mempool struct {
	store *Store
}

func NewMempool(store *Store) *Mempool {
	return &Mempool{store: store}
}

func txPoolKey(hash Hash) string { return "tx_pool_" + string(hash) }

// Insert runs full Validate against the latest committed snapshot and,
// on success, writes the transaction keyed by its hash. Duplicates
// overwrite, making insertion idempotent under identical payloads.
func (m *Mempool) Insert(tx Transaction, committed *Snapshot) error {
	if err := tx.Validate(committed); err != nil {
		return err
	}
	value, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	return m.store.Put(NamespaceTxPool, txPoolKey(tx.Hash), value)
}

// Drain range-scans the tx_pool namespace and returns every pending
// transaction. Order is implementation-defined; correctness does not
// depend on it because Validate is re-run during block build.
func (m *Mempool) Drain() ([]Transaction, error) {
	var txs []Transaction
	var outerErr error
	for _, value := range m.store.Scan(NamespaceTxPool) {
		var tx Transaction
		if err := json.Unmarshal(value, &tx); err != nil {
			outerErr = err
			continue
		}
		txs = append(txs, tx)
	}
	return txs, outerErr
}

// Remove deletes the transaction keyed by hash.
func (m *Mempool) Remove(hash Hash) error {
	return m.store.Delete(NamespaceTxPool, txPoolKey(hash))
}
