package chain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Blockchain is the single mutex-guarded facade owning the Store,
// Mempool, and AuthorityScheduler. One instance exists process-wide;
// every state-mutating operation (mempool admission, block import,
// block authoring) holds the mutex for its full duration, so store
// writes are linearizable.
type Blockchain struct {
	mu sync.Mutex

	store     *Store
	mempool   *Mempool
	authority *AuthorityScheduler
	selfKey   *KeyPair
	latest    Block
	genesis   Block
}

// NewBlockchain wraps an already-open store, loads the tip from it or
// bootstraps the genesis block on a cold database, and wires the
// authority schedule. selfKey is nil on a
// follower node that never authors.
func NewBlockchain(store *Store, authorities []Address, selfKey *KeyPair) (*Blockchain, error) {
	bc := &Blockchain{
		store:     store,
		mempool:   NewMempool(store),
		authority: NewAuthorityScheduler(authorities),
		selfKey:   selfKey,
	}

	if raw, ok := store.Get(NamespaceBlocks, latestIndexKey); ok {
		latestIndex, err := strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("blockchain: parse latest_index: %w", err)
		}
		latestRaw, ok := store.Get(NamespaceBlocks, blockKey(latestIndex))
		if !ok {
			return nil, fmt.Errorf("blockchain: missing block %d named by latest_index", latestIndex)
		}
		var latest Block
		if err := Decode(latestRaw, &latest); err != nil {
			return nil, fmt.Errorf("blockchain: decode latest block: %w", err)
		}
		bc.latest = latest
		genesisRaw, ok := store.Get(NamespaceBlocks, blockKey(0))
		if !ok {
			return nil, fmt.Errorf("blockchain: missing genesis block in non-empty store")
		}
		var genesis Block
		if err := Decode(genesisRaw, &genesis); err != nil {
			return nil, fmt.Errorf("blockchain: decode genesis block: %w", err)
		}
		bc.genesis = genesis
		return bc, nil
	}

	genesis, err := newGenesisBlock()
	if err != nil {
		return nil, fmt.Errorf("blockchain: build genesis: %w", err)
	}
	if err := bc.commitBlock(genesis); err != nil {
		return nil, fmt.Errorf("blockchain: commit genesis: %w", err)
	}
	bc.genesis = genesis
	return bc, nil
}

// Block records are keyed by zero-padded index so a lexicographic scan
// of the blocks namespace walks the chain in height order.
func blockKey(index uint64) string { return fmt.Sprintf("block_%020d", index) }

const (
	latestIndexKey  = "latest_index"
	genesisIndexKey = "genesis_index"
)

// GetLatestBlock returns the most recently imported block.
func (bc *Blockchain) GetLatestBlock() Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.latest
}

// GetGenesisBlock returns the chain's index-0 block.
func (bc *Blockchain) GetGenesisBlock() Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.genesis
}

// GetBlockByIndex looks a committed block up by height.
func (bc *Blockchain) GetBlockByIndex(index uint64) (Block, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	raw, ok := bc.store.Get(NamespaceBlocks, blockKey(index))
	if !ok {
		return Block{}, false
	}
	var b Block
	if err := Decode(raw, &b); err != nil {
		return Block{}, false
	}
	return b, true
}

// AddTransactionToPool validates tx against the currently committed
// state and, on success, admits it into the mempool. This is the only
// entry point for mempool admission.
func (bc *Blockchain) AddTransactionToPool(tx Transaction) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	snap := NewSnapshot(bc.store)
	return bc.mempool.Insert(tx, snap)
}

// Import validates a fully-formed block against the chain tip and, on
// success, atomically commits it and prunes its transactions from the
// mempool. Checks run in order: author entitlement, author signature,
// chain linkage, then each transaction re-validated sequentially
// against a simulated snapshot, so a transaction can depend on an
// earlier one in the same block.
func (bc *Blockchain) Import(b Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if b.Index != 0 {
		if !bc.authority.VerifyBlockAuthor(b.Author, b.Timestamp) {
			return fmt.Errorf("blockchain: block %s: author %s is not entitled to slot at timestamp %d", b.Hash, b.Author, b.Timestamp)
		}
		ok, err := Verify(b.Author, []byte(b.Hash), Signature{R: b.SigR, S: b.SigS, V: b.SigV})
		if err != nil {
			return fmt.Errorf("blockchain: block %s: signature verification error: %w", b.Hash, err)
		}
		if !ok {
			return fmt.Errorf("blockchain: block %s: signature does not match author %s", b.Hash, b.Author)
		}
		if b.Index != bc.latest.Index+1 {
			return fmt.Errorf("blockchain: block %s: index %d does not extend tip %d", b.Hash, b.Index, bc.latest.Index)
		}
		if b.PreviousHash != bc.latest.Hash {
			return fmt.Errorf("blockchain: block %s: previous_hash %s does not match tip hash %s", b.Hash, b.PreviousHash, bc.latest.Hash)
		}
	}

	expectedHash, err := hashBlock(b)
	if err != nil {
		return fmt.Errorf("blockchain: block %s: rehash: %w", b.Hash, err)
	}
	if expectedHash != b.Hash {
		return fmt.Errorf("blockchain: block claims hash %s, recomputed %s", b.Hash, expectedHash)
	}

	snap := NewSnapshot(bc.store)
	for _, tx := range b.Transactions {
		if err := tx.Validate(snap); err != nil {
			return fmt.Errorf("blockchain: block %s: %w", b.Hash, err)
		}
		snap.Apply(tx.Effects(snap))
	}

	if err := bc.commitBlock(b); err != nil {
		return fmt.Errorf("blockchain: block %s: commit: %w", b.Hash, err)
	}

	for _, tx := range b.Transactions {
		_ = bc.mempool.Remove(tx.Hash)
	}
	return nil
}

// commitBlock writes the block's own record, the tip pointer, and all
// of its transactions' state effects as a single atomic batch. Effects
// are recomputed against a fresh snapshot here so that commitBlock can
// be called directly for genesis, which never goes through Import's
// author/signature checks.
func (bc *Blockchain) commitBlock(b Block) error {
	encoded, err := Encode(b)
	if err != nil {
		return fmt.Errorf("encode block: %w", err)
	}

	snap := NewSnapshot(bc.store)
	var writes []KV
	for _, tx := range b.Transactions {
		effects := tx.Effects(snap)
		snap.Apply(effects)
		writes = append(writes, effects...)
	}
	writes = append(writes,
		KV{Namespace: NamespaceBlocks, Key: blockKey(b.Index), Value: encoded},
		KV{Namespace: NamespaceBlocks, Key: latestIndexKey, Value: []byte(strconv.FormatUint(b.Index, 10))},
	)
	if b.Index == 0 {
		writes = append(writes, KV{Namespace: NamespaceBlocks, Key: genesisIndexKey, Value: []byte("0")})
	}
	if err := bc.store.CommitBatch(writes); err != nil {
		return err
	}
	bc.latest = b
	return nil
}

// AuthorNewBlock drains the mempool, re-validates every transaction in
// sequence against the current tip, builds, signs, and commits a new
// block from the ones that still pass. Gossiping the result is the
// caller's responsibility; Blockchain only returns the built block.
// selfKey must be set.
func (bc *Blockchain) AuthorNewBlock(timestamp uint64) (Block, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.selfKey == nil {
		return Block{}, fmt.Errorf("blockchain: node has no authoring key")
	}

	pending, err := bc.mempool.Drain()
	if err != nil {
		return Block{}, fmt.Errorf("blockchain: drain pool: %w", err)
	}

	snap := NewSnapshot(bc.store)
	var included []Transaction
	for _, tx := range pending {
		if err := tx.Validate(snap); err != nil {
			continue
		}
		snap.Apply(tx.Effects(snap))
		included = append(included, tx)
	}

	b, err := newBlock(bc.latest.Index+1, bc.latest.Hash, timestamp, bc.selfAddress(), included)
	if err != nil {
		return Block{}, fmt.Errorf("blockchain: build block: %w", err)
	}
	if err := b.sign(bc.selfKey); err != nil {
		return Block{}, fmt.Errorf("blockchain: sign block: %w", err)
	}

	if err := bc.commitBlock(b); err != nil {
		return Block{}, fmt.Errorf("blockchain: commit authored block: %w", err)
	}
	for _, tx := range included {
		_ = bc.mempool.Remove(tx.Hash)
	}
	return b, nil
}

func (bc *Blockchain) selfAddress() Address {
	if bc.selfKey == nil {
		return ""
	}
	return bc.selfKey.Address()
}

// Handshake reports the chain's current tip, used by the sync protocol
// to decide whether a peer needs headers/bodies at all.
func (bc *Blockchain) Handshake() (genesisHash Hash, latestIndex uint64, latestHash Hash) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.genesis.Hash, bc.latest.Index, bc.latest.Hash
}

// GetNextNonce returns the nonce the next transaction from addr must
// carry.
func (bc *Blockchain) GetNextNonce(addr Address) uint64 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	snap := NewSnapshot(bc.store)
	if addr == GenesisSender {
		return 0
	}
	return GetNonce(snap, addr) + 1
}

// AuthorityAt exposes the scheduler's entitlement check for the p2p
// authoring loop, which must know its own slot before building a block.
func (bc *Blockchain) AuthorityAt(t uint64) Address {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.authority.AuthorAt(t)
}

// Shutdown runs the process-wide cleanup hook. In
// developer mode it dumps every committed block and the pending
// mempool to output/<name>_blockchain_blocks.json and
// output/<name>_tx_pool.json, then destroys the on-disk database;
// otherwise it just closes the store handle.
func (bc *Blockchain) Shutdown(name, baseDir string, developerMode bool) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if !developerMode {
		return bc.store.Close()
	}

	var blocks []Block
	for i := uint64(0); i <= bc.latest.Index; i++ {
		raw, ok := bc.store.Get(NamespaceBlocks, blockKey(i))
		if !ok {
			continue
		}
		var b Block
		if err := Decode(raw, &b); err != nil {
			return fmt.Errorf("blockchain: shutdown: decode block %d: %w", i, err)
		}
		blocks = append(blocks, b)
	}
	pending, err := bc.mempool.Drain()
	if err != nil {
		return fmt.Errorf("blockchain: shutdown: drain pool: %w", err)
	}

	if err := os.MkdirAll("output", 0o755); err != nil {
		return fmt.Errorf("blockchain: shutdown: create output dir: %w", err)
	}
	if err := dumpJSON(filepath.Join("output", name+"_blockchain_blocks.json"), blocks); err != nil {
		return err
	}
	if err := dumpJSON(filepath.Join("output", name+"_tx_pool.json"), pending); err != nil {
		return err
	}

	if err := bc.store.Close(); err != nil {
		return fmt.Errorf("blockchain: shutdown: close store: %w", err)
	}
	return Destroy(baseDir, name)
}

func dumpJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("blockchain: shutdown: marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("blockchain: shutdown: write %s: %w", path, err)
	}
	return nil
}
