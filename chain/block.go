package chain

import "fmt"

// Block is the container of transactions authored at a slot. Blocks
// are immutable once imported; the chain is strictly append-only with
// one active tip.
type Block struct {
	Index        uint64
	Timestamp    uint64
	PreviousHash Hash
	Transactions []Transaction
	Author       Address
	SigR         string
	SigS         string
	SigV         int32
	Hash         Hash
}

// BlockHeader is the 7-item projection of a Block used for header-only
// sync.
type BlockHeader struct {
	Index        uint64
	PreviousHash Hash
	Author       Address
	SigR         string
	SigS         string
	SigV         int32
	Hash         Hash
}

// Header projects b into its BlockHeader.
func (b Block) Header() BlockHeader {
	return BlockHeader{
		Index: b.Index, PreviousHash: b.PreviousHash, Author: b.Author,
		SigR: b.SigR, SigS: b.SigS, SigV: b.SigV, Hash: b.Hash,
	}
}

// hashBlock covers index, timestamp, previous_hash, author, and the
// list of transaction hashes — not the transaction bodies themselves.
func hashBlock(b Block) (Hash, error) {
	txHashes := make([]Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		txHashes[i] = tx.Hash
	}
	encoded, err := Encode(struct {
		Index        uint64
		Timestamp    uint64
		PreviousHash Hash
		Author       Address
		TxHashes     []Hash
	}{b.Index, b.Timestamp, b.PreviousHash, b.Author, txHashes})
	if err != nil {
		return "", fmt.Errorf("block: hash: %w", err)
	}
	return TxHash(encoded), nil
}

// newBlock builds an unsigned, unhashed block at index with the given
// previous hash and transaction set. timestamp must already be the
// wall-clock second count at which it is produced.
func newBlock(index uint64, previousHash Hash, timestamp uint64, author Address, txs []Transaction) (Block, error) {
	b := Block{Index: index, Timestamp: timestamp, PreviousHash: previousHash, Author: author, Transactions: txs}
	h, err := hashBlock(b)
	if err != nil {
		return Block{}, err
	}
	b.Hash = h
	return b, nil
}

// sign sets (SigR, SigS, SigV) over the UTF-8 bytes of b.Hash.
func (b *Block) sign(priv *KeyPair) error {
	sig, err := Sign(priv.Private, []byte(b.Hash))
	if err != nil {
		return fmt.Errorf("block: sign: %w", err)
	}
	b.SigR, b.SigS, b.SigV = sig.R, sig.S, sig.V
	return nil
}

// newGenesisBlock builds the index-0 block: previous_hash "0", author
// 0xGENESIS, unsigned, seeded with the five genesis transfers.
func newGenesisBlock() (Block, error) {
	txs, err := genesisTransfers()
	if err != nil {
		return Block{}, err
	}
	b := Block{Index: 0, Timestamp: 0, PreviousHash: "0", Author: GenesisSender, Transactions: txs}
	h, err := hashBlock(b)
	if err != nil {
		return Block{}, err
	}
	b.Hash = h
	return b, nil
}
