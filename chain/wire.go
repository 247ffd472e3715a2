package chain

// Wire messages exchanged over the direct (non-gossip) sync protocol.
// None needs a custom EncodeRLP/DecodeRLP: every field is already
// RLP-encodable (strings, uints, or []BlockHeader/[]Block, which
// recurse into the types defined in codec.go), so the rlp package
// encodes them directly by struct field order.

// Handshake opens every sync round with each connected peer: each side
// reports its genesis hash (to refuse to sync with a foreign chain) and
// its current tip.
type Handshake struct {
	GenesisHash Hash
	LatestIndex uint64
	LatestHash  Hash
}

// GetBlockHeaders requests headers starting at StartIndex, skipping
// Skip blocks between consecutive headers (a step of Skip+1), for up
// to Limit blocks.
type GetBlockHeaders struct {
	StartIndex uint64
	Skip       uint64
	Limit      uint64
}

// BlockHeaders answers a GetBlockHeaders request.
type BlockHeaders struct {
	Headers []BlockHeader
}

// GetBlockBodies requests full blocks by index.
type GetBlockBodies struct {
	Indexes []uint64
}

// BlockBodies answers a GetBlockBodies request.
type BlockBodies struct {
	Blocks []Block
}
