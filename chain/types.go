// Package chain implements the ride-sharing state machine: the codec,
// crypto, store, account state, the eight FunctionCall variants,
// transactions, blocks, the mempool, the authority scheduler and the
// blockchain facade that ties them together.
package chain

// Address is the hex-encoded ("0x"-prefixed) Keccak-256 derived
// 20-byte account identifier. See crypto.go for derivation.
type Address string

// GenesisSender is the sentinel "from" used for the chain's seeded
// genesis transfers. It is exempt from signature and nonce checks.
const GenesisSender Address = "0xGENESIS"

// Hash is a hex-encoded ("0x"-prefixed) 32-byte digest.
type Hash string

// Coordinates is a pair of IEEE-754 doubles. Encoded on the wire as
// their raw bit patterns so the canonical encoding stays deterministic.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}
