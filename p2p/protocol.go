// Package p2p implements the single-task peer event loop: gossip
// propagation of transactions and blocks, a direct request/response
// sync protocol, and a command mailbox exposed to the authoring, sync,
// and RPC tasks. The event loop alone touches the libp2p swarm; every
// other task goes through the mailbox.
package p2p

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/libp2p/go-libp2p/core/network"

	"clutch-node/chain"
)

// GossipKind is the 1-byte tag prepended to every gossip payload.
type GossipKind byte

const (
	GossipTransaction GossipKind = 0x01
	GossipBlock       GossipKind = 0x02
)

// DirectKind is the 1-byte tag prepended to every direct request or
// response payload. The sync protocol's header/body exchange uses
// 0x02-0x05 on the same stream protocol as the handshake rather than a
// second one.
type DirectKind byte

const (
	DirectHandshake       DirectKind = 0x01
	DirectGetBlockHeaders DirectKind = 0x02
	DirectBlockHeaders    DirectKind = 0x03
	DirectGetBlockBodies  DirectKind = 0x04
	DirectBlockBodies     DirectKind = 0x05
)

// SyncProtocolID is the libp2p stream protocol used for every direct
// request/response exchange.
const SyncProtocolID = "/clutch-node/sync/1.0.0"

func encodeGossip(kind GossipKind, v interface{}) ([]byte, error) {
	payload, err := chain.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("p2p: encode gossip kind %d: %w", kind, err)
	}
	return append([]byte{byte(kind)}, payload...), nil
}

func decodeGossipKind(data []byte) (GossipKind, []byte, error) {
	if len(data) < 1 {
		return 0, nil, fmt.Errorf("p2p: empty gossip frame")
	}
	return GossipKind(data[0]), data[1:], nil
}

// writeDirect writes a single kind byte followed by the RLP-encoded
// payload to w. RLP's own length-prefixing means no extra framing is
// needed around the payload.
func writeDirect(w io.Writer, kind DirectKind, v interface{}) error {
	if _, err := w.Write([]byte{byte(kind)}); err != nil {
		return fmt.Errorf("p2p: write direct kind: %w", err)
	}
	return rlp.Encode(w, v)
}

// readDirectKind reads the 1-byte kind tag from a stream.
func readDirectKind(r *bufio.Reader) (DirectKind, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("p2p: read direct kind: %w", err)
	}
	return DirectKind(b), nil
}

// streamReader wraps a libp2p network.Stream with buffering suitable
// for readDirectKind + rlp.Stream decoding.
func streamReader(s network.Stream) *bufio.Reader {
	return bufio.NewReader(s)
}

// encodeDirectRequest builds a kind-tagged direct-message request frame
// ready to hand to SendDirectMessage.
func encodeDirectRequest(kind DirectKind, v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeDirect(&buf, kind, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
