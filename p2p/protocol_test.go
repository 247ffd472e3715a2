package p2p

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"

	"clutch-node/chain"
)

func TestGossipFrameRoundTrip(t *testing.T) {
	kp, err := chain.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	tx, err := chain.NewTransaction(kp.Address(), 1, chain.NewFunctionCall(chain.Transfer{To: "0xdest", Value: 5}))
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	if err := tx.Sign(kp); err != nil {
		t.Fatalf("sign: %v", err)
	}

	frame, err := GossipTransactionBytes(tx)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}

	kind, body, err := decodeGossipKind(frame)
	if err != nil {
		t.Fatalf("decode kind: %v", err)
	}
	if kind != GossipTransaction {
		t.Fatalf("kind = %#x, want %#x", kind, GossipTransaction)
	}
	var decoded chain.Transaction
	if err := rlp.DecodeBytes(body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.Hash != tx.Hash {
		t.Fatalf("round-trip hash = %s, want %s", decoded.Hash, tx.Hash)
	}
}

func TestGossipEmptyFrameRejected(t *testing.T) {
	if _, _, err := decodeGossipKind(nil); err == nil {
		t.Fatalf("expected an error for an empty gossip frame")
	}
}

func TestDirectFrameRoundTrip(t *testing.T) {
	hs := chain.Handshake{GenesisHash: "0xgenesis", LatestIndex: 7, LatestHash: "0xtip"}
	frame, err := DirectHandshakeBytes(hs)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}

	r := bufio.NewReader(bytes.NewReader(frame))
	kind, err := readDirectKind(r)
	if err != nil {
		t.Fatalf("read kind: %v", err)
	}
	if kind != DirectHandshake {
		t.Fatalf("kind = %#x, want %#x", kind, DirectHandshake)
	}
	var decoded chain.Handshake
	if err := rlp.Decode(r, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded != hs {
		t.Fatalf("round-trip = %+v, want %+v", decoded, hs)
	}
}
