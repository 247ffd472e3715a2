package chain

import (
	"fmt"
	"io"
	"math"

	"github.com/ethereum/go-ethereum/rlp"
)

// Canonical encoding: deterministic recursive-length-prefix (RLP)
// binary encoding, used for hashing, signing, and wire transport.
// Field order and variant tag bytes are frozen; any change breaks
// hashes persisted by every running node.

// Encode returns the canonical encoding of v.
func Encode(v interface{}) ([]byte, error) {
	return rlp.EncodeToBytes(v)
}

// Decode parses the canonical encoding of data into v.
func Decode(data []byte, v interface{}) error {
	return rlp.DecodeBytes(data, v)
}

// --- Coordinates: fixed IEEE-754 bit-pattern encoding ---------------------

type coordinatesRLP struct {
	LatBits uint64
	LonBits uint64
}

func (c Coordinates) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, coordinatesRLP{
		LatBits: math.Float64bits(c.Latitude),
		LonBits: math.Float64bits(c.Longitude),
	})
}

func (c *Coordinates) DecodeRLP(s *rlp.Stream) error {
	var raw coordinatesRLP
	if err := s.Decode(&raw); err != nil {
		return err
	}
	c.Latitude = math.Float64frombits(raw.LatBits)
	c.Longitude = math.Float64frombits(raw.LonBits)
	return nil
}

// --- FunctionCall: 2-item [tag, payload] list ------------------------------

func (fc FunctionCall) EncodeRLP(w io.Writer) error {
	payload, err := rlp.EncodeToBytes(fc.Payload)
	if err != nil {
		return fmt.Errorf("codec: encode functioncall payload: %w", err)
	}
	return rlp.Encode(w, struct {
		Tag     uint8
		Payload rlp.RawValue
	}{fc.Tag, payload})
}

func (fc *FunctionCall) DecodeRLP(s *rlp.Stream) error {
	var raw struct {
		Tag     uint8
		Payload rlp.RawValue
	}
	if err := s.Decode(&raw); err != nil {
		return err
	}
	fc.Tag = raw.Tag
	switch raw.Tag {
	case TagTransfer:
		var v Transfer
		if err := rlp.DecodeBytes(raw.Payload, &v); err != nil {
			return err
		}
		fc.Payload = v
	case TagRideRequest:
		var v RideRequest
		if err := rlp.DecodeBytes(raw.Payload, &v); err != nil {
			return err
		}
		fc.Payload = v
	case TagRideOffer:
		var v RideOffer
		if err := rlp.DecodeBytes(raw.Payload, &v); err != nil {
			return err
		}
		fc.Payload = v
	case TagRideAcceptance:
		var v RideAcceptance
		if err := rlp.DecodeBytes(raw.Payload, &v); err != nil {
			return err
		}
		fc.Payload = v
	case TagRidePay:
		var v RidePay
		if err := rlp.DecodeBytes(raw.Payload, &v); err != nil {
			return err
		}
		fc.Payload = v
	case TagRideCancel:
		var v RideCancel
		if err := rlp.DecodeBytes(raw.Payload, &v); err != nil {
			return err
		}
		fc.Payload = v
	case TagConfirmArrival:
		var v ConfirmArrival
		if err := rlp.DecodeBytes(raw.Payload, &v); err != nil {
			return err
		}
		fc.Payload = v
	case TagComplainArrival:
		var v ComplainArrival
		if err := rlp.DecodeBytes(raw.Payload, &v); err != nil {
			return err
		}
		fc.Payload = v
	default:
		return fmt.Errorf("codec: unknown FunctionCall tag %d", raw.Tag)
	}
	return nil
}

// --- Transaction: 7-item list ----------------------------------------------

type transactionRLP struct {
	From  Address
	Nonce uint64
	SigR  string
	SigS  string
	SigV  uint64
	Hash  Hash
	Data  FunctionCall
}

func (t Transaction) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, transactionRLP{
		From: t.From, Nonce: t.Nonce, SigR: t.SigR, SigS: t.SigS,
		SigV: uint64(t.SigV), Hash: t.Hash, Data: t.Data,
	})
}

func (t *Transaction) DecodeRLP(s *rlp.Stream) error {
	var raw transactionRLP
	if err := s.Decode(&raw); err != nil {
		return err
	}
	t.From, t.Nonce, t.SigR, t.SigS = raw.From, raw.Nonce, raw.SigR, raw.SigS
	t.SigV, t.Hash, t.Data = int32(raw.SigV), raw.Hash, raw.Data
	return nil
}

// --- Block: 9-item list -----------------------------------------------------

type blockRLP struct {
	Index        uint64
	Timestamp    uint64
	PreviousHash Hash
	Author       Address
	SigR         string
	SigS         string
	SigV         uint64
	Hash         Hash
	Transactions []Transaction
}

func (b Block) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, blockRLP{
		Index: b.Index, Timestamp: b.Timestamp, PreviousHash: b.PreviousHash,
		Author: b.Author, SigR: b.SigR, SigS: b.SigS, SigV: uint64(b.SigV),
		Hash: b.Hash, Transactions: b.Transactions,
	})
}

func (b *Block) DecodeRLP(s *rlp.Stream) error {
	var raw blockRLP
	if err := s.Decode(&raw); err != nil {
		return err
	}
	b.Index, b.Timestamp, b.PreviousHash = raw.Index, raw.Timestamp, raw.PreviousHash
	b.Author, b.SigR, b.SigS = raw.Author, raw.SigR, raw.SigS
	b.SigV, b.Hash, b.Transactions = int32(raw.SigV), raw.Hash, raw.Transactions
	return nil
}

// --- BlockHeader: 7-item list (no timestamp) -------------------------------

type blockHeaderRLP struct {
	Index        uint64
	PreviousHash Hash
	Author       Address
	SigR         string
	SigS         string
	SigV         uint64
	Hash         Hash
}

func (h BlockHeader) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, blockHeaderRLP{
		Index: h.Index, PreviousHash: h.PreviousHash, Author: h.Author,
		SigR: h.SigR, SigS: h.SigS, SigV: uint64(h.SigV), Hash: h.Hash,
	})
}

func (h *BlockHeader) DecodeRLP(s *rlp.Stream) error {
	var raw blockHeaderRLP
	if err := s.Decode(&raw); err != nil {
		return err
	}
	h.Index, h.PreviousHash, h.Author = raw.Index, raw.PreviousHash, raw.Author
	h.SigR, h.SigS, h.SigV, h.Hash = raw.SigR, raw.SigS, int32(raw.SigV), raw.Hash
	return nil
}
