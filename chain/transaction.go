package chain

import "fmt"

// Transaction is the signed envelope carrying a FunctionCall.
type Transaction struct {
	From  Address
	Nonce uint64
	SigR  string
	SigS  string
	SigV  int32
	Hash  Hash
	Data  FunctionCall
}

// NewTransaction builds an unsigned transaction with its hash already
// derived. The hash is a pure function of from, nonce, and data;
// signature fields never feed into it.
func NewTransaction(from Address, nonce uint64, call FunctionCall) (Transaction, error) {
	tx := Transaction{From: from, Nonce: nonce, Data: call}
	h, err := hashTransaction(tx)
	if err != nil {
		return Transaction{}, err
	}
	tx.Hash = h
	return tx, nil
}

// hashTransaction computes SHA3-256 of the canonical encoding of
// (from, nonce, data), hex with a "0x" prefix.
func hashTransaction(tx Transaction) (Hash, error) {
	encoded, err := Encode(struct {
		From  Address
		Nonce uint64
		Data  FunctionCall
	}{tx.From, tx.Nonce, tx.Data})
	if err != nil {
		return "", fmt.Errorf("transaction: hash: %w", err)
	}
	return TxHash(encoded), nil
}

// Sign sets (SigR, SigS, SigV) over the UTF-8 bytes of tx.Hash — the
// hex string itself, not the digest it encodes.
func (tx *Transaction) Sign(priv *KeyPair) error {
	sig, err := Sign(priv.Private, []byte(tx.Hash))
	if err != nil {
		return fmt.Errorf("transaction: sign: %w", err)
	}
	tx.SigR, tx.SigS, tx.SigV = sig.R, sig.S, sig.V
	return nil
}

// Validate checks, in order: (1) the signature verifies against from,
// (2) the nonce equals stored_nonce+1 (genesis sender exempt from
// both), (3) the variant's verify_state passes. Any failure is wrapped
// with the transaction's hash for caller-side reporting.
func (tx Transaction) Validate(snap *Snapshot) error {
	if tx.From != GenesisSender {
		ok, err := Verify(tx.From, []byte(tx.Hash), Signature{R: tx.SigR, S: tx.SigS, V: tx.SigV})
		if err != nil {
			return fmt.Errorf("transaction %s: signature verification error: %w", tx.Hash, err)
		}
		if !ok {
			return fmt.Errorf("transaction %s: signature does not match sender %s", tx.Hash, tx.From)
		}

		expected := GetNonce(snap, tx.From) + 1
		if tx.Nonce != expected {
			return fmt.Errorf(
				"transaction %s: Verification failed: Incorrect nonce for transaction from '%s'. Expected: %d, got: %d.",
				tx.Hash, tx.From, expected, tx.Nonce)
		}
	}

	if err := VerifyState(tx.From, tx.Data, snap); err != nil {
		return fmt.Errorf("transaction %s: %w", tx.Hash, err)
	}
	return nil
}

// Effects concatenates the variant's state effects with a nonce bump
// of From. The genesis sender is never bumped.
func (tx Transaction) Effects(snap *Snapshot) []KV {
	writes := StateEffects(tx.From, tx.Data, tx.Hash, snap)
	if tx.From != GenesisSender {
		writes = append(writes, BumpNonce(snap, tx.From))
	}
	return writes
}

// genesisTransfers builds the five seeded Transfer transactions, all
// from 0xGENESIS at nonce 0, that every chain starts from.
func genesisTransfers() ([]Transaction, error) {
	seeds := []struct {
		To    Address
		Value uint64
	}{
		{"0xdeb4cfb63db134698e1879ea24904df074726cc0", 30},
		{"0xa300e57228487edb1f5c0e737cbfc72d126b5bc2", 90},
		{"0xac20ff4e42ff243046faaf032068762dd2c018dc", 80},
		{"0xa91101310bee451ca0e219aba08d8d4dd929f16c", 20},
		{"0x37adf81cb1f18762042e5da03a55f1e54ba66870", 45},
	}
	txs := make([]Transaction, 0, len(seeds))
	for _, seed := range seeds {
		tx, err := NewTransaction(GenesisSender, 0, NewFunctionCall(Transfer{To: seed.To, Value: seed.Value}))
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}
