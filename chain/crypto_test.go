package chain

import "testing"

// Hash purity: mutating the signature fields of a
// Transaction leaves Hash unchanged; mutating From, Nonce, or Data
// changes it.
func TestHashPurityUnderSignatureMutation(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	tx, err := NewTransaction(kp.Address(), 1, NewFunctionCall(Transfer{To: "0xdest", Value: 5}))
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	original := tx.Hash

	if err := tx.Sign(kp); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if tx.Hash != original {
		t.Fatalf("hash changed after signing: got %s, want %s", tx.Hash, original)
	}

	tx.SigR = tx.SigR[:len(tx.SigR)-1] + "0"
	if tx.Hash != original {
		t.Fatalf("hash changed after flipping sig_r: got %s, want %s", tx.Hash, original)
	}
}

func TestHashChangesWithFromNonceOrData(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	base, err := NewTransaction(kp.Address(), 1, NewFunctionCall(Transfer{To: "0xdest", Value: 5}))
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}

	otherNonce, err := NewTransaction(kp.Address(), 2, NewFunctionCall(Transfer{To: "0xdest", Value: 5}))
	if err != nil {
		t.Fatalf("new transaction (nonce): %v", err)
	}
	if otherNonce.Hash == base.Hash {
		t.Fatalf("hash did not change with nonce")
	}

	otherData, err := NewTransaction(kp.Address(), 1, NewFunctionCall(Transfer{To: "0xdest", Value: 6}))
	if err != nil {
		t.Fatalf("new transaction (data): %v", err)
	}
	if otherData.Hash == base.Hash {
		t.Fatalf("hash did not change with data")
	}

	otherKP, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	otherFrom, err := NewTransaction(otherKP.Address(), 1, NewFunctionCall(Transfer{To: "0xdest", Value: 5}))
	if err != nil {
		t.Fatalf("new transaction (from): %v", err)
	}
	if otherFrom.Hash == base.Hash {
		t.Fatalf("hash did not change with from")
	}
}

// Signature soundness: verify(from, hash_bytes,
// sign(sk, hash_bytes)) == true iff address(pk(sk)) == from.
func TestSignatureSoundness(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	digest := []byte("0xsome-transaction-hash")
	sig, err := Sign(kp.Private, digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	ok, err := Verify(kp.Address(), digest, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected verify to succeed for the signing key's own address")
	}

	other, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate other key pair: %v", err)
	}
	ok, err = Verify(other.Address(), digest, sig)
	if err != nil {
		t.Fatalf("verify against wrong address: %v", err)
	}
	if ok {
		t.Fatalf("expected verify to fail against an unrelated address")
	}
}
