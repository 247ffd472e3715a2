package chain

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// KeyPair is a secp256k1 key pair.
type KeyPair struct {
	Private *ecdsa.PrivateKey
}

// GenerateKeyPair creates a new secp256k1 key pair from a
// cryptographically secure RNG.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return &KeyPair{Private: priv}, nil
}

// KeyPairFromHex reconstructs a KeyPair from a hex-encoded secp256k1
// private key, the form the author_secret_key configuration field
// carries.
func KeyPairFromHex(hexKey string) (*KeyPair, error) {
	priv, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse author secret key: %w", err)
	}
	return &KeyPair{Private: priv}, nil
}

// Address derives the account address for this key pair: Keccak-256 of
// the uncompressed public key's 64-byte X||Y coordinates, low 20
// bytes, hex-encoded with a "0x" prefix.
func (k *KeyPair) Address() Address {
	return AddressFromPublicKey(&k.Private.PublicKey)
}

// AddressFromPublicKey implements the same derivation for a public key
// recovered during verification.
func AddressFromPublicKey(pub *ecdsa.PublicKey) Address {
	uncompressed := crypto.FromECDSAPub(pub) // 0x04 || X || Y, 65 bytes
	hash := crypto.Keccak256(uncompressed[1:])
	return Address("0x" + hex.EncodeToString(hash[12:]))
}

// MessageDigest is SHA-256 of the input bytes. Signatures always cover
// this digest, never the raw input.
func MessageDigest(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// TxHash is SHA3-256 of the input bytes, hex-encoded with a "0x"
// prefix. Note SHA3-256, not Keccak-256: the two differ in padding.
func TxHash(data []byte) Hash {
	h := sha3.Sum256(data)
	return Hash("0x" + hex.EncodeToString(h[:]))
}

// Signature is an ECDSA signature over secp256k1 in (r, s, v)
// representation: 32-byte hex r and s, and a recovery id in {27, 28}.
type Signature struct {
	R string
	S string
	V int32
}

// Sign computes the SHA-256 digest of data and signs it.
func Sign(priv *ecdsa.PrivateKey, data []byte) (Signature, error) {
	digest := MessageDigest(data)
	sig, err := crypto.Sign(digest[:], priv)
	if err != nil {
		return Signature{}, fmt.Errorf("crypto: sign: %w", err)
	}
	r := sig[:32]
	s := sig[32:64]
	recID := int32(sig[64]) + 27
	return Signature{R: hex.EncodeToString(r), S: hex.EncodeToString(s), V: recID}, nil
}

// Verify recovers the public key from (hash_bytes, r, s, v), derives
// its address, and compares it to expected. Verification is always by
// recovery-and-match; a signature that checks out mathematically but
// recovers to a different address is a mismatch.
func Verify(expected Address, hashBytes []byte, sig Signature) (bool, error) {
	r, err := hex.DecodeString(sig.R)
	if err != nil {
		return false, fmt.Errorf("crypto: decode r: %w", err)
	}
	s, err := hex.DecodeString(sig.S)
	if err != nil {
		return false, fmt.Errorf("crypto: decode s: %w", err)
	}
	if sig.V != 27 && sig.V != 28 {
		return false, fmt.Errorf("crypto: recovery id %d out of range", sig.V)
	}
	digest := MessageDigest(hashBytes)

	raw := make([]byte, 65)
	copy(raw[:32], r)
	copy(raw[32:64], s)
	raw[64] = byte(sig.V - 27)

	pub, err := crypto.SigToPub(digest[:], raw)
	if err != nil {
		return false, fmt.Errorf("crypto: recover public key: %w", err)
	}
	return AddressFromPublicKey(pub) == expected, nil
}
