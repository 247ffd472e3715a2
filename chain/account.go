package chain

import (
	"encoding/json"
	"strconv"
)

// accountRecord is the JSON value persisted under "balance_<addr>".
type accountRecord struct {
	PublicKey string `json:"public_key"`
	Balance   int64  `json:"balance"`
}

func balanceKey(addr Address) string { return "balance_" + string(addr) }
func nonceKey(addr Address) string   { return "nonce_" + string(addr) }

// GetBalance returns the address's balance, or 0 if the key is absent.
func GetBalance(snap *Snapshot, addr Address) int64 {
	raw, ok := snap.Get(NamespaceState, balanceKey(addr))
	if !ok {
		return 0
	}
	var rec accountRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return 0
	}
	return rec.Balance
}

// GetNonce returns the address's last confirmed nonce, or 0 if absent.
// The genesis sender always reports 0 regardless of what (if anything)
// is stored for it.
func GetNonce(snap *Snapshot, addr Address) uint64 {
	if addr == GenesisSender {
		return 0
	}
	raw, ok := snap.Get(NamespaceState, nonceKey(addr))
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// DeltaBalance returns the (key, value) write that realizes
// new_balance = current_balance(addr) + delta, observed through snap.
func DeltaBalance(snap *Snapshot, addr Address, delta int64) KV {
	current := GetBalance(snap, addr)
	rec := accountRecord{PublicKey: string(addr), Balance: current + delta}
	value, _ := json.Marshal(rec)
	return KV{Namespace: NamespaceState, Key: balanceKey(addr), Value: value}
}

// BumpNonce returns the (key, value) write that increments addr's
// stored nonce by one, observed through snap. The genesis sender is
// never bumped; callers must not include this write for it.
func BumpNonce(snap *Snapshot, addr Address) KV {
	next := GetNonce(snap, addr) + 1
	return KV{Namespace: NamespaceState, Key: nonceKey(addr), Value: []byte(strconv.FormatUint(next, 10))}
}
