package chain

import "testing"

func newTestChain(t *testing.T, authorities []Address, selfKey *KeyPair) *Blockchain {
	t.Helper()
	store, err := OpenStore(t.TempDir(), "clutch-node-test")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	bc, err := NewBlockchain(store, authorities, selfKey)
	if err != nil {
		t.Fatalf("new blockchain: %v", err)
	}
	return bc
}

// fund credits addr directly through the account-state write path,
// bypassing Transaction/Block machinery, so tests can set up a known
// starting balance for a freshly generated key pair whose address
// never appears in the seeded genesis transfers.
func fund(t *testing.T, bc *Blockchain, addr Address, amount int64) {
	t.Helper()
	snap := NewSnapshot(bc.store)
	write := DeltaBalance(snap, addr, amount)
	if err := bc.store.CommitBatch([]KV{write}); err != nil {
		t.Fatalf("fund %s: %v", addr, err)
	}
}

func balanceOf(bc *Blockchain, addr Address) int64 {
	return GetBalance(NewSnapshot(bc.store), addr)
}

func nonceOf(bc *Blockchain, addr Address) uint64 {
	return GetNonce(NewSnapshot(bc.store), addr)
}

// Scenario 1: genesis seeds the five literal transfers
// and the chain starts at index 0.
func TestGenesisSeedsBalances(t *testing.T) {
	bc := newTestChain(t, []Address{"0x9b0000000000000000000000000000000000c20"}, nil)

	if got := balanceOf(bc, "0xdeb4cfb63db134698e1879ea24904df074726cc0"); got != 30 {
		t.Fatalf("balance_0xdeb4...6cc0 = %d, want 30", got)
	}
	if got := balanceOf(bc, "0xa300e57228487edb1f5c0e737cbfc72d126b5bc2"); got != 90 {
		t.Fatalf("balance_0xa300...5bc2 = %d, want 90", got)
	}
	if bc.GetLatestBlock().Index != 0 {
		t.Fatalf("latest_index = %d, want 0", bc.GetLatestBlock().Index)
	}
}

// Scenario 2: a signed Transfer, once authored into a
// block, moves value and bumps the sender's nonce.
func TestTransferScenario(t *testing.T) {
	author, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate author key: %v", err)
	}
	bc := newTestChain(t, []Address{author.Address()}, author)

	sender, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate sender key: %v", err)
	}
	recipient, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate recipient key: %v", err)
	}
	fund(t, bc, sender.Address(), 30)

	tx, err := NewTransaction(sender.Address(), 1, NewFunctionCall(Transfer{To: recipient.Address(), Value: 20}))
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	if err := tx.Sign(sender); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := bc.AddTransactionToPool(tx); err != nil {
		t.Fatalf("admit transfer: %v", err)
	}

	if _, err := bc.AuthorNewBlock(0); err != nil {
		t.Fatalf("author block: %v", err)
	}

	if got := balanceOf(bc, sender.Address()); got != 10 {
		t.Fatalf("sender balance = %d, want 10", got)
	}
	if got := balanceOf(bc, recipient.Address()); got != 20 {
		t.Fatalf("recipient balance = %d, want 20", got)
	}
	if got := nonceOf(bc, sender.Address()); got != 1 {
		t.Fatalf("sender nonce = %d, want 1", got)
	}
}

type rideActors struct {
	passenger *KeyPair
	driver    *KeyPair
}

func setupRide(t *testing.T, bc *Blockchain, passengerFare uint64) (rideActors, Hash, Hash) {
	t.Helper()
	passenger, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate passenger key: %v", err)
	}
	driver, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate driver key: %v", err)
	}
	fund(t, bc, passenger.Address(), 100)
	fund(t, bc, driver.Address(), 100)

	request, err := NewTransaction(passenger.Address(), 1, NewFunctionCall(RideRequest{
		Pickup:  Coordinates{Latitude: 37.7749, Longitude: -122.4194},
		Dropoff: Coordinates{Latitude: 37.8, Longitude: -122.3},
		Fare:    passengerFare,
	}))
	if err != nil {
		t.Fatalf("new ride request: %v", err)
	}
	if err := request.Sign(passenger); err != nil {
		t.Fatalf("sign ride request: %v", err)
	}
	if err := bc.AddTransactionToPool(request); err != nil {
		t.Fatalf("admit ride request: %v", err)
	}
	if _, err := bc.AuthorNewBlock(0); err != nil {
		t.Fatalf("author block with ride request: %v", err)
	}

	offer, err := NewTransaction(driver.Address(), 1, NewFunctionCall(RideOffer{RequestTxHash: request.Hash, Fare: 30}))
	if err != nil {
		t.Fatalf("new ride offer: %v", err)
	}
	if err := offer.Sign(driver); err != nil {
		t.Fatalf("sign ride offer: %v", err)
	}
	if err := bc.AddTransactionToPool(offer); err != nil {
		t.Fatalf("admit ride offer: %v", err)
	}
	if _, err := bc.AuthorNewBlock(0); err != nil {
		t.Fatalf("author block with ride offer: %v", err)
	}

	acceptance, err := NewTransaction(passenger.Address(), 2, NewFunctionCall(RideAcceptance{OfferTxHash: offer.Hash}))
	if err != nil {
		t.Fatalf("new ride acceptance: %v", err)
	}
	if err := acceptance.Sign(passenger); err != nil {
		t.Fatalf("sign ride acceptance: %v", err)
	}
	if err := bc.AddTransactionToPool(acceptance); err != nil {
		t.Fatalf("admit ride acceptance: %v", err)
	}

	if _, err := bc.AuthorNewBlock(0); err != nil {
		t.Fatalf("author block: %v", err)
	}

	return rideActors{passenger: passenger, driver: driver}, offer.Hash, acceptance.Hash
}

func ridePay(t *testing.T, bc *Blockchain, passenger *KeyPair, nonce uint64, acceptanceHash Hash, fare uint64) error {
	t.Helper()
	tx, err := NewTransaction(passenger.Address(), nonce, NewFunctionCall(RidePay{AcceptanceTxHash: acceptanceHash, Fare: fare}))
	if err != nil {
		t.Fatalf("new ride pay: %v", err)
	}
	if err := tx.Sign(passenger); err != nil {
		t.Fatalf("sign ride pay: %v", err)
	}
	if err := bc.AddTransactionToPool(tx); err != nil {
		return err
	}
	_, err = bc.AuthorNewBlock(0)
	return err
}

// Scenario 3: ride request -> offer -> acceptance ->
// three ride-pays totalling 25 of the offer's fare of 30; a further pay
// of 6 that would overshoot it is rejected.
func TestRideHappyPath(t *testing.T) {
	author, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate author key: %v", err)
	}
	bc := newTestChain(t, []Address{author.Address()}, author)
	actors, _, acceptanceHash := setupRide(t, bc, 20)

	if err := ridePay(t, bc, actors.passenger, 3, acceptanceHash, 5); err != nil {
		t.Fatalf("ride pay 1: %v", err)
	}
	if err := ridePay(t, bc, actors.passenger, 4, acceptanceHash, 10); err != nil {
		t.Fatalf("ride pay 2: %v", err)
	}
	if err := ridePay(t, bc, actors.passenger, 5, acceptanceHash, 10); err != nil {
		t.Fatalf("ride pay 3: %v", err)
	}

	if got := getFarePaid(NewSnapshot(bc.store), acceptanceHash); got != 25 {
		t.Fatalf("fare_paid = %d, want 25", got)
	}

	err = ridePay(t, bc, actors.passenger, 6, acceptanceHash, 6)
	if err == nil {
		t.Fatalf("expected the fourth ride pay to be rejected")
	}
}

// Scenario 4: cancelling a partially-paid ride refunds
// the remainder to the passenger and blocks further pay/cancel.
func TestRideCancel(t *testing.T) {
	author, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate author key: %v", err)
	}
	bc := newTestChain(t, []Address{author.Address()}, author)
	actors, _, acceptanceHash := setupRide(t, bc, 20)

	if err := ridePay(t, bc, actors.passenger, 3, acceptanceHash, 5); err != nil {
		t.Fatalf("ride pay 1: %v", err)
	}
	if err := ridePay(t, bc, actors.passenger, 4, acceptanceHash, 10); err != nil {
		t.Fatalf("ride pay 2: %v", err)
	}

	passengerBalanceBeforeCancel := balanceOf(bc, actors.passenger.Address())

	cancelTx, err := NewTransaction(actors.passenger.Address(), 5, NewFunctionCall(RideCancel{AcceptanceTxHash: acceptanceHash}))
	if err != nil {
		t.Fatalf("new ride cancel: %v", err)
	}
	if err := cancelTx.Sign(actors.passenger); err != nil {
		t.Fatalf("sign ride cancel: %v", err)
	}
	if err := bc.AddTransactionToPool(cancelTx); err != nil {
		t.Fatalf("admit ride cancel: %v", err)
	}
	if _, err := bc.AuthorNewBlock(0); err != nil {
		t.Fatalf("author block: %v", err)
	}

	if got := balanceOf(bc, actors.passenger.Address()); got != passengerBalanceBeforeCancel+15 {
		t.Fatalf("passenger balance after cancel = %d, want %d", got, passengerBalanceBeforeCancel+15)
	}
	if _, ok := getRideCancel(NewSnapshot(bc.store), acceptanceHash); !ok {
		t.Fatalf("expected a cancel record to be stored")
	}

	if err := ridePay(t, bc, actors.passenger, 6, acceptanceHash, 1); err == nil {
		t.Fatalf("expected ride pay after cancel to be rejected")
	}

	secondCancel, err := NewTransaction(actors.passenger.Address(), 6, NewFunctionCall(RideCancel{AcceptanceTxHash: acceptanceHash}))
	if err != nil {
		t.Fatalf("new second cancel: %v", err)
	}
	if err := secondCancel.Sign(actors.passenger); err != nil {
		t.Fatalf("sign second cancel: %v", err)
	}
	if err := bc.AddTransactionToPool(secondCancel); err == nil {
		t.Fatalf("expected second cancel to be rejected")
	}
}

// Scenario 5: corrupting sig_r (its last hex digit replaced) rejects
// both mempool admission and block import.
func TestBadSignatureRejected(t *testing.T) {
	author, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate author key: %v", err)
	}
	bc := newTestChain(t, []Address{author.Address()}, author)

	sender, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate sender key: %v", err)
	}
	fund(t, bc, sender.Address(), 30)

	tx, err := NewTransaction(sender.Address(), 1, NewFunctionCall(Transfer{To: "0xdest", Value: 5}))
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	if err := tx.Sign(sender); err != nil {
		t.Fatalf("sign: %v", err)
	}

	if tx.SigR[len(tx.SigR)-1] == '0' {
		tx.SigR = tx.SigR[:len(tx.SigR)-1] + "1"
	} else {
		tx.SigR = tx.SigR[:len(tx.SigR)-1] + "0"
	}

	if err := bc.AddTransactionToPool(tx); err == nil {
		t.Fatalf("expected mempool admission to reject the bad signature")
	}

	b, err := newBlock(1, bc.GetLatestBlock().Hash, 0, author.Address(), []Transaction{tx})
	if err != nil {
		t.Fatalf("build block: %v", err)
	}
	if err := b.sign(author); err != nil {
		t.Fatalf("sign block: %v", err)
	}
	if err := bc.Import(b); err == nil {
		t.Fatalf("expected block import to reject the bad signature")
	}
}

// Scenario 6: a block whose timestamp belongs to another
// authority's slot is rejected on import.
func TestWrongSlotRejected(t *testing.T) {
	a0, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate a0: %v", err)
	}
	a1, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate a1: %v", err)
	}
	bc := newTestChain(t, []Address{a0.Address(), a1.Address()}, nil)

	w := bc.authority.slotWidth

	b, err := newBlock(1, bc.GetLatestBlock().Hash, w, a0.Address(), nil)
	if err != nil {
		t.Fatalf("build block: %v", err)
	}
	if err := b.sign(a0); err != nil {
		t.Fatalf("sign block: %v", err)
	}
	if err := bc.Import(b); err == nil {
		t.Fatalf("expected import to reject a0 authoring at a1's slot")
	}
}

// Mempool idempotence: inserting the same valid
// Transaction twice is a no-op on the second call.
func TestMempoolIdempotence(t *testing.T) {
	author, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate author key: %v", err)
	}
	bc := newTestChain(t, []Address{author.Address()}, author)

	sender, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate sender key: %v", err)
	}
	fund(t, bc, sender.Address(), 30)

	tx, err := NewTransaction(sender.Address(), 1, NewFunctionCall(Transfer{To: "0xdest", Value: 5}))
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	if err := tx.Sign(sender); err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := bc.AddTransactionToPool(tx); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := bc.AddTransactionToPool(tx); err != nil {
		t.Fatalf("second insert (should be a no-op): %v", err)
	}

	before := bc.GetLatestBlock().Index
	b, err := bc.AuthorNewBlock(0)
	if err != nil {
		t.Fatalf("author: %v", err)
	}
	if len(b.Transactions) != 1 {
		t.Fatalf("authored block has %d transactions, want 1 (duplicate must not double-include)", len(b.Transactions))
	}
	if bc.GetLatestBlock().Index != before+1 {
		t.Fatalf("latest_index did not advance by one")
	}
}

// Nonce monotonicity: committed nonces for an address
// form the gapless sequence 1, 2, 3, ...
func TestNonceMonotonicity(t *testing.T) {
	author, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate author key: %v", err)
	}
	bc := newTestChain(t, []Address{author.Address()}, author)

	sender, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate sender key: %v", err)
	}
	fund(t, bc, sender.Address(), 100)

	for i, want := uint64(1), uint64(1); i <= 3; i, want = i+1, want+1 {
		tx, err := NewTransaction(sender.Address(), i, NewFunctionCall(Transfer{To: "0xdest", Value: 1}))
		if err != nil {
			t.Fatalf("new transaction %d: %v", i, err)
		}
		if err := tx.Sign(sender); err != nil {
			t.Fatalf("sign %d: %v", i, err)
		}
		if err := bc.AddTransactionToPool(tx); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
		if _, err := bc.AuthorNewBlock(0); err != nil {
			t.Fatalf("author %d: %v", i, err)
		}
		if got := nonceOf(bc, sender.Address()); got != want {
			t.Fatalf("nonce after tx %d = %d, want %d", i, got, want)
		}
	}
}

// Balance conservation under Transfer: the sum of
// balances is unchanged by a Transfer.
func TestBalanceConservationUnderTransfer(t *testing.T) {
	author, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate author key: %v", err)
	}
	bc := newTestChain(t, []Address{author.Address()}, author)

	sender, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate sender key: %v", err)
	}
	recipient, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate recipient key: %v", err)
	}
	fund(t, bc, sender.Address(), 50)

	before := balanceOf(bc, sender.Address()) + balanceOf(bc, recipient.Address())

	tx, err := NewTransaction(sender.Address(), 1, NewFunctionCall(Transfer{To: recipient.Address(), Value: 15}))
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	if err := tx.Sign(sender); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := bc.AddTransactionToPool(tx); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, err := bc.AuthorNewBlock(0); err != nil {
		t.Fatalf("author: %v", err)
	}

	after := balanceOf(bc, sender.Address()) + balanceOf(bc, recipient.Address())
	if after != before {
		t.Fatalf("balance sum changed: before %d, after %d", before, after)
	}
}

// Determinism: two independently opened stores importing
// the same ordered sequence of blocks produce byte-identical
// balance_*/nonce_* values.
func TestDeterminismAcrossIndependentStores(t *testing.T) {
	author, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate author key: %v", err)
	}
	sender, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate sender key: %v", err)
	}
	recipient, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate recipient key: %v", err)
	}

	bcA := newTestChain(t, []Address{author.Address()}, author)
	fund(t, bcA, sender.Address(), 50)
	tx, err := NewTransaction(sender.Address(), 1, NewFunctionCall(Transfer{To: recipient.Address(), Value: 15}))
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	if err := tx.Sign(sender); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := bcA.AddTransactionToPool(tx); err != nil {
		t.Fatalf("admit on A: %v", err)
	}
	authoredBlock, err := bcA.AuthorNewBlock(0)
	if err != nil {
		t.Fatalf("author on A: %v", err)
	}

	bcB := newTestChain(t, []Address{author.Address()}, nil)
	fund(t, bcB, sender.Address(), 50)
	if err := bcB.Import(authoredBlock); err != nil {
		t.Fatalf("import on B: %v", err)
	}

	if balanceOf(bcA, sender.Address()) != balanceOf(bcB, sender.Address()) {
		t.Fatalf("sender balances diverged: A=%d B=%d", balanceOf(bcA, sender.Address()), balanceOf(bcB, sender.Address()))
	}
	if balanceOf(bcA, recipient.Address()) != balanceOf(bcB, recipient.Address()) {
		t.Fatalf("recipient balances diverged: A=%d B=%d", balanceOf(bcA, recipient.Address()), balanceOf(bcB, recipient.Address()))
	}
	if nonceOf(bcA, sender.Address()) != nonceOf(bcB, sender.Address()) {
		t.Fatalf("sender nonces diverged: A=%d B=%d", nonceOf(bcA, sender.Address()), nonceOf(bcB, sender.Address()))
	}
}
