package chain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Ride entities form a small graph keyed by transaction hash: request
// and offer records carry :from and :ride_acceptance back-pointers,
// the acceptance record lives under ride_<txh> with :fare_paid and
// :cancel companions. Relations are separate key-value pairs, never
// embedded in one another.

func rideRequestKey(txHash Hash) string           { return "ride_request_" + string(txHash) }
func rideRequestFromKey(txHash Hash) string        { return "ride_request_" + string(txHash) + ":from" }
func rideRequestAcceptanceKey(txHash Hash) string   { return "ride_request_" + string(txHash) + ":ride_acceptance" }

func rideOfferKey(txHash Hash) string         { return "ride_offer_" + string(txHash) }
func rideOfferFromKey(txHash Hash) string      { return "ride_offer_" + string(txHash) + ":from" }
func rideOfferAcceptanceKey(txHash Hash) string { return "ride_offer_" + string(txHash) + ":ride_acceptance" }

func rideKey(acceptanceTxHash Hash) string       { return "ride_" + string(acceptanceTxHash) }
func rideFarePaidKey(acceptanceTxHash Hash) string { return "ride_" + string(acceptanceTxHash) + ":fare_paid" }
func rideCancelKey(acceptanceTxHash Hash) string  { return "ride_" + string(acceptanceTxHash) + ":cancel" }

func ridePayKey(txHash Hash) string { return "ride_pay_" + string(txHash) }

// --- records -----------------------------------------------------------

type rideRequestRecord struct {
	Pickup  Coordinates
	Dropoff Coordinates
	Fare    uint64
}

type rideOfferRecord struct {
	RequestTxHash Hash
	Fare          uint64
}

type rideAcceptanceRecord struct {
	OfferTxHash Hash
}

type ridePayRecord struct {
	AcceptanceTxHash Hash
	Fare             uint64
}

func getRideRequest(snap *Snapshot, txHash Hash) (*rideRequestRecord, bool) {
	raw, ok := snap.Get(NamespaceState, rideRequestKey(txHash))
	if !ok {
		return nil, false
	}
	var rec rideRequestRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

func getRideRequestFrom(snap *Snapshot, txHash Hash) (Address, bool) {
	raw, ok := snap.Get(NamespaceState, rideRequestFromKey(txHash))
	if !ok {
		return "", false
	}
	return Address(raw), true
}

func getRideRequestAcceptance(snap *Snapshot, txHash Hash) (Hash, bool) {
	raw, ok := snap.Get(NamespaceState, rideRequestAcceptanceKey(txHash))
	if !ok {
		return "", false
	}
	return Hash(raw), true
}

func getRideOffer(snap *Snapshot, txHash Hash) (*rideOfferRecord, bool) {
	raw, ok := snap.Get(NamespaceState, rideOfferKey(txHash))
	if !ok {
		return nil, false
	}
	var rec rideOfferRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

func getRideOfferFrom(snap *Snapshot, txHash Hash) (Address, bool) {
	raw, ok := snap.Get(NamespaceState, rideOfferFromKey(txHash))
	if !ok {
		return "", false
	}
	return Address(raw), true
}

func getRideOfferAcceptance(snap *Snapshot, txHash Hash) (Hash, bool) {
	raw, ok := snap.Get(NamespaceState, rideOfferAcceptanceKey(txHash))
	if !ok {
		return "", false
	}
	return Hash(raw), true
}

func getRideAcceptance(snap *Snapshot, acceptanceTxHash Hash) (*rideAcceptanceRecord, bool) {
	raw, ok := snap.Get(NamespaceState, rideKey(acceptanceTxHash))
	if !ok {
		return nil, false
	}
	var rec rideAcceptanceRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

func getFarePaid(snap *Snapshot, acceptanceTxHash Hash) uint64 {
	raw, ok := snap.Get(NamespaceState, rideFarePaidKey(acceptanceTxHash))
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func getRideCancel(snap *Snapshot, acceptanceTxHash Hash) (Hash, bool) {
	raw, ok := snap.Get(NamespaceState, rideCancelKey(acceptanceTxHash))
	if !ok {
		return "", false
	}
	return Hash(raw), true
}

// --- Transfer ------------------------------------------------------------

func verifyTransfer(from Address, args Transfer, snap *Snapshot) error {
	balance := GetBalance(snap, from)
	if balance < int64(args.Value) {
		return fmt.Errorf("insufficient balance: account balance is %d, transfer value is %d", balance, args.Value)
	}
	return nil
}

func effectsTransfer(from Address, args Transfer, snap *Snapshot) []KV {
	return []KV{
		DeltaBalance(snap, from, -int64(args.Value)),
		DeltaBalance(snap, args.To, int64(args.Value)),
	}
}

// --- RideRequest -----------------------------------------------------------

func verifyRideRequest(from Address, args RideRequest, snap *Snapshot) error {
	balance := GetBalance(snap, from)
	if balance < int64(args.Fare) {
		return fmt.Errorf("The account balance is insufficient to cover the fare for the requested ride. Account balance is: %d, fare: %d", balance, args.Fare)
	}
	return nil
}

func effectsRideRequest(from Address, args RideRequest, txHash Hash) []KV {
	rec := rideRequestRecord{Pickup: args.Pickup, Dropoff: args.Dropoff, Fare: args.Fare}
	value, _ := json.Marshal(rec)
	return []KV{
		{Namespace: NamespaceState, Key: rideRequestKey(txHash), Value: value},
		{Namespace: NamespaceState, Key: rideRequestFromKey(txHash), Value: []byte(from)},
	}
}

// --- RideOffer -----------------------------------------------------------

func verifyRideOffer(from Address, args RideOffer, snap *Snapshot) error {
	if _, ok := getRideRequest(snap, args.RequestTxHash); !ok {
		return fmt.Errorf("Ride request does not exist or failed to retrieve.")
	}
	if _, ok := getRideRequestAcceptance(snap, args.RequestTxHash); ok {
		return fmt.Errorf("A ride for the requested ride offer already exists.")
	}
	return nil
}

func effectsRideOffer(from Address, args RideOffer, txHash Hash) []KV {
	rec := rideOfferRecord{RequestTxHash: args.RequestTxHash, Fare: args.Fare}
	value, _ := json.Marshal(rec)
	return []KV{
		{Namespace: NamespaceState, Key: rideOfferKey(txHash), Value: value},
		{Namespace: NamespaceState, Key: rideOfferFromKey(txHash), Value: []byte(from)},
	}
}

// --- RideAcceptance -----------------------------------------------------------

func verifyRideAcceptance(from Address, args RideAcceptance, snap *Snapshot) error {
	offer, ok := getRideOffer(snap, args.OfferTxHash)
	if !ok {
		return fmt.Errorf("Ride offer does not exist or failed to retrieve.")
	}
	if _, ok := getRideRequestAcceptance(snap, offer.RequestTxHash); ok {
		return fmt.Errorf("A ride for the requested ride offer already exists.")
	}
	if _, ok := getRideOfferAcceptance(snap, args.OfferTxHash); ok {
		return fmt.Errorf("Ride offer is already linked to a ride.")
	}
	return nil
}

func effectsRideAcceptance(from Address, args RideAcceptance, txHash Hash, snap *Snapshot) []KV {
	offer, _ := getRideOffer(snap, args.OfferTxHash)
	rec := rideAcceptanceRecord{OfferTxHash: args.OfferTxHash}
	value, _ := json.Marshal(rec)
	writes := []KV{
		{Namespace: NamespaceState, Key: rideKey(txHash), Value: value},
		{Namespace: NamespaceState, Key: rideOfferAcceptanceKey(args.OfferTxHash), Value: []byte(txHash)},
	}
	if offer != nil {
		writes = append(writes, KV{Namespace: NamespaceState, Key: rideRequestAcceptanceKey(offer.RequestTxHash), Value: []byte(txHash)})
	}
	return writes
}

// --- RidePay -----------------------------------------------------------

func resolvePassengerAndOffer(snap *Snapshot, acceptanceTxHash Hash) (passenger Address, offer *rideOfferRecord, err error) {
	acceptance, ok := getRideAcceptance(snap, acceptanceTxHash)
	if !ok {
		return "", nil, fmt.Errorf("Ride acceptance does not exist or failed to retrieve.")
	}
	offer, ok = getRideOffer(snap, acceptance.OfferTxHash)
	if !ok {
		return "", nil, fmt.Errorf("Ride offer does not exist.")
	}
	passenger, ok = getRideRequestFrom(snap, offer.RequestTxHash)
	if !ok {
		return "", nil, fmt.Errorf("Ride request does not exist.")
	}
	return passenger, offer, nil
}

func verifyRidePay(from Address, args RidePay, snap *Snapshot) error {
	if _, ok := getRideAcceptance(snap, args.AcceptanceTxHash); !ok {
		return fmt.Errorf("Ride acceptance does not exist or failed to retrieve.")
	}
	if _, ok := getRideCancel(snap, args.AcceptanceTxHash); ok {
		return fmt.Errorf("A ride cancel for the requested ride acceptance already exists.")
	}
	passenger, offer, err := resolvePassengerAndOffer(snap, args.AcceptanceTxHash)
	if err != nil {
		return err
	}
	if passenger != from {
		return fmt.Errorf("Ride request 'from' field does not match the transaction 'from' field. Expected: %s, found: %s.", from, passenger)
	}
	farePaid := getFarePaid(snap, args.AcceptanceTxHash)
	total := farePaid + args.Fare
	if total > offer.Fare {
		return fmt.Errorf("The total fare in the ride pay (%d) is greater than the fare in the ride offer (%d).", total, offer.Fare)
	}
	return nil
}

func effectsRidePay(from Address, args RidePay, txHash Hash, snap *Snapshot) []KV {
	acceptance, _ := getRideAcceptance(snap, args.AcceptanceTxHash)
	driver, _ := getRideOfferFrom(snap, acceptance.OfferTxHash)

	farePaid := getFarePaid(snap, args.AcceptanceTxHash)
	total := farePaid + args.Fare

	rec := ridePayRecord{AcceptanceTxHash: args.AcceptanceTxHash, Fare: args.Fare}
	value, _ := json.Marshal(rec)

	return []KV{
		{Namespace: NamespaceState, Key: ridePayKey(txHash), Value: value},
		DeltaBalance(snap, driver, int64(args.Fare)),
		{Namespace: NamespaceState, Key: rideFarePaidKey(args.AcceptanceTxHash), Value: []byte(strconv.FormatUint(total, 10))},
	}
}

// --- RideCancel -----------------------------------------------------------

func verifyRideCancel(from Address, args RideCancel, snap *Snapshot) error {
	if _, ok := getRideAcceptance(snap, args.AcceptanceTxHash); !ok {
		return fmt.Errorf("Ride acceptance does not exist or failed to retrieve.")
	}
	if _, ok := getRideCancel(snap, args.AcceptanceTxHash); ok {
		return fmt.Errorf("A ride cancel for the requested ride acceptance already exists.")
	}
	passenger, offer, err := resolvePassengerAndOffer(snap, args.AcceptanceTxHash)
	if err != nil {
		return err
	}
	acceptance, _ := getRideAcceptance(snap, args.AcceptanceTxHash)
	driver, _ := getRideOfferFrom(snap, acceptance.OfferTxHash)

	farePaid := getFarePaid(snap, args.AcceptanceTxHash)
	if farePaid == offer.Fare {
		return fmt.Errorf("The full fare for ride acceptance '%s' has been paid. No further payments are needed, and the ride cannot be cancelled.", args.AcceptanceTxHash)
	}
	if passenger != from && driver != from {
		return fmt.Errorf("Transaction 'from' field does not match the expected values. Expected either passenger: '%s' or driver: '%s', but found: '%s'.", passenger, driver, from)
	}
	return nil
}

func effectsRideCancel(from Address, args RideCancel, txHash Hash, snap *Snapshot) []KV {
	acceptance, _ := getRideAcceptance(snap, args.AcceptanceTxHash)
	offer, _ := getRideOffer(snap, acceptance.OfferTxHash)
	passenger, _ := getRideRequestFrom(snap, offer.RequestTxHash)

	farePaid := getFarePaid(snap, args.AcceptanceTxHash)
	remaining := int64(offer.Fare) - int64(farePaid)

	return []KV{
		DeltaBalance(snap, passenger, remaining),
		{Namespace: NamespaceState, Key: rideCancelKey(args.AcceptanceTxHash), Value: []byte(txHash)},
	}
}
