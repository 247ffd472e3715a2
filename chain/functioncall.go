package chain

import "fmt"

// FunctionCall tags are frozen and part of the canonical encoding; the
// table below is total and only ever extended by editing it directly.
// No variant registry, no dynamic dispatch.
const (
	TagTransfer        uint8 = 0
	TagRideRequest     uint8 = 1
	TagRideOffer       uint8 = 2
	TagRideAcceptance  uint8 = 3
	TagRidePay         uint8 = 4
	TagRideCancel      uint8 = 5
	TagConfirmArrival  uint8 = 6
	TagComplainArrival uint8 = 7
)

// FunctionCallPayload is implemented by exactly the eight variant
// payload structs below.
type FunctionCallPayload interface {
	functionCallTag() uint8
}

// FunctionCall is the tagged-sum envelope: a tag byte plus the payload
// it tags.
type FunctionCall struct {
	Tag     uint8
	Payload FunctionCallPayload
}

// NewFunctionCall wraps a payload, deriving its tag from the payload's
// own concrete type so the two can never disagree.
func NewFunctionCall(payload FunctionCallPayload) FunctionCall {
	return FunctionCall{Tag: payload.functionCallTag(), Payload: payload}
}

type Transfer struct {
	To    Address
	Value uint64
}

func (Transfer) functionCallTag() uint8 { return TagTransfer }

type RideRequest struct {
	Pickup  Coordinates
	Dropoff Coordinates
	Fare    uint64
}

func (RideRequest) functionCallTag() uint8 { return TagRideRequest }

type RideOffer struct {
	RequestTxHash Hash
	Fare          uint64
}

func (RideOffer) functionCallTag() uint8 { return TagRideOffer }

type RideAcceptance struct {
	OfferTxHash Hash
}

func (RideAcceptance) functionCallTag() uint8 { return TagRideAcceptance }

type RidePay struct {
	AcceptanceTxHash Hash
	Fare             uint64
}

func (RidePay) functionCallTag() uint8 { return TagRidePay }

type RideCancel struct {
	AcceptanceTxHash Hash
}

func (RideCancel) functionCallTag() uint8 { return TagRideCancel }

type ConfirmArrival struct {
	AcceptanceTxHash Hash
}

func (ConfirmArrival) functionCallTag() uint8 { return TagConfirmArrival }

type ComplainArrival struct {
	AcceptanceTxHash Hash
}

func (ComplainArrival) functionCallTag() uint8 { return TagComplainArrival }

// VerifyState runs the per-variant pre-condition check against snap.
// A single total switch over the frozen tag table, never a method on
// the payload interface.
func VerifyState(from Address, fc FunctionCall, snap *Snapshot) error {
	switch p := fc.Payload.(type) {
	case Transfer:
		return verifyTransfer(from, p, snap)
	case RideRequest:
		return verifyRideRequest(from, p, snap)
	case RideOffer:
		return verifyRideOffer(from, p, snap)
	case RideAcceptance:
		return verifyRideAcceptance(from, p, snap)
	case RidePay:
		return verifyRidePay(from, p, snap)
	case RideCancel:
		return verifyRideCancel(from, p, snap)
	case ConfirmArrival:
		return nil
	case ComplainArrival:
		return nil
	default:
		return fmt.Errorf("functioncall: unknown payload type %T", fc.Payload)
	}
}

// StateEffects computes the write set the variant requires, without
// mutating snap. The caller batches these writes.
func StateEffects(from Address, fc FunctionCall, txHash Hash, snap *Snapshot) []KV {
	switch p := fc.Payload.(type) {
	case Transfer:
		return effectsTransfer(from, p, snap)
	case RideRequest:
		return effectsRideRequest(from, p, txHash)
	case RideOffer:
		return effectsRideOffer(from, p, txHash)
	case RideAcceptance:
		return effectsRideAcceptance(from, p, txHash, snap)
	case RidePay:
		return effectsRidePay(from, p, txHash, snap)
	case RideCancel:
		return effectsRideCancel(from, p, txHash, snap)
	case ConfirmArrival:
		return nil
	case ComplainArrival:
		return nil
	default:
		return nil
	}
}
