package chain

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC transports Transaction and Block objects as plain JSON.
// FunctionCall's payload field is an interface, so it needs an
// explicit tag-carrying envelope the same way the canonical binary
// encoding does — the same frozen tag table as codec.go, never a type
// registry.
type functionCallJSON struct {
	Tag     uint8           `json:"tag"`
	Payload json.RawMessage `json:"payload"`
}

func (fc FunctionCall) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(fc.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(functionCallJSON{Tag: fc.Tag, Payload: payload})
}

func (fc *FunctionCall) UnmarshalJSON(data []byte) error {
	var raw functionCallJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fc.Tag = raw.Tag
	switch raw.Tag {
	case TagTransfer:
		var v Transfer
		if err := json.Unmarshal(raw.Payload, &v); err != nil {
			return err
		}
		fc.Payload = v
	case TagRideRequest:
		var v RideRequest
		if err := json.Unmarshal(raw.Payload, &v); err != nil {
			return err
		}
		fc.Payload = v
	case TagRideOffer:
		var v RideOffer
		if err := json.Unmarshal(raw.Payload, &v); err != nil {
			return err
		}
		fc.Payload = v
	case TagRideAcceptance:
		var v RideAcceptance
		if err := json.Unmarshal(raw.Payload, &v); err != nil {
			return err
		}
		fc.Payload = v
	case TagRidePay:
		var v RidePay
		if err := json.Unmarshal(raw.Payload, &v); err != nil {
			return err
		}
		fc.Payload = v
	case TagRideCancel:
		var v RideCancel
		if err := json.Unmarshal(raw.Payload, &v); err != nil {
			return err
		}
		fc.Payload = v
	case TagConfirmArrival:
		var v ConfirmArrival
		if err := json.Unmarshal(raw.Payload, &v); err != nil {
			return err
		}
		fc.Payload = v
	case TagComplainArrival:
		var v ComplainArrival
		if err := json.Unmarshal(raw.Payload, &v); err != nil {
			return err
		}
		fc.Payload = v
	default:
		return fmt.Errorf("codec: unknown FunctionCall tag %d", raw.Tag)
	}
	return nil
}
