// Package cborv2 encodes bone intents for protocol v2 viewers: one binary
// CBOR frame per view and tick carrying quaternions.
package cborv2

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/hephaestus-engine/hephaestus/pkg/core"
	"github.com/hephaestus-engine/hephaestus/pkg/streaming"
)

// Version is the protocol identifier served by this adapter.
const Version = "v2"

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2), so the same
// batch always produces the same bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cborv2: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cborv2: CBOR decoder initialization failed: " + err.Error())
	}
}

// Adapter turns intents into v2 batch frames.
type Adapter struct {
	sender streaming.Sender
}

// New returns an adapter writing through s.
func New(s streaming.Sender) *Adapter {
	return &Adapter{sender: s}
}

// Version returns "v2".
func (a *Adapter) Version() string {
	return Version
}

// Apply encodes intents as a single batch frame.
func (a *Adapter) Apply(viewer core.ViewerID, view core.ViewID, intents []core.Intent) error {
	if len(intents) == 0 {
		return nil
	}
	data, err := Encode(view, intents)
	if err != nil {
		return err
	}
	return a.sender.Send(viewer, streaming.Message{Binary: true, Data: data})
}

// Encode returns the CBOR frame for intents, preserving their order.
func Encode(view core.ViewID, intents []core.Intent) ([]byte, error) {
	frame := streaming.BatchFrame{View: view, Intents: make([]streaming.BatchIntent, 0, len(intents))}
	for _, in := range intents {
		bi := streaming.BatchIntent{Bone: in.Bone}
		switch in.Kind {
		case core.IntentCreate:
			bi.Kind = streaming.BatchCreate
		case core.IntentUpdate:
			bi.Kind = streaming.BatchUpdate
		case core.IntentRemove:
			bi.Kind = streaming.BatchRemove
		default:
			return nil, fmt.Errorf("unknown intent kind %d", in.Kind)
		}
		if in.Kind != core.IntentRemove {
			p, r, s := in.Transform.Position, in.Transform.Rotation, in.Transform.Scale
			bi.Position = &[3]float32{float32(p.X), float32(p.Y), float32(p.Z)}
			bi.Rotation = &[4]float32{float32(r.X), float32(r.Y), float32(r.Z), float32(r.W)}
			bi.Scale = &[3]float32{float32(s.X), float32(s.Y), float32(s.Z)}
		}
		frame.Intents = append(frame.Intents, bi)
	}

	data, err := encMode.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch frame: %w", err)
	}
	return data, nil
}

// Decode parses a frame produced by Encode.
func Decode(data []byte) (streaming.BatchFrame, error) {
	var frame streaming.BatchFrame
	if err := decMode.Unmarshal(data, &frame); err != nil {
		return frame, fmt.Errorf("failed to decode batch frame: %w", err)
	}
	return frame, nil
}
