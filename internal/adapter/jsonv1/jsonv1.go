// Package jsonv1 encodes bone intents for protocol v1 viewers: one JSON
// envelope per intent, rotations as Euler angles in degrees.
package jsonv1

import (
	"encoding/json"
	"fmt"

	"github.com/hephaestus-engine/hephaestus/pkg/core"
	"github.com/hephaestus-engine/hephaestus/pkg/mathutil"
	"github.com/hephaestus-engine/hephaestus/pkg/streaming"
)

// Version is the protocol identifier served by this adapter.
const Version = "v1"

// Adapter turns intents into v1 envelopes.
type Adapter struct {
	sender streaming.Sender
}

// New returns an adapter writing through s.
func New(s streaming.Sender) *Adapter {
	return &Adapter{sender: s}
}

// Version returns "v1".
func (a *Adapter) Version() string {
	return Version
}

// Apply encodes intents in order and hands them to the sender as one batch.
func (a *Adapter) Apply(viewer core.ViewerID, view core.ViewID, intents []core.Intent) error {
	if len(intents) == 0 {
		return nil
	}
	msgs := make([]streaming.Message, 0, len(intents))
	for _, in := range intents {
		data, err := Encode(view, in)
		if err != nil {
			return err
		}
		msgs = append(msgs, streaming.Message{Data: data})
	}
	return a.sender.Send(viewer, msgs...)
}

// Encode returns the JSON envelope for a single intent.
func Encode(view core.ViewID, in core.Intent) ([]byte, error) {
	var typ string
	payload := streaming.BonePayload{View: view, Bone: in.Bone}

	switch in.Kind {
	case core.IntentCreate, core.IntentUpdate:
		typ = streaming.TypeBoneCreate
		if in.Kind == core.IntentUpdate {
			typ = streaming.TypeBoneUpdate
		}
		pos := in.Transform.Position.Array()
		rot := mathutil.ToEuler(in.Transform.Rotation).Array()
		scale := in.Transform.Scale.Array()
		payload.Position, payload.Rotation, payload.Scale = &pos, &rot, &scale
	case core.IntentRemove:
		typ = streaming.TypeBoneRemove
	default:
		return nil, fmt.Errorf("unknown intent kind %d", in.Kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return json.Marshal(streaming.Envelope{Type: typ, Payload: raw})
}
