package streaming

import (
	"encoding/json"

	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

// Message type constants for the viewer protocol.
const (
	TypeWelcome     = "welcome"
	TypeBoneCreate  = "bone_create"
	TypeBoneUpdate  = "bone_update"
	TypeBoneRemove  = "bone_remove"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeAck         = "ack"
	TypeError       = "error"
)

// Message is one encoded WebSocket frame handed to a transport.
type Message struct {
	Binary bool
	Data   []byte
}

// Sender delivers encoded frames to a connected viewer. Adapters write
// through it and the WebSocket hub implements it.
type Sender interface {
	Send(viewer core.ViewerID, msgs ...Message) error
}

// Envelope wraps every JSON message exchanged over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement of a control message.
type AckMessage struct {
	Type  string      `json:"type"` // always "ack"
	For   string      `json:"for"`  // the message type being acknowledged
	View  core.ViewID `json:"view,omitempty"`
	Error string      `json:"error,omitempty"`
}

// ControlMessage is sent by viewers to subscribe to or leave a view.
type ControlMessage struct {
	Type string      `json:"type"`
	View core.ViewID `json:"view"`
}

// WelcomePayload is sent once after the upgrade and tells the viewer its
// identity and the wire version used for bone messages.
type WelcomePayload struct {
	Viewer   core.ViewerID `json:"viewer"`
	Protocol string        `json:"protocol"`
}

// BonePayload carries one bone intent in protocol v1. Rotation is in Euler
// degrees; Position, Rotation and Scale are omitted for bone_remove.
type BonePayload struct {
	View     core.ViewID `json:"view"`
	Bone     string      `json:"bone"`
	Position *[3]float64 `json:"position,omitempty"`
	Rotation *[3]float64 `json:"rotation,omitempty"`
	Scale    *[3]float64 `json:"scale,omitempty"`
}

// Intent kinds on the v2 wire.
const (
	BatchCreate uint8 = 1
	BatchUpdate uint8 = 2
	BatchRemove uint8 = 3
)

// BatchFrame is one binary protocol v2 message: every intent of one view
// for one viewer in a tick, in application order.
type BatchFrame struct {
	View    core.ViewID   `cbor:"v"`
	Intents []BatchIntent `cbor:"i"`
}

// BatchIntent is a single bone intent in a BatchFrame. Rotation is a unit
// quaternion (x, y, z, w). Transform fields are omitted for removals.
type BatchIntent struct {
	Kind     uint8       `cbor:"k"`
	Bone     string      `cbor:"b"`
	Position *[3]float32 `cbor:"p,omitempty"`
	Rotation *[4]float32 `cbor:"r,omitempty"`
	Scale    *[3]float32 `cbor:"s,omitempty"`
}
