package core

import "time"

// ViewID identifies a live model instance.
type ViewID string

// ViewerID is the opaque token of an observer receiving updates.
type ViewerID string

// IntentKind says how a viewer's rendered bone must change.
type IntentKind uint8

const (
	// IntentCreate spawns the bone's rendered entity at a transform.
	IntentCreate IntentKind = iota
	// IntentUpdate moves an existing rendered entity.
	IntentUpdate
	// IntentRemove destroys the rendered entity.
	IntentRemove
)

func (k IntentKind) String() string {
	switch k {
	case IntentCreate:
		return "create"
	case IntentUpdate:
		return "update"
	case IntentRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Intent is a single bone-level instruction for a viewer.
// Transform is the zero value for IntentRemove.
type Intent struct {
	Kind      IntentKind `json:"kind"`
	Bone      string     `json:"bone"`
	Transform Transform  `json:"transform"`
}

// Create builds an IntentCreate.
func Create(bone string, t Transform) Intent {
	return Intent{Kind: IntentCreate, Bone: bone, Transform: t}
}

// Update builds an IntentUpdate.
func Update(bone string, t Transform) Intent {
	return Intent{Kind: IntentUpdate, Bone: bone, Transform: t}
}

// Remove builds an IntentRemove.
func Remove(bone string) Intent {
	return Intent{Kind: IntentRemove, Bone: bone}
}

// Frame is the view-level diff produced for one view in one tick.
// Storage backends record frames for offline inspection.
type Frame struct {
	View    ViewID    `json:"view"`
	Model   string    `json:"model"`
	Tick    uint64    `json:"tick"`
	Time    time.Time `json:"time"`
	Intents []Intent  `json:"intents"`
}

// Session describes one engine run for storage backends.
type Session struct {
	ID              uint          `json:"id"`
	StartedAt       time.Time     `json:"startedAt"`
	ProtocolVersion string        `json:"protocolVersion"`
	TickInterval    time.Duration `json:"tickInterval"`
}
