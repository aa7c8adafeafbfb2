package gormstorage

import (
	"time"

	"gorm.io/datatypes"
)

// Session is one engine run.
type Session struct {
	ID              uint `gorm:"primarykey"`
	CreatedAt       time.Time
	StartedAt       time.Time
	ProtocolVersion string `gorm:"size:16"`
	TickIntervalMs  int64
}

// TableName fixes the table name regardless of naming strategy.
func (Session) TableName() string { return "sessions" }

// Frame is one view's diff for one tick. Intents holds the JSON-encoded
// []core.Intent.
type Frame struct {
	ID          uint   `gorm:"primarykey"`
	SessionID   uint   `gorm:"index:idx_frame_view_tick,priority:1"`
	ViewID      string `gorm:"size:32;index:idx_frame_view_tick,priority:2"`
	Model       string `gorm:"size:128"`
	Tick        uint64 `gorm:"index:idx_frame_view_tick,priority:3"`
	RecordedAt  time.Time
	IntentCount int
	Intents     datatypes.JSON
}

// TableName fixes the table name regardless of naming strategy.
func (Frame) TableName() string { return "frames" }

// Models lists every table the backend migrates.
var Models = []any{&Session{}, &Frame{}}
