// Package view holds the live, mutable state of a spawned model instance.
package view

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/hephaestus-engine/hephaestus/internal/model"
	"github.com/hephaestus-engine/hephaestus/internal/pose"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

var (
	// ErrUnknownAnimation is returned by Play for a name the model does not define.
	ErrUnknownAnimation = errors.New("unknown animation")
	// ErrDespawned is returned by every mutating call after Despawn.
	ErrDespawned = errors.New("view despawned")
)

// ParallelBones is the model size from which Tick propagates the subtrees of
// each top-level bone concurrently.
const ParallelBones = 256

// State is the playback state of a View.
type State uint8

const (
	// Idle renders the bind pose.
	Idle State = iota
	// Playing advances the active animation every tick.
	Playing
	// Holding keeps a finished non-looping animation frozen on its last frame.
	Holding
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Holding:
		return "holding"
	default:
		return "unknown"
	}
}

// blend tracks a cross-fade from a frozen outgoing pose into the active animation.
type blend struct {
	from     pose.Overrides
	duration float64
	elapsed  float64
}

// View is one animated instance of a shared Model. All methods lock the view,
// so one view is never advanced by two goroutines at once, while different
// views never contend.
type View struct {
	mu sync.Mutex

	id    core.ViewID
	model *model.Model

	state   State
	anim    *model.Animation
	elapsed float64
	speed   float64
	blend   *blend
	hidden  map[string]bool

	current  *pose.Snapshot
	previous *pose.Snapshot

	ticks     uint64
	despawned bool
}

// New creates an idle view of m showing the bind pose. Nothing has been sent to
// viewers yet, so the previous snapshot starts empty.
func New(id core.ViewID, m *model.Model) *View {
	return &View{
		id:       id,
		model:    m,
		speed:    1,
		hidden:   make(map[string]bool),
		current:  pose.Empty(),
		previous: pose.Empty(),
	}
}

// ID returns the view's identifier.
func (v *View) ID() core.ViewID {
	return v.id
}

// Model returns the shared model the view was spawned from.
func (v *View) Model() *model.Model {
	return v.model
}

// Status is a point-in-time copy of a view's playback state.
type Status struct {
	ID        core.ViewID
	Model     string
	State     State
	Animation string
	Elapsed   float64
	Speed     float64
	Blending  bool
	Ticks     uint64
	Despawned bool
}

// Status returns the current playback state.
func (v *View) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()

	st := Status{
		ID:        v.id,
		Model:     v.model.Name(),
		State:     v.state,
		Elapsed:   v.elapsed,
		Speed:     v.speed,
		Blending:  v.blend != nil,
		Ticks:     v.ticks,
		Despawned: v.despawned,
	}
	if v.anim != nil {
		st.Animation = v.anim.Name
	}
	return st
}

// Snapshot returns the last computed pose.
func (v *View) Snapshot() *pose.Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Play starts the named animation from t=0, whatever the current state.
// Any running cross-fade is cancelled.
func (v *View) Play(name string) error {
	return v.play(name, 0)
}

// PlayBlended starts the named animation from t=0 and cross-fades into it from
// the current pose over duration seconds.
func (v *View) PlayBlended(name string, duration float64) error {
	return v.play(name, duration)
}

func (v *View) play(name string, blendDuration float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.despawned {
		return ErrDespawned
	}
	a, ok := v.model.Animation(name)
	if !ok {
		return fmt.Errorf("%w: %q on model %q", ErrUnknownAnimation, name, v.model.Name())
	}

	v.blend = nil
	if blendDuration > 0 {
		v.blend = &blend{from: v.localPose(), duration: blendDuration}
	}

	v.anim = a
	v.elapsed = 0
	v.state = Playing
	return nil
}

// Stop returns the view to Idle and the bind pose.
func (v *View) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.despawned {
		return ErrDespawned
	}
	v.state = Idle
	v.anim = nil
	v.elapsed = 0
	v.blend = nil
	return nil
}

// SetSpeed sets the playback speed multiplier applied to every tick's delta.
func (v *View) SetSpeed(speed float64) error {
	if speed < 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return fmt.Errorf("invalid speed %v", speed)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.despawned {
		return ErrDespawned
	}
	v.speed = speed
	return nil
}

// SetVisible shows or hides a bone. Hidden bones are left out of snapshots,
// which makes viewers remove them; their children are still posed.
func (v *View) SetVisible(bone string, visible bool) error {
	if _, ok := v.model.Bone(bone); !ok {
		return fmt.Errorf("%w: %q on model %q", model.ErrUnknownBone, bone, v.model.Name())
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.despawned {
		return ErrDespawned
	}
	if visible {
		delete(v.hidden, bone)
	} else {
		v.hidden[bone] = true
	}
	return nil
}

// Tick advances playback by dt seconds, computes the new pose and calls
// publish with the previous and new snapshots while still holding the view.
// publish may be nil. After Despawn, Tick returns ErrDespawned and publish is
// never called, so nothing computed here can reach a viewer after teardown.
func (v *View) Tick(dt float64, publish func(prev, next *pose.Snapshot)) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.despawned {
		return ErrDespawned
	}

	v.advance(dt)

	world, err := v.compute()
	if err != nil {
		return err
	}
	next := world.Without(v.hidden)
	v.previous, v.current = v.current, next
	v.ticks++

	if publish != nil {
		publish(v.previous, v.current)
	}
	return nil
}

func (v *View) compute() (*pose.Snapshot, error) {
	overrides := v.localPose()
	if v.model.Len() < ParallelBones {
		return pose.Compute(v.model, overrides), nil
	}
	return pose.ComputeParallel(context.Background(), v.model, overrides, runtime.GOMAXPROCS(0))
}

// Despawn marks the view as torn down and returns its last snapshot, from which
// the caller derives the final removal. teardown is called under the view lock;
// it runs at most once and strictly after any in-flight publish.
func (v *View) Despawn(teardown func(last *pose.Snapshot)) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.despawned {
		return ErrDespawned
	}
	v.despawned = true
	if teardown != nil {
		teardown(v.current)
	}
	return nil
}

// advance moves the state machine forward by dt seconds of playback.
func (v *View) advance(dt float64) {
	if dt <= 0 || math.IsNaN(dt) {
		return
	}
	dt *= v.speed
	t := v.elapsed + dt
	// A huge speed times a huge dt overflows; treat it as past every end.
	overflow := math.IsInf(t, 0) || math.IsNaN(t)

	if v.blend != nil {
		v.blend.elapsed += dt
		if overflow || v.blend.elapsed >= v.blend.duration {
			v.blend = nil
		}
	}

	if v.state != Playing {
		return
	}

	d := v.anim.Duration
	switch {
	case d <= 0:
		v.elapsed = 0
		if !v.anim.Loop {
			v.state = Holding
		}
	case overflow && v.anim.Loop:
		// phase is undefined, keep the current one
	case t < d:
		v.elapsed = t
	case v.anim.Loop:
		v.elapsed = math.Mod(t, d)
	default:
		v.elapsed = d
		v.state = Holding
	}
}
