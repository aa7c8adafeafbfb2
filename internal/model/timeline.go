package model

import (
	"sort"

	"github.com/hephaestus-engine/hephaestus/pkg/mathutil"
)

// TrackKind selects one of the three keyframe tracks of a bone.
type TrackKind uint8

const (
	TrackPosition TrackKind = iota
	TrackRotation
	TrackScale
)

func (k TrackKind) String() string {
	switch k {
	case TrackPosition:
		return "position"
	case TrackRotation:
		return "rotation"
	case TrackScale:
		return "scale"
	default:
		return "unknown"
	}
}

// Keyframe is an authored value at a time offset in seconds.
type Keyframe[T any] struct {
	Time  float64
	Value T
}

// Track is a sequence of keyframes ordered by strictly increasing time.
type Track[T any] []Keyframe[T]

// sample clamps outside the keyframe range and interpolates with lerp inside it.
func (tr Track[T]) sample(t float64, lerp func(a, b T, f float64) T) (T, bool) {
	var zero T
	n := len(tr)
	if n == 0 {
		return zero, false
	}
	if t <= tr[0].Time {
		return tr[0].Value, true
	}
	// also catches NaN
	if !(t < tr[n-1].Time) {
		return tr[n-1].Value, true
	}

	// first keyframe strictly after t; t0 <= t < t1
	i := sort.Search(n, func(i int) bool { return tr[i].Time > t })
	k0, k1 := tr[i-1], tr[i]
	f := (t - k0.Time) / (k1.Time - k0.Time)
	return lerp(k0.Value, k1.Value, f), true
}

func (tr Track[T]) ordered() bool {
	for i := 1; i < len(tr); i++ {
		if !(tr[i].Time > tr[i-1].Time) {
			return false
		}
	}
	return true
}

func (tr Track[T]) last() float64 {
	if len(tr) == 0 {
		return 0
	}
	return tr[len(tr)-1].Time
}

// BoneTimeline holds the three independent tracks animating one bone.
// Position keyframes are offsets added to the bind position, rotation
// keyframes are composed inside the bind rotation and scale keyframes
// multiply the bind scale.
type BoneTimeline struct {
	Position Track[mathutil.Vec3]
	Rotation Track[mathutil.Quaternion]
	Scale    Track[mathutil.Vec3]
}

func lerpVec(a, b mathutil.Vec3, f float64) mathutil.Vec3 {
	return a.Lerp(b, f)
}

func slerp(a, b mathutil.Quaternion, f float64) mathutil.Quaternion {
	return a.Slerp(b, f)
}

// Timeline maps bone names to their keyframe tracks.
type Timeline map[string]*BoneTimeline

// SampleVector samples a position or scale track of bone at t.
// The boolean is false when the bone has no keyframes on that track.
func (tl Timeline) SampleVector(bone string, kind TrackKind, t float64) (mathutil.Vec3, bool) {
	bt, ok := tl[bone]
	if !ok {
		return mathutil.Vec3{}, false
	}
	switch kind {
	case TrackPosition:
		return bt.Position.sample(t, lerpVec)
	case TrackScale:
		return bt.Scale.sample(t, lerpVec)
	default:
		return mathutil.Vec3{}, false
	}
}

// SampleRotation samples the rotation track of bone at t using shortest-arc
// spherical interpolation.
func (tl Timeline) SampleRotation(bone string, t float64) (mathutil.Quaternion, bool) {
	bt, ok := tl[bone]
	if !ok {
		return mathutil.Identity, false
	}
	return bt.Rotation.sample(t, slerp)
}

// Animation is a named, immutable timeline with a playback policy.
type Animation struct {
	Name     string
	Duration float64
	Loop     bool
	Timeline Timeline
}

// Bones returns the names of the bones animated by a.
func (a *Animation) Bones() []string {
	names := make([]string, 0, len(a.Timeline))
	for name := range a.Timeline {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a *Animation) lastKeyframe() float64 {
	var last float64
	for _, bt := range a.Timeline {
		last = max(last, bt.Position.last(), bt.Rotation.last(), bt.Scale.last())
	}
	return last
}
