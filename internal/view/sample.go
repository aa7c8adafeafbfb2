package view

import (
	"github.com/hephaestus-engine/hephaestus/internal/model"
	"github.com/hephaestus-engine/hephaestus/internal/pose"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

// Sample returns the local transforms of every bone a animates at time t.
// Keyframed values are applied on top of the bind pose: positions are added,
// rotations composed inside the bind rotation and scales multiplied.
func Sample(m *model.Model, a *model.Animation, t float64) pose.Overrides {
	out := make(pose.Overrides, len(a.Timeline))
	for name := range a.Timeline {
		bone := m.MustBone(name)
		local := bone.Bind

		if p, ok := a.Timeline.SampleVector(name, model.TrackPosition, t); ok {
			local.Position = local.Position.Add(p)
		}
		if r, ok := a.Timeline.SampleRotation(name, t); ok {
			local.Rotation = local.Rotation.Compose(r)
		}
		if s, ok := a.Timeline.SampleVector(name, model.TrackScale, t); ok {
			local.Scale = local.Scale.Mul(s)
		}
		out[name] = local
	}
	return out
}

// Mix interpolates two local poses by f in [0, 1]. Bones missing from either
// side fall back to their bind transform.
func Mix(m *model.Model, from, to pose.Overrides, f float64) pose.Overrides {
	out := make(pose.Overrides, len(from)+len(to))
	mix := func(name string) {
		if _, done := out[name]; done {
			return
		}
		bind := m.MustBone(name).Bind
		a, ok := from[name]
		if !ok {
			a = bind
		}
		b, ok := to[name]
		if !ok {
			b = bind
		}
		out[name] = core.Transform{
			Position: a.Position.Lerp(b.Position, f),
			Rotation: a.Rotation.Slerp(b.Rotation, f),
			Scale:    a.Scale.Lerp(b.Scale, f),
		}
	}
	for name := range from {
		mix(name)
	}
	for name := range to {
		mix(name)
	}
	return out
}

// localPose returns the overrides for the current state. Callers hold v.mu.
func (v *View) localPose() pose.Overrides {
	var current pose.Overrides
	if v.state != Idle && v.anim != nil {
		current = Sample(v.model, v.anim, v.elapsed)
	}
	if v.blend == nil {
		return current
	}
	f := 1.0
	if v.blend.duration > 0 {
		f = min(v.blend.elapsed/v.blend.duration, 1)
	}
	return Mix(v.model, v.blend.from, current, f)
}
