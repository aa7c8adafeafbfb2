package model

import (
	"fmt"
	"math"
	"slices"

	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

// BoneSpec describes a bone before the hierarchy is validated.
// An empty Parent makes the bone top-level.
type BoneSpec struct {
	Name   string
	Parent string
	Bind   core.Transform
}

// Builder collects bones and animations and validates them into a Model.
// Builders are not safe for concurrent use.
type Builder struct {
	name       string
	bones      []BoneSpec
	animations []*Animation
}

// NewBuilder starts a model with the given registry name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// AddBone appends a bone. Bones may be added in any order.
func (b *Builder) AddBone(spec BoneSpec) *Builder {
	b.bones = append(b.bones, spec)
	return b
}

// AddAnimation appends an animation. A non-positive duration is replaced by
// the time of the last keyframe.
func (b *Builder) AddAnimation(a *Animation) *Builder {
	b.animations = append(b.animations, a)
	return b
}

// Build validates the hierarchy and animations and returns the immutable Model.
// Every failure is an *IntegrityError naming the offending bone.
func (b *Builder) Build() (*Model, error) {
	if len(b.bones) == 0 {
		return nil, &IntegrityError{Model: b.name, Err: ErrEmptyModel}
	}

	specs := make(map[string]int, len(b.bones))
	for i, spec := range b.bones {
		if _, dup := specs[spec.Name]; dup {
			return nil, &IntegrityError{Model: b.name, Bone: spec.Name, Err: ErrDuplicateBone}
		}
		specs[spec.Name] = i
	}

	children := make(map[string][]int, len(b.bones))
	var roots []int
	for i, spec := range b.bones {
		if spec.Parent == "" {
			roots = append(roots, i)
			continue
		}
		if _, ok := specs[spec.Parent]; !ok {
			return nil, &IntegrityError{Model: b.name, Bone: spec.Name, Reference: spec.Parent, Err: ErrUnknownBone}
		}
		children[spec.Parent] = append(children[spec.Parent], i)
	}

	m := &Model{
		name:       b.name,
		bones:      make([]Bone, 0, len(b.bones)),
		index:      make(map[string]int, len(b.bones)),
		animations: make(map[string]*Animation, len(b.animations)),
	}

	// Every bone has at most one parent, so a bone that is not reachable from a
	// top-level bone sits on (or below) a cycle.
	var visit func(spec int, parent int) int
	visit = func(spec int, parent int) int {
		s := b.bones[spec]
		idx := len(m.bones)
		m.bones = append(m.bones, Bone{
			Name:   s.Name,
			Index:  idx,
			Parent: parent,
			Bind:   s.Bind,
		})
		m.index[s.Name] = idx
		for _, c := range children[s.Name] {
			child := visit(c, idx)
			m.bones[idx].Children = append(m.bones[idx].Children, child)
		}
		m.bones[idx].End = len(m.bones)
		return idx
	}
	for _, r := range roots {
		m.roots = append(m.roots, visit(r, -1))
	}

	if len(m.bones) != len(b.bones) {
		for _, spec := range b.bones {
			if _, ok := m.index[spec.Name]; !ok {
				return nil, &IntegrityError{Model: b.name, Bone: spec.Name, Reference: spec.Parent, Err: ErrCycle}
			}
		}
	}

	for _, a := range b.animations {
		if err := m.addAnimation(a); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Model) addAnimation(a *Animation) error {
	if _, dup := m.animations[a.Name]; dup {
		return &IntegrityError{Model: m.name, Reference: a.Name, Err: ErrDuplicateAnimation}
	}

	for bone, bt := range a.Timeline {
		if _, ok := m.index[bone]; !ok {
			return &IntegrityError{Model: m.name, Bone: bone, Reference: a.Name, Err: ErrUnknownBone}
		}
		if bt == nil {
			continue
		}
		if !bt.Position.ordered() {
			return trackError(m.name, bone, a.Name, TrackPosition)
		}
		if !bt.Rotation.ordered() {
			return trackError(m.name, bone, a.Name, TrackRotation)
		}
		if !bt.Scale.ordered() {
			return trackError(m.name, bone, a.Name, TrackScale)
		}
	}

	anim := *a
	anim.Timeline = make(Timeline, len(a.Timeline))
	for bone, bt := range a.Timeline {
		if bt != nil {
			anim.Timeline[bone] = &BoneTimeline{
				Position: slices.Clone(bt.Position),
				Rotation: slices.Clone(bt.Rotation),
				Scale:    slices.Clone(bt.Scale),
			}
		}
	}
	if anim.Duration <= 0 || math.IsNaN(anim.Duration) {
		anim.Duration = anim.lastKeyframe()
	}
	m.animations[anim.Name] = &anim
	return nil
}

func trackError(model, bone, anim string, kind TrackKind) error {
	return &IntegrityError{
		Model:     model,
		Bone:      bone,
		Reference: fmt.Sprintf("%s/%s", anim, kind),
		Err:       ErrUnorderedKeyframes,
	}
}
