package model

import (
	"fmt"
	"sort"

	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

// Bone is a node of the skeleton arena. Bones are stored in pre-order, so a
// bone's subtree occupies the index range [Index, End).
type Bone struct {
	Name     string
	Index    int
	Parent   int // -1 for top-level bones
	Children []int
	End      int

	// Bind is the bone's local transform relative to its parent.
	Bind core.Transform
}

// IsRoot reports whether b has no parent.
func (b *Bone) IsRoot() bool {
	return b.Parent < 0
}

// Model is an immutable skeleton plus its animation catalog. A single Model
// is shared read-only by every view spawned from it.
type Model struct {
	name       string
	bones      []Bone
	index      map[string]int
	roots      []int
	animations map[string]*Animation
}

// Name returns the model's registry name.
func (m *Model) Name() string {
	return m.name
}

// Len returns the number of bones.
func (m *Model) Len() int {
	return len(m.bones)
}

// Bones returns the bones in pre-order. The slice must not be modified.
func (m *Model) Bones() []Bone {
	return m.bones
}

// Roots returns the indices of the top-level bones, in pre-order.
func (m *Model) Roots() []int {
	return m.roots
}

// BoneAt returns the bone stored at index i.
func (m *Model) BoneAt(i int) *Bone {
	return &m.bones[i]
}

// Bone looks a bone up by name.
func (m *Model) Bone(name string) (*Bone, bool) {
	i, ok := m.index[name]
	if !ok {
		return nil, false
	}
	return &m.bones[i], true
}

// MustBone looks a bone up by name and panics when it does not exist.
// Asking a validated model for a bone it does not have is a programming error.
func (m *Model) MustBone(name string) *Bone {
	b, ok := m.Bone(name)
	if !ok {
		panic(fmt.Sprintf("model %q has no bone %q", m.name, name))
	}
	return b
}

// Animation returns the named animation.
func (m *Model) Animation(name string) (*Animation, bool) {
	a, ok := m.animations[name]
	return a, ok
}

// Animations returns the animation names, sorted.
func (m *Model) Animations() []string {
	names := make([]string, 0, len(m.animations))
	for name := range m.animations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
