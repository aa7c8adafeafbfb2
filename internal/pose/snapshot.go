package pose

import "github.com/hephaestus-engine/hephaestus/pkg/core"

// Snapshot is an immutable mapping from bone name to world transform,
// remembering the hierarchy order the bones were computed in.
type Snapshot struct {
	order      []string
	transforms map[string]core.Transform
}

var empty = &Snapshot{transforms: map[string]core.Transform{}}

// Empty returns the snapshot with no bones.
func Empty() *Snapshot {
	return empty
}

// NewSnapshot builds a snapshot from bone names listed parents-first and their
// transforms. Names missing from transforms are skipped.
func NewSnapshot(order []string, transforms map[string]core.Transform) *Snapshot {
	s := &Snapshot{
		order:      make([]string, 0, len(order)),
		transforms: make(map[string]core.Transform, len(order)),
	}
	for _, name := range order {
		t, ok := transforms[name]
		if !ok {
			continue
		}
		if _, dup := s.transforms[name]; dup {
			continue
		}
		s.order = append(s.order, name)
		s.transforms[name] = t
	}
	return s
}

// Len returns the number of bones in s. A nil snapshot is empty.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Get returns the world transform of bone.
func (s *Snapshot) Get(bone string) (core.Transform, bool) {
	if s == nil {
		return core.Transform{}, false
	}
	t, ok := s.transforms[bone]
	return t, ok
}

// Names returns the bone names with every parent before its children.
// The slice must not be modified.
func (s *Snapshot) Names() []string {
	if s == nil {
		return nil
	}
	return s.order
}

// Without returns a copy of s with the given bones left out.
func (s *Snapshot) Without(hidden map[string]bool) *Snapshot {
	if len(hidden) == 0 || s.Len() == 0 {
		return s
	}
	shown := make([]string, 0, len(s.order))
	for _, name := range s.order {
		if !hidden[name] {
			shown = append(shown, name)
		}
	}
	return NewSnapshot(shown, s.transforms)
}

// Equal reports whether s and o hold the same bones with transforms within eps.
func (s *Snapshot) Equal(o *Snapshot, eps float64) bool {
	if s.Len() != o.Len() {
		return false
	}
	for _, name := range s.Names() {
		a, _ := s.Get(name)
		b, ok := o.Get(name)
		if !ok || !a.ApproxEqual(b, eps) {
			return false
		}
	}
	return true
}
