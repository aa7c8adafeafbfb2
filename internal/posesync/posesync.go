// Package posesync turns consecutive pose snapshots into the minimal list of
// bone intents a viewer needs to stay in sync.
package posesync

import (
	"github.com/hephaestus-engine/hephaestus/internal/pose"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

// DefaultEpsilon is the per-component tolerance below which a bone is
// considered unchanged.
const DefaultEpsilon = 1e-4

// Synchronizer diffs snapshots. It holds no per-view state and is safe for
// concurrent use.
type Synchronizer struct {
	epsilon float64
}

// New returns a Synchronizer using epsilon; a negative epsilon means DefaultEpsilon.
func New(epsilon float64) *Synchronizer {
	if epsilon < 0 {
		epsilon = DefaultEpsilon
	}
	return &Synchronizer{epsilon: epsilon}
}

// Diff returns the intents that move a viewer from prev to next.
// Creates and updates follow next's hierarchy order, so a parent is always
// created before its children. Removals come last, children first.
// Equal snapshots produce no intents.
func (s *Synchronizer) Diff(prev, next *pose.Snapshot) []core.Intent {
	if prev == next || prev.Equal(next, s.epsilon) {
		return nil
	}
	var out []core.Intent
	for _, name := range next.Names() {
		t, _ := next.Get(name)
		old, ok := prev.Get(name)
		switch {
		case !ok:
			out = append(out, core.Create(name, t))
		case !old.ApproxEqual(t, s.epsilon):
			out = append(out, core.Update(name, t))
		}
	}

	names := prev.Names()
	for i := len(names) - 1; i >= 0; i-- {
		if _, ok := next.Get(names[i]); !ok {
			out = append(out, core.Remove(names[i]))
		}
	}
	return out
}

// FullState returns one Create per bone of snap, parents first. It is what a
// viewer receives instead of a diff on its first delivery.
func (s *Synchronizer) FullState(snap *pose.Snapshot) []core.Intent {
	names := snap.Names()
	out := make([]core.Intent, 0, len(names))
	for _, name := range names {
		t, _ := snap.Get(name)
		out = append(out, core.Create(name, t))
	}
	return out
}

// Teardown returns one Remove per bone of snap, children first.
func (s *Synchronizer) Teardown(snap *pose.Snapshot) []core.Intent {
	names := snap.Names()
	out := make([]core.Intent, 0, len(names))
	for i := len(names) - 1; i >= 0; i-- {
		out = append(out, core.Remove(names[i]))
	}
	return out
}
