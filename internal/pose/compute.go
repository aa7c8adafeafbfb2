// Package pose propagates local bone transforms down a model's hierarchy
// into world-space snapshots.
package pose

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hephaestus-engine/hephaestus/internal/model"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

// Overrides replaces the bind-pose local transform of individual bones.
type Overrides map[string]core.Transform

// ComputeWorldTransform returns parentWorld ∘ local, where local is override
// when present and the bone's bind transform otherwise.
func ComputeWorldTransform(bone *model.Bone, parentWorld core.Transform, override *core.Transform) core.Transform {
	local := bone.Bind
	if override != nil {
		local = *override
	}
	return parentWorld.Then(local)
}

// Compute walks m root-to-leaves and returns the world pose.
// Overriding a bone m does not have panics.
func Compute(m *model.Model, overrides Overrides) *Snapshot {
	checkOverrides(m, overrides)
	world := make([]core.Transform, m.Len())
	computeRange(m, overrides, world, 0, m.Len())
	return snapshotOf(m, world)
}

// ComputeParallel produces the same snapshot as Compute, computing the
// subtrees below each top-level bone concurrently with at most workers
// goroutines (workers <= 0 means no limit). Every bone is written by exactly
// one goroutine and only after its parent, so the result does not depend on
// scheduling.
func ComputeParallel(ctx context.Context, m *model.Model, overrides Overrides, workers int) (*Snapshot, error) {
	checkOverrides(m, overrides)
	world := make([]core.Transform, m.Len())

	for _, r := range m.Roots() {
		computeBone(m, overrides, world, r)
	}

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, r := range m.Roots() {
		for _, c := range m.BoneAt(r).Children {
			start, end := c, m.BoneAt(c).End
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				computeRange(m, overrides, world, start, end)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snapshotOf(m, world), nil
}

func checkOverrides(m *model.Model, overrides Overrides) {
	for name := range overrides {
		m.MustBone(name)
	}
}

// computeRange fills world for the pre-order range [start, end). The parent of
// start must already be computed.
func computeRange(m *model.Model, overrides Overrides, world []core.Transform, start, end int) {
	for i := start; i < end; i++ {
		computeBone(m, overrides, world, i)
	}
}

func computeBone(m *model.Model, overrides Overrides, world []core.Transform, i int) {
	bone := m.BoneAt(i)
	parent := core.IdentityTransform
	if !bone.IsRoot() {
		parent = world[bone.Parent]
	}
	var override *core.Transform
	if o, ok := overrides[bone.Name]; ok {
		override = &o
	}
	world[i] = ComputeWorldTransform(bone, parent, override)
}

func snapshotOf(m *model.Model, world []core.Transform) *Snapshot {
	s := &Snapshot{
		order:      make([]string, m.Len()),
		transforms: make(map[string]core.Transform, m.Len()),
	}
	for i, b := range m.Bones() {
		s.order[i] = b.Name
		s.transforms[b.Name] = world[i]
	}
	return s
}
