package core

import "github.com/hephaestus-engine/hephaestus/pkg/mathutil"

// Transform is a rigid transform with non-uniform scale.
type Transform struct {
	Position mathutil.Vec3       `json:"position"`
	Rotation mathutil.Quaternion `json:"rotation"`
	Scale    mathutil.Vec3       `json:"scale"`
}

// IdentityTransform leaves every point where it is.
var IdentityTransform = Transform{
	Rotation: mathutil.Identity,
	Scale:    mathutil.One,
}

// Then returns the world transform of a child whose local transform is local
// and whose parent has world transform t.
//
// The child's offset is scaled and rotated into the parent's frame, and the
// child's rotation is applied inside the parent's rotation (parent * child).
func (t Transform) Then(local Transform) Transform {
	return Transform{
		Position: t.Position.Add(t.Rotation.Rotate(t.Scale.Mul(local.Position))),
		Rotation: t.Rotation.Compose(local.Rotation),
		Scale:    t.Scale.Mul(local.Scale),
	}
}

// ApproxEqual reports whether t and o differ by at most eps in every position,
// rotation and scale component.
func (t Transform) ApproxEqual(o Transform, eps float64) bool {
	return t.Position.ApproxEqual(o.Position, eps) &&
		t.Rotation.ApproxEqual(o.Rotation, eps) &&
		t.Scale.ApproxEqual(o.Scale, eps)
}
