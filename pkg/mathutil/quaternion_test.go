package mathutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-3

func TestEulerRoundTrip_Grid(t *testing.T) {
	checked := 0
	for yaw := -179.0; yaw <= 179; yaw += 7 {
		for pitch := -89.0; pitch <= 89; pitch += 4 {
			for roll := -179.0; roll <= 179; roll += 7 {
				q := FromEuler(Vec3{X: yaw, Y: pitch, Z: roll})
				if math.Abs(q.X*q.Z+q.Y*q.W) > PoleThreshold {
					continue
				}
				back := FromEuler(ToEuler(q))
				if !back.ApproxEqual(q, tolerance) {
					t.Fatalf("round trip mismatch for (%v, %v, %v): got %+v want %+v", yaw, pitch, roll, back, q)
				}
				checked++
			}
		}
	}
	require.Greater(t, checked, 1000)
}

func TestFromEuler_IsNormalized(t *testing.T) {
	for _, e := range []Vec3{{}, {X: 90}, {Y: 45, Z: -30}, {X: 170, Y: -80, Z: 12}} {
		assert.InDelta(t, 1.0, FromEuler(e).Length(), 1e-9, "euler %+v", e)
	}
}

func TestToEuler_KnownAngles(t *testing.T) {
	tests := []struct {
		name  string
		euler Vec3
	}{
		{"identity", Vec3{}},
		{"x only", Vec3{X: 30}},
		{"y only", Vec3{Y: -45}},
		{"z only", Vec3{Z: 120}},
		{"mixed", Vec3{X: 10, Y: 20, Z: 30}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToEuler(FromEuler(tt.euler))
			assert.True(t, got.ApproxEqual(tt.euler, 1e-6), "got %+v want %+v", got, tt.euler)
		})
	}
}

func TestToEuler_PolesForceZeroRoll(t *testing.T) {
	for _, pitch := range []float64{90, -90} {
		q := FromEuler(Vec3{X: 25, Y: pitch, Z: 40})
		e := ToEuler(q)

		assert.False(t, math.IsNaN(e.X) || math.IsNaN(e.Y) || math.IsNaN(e.Z))
		assert.Equal(t, 0.0, e.Z, "roll must be zero at the pole")
		assert.InDelta(t, pitch, e.Y, 1e-9)

		// the collapsed rotation still describes the same orientation
		assert.True(t, FromEuler(e).ApproxEqual(q, tolerance), "pitch %v: %+v vs %+v", pitch, FromEuler(e), q)
	}
}

func TestCompose_Identity(t *testing.T) {
	for _, e := range []Vec3{{X: 10}, {Y: 80, Z: -3}, {X: -170, Y: 33, Z: 90}} {
		q := FromEuler(e)
		assert.Equal(t, q, q.Compose(Identity))
		assert.Equal(t, q, Identity.Compose(q))
	}
}

func TestCompose_Order(t *testing.T) {
	a := FromAxisAngle(Vec3{X: 1}, math.Pi/2)
	b := FromAxisAngle(Vec3{Y: 1}, math.Pi/2)

	ab := Compose(a, b)
	ba := Compose(b, a)
	assert.False(t, ab.ApproxEqual(ba, 1e-6), "composition must not commute here")

	// child (b) applied first, then parent (a)
	v := Vec3{Z: 1}
	assert.True(t, ab.Rotate(v).ApproxEqual(a.Rotate(b.Rotate(v)), 1e-9))
}

func TestRotate(t *testing.T) {
	q := FromAxisAngle(Vec3{Z: 1}, math.Pi/2)
	got := q.Rotate(Vec3{X: 1})
	assert.True(t, got.ApproxEqual(Vec3{Y: 1}, 1e-9), "got %+v", got)
}

func TestSlerp(t *testing.T) {
	from := Identity
	to := FromAxisAngle(Vec3{X: 1}, math.Pi/2)

	assert.True(t, from.Slerp(to, 0).ApproxEqual(from, 1e-9))
	assert.True(t, from.Slerp(to, 1).ApproxEqual(to, 1e-9))

	half := from.Slerp(to, 0.5)
	assert.True(t, half.ApproxEqual(FromAxisAngle(Vec3{X: 1}, math.Pi/4), 1e-9), "got %+v", half)
}

func TestSlerp_ShortestArc(t *testing.T) {
	from := FromAxisAngle(Vec3{Y: 1}, 0.1)
	to := FromAxisAngle(Vec3{Y: 1}, 0.3).Negate()

	mid := from.Slerp(to, 0.5)
	assert.True(t, mid.ApproxEqual(FromAxisAngle(Vec3{Y: 1}, 0.2), 1e-9), "got %+v", mid)
}

func TestNormalize_Degenerate(t *testing.T) {
	assert.Equal(t, Identity, Quaternion{}.Normalize())
	assert.InDelta(t, 1.0, Quaternion{X: 3, W: 4}.Normalize().Length(), 1e-12)
}

func TestFromAxisAngle_ZeroAxis(t *testing.T) {
	assert.Equal(t, Identity, FromAxisAngle(Vec3{}, 1))
}
