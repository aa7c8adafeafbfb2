package mathutil

import "math"

// Quaternion is an immutable rotation (x, y, z, w) where w is the scalar part.
// All methods return new values and are safe for concurrent use.
type Quaternion struct {
	X, Y, Z, W float64
}

// Identity is the quaternion for "no rotation".
var Identity = Quaternion{W: 1}

// FromAxisAngle creates a quaternion rotating angle radians about axis.
// The axis is normalized before use.
func FromAxisAngle(axis Vec3, angle float64) Quaternion {
	l := axis.Length()
	if l == 0 {
		return Identity
	}
	axis = axis.Scale(1 / l)
	s, c := math.Sincos(angle / 2)
	return Quaternion{X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s, W: c}
}

// Compose returns the Hamilton product q * o.
//
// The product is not commutative. When q is a parent rotation and o a child
// rotation, the result applies o inside q's local frame.
func (q Quaternion) Compose(o Quaternion) Quaternion {
	return Quaternion{
		X: q.X*o.W + q.W*o.X + q.Y*o.Z - q.Z*o.Y,
		Y: q.Y*o.W + q.W*o.Y + q.Z*o.X - q.X*o.Z,
		Z: q.Z*o.W + q.W*o.Z + q.X*o.Y - q.Y*o.X,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

// Compose is the function form of q1.Compose(q2).
func Compose(q1, q2 Quaternion) Quaternion {
	return q1.Compose(q2)
}

// Dot returns the 4D dot product of q and o.
func (q Quaternion) Dot(o Quaternion) float64 {
	return q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W
}

// Length returns the magnitude of q.
func (q Quaternion) Length() float64 {
	return math.Sqrt(q.Dot(q))
}

// Normalize returns q scaled to unit length. Degenerate input yields Identity.
func (q Quaternion) Normalize() Quaternion {
	l := q.Length()
	if l < 1e-12 {
		return Identity
	}
	inv := 1 / l
	return Quaternion{X: q.X * inv, Y: q.Y * inv, Z: q.Z * inv, W: q.W * inv}
}

// Negate returns -q, which encodes the same rotation as q.
func (q Quaternion) Negate() Quaternion {
	return Quaternion{X: -q.X, Y: -q.Y, Z: -q.Z, W: -q.W}
}

// Rotate applies the rotation q to v.
func (q Quaternion) Rotate(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

// Slerp interpolates from q to o by t along the shortest arc.
func (q Quaternion) Slerp(o Quaternion, t float64) Quaternion {
	dot := q.Dot(o)

	// q and -q are the same rotation; flip to stay on the short path
	if dot < 0 {
		o = o.Negate()
		dot = -dot
	}

	if dot > 0.9995 {
		return Quaternion{
			X: q.X + t*(o.X-q.X),
			Y: q.Y + t*(o.Y-q.Y),
			Z: q.Z + t*(o.Z-q.Z),
			W: q.W + t*(o.W-q.W),
		}.Normalize()
	}

	theta0 := math.Acos(dot)
	theta := theta0 * t
	sinTheta := math.Sin(theta)
	sinTheta0 := math.Sin(theta0)

	s0 := math.Cos(theta) - dot*sinTheta/sinTheta0
	s1 := sinTheta / sinTheta0

	return Quaternion{
		X: q.X*s0 + o.X*s1,
		Y: q.Y*s0 + o.Y*s1,
		Z: q.Z*s0 + o.Z*s1,
		W: q.W*s0 + o.W*s1,
	}
}

// ApproxEqual reports whether q and o describe the same rotation within eps
// per component. q and -q are treated as equal.
func (q Quaternion) ApproxEqual(o Quaternion, eps float64) bool {
	return q.componentsWithin(o, eps) || q.componentsWithin(o.Negate(), eps)
}

func (q Quaternion) componentsWithin(o Quaternion, eps float64) bool {
	return math.Abs(q.X-o.X) <= eps &&
		math.Abs(q.Y-o.Y) <= eps &&
		math.Abs(q.Z-o.Z) <= eps &&
		math.Abs(q.W-o.W) <= eps
}

// Array returns the components in x, y, z, w order.
func (q Quaternion) Array() [4]float64 {
	return [4]float64{q.X, q.Y, q.Z, q.W}
}
