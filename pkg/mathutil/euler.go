package mathutil

import "math"

// PoleThreshold bounds x*z + y*w before ToEuler treats the rotation as
// gimbal locked. Authored assets depend on this exact value.
const PoleThreshold = 0.499

// FromEuler builds a quaternion from Euler angles in degrees.
//
// The rotation is R = Rx(e.X) * Ry(e.Y) * Rz(e.Z): the Z rotation is applied
// to a vector first, then Y, then X. e.Y is the pitch that can reach the poles.
func FromEuler(e Vec3) Quaternion {
	r := e.ToRadians()

	sinX, cosX := math.Sincos(r.X * 0.5)
	sinY, cosY := math.Sincos(r.Y * 0.5)
	sinZ, cosZ := math.Sincos(r.Z * 0.5)

	sinXCosY := sinX * cosY
	cosXSinY := cosX * sinY
	cosXCosY := cosX * cosY
	sinXSinY := sinX * sinY

	return Quaternion{
		X: sinXCosY*cosZ + cosXSinY*sinZ,
		Y: cosXSinY*cosZ - sinXCosY*sinZ,
		Z: sinXSinY*cosZ + cosXCosY*sinZ,
		W: cosXCosY*cosZ - sinXSinY*sinZ,
	}
}

// ToEuler returns the Euler angles in degrees of q, in the convention used by
// FromEuler.
//
// When |x*z + y*w| exceeds PoleThreshold the middle rotation is at ±90° and
// the outer two axes coincide; the whole outer rotation is reported on X and
// Z (roll) is forced to zero.
func ToEuler(q Quaternion) Vec3 {
	test := q.X*q.Z + q.Y*q.W

	// north pole
	if test > PoleThreshold {
		return Vec3{
			X: 2 * math.Atan2(q.X, q.W),
			Y: math.Pi / 2,
		}.ToDegrees()
	}

	// south pole
	if test < -PoleThreshold {
		return Vec3{
			X: 2 * math.Atan2(q.X, q.W),
			Y: -math.Pi / 2,
		}.ToDegrees()
	}

	sqx := q.X * q.X
	sqy := q.Y * q.Y
	sqz := q.Z * q.Z

	x2 := q.X + q.X
	y2 := q.Y + q.Y
	z2 := q.Z + q.Z

	return Vec3{
		X: math.Atan2(q.W*x2-q.Y*z2, 1-2*(sqx+sqy)),
		Y: math.Asin(clamp(2*test, -1, 1)),
		Z: math.Atan2(q.W*z2-q.X*y2, 1-2*(sqz+sqy)),
	}.ToDegrees()
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
