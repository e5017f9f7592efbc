// Package geom provides the vector and rotation helpers shared by the
// locomotion packages.
//
// Coordinate convention: X=right, Y=up, Z=forward (matches the recorded
// tracking data). Rotations are unit quaternions with Real=w, Imag=x,
// Jmag=y, Kmag=z.
package geom

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Epsilon is the length below which vectors are treated as zero.
const Epsilon = 1e-8

var (
	Up      = r3.Vec{X: 0, Y: 1, Z: 0}
	Forward = r3.Vec{X: 0, Y: 0, Z: 1}
	Right   = r3.Vec{X: 1, Y: 0, Z: 0}
)

// Identity is the identity rotation.
var Identity = quat.Number{Real: 1}

// Normalize returns the unit vector of v, or the zero vector when v is
// shorter than Epsilon.
func Normalize(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n < Epsilon {
		return r3.Vec{}
	}
	return r3.Scale(1/n, v)
}

// Flatten zeroes the vertical component of v.
func Flatten(v r3.Vec) r3.Vec {
	v.Y = 0
	return v
}

// HorizontalDistance is the distance between a and b ignoring Y.
func HorizontalDistance(a, b r3.Vec) float64 {
	return r3.Norm(Flatten(r3.Sub(a, b)))
}

// Centroid returns the arithmetic mean of pts. It panics on an empty slice.
func Centroid(pts []r3.Vec) r3.Vec {
	var sum r3.Vec
	for _, p := range pts {
		sum = r3.Add(sum, p)
	}
	return r3.Scale(1/float64(len(pts)), sum)
}

// Rotate applies the unit rotation q to v.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	return r3.Rotation(q).Rotate(v)
}

// NormalizeQuat returns q scaled to unit length. A zero quaternion maps to
// Identity.
func NormalizeQuat(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n < Epsilon {
		return Identity
	}
	return quat.Scale(1/n, q)
}

// Inverse returns the inverse of the unit rotation q.
func Inverse(q quat.Number) quat.Number {
	return quat.Conj(q)
}

// Abs flips q onto the w >= 0 hemisphere so it describes the shortest arc.
func Abs(q quat.Number) quat.Number {
	if q.Real < 0 {
		return quat.Scale(-1, q)
	}
	return q
}

// Dot is the 4D dot product of two quaternions.
func Dot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

// vecPart returns the vector part of q.
func vecPart(q quat.Number) r3.Vec {
	return r3.Vec{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
}

// FromAngleAxis builds the rotation of angle radians about axis. The axis
// is normalised; a zero axis yields Identity.
func FromAngleAxis(angle float64, axis r3.Vec) quat.Number {
	axis = Normalize(axis)
	if axis == (r3.Vec{}) {
		return Identity
	}
	s, c := math.Sincos(angle / 2)
	return quat.Number{Real: c, Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}
}

// ToAngleAxis decomposes the unit rotation q into an angle in [0, 2π] and a
// unit axis. The identity rotation reports angle 0 about Right.
func ToAngleAxis(q quat.Number) (angle float64, axis r3.Vec) {
	q = NormalizeQuat(q)
	w := math.Max(-1, math.Min(1, q.Real))
	angle = 2 * math.Acos(w)
	s := math.Sqrt(1 - w*w)
	if s < Epsilon {
		return 0, Right
	}
	return angle, r3.Scale(1/s, vecPart(q))
}

// Log returns the vector part of the logarithm of the unit rotation q.
func Log(q quat.Number) r3.Vec {
	v := vecPart(q)
	n := r3.Norm(v)
	if n < Epsilon {
		return v
	}
	return r3.Scale(math.Atan2(n, q.Real)/n, v)
}

// Exp returns the unit rotation exp(v) of the pure quaternion v.
func Exp(v r3.Vec) quat.Number {
	if r3.Norm(v) < Epsilon {
		return NormalizeQuat(quat.Number{Real: 1, Imag: v.X, Jmag: v.Y, Kmag: v.Z})
	}
	return quat.Exp(quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z})
}

// ToScaledAngleAxis converts q into axis*angle.
func ToScaledAngleAxis(q quat.Number) r3.Vec {
	return r3.Scale(2, Log(q))
}

// FromScaledAngleAxis converts axis*angle back into a rotation.
func FromScaledAngleAxis(v r3.Vec) quat.Number {
	return Exp(r3.Scale(0.5, v))
}

// FromToRotation returns the shortest rotation taking direction from onto
// direction to. When the directions are opposite the rotation is π about up.
func FromToRotation(from, to, up r3.Vec) quat.Number {
	from = Normalize(from)
	to = Normalize(to)
	d := r3.Dot(from, to)
	if d < -1+1e-6 {
		return FromAngleAxis(math.Pi, up)
	}
	c := r3.Cross(from, to)
	return NormalizeQuat(quat.Number{Real: 1 + d, Imag: c.X, Jmag: c.Y, Kmag: c.Z})
}

// LookRotation returns the rotation whose forward is fwd and whose up is as
// close to up as possible. A degenerate forward yields Identity.
func LookRotation(fwd, up r3.Vec) quat.Number {
	z := Normalize(fwd)
	x := Normalize(r3.Cross(up, z))
	if z == (r3.Vec{}) || x == (r3.Vec{}) {
		return Identity
	}
	y := r3.Cross(z, x)
	return FromBasis(x, y, z)
}

// FromBasis converts an orthonormal basis (the columns of a rotation
// matrix) into a quaternion.
func FromBasis(x, y, z r3.Vec) quat.Number {
	m00, m01, m02 := x.X, y.X, z.X
	m10, m11, m12 := x.Y, y.Y, z.Y
	m20, m21, m22 := x.Z, y.Z, z.Z

	var q quat.Number
	switch tr := m00 + m11 + m22; {
	case tr > 0:
		s := 2 * math.Sqrt(tr+1)
		q = quat.Number{Real: s / 4, Imag: (m21 - m12) / s, Jmag: (m02 - m20) / s, Kmag: (m10 - m01) / s}
	case m00 > m11 && m00 > m22:
		s := 2 * math.Sqrt(1+m00-m11-m22)
		q = quat.Number{Real: (m21 - m12) / s, Imag: s / 4, Jmag: (m01 + m10) / s, Kmag: (m02 + m20) / s}
	case m11 > m22:
		s := 2 * math.Sqrt(1+m11-m00-m22)
		q = quat.Number{Real: (m02 - m20) / s, Imag: (m01 + m10) / s, Jmag: s / 4, Kmag: (m12 + m21) / s}
	default:
		s := 2 * math.Sqrt(1+m22-m00-m11)
		q = quat.Number{Real: (m10 - m01) / s, Imag: (m02 + m20) / s, Jmag: (m12 + m21) / s, Kmag: s / 4}
	}
	return NormalizeQuat(q)
}

// ForwardOf returns the rotated Forward axis.
func ForwardOf(q quat.Number) r3.Vec {
	return Rotate(q, Forward)
}

// Yaw returns the heading angle of v about Up in radians, measured from
// Forward towards Right.
func Yaw(v r3.Vec) float64 {
	return math.Atan2(v.X, v.Z)
}

// AngleBetween returns the unsigned angle between a and b in radians. Zero
// vectors report 0.
func AngleBetween(a, b r3.Vec) float64 {
	a = Normalize(a)
	b = Normalize(b)
	if a == (r3.Vec{}) || b == (r3.Vec{}) {
		return 0
	}
	return math.Acos(math.Max(-1, math.Min(1, r3.Dot(a, b))))
}

// Degrees converts radians to degrees for logging/display.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}
