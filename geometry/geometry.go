// Package geometry provides the vector and quaternion helpers used to place
// bodies and joint frames. Vectors and quaternions are mgl64 values; joint
// axes are the local +Z of an anchor frame and Up is the reference axis that
// legs and wheels are rotated away from.
package geometry

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec3 ...
type Vec3 = mgl64.Vec3

// Quat ...
type Quat = mgl64.Quat

// Epsilon is the cross product length below which two directions are
// treated as parallel.
const Epsilon = 1e-9

var (
	// Up is the reference direction bodies are oriented away from.
	Up = Vec3{0, 1, 0}
	// AxisX ...
	AxisX = Vec3{1, 0, 0}
	// AxisY ...
	AxisY = Vec3{0, 1, 0}
	// AxisZ is the joint axis of an anchor frame in local coordinates.
	AxisZ = Vec3{0, 0, 1}
)

// ErrDegenerateRotation is returned together with a usable fallback rotation
// when the rotation axis between two directions is undefined.
var ErrDegenerateRotation = errors.New("geometry: degenerate rotation")

// AxisAngle is a rotation of Angle radians about a unit Axis.
type AxisAngle struct {
	Axis  Vec3
	Angle float64
}

// Quat returns the unit quaternion of the rotation.
func (a AxisAngle) Quat() Quat {
	return mgl64.QuatRotate(a.Angle, a.Axis.Normalize())
}

// Identity returns the identity rotation.
func Identity() Quat { return mgl64.QuatIdent() }

// V3 ...
func V3(x, y, z float64) Vec3 { return Vec3{x, y, z} }

// Orthogonal returns a unit vector orthogonal to v.
func Orthogonal(v Vec3) Vec3 {
	alt := AxisX
	if n := v.Len(); n > 0 && math.Abs(v.X()/n) > 0.9 {
		alt = AxisY
	}
	return v.Cross(alt).Normalize()
}

// ShortestRotation returns the minimal rotation taking direction from onto
// direction to. The angle is derived from the chord between the two points
// on the unit sphere: angle = 2*asin(chord/2).
//
// When the directions are parallel or anti-parallel (or either is zero) the
// axis is undefined: the result then rotates about Orthogonal(from) by 0 or
// pi and the error is ErrDegenerateRotation.
func ShortestRotation(from, to Vec3) (AxisAngle, error) {
	if from.Len() < Epsilon || to.Len() < Epsilon {
		return AxisAngle{Axis: Orthogonal(orUp(from)), Angle: 0}, ErrDegenerateRotation
	}
	u, v := from.Normalize(), to.Normalize()
	chord := v.Sub(u).Len()
	angle := 2 * math.Asin(math.Min(chord/2, 1))
	axis := u.Cross(v)
	if axis.Len() < Epsilon {
		if u.Dot(v) > 0 {
			angle = 0
		} else {
			angle = math.Pi
		}
		return AxisAngle{Axis: Orthogonal(u), Angle: angle}, ErrDegenerateRotation
	}
	return AxisAngle{Axis: axis.Normalize(), Angle: angle}, nil
}

func orUp(v Vec3) Vec3 {
	if v.Len() < Epsilon {
		return Up
	}
	return v
}

// Outward returns the orientation that turns Up onto dir.
func Outward(dir Vec3) (Quat, error) {
	aa, err := ShortestRotation(Up, dir)
	return aa.Quat(), err
}

// Compose returns outer*inner: inner is applied first, then outer. The result
// is normalized.
func Compose(outer, inner Quat) Quat {
	return outer.Mul(inner).Normalize()
}

// Rotate applies q to v.
func Rotate(q Quat, v Vec3) Vec3 {
	return q.Rotate(v)
}

// Transform maps a point given in the frame (pos, rot) to world coordinates.
func Transform(pos Vec3, rot Quat, local Vec3) Vec3 {
	return pos.Add(rot.Rotate(local))
}

// InverseTransform maps a world point into the frame (pos, rot).
func InverseTransform(pos Vec3, rot Quat, world Vec3) Vec3 {
	return rot.Inverse().Rotate(world.Sub(pos))
}

// Finite reports whether every component of v is a finite number.
func Finite(v Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
