// Package mechanism describes rigid bodies and the joints between them, and
// builds them into an immutable Mechanism. It knows nothing about physics
// backends: the driver hands the specs to a backend.
package mechanism

import (
	"math"

	"github.com/nobonobo/rigsim/geometry"
)

// ShapeKind ...
type ShapeKind int

// Shape kinds.
const (
	ShapeBox ShapeKind = iota
	ShapeCylinder
	ShapeSphere
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeBox:
		return "box"
	case ShapeCylinder:
		return "cylinder"
	case ShapeSphere:
		return "sphere"
	default:
		return "unknown"
	}
}

// Shape is a collision/visual primitive. Box lengths are full edge lengths;
// cylinders run along the local Y axis.
type Shape struct {
	Kind    ShapeKind     `json:"kind"`
	Lengths geometry.Vec3 `json:"lengths,omitempty"`
	Radius  float64       `json:"radius,omitempty"`
	Height  float64       `json:"height,omitempty"`
}

// Box ...
func Box(x, y, z float64) Shape {
	return Shape{Kind: ShapeBox, Lengths: geometry.V3(x, y, z)}
}

// Cylinder ...
func Cylinder(radius, height float64) Shape {
	return Shape{Kind: ShapeCylinder, Radius: radius, Height: height}
}

// Sphere ...
func Sphere(radius float64) Shape {
	return Shape{Kind: ShapeSphere, Radius: radius}
}

// Volume returns the shape volume in cubic metres.
func (s Shape) Volume() float64 {
	switch s.Kind {
	case ShapeBox:
		return s.Lengths.X() * s.Lengths.Y() * s.Lengths.Z()
	case ShapeCylinder:
		return math.Pi * s.Radius * s.Radius * s.Height
	case ShapeSphere:
		return 4.0 / 3.0 * math.Pi * s.Radius * s.Radius * s.Radius
	}
	return 0
}

func (s Shape) valid() bool {
	switch s.Kind {
	case ShapeBox:
		return s.Lengths.X() > 0 && s.Lengths.Y() > 0 && s.Lengths.Z() > 0
	case ShapeCylinder:
		return s.Radius > 0 && s.Height > 0
	case ShapeSphere:
		return s.Radius > 0
	}
	return false
}

// Pose is a position plus orientation.
type Pose struct {
	Position    geometry.Vec3 `json:"position"`
	Orientation geometry.Quat `json:"orientation"`
}

// At returns an unrotated pose at p.
func At(p geometry.Vec3) Pose {
	return Pose{Position: p, Orientation: geometry.Identity()}
}

// Apply maps a point local to the pose into world coordinates.
func (p Pose) Apply(local geometry.Vec3) geometry.Vec3 {
	return geometry.Transform(p.Position, p.Orientation, local)
}

// Axis returns the world direction of the pose's local +Z.
func (p Pose) Axis() geometry.Vec3 {
	return geometry.Rotate(p.Orientation, geometry.AxisZ)
}

// BodySpec describes one rigid body.
type BodySpec struct {
	Name    string  `json:"name"`
	Group   string  `json:"group,omitempty"`
	Shape   Shape   `json:"shape"`
	Density float64 `json:"density"`
	// MassOverride replaces density*volume when positive.
	MassOverride float64 `json:"mass,omitempty"`
	Pose         Pose    `json:"pose"`
	Collide      bool    `json:"collide"`
	Fixed        bool    `json:"fixed"`
}

// Mass returns the body mass in kilograms.
func (b BodySpec) Mass() float64 {
	if b.MassOverride > 0 {
		return b.MassOverride
	}
	return b.Density * b.Shape.Volume()
}

// JointKind ...
type JointKind int

// Joint kinds.
const (
	Revolute JointKind = iota
	Prismatic
	Distance
	LinearActuator
)

func (k JointKind) String() string {
	switch k {
	case Revolute:
		return "revolute"
	case Prismatic:
		return "prismatic"
	case Distance:
		return "distance"
	case LinearActuator:
		return "linear-actuator"
	default:
		return "unknown"
	}
}

// ImposesDistance reports whether the joint's control output is a distance
// regardless of its actuator mode.
func (k JointKind) ImposesDistance() bool {
	return k == Distance || k == LinearActuator
}

// JointSpec describes a constraint between BodyA and BodyB.
//
// Anchor is the joint frame; revolute and prismatic joints act along its
// local +Z. Distance joints hold Anchor.Position (on BodyA) at the imposed
// distance from Target (on BodyB). With Relative set, Anchor and Target are
// given in BodyA's frame and resolved to world coordinates at build time.
type JointSpec struct {
	Name     string        `json:"name"`
	Group    string        `json:"group,omitempty"`
	Kind     JointKind     `json:"kind"`
	BodyA    string        `json:"body_a"`
	BodyB    string        `json:"body_b"`
	Anchor   Pose          `json:"anchor"`
	Target   geometry.Vec3 `json:"target,omitempty"`
	Relative bool          `json:"relative,omitempty"`
	Drive    Binding       `json:"drive"`
}
