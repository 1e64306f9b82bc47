package mechanism

import (
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/nobonobo/rigsim/geometry"
)

// Body and joint groups of a smarticle.
const (
	GroupShell         = "shell"
	GroupLeg           = "leg"
	GroupTerrain       = "terrain"
	GroupLegPrismatic  = "leg-prismatic"
	GroupLegActuator   = "leg-actuator"
	GroupLegDistance   = "leg-distance"
	smarticleShellName = "shell"
)

// Leg distance targets, in metres.
const (
	LegRetracted = 0.125
	LegHalfway   = 0.1875
	LegExtended  = 0.25
)

// SmarticleParams ...
type SmarticleParams struct {
	SphereRadius  float64       `json:"sphere_radius"`  // default 0.185m
	SphereDensity float64       `json:"sphere_density"` // default 25
	LegRadius     float64       `json:"leg_radius"`     // default 0.005m
	LegLength     float64       `json:"leg_length"`     // default 0.15m
	LegDensity    float64       `json:"leg_density"`    // default 5000
	LegPlacement  float64       `json:"leg_placement"`  // vertex scale, default 0.02
	Actuated      bool          `json:"actuated"`       // linear actuators instead of distance constraints
	ActuatorRest  float64       `json:"actuator_rest"`  // default -0.05m
	Center        geometry.Vec3 `json:"center"`
	Floor         bool          `json:"floor"`
	Obstacles     bool          `json:"obstacles"`
}

// DefaultSmarticleParams returns the dimensions of the demo robot.
func DefaultSmarticleParams() SmarticleParams {
	return SmarticleParams{
		SphereRadius:  0.185,
		SphereDensity: 25,
		LegRadius:     0.005,
		LegLength:     0.15,
		LegDensity:    5000,
		LegPlacement:  0.02,
		Actuated:      true,
		ActuatorRest:  -0.05,
		Floor:         true,
		Obstacles:     true,
	}
}

// Leg holds the handles created for one vertex.
type Leg struct {
	Body      BodyID
	Prismatic JointID
	Drive     JointID // linear actuator or distance joint
}

// Smarticle is a spherical shell with one telescoping leg per vertex.
type Smarticle struct {
	*Mechanism
	Shell    BodyID
	Legs     []Leg
	Actuated bool
}

// Icosidodecahedral returns the 60 vertices of the leg arrangement, in the
// order legs are created.
func Icosidodecahedral() []geometry.Vec3 {
	phi := (1 + math.Sqrt(5)) / 2
	a, b, c := 3*phi, 1+2*phi, 2+phi
	d := 2 * phi
	var vs []geometry.Vec3
	// Three families, each taken through the cyclic axis permutations and
	// then every sign of its non-zero components.
	families := [][3]float64{
		{a, 0, 1},
		{b, phi, 2},
		{c, d, 1},
	}
	for perm := 0; perm < 3; perm++ {
		for _, f := range families {
			base := cycle(f, perm)
			for _, s := range signs(base) {
				vs = append(vs, geometry.V3(s[0]*base[0], s[1]*base[1], s[2]*base[2]))
			}
		}
	}
	return vs
}

// signs enumerates sign patterns over the non-zero components of f, in the
// order x major, z minor, positive before negative.
func signs(f [3]float64) [][3]float64 {
	opts := func(x float64) []float64 {
		if x == 0 {
			return []float64{1}
		}
		return []float64{1, -1}
	}
	var out [][3]float64
	for _, sx := range opts(f[0]) {
		for _, sy := range opts(f[1]) {
			for _, sz := range opts(f[2]) {
				out = append(out, [3]float64{sx, sy, sz})
			}
		}
	}
	return out
}

func cycle(v [3]float64, perm int) [3]float64 {
	switch perm {
	case 1:
		return [3]float64{v[2], v[0], v[1]}
	case 2:
		return [3]float64{v[1], v[2], v[0]}
	}
	return v
}

// BuildSmarticle places one leg per vertex, in vertex order. Each leg is a
// cylinder at vertex*LegPlacement oriented away from Up, held to the shell by
// a prismatic joint and driven either by a linear actuator or a distance
// constraint. The prismatic axis points out along the leg; the actuator axis
// points back toward the shell, so actuator offsets are measured inward.
func BuildSmarticle(p SmarticleParams, vertices []geometry.Vec3) (*Smarticle, error) {
	b := NewBuilder("smarticle")
	if p.Floor {
		addTerrain(b, "floor", Box(20, 2, 20), At(geometry.V3(0, -1.5, 0)))
	}
	if p.Obstacles {
		addTerrain(b, "wall", Box(0.2, 2, 5), At(geometry.V3(3, 0, 0)))
		addTerrain(b, "ramp", Box(5, 0.2, 5), Pose{
			Position:    geometry.V3(4, -0.5, 0),
			Orientation: mgl64.QuatRotate(math.Pi/12, geometry.AxisZ),
		})
		addTerrain(b, "railL", Box(3, 0.5, 0.1), At(geometry.V3(4, -0.25, -1.1)))
		addTerrain(b, "railR", Box(3, 0.5, 0.1), At(geometry.V3(4, -0.25, 1.1)))
	}
	s := &Smarticle{Actuated: p.Actuated}
	s.Shell = b.Body(BodySpec{
		Name:    smarticleShellName,
		Group:   GroupShell,
		Shape:   Sphere(p.SphereRadius),
		Density: p.SphereDensity,
		Pose:    At(p.Center),
	})

	hingeIn := mgl64.QuatRotate(math.Pi/2, geometry.V3(-1, 0, 0))
	hingeOut := mgl64.QuatRotate(math.Pi/2, geometry.AxisX)
	for i, v := range vertices {
		offset := v.Mul(p.LegPlacement)
		pos := p.Center.Add(offset)
		rot, err := geometry.Outward(offset)
		if errors.Is(err, geometry.ErrDegenerateRotation) {
			log.Printf("smarticle: leg %d at %v: %v, using fallback axis", i, offset, err)
		}
		name := fmt.Sprintf("leg%02d", i)
		leg := Leg{Body: b.Body(BodySpec{
			Name:    name,
			Group:   GroupLeg,
			Shape:   Cylinder(p.LegRadius, p.LegLength),
			Density: p.LegDensity,
			Pose:    Pose{Position: pos, Orientation: rot},
			Collide: true,
		})}
		leg.Prismatic = b.Joint(JointSpec{
			Name:   fmt.Sprintf("prism%02d", i),
			Group:  GroupLegPrismatic,
			Kind:   Prismatic,
			BodyA:  smarticleShellName,
			BodyB:  name,
			Anchor: Pose{Position: pos, Orientation: geometry.Compose(rot, hingeIn)},
		})
		if p.Actuated {
			leg.Drive = b.Joint(JointSpec{
				Name:   fmt.Sprintf("act%02d", i),
				Group:  GroupLegActuator,
				Kind:   LinearActuator,
				BodyA:  name,
				BodyB:  smarticleShellName,
				Anchor: Pose{Position: pos, Orientation: geometry.Compose(rot, hingeOut)},
				Target: p.Center,
				Drive:  Binding{Control: Constant(p.ActuatorRest)},
			})
		} else {
			leg.Drive = b.Joint(JointSpec{
				Name:   fmt.Sprintf("dist%02d", i),
				Group:  GroupLegDistance,
				Kind:   Distance,
				BodyA:  name,
				BodyB:  smarticleShellName,
				Anchor: At(pos),
				Target: p.Center,
				Drive:  Binding{Control: Constant(LegRetracted)},
			})
		}
		s.Legs = append(s.Legs, leg)
	}
	m, err := b.Build()
	if err != nil {
		return nil, err
	}
	s.Mechanism = m
	return s, nil
}

func addTerrain(b *Builder, name string, shape Shape, pose Pose) {
	b.Body(BodySpec{
		Name:    name,
		Group:   GroupTerrain,
		Shape:   shape,
		Density: 3000,
		Pose:    pose,
		Collide: true,
		Fixed:   true,
	})
}
