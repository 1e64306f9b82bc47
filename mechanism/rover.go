package mechanism

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/nobonobo/rigsim/geometry"
)

// Body and joint groups of a rover.
const (
	GroupChassis = "chassis"
	GroupRocker  = "rocker"
	GroupBogie   = "bogie"
	GroupWheel   = "wheel"
	GroupDrive   = "drive"
	GroupPivot   = "pivot"
)

// RoverParams ...
type RoverParams struct {
	WheelRadius      float64 `json:"wheel_radius"`  // default 0.175m
	WheelWidth       float64 `json:"wheel_width"`   // default 0.175m
	WheelDensity     float64 `json:"wheel_density"` // default 0.1
	BodyWidth        float64 `json:"body_width"`    // default 0.75m
	TubeWidth        float64 `json:"tube_width"`    // default 0.03m
	TubeDensity      float64 `json:"tube_density"`  // default 1000
	RearLegLength    float64 `json:"rear_leg_length"`
	RearBeamLength   float64 `json:"rear_beam_length"`
	FrontBeamLength  float64 `json:"front_beam_length"`
	FrontArmLength   float64 `json:"front_arm_length"`
	MiddleLegLength  float64 `json:"middle_leg_length"`
	FrontLegLength   float64 `json:"front_leg_length"`
	RearAngVert      float64 `json:"rear_ang_vert"`       // rear beam angle from vertical
	FrontBeamAngVert float64 `json:"front_beam_ang_vert"` // front beam angle from vertical
	Floor            bool    `json:"floor"`
}

// DefaultRoverParams ...
func DefaultRoverParams() RoverParams {
	return RoverParams{
		WheelRadius:      0.175,
		WheelWidth:       0.175,
		WheelDensity:     0.1,
		BodyWidth:        0.75,
		TubeWidth:        0.03,
		TubeDensity:      1000,
		RearLegLength:    0.2,
		RearBeamLength:   0.5,
		FrontBeamLength:  0.5,
		FrontArmLength:   0.3,
		MiddleLegLength:  0.3,
		FrontLegLength:   0.2,
		RearAngVert:      math.Pi / 2.5,
		FrontBeamAngVert: math.Pi / 1.8,
		Floor:            true,
	}
}

// Rover is a six wheeled rocker-bogie vehicle.
//
// Wheels holds motor1..motor6 (rear, middle, front; left before right) and
// Pivots holds motor7..motor10 (rocker-chassis L/R, bogie-rocker L/R).
type Rover struct {
	*Mechanism
	Chassis BodyID
	Rockers [2]BodyID
	Bogies  [2]BodyID
	Wheels  [6]JointID
	Pivots  [4]JointID
}

// Motors returns motor1..motor10 in order.
func (r *Rover) Motors() []JointID {
	out := make([]JointID, 0, 10)
	out = append(out, r.Wheels[:]...)
	return append(out, r.Pivots[:]...)
}

var sides = [2]struct {
	suffix string
	sign   float64
}{{"L", -1}, {"R", 1}}

// BuildRover lays the rover out along +Z with the rocker pivots above the
// origin. Rocker and bogie bodies are single boxes whose mass is the sum of
// their tube segments.
func BuildRover(p RoverParams) (*Rover, error) {
	b := NewBuilder("rover")
	if p.Floor {
		addTerrain(b, "floor", Box(20, 2, 20), At(geometry.V3(0, -1, 0)))
	}
	tube := func(length float64) float64 {
		return p.TubeDensity * p.TubeWidth * p.TubeWidth * length
	}
	// Beam directions in the YZ plane, angles measured from +Y.
	rearDir := geometry.V3(0, -math.Cos(p.RearAngVert), -math.Sin(p.RearAngVert))
	frontDir := geometry.V3(0, math.Cos(p.FrontBeamAngVert), math.Sin(p.FrontBeamAngVert))
	pivotY := p.WheelRadius + p.RearLegLength + p.RearBeamLength*math.Cos(p.RearAngVert)
	rearZ := p.RearBeamLength * rearDir.Z()
	bogieOffset := frontDir.Mul(p.FrontBeamLength)

	r := &Rover{}
	r.Chassis = b.Body(BodySpec{
		Name:    "chassis",
		Group:   GroupChassis,
		Shape:   Box(p.BodyWidth-2*p.TubeWidth, 2*p.TubeWidth, p.FrontBeamLength),
		Density: p.TubeDensity,
		Pose:    At(geometry.V3(0, pivotY, 0)),
		Collide: true,
	})
	wheelRot := mgl64.QuatRotate(math.Pi/2, geometry.AxisZ)
	axisX := mgl64.QuatRotate(math.Pi/2, geometry.AxisY)
	wheel := func(name string, pos geometry.Vec3) {
		b.Body(BodySpec{
			Name:    name,
			Group:   GroupWheel,
			Shape:   Cylinder(p.WheelRadius, p.WheelWidth),
			Density: p.WheelDensity,
			Pose:    Pose{Position: pos, Orientation: wheelRot},
			Collide: true,
		})
	}
	hinge := func(name, group, a, c string, at geometry.Vec3) JointID {
		return b.Joint(JointSpec{
			Name:   name,
			Group:  group,
			Kind:   Revolute,
			BodyA:  a,
			BodyB:  c,
			Anchor: Pose{Position: at, Orientation: axisX},
		})
	}

	type sideFrame struct {
		pivot, bogiePivot   geometry.Vec3
		rear, middle, front geometry.Vec3
		rocker, bogie       string
	}
	var frames [2]sideFrame
	for i, s := range sides {
		x := s.sign * p.BodyWidth / 2
		wx := s.sign * (p.BodyWidth/2 + p.TubeWidth + p.WheelWidth/2)
		f := sideFrame{
			pivot:  geometry.V3(x, pivotY, 0),
			rocker: "rocker" + s.suffix,
			bogie:  "bogie" + s.suffix,
		}
		f.bogiePivot = f.pivot.Add(bogieOffset)
		f.rear = geometry.V3(wx, p.WheelRadius, rearZ)
		f.middle = geometry.V3(wx, p.WheelRadius, f.bogiePivot.Z()-p.FrontArmLength/2)
		f.front = geometry.V3(wx, p.WheelRadius, f.bogiePivot.Z()+p.FrontArmLength/2)
		frames[i] = f

		r.Rockers[i] = b.Body(BodySpec{
			Name:         f.rocker,
			Group:        GroupRocker,
			Shape:        Box(p.TubeWidth, p.TubeWidth, f.bogiePivot.Z()-rearZ),
			MassOverride: tube(p.RearLegLength) + tube(p.RearBeamLength) + tube(p.FrontBeamLength),
			Pose:         At(geometry.V3(x, (pivotY+p.WheelRadius+p.RearLegLength)/2, (rearZ+f.bogiePivot.Z())/2)),
			Collide:      true,
		})
		r.Bogies[i] = b.Body(BodySpec{
			Name:         f.bogie,
			Group:        GroupBogie,
			Shape:        Box(p.TubeWidth, p.TubeWidth, p.FrontArmLength),
			MassOverride: tube(p.FrontArmLength) + tube(p.MiddleLegLength) + tube(p.FrontLegLength),
			Pose:         At(f.bogiePivot),
			Collide:      true,
		})
		wheel("rearWheel"+s.suffix, f.rear)
		wheel("middleWheel"+s.suffix, f.middle)
		wheel("frontWheel"+s.suffix, f.front)
	}

	// Joints are created in motor order: wheels rear, middle, front with the
	// left side first, then the rocker and bogie pivots.
	for i, s := range sides {
		f := frames[i]
		r.Wheels[i] = hinge(motorName(1+i), GroupDrive, f.rocker, "rearWheel"+s.suffix, f.rear)
	}
	for i, s := range sides {
		f := frames[i]
		r.Wheels[2+i] = hinge(motorName(3+i), GroupDrive, f.bogie, "middleWheel"+s.suffix, f.middle)
	}
	for i, s := range sides {
		f := frames[i]
		r.Wheels[4+i] = hinge(motorName(5+i), GroupDrive, f.bogie, "frontWheel"+s.suffix, f.front)
	}
	for i, f := range frames {
		r.Pivots[i] = hinge(motorName(7+i), GroupPivot, "chassis", f.rocker, f.pivot)
	}
	for i, f := range frames {
		r.Pivots[2+i] = hinge(motorName(9+i), GroupPivot, f.rocker, f.bogie, f.bogiePivot)
	}
	m, err := b.Build()
	if err != nil {
		return nil, err
	}
	r.Mechanism = m
	return r, nil
}

func motorName(n int) string { return fmt.Sprintf("motor%d", n) }
