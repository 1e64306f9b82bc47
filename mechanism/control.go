package mechanism

import (
	"errors"
	"fmt"
)

// ControlKind tags a ControlFunction.
type ControlKind int

// Control function variants.
const (
	ControlConstant ControlKind = iota
	ControlRamp
)

func (k ControlKind) String() string {
	switch k {
	case ControlConstant:
		return "constant"
	case ControlRamp:
		return "ramp"
	default:
		return "unknown"
	}
}

// ControlFunction is a pure scalar function of simulation time driving a
// joint's target speed, torque or distance. A ramp evaluates to
// Value + Slope*t.
type ControlFunction struct {
	Kind  ControlKind `json:"kind"`
	Value float64     `json:"value"`
	Slope float64     `json:"slope,omitempty"`
}

// Constant ...
func Constant(v float64) ControlFunction {
	return ControlFunction{Kind: ControlConstant, Value: v}
}

// Ramp returns an affine function with value y0 at t=0.
func Ramp(y0, slope float64) ControlFunction {
	return ControlFunction{Kind: ControlRamp, Value: y0, Slope: slope}
}

// Eval ...
func (f ControlFunction) Eval(t float64) float64 {
	if f.Kind == ControlRamp {
		return f.Value + f.Slope*t
	}
	return f.Value
}

func (f ControlFunction) String() string {
	if f.Kind == ControlRamp {
		return fmt.Sprintf("ramp(%g, %g)", f.Value, f.Slope)
	}
	return fmt.Sprintf("const(%g)", f.Value)
}

// ActuatorMode selects how a backend interprets a joint's control output.
// Passive joints carry no actuation.
type ActuatorMode int

// Actuator modes.
const (
	Passive ActuatorMode = iota
	SpeedControl
	TorqueControl
	PositionLock
)

func (m ActuatorMode) String() string {
	switch m {
	case Passive:
		return "passive"
	case SpeedControl:
		return "speed"
	case TorqueControl:
		return "torque"
	case PositionLock:
		return "lock"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned when a mode change would leave a terminal
// mode.
var ErrInvalidTransition = errors.New("mechanism: invalid actuator mode transition")

// CanTransition reports whether a joint in mode from may switch to mode to.
// Torque control and position lock are terminal.
func CanTransition(from, to ActuatorMode) bool {
	switch from {
	case Passive:
		return true
	case SpeedControl:
		return to == SpeedControl || to == TorqueControl || to == PositionLock
	case TorqueControl, PositionLock:
		return to == from
	}
	return false
}

// Binding is the mutable actuation state of a joint.
type Binding struct {
	Mode    ActuatorMode    `json:"mode"`
	Control ControlFunction `json:"control"`
}
