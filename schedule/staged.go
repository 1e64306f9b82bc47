package schedule

import (
	"fmt"
	"math"
	"sort"

	"github.com/nobonobo/rigsim/mechanism"
)

// Trigger selects the steps an Event fires on.
type Trigger struct {
	Step   int64 // fires when step == Step
	Period int64 // if positive, fires when step%Period == 0 instead
}

// AtStep fires once, on step n.
func AtStep(n int64) Trigger { return Trigger{Step: n} }

// EveryStep fires on every multiple of p.
func EveryStep(p int64) Trigger { return Trigger{Period: p} }

// Fires reports whether the trigger matches step. Matching is exact: a step
// that is never reached never fires.
func (tr Trigger) Fires(step int64) bool {
	if tr.Period > 0 {
		return step%tr.Period == 0
	}
	return step == tr.Step
}

func (tr Trigger) String() string {
	if tr.Period > 0 {
		return fmt.Sprintf("every %d", tr.Period)
	}
	return fmt.Sprintf("at %d", tr.Step)
}

// Event is a named batch of updates applied when its trigger fires.
type Event struct {
	Name        string
	Trigger     Trigger
	Assignments []Update
}

// Staged is an open-loop table of events ordered by trigger step.
type Staged struct {
	events []Event
}

// NewStaged sorts events by trigger step. Periodic events sort by their
// period; events with equal keys keep their given order.
func NewStaged(events ...Event) *Staged {
	es := append([]Event(nil), events...)
	key := func(e Event) int64 {
		if e.Trigger.Period > 0 {
			return e.Trigger.Period
		}
		return e.Trigger.Step
	}
	sort.SliceStable(es, func(i, j int) bool { return key(es[i]) < key(es[j]) })
	return &Staged{events: es}
}

// Events returns the sorted event table.
func (s *Staged) Events() []Event { return s.events }

// Evaluate returns the assignments of every event firing on t.Step, in table
// order.
func (s *Staged) Evaluate(t Tick, m *mechanism.Mechanism) ([]Update, error) {
	var out []Update
	for _, e := range s.events {
		if e.Trigger.Fires(t.Step) {
			out = append(out, e.Assignments...)
		}
	}
	return out, nil
}

// RoverScheduleParams ...
type RoverScheduleParams struct {
	Launch      float64 `json:"launch"`       // wheel speed from step 0, rad/s
	Cruise      float64 `json:"cruise"`       // wheel speed from CruiseStep, rad/s
	CruiseStep  int64   `json:"cruise_step"`  // default 500
	Torque      float64 `json:"torque"`       // wheel torque from TorqueStep
	TorqueStep  int64   `json:"torque_step"`  // default 16000
	PivotLaunch float64 `json:"pivot_launch"` // rocker/bogie speed before the lock
}

// DefaultRoverScheduleParams ...
func DefaultRoverScheduleParams() RoverScheduleParams {
	return RoverScheduleParams{
		Launch:     math.Pi / 4,
		Cruise:     math.Pi / 2,
		CruiseStep: 500,
		Torque:     -1,
		TorqueStep: 16000,
	}
}

// RoverSchedule drives motor1..6 (wheels) and locks motor7..10 (pivots) of a
// rover. wheels and pivots are the joint handles in motor order.
func RoverSchedule(p RoverScheduleParams, wheels, pivots []mechanism.JointID) *Staged {
	batch := func(ids []mechanism.JointID, mode mechanism.ActuatorMode, c mechanism.ControlFunction) []Update {
		us := make([]Update, len(ids))
		for i, id := range ids {
			us[i] = Set(id, mode, c)
		}
		return us
	}
	join := func(a, b []Update) []Update { return append(a, b...) }
	return NewStaged(
		Event{
			Name:    "launch",
			Trigger: AtStep(0),
			Assignments: join(
				batch(wheels, mechanism.SpeedControl, mechanism.Constant(p.Launch)),
				batch(pivots, mechanism.SpeedControl, mechanism.Constant(p.PivotLaunch)),
			),
		},
		Event{
			Name:    "cruise",
			Trigger: AtStep(p.CruiseStep),
			Assignments: join(
				batch(wheels, mechanism.SpeedControl, mechanism.Constant(p.Cruise)),
				batch(pivots, mechanism.PositionLock, mechanism.Constant(0)),
			),
		},
		Event{
			Name:    "torque",
			Trigger: AtStep(p.TorqueStep),
			Assignments: join(
				batch(wheels, mechanism.TorqueControl, mechanism.Constant(p.Torque)),
				batch(pivots, mechanism.PositionLock, mechanism.Constant(0)),
			),
		},
	)
}
