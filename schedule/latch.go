package schedule

import "sync/atomic"

// Source supplies the direction for a step. ok is false when the source has
// nothing to say and the previous direction should be kept.
type Source interface {
	Direction(step int64) (d Direction, ok bool)
}

// Latch holds the last direction written by an input collaborator until the
// simulation loop reads it. One goroutine writes, the loop reads.
type Latch struct {
	v   atomic.Int32
	set atomic.Bool
}

// Set ...
func (l *Latch) Set(d Direction) {
	l.v.Store(int32(d))
	l.set.Store(true)
}

// Get returns the latched direction.
func (l *Latch) Get() Direction { return Direction(l.v.Load()) }

// Direction implements Source. It reports ok only once something was set.
func (l *Latch) Direction(int64) (Direction, bool) {
	return l.Get(), l.set.Load()
}

// Segment of an autopilot program: hold Direction until the step reaches
// Until.
type Segment struct {
	Until     int64
	Direction Direction
}

// Program is a step keyed direction script used when no input is wired.
type Program []Segment

// DemoProgram is the back and forth course of the smarticle demo for the
// given time step.
func DemoProgram(dt float64) Program {
	sec := func(s float64) int64 { return StepsAt(s, dt) }
	return Program{
		{1000, Forward},
		{sec(4), Back},
		{sec(10), Forward},
		{sec(14), Back},
		{sec(18), Forward},
		{sec(22), Back},
		{sec(26), Forward},
	}
}

// At returns the direction of step; None once the program has run out.
func (p Program) At(step int64) Direction {
	for _, seg := range p {
		if step < seg.Until {
			return seg.Direction
		}
	}
	return None
}

// Direction implements Source.
func (p Program) Direction(step int64) (Direction, bool) {
	return p.At(step), true
}
