// Package driver runs a Mechanism on a physics Backend in a fixed-step loop:
// read input, evaluate the policy, push joint updates, advance, then render,
// record and report at their cadences.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nobonobo/rigsim/geometry"
	"github.com/nobonobo/rigsim/mechanism"
	"github.com/nobonobo/rigsim/schedule"
)

// BodyHandle is a backend's reference to a created body.
type BodyHandle int

// JointHandle is a backend's reference to a created joint.
type JointHandle int

// Backend is a physics engine.
type Backend interface {
	CreateBody(spec mechanism.BodySpec) (BodyHandle, error)
	CreateJoint(spec mechanism.JointSpec, a, b BodyHandle) (JointHandle, error)
	SetJointMode(j JointHandle, mode mechanism.ActuatorMode) error
	SetJointControl(j JointHandle, f mechanism.ControlFunction) error
	// Advance integrates dt seconds. A *DivergenceError (possibly wrapped)
	// reports an unusable state.
	Advance(dt float64) error
	BodyState(b BodyHandle) mechanism.BodyState
	JointAnchor(j JointHandle) geometry.Vec3
}

// Visualizer shows frames and may produce direction commands.
type Visualizer interface {
	BindAssets(m *mechanism.Mechanism) error
	// RenderFrame returns ErrStop when the user asked to quit.
	RenderFrame(s *Snapshot) error
	PollInput() (schedule.Direction, bool)
}

// Recorder persists frames.
type Recorder interface {
	ExportFrame(step int64, s *Snapshot) error
	Close() error
}

// BodyFrame is the state of one body in a Snapshot.
type BodyFrame struct {
	Name  string          `json:"name"`
	Group string          `json:"group,omitempty"`
	Shape mechanism.Shape `json:"shape"`
	Fixed bool            `json:"fixed,omitempty"`
	mechanism.BodyState
}

// Snapshot is a copy of every body's state after a tick.
type Snapshot struct {
	Step      int64              `json:"step"`
	Time      float64            `json:"time"`
	Direction schedule.Direction `json:"direction"`
	Bodies    []BodyFrame        `json:"bodies"`
}

// Find returns the frame of the named body.
func (s *Snapshot) Find(name string) (BodyFrame, bool) {
	for _, b := range s.Bodies {
		if b.Name == name {
			return b, true
		}
	}
	return BodyFrame{}, false
}

// Option configures a Driver.
type Option func(*Driver)

// WithVisualizer ...
func WithVisualizer(v Visualizer) Option { return func(d *Driver) { d.vis = v } }

// WithRecorder ...
func WithRecorder(r Recorder) Option { return func(d *Driver) { d.rec = r } }

// WithDirections adds a direction source consulted when the visualizer has
// no input. Sources are consulted in the order given.
func WithDirections(src schedule.Source) Option {
	return func(d *Driver) { d.sources = append(d.sources, src) }
}

// WithLogger ...
func WithLogger(l *log.Logger) Option { return func(d *Driver) { d.log = l } }

// Driver owns the tick loop. It is not safe for concurrent use; Snapshot is
// the only method meant to be called between ticks by other components.
type Driver struct {
	cfg     Config
	mech    *mechanism.Mechanism
	backend Backend
	policy  schedule.Policy
	vis     Visualizer
	rec     Recorder
	sources []schedule.Source
	log     *log.Logger

	bodies  []BodyHandle
	joints  []JointHandle
	observe mechanism.BodyID

	step   int64
	dir    schedule.Direction
	halted error
}

// New creates the backend bodies and joints in arena order and pushes the
// initial bindings.
func New(cfg Config, m *mechanism.Mechanism, backend Backend, policy schedule.Policy, opts ...Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("driver config: %w", err)
	}
	if cfg.ReportEvery == 0 {
		cfg.ReportEvery = ReportCadence(cfg.Dt)
	}
	d := &Driver{
		cfg:     cfg,
		mech:    m,
		backend: backend,
		policy:  policy,
		log:     log.Default(),
		observe: -1,
	}
	for _, opt := range opts {
		opt(d)
	}
	if cfg.Observe != "" {
		id, ok := m.BodyByName(cfg.Observe)
		if !ok {
			return nil, fmt.Errorf("observed body %q not found", cfg.Observe)
		}
		d.observe = id
	}
	d.bodies = make([]BodyHandle, m.NumBodies())
	for i := range d.bodies {
		spec := m.Body(mechanism.BodyID(i))
		h, err := backend.CreateBody(spec)
		if err != nil {
			return nil, fmt.Errorf("create body %q: %w", spec.Name, err)
		}
		d.bodies[i] = h
	}
	d.joints = make([]JointHandle, m.NumJoints())
	for i := range d.joints {
		id := mechanism.JointID(i)
		spec := m.Joint(id)
		a, b := m.Ends(id)
		h, err := backend.CreateJoint(spec, d.bodies[a], d.bodies[b])
		if err != nil {
			return nil, fmt.Errorf("create joint %q: %w", spec.Name, err)
		}
		d.joints[i] = h
		bind := m.Binding(id)
		if err := d.push(id, &bind.Mode, &bind.Control); err != nil {
			return nil, err
		}
	}
	d.log.Printf("%s: %d bodies, %d joints, %d islands", m.Name(), m.NumBodies(), m.NumJoints(), len(m.Islands()))
	if d.vis != nil {
		if err := d.vis.BindAssets(m); err != nil {
			return nil, fmt.Errorf("bind assets: %w", err)
		}
	}
	return d, nil
}

// Step returns the number of completed ticks, which is also the index of the
// next one.
func (d *Driver) Step() int64 { return d.step }

// Time returns the simulated time of the current state.
func (d *Driver) Time() float64 { return float64(d.step) * d.cfg.Dt }

// Direction returns the direction used by the last tick.
func (d *Driver) Direction() schedule.Direction { return d.dir }

// Mechanism ...
func (d *Driver) Mechanism() *mechanism.Mechanism { return d.mech }

// Body returns the backend handle of a mechanism body.
func (d *Driver) Body(id mechanism.BodyID) BodyHandle { return d.bodies[id] }

// Joint returns the backend handle of a mechanism joint.
func (d *Driver) Joint(id mechanism.JointID) JointHandle { return d.joints[id] }

// BodyState implements schedule.Probe.
func (d *Driver) BodyState(id mechanism.BodyID) mechanism.BodyState {
	return d.backend.BodyState(d.bodies[id])
}

// JointAnchor implements schedule.Probe.
func (d *Driver) JointAnchor(id mechanism.JointID) geometry.Vec3 {
	return d.backend.JointAnchor(d.joints[id])
}

func (d *Driver) push(id mechanism.JointID, mode *mechanism.ActuatorMode, c *mechanism.ControlFunction) error {
	h := d.joints[id]
	if mode != nil {
		if err := d.backend.SetJointMode(h, *mode); err != nil {
			return fmt.Errorf("joint %q mode: %w", d.mech.Joint(id).Name, err)
		}
	}
	if c != nil {
		if err := d.backend.SetJointControl(h, *c); err != nil {
			return fmt.Errorf("joint %q control: %w", d.mech.Joint(id).Name, err)
		}
	}
	return nil
}

func (d *Driver) pollDirection() {
	if d.vis != nil {
		if dir, ok := d.vis.PollInput(); ok {
			d.dir = dir
			return
		}
	}
	for _, src := range d.sources {
		if dir, ok := src.Direction(d.step); ok {
			d.dir = dir
			return
		}
	}
}

// Tick runs one step of the loop. After a divergence every call returns the
// same *SimulationDivergedError.
func (d *Driver) Tick() error {
	if d.halted != nil {
		return d.halted
	}
	step, now := d.step, d.Time()
	d.pollDirection()

	updates, err := d.policy.Evaluate(schedule.Tick{
		Step:      step,
		Time:      now,
		Dt:        d.cfg.Dt,
		Direction: d.dir,
		Probe:     d,
	}, d.mech)
	if err != nil {
		return fmt.Errorf("step %d: policy: %w", step, err)
	}
	if err := d.check(updates); err != nil {
		return fmt.Errorf("step %d: %w", step, err)
	}
	for _, u := range updates {
		if _, err := d.mech.Bind(u.Joint, u.Mode, u.Control); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		if err := d.push(u.Joint, u.Mode, u.Control); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
	}

	if err := d.backend.Advance(d.cfg.Dt); err != nil {
		d.halted = &SimulationDivergedError{Step: step, Time: now, Err: err}
		return d.halted
	}
	d.step++

	var stop error
	if every(d.cfg.RenderEvery, step) && d.vis != nil {
		if err := d.vis.RenderFrame(d.Snapshot()); err != nil {
			if !errors.Is(err, ErrStop) {
				return fmt.Errorf("step %d: render: %w", step, err)
			}
			stop = err
		}
	}
	if every(d.cfg.RecordEvery, step) && d.rec != nil {
		if err := d.rec.ExportFrame(step, d.Snapshot()); err != nil {
			return fmt.Errorf("step %d: export: %w", step, err)
		}
	}
	if every(d.cfg.ReportEvery, step) {
		d.report(step)
	}
	return stop
}

// check validates a whole batch against the current bindings, so that a
// rejected batch leaves every joint as it was.
func (d *Driver) check(updates []schedule.Update) error {
	modes := map[mechanism.JointID]mechanism.ActuatorMode{}
	for _, u := range updates {
		if int(u.Joint) < 0 || int(u.Joint) >= d.mech.NumJoints() {
			return fmt.Errorf("joint %d out of range", u.Joint)
		}
		if u.Mode == nil {
			continue
		}
		cur, ok := modes[u.Joint]
		if !ok {
			cur = d.mech.Binding(u.Joint).Mode
		}
		if !mechanism.CanTransition(cur, *u.Mode) {
			return fmt.Errorf("joint %q %s -> %s: %w", d.mech.Joint(u.Joint).Name, cur, *u.Mode, mechanism.ErrInvalidTransition)
		}
		modes[u.Joint] = *u.Mode
	}
	return nil
}

func every(n, step int64) bool { return n > 0 && step%n == 0 }

func (d *Driver) report(step int64) {
	if d.observe < 0 {
		return
	}
	s := d.BodyState(d.observe)
	d.log.Printf("step %d t=%.3f dir=%s position: %.4f %.4f %.4f velocity: %.4f %.4f %.4f acceleration: %.4f %.4f %.4f",
		step, d.Time(), d.dir,
		s.Position[0], s.Position[1], s.Position[2],
		s.Velocity[0], s.Velocity[1], s.Velocity[2],
		s.Acceleration[0], s.Acceleration[1], s.Acceleration[2])
}

// Done reports whether the step or time bound has been reached.
func (d *Driver) Done() bool {
	if d.cfg.MaxSteps > 0 && d.step >= d.cfg.MaxSteps {
		return true
	}
	return d.cfg.MaxTime > 0 && d.Time() >= d.cfg.MaxTime-d.cfg.Dt/2
}

// Run ticks until a bound is reached, ctx is cancelled, the visualizer
// returns ErrStop or a tick fails. With Config.Pace each tick waits for a
// wall clock period of Dt.
func (d *Driver) Run(ctx context.Context) error {
	var pace <-chan time.Time
	if d.cfg.Pace {
		t := time.NewTicker(d.cfg.Period())
		defer t.Stop()
		pace = t.C
	}
	start := time.Now()
	first := d.step
	defer func() {
		d.log.Printf("ran %d steps (%.3fs simulated) in %v", d.step-first, float64(d.step-first)*d.cfg.Dt, time.Since(start))
	}()
	for !d.Done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if pace != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-pace:
			}
		}
		if err := d.Tick(); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Snapshot copies the current state of every body. Step counts the ticks
// that produced it.
func (d *Driver) Snapshot() *Snapshot {
	s := &Snapshot{
		Step:      d.step,
		Time:      d.Time(),
		Direction: d.dir,
		Bodies:    make([]BodyFrame, len(d.bodies)),
	}
	for i, h := range d.bodies {
		spec := d.mech.Body(mechanism.BodyID(i))
		s.Bodies[i] = BodyFrame{
			Name:      spec.Name,
			Group:     spec.Group,
			Shape:     spec.Shape,
			Fixed:     spec.Fixed,
			BodyState: d.backend.BodyState(h),
		}
	}
	return s
}
