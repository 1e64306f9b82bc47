package main

import (
	"fmt"
	"io"

	"github.com/nobonobo/rigsim/driver"
	"github.com/nobonobo/rigsim/kinematic"
	"github.com/nobonobo/rigsim/mechanism"
	"github.com/nobonobo/rigsim/models"
	"github.com/nobonobo/rigsim/protocol"
	"github.com/nobonobo/rigsim/schedule"
)

// World is one mechanism on one backend, with its actuation policy.
type World struct {
	Mechanism *mechanism.Mechanism
	Backend   driver.Backend
	Policy    schedule.Policy
	Observe   string
	// Steerable worlds take directions from input or the demo program.
	Steerable bool
}

// NewWorld builds the profile's scenario on the profile's backend.
func NewWorld(p protocol.Profile) (*World, error) {
	w := &World{}
	switch p.Scenario {
	case protocol.ScenarioRover:
		r, err := mechanism.BuildRover(p.Rover)
		if err != nil {
			return nil, err
		}
		w.Mechanism = r.Mechanism
		w.Policy = schedule.RoverSchedule(p.Schedule, r.Wheels[:], r.Pivots[:])
		w.Observe = r.Body(r.Chassis).Name
	case protocol.ScenarioSmarticle:
		s, err := mechanism.BuildSmarticle(p.Smarticle, mechanism.Icosidodecahedral())
		if err != nil {
			return nil, err
		}
		w.Mechanism = s.Mechanism
		if s.Actuated {
			w.Policy = &schedule.ActuatedGait{Shell: s.Shell, Legs: schedule.LegsOf(s), Params: p.Gait}
		} else {
			w.Policy = &schedule.DirectionalGait{Shell: s.Shell, Legs: schedule.LegsOf(s)}
			w.Steerable = true
		}
		w.Observe = s.Body(s.Shell).Name
	default:
		return nil, fmt.Errorf("unknown scenario %q", p.Scenario)
	}
	switch p.Backend {
	case protocol.BackendODE:
		w.Backend = models.NewContext(p.World)
	case protocol.BackendKinematic:
		w.Backend = kinematic.New()
	default:
		return nil, fmt.Errorf("unknown backend %q", p.Backend)
	}
	return w, nil
}

// Driver wires the world into a driver. A steerable world listens to the
// demo program when autopilot is set.
func (w *World) Driver(p protocol.Profile, opts ...driver.Option) (*driver.Driver, error) {
	cfg := p.Driver
	if cfg.Observe == "" {
		cfg.Observe = w.Observe
	}
	if w.Steerable && p.Autopilot {
		opts = append(opts, driver.WithDirections(schedule.DemoProgram(cfg.Dt)))
	}
	return driver.New(cfg, w.Mechanism, w.Backend, w.Policy, opts...)
}

// Close releases the backend.
func (w *World) Close() error {
	if c, ok := w.Backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
