package driver

import (
	"errors"
	"fmt"
)

// ErrStop is returned by a Visualizer to end the run cleanly.
var ErrStop = errors.New("driver: stop requested")

// DivergenceError is reported by a Backend whose state became unusable.
type DivergenceError struct {
	Body   string
	Reason string
}

func (e *DivergenceError) Error() string {
	if e.Body == "" {
		return "diverged: " + e.Reason
	}
	return fmt.Sprintf("body %q diverged: %s", e.Body, e.Reason)
}

// SimulationDivergedError halts the driver. It wraps the backend error.
type SimulationDivergedError struct {
	Step int64
	Time float64
	Err  error
}

func (e *SimulationDivergedError) Error() string {
	return fmt.Sprintf("simulation diverged at step %d (t=%.4fs): %v", e.Step, e.Time, e.Err)
}

func (e *SimulationDivergedError) Unwrap() error { return e.Err }
