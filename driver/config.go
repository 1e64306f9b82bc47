package driver

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Config controls the tick loop. Zero render and record cadences disable the
// matching output. A zero ReportEvery reports five times per simulated
// second; a negative one disables diagnostics.
type Config struct {
	Dt          float64 `json:"dt"`           // seconds per tick
	MaxSteps    int64   `json:"max_steps"`    // 0 for no step bound
	MaxTime     float64 `json:"max_time"`     // 0 for no time bound
	RenderEvery int64   `json:"render_every"` // ticks between rendered frames
	RecordEvery int64   `json:"record_every"` // ticks between exported frames
	ReportEvery int64   `json:"report_every"` // ticks between diagnostic lines
	Observe     string  `json:"observe"`      // body reported in diagnostics
	Pace        bool    `json:"pace"`         // run in real time
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		Dt:          0.002,
		RenderEvery: 1,
		RecordEvery: 25,
	}
}

// Validate ...
func (c Config) Validate() error {
	var errs []error
	if !(c.Dt > 0) {
		errs = append(errs, fmt.Errorf("dt must be positive, got %g", c.Dt))
	}
	if c.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("max_steps must not be negative, got %d", c.MaxSteps))
	}
	if c.MaxTime < 0 {
		errs = append(errs, fmt.Errorf("max_time must not be negative, got %g", c.MaxTime))
	}
	for _, f := range []struct {
		name string
		v    int64
	}{
		{"render_every", c.RenderEvery},
		{"record_every", c.RecordEvery},
	} {
		if f.v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", f.name, f.v))
		}
	}
	return errors.Join(errs...)
}

// Period is the wall clock duration of one tick.
func (c Config) Period() time.Duration {
	return time.Duration(c.Dt * float64(time.Second))
}

// ReportCadence returns the tick count giving five diagnostic lines per
// simulated second.
func ReportCadence(dt float64) int64 {
	n := int64(math.Round(1 / dt / 5))
	if n < 1 {
		n = 1
	}
	return n
}
