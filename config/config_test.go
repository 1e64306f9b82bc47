package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nobonobo/rigsim/protocol"
)

func write(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	p, err := Load("", "")
	if err != nil {
		t.Fatal(err)
	}
	want := protocol.DefaultProfile()
	if p.Scenario != want.Scenario || p.Backend != want.Backend {
		t.Errorf("scenario %q backend %q", p.Scenario, p.Backend)
	}
	if p.Driver != want.Driver {
		t.Errorf("driver %+v, want %+v", p.Driver, want.Driver)
	}
	if p.Rover != want.Rover || p.Smarticle != want.Smarticle {
		t.Error("builder params differ from defaults")
	}
	if p.Schedule != want.Schedule || p.Gait != want.Gait {
		t.Error("schedule params differ from defaults")
	}
	if len(p.World.Gravity) != 3 || p.World.Gravity[1] != want.World.Gravity[1] {
		t.Errorf("gravity %v", p.World.Gravity)
	}
}

func TestFiles(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"profile.json", `{"scenario": "rover", "driver": {"dt": 0.005, "max_steps": 20000}, "world": {"gravity": [0, -1.62, 0]}}`},
		{"profile.yaml", "scenario: rover\ndriver:\n  dt: 0.005\n  max_steps: 20000\nworld:\n  gravity: [0, -1.62, 0]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Load("", write(t, tt.name, tt.body))
			if err != nil {
				t.Fatal(err)
			}
			if p.Scenario != protocol.ScenarioRover || p.Driver.Dt != 0.005 || p.Driver.MaxSteps != 20000 {
				t.Errorf("profile %+v", p)
			}
			if p.World.Gravity[1] != -1.62 {
				t.Errorf("gravity %v", p.World.Gravity)
			}
			if p.Driver.RecordEvery != protocol.DefaultProfile().Driver.RecordEvery {
				t.Error("unset key lost its default")
			}
		})
	}
}

func TestEnvironment(t *testing.T) {
	t.Setenv("RIGSIM_DRIVER_DT", "0.001")
	t.Setenv("RIGSIM_WORLD_GRAVITY", "0,-3.7,0")
	t.Setenv("RIGSIM_SMARTICLE_ACTUATED", "false")
	path := write(t, "profile.json", `{"driver": {"dt": 0.005}}`)
	p, err := Load("", path)
	if err != nil {
		t.Fatal(err)
	}
	if p.Driver.Dt != 0.001 {
		t.Errorf("dt = %v, environment should win over the file", p.Driver.Dt)
	}
	if len(p.World.Gravity) != 3 || p.World.Gravity[1] != -3.7 {
		t.Errorf("gravity %v", p.World.Gravity)
	}
	if p.Smarticle.Actuated {
		t.Error("actuated not overridden")
	}
}

func TestDotEnv(t *testing.T) {
	t.Cleanup(func() { os.Unsetenv("RIGSIM_BACKEND") })
	env := write(t, ".env", "RIGSIM_BACKEND=kinematic\n")
	p, err := Load(env, "")
	if err != nil {
		t.Fatal(err)
	}
	if p.Backend != protocol.BackendKinematic {
		t.Errorf("backend %q", p.Backend)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env"), ""); err != nil {
		t.Errorf("missing .env: %v", err)
	}
}

func TestInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"RIGSIM_SCENARIO", "car"},
		{"RIGSIM_DRIVER_DT", "0"},
		{"RIGSIM_WORLD_GRAVITY", "0,x,0"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load("", ""); err == nil {
				t.Errorf("%s=%s accepted", tt.key, tt.value)
			}
		})
	}
	if _, err := Load("", filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Error("missing profile file accepted")
	}
}
