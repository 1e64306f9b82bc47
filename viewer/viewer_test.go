package viewer

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"net/rpc/jsonrpc"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	xws "golang.org/x/net/websocket"

	"github.com/nobonobo/rigsim/driver"
	"github.com/nobonobo/rigsim/geometry"
	"github.com/nobonobo/rigsim/mechanism"
	"github.com/nobonobo/rigsim/protocol"
	"github.com/nobonobo/rigsim/schedule"
)

func ball(t *testing.T) *mechanism.Mechanism {
	t.Helper()
	m, err := mechanism.Build("ball", []mechanism.BodySpec{
		{Name: "shell", Shape: mechanism.Sphere(0.2), Density: 1, Pose: mechanism.At(geometry.V3(0, 1, 0))},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func TestStream(t *testing.T) {
	h := NewHub(0)
	if err := h.BindAssets(ball(t)); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(h.Handler(""))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatal(err)
	}
	if env.Type != "scene" {
		t.Fatalf("first message %q, want scene", env.Type)
	}
	var sc protocol.Scene
	if err := json.Unmarshal(env.Data, &sc); err != nil {
		t.Fatal(err)
	}
	if sc.Mechanism != "ball" || len(sc.Shapes) != 1 || sc.Shapes[0].Kind != "sphere" {
		t.Errorf("scene %+v", sc)
	}
	if h.Clients() != 1 {
		t.Errorf("clients = %d", h.Clients())
	}

	snap := &driver.Snapshot{Step: 3, Direction: schedule.Forward, Bodies: []driver.BodyFrame{{Name: "shell"}}}
	if err := h.RenderFrame(snap); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatal(err)
	}
	var f protocol.Frame
	if err := json.Unmarshal(env.Data, &f); err != nil {
		t.Fatal(err)
	}
	if env.Type != "frame" || f.Step != 3 || f.Direction != schedule.Forward {
		t.Errorf("frame %s %+v", env.Type, f)
	}

	h.Close()
	if err := h.RenderFrame(snap); !errors.Is(err, driver.ErrStop) {
		t.Errorf("render after close = %v", err)
	}
}

func TestControl(t *testing.T) {
	h := NewHub(0)
	srv := httptest.NewServer(h.Handler(""))
	defer srv.Close()

	if _, ok := h.PollInput(); ok {
		t.Error("input before any command")
	}
	h.RenderFrame(&driver.Snapshot{Step: 9})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, err := xws.Dial(url, "", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	c := jsonrpc.NewClient(ws)
	defer c.Close()

	var out protocol.Output
	if err := c.Call("Control.Steer", &protocol.Input{Name: "pad", Direction: schedule.Left}, &out); err != nil {
		t.Fatal(err)
	}
	if out.Self != "pad" || out.Frame == nil || out.Frame.Step != 9 {
		t.Errorf("output %+v", out)
	}
	if d, ok := h.PollInput(); !ok || d != schedule.Left {
		t.Errorf("input = %v, %v", d, ok)
	}
	if err := c.Call("Control.Steer", &protocol.Input{Direction: schedule.Right}, &out); err == nil {
		t.Error("anonymous pilot accepted")
	}
	var name string
	if err := c.Call("Control.Bye", "pad", &name); err != nil {
		t.Fatal(err)
	}
	if d, _ := h.PollInput(); d != schedule.None {
		t.Errorf("input after bye = %v", d)
	}
}

func TestIdlePilotStops(t *testing.T) {
	h := NewHub(20 * time.Millisecond)
	ctl := NewControl(h, 20*time.Millisecond)
	var out protocol.Output
	if err := ctl.Steer(&protocol.Input{Name: "pad", Direction: schedule.Back}, &out); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d, _ := h.PollInput(); d == schedule.None {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("idle pilot still steering")
}
