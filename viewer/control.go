package viewer

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/nobonobo/rigsim/protocol"
	"github.com/nobonobo/rigsim/schedule"
)

// Control is the JSON-RPC steering service. A pilot that stays silent for
// longer than the idle timeout is dropped and the robot stops.
type Control struct {
	hub    *Hub
	idle   time.Duration
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewControl ...
func NewControl(hub *Hub, idle time.Duration) *Control {
	return &Control{hub: hub, idle: idle, timers: map[string]*time.Timer{}}
}

// Steer sets the direction and returns the latest frame.
func (c *Control) Steer(req *protocol.Input, rep *protocol.Output) error {
	if req.Name == "" {
		return errors.New("missing pilot name")
	}
	c.hub.Steer(req.Direction)
	c.touch(req.Name)
	rep.Self = req.Name
	rep.Frame = c.hub.Latest()
	return nil
}

// Bye releases the pilot and stops the robot.
func (c *Control) Bye(name string, rep *string) error {
	c.gc(name)
	*rep = name
	return nil
}

func (c *Control) touch(name string) {
	if c.idle <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if t := c.timers[name]; t != nil {
		t.Reset(c.idle)
		return
	}
	c.timers[name] = time.AfterFunc(c.idle, func() {
		log.Println("viewer: pilot idle:", name)
		c.gc(name)
	})
}

func (c *Control) gc(name string) {
	c.mu.Lock()
	if t := c.timers[name]; t != nil {
		t.Stop()
	}
	delete(c.timers, name)
	c.mu.Unlock()
	c.hub.Steer(schedule.None)
}
