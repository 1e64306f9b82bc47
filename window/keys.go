package window

import (
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/nobonobo/rigsim/schedule"
)

// Keys maps keyboard keys to steering directions.
var Keys = map[glfw.Key]schedule.Direction{
	glfw.KeyA:     schedule.Left,
	glfw.KeyD:     schedule.Right,
	glfw.KeyW:     schedule.Forward,
	glfw.KeyS:     schedule.Back,
	glfw.KeySpace: schedule.None,
}

// input latches the last direction key pressed since the previous poll.
type input struct {
	pending schedule.Direction
	fresh   bool
}

func (in *input) key(key glfw.Key, action glfw.Action) {
	if action != glfw.Press {
		return
	}
	if d, ok := Keys[key]; ok {
		in.pending, in.fresh = d, true
	}
}

func (in *input) poll() (schedule.Direction, bool) {
	if !in.fresh {
		return schedule.None, false
	}
	in.fresh = false
	return in.pending, true
}
