// Package window is the local visualization backend: a GLFW window that
// draws every body as a point and steers with the keyboard. All methods must
// be called from the main thread.
package window

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/nobonobo/rigsim/driver"
	"github.com/nobonobo/rigsim/mechanism"
	"github.com/nobonobo/rigsim/schedule"
)

const vertexShaderSource = `
#version 410 core
layout (location = 0) in vec3 aPos;
layout (location = 1) in vec4 aColor;

uniform mat4 view;
uniform mat4 projection;

out vec4 vertexColor;

void main() {
    gl_Position = projection * view * vec4(aPos, 1.0);
    gl_PointSize = aColor.a;
    vertexColor = vec4(aColor.rgb, 1.0);
}
` + "\x00"

const fragmentShaderSource = `
#version 410 core
in vec4 vertexColor;
out vec4 FragColor;

void main() {
    FragColor = vertexColor;
}
` + "\x00"

var _ driver.Visualizer = (*Window)(nil)

// Window ...
type Window struct {
	win     *glfw.Window
	program uint32
	vao     uint32
	vbo     uint32
	viewLoc int32
	projLoc int32
	width   int
	height  int

	colors [][4]float32
	follow string
	in     input
	buf    []float32
}

// Open creates the window and its GL context. follow names the body the
// camera tracks; empty follows the first body.
func Open(title string, width, height int, follow string) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("window: glfw init: %w", err)
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("window: create: %w", err)
	}
	win.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		win.Destroy()
		glfw.Terminate()
		return nil, fmt.Errorf("window: gl init: %w", err)
	}
	w := &Window{win: win, width: width, height: height, follow: follow}
	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		w.in.key(key, action)
	})
	if err := w.initGL(); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func (w *Window) initGL() error {
	vs, err := compileShader(vertexShaderSource, gl.VERTEX_SHADER)
	if err != nil {
		return err
	}
	fs, err := compileShader(fragmentShaderSource, gl.FRAGMENT_SHADER)
	if err != nil {
		return err
	}
	w.program = gl.CreateProgram()
	gl.AttachShader(w.program, vs)
	gl.AttachShader(w.program, fs)
	gl.LinkProgram(w.program)
	var status int32
	gl.GetProgramiv(w.program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetProgramiv(w.program, gl.INFO_LOG_LENGTH, &n)
		msg := strings.Repeat("\x00", int(n+1))
		gl.GetProgramInfoLog(w.program, n, nil, gl.Str(msg))
		return fmt.Errorf("window: link shader program: %v", msg)
	}
	gl.DeleteShader(vs)
	gl.DeleteShader(fs)
	w.viewLoc = gl.GetUniformLocation(w.program, gl.Str("view\x00"))
	w.projLoc = gl.GetUniformLocation(w.program, gl.Str("projection\x00"))

	gl.GenVertexArrays(1, &w.vao)
	gl.GenBuffers(1, &w.vbo)
	gl.BindVertexArray(w.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, w.vbo)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, 7*4, gl.PtrOffset(0))
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(1, 4, gl.FLOAT, false, 7*4, gl.PtrOffset(3*4))
	gl.EnableVertexAttribArray(1)
	gl.BindVertexArray(0)

	gl.Enable(gl.DEPTH_TEST)
	gl.Enable(gl.PROGRAM_POINT_SIZE)
	gl.ClearColor(0.5, 0.7, 0.9, 1.0)
	return nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source)
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)
	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &n)
		msg := strings.Repeat("\x00", int(n+1))
		gl.GetShaderInfoLog(shader, n, nil, gl.Str(msg))
		return 0, fmt.Errorf("window: compile shader: %v", msg)
	}
	return shader, nil
}

// BindAssets picks a colour and point size per body.
func (w *Window) BindAssets(m *mechanism.Mechanism) error {
	w.colors = make([][4]float32, m.NumBodies())
	for i := range w.colors {
		w.colors[i] = style(m.Body(mechanism.BodyID(i)))
	}
	if w.follow == "" && m.NumBodies() > 0 {
		w.follow = m.Body(0).Name
		for i := 0; i < m.NumBodies(); i++ {
			if b := m.Body(mechanism.BodyID(i)); !b.Fixed {
				w.follow = b.Name
				break
			}
		}
	}
	return nil
}

// style returns rgb plus the point size in pixels.
func style(b mechanism.BodySpec) [4]float32 {
	size := float32(6)
	if b.Shape.Kind == mechanism.ShapeSphere {
		size = 24
	}
	switch {
	case b.Fixed:
		return [4]float32{0.3, 0.3, 0.3, 4}
	case b.Group == mechanism.GroupWheel:
		return [4]float32{0.1, 0.1, 0.1, 12}
	case b.Group == mechanism.GroupLeg:
		return [4]float32{0.9, 0.4, 0.1, size}
	}
	return [4]float32{0.9, 0.9, 0.9, size}
}

// RenderFrame draws the snapshot and processes window events.
func (w *Window) RenderFrame(s *driver.Snapshot) error {
	if w.win.ShouldClose() {
		return driver.ErrStop
	}
	w.buf = w.buf[:0]
	var target mgl32.Vec3
	for i, b := range s.Bodies {
		p := mgl32.Vec3{float32(b.Position[0]), float32(b.Position[1]), float32(b.Position[2])}
		if b.Name == w.follow {
			target = p
		}
		c := [4]float32{1, 1, 1, 6}
		if i < len(w.colors) {
			c = w.colors[i]
		}
		w.buf = append(w.buf, p[0], p[1], p[2], c[0], c[1], c[2], c[3])
	}
	view := mgl32.LookAtV(target.Add(mgl32.Vec3{0, 1.5, 3}), target, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(45), float32(w.width)/float32(w.height), 0.01, 100)

	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	gl.UseProgram(w.program)
	gl.UniformMatrix4fv(w.viewLoc, 1, false, &view[0])
	gl.UniformMatrix4fv(w.projLoc, 1, false, &proj[0])
	gl.BindVertexArray(w.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, w.vbo)
	if len(w.buf) > 0 {
		gl.BufferData(gl.ARRAY_BUFFER, len(w.buf)*4, gl.Ptr(w.buf), gl.DYNAMIC_DRAW)
		gl.DrawArrays(gl.POINTS, 0, int32(len(w.buf)/7))
	}
	gl.BindVertexArray(0)
	w.win.SwapBuffers()
	glfw.PollEvents()
	return nil
}

// PollInput returns the last direction key pressed since the previous call.
func (w *Window) PollInput() (schedule.Direction, bool) {
	return w.in.poll()
}

// Close ...
func (w *Window) Close() error {
	if w.win != nil {
		w.win.Destroy()
		w.win = nil
	}
	glfw.Terminate()
	return nil
}
