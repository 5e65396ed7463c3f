// Package render supplies concrete rpysight.Renderer implementations.
// GLRenderer is the only one backed by a real GPU window; rpysight's own
// NullRenderer remains the headless option used by tests and by
// headless runs.
package render

import (
	"fmt"
	"runtime"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/HagaiHargil/rpysight"
)

func init() {
	// GLFW and the GL context must live on the thread that created them.
	runtime.LockOSThread()
}

// GLRenderer draws the merged voxel map as GL_POINTS in an orthographic
// [-1,1]^2 viewport, one vertex buffer rebuilt per DisplayPoint/Render
// cycle. It implements rpysight.Renderer.
type GLRenderer struct {
	window *glfw.Window
	vao    uint32
	vbo    uint32
	prog   uint32

	pending []float32 // x,y,z,r,g,b per point, flattened
}

// NewGLRenderer opens a width x height GLFW window titled title and
// compiles the point-sprite shader program. Must be called from the
// main goroutine on most platforms (glfw requirement).
func NewGLRenderer(width, height int, title string) (*GLRenderer, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("rpysight/render: glfw init: %w", err)
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("rpysight/render: creating window: %w", err)
	}
	win.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("rpysight/render: gl init: %w", err)
	}

	prog, err := buildPointProgram()
	if err != nil {
		return nil, err
	}

	var vao, vbo uint32
	gl.GenVertexArrays(1, &vao)
	gl.GenBuffers(1, &vbo)

	return &GLRenderer{window: win, vao: vao, vbo: vbo, prog: prog}, nil
}

// DisplayPoint queues one point for the next Render call. rpysight's
// pipeline has already applied the p' = (-y, -x, z) scanner-to-screen
// flip before calling this (see AppState.renderAndFlush), matching the
// original's display_point convention.
func (r *GLRenderer) DisplayPoint(p rpysight.ImageCoor, c rpysight.Color) {
	r.pending = append(r.pending, p.X, p.Y, p.Z, c.R, c.G, c.B)
}

// Render uploads the queued points and draws them, then clears the
// pending buffer.
func (r *GLRenderer) Render() {
	gl.ClearColor(0, 0, 0, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	if len(r.pending) > 0 {
		gl.UseProgram(r.prog)
		gl.BindVertexArray(r.vao)
		gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)
		gl.BufferData(gl.ARRAY_BUFFER, len(r.pending)*4, gl.Ptr(r.pending), gl.STREAM_DRAW)

		const stride = 6 * 4
		gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, stride, 0)
		gl.EnableVertexAttribArray(0)
		gl.VertexAttribPointerWithOffset(1, 3, gl.FLOAT, false, stride, 3*4)
		gl.EnableVertexAttribArray(1)

		gl.DrawArrays(gl.POINTS, 0, int32(len(r.pending)/6))
	}

	r.window.SwapBuffers()
	glfw.PollEvents()
	r.pending = r.pending[:0]
}

// Hide hides the render window and marks it as should-close, so
// ShouldClose reports true afterwards; the acquisition loop calls this
// once it has decided to stop accepting new frames.
func (r *GLRenderer) Hide() {
	r.window.SetShouldClose(true)
	r.window.Hide()
}

// ShouldClose reports whether the user asked to close the window.
func (r *GLRenderer) ShouldClose() bool {
	return r.window.ShouldClose()
}

const pointVertexShader = `
#version 410 core
layout(location = 0) in vec3 position;
layout(location = 1) in vec3 color;
out vec3 fragColor;
void main() {
	gl_Position = vec4(position, 1.0);
	gl_PointSize = 2.0;
	fragColor = color;
}
` + "\x00"

const pointFragmentShader = `
#version 410 core
in vec3 fragColor;
out vec4 outColor;
void main() {
	outColor = vec4(fragColor, 1.0);
}
` + "\x00"

func buildPointProgram() (uint32, error) {
	vs, err := compileShader(pointVertexShader, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	fs, err := compileShader(pointFragmentShader, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, err
	}
	prog := gl.CreateProgram()
	gl.AttachShader(prog, vs)
	gl.AttachShader(prog, fs)
	gl.LinkProgram(prog)

	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &logLen)
		log := make([]byte, logLen+1)
		gl.GetProgramInfoLog(prog, logLen, nil, &log[0])
		return 0, fmt.Errorf("rpysight/render: linking program: %s", string(log))
	}
	gl.DeleteShader(vs)
	gl.DeleteShader(fs)
	return prog, nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csource, free := gl.Strs(source)
	defer free()
	gl.ShaderSource(shader, 1, csource, nil)
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		log := make([]byte, logLen+1)
		gl.GetShaderInfoLog(shader, logLen, nil, &log[0])
		return 0, fmt.Errorf("rpysight/render: compiling shader: %s", string(log))
	}
	return shader, nil
}
