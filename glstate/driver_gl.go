package glstate

import (
	"github.com/go-gl/gl/v2.1/gl"
	"github.com/go-gl/mathgl/mgl32"
)

// GLDriver drives a fixed-function OpenGL 2.1 context. gl.Init must have
// been called on the owning goroutine.
type GLDriver struct{}

var blendEquationLUT = map[BlendEquation]uint32{
	BlendAdd:             gl.FUNC_ADD,
	BlendReverseSubtract: gl.FUNC_REVERSE_SUBTRACT,
}

var blendFuncLUT = map[BlendFunc]uint32{
	BlendOne:              gl.ONE,
	BlendZero:             gl.ZERO,
	BlendSrcAlpha:         gl.SRC_ALPHA,
	BlendOneMinusSrcAlpha: gl.ONE_MINUS_SRC_ALPHA,
}

var capabilityLUT = map[Capability]uint32{
	CapScissorTest: gl.SCISSOR_TEST,
	CapTexture2D:   gl.TEXTURE_2D,
}

func (GLDriver) ClearColor(c mgl32.Vec4) {
	gl.ClearColor(c[0], c[1], c[2], c[3])
}

// Clear clears the color buffer to the current clear color.
func (GLDriver) Clear() {
	gl.Clear(gl.COLOR_BUFFER_BIT)
}

func (GLDriver) Scissor(r IntRect) {
	gl.Scissor(r.X, r.Y, r.W, r.H)
}

func (GLDriver) Viewport(r IntRect) {
	gl.Viewport(r.X, r.Y, r.W, r.H)
}

func (GLDriver) SetCapability(c Capability, enabled bool) {
	if enabled {
		gl.Enable(capabilityLUT[c])
	} else {
		gl.Disable(capabilityLUT[c])
	}
}

func (GLDriver) BlendEquation(eq BlendEquation) {
	gl.BlendEquation(blendEquationLUT[eq])
}

func (GLDriver) BlendFunc(src, dst BlendFunc) {
	gl.BlendFunc(blendFuncLUT[src], blendFuncLUT[dst])
}

func (GLDriver) BlendFuncSeparate(srcRGB, dstRGB, srcAlpha, dstAlpha BlendFunc) {
	gl.BlendFuncSeparate(blendFuncLUT[srcRGB], blendFuncLUT[dstRGB], blendFuncLUT[srcAlpha], blendFuncLUT[dstAlpha])
}

func (GLDriver) LoadProjection(m mgl32.Mat4) {
	gl.MatrixMode(gl.PROJECTION)
	gl.LoadMatrixf(&m[0])
	gl.MatrixMode(gl.MODELVIEW)
}

func (GLDriver) PushProjection(m mgl32.Mat4) {
	gl.MatrixMode(gl.PROJECTION)
	gl.PushMatrix()
	gl.LoadMatrixf(&m[0])
	gl.MatrixMode(gl.MODELVIEW)
}

func (GLDriver) PopProjection() {
	gl.MatrixMode(gl.PROJECTION)
	gl.PopMatrix()
	gl.MatrixMode(gl.MODELVIEW)
}

func (GLDriver) MaxTextureSize() int32 {
	var size int32
	gl.GetIntegerv(gl.MAX_TEXTURE_SIZE, &size)
	return size
}
