package glstate

import "github.com/go-gl/mathgl/mgl32"

// IntRect is an axis-aligned rectangle with its origin at the bottom left.
type IntRect struct {
	X, Y, W, H int32
}

func (r IntRect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Intersect returns the overlap of r and o. When they do not overlap, or
// either is empty, the result has zero width and height.
func (r IntRect) Intersect(o IntRect) IntRect {
	x, y := max(r.X, o.X), max(r.Y, o.Y)
	if r.Empty() || o.Empty() {
		return IntRect{X: x, Y: y}
	}
	w := min(r.X+r.W, o.X+o.W) - x
	h := min(r.Y+r.H, o.Y+o.H) - y
	if w <= 0 || h <= 0 {
		return IntRect{X: x, Y: y}
	}
	return IntRect{X: x, Y: y, W: w, H: h}
}

type BlendMode int

const (
	BlendNone = BlendMode(iota)
	BlendNormal
	BlendAddition
	BlendSubtraction
)

func (m BlendMode) String() string {
	switch m {
	case BlendNone:
		return "none"
	case BlendNormal:
		return "normal"
	case BlendAddition:
		return "addition"
	case BlendSubtraction:
		return "subtraction"
	}
	return "unknown"
}

type BlendFunc int

const (
	BlendOne = BlendFunc(iota)
	BlendZero
	BlendSrcAlpha
	BlendOneMinusSrcAlpha
)

type BlendEquation int

const (
	BlendAdd = BlendEquation(iota)
	BlendReverseSubtract
)

type Capability int

const (
	CapScissorTest = Capability(iota)
	CapTexture2D
)

// Driver issues rasterizer calls. GLDriver is the OpenGL implementation.
type Driver interface {
	ClearColor(c mgl32.Vec4)
	Scissor(r IntRect)
	Viewport(r IntRect)
	SetCapability(c Capability, enabled bool)
	BlendEquation(eq BlendEquation)
	BlendFunc(src, dst BlendFunc)
	BlendFuncSeparate(srcRGB, dstRGB, srcAlpha, dstAlpha BlendFunc)

	// LoadProjection replaces the projection matrix and leaves the
	// modelview matrix current.
	LoadProjection(m mgl32.Mat4)
	// PushProjection saves the projection matrix, then loads m.
	PushProjection(m mgl32.Mat4)
	PopProjection()

	MaxTextureSize() int32
}
