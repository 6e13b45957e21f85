// Package glstate caches fixed-function rasterizer state so redundant
// driver calls are skipped.
package glstate

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("rgss.glstate")

// Caps are driver limits queried once.
type Caps struct {
	MaxTexSize int32
}

// State is the render state of one GL context. It must only be used from
// the goroutine owning that context.
type State struct {
	drv  Driver
	caps Caps

	clearColor  *Cell[mgl32.Vec4]
	blendMode   *Cell[BlendMode]
	scissorTest *Cell[bool]
	scissorBox  *Cell[IntRect]
	texture2D   *Cell[bool]
	viewport    *Cell[IntRect]

	projection mgl32.Mat4
	projStack  []mgl32.Mat4
}

func New(drv Driver) *State {
	s := &State{
		drv:        drv,
		caps:       Caps{MaxTexSize: drv.MaxTextureSize()},
		projection: mgl32.Ident4(),
	}
	s.clearColor = NewCell(drv.ClearColor)
	s.blendMode = NewCell(s.applyBlendMode)
	s.scissorTest = NewCell(func(on bool) { drv.SetCapability(CapScissorTest, on) })
	s.scissorBox = NewCell(drv.Scissor)
	s.texture2D = NewCell(func(on bool) { drv.SetCapability(CapTexture2D, on) })
	s.viewport = NewCell(drv.Viewport)

	s.clearColor.Init(mgl32.Vec4{0, 0, 0, 1})
	s.blendMode.Init(BlendNormal)
	s.scissorTest.Init(false)
	s.scissorBox.Init(IntRect{0, 0, 640, 480})
	s.texture2D.Init(true)

	log.Debugf("max texture size %d", s.caps.MaxTexSize)
	return s
}

func (s *State) Caps() Caps { return s.caps }

func (s *State) ClearColor() mgl32.Vec4     { return s.clearColor.Get() }
func (s *State) SetClearColor(c mgl32.Vec4) { s.clearColor.Set(c) }
func (s *State) BlendMode() BlendMode       { return s.blendMode.Get() }
func (s *State) SetBlendMode(m BlendMode)   { s.blendMode.Set(m) }
func (s *State) ScissorTest() bool          { return s.scissorTest.Get() }
func (s *State) SetScissorTest(on bool)     { s.scissorTest.Set(on) }
func (s *State) ScissorBox() IntRect        { return s.scissorBox.Get() }
func (s *State) SetScissorBox(r IntRect)    { s.scissorBox.Set(r) }
func (s *State) Texture2D() bool            { return s.texture2D.Get() }
func (s *State) SetTexture2D(on bool)       { s.texture2D.Set(on) }
func (s *State) Viewport() IntRect          { return s.viewport.Get() }
func (s *State) Projection() mgl32.Mat4     { return s.projection }
func (s *State) ViewportDepth() int         { return len(s.projStack) }

// IntersectScissorBox narrows the scissor box to its overlap with r.
func (s *State) IntersectScissorBox(r IntRect) {
	s.scissorBox.Set(s.scissorBox.Get().Intersect(r))
}

func (s *State) applyBlendMode(m BlendMode) {
	switch m {
	case BlendNone:
		s.drv.BlendEquation(BlendAdd)
		s.drv.BlendFunc(BlendOne, BlendZero)
	case BlendNormal:
		s.drv.BlendEquation(BlendAdd)
		s.drv.BlendFuncSeparate(BlendSrcAlpha, BlendOneMinusSrcAlpha, BlendOne, BlendOneMinusSrcAlpha)
	case BlendAddition:
		s.drv.BlendEquation(BlendAdd)
		s.drv.BlendFuncSeparate(BlendSrcAlpha, BlendOne, BlendOne, BlendOne)
	case BlendSubtraction:
		// Alpha uses the addition factors; nobody has checked it against
		// the reference renderer.
		s.drv.BlendEquation(BlendReverseSubtract)
		s.drv.BlendFuncSeparate(BlendSrcAlpha, BlendOne, BlendOne, BlendOne)
	}
}

func ortho(w, h int32) mgl32.Mat4 {
	return mgl32.Ortho(0, float32(w), 0, float32(h), 0, 1)
}

// SetViewport sets the viewport to (0, 0, w, h) with a matching
// orthographic projection.
func (s *State) SetViewport(w, h int32) {
	s.viewport.Set(IntRect{0, 0, w, h})
	s.projection = ortho(w, h)
	s.drv.LoadProjection(s.projection)
}

// PushSetViewport is SetViewport that saves the previous viewport and
// projection for PopViewport.
func (s *State) PushSetViewport(w, h int32) {
	s.viewport.PushSet(IntRect{0, 0, w, h})
	s.projStack = append(s.projStack, s.projection)
	s.projection = ortho(w, h)
	s.drv.PushProjection(s.projection)
}

// PopViewport restores the viewport and projection saved by the matching
// PushSetViewport. It panics when nothing was pushed.
func (s *State) PopViewport() {
	n := len(s.projStack) - 1
	if n < 0 {
		panic("glstate: PopViewport without PushSetViewport")
	}
	s.viewport.Pop()
	s.projection = s.projStack[n]
	s.projStack = s.projStack[:n]
	s.drv.PopProjection()
}
