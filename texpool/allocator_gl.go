package texpool

import (
	"fmt"

	"github.com/go-gl/gl/v2.1/gl"
)

// GLAllocator allocates RGBA textures with nearest filtering.
type GLAllocator struct{}

func (GLAllocator) Allocate(width, height int32) (uint32, error) {
	var id uint32
	gl.GenTextures(1, &id)
	if id == 0 {
		return 0, fmt.Errorf("texpool: glGenTextures failed")
	}
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, width, height, 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	if code := gl.GetError(); code != gl.NO_ERROR {
		gl.DeleteTextures(1, &id)
		return 0, fmt.Errorf("texpool: allocating %dx%d: GL error 0x%x", width, height, code)
	}
	return id, nil
}

func (GLAllocator) Free(id uint32) {
	gl.DeleteTextures(1, &id)
}
