// Package texpool recycles GPU textures of equal size.
package texpool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("rgss.texpool")

var (
	// ErrDisabled is returned by Request once the pool is disabled.
	ErrDisabled = errors.New("texpool: disabled")
	// ErrTooLarge is returned for sizes above the driver's limit.
	ErrTooLarge = errors.New("texpool: texture exceeds maximum size")
)

// DefaultMaxPooled bounds how many released textures are kept.
const DefaultMaxPooled = 64

// Texture is a GPU texture handle and its size.
type Texture struct {
	ID     uint32
	Width  int32
	Height int32
}

// Allocator creates and frees textures. Calls happen on whichever
// goroutine calls Request, Release or Close, which must own the GL
// context.
type Allocator interface {
	Allocate(width, height int32) (uint32, error)
	Free(id uint32)
}

type size struct{ w, h int32 }

// Pool hands out textures, reusing released ones of the same size.
// Disable may be called from any goroutine; it only flips the pool into a
// mode where nothing is allocated or kept, and GL work is left to the
// goroutine owning the context.
type Pool struct {
	alloc      Allocator
	maxTexSize int32
	maxPooled  int

	mu       sync.Mutex
	free     map[size][]uint32
	pooled   int
	disabled bool
}

// New returns a pool. maxTexSize is the driver limit; zero disables the
// check.
func New(alloc Allocator, maxTexSize int32, maxPooled int) *Pool {
	if maxPooled <= 0 {
		maxPooled = DefaultMaxPooled
	}
	return &Pool{
		alloc:      alloc,
		maxTexSize: maxTexSize,
		maxPooled:  maxPooled,
		free:       make(map[size][]uint32),
	}
}

// Request returns a texture of the given size.
func (p *Pool) Request(width, height int32) (Texture, error) {
	if width <= 0 || height <= 0 {
		return Texture{}, fmt.Errorf("texpool: invalid size %dx%d", width, height)
	}
	if p.maxTexSize > 0 && (width > p.maxTexSize || height > p.maxTexSize) {
		return Texture{}, fmt.Errorf("%w: %dx%d > %d", ErrTooLarge, width, height, p.maxTexSize)
	}

	p.mu.Lock()
	if p.disabled {
		p.mu.Unlock()
		return Texture{}, ErrDisabled
	}
	key := size{width, height}
	if ids := p.free[key]; len(ids) > 0 {
		id := ids[len(ids)-1]
		p.free[key] = ids[:len(ids)-1]
		p.pooled--
		p.mu.Unlock()
		return Texture{ID: id, Width: width, Height: height}, nil
	}
	p.mu.Unlock()

	id, err := p.alloc.Allocate(width, height)
	if err != nil {
		return Texture{}, err
	}
	return Texture{ID: id, Width: width, Height: height}, nil
}

// Release hands tex back. While enabled and below the pool bound the
// texture is kept for reuse, otherwise it is freed.
func (p *Pool) Release(tex Texture) {
	p.mu.Lock()
	if p.disabled {
		stale := p.drain()
		p.mu.Unlock()
		p.freeAll(append(stale, tex.ID))
		return
	}
	if p.pooled >= p.maxPooled {
		p.mu.Unlock()
		p.alloc.Free(tex.ID)
		return
	}
	key := size{tex.Width, tex.Height}
	p.free[key] = append(p.free[key], tex.ID)
	p.pooled++
	p.mu.Unlock()
}

// Disable stops all further allocation and pooling.
func (p *Pool) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.disabled {
		log.Debugf("disabled with %d pooled textures", p.pooled)
	}
	p.disabled = true
}

// Disabled reports whether Disable was called.
func (p *Pool) Disabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disabled
}

// Pooled returns the number of textures held for reuse.
func (p *Pool) Pooled() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pooled
}

// Close frees every pooled texture.
func (p *Pool) Close() {
	p.mu.Lock()
	ids := p.drain()
	p.mu.Unlock()
	p.freeAll(ids)
}

// drain empties the pool. p.mu must be held.
func (p *Pool) drain() []uint32 {
	var ids []uint32
	for key, list := range p.free {
		ids = append(ids, list...)
		delete(p.free, key)
	}
	p.pooled = 0
	return ids
}

func (p *Pool) freeAll(ids []uint32) {
	for _, id := range ids {
		p.alloc.Free(id)
	}
}
