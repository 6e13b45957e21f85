package glstate

// Cell caches one piece of driver state. apply runs only when the value
// changes, except in Init.
type Cell[T comparable] struct {
	cur   T
	apply func(T)
	stack []T
}

func NewCell[T comparable](apply func(T)) *Cell[T] {
	return &Cell[T]{apply: apply}
}

// Init sets and applies v unconditionally.
func (c *Cell[T]) Init(v T) {
	c.cur = v
	c.apply(v)
}

func (c *Cell[T]) Get() T {
	return c.cur
}

// Set applies v if it differs from the cached value.
func (c *Cell[T]) Set(v T) {
	if v == c.cur {
		return
	}
	c.cur = v
	c.apply(v)
}

// PushSet saves the current value and sets v.
func (c *Cell[T]) PushSet(v T) {
	c.stack = append(c.stack, c.cur)
	c.Set(v)
}

// Pop restores the value saved by the matching PushSet. It panics when
// nothing was pushed.
func (c *Cell[T]) Pop() {
	n := len(c.stack) - 1
	if n < 0 {
		panic("glstate: Pop without PushSet")
	}
	v := c.stack[n]
	c.stack = c.stack[:n]
	c.Set(v)
}

// Depth returns the number of saved values.
func (c *Cell[T]) Depth() int {
	return len(c.stack)
}
