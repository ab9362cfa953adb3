package core

// Swapper is anything that flips its current/previous cursor once per frame.
type Swapper interface {
	Swap()
}

// Flip holds the two physical copies of a double-buffered resource. Current is this
// frame's write target, Previous holds last frame's result for temporal blending.
type Flip[T any] struct {
	slots  [2]T
	cursor int
}

func NewFlip[T any](a, b T) *Flip[T] {
	return &Flip[T]{slots: [2]T{a, b}}
}

func (f *Flip[T]) Current() T {
	return f.slots[f.cursor]
}

func (f *Flip[T]) Previous() T {
	return f.slots[1-f.cursor]
}

// SetCurrent replaces the current slot, e.g. after a buffer was recreated.
func (f *Flip[T]) SetCurrent(v T) {
	f.slots[f.cursor] = v
}

func (f *Flip[T]) SetPrevious(v T) {
	f.slots[1-f.cursor] = v
}

func (f *Flip[T]) Swap() {
	f.cursor = 1 - f.cursor
}

// Cursor is the index of the current slot, 0 or 1.
func (f *Flip[T]) Cursor() int {
	return f.cursor
}
