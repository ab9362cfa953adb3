package core

type arenaSlot[T any] struct {
	value      T
	generation uint32
	live       bool
}

// Arena stores values in stable slots addressed by generational handles. A removed
// slot bumps its generation, so handles issued before the removal stop resolving.
type Arena[T any] struct {
	slots []arenaSlot[T]
	free  []uint32
	live  int
}

func NewArena[T any](capacityHint int) *Arena[T] {
	return &Arena[T]{
		slots: make([]arenaSlot[T], 0, capacityHint),
	}
}

func (a *Arena[T]) Insert(v T) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, arenaSlot[T]{})
	}
	s := &a.slots[idx]
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	s.value = v
	s.live = true
	a.live++
	return Handle{Index: idx, Generation: s.generation}
}

// Get returns a pointer into the arena; it stays valid until the next Insert.
func (a *Arena[T]) Get(h Handle) (*T, bool) {
	if !a.Contains(h) {
		return nil, false
	}
	return &a.slots[h.Index].value, true
}

func (a *Arena[T]) Contains(h Handle) bool {
	if !h.IsValid() || int(h.Index) >= len(a.slots) {
		return false
	}
	s := &a.slots[h.Index]
	return s.live && s.generation == h.Generation
}

func (a *Arena[T]) Remove(h Handle) bool {
	if !a.Contains(h) {
		return false
	}
	s := &a.slots[h.Index]
	var zero T
	s.value = zero
	s.live = false
	a.free = append(a.free, h.Index)
	a.live--
	return true
}

func (a *Arena[T]) Len() int {
	return a.live
}

// Each visits live slots in index order until fn returns false.
func (a *Arena[T]) Each(fn func(h Handle, v *T) bool) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.live {
			continue
		}
		if !fn(Handle{Index: uint32(i), Generation: s.generation}, &s.value) {
			return
		}
	}
}

// Cap is one past the highest slot index ever issued.
func (a *Arena[T]) Cap() int {
	return len(a.slots)
}
