package memory

import "errors"

// Handle indexes a slot inside a Pool. Handles stay valid for the
// lifetime of the pool, across Release and Reset.
type Handle uint32

// None is the null handle. No valid slot ever carries this index.
const None Handle = ^Handle(0)

// ErrExhausted is returned by Acquire when every slot is in use.
var ErrExhausted = errors.New("memory: pool exhausted")

// Pool is a fixed-capacity arena of T slots plus a free stack.
// Acquire and Release are O(1) and never allocate. Slot addresses
// never move, so intrusive structures may hold handles (or pointers
// derived from At) indefinitely.
type Pool[T any] struct {
	slots []T
	free  []Handle
}

// NewPool builds an arena of exactly capacity slots, all free.
func NewPool[T any](capacity int) *Pool[T] {
	if capacity <= 0 {
		panic("memory: pool capacity must be positive")
	}
	p := &Pool[T]{
		slots: make([]T, capacity),
		free:  make([]Handle, 0, capacity),
	}
	p.rebuildFree()
	return p
}

// Acquire pops a free slot. The slot keeps whatever the previous
// occupant left behind; callers must set every field they rely on.
func (p *Pool[T]) Acquire() (Handle, *T, error) {
	n := len(p.free)
	if n == 0 {
		return None, nil, ErrExhausted
	}
	h := p.free[n-1]
	p.free = p.free[:n-1]
	return h, &p.slots[h], nil
}

// Release returns a slot to the free stack. The handle must have come
// from Acquire on this pool and must not be live anywhere else.
func (p *Pool[T]) Release(h Handle) {
	if int(h) >= len(p.slots) {
		panic("memory: release of foreign handle")
	}
	if len(p.free) == cap(p.free) {
		panic("memory: free stack overflow (double release?)")
	}
	p.free = append(p.free, h)
}

// At resolves a handle to its slot. The pointer is stable but shares
// the slot's lifecycle: it must not be used after Release.
func (p *Pool[T]) At(h Handle) *T {
	return &p.slots[h]
}

// Reset zeroes every slot and rebuilds the free stack, dropping all
// outstanding handles.
func (p *Pool[T]) Reset() {
	var zero T
	for i := range p.slots {
		p.slots[i] = zero
	}
	p.rebuildFree()
}

// Cap reports the total number of slots.
func (p *Pool[T]) Cap() int { return len(p.slots) }

// Free reports how many slots are currently available.
func (p *Pool[T]) Free() int { return len(p.free) }

// Live reports how many slots are currently acquired.
func (p *Pool[T]) Live() int { return len(p.slots) - len(p.free) }

// rebuildFree pushes handles high to low so Acquire hands out slot 0
// first. Nothing depends on that order; it just keeps tests readable.
func (p *Pool[T]) rebuildFree() {
	p.free = p.free[:0]
	for i := len(p.slots) - 1; i >= 0; i-- {
		p.free = append(p.free, Handle(i))
	}
}
