package partial

import (
	"fmt"
	"sync"
)

// Idx is a handle to a frame in the arena.
type Idx int32

const noFrame Idx = -1

var framePool = sync.Pool{
	New: func() any {
		return &Frame{}
	},
}

const maxPooledSlots = 64

// arena owns frame storage. Released indices go on a free list and are
// handed out again by alloc. The only long-lived reference to a child index
// is its parent's childSlot, which is overwritten before the index is
// released, so reuse needs no generation counter.
type arena struct {
	frames []*Frame
	free   []Idx
	live   int
}

func (a *arena) alloc() (Idx, *Frame) {
	f := framePool.Get().(*Frame)
	a.live++
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.frames[idx] = f
		return idx, f
	}
	a.frames = append(a.frames, f)
	return Idx(len(a.frames) - 1), f
}

func (a *arena) get(idx Idx) *Frame {
	if idx < 0 || int(idx) >= len(a.frames) || a.frames[idx] == nil {
		panic(fmt.Sprintf("partial: frame index %d out of range", idx))
	}
	return a.frames[idx]
}

func (a *arena) release(idx Idx) {
	f := a.get(idx)
	a.frames[idx] = nil
	a.free = append(a.free, idx)
	a.live--

	slots := f.slots
	*f = Frame{}
	if cap(slots) <= maxPooledSlots {
		f.slots = slots[:0]
	}
	framePool.Put(f)
}
