package partial

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/shapekit/shape"
)

// poison releases every value reachable from the root and makes the
// builder permanently unusable.
func (p *Partial) poison(cause error) {
	if p.poisoned != nil {
		return
	}
	released := 0
	if p.root != noFrame {
		released = p.teardown(p.root)
	}
	p.poisoned = cause
	p.root, p.cursor, p.boundary = noFrame, noFrame, noFrame

	Logger().Debug("builder poisoned",
		zap.Stringer("shape", p.shape),
		zap.Int("frames_released", released),
		zap.Error(cause))
}

// teardown releases a frame and everything staged below it, children
// first. Parent references are left as they are; callers that keep the
// parent alive use discard.
func (p *Partial) teardown(idx Idx) int {
	f := p.arena.get(idx)
	n := 1
	for _, child := range f.stagedChildren() {
		n += p.teardown(child)
	}
	p.dropContents(f)
	if f.dest.kind == destMapValue {
		f.dest.keyShape.Drop(f.dest.key)
	}
	if f.owns {
		p.alloc.Free(f.shape.GoType, f.ptr)
	}
	p.arena.release(idx)
	return n
}

// discard tears down a staged child and unlinks it from its parent.
func (p *Partial) discard(idx Idx) {
	f := p.arena.get(idx)
	parent, d := f.parent, f.dest
	p.teardown(idx)
	p.arena.get(parent).unlink(idx, d)
}

// clear releases the frame's value and everything staged below it, leaving
// the frame empty.
func (p *Partial) clear(idx Idx) {
	f := p.arena.get(idx)
	for _, child := range f.stagedChildren() {
		p.teardown(child)
	}
	p.dropContents(f)
}

// dropContents releases the initialized parts the frame tracks. Staged
// children must already be torn down.
func (p *Partial) dropContents(f *Frame) {
	switch f.shape.Kind {
	case shape.KindStruct, shape.KindArray:
		if len(f.slots) > 0 && f.allSlotsComplete() {
			f.shape.Drop(f.ptr)
		} else {
			for i, s := range f.slots {
				if s == slotComplete {
					cs, ptr, _ := f.childShape(i)
					cs.Drop(ptr)
				}
			}
		}
		for i := range f.slots {
			f.slots[i] = slotEmpty
		}

	case shape.KindEnum:
		if f.variant >= 0 && f.inner == slotComplete {
			v := &f.shape.Variants[f.variant]
			slot := unsafe.Add(f.ptr, v.Offset)
			if pp := loadPointer(slot); pp != nil {
				v.Shape.Drop(pp)
				storePointer(slot, nil)
			}
		}

	case shape.KindList:
		if f.init {
			lv := f.shape.ValueAt(f.ptr)
			for i := 0; i < lv.Len(); i++ {
				if _, placeholder := f.pending[i]; placeholder {
					continue
				}
				f.shape.Elem.Drop(lv.Index(i).Addr().UnsafePointer())
			}
			lv.SetZero()
		}

	default:
		if f.init {
			f.shape.Drop(f.ptr)
		}
	}

	f.init = false
	f.variant = -1
	f.inner = slotEmpty
	f.pending = nil
	f.entries = nil
}
