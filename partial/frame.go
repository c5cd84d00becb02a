package partial

import (
	"slices"
	"strconv"
	"unsafe"

	"github.com/wippyai/shapekit/shape"
)

// childSlot is the state of one child relative to its parent: not started,
// staged in the frame at the given index, or complete.
type childSlot int32

const (
	slotEmpty    childSlot = -1
	slotComplete childSlot = -2
)

func stagedSlot(idx Idx) childSlot {
	return childSlot(idx)
}

func (s childSlot) frame() (Idx, bool) {
	return Idx(s), s >= 0
}

type destKind uint8

const (
	destRoot     destKind = iota
	destField             // struct field or array element, in place
	destPointee           // option or pointer target
	destVariant           // enum case payload
	destListElem          // reserved list index
	destMapValue          // map value under an owned key
)

// dest records where a staged frame's value goes when it completes.
type dest struct {
	key      unsafe.Pointer // owned key copy for destMapValue
	keyShape *shape.Shape
	hash     uint64
	index    int
	kind     destKind
}

// Frame is one value under construction.
type Frame struct {
	shape *shape.Shape
	ptr   unsafe.Pointer
	label string
	dest  dest

	slots   []childSlot // struct fields, array elements
	pending map[int]Idx // list elements staged but not yet moved in
	entries []Idx       // map values staged but not yet inserted

	parent  Idx
	variant int       // selected enum case, -1 if none
	inner   childSlot // enum payload, option or pointer target

	init bool // the frame's own bytes hold a valid value
	owns bool // ptr came from the allocator and is freed with the frame
}

func (f *Frame) reset(s *shape.Shape, ptr unsafe.Pointer, parent Idx, d dest, label string, owns bool) {
	f.shape = s
	f.ptr = ptr
	f.parent = parent
	f.dest = d
	f.label = label
	f.owns = owns
	f.variant = -1
	f.inner = slotEmpty
	if s.Kind.IsAggregate() {
		n := s.ChildCount()
		f.slots = slices.Grow(f.slots[:0], n)[:n]
		for i := range f.slots {
			f.slots[i] = slotEmpty
		}
	}
}

// childShape returns the shape and address of static child i.
func (f *Frame) childShape(i int) (*shape.Shape, unsafe.Pointer, string) {
	if f.shape.Kind == shape.KindArray {
		return f.shape.Elem, f.shape.ElemPtr(f.ptr, i), "[" + strconv.Itoa(i) + "]"
	}
	fld := &f.shape.Fields[i]
	return fld.Shape, unsafe.Add(f.ptr, fld.Offset), fld.Name
}

func (f *Frame) allSlotsComplete() bool {
	for _, s := range f.slots {
		if s != slotComplete {
			return false
		}
	}
	return true
}

func (f *Frame) markWritten() {
	switch f.shape.Kind {
	case shape.KindStruct, shape.KindArray:
		for i := range f.slots {
			f.slots[i] = slotComplete
		}
	case shape.KindEnum:
		f.variant = f.shape.ActiveVariant(f.ptr)
		f.inner = slotComplete
	}
	f.init = true
}

// complete reports whether the frame's value is fully initialized.
// Collections are complete once initialized: they own their elements
// directly.
func (f *Frame) complete() bool {
	switch f.shape.Kind {
	case shape.KindStruct, shape.KindArray:
		return f.allSlotsComplete()
	case shape.KindEnum:
		return f.variant >= 0 && f.inner == slotComplete
	}
	return f.init
}

// stagedChildren lists frames attached below f in a stable order.
func (f *Frame) stagedChildren() []Idx {
	var out []Idx
	for _, s := range f.slots {
		if idx, ok := s.frame(); ok {
			out = append(out, idx)
		}
	}
	if idx, ok := f.inner.frame(); ok {
		out = append(out, idx)
	}
	if len(f.pending) > 0 {
		keys := make([]int, 0, len(f.pending))
		for k := range f.pending {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			out = append(out, f.pending[k])
		}
	}
	return append(out, f.entries...)
}

// unlink removes the parent's reference to a staged child.
func (f *Frame) unlink(child Idx, d dest) {
	switch d.kind {
	case destField:
		f.slots[d.index] = slotEmpty
	case destPointee, destVariant:
		f.inner = slotEmpty
	case destListElem:
		delete(f.pending, d.index)
	case destMapValue:
		f.entries = slices.DeleteFunc(f.entries, func(i Idx) bool { return i == child })
	}
}
