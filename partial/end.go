package partial

import (
	"reflect"
	"unsafe"

	"github.com/wippyai/shapekit/errors"
	"github.com/wippyai/shapekit/shape"
)

func (p *Partial) end() error {
	idx := p.cursor
	if idx == p.root {
		return p.fail(idx, errors.KindPopAtRoot).
			Detail("cursor is at the root").
			Build()
	}

	if p.mode == Deferred {
		if idx != p.boundary {
			p.cursor = p.arena.get(idx).parent
			return nil
		}
		// leaving the deferred region validates it
		if err := p.finishDeferred(errors.PhaseBuild); err != nil {
			return err
		}
	}

	f := p.arena.get(idx)
	p.fillDefaults(f)
	if err := p.checkComplete(idx, errors.PhaseBuild); err != nil {
		return err
	}
	parent := f.parent
	p.attach(idx)
	p.cursor = parent
	return nil
}

// fillDefaults writes defaults for optional struct fields left unset and
// marks an untouched option absent.
func (p *Partial) fillDefaults(f *Frame) {
	if p.opts.NoImplicitDefaults {
		return
	}
	switch f.shape.Kind {
	case shape.KindStruct:
		for i, s := range f.slots {
			fld := &f.shape.Fields[i]
			if s != slotEmpty || !fld.Optional || fld.Shape.VTable.Default == nil {
				continue
			}
			fld.Shape.VTable.Default(unsafe.Add(f.ptr, fld.Offset))
			f.slots[i] = slotComplete
		}
	case shape.KindOption:
		if !f.init && f.inner == slotEmpty {
			storePointer(f.ptr, nil)
			f.init = true
		}
	}
}

// checkComplete reports the first missing piece of the frame. Missing
// struct fields are KindFieldMissing during finalization and
// KindIncomplete at End.
func (p *Partial) checkComplete(idx Idx, phase errors.Phase) error {
	f := p.arena.get(idx)
	if f.complete() {
		return nil
	}

	at := p.framePath(idx)
	incomplete := func(format string, args ...any) error {
		return errors.New(phase, errors.KindIncomplete).
			Path(at...).
			Shape(f.shape.String()).
			Detail(format, args...).
			Build()
	}

	switch f.shape.Kind {
	case shape.KindStruct:
		for i, s := range f.slots {
			if s == slotComplete {
				continue
			}
			name := f.shape.Fields[i].Name
			if _, staged := s.frame(); staged {
				return incomplete("field %q is still in progress", name)
			}
			if phase == errors.PhaseFinalize {
				return errors.FieldMissing(phase, at, name)
			}
			return incomplete("field %q not set", name)
		}
	case shape.KindArray:
		for i, s := range f.slots {
			if s == slotComplete {
				continue
			}
			if _, staged := s.frame(); staged {
				return incomplete("element %d is still in progress", i)
			}
			return incomplete("element %d not set", i)
		}
	case shape.KindEnum:
		if f.variant < 0 {
			return incomplete("no enum case selected")
		}
		return incomplete("case %q is still in progress", f.shape.Variants[f.variant].Name)
	}
	return incomplete("value not set")
}

// attach moves a complete frame's value into its destination, marks the
// parent's slot complete and releases the frame.
func (p *Partial) attach(idx Idx) {
	f := p.arena.get(idx)
	parent := p.arena.get(f.parent)

	switch f.dest.kind {
	case destField:
		parent.slots[f.dest.index] = slotComplete
	case destPointee:
		storePointer(parent.ptr, moveToHeap(f))
		parent.inner = slotComplete
		parent.init = true
	case destVariant:
		v := &parent.shape.Variants[f.dest.index]
		storePointer(unsafe.Add(parent.ptr, v.Offset), moveToHeap(f))
		parent.inner = slotComplete
	case destListElem:
		parent.shape.ValueAt(parent.ptr).Index(f.dest.index).Set(f.shape.ValueAt(f.ptr))
		parent.unlink(idx, f.dest)
	case destMapValue:
		m := parent.shape.ValueAt(parent.ptr)
		m.SetMapIndex(f.dest.keyShape.ValueAt(f.dest.key), f.shape.ValueAt(f.ptr))
		parent.unlink(idx, f.dest)
	}

	if f.owns {
		p.alloc.Free(f.shape.GoType, f.ptr)
	}
	p.arena.release(idx)
}

// moveToHeap copies a staged value into a fresh Go allocation that the
// finished value can point to.
func moveToHeap(f *Frame) unsafe.Pointer {
	h := reflect.New(f.shape.GoType)
	h.Elem().Set(f.shape.ValueAt(f.ptr))
	return h.UnsafePointer()
}
