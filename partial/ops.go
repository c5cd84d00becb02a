package partial

import (
	"fmt"
	"reflect"
	"strconv"
	"unsafe"

	"github.com/wippyai/shapekit/errors"
	"github.com/wippyai/shapekit/shape"
)

// Set navigates path from the cursor and applies src at the destination.
// An empty path targets the cursor itself. Every segment but the last must
// address a struct field or array element; those intermediates are staged,
// or re-entered, and the cursor is left at the innermost one.
func (p *Partial) Set(path Path, src Source) error {
	return p.run("set", func() error {
		return p.set(path, src)
	})
}

// SetField is Set with a single named segment.
func (p *Partial) SetField(name string, src Source) error {
	return p.Set(Path{Named(name)}, src)
}

// Append adds an element to the list or set under the cursor. List elements
// may be staged; set elements may not.
func (p *Partial) Append(src Source) error {
	return p.run("append", func() error {
		return p.append(src)
	})
}

// Insert adds, replaces or re-enters the entry for key in the map under the
// cursor. Staged entries are found again by key equality.
func (p *Partial) Insert(key any, src Source) error {
	return p.run("insert", func() error {
		return p.insert(key, src)
	})
}

// End pops the cursor to its parent. In immediate mode the frame must be
// complete once optional fields are defaulted; it is then moved into its
// parent and released. In deferred mode the frame stays attached.
func (p *Partial) End() error {
	return p.run("end", p.end)
}

func (p *Partial) set(path Path, src Source) error {
	if len(path) > 0 && path[0].root {
		if err := p.toRoot(); err != nil {
			return err
		}
		path = path[1:]
	}
	if len(path) == 0 {
		return p.setSelf(p.cursor, src)
	}

	for _, seg := range path[:len(path)-1] {
		f := p.arena.get(p.cursor)
		if !f.shape.Kind.IsAggregate() {
			return p.fail(p.cursor, errors.KindInvalidPath).
				Detail("cannot cross %s mid-path; stage it first", f.shape.Kind).
				Build()
		}
		i, err := p.resolveSegment(p.cursor, seg)
		if err != nil {
			return err
		}
		if err := p.setChild(p.cursor, i, Stage()); err != nil {
			return err
		}
	}

	i, err := p.resolveSegment(p.cursor, path[len(path)-1])
	if err != nil {
		return err
	}
	return p.setChild(p.cursor, i, src)
}

func (p *Partial) toRoot() error {
	for p.cursor != p.root {
		if err := p.end(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Partial) resolveSegment(idx Idx, seg PathSegment) (int, error) {
	if seg.root {
		return 0, p.fail(idx, errors.KindInvalidPath).
			Detail("root segment must come first").
			Build()
	}
	if seg.name == "" {
		return seg.index, nil
	}

	s := p.arena.get(idx).shape
	var (
		i  int
		ok bool
	)
	switch s.Kind {
	case shape.KindStruct:
		i, ok = s.FieldIndex(seg.name)
	case shape.KindEnum:
		i, ok = s.VariantIndex(seg.name)
	}
	if !ok {
		return 0, p.fail(idx, errors.KindInvalidPath).
			Detail("%s has no child named %q", s.Kind, seg.name).
			Build()
	}
	return i, nil
}

func (p *Partial) setChild(idx Idx, i int, src Source) error {
	switch p.arena.get(idx).shape.Kind {
	case shape.KindStruct, shape.KindArray:
		return p.setSlot(idx, i, src)
	case shape.KindEnum:
		return p.setVariant(idx, i, src)
	case shape.KindList:
		return p.setElem(idx, i, src)
	}
	return p.fail(idx, errors.KindInvalidPath).
		Detail("%s has no index-addressable children", p.arena.get(idx).shape.Kind).
		Build()
}

// setSelf applies src to the cursor frame as a whole.
func (p *Partial) setSelf(idx Idx, src Source) error {
	f := p.arena.get(idx)

	if src.staging() {
		switch {
		case f.shape.Kind.IsCollection():
			if src.kind == srcRestage || !f.init {
				p.clear(idx)
				p.initCollection(f)
			}
			return nil

		case f.shape.Kind.IsIndirect():
			if child, ok := f.inner.frame(); ok && src.kind == srcStage {
				p.cursor = child
				return nil
			}
			if f.init && src.kind == srcStage {
				return p.fail(idx, errors.KindAlreadyComplete).
					Detail("value already present; use Restage to overwrite").
					Build()
			}
			p.clear(idx)
			elem := f.shape.Elem
			child := p.stage(idx, elem, p.alloc.Alloc(elem.GoType), dest{kind: destPointee}, "*", true)
			f.inner = stagedSlot(child)
			return nil
		}
		return p.fail(idx, errors.KindInvalidPath).
			Detail("cannot stage the %s under the cursor; address one of its children", f.shape.Kind).
			Build()
	}

	v, err := p.valueFor(p.framePath(idx), f.shape, src)
	if err != nil {
		return err
	}
	p.clear(idx)
	f.shape.ValueAt(f.ptr).Set(v)
	f.markWritten()
	return nil
}

func (p *Partial) setSlot(idx Idx, i int, src Source) error {
	f := p.arena.get(idx)
	if i < 0 || i >= len(f.slots) {
		return errors.OutOfBounds(errors.PhaseBuild, p.framePath(idx), i, len(f.slots))
	}
	cs, ptr, label := f.childShape(i)

	switch src.kind {
	case srcStage:
		if child, ok := f.slots[i].frame(); ok {
			p.cursor = child
			return nil
		}
		if f.slots[i] == slotComplete {
			return p.alreadyComplete(idx, label)
		}
		f.slots[i] = stagedSlot(p.stage(idx, cs, ptr, dest{kind: destField, index: i}, label, false))
		return nil
	case srcRestage:
		p.clearSlot(f, i)
		f.slots[i] = stagedSlot(p.stage(idx, cs, ptr, dest{kind: destField, index: i}, label, false))
		return nil
	}

	v, err := p.valueFor(p.childPath(idx, label), cs, src)
	if err != nil {
		return err
	}
	p.clearSlot(f, i)
	cs.ValueAt(ptr).Set(v)
	f.slots[i] = slotComplete
	return nil
}

func (p *Partial) clearSlot(f *Frame, i int) {
	switch s := f.slots[i]; s {
	case slotEmpty:
	case slotComplete:
		cs, ptr, _ := f.childShape(i)
		cs.Drop(ptr)
	default:
		child, _ := s.frame()
		p.discard(child)
	}
	f.slots[i] = slotEmpty
}

func (p *Partial) setVariant(idx Idx, i int, src Source) error {
	f := p.arena.get(idx)
	if i < 0 || i >= len(f.shape.Variants) {
		return errors.InvalidVariant(errors.PhaseBuild, p.framePath(idx), i, len(f.shape.Variants))
	}
	v := &f.shape.Variants[i]

	switch src.kind {
	case srcStage:
		if f.variant == i {
			if child, ok := f.inner.frame(); ok {
				p.cursor = child
				return nil
			}
			return p.alreadyComplete(idx, v.Name)
		}
		fallthrough
	case srcRestage:
		p.clearVariant(f)
		f.variant = i
		child := p.stage(idx, v.Shape, p.alloc.Alloc(v.Shape.GoType), dest{kind: destVariant, index: i}, v.Name, true)
		f.inner = stagedSlot(child)
		return nil
	}

	var payload reflect.Value
	if src.kind == srcImm && src.value.IsValid() && src.value.Type() == reflect.PointerTo(v.Shape.GoType) {
		if src.value.IsNil() {
			return errors.NilPointer(errors.PhaseBuild, p.childPath(idx, v.Name), src.value.Type().String())
		}
		payload = src.value
	} else {
		val, err := p.valueFor(p.childPath(idx, v.Name), v.Shape, src)
		if err != nil {
			return err
		}
		payload = reflect.New(v.Shape.GoType)
		payload.Elem().Set(val)
	}

	p.clearVariant(f)
	storePointer(unsafe.Add(f.ptr, v.Offset), payload.UnsafePointer())
	f.variant = i
	f.inner = slotComplete
	return nil
}

// clearVariant releases the active case, complete or staged.
func (p *Partial) clearVariant(f *Frame) {
	if f.variant < 0 {
		return
	}
	if child, ok := f.inner.frame(); ok {
		p.discard(child)
	} else if f.inner == slotComplete {
		v := &f.shape.Variants[f.variant]
		slot := unsafe.Add(f.ptr, v.Offset)
		if pp := loadPointer(slot); pp != nil {
			v.Shape.Drop(pp)
			storePointer(slot, nil)
		}
	}
	f.variant = -1
	f.inner = slotEmpty
}

func (p *Partial) setElem(idx Idx, i int, src Source) error {
	f := p.arena.get(idx)
	lv := f.shape.ValueAt(f.ptr)
	if i < 0 || i >= lv.Len() {
		return errors.OutOfBounds(errors.PhaseBuild, p.framePath(idx), i, lv.Len())
	}
	elem := f.shape.Elem
	label := "[" + strconv.Itoa(i) + "]"
	pending, isPending := f.pending[i]

	switch src.kind {
	case srcStage:
		if isPending {
			p.cursor = pending
			return nil
		}
		return p.alreadyComplete(idx, label)
	case srcRestage:
		p.clearElem(f, i)
		p.stageElem(idx, i)
		return nil
	}

	v, err := p.valueFor(p.childPath(idx, label), elem, src)
	if err != nil {
		return err
	}
	p.clearElem(f, i)
	f.shape.ValueAt(f.ptr).Index(i).Set(v)
	return nil
}

func (p *Partial) clearElem(f *Frame, i int) {
	if pending, ok := f.pending[i]; ok {
		p.discard(pending)
		return
	}
	f.shape.Elem.Drop(f.shape.ValueAt(f.ptr).Index(i).Addr().UnsafePointer())
}

// stageElem stages list element i in its own allocation. The element's
// position in the list holds a zero placeholder until the frame completes.
func (p *Partial) stageElem(idx Idx, i int) {
	f := p.arena.get(idx)
	elem := f.shape.Elem
	label := "[" + strconv.Itoa(i) + "]"
	child := p.stage(idx, elem, p.alloc.Alloc(elem.GoType), dest{kind: destListElem, index: i}, label, true)
	if f.pending == nil {
		f.pending = make(map[int]Idx)
	}
	f.pending[i] = child
}

func (p *Partial) append(src Source) error {
	idx := p.cursor
	f := p.arena.get(idx)

	switch f.shape.Kind {
	case shape.KindList:
		n := 0
		if f.init {
			n = f.shape.ValueAt(f.ptr).Len()
		}
		elem := f.shape.Elem

		var v reflect.Value
		if src.staging() {
			v = reflect.Zero(elem.GoType)
		} else {
			var err error
			if v, err = p.valueFor(p.childPath(idx, "["+strconv.Itoa(n)+"]"), elem, src); err != nil {
				return err
			}
		}

		p.ensureInit(f)
		lv := f.shape.ValueAt(f.ptr)
		lv.Set(reflect.Append(lv, v))
		if src.staging() {
			p.stageElem(idx, n)
		}
		return nil

	case shape.KindSet:
		if src.staging() {
			return p.fail(idx, errors.KindUnsupportedReentry).
				Detail("set elements have no identity until inserted and cannot be staged").
				Build()
		}
		v, err := p.valueFor(p.childPath(idx, "[]"), f.shape.Elem, src)
		if err != nil {
			return err
		}
		p.ensureInit(f)
		m := f.shape.ValueAt(f.ptr)
		if m.MapIndex(v).IsValid() {
			if p.opts.DuplicateKeys == DuplicateKeysError {
				return p.fail(idx, errors.KindDuplicateKey).
					Value(v.Interface()).
					Detail("set already contains %v", v).
					Build()
			}
			// an equal member is already present; the new one is released
			f.shape.Elem.Drop(addressable(v))
			return nil
		}
		m.SetMapIndex(v, reflect.Zero(f.shape.GoType.Elem()))
		return nil
	}

	return p.fail(idx, errors.KindUnsupported).
		Detail("append requires a list or set, cursor is %s", f.shape.Kind).
		Build()
}

func (p *Partial) insert(key any, src Source) error {
	idx := p.cursor
	f := p.arena.get(idx)
	if f.shape.Kind != shape.KindMap {
		return p.fail(idx, errors.KindUnsupported).
			Detail("insert requires a map, cursor is %s", f.shape.Kind).
			Build()
	}

	ks := f.shape.Key
	kv := reflect.ValueOf(key)
	label := fmt.Sprintf("[%v]", key)
	if !kv.IsValid() || kv.Type() != ks.GoType {
		goType := "nil"
		if kv.IsValid() {
			goType = kv.Type().String()
		}
		return errors.TypeMismatch(errors.PhaseBuild, p.childPath(idx, label), goType, ks.String())
	}

	var v reflect.Value
	if !src.staging() {
		var err error
		if v, err = p.valueFor(p.childPath(idx, label), f.shape.Elem, src); err != nil {
			return err
		}
	}

	p.ensureInit(f)
	m := f.shape.ValueAt(f.ptr)

	kp := reflect.New(ks.GoType)
	kp.Elem().Set(kv)
	var hash uint64
	if ks.VTable.Hash != nil {
		hash = ks.VTable.Hash(kp.UnsafePointer())
	}

	existing := m.MapIndex(kv).IsValid()
	if pending := p.findEntry(f, kp.UnsafePointer(), hash); pending != noFrame {
		if src.kind == srcStage {
			ks.Drop(kp.UnsafePointer())
			p.cursor = pending
			return nil
		}
		if src.kind != srcRestage && p.opts.DuplicateKeys == DuplicateKeysError {
			return p.fail(idx, errors.KindDuplicateKey).
				Path(p.childPath(idx, label)...).
				Value(key).
				Detail("key is already staged; use Restage to replace it").
				Build()
		}
		p.discard(pending)
	} else if existing {
		if src.kind == srcStage {
			return p.alreadyComplete(idx, label)
		}
		if !src.staging() && p.opts.DuplicateKeys == DuplicateKeysError {
			return p.fail(idx, errors.KindDuplicateKey).
				Path(p.childPath(idx, label)...).
				Value(key).
				Detail("key already present").
				Build()
		}
		f.shape.Elem.Drop(addressable(m.MapIndex(kv)))
		if src.staging() {
			// the entry leaves the map; its stored key goes with it
			stored := storedKey(m, kv)
			m.SetMapIndex(kv, reflect.Value{})
			ks.Drop(addressable(stored))
		}
	}

	if src.staging() {
		d := dest{kind: destMapValue, key: kp.UnsafePointer(), keyShape: ks, hash: hash}
		child := p.stage(idx, f.shape.Elem, p.alloc.Alloc(f.shape.Elem.GoType), d, label, true)
		f.entries = append(f.entries, child)
		return nil
	}

	m.SetMapIndex(kp.Elem(), v)
	if existing {
		// the map keeps one of two equal keys; release the other
		ks.Drop(kp.UnsafePointer())
	}
	return nil
}

// storedKey returns a copy of the key the map holds for kv, which may differ
// from kv in contents Go equality ignores.
func storedKey(m, kv reflect.Value) reflect.Value {
	iter := m.MapRange()
	for iter.Next() {
		if k := iter.Key(); k.Equal(kv) {
			return k
		}
	}
	return kv
}

// findEntry looks up a staged map value by key using the key shape's hash
// and equality operations.
func (p *Partial) findEntry(f *Frame, key unsafe.Pointer, hash uint64) Idx {
	ks := f.shape.Key
	for _, e := range f.entries {
		ef := p.arena.get(e)
		if ef.dest.hash != hash {
			continue
		}
		if ks.VTable.Equal != nil {
			if ks.VTable.Equal(ef.dest.key, key) {
				return e
			}
			continue
		}
		if ks.ValueAt(ef.dest.key).Equal(ks.ValueAt(key)) {
			return e
		}
	}
	return noFrame
}

func (p *Partial) alreadyComplete(idx Idx, label string) error {
	return p.fail(idx, errors.KindAlreadyComplete).
		Path(p.childPath(idx, label)...).
		Detail("already complete; use Restage to overwrite").
		Build()
}

// stage allocates a child frame below parent and moves the cursor to it.
// Collections start out as empty, initialized values.
func (p *Partial) stage(parent Idx, s *shape.Shape, ptr unsafe.Pointer, d dest, label string, owns bool) Idx {
	idx, f := p.arena.alloc()
	f.reset(s, ptr, parent, d, label, owns)
	if s.Kind.IsCollection() {
		p.initCollection(f)
	}
	p.cursor = idx
	return idx
}

func (p *Partial) initCollection(f *Frame) {
	f.shape.VTable.Default(f.ptr)
	f.init = true
}

func (p *Partial) ensureInit(f *Frame) {
	if !f.init {
		p.initCollection(f)
	}
}

func loadPointer(p unsafe.Pointer) unsafe.Pointer {
	return *(*unsafe.Pointer)(p)
}

func storePointer(p, v unsafe.Pointer) {
	*(*unsafe.Pointer)(p) = v
}
