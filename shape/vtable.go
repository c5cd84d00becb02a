package shape

import (
	"reflect"
	"unsafe"
)

// VTable is the per-shape operation table. Every function works on raw
// memory laid out as the shape's Go type. A nil entry means the shape does
// not support the operation.
type VTable struct {
	// Drop releases the value at ptr and leaves the memory zeroed.
	Drop func(ptr unsafe.Pointer)
	// Default writes the default value into uninitialized memory at ptr.
	Default func(ptr unsafe.Pointer)
	// Clone writes a deep copy of src into uninitialized memory at dst.
	Clone func(dst, src unsafe.Pointer)
	// Equal reports structural equality.
	Equal func(a, b unsafe.Pointer) bool
	// Hash is consistent with Equal.
	Hash func(ptr unsafe.Pointer) uint64
}

// merge returns vt with every non-nil entry of o installed over it.
func (vt VTable) merge(o VTable) VTable {
	if o.Drop != nil {
		vt.Drop = o.Drop
	}
	if o.Default != nil {
		vt.Default = o.Default
	}
	if o.Clone != nil {
		vt.Clone = o.Clone
	}
	if o.Equal != nil {
		vt.Equal = o.Equal
	}
	if o.Hash != nil {
		vt.Hash = o.Hash
	}
	return vt
}

// Drop releases the value at ptr through the shape's table.
func (s *Shape) Drop(ptr unsafe.Pointer) {
	if s.VTable.Drop != nil {
		s.VTable.Drop(ptr)
		return
	}
	s.ValueAt(ptr).SetZero()
}

// pointeeAt reads a pointer-typed slot.
func pointeeAt(p unsafe.Pointer) unsafe.Pointer {
	return *(*unsafe.Pointer)(p)
}

func storePointee(p, v unsafe.Pointer) {
	*(*unsafe.Pointer)(p) = v
}

// addressable copies v into fresh memory so table functions can address it.
func addressable(v reflect.Value) unsafe.Pointer {
	tmp := reflect.New(v.Type())
	tmp.Elem().Set(v)
	return tmp.UnsafePointer()
}

// defaultVTable builds the table for a fully compiled shape. Child tables
// are read at call time, so overrides installed on children take effect and
// recursive shapes resolve once compilation finishes.
func defaultVTable(s *Shape) VTable {
	return VTable{
		Drop:    dropFn(s),
		Default: defaultFn(s),
		Clone:   cloneFn(s),
		Equal:   equalFn(s),
		Hash:    hashFn(s),
	}
}

func dropFn(s *Shape) func(unsafe.Pointer) {
	switch s.Kind {
	case KindStruct:
		return func(p unsafe.Pointer) {
			for i := range s.Fields {
				f := &s.Fields[i]
				f.Shape.Drop(unsafe.Add(p, f.Offset))
			}
			s.ValueAt(p).SetZero()
		}
	case KindArray:
		return func(p unsafe.Pointer) {
			for i := 0; i < s.Len; i++ {
				s.Elem.Drop(s.ElemPtr(p, i))
			}
		}
	case KindEnum:
		return func(p unsafe.Pointer) {
			for i := range s.Variants {
				v := &s.Variants[i]
				slot := unsafe.Add(p, v.Offset)
				if pp := pointeeAt(slot); pp != nil {
					v.Shape.Drop(pp)
					storePointee(slot, nil)
				}
			}
		}
	case KindOption, KindPointer:
		return func(p unsafe.Pointer) {
			if pp := pointeeAt(p); pp != nil {
				s.Elem.Drop(pp)
				storePointee(p, nil)
			}
		}
	case KindList:
		return func(p unsafe.Pointer) {
			v := s.ValueAt(p)
			for i := 0; i < v.Len(); i++ {
				s.Elem.Drop(v.Index(i).Addr().UnsafePointer())
			}
			v.SetZero()
		}
	case KindMap:
		return func(p unsafe.Pointer) {
			v := s.ValueAt(p)
			iter := v.MapRange()
			for iter.Next() {
				s.Key.Drop(addressable(iter.Key()))
				s.Elem.Drop(addressable(iter.Value()))
			}
			v.SetZero()
		}
	case KindSet:
		return func(p unsafe.Pointer) {
			v := s.ValueAt(p)
			iter := v.MapRange()
			for iter.Next() {
				s.Elem.Drop(addressable(iter.Key()))
			}
			v.SetZero()
		}
	default:
		return func(p unsafe.Pointer) {
			s.ValueAt(p).SetZero()
		}
	}
}

func defaultFn(s *Shape) func(unsafe.Pointer) {
	switch s.Kind {
	case KindStruct:
		for i := range s.Fields {
			if s.Fields[i].Shape.VTable.Default == nil {
				return nil
			}
		}
		return func(p unsafe.Pointer) {
			s.ValueAt(p).SetZero()
			for i := range s.Fields {
				f := &s.Fields[i]
				f.Shape.VTable.Default(unsafe.Add(p, f.Offset))
			}
		}
	case KindArray:
		if s.Elem.VTable.Default == nil {
			return nil
		}
		return func(p unsafe.Pointer) {
			for i := 0; i < s.Len; i++ {
				s.Elem.VTable.Default(s.ElemPtr(p, i))
			}
		}
	case KindEnum:
		if s.DefaultVariant < 0 {
			return nil
		}
		v := &s.Variants[s.DefaultVariant]
		if v.Shape.VTable.Default == nil {
			return nil
		}
		return func(p unsafe.Pointer) {
			s.ValueAt(p).SetZero()
			h := reflect.New(v.Shape.GoType)
			v.Shape.VTable.Default(h.UnsafePointer())
			storePointee(unsafe.Add(p, v.Offset), h.UnsafePointer())
		}
	case KindOption:
		return func(p unsafe.Pointer) {
			storePointee(p, nil)
		}
	case KindPointer:
		if s.Elem.VTable.Default == nil {
			return nil
		}
		return func(p unsafe.Pointer) {
			h := reflect.New(s.Elem.GoType)
			s.Elem.VTable.Default(h.UnsafePointer())
			storePointee(p, h.UnsafePointer())
		}
	case KindList:
		return func(p unsafe.Pointer) {
			s.ValueAt(p).Set(reflect.MakeSlice(s.GoType, 0, 0))
		}
	case KindMap, KindSet:
		return func(p unsafe.Pointer) {
			s.ValueAt(p).Set(reflect.MakeMap(s.GoType))
		}
	default:
		return func(p unsafe.Pointer) {
			s.ValueAt(p).SetZero()
		}
	}
}

func cloneFn(s *Shape) func(dst, src unsafe.Pointer) {
	switch s.Kind {
	case KindStruct:
		return func(dst, src unsafe.Pointer) {
			s.ValueAt(dst).Set(s.ValueAt(src))
			for i := range s.Fields {
				f := &s.Fields[i]
				f.Shape.VTable.Clone(unsafe.Add(dst, f.Offset), unsafe.Add(src, f.Offset))
			}
		}
	case KindArray:
		return func(dst, src unsafe.Pointer) {
			for i := 0; i < s.Len; i++ {
				s.Elem.VTable.Clone(s.ElemPtr(dst, i), s.ElemPtr(src, i))
			}
		}
	case KindEnum:
		return func(dst, src unsafe.Pointer) {
			s.ValueAt(dst).SetZero()
			i := s.ActiveVariant(src)
			if i < 0 {
				return
			}
			v := &s.Variants[i]
			h := reflect.New(v.Shape.GoType)
			v.Shape.VTable.Clone(h.UnsafePointer(), pointeeAt(unsafe.Add(src, v.Offset)))
			storePointee(unsafe.Add(dst, v.Offset), h.UnsafePointer())
		}
	case KindOption, KindPointer:
		return func(dst, src unsafe.Pointer) {
			pp := pointeeAt(src)
			if pp == nil {
				storePointee(dst, nil)
				return
			}
			h := reflect.New(s.Elem.GoType)
			s.Elem.VTable.Clone(h.UnsafePointer(), pp)
			storePointee(dst, h.UnsafePointer())
		}
	case KindList:
		return func(dst, src unsafe.Pointer) {
			sv := s.ValueAt(src)
			dv := s.ValueAt(dst)
			if sv.IsNil() {
				dv.SetZero()
				return
			}
			n := sv.Len()
			out := reflect.MakeSlice(s.GoType, n, n)
			for i := 0; i < n; i++ {
				s.Elem.VTable.Clone(out.Index(i).Addr().UnsafePointer(), sv.Index(i).Addr().UnsafePointer())
			}
			dv.Set(out)
		}
	case KindMap, KindSet:
		keyShape, valShape := s.Key, s.Elem
		if s.Kind == KindSet {
			keyShape, valShape = s.Elem, nil
		}
		return func(dst, src unsafe.Pointer) {
			sv := s.ValueAt(src)
			dv := s.ValueAt(dst)
			if sv.IsNil() {
				dv.SetZero()
				return
			}
			out := reflect.MakeMapWithSize(s.GoType, sv.Len())
			iter := sv.MapRange()
			for iter.Next() {
				k := reflect.New(keyShape.GoType)
				keyShape.VTable.Clone(k.UnsafePointer(), addressable(iter.Key()))
				val := reflect.New(s.GoType.Elem())
				if valShape != nil {
					valShape.VTable.Clone(val.UnsafePointer(), addressable(iter.Value()))
				}
				out.SetMapIndex(k.Elem(), val.Elem())
			}
			dv.Set(out)
		}
	default:
		return func(dst, src unsafe.Pointer) {
			s.ValueAt(dst).Set(s.ValueAt(src))
		}
	}
}

func equalFn(s *Shape) func(a, b unsafe.Pointer) bool {
	switch s.Kind {
	case KindStruct:
		for i := range s.Fields {
			if s.Fields[i].Shape.VTable.Equal == nil {
				return nil
			}
		}
		return func(a, b unsafe.Pointer) bool {
			for i := range s.Fields {
				f := &s.Fields[i]
				if !f.Shape.VTable.Equal(unsafe.Add(a, f.Offset), unsafe.Add(b, f.Offset)) {
					return false
				}
			}
			return true
		}
	case KindArray:
		if s.Elem.VTable.Equal == nil {
			return nil
		}
		return func(a, b unsafe.Pointer) bool {
			for i := 0; i < s.Len; i++ {
				if !s.Elem.VTable.Equal(s.ElemPtr(a, i), s.ElemPtr(b, i)) {
					return false
				}
			}
			return true
		}
	case KindEnum:
		for i := range s.Variants {
			if s.Variants[i].Shape.VTable.Equal == nil {
				return nil
			}
		}
		return func(a, b unsafe.Pointer) bool {
			i := s.ActiveVariant(a)
			if i != s.ActiveVariant(b) {
				return false
			}
			if i < 0 {
				return true
			}
			v := &s.Variants[i]
			return v.Shape.VTable.Equal(pointeeAt(unsafe.Add(a, v.Offset)), pointeeAt(unsafe.Add(b, v.Offset)))
		}
	case KindOption, KindPointer:
		if s.Elem.VTable.Equal == nil {
			return nil
		}
		return func(a, b unsafe.Pointer) bool {
			pa, pb := pointeeAt(a), pointeeAt(b)
			if pa == nil || pb == nil {
				return pa == pb
			}
			return s.Elem.VTable.Equal(pa, pb)
		}
	case KindList:
		if s.Elem.VTable.Equal == nil {
			return nil
		}
		return func(a, b unsafe.Pointer) bool {
			va, vb := s.ValueAt(a), s.ValueAt(b)
			if va.Len() != vb.Len() {
				return false
			}
			for i := 0; i < va.Len(); i++ {
				if !s.Elem.VTable.Equal(va.Index(i).Addr().UnsafePointer(), vb.Index(i).Addr().UnsafePointer()) {
					return false
				}
			}
			return true
		}
	case KindMap:
		if s.Elem.VTable.Equal == nil {
			return nil
		}
		return func(a, b unsafe.Pointer) bool {
			va, vb := s.ValueAt(a), s.ValueAt(b)
			if va.Len() != vb.Len() {
				return false
			}
			iter := va.MapRange()
			for iter.Next() {
				other := vb.MapIndex(iter.Key())
				if !other.IsValid() {
					return false
				}
				if !s.Elem.VTable.Equal(addressable(iter.Value()), addressable(other)) {
					return false
				}
			}
			return true
		}
	case KindSet:
		return func(a, b unsafe.Pointer) bool {
			va, vb := s.ValueAt(a), s.ValueAt(b)
			if va.Len() != vb.Len() {
				return false
			}
			for _, k := range va.MapKeys() {
				if !vb.MapIndex(k).IsValid() {
					return false
				}
			}
			return true
		}
	case KindOpaque:
		if !s.GoType.Comparable() {
			return nil
		}
		return func(a, b unsafe.Pointer) bool {
			va, vb := s.ValueAt(a), s.ValueAt(b)
			if !va.Comparable() || !vb.Comparable() {
				return false
			}
			return va.Equal(vb)
		}
	default:
		return func(a, b unsafe.Pointer) bool {
			return s.ValueAt(a).Equal(s.ValueAt(b))
		}
	}
}
