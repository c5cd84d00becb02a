package shape

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

// hasher folds child hashes into a single xxhash digest.
type hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

func newHasher() *hasher {
	return &hasher{d: xxhash.New()}
}

func (h *hasher) u64(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.d.Write(h.buf[:])
}

func (h *hasher) sum() uint64 {
	return h.d.Sum64()
}

func bytesAt(p unsafe.Pointer, n uintptr) []byte {
	return unsafe.Slice((*byte)(p), n)
}

func hashFn(s *Shape) func(unsafe.Pointer) uint64 {
	switch s.Kind {
	case KindBool, KindInt, KindInt8, KindInt16, KindInt32, KindInt64,
		KindUint, KindUint8, KindUint16, KindUint32, KindUint64, KindUintptr:
		size := s.Layout.Size
		return func(p unsafe.Pointer) uint64 {
			return xxhash.Sum64(bytesAt(p, size))
		}
	case KindFloat32:
		// +0 and -0 compare equal and must hash equal.
		return func(p unsafe.Pointer) uint64 {
			f := *(*float32)(p)
			if f == 0 {
				f = 0
			}
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
			return xxhash.Sum64(b[:])
		}
	case KindFloat64:
		return func(p unsafe.Pointer) uint64 {
			f := *(*float64)(p)
			if f == 0 {
				f = 0
			}
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
			return xxhash.Sum64(b[:])
		}
	case KindString:
		return func(p unsafe.Pointer) uint64 {
			return xxhash.Sum64String(s.ValueAt(p).String())
		}
	case KindStruct:
		for i := range s.Fields {
			if s.Fields[i].Shape.VTable.Hash == nil {
				return nil
			}
		}
		return func(p unsafe.Pointer) uint64 {
			h := newHasher()
			for i := range s.Fields {
				f := &s.Fields[i]
				h.u64(f.Shape.VTable.Hash(unsafe.Add(p, f.Offset)))
			}
			return h.sum()
		}
	case KindArray:
		if s.Elem.VTable.Hash == nil {
			return nil
		}
		return func(p unsafe.Pointer) uint64 {
			h := newHasher()
			for i := 0; i < s.Len; i++ {
				h.u64(s.Elem.VTable.Hash(s.ElemPtr(p, i)))
			}
			return h.sum()
		}
	case KindList:
		if s.Elem.VTable.Hash == nil {
			return nil
		}
		return func(p unsafe.Pointer) uint64 {
			v := s.ValueAt(p)
			h := newHasher()
			h.u64(uint64(v.Len()))
			for i := 0; i < v.Len(); i++ {
				h.u64(s.Elem.VTable.Hash(v.Index(i).Addr().UnsafePointer()))
			}
			return h.sum()
		}
	case KindOption, KindPointer:
		if s.Elem.VTable.Hash == nil {
			return nil
		}
		return func(p unsafe.Pointer) uint64 {
			h := newHasher()
			pp := pointeeAt(p)
			if pp == nil {
				h.u64(0)
				return h.sum()
			}
			h.u64(1)
			h.u64(s.Elem.VTable.Hash(pp))
			return h.sum()
		}
	case KindEnum:
		for i := range s.Variants {
			if s.Variants[i].Shape.VTable.Hash == nil {
				return nil
			}
		}
		return func(p unsafe.Pointer) uint64 {
			h := newHasher()
			i := s.ActiveVariant(p)
			h.u64(uint64(i + 1))
			if i >= 0 {
				v := &s.Variants[i]
				h.u64(v.Shape.VTable.Hash(pointeeAt(unsafe.Add(p, v.Offset))))
			}
			return h.sum()
		}
	}
	// maps and sets are unordered; opaque values have no byte identity
	return nil
}
