package shapekit

import (
	"reflect"
	"unsafe"
)

// Allocator provides backing storage for values under construction.
//
// Alloc returns zeroed, properly aligned memory able to hold one value of t.
// Free releases storage obtained from Alloc. Free never runs the value's drop
// operation; callers drop (or move out) the contents first.
type Allocator interface {
	Alloc(t reflect.Type) unsafe.Pointer
	Free(t reflect.Type, ptr unsafe.Pointer)
}

// HeapAllocator allocates from the Go heap.
type HeapAllocator struct{}

// Alloc returns a pointer to a new zero value of t.
func (HeapAllocator) Alloc(t reflect.Type) unsafe.Pointer {
	return reflect.New(t).UnsafePointer()
}

// Free clears the storage so no stale references stay reachable through it.
func (HeapAllocator) Free(t reflect.Type, ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	reflect.NewAt(t, ptr).Elem().SetZero()
}

// DefaultAllocator is used when no allocator is configured.
var DefaultAllocator Allocator = HeapAllocator{}
