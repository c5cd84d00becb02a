package partial

import (
	"reflect"
	"unsafe"

	"github.com/wippyai/shapekit/shape"
)

type sourceKind uint8

const (
	srcImm sourceKind = iota
	srcImmPtr
	srcCopy
	srcStage
	srcRestage
	srcDefault
)

var sourceNames = [...]string{
	srcImm:     "imm",
	srcImmPtr:  "imm-ptr",
	srcCopy:    "copy",
	srcStage:   "stage",
	srcRestage: "restage",
	srcDefault: "default",
}

// Source says how a value arrives at its destination.
type Source struct {
	value reflect.Value
	shape *shape.Shape
	ptr   unsafe.Pointer
	kind  sourceKind
}

// Imm moves an already constructed value into the destination. Its Go type
// must match the destination shape; option and pointer destinations also
// accept the pointee type. Imm(nil) writes an absent option. The builder
// owns the value once the operation succeeds.
func Imm(v any) Source {
	return Source{kind: srcImm, value: reflect.ValueOf(v)}
}

// ImmPtr moves the value of shape s stored at ptr. The caller must not drop
// the value afterwards.
func ImmPtr(s *shape.Shape, ptr unsafe.Pointer) Source {
	return Source{kind: srcImmPtr, shape: s, ptr: ptr}
}

// CopyFrom writes a deep copy of the value at ptr through the shape's Clone
// operation. The caller keeps ownership of the original.
func CopyFrom(s *shape.Shape, ptr unsafe.Pointer) Source {
	return Source{kind: srcCopy, shape: s, ptr: ptr}
}

// Stage creates a frame at the destination, or re-enters the one left
// there earlier, and moves the cursor to it. Staging a complete slot fails.
func Stage() Source {
	return Source{kind: srcStage}
}

// Restage drops whatever the destination holds and stages a fresh frame.
func Restage() Source {
	return Source{kind: srcRestage}
}

// Default writes the destination type's default value in place.
func Default() Source {
	return Source{kind: srcDefault}
}

func (s Source) String() string {
	return sourceNames[s.kind]
}

// staging reports whether the source moves the cursor into a new frame.
func (s Source) staging() bool {
	return s.kind == srcStage || s.kind == srcRestage
}
