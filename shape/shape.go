package shape

import (
	"reflect"
	"strconv"
	"strings"
	"unsafe"
)

// OneOf marks a struct as an enum when it is the type of the struct's first
// field. Every other field must be a pointer; the single non-nil pointer is
// the active variant. A *struct{} field is a unit variant.
//
//	type Expr struct {
//		_   shape.OneOf
//		Lit *int64
//		Add *BinOp
//		Nil *struct{} `shape:",default"`
//	}
type OneOf struct{}

var oneOfType = reflect.TypeFor[OneOf]()

// Layout is the size and alignment of a shape's native representation.
type Layout struct {
	Size  uintptr
	Align uintptr
}

// Field is a named member of a struct shape.
type Field struct {
	Shape    *Shape
	Name     string
	GoName   string
	Index    int
	Offset   uintptr
	Optional bool // filled from VTable.Default when left unset
}

// Variant is one case of an enum shape. The case is stored as a pointer at
// Offset inside the enum's memory; Shape describes the pointee.
type Variant struct {
	Shape  *Shape
	Name   string
	GoName string
	Index  int
	Offset uintptr
	Unit   bool
}

// Shape is the runtime type descriptor consumed by the partial builder.
type Shape struct {
	GoType reflect.Type
	Elem   *Shape // array, list, set element; option/pointer pointee; map value
	Key    *Shape // map key
	Name   string

	Fields   []Field
	Variants []Variant
	VTable   VTable
	Layout   Layout

	Len            int // array length
	DefaultVariant int // enum default case, -1 if none
	Kind           Kind
}

func (s *Shape) String() string {
	if s == nil {
		return "<nil>"
	}
	return s.Name
}

// Field returns the i-th field of a struct shape.
func (s *Shape) Field(i int) (*Field, bool) {
	if i < 0 || i >= len(s.Fields) {
		return nil, false
	}
	return &s.Fields[i], true
}

// FieldIndex resolves a field by name. Matching follows the tag name, then a
// case-insensitive Go name match, then the kebab-case form of the Go name.
func (s *Shape) FieldIndex(name string) (int, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return i, true
		}
	}
	for i := range s.Fields {
		f := &s.Fields[i]
		if strings.EqualFold(f.GoName, name) || toKebabCase(f.GoName) == name {
			return i, true
		}
	}
	return -1, false
}

// VariantIndex resolves an enum case by name, with the same rules as FieldIndex.
func (s *Shape) VariantIndex(name string) (int, bool) {
	for i := range s.Variants {
		if s.Variants[i].Name == name {
			return i, true
		}
	}
	for i := range s.Variants {
		v := &s.Variants[i]
		if strings.EqualFold(v.GoName, name) || toKebabCase(v.GoName) == name {
			return i, true
		}
	}
	return -1, false
}

// ChildCount is the number of statically addressable children: fields for
// structs, elements for arrays, cases for enums.
func (s *Shape) ChildCount() int {
	switch s.Kind {
	case KindStruct:
		return len(s.Fields)
	case KindArray:
		return s.Len
	case KindEnum:
		return len(s.Variants)
	}
	return 0
}

// ActiveVariant returns the index of the non-nil case of the enum stored at
// ptr, or -1.
func (s *Shape) ActiveVariant(ptr unsafe.Pointer) int {
	for i := range s.Variants {
		if *(*unsafe.Pointer)(unsafe.Add(ptr, s.Variants[i].Offset)) != nil {
			return i
		}
	}
	return -1
}

// ElemPtr returns the address of array element i at ptr.
func (s *Shape) ElemPtr(ptr unsafe.Pointer, i int) unsafe.Pointer {
	return unsafe.Add(ptr, uintptr(i)*s.Elem.Layout.Size)
}

// ValueAt views the memory at ptr as a settable value of the shape's Go type.
func (s *Shape) ValueAt(ptr unsafe.Pointer) reflect.Value {
	return reflect.NewAt(s.GoType, ptr).Elem()
}

// HasDefault reports whether the shape can be default-constructed.
func (s *Shape) HasDefault() bool {
	return s.VTable.Default != nil
}

// Describe renders the shape as an indented tree.
func (s *Shape) Describe() string {
	var b strings.Builder
	s.describe(&b, "", 0, map[*Shape]bool{})
	return b.String()
}

func (s *Shape) describe(b *strings.Builder, label string, depth int, seen map[*Shape]bool) {
	b.WriteString(strings.Repeat("  ", depth))
	if label != "" {
		b.WriteString(label)
		b.WriteString(": ")
	}
	b.WriteString(s.Kind.String())
	if !s.Kind.IsScalar() || s.Kind == KindOpaque {
		b.WriteByte(' ')
		b.WriteString(s.Name)
	}
	if s.Kind == KindArray {
		b.WriteString(" [")
		b.WriteString(strconv.Itoa(s.Len))
		b.WriteByte(']')
	}
	if seen[s] {
		b.WriteString(" (recursive)\n")
		return
	}
	b.WriteByte('\n')

	seen[s] = true
	defer delete(seen, s)

	switch s.Kind {
	case KindStruct:
		for _, f := range s.Fields {
			l := f.Name
			if f.Optional {
				l += "?"
			}
			f.Shape.describe(b, l, depth+1, seen)
		}
	case KindEnum:
		for i, v := range s.Variants {
			l := v.Name
			if i == s.DefaultVariant {
				l += " (default)"
			}
			v.Shape.describe(b, l, depth+1, seen)
		}
	case KindMap:
		s.Key.describe(b, "key", depth+1, seen)
		s.Elem.describe(b, "value", depth+1, seen)
	case KindArray, KindList, KindSet, KindOption, KindPointer:
		s.Elem.describe(b, "elem", depth+1, seen)
	}
}
