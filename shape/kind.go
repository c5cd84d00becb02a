package shape

// Kind is the structural classification of a Shape.
type Kind uint8

const (
	KindBool Kind = iota
	KindInt
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindUintptr
	KindFloat32
	KindFloat64
	KindString
	KindOpaque
	KindStruct
	KindArray
	KindEnum
	KindOption
	KindPointer
	KindList
	KindMap
	KindSet
)

var kindNames = [...]string{
	KindBool:    "bool",
	KindInt:     "int",
	KindInt8:    "int8",
	KindInt16:   "int16",
	KindInt32:   "int32",
	KindInt64:   "int64",
	KindUint:    "uint",
	KindUint8:   "uint8",
	KindUint16:  "uint16",
	KindUint32:  "uint32",
	KindUint64:  "uint64",
	KindUintptr: "uintptr",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindString:  "string",
	KindOpaque:  "opaque",
	KindStruct:  "struct",
	KindArray:   "array",
	KindEnum:    "enum",
	KindOption:  "option",
	KindPointer: "pointer",
	KindList:    "list",
	KindMap:     "map",
	KindSet:     "set",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsScalar reports whether values of this kind have no children.
func (k Kind) IsScalar() bool {
	return k <= KindOpaque
}

// IsAggregate reports whether the kind has a fixed set of children at
// static offsets (struct fields, array elements).
func (k Kind) IsAggregate() bool {
	return k == KindStruct || k == KindArray
}

// IsCollection reports whether the kind grows dynamically.
func (k Kind) IsCollection() bool {
	return k == KindList || k == KindMap || k == KindSet
}

// IsIndirect reports whether the kind wraps a separately allocated pointee.
func (k Kind) IsIndirect() bool {
	return k == KindOption || k == KindPointer
}
