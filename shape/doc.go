// Package shape provides runtime type descriptors for the partial builder.
//
// A Shape describes the layout, structural kind and children of a Go type,
// and carries a VTable of type-erased operations over raw memory:
//
//	┌──────────────────────────────────────────────────────────┐
//	│ reflect.Type ──[Compiler]──▶ *Shape{Kind, Layout, VTable} │
//	└──────────────────────────────────────────────────────────┘
//
// # Go Type Mapping
//
//	Go type                    Kind
//	────────────────────────────────────────────
//	bool, intN, uintN, floatN  scalar of the same name
//	string                     string
//	struct                     struct (exported fields)
//	struct{ _ OneOf; ... }     enum (pointer cases)
//	[N]T                       array
//	[]T                        list
//	map[K]V                    map
//	map[K]struct{}             set
//	*T                         option (nil = absent)
//	*T `shape:",required"`     pointer
//	anything else              opaque
//
// # Field Tags
//
//	`shape:"name"`             rename the field or case
//	`shape:",optional"`        default the field when left unset
//	`shape:",default"`         same as optional; on an enum case, the default case
//	`shape:",required"`        pointer instead of option
//	`shape:"-"`                skip
//
// # Operations
//
//	Drop      release a value, calling Drop on every child, then zero it
//	Default   write the default value (Go zero values, empty containers)
//	Clone     deep copy into uninitialized memory
//	Equal     structural equality
//	Hash      xxhash over children, consistent with Equal
//
// Maps, sets and opaque values have no Hash. A Compiler's Override installs
// custom operations for a Go type; descriptor generators and tests use it to
// attach release hooks to leaf types.
package shape
