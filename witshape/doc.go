// Package witshape generates shapes for WIT types.
//
// Each WIT type gets a Go type synthesized with reflect, which the shape
// compiler then turns into a shape. Values built through the partial
// package are ordinary Go values of those types.
//
// # Type Mapping
//
//	WIT             Go
//	──────────────────────────────────────────────
//	bool            bool
//	u8..u64         uint8..uint64
//	s8..s64         int8..int64
//	f32/f64         float32/float64
//	char            rune
//	string          string
//	list<T>         []T
//	option<T>       *T
//	record          struct, one field per WIT field
//	tuple<A, B>     struct{ F0 A; F1 B }
//	flags           struct of bool fields, all optional
//	variant         enum struct with one *T per case
//	enum            enum struct with one *struct{} per case
//	result<T, E>    enum struct with cases ok and err
//	own/borrow      uint32 handle
//
// Field and case names are exported Go names derived from the WIT names
// ("first-name" becomes FirstName). The WIT name is kept in the shape,
// json and yaml tags, so shapes, JSON Schema and YAML literals all use it.
//
// Named type definitions name their shapes:
//
//	g := witshape.New(nil)
//	s, err := g.Shape(pointType) // s.Name == "point"
package witshape
