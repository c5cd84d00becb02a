// Package errors provides structured error types for shapekit.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: frame path, source Go type, destination
// shape and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseBuild, errors.KindTypeMismatch).
//		Path("user", "age").
//		GoType("string").
//		Shape("uint32").
//		Detail("immediate value does not match destination").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseBuild, path, "string", "uint32")
//	err := errors.OutOfBounds(errors.PhaseBuild, path, 10, 5)
//
// All errors implement the standard error interface and support errors.Is/As.
// IsKind matches on Kind alone, which is what callers driving a builder
// usually want.
package errors
