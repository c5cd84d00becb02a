// Package shapekit builds Go values incrementally from runtime type
// descriptions, for format decoders that learn a value's parts out of order.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	shapekit/            Root package with the Allocator interface
//	├── shape/           Shapes: runtime type descriptors compiled from Go types
//	├── partial/         The partial builder: frames, cursor, deferred mode
//	├── witshape/        WIT types to synthesized Go types and shapes
//	├── script/          Line-oriented op scripts and YAML documents
//	├── errors/          Structured error types for debugging
//	├── internal/        Shared logger slot
//	└── cmd/shapekit/    CLI to replay, inspect and interactively build values
//
// # Quick Start
//
// Build a struct field by field:
//
//	p, err := partial.New[Point](partial.Immediate)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = p.SetField("y", partial.Imm(int32(2)))
//	_ = p.SetField("x", partial.Imm(int32(1)))
//	pt, err := partial.Build[Point](p)
//
// Nested values are staged: Set with partial.Stage() moves the cursor into
// the child, and End moves it back once the child is complete. In deferred
// mode End leaves incomplete children attached so they can be re-entered
// later; completeness is checked when the builder is finalized.
//
// # Error Handling
//
// All errors are *errors.Error with a Phase, a Kind and the path to the
// frame where they happened:
//
//	if errors.IsKind(err, errors.KindFieldMissing) {
//	    // a required field was never set
//	}
//
// Any builder operation that fails poisons the builder: every value built so
// far is dropped exactly once and later operations report KindPoisoned.
//
// # Memory
//
// Staged values that do not live inside their parent (option payloads, enum
// cases, list elements, map values) are allocated through an Allocator and
// freed when they are moved into place. HeapAllocator is the default.
//
// # Logging
//
// The partial and script packages log through zap; both default to a no-op
// logger and accept one through SetLogger.
package shapekit
