// Package partial builds values of a runtime shape incrementally.
//
// A Partial owns an arena of frames, one per value under construction, and
// a cursor pointing at the frame operations apply to. A format decoder
// drives it with four operations:
//
//	Set(path, src)     write or stage at a path relative to the cursor
//	Append(src)        add an element to the list or set under the cursor
//	Insert(key, src)   add, replace or re-enter a map entry by key
//	End()              pop the cursor to its parent
//
// A Source says what happens at the destination:
//
//	Imm(v), ImmPtr     move an already constructed value in
//	CopyFrom           clone a borrowed value in
//	Stage()            create (or re-enter) a child frame and move the cursor there
//	Restage()          drop the destination's value, then stage
//	Default()          write the type's default in place
//
// # Example
//
//	p, _ := partial.Alloc(shape.MustOf[Point](), partial.Immediate)
//	_ = p.Set(partial.At(1), partial.Imm(int32(20)))
//	_ = p.Set(partial.At(0), partial.Imm(int32(10)))
//	pt, err := partial.Build[Point](p) // Point{X: 10, Y: 20}
//
// # Frames and Ownership
//
// Struct fields and array elements are built in place inside their parent.
// Option and pointer targets, enum payloads, list elements and map values
// are staged in their own allocation from the configured Allocator and moved
// into the parent when the frame completes. Each parent tracks its children
// with a tri-state slot: not started, staged (frame index), or complete.
// A complete slot is only replaced by an explicit overwrite: Imm, Default
// or Restage.
//
// # Modes
//
// In Immediate mode End requires the frame to be complete after optional
// fields are defaulted. In Deferred mode (Alloc with Deferred, or
// BeginDeferred at the cursor) End leaves frames attached and a later Stage
// of the same location re-enters them: by index for struct fields, array
// and list elements and enum cases, by key equality for map values.
// FinishDeferred, or Finalize, validates the whole region.
//
// # Failure
//
// Every failed operation poisons the builder: each initialized value
// reachable from the root is dropped exactly once through its shape's
// VTable, owned allocations are freed, and every later call returns a
// KindPoisoned error wrapping the original failure. A failed operation does
// not take ownership of its immediate source.
package partial
