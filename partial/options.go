package partial

import (
	"github.com/wippyai/shapekit"
)

// Mode controls what End does with an incomplete frame.
type Mode uint8

const (
	// Immediate requires every frame to be complete at its End.
	Immediate Mode = iota
	// Deferred leaves incomplete frames attached for later re-entry and
	// validates them when the deferred region is finished.
	Deferred
)

func (m Mode) String() string {
	switch m {
	case Immediate:
		return "immediate"
	case Deferred:
		return "deferred"
	}
	return "unknown"
}

// DuplicateKeys selects what an immediate Insert does with a key that is
// already present in the map.
type DuplicateKeys uint8

const (
	// DuplicateKeysReplace drops the old value and stores the new one.
	DuplicateKeysReplace DuplicateKeys = iota
	// DuplicateKeysError fails with KindDuplicateKey.
	DuplicateKeysError
)

// Options configures a builder.
type Options struct {
	// Allocator backs the root value and every staged frame that owns its
	// memory. Nil means shapekit.DefaultAllocator.
	Allocator shapekit.Allocator

	Mode          Mode
	DuplicateKeys DuplicateKeys

	// NoImplicitDefaults disables filling optional fields and absent
	// options when a frame is ended or finalized.
	NoImplicitDefaults bool
}

// DefaultOptions returns options for an immediate-mode builder on the Go heap.
func DefaultOptions() Options {
	return Options{
		Allocator:     shapekit.DefaultAllocator,
		Mode:          Immediate,
		DuplicateKeys: DuplicateKeysReplace,
	}
}
