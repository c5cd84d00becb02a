package partial

import (
	"reflect"
	"testing"
	"unsafe"

	"github.com/wippyai/shapekit/errors"
	"github.com/wippyai/shapekit/shape"
)

// counted is a leaf whose Drop is instrumented per test.
type counted int32

type pair struct {
	X counted
	Y counted
}

type point struct {
	X int32
	Y int32
}

type inner struct {
	A int32
	B int32
}

type outer struct {
	In   inner
	Tags []string
}

type twoPoints struct {
	A point
	B point
}

type figure struct {
	_      shape.OneOf
	Circle *float64
	Rect   *point
	Empty  *struct{} `shape:",default"`
}

type choice struct {
	_ shape.OneOf
	P *pair
	N *counted
}

// dropCounter compiles shapes whose counted leaves report every Drop.
type dropCounter struct {
	c     *shape.Compiler
	drops int
}

func newDropCounter() *dropCounter {
	d := &dropCounter{c: shape.NewCompiler()}
	d.c.Override(reflect.TypeFor[counted](), shape.VTable{
		Drop: func(p unsafe.Pointer) {
			d.drops++
			*(*counted)(p) = 0
		},
	})
	return d
}

func (d *dropCounter) shape(t *testing.T, goType reflect.Type) *shape.Shape {
	t.Helper()
	s, err := d.c.Compile(goType)
	if err != nil {
		t.Fatalf("Compile(%s) failed: %v", goType, err)
	}
	return s
}

// countingAllocator tracks outstanding allocations and fails the test on a
// free of memory it does not own.
type countingAllocator struct {
	t      *testing.T
	live   map[unsafe.Pointer]int
	allocs int
	frees  int
}

func newCountingAllocator(t *testing.T) *countingAllocator {
	return &countingAllocator{t: t, live: make(map[unsafe.Pointer]int)}
}

func (a *countingAllocator) Alloc(typ reflect.Type) unsafe.Pointer {
	ptr := reflect.New(typ).UnsafePointer()
	a.live[ptr]++
	a.allocs++
	return ptr
}

func (a *countingAllocator) Free(typ reflect.Type, ptr unsafe.Pointer) {
	if a.live[ptr] == 0 {
		a.t.Errorf("free of unowned %s allocation", typ)
		return
	}
	a.live[ptr]--
	a.frees++
	reflect.NewAt(typ, ptr).Elem().SetZero()
}

func (a *countingAllocator) outstanding() int {
	return a.allocs - a.frees
}

func mustAlloc(t *testing.T, s *shape.Shape, opts Options) *Partial {
	t.Helper()
	p, err := AllocWithOptions(s, opts)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	return p
}

func withAllocator(a *countingAllocator, mode Mode) Options {
	opts := DefaultOptions()
	opts.Allocator = a
	opts.Mode = mode
	return opts
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// permutations returns every ordering of 0..n-1.
func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, rest := range permutations(n - 1) {
		for pos := 0; pos <= len(rest); pos++ {
			perm := make([]int, 0, n)
			perm = append(perm, rest[:pos]...)
			perm = append(perm, n-1)
			perm = append(perm, rest[pos:]...)
			out = append(out, perm)
		}
	}
	return out
}

func wantKind(t *testing.T, err error, kind errors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := errors.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s: %v", kind, got, err)
	}
}
