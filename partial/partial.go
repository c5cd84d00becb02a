package partial

import (
	"reflect"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/shapekit"
	"github.com/wippyai/shapekit/errors"
	"github.com/wippyai/shapekit/shape"
)

// Partial builds one value of a shape step by step. It is not safe for
// concurrent use; independent builders share no state.
type Partial struct {
	shape    *shape.Shape
	alloc    shapekit.Allocator
	poisoned error
	arena    arena
	opts     Options

	root     Idx
	cursor   Idx
	boundary Idx // frame where the open deferred region began
	mode     Mode
	finished bool
}

// Alloc creates a builder for s in the given mode with default options.
func Alloc(s *shape.Shape, mode Mode) (*Partial, error) {
	opts := DefaultOptions()
	opts.Mode = mode
	return AllocWithOptions(s, opts)
}

// AllocWithOptions creates a builder for s. The root value is allocated
// through opts.Allocator and the cursor starts at the root.
func AllocWithOptions(s *shape.Shape, opts Options) (*Partial, error) {
	if s == nil {
		return nil, errors.New(errors.PhaseBuild, errors.KindNilPointer).
			Detail("shape cannot be nil").
			Build()
	}
	if opts.Allocator == nil {
		opts.Allocator = shapekit.DefaultAllocator
	}

	p := &Partial{
		shape:    s,
		alloc:    opts.Allocator,
		opts:     opts,
		mode:     opts.Mode,
		boundary: noFrame,
	}

	idx, f := p.arena.alloc()
	f.reset(s, p.alloc.Alloc(s.GoType), noFrame, dest{kind: destRoot}, "", true)
	p.root = idx
	p.cursor = idx
	if p.mode == Deferred {
		p.boundary = idx
	}

	Logger().Debug("builder allocated",
		zap.Stringer("shape", s),
		zap.Stringer("mode", p.mode))
	return p, nil
}

// New compiles T with the package-level compiler and allocates a builder.
func New[T any](mode Mode) (*Partial, error) {
	s, err := shape.Of[T]()
	if err != nil {
		return nil, err
	}
	return Alloc(s, mode)
}

// Shape returns the root shape.
func (p *Partial) Shape() *shape.Shape {
	return p.shape
}

// Current returns the shape of the frame under the cursor.
func (p *Partial) Current() *shape.Shape {
	if !p.live() {
		return nil
	}
	return p.arena.get(p.cursor).shape
}

// Path returns the labels from the root to the cursor.
func (p *Partial) Path() []string {
	if !p.live() {
		return nil
	}
	return p.framePath(p.cursor)
}

// Depth is the number of frames between the root and the cursor.
func (p *Partial) Depth() int {
	if !p.live() {
		return 0
	}
	d := 0
	for idx := p.cursor; idx != p.root; idx = p.arena.get(idx).parent {
		d++
	}
	return d
}

// Mode reports the mode End currently runs in.
func (p *Partial) Mode() Mode {
	return p.mode
}

// Poisoned returns the error that poisoned the builder, or nil.
func (p *Partial) Poisoned() error {
	return p.poisoned
}

// LiveFrames is the number of frames currently held in the arena.
func (p *Partial) LiveFrames() int {
	return p.arena.live
}

func (p *Partial) live() bool {
	return p.poisoned == nil && !p.finished
}

func (p *Partial) usable() error {
	if p.poisoned != nil {
		return errors.Poisoned(p.poisoned)
	}
	if p.finished {
		return errors.New(errors.PhaseBuild, errors.KindUnsupported).
			Detail("builder already finalized").
			Build()
	}
	return nil
}

// run executes one operation. Any failure poisons the builder.
func (p *Partial) run(op string, fn func() error) error {
	if err := p.usable(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		Logger().Debug("operation failed",
			zap.String("op", op),
			zap.Strings("path", p.framePath(p.cursor)),
			zap.Error(err))
		p.poison(err)
		return err
	}
	return nil
}

func (p *Partial) framePath(idx Idx) []string {
	var labels []string
	for idx != noFrame && idx != p.root {
		f := p.arena.get(idx)
		labels = append(labels, f.label)
		idx = f.parent
	}
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	return labels
}

// fail starts an error located at frame idx.
func (p *Partial) fail(idx Idx, kind errors.Kind) *errors.Builder {
	return errors.New(errors.PhaseBuild, kind).
		Path(p.framePath(idx)...).
		Shape(p.arena.get(idx).shape.String())
}

func (p *Partial) childPath(idx Idx, label string) []string {
	return append(p.framePath(idx), label)
}

// valueFor materializes a value-producing source as a value of target's Go
// type without touching builder state.
func (p *Partial) valueFor(at []string, target *shape.Shape, src Source) (reflect.Value, error) {
	switch src.kind {
	case srcDefault:
		if target.VTable.Default == nil {
			return reflect.Value{}, errors.New(errors.PhaseBuild, errors.KindNoDefault).
				Path(at...).
				Shape(target.String()).
				Detail("shape has no default").
				Build()
		}
		v := reflect.New(target.GoType)
		target.VTable.Default(v.UnsafePointer())
		return v.Elem(), nil

	case srcImmPtr, srcCopy:
		if src.shape == nil || src.ptr == nil {
			return reflect.Value{}, errors.NilPointer(errors.PhaseBuild, at, target.String())
		}
		if src.shape.GoType != target.GoType {
			return reflect.Value{}, errors.TypeMismatch(errors.PhaseBuild, at, src.shape.GoType.String(), target.String())
		}
		if src.kind == srcImmPtr {
			return src.shape.ValueAt(src.ptr), nil
		}
		if src.shape.VTable.Clone == nil {
			return reflect.Value{}, errors.Unsupported(errors.PhaseBuild, at, "shape "+target.String()+" cannot be cloned")
		}
		v := reflect.New(target.GoType)
		src.shape.VTable.Clone(v.UnsafePointer(), src.ptr)
		return v.Elem(), nil

	case srcImm:
		v := src.value
		if !v.IsValid() {
			if target.Kind == shape.KindOption {
				return reflect.Zero(target.GoType), nil
			}
			return reflect.Value{}, errors.TypeMismatch(errors.PhaseBuild, at, "nil", target.String())
		}
		if v.Type() != target.GoType {
			if target.Kind.IsIndirect() && v.Type() == target.Elem.GoType {
				h := reflect.New(v.Type())
				h.Elem().Set(v)
				return h, nil
			}
			return reflect.Value{}, errors.TypeMismatch(errors.PhaseBuild, at, v.Type().String(), target.String())
		}
		switch target.Kind {
		case shape.KindPointer:
			if v.IsNil() {
				return reflect.Value{}, errors.NilPointer(errors.PhaseBuild, at, v.Type().String())
			}
		case shape.KindEnum:
			if target.ActiveVariant(addressable(v)) < 0 {
				return reflect.Value{}, errors.New(errors.PhaseBuild, errors.KindInvalidVariant).
					Path(at...).
					Shape(target.String()).
					Detail("enum value has no active case").
					Build()
			}
		}
		return v, nil
	}

	return reflect.Value{}, errors.Unsupported(errors.PhaseBuild, at, "source "+src.String()+" does not produce a value")
}

func addressable(v reflect.Value) unsafe.Pointer {
	if v.CanAddr() {
		return v.Addr().UnsafePointer()
	}
	tmp := reflect.New(v.Type())
	tmp.Elem().Set(v)
	return tmp.UnsafePointer()
}
