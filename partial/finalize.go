package partial

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/wippyai/shapekit/errors"
)

// FinalizeValue walks the cursor back to the root, applies defaults,
// validates completeness and returns the constructed value. The arena is
// discarded; the builder accepts no further operations.
func (p *Partial) FinalizeValue() (reflect.Value, error) {
	var out reflect.Value
	err := p.run("finalize", func() error {
		for p.cursor != p.root {
			if err := p.end(); err != nil {
				return err
			}
		}
		if p.mode == Deferred {
			if err := p.finishDeferred(errors.PhaseFinalize); err != nil {
				return err
			}
		}

		root := p.arena.get(p.root)
		p.fillDefaults(root)
		if err := p.checkComplete(p.root, errors.PhaseFinalize); err != nil {
			return err
		}

		out = reflect.New(p.shape.GoType).Elem()
		out.Set(p.shape.ValueAt(root.ptr))
		p.alloc.Free(p.shape.GoType, root.ptr)
		p.arena.release(p.root)
		p.root, p.cursor = noFrame, noFrame
		p.finished = true
		return nil
	})
	if err != nil {
		return reflect.Value{}, err
	}

	Logger().Debug("builder finalized", zap.Stringer("shape", p.shape))
	return out, nil
}

// Finalize is FinalizeValue returning the value as an interface.
func (p *Partial) Finalize() (any, error) {
	v, err := p.FinalizeValue()
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// Build finalizes p and returns the value as T. T must be the root shape's
// Go type; a mismatch is reported without finalizing.
func Build[T any](p *Partial) (T, error) {
	var zero T
	if want := reflect.TypeFor[T](); p.shape.GoType != want {
		return zero, errors.TypeMismatch(errors.PhaseFinalize, nil, want.String(), p.shape.String())
	}
	v, err := p.FinalizeValue()
	if err != nil {
		return zero, err
	}
	return v.Interface().(T), nil
}
