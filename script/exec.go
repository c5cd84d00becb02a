package script

import (
	"reflect"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/shapekit/errors"
	"github.com/wippyai/shapekit/partial"
	"github.com/wippyai/shapekit/shape"
)

// Exec runs one statement against p. Errors are reported in PhaseScript
// with the statement's line; the builder error, if any, is the cause and
// keeps its kind.
//
// A literal that cannot be decoded, or a path the script cannot resolve
// to a shape, fails before any builder operation and leaves p usable.
func Exec(p *partial.Partial, st Statement) error {
	Logger().Debug("exec", zap.Int("line", st.Line), zap.String("stmt", st.Text))
	if err := exec(p, st); err != nil {
		return errors.New(errors.PhaseScript, errors.KindOf(err)).
			Path(p.Path()...).
			Cause(err).
			Detail("line %d: %s", st.Line, st.Text).
			Build()
	}
	return nil
}

// Replay runs stmts in order and stops at the first failure.
func Replay(p *partial.Partial, stmts []Statement) error {
	for _, st := range stmts {
		if err := Exec(p, st); err != nil {
			return err
		}
	}
	Logger().Debug("replay done", zap.Int("statements", len(stmts)))
	return nil
}

func exec(p *partial.Partial, st Statement) error {
	switch st.op {
	case opEnd:
		return p.End()
	case opBegin:
		return p.BeginDeferred()
	case opFinish:
		return p.FinishDeferred()
	}

	cur := p.Current()
	if cur == nil {
		if cause := p.Poisoned(); cause != nil {
			return errors.Poisoned(cause)
		}
		return errors.Unsupported(errors.PhaseScript, nil, "builder already finalized")
	}

	switch st.op {
	case opSet:
		src, err := st.source(func() (*shape.Shape, error) { return target(p, st.path) })
		if err != nil {
			return err
		}
		return p.Set(st.partialPath(), src)

	case opAppend:
		src, err := st.source(func() (*shape.Shape, error) {
			if cur.Kind != shape.KindList && cur.Kind != shape.KindSet {
				return nil, errors.Unsupported(errors.PhaseScript, p.Path(), "append on "+cur.Kind.String())
			}
			return cur.Elem, nil
		})
		if err != nil {
			return err
		}
		return p.Append(src)

	case opInsert:
		if cur.Kind != shape.KindMap {
			return errors.Unsupported(errors.PhaseScript, p.Path(), "insert on "+cur.Kind.String())
		}
		key, err := decode(cur.Key, st.key)
		if err != nil {
			return err
		}
		src, err := st.source(func() (*shape.Shape, error) { return cur.Elem, nil })
		if err != nil {
			return err
		}
		return p.Insert(key.Interface(), src)
	}
	return errors.InvalidInput(errors.PhaseScript, "unknown statement")
}

// source converts the statement's source word into a builder source. The
// target shape is only looked up for literals.
func (s Statement) source(target func() (*shape.Shape, error)) (partial.Source, error) {
	switch s.src {
	case srcStage:
		return partial.Stage(), nil
	case srcRestage:
		return partial.Restage(), nil
	case srcDefault:
		return partial.Default(), nil
	}
	t, err := target()
	if err != nil {
		return partial.Source{}, err
	}
	v, err := decode(t, s.literal)
	if err != nil {
		return partial.Source{}, err
	}
	return partial.Imm(v.Interface()), nil
}

// target walks path from the cursor, or from the root when the path starts
// with '$', and returns the shape of the slot it names.
func target(p *partial.Partial, path []segment) (*shape.Shape, error) {
	s := p.Current()
	if len(path) > 0 && path[0].root {
		s = p.Shape()
		path = path[1:]
	}
	for _, seg := range path {
		next, ok := child(s, seg)
		if !ok {
			return nil, errors.New(errors.PhaseScript, errors.KindInvalidPath).
				Shape(s.String()).
				Detail("%s has no child %s", s.Kind, seg.String()).
				Build()
		}
		s = next
	}
	return s, nil
}

func child(s *shape.Shape, seg segment) (*shape.Shape, bool) {
	switch s.Kind {
	case shape.KindStruct:
		i, ok := seg.index, seg.name == ""
		if !ok {
			i, ok = s.FieldIndex(seg.name)
		}
		f, ok2 := s.Field(i)
		if !ok || !ok2 {
			return nil, false
		}
		return f.Shape, true
	case shape.KindEnum:
		i, ok := seg.index, seg.name == ""
		if !ok {
			i, ok = s.VariantIndex(seg.name)
		}
		if !ok || i < 0 || i >= len(s.Variants) {
			return nil, false
		}
		return s.Variants[i].Shape, true
	case shape.KindArray, shape.KindList:
		return s.Elem, seg.name == ""
	}
	return nil, false
}

func (s segment) String() string {
	if s.root {
		return "$"
	}
	if s.name != "" {
		return s.name
	}
	return "[" + strconv.Itoa(s.index) + "]"
}

// decode reads a YAML literal into a fresh value of s's Go type.
func decode(s *shape.Shape, text string) (reflect.Value, error) {
	v := reflect.New(s.GoType)
	if err := yaml.Unmarshal([]byte(text), v.Interface()); err != nil {
		return reflect.Value{}, errors.New(errors.PhaseScript, errors.KindInvalidInput).
			Shape(s.String()).
			Value(text).
			Cause(err).
			Detail("cannot decode literal").
			Build()
	}
	return v.Elem(), nil
}
