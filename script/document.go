package script

import (
	"io"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/shapekit/errors"
	"github.com/wippyai/shapekit/partial"
	"github.com/wippyai/shapekit/shape"
	"github.com/wippyai/shapekit/witshape"
)

// Document is a YAML file holding a WIT-style type and an op script that
// builds one value of it:
//
//	types:
//	  point:
//	    record:
//	      - {name: x, type: s32}
//	      - {name: y, type: s32}
//	type: {list: point}
//	mode: deferred
//	ops: |
//	  append stage
//	  set x = 1
//	  set y = 2
//	  end
type Document struct {
	Types map[string]TypeSpec `yaml:"types,omitempty"`
	Type  TypeSpec            `yaml:"type"`
	Name  string              `yaml:"name,omitempty"`
	Mode  string              `yaml:"mode,omitempty"`
	Ops   string              `yaml:"ops"`
}

// TypeSpec is one type expression. A bare scalar names a primitive or an
// entry of Document.Types; a mapping sets exactly one constructor.
type TypeSpec struct {
	Ref     string      `yaml:"-"`
	Record  []FieldSpec `yaml:"record,omitempty"`
	List    *TypeSpec   `yaml:"list,omitempty"`
	Option  *TypeSpec   `yaml:"option,omitempty"`
	Tuple   []TypeSpec  `yaml:"tuple,omitempty"`
	Variant []CaseSpec  `yaml:"variant,omitempty"`
	Enum    []string    `yaml:"enum,omitempty"`
	Flags   []string    `yaml:"flags,omitempty"`
	Result  *ResultSpec `yaml:"result,omitempty"`
}

// FieldSpec is a record field.
type FieldSpec struct {
	Name string   `yaml:"name"`
	Type TypeSpec `yaml:"type"`
}

// CaseSpec is a variant case; a nil Type is a case without payload.
type CaseSpec struct {
	Name string    `yaml:"name"`
	Type *TypeSpec `yaml:"type,omitempty"`
}

// ResultSpec is a result type; either side may be omitted.
type ResultSpec struct {
	OK  *TypeSpec `yaml:"ok,omitempty"`
	Err *TypeSpec `yaml:"err,omitempty"`
}

// UnmarshalYAML accepts a scalar reference or a constructor mapping.
func (t *TypeSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*t = TypeSpec{Ref: value.Value}
		return nil
	}
	type plain TypeSpec
	return value.Decode((*plain)(t))
}

var primitives = map[string]wit.Type{
	"bool":   wit.Bool{},
	"u8":     wit.U8{},
	"s8":     wit.S8{},
	"u16":    wit.U16{},
	"s16":    wit.S16{},
	"u32":    wit.U32{},
	"s32":    wit.S32{},
	"u64":    wit.U64{},
	"s64":    wit.S64{},
	"f32":    wit.F32{},
	"f64":    wit.F64{},
	"char":   wit.Char{},
	"string": wit.String{},
}

// Load decodes a document. Unknown top-level keys are rejected.
func Load(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "decode document")
	}
	return &doc, nil
}

// LoadFile reads and decodes the document at path.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "open document")
	}
	defer f.Close()
	doc, err := Load(f)
	if err != nil {
		return nil, err
	}
	Logger().Debug("document loaded", zap.String("path", path), zap.Int("types", len(doc.Types)))
	return doc, nil
}

// WIT converts the document's root type. Named types become named type
// definitions; references between them may not form a cycle.
func (d *Document) WIT() (wit.Type, error) {
	r := &resolver{
		defs:   d.Types,
		done:   make(map[string]wit.Type),
		active: make(map[string]bool),
	}
	t, err := r.resolve(&d.Type, nil)
	if err != nil {
		return nil, err
	}
	if td, ok := t.(*wit.TypeDef); ok && td.Name == nil && d.Name != "" {
		name := d.Name
		td.Name = &name
	}
	return t, nil
}

// Shape converts the root type and compiles it through g.
func (d *Document) Shape(g *witshape.Generator) (*shape.Shape, error) {
	t, err := d.WIT()
	if err != nil {
		return nil, err
	}
	return g.Shape(t)
}

// BuilderMode parses Mode; empty means immediate.
func (d *Document) BuilderMode() (partial.Mode, error) {
	switch strings.ToLower(d.Mode) {
	case "", "immediate":
		return partial.Immediate, nil
	case "deferred":
		return partial.Deferred, nil
	}
	return 0, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
		Value(d.Mode).
		Detail("mode must be immediate or deferred").
		Build()
}

// Options returns default builder options with the document's mode.
func (d *Document) Options() (partial.Options, error) {
	mode, err := d.BuilderMode()
	if err != nil {
		return partial.Options{}, err
	}
	opts := partial.DefaultOptions()
	opts.Mode = mode
	return opts, nil
}

// Statements parses Ops.
func (d *Document) Statements() ([]Statement, error) {
	return Parse(d.Ops)
}

// Run compiles the type, replays the script on a fresh builder and
// finalizes it.
func (d *Document) Run(g *witshape.Generator, opts partial.Options) (reflect.Value, error) {
	s, err := d.Shape(g)
	if err != nil {
		return reflect.Value{}, err
	}
	stmts, err := d.Statements()
	if err != nil {
		return reflect.Value{}, err
	}
	p, err := partial.AllocWithOptions(s, opts)
	if err != nil {
		return reflect.Value{}, err
	}
	if err := Replay(p, stmts); err != nil {
		return reflect.Value{}, err
	}
	return p.FinalizeValue()
}

type resolver struct {
	defs   map[string]TypeSpec
	done   map[string]wit.Type
	active map[string]bool
}

func (r *resolver) resolve(t *TypeSpec, path []string) (wit.Type, error) {
	if t.Ref != "" {
		if prim, ok := primitives[t.Ref]; ok {
			return prim, nil
		}
		return r.named(t.Ref, path)
	}

	var set []string
	for name, ok := range map[string]bool{
		"record":  t.Record != nil,
		"list":    t.List != nil,
		"option":  t.Option != nil,
		"tuple":   t.Tuple != nil,
		"variant": t.Variant != nil,
		"enum":    t.Enum != nil,
		"flags":   t.Flags != nil,
		"result":  t.Result != nil,
	} {
		if ok {
			set = append(set, name)
		}
	}
	if len(set) != 1 {
		sort.Strings(set)
		return nil, r.fail(path, "type needs exactly one constructor, got [%s]", strings.Join(set, " "))
	}

	switch {
	case t.Record != nil:
		fields := make([]wit.Field, len(t.Record))
		for i, f := range t.Record {
			ft, err := r.resolve(&f.Type, childPath(path, f.Name))
			if err != nil {
				return nil, err
			}
			fields[i] = wit.Field{Name: f.Name, Type: ft}
		}
		return &wit.TypeDef{Kind: &wit.Record{Fields: fields}}, nil

	case t.List != nil:
		elem, err := r.resolve(t.List, childPath(path, "[elem]"))
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.List{Type: elem}}, nil

	case t.Option != nil:
		elem, err := r.resolve(t.Option, childPath(path, "?"))
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.Option{Type: elem}}, nil

	case t.Tuple != nil:
		types := make([]wit.Type, len(t.Tuple))
		for i := range t.Tuple {
			elem, err := r.resolve(&t.Tuple[i], childPath(path, "["+strconv.Itoa(i)+"]"))
			if err != nil {
				return nil, err
			}
			types[i] = elem
		}
		return &wit.TypeDef{Kind: &wit.Tuple{Types: types}}, nil

	case t.Variant != nil:
		cases := make([]wit.Case, len(t.Variant))
		for i, c := range t.Variant {
			cases[i] = wit.Case{Name: c.Name}
			if c.Type != nil {
				payload, err := r.resolve(c.Type, childPath(path, c.Name))
				if err != nil {
					return nil, err
				}
				cases[i].Type = payload
			}
		}
		return &wit.TypeDef{Kind: &wit.Variant{Cases: cases}}, nil

	case t.Enum != nil:
		cases := make([]wit.EnumCase, len(t.Enum))
		for i, name := range t.Enum {
			cases[i] = wit.EnumCase{Name: name}
		}
		return &wit.TypeDef{Kind: &wit.Enum{Cases: cases}}, nil

	case t.Flags != nil:
		flags := make([]wit.Flag, len(t.Flags))
		for i, name := range t.Flags {
			flags[i] = wit.Flag{Name: name}
		}
		return &wit.TypeDef{Kind: &wit.Flags{Flags: flags}}, nil
	}

	res := &wit.Result{}
	if t.Result.OK != nil {
		ok, err := r.resolve(t.Result.OK, childPath(path, "ok"))
		if err != nil {
			return nil, err
		}
		res.OK = ok
	}
	if t.Result.Err != nil {
		e, err := r.resolve(t.Result.Err, childPath(path, "err"))
		if err != nil {
			return nil, err
		}
		res.Err = e
	}
	return &wit.TypeDef{Kind: res}, nil
}

// named resolves an entry of the types table once, so every reference to
// it shares one type definition.
func (r *resolver) named(name string, path []string) (wit.Type, error) {
	if t, ok := r.done[name]; ok {
		return t, nil
	}
	spec, ok := r.defs[name]
	if !ok {
		return nil, r.fail(path, "unknown type %q", name)
	}
	if r.active[name] {
		return nil, r.fail(path, "type %q refers to itself", name)
	}
	r.active[name] = true
	defer delete(r.active, name)

	t, err := r.resolve(&spec, []string{name})
	if err != nil {
		return nil, err
	}
	td, fresh := t.(*wit.TypeDef)
	if !fresh || spec.Ref != "" {
		// alias of a primitive or of another named type
		td = &wit.TypeDef{Kind: t}
	}
	td.Name = &name
	r.done[name] = td
	return td, nil
}

func (r *resolver) fail(path []string, msg string, args ...any) error {
	return errors.New(errors.PhaseLoad, errors.KindInvalidInput).
		Path(path...).
		Detail(msg, args...).
		Build()
}

func childPath(path []string, name string) []string {
	return append(append([]string(nil), path...), name)
}
