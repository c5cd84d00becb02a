package witshape

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/shapekit/errors"
	"github.com/wippyai/shapekit/shape"
)

const pkgPath = "github.com/wippyai/shapekit/witshape"

var (
	oneOfType = reflect.TypeFor[shape.OneOf]()
	unitType  = reflect.TypeFor[struct{}]()
)

// Generator synthesizes Go types for WIT types and compiles them into
// shapes. Synthesized types are cached per type definition.
type Generator struct {
	compiler *shape.Compiler
	types    map[*wit.TypeDef]reflect.Type
	mu       sync.Mutex
}

// New creates a generator that compiles through c. A nil c gets a private
// compiler.
func New(c *shape.Compiler) *Generator {
	if c == nil {
		c = shape.NewCompiler()
	}
	return &Generator{
		compiler: c,
		types:    make(map[*wit.TypeDef]reflect.Type),
	}
}

// Compiler returns the compiler shapes are built with.
func (g *Generator) Compiler() *shape.Compiler {
	return g.compiler
}

// Shape returns the shape of the Go type synthesized for t.
func (g *Generator) Shape(t wit.Type) (*shape.Shape, error) {
	goType, err := g.GoType(t)
	if err != nil {
		return nil, err
	}
	return g.compiler.Compile(goType)
}

// GoType returns the Go type used to hold values of t.
func (g *Generator) GoType(t wit.Type) (reflect.Type, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.goType(t, nil)
}

func (g *Generator) goType(t wit.Type, path []string) (reflect.Type, error) {
	switch td := t.(type) {
	case wit.Bool:
		return reflect.TypeFor[bool](), nil
	case wit.U8:
		return reflect.TypeFor[uint8](), nil
	case wit.S8:
		return reflect.TypeFor[int8](), nil
	case wit.U16:
		return reflect.TypeFor[uint16](), nil
	case wit.S16:
		return reflect.TypeFor[int16](), nil
	case wit.U32:
		return reflect.TypeFor[uint32](), nil
	case wit.S32:
		return reflect.TypeFor[int32](), nil
	case wit.U64:
		return reflect.TypeFor[uint64](), nil
	case wit.S64:
		return reflect.TypeFor[int64](), nil
	case wit.F32:
		return reflect.TypeFor[float32](), nil
	case wit.F64:
		return reflect.TypeFor[float64](), nil
	case wit.Char:
		return reflect.TypeFor[rune](), nil
	case wit.String:
		return reflect.TypeFor[string](), nil
	case *wit.TypeDef:
		if cached, ok := g.types[td]; ok {
			return cached, nil
		}
		goType, err := g.typeDef(td, path)
		if err != nil {
			return nil, err
		}
		g.types[td] = goType
		if _, alias := td.Kind.(wit.Type); td.Name != nil && !alias && goType.Kind() == reflect.Struct {
			g.compiler.SetName(goType, *td.Name)
		}
		return goType, nil
	case nil:
		return nil, errors.New(errors.PhaseCompile, errors.KindNilPointer).
			Path(path...).
			Detail("WIT type cannot be nil").
			Build()
	}
	return nil, errors.New(errors.PhaseCompile, errors.KindUnsupported).
		Path(path...).
		Detail("unsupported WIT type: %T", t).
		Build()
}

func (g *Generator) typeDef(td *wit.TypeDef, path []string) (reflect.Type, error) {
	switch kind := td.Kind.(type) {
	case *wit.Record:
		return g.record(kind, path)
	case *wit.List:
		elem, err := g.goType(kind.Type, childPath(path, "[elem]"))
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(elem), nil
	case *wit.Tuple:
		return g.tuple(kind, path)
	case *wit.Option:
		elem, err := g.goType(kind.Type, childPath(path, "?"))
		if err != nil {
			return nil, err
		}
		return reflect.PointerTo(elem), nil
	case *wit.Result:
		return g.result(kind, path)
	case *wit.Variant:
		cases := make([]namedType, len(kind.Cases))
		for i, c := range kind.Cases {
			cases[i] = namedType{name: c.Name, typ: c.Type}
		}
		return g.oneOf(cases, path)
	case *wit.Enum:
		cases := make([]namedType, len(kind.Cases))
		for i, c := range kind.Cases {
			cases[i] = namedType{name: c.Name}
		}
		return g.oneOf(cases, path)
	case *wit.Flags:
		return g.flags(kind, path)
	case *wit.Own, *wit.Borrow:
		// resource handles are table indices
		return reflect.TypeFor[uint32](), nil
	case wit.Type:
		return g.goType(kind, path)
	}
	return nil, errors.New(errors.PhaseCompile, errors.KindUnsupported).
		Path(path...).
		Detail("unsupported TypeDef kind: %T", td.Kind).
		Build()
}

func (g *Generator) record(r *wit.Record, path []string) (reflect.Type, error) {
	fields := make([]reflect.StructField, 0, len(r.Fields))
	for _, f := range r.Fields {
		ft, err := g.goType(f.Type, childPath(path, f.Name))
		if err != nil {
			return nil, err
		}
		fields = append(fields, exportedField(f.Name, ft))
	}
	return structOf(fields, path)
}

func (g *Generator) tuple(t *wit.Tuple, path []string) (reflect.Type, error) {
	fields := make([]reflect.StructField, 0, len(t.Types))
	for i, elem := range t.Types {
		name := strconv.Itoa(i)
		ft, err := g.goType(elem, childPath(path, "["+name+"]"))
		if err != nil {
			return nil, err
		}
		fields = append(fields, reflect.StructField{
			Name: "F" + name,
			Type: ft,
			Tag:  fieldTag(name),
		})
	}
	return structOf(fields, path)
}

func (g *Generator) result(r *wit.Result, path []string) (reflect.Type, error) {
	return g.oneOf([]namedType{
		{name: "ok", typ: r.OK},
		{name: "err", typ: r.Err},
	}, path)
}

func (g *Generator) flags(f *wit.Flags, path []string) (reflect.Type, error) {
	fields := make([]reflect.StructField, 0, len(f.Flags))
	for _, flag := range f.Flags {
		sf := exportedField(flag.Name, reflect.TypeFor[bool]())
		sf.Tag = reflect.StructTag(fmt.Sprintf(`shape:"%s,optional" json:"%s,omitempty" yaml:"%s,omitempty"`, flag.Name, flag.Name, flag.Name))
		fields = append(fields, sf)
	}
	return structOf(fields, path)
}

type namedType struct {
	typ  wit.Type // nil for a case without payload
	name string
}

// oneOf builds an enum struct: a leading OneOf marker followed by one
// pointer field per case.
func (g *Generator) oneOf(cases []namedType, path []string) (reflect.Type, error) {
	if len(cases) == 0 {
		return nil, errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Path(path...).
			Detail("variant has no cases").
			Build()
	}
	fields := make([]reflect.StructField, 0, len(cases)+1)
	fields = append(fields, reflect.StructField{
		Name:    "_",
		Type:    oneOfType,
		PkgPath: pkgPath,
	})
	for _, c := range cases {
		payload := unitType
		if c.typ != nil {
			var err error
			if payload, err = g.goType(c.typ, childPath(path, c.name)); err != nil {
				return nil, err
			}
		}
		fields = append(fields, exportedField(c.name, reflect.PointerTo(payload)))
	}
	return structOf(fields, path)
}

func exportedField(witName string, t reflect.Type) reflect.StructField {
	return reflect.StructField{
		Name: GoName(witName),
		Type: t,
		Tag:  fieldTag(witName),
	}
}

func fieldTag(name string) reflect.StructTag {
	return reflect.StructTag(fmt.Sprintf(`shape:"%s" json:"%s" yaml:"%s"`, name, name, name))
}

// structOf reports reflect.StructOf's panics, such as two WIT names
// mapping to the same Go name, as errors.
func structOf(fields []reflect.StructField, path []string) (t reflect.Type, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.PhaseCompile, errors.KindInvalidInput).
				Path(path...).
				Detail("cannot synthesize struct: %v", r).
				Build()
		}
	}()
	return reflect.StructOf(fields), nil
}

// GoName converts a kebab-case WIT identifier to an exported Go name:
// "first-name" becomes "FirstName". A leading '%' escape is dropped.
func GoName(witName string) string {
	witName = strings.TrimPrefix(witName, "%")
	var b strings.Builder
	upper := true
	for _, r := range witName {
		if r == '-' || r == '_' {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		} else {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "X"
	}
	name := b.String()
	if !unicode.IsLetter([]rune(name)[0]) {
		name = "X" + name
	}
	return name
}

func childPath(path []string, name string) []string {
	return append(append([]string(nil), path...), name)
}
