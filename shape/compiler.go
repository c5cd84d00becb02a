package shape

import (
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/wippyai/shapekit/errors"
)

// Compiler derives shapes from Go types and caches them.
type Compiler struct {
	cache     sync.Map // cacheKey -> *Shape
	overrides map[reflect.Type]VTable
	names     map[reflect.Type]string
	mu        sync.Mutex
}

type cacheKey struct {
	goType reflect.Type
	// pointer types compile to KindPointer instead of KindOption
	required bool
}

// compileState tracks shapes created by one top-level Compile call. Entries
// are visible to recursive references before their children are done.
type compileState struct {
	building map[cacheKey]*Shape
}

func NewCompiler() *Compiler {
	return &Compiler{}
}

// Override installs operations for a Go type. Non-nil entries of vt replace
// the derived ones. It affects shapes compiled after the call. Maps and sets
// whose key type carries an Equal override do not compile.
func (c *Compiler) Override(t reflect.Type, vt VTable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.overrides == nil {
		c.overrides = make(map[reflect.Type]VTable)
	}
	c.overrides[t] = vt
}

// SetName gives shapes of t a display name other than the Go type string.
// Generated types use it to carry the name of the type they were made from.
func (c *Compiler) SetName(t reflect.Type, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.names == nil {
		c.names = make(map[reflect.Type]string)
	}
	c.names[t] = name
}

func (c *Compiler) Compile(goType reflect.Type) (*Shape, error) {
	if goType == nil {
		return nil, errors.New(errors.PhaseCompile, errors.KindNilPointer).
			Detail("Go type cannot be nil").
			Build()
	}

	key := cacheKey{goType: goType}
	if cached, ok := c.cache.Load(key); ok {
		return cached.(*Shape), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st := &compileState{building: make(map[cacheKey]*Shape)}
	s, err := c.compile(st, goType, false, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range st.building {
		c.cache.Store(k, v)
	}
	return s, nil
}

func (c *Compiler) compile(st *compileState, t reflect.Type, required bool, path []string) (*Shape, error) {
	key := cacheKey{goType: t, required: required && t.Kind() == reflect.Pointer}
	if cached, ok := c.cache.Load(key); ok {
		return cached.(*Shape), nil
	}
	if s, ok := st.building[key]; ok {
		return s, nil
	}

	s := &Shape{
		GoType:         t,
		Name:           t.String(),
		Layout:         Layout{Size: t.Size(), Align: uintptr(t.Align())},
		DefaultVariant: -1,
	}
	if name, ok := c.names[t]; ok {
		s.Name = name
	}
	st.building[key] = s

	var err error
	switch t.Kind() {
	case reflect.Bool:
		s.Kind = KindBool
	case reflect.Int:
		s.Kind = KindInt
	case reflect.Int8:
		s.Kind = KindInt8
	case reflect.Int16:
		s.Kind = KindInt16
	case reflect.Int32:
		s.Kind = KindInt32
	case reflect.Int64:
		s.Kind = KindInt64
	case reflect.Uint:
		s.Kind = KindUint
	case reflect.Uint8:
		s.Kind = KindUint8
	case reflect.Uint16:
		s.Kind = KindUint16
	case reflect.Uint32:
		s.Kind = KindUint32
	case reflect.Uint64:
		s.Kind = KindUint64
	case reflect.Uintptr:
		s.Kind = KindUintptr
	case reflect.Float32:
		s.Kind = KindFloat32
	case reflect.Float64:
		s.Kind = KindFloat64
	case reflect.String:
		s.Kind = KindString
	case reflect.Struct:
		err = c.compileStruct(st, s, path)
	case reflect.Array:
		s.Kind = KindArray
		s.Len = t.Len()
		s.Elem, err = c.compile(st, t.Elem(), false, childPath(path, "[elem]"))
	case reflect.Slice:
		s.Kind = KindList
		s.Elem, err = c.compile(st, t.Elem(), false, childPath(path, "[elem]"))
	case reflect.Map:
		err = c.compileMap(st, s, path)
	case reflect.Pointer:
		s.Kind = KindOption
		if key.required {
			s.Kind = KindPointer
		}
		s.Elem, err = c.compile(st, t.Elem(), false, childPath(path, "*"))
	default:
		// interfaces, funcs, chans, complex numbers
		s.Kind = KindOpaque
	}
	if err != nil {
		return nil, err
	}

	s.VTable = defaultVTable(s)
	if o, ok := c.overrides[t]; ok {
		s.VTable = s.VTable.merge(o)
	}
	return s, nil
}

func (c *Compiler) compileStruct(st *compileState, s *Shape, path []string) error {
	t := s.GoType
	if t.NumField() > 0 && t.Field(0).Type == oneOfType {
		return c.compileEnum(st, s, path)
	}

	s.Kind = KindStruct
	fields := make([]Field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := parseTag(sf.Tag.Get("shape"))
		if tag.skip {
			continue
		}
		name := tag.name
		if name == "" {
			name = sf.Name
		}

		fs, err := c.compile(st, sf.Type, tag.required, childPath(path, name))
		if err != nil {
			return err
		}

		fields = append(fields, Field{
			Shape:    fs,
			Name:     name,
			GoName:   sf.Name,
			Index:    len(fields),
			Offset:   sf.Offset,
			Optional: tag.optional || tag.dflt || (fs.Kind == KindOption && !tag.required),
		})
	}

	// Structs that only carry private state, like time.Time, are leaves.
	if len(fields) == 0 && t.NumField() > 0 {
		s.Kind = KindOpaque
		return nil
	}

	s.Fields = fields
	return nil
}

func (c *Compiler) compileEnum(st *compileState, s *Shape, path []string) error {
	t := s.GoType
	s.Kind = KindEnum

	for i := 1; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := parseTag(sf.Tag.Get("shape"))
		if tag.skip {
			continue
		}
		name := tag.name
		if name == "" {
			name = sf.Name
		}
		casePath := childPath(path, name)

		if sf.Type.Kind() != reflect.Pointer {
			return errors.New(errors.PhaseCompile, errors.KindTypeMismatch).
				Path(casePath...).
				GoType(sf.Type.String()).
				Shape("enum case").
				Detail("enum cases must be pointers").
				Build()
		}

		payload, err := c.compile(st, sf.Type.Elem(), false, casePath)
		if err != nil {
			return err
		}

		if tag.dflt {
			if s.DefaultVariant >= 0 {
				return errors.New(errors.PhaseCompile, errors.KindInvalidVariant).
					Path(casePath...).
					Detail("enum %s has more than one default case", t).
					Build()
			}
			s.DefaultVariant = len(s.Variants)
		}

		elem := sf.Type.Elem()
		s.Variants = append(s.Variants, Variant{
			Shape:  payload,
			Name:   name,
			GoName: sf.Name,
			Index:  len(s.Variants),
			Offset: sf.Offset,
			Unit:   elem.Kind() == reflect.Struct && elem.NumField() == 0,
		})
	}

	if len(s.Variants) == 0 {
		return errors.Unsupported(errors.PhaseCompile, path, "enum "+t.String()+" has no cases")
	}
	return nil
}

func (c *Compiler) compileMap(st *compileState, s *Shape, path []string) error {
	t := s.GoType
	elem := t.Elem()
	if bad, ok := c.keyEqualOverride(t.Key(), map[reflect.Type]bool{}); ok {
		return errors.Unsupported(errors.PhaseCompile, path,
			"key type "+t.Key().String()+" has a custom Equal through "+bad.String()+"; Go maps compare keys with ==")
	}
	if elem.Kind() == reflect.Struct && elem.NumField() == 0 {
		s.Kind = KindSet
		var err error
		s.Elem, err = c.compile(st, t.Key(), false, childPath(path, "[elem]"))
		return err
	}

	s.Kind = KindMap
	var err error
	if s.Key, err = c.compile(st, t.Key(), false, childPath(path, "[key]")); err != nil {
		return err
	}
	s.Elem, err = c.compile(st, elem, false, childPath(path, "[value]"))
	return err
}

// keyEqualOverride finds a type inside a map key whose override replaces
// Equal. Pointers are compared by address and are not followed.
func (c *Compiler) keyEqualOverride(t reflect.Type, seen map[reflect.Type]bool) (reflect.Type, bool) {
	if seen[t] {
		return nil, false
	}
	seen[t] = true
	if o, ok := c.overrides[t]; ok && o.Equal != nil {
		return t, true
	}
	switch t.Kind() {
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if bad, ok := c.keyEqualOverride(t.Field(i).Type, seen); ok {
				return bad, true
			}
		}
	case reflect.Array:
		return c.keyEqualOverride(t.Elem(), seen)
	}
	return nil, false
}

func childPath(path []string, seg string) []string {
	return append(append([]string{}, path...), seg)
}

type fieldTag struct {
	name     string
	optional bool
	required bool
	dflt     bool
	skip     bool
}

// parseTag reads `shape:"name,optional,required,default"` or `shape:"-"`.
func parseTag(tag string) fieldTag {
	if tag == "-" {
		return fieldTag{skip: true}
	}
	parts := strings.Split(tag, ",")
	ft := fieldTag{name: parts[0]}
	for _, opt := range parts[1:] {
		switch strings.TrimSpace(opt) {
		case "optional":
			ft.optional = true
		case "required":
			ft.required = true
		case "default":
			ft.dflt = true
		}
	}
	return ft
}

func toKebabCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				result.WriteByte('-')
			}
			result.WriteRune(unicode.ToLower(r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

var defaultCompiler = NewCompiler()

// For compiles t with the package-level compiler.
func For(t reflect.Type) (*Shape, error) {
	return defaultCompiler.Compile(t)
}

// Of compiles T with the package-level compiler.
func Of[T any]() (*Shape, error) {
	return For(reflect.TypeFor[T]())
}

// MustOf is like Of but panics on error. Intended for package-level vars.
func MustOf[T any]() *Shape {
	s, err := Of[T]()
	if err != nil {
		panic(err)
	}
	return s
}
