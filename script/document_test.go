package script

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/shapekit/errors"
	"github.com/wippyai/shapekit/partial"
	"github.com/wippyai/shapekit/shape"
	"github.com/wippyai/shapekit/witshape"
)

const drawing = `
name: drawing
types:
  point:
    record:
      - {name: x, type: s32}
      - {name: y, type: s32}
  figure:
    variant:
      - {name: circle, type: f64}
      - {name: rect, type: point}
      - {name: empty}
  coord: point
type:
  record:
    - {name: title, type: string}
    - {name: origin, type: coord}
    - {name: figures, type: {list: figure}}
    - {name: note, type: {option: string}}
    - {name: perms, type: {flags: [read, write]}}
mode: deferred
ops: |
  set title = "sketch"
  set figures stage
  append stage
  set rect stage
  set x = 1
  set y = 2
  end
  end
  append = {circle: 0.5}
  end
  set origin.x = 10
  set $.perms stage
  set write = true
  end
  set origin.y = 20
`

func loadString(t *testing.T, src string) *Document {
	t.Helper()
	doc, err := Load(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return doc
}

func TestDocument_WIT(t *testing.T) {
	doc := loadString(t, drawing)
	typ, err := doc.WIT()
	if err != nil {
		t.Fatalf("WIT failed: %v", err)
	}
	td, ok := typ.(*wit.TypeDef)
	if !ok || td.Name == nil || *td.Name != "drawing" {
		t.Fatalf("root = %#v", typ)
	}
	rec, ok := td.Kind.(*wit.Record)
	if !ok || len(rec.Fields) != 5 {
		t.Fatalf("root kind = %T", td.Kind)
	}

	origin, ok := rec.Fields[1].Type.(*wit.TypeDef)
	if !ok || origin.Name == nil || *origin.Name != "coord" {
		t.Fatalf("origin = %#v", rec.Fields[1].Type)
	}
	pt, ok := origin.Kind.(*wit.TypeDef)
	if !ok || *pt.Name != "point" {
		t.Errorf("coord should alias point, got %T", origin.Kind)
	}

	figures := rec.Fields[2].Type.(*wit.TypeDef).Kind.(*wit.List)
	fig := figures.Type.(*wit.TypeDef)
	v := fig.Kind.(*wit.Variant)
	if v.Cases[1].Type != pt {
		t.Error("named types should be shared between references")
	}
	if v.Cases[2].Type != nil {
		t.Error("unit case has a payload")
	}
}

func TestDocument_Run(t *testing.T) {
	doc := loadString(t, drawing)
	opts, err := doc.Options()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Mode != partial.Deferred {
		t.Errorf("mode = %s", opts.Mode)
	}

	g := witshape.New(nil)
	v, err := doc.Run(g, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if v.FieldByName("Title").String() != "sketch" {
		t.Errorf("title = %v", v.FieldByName("Title"))
	}
	origin := v.FieldByName("Origin")
	if origin.FieldByName("X").Int() != 10 || origin.FieldByName("Y").Int() != 20 {
		t.Errorf("origin = %v", origin)
	}
	figs := v.FieldByName("Figures")
	if figs.Len() != 2 {
		t.Fatalf("figures = %v", figs)
	}
	rect := figs.Index(0).FieldByName("Rect")
	if rect.IsNil() || rect.Elem().FieldByName("Y").Int() != 2 {
		t.Errorf("figure 0 = %v", figs.Index(0))
	}
	circle := figs.Index(1).FieldByName("Circle")
	if circle.IsNil() || circle.Elem().Float() != 0.5 {
		t.Errorf("figure 1 = %v", figs.Index(1))
	}
	if !v.FieldByName("Note").IsNil() {
		t.Error("absent option should stay empty")
	}
	perms := v.FieldByName("Perms")
	if perms.FieldByName("Read").Bool() || !perms.FieldByName("Write").Bool() {
		t.Errorf("perms = %v", perms)
	}

	s, err := doc.Shape(g)
	if err != nil {
		t.Fatal(err)
	}
	if s.Name != "drawing" || s.Kind != shape.KindStruct {
		t.Errorf("shape = %s", s)
	}
}

func TestDocument_RunReportsFailingLine(t *testing.T) {
	doc := loadString(t, `
type: {record: [{name: a, type: u8}, {name: b, type: u8}]}
ops: |
  set a = 1
  end
`)
	opts, _ := doc.Options()
	_, err := doc.Run(witshape.New(nil), opts)
	if !errors.IsKind(err, errors.KindPopAtRoot) || !strings.Contains(err.Error(), "line 2: end") {
		t.Errorf("got %v", err)
	}
}

func TestDocument_RunMissingField(t *testing.T) {
	doc := loadString(t, `
type: {record: [{name: a, type: u8}, {name: b, type: u8}]}
ops: set a = 1
`)
	opts, _ := doc.Options()
	_, err := doc.Run(witshape.New(nil), opts)
	if !errors.IsKind(err, errors.KindFieldMissing) {
		t.Errorf("got %v, want field_missing", err)
	}
}

func TestDocument_Errors(t *testing.T) {
	tests := []struct {
		name, src string
	}{
		{"unknown type", "type: vec3\nops: end"},
		{"cycle", "types:\n  a: b\n  b: {list: a}\ntype: a\nops: end"},
		{"two constructors", "type: {list: u8, option: u8}\nops: end"},
		{"no constructor", "type: {}\nops: end"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := loadString(t, tt.src)
			_, err := doc.WIT()
			if !errors.IsKind(err, errors.KindInvalidInput) {
				t.Fatalf("got %v, want invalid_input", err)
			}
			if err.(*errors.Error).Phase != errors.PhaseLoad {
				t.Errorf("phase = %s", err.(*errors.Error).Phase)
			}
		})
	}

	t.Run("unknown key", func(t *testing.T) {
		_, err := Load(strings.NewReader("type: u8\nops: end\nextra: 1"))
		if !errors.IsKind(err, errors.KindInvalidInput) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("bad mode", func(t *testing.T) {
		doc := loadString(t, "type: u8\nmode: lazy\nops: end")
		if _, err := doc.Options(); !errors.IsKind(err, errors.KindInvalidInput) {
			t.Errorf("got %v", err)
		}
	})
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.yaml")
	if err := os.WriteFile(path, []byte("type: {list: string}\nops: |\n  append = a\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	doc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	v, err := doc.Run(witshape.New(nil), partial.DefaultOptions())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := v.Interface().([]string); len(got) != 1 || got[0] != "a" {
		t.Errorf("got %v", got)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("missing file: %v", err)
	}
}
