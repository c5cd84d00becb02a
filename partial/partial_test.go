package partial

import (
	"reflect"
	"strings"
	"testing"
	"unsafe"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/shapekit/errors"
	"github.com/wippyai/shapekit/shape"
)

func TestPartial_TwoFieldStruct(t *testing.T) {
	p, err := New[point](Immediate)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	must(t, p.Set(At(0), Imm(int32(10))))
	must(t, p.Set(At(1), Imm(int32(20))))

	got, err := Build[point](p)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got != (point{X: 10, Y: 20}) {
		t.Errorf("got %+v", got)
	}
	if p.LiveFrames() != 0 {
		t.Errorf("LiveFrames = %d after finalize", p.LiveFrames())
	}
}

func TestPartial_ListOfStrings(t *testing.T) {
	p, err := New[[]string](Immediate)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	must(t, p.Set(nil, Stage()))
	must(t, p.Append(Imm("a")))
	must(t, p.Append(Imm("b")))

	got, err := Build[[]string](p)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("got %v", got)
	}
}

func TestPartial_EnumCase(t *testing.T) {
	p, err := New[figure](Immediate)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	must(t, p.Set(At(1), Stage()))
	if p.Current().Kind != shape.KindStruct {
		t.Fatalf("cursor at %s, want the Rect payload", p.Current().Kind)
	}
	must(t, p.Set(At(0), Imm(int32(3))))
	must(t, p.Set(At(1), Imm(int32(4))))
	must(t, p.End())

	got, err := Build[figure](p)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got.Rect == nil || *got.Rect != (point{X: 3, Y: 4}) {
		t.Errorf("Rect = %v", got.Rect)
	}
	if got.Circle != nil || got.Empty != nil {
		t.Errorf("inactive cases set: %+v", got)
	}
}

func TestPartial_FieldOrderIndependence(t *testing.T) {
	type quad struct {
		A int32
		B string
		C bool
		D float64
	}
	values := []any{int32(7), "seven", true, 7.5}
	want := quad{A: 7, B: "seven", C: true, D: 7.5}

	for _, perm := range permutations(len(values)) {
		p, err := New[quad](Immediate)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		for _, i := range perm {
			must(t, p.Set(At(i), Imm(values[i])))
		}
		got, err := Build[quad](p)
		if err != nil {
			t.Fatalf("order %v: %v", perm, err)
		}
		if got != want {
			t.Errorf("order %v: got %+v", perm, got)
		}
	}
}

func TestPartial_PoisonReleasesOnce(t *testing.T) {
	dc := newDropCounter()
	alloc := newCountingAllocator(t)
	p := mustAlloc(t, dc.shape(t, reflect.TypeFor[pair]()), withAllocator(alloc, Immediate))

	must(t, p.Set(At(0), Imm(counted(10))))
	err := p.Set(At(1), Imm("oops"))
	wantKind(t, err, errors.KindTypeMismatch)

	e, _ := err.(*errors.Error)
	if e == nil || !reflect.DeepEqual(e.Path, []string{"Y"}) {
		t.Errorf("error path = %v, want [Y]", e)
	}
	if dc.drops != 1 {
		t.Errorf("drops = %d, want 1", dc.drops)
	}
	if n := alloc.outstanding(); n != 0 {
		t.Errorf("%d allocations outstanding", n)
	}

	err = p.Set(At(1), Imm(counted(1)))
	wantKind(t, err, errors.KindPoisoned)
	if pe, ok := err.(*errors.Error); !ok || pe.Cause != e {
		t.Errorf("poisoned error does not carry the original cause: %v", err)
	}
	if dc.drops != 1 {
		t.Errorf("drops = %d after poisoned op, want 1", dc.drops)
	}
}

func TestPartial_PoisonedRejectsEverything(t *testing.T) {
	p, err := New[outer](Immediate)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	must(t, p.Set(At(0, 0), Imm(int32(1))))
	wantKind(t, p.Set(At(1), Imm("bad")), errors.KindTypeMismatch)

	ops := map[string]func() error{
		"set":      func() error { return p.Set(At(0), Imm(int32(1))) },
		"append":   func() error { return p.Append(Imm("x")) },
		"insert":   func() error { return p.Insert("k", Imm(1)) },
		"end":      p.End,
		"begin":    p.BeginDeferred,
		"finish":   p.FinishDeferred,
		"finalize": func() error { _, err := p.Finalize(); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			wantKind(t, op(), errors.KindPoisoned)
		})
	}
	if p.Poisoned() == nil {
		t.Error("Poisoned() = nil")
	}
	if p.LiveFrames() != 0 {
		t.Errorf("LiveFrames = %d after poison", p.LiveFrames())
	}
	if p.Current() != nil || p.Path() != nil || p.Depth() != 0 {
		t.Error("introspection should be empty on a poisoned builder")
	}
}

func TestPartial_CompleteSlotsRejectStage(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T) (*Partial, func() error)
	}{
		{
			name: "struct field",
			build: func(t *testing.T) (*Partial, func() error) {
				p, _ := New[point](Immediate)
				must(t, p.Set(At(0), Imm(int32(1))))
				return p, func() error { return p.Set(At(0), Stage()) }
			},
		},
		{
			name: "enum case",
			build: func(t *testing.T) (*Partial, func() error) {
				p, _ := New[figure](Immediate)
				must(t, p.Set(At(1), Imm(point{X: 1})))
				return p, func() error { return p.Set(At(1), Stage()) }
			},
		},
		{
			name: "list element",
			build: func(t *testing.T) (*Partial, func() error) {
				p, _ := New[[]point](Immediate)
				must(t, p.Append(Imm(point{X: 1})))
				return p, func() error { return p.Set(At(0), Stage()) }
			},
		},
		{
			name: "map entry",
			build: func(t *testing.T) (*Partial, func() error) {
				p, _ := New[map[string]point](Immediate)
				must(t, p.Insert("k", Imm(point{X: 1})))
				return p, func() error { return p.Insert("k", Stage()) }
			},
		},
		{
			name: "option",
			build: func(t *testing.T) (*Partial, func() error) {
				p, _ := New[*point](Immediate)
				must(t, p.Set(nil, Imm(point{X: 1})))
				return p, func() error { return p.Set(nil, Stage()) }
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, stage := tt.build(t)
			wantKind(t, stage(), errors.KindAlreadyComplete)
			if p.Poisoned() == nil {
				t.Error("builder should be poisoned")
			}
		})
	}
}

func TestPartial_RestageReplacesCompleteSlot(t *testing.T) {
	p, err := New[twoPoints](Immediate)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	must(t, p.Set(At(0), Imm(point{X: 1, Y: 1})))
	must(t, p.Set(At(0), Restage()))
	must(t, p.Set(At(1), Imm(int32(2))))
	wantKind(t, p.End(), errors.KindIncomplete)
}

func TestPartial_RestageThenComplete(t *testing.T) {
	p, err := New[twoPoints](Immediate)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	must(t, p.Set(At(0), Imm(point{X: 1, Y: 1})))
	must(t, p.Set(At(0), Restage()))
	must(t, p.Set(At(0), Imm(int32(5))))
	must(t, p.Set(At(1), Imm(int32(6))))
	must(t, p.End())
	must(t, p.Set(At(1), Imm(point{})))

	got, err := Build[twoPoints](p)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got.A != (point{X: 5, Y: 6}) {
		t.Errorf("A = %+v", got.A)
	}
}

func TestPartial_OverwriteDropsOld(t *testing.T) {
	t.Run("field", func(t *testing.T) {
		dc := newDropCounter()
		p := mustAlloc(t, dc.shape(t, reflect.TypeFor[pair]()), DefaultOptions())
		must(t, p.Set(At(0), Imm(counted(1))))
		must(t, p.Set(At(0), Imm(counted(2))))
		must(t, p.Set(At(1), Imm(counted(3))))
		if dc.drops != 1 {
			t.Errorf("drops = %d, want 1", dc.drops)
		}
		got, err := Build[pair](p)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if got != (pair{X: 2, Y: 3}) {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("whole value over partial fields", func(t *testing.T) {
		dc := newDropCounter()
		p := mustAlloc(t, dc.shape(t, reflect.TypeFor[pair]()), DefaultOptions())
		must(t, p.Set(At(0), Imm(counted(1))))
		must(t, p.Set(nil, Imm(pair{X: 5, Y: 6})))
		if dc.drops != 1 {
			t.Errorf("drops = %d, want 1", dc.drops)
		}
		got, err := Build[pair](p)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if got != (pair{X: 5, Y: 6}) {
			t.Errorf("got %+v", got)
		}
		if dc.drops != 1 {
			t.Errorf("finalize dropped values: drops = %d", dc.drops)
		}
	})
}

func TestPartial_EnumSwitchDropsPayload(t *testing.T) {
	t.Run("immediate", func(t *testing.T) {
		dc := newDropCounter()
		p := mustAlloc(t, dc.shape(t, reflect.TypeFor[choice]()), DefaultOptions())
		must(t, p.Set(At(0), Imm(pair{X: 1, Y: 2})))
		must(t, p.Set(At(1), Imm(counted(9))))
		if dc.drops != 2 {
			t.Errorf("drops = %d, want 2", dc.drops)
		}
		got, err := Build[choice](p)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if got.P != nil || got.N == nil || *got.N != 9 {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("staged payload", func(t *testing.T) {
		dc := newDropCounter()
		alloc := newCountingAllocator(t)
		p := mustAlloc(t, dc.shape(t, reflect.TypeFor[choice]()), withAllocator(alloc, Deferred))
		must(t, p.Set(At(0), Stage()))
		must(t, p.Set(At(0), Imm(counted(1))))
		must(t, p.End())
		must(t, p.Set(At(1), Stage()))
		must(t, p.Set(nil, Imm(counted(7))))
		must(t, p.End())

		got, err := Build[choice](p)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if got.P != nil || got.N == nil || *got.N != 7 {
			t.Errorf("got %+v", got)
		}
		if dc.drops != 1 {
			t.Errorf("drops = %d, want 1", dc.drops)
		}
		if n := alloc.outstanding(); n != 0 {
			t.Errorf("%d allocations outstanding", n)
		}
	})

	t.Run("pointer payload", func(t *testing.T) {
		p, _ := New[figure](Immediate)
		must(t, p.Set(At(0), Imm(new(float64))))
		must(t, p.SetField("Empty", Imm(struct{}{})))
		got, err := Build[figure](p)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if got.Circle != nil || got.Empty == nil {
			t.Errorf("got %+v", got)
		}
	})
}

func TestPartial_EnumErrors(t *testing.T) {
	t.Run("case out of range", func(t *testing.T) {
		p, _ := New[figure](Immediate)
		wantKind(t, p.Set(At(5), Imm(1.0)), errors.KindInvalidVariant)
	})
	t.Run("value without active case", func(t *testing.T) {
		p, _ := New[twoFigures](Immediate)
		wantKind(t, p.Set(At(0), Imm(figure{})), errors.KindInvalidVariant)
	})
	t.Run("no case selected", func(t *testing.T) {
		p, _ := New[twoFigures](Immediate)
		must(t, p.Set(At(0), Stage()))
		wantKind(t, p.End(), errors.KindIncomplete)
	})
	t.Run("default case", func(t *testing.T) {
		p, _ := New[twoFigures](Immediate)
		must(t, p.Set(At(0), Default()))
		must(t, p.Set(At(1), Imm(figure{Circle: new(float64)})))
		got, err := Build[twoFigures](p)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if got.First.Empty == nil || got.Second.Circle == nil {
			t.Errorf("got %+v", got)
		}
	})
	t.Run("no default", func(t *testing.T) {
		type holder struct{ C choice }
		p, _ := New[holder](Immediate)
		wantKind(t, p.Set(At(0), Default()), errors.KindNoDefault)
	})
}

type twoFigures struct {
	First  figure
	Second figure
}

type profile struct {
	Name  *string
	Home  *point `shape:",required"`
	Score int32
}

func TestPartial_OptionAndPointer(t *testing.T) {
	t.Run("staged option", func(t *testing.T) {
		p, _ := New[profile](Immediate)
		must(t, p.Set(At(0), Stage()))
		if p.Current().Kind != shape.KindOption {
			t.Fatalf("cursor at %s", p.Current().Kind)
		}
		must(t, p.Set(nil, Stage()))
		must(t, p.Set(nil, Imm("ada")))
		must(t, p.End())
		must(t, p.End())
		must(t, p.Set(At(1), Imm(point{X: 1, Y: 2})))
		must(t, p.Set(At(2), Imm(int32(5))))

		got, err := Build[profile](p)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if got.Name == nil || *got.Name != "ada" {
			t.Errorf("Name = %v", got.Name)
		}
		if got.Home == nil || *got.Home != (point{X: 1, Y: 2}) {
			t.Errorf("Home = %v", got.Home)
		}
	})

	t.Run("unset option is absent", func(t *testing.T) {
		p, _ := New[profile](Immediate)
		must(t, p.Set(At(1), Imm(&point{})))
		must(t, p.Set(At(2), Imm(int32(1))))
		got, err := Build[profile](p)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if got.Name != nil {
			t.Errorf("Name = %q, want nil", *got.Name)
		}
	})

	t.Run("explicit absent", func(t *testing.T) {
		p, _ := New[profile](Immediate)
		name := "x"
		must(t, p.Set(At(0), Imm(&name)))
		must(t, p.Set(At(0), Imm(nil)))
		must(t, p.Set(At(1), Imm(&point{})))
		must(t, p.Set(At(2), Imm(int32(1))))
		got, err := Build[profile](p)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if got.Name != nil {
			t.Errorf("Name = %q, want nil", *got.Name)
		}
	})

	t.Run("staged pointer", func(t *testing.T) {
		p, _ := New[profile](Immediate)
		must(t, p.Set(At(1), Stage()))
		if p.Current().Kind != shape.KindPointer {
			t.Fatalf("cursor at %s", p.Current().Kind)
		}
		wantKind(t, p.End(), errors.KindIncomplete)
	})

	t.Run("staged pointee", func(t *testing.T) {
		p, _ := New[profile](Immediate)
		must(t, p.Set(At(1), Stage()))
		must(t, p.Set(nil, Stage()))
		must(t, p.Set(At(0), Imm(int32(3))))
		must(t, p.Set(At(1), Imm(int32(4))))
		must(t, p.End())
		must(t, p.End())
		must(t, p.Set(At(2), Imm(int32(0))))
		got, err := Build[profile](p)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if got.Home == nil || *got.Home != (point{X: 3, Y: 4}) {
			t.Errorf("Home = %v", got.Home)
		}
	})

	t.Run("required pointer missing", func(t *testing.T) {
		p, _ := New[profile](Immediate)
		must(t, p.Set(At(2), Imm(int32(1))))
		_, err := p.Finalize()
		wantKind(t, err, errors.KindFieldMissing)
		if !strings.Contains(err.Error(), `"Home"`) {
			t.Errorf("error does not name the field: %v", err)
		}
	})

	t.Run("nil pointer", func(t *testing.T) {
		p, _ := New[profile](Immediate)
		wantKind(t, p.Set(At(1), Imm((*point)(nil))), errors.KindNilPointer)
	})
}

func TestPartial_Paths(t *testing.T) {
	t.Run("multi-segment stages intermediates", func(t *testing.T) {
		p, _ := New[outer](Immediate)
		must(t, p.Set(At(0, 1), Imm(int32(5))))
		if !reflect.DeepEqual(p.Path(), []string{"In"}) || p.Depth() != 1 {
			t.Fatalf("cursor at %v depth %d", p.Path(), p.Depth())
		}
		must(t, p.Set(At(0), Imm(int32(4))))
		must(t, p.End())
		must(t, p.Set(At(1), Stage()))
		must(t, p.Append(Imm("x")))
		must(t, p.End())

		got, err := Build[outer](p)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		want := outer{In: inner{A: 4, B: 5}, Tags: []string{"x"}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("named segments", func(t *testing.T) {
		p, _ := New[outer](Immediate)
		must(t, p.Set(Path{Named("In"), Named("b")}, Imm(int32(2))))
		must(t, p.SetField("A", Imm(int32(1))))
		must(t, p.End())
		must(t, p.SetField("tags", Imm([]string{})))
		got, err := Build[outer](p)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if got.In != (inner{A: 1, B: 2}) {
			t.Errorf("In = %+v", got.In)
		}
	})

	t.Run("field path", func(t *testing.T) {
		path, ok := FieldPath(shape.MustOf[outer](), "In", "B")
		if !ok {
			t.Fatal("FieldPath failed")
		}
		if path.String() != "0.1" {
			t.Errorf("path = %s", path)
		}
		if _, ok := FieldPath(shape.MustOf[outer](), "In", "Missing"); ok {
			t.Error("FieldPath resolved a missing field")
		}
	})

	t.Run("unknown name", func(t *testing.T) {
		p, _ := New[outer](Immediate)
		wantKind(t, p.SetField("Nope", Imm(1)), errors.KindInvalidPath)
	})

	t.Run("crossing a list mid-path", func(t *testing.T) {
		p, _ := New[outer](Immediate)
		wantKind(t, p.Set(At(1, 0, 0), Imm("x")), errors.KindInvalidPath)
	})

	t.Run("root segment", func(t *testing.T) {
		p, _ := New[outer](Immediate)
		must(t, p.Set(At(0, 0), Imm(int32(1))))
		must(t, p.Set(At(1), Imm(int32(2))))
		must(t, p.Set(Path{Root(), Field(1)}, Stage()))
		if !reflect.DeepEqual(p.Path(), []string{"Tags"}) {
			t.Errorf("cursor at %v", p.Path())
		}
	})

	t.Run("root segment from incomplete frame", func(t *testing.T) {
		p, _ := New[outer](Immediate)
		must(t, p.Set(At(0, 0), Imm(int32(1))))
		wantKind(t, p.Set(Path{Root(), Field(1)}, Stage()), errors.KindIncomplete)
	})

	t.Run("root segment not first", func(t *testing.T) {
		p, _ := New[outer](Immediate)
		wantKind(t, p.Set(Path{Field(0), Root()}, Imm(1)), errors.KindInvalidPath)
	})

	t.Run("index out of range", func(t *testing.T) {
		p, _ := New[point](Immediate)
		wantKind(t, p.Set(At(2), Imm(int32(1))), errors.KindOutOfBounds)
	})

	t.Run("path strings", func(t *testing.T) {
		if s := (Path{}).String(); s != "." {
			t.Errorf("empty path = %q", s)
		}
		if s := (Path{Root(), Named("In"), Field(1)}).String(); s != "$.In.1" {
			t.Errorf("path = %q", s)
		}
	})
}

func TestPartial_End(t *testing.T) {
	t.Run("pop at root", func(t *testing.T) {
		p, _ := New[point](Immediate)
		wantKind(t, p.End(), errors.KindPopAtRoot)
	})

	t.Run("incomplete in immediate mode", func(t *testing.T) {
		p, _ := New[outer](Immediate)
		must(t, p.Set(At(0, 0), Imm(int32(1))))
		err := p.End()
		wantKind(t, err, errors.KindIncomplete)
		if !strings.Contains(err.Error(), `"B"`) {
			t.Errorf("error does not name the field: %v", err)
		}
	})

	t.Run("frames are released", func(t *testing.T) {
		p, _ := New[outer](Immediate)
		must(t, p.Set(At(0), Stage()))
		if p.LiveFrames() != 2 {
			t.Errorf("LiveFrames = %d, want 2", p.LiveFrames())
		}
		must(t, p.Set(At(0), Imm(int32(1))))
		must(t, p.Set(At(1), Imm(int32(1))))
		must(t, p.End())
		if p.LiveFrames() != 1 {
			t.Errorf("LiveFrames = %d, want 1", p.LiveFrames())
		}
	})
}

func TestPartial_Defaults(t *testing.T) {
	type settings struct {
		Name string
		Note string `shape:",optional"`
		Nick *string
	}

	t.Run("optional fields", func(t *testing.T) {
		p, _ := New[settings](Immediate)
		must(t, p.Set(At(0), Imm("x")))
		got, err := Build[settings](p)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if got != (settings{Name: "x"}) {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("implicit defaults disabled", func(t *testing.T) {
		opts := DefaultOptions()
		opts.NoImplicitDefaults = true
		p := mustAlloc(t, shape.MustOf[settings](), opts)
		must(t, p.Set(At(0), Imm("x")))
		_, err := p.Finalize()
		wantKind(t, err, errors.KindFieldMissing)
		if !strings.Contains(err.Error(), `"Note"`) {
			t.Errorf("error does not name Note: %v", err)
		}
	})

	t.Run("default source", func(t *testing.T) {
		p, _ := New[settings](Immediate)
		must(t, p.Set(At(0), Default()))
		must(t, p.Set(At(2), Default()))
		got, err := Build[settings](p)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if got != (settings{}) {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("required field missing", func(t *testing.T) {
		p, _ := New[settings](Immediate)
		_, err := p.Finalize()
		wantKind(t, err, errors.KindFieldMissing)
		if p.Poisoned() == nil {
			t.Error("failed finalize should poison")
		}
	})
}

func TestPartial_PointerSources(t *testing.T) {
	s := shape.MustOf[point]()

	t.Run("copy", func(t *testing.T) {
		src := point{X: 1, Y: 2}
		p, _ := New[twoPoints](Immediate)
		must(t, p.Set(At(0), CopyFrom(s, unsafe.Pointer(&src))))
		must(t, p.Set(At(1), ImmPtr(s, unsafe.Pointer(&src))))
		got, err := Build[twoPoints](p)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if got.A != src || got.B != src {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("type mismatch", func(t *testing.T) {
		v := int32(1)
		p, _ := New[twoPoints](Immediate)
		wantKind(t, p.Set(At(0), CopyFrom(shape.MustOf[int32](), unsafe.Pointer(&v))), errors.KindTypeMismatch)
	})

	t.Run("nil", func(t *testing.T) {
		p, _ := New[twoPoints](Immediate)
		wantKind(t, p.Set(At(0), ImmPtr(s, nil)), errors.KindNilPointer)
	})
}

func TestPartial_Build(t *testing.T) {
	p, _ := New[point](Immediate)
	must(t, p.Set(nil, Imm(point{X: 1})))

	_, err := Build[string](p)
	wantKind(t, err, errors.KindTypeMismatch)
	if p.Poisoned() != nil {
		t.Fatal("type mismatch in Build must not poison")
	}

	got, err := Build[point](p)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got != (point{X: 1}) {
		t.Errorf("got %+v", got)
	}

	_, err = p.Finalize()
	wantKind(t, err, errors.KindUnsupported)
}

func TestPartial_AllocNilShape(t *testing.T) {
	_, err := Alloc(nil, Immediate)
	wantKind(t, err, errors.KindNilPointer)
}

func TestPartial_Apply(t *testing.T) {
	p, _ := New[outer](Immediate)
	err := p.Apply(
		SetOp(At(0, 0), Imm(int32(1))),
		SetOp(At(1), Imm(int32(2))),
		EndOp(),
		SetOp(At(1), Stage()),
		AppendOp(Imm("a")),
		EndOp(),
	)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	got, err := Build[outer](p)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	want := outer{In: inner{A: 1, B: 2}, Tags: []string{"a"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v", got)
	}

	p, _ = New[map[string]int](Immediate)
	err = p.Apply(InsertOp("a", Imm(1)), InsertOp(2, Imm(1)))
	wantKind(t, err, errors.KindTypeMismatch)
	if !strings.Contains(err.Error(), "op 1 (insert 2 imm)") {
		t.Errorf("error does not name the op: %v", err)
	}
}

func TestPartial_Logging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	prev := Logger()
	SetLogger(zap.New(core))
	defer SetLogger(prev)

	p, _ := New[outer](Immediate)
	must(t, p.Set(At(0), Stage()))
	wantKind(t, p.Set(At(0), Imm("x")), errors.KindTypeMismatch)

	if logs.FilterMessage("builder allocated").Len() != 1 {
		t.Error("allocation not logged")
	}
	poisoned := logs.FilterMessage("builder poisoned").All()
	if len(poisoned) != 1 {
		t.Fatalf("got %d poison entries", len(poisoned))
	}
	if n := poisoned[0].ContextMap()["frames_released"]; n != int64(2) {
		t.Errorf("frames_released = %v, want 2", n)
	}
	failed := logs.FilterMessage("operation failed").All()
	if len(failed) != 1 || failed[0].ContextMap()["op"] != "set" {
		t.Errorf("failed op not logged: %v", failed)
	}
}

func TestMode_String(t *testing.T) {
	if Immediate.String() != "immediate" || Deferred.String() != "deferred" {
		t.Error("unexpected mode names")
	}
	if Mode(9).String() != "unknown" {
		t.Error("unexpected name for an unknown mode")
	}
}
