package partial

import (
	"strconv"
	"strings"

	"github.com/wippyai/shapekit/shape"
)

// PathSegment is one navigation step relative to the cursor.
type PathSegment struct {
	name  string
	index int
	root  bool
}

// Path is an ordered list of segments. An empty path targets the cursor.
type Path []PathSegment

// Field addresses child i: a struct field, array or list element, or enum case.
func Field(i int) PathSegment {
	return PathSegment{index: i}
}

// Named addresses a struct field or enum case by name, resolved against the
// frame it is applied to.
func Named(name string) PathSegment {
	return PathSegment{name: name, index: -1}
}

// Root ends frames up to the root before the rest of the path is applied.
// It is only valid as the first segment.
func Root() PathSegment {
	return PathSegment{root: true}
}

// At builds a path of index segments.
func At(indices ...int) Path {
	p := make(Path, len(indices))
	for i, idx := range indices {
		p[i] = Field(idx)
	}
	return p
}

// FieldPath resolves a chain of field names through nested struct shapes.
func FieldPath(s *shape.Shape, names ...string) (Path, bool) {
	p := make(Path, 0, len(names))
	for _, name := range names {
		if s.Kind != shape.KindStruct {
			return nil, false
		}
		i, ok := s.FieldIndex(name)
		if !ok {
			return nil, false
		}
		p = append(p, Field(i))
		s = s.Fields[i].Shape
	}
	return p, true
}

func (s PathSegment) String() string {
	switch {
	case s.root:
		return "$"
	case s.name != "":
		return s.name
	}
	return strconv.Itoa(s.index)
}

func (p Path) String() string {
	if len(p) == 0 {
		return "."
	}
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}
