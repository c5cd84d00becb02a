package witshape

import (
	"github.com/invopop/jsonschema"
	"go.bytecodealliance.org/wit"
)

// Schema reflects a JSON Schema for the JSON encoding of values of t, with
// every definition inlined. Synthesized types are unnamed, so the root is
// taken from the reflected schema rather than from the definitions.
func (g *Generator) Schema(t wit.Type) (*jsonschema.Schema, error) {
	goType, err := g.GoType(t)
	if err != nil {
		return nil, err
	}
	r := &jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}
	return r.ReflectFromType(goType), nil
}
