package partial

import (
	"fmt"

	"github.com/wippyai/shapekit/errors"
)

type opKind uint8

const (
	opSet opKind = iota
	opAppend
	opInsert
	opEnd
)

// Op is one builder operation, for batch application.
type Op struct {
	key  any
	src  Source
	path Path
	kind opKind
}

func SetOp(path Path, src Source) Op {
	return Op{kind: opSet, path: path, src: src}
}

func AppendOp(src Source) Op {
	return Op{kind: opAppend, src: src}
}

func InsertOp(key any, src Source) Op {
	return Op{kind: opInsert, key: key, src: src}
}

func EndOp() Op {
	return Op{kind: opEnd}
}

func (o Op) String() string {
	switch o.kind {
	case opSet:
		return fmt.Sprintf("set %s %s", o.path, o.src)
	case opAppend:
		return fmt.Sprintf("append %s", o.src)
	case opInsert:
		return fmt.Sprintf("insert %v %s", o.key, o.src)
	}
	return "end"
}

// Apply runs ops in order and stops at the first failure, which poisons
// the builder. The returned error keeps the failing op's kind.
func (p *Partial) Apply(ops ...Op) error {
	for i, op := range ops {
		var err error
		switch op.kind {
		case opSet:
			err = p.Set(op.path, op.src)
		case opAppend:
			err = p.Append(op.src)
		case opInsert:
			err = p.Insert(op.key, op.src)
		case opEnd:
			err = p.End()
		}
		if err != nil {
			return errors.New(errors.PhaseBuild, errors.KindOf(err)).
				Cause(err).
				Detail("op %d (%s)", i, op).
				Build()
		}
	}
	return nil
}
