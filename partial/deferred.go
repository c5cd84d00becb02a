package partial

import (
	"github.com/wippyai/shapekit/errors"
)

// BeginDeferred opens a deferred region at the cursor. Until the region is
// finished, End leaves incomplete frames attached and staging the same
// location again re-enters them.
func (p *Partial) BeginDeferred() error {
	return p.run("begin-deferred", func() error {
		if p.mode == Deferred {
			return p.fail(p.cursor, errors.KindUnsupported).
				Detail("deferred region already open").
				Build()
		}
		p.mode = Deferred
		p.boundary = p.cursor
		return nil
	})
}

// FinishDeferred closes the deferred region. Every frame staged below the
// region's start is resolved depth-first: defaults are applied, the frame
// must be complete, and it is moved into its parent. The cursor returns to
// the frame where the region began.
func (p *Partial) FinishDeferred() error {
	return p.run("finish-deferred", func() error {
		return p.finishDeferred(errors.PhaseBuild)
	})
}

func (p *Partial) finishDeferred(phase errors.Phase) error {
	if p.mode != Deferred {
		return p.fail(p.cursor, errors.KindUnsupported).
			Detail("no deferred region is open").
			Build()
	}

	b := p.boundary
	p.cursor = b
	for _, child := range p.arena.get(b).stagedChildren() {
		if err := p.resolve(child, phase); err != nil {
			return err
		}
		p.attach(child)
	}

	p.mode = Immediate
	p.boundary = noFrame
	return nil
}

// resolve completes everything staged below idx, then idx itself.
func (p *Partial) resolve(idx Idx, phase errors.Phase) error {
	for _, child := range p.arena.get(idx).stagedChildren() {
		if err := p.resolve(child, phase); err != nil {
			return err
		}
		p.attach(child)
	}
	p.fillDefaults(p.arena.get(idx))
	return p.checkComplete(idx, phase)
}
