package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/vmwire"
	"github.com/wippyai/vmwire/errors"
)

type program struct {
	engine *Engine
	mod    api.Module
	name   string
	// fns[i] is the eval handle used at nesting level i
	fns   []api.Function
	level int
	id    vmwire.ID
}

func (p *program) Eval(ctx context.Context, vector uint16) (vmwire.Halt, error) {
	if p.mod == nil {
		return vmwire.HaltSkip, errors.NotInitialized(errors.PhaseEval, "program (closed)")
	}
	if p.level == len(p.fns) {
		p.fns = append(p.fns, p.mod.ExportedFunction(ExportEval))
	}
	fn := p.fns[p.level]
	p.level++
	defer func() { p.level-- }()

	if _, err := fn.Call(ctx, uint64(vector)); err != nil {
		return vmwire.HaltFault, errors.Fault(int(p.id), vector, err)
	}
	return vmwire.HaltBreak, nil
}

func (p *program) Close(ctx context.Context) error {
	if p.mod == nil {
		return nil
	}
	err := p.mod.Close(ctx)
	p.engine.buses.Delete(p.name)
	p.mod = nil
	p.fns = nil
	return err
}
