package host

import (
	"context"
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/wippyai/vmwire"
	"github.com/wippyai/vmwire/arena"
	"github.com/wippyai/vmwire/device"
	"github.com/wippyai/vmwire/errors"
	"github.com/wippyai/vmwire/router"
	"github.com/wippyai/vmwire/trace"
)

// Instance pairs an arena region and a register bank with a loaded program.
// It is the program's Bus and the router's delivery target.
type Instance struct {
	program vmwire.Program
	sink    Sink
	region  *arena.Region
	bank    *device.Bank
	system  *device.System
	emit    func(trace.Event)
	name    string
	ref     string
	id      vmwire.ID
	evals   uint64
	active  int
	alive   bool
}

func newInstance(id vmwire.ID, spec InstanceSpec, region *arena.Region, sink Sink) *Instance {
	inst := &Instance{
		id:     id,
		name:   spec.Name,
		ref:    spec.Program,
		region: region,
		bank:   device.NewBank(),
		sink:   sink,
	}
	inst.system = &device.System{
		OnDebug: inst.debug,
		OnExit:  inst.exit,
	}
	inst.bank.Attach(device.SlotSystem, inst.system)
	return inst
}

func (i *Instance) ID() vmwire.ID { return i.id }

// Name returns the instance's descriptor name.
func (i *Instance) Name() string { return i.name }

// Program returns the program reference the instance was loaded from.
func (i *Instance) Program() string { return i.ref }

// Memory returns the instance's private region.
func (i *Instance) Memory() *arena.Region { return i.region }

// Bank returns the instance's register file.
func (i *Instance) Bank() *device.Bank { return i.bank }

// Alive reports whether the program loaded.
func (i *Instance) Alive() bool { return i.alive }

// Exited reports whether the program set its system state register.
func (i *Instance) Exited() bool { return i.system.Exited() }

// ExitCode returns the exit code, valid once Exited is true.
func (i *Instance) ExitCode() int { return i.system.ExitCode() }

// Evals returns how many evaluations have started.
func (i *Instance) Evals() uint64 { return i.evals }

// Active returns how many evaluations of this instance are on the stack.
func (i *Instance) Active() int { return i.active }

func (i *Instance) DEI(ctx context.Context, port uint8) uint8 {
	return i.bank.DEI(ctx, port)
}

func (i *Instance) DEO(ctx context.Context, port, value uint8) {
	i.bank.DEO(ctx, port, value)
}

func (i *Instance) Peek(port uint8) uint8 {
	return i.bank.Peek(port)
}

func (i *Instance) Poke(port, value uint8) {
	i.bank.Poke(port, value)
}

func (i *Instance) Vector() uint16 {
	return device.Vector(i.bank)
}

// Eval runs the program from vector. A run that sets the exit state reports
// HaltExit.
func (i *Instance) Eval(ctx context.Context, vector uint16) (vmwire.Halt, error) {
	if !i.alive {
		return vmwire.HaltSkip, errors.New(errors.PhaseEval, errors.KindNotInitialized).
			Instance(int(i.id)).
			Detail("instance %q has no program", i.name).
			Build()
	}
	i.evals++
	i.active++
	defer func() { i.active-- }()

	halt, err := i.program.Eval(ctx, vector)
	if err != nil {
		return halt, err
	}
	if halt == vmwire.HaltBreak && i.system.Exited() {
		halt = vmwire.HaltExit
	}
	return halt, nil
}

func (i *Instance) Idle(ctx context.Context, port, value uint8) {
	if i.sink != nil {
		i.sink.Receive(ctx, i, port, value)
	}
}

func (i *Instance) attach(r *router.Router) {
	i.emit = r.Emit
	i.bank.Attach(device.SlotLink, device.NewLink(i.id, r, i.routeError))
}

func (i *Instance) load(ctx context.Context, loader vmwire.Loader) error {
	prog, err := loader.Load(ctx, i.id, i.ref, i.region, i)
	if err != nil {
		return errors.Load(int(i.id), i.ref, err)
	}
	i.program = prog
	i.alive = true
	return nil
}

func (i *Instance) close(ctx context.Context) error {
	if i.program == nil {
		return nil
	}
	err := i.program.Close(ctx)
	i.program = nil
	i.alive = false
	return err
}

func (i *Instance) routeError(_ context.Context, err error) {
	Logger().Debug("write not propagated",
		zap.Int("instance", int(i.id)),
		zap.Error(err),
	)
}

func (i *Instance) debug(_ context.Context, b *device.Bank) {
	link := b.Page(device.SlotLink)
	used, head := memorySummary(i.region.Bytes())
	Logger().Info("debug",
		zap.Int("instance", int(i.id)),
		zap.String("name", i.name),
		zap.String("link", hex.EncodeToString(link[:])),
		zap.Uint16("vector", device.Vector(b)),
		zap.Uint64("evals", i.evals),
		zap.Int("active", i.active),
		zap.Int("memory_used", used),
		zap.String("memory_head", head),
	)
}

// debugHead is how many leading memory bytes a debug dump shows.
const debugHead = 32

// memorySummary returns the length of mem up to its last nonzero byte and
// the first debugHead bytes of that prefix in hex.
func memorySummary(mem []byte) (used int, head string) {
	for used = len(mem); used > 0 && mem[used-1] == 0; used-- {
	}
	return used, hex.EncodeToString(mem[:min(used, debugHead)])
}

func (i *Instance) exit(_ context.Context, code int) {
	Logger().Info("instance exited",
		zap.Int("instance", int(i.id)),
		zap.String("name", i.name),
		zap.Int("code", code),
	)
	if i.emit != nil {
		i.emit(trace.Event{
			Kind:  trace.KindExit,
			Src:   int(i.id),
			Dst:   int(i.id),
			Value: uint8(code),
		})
	}
}
