package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	"github.com/wippyai/vmwire"
	"github.com/wippyai/vmwire/errors"
)

// Guest contract names.
const (
	DeviceModule = "device"
	ExportEval   = "eval"
	ExportMemory = "memory"
)

// MemoryLimitPages caps guest memory at one arena region.
const MemoryLimitPages = 1

// Resolver turns a program reference into a module binary.
type Resolver interface {
	Resolve(ctx context.Context, ref string) ([]byte, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, ref string) ([]byte, error)

func (f ResolverFunc) Resolve(ctx context.Context, ref string) ([]byte, error) {
	return f(ctx, ref)
}

// Config holds configuration for engine creation
type Config struct {
	// Interpreter selects wazero's interpreter instead of the compiler.
	Interpreter bool
}

// Engine loads programs into one wazero runtime. It implements
// vmwire.Loader.
type Engine struct {
	runtime  wazero.Runtime
	resolver Resolver
	compiled map[string]wazero.CompiledModule
	// buses maps module name to the instance bus it runs against
	buses     sync.Map
	compileMu sync.Mutex
	seq       atomic.Uint64
}

// New creates an engine resolving program references through resolver.
func New(ctx context.Context, resolver Resolver) (*Engine, error) {
	return NewWithConfig(ctx, resolver, nil)
}

// NewWithConfig creates an engine with custom configuration.
func NewWithConfig(ctx context.Context, resolver Resolver, cfg *Config) (*Engine, error) {
	if resolver == nil {
		return nil, errors.NotInitialized(errors.PhaseLoad, "resolver")
	}
	var runtimeCfg wazero.RuntimeConfig
	if cfg != nil && cfg.Interpreter {
		runtimeCfg = wazero.NewRuntimeConfigInterpreter()
	} else {
		runtimeCfg = wazero.NewRuntimeConfig()
	}
	runtimeCfg = runtimeCfg.WithMemoryLimitPages(MemoryLimitPages)

	e := &Engine{
		runtime:  wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		resolver: resolver,
		compiled: make(map[string]wazero.CompiledModule),
	}
	_, err := e.runtime.NewHostModuleBuilder(DeviceModule).
		NewFunctionBuilder().WithFunc(e.deo).Export("deo").
		NewFunctionBuilder().WithFunc(e.dei).Export("dei").
		Instantiate(ctx)
	if err != nil {
		e.runtime.Close(ctx)
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "instantiate device module")
	}
	return e, nil
}

func (e *Engine) bus(m api.Module) vmwire.Bus {
	if b, ok := e.buses.Load(m.Name()); ok {
		return b.(vmwire.Bus)
	}
	return nil
}

func (e *Engine) deo(ctx context.Context, m api.Module, port, value uint32) {
	if b := e.bus(m); b != nil {
		b.DEO(ctx, uint8(port), uint8(value))
	}
}

func (e *Engine) dei(ctx context.Context, m api.Module, port uint32) uint32 {
	if b := e.bus(m); b != nil {
		return uint32(b.DEI(ctx, uint8(port)))
	}
	return 0
}

// Load resolves ref, compiles it once per reference and instantiates it
// with mem as linear memory. mem must expose its backing bytes.
func (e *Engine) Load(ctx context.Context, id vmwire.ID, ref string, mem vmwire.Memory, bus vmwire.Bus) (vmwire.Program, error) {
	backing, ok := mem.(interface{ Bytes() []byte })
	if !ok {
		return nil, errors.New(errors.PhaseLoad, errors.KindUnsupported).
			Instance(int(id)).
			Detail("memory %T does not expose its backing bytes", mem).
			Build()
	}
	compiled, err := e.compile(ctx, ref)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("vm%d.%d", e.seq.Add(1), id)
	e.buses.Store(name, bus)

	ctx = experimental.WithMemoryAllocator(ctx, regionAllocator{buf: backing.Bytes()})
	mod, err := e.runtime.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName(name).WithStartFunctions())
	if err != nil {
		e.buses.Delete(name)
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "instantiate "+ref)
	}

	Logger().Debug("program loaded",
		zap.Int("instance", int(id)),
		zap.String("ref", ref),
		zap.String("module", name),
	)
	return &program{engine: e, mod: mod, name: name, id: id}, nil
}

func (e *Engine) compile(ctx context.Context, ref string) (wazero.CompiledModule, error) {
	e.compileMu.Lock()
	defer e.compileMu.Unlock()
	if c, ok := e.compiled[ref]; ok {
		return c, nil
	}
	bin, err := e.resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	c, err := e.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "compile "+ref)
	}
	if err := checkContract(c); err != nil {
		c.Close(ctx)
		return nil, err
	}
	e.compiled[ref] = c
	return c, nil
}

// checkContract verifies imports and exports against the guest contract.
func checkContract(c wazero.CompiledModule) error {
	eval, ok := c.ExportedFunctions()[ExportEval]
	if !ok {
		return errors.New(errors.PhaseLoad, errors.KindInvalidData).
			Detail("module does not export %q", ExportEval).
			Build()
	}
	if p, r := eval.ParamTypes(), eval.ResultTypes(); len(p) != 1 || p[0] != api.ValueTypeI32 || len(r) != 0 {
		return errors.New(errors.PhaseLoad, errors.KindInvalidData).
			Detail("%q must have type (i32) -> (), got %v -> %v", ExportEval, valueTypeNames(p), valueTypeNames(r)).
			Build()
	}
	for _, fn := range c.ImportedFunctions() {
		module, name, _ := fn.Import()
		if module != DeviceModule || (name != "deo" && name != "dei") {
			return errors.New(errors.PhaseLoad, errors.KindUnsupported).
				Detail("unsupported import %s.%s", module, name).
				Build()
		}
	}
	if len(c.ImportedMemories()) > 0 {
		return errors.New(errors.PhaseLoad, errors.KindUnsupported).
			Detail("imported memory is not supported").
			Build()
	}
	return nil
}

func valueTypeNames(ts []api.ValueType) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = api.ValueTypeName(t)
	}
	return out
}

// Close releases the runtime and every program loaded from it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// regionAllocator backs guest memory with a fixed region.
type regionAllocator struct {
	buf []byte
}

func (a regionAllocator) Allocate(_, _ uint64) experimental.LinearMemory {
	return &regionMemory{buf: a.buf}
}

type regionMemory struct {
	buf []byte
}

// Reallocate never moves the buffer; growth past the region fails.
func (m *regionMemory) Reallocate(size uint64) []byte {
	if size > uint64(len(m.buf)) {
		return nil
	}
	return m.buf[:size]
}

func (m *regionMemory) Free() {}
