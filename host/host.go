package host

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/vmwire"
	"github.com/wippyai/vmwire/arena"
	"github.com/wippyai/vmwire/device"
	"github.com/wippyai/vmwire/errors"
	"github.com/wippyai/vmwire/router"
	"github.com/wippyai/vmwire/trace"
)

// Host is the composition root: it owns the arena, the instances and the
// router. Top-level operations are serialized, so at most one evaluation
// chain runs at a time.
type Host struct {
	arena     *arena.Arena
	router    *router.Router
	byName    map[string]*Instance
	sinks     map[string]Sink
	rec       trace.Recorder
	log       *zap.Logger
	session   string
	instances []*Instance
	faults    []router.Fault
	start     []vmwire.ID
	maxDepth  int
	mu        sync.Mutex
	closed    bool
}

// Option configures a Host.
type Option func(*Host)

// WithRecorder sets the trace recorder.
func WithRecorder(rec trace.Recorder) Option {
	return func(h *Host) { h.rec = rec }
}

// WithMaxDepth overrides the nesting limit from the wiring.
func WithMaxDepth(n int) Option {
	return func(h *Host) { h.maxDepth = n }
}

// WithSink registers a named sink for InstanceSpec.Sink.
func WithSink(name string, s Sink) Option {
	return func(h *Host) { h.sinks[name] = s }
}

// WithSession sets the session id instead of generating one.
func WithSession(id string) Option {
	return func(h *Host) { h.session = id }
}

// New builds a host from w: it validates the wiring, allocates the arena,
// loads every program, boots each instance at the reset vector with routing
// disarmed, arms the router and then evaluates the start list.
func New(ctx context.Context, w Wiring, loader vmwire.Loader, opts ...Option) (*Host, error) {
	if loader == nil {
		return nil, errors.NotInitialized(errors.PhaseConfig, "loader")
	}
	n := len(w.Instances)
	if n == 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, "wiring declares no instances")
	}
	if n > arena.MaxRegions {
		return nil, errors.Capacity(errors.PhaseConfig, n, arena.MaxRegions)
	}

	h := &Host{
		byName:   make(map[string]*Instance, n),
		sinks:    defaultSinks(),
		maxDepth: w.MaxDepth,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.session == "" {
		h.session = uuid.Must(uuid.NewV7()).String()
	}
	if h.rec == nil {
		h.rec = trace.Nop
	}
	h.log = Logger().With(zap.String("session", h.session))

	table, err := router.NewTable(n, w.Edges)
	if err != nil {
		return nil, err
	}
	for _, id := range w.Start {
		if int(id) < 0 || int(id) >= n {
			return nil, errors.New(errors.PhaseConfig, errors.KindNotFound).
				Path("start").
				Value(int(id)).
				Detail("start instance %d does not exist", id).
				Build()
		}
	}
	h.start = w.Start

	h.arena, err = arena.New(n)
	if err != nil {
		return nil, err
	}

	targets := make([]router.Target, n)
	for i, spec := range w.Instances {
		id := vmwire.ID(i)
		if spec.Name == "" {
			spec.Name = id.String()
		}
		if _, dup := h.byName[spec.Name]; dup {
			return nil, errors.New(errors.PhaseConfig, errors.KindDuplicate).
				Path("instances", id.String(), "name").
				Value(spec.Name).
				Detail("instance name %q declared twice", spec.Name).
				Build()
		}
		var sink Sink
		if spec.Sink != "" {
			s, ok := h.sinks[spec.Sink]
			if !ok {
				return nil, errors.NotFound(errors.PhaseConfig, "sink", spec.Sink)
			}
			sink = s
		}
		region, err := h.arena.Region(i)
		if err != nil {
			return nil, err
		}
		inst := newInstance(id, spec, region, sink)
		h.instances = append(h.instances, inst)
		h.byName[spec.Name] = inst
		targets[i] = inst
	}

	h.router, err = router.New(table, targets,
		router.WithMaxDepth(h.maxDepth),
		router.WithRecorder(h.rec),
		router.WithFaultHandler(h.fault),
	)
	if err != nil {
		return nil, err
	}
	h.maxDepth = h.router.MaxDepth()
	for _, inst := range h.instances {
		inst.attach(h.router)
	}

	for _, inst := range h.instances {
		if err := inst.load(ctx, loader); err != nil {
			return nil, multierr.Append(err, h.closeInstances(ctx))
		}
	}

	h.boot(ctx)
	h.router.Arm()
	for _, id := range h.start {
		h.evalTop(ctx, h.instances[id], vmwire.ResetVector)
	}

	h.log.Info("host ready",
		zap.Int("instances", n),
		zap.Int("connections", table.Len()),
		zap.Int("max_depth", h.maxDepth),
	)
	return h, nil
}

func defaultSinks() map[string]Sink {
	return map[string]Sink{
		"stdout": NewWriterSink(os.Stdout),
		"stderr": NewWriterSink(os.Stderr),
		"log":    NewLogSink(Logger()),
	}
}

// boot runs every instance once at the reset vector. The router is still
// disarmed, so boot writes only land locally.
func (h *Host) boot(ctx context.Context) {
	for _, inst := range h.instances {
		halt, err := h.evalTop(ctx, inst, vmwire.ResetVector)
		h.log.Debug("booted",
			zap.Int("instance", int(inst.id)),
			zap.String("name", inst.name),
			zap.Stringer("halt", halt),
			zap.Error(err),
		)
	}
}

// evalTop evaluates inst as the root of a new chain and reports a fault.
func (h *Host) evalTop(ctx context.Context, inst *Instance, vector uint16) (vmwire.Halt, error) {
	ctx = router.WithFrame(ctx, inst.id, 1)
	h.router.Emit(trace.Event{
		Kind:   trace.KindEval,
		Depth:  1,
		Src:    trace.External,
		Dst:    int(inst.id),
		Vector: vector,
	})
	halt, err := inst.Eval(ctx, vector)
	if err != nil {
		h.fault(router.Fault{Err: err, Message: err.Error(), Instance: inst.id, Depth: 1, Vector: vector})
	}
	return halt, err
}

func (h *Host) fault(f router.Fault) {
	if f.Message == "" && f.Err != nil {
		f.Message = f.Err.Error()
	}
	h.faults = append(h.faults, f)
}

func (h *Host) lookup(id vmwire.ID) (*Instance, error) {
	if h.closed {
		return nil, errors.NotInitialized(errors.PhaseRuntime, "host (closed)")
	}
	if int(id) < 0 || int(id) >= len(h.instances) {
		return nil, errors.NotFound(errors.PhaseRuntime, "instance", id.String())
	}
	return h.instances[id], nil
}

// Eval runs instance id from vector as an external tick. Faults are returned
// and also kept in Faults.
func (h *Host) Eval(ctx context.Context, id vmwire.ID, vector uint16) (vmwire.Halt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	inst, err := h.lookup(id)
	if err != nil {
		return vmwire.HaltSkip, err
	}
	return h.evalTop(ctx, inst, vector)
}

// Write performs a register write as if instance id had executed it, so a
// wired port propagates.
func (h *Host) Write(ctx context.Context, id vmwire.ID, port, value uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	inst, err := h.lookup(id)
	if err != nil {
		return err
	}
	inst.DEO(router.WithDepth(ctx, 0), port, value)
	return nil
}

// Send delivers value into port of instance id from outside the graph: the
// value is stored and, when the instance's vector is nonzero, the instance
// is evaluated there.
func (h *Host) Send(ctx context.Context, id vmwire.ID, port, value uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.lookup(id); err != nil {
		return err
	}
	return h.router.Deliver(router.WithDepth(ctx, 0), id, port, value)
}

// Instance returns the instance with id, or nil.
func (h *Host) Instance(id vmwire.ID) *Instance {
	if int(id) < 0 || int(id) >= len(h.instances) {
		return nil
	}
	return h.instances[id]
}

// Lookup returns the instance with the given name, or nil.
func (h *Host) Lookup(name string) *Instance {
	return h.byName[name]
}

// Instances returns every instance in id order.
func (h *Host) Instances() []*Instance {
	out := make([]*Instance, len(h.instances))
	copy(out, h.instances)
	return out
}

// Connections returns the wiring in declaration order.
func (h *Host) Connections() []router.Connection {
	return h.router.Table().Connections()
}

// Faults returns every fault reported so far.
func (h *Host) Faults() []router.Fault {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]router.Fault, len(h.faults))
	copy(out, h.faults)
	return out
}

// Session returns the host's session id.
func (h *Host) Session() string {
	return h.session
}

// MaxDepth returns the effective nesting limit.
func (h *Host) MaxDepth() int {
	return h.maxDepth
}

// Close releases every program. The host is unusable afterwards.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.closeInstances(ctx)
}

func (h *Host) closeInstances(ctx context.Context) error {
	var err error
	for _, inst := range h.instances {
		if cerr := inst.close(ctx); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close instance %d: %w", inst.id, cerr))
		}
	}
	return err
}

// Dump writes a human-readable summary of every instance to w.
func (h *Host) Dump(w io.Writer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, inst := range h.instances {
		link := inst.bank.Page(device.SlotLink)
		state := "running"
		if inst.Exited() {
			state = fmt.Sprintf("exited(%d)", inst.ExitCode())
		}
		if _, err := fmt.Fprintf(w, "%2d %-12s %-10s evals=%-6d vector=%#04x link=% x\n",
			inst.id, inst.name, state, inst.evals, inst.Vector(), link[:]); err != nil {
			return err
		}
	}
	return nil
}
