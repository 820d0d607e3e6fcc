package router

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/vmwire"
	"github.com/wippyai/vmwire/errors"
	"github.com/wippyai/vmwire/trace"
)

// DefaultMaxDepth is the default limit on nested evaluations.
const DefaultMaxDepth = 64

// Target is a destination the router can deliver into.
type Target interface {
	ID() vmwire.ID
	// Poke stores a register without device side effects.
	Poke(port, value uint8)
	// Vector returns the destination's current entry address.
	Vector() uint16
	// Eval runs the destination from vector until it halts.
	Eval(ctx context.Context, vector uint16) (vmwire.Halt, error)
	// Idle is called instead of Eval when the vector is zero.
	Idle(ctx context.Context, port, value uint8)
}

// Fault is a reported failure of a nested evaluation or of the depth guard.
type Fault struct {
	Err      error     `json:"-" cbor:"-"`
	Message  string    `json:"message" cbor:"message"`
	Instance vmwire.ID `json:"instance" cbor:"instance"`
	Depth    int       `json:"depth" cbor:"depth"`
	Vector   uint16    `json:"vector" cbor:"vector"`
}

// Option configures a Router.
type Option func(*Router)

// WithMaxDepth sets the nesting limit. Values below 1 keep the default.
func WithMaxDepth(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// WithRecorder sets the event recorder.
func WithRecorder(rec trace.Recorder) Option {
	return func(r *Router) {
		if rec != nil {
			r.rec = rec
		}
	}
}

// WithFaultHandler sets the function receiving faults.
func WithFaultHandler(fn func(Fault)) Option {
	return func(r *Router) {
		r.onFault = fn
	}
}

// Router propagates writes across a Table. It is not safe for concurrent
// use; callers serialize top-level calls.
type Router struct {
	table    *Table
	rec      trace.Recorder
	onFault  func(Fault)
	targets  []Target
	maxDepth int
	seq      atomic.Uint64
	armed    atomic.Bool
}

// New creates a disarmed router delivering into targets, indexed by id.
func New(table *Table, targets []Target, opts ...Option) (*Router, error) {
	if table == nil {
		return nil, errors.NotInitialized(errors.PhaseConfig, "connection table")
	}
	if len(targets) != table.N() {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("table has %d instances, got %d targets", table.N(), len(targets)).
			Build()
	}
	for i, t := range targets {
		if t == nil || int(t.ID()) != i {
			return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Instance(i).
				Detail("target at position %d has mismatched id", i).
				Build()
		}
	}
	r := &Router{
		table:    table,
		targets:  targets,
		rec:      trace.Nop,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Table returns the router's connection table.
func (r *Router) Table() *Table {
	return r.table
}

// MaxDepth returns the nesting limit.
func (r *Router) MaxDepth() int {
	return r.maxDepth
}

// Arm enables propagation for Route.
func (r *Router) Arm() {
	r.armed.Store(true)
}

// Disarm disables propagation for Route. Deliver is unaffected.
func (r *Router) Disarm() {
	r.armed.Store(false)
}

// Armed reports whether Route propagates.
func (r *Router) Armed() bool {
	return r.armed.Load()
}

// Emit records ev with the next sequence number.
func (r *Router) Emit(ev trace.Event) {
	ev.Seq = r.seq.Add(1)
	r.rec.Record(ev)
}

// Route handles a write of value to port on src. A write with no matching
// connection, or made while disarmed, is a no-op. The only error returned is
// a recursion fault from the depth guard; nested evaluation faults are
// reported and swallowed. Once the guard trips, the subtree from the start
// of the runaway cycle copies values without evaluating until it unwinds.
func (r *Router) Route(ctx context.Context, src vmwire.ID, port, value uint8) error {
	if !r.armed.Load() {
		return nil
	}
	c, ok := r.table.Lookup(src, port)
	if !ok {
		return nil
	}
	r.Emit(trace.Event{
		Kind:    trace.KindWrite,
		Depth:   Depth(ctx),
		Src:     int(c.Src),
		SrcPort: c.SrcPort,
		Dst:     int(c.Dst),
		DstPort: c.DstPort,
		Value:   value,
	})
	return r.propagate(ctx, r.targets[c.Dst], c.DstPort, value)
}

// Deliver injects value into port on dst from outside the instance graph,
// following the same rule as a routed write.
func (r *Router) Deliver(ctx context.Context, dst vmwire.ID, port, value uint8) error {
	if int(dst) < 0 || int(dst) >= len(r.targets) {
		return errors.NotFound(errors.PhaseRoute, "instance", dst.String())
	}
	r.Emit(trace.Event{
		Kind:    trace.KindInject,
		Depth:   Depth(ctx),
		Src:     trace.External,
		Dst:     int(dst),
		DstPort: port,
		Value:   value,
	})
	return r.propagate(ctx, r.targets[dst], port, value)
}

func (r *Router) propagate(ctx context.Context, dst Target, port, value uint8) error {
	id := dst.ID()
	dst.Poke(port, value)

	vector := dst.Vector()
	if vector == 0 {
		r.Emit(trace.Event{
			Kind:    trace.KindIdle,
			Depth:   Depth(ctx),
			Dst:     int(id),
			DstPort: port,
			Value:   value,
		})
		dst.Idle(ctx, port, value)
		return nil
	}

	depth := Depth(ctx) + 1
	if depth > r.maxDepth {
		err := errors.Recursion(int(id), depth, r.maxDepth)
		if trip(ctx, id) {
			r.fault(Fault{Err: err, Instance: id, Depth: depth, Vector: vector})
		}
		return err
	}
	if Tripped(ctx) {
		return nil
	}

	r.Emit(trace.Event{
		Kind:   trace.KindEval,
		Depth:  depth,
		Dst:    int(id),
		Vector: vector,
	})
	_, err := dst.Eval(WithFrame(ctx, id, depth), vector)
	release(ctx, depth)
	if err != nil {
		r.fault(Fault{Err: err, Instance: id, Depth: depth, Vector: vector})
	}
	return nil
}

func (r *Router) fault(f Fault) {
	f.Message = f.Err.Error()
	Logger().Warn("evaluation fault",
		zap.Int("instance", int(f.Instance)),
		zap.Int("depth", f.Depth),
		zap.Uint16("vector", f.Vector),
		zap.Error(f.Err),
	)
	r.Emit(trace.Event{
		Kind:   trace.KindFault,
		Depth:  f.Depth,
		Src:    trace.External,
		Dst:    int(f.Instance),
		Vector: f.Vector,
		Detail: f.Message,
	})
	if r.onFault != nil {
		r.onFault(f)
	}
}
