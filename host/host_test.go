package host

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/vmwire"
	"github.com/wippyai/vmwire/arena"
	"github.com/wippyai/vmwire/device"
	"github.com/wippyai/vmwire/errors"
	"github.com/wippyai/vmwire/router"
	"github.com/wippyai/vmwire/trace"
)

const vectorInput uint16 = 0x0200

type evalFunc func(ctx context.Context, mem vmwire.Memory, bus vmwire.Bus, vector uint16) error

type scriptProgram struct {
	fn     evalFunc
	mem    vmwire.Memory
	bus    vmwire.Bus
	closed *int
}

func (p *scriptProgram) Eval(ctx context.Context, vector uint16) (vmwire.Halt, error) {
	if err := p.fn(ctx, p.mem, p.bus, vector); err != nil {
		return vmwire.HaltFault, err
	}
	return vmwire.HaltBreak, nil
}

func (p *scriptProgram) Close(context.Context) error {
	*p.closed++
	return nil
}

type scriptLoader struct {
	scripts map[string]evalFunc
	loads   int
	closed  int
}

func (l *scriptLoader) Load(_ context.Context, _ vmwire.ID, ref string, mem vmwire.Memory, bus vmwire.Bus) (vmwire.Program, error) {
	l.loads++
	fn, ok := l.scripts[ref]
	if !ok {
		return nil, fmt.Errorf("no script %q", ref)
	}
	return &scriptProgram{fn: fn, mem: mem, bus: bus, closed: &l.closed}, nil
}

func setVector(ctx context.Context, bus vmwire.Bus, v uint16) {
	bus.DEO(ctx, device.LinkVectorHi, uint8(v>>8))
	bus.DEO(ctx, device.LinkVectorLo, uint8(v))
}

// relay forwards every input byte to its write port.
func relay(ctx context.Context, _ vmwire.Memory, bus vmwire.Bus, vector uint16) error {
	switch vector {
	case vmwire.ResetVector:
		setVector(ctx, bus, vectorInput)
	case vectorInput:
		bus.DEO(ctx, device.LinkWrite, bus.DEI(ctx, device.LinkData))
	}
	return nil
}

// upper uppercases ASCII letters on the way through.
func upper(ctx context.Context, _ vmwire.Memory, bus vmwire.Bus, vector uint16) error {
	switch vector {
	case vmwire.ResetVector:
		setVector(ctx, bus, vectorInput)
	case vectorInput:
		c := bus.DEI(ctx, device.LinkData)
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		bus.DEO(ctx, device.LinkWrite, c)
	}
	return nil
}

func noop(context.Context, vmwire.Memory, vmwire.Bus, uint16) error { return nil }

func newLoader() *scriptLoader {
	return &scriptLoader{scripts: map[string]evalFunc{
		"relay": relay,
		"upper": upper,
		"noop":  noop,
		"hello": func(ctx context.Context, _ vmwire.Memory, bus vmwire.Bus, vector uint16) error {
			for _, c := range []byte("hi") {
				bus.DEO(ctx, device.LinkWrite, c)
			}
			return nil
		},
		"exit": func(ctx context.Context, _ vmwire.Memory, bus vmwire.Bus, vector uint16) error {
			if vector == vectorInput {
				bus.DEO(ctx, device.SystemState, 0x80|0x2a)
			}
			return nil
		},
		"trap": func(ctx context.Context, _ vmwire.Memory, bus vmwire.Bus, vector uint16) error {
			if vector == vmwire.ResetVector {
				setVector(ctx, bus, vectorInput)
				return nil
			}
			return errors.Fault(0, vector, stderrors.New("unreachable"))
		},
		"scribble": func(ctx context.Context, mem vmwire.Memory, bus vmwire.Bus, vector uint16) error {
			id := bus.DEI(ctx, 0x20)
			for off := uint32(0); off < mem.Size(); off += 0x100 {
				if err := mem.WriteU8(off, id+1); err != nil {
					return err
				}
			}
			return nil
		},
	}}
}

type capture struct {
	got []byte
}

func (c *capture) Receive(_ context.Context, _ *Instance, _ uint8, value uint8) {
	c.got = append(c.got, value)
}

func edge(src, dst vmwire.ID) router.Connection {
	return router.Connection{Src: src, SrcPort: device.LinkWrite, Dst: dst, DstPort: device.LinkData}
}

func TestNew_BootsEveryInstanceOnce(t *testing.T) {
	ctx := context.Background()
	rec := trace.NewMemory()
	w := Wiring{}
	for i := 0; i < arena.MaxRegions; i++ {
		w.Instances = append(w.Instances, InstanceSpec{Program: "hello"})
	}
	h, err := New(ctx, w, newLoader(), WithRecorder(rec))
	require.NoError(t, err)
	defer h.Close(ctx)

	for _, inst := range h.Instances() {
		assert.True(t, inst.Alive())
		assert.Equal(t, uint64(1), inst.Evals(), "instance %d", inst.ID())
		assert.Equal(t, inst.ID().String(), inst.Name())
	}
	assert.Empty(t, rec.Filter(trace.KindWrite, trace.KindInject, trace.KindIdle))
	assert.Len(t, rec.Filter(trace.KindEval), arena.MaxRegions)
}

func TestNew_ConfigErrors(t *testing.T) {
	ctx := context.Background()
	tooMany := Wiring{}
	for i := 0; i <= arena.MaxRegions; i++ {
		tooMany.Instances = append(tooMany.Instances, InstanceSpec{Program: "noop"})
	}

	tests := []struct {
		name  string
		w     Wiring
		phase errors.Phase
		kind  errors.Kind
	}{
		{"no instances", Wiring{}, errors.PhaseConfig, errors.KindInvalidInput},
		{"too many instances", tooMany, errors.PhaseConfig, errors.KindCapacity},
		{"unknown destination", Wiring{
			Instances: []InstanceSpec{{Program: "noop"}},
			Edges:     []router.Connection{edge(0, 3)},
		}, errors.PhaseConfig, errors.KindNotFound},
		{"duplicate source port", Wiring{
			Instances: []InstanceSpec{{Program: "noop"}, {Program: "noop"}},
			Edges:     []router.Connection{edge(0, 1), edge(0, 0)},
		}, errors.PhaseConfig, errors.KindDuplicate},
		{"unrouted source port", Wiring{
			Instances: []InstanceSpec{{Program: "noop"}, {Program: "noop"}},
			Edges:     []router.Connection{{Src: 0, SrcPort: 0x20, Dst: 1, DstPort: device.LinkData}},
		}, errors.PhaseConfig, errors.KindOutOfBounds},
		{"vector source port", Wiring{
			Instances: []InstanceSpec{{Program: "noop"}, {Program: "noop"}},
			Edges:     []router.Connection{{Src: 0, SrcPort: device.LinkVectorHi, Dst: 1, DstPort: device.LinkData}},
		}, errors.PhaseConfig, errors.KindOutOfBounds},
		{"unknown start", Wiring{
			Instances: []InstanceSpec{{Program: "noop"}},
			Start:     []vmwire.ID{2},
		}, errors.PhaseConfig, errors.KindNotFound},
		{"duplicate name", Wiring{
			Instances: []InstanceSpec{{Name: "a", Program: "noop"}, {Name: "a", Program: "noop"}},
		}, errors.PhaseConfig, errors.KindDuplicate},
		{"unknown sink", Wiring{
			Instances: []InstanceSpec{{Program: "noop", Sink: "printer"}},
		}, errors.PhaseConfig, errors.KindNotFound},
		{"missing program", Wiring{
			Instances: []InstanceSpec{{Program: "noop"}, {Program: "missing"}},
		}, errors.PhaseLoad, errors.KindInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := newLoader()
			_, err := New(ctx, tt.w, loader)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.New(tt.phase, tt.kind).Build())
			if tt.phase == errors.PhaseConfig {
				assert.Zero(t, loader.loads, "no program may load before the wiring validates")
			}
			assert.Equal(t, loader.loads-boolToInt(tt.phase == errors.PhaseLoad), loader.closed)
		})
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestNew_BootIsNotRouted(t *testing.T) {
	ctx := context.Background()
	out := &capture{}
	w := Wiring{
		Instances: []InstanceSpec{{Name: "hello", Program: "hello"}, {Name: "out", Program: "noop", Sink: "cap"}},
		Edges:     []router.Connection{edge(0, 1)},
	}
	h, err := New(ctx, w, newLoader(), WithSink("cap", out))
	require.NoError(t, err)
	defer h.Close(ctx)
	assert.Empty(t, out.got)

	_, err = h.Eval(ctx, 0, vmwire.ResetVector)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(out.got))
}

func TestNew_StartListRunsAfterArming(t *testing.T) {
	ctx := context.Background()
	out := &capture{}
	w := Wiring{
		Instances: []InstanceSpec{{Name: "hello", Program: "hello"}, {Name: "out", Program: "noop", Sink: "cap"}},
		Edges:     []router.Connection{edge(0, 1)},
		Start:     []vmwire.ID{0},
	}
	h, err := New(ctx, w, newLoader(), WithSink("cap", out))
	require.NoError(t, err)
	defer h.Close(ctx)
	assert.Equal(t, "hi", string(out.got))
	assert.Equal(t, uint64(2), h.Lookup("hello").Evals())
}

func TestHost_SendThroughPipeline(t *testing.T) {
	ctx := context.Background()
	out := &capture{}
	rec := trace.NewMemory()
	w := Wiring{
		Instances: []InstanceSpec{
			{Name: "in", Program: "relay"},
			{Name: "up", Program: "upper"},
			{Name: "out", Program: "noop", Sink: "cap"},
		},
		Edges: []router.Connection{edge(0, 1), edge(1, 2)},
	}
	h, err := New(ctx, w, newLoader(), WithSink("cap", out), WithRecorder(rec))
	require.NoError(t, err)
	defer h.Close(ctx)

	for _, c := range []byte("wire") {
		require.NoError(t, h.Send(ctx, 0, device.LinkData, c))
	}
	assert.Equal(t, "WIRE", string(out.got))
	assert.Equal(t, byte('E'), h.Instance(2).Peek(device.LinkData))
	assert.Equal(t, uint64(5), h.Instance(1).Evals())

	writes := rec.Filter(trace.KindWrite)
	require.Len(t, writes, 8)
	assert.Equal(t, 1, writes[0].Depth)
	assert.Equal(t, 2, writes[1].Depth)
}

func TestHost_WriteActsAsInstance(t *testing.T) {
	ctx := context.Background()
	out := &capture{}
	w := Wiring{
		Instances: []InstanceSpec{{Program: "noop"}, {Program: "upper"}, {Program: "noop", Sink: "cap"}},
		Edges:     []router.Connection{edge(0, 1), edge(1, 2)},
	}
	h, err := New(ctx, w, newLoader(), WithSink("cap", out))
	require.NoError(t, err)
	defer h.Close(ctx)

	require.NoError(t, h.Write(ctx, 0, device.LinkWrite, 'q'))
	assert.Equal(t, "Q", string(out.got))
	assert.Equal(t, byte('q'), h.Instance(0).Peek(device.LinkWrite))

	require.NoError(t, h.Write(ctx, 0, device.LinkError, 'z'))
	assert.Equal(t, "Q", string(out.got), "unwired port must not propagate")
}

func TestHost_Exit(t *testing.T) {
	ctx := context.Background()
	rec := trace.NewMemory()
	h, err := New(ctx, Wiring{Instances: []InstanceSpec{{Program: "exit"}}}, newLoader(), WithRecorder(rec))
	require.NoError(t, err)
	defer h.Close(ctx)

	halt, err := h.Eval(ctx, 0, vectorInput)
	require.NoError(t, err)
	assert.Equal(t, vmwire.HaltExit, halt)
	assert.True(t, h.Instance(0).Exited())
	assert.Equal(t, 0x2a, h.Instance(0).ExitCode())
	exits := rec.Filter(trace.KindExit)
	require.Len(t, exits, 1)
	assert.Equal(t, uint8(0x2a), exits[0].Value)
}

func TestHost_FaultIsScoped(t *testing.T) {
	ctx := context.Background()
	w := Wiring{
		Instances: []InstanceSpec{{Program: "relay"}, {Program: "trap"}},
		Edges:     []router.Connection{edge(0, 1)},
	}
	h, err := New(ctx, w, newLoader())
	require.NoError(t, err)
	defer h.Close(ctx)

	require.NoError(t, h.Send(ctx, 0, device.LinkData, 'x'))
	faults := h.Faults()
	require.Len(t, faults, 1)
	assert.Equal(t, vmwire.ID(1), faults[0].Instance)
	assert.Equal(t, 2, faults[0].Depth)
	assert.ErrorIs(t, faults[0].Err, errors.New(errors.PhaseEval, errors.KindFault).Build())
	assert.Equal(t, byte('x'), h.Instance(1).Peek(device.LinkData))

	_, err = h.Eval(ctx, 1, vectorInput)
	assert.Error(t, err, "a top-level fault is returned to the caller")
	assert.Len(t, h.Faults(), 2)
}

func TestHost_DepthGuard(t *testing.T) {
	ctx := context.Background()
	w := Wiring{
		Instances: []InstanceSpec{{Program: "relay"}, {Program: "relay"}},
		Edges:     []router.Connection{edge(0, 1), edge(1, 0)},
		MaxDepth:  16,
	}
	h, err := New(ctx, w, newLoader())
	require.NoError(t, err)
	defer h.Close(ctx)

	require.NoError(t, h.Send(ctx, 0, device.LinkData, 1))
	faults := h.Faults()
	require.Len(t, faults, 1)
	assert.ErrorIs(t, faults[0].Err, errors.New(errors.PhaseRoute, errors.KindRecursion).Build())
	assert.Equal(t, uint64(1+16/2), h.Instance(0).Evals())
	assert.Equal(t, uint64(1+16/2), h.Instance(1).Evals())
}

func TestHost_MemoryIsolation(t *testing.T) {
	ctx := context.Background()
	w := Wiring{}
	for i := 0; i < 4; i++ {
		w.Instances = append(w.Instances, InstanceSpec{Program: "noop"})
	}
	w.Instances[2].Program = "scribble"
	h, err := New(ctx, w, newLoader())
	require.NoError(t, err)
	defer h.Close(ctx)

	h.Instance(2).Poke(0x20, 2)
	_, err = h.Eval(ctx, 2, vmwire.ResetVector)
	require.NoError(t, err)

	for _, inst := range h.Instances() {
		mem := inst.Memory().Bytes()
		if inst.ID() == 2 {
			assert.Equal(t, byte(3), mem[0])
			assert.Equal(t, byte(3), mem[len(mem)-0x100])
			continue
		}
		assert.Equal(t, make([]byte, len(mem)), mem, "instance %d memory changed", inst.ID())
	}
}

func TestHost_Snapshot(t *testing.T) {
	ctx := context.Background()
	w := Wiring{
		Instances: []InstanceSpec{{Name: "in", Program: "relay"}, {Name: "out", Program: "noop"}},
		Edges:     []router.Connection{edge(0, 1)},
	}
	h, err := New(ctx, w, newLoader(), WithSession("test-session"))
	require.NoError(t, err)
	defer h.Close(ctx)
	require.NoError(t, h.Send(ctx, 0, device.LinkData, 'k'))
	require.NoError(t, h.Instance(1).Memory().WriteU8(0x10, 0xee))

	snap := h.Snapshot()
	assert.Equal(t, "test-session", snap.Session)
	assert.Equal(t, router.DefaultMaxDepth, snap.MaxDepth)
	require.Len(t, snap.Instances, 2)
	assert.Equal(t, byte('k'), snap.Instances[1].Registers[device.LinkData])
	assert.Len(t, snap.Instances[1].Memory, 0x11)

	var buf bytes.Buffer
	require.NoError(t, snap.Encode(&buf))
	again, err := h.Snapshot().Bytes()
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), again, "canonical encoding must be stable")

	got, err := DecodeSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, snap.Session, got.Session)
	assert.Equal(t, snap.Connections, got.Connections)
	reencoded, err := got.Bytes()
	require.NoError(t, err)
	assert.Equal(t, again, reencoded)
	assert.Equal(t, byte(0xee), got.Instances[1].MemoryPadded(arena.RegionSize)[0x10])
}

func TestHost_Close(t *testing.T) {
	ctx := context.Background()
	loader := newLoader()
	h, err := New(ctx, Wiring{Instances: []InstanceSpec{{Program: "noop"}, {Program: "noop"}}}, loader)
	require.NoError(t, err)

	require.NoError(t, h.Close(ctx))
	require.NoError(t, h.Close(ctx))
	assert.Equal(t, 2, loader.closed)

	err = h.Send(ctx, 0, device.LinkData, 1)
	assert.ErrorIs(t, err, errors.New(errors.PhaseRuntime, errors.KindNotInitialized).Build())
}

func TestHost_UnknownInstance(t *testing.T) {
	ctx := context.Background()
	h, err := New(ctx, Wiring{Instances: []InstanceSpec{{Program: "noop"}}}, newLoader())
	require.NoError(t, err)
	defer h.Close(ctx)

	_, err = h.Eval(ctx, 4, vmwire.ResetVector)
	assert.ErrorIs(t, err, errors.New(errors.PhaseRuntime, errors.KindNotFound).Build())
	assert.Nil(t, h.Instance(4))
	assert.Nil(t, h.Lookup("nope"))
}
