// Package programs holds the built-in guest programs.
//
// Every program is a core wasm module that imports device.deo and
// device.dei, owns one page of memory and exports eval(vector). Programs
// that accept input set their link vector to 0x0200 when booted at the reset
// vector.
//
//	relay   forwards each input byte to the write port
//	upper   like relay, uppercasing ASCII letters
//	hello   writes a greeting to the write port when run at the reset vector
//	sum     keeps a running byte sum in memory and writes it
//	sink    does nothing; deliveries reach the instance's sink
//	trap    traps on every input
//	exit    exits with the input byte as exit code
package programs

import (
	"sort"
	"sync"

	"github.com/wippyai/vmwire/internal/wasmbin"
)

// InputVector is the entry address input-driven programs install.
const InputVector = 0x0200

// Greeting is what hello writes.
const Greeting = "Hello, wire!\n"

// Device ports used by the programs.
const (
	portState    = 0x0f
	portVectorHi = 0x10
	portVectorLo = 0x11
	portData     = 0x12
	portWrite    = 0x18
)

var i32 = []wasmbin.ValType{wasmbin.I32}

var (
	builtins     map[string][]byte
	builtinsOnce sync.Once
)

func load() {
	builtins = map[string][]byte{
		"relay": relay(),
		"upper": upper(),
		"hello": hello(),
		"sum":   sum(),
		"sink":  sink(),
		"trap":  trap(),
		"exit":  exit(),
	}
}

// Lookup returns the binary of a built-in program.
func Lookup(name string) ([]byte, bool) {
	builtinsOnce.Do(load)
	b, ok := builtins[name]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, true
}

// Names lists the built-in programs in sorted order.
func Names() []string {
	builtinsOnce.Do(load)
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// program is a module skeleton with the device imports and one page of
// exported memory.
type program struct {
	m   *wasmbin.Module
	deo uint32
	dei uint32
}

func newProgram() *program {
	m := wasmbin.NewModule()
	p := &program{
		m:   m,
		deo: m.ImportFunc("device", "deo", []wasmbin.ValType{wasmbin.I32, wasmbin.I32}, nil),
		dei: m.ImportFunc("device", "dei", i32, i32),
	}
	m.Memory(1, 1)
	m.ExportMemory("memory")
	return p
}

func (p *program) eval(locals uint32, body *wasmbin.Code) []byte {
	p.m.ExportFunc("eval", p.m.Func(i32, nil, locals, body))
	return p.m.Encode()
}

// out emits deo(port, value).
func (p *program) out(c *wasmbin.Code, port, value int32) *wasmbin.Code {
	return c.I32Const(port).I32Const(value).Call(p.deo)
}

// onReset emits: if vector == reset { reset } else { input }.
func (p *program) onReset(reset, input func(c *wasmbin.Code)) *wasmbin.Code {
	c := wasmbin.NewCode().LocalGet(0).I32Const(0x0100).Eq().If()
	reset(c)
	c.Else()
	input(c)
	return c.End()
}

func (p *program) installInput(c *wasmbin.Code) {
	p.out(c, portVectorHi, InputVector>>8)
	p.out(c, portVectorLo, InputVector&0xff)
}

func relay() []byte {
	p := newProgram()
	return p.eval(0, p.onReset(p.installInput, func(c *wasmbin.Code) {
		c.I32Const(portWrite).I32Const(portData).Call(p.dei).Call(p.deo)
	}))
}

func upper() []byte {
	p := newProgram()
	return p.eval(1, p.onReset(p.installInput, func(c *wasmbin.Code) {
		c.I32Const(portData).Call(p.dei).LocalSet(1)
		c.LocalGet(1).I32Const('a').Sub().I32Const(26).LtU().If()
		c.LocalGet(1).I32Const('a' - 'A').Sub().LocalSet(1)
		c.End()
		c.I32Const(portWrite).LocalGet(1).Call(p.deo)
	}))
}

func hello() []byte {
	const base = 0x0100
	p := newProgram()
	p.m.Data(base, []byte(Greeting))
	return p.eval(2, p.onReset(func(c *wasmbin.Code) {
		c.Block().Loop()
		c.LocalGet(1).Load8U(base).LocalTee(2).Eqz().BrIf(1)
		c.I32Const(portWrite).LocalGet(2).Call(p.deo)
		c.LocalGet(1).I32Const(1).Add().LocalSet(1)
		c.Br(0)
		c.End().End()
	}, func(*wasmbin.Code) {}))
}

func sum() []byte {
	p := newProgram()
	return p.eval(0, p.onReset(p.installInput, func(c *wasmbin.Code) {
		c.I32Const(0)
		c.I32Const(0).Load8U(0)
		c.I32Const(portData).Call(p.dei)
		c.Add().Store8(0)
		c.I32Const(portWrite).I32Const(0).Load8U(0).Call(p.deo)
	}))
}

func sink() []byte {
	return newProgram().eval(0, wasmbin.NewCode())
}

func trap() []byte {
	p := newProgram()
	return p.eval(0, p.onReset(p.installInput, func(c *wasmbin.Code) {
		c.Unreachable()
	}))
}

func exit() []byte {
	p := newProgram()
	return p.eval(0, p.onReset(p.installInput, func(c *wasmbin.Code) {
		c.I32Const(portState).I32Const(portData).Call(p.dei).I32Const(0x80).Or().Call(p.deo)
	}))
}
