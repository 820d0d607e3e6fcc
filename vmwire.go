package vmwire

import (
	"context"
	"strconv"
)

// ID identifies an instance. IDs are assigned in declaration order from 0.
type ID int

func (id ID) String() string {
	return strconv.Itoa(int(id))
}

// ResetVector is the entry point every instance runs once at boot.
const ResetVector uint16 = 0x0100

// Halt reports why an evaluation returned.
type Halt uint8

const (
	HaltBreak Halt = iota // program returned normally
	HaltExit              // system state register was set
	HaltFault             // program trapped or could not run
	HaltSkip              // evaluation was not started
)

func (h Halt) String() string {
	switch h {
	case HaltBreak:
		return "break"
	case HaltExit:
		return "exit"
	case HaltFault:
		return "fault"
	case HaltSkip:
		return "skip"
	}
	return "unknown"
}

// Memory is an instance's private byte region. Offsets are relative to the
// start of the region.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	WriteU8(offset uint32, value uint8) error
	Size() uint32
}

// Bus is the device register surface a running program reads and writes.
type Bus interface {
	DEI(ctx context.Context, port uint8) uint8
	DEO(ctx context.Context, port uint8, value uint8)
}

// Program is a loaded program image bound to one instance.
// Eval runs from vector until the program halts or faults.
type Program interface {
	Eval(ctx context.Context, vector uint16) (Halt, error)
	Close(ctx context.Context) error
}

// Loader turns a program reference into a Program bound to an instance's
// memory and device bus.
type Loader interface {
	Load(ctx context.Context, id ID, ref string, mem Memory, bus Bus) (Program, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, id ID, ref string, mem Memory, bus Bus) (Program, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, id ID, ref string, mem Memory, bus Bus) (Program, error) {
	return f(ctx, id, ref, mem, bus)
}
