package device

import "context"

const (
	// Size is the number of addressable registers per instance.
	Size = 0x100
	// SlotSize is the width of one device slot.
	SlotSize = 0x10
	// Slots is the number of device slots.
	Slots = Size / SlotSize
)

// Reserved slots.
const (
	SlotSystem uint8 = 0x0
	SlotLink   uint8 = 0x1
)

// Handler implements a device occupying one slot. In and Out receive the
// absolute port. Out is called after the value has been stored.
type Handler interface {
	Name() string
	In(ctx context.Context, b *Bank, port uint8) uint8
	Out(ctx context.Context, b *Bank, port uint8, value uint8)
}

// Bank is a register file with a slot dispatch table.
type Bank struct {
	handlers [Slots]Handler
	regs     [Size]byte
}

// NewBank returns a zeroed bank with no handlers attached.
func NewBank() *Bank {
	return &Bank{}
}

// SlotOf returns the slot a port belongs to.
func SlotOf(port uint8) uint8 {
	return port >> 4
}

// Attach installs h for slot, replacing any previous handler.
func (b *Bank) Attach(slot uint8, h Handler) {
	b.handlers[slot&0x0f] = h
}

// Handler returns the handler attached to slot, or nil.
func (b *Bank) Handler(slot uint8) Handler {
	return b.handlers[slot&0x0f]
}

// Peek reads a register without device side effects.
func (b *Bank) Peek(port uint8) uint8 {
	return b.regs[port]
}

// Poke writes a register without device side effects.
func (b *Bank) Poke(port uint8, value uint8) {
	b.regs[port] = value
}

// Peek16 reads a big-endian short from port and port+1.
func (b *Bank) Peek16(port uint8) uint16 {
	return uint16(b.regs[port])<<8 | uint16(b.regs[port+1])
}

// Poke16 writes a big-endian short to port and port+1.
func (b *Bank) Poke16(port uint8, value uint16) {
	b.regs[port] = uint8(value >> 8)
	b.regs[port+1] = uint8(value)
}

// DEI performs a device read on behalf of the running program.
func (b *Bank) DEI(ctx context.Context, port uint8) uint8 {
	if h := b.handlers[SlotOf(port)]; h != nil {
		return h.In(ctx, b, port)
	}
	return b.regs[port]
}

// DEO performs a device write on behalf of the running program.
func (b *Bank) DEO(ctx context.Context, port uint8, value uint8) {
	b.regs[port] = value
	if h := b.handlers[SlotOf(port)]; h != nil {
		h.Out(ctx, b, port, value)
	}
}

// Page returns a copy of one slot's registers.
func (b *Bank) Page(slot uint8) [SlotSize]byte {
	var p [SlotSize]byte
	base := int(slot&0x0f) * SlotSize
	copy(p[:], b.regs[base:base+SlotSize])
	return p
}

// Registers returns a copy of the whole register file.
func (b *Bank) Registers() [Size]byte {
	return b.regs
}
