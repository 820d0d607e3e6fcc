package wasmbin

// Opcodes emitted by Code.
const (
	opUnreachable = 0x00
	opBlock       = 0x02
	opLoop        = 0x03
	opIf          = 0x04
	opElse        = 0x05
	opEnd         = 0x0b
	opBr          = 0x0c
	opBrIf        = 0x0d
	opReturn      = 0x0f
	opCall        = 0x10
	opDrop        = 0x1a
	opLocalGet    = 0x20
	opLocalSet    = 0x21
	opLocalTee    = 0x22
	opI32Load8U   = 0x2d
	opI32Store8   = 0x3a
	opI32Const    = 0x41
	opI32Eqz      = 0x45
	opI32Eq       = 0x46
	opI32Ne       = 0x47
	opI32LtU      = 0x49
	opI32GeU      = 0x4f
	opI32Add      = 0x6a
	opI32Sub      = 0x6b
	opI32And      = 0x71
	opI32Or       = 0x72
	opI32Shl      = 0x74
	opI32ShrU     = 0x76

	blockEmpty = 0x40
)

// Code is an instruction sequence. Methods return the receiver so bodies
// read top to bottom.
type Code struct {
	w Writer
}

// NewCode returns an empty instruction sequence.
func NewCode() *Code {
	return &Code{}
}

// Bytes returns the encoded instructions without the final end.
func (c *Code) Bytes() []byte {
	return c.w.Bytes()
}

func (c *Code) op(b byte) *Code {
	c.w.Byte(b)
	return c
}

func (c *Code) Unreachable() *Code { return c.op(opUnreachable) }
func (c *Code) Block() *Code       { return c.op(opBlock).op(blockEmpty) }
func (c *Code) Loop() *Code        { return c.op(opLoop).op(blockEmpty) }
func (c *Code) If() *Code          { return c.op(opIf).op(blockEmpty) }
func (c *Code) Else() *Code        { return c.op(opElse) }
func (c *Code) End() *Code         { return c.op(opEnd) }
func (c *Code) Return() *Code      { return c.op(opReturn) }
func (c *Code) Drop() *Code        { return c.op(opDrop) }
func (c *Code) Eqz() *Code         { return c.op(opI32Eqz) }
func (c *Code) Eq() *Code          { return c.op(opI32Eq) }
func (c *Code) Ne() *Code          { return c.op(opI32Ne) }
func (c *Code) LtU() *Code         { return c.op(opI32LtU) }
func (c *Code) GeU() *Code         { return c.op(opI32GeU) }
func (c *Code) Add() *Code         { return c.op(opI32Add) }
func (c *Code) Sub() *Code         { return c.op(opI32Sub) }
func (c *Code) And() *Code         { return c.op(opI32And) }
func (c *Code) Or() *Code          { return c.op(opI32Or) }
func (c *Code) Shl() *Code         { return c.op(opI32Shl) }
func (c *Code) ShrU() *Code        { return c.op(opI32ShrU) }

// Br branches to the label depth levels out.
func (c *Code) Br(depth uint32) *Code {
	c.w.Byte(opBr)
	c.w.U32(depth)
	return c
}

// BrIf branches when the popped value is nonzero.
func (c *Code) BrIf(depth uint32) *Code {
	c.w.Byte(opBrIf)
	c.w.U32(depth)
	return c
}

// Call calls function idx.
func (c *Code) Call(idx uint32) *Code {
	c.w.Byte(opCall)
	c.w.U32(idx)
	return c
}

func (c *Code) LocalGet(idx uint32) *Code {
	c.w.Byte(opLocalGet)
	c.w.U32(idx)
	return c
}

func (c *Code) LocalSet(idx uint32) *Code {
	c.w.Byte(opLocalSet)
	c.w.U32(idx)
	return c
}

func (c *Code) LocalTee(idx uint32) *Code {
	c.w.Byte(opLocalTee)
	c.w.U32(idx)
	return c
}

// I32Const pushes v.
func (c *Code) I32Const(v int32) *Code {
	c.w.Byte(opI32Const)
	c.w.S32(v)
	return c
}

// Load8U loads one byte at address+offset, zero-extended.
func (c *Code) Load8U(offset uint32) *Code {
	c.w.Byte(opI32Load8U)
	c.w.U32(0)
	c.w.U32(offset)
	return c
}

// Store8 stores the low byte of the value at address+offset.
func (c *Code) Store8(offset uint32) *Code {
	c.w.Byte(opI32Store8)
	c.w.U32(0)
	c.w.U32(offset)
	return c
}
