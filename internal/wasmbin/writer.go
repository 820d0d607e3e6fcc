package wasmbin

import "bytes"

// Writer accumulates wasm binary encodings.
type Writer struct {
	buf bytes.Buffer
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Byte writes a single byte.
func (w *Writer) Byte(b byte) {
	w.buf.WriteByte(b)
}

// Raw writes data unchanged.
func (w *Writer) Raw(data []byte) {
	w.buf.Write(data)
}

// U32 writes an unsigned LEB128 value.
func (w *Writer) U32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

// S32 writes a signed LEB128 value.
func (w *Writer) S32(v int32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			w.buf.WriteByte(b)
			return
		}
		w.buf.WriteByte(b | 0x80)
	}
}

// Name writes a length-prefixed UTF-8 string.
func (w *Writer) Name(s string) {
	w.U32(uint32(len(s)))
	w.buf.WriteString(s)
}

// Vec writes a length-prefixed byte vector.
func (w *Writer) Vec(data []byte) {
	w.U32(uint32(len(data)))
	w.buf.Write(data)
}
