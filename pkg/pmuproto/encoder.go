package pmuproto

import (
	"bytes"
	"math"
)

// Encoder writes big-endian fields.
type Encoder struct {
	w *bytes.Buffer
}

// NewEncoder NewEncoder
func NewEncoder() *Encoder {
	return &Encoder{
		w: bytes.NewBuffer(make([]byte, 0, 128)),
	}
}

// Bytes Bytes
func (e *Encoder) Bytes() []byte {
	return e.w.Bytes()
}

// Len Len
func (e *Encoder) Len() int {
	return e.w.Len()
}

// WriteByte WriteByte
func (e *Encoder) WriteByte(b byte) error {
	return e.w.WriteByte(b)
}

// WriteUint8 WriteUint8
func (e *Encoder) WriteUint8(i uint8) {
	_ = e.w.WriteByte(i)
}

// WriteInt16 WriteInt16
func (e *Encoder) WriteInt16(i int) {
	e.w.Write([]byte{byte(i >> 8), byte(i & 0xFF)})
}

// WriteUint16 WriteUint16
func (e *Encoder) WriteUint16(i uint16) {
	e.WriteInt16(int(i))
}

// WriteUint24 WriteUint24
func (e *Encoder) WriteUint24(i uint32) {
	e.w.Write([]byte{byte(i >> 16), byte(i >> 8), byte(i & 0xFF)})
}

// WriteInt32 WriteInt32
func (e *Encoder) WriteInt32(i int32) {
	e.w.Write([]byte{
		byte(i >> 24),
		byte(i >> 16),
		byte(i >> 8),
		byte(i & 0xFF),
	})
}

// WriteUint32 WriteUint32
func (e *Encoder) WriteUint32(i uint32) {
	e.WriteInt32(int32(i))
}

// WriteFloat32 WriteFloat32
func (e *Encoder) WriteFloat32(f float32) {
	e.WriteUint32(math.Float32bits(f))
}

// WriteBytes WriteBytes
func (e *Encoder) WriteBytes(b []byte) {
	e.w.Write(b)
}

// WriteLabel writes s space padded to width bytes. Callers validate the length first.
func (e *Encoder) WriteLabel(s string, width int) {
	e.w.WriteString(s)
	for i := len(s); i < width; i++ {
		_ = e.w.WriteByte(' ')
	}
}

// PatchUint16 overwrites two already written bytes at offset.
func (e *Encoder) PatchUint16(offset int, v uint16) {
	b := e.w.Bytes()
	b[offset] = byte(v >> 8)
	b[offset+1] = byte(v & 0xFF)
}
