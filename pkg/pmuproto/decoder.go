package pmuproto

import (
	"fmt"
	"math"
	"strings"
)

// Decoder reads big-endian fields from a bounded byte range.
type Decoder struct {
	p      []byte
	offset int
}

// NewDecoder NewDecoder
func NewDecoder(p []byte) *Decoder {
	return &Decoder{
		p: p,
	}
}

// Len remaining bytes
func (d *Decoder) Len() int {
	return len(d.p) - d.offset
}

// Offset bytes consumed so far
func (d *Decoder) Offset() int {
	return d.offset
}

func (d *Decoder) need(n int) error {
	if d.offset+n > len(d.p) {
		return fmt.Errorf("decoder couldn't read expect bytes %d of %d", d.offset+n, len(d.p))
	}
	return nil
}

// Uint8 Uint8
func (d *Decoder) Uint8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	b := d.p[d.offset]
	d.offset += 1
	return b, nil
}

// Int16 Int16
func (d *Decoder) Int16() (int16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	b := d.p[d.offset : d.offset+2]
	d.offset += 2
	return (int16(b[0]) << 8) | int16(b[1]), nil
}

// Uint16 Uint16
func (d *Decoder) Uint16() (uint16, error) {
	i, err := d.Int16()
	if err != nil {
		return 0, err
	}
	return uint16(i), nil
}

// Uint24 Uint24
func (d *Decoder) Uint24() (uint32, error) {
	if err := d.need(3); err != nil {
		return 0, err
	}
	b := d.p[d.offset : d.offset+3]
	d.offset += 3
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

// Int32 Int32
func (d *Decoder) Int32() (int32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	b := d.p[d.offset : d.offset+4]
	d.offset += 4
	return (int32(b[0]) << 24) | (int32(b[1]) << 16) | (int32(b[2]) << 8) | int32(b[3]), nil
}

// Uint32 Uint32
func (d *Decoder) Uint32() (uint32, error) {
	i, err := d.Int32()
	if err != nil {
		return 0, err
	}
	return uint32(i), nil
}

// Float32 IEEE-754 single precision
func (d *Decoder) Float32() (float32, error) {
	u, err := d.Uint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(u), nil
}

// Bytes Bytes
func (d *Decoder) Bytes(num int) ([]byte, error) {
	if err := d.need(num); err != nil {
		return nil, err
	}
	b := d.p[d.offset : d.offset+num]
	d.offset += num
	return b, nil
}

// Label reads a fixed-width, space or NUL padded ASCII label.
func (d *Decoder) Label(width int) (string, error) {
	b, err := d.Bytes(width)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), " \x00"), nil
}

// BinaryAll BinaryAll
func (d *Decoder) BinaryAll() []byte {
	b := d.p[d.offset:]
	d.offset = len(d.p)
	return b
}

// Skip Skip
func (d *Decoder) Skip(n int) error {
	if err := d.need(n); err != nil {
		return err
	}
	d.offset += n
	return nil
}
