package pmuproto

import (
	"fmt"
	"time"
)

// FrameType frame type nibble, high four bits of the second header byte.
type FrameType uint8

const (
	FrameTypeData FrameType = iota
	FrameTypeHeader
	FrameTypeConfig1
	FrameTypeConfig2
	FrameTypeCommand
	FrameTypeConfig3
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeData:
		return "DATA"
	case FrameTypeHeader:
		return "HEADER"
	case FrameTypeConfig1:
		return "CFG1"
	case FrameTypeConfig2:
		return "CFG2"
	case FrameTypeCommand:
		return "COMMAND"
	case FrameTypeConfig3:
		return "CFG3"
	}
	return fmt.Sprintf("UNKNOWN[%d]", t)
}

func (t FrameType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// IsConfiguration IsConfiguration
func (t FrameType) IsConfiguration() bool {
	return t == FrameTypeConfig1 || t == FrameTypeConfig2 || t == FrameTypeConfig3
}

func (t FrameType) valid() bool {
	return t <= FrameTypeConfig3
}

// Frame is a decoded or composable frame.
type Frame interface {
	GetFrameType() FrameType
	GetProtocol() Protocol
	GetIDCode() uint16
}

// CommonFrameHeader fixed header shared by every frame type of every variant.
type CommonFrameHeader struct {
	Protocol    Protocol
	Sync        byte
	FrameType   FrameType
	Version     uint8
	Length      uint16 // total frame bytes, checksum included
	IDCode      uint16
	SOC         uint32 // seconds since the protocol epoch
	Fraction    uint32
	TimeQuality uint8
}

// Timestamp converts SOC and fraction with the given timebase.
func (h CommonFrameHeader) Timestamp(timebase uint32) time.Time {
	v := LookupVariant(h.Protocol)
	if v == nil {
		return time.Time{}
	}
	return v.decodeTime(h.SOC, h.Fraction, v.effectiveTimebase(timebase))
}

func (h CommonFrameHeader) String() string {
	return fmt.Sprintf("protocol:%s type:%s version:%d length:%d idcode:%d soc:%d fraction:%d", h.Protocol, h.FrameType, h.Version, h.Length, h.IDCode, h.SOC, h.Fraction)
}

// ParseHeader parses the common header at buf[offset:] and returns it with the
// number of bytes consumed.
func ParseHeader(buf []byte, offset int) (CommonFrameHeader, int, error) {
	if offset > len(buf) {
		offset = len(buf)
	}
	data := buf[offset:]
	v, err := IdentifyProtocol(data)
	if err != nil {
		return CommonFrameHeader{}, 0, err
	}
	return parseHeader(data, v)
}

func parseHeader(data []byte, v *Variant) (CommonFrameHeader, int, error) {
	if t := FrameType(data[1] >> 4); !t.valid() {
		return CommonFrameHeader{}, 0, &ParseError{Kind: ErrMalformedHeader, Protocol: v.Protocol, Offset: 1, Detail: fmt.Sprintf("frame type %d", t)}
	}
	size := v.HeaderSize()
	if len(data) >= 4 {
		if length := int(data[2])<<8 | int(data[3]); length < size+2 {
			return CommonFrameHeader{}, 0, &ParseError{Kind: ErrMalformedHeader, Protocol: v.Protocol, Offset: 2, Detail: fmt.Sprintf("declared length %d", length)}
		}
	}
	if len(data) < size {
		return CommonFrameHeader{}, 0, insufficient(v.Protocol, len(data), size)
	}
	dec := NewDecoder(data[:size])
	h := CommonFrameHeader{Protocol: v.Protocol}
	h.Sync, _ = dec.Uint8()
	typeAndVersion, _ := dec.Uint8()
	h.FrameType = FrameType(typeAndVersion >> 4)
	h.Version = typeAndVersion & 0x0F
	h.Length, _ = dec.Uint16()
	h.IDCode, _ = dec.Uint16()
	h.SOC, _ = dec.Uint32()
	if v.FractionSize == 4 {
		h.TimeQuality, _ = dec.Uint8()
		h.Fraction, _ = dec.Uint24()
	} else {
		f, _ := dec.Uint16()
		h.Fraction = uint32(f)
	}
	return h, size, nil
}

// writeHeader writes the header with a zero length, patched once the frame is complete.
func writeHeader(enc *Encoder, v *Variant, h CommonFrameHeader) {
	enc.WriteUint8(v.Sync)
	enc.WriteUint8(uint8(h.FrameType)<<4 | h.Version&0x0F)
	enc.WriteUint16(0)
	enc.WriteUint16(h.IDCode)
	enc.WriteUint32(h.SOC)
	if v.FractionSize == 4 {
		enc.WriteUint8(h.TimeQuality)
		enc.WriteUint24(h.Fraction)
	} else {
		enc.WriteUint16(uint16(h.Fraction))
	}
}

const lengthOffset = 2

// newHeader validates the generic header fields of a frame about to be composed.
func newHeader(v *Variant, t FrameType, version uint8, idCode uint16, ts time.Time, quality uint8, timebase uint32) (CommonFrameHeader, error) {
	if version == 0 {
		version = v.DefaultVersion()
	}
	if !v.supportsVersion(version) {
		return CommonFrameHeader{}, invalidConfig("%s does not define version %d", v.Protocol, version)
	}
	if idCode == 0 && !v.AllowZeroIDCode {
		return CommonFrameHeader{}, invalidConfig("%s forbids ID code 0", v.Protocol)
	}
	if quality != 0 && !v.hasTimeQuality() {
		return CommonFrameHeader{}, invalidConfig("%s has no time quality field", v.Protocol)
	}
	soc, frac, err := v.encodeTime(ts, timebase)
	if err != nil {
		return CommonFrameHeader{}, err
	}
	return CommonFrameHeader{
		Protocol:    v.Protocol,
		Sync:        v.Sync,
		FrameType:   t,
		Version:     version,
		IDCode:      idCode,
		SOC:         soc,
		Fraction:    frac,
		TimeQuality: quality,
	}, nil
}
