package pmuproto

import "github.com/sigurn/crc16"

// ChecksumStrategy computes the 16-bit frame check value over buf[offset:offset+length].
// Implementations hold no mutable state and are shared by every connection.
type ChecksumStrategy interface {
	Name() string
	Compute(buf []byte, offset, length int) uint16
}

type crcStrategy struct {
	name  string
	table *crc16.Table
}

func (c crcStrategy) Name() string { return c.name }

func (c crcStrategy) Compute(buf []byte, offset, length int) uint16 {
	return crc16.Checksum(buf[offset:offset+length], c.table)
}

var (
	// CRCCCITT CRC-16/CCITT-FALSE: poly 0x1021, init 0xFFFF, no reflection.
	CRCCCITT ChecksumStrategy = crcStrategy{
		name: "CRC-CCITT",
		table: crc16.MakeTable(crc16.Params{
			Poly:   0x1021,
			Init:   0xFFFF,
			RefIn:  false,
			RefOut: false,
			XorOut: 0x0000,
			Check:  0x29B1,
			Name:   "CRC-16/CCITT-FALSE",
		}),
	}
	// CRC16 CRC-16/ARC: poly 0x8005 reflected, init 0.
	CRC16 ChecksumStrategy = crcStrategy{
		name: "CRC-16",
		table: crc16.MakeTable(crc16.Params{
			Poly:   0x8005,
			Init:   0x0000,
			RefIn:  true,
			RefOut: true,
			XorOut: 0x0000,
			Check:  0xBB3D,
			Name:   "CRC-16/ARC",
		}),
	}
	// XOR16 xor of big-endian 16-bit words, an odd tail byte is the high byte of the last word.
	XOR16 ChecksumStrategy = xor16{}
	// Sum16 additive byte sum truncated to 16 bits.
	Sum16 ChecksumStrategy = sum16{}
)

type xor16 struct{}

func (xor16) Name() string { return "XOR-16" }

func (xor16) Compute(buf []byte, offset, length int) uint16 {
	var v uint16
	end := offset + length
	i := offset
	for ; i+1 < end; i += 2 {
		v ^= uint16(buf[i])<<8 | uint16(buf[i+1])
	}
	if i < end {
		v ^= uint16(buf[i]) << 8
	}
	return v
}

type sum16 struct{}

func (sum16) Name() string { return "SUM-16" }

func (sum16) Compute(buf []byte, offset, length int) uint16 {
	var v uint16
	for _, b := range buf[offset : offset+length] {
		v += uint16(b)
	}
	return v
}
