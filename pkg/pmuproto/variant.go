package pmuproto

import (
	"fmt"
	"strings"
	"time"
)

// Protocol identifies one of the supported wire protocol families.
type Protocol uint8

const (
	ProtocolUnknown Protocol = iota
	ProtocolIEEEC37118
	ProtocolIEC6185090_5
	ProtocolBPAPDCStream
	ProtocolMacrodyne
	ProtocolSELFastMessage
)

func (p Protocol) String() string {
	switch p {
	case ProtocolIEEEC37118:
		return "IEEEC37.118"
	case ProtocolIEC6185090_5:
		return "IEC61850-90-5"
	case ProtocolBPAPDCStream:
		return "BPAPDCstream"
	case ProtocolMacrodyne:
		return "Macrodyne"
	case ProtocolSELFastMessage:
		return "SELFastMessage"
	}
	return fmt.Sprintf("UNKNOWN[%d]", p)
}

func (p Protocol) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ParseProtocol accepts the names used in configuration files and on the command line.
func ParseProtocol(name string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return ProtocolUnknown, nil
	case "c37118", "c37.118", "ieeec37.118", "ieee-c37.118":
		return ProtocolIEEEC37118, nil
	case "iec61850-90-5", "iec61850905", "iec":
		return ProtocolIEC6185090_5, nil
	case "pdcstream", "bpa", "bpapdcstream", "bpa-pdcstream":
		return ProtocolBPAPDCStream, nil
	case "macrodyne":
		return ProtocolMacrodyne, nil
	case "sel", "selfastmessage", "sel-fast-message":
		return ProtocolSELFastMessage, nil
	}
	return ProtocolUnknown, fmt.Errorf("unknown protocol name %q", name)
}

// CoefficientEncoding how optional channel coefficients are written in definition elements.
type CoefficientEncoding uint8

const (
	// CoefficientFixedPoint scale uint24 and offset int32, both in 1e-5 units.
	CoefficientFixedPoint CoefficientEncoding = iota
	// CoefficientFloat32 scale and offset as IEEE-754 singles.
	CoefficientFloat32
)

const fixedPointUnit = 1e5

// Coefficients effective scale and offset of a channel.
type Coefficients struct {
	Scale  float64
	Offset float64
}

// Variant holds every protocol specific parameter the shared codec needs.
// Values are immutable and shared.
type Variant struct {
	Protocol           Protocol
	Sync               byte
	Versions           []uint8
	FractionSize       int  // 2 or 4 bytes, 4 carries a leading time quality byte
	TimebaseField      bool // configuration body starts with TIME_BASE
	FixedTimebase      uint32
	FooterSize         int // configuration footer, echoes the frame rate when present
	Coefficients       CoefficientEncoding
	Checksum           ChecksumStrategy
	EpochOffset        int64 // seconds from the protocol epoch to the Unix epoch
	StationLabelLength int
	ChannelLabelLength int
	AllowZeroIDCode    bool

	VoltageDefaults   Coefficients
	CurrentDefaults   Coefficients
	AnalogDefaults    Coefficients
	FrequencyDefaults Coefficients
}

const ntpEpochOffset = 2208988800

var (
	variantC37118 = &Variant{
		Protocol:           ProtocolIEEEC37118,
		Sync:               0xAA,
		Versions:           []uint8{1, 2},
		FractionSize:       4,
		TimebaseField:      true,
		FixedTimebase:      1000000,
		FooterSize:         2,
		Coefficients:       CoefficientFixedPoint,
		Checksum:           CRCCCITT,
		StationLabelLength: 16,
		ChannelLabelLength: 16,
		VoltageDefaults:    Coefficients{Scale: 9.15527},
		CurrentDefaults:    Coefficients{Scale: 0.45776},
		AnalogDefaults:     Coefficients{Scale: 1},
		FrequencyDefaults:  Coefficients{Scale: 1},
	}
	variantIEC6185090_5 = &Variant{
		Protocol:           ProtocolIEC6185090_5,
		Sync:               0xAA,
		Versions:           []uint8{5},
		FractionSize:       4,
		TimebaseField:      true,
		FixedTimebase:      1000000,
		FooterSize:         2,
		Coefficients:       CoefficientFloat32,
		Checksum:           CRCCCITT,
		StationLabelLength: 16,
		ChannelLabelLength: 16,
		VoltageDefaults:    Coefficients{Scale: 1},
		CurrentDefaults:    Coefficients{Scale: 0.1},
		AnalogDefaults:     Coefficients{Scale: 1},
		FrequencyDefaults:  Coefficients{Scale: 1},
	}
	variantBPAPDCStream = &Variant{
		Protocol:           ProtocolBPAPDCStream,
		Sync:               0xAB,
		Versions:           []uint8{1},
		FractionSize:       2,
		FixedTimebase:      1000,
		FooterSize:         2,
		Coefficients:       CoefficientFloat32,
		Checksum:           XOR16,
		EpochOffset:        ntpEpochOffset,
		StationLabelLength: 16,
		ChannelLabelLength: 16,
		VoltageDefaults:    Coefficients{Scale: 0.01},
		CurrentDefaults:    Coefficients{Scale: 0.001},
		AnalogDefaults:     Coefficients{Scale: 1},
		FrequencyDefaults:  Coefficients{Scale: 1},
	}
	variantMacrodyne = &Variant{
		Protocol:           ProtocolMacrodyne,
		Sync:               0xA3,
		Versions:           []uint8{1},
		FractionSize:       2,
		FixedTimebase:      10000,
		Coefficients:       CoefficientFloat32,
		Checksum:           Sum16,
		StationLabelLength: 16,
		ChannelLabelLength: 16,
		AllowZeroIDCode:    true,
		VoltageDefaults:    Coefficients{Scale: 0.0625},
		CurrentDefaults:    Coefficients{Scale: 0.00390625},
		AnalogDefaults:     Coefficients{Scale: 1},
		FrequencyDefaults:  Coefficients{Scale: 1},
	}
	variantSELFastMessage = &Variant{
		Protocol:           ProtocolSELFastMessage,
		Sync:               0xA5,
		Versions:           []uint8{1},
		FractionSize:       4,
		FixedTimebase:      1000000,
		Coefficients:       CoefficientFloat32,
		Checksum:           CRC16,
		StationLabelLength: 16,
		ChannelLabelLength: 6,
		AllowZeroIDCode:    true,
		VoltageDefaults:    Coefficients{Scale: 1},
		CurrentDefaults:    Coefficients{Scale: 0.5},
		AnalogDefaults:     Coefficients{Scale: 1},
		FrequencyDefaults:  Coefficients{Scale: 1},
	}
)

// dispatchTable is read only after init.
var dispatchTable = []*Variant{
	variantC37118,
	variantIEC6185090_5,
	variantBPAPDCStream,
	variantMacrodyne,
	variantSELFastMessage,
}

// Variants returns the supported protocol variants in dispatch order.
func Variants() []*Variant {
	return append([]*Variant(nil), dispatchTable...)
}

// LookupVariant returns the variant of p or nil.
func LookupVariant(p Protocol) *Variant {
	for _, v := range dispatchTable {
		if v.Protocol == p {
			return v
		}
	}
	return nil
}

// IdentifyProtocol selects a variant from the first two bytes of a frame.
func IdentifyProtocol(firstBytes []byte) (*Variant, error) {
	if len(firstBytes) < 2 {
		return nil, insufficient(ProtocolUnknown, len(firstBytes), 2)
	}
	version := firstBytes[1] & 0x0F
	for _, v := range dispatchTable {
		if v.Sync == firstBytes[0] && v.supportsVersion(version) {
			return v, nil
		}
	}
	return nil, &ParseError{Kind: ErrUnknownProtocol, Detail: fmt.Sprintf("signature 0x%02X%02X", firstBytes[0], firstBytes[1])}
}

func isSyncByte(b byte) bool {
	for _, v := range dispatchTable {
		if v.Sync == b {
			return true
		}
	}
	return false
}

func (v *Variant) String() string {
	return v.Protocol.String()
}

func (v *Variant) supportsVersion(version uint8) bool {
	for _, s := range v.Versions {
		if s == version {
			return true
		}
	}
	return false
}

// DefaultVersion newest wire revision of the variant.
func (v *Variant) DefaultVersion() uint8 {
	return v.Versions[len(v.Versions)-1]
}

// HeaderSize bytes of the common frame header.
func (v *Variant) HeaderSize() int {
	return 10 + v.FractionSize
}

func (v *Variant) hasTimeQuality() bool {
	return v.FractionSize == 4
}

func (v *Variant) maxFraction() uint32 {
	if v.FractionSize == 4 {
		return 1<<24 - 1
	}
	return 1<<16 - 1
}

// preambleSize configuration body fields before the cells.
func (v *Variant) preambleSize() int {
	n := 2 // cell count
	if v.TimebaseField {
		n += 4
	}
	if v.FooterSize == 0 {
		n += 2 // frame rate
	}
	return n
}

// coefficientSizes wire size of the optional scale and offset.
func (v *Variant) coefficientSizes() (int, int) {
	if v.Coefficients == CoefficientFixedPoint {
		return 3, 4
	}
	return 4, 4
}

// effectiveTimebase resolves the timebase used for fractional seconds.
func (v *Variant) effectiveTimebase(timebase uint32) uint32 {
	if !v.TimebaseField || timebase == 0 {
		return v.FixedTimebase
	}
	return timebase
}

// PhasorCoefficients substitutes the protocol defaults for absent calibration fields.
func (v *Variant) PhasorCoefficients(d *PhasorDefinition) Coefficients {
	c := v.VoltageDefaults
	if d.Type == PhasorCurrent {
		c = v.CurrentDefaults
	}
	return resolveCoefficients(c, d.Scale, d.Offset)
}

// AnalogCoefficients AnalogCoefficients
func (v *Variant) AnalogCoefficients(d *AnalogDefinition) Coefficients {
	return resolveCoefficients(v.AnalogDefaults, d.Scale, d.Offset)
}

// FrequencyCoefficients FrequencyCoefficients
func (v *Variant) FrequencyCoefficients(d *FrequencyDefinition) Coefficients {
	return resolveCoefficients(v.FrequencyDefaults, d.Scale, d.Offset)
}

func resolveCoefficients(defaults Coefficients, scale, offset *float64) Coefficients {
	if scale != nil {
		defaults.Scale = *scale
	}
	if offset != nil {
		defaults.Offset = *offset
	}
	return defaults
}

// encodeTime splits t into protocol second-of-century and fraction counts.
// The zero time encodes as zero.
func (v *Variant) encodeTime(t time.Time, timebase uint32) (uint32, uint32, error) {
	if t.IsZero() {
		return 0, 0, nil
	}
	sec := t.Unix() + v.EpochOffset
	if sec < 0 || sec > 1<<32-1 {
		return 0, 0, invalidConfig("timestamp %s outside the %s epoch range", t.UTC(), v.Protocol)
	}
	frac := uint64(t.Nanosecond()) * uint64(timebase) / uint64(time.Second)
	return uint32(sec), uint32(frac), nil
}

func (v *Variant) decodeTime(soc, fraction, timebase uint32) time.Time {
	if soc == 0 && fraction == 0 {
		return time.Time{}
	}
	ns := int64(0)
	if timebase > 0 {
		// rounded up so encodeTime, which truncates, returns the same count
		ns = int64((uint64(fraction)*uint64(time.Second) + uint64(timebase) - 1) / uint64(timebase))
	}
	return time.Unix(int64(soc)-v.EpochOffset, ns).UTC()
}
