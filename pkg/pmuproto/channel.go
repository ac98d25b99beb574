package pmuproto

import (
	"fmt"
	"math"
	"strings"
)

// ChannelKind ChannelKind
type ChannelKind uint8

const (
	ChannelPhasor ChannelKind = iota + 1
	ChannelAnalog
	ChannelDigital
	ChannelFrequency
)

func (k ChannelKind) String() string {
	switch k {
	case ChannelPhasor:
		return "phasor"
	case ChannelAnalog:
		return "analog"
	case ChannelDigital:
		return "digital"
	case ChannelFrequency:
		return "frequency"
	}
	return fmt.Sprintf("UNKNOWN[%d]", k)
}

// definition element tags
const (
	tagPhasor    byte = 'P'
	tagAnalog    byte = 'A'
	tagDigital   byte = 'D'
	tagFrequency byte = 'F'
)

const (
	flagHasScale  = 0x01
	flagHasOffset = 0x02
)

// PhasorType PhasorType
type PhasorType uint8

const (
	PhasorVoltage PhasorType = iota
	PhasorCurrent
)

func (t PhasorType) String() string {
	if t == PhasorCurrent {
		return "current"
	}
	return "voltage"
}

func (t PhasorType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// AnalogType AnalogType
type AnalogType uint8

const (
	AnalogSinglePointOnWave AnalogType = iota
	AnalogRMS
	AnalogPeak
)

func (t AnalogType) String() string {
	switch t {
	case AnalogRMS:
		return "rms"
	case AnalogPeak:
		return "peak"
	}
	return "point-on-wave"
}

func (t AnalogType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ChannelDefinition is implemented only by the four definition records of this package.
type ChannelDefinition interface {
	Kind() ChannelKind
	GetIndex() int
	GetLabel() string
	channelDefinition()
}

// PhasorDefinition PhasorDefinition
type PhasorDefinition struct {
	Index  int
	Label  string
	Type   PhasorType
	Scale  *float64 // nil when absent on the wire
	Offset *float64
}

// AnalogDefinition AnalogDefinition
type AnalogDefinition struct {
	Index  int
	Label  string
	Type   AnalogType
	Scale  *float64
	Offset *float64
}

// DigitalDefinition describes one 16-bit status word.
type DigitalDefinition struct {
	Index        int
	Label        string
	NormalStatus uint16
	ValidInputs  uint16
}

// FrequencyDefinition FrequencyDefinition
type FrequencyDefinition struct {
	Index  int
	Label  string
	Scale  *float64
	Offset *float64
}

func (d *PhasorDefinition) Kind() ChannelKind    { return ChannelPhasor }
func (d *AnalogDefinition) Kind() ChannelKind    { return ChannelAnalog }
func (d *DigitalDefinition) Kind() ChannelKind   { return ChannelDigital }
func (d *FrequencyDefinition) Kind() ChannelKind { return ChannelFrequency }

func (d *PhasorDefinition) GetIndex() int    { return d.Index }
func (d *AnalogDefinition) GetIndex() int    { return d.Index }
func (d *DigitalDefinition) GetIndex() int   { return d.Index }
func (d *FrequencyDefinition) GetIndex() int { return d.Index }

func (d *PhasorDefinition) GetLabel() string    { return d.Label }
func (d *AnalogDefinition) GetLabel() string    { return d.Label }
func (d *DigitalDefinition) GetLabel() string   { return d.Label }
func (d *FrequencyDefinition) GetLabel() string { return d.Label }

func (*PhasorDefinition) channelDefinition()    {}
func (*AnalogDefinition) channelDefinition()    {}
func (*DigitalDefinition) channelDefinition()   {}
func (*FrequencyDefinition) channelDefinition() {}

// Float returns a pointer to v, for optional coefficients.
func Float(v float64) *float64 {
	return &v
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return Float(*p)
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func validateCoefficient(v *Variant, label string, value *float64, offset bool) error {
	if value == nil {
		return nil
	}
	x := *value
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return invalidConfig("channel %q coefficient %v is not finite", label, x)
	}
	switch v.Coefficients {
	case CoefficientFixedPoint:
		n := math.Round(x * fixedPointUnit)
		if offset {
			if n < math.MinInt32 || n > math.MaxInt32 {
				return invalidConfig("channel %q offset %v out of fixed-point range", label, x)
			}
		} else if n < 0 || n > 1<<24-1 {
			return invalidConfig("channel %q scale %v out of fixed-point range", label, x)
		}
	case CoefficientFloat32:
		if math.Abs(x) > math.MaxFloat32 {
			return invalidConfig("channel %q coefficient %v overflows float32", label, x)
		}
	}
	return nil
}

// checkLabel rejects labels that do not survive the fixed-width padding unchanged.
func checkLabel(what, label string, width int) error {
	if len(label) > width {
		return invalidConfig("%s label %q longer than %d bytes", what, label, width)
	}
	if strings.TrimRight(label, " \x00") != label {
		return invalidConfig("%s label %q ends in padding", what, label)
	}
	return nil
}

func validateDefinition(v *Variant, def ChannelDefinition) error {
	if err := checkLabel(def.Kind().String(), def.GetLabel(), v.ChannelLabelLength); err != nil {
		return err
	}
	switch d := def.(type) {
	case *PhasorDefinition:
		if d.Type > PhasorCurrent {
			return invalidConfig("phasor %q has unknown type %d", d.Label, d.Type)
		}
		if err := validateCoefficient(v, d.Label, d.Scale, false); err != nil {
			return err
		}
		return validateCoefficient(v, d.Label, d.Offset, true)
	case *AnalogDefinition:
		if d.Type > AnalogPeak {
			return invalidConfig("analog %q has unknown type %d", d.Label, d.Type)
		}
		if err := validateCoefficient(v, d.Label, d.Scale, false); err != nil {
			return err
		}
		return validateCoefficient(v, d.Label, d.Offset, true)
	case *FrequencyDefinition:
		if err := validateCoefficient(v, d.Label, d.Scale, false); err != nil {
			return err
		}
		return validateCoefficient(v, d.Label, d.Offset, true)
	case *DigitalDefinition:
		return nil
	}
	return invalidConfig("unsupported channel definition %T", def)
}

func coefficientFlags(scale, offset *float64) uint8 {
	var flags uint8
	if scale != nil {
		flags |= flagHasScale
	}
	if offset != nil {
		flags |= flagHasOffset
	}
	return flags
}

func definitionBodySize(v *Variant, def ChannelDefinition) int {
	scaleSize, offsetSize := v.coefficientSizes()
	coefSize := func(scale, offset *float64) int {
		n := 0
		if scale != nil {
			n += scaleSize
		}
		if offset != nil {
			n += offsetSize
		}
		return n
	}
	n := v.ChannelLabelLength
	switch d := def.(type) {
	case *PhasorDefinition:
		n += 2 + coefSize(d.Scale, d.Offset)
	case *AnalogDefinition:
		n += 2 + coefSize(d.Scale, d.Offset)
	case *FrequencyDefinition:
		n += 1 + coefSize(d.Scale, d.Offset)
	case *DigitalDefinition:
		n += 4
	}
	return n
}

func encodeCoefficients(enc *Encoder, v *Variant, scale, offset *float64) {
	if scale != nil {
		if v.Coefficients == CoefficientFixedPoint {
			enc.WriteUint24(uint32(math.Round(*scale * fixedPointUnit)))
		} else {
			enc.WriteFloat32(float32(*scale))
		}
	}
	if offset != nil {
		if v.Coefficients == CoefficientFixedPoint {
			enc.WriteInt32(int32(math.Round(*offset * fixedPointUnit)))
		} else {
			enc.WriteFloat32(float32(*offset))
		}
	}
}

// encodeDefinition writes one tag, length, body element.
func encodeDefinition(enc *Encoder, v *Variant, def ChannelDefinition) {
	size := definitionBodySize(v, def)
	switch d := def.(type) {
	case *PhasorDefinition:
		enc.WriteUint8(tagPhasor)
		enc.WriteUint8(uint8(size))
		enc.WriteLabel(d.Label, v.ChannelLabelLength)
		enc.WriteUint8(coefficientFlags(d.Scale, d.Offset))
		enc.WriteUint8(uint8(d.Type))
		encodeCoefficients(enc, v, d.Scale, d.Offset)
	case *AnalogDefinition:
		enc.WriteUint8(tagAnalog)
		enc.WriteUint8(uint8(size))
		enc.WriteLabel(d.Label, v.ChannelLabelLength)
		enc.WriteUint8(coefficientFlags(d.Scale, d.Offset))
		enc.WriteUint8(uint8(d.Type))
		encodeCoefficients(enc, v, d.Scale, d.Offset)
	case *FrequencyDefinition:
		enc.WriteUint8(tagFrequency)
		enc.WriteUint8(uint8(size))
		enc.WriteLabel(d.Label, v.ChannelLabelLength)
		enc.WriteUint8(coefficientFlags(d.Scale, d.Offset))
		encodeCoefficients(enc, v, d.Scale, d.Offset)
	case *DigitalDefinition:
		enc.WriteUint8(tagDigital)
		enc.WriteUint8(uint8(size))
		enc.WriteLabel(d.Label, v.ChannelLabelLength)
		enc.WriteUint16(d.NormalStatus)
		enc.WriteUint16(d.ValidInputs)
	}
}

func decodeCoefficients(dec *Decoder, v *Variant, flags uint8) (*float64, *float64, error) {
	var scale, offset *float64
	if flags&flagHasScale != 0 {
		if v.Coefficients == CoefficientFixedPoint {
			u, err := dec.Uint24()
			if err != nil {
				return nil, nil, err
			}
			scale = Float(float64(u) / fixedPointUnit)
		} else {
			f, err := dec.Float32()
			if err != nil {
				return nil, nil, err
			}
			scale = Float(float64(f))
		}
	}
	if flags&flagHasOffset != 0 {
		if v.Coefficients == CoefficientFixedPoint {
			i, err := dec.Int32()
			if err != nil {
				return nil, nil, err
			}
			offset = Float(float64(i) / fixedPointUnit)
		} else {
			f, err := dec.Float32()
			if err != nil {
				return nil, nil, err
			}
			offset = Float(float64(f))
		}
	}
	return scale, offset, nil
}

// decodeDefinition reads one element. A nil definition with a nil error is a hole:
// an element whose tag is not recognized and was skipped.
func decodeDefinition(dec *Decoder, v *Variant) (ChannelDefinition, error) {
	tag, err := dec.Uint8()
	if err != nil {
		return nil, err
	}
	size, err := dec.Uint8()
	if err != nil {
		return nil, err
	}
	raw, err := dec.Bytes(int(size))
	if err != nil {
		return nil, err
	}
	body := NewDecoder(raw)

	var def ChannelDefinition
	switch tag {
	case tagPhasor, tagAnalog, tagFrequency:
		label, err := body.Label(v.ChannelLabelLength)
		if err != nil {
			return nil, err
		}
		flags, err := body.Uint8()
		if err != nil {
			return nil, err
		}
		var typ uint8
		if tag != tagFrequency {
			if typ, err = body.Uint8(); err != nil {
				return nil, err
			}
		}
		scale, offset, err := decodeCoefficients(body, v, flags)
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagPhasor:
			if PhasorType(typ) > PhasorCurrent {
				return nil, fmt.Errorf("phasor %q has unknown type %d", label, typ)
			}
			def = &PhasorDefinition{Label: label, Type: PhasorType(typ), Scale: scale, Offset: offset}
		case tagAnalog:
			if AnalogType(typ) > AnalogPeak {
				return nil, fmt.Errorf("analog %q has unknown type %d", label, typ)
			}
			def = &AnalogDefinition{Label: label, Type: AnalogType(typ), Scale: scale, Offset: offset}
		default:
			def = &FrequencyDefinition{Label: label, Scale: scale, Offset: offset}
		}
	case tagDigital:
		label, err := body.Label(v.ChannelLabelLength)
		if err != nil {
			return nil, err
		}
		normal, err := body.Uint16()
		if err != nil {
			return nil, err
		}
		valid, err := body.Uint16()
		if err != nil {
			return nil, err
		}
		def = &DigitalDefinition{Label: label, NormalStatus: normal, ValidInputs: valid}
	default:
		return nil, nil
	}
	if body.Len() != 0 {
		return nil, fmt.Errorf("%s element declares %d bytes, %d left over", def.Kind(), size, body.Len())
	}
	return def, nil
}
