package pmuproto

import (
	"math"
	"math/cmplx"
	"time"
)

// PhasorValue raw phasor components as carried on the wire: real and imaginary parts
// for rectangular formats, magnitude and angle for polar formats.
type PhasorValue struct {
	A float64
	B float64
}

// DataCell samples of one device, laid out by the matching configuration cell.
type DataCell struct {
	IDCode    uint16
	Status    uint16
	Phasors   []PhasorValue
	Frequency float64
	DfDt      float64
	Analogs   []float64
	Digitals  []uint16
}

// DataFrame one measurement instant of every configured device.
type DataFrame struct {
	Protocol    Protocol
	Version     uint8
	IDCode      uint16
	Timestamp   time.Time
	TimeQuality uint8
	Cells       []*DataCell

	// Configuration that dictates the layout. Not written to the wire.
	Configuration *ConfigurationFrame `json:"-" yaml:"-"`
}

func (f *DataFrame) GetFrameType() FrameType { return FrameTypeData }
func (f *DataFrame) GetProtocol() Protocol   { return f.Protocol }
func (f *DataFrame) GetIDCode() uint16       { return f.IDCode }

// NewDataFrame returns a zero valued data frame shaped by cfg.
func NewDataFrame(cfg *ConfigurationFrame, ts time.Time) *DataFrame {
	f := &DataFrame{
		Protocol:      cfg.Protocol,
		Version:       cfg.Version,
		IDCode:        cfg.IDCode,
		Timestamp:     ts,
		Configuration: cfg,
	}
	for _, c := range cfg.Cells {
		dc := &DataCell{IDCode: c.IDCode}
		if len(c.Phasors) > 0 {
			dc.Phasors = make([]PhasorValue, len(c.Phasors))
		}
		if len(c.Analogs) > 0 {
			dc.Analogs = make([]float64, len(c.Analogs))
		}
		if len(c.Digitals) > 0 {
			dc.Digitals = make([]uint16, len(c.Digitals))
		}
		f.Cells = append(f.Cells, dc)
	}
	return f
}

// Phasor returns phasor i of cell n in engineering units.
func (f *DataFrame) Phasor(n, i int) complex128 {
	layout := f.Configuration.Cells[n]
	raw := f.Cells[n].Phasors[i]
	if layout.Format.Has(FormatPhasorFloat) {
		if layout.Format.Has(FormatPolar) {
			return cmplx.Rect(raw.A, raw.B)
		}
		return complex(raw.A, raw.B)
	}
	c := f.Configuration.Variant().PhasorCoefficients(layout.Phasors[i])
	if layout.Format.Has(FormatPolar) {
		// integer angles are in 1e-4 radians
		return cmplx.Rect(raw.A*c.Scale+c.Offset, raw.B*1e-4)
	}
	return complex(raw.A*c.Scale+c.Offset, raw.B*c.Scale+c.Offset)
}

// Frequency returns the frequency of cell n in Hz.
func (f *DataFrame) Frequency(n int) float64 {
	layout := f.Configuration.Cells[n]
	raw := f.Cells[n].Frequency
	if layout.Format.Has(FormatFrequencyFloat) {
		return raw
	}
	c := f.Configuration.Variant().FrequencyCoefficients(layout.Frequency)
	// integer frequency is the deviation from nominal in mHz
	return float64(layout.NominalFrequency) + (raw*c.Scale+c.Offset)/1000
}

// Analog returns analog i of cell n scaled by its coefficients.
func (f *DataFrame) Analog(n, i int) float64 {
	layout := f.Configuration.Cells[n]
	raw := f.Cells[n].Analogs[i]
	if layout.Format.Has(FormatAnalogFloat) {
		return raw
	}
	c := f.Configuration.Variant().AnalogCoefficients(layout.Analogs[i])
	return raw*c.Scale + c.Offset
}

func dataCellSize(c *ConfigurationCell) int {
	n := 2 + 2*len(c.Digitals)
	if c.Format.Has(FormatPhasorFloat) {
		n += 8 * len(c.Phasors)
	} else {
		n += 4 * len(c.Phasors)
	}
	if c.Format.Has(FormatFrequencyFloat) {
		n += 8
	} else {
		n += 4
	}
	if c.Format.Has(FormatAnalogFloat) {
		n += 4 * len(c.Analogs)
	} else {
		n += 2 * len(c.Analogs)
	}
	return n
}

func checkInteger(what string, v, min, max float64) error {
	if v != math.Trunc(v) || v < min || v > max {
		return invalidConfig("%s value %v is not an integer in [%v, %v]", what, v, min, max)
	}
	return nil
}

func checkFloat32(what string, v float64) error {
	if math.IsNaN(v) || math.Abs(v) > math.MaxFloat32 {
		return invalidConfig("%s value %v does not fit a float32", what, v)
	}
	return nil
}

func validateDataCell(layout *ConfigurationCell, c *DataCell) error {
	if c.IDCode != 0 && c.IDCode != layout.IDCode {
		return invalidConfig("data cell %d does not match configured cell %d", c.IDCode, layout.IDCode)
	}
	if len(c.Phasors) != len(layout.Phasors) || len(c.Analogs) != len(layout.Analogs) || len(c.Digitals) != len(layout.Digitals) {
		return invalidConfig("data cell %d has %d/%d/%d phasor/analog/digital values, configuration declares %d/%d/%d",
			layout.IDCode, len(c.Phasors), len(c.Analogs), len(c.Digitals), len(layout.Phasors), len(layout.Analogs), len(layout.Digitals))
	}
	for _, p := range c.Phasors {
		switch {
		case layout.Format.Has(FormatPhasorFloat):
			if err := checkFloat32("phasor", p.A); err != nil {
				return err
			}
			if err := checkFloat32("phasor", p.B); err != nil {
				return err
			}
		case layout.Format.Has(FormatPolar):
			if err := checkInteger("phasor magnitude", p.A, 0, math.MaxUint16); err != nil {
				return err
			}
			if err := checkInteger("phasor angle", p.B, math.MinInt16, math.MaxInt16); err != nil {
				return err
			}
		default:
			if err := checkInteger("phasor", p.A, math.MinInt16, math.MaxInt16); err != nil {
				return err
			}
			if err := checkInteger("phasor", p.B, math.MinInt16, math.MaxInt16); err != nil {
				return err
			}
		}
	}
	for _, x := range []float64{c.Frequency, c.DfDt} {
		if layout.Format.Has(FormatFrequencyFloat) {
			if err := checkFloat32("frequency", x); err != nil {
				return err
			}
		} else if err := checkInteger("frequency", x, math.MinInt16, math.MaxInt16); err != nil {
			return err
		}
	}
	for _, x := range c.Analogs {
		if layout.Format.Has(FormatAnalogFloat) {
			if err := checkFloat32("analog", x); err != nil {
				return err
			}
		} else if err := checkInteger("analog", x, math.MinInt16, math.MaxInt16); err != nil {
			return err
		}
	}
	return nil
}

func encodeDataCell(enc *Encoder, layout *ConfigurationCell, c *DataCell) {
	enc.WriteUint16(c.Status)
	for _, p := range c.Phasors {
		switch {
		case layout.Format.Has(FormatPhasorFloat):
			enc.WriteFloat32(float32(p.A))
			enc.WriteFloat32(float32(p.B))
		case layout.Format.Has(FormatPolar):
			enc.WriteUint16(uint16(p.A))
			enc.WriteInt16(int(p.B))
		default:
			enc.WriteInt16(int(p.A))
			enc.WriteInt16(int(p.B))
		}
	}
	for _, x := range []float64{c.Frequency, c.DfDt} {
		if layout.Format.Has(FormatFrequencyFloat) {
			enc.WriteFloat32(float32(x))
		} else {
			enc.WriteInt16(int(x))
		}
	}
	for _, x := range c.Analogs {
		if layout.Format.Has(FormatAnalogFloat) {
			enc.WriteFloat32(float32(x))
		} else {
			enc.WriteInt16(int(x))
		}
	}
	for _, d := range c.Digitals {
		enc.WriteUint16(d)
	}
}

func decodeDataCell(raw []byte, layout *ConfigurationCell) (*DataCell, error) {
	dec := NewDecoder(raw)
	c := &DataCell{IDCode: layout.IDCode}
	var err error
	if c.Status, err = dec.Uint16(); err != nil {
		return nil, err
	}
	readFloat := func() (float64, error) {
		f, err := dec.Float32()
		return float64(f), err
	}
	readInt := func() (float64, error) {
		i, err := dec.Int16()
		return float64(i), err
	}
	for range layout.Phasors {
		var p PhasorValue
		switch {
		case layout.Format.Has(FormatPhasorFloat):
			if p.A, err = readFloat(); err != nil {
				return nil, err
			}
			if p.B, err = readFloat(); err != nil {
				return nil, err
			}
		case layout.Format.Has(FormatPolar):
			mag, err := dec.Uint16()
			if err != nil {
				return nil, err
			}
			p.A = float64(mag)
			if p.B, err = readInt(); err != nil {
				return nil, err
			}
		default:
			if p.A, err = readInt(); err != nil {
				return nil, err
			}
			if p.B, err = readInt(); err != nil {
				return nil, err
			}
		}
		c.Phasors = append(c.Phasors, p)
	}
	readFreq := readInt
	if layout.Format.Has(FormatFrequencyFloat) {
		readFreq = readFloat
	}
	if c.Frequency, err = readFreq(); err != nil {
		return nil, err
	}
	if c.DfDt, err = readFreq(); err != nil {
		return nil, err
	}
	readAnalog := readInt
	if layout.Format.Has(FormatAnalogFloat) {
		readAnalog = readFloat
	}
	for range layout.Analogs {
		x, err := readAnalog()
		if err != nil {
			return nil, err
		}
		c.Analogs = append(c.Analogs, x)
	}
	for range layout.Digitals {
		d, err := dec.Uint16()
		if err != nil {
			return nil, err
		}
		c.Digitals = append(c.Digitals, d)
	}
	return c, nil
}

func encodeDataFrame(enc *Encoder, v *Variant, f *DataFrame) error {
	cfg := f.Configuration
	if cfg == nil {
		return invalidConfig("data frame %d has no configuration", f.IDCode)
	}
	if cfg.Protocol != f.Protocol {
		return invalidConfig("data frame protocol %s differs from configuration protocol %s", f.Protocol, cfg.Protocol)
	}
	if len(f.Cells) != len(cfg.Cells) {
		return invalidConfig("data frame has %d cells, configuration declares %d", len(f.Cells), len(cfg.Cells))
	}
	for i, c := range f.Cells {
		if err := validateDataCell(cfg.Cells[i], c); err != nil {
			return err
		}
	}
	h, err := newHeader(v, FrameTypeData, f.Version, f.IDCode, f.Timestamp, f.TimeQuality, v.effectiveTimebase(cfg.Timebase))
	if err != nil {
		return err
	}
	writeHeader(enc, v, h)
	for i, c := range f.Cells {
		encodeDataCell(enc, cfg.Cells[i], c)
	}
	return nil
}
