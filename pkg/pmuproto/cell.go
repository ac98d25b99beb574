package pmuproto

import (
	"fmt"
	"strings"
)

// DataFormat FORMAT word of a cell, governs data frame field widths.
type DataFormat uint16

const (
	FormatFrequencyFloat DataFormat = 1 << iota
	FormatAnalogFloat
	FormatPhasorFloat
	FormatPolar
)

// Has Has
func (f DataFormat) Has(flag DataFormat) bool {
	return f&flag != 0
}

func (f DataFormat) String() string {
	parts := make([]string, 0, 4)
	if f.Has(FormatPolar) {
		parts = append(parts, "polar")
	} else {
		parts = append(parts, "rectangular")
	}
	if f.Has(FormatPhasorFloat) {
		parts = append(parts, "phasor-float")
	}
	if f.Has(FormatAnalogFloat) {
		parts = append(parts, "analog-float")
	}
	if f.Has(FormatFrequencyFloat) {
		parts = append(parts, "freq-float")
	}
	return strings.Join(parts, "|")
}

func (f DataFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// ChannelSetChange result of ApplyChannelSet.
type ChannelSetChange uint8

const (
	ChannelSetUnchanged ChannelSetChange = iota
	// ChannelSetUpdated same channels, fields updated in place
	ChannelSetUpdated
	// ChannelSetReplaced channel sequence dropped and recreated
	ChannelSetReplaced
)

func (c ChannelSetChange) String() string {
	switch c {
	case ChannelSetUpdated:
		return "updated"
	case ChannelSetReplaced:
		return "replaced"
	}
	return "unchanged"
}

// ConfigurationCell describes one device inside a configuration frame.
type ConfigurationCell struct {
	IDCode             uint16
	StationLabel       string
	Format             DataFormat
	NominalFrequency   uint16 // 50 or 60
	FrameRate          int16  // mirrors the parent frame
	ConfigurationCount uint16

	Phasors   []*PhasorDefinition
	Analogs   []*AnalogDefinition
	Digitals  []*DigitalDefinition
	Frequency *FrequencyDefinition
}

// NewConfigurationCell NewConfigurationCell
func NewConfigurationCell(idCode uint16, stationLabel string) *ConfigurationCell {
	return &ConfigurationCell{
		IDCode:           idCode,
		StationLabel:     stationLabel,
		NominalFrequency: 60,
	}
}

// AddPhasorDefinition appends a phasor with index count+1. Coefficients stay absent.
func (c *ConfigurationCell) AddPhasorDefinition(label string, typ PhasorType) *PhasorDefinition {
	d := &PhasorDefinition{Index: len(c.Phasors) + 1, Label: label, Type: typ}
	c.Phasors = append(c.Phasors, d)
	return d
}

// AddAnalogDefinition AddAnalogDefinition
func (c *ConfigurationCell) AddAnalogDefinition(label string, typ AnalogType) *AnalogDefinition {
	d := &AnalogDefinition{Index: len(c.Analogs) + 1, Label: label, Type: typ}
	c.Analogs = append(c.Analogs, d)
	return d
}

// AddDigitalDefinition AddDigitalDefinition
func (c *ConfigurationCell) AddDigitalDefinition(label string, normalStatus, validInputs uint16) *DigitalDefinition {
	d := &DigitalDefinition{Index: len(c.Digitals) + 1, Label: label, NormalStatus: normalStatus, ValidInputs: validInputs}
	c.Digitals = append(c.Digitals, d)
	return d
}

// SetFrequencyDefinition SetFrequencyDefinition
func (c *ConfigurationCell) SetFrequencyDefinition(label string) *FrequencyDefinition {
	c.Frequency = &FrequencyDefinition{Index: 1, Label: label}
	return c.Frequency
}

// Definitions returns all channel definitions in wire order: phasors, analogs, digitals, frequency.
func (c *ConfigurationCell) Definitions() []ChannelDefinition {
	defs := make([]ChannelDefinition, 0, len(c.Phasors)+len(c.Analogs)+len(c.Digitals)+1)
	for _, d := range c.Phasors {
		defs = append(defs, d)
	}
	for _, d := range c.Analogs {
		defs = append(defs, d)
	}
	for _, d := range c.Digitals {
		defs = append(defs, d)
	}
	if c.Frequency != nil {
		defs = append(defs, c.Frequency)
	}
	return defs
}

// ChannelCount ChannelCount
func (c *ConfigurationCell) ChannelCount(kind ChannelKind) int {
	switch kind {
	case ChannelPhasor:
		return len(c.Phasors)
	case ChannelAnalog:
		return len(c.Analogs)
	case ChannelDigital:
		return len(c.Digitals)
	case ChannelFrequency:
		if c.Frequency != nil {
			return 1
		}
	}
	return 0
}

// ApplyChannelSet re-assigns the channels of one kind after a reconfiguration.
// When the count is unchanged and the incoming indices are 1..n in order the existing
// definitions are updated in place so index to meaning stays stable. Otherwise the
// kind's sequence is dropped and recreated with fresh indices.
func (c *ConfigurationCell) ApplyChannelSet(kind ChannelKind, defs []ChannelDefinition) (ChannelSetChange, error) {
	for _, d := range defs {
		if d == nil || d.Kind() != kind {
			return ChannelSetUnchanged, invalidConfig("channel set for %s contains %v", kind, d)
		}
	}
	if kind == ChannelFrequency && len(defs) != 1 {
		return ChannelSetUnchanged, invalidConfig("a cell has exactly one frequency definition, got %d", len(defs))
	}
	sequential := true
	for i, d := range defs {
		if d.GetIndex() != i+1 {
			sequential = false
			break
		}
	}
	if !sequential || len(defs) != c.ChannelCount(kind) {
		c.replaceChannels(kind, defs)
		return ChannelSetReplaced, nil
	}

	changed := false
	for i, def := range defs {
		switch d := def.(type) {
		case *PhasorDefinition:
			cur := c.Phasors[i]
			if cur.Label != d.Label || cur.Type != d.Type || !sameFloat(cur.Scale, d.Scale) || !sameFloat(cur.Offset, d.Offset) {
				cur.Label, cur.Type, cur.Scale, cur.Offset = d.Label, d.Type, copyFloat(d.Scale), copyFloat(d.Offset)
				changed = true
			}
		case *AnalogDefinition:
			cur := c.Analogs[i]
			if cur.Label != d.Label || cur.Type != d.Type || !sameFloat(cur.Scale, d.Scale) || !sameFloat(cur.Offset, d.Offset) {
				cur.Label, cur.Type, cur.Scale, cur.Offset = d.Label, d.Type, copyFloat(d.Scale), copyFloat(d.Offset)
				changed = true
			}
		case *DigitalDefinition:
			cur := c.Digitals[i]
			if cur.Label != d.Label || cur.NormalStatus != d.NormalStatus || cur.ValidInputs != d.ValidInputs {
				cur.Label, cur.NormalStatus, cur.ValidInputs = d.Label, d.NormalStatus, d.ValidInputs
				changed = true
			}
		case *FrequencyDefinition:
			cur := c.Frequency
			if cur.Label != d.Label || !sameFloat(cur.Scale, d.Scale) || !sameFloat(cur.Offset, d.Offset) {
				cur.Label, cur.Scale, cur.Offset = d.Label, copyFloat(d.Scale), copyFloat(d.Offset)
				changed = true
			}
		}
	}
	if changed {
		return ChannelSetUpdated, nil
	}
	return ChannelSetUnchanged, nil
}

func (c *ConfigurationCell) replaceChannels(kind ChannelKind, defs []ChannelDefinition) {
	switch kind {
	case ChannelPhasor:
		c.Phasors = nil
		for _, def := range defs {
			d := def.(*PhasorDefinition)
			p := c.AddPhasorDefinition(d.Label, d.Type)
			p.Scale, p.Offset = copyFloat(d.Scale), copyFloat(d.Offset)
		}
	case ChannelAnalog:
		c.Analogs = nil
		for _, def := range defs {
			d := def.(*AnalogDefinition)
			a := c.AddAnalogDefinition(d.Label, d.Type)
			a.Scale, a.Offset = copyFloat(d.Scale), copyFloat(d.Offset)
		}
	case ChannelDigital:
		c.Digitals = nil
		for _, def := range defs {
			d := def.(*DigitalDefinition)
			c.AddDigitalDefinition(d.Label, d.NormalStatus, d.ValidInputs)
		}
	case ChannelFrequency:
		d := defs[0].(*FrequencyDefinition)
		f := c.SetFrequencyDefinition(d.Label)
		f.Scale, f.Offset = copyFloat(d.Scale), copyFloat(d.Offset)
	}
}

// Validate checks the cell against the contract of variant v.
func (c *ConfigurationCell) Validate(v *Variant) error {
	if c.IDCode == 0 && !v.AllowZeroIDCode {
		return invalidConfig("cell %q: %s forbids ID code 0", c.StationLabel, v.Protocol)
	}
	if err := checkLabel("station", c.StationLabel, v.StationLabelLength); err != nil {
		return err
	}
	if c.NominalFrequency != 50 && c.NominalFrequency != 60 {
		return invalidConfig("cell %d: nominal frequency %d is not 50 or 60", c.IDCode, c.NominalFrequency)
	}
	if c.Frequency == nil {
		return invalidConfig("cell %d has no frequency definition", c.IDCode)
	}
	if c.Format > FormatPolar|FormatPhasorFloat|FormatAnalogFloat|FormatFrequencyFloat {
		return invalidConfig("cell %d: unknown format bits 0x%04X", c.IDCode, uint16(c.Format))
	}
	for i, d := range c.Phasors {
		if d.Index != i+1 {
			return invalidConfig("cell %d: phasor %q has index %d, want %d", c.IDCode, d.Label, d.Index, i+1)
		}
	}
	for i, d := range c.Analogs {
		if d.Index != i+1 {
			return invalidConfig("cell %d: analog %q has index %d, want %d", c.IDCode, d.Label, d.Index, i+1)
		}
	}
	for i, d := range c.Digitals {
		if d.Index != i+1 {
			return invalidConfig("cell %d: digital %q has index %d, want %d", c.IDCode, d.Label, d.Index, i+1)
		}
	}
	if c.Frequency.Index != 1 {
		return invalidConfig("cell %d: frequency index %d, want 1", c.IDCode, c.Frequency.Index)
	}
	size := 0
	for _, d := range c.Definitions() {
		if err := validateDefinition(v, d); err != nil {
			return err
		}
		size += 2 + definitionBodySize(v, d)
	}
	if size > 0xFFFF {
		return invalidConfig("cell %d: channel definitions need %d bytes", c.IDCode, size)
	}
	return nil
}

// cellFixedSize bytes before the definition block.
func cellFixedSize(v *Variant) int {
	return v.StationLabelLength + 12
}

// configurationCellSize reports the wire size of the cell starting at buf[0],
// or false when the fixed part is not yet available.
func configurationCellSize(buf []byte, v *Variant) (int, bool) {
	fixed := cellFixedSize(v)
	if len(buf) < fixed {
		return fixed, false
	}
	defLen := int(buf[fixed-2])<<8 | int(buf[fixed-1])
	return fixed + defLen + 4, true
}

func encodeConfigurationCell(enc *Encoder, v *Variant, c *ConfigurationCell) {
	defs := c.Definitions()
	defLen := 0
	for _, d := range defs {
		defLen += 2 + definitionBodySize(v, d)
	}
	enc.WriteLabel(c.StationLabel, v.StationLabelLength)
	enc.WriteUint16(c.IDCode)
	enc.WriteUint16(uint16(c.Format))
	enc.WriteUint16(uint16(len(c.Phasors)))
	enc.WriteUint16(uint16(len(c.Analogs)))
	enc.WriteUint16(uint16(len(c.Digitals)))
	enc.WriteUint16(uint16(defLen))
	for _, d := range defs {
		encodeDefinition(enc, v, d)
	}
	var fnom uint16
	if c.NominalFrequency == 50 {
		fnom = 1
	}
	enc.WriteUint16(fnom)
	enc.WriteUint16(c.ConfigurationCount)
}

// decodeConfigurationCell parses exactly one cell image. Any error means the
// cell must be discarded.
func decodeConfigurationCell(raw []byte, v *Variant) (*ConfigurationCell, error) {
	dec := NewDecoder(raw)
	c := &ConfigurationCell{}
	var err error
	if c.StationLabel, err = dec.Label(v.StationLabelLength); err != nil {
		return nil, err
	}
	if c.IDCode, err = dec.Uint16(); err != nil {
		return nil, err
	}
	format, err := dec.Uint16()
	if err != nil {
		return nil, err
	}
	c.Format = DataFormat(format)
	var counts [3]uint16
	for i := range counts {
		if counts[i], err = dec.Uint16(); err != nil {
			return nil, err
		}
	}
	defLen, err := dec.Uint16()
	if err != nil {
		return nil, err
	}
	block, err := dec.Bytes(int(defLen))
	if err != nil {
		return nil, err
	}
	defs := NewDecoder(block)
	for defs.Len() > 0 {
		def, err := decodeDefinition(defs, v)
		if err != nil {
			return c, err
		}
		switch d := def.(type) {
		case nil:
			// unrecognized tag, left as a hole
		case *PhasorDefinition:
			d.Index = len(c.Phasors) + 1
			c.Phasors = append(c.Phasors, d)
		case *AnalogDefinition:
			d.Index = len(c.Analogs) + 1
			c.Analogs = append(c.Analogs, d)
		case *DigitalDefinition:
			d.Index = len(c.Digitals) + 1
			c.Digitals = append(c.Digitals, d)
		case *FrequencyDefinition:
			if c.Frequency != nil {
				return c, fmt.Errorf("more than one frequency definition")
			}
			d.Index = 1
			c.Frequency = d
		}
	}
	if len(c.Phasors) != int(counts[0]) || len(c.Analogs) != int(counts[1]) || len(c.Digitals) != int(counts[2]) {
		return c, fmt.Errorf("declared %d/%d/%d phasor/analog/digital definitions, parsed %d/%d/%d",
			counts[0], counts[1], counts[2], len(c.Phasors), len(c.Analogs), len(c.Digitals))
	}
	if c.Frequency == nil {
		return c, fmt.Errorf("missing frequency definition")
	}
	fnom, err := dec.Uint16()
	if err != nil {
		return c, err
	}
	c.NominalFrequency = 60
	if fnom&0x01 != 0 {
		c.NominalFrequency = 50
	}
	if c.ConfigurationCount, err = dec.Uint16(); err != nil {
		return c, err
	}
	return c, nil
}
