package pmuproto

import (
	"time"
)

// ConfigurationFrame describes the devices, and their channels, that a source reports
// in subsequent data frames.
type ConfigurationFrame struct {
	Protocol    Protocol
	Type        FrameType // FrameTypeConfig1, FrameTypeConfig2 or FrameTypeConfig3
	Version     uint8     // draft revision, 0 selects the newest revision of the protocol
	IDCode      uint16
	Timestamp   time.Time
	TimeQuality uint8
	Timebase    uint32
	FrameRate   int16 // frames per second, negative values are seconds per frame
	Cells       []*ConfigurationCell
}

// NewConfigurationFrame NewConfigurationFrame
func NewConfigurationFrame(protocol Protocol, idCode uint16, frameRate int16, timebase uint32) *ConfigurationFrame {
	f := &ConfigurationFrame{
		Protocol:  protocol,
		Type:      FrameTypeConfig2,
		IDCode:    idCode,
		FrameRate: frameRate,
		Timebase:  timebase,
	}
	if v := LookupVariant(protocol); v != nil {
		f.Version = v.DefaultVersion()
		f.Timebase = v.effectiveTimebase(timebase)
	}
	return f
}

// NewDeviceConfigurationFrame builds a frame for a directly connected device whose
// single parent cell shares the frame ID code.
func NewDeviceConfigurationFrame(protocol Protocol, idCode uint16, stationLabel string, frameRate int16, timebase uint32) (*ConfigurationFrame, *ConfigurationCell) {
	f := NewConfigurationFrame(protocol, idCode, frameRate, timebase)
	c := NewConfigurationCell(idCode, stationLabel)
	_ = f.AddCell(c)
	return f, c
}

func (f *ConfigurationFrame) GetFrameType() FrameType { return f.Type }
func (f *ConfigurationFrame) GetProtocol() Protocol   { return f.Protocol }
func (f *ConfigurationFrame) GetIDCode() uint16       { return f.IDCode }

// AddCell appends c and stamps it with the frame rate of the frame.
func (f *ConfigurationFrame) AddCell(c *ConfigurationCell) error {
	if f.Cell(c.IDCode) != nil {
		return invalidConfig("duplicate cell ID code %d", c.IDCode)
	}
	c.FrameRate = f.FrameRate
	f.Cells = append(f.Cells, c)
	return nil
}

// Cell Cell
func (f *ConfigurationFrame) Cell(idCode uint16) *ConfigurationCell {
	for _, c := range f.Cells {
		if c.IDCode == idCode {
			return c
		}
	}
	return nil
}

// ParentCell returns the first cell when it represents the directly connected device.
func (f *ConfigurationFrame) ParentCell() *ConfigurationCell {
	if len(f.Cells) > 0 && f.Cells[0].IDCode == f.IDCode {
		return f.Cells[0]
	}
	return nil
}

// SetFrameRate updates the frame and every cell.
func (f *ConfigurationFrame) SetFrameRate(rate int16) {
	f.FrameRate = rate
	for _, c := range f.Cells {
		c.FrameRate = rate
	}
}

// Variant Variant
func (f *ConfigurationFrame) Variant() *Variant {
	return LookupVariant(f.Protocol)
}

// Validate checks every compose time contract of the frame.
func (f *ConfigurationFrame) Validate() error {
	v := f.Variant()
	if v == nil {
		return invalidConfig("unsupported protocol %s", f.Protocol)
	}
	if !f.Type.IsConfiguration() {
		return invalidConfig("frame type %s is not a configuration type", f.Type)
	}
	if f.FrameRate == 0 {
		return invalidConfig("frame rate must not be zero")
	}
	if v.TimebaseField {
		if f.Timebase == 0 || f.Timebase > v.maxFraction() {
			return invalidConfig("timebase %d outside 1..%d", f.Timebase, v.maxFraction())
		}
	} else if f.Timebase != 0 && f.Timebase != v.FixedTimebase {
		return invalidConfig("%s uses a fixed timebase of %d, got %d", v.Protocol, v.FixedTimebase, f.Timebase)
	}
	if len(f.Cells) > 0xFFFF {
		return invalidConfig("%d cells exceed the cell count field", len(f.Cells))
	}
	seen := make(map[uint16]struct{}, len(f.Cells))
	for _, c := range f.Cells {
		if _, ok := seen[c.IDCode]; ok {
			return invalidConfig("duplicate cell ID code %d", c.IDCode)
		}
		seen[c.IDCode] = struct{}{}
		if c.FrameRate != 0 && c.FrameRate != f.FrameRate {
			return invalidConfig("cell %d frame rate %d differs from frame rate %d", c.IDCode, c.FrameRate, f.FrameRate)
		}
		if err := c.Validate(v); err != nil {
			return err
		}
	}
	return nil
}

func encodeConfigurationFrame(enc *Encoder, v *Variant, f *ConfigurationFrame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	timebase := v.effectiveTimebase(f.Timebase)
	h, err := newHeader(v, f.Type, f.Version, f.IDCode, f.Timestamp, f.TimeQuality, timebase)
	if err != nil {
		return err
	}
	writeHeader(enc, v, h)
	if v.TimebaseField {
		enc.WriteUint32(timebase)
	}
	if v.FooterSize == 0 {
		enc.WriteUint16(uint16(f.FrameRate))
	}
	enc.WriteUint16(uint16(len(f.Cells)))
	for _, c := range f.Cells {
		encodeConfigurationCell(enc, v, c)
	}
	if v.FooterSize > 0 {
		enc.WriteUint16(uint16(f.FrameRate))
	}
	return nil
}
