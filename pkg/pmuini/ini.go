// Package pmuini imports device configurations kept in INI-style text files, the way
// PDCstream and Macrodyne installations describe their devices. The files use the TOML
// dialect so that nested channel tables keep their order.
package pmuini

import (
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gridwatch/pmugate/pkg/pmuproto"
	"github.com/pkg/errors"
)

type fileConfig struct {
	Protocol  string         `toml:"protocol"`
	IDCode    uint16         `toml:"idcode"`
	Version   uint8          `toml:"version"`
	FrameRate int16          `toml:"frame_rate"`
	Timebase  uint32         `toml:"timebase"`
	Type      string         `toml:"type"`
	Devices   []deviceConfig `toml:"device"`
}

type deviceConfig struct {
	IDCode             uint16          `toml:"idcode"`
	Station            string          `toml:"station"`
	Format             []string        `toml:"format"`
	NominalFrequency   uint16          `toml:"nominal_frequency"`
	ConfigurationCount uint16          `toml:"config_count"`
	Phasors            []channelConfig `toml:"phasor"`
	Analogs            []channelConfig `toml:"analog"`
	Digitals           []digitalConfig `toml:"digital"`
	Frequency          *channelConfig  `toml:"frequency"`
}

type channelConfig struct {
	Label  string   `toml:"label"`
	Type   string   `toml:"type"`
	Scale  *float64 `toml:"scale"`
	Offset *float64 `toml:"offset"`
}

type digitalConfig struct {
	Label        string `toml:"label"`
	NormalStatus uint16 `toml:"normal_status"`
	ValidInputs  uint16 `toml:"valid_inputs"`
}

// Load reads the device file at path.
func Load(path string) (*pmuproto.ConfigurationFrame, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, errors.Wrapf(err, "load device file %s", path)
	}
	f, err := build(raw, meta)
	if err != nil {
		return nil, errors.Wrapf(err, "device file %s", path)
	}
	return f, nil
}

// Decode reads a device file from r.
func Decode(r io.Reader) (*pmuproto.ConfigurationFrame, error) {
	var raw fileConfig
	meta, err := toml.NewDecoder(r).Decode(&raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode device file")
	}
	return build(raw, meta)
}

func build(raw fileConfig, meta toml.MetaData) (*pmuproto.ConfigurationFrame, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("unknown keys %v", undecoded)
	}
	protocol, err := pmuproto.ParseProtocol(raw.Protocol)
	if err != nil {
		return nil, err
	}
	if protocol == pmuproto.ProtocolUnknown {
		return nil, errors.New("protocol is required")
	}
	if !meta.IsDefined("frame_rate") {
		return nil, errors.New("frame_rate is required")
	}

	f := pmuproto.NewConfigurationFrame(protocol, raw.IDCode, raw.FrameRate, raw.Timebase)
	if meta.IsDefined("version") {
		f.Version = raw.Version
	}
	if meta.IsDefined("type") {
		if f.Type, err = parseFrameType(raw.Type); err != nil {
			return nil, err
		}
	}

	for i, d := range raw.Devices {
		c, err := buildCell(d)
		if err != nil {
			return nil, errors.Wrapf(err, "device %d", i+1)
		}
		if err := f.AddCell(c); err != nil {
			return nil, err
		}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func buildCell(d deviceConfig) (*pmuproto.ConfigurationCell, error) {
	c := pmuproto.NewConfigurationCell(d.IDCode, strings.TrimSpace(d.Station))
	c.ConfigurationCount = d.ConfigurationCount
	if d.NominalFrequency != 0 {
		c.NominalFrequency = d.NominalFrequency
	}
	for _, name := range d.Format {
		flag, err := parseFormat(name)
		if err != nil {
			return nil, err
		}
		c.Format |= flag
	}

	for _, p := range d.Phasors {
		typ := pmuproto.PhasorVoltage
		switch strings.ToLower(p.Type) {
		case "", "voltage", "v":
		case "current", "i":
			typ = pmuproto.PhasorCurrent
		default:
			return nil, errors.Errorf("phasor %s: unknown type %q", p.Label, p.Type)
		}
		def := c.AddPhasorDefinition(p.Label, typ)
		def.Scale, def.Offset = p.Scale, p.Offset
	}
	for _, a := range d.Analogs {
		typ := pmuproto.AnalogSinglePointOnWave
		switch strings.ToLower(a.Type) {
		case "", "pow", "point-on-wave":
		case "rms":
			typ = pmuproto.AnalogRMS
		case "peak":
			typ = pmuproto.AnalogPeak
		default:
			return nil, errors.Errorf("analog %s: unknown type %q", a.Label, a.Type)
		}
		def := c.AddAnalogDefinition(a.Label, typ)
		def.Scale, def.Offset = a.Scale, a.Offset
	}
	for _, dg := range d.Digitals {
		c.AddDigitalDefinition(dg.Label, dg.NormalStatus, dg.ValidInputs)
	}
	if d.Frequency == nil {
		return nil, errors.Errorf("station %q has no frequency definition", d.Station)
	}
	fd := c.SetFrequencyDefinition(d.Frequency.Label)
	fd.Scale, fd.Offset = d.Frequency.Scale, d.Frequency.Offset
	return c, nil
}

func parseFormat(name string) (pmuproto.DataFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "polar":
		return pmuproto.FormatPolar, nil
	case "rectangular":
		return 0, nil
	case "phasor-float", "phasor_float":
		return pmuproto.FormatPhasorFloat, nil
	case "analog-float", "analog_float":
		return pmuproto.FormatAnalogFloat, nil
	case "freq-float", "freq_float", "frequency-float", "frequency_float":
		return pmuproto.FormatFrequencyFloat, nil
	}
	return 0, errors.Errorf("unknown format %q", name)
}

func parseFrameType(name string) (pmuproto.FrameType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cfg1", "config1":
		return pmuproto.FrameTypeConfig1, nil
	case "cfg2", "config2":
		return pmuproto.FrameTypeConfig2, nil
	case "cfg3", "config3":
		return pmuproto.FrameTypeConfig3, nil
	}
	return 0, errors.Errorf("unknown configuration type %q", name)
}
