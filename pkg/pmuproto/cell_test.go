package pmuproto

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellAddAssignsContiguousIndices(t *testing.T) {
	c := NewConfigurationCell(1, "STN")
	p1 := c.AddPhasorDefinition("VA", PhasorVoltage)
	p2 := c.AddPhasorDefinition("IA", PhasorCurrent)
	a1 := c.AddAnalogDefinition("MW", AnalogRMS)
	d1 := c.AddDigitalDefinition("BRK", 0, 0xFFFF)
	d2 := c.AddDigitalDefinition("ALM", 0, 0x00FF)
	f := c.SetFrequencyDefinition("FREQ")

	assert.Equal(t, 1, p1.Index)
	assert.Equal(t, 2, p2.Index)
	assert.Equal(t, 1, a1.Index)
	assert.Equal(t, 1, d1.Index)
	assert.Equal(t, 2, d2.Index)
	assert.Equal(t, 1, f.Index)
	assert.Nil(t, p1.Scale)
	assert.Nil(t, p1.Offset)

	kinds := make([]ChannelKind, 0)
	for _, d := range c.Definitions() {
		kinds = append(kinds, d.Kind())
	}
	assert.Equal(t, []ChannelKind{ChannelPhasor, ChannelPhasor, ChannelAnalog, ChannelDigital, ChannelDigital, ChannelFrequency}, kinds)
	assert.Equal(t, 2, c.ChannelCount(ChannelPhasor))
	assert.Equal(t, 1, c.ChannelCount(ChannelFrequency))
}

func TestApplyChannelSet(t *testing.T) {
	newCell := func() *ConfigurationCell {
		c := NewConfigurationCell(1, "STN")
		c.AddPhasorDefinition("VA", PhasorVoltage)
		c.AddPhasorDefinition("IA", PhasorCurrent)
		c.SetFrequencyDefinition("FREQ")
		return c
	}

	t.Run("unchanged", func(t *testing.T) {
		c := newCell()
		change, err := c.ApplyChannelSet(ChannelPhasor, []ChannelDefinition{
			&PhasorDefinition{Index: 1, Label: "VA", Type: PhasorVoltage},
			&PhasorDefinition{Index: 2, Label: "IA", Type: PhasorCurrent},
		})
		require.NoError(t, err)
		assert.Equal(t, ChannelSetUnchanged, change)
	})

	t.Run("updated in place", func(t *testing.T) {
		c := newCell()
		first := c.Phasors[0]
		change, err := c.ApplyChannelSet(ChannelPhasor, []ChannelDefinition{
			&PhasorDefinition{Index: 1, Label: "VA-BUS", Type: PhasorVoltage, Scale: Float(2)},
			&PhasorDefinition{Index: 2, Label: "IA", Type: PhasorCurrent},
		})
		require.NoError(t, err)
		assert.Equal(t, ChannelSetUpdated, change)
		assert.Same(t, first, c.Phasors[0])
		assert.Equal(t, "VA-BUS", first.Label)
		assert.Equal(t, 2.0, *first.Scale)
		assert.Equal(t, 1, first.Index)
	})

	t.Run("count change replaces", func(t *testing.T) {
		c := newCell()
		first := c.Phasors[0]
		change, err := c.ApplyChannelSet(ChannelPhasor, []ChannelDefinition{
			&PhasorDefinition{Index: 1, Label: "VA", Type: PhasorVoltage},
			&PhasorDefinition{Index: 2, Label: "VB", Type: PhasorVoltage},
			&PhasorDefinition{Index: 3, Label: "IA", Type: PhasorCurrent},
		})
		require.NoError(t, err)
		assert.Equal(t, ChannelSetReplaced, change)
		require.Len(t, c.Phasors, 3)
		assert.NotSame(t, first, c.Phasors[0])
		for i, p := range c.Phasors {
			assert.Equal(t, i+1, p.Index)
		}
	})

	t.Run("non sequential indices replace", func(t *testing.T) {
		c := newCell()
		change, err := c.ApplyChannelSet(ChannelPhasor, []ChannelDefinition{
			&PhasorDefinition{Index: 2, Label: "IA", Type: PhasorCurrent},
			&PhasorDefinition{Index: 1, Label: "VA", Type: PhasorVoltage},
		})
		require.NoError(t, err)
		assert.Equal(t, ChannelSetReplaced, change)
		assert.Equal(t, "IA", c.Phasors[0].Label)
		assert.Equal(t, 1, c.Phasors[0].Index)
		assert.Equal(t, 2, c.Phasors[1].Index)
	})

	t.Run("digital and frequency", func(t *testing.T) {
		c := newCell()
		change, err := c.ApplyChannelSet(ChannelDigital, []ChannelDefinition{&DigitalDefinition{Index: 1, Label: "BRK", ValidInputs: 1}})
		require.NoError(t, err)
		assert.Equal(t, ChannelSetReplaced, change)
		assert.Len(t, c.Digitals, 1)

		change, err = c.ApplyChannelSet(ChannelFrequency, []ChannelDefinition{&FrequencyDefinition{Index: 1, Label: "F", Offset: Float(0.1)}})
		require.NoError(t, err)
		assert.Equal(t, ChannelSetUpdated, change)
		assert.Equal(t, "F", c.Frequency.Label)
	})

	t.Run("wrong kind", func(t *testing.T) {
		c := newCell()
		_, err := c.ApplyChannelSet(ChannelAnalog, []ChannelDefinition{&PhasorDefinition{Index: 1}})
		assert.True(t, errors.Is(err, ErrInvalidConfiguration))
		_, err = c.ApplyChannelSet(ChannelFrequency, nil)
		assert.True(t, errors.Is(err, ErrInvalidConfiguration))
	})
}

func TestCellValidate(t *testing.T) {
	valid := func() *ConfigurationCell {
		c := NewConfigurationCell(1, "STN")
		c.AddPhasorDefinition("VA", PhasorVoltage)
		c.SetFrequencyDefinition("FREQ")
		return c
	}
	require.NoError(t, valid().Validate(variantC37118))

	tests := []struct {
		name   string
		v      *Variant
		mutate func(c *ConfigurationCell)
	}{
		{"zero id", variantC37118, func(c *ConfigurationCell) { c.IDCode = 0 }},
		{"station label", variantC37118, func(c *ConfigurationCell) { c.StationLabel = "A STATION LABEL THAT IS TOO LONG" }},
		{"channel label", variantSELFastMessage, func(c *ConfigurationCell) { c.Phasors[0].Label = "VOLTAGE" }},
		{"station label padding", variantC37118, func(c *ConfigurationCell) { c.StationLabel = "STN " }},
		{"channel label padding", variantC37118, func(c *ConfigurationCell) { c.Phasors[0].Label = "VA " }},
		{"channel label nul", variantC37118, func(c *ConfigurationCell) { c.Frequency.Label = "FREQ\x00" }},
		{"nominal", variantC37118, func(c *ConfigurationCell) { c.NominalFrequency = 55 }},
		{"no frequency", variantC37118, func(c *ConfigurationCell) { c.Frequency = nil }},
		{"index gap", variantC37118, func(c *ConfigurationCell) { c.Phasors[0].Index = 3 }},
		{"fixed point scale range", variantC37118, func(c *ConfigurationCell) { c.Phasors[0].Scale = Float(200) }},
		{"negative fixed point scale", variantC37118, func(c *ConfigurationCell) { c.Phasors[0].Scale = Float(-1) }},
		{"float overflow", variantIEC6185090_5, func(c *ConfigurationCell) { c.Phasors[0].Offset = Float(1e300) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate(tt.v)
			assert.True(t, errors.Is(err, ErrInvalidConfiguration), "got %v", err)
		})
	}

	zero := valid()
	zero.IDCode = 0
	assert.NoError(t, zero.Validate(variantMacrodyne))

	// labels that round trip through the padded field are accepted
	spaced := valid()
	spaced.StationLabel = " NORTH 230KV"
	spaced.Phasors[0].Label = "V A"
	assert.NoError(t, spaced.Validate(variantC37118))
}
