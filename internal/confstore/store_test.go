package confstore

import (
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/gridwatch/pmugate/pkg/pmuproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, dir string) *Store {
	opts := NewOptions()
	opts.DataDir = dir
	opts.Sync = false
	s := New(opts)
	require.NoError(t, s.Open())
	return s
}

func deviceConfiguration(p pmuproto.Protocol, idCode uint16) *pmuproto.ConfigurationFrame {
	f, c := pmuproto.NewDeviceConfigurationFrame(p, idCode, "BUS 1", 30, 0)
	c.AddPhasorDefinition("VA", pmuproto.PhasorVoltage)
	c.AddPhasorDefinition("IA", pmuproto.PhasorCurrent)
	c.SetFrequencyDefinition("FREQ")
	return f
}

func TestStoreAndReload(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)

	c37 := deviceConfiguration(pmuproto.ProtocolIEEEC37118, 1000)
	sel := deviceConfiguration(pmuproto.ProtocolSELFastMessage, 12)
	require.NoError(t, s.StoreConfiguration(c37))
	require.NoError(t, s.StoreConfiguration(sel))

	got, ok := s.Configuration(1000)
	require.True(t, ok)
	assert.Same(t, c37, got)

	raw, err := s.Raw(12)
	require.NoError(t, err)
	want, err := pmuproto.ComposeFrame(sel)
	require.NoError(t, err)
	assert.Equal(t, want, raw)
	require.NoError(t, s.Close())

	// a fresh store decodes from disk
	s = newTestStore(t, dir)
	defer s.Close()
	got, ok = s.Configuration(1000)
	require.True(t, ok)
	assert.Equal(t, c37, got)

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, uint16(12), list[0].IDCode)
	assert.Equal(t, uint16(1000), list[1].IDCode)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStoreReplaceAndDelete(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	defer s.Close()

	first := deviceConfiguration(pmuproto.ProtocolBPAPDCStream, 7)
	require.NoError(t, s.StoreConfiguration(first))
	second := deviceConfiguration(pmuproto.ProtocolBPAPDCStream, 7)
	second.Cells[0].ConfigurationCount = 9
	require.NoError(t, s.StoreConfiguration(second))

	got, ok := s.Configuration(7)
	require.True(t, ok)
	assert.Equal(t, uint16(9), got.Cells[0].ConfigurationCount)

	require.NoError(t, s.Delete(7))
	_, ok = s.Configuration(7)
	assert.False(t, ok)
	assert.ErrorIs(t, s.Delete(7), ErrNotFound)
	_, err := s.Raw(7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRejectsInvalidConfiguration(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	defer s.Close()

	bad := deviceConfiguration(pmuproto.ProtocolIEEEC37118, 0)
	assert.ErrorIs(t, s.StoreConfiguration(bad), pmuproto.ErrInvalidConfiguration)
	n, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStoreFeedsCodec(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	defer s.Close()

	cfg := deviceConfiguration(pmuproto.ProtocolMacrodyne, 44)
	codec := pmuproto.New(pmuproto.WithStore(s))
	data, err := pmuproto.ComposeFrame(cfg)
	require.NoError(t, err)
	_, _, err = codec.DecodeFrame(data)
	require.NoError(t, err)

	df := pmuproto.NewDataFrame(cfg, cfg.Timestamp)
	df.Cells[0].Phasors[0] = pmuproto.PhasorValue{A: 100, B: -20}
	data, err = pmuproto.ComposeFrame(df)
	require.NoError(t, err)
	frame, _, err := codec.DecodeFrame(data)
	require.NoError(t, err)
	decoded := frame.(*pmuproto.DataFrame)
	assert.Equal(t, df.Cells, decoded.Cells)
}

func TestStoreSyncsOnlySavedFrames(t *testing.T) {
	opts := NewOptions()
	opts.DataDir = t.TempDir()
	s := New(opts)
	require.NoError(t, s.Open())

	// frames learned from a stream are written on the event loop
	assert.Same(t, pebble.NoSync, s.writeOptions(false))
	assert.Same(t, pebble.Sync, s.writeOptions(true))

	learned := deviceConfiguration(pmuproto.ProtocolMacrodyne, 3)
	saved := deviceConfiguration(pmuproto.ProtocolSELFastMessage, 4)
	require.NoError(t, s.StoreConfiguration(learned))
	require.NoError(t, s.Save(saved))
	require.NoError(t, s.Close())

	s = newTestStore(t, opts.DataDir)
	defer s.Close()
	for _, id := range []uint16{3, 4} {
		_, ok := s.Configuration(id)
		assert.True(t, ok, "idcode %d", id)
	}
	assert.Same(t, pebble.NoSync, s.writeOptions(true))
}
