package pmuproto

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(r *Reader) ([]Frame, []error) {
	var frames []Frame
	var errs []error
	r.Frames(func(f Frame, err error) bool {
		if err != nil {
			errs = append(errs, err)
		} else {
			frames = append(frames, f)
		}
		return true
	})
	return frames, errs
}

// resyncStream returns a configuration frame, a header frame and a command frame.
// No byte of the header frame after its sync byte is a sync byte of any protocol.
func resyncStream(t *testing.T) ([]byte, []byte, []byte) {
	first, err := ComposeFrame(exampleConfiguration())
	require.NoError(t, err)
	middle, err := ComposeFrame(&HeaderFrame{Protocol: ProtocolIEEEC37118, IDCode: 1000, Text: "STATION NORTH"})
	require.NoError(t, err)
	require.Equal(t, len(middle), resyncDistance(middle))
	last, err := ComposeFrame(&CommandFrame{Protocol: ProtocolIEEEC37118, IDCode: 1000, Command: CommandStart})
	require.NoError(t, err)
	return first, middle, last
}

func TestReaderResynchronizesAfterCorruptFrame(t *testing.T) {
	first, middle, last := resyncStream(t)

	middle[20] ^= 0x10
	stream := append(append(append([]byte(nil), first...), middle...), last...)

	r := New().NewReader()
	defer r.Release()
	_, _ = r.Write(stream)
	frames, errs := collect(r)

	require.Len(t, frames, 2)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], ErrChecksumMismatch))
	assert.Equal(t, uint16(1000), frames[0].GetIDCode())
	assert.Equal(t, FrameTypeCommand, frames[1].GetFrameType())
	assert.Equal(t, 0, r.Buffered())
}

func TestReaderResynchronizesAfterCorruptLength(t *testing.T) {
	first, middle, last := resyncStream(t)

	// declares 256 more bytes than the frame holds
	middle[2] ^= 0x01
	stream := append(append(append([]byte(nil), first...), middle...), last...)
	stream = append(stream, make([]byte, 300)...)

	r := New().NewReader()
	defer r.Release()
	_, _ = r.Write(stream)
	frames, errs := collect(r)

	require.Len(t, frames, 2)
	assert.Equal(t, FrameTypeConfig2, frames[0].GetFrameType())
	assert.Equal(t, FrameTypeCommand, frames[1].GetFrameType())
	require.NotEmpty(t, errs)
	assert.True(t, errors.Is(errs[0], ErrChecksumMismatch), "%v", errs[0])
	for _, err := range errs[1:] {
		assert.True(t, errors.Is(err, ErrUnknownProtocol), "%v", err)
	}
	// a lone trailing byte cannot be identified yet
	assert.Equal(t, 1, r.Buffered())
}

func TestReaderSkipsGarbageBetweenFrames(t *testing.T) {
	frame, err := ComposeFrame(exampleConfiguration())
	require.NoError(t, err)

	stream := append([]byte{0x00, 0x11, 0x22}, frame...)
	stream = append(stream, 0xAA, 0x72, 0x00, 0x40)
	stream = append(stream, frame...)

	r := New().NewReader()
	defer r.Release()
	_, _ = r.Write(stream)
	frames, errs := collect(r)

	require.Len(t, frames, 2)
	require.Len(t, errs, 4)
	for _, err := range errs[:3] {
		assert.True(t, errors.Is(err, ErrUnknownProtocol), "%v", err)
	}
	assert.True(t, errors.Is(errs[3], ErrMalformedHeader), "%v", errs[3])
}

func TestReaderByteAtATime(t *testing.T) {
	cfg := sampleConfiguration(ProtocolSELFastMessage)
	cfgBytes, err := ComposeFrame(cfg)
	require.NoError(t, err)
	df := NewDataFrame(cfg, sampleTime)
	df.Cells[0].Phasors[0] = PhasorValue{A: 120.5, B: 0.25}
	dataBytes, err := ComposeFrame(df)
	require.NoError(t, err)

	r := New().NewReader()
	defer r.Release()
	var frames []Frame
	for _, b := range append(cfgBytes, dataBytes...) {
		_, _ = r.Write([]byte{b})
		frame, err := r.Next()
		if errors.Is(err, ErrInsufficientData) {
			continue
		}
		require.NoError(t, err)
		frames = append(frames, frame)
	}
	require.Len(t, frames, 2)
	assert.Equal(t, cfg, frames[0])
	data, ok := frames[1].(*DataFrame)
	require.True(t, ok)
	assert.Equal(t, 120.5, data.Cells[0].Phasors[0].A)
}

func TestReaderResetDropsPartialFrame(t *testing.T) {
	frame, err := ComposeFrame(exampleConfiguration())
	require.NoError(t, err)

	r := New().NewReader()
	defer r.Release()
	_, _ = r.Write(frame[:50])
	_, err = r.Next()
	require.True(t, errors.Is(err, ErrInsufficientData))
	assert.Equal(t, StateParsingCells, r.State())

	assert.Equal(t, 50, r.Reset())
	assert.Equal(t, StateAwaitingHeader, r.State())

	_, _ = r.Write(frame)
	f, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, uint16(1000), f.GetIDCode())
}

func TestReaderStoresConfigurations(t *testing.T) {
	store := NewMemoryStore(4)
	data, err := ComposeFrame(exampleConfiguration())
	require.NoError(t, err)

	r := New(WithStore(store)).NewReader()
	defer r.Release()
	_, _ = r.Write(data)
	_, err = r.Next()
	require.NoError(t, err)

	cfg, ok := store.Configuration(1000)
	require.True(t, ok)
	assert.Equal(t, exampleConfiguration(), cfg)
	assert.Equal(t, 1, store.Len())
}
