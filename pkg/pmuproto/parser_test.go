package pmuproto

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParserReportsNeededBytesPerState(t *testing.T) {
	data, err := ComposeFrame(exampleConfiguration())
	require.NoError(t, err)
	p := NewFrameParser(nil, ProtocolUnknown)

	steps := []struct {
		have   int
		state  ParseState
		needed int
	}{
		{0, StateAwaitingHeader, 2},
		{1, StateAwaitingHeader, 1},
		{10, StateAwaitingHeader, 4},
		{14, StateHeaderParsed, 6},
		{20, StateParsingCells, 28},
		{48, StateParsingCells, 63},
		{len(data) - 3, StateAwaitingFooter, 1},
		{len(data) - 2, StateAwaitingChecksum, 2},
		{len(data) - 1, StateAwaitingChecksum, 1},
	}
	for _, s := range steps {
		_, err := p.Step(data[:s.have])
		require.True(t, errors.Is(err, ErrInsufficientData), "have %d: %v", s.have, err)
		assert.Equal(t, s.state, p.State(), "have %d", s.have)
		assert.Equal(t, s.needed, NeededBytes(err), "have %d", s.have)
	}

	frame, err := p.Step(data)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, p.State())
	assert.Equal(t, len(data), p.Consumed())
	assert.Equal(t, uint16(1000), frame.GetIDCode())
	assert.Equal(t, FrameTypeConfig2, p.Header().FrameType)

	p.Reset()
	assert.Equal(t, StateAwaitingHeader, p.State())
}

func TestParserSplitAtEveryBoundary(t *testing.T) {
	for _, v := range Variants() {
		t.Run(v.Protocol.String(), func(t *testing.T) {
			f := sampleConfiguration(v.Protocol)
			data, err := ComposeFrame(f)
			require.NoError(t, err)
			whole, err := ParseFrame(data)
			require.NoError(t, err)

			for i := 0; i <= len(data); i++ {
				r := New().NewReader()
				_, _ = r.Write(data[:i])
				if i < len(data) {
					_, err := r.Next()
					require.True(t, errors.Is(err, ErrInsufficientData), "split %d: %v", i, err)
				}
				_, _ = r.Write(data[i:])
				frame, err := r.Next()
				require.NoError(t, err, "split %d", i)
				assert.Equal(t, whole, frame, "split %d", i)
				assert.Equal(t, 0, r.Buffered())
				r.Release()
			}
		})
	}
}

func TestParserSingleBitFlipIsChecksumMismatch(t *testing.T) {
	for _, v := range Variants() {
		t.Run(v.Protocol.String(), func(t *testing.T) {
			data, err := ComposeFrame(sampleConfiguration(v.Protocol))
			require.NoError(t, err)
			// every bit after sync, type and length
			for i := 4 * 8; i < len(data)*8; i++ {
				corrupt := append([]byte(nil), data...)
				corrupt[i/8] ^= 1 << (7 - i%8)
				frame, size, err := New().DecodeFrame(corrupt)
				assert.Nil(t, frame, "bit %d", i)
				assert.True(t, errors.Is(err, ErrChecksumMismatch), "bit %d: %v", i, err)
				// the declared length is not trusted once the checksum fails
				assert.Equal(t, resyncDistance(corrupt), size, "bit %d", i)
			}
		})
	}
}

func TestParserMalformedHeader(t *testing.T) {
	data, err := ComposeFrame(exampleConfiguration())
	require.NoError(t, err)

	badType := append([]byte(nil), data...)
	badType[1] = 0x72
	_, _, err = ParseHeader(badType, 0)
	assert.True(t, errors.Is(err, ErrMalformedHeader))

	shortLength := append([]byte(nil), data...)
	shortLength[2], shortLength[3] = 0x00, 0x05
	_, size, err := New().DecodeFrame(shortLength)
	assert.True(t, errors.Is(err, ErrMalformedHeader))
	assert.Equal(t, resyncDistance(shortLength), size)

	// a configuration frame too short to hold its footer
	tiny := append([]byte(nil), data[:14]...)
	tiny[2], tiny[3] = 0x00, 0x10
	_, _, err = New().DecodeFrame(append(tiny, 0, 0))
	assert.True(t, errors.Is(err, ErrMalformedHeader))

	h, n, err := ParseHeader(append([]byte{0x00, 0x00}, data...), 2)
	require.NoError(t, err)
	assert.Equal(t, 14, n)
	assert.Equal(t, uint16(len(data)), h.Length)
	assert.Equal(t, uint16(1000), h.IDCode)
	assert.Equal(t, sampleTime, h.Timestamp(1000000))
}

func TestParserUnknownProtocol(t *testing.T) {
	_, size, err := New().DecodeFrame([]byte{0x17, 0x31, 0x00})
	assert.True(t, errors.Is(err, ErrUnknownProtocol))
	assert.Equal(t, 1, size)

	data, err := ComposeFrame(sampleConfiguration(ProtocolBPAPDCStream))
	require.NoError(t, err)
	_, size, err = New(WithProtocol(ProtocolIEEEC37118)).DecodeFrame(data)
	assert.True(t, errors.Is(err, ErrUnknownProtocol))
	assert.Equal(t, 1, size)

	frame, _, err := New(WithProtocol(ProtocolBPAPDCStream)).DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, ProtocolBPAPDCStream, frame.GetProtocol())
}
