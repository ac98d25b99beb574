package pmuproto

import (
	"fmt"

	"github.com/pkg/errors"
)

// ParseState position of a FrameParser inside the frame being parsed.
type ParseState uint8

const (
	StateAwaitingHeader ParseState = iota
	StateHeaderParsed
	StateParsingCells
	StateAwaitingFooter
	StateAwaitingChecksum
	StateComplete
	StateFaulted
)

func (s ParseState) String() string {
	switch s {
	case StateAwaitingHeader:
		return "AwaitingHeader"
	case StateHeaderParsed:
		return "HeaderParsed"
	case StateParsingCells:
		return "ParsingCells"
	case StateAwaitingFooter:
		return "AwaitingFooter"
	case StateAwaitingChecksum:
		return "AwaitingChecksum"
	case StateComplete:
		return "Complete"
	case StateFaulted:
		return "Faulted"
	}
	return fmt.Sprintf("UNKNOWN[%d]", s)
}

// FrameParser is the incremental decode state machine for one frame. Step is called
// with the buffered bytes of the stream, always starting at the first byte of the
// frame, and resumes where the previous call stopped. A parser belongs to a single
// goroutine.
type FrameParser struct {
	store  ConfigurationStore
	pinned Protocol

	state   ParseState
	variant *Variant
	header  CommonFrameHeader
	pos     int
	bodyEnd int

	cellCount  int
	cellNumber int
	frameRate  int16
	seenCells  map[uint16]struct{}

	cfg    *ConfigurationFrame
	data   *DataFrame
	frame  Frame
	fault  error
	defers error

	cellFaults []error
	consumed   int
}

// NewFrameParser NewFrameParser. store may be nil, data frames then fail with ErrNoConfiguration.
// pinned restricts detection to one protocol, ProtocolUnknown accepts all.
func NewFrameParser(store ConfigurationStore, pinned Protocol) *FrameParser {
	return &FrameParser{store: store, pinned: pinned}
}

// State State
func (m *FrameParser) State() ParseState {
	return m.state
}

// Header is valid once the state has moved past StateAwaitingHeader.
func (m *FrameParser) Header() CommonFrameHeader {
	return m.header
}

// Consumed bytes to drop from the stream once the parser is Complete or Faulted.
func (m *FrameParser) Consumed() int {
	return m.consumed
}

// CellFaults cells dropped from the completed frame.
func (m *FrameParser) CellFaults() []error {
	return m.cellFaults
}

// Reset prepares the parser for the next frame.
func (m *FrameParser) Reset() {
	*m = FrameParser{store: m.store, pinned: m.pinned}
}

// Step advances the machine as far as buf allows. It returns ErrInsufficientData,
// with the missing byte count, while the frame is incomplete and leaves the state
// untouched. Any other error leaves the parser Faulted and Consumed tells the caller
// how far to advance before retrying.
func (m *FrameParser) Step(buf []byte) (Frame, error) {
	for {
		var err error
		switch m.state {
		case StateAwaitingHeader:
			err = m.stepHeader(buf)
		case StateHeaderParsed:
			err = m.stepPreamble(buf)
		case StateParsingCells:
			err = m.stepCell(buf)
		case StateAwaitingFooter:
			err = m.stepFooter(buf)
		case StateAwaitingChecksum:
			err = m.stepChecksum(buf)
		case StateComplete:
			return m.frame, nil
		case StateFaulted:
			return nil, m.fault
		}
		if err != nil {
			return nil, err
		}
	}
}

func (m *FrameParser) protocol() Protocol {
	if m.variant == nil {
		return ProtocolUnknown
	}
	return m.variant.Protocol
}

func (m *FrameParser) fail(err error, skip int) error {
	m.state = StateFaulted
	m.fault = err
	if skip < 1 {
		skip = 1
	}
	m.consumed = skip
	return err
}

// deferFault records a fault and jumps to checksum validation. A frame whose
// checksum fails reports ErrChecksumMismatch instead of the recorded fault.
func (m *FrameParser) deferFault(err error) {
	if m.defers == nil {
		m.defers = err
	}
	m.state = StateAwaitingChecksum
}

// resyncDistance offset of the next byte that could start a frame.
func resyncDistance(buf []byte) int {
	for i := 1; i < len(buf); i++ {
		if isSyncByte(buf[i]) {
			return i
		}
	}
	return len(buf)
}

func (m *FrameParser) stepHeader(buf []byte) error {
	v, err := IdentifyProtocol(buf)
	if err != nil {
		if errors.Is(err, ErrInsufficientData) {
			return err
		}
		return m.fail(err, 1)
	}
	if m.pinned != ProtocolUnknown && v.Protocol != m.pinned {
		return m.fail(&ParseError{Kind: ErrUnknownProtocol, Protocol: v.Protocol, Detail: fmt.Sprintf("expected %s", m.pinned)}, 1)
	}
	h, n, err := parseHeader(buf, v)
	if err != nil {
		if errors.Is(err, ErrInsufficientData) {
			return err
		}
		return m.fail(err, resyncDistance(buf))
	}
	m.variant = v
	m.header = h
	m.pos = n
	m.bodyEnd = int(h.Length) - 2
	if h.FrameType.IsConfiguration() {
		m.bodyEnd -= v.FooterSize
	}
	if m.bodyEnd < m.pos {
		return m.fail(&ParseError{Kind: ErrMalformedHeader, Protocol: v.Protocol, Offset: 2, Detail: fmt.Sprintf("declared length %d too short for %s frame", h.Length, h.FrameType)}, resyncDistance(buf))
	}
	m.state = StateHeaderParsed
	return nil
}

func (m *FrameParser) stepPreamble(buf []byte) error {
	v, h := m.variant, m.header
	switch {
	case h.FrameType.IsConfiguration():
		end := m.pos + v.preambleSize()
		if end > m.bodyEnd {
			m.deferFault(structural(v.Protocol, m.pos, "configuration body shorter than its fixed fields"))
			return nil
		}
		if len(buf) < end {
			return insufficient(v.Protocol, len(buf), end)
		}
		dec := NewDecoder(buf[m.pos:end])
		timebase := v.FixedTimebase
		if v.TimebaseField {
			timebase, _ = dec.Uint32()
			if timebase == 0 || timebase > v.maxFraction() {
				m.deferFault(structural(v.Protocol, m.pos, "timebase %d", timebase))
				return nil
			}
		}
		if v.FooterSize == 0 {
			rate, _ := dec.Int16()
			m.frameRate = rate
		}
		count, _ := dec.Uint16()
		m.cellCount = int(count)
		m.pos = end
		m.cfg = &ConfigurationFrame{
			Protocol:    v.Protocol,
			Type:        h.FrameType,
			Version:     h.Version,
			IDCode:      h.IDCode,
			Timestamp:   v.decodeTime(h.SOC, h.Fraction, timebase),
			TimeQuality: h.TimeQuality,
			Timebase:    timebase,
		}
		m.seenCells = make(map[uint16]struct{}, m.cellCount)
		m.frame = m.cfg
	case h.FrameType == FrameTypeData:
		var layout *ConfigurationFrame
		if m.store != nil {
			layout, _ = m.store.Configuration(h.IDCode)
		}
		if layout == nil || layout.Protocol != v.Protocol {
			m.deferFault(&ParseError{Kind: ErrNoConfiguration, Protocol: v.Protocol, Offset: m.pos, Detail: fmt.Sprintf("idcode %d", h.IDCode)})
			return nil
		}
		m.cellCount = len(layout.Cells)
		m.data = &DataFrame{
			Protocol:      v.Protocol,
			Version:       h.Version,
			IDCode:        h.IDCode,
			Timestamp:     v.decodeTime(h.SOC, h.Fraction, v.effectiveTimebase(layout.Timebase)),
			TimeQuality:   h.TimeQuality,
			Configuration: layout,
		}
		m.frame = m.data
	default:
		// header and command frames carry a single body segment
		m.cellCount = 1
	}
	m.state = StateParsingCells
	return nil
}

func (m *FrameParser) stepCell(buf []byte) error {
	if m.cellNumber == m.cellCount {
		if m.pos != m.bodyEnd {
			m.deferFault(structural(m.protocol(), m.pos, "%d unexpected bytes after the last cell", m.bodyEnd-m.pos))
			return nil
		}
		m.state = StateAwaitingFooter
		return nil
	}
	v, h := m.variant, m.header
	switch {
	case h.FrameType.IsConfiguration():
		return m.stepConfigurationCell(buf)
	case h.FrameType == FrameTypeData:
		layout := m.data.Configuration.Cells[m.cellNumber]
		end := m.pos + dataCellSize(layout)
		if end > m.bodyEnd {
			m.deferFault(structural(v.Protocol, m.pos, "data cell %d overruns the frame", m.cellNumber))
			return nil
		}
		if len(buf) < end {
			return insufficient(v.Protocol, len(buf), end)
		}
		c, err := decodeDataCell(buf[m.pos:end], layout)
		if err != nil {
			m.deferFault(structural(v.Protocol, m.pos, "data cell %d: %v", m.cellNumber, err))
			return nil
		}
		m.data.Cells = append(m.data.Cells, c)
		m.pos = end
	default:
		if len(buf) < m.bodyEnd {
			return insufficient(v.Protocol, len(buf), m.bodyEnd)
		}
		body := buf[m.pos:m.bodyEnd]
		tb := v.FixedTimebase
		ts := v.decodeTime(h.SOC, h.Fraction, tb)
		if h.FrameType == FrameTypeHeader {
			m.frame = &HeaderFrame{Protocol: v.Protocol, Version: h.Version, IDCode: h.IDCode, Timestamp: ts, TimeQuality: h.TimeQuality, Text: string(body)}
		} else {
			if len(body) < 2 {
				m.deferFault(structural(v.Protocol, m.pos, "command body of %d bytes", len(body)))
				return nil
			}
			cmd := &CommandFrame{Protocol: v.Protocol, Version: h.Version, IDCode: h.IDCode, Timestamp: ts, TimeQuality: h.TimeQuality}
			cmd.Command = Command(uint16(body[0])<<8 | uint16(body[1]))
			if len(body) > 2 {
				cmd.Extended = append([]byte(nil), body[2:]...)
			}
			m.frame = cmd
		}
		m.pos = m.bodyEnd
	}
	m.cellNumber++
	return nil
}

func (m *FrameParser) stepConfigurationCell(buf []byte) error {
	v := m.variant
	fixed := m.pos + cellFixedSize(v)
	if fixed > m.bodyEnd {
		m.deferFault(structural(v.Protocol, m.pos, "cell %d overruns the frame", m.cellNumber))
		return nil
	}
	if len(buf) < fixed {
		return insufficient(v.Protocol, len(buf), fixed)
	}
	size, _ := configurationCellSize(buf[m.pos:], v)
	end := m.pos + size
	if end > m.bodyEnd {
		m.deferFault(structural(v.Protocol, m.pos, "cell %d declares %d bytes of definitions beyond the frame", m.cellNumber, size))
		return nil
	}
	if len(buf) < end {
		return insufficient(v.Protocol, len(buf), end)
	}
	idOffset := m.pos + v.StationLabelLength
	idCode := uint16(buf[idOffset])<<8 | uint16(buf[idOffset+1])
	c, err := decodeConfigurationCell(buf[m.pos:end], v)
	if err == nil {
		if _, dup := m.seenCells[c.IDCode]; dup {
			err = fmt.Errorf("duplicate cell ID code %d", c.IDCode)
		}
	}
	if err != nil {
		m.cellFaults = append(m.cellFaults, &CellFault{
			FrameIDCode: m.header.IDCode,
			CellIDCode:  idCode,
			CellNumber:  m.cellNumber,
			Err:         structural(v.Protocol, m.pos, "%v", err),
		})
	} else {
		m.seenCells[c.IDCode] = struct{}{}
		m.cfg.Cells = append(m.cfg.Cells, c)
	}
	m.pos = end
	m.cellNumber++
	return nil
}

func (m *FrameParser) stepFooter(buf []byte) error {
	if m.cfg != nil {
		v := m.variant
		if v.FooterSize > 0 {
			end := m.bodyEnd + v.FooterSize
			if len(buf) < end {
				return insufficient(v.Protocol, len(buf), end)
			}
			m.frameRate = int16(uint16(buf[m.bodyEnd])<<8 | uint16(buf[m.bodyEnd+1]))
		}
		if m.frameRate == 0 {
			m.deferFault(structural(v.Protocol, m.bodyEnd, "frame rate 0"))
			return nil
		}
		m.cfg.SetFrameRate(m.frameRate)
	}
	m.state = StateAwaitingChecksum
	return nil
}

// stepChecksum validates the trailing checksum. A mismatch means the declared length
// cannot be trusted either, so the stream is rescanned from the next sync byte.
func (m *FrameParser) stepChecksum(buf []byte) error {
	v := m.variant
	length := int(m.header.Length)
	if len(buf) < length {
		return insufficient(v.Protocol, len(buf), length)
	}
	want := uint16(buf[length-2])<<8 | uint16(buf[length-1])
	got := v.Checksum.Compute(buf, 0, length-2)
	if want != got {
		return m.fail(&ParseError{
			Kind:     ErrChecksumMismatch,
			Protocol: v.Protocol,
			Offset:   length - 2,
			Detail:   fmt.Sprintf("%s computed 0x%04X, frame carries 0x%04X", v.Checksum.Name(), got, want),
		}, resyncDistance(buf))
	}
	if m.defers != nil {
		return m.fail(m.defers, length)
	}
	m.consumed = length
	m.state = StateComplete
	return nil
}
