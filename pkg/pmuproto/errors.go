package pmuproto

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMalformedHeader bad sync or frame type byte, or an impossible declared length.
	ErrMalformedHeader = errors.New("malformed frame header")
	// ErrInsufficientData more bytes are needed before the current step can complete.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrChecksumMismatch the trailing checksum does not match the frame bytes.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrUnknownProtocol the leading bytes match no known protocol signature.
	ErrUnknownProtocol = errors.New("unknown protocol")
	// ErrStructuralMismatch declared counts or lengths disagree with the parsed elements.
	ErrStructuralMismatch = errors.New("structural mismatch")
	// ErrNoConfiguration a data frame arrived for an ID code with no known configuration.
	ErrNoConfiguration = errors.New("no configuration for data frame")
	// ErrInvalidConfiguration the frame handed to compose violates the protocol contract.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ParseError is returned by every decode path. Kind is one of the sentinel errors above.
type ParseError struct {
	Kind     error
	Protocol Protocol
	Offset   int // offset within the frame where the fault was detected
	Needed   int // bytes still missing, only for ErrInsufficientData
	Detail   string
}

func (e *ParseError) Error() string {
	if e.Kind == ErrInsufficientData {
		return fmt.Sprintf("%s: need %d more bytes", e.Kind, e.Needed)
	}
	if e.Detail == "" {
		return fmt.Sprintf("%s (%s, offset %d)", e.Kind, e.Protocol, e.Offset)
	}
	return fmt.Sprintf("%s (%s, offset %d): %s", e.Kind, e.Protocol, e.Offset, e.Detail)
}

func (e *ParseError) Unwrap() error {
	return e.Kind
}

func (e *ParseError) Cause() error {
	return e.Kind
}

// NeededBytes returns how many more bytes an ErrInsufficientData error asks for.
func NeededBytes(err error) int {
	var pe *ParseError
	if errors.As(err, &pe) && pe.Kind == ErrInsufficientData {
		return pe.Needed
	}
	return 0
}

// CellFault is delivered to the fault handler when a single cell is dropped
// from an otherwise valid configuration frame.
type CellFault struct {
	FrameIDCode uint16
	CellIDCode  uint16
	CellNumber  int
	Err         error
}

func (f *CellFault) Error() string {
	return fmt.Sprintf("cell %d (idcode %d) of frame %d discarded: %v", f.CellNumber, f.CellIDCode, f.FrameIDCode, f.Err)
}

func (f *CellFault) Unwrap() error {
	return f.Err
}

func insufficient(p Protocol, have, want int) error {
	return &ParseError{Kind: ErrInsufficientData, Protocol: p, Offset: have, Needed: want - have}
}

func structural(p Protocol, offset int, format string, args ...interface{}) error {
	return &ParseError{Kind: ErrStructuralMismatch, Protocol: p, Offset: offset, Detail: fmt.Sprintf(format, args...)}
}

func invalidConfig(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidConfiguration, format, args...)
}

// KindName short label of the sentinel err wraps, suitable for metrics.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, ErrMalformedHeader):
		return "malformed_header"
	case errors.Is(err, ErrChecksumMismatch):
		return "checksum_mismatch"
	case errors.Is(err, ErrUnknownProtocol):
		return "unknown_protocol"
	case errors.Is(err, ErrStructuralMismatch):
		return "structural_mismatch"
	case errors.Is(err, ErrNoConfiguration):
		return "no_configuration"
	case errors.Is(err, ErrInvalidConfiguration):
		return "invalid_configuration"
	}
	return "other"
}

// ProtocolOf returns the protocol a decode error was raised for.
func ProtocolOf(err error) Protocol {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Protocol
	}
	return ProtocolUnknown
}
