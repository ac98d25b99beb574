package pmuproto

import (
	"fmt"
	"time"
)

// Command CMD word of a command frame.
type Command uint16

const (
	CommandStop        Command = 1
	CommandStart       Command = 2
	CommandSendHeader  Command = 3
	CommandSendConfig1 Command = 4
	CommandSendConfig2 Command = 5
	CommandSendConfig3 Command = 6
	CommandExtended    Command = 8
)

func (c Command) String() string {
	switch c {
	case CommandStop:
		return "STOP"
	case CommandStart:
		return "START"
	case CommandSendHeader:
		return "SEND_HEADER"
	case CommandSendConfig1:
		return "SEND_CFG1"
	case CommandSendConfig2:
		return "SEND_CFG2"
	case CommandSendConfig3:
		return "SEND_CFG3"
	case CommandExtended:
		return "EXTENDED"
	}
	return fmt.Sprintf("COMMAND[%d]", uint16(c))
}

func (c Command) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// CommandFrame is sent to a device to control its data stream.
type CommandFrame struct {
	Protocol    Protocol
	Version     uint8
	IDCode      uint16
	Timestamp   time.Time
	TimeQuality uint8
	Command     Command
	Extended    []byte
}

func (f *CommandFrame) GetFrameType() FrameType { return FrameTypeCommand }
func (f *CommandFrame) GetProtocol() Protocol   { return f.Protocol }
func (f *CommandFrame) GetIDCode() uint16       { return f.IDCode }

func encodeCommandFrame(enc *Encoder, v *Variant, f *CommandFrame) error {
	if f.Command == 0 {
		return invalidConfig("command frame without a command")
	}
	h, err := newHeader(v, FrameTypeCommand, f.Version, f.IDCode, f.Timestamp, f.TimeQuality, v.FixedTimebase)
	if err != nil {
		return err
	}
	writeHeader(enc, v, h)
	enc.WriteUint16(uint16(f.Command))
	enc.WriteBytes(f.Extended)
	return nil
}
