package pmuproto

import "time"

// HeaderFrame free form ASCII description of a data source.
type HeaderFrame struct {
	Protocol    Protocol
	Version     uint8
	IDCode      uint16
	Timestamp   time.Time
	TimeQuality uint8
	Text        string
}

func (f *HeaderFrame) GetFrameType() FrameType { return FrameTypeHeader }
func (f *HeaderFrame) GetProtocol() Protocol   { return f.Protocol }
func (f *HeaderFrame) GetIDCode() uint16       { return f.IDCode }

func encodeHeaderFrame(enc *Encoder, v *Variant, f *HeaderFrame) error {
	h, err := newHeader(v, FrameTypeHeader, f.Version, f.IDCode, f.Timestamp, f.TimeQuality, v.FixedTimebase)
	if err != nil {
		return err
	}
	writeHeader(enc, v, h)
	enc.WriteBytes([]byte(f.Text))
	return nil
}
