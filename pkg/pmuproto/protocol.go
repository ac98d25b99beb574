package pmuproto

import (
	"github.com/gridwatch/pmugate/pkg/pmulog"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MaxFrameSize largest frame the 16-bit length field can declare.
const MaxFrameSize = 0xFFFF

// Options Options
type Options struct {
	// Protocol pins detection to one variant, ProtocolUnknown detects per frame.
	Protocol Protocol
	// Store receives every decoded configuration frame and lays out data frames.
	Store ConfigurationStore
	// FaultHandler is called for cells dropped from otherwise valid frames.
	FaultHandler func(err error)
}

// Option Option
type Option func(*Options)

// WithProtocol WithProtocol
func WithProtocol(p Protocol) Option {
	return func(o *Options) {
		o.Protocol = p
	}
}

// WithStore WithStore
func WithStore(s ConfigurationStore) Option {
	return func(o *Options) {
		o.Store = s
	}
}

// WithFaultHandler WithFaultHandler
func WithFaultHandler(fn func(err error)) Option {
	return func(o *Options) {
		o.FaultHandler = fn
	}
}

// Codec decodes and composes frames of every supported protocol.
type Codec struct {
	pmulog.Log
	opts *Options
}

// New New
func New(opt ...Option) *Codec {
	opts := &Options{}
	for _, o := range opt {
		o(opts)
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore(64)
	}
	return &Codec{
		Log:  pmulog.NewPmuLog("Codec"),
		opts: opts,
	}
}

// Store Store
func (c *Codec) Store() ConfigurationStore {
	return c.opts.Store
}

func (c *Codec) newParser() *FrameParser {
	return NewFrameParser(c.opts.Store, c.opts.Protocol)
}

// DecodeFrame decodes the frame at the start of data. It returns the frame and its
// size. On ErrInsufficientData the size is 0 and the caller retries with more bytes;
// on any other error the size is how many bytes to skip before retrying.
func (c *Codec) DecodeFrame(data []byte) (Frame, int, error) {
	p := c.newParser()
	frame, err := p.Step(data)
	if err != nil {
		if errors.Is(err, ErrInsufficientData) {
			return nil, 0, err
		}
		return nil, p.Consumed(), err
	}
	c.complete(p, frame)
	return frame, p.Consumed(), nil
}

func (c *Codec) complete(p *FrameParser, frame Frame) {
	for _, fault := range p.CellFaults() {
		c.Warn("cell discarded", zap.Error(fault))
		if c.opts.FaultHandler != nil {
			c.opts.FaultHandler(fault)
		}
	}
	if cfg, ok := frame.(*ConfigurationFrame); ok && c.opts.Store != nil {
		if err := c.opts.Store.StoreConfiguration(cfg); err != nil {
			c.Error("store configuration failed", zap.Uint16("idcode", cfg.IDCode), zap.Error(err))
		}
	}
	c.Trace("frame decoded", "decode",
		zap.String("protocol", frame.GetProtocol().String()),
		zap.String("type", frame.GetFrameType().String()),
		zap.Uint16("idcode", frame.GetIDCode()),
		zap.Int("size", p.Consumed()))
}

// EncodeFrame composes f. Contract violations are returned as ErrInvalidConfiguration.
func (c *Codec) EncodeFrame(f Frame) ([]byte, error) {
	data, err := ComposeFrame(f)
	if err != nil {
		return nil, err
	}
	c.Trace("frame encoded", "encode",
		zap.String("protocol", f.GetProtocol().String()),
		zap.String("type", f.GetFrameType().String()),
		zap.Uint16("idcode", f.GetIDCode()),
		zap.Int("size", len(data)))
	return data, nil
}

// NewReader returns a stream reader for one connection.
func (c *Codec) NewReader() *Reader {
	return newReader(c)
}

// ParseFrame decodes a single frame. Configuration frames decoded here are only
// remembered by the store passed with WithStore.
func ParseFrame(data []byte, opt ...Option) (Frame, error) {
	frame, _, err := New(opt...).DecodeFrame(data)
	return frame, err
}

// ComposeFrame writes header, body, footer and checksum, back-patching the length.
func ComposeFrame(f Frame) ([]byte, error) {
	if f == nil {
		return nil, invalidConfig("nil frame")
	}
	v := LookupVariant(f.GetProtocol())
	if v == nil {
		return nil, invalidConfig("unsupported protocol %s", f.GetProtocol())
	}
	enc := NewEncoder()
	var err error
	switch frame := f.(type) {
	case *ConfigurationFrame:
		err = encodeConfigurationFrame(enc, v, frame)
	case *DataFrame:
		err = encodeDataFrame(enc, v, frame)
	case *HeaderFrame:
		err = encodeHeaderFrame(enc, v, frame)
	case *CommandFrame:
		err = encodeCommandFrame(enc, v, frame)
	default:
		err = invalidConfig("unsupported frame %T", f)
	}
	if err != nil {
		return nil, err
	}
	total := enc.Len() + 2
	if total > MaxFrameSize {
		return nil, invalidConfig("frame of %d bytes exceeds %d", total, MaxFrameSize)
	}
	enc.PatchUint16(lengthOffset, uint16(total))
	enc.WriteUint16(v.Checksum.Compute(enc.Bytes(), 0, enc.Len()))
	return enc.Bytes(), nil
}
