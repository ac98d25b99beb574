package pmuproto

import (
	"github.com/gridwatch/pmugate/pkg/bytequeue"
	"github.com/gridwatch/pmugate/pkg/pmulog"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Reader turns the byte stream of one connection into frames. Write appends received
// bytes, Next pulls the next frame. Corrupt input never stops the reader: every error
// other than ErrInsufficientData has already advanced the stream past the bad bytes.
// A Reader is not safe for concurrent use.
type Reader struct {
	pmulog.Log
	codec  *Codec
	queue  *bytequeue.ByteQueue
	parser *FrameParser
}

func newReader(c *Codec) *Reader {
	return &Reader{
		Log:    pmulog.NewPmuLog("Reader"),
		codec:  c,
		queue:  bytequeue.New(),
		parser: c.newParser(),
	}
}

// Write buffers p.
func (r *Reader) Write(p []byte) (int, error) {
	return r.queue.Write(p)
}

// Next returns the next complete frame. ErrInsufficientData means wait for more bytes.
func (r *Reader) Next() (Frame, error) {
	frame, err := r.parser.Step(r.queue.Bytes())
	if err != nil {
		if errors.Is(err, ErrInsufficientData) {
			return nil, err
		}
		skipped := r.parser.Consumed()
		position := r.queue.Position()
		r.queue.Discard(skipped)
		r.parser.Reset()
		if errors.Is(err, ErrUnknownProtocol) {
			r.Debug("resynchronizing", zap.Uint64("position", position))
		} else {
			r.Warn("frame discarded", zap.Error(err), zap.Uint64("position", position), zap.Int("skipped", skipped))
		}
		return nil, err
	}
	r.codec.complete(r.parser, frame)
	r.queue.Discard(r.parser.Consumed())
	r.parser.Reset()
	return frame, nil
}

// Frames drains every complete frame. fn receives decode faults as well and stops
// the iteration by returning false.
func (r *Reader) Frames(fn func(Frame, error) bool) {
	for {
		frame, err := r.Next()
		if errors.Is(err, ErrInsufficientData) {
			return
		}
		if !fn(frame, err) {
			return
		}
	}
}

// State state of the in-progress frame.
func (r *Reader) State() ParseState {
	return r.parser.State()
}

// Buffered bytes received but not yet consumed.
func (r *Reader) Buffered() int {
	return r.queue.Len()
}

// Reset drops buffered bytes and the partial frame, used on stall timeouts.
func (r *Reader) Reset() int {
	n := r.queue.Len()
	r.queue.Discard(n)
	r.parser.Reset()
	return n
}

// Release returns the buffer to its pool. The reader must not be used afterwards.
func (r *Reader) Release() {
	r.queue.Release()
}
