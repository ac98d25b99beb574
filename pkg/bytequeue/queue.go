package bytequeue

import "github.com/valyala/bytebufferpool"

// ByteQueue is a FIFO of stream bytes backed by a pooled buffer.
type ByteQueue struct {
	buffer    *bytebufferpool.ByteBuffer
	discarded uint64 // bytes consumed since the stream started
}

func New() *ByteQueue {
	return &ByteQueue{
		buffer: bytebufferpool.Get(),
	}
}

// Write appends p.
func (b *ByteQueue) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return b.buffer.Write(p)
}

// Bytes unread bytes, valid until the next Write or Discard.
func (b *ByteQueue) Bytes() []byte {
	return b.buffer.B
}

// Len Len
func (b *ByteQueue) Len() int {
	return len(b.buffer.B)
}

// Position stream offset of the first unread byte.
func (b *ByteQueue) Position() uint64 {
	return b.discarded
}

// Discard drops up to n leading bytes and returns how many were dropped.
func (b *ByteQueue) Discard(n int) int {
	if n <= 0 {
		return 0
	}
	if n >= len(b.buffer.B) {
		n = len(b.buffer.B)
		b.buffer.B = b.buffer.B[:0]
	} else {
		copy(b.buffer.B, b.buffer.B[n:])
		b.buffer.B = b.buffer.B[:len(b.buffer.B)-n]
	}
	b.discarded += uint64(n)
	return n
}

// Release returns the buffer to the pool.
func (b *ByteQueue) Release() {
	if b.buffer == nil {
		return
	}
	b.buffer.Reset()
	bytebufferpool.Put(b.buffer)
	b.buffer = nil
	b.discarded = 0
}
