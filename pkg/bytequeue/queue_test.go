package bytequeue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByteQueue(t *testing.T) {
	bq := New()
	defer bq.Release()

	t.Run("Write", func(t *testing.T) {
		n, err := bq.Write([]byte("hello"))
		assert.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, []byte("hello"), bq.Bytes())

		n, err = bq.Write(nil)
		assert.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("Discard", func(t *testing.T) {
		_, _ = bq.Write([]byte("world"))
		assert.Equal(t, 2, bq.Discard(2))
		assert.Equal(t, []byte("lloworld"), bq.Bytes())
		assert.Equal(t, uint64(2), bq.Position())

		assert.Equal(t, 8, bq.Discard(100))
		assert.Equal(t, 0, bq.Len())
		assert.Equal(t, uint64(10), bq.Position())
		assert.Equal(t, 0, bq.Discard(0))
	})

	t.Run("WriteAfterDrain", func(t *testing.T) {
		_, _ = bq.Write([]byte{0xAA, 0x31})
		assert.Equal(t, []byte{0xAA, 0x31}, bq.Bytes())
	})
}
