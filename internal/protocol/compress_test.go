package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZstdRoundTrip(t *testing.T) {
	c := MustZstdCompressor()
	raw := bytes.Repeat([]byte{1, 2, 3, 4, 0, 0, 0, 0}, 4096)

	packed, err := c.Compress(raw)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(raw)/10, "повторяющиеся данные должны хорошо сжиматься")

	unpacked, err := c.Decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, raw, unpacked)
}

func TestZstdRejectsGarbage(t *testing.T) {
	c := MustZstdCompressor()
	_, err := c.Decompress([]byte("это не zstd"))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestPassthroughCopies(t *testing.T) {
	c := NewPassthroughCompressor()
	raw := []byte{1, 2, 3}

	packed, err := c.Compress(raw)
	require.NoError(t, err)
	raw[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, packed, "результат не должен разделять память со входом")

	unpacked, err := c.Decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, packed, unpacked)
}
