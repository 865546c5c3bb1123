package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRNG_Reset(t *testing.T) {
	rng := NewRNG(4711)
	a := rng.Bytes(32)
	rng.Reset()
	b := rng.Bytes(32)

	assert.Equal(t, a, b)
	assert.Equal(t, int64(4711), rng.Seed())
}

func TestWrites(t *testing.T) {
	rng := NewRNG(42)
	const size = 4096

	writes := rng.Writes(200, size, 64)
	require.Len(t, writes, 200)
	for _, w := range writes {
		assert.GreaterOrEqual(t, w.Off, int64(0))
		assert.NotEmpty(t, w.Data)
		assert.LessOrEqual(t, w.Off+int64(len(w.Data)), int64(size))
	}
}

func TestZipf(t *testing.T) {
	rng := NewRNG(1)
	counts := make([]int, 8)
	for range 2000 {
		counts[rng.Zipf(8, 1.5)]++
	}
	assert.Greater(t, counts[0], counts[7])
	assert.Equal(t, 0, rng.Zipf(1, 1.5))
}

func TestApply(t *testing.T) {
	got := Apply([]byte("abcdef"), []Write{
		{Off: 1, Data: []byte("XY")},
		{Off: 2, Data: []byte("Z")},
		{Off: 8, Data: []byte("!")},
	})
	assert.Equal(t, []byte("aXZdef\x00\x00!"), got)
}

func TestTempFile(t *testing.T) {
	path := TempFile(t, "data.bin", []byte("hello"))
	assert.Equal(t, []byte("hello"), ReadFile(t, path))
}
