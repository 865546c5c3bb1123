package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC32C_StreamingMatchesOneShot(t *testing.T) {
	data := []byte("journaled bytes")

	h := NewCRC32C()
	h.Write(data[:5])
	h.Write(data[5:])

	assert.Equal(t, CRC32C(data), h.Sum32())
	// Known CRC32C check value.
	assert.Equal(t, uint32(0xE3069283), CRC32C([]byte("123456789")))
}
