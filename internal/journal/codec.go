package journal

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies how a record body is stored on disk.
type Codec uint8

const (
	// CodecNone stores the body as is.
	CodecNone Codec = 0
	// CodecZstd stores the body zstd-compressed (better ratio).
	CodecZstd Codec = 1
	// CodecLZ4 stores the body as a single LZ4 block (faster).
	CodecLZ4 Codec = 2
)

// String returns the codec name.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// Valid reports whether c is a known codec.
func (c Codec) Valid() bool { return c <= CodecLZ4 }

// minCompressSize is the body size below which compression is not attempted.
const minCompressSize = 512

var errSizeMismatch = errors.New("decompressed size mismatch")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// compress encodes body with c. When compression does not pay off (stored
// size above 90% of raw) the body is kept raw and CodecNone is returned.
func compress(c Codec, body []byte) ([]byte, Codec, error) {
	if c == CodecNone || len(body) < minCompressSize {
		return body, CodecNone, nil
	}

	var out []byte
	switch c {
	case CodecZstd:
		enc := getZstdEncoder()
		out = enc.EncodeAll(body, nil)
		putZstdEncoder(enc)
	case CodecLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(body)))
		n, err := lz4.CompressBlock(body, buf, nil)
		if err != nil {
			return nil, CodecNone, err
		}
		out = buf[:n]
	default:
		return nil, CodecNone, fmt.Errorf("unknown codec %s", c)
	}

	if len(out) == 0 || float64(len(out)) > float64(len(body))*0.9 {
		return body, CodecNone, nil
	}
	return out, c, nil
}

// decompress reverses compress. rawLen is the expected decoded size.
func decompress(c Codec, stored []byte, rawLen int) ([]byte, error) {
	switch c {
	case CodecNone:
		if len(stored) != rawLen {
			return nil, errSizeMismatch
		}
		return stored, nil
	case CodecZstd:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)
		out, err := dec.DecodeAll(stored, make([]byte, 0, rawLen))
		if err != nil {
			return nil, err
		}
		if len(out) != rawLen {
			return nil, errSizeMismatch
		}
		return out, nil
	case CodecLZ4:
		out := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(stored, out)
		if err != nil {
			return nil, err
		}
		if n != rawLen {
			return nil, errSizeMismatch
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown codec %s", c)
	}
}
