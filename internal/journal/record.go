package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/walfile/internal/hash"
)

// Record layout, little-endian:
//
//	off  size  field
//	0    4     magic "WFJR"
//	4    2     version
//	6    1     state (excluded from the checksum)
//	7    1     codec
//	8    8     transaction id
//	16   4     op count
//	20   4     flags
//	24   8     truncate size
//	32   8     raw body length
//	40   8     stored body length
//	48   N     body: repeated [off u64][len u32][data]
//	48+N 4     CRC32C over [0:6] ++ [7:48+N]
const (
	Magic   = "WFJR"
	Version = 1

	HeaderSize  = 48
	TrailerSize = 4

	stateOffset = 6
	opHeader    = 12

	flagTruncate = 1 << 0

	// MaxBodySize bounds the decoded body of a single record.
	MaxBodySize = 1 << 34
)

// State is the retirement state of a record.
type State uint8

const (
	// StatePending marks a record whose writes may not be durable yet.
	StatePending State = 0x00
	// StateApplied marks a record whose writes reached stable storage.
	StateApplied State = 0xA5
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateApplied:
		return "applied"
	default:
		return fmt.Sprintf("state(%#x)", uint8(s))
	}
}

// Classification errors returned by Decode.
var (
	// ErrInvalid means the bytes are not a journal record at all.
	ErrInvalid = errors.New("not a journal record")
	// ErrBroken means the header is valid but the record is truncated or
	// internally inconsistent.
	ErrBroken = errors.New("broken journal record")
	// ErrCorrupt means the record checksum does not match.
	ErrCorrupt = errors.New("corrupt journal record")
)

// Op is one write carried by a record.
type Op struct {
	Off  int64
	Data []byte
}

// Record is the durable form of a committed transaction.
type Record struct {
	ID    uint64
	State State
	Codec Codec
	Ops   []Op

	// HasTruncate requests a truncate to TruncateSize after the ops.
	HasTruncate  bool
	TruncateSize int64
}

// PayloadSize returns the number of data bytes carried by the ops.
func (r *Record) PayloadSize() int64 {
	var n int64
	for _, op := range r.Ops {
		n += int64(len(op.Data))
	}
	return n
}

func (r *Record) bodySize() int {
	n := 0
	for _, op := range r.Ops {
		n += opHeader + len(op.Data)
	}
	return n
}

// Encode serialises r. The body is compressed with r.Codec when that pays
// off; the codec actually used is written to the header.
func Encode(r *Record) ([]byte, error) {
	if len(r.Ops) > math.MaxUint32 {
		return nil, fmt.Errorf("too many ops: %d", len(r.Ops))
	}

	body := make([]byte, 0, r.bodySize())
	var scratch [opHeader]byte
	for _, op := range r.Ops {
		if op.Off < 0 {
			return nil, fmt.Errorf("negative op offset %d", op.Off)
		}
		if len(op.Data) > math.MaxUint32 {
			return nil, fmt.Errorf("op too large: %d bytes", len(op.Data))
		}
		binary.LittleEndian.PutUint64(scratch[0:], uint64(op.Off))
		binary.LittleEndian.PutUint32(scratch[8:], uint32(len(op.Data)))
		body = append(body, scratch[:]...)
		body = append(body, op.Data...)
	}

	stored, codec, err := compress(r.Codec, body)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, HeaderSize+len(stored)+TrailerSize)
	copy(buf[0:4], Magic)
	binary.LittleEndian.PutUint16(buf[4:], Version)
	buf[stateOffset] = byte(r.State)
	buf[7] = byte(codec)
	binary.LittleEndian.PutUint64(buf[8:], r.ID)
	binary.LittleEndian.PutUint32(buf[16:], uint32(len(r.Ops)))
	var flags uint32
	if r.HasTruncate {
		flags |= flagTruncate
		binary.LittleEndian.PutUint64(buf[24:], uint64(r.TruncateSize))
	}
	binary.LittleEndian.PutUint32(buf[20:], flags)
	binary.LittleEndian.PutUint64(buf[32:], uint64(len(body)))
	binary.LittleEndian.PutUint64(buf[40:], uint64(len(stored)))
	copy(buf[HeaderSize:], stored)

	end := HeaderSize + len(stored)
	binary.LittleEndian.PutUint32(buf[end:], checksum(buf[:end]))
	return buf, nil
}

func checksum(b []byte) uint32 {
	h := hash.NewCRC32C()
	h.Write(b[:stateOffset])
	h.Write(b[stateOffset+1:])
	return h.Sum32()
}

// Decode parses and verifies a record. The returned error wraps ErrInvalid,
// ErrBroken or ErrCorrupt, in that order of precedence.
func Decode(b []byte) (*Record, error) {
	if len(b) < 6 || string(b[0:4]) != Magic {
		return nil, ErrInvalid
	}
	if v := binary.LittleEndian.Uint16(b[4:]); v != Version {
		return nil, fmt.Errorf("%w: version %d", ErrInvalid, v)
	}
	if len(b) < HeaderSize+TrailerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBroken, len(b))
	}

	storedLen := binary.LittleEndian.Uint64(b[40:])
	if storedLen != uint64(len(b)-HeaderSize-TrailerSize) {
		return nil, fmt.Errorf("%w: body length %d, have %d", ErrBroken, storedLen, len(b)-HeaderSize-TrailerSize)
	}

	end := HeaderSize + int(storedLen)
	if want := binary.LittleEndian.Uint32(b[end:]); checksum(b[:end]) != want {
		return nil, ErrCorrupt
	}

	r := &Record{
		ID:    binary.LittleEndian.Uint64(b[8:]),
		State: State(b[stateOffset]),
		Codec: Codec(b[7]),
	}
	if r.State != StatePending && r.State != StateApplied {
		return nil, fmt.Errorf("%w: %s", ErrBroken, r.State)
	}
	if !r.Codec.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrBroken, r.Codec)
	}

	flags := binary.LittleEndian.Uint32(b[20:])
	if flags&flagTruncate != 0 {
		size := binary.LittleEndian.Uint64(b[24:])
		if size > math.MaxInt64 {
			return nil, fmt.Errorf("%w: truncate size %d", ErrBroken, size)
		}
		r.HasTruncate = true
		r.TruncateSize = int64(size)
	}

	rawLen := binary.LittleEndian.Uint64(b[32:])
	if rawLen > MaxBodySize {
		return nil, fmt.Errorf("%w: body of %d bytes", ErrBroken, rawLen)
	}
	body, err := decompress(r.Codec, b[HeaderSize:end], int(rawLen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBroken, err)
	}

	count := binary.LittleEndian.Uint32(b[16:])
	ops, err := parseOps(body, count)
	if err != nil {
		return nil, err
	}
	r.Ops = ops
	return r, nil
}

func parseOps(body []byte, count uint32) ([]Op, error) {
	// Every op needs at least its header.
	if uint64(count)*opHeader > uint64(len(body)) {
		return nil, fmt.Errorf("%w: %d ops in %d bytes", ErrBroken, count, len(body))
	}
	ops := make([]Op, 0, count)
	pos := 0
	for i := uint32(0); i < count; i++ {
		if len(body)-pos < opHeader {
			return nil, fmt.Errorf("%w: op %d header", ErrBroken, i)
		}
		off := binary.LittleEndian.Uint64(body[pos:])
		n := int(binary.LittleEndian.Uint32(body[pos+8:]))
		pos += opHeader
		if off > math.MaxInt64 || len(body)-pos < n {
			return nil, fmt.Errorf("%w: op %d data", ErrBroken, i)
		}
		data := make([]byte, n)
		copy(data, body[pos:pos+n])
		ops = append(ops, Op{Off: int64(off), Data: data})
		pos += n
	}
	if pos != len(body) {
		return nil, fmt.Errorf("%w: %d trailing body bytes", ErrBroken, len(body)-pos)
	}
	return ops, nil
}
