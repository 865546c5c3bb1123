package journal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/walfile/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, fsys fs.FileSystem) (*Store, string) {
	t.Helper()
	dir := DefaultDir(filepath.Join(t.TempDir(), "data.bin"))
	s, err := Open(fsys, dir, Options{Create: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

func TestDefaultDir(t *testing.T) {
	assert.Equal(t, filepath.Join("/var", "db", ".data.bin.jio"), DefaultDir("/var/db/data.bin"))
}

func TestRecordName(t *testing.T) {
	assert.Equal(t, "000000000000002a.jr", RecordName(42))

	id, ok := ParseRecordName("000000000000002a.jr")
	assert.True(t, ok)
	assert.Equal(t, uint64(42), id)

	for _, bad := range []string{"lock", "2a.jr", "000000000000002a.jr.tmp", "zzzzzzzzzzzzzzzz.jr"} {
		_, ok := ParseRecordName(bad)
		assert.False(t, ok, bad)
	}
}

func TestStore_NextIDMonotonic(t *testing.T) {
	s, dir := openStore(t, nil)

	var last uint64
	for i := 0; i < 5; i++ {
		id, err := s.NextID()
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}

	// The counter survives reopening.
	require.NoError(t, s.Close())
	s2, err := Open(nil, dir, Options{Create: true})
	require.NoError(t, err)
	defer s2.Close()

	id, err := s2.NextID()
	require.NoError(t, err)
	assert.Equal(t, last+1, id)
}

func TestStore_AppendLoadRetire(t *testing.T) {
	s, dir := openStore(t, nil)

	id, err := s.NextID()
	require.NoError(t, err)

	n, err := s.Append(&Record{ID: id, Ops: []Op{{Off: 0, Data: []byte("hello")}}})
	require.NoError(t, err)
	assert.Positive(t, n)

	ids, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []uint64{id}, ids)

	size, err := s.Size(id)
	require.NoError(t, err)
	assert.Equal(t, int64(n), size)

	rec, err := s.Load(id)
	require.NoError(t, err)
	assert.Equal(t, StatePending, rec.State)
	assert.Equal(t, []byte("hello"), rec.Ops[0].Data)

	require.NoError(t, s.MarkApplied(id))
	rec, err = s.Load(id)
	require.NoError(t, err)
	assert.Equal(t, StateApplied, rec.State)

	require.NoError(t, s.Remove(id))
	require.NoError(t, s.Remove(id), "removing twice is fine")

	ids, err = s.List()
	require.NoError(t, err)
	assert.Empty(t, ids)

	// Only the counter remains.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "lock", entries[0].Name())
}

func TestStore_AppendUsesStoreCodec(t *testing.T) {
	dir := DefaultDir(filepath.Join(t.TempDir(), "data.bin"))
	s, err := Open(nil, dir, Options{Create: true, Codec: CodecLZ4})
	require.NoError(t, err)
	defer s.Close()

	rec := sampleRecord(CodecNone)
	_, err = s.Append(rec)
	require.NoError(t, err)
	assert.Equal(t, CodecNone, rec.Codec, "caller's record is untouched")

	raw, err := s.ReadRaw(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, byte(CodecLZ4), raw[7])
}

func TestStore_RecoverRemovesTempAndBumpsCounter(t *testing.T) {
	s, dir := openStore(t, nil)
	require.NoError(t, s.Close())

	// A durable record whose counter update was lost, plus a torn temp file.
	buf, err := Encode(&Record{ID: 9, Ops: []Op{{Off: 0, Data: []byte("x")}}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, RecordName(9)), buf, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, RecordName(10)+".tmp"), buf[:5], 0o600))

	s2, err := Open(nil, dir, Options{Create: true})
	require.NoError(t, err)
	defer s2.Close()

	_, err = os.Stat(filepath.Join(dir, RecordName(10)+".tmp"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	id, err := s2.NextID()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), id)
}

func TestStore_AppendFailureLeavesNothing(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	s, _ := openStore(t, ffs)

	ffs.AddRule(".jr.tmp", fs.Fault{FailAfterBytes: -1, FailOnSync: true})

	id, err := s.NextID()
	require.NoError(t, err)
	_, err = s.Append(&Record{ID: id, Ops: []Op{{Off: 0, Data: []byte("x")}}})
	require.Error(t, err)

	ids, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStore_OpenExistingOnly(t *testing.T) {
	_, err := Open(nil, filepath.Join(t.TempDir(), ".missing.jio"), Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, dir := openStore(t, nil)
	ro, err := Open(nil, dir, Options{})
	require.NoError(t, err)
	defer ro.Close()

	_, err = ro.NextID()
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestStore_Move(t *testing.T) {
	s, dir := openStore(t, nil)

	id, err := s.NextID()
	require.NoError(t, err)
	_, err = s.Append(&Record{ID: id, Ops: []Op{{Off: 0, Data: []byte("keep")}}})
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "elsewhere.jio")
	require.NoError(t, s.Move(target))
	assert.Equal(t, target, s.Dir())

	_, err = os.Stat(dir)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	rec, err := s.Load(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep"), rec.Ops[0].Data)

	// The counter keeps working after the move.
	next, err := s.NextID()
	require.NoError(t, err)
	assert.Equal(t, id+1, next)
}

func TestStore_Closed(t *testing.T) {
	s, _ := openStore(t, nil)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.NextID()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Append(&Record{ID: 1})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.List()
	assert.ErrorIs(t, err, ErrClosed)
}
