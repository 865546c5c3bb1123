package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_Lifecycle(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalStore(filepath.Join(tmpDir, "quarantine"))
	ctx := context.Background()

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names, "missing root lists as empty")

	data := []byte("WFJR broken record bytes")
	require.NoError(t, store.Put(ctx, "data.bin/0000000000000001.corrupt.jr", data))
	require.NoError(t, store.Put(ctx, "data.bin/0000000000000002.broken.jr", []byte("x")))
	require.NoError(t, store.Put(ctx, "other/0000000000000001.invalid.jr", nil))

	_, err = os.Stat(filepath.Join(tmpDir, "quarantine", "data.bin", "0000000000000001.corrupt.jr"))
	require.NoError(t, err)

	got, err := store.Get(ctx, "data.bin/0000000000000001.corrupt.jr")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	names, err = store.List(ctx, "data.bin/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"data.bin/0000000000000001.corrupt.jr",
		"data.bin/0000000000000002.broken.jr",
	}, names)

	require.NoError(t, store.Delete(ctx, "data.bin/0000000000000002.broken.jr"))
	require.NoError(t, store.Delete(ctx, "data.bin/0000000000000002.broken.jr"))

	_, err = store.Get(ctx, "data.bin/0000000000000002.broken.jr")
	assert.ErrorIs(t, err, ErrNotFound)

	names, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, names, 2)
}

func TestLocalStore_Overwrite(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", []byte("first")))
	require.NoError(t, store.Put(ctx, "k", []byte("second")))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestLocalStore_RejectsEscapingNames(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	for _, name := range []string{"../escape", "/abs", "", "."} {
		assert.Error(t, store.Put(ctx, name, []byte("x")), name)
	}
}

func TestLocalStore_CanceledContext(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Put(ctx, "k", nil), context.Canceled)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, store.Put(ctx, "p/1", buf))
	buf[0] = 'X'

	got, err := store.Get(ctx, "p/1")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got, "Put copies its input")

	require.NoError(t, store.Put(ctx, "q/1", nil))
	names, err := store.List(ctx, "p/")
	require.NoError(t, err)
	assert.Equal(t, []string{"p/1"}, names)
	assert.Equal(t, 2, store.Len())

	require.NoError(t, store.Delete(ctx, "p/1"))
	_, err = store.Get(ctx, "p/1")
	assert.ErrorIs(t, err, ErrNotFound)
}

var (
	_ Store = (*LocalStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
