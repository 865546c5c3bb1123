package lock

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/walfile/internal/span"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "data"), os.O_CREATE|os.O_RDWR, 0600)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return NewManager(f.Fd(), true)
}

func TestManager_DisjointRangesDoNotBlock(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	a, err := m.Lock(ctx, []span.Range{{Off: 0, Len: 10}})
	require.NoError(t, err)
	b, err := m.Lock(ctx, []span.Range{{Off: 50, Len: 10}})
	require.NoError(t, err)

	require.NoError(t, a.Unlock())
	require.NoError(t, b.Unlock())
}

func TestManager_OverlapWaits(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	first, err := m.Lock(ctx, []span.Range{{Off: 10, Len: 10}})
	require.NoError(t, err)

	acquired := make(chan *Held)
	go func() {
		h, err := m.Lock(ctx, []span.Range{{Off: 15, Len: 1}})
		assert.NoError(t, err)
		acquired <- h
	}()

	select {
	case <-acquired:
		t.Fatal("overlapping lock granted while first is held")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Unlock())

	select {
	case h := <-acquired:
		require.NoError(t, h.Unlock())
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}

func TestManager_ContextCancelWhileWaiting(t *testing.T) {
	m := newManager(t)

	held, err := m.Lock(context.Background(), []span.Range{WholeFile})
	require.NoError(t, err)
	defer held.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = m.Lock(ctx, []span.Range{{Off: 0, Len: 1}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_UnlockTwice(t *testing.T) {
	m := newManager(t)

	h, err := m.Lock(context.Background(), []span.Range{{Off: 0, Len: 4}})
	require.NoError(t, err)
	require.NoError(t, h.Unlock())
	// Second unlock is a no-op.
	require.NoError(t, h.Unlock())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h2, err := m.Lock(ctx, []span.Range{{Off: 2, Len: 4}})
	require.NoError(t, err)
	require.NoError(t, h2.Unlock())
}

func TestManager_EmptyRanges(t *testing.T) {
	m := NewManager(0, false)
	h, err := m.Lock(context.Background(), nil)
	require.NoError(t, err)
	assert.NoError(t, h.Unlock())
}

func TestLockFile(t *testing.T) {
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "lock"), os.O_CREATE|os.O_RDWR, 0600)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, LockFile(f.Fd()))
	require.NoError(t, UnlockFile(f.Fd()))
}
