package resource

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufferAt struct{ bytes.Buffer }

func (b *bufferAt) WriteAt(p []byte, _ int64) (int, error) { return b.Write(p) }

func TestController_MemoryFailFast(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(100))
	assert.ErrorIs(t, c.AcquireMemory(1), ErrMemoryLimitExceeded)

	c.ReleaseMemory(10)
	require.NoError(t, c.AcquireMemory(5))
	require.NoError(t, c.AcquireMemory(5))
	assert.ErrorIs(t, c.AcquireMemory(1), ErrMemoryLimitExceeded)
}

func TestController_MemoryUnlimited(t *testing.T) {
	c := NewController(Config{})
	require.NoError(t, c.AcquireMemory(1<<40))
	require.NoError(t, c.AcquireMemory(1<<40))
	c.ReleaseMemory(1 << 40)
}

func TestController_NilChecks(t *testing.T) {
	var c *Controller
	assert.NoError(t, c.AcquireMemory(10))
	c.ReleaseMemory(10)
	assert.NoError(t, c.AcquireWorker(context.Background()))
	c.ReleaseWorker()
	assert.NoError(t, c.AcquireIO(context.Background(), 1<<20))
	assert.Equal(t, 1, c.Workers())
}

func TestController_Workers(t *testing.T) {
	c := NewController(Config{MaxWorkers: 1})
	require.NoError(t, c.AcquireWorker(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireWorker(ctx))

	c.ReleaseWorker()
	require.NoError(t, c.AcquireWorker(context.Background()))
	c.ReleaseWorker()
}

func TestController_IO(t *testing.T) {
	ctx := context.Background()

	c := NewController(Config{IOLimitBytesPerSec: 1000})
	assert.NoError(t, c.AcquireIO(ctx, 100))

	// Larger than the bucket is split rather than rejected.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, c.AcquireIO(cancelled, 5000))

	unlimited := NewController(Config{})
	assert.NoError(t, unlimited.AcquireIO(ctx, 1_000_000))
}

func TestRateLimitedWriterAt(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})
	var buf bufferAt
	w := NewRateLimitedWriterAt(context.Background(), &buf, c)

	n, err := w.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", buf.String())
}
