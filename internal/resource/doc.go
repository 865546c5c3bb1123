// Package resource bounds the resources a consistency check may consume.
//
// Three resource types are managed:
//
//   - Memory: scan buffers for journal records (non-blocking, fail-fast)
//   - Concurrency: parallel record verification
//   - IO: rate limit for reapplying records to the live file
//
// # Memory Management
//
// Memory tracking uses a weighted semaphore for hard limits and atomic counters
// for usage tracking. AcquireMemory is non-blocking and returns immediately
// with ErrMemoryLimitExceeded if the limit would be exceeded:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 64 << 20,
//	})
//
//	if err := rc.AcquireMemory(int64(len(buf))); err != nil {
//	    // ErrMemoryLimitExceeded - the check fails with an out-of-memory error
//	}
//	defer rc.ReleaseMemory(int64(len(buf)))
//
// # Worker Limits
//
//	rc := resource.NewController(resource.Config{MaxWorkers: 4})
//
//	if err := rc.AcquireWorker(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseWorker()
//
// # IO Rate Limiting
//
// Token bucket rate limiter so a repair does not starve foreground writers:
//
//	rc := resource.NewController(resource.Config{
//	    IOLimitBytesPerSec: 32 << 20,
//	})
//	w := resource.NewRateLimitedWriterAt(ctx, file, rc)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
