package walfile

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// metrics/prometheus package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordCommit is called after each commit. ops is the number of writes,
	// bytes their total size, err is nil if successful.
	RecordCommit(ops int, bytes int64, duration time.Duration, err error)

	// RecordRollback is called after each rollback.
	RecordRollback(duration time.Duration, err error)

	// RecordSync is called after each Sync (explicit or autosync).
	// retired is the number of lingering records retired.
	RecordSync(retired int, duration time.Duration, err error)

	// RecordCheck is called after each Check.
	RecordCheck(report Report, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCommit(int, int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordRollback(time.Duration, error)           {}
func (NoopMetricsCollector) RecordSync(int, time.Duration, error)          {}
func (NoopMetricsCollector) RecordCheck(Report, time.Duration, error)      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CommitCount      atomic.Int64
	CommitErrors     atomic.Int64
	CommitBytes      atomic.Int64
	CommitTotalNanos atomic.Int64
	RollbackCount    atomic.Int64
	RollbackErrors   atomic.Int64
	SyncCount        atomic.Int64
	SyncErrors       atomic.Int64
	SyncRetired      atomic.Int64
	CheckCount       atomic.Int64
	CheckErrors      atomic.Int64
	CheckReapplied   atomic.Int64
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(_ int, bytes int64, duration time.Duration, err error) {
	b.CommitCount.Add(1)
	b.CommitTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CommitErrors.Add(1)
		return
	}
	b.CommitBytes.Add(bytes)
}

// RecordRollback implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRollback(_ time.Duration, err error) {
	b.RollbackCount.Add(1)
	if err != nil {
		b.RollbackErrors.Add(1)
	}
}

// RecordSync implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSync(retired int, _ time.Duration, err error) {
	b.SyncCount.Add(1)
	if err != nil {
		b.SyncErrors.Add(1)
		return
	}
	b.SyncRetired.Add(int64(retired))
}

// RecordCheck implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCheck(report Report, _ time.Duration, err error) {
	b.CheckCount.Add(1)
	if err != nil {
		b.CheckErrors.Add(1)
		return
	}
	b.CheckReapplied.Add(int64(report.Reapplied))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CommitCount:    b.CommitCount.Load(),
		CommitErrors:   b.CommitErrors.Load(),
		CommitBytes:    b.CommitBytes.Load(),
		CommitAvgNanos: b.getAvgCommitNanos(),
		RollbackCount:  b.RollbackCount.Load(),
		RollbackErrors: b.RollbackErrors.Load(),
		SyncCount:      b.SyncCount.Load(),
		SyncErrors:     b.SyncErrors.Load(),
		SyncRetired:    b.SyncRetired.Load(),
		CheckCount:     b.CheckCount.Load(),
		CheckErrors:    b.CheckErrors.Load(),
		CheckReapplied: b.CheckReapplied.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgCommitNanos() int64 {
	count := b.CommitCount.Load()
	if count == 0 {
		return 0
	}
	return b.CommitTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CommitCount    int64
	CommitErrors   int64
	CommitBytes    int64
	CommitAvgNanos int64
	RollbackCount  int64
	RollbackErrors int64
	SyncCount      int64
	SyncErrors     int64
	SyncRetired    int64
	CheckCount     int64
	CheckErrors    int64
	CheckReapplied int64
}
