package walfile

import (
	"log/slog"

	"github.com/hupe1980/walfile/blobstore"
	"github.com/hupe1980/walfile/internal/fs"
	"github.com/hupe1980/walfile/internal/journal"
)

// Compression selects how journal record bodies are stored.
type Compression uint8

const (
	// CompressionNone stores bodies raw (default).
	CompressionNone Compression = Compression(journal.CodecNone)
	// CompressionZstd favours ratio; good for large, repetitive writes.
	CompressionZstd Compression = Compression(journal.CodecZstd)
	// CompressionLZ4 favours speed.
	CompressionLZ4 Compression = Compression(journal.CodecLZ4)
)

type options struct {
	fs               fs.FileSystem
	journalDir       string
	compression      Compression
	metricsCollector MetricsCollector
	logger           *Logger

	// Check only.
	memoryLimit      int64
	workers          int
	ioLimit          int64
	quarantine       blobstore.Store
	quarantinePrefix string
}

// Option configures Open and Check.
//
// Options that do not apply to the call they are passed to are ignored.
type Option func(*options)

// WithJournalDir places the journal in dir instead of <dir>/.<base>.jio.
// Check must be given the same directory.
func WithJournalDir(dir string) Option {
	return func(o *options) {
		o.journalDir = dir
	}
}

// WithCompression compresses journal records. Records below a small size, or
// that do not shrink, are stored raw regardless.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &walfile.BasicMetricsCollector{}
//	f, _ := walfile.Open(path, walfile.ReadWrite, 0o600, 0, walfile.WithMetricsCollector(metrics))
//	// ... commit transactions ...
//	stats := metrics.GetStats()
//	fmt.Printf("Commits: %d, Avg latency: %dns\n", stats.CommitCount, stats.CommitAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := walfile.NewJSONLogger(slog.LevelInfo)
//	f, _ := walfile.Open(path, walfile.ReadWrite, 0o600, 0, walfile.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMemoryLimit bounds the memory Check may use for scan buffers.
// A record that does not fit fails the check with ErrOutOfMemory.
// 0 means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithWorkers sets how many records Check reads and verifies in parallel.
// Records are still applied one at a time in transaction order.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithIOLimit throttles the bytes per second Check writes when reapplying
// records. 0 means unlimited.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithQuarantine makes Check copy broken, corrupt and invalid records to store
// before deleting them, named "<prefix>/<tid>.<class>.jr".
func WithQuarantine(store blobstore.Store, prefix string) Option {
	return func(o *options) {
		o.quarantine = store
		o.quarantinePrefix = prefix
	}
}

// withFileSystem swaps the file system, for fault injection in tests.
func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		fs:               fs.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		workers:          1,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
