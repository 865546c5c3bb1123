package benchmark_test

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/hupe1980/walfile"
	"github.com/hupe1980/walfile/testutil"
)

// WarmupIterations is the number of commits run before measurement so the
// journal directory, page cache and allocators are warm.
const WarmupIterations = 10

// BenchLoop runs a benchmark with proper methodology:
// 1. Warmup phase (WarmupIterations)
// 2. GC to clear allocation pressure
// 3. Reset timer
// 4. Run b.N iterations
//
// The fn receives the current iteration index.
func BenchLoop(b *testing.B, fn func(i int)) {
	b.Helper()

	for i := range WarmupIterations {
		fn(i)
	}

	runtime.GC()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		fn(i)
	}
}

// openBench opens a fresh file of size bytes for a benchmark.
func openBench(b *testing.B, size int64, jflags walfile.JournalFlag, opts ...walfile.Option) *walfile.File {
	b.Helper()
	rng := testutil.NewRNG(1)
	path := filepath.Join(b.TempDir(), "bench.dat")

	f, err := walfile.Open(path, walfile.ReadWrite|walfile.Create, 0o600, jflags, opts...)
	if err != nil {
		b.Fatal(err)
	}
	if _, err := f.WriteAt(rng.Bytes(int(size)), 0); err != nil {
		b.Fatal(err)
	}
	if err := f.Sync(); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = f.Close() })
	return f
}
