package walfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/walfile/blobstore"
	"github.com/hupe1980/walfile/internal/fs"
	"github.com/hupe1980/walfile/internal/journal"
	"github.com/hupe1980/walfile/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// crashAfterJournal commits writes on a file whose data writes all fail, which
// leaves the journal exactly as a crash right after the record was flushed.
func crashAfterJournal(t *testing.T, content string, opts []Option, writes ...testutil.Write) string {
	t.Helper()
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("data.bin", fs.Fault{FailAfterBytes: 0})

	path := testutil.TempFile(t, "data.bin", []byte(content))
	f, err := Open(path, ReadWrite, 0o600, 0, append(opts, withFileSystem(ffs))...)
	require.NoError(t, err)

	tx := f.Begin(0)
	for _, w := range writes {
		require.NoError(t, tx.Write(w.Data, w.Off))
	}
	require.ErrorIs(t, tx.Commit(t.Context()), ErrAtomicityBroken)
	tx.Release()
	require.NoError(t, f.Close())
	return path
}

func TestCheck_ReappliesCrashedCommit(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(journal.Codec(c).String(), func(t *testing.T) {
			payload := make([]byte, 4096)
			for i := range payload {
				payload[i] = byte('a' + i%4)
			}
			path := crashAfterJournal(t, "0123456789", []Option{WithCompression(c)},
				testutil.Write{Off: 2, Data: []byte("AB")},
				testutil.Write{Off: 10, Data: payload},
			)
			assert.Equal(t, []byte("0123456789"), testutil.ReadFile(t, path))

			// Report-only runs are idempotent and touch nothing.
			first, err := Check(t.Context(), path, 0)
			require.NoError(t, err)
			second, err := Check(t.Context(), path, 0)
			require.NoError(t, err)
			assert.Equal(t, first, second)
			assert.Equal(t, Report{Total: 1, InProgress: 1}, first)
			assert.Equal(t, 1, pendingRecords(t, path))

			report, err := Check(t.Context(), path, Cleanup)
			require.NoError(t, err)
			assert.Equal(t, 1, report.InProgress)
			assert.Equal(t, 1, report.Reapplied)
			assert.Equal(t, 0, pendingRecords(t, path))

			want := append([]byte("01AB456789"), payload...)
			assert.Equal(t, want, testutil.ReadFile(t, path))

			report, err = Check(t.Context(), path, Cleanup)
			require.NoError(t, err)
			assert.Equal(t, Report{}, report)
		})
	}
}

func TestCheck_MissingJournal(t *testing.T) {
	path := testutil.TempFile(t, "data.bin", nil)

	_, err := Check(t.Context(), path, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var pe *PathError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "check", pe.Op)
}

func TestCheck_CustomJournalDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "journal")
	path := crashAfterJournal(t, "abc", []Option{WithJournalDir(dir)},
		testutil.Write{Off: 0, Data: []byte("X")},
	)

	_, err := Check(t.Context(), path, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	report, err := Check(t.Context(), path, Cleanup, WithJournalDir(dir))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reapplied)
	assert.Equal(t, []byte("Xbc"), testutil.ReadFile(t, path))
}

func TestCheck_QuarantinesGarbage(t *testing.T) {
	f, path := openTemp(t, "abc", 0)
	dir := f.JournalDir()
	require.NoError(t, f.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, journal.RecordName(0x63)), []byte("garbage"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, journal.RecordName(0x64)), nil, 0o600))

	store := blobstore.NewMemoryStore()
	metrics := &BasicMetricsCollector{}
	report, err := Check(t.Context(), path, Cleanup,
		WithQuarantine(store, "lost"),
		WithMetricsCollector(metrics),
		WithWorkers(4),
	)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Invalid)
	assert.Equal(t, 2, report.Quarantined)
	assert.Equal(t, 0, pendingRecords(t, path))

	got, err := store.Get(t.Context(), "lost/0000000000000063.invalid.jr")
	require.NoError(t, err)
	assert.Equal(t, []byte("garbage"), got)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.CheckCount)
	assert.Equal(t, int64(0), stats.CheckErrors)
}

func TestCheck_MemoryLimit(t *testing.T) {
	path := crashAfterJournal(t, "abc", nil,
		testutil.Write{Off: 0, Data: make([]byte, 8192)},
	)

	_, err := Check(t.Context(), path, Cleanup, WithMemoryLimit(1024))
	assert.ErrorIs(t, err, ErrOutOfMemory)

	// Nothing was repaired.
	assert.Equal(t, 1, pendingRecords(t, path))
	assert.Equal(t, []byte("abc"), testutil.ReadFile(t, path))
}

func TestCheck_IOLimit(t *testing.T) {
	path := crashAfterJournal(t, "", nil,
		testutil.Write{Off: 0, Data: []byte("throttled")},
	)

	report, err := Check(t.Context(), path, Cleanup, WithIOLimit(1<<20))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reapplied)
	assert.Equal(t, []byte("throttled"), testutil.ReadFile(t, path))
}
