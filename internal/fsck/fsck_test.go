package fsck

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/walfile/blobstore"
	"github.com/hupe1980/walfile/internal/journal"
	"github.com/hupe1980/walfile/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	data  string
	dir   string
	store *journal.Store
}

func newFixture(t *testing.T, content string) *fixture {
	t.Helper()
	data := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(data, []byte(content), 0o600))

	dir := journal.DefaultDir(data)
	store, err := journal.Open(nil, dir, journal.Options{Create: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return &fixture{data: data, dir: dir, store: store}
}

func (f *fixture) append(t *testing.T, rec *journal.Record) uint64 {
	t.Helper()
	id, err := f.store.NextID()
	require.NoError(t, err)
	rec.ID = id
	_, err = f.store.Append(rec)
	require.NoError(t, err)
	return id
}

func (f *fixture) writeRaw(t *testing.T, id uint64, raw []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, journal.RecordName(id)), raw, 0o600))
}

func (f *fixture) content(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile(f.data)
	require.NoError(t, err)
	return string(b)
}

func TestRun_MissingJournal(t *testing.T) {
	_, err := Run(context.Background(), "x", filepath.Join(t.TempDir(), ".x.jio"), Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_EmptyJournal(t *testing.T) {
	f := newFixture(t, "hello")
	report, err := Run(context.Background(), f.data, f.dir, Options{Cleanup: true})
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
}

func TestRun_ReapplyInProgress(t *testing.T) {
	f := newFixture(t, "0123456789")
	f.append(t, &journal.Record{Ops: []journal.Op{{Off: 2, Data: []byte("AB")}}})
	f.append(t, &journal.Record{Ops: []journal.Op{{Off: 3, Data: []byte("CD")}}})

	// Report-only leaves everything alone.
	report, err := Run(context.Background(), f.data, f.dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, Report{Total: 2, InProgress: 2}, report)
	assert.Equal(t, "0123456789", f.content(t))

	again, err := Run(context.Background(), f.data, f.dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, report, again)

	report, err = Run(context.Background(), f.data, f.dir, Options{Cleanup: true})
	require.NoError(t, err)
	assert.Equal(t, Report{Total: 2, InProgress: 2, Reapplied: 2}, report)
	assert.Equal(t, "01ACD56789", f.content(t), "later records win")

	ids, err := f.store.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRun_ReapplyTruncate(t *testing.T) {
	f := newFixture(t, "0123456789")
	f.append(t, &journal.Record{
		Ops:          []journal.Op{{Off: 0, Data: []byte("ab")}},
		HasTruncate:  true,
		TruncateSize: 4,
	})

	report, err := Run(context.Background(), f.data, f.dir, Options{Cleanup: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reapplied)
	assert.Equal(t, "ab23", f.content(t))
}

func TestRun_Classification(t *testing.T) {
	f := newFixture(t, "0123456789")

	good, err := journal.Encode(&journal.Record{ID: 1, Ops: []journal.Op{{Off: 0, Data: []byte("zz")}}})
	require.NoError(t, err)

	corrupt := append([]byte(nil), good...)
	corrupt[journal.HeaderSize] ^= 0xFF

	applied, err := journal.Encode(&journal.Record{ID: 4, State: journal.StateApplied, Ops: []journal.Op{{Off: 0, Data: []byte("yy")}}})
	require.NoError(t, err)

	f.writeRaw(t, 1, nil)
	f.writeRaw(t, 2, good[:len(good)-2])
	f.writeRaw(t, 3, corrupt)
	f.writeRaw(t, 4, applied)
	f.writeRaw(t, 5, []byte("not a record at all"))

	quarantine := blobstore.NewMemoryStore()
	report, err := Run(context.Background(), f.data, f.dir, Options{
		Cleanup:          true,
		Quarantine:       quarantine,
		QuarantinePrefix: "data.bin/",
		Resources:        resource.NewController(resource.Config{MaxWorkers: 3}),
	})
	require.NoError(t, err)
	assert.Equal(t, Report{
		Total:       5,
		Invalid:     2,
		Broken:      1,
		Corrupt:     1,
		Complete:    1,
		Quarantined: 4,
	}, report)
	assert.Equal(t, "0123456789", f.content(t), "nothing is reapplied")

	names, err := quarantine.List(context.Background(), "data.bin/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"data.bin/0000000000000001.invalid.jr",
		"data.bin/0000000000000002.broken.jr",
		"data.bin/0000000000000003.corrupt.jr",
		"data.bin/0000000000000005.invalid.jr",
	}, names)

	ids, err := f.store.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRun_MemoryLimit(t *testing.T) {
	f := newFixture(t, "")
	f.append(t, &journal.Record{Ops: []journal.Op{{Off: 0, Data: make([]byte, 4096)}}})

	_, err := Run(context.Background(), f.data, f.dir, Options{
		Resources: resource.NewController(resource.Config{MemoryLimitBytes: 128}),
	})
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
}

func TestRun_ReleasesMemory(t *testing.T) {
	f := newFixture(t, "0123456789")
	for i := 0; i < 5; i++ {
		f.append(t, &journal.Record{Ops: []journal.Op{{Off: int64(i), Data: []byte("x")}}})
	}

	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 20, MaxWorkers: 2})
	report, err := Run(context.Background(), f.data, f.dir, Options{Cleanup: true, Resources: rc})
	require.NoError(t, err)
	assert.Equal(t, 5, report.Reapplied)
	// Every scan buffer was returned: the whole budget is available again.
	require.NoError(t, rc.AcquireMemory(1<<20))
	assert.Equal(t, "xxxxx56789", f.content(t))
}

func TestRun_CanceledContext(t *testing.T) {
	f := newFixture(t, "0123456789")
	f.append(t, &journal.Record{Ops: []journal.Op{{Off: 0, Data: []byte("x")}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, f.data, f.dir, Options{Cleanup: true})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "0123456789", f.content(t))
}

func TestClass_String(t *testing.T) {
	assert.Equal(t, "in-progress", ClassInProgress.String())
	assert.Equal(t, "corrupt", ClassCorrupt.String())
}
