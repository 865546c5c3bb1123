package walfile

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/walfile/internal/fs"
	"github.com/hupe1980/walfile/internal/journal"
	"github.com/hupe1980/walfile/internal/lock"
)

// File is a regular file with journaled transactions.
//
// Plain Read/Write/Seek/Truncate act on the file directly and are not
// journaled; use Begin or Transaction for atomic updates. A File is safe for
// concurrent use.
type File struct {
	fsys   fs.FileSystem
	file   fs.File
	path   string
	flags  OpenFlag
	jflags JournalFlag

	store   *journal.Store // nil when read-only
	locks   *lock.Manager
	logger  *Logger
	metrics MetricsCollector

	// mu guards the shared offset and the error/EOF indicators.
	mu  sync.Mutex
	err error
	eof bool

	// syncMu serialises data fsyncs with record retirement.
	syncMu    sync.Mutex
	lingering []lingerRecord
	unsynced  int64

	stateMu sync.Mutex
	openTx  int
	closed  bool
	daemon  atomic.Pointer[autosyncDaemon]
}

type lingerRecord struct {
	id    uint64
	bytes int64
}

// Open opens the file at path and attaches its journal, creating the journal
// directory when needed. flags and perm follow os.OpenFile.
//
// Files opened ReadOnly get no journal; transactions with writes on them fail
// with ErrReadOnly. WriteOnly files reject plain reads but still capture
// pre-images for Rollback.
func Open(path string, flags OpenFlag, perm os.FileMode, jflags JournalFlag, opts ...Option) (*File, error) {
	o := applyOptions(opts)

	file, err := o.fs.OpenFile(path, flags.sysFlags(), perm)
	if err != nil {
		return nil, &PathError{Op: "open", Path: path, Err: err}
	}

	f := &File{
		fsys:    o.fs,
		file:    file,
		path:    path,
		flags:   flags,
		jflags:  jflags,
		locks:   lock.NewManager(file.Fd(), jflags&NoLock == 0),
		logger:  o.logger.WithPath(path),
		metrics: o.metricsCollector,
	}

	if flags.writable() {
		dir := o.journalDir
		if dir == "" {
			dir = journal.DefaultDir(path)
		}
		store, err := journal.Open(o.fs, dir, journal.Options{
			Create: true,
			Codec:  journal.Codec(o.compression),
		})
		if err != nil {
			_ = file.Close()
			return nil, &PathError{Op: "open", Path: dir, Err: err}
		}
		f.store = store
	}

	return f, nil
}

// Name returns the path the file was opened with.
func (f *File) Name() string { return f.path }

// JournalDir returns the current journal directory, or "" for read-only files.
func (f *File) JournalDir() string {
	if f.store == nil {
		return ""
	}
	return f.store.Dir()
}

func (f *File) isClosed() bool {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	return f.closed
}

// fail records err in the sticky error slot and returns it classified.
func (f *File) fail(op string, err error) error {
	perr := &PathError{Op: op, Path: f.path, Err: err}
	f.mu.Lock()
	f.err = perr
	f.mu.Unlock()
	return perr
}

// Read reads up to n bytes at the current offset and advances it. A short
// result means end of file was reached, which sets the EOF indicator.
func (f *File) Read(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrInvalidArgument
	}
	if f.isClosed() {
		return nil, ErrClosed
	}
	if !f.flags.readable() {
		return nil, &PathError{Op: "read", Path: f.path, Err: ErrPermissionDenied}
	}

	buf := make([]byte, n)
	f.mu.Lock()
	m, err := io.ReadFull(f.file, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		f.eof = true
		err = nil
	}
	f.mu.Unlock()
	if err != nil {
		return nil, f.fail("read", err)
	}
	return buf[:m], nil
}

// ReadAt reads up to n bytes at off without moving the offset.
// The result is short at end of file.
func (f *File) ReadAt(n int, off int64) ([]byte, error) {
	if n < 0 || off < 0 {
		return nil, ErrInvalidArgument
	}
	if f.isClosed() {
		return nil, ErrClosed
	}
	if !f.flags.readable() {
		return nil, &PathError{Op: "read", Path: f.path, Err: ErrPermissionDenied}
	}
	buf, err := readFullAt(f.file, n, off)
	if err != nil {
		return nil, f.fail("read", err)
	}
	return buf, nil
}

// readFullAt reads n bytes at off, truncated at end of file.
func readFullAt(r io.ReaderAt, n int, off int64) ([]byte, error) {
	buf := make([]byte, n)
	m, err := r.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:m], nil
}

// Write writes p at the current offset and advances it. Files opened with
// Append write at the end of the file instead.
func (f *File) Write(p []byte) (int, error) {
	if !f.flags.writable() {
		return 0, ErrReadOnly
	}
	if f.isClosed() {
		return 0, ErrClosed
	}
	f.mu.Lock()
	var (
		n   int
		err error
	)
	if f.flags&Append != 0 {
		_, err = f.file.Seek(0, io.SeekEnd)
	}
	if err == nil {
		n, err = f.file.Write(p)
	}
	f.mu.Unlock()
	if err != nil {
		return n, f.fail("write", err)
	}
	return n, nil
}

// WriteAt writes p at off without moving the offset.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrInvalidArgument
	}
	if !f.flags.writable() {
		return 0, ErrReadOnly
	}
	if f.isClosed() {
		return 0, ErrClosed
	}
	n, err := f.file.WriteAt(p, off)
	if err != nil {
		return n, f.fail("write", err)
	}
	return n, nil
}

// Seek sets the offset for the next Read or Write and clears the EOF indicator.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.isClosed() {
		return 0, ErrClosed
	}
	f.mu.Lock()
	pos, err := f.file.Seek(offset, whence)
	if err == nil {
		f.eof = false
	}
	f.mu.Unlock()
	if err != nil {
		return 0, f.fail("seek", err)
	}
	return pos, nil
}

// Tell returns the current offset.
func (f *File) Tell() (int64, error) {
	if f.isClosed() {
		return 0, ErrClosed
	}
	f.mu.Lock()
	pos, err := f.file.Seek(0, io.SeekCurrent)
	f.mu.Unlock()
	if err != nil {
		return 0, f.fail("tell", err)
	}
	return pos, nil
}

// Rewind moves the offset to the start and clears the EOF and error
// indicators.
func (f *File) Rewind() error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	f.ClearErr()
	return nil
}

// Truncate changes the size of the file. It is not journaled.
func (f *File) Truncate(size int64) error {
	if size < 0 {
		return ErrInvalidArgument
	}
	if !f.flags.writable() {
		return ErrReadOnly
	}
	if f.isClosed() {
		return ErrClosed
	}
	if err := f.file.Truncate(size); err != nil {
		return f.fail("truncate", err)
	}
	return nil
}

// Size returns the current size of the file.
func (f *File) Size() (int64, error) {
	info, err := f.file.Stat()
	if err != nil {
		return 0, f.fail("stat", err)
	}
	return info.Size(), nil
}

// Fd returns the OS file descriptor.
func (f *File) Fd() uintptr { return f.file.Fd() }

// EOF reports whether a Read hit end of file since the last Seek or Rewind.
func (f *File) EOF() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eof
}

// Err returns the last error recorded by an I/O operation, or nil.
func (f *File) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// ClearErr clears the error and EOF indicators.
func (f *File) ClearErr() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = nil
	f.eof = false
}

// Sync fsyncs the file and retires every lingering journal record.
func (f *File) Sync() error {
	if f.isClosed() {
		return ErrClosed
	}
	return f.sync(context.Background())
}

func (f *File) sync(ctx context.Context) error {
	start := time.Now()
	f.syncMu.Lock()
	retired, bytes, err := f.flushLocked()
	f.syncMu.Unlock()

	f.metrics.RecordSync(retired, time.Since(start), err)
	f.logger.LogSync(ctx, retired, bytes, err)
	if err != nil {
		return f.fail("sync", err)
	}
	return nil
}

// flushLocked fsyncs the data file and retires lingering records, oldest
// first. Every lingering record was applied before it was queued, so one
// fsync covers them all. syncMu must be held.
func (f *File) flushLocked() (int, int64, error) {
	if err := f.file.Sync(); err != nil {
		return 0, 0, err
	}
	var bytes int64
	for i, r := range f.lingering {
		if err := f.store.Retire(r.id); err != nil {
			f.lingering = f.lingering[i:]
			return i, bytes, err
		}
		bytes += r.bytes
	}
	retired := len(f.lingering)
	f.lingering = nil
	f.unsynced = 0
	return retired, bytes, nil
}

// linger queues an applied record for retirement at the next sync and wakes
// the autosync daemon once enough bytes are unsynced.
func (f *File) linger(id uint64, bytes int64) {
	f.syncMu.Lock()
	f.lingering = append(f.lingering, lingerRecord{id: id, bytes: bytes})
	f.unsynced += bytes
	unsynced := f.unsynced
	f.syncMu.Unlock()

	if d := f.daemon.Load(); d != nil && d.maxBytes > 0 && unsynced >= d.maxBytes {
		d.kick()
	}
}

// Lingering returns the number of records waiting for Sync.
func (f *File) Lingering() int {
	f.syncMu.Lock()
	defer f.syncMu.Unlock()
	return len(f.lingering)
}

// MoveJournal moves the journal directory to dir, keeping pending records.
// It fails with ErrBusy while autosync runs or a transaction is open.
func (f *File) MoveJournal(dir string) error {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if f.store == nil {
		return ErrReadOnly
	}
	if f.daemon.Load() != nil || f.openTx > 0 {
		return ErrBusy
	}

	// Lingering records move along with the directory.
	if err := f.store.Move(dir); err != nil {
		return &PathError{Op: "move journal", Path: dir, Err: err}
	}
	f.logger.Info("journal moved", "dir", dir)
	return nil
}

func (f *File) txOpened() {
	f.stateMu.Lock()
	f.openTx++
	f.stateMu.Unlock()
}

func (f *File) txClosed() {
	f.stateMu.Lock()
	f.openTx--
	f.stateMu.Unlock()
}

// Close stops autosync, flushes lingering records and closes the journal and
// the file. Transactions in flight must finish first.
func (f *File) Close() error {
	f.stateMu.Lock()
	if f.closed {
		f.stateMu.Unlock()
		return ErrClosed
	}
	f.closed = true
	f.stateMu.Unlock()

	f.StopAutosync()

	var errs []error
	if f.Lingering() > 0 {
		if err := f.sync(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if f.store != nil {
		if err := f.store.Close(); err != nil {
			errs = append(errs, translateError(err))
		}
	}
	if err := f.file.Close(); err != nil {
		errs = append(errs, &PathError{Op: "close", Path: f.path, Err: err})
	}
	return errors.Join(errs...)
}
