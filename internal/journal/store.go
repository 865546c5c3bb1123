package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/hupe1980/walfile/internal/fs"
	"github.com/hupe1980/walfile/internal/lock"
)

const (
	lockName  = "lock"
	recordExt = ".jr"
	tmpExt    = ".tmp"
	dirPerm   = 0o700
	filePerm  = 0o600
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("journal store closed")

// ErrReadOnly is returned when allocating ids from a store opened without
// its counter.
var ErrReadOnly = errors.New("journal store opened read-only")

// fcntl locks are per process, so stores in the same process serialise
// counter updates here.
var counterMu sync.Mutex

// DefaultDir returns the conventional journal directory for the data file at
// path: <dir>/.<base>.jio
func DefaultDir(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".jio")
}

// RecordName returns the file name of record id.
func RecordName(id uint64) string {
	return fmt.Sprintf("%016x%s", id, recordExt)
}

// ParseRecordName returns the id encoded in a record file name.
func ParseRecordName(name string) (uint64, bool) {
	hex, ok := strings.CutSuffix(name, recordExt)
	if !ok || len(hex) != 16 {
		return 0, false
	}
	id, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Options configures a Store.
type Options struct {
	// Create creates the directory and the counter file when missing.
	// Without it the store must exist and NextID fails with ErrReadOnly.
	Create bool

	// Codec is the preferred body compression for appended records.
	Codec Codec
}

// Store is the directory of journal records belonging to one data file.
type Store struct {
	fsys  fs.FileSystem
	codec Codec

	mu      sync.Mutex
	dir     string
	counter fs.File // nil when opened read-only
	closed  bool
}

// Open opens the store at dir.
func Open(fsys fs.FileSystem, dir string, opts Options) (*Store, error) {
	if fsys == nil {
		fsys = fs.Default
	}

	s := &Store{fsys: fsys, dir: dir, codec: opts.Codec}

	if !opts.Create {
		info, err := fsys.Stat(dir)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s: not a directory", dir)
		}
		return s, nil
	}

	if err := fsys.MkdirAll(dir, dirPerm); err != nil {
		return nil, err
	}
	if err := fs.SyncDir(fsys, filepath.Dir(dir)); err != nil {
		return nil, err
	}

	counter, err := fsys.OpenFile(filepath.Join(dir, lockName), os.O_CREATE|os.O_RDWR, filePerm)
	if err != nil {
		return nil, err
	}
	s.counter = counter

	if err := s.recover(); err != nil {
		_ = counter.Close()
		return nil, err
	}
	return s, nil
}

// recover drops temp files left by interrupted appends and moves the counter
// past every surviving record, so a counter update lost in a crash never
// hands out an id that is still on disk.
func (s *Store) recover() error {
	counterMu.Lock()
	defer counterMu.Unlock()

	fd := s.counter.Fd()
	if err := lock.LockFile(fd); err != nil {
		return err
	}
	defer func() { _ = lock.UnlockFile(fd) }()

	entries, err := s.fsys.ReadDir(s.dir)
	if err != nil {
		return err
	}

	var maxID uint64
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, tmpExt) {
			if err := s.fsys.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			continue
		}
		if id, ok := ParseRecordName(name); ok {
			maxID = max(maxID, id)
		}
	}

	cur, err := s.readCounter()
	if err != nil {
		return err
	}
	if maxID > cur {
		return s.writeCounter(maxID)
	}
	return nil
}

func (s *Store) readCounter() (uint64, error) {
	var buf [8]byte
	n, err := s.counter.ReadAt(buf[:], 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	if n < len(buf) {
		// Fresh or torn counter; recover() rebuilds it from the records.
		return 0, nil
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (s *Store) writeCounter(v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := s.counter.WriteAt(buf[:], 0)
	return err
}

// Dir returns the current store directory.
func (s *Store) Dir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

func (s *Store) path(id uint64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filepath.Join(s.dir, RecordName(id))
}

// Path returns the path of record id.
func (s *Store) Path(id uint64) string { return s.path(id) }

// NextID allocates a transaction id, unique among all processes sharing the
// store.
func (s *Store) NextID() (uint64, error) {
	s.mu.Lock()
	closed, counter := s.closed, s.counter
	s.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	if counter == nil {
		return 0, ErrReadOnly
	}

	counterMu.Lock()
	defer counterMu.Unlock()

	fd := counter.Fd()
	if err := lock.LockFile(fd); err != nil {
		return 0, err
	}
	defer func() { _ = lock.UnlockFile(fd) }()

	cur, err := s.readCounter()
	if err != nil {
		return 0, err
	}
	next := cur + 1
	if err := s.writeCounter(next); err != nil {
		return 0, err
	}
	return next, nil
}

// Append writes rec durably: temp file, fsync, rename, directory fsync.
// It returns the encoded size of the record.
func (s *Store) Append(rec *Record) (int, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	r := *rec
	if r.Codec == CodecNone {
		r.Codec = s.codec
	}

	buf, err := Encode(&r)
	if err != nil {
		return 0, err
	}

	final := s.path(rec.ID)
	tmp := final + tmpExt

	if err := s.writeFile(tmp, buf); err != nil {
		_ = s.fsys.Remove(tmp)
		return 0, err
	}
	if err := s.fsys.Rename(tmp, final); err != nil {
		_ = s.fsys.Remove(tmp)
		return 0, err
	}
	if err := fs.SyncDir(s.fsys, filepath.Dir(final)); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (s *Store) writeFile(name string, buf []byte) (err error) {
	f, err := s.fsys.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if _, err := f.Write(buf); err != nil {
		return err
	}
	return f.Sync()
}

// MarkApplied durably flips the state byte of record id to StateApplied.
func (s *Store) MarkApplied(id uint64) (err error) {
	if s.isClosed() {
		return ErrClosed
	}
	f, err := s.fsys.OpenFile(s.path(id), os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if _, err := f.WriteAt([]byte{byte(StateApplied)}, stateOffset); err != nil {
		return err
	}
	return f.Sync()
}

// Remove unlinks record id. A missing record is not an error.
func (s *Store) Remove(id uint64) error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := s.fsys.Remove(s.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Retire marks record id applied and unlinks it.
func (s *Store) Retire(id uint64) error {
	if err := s.MarkApplied(id); err != nil {
		return err
	}
	return s.Remove(id)
}

// List returns the ids of all record files in ascending order.
func (s *Store) List() ([]uint64, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	entries, err := s.fsys.ReadDir(s.Dir())
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := ParseRecordName(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Size returns the on-disk size of record id.
func (s *Store) Size(id uint64) (int64, error) {
	info, err := s.fsys.Stat(s.path(id))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ReadRaw returns the undecoded bytes of record id.
func (s *Store) ReadRaw(id uint64) ([]byte, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	f, err := s.fsys.OpenFile(s.path(id), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

// Load reads and decodes record id.
func (s *Store) Load(id uint64) (*Record, error) {
	buf, err := s.ReadRaw(id)
	if err != nil {
		return nil, err
	}
	return Decode(buf)
}

// Move renames the store directory to dir, keeping unretired records.
func (s *Store) Move(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if dir == s.dir {
		return nil
	}
	if err := s.fsys.Rename(s.dir, dir); err != nil {
		return err
	}
	old := s.dir
	s.dir = dir
	if err := fs.SyncDir(s.fsys, filepath.Dir(old)); err != nil {
		return err
	}
	if filepath.Dir(dir) != filepath.Dir(old) {
		return fs.SyncDir(s.fsys, filepath.Dir(dir))
	}
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the counter file. Records stay on disk.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.counter != nil {
		return s.counter.Close()
	}
	return nil
}
