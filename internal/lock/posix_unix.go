//go:build unix

package lock

import (
	"io"
	"math"

	"github.com/hupe1980/walfile/internal/span"
	"golang.org/x/sys/unix"
)

func flockFor(typ int16, r span.Range) *unix.Flock_t {
	lk := &unix.Flock_t{
		Type:   typ,
		Whence: io.SeekStart,
		Start:  r.Off,
		Len:    r.Len,
	}
	// A zero length means "up to and past EOF" for fcntl.
	if r.Len == math.MaxInt64 {
		lk.Len = 0
	}
	return lk
}

func posixLock(fd uintptr, r span.Range) error {
	lk := flockFor(unix.F_WRLCK, r)
	for {
		err := unix.FcntlFlock(fd, unix.F_SETLKW, lk)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

func posixUnlock(fd uintptr, r span.Range) error {
	return unix.FcntlFlock(fd, unix.F_SETLK, flockFor(unix.F_UNLCK, r))
}

// LockFile takes an exclusive POSIX lock over the whole file behind fd,
// waiting as long as it takes.
func LockFile(fd uintptr) error {
	return posixLock(fd, WholeFile)
}

// UnlockFile drops the lock taken by LockFile.
func UnlockFile(fd uintptr) error {
	return posixUnlock(fd, WholeFile)
}
