package walfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/hupe1980/walfile/internal/journal"
	"github.com/hupe1980/walfile/internal/resource"
)

var (
	// ErrInvalidArgument is returned for negative lengths, offsets or intervals.
	ErrInvalidArgument = errors.New("walfile: invalid argument")

	// ErrNotFound is returned when a file or journal does not exist.
	ErrNotFound = errors.New("walfile: not found")

	// ErrPermissionDenied is returned when the OS refuses access.
	ErrPermissionDenied = errors.New("walfile: permission denied")

	// ErrIO is returned for any other OS-level I/O failure.
	ErrIO = errors.New("walfile: i/o error")

	// ErrAtomicityPreserved marks a failed commit or rollback that left the
	// file untouched.
	ErrAtomicityPreserved = errors.New("walfile: transaction failed, atomic warranties preserved")

	// ErrAtomicityBroken marks a failed commit or rollback that may have left
	// the file partially written. Run Check with Cleanup before using the file.
	ErrAtomicityBroken = errors.New("walfile: transaction failed, atomic warranties broken")

	// ErrOutOfMemory is returned when the check memory budget is exhausted.
	ErrOutOfMemory = errors.New("walfile: out of memory")

	// ErrBusy is returned by MoveJournal while transactions or autosync run.
	ErrBusy = errors.New("walfile: busy")

	// ErrAlreadyRunning is returned when starting a second autosync daemon.
	ErrAlreadyRunning = errors.New("walfile: autosync already running")

	// ErrReadOnly is returned for writes on a file opened read-only.
	ErrReadOnly = errors.New("walfile: file is read-only")

	// ErrNotCommitted is returned when rolling back a transaction that is not
	// committed.
	ErrNotCommitted = errors.New("walfile: transaction not committed")

	// ErrCommitted is returned when modifying or recommitting a committed
	// transaction.
	ErrCommitted = errors.New("walfile: transaction already committed")

	// ErrReleased is returned by operations on a released transaction.
	ErrReleased = errors.New("walfile: transaction released")

	// ErrNoPreImages is returned when rolling back a transaction committed
	// with NoRollback.
	ErrNoPreImages = errors.New("walfile: no pre-images to roll back")

	// ErrClosed is returned by operations on a closed File.
	ErrClosed = errors.New("walfile: file closed")
)

// TxError reports a failed commit or rollback.
//
// It matches ErrAtomicityBroken when Broken is set, ErrAtomicityPreserved
// otherwise, and the underlying cause via errors.Is/As.
type TxError struct {
	Op     string // "commit" or "rollback"
	Broken bool
	Err    error
}

func (e *TxError) Error() string {
	warranties := "preserved"
	if e.Broken {
		warranties = "broken"
	}
	return fmt.Sprintf("walfile: transaction error on %s (atomic warranties %s): %v", e.Op, warranties, e.Err)
}

func (e *TxError) Unwrap() []error {
	tier := ErrAtomicityPreserved
	if e.Broken {
		tier = ErrAtomicityBroken
	}
	return []error{tier, e.Err}
}

func preserved(op string, err error) error {
	return &TxError{Op: op, Err: translateError(err)}
}

func broken(op string, err error) error {
	return &TxError{Op: op, Broken: true, Err: translateError(err)}
}

// PathError records a failed file operation and classifies its cause as
// ErrNotFound, ErrPermissionDenied, ErrInvalidArgument or ErrIO.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return "walfile: " + e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *PathError) Unwrap() []error {
	return []error{classify(e.Err), e.Err}
}

func classify(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, fs.ErrPermission), errors.Is(err, ErrPermissionDenied):
		return ErrPermissionDenied
	case errors.Is(err, fs.ErrInvalid), errors.Is(err, ErrInvalidArgument):
		return ErrInvalidArgument
	default:
		return ErrIO
	}
}

// translateError maps errors of the internal packages onto the public
// sentinels, keeping the original error in the chain.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Already public.
	for _, sentinel := range []error{
		ErrInvalidArgument, ErrNotFound, ErrPermissionDenied, ErrIO,
		ErrAtomicityPreserved, ErrAtomicityBroken, ErrOutOfMemory, ErrBusy,
		ErrAlreadyRunning, ErrReadOnly, ErrNotCommitted, ErrCommitted,
		ErrReleased, ErrNoPreImages, ErrClosed,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	switch {
	case errors.Is(err, resource.ErrMemoryLimitExceeded):
		return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	case errors.Is(err, journal.ErrClosed), errors.Is(err, fs.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, journal.ErrReadOnly):
		return fmt.Errorf("%w: %w", ErrReadOnly, err)
	}

	return fmt.Errorf("%w: %w", classify(err), err)
}
