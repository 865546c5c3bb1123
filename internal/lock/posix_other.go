//go:build !unix

package lock

import "github.com/hupe1980/walfile/internal/span"

// Without fcntl only the in-process layer protects commits.

func posixLock(uintptr, span.Range) error   { return nil }
func posixUnlock(uintptr, span.Range) error { return nil }

// LockFile is a no-op on platforms without POSIX record locks.
func LockFile(uintptr) error { return nil }

// UnlockFile is a no-op on platforms without POSIX record locks.
func UnlockFile(uintptr) error { return nil }
