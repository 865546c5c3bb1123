// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with positional and offset-based read/write, truncate,
//     sync and access to the descriptor (needed for advisory locks)
//   - [FileSystem]: filesystem operations (open, remove, rename, etc.)
//
// # Implementations
//
//   - [LocalFS]: Production implementation using standard os package
//   - [FaultyFS]: Test utility for fault injection (simulate I/O errors and crashes)
//
// # Usage
//
// Production code should use fs.Default (which is [LocalFS]):
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
//
// Tests can inject [FaultyFS] to simulate a crash between the journal flush and
// the application of a transaction to the live file:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("data.bin", fs.Fault{FailAfterBytes: 0})
//	// open the journaled file through ffs and commit
//
// # Design Notes
//
// This package intentionally does NOT include context.Context parameters.
// Filesystem operations are non-interruptible at the syscall level.
package fs
