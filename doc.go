// Package walfile provides transactional, crash-safe I/O over a regular file.
//
// Every transaction is written to a journal before it touches the file, so a
// crash at any point leaves either the old bytes, the new bytes, or a pending
// journal record that Check can replay.
//
// # Quick Start
//
//	f, _ := walfile.Open("data.bin", walfile.ReadWrite|walfile.Create, 0o600, 0)
//	defer f.Close()
//
//	tx := f.Begin(0)
//	defer tx.Release()
//	_ = tx.Write([]byte("hello"), 0)
//	_ = tx.Write([]byte("world"), 4096)
//	if err := tx.Commit(ctx); err != nil {
//	    // errors.Is(err, walfile.ErrAtomicityBroken): run Check with Cleanup
//	}
//
// Or with the scoped helper, which commits on success and always releases:
//
//	err := f.Transaction(ctx, 0, func(tx *walfile.Tx) error {
//	    return tx.Write(payload, off)
//	})
//
// # Commit Protocol
//
// A commit locks the affected byte ranges, captures their current bytes for
// rollback, writes a journal record (temp file, fsync, rename, directory
// fsync), applies the writes, fsyncs the file and retires the record.
//
// Failures before the writes are applied are reported as ErrAtomicityPreserved
// and leave the file untouched. Failures after that point are reported as
// ErrAtomicityBroken; the record stays in the journal until Check repairs the
// file.
//
// # Journal Flags
//
//   - NoLock: skip byte-range locking (single writer)
//   - NoRollback: do not capture pre-images
//   - Linger: defer the fsync to Sync or Autosync
//
// Lingering records stay in the journal until the next Sync, which makes a
// burst of small commits cost one fsync:
//
//	f, _ := walfile.Open(path, walfile.ReadWrite, 0o600, walfile.Linger)
//	_ = f.Autosync(100*time.Millisecond, 4<<20)
//
// # Recovery
//
//	report, err := walfile.Check(ctx, "data.bin", walfile.Cleanup)
//	// report.InProgress records were reapplied
//
// Check can verify records in parallel (WithWorkers), bound its memory
// (WithMemoryLimit), throttle repair writes (WithIOLimit) and copy records it
// cannot repair to a blob store (WithQuarantine).
//
// Run Check before opening the file, with no File open on it in any process.
// Repair opens and closes its own descriptor on the data file, and closing any
// descriptor drops every POSIX record lock the process holds on that file,
// including the commit locks of an open File.
//
// # Journal Layout
//
// The journal of "dir/name" lives in "dir/.name.jio" unless WithJournalDir is
// given. It holds a "lock" file with the transaction counter and one
// "%016x.jr" file per pending transaction.
package walfile
