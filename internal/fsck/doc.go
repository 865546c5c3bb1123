// Package fsck checks and repairs the journal of a data file after a crash.
//
// Every record in the journal is classified as one of:
//
//   - invalid: not a record (empty file, wrong magic or version)
//   - broken: truncated or internally inconsistent
//   - corrupt: checksum mismatch
//   - complete: intact and marked applied
//   - in-progress: intact and still pending
//
// With Cleanup set, in-progress records are written to the data file again
// (in transaction id order, fsynced after each) and every record is removed
// afterwards; broken, corrupt and invalid records can be copied to a
// quarantine store first. Without Cleanup nothing is modified.
//
// Records are read and verified in parallel batches bounded by the resource
// controller's worker count and memory budget, then applied strictly in order.
package fsck
