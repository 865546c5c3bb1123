// Package blobstore provides quarantine sinks for unrecoverable journal records.
//
// When the consistency checker cleans up a journal it can copy broken,
// corrupt or invalid records to a Store before deleting them, so they remain
// available for forensics. Names look like "<prefix>/<tid>.<class>.jr".
//
// # Built-in Implementations
//
//   - LocalStore: a local directory, written with temp file + rename
//   - MemoryStore: in-memory, for tests
//   - s3.Store: Amazon S3 (aws-sdk-go-v2)
//   - minio.Store: MinIO and other S3-compatible storage
//
// # Custom Implementations
//
//	type Store interface {
//	    Put(ctx, name, data) error
//	    Get(ctx, name) ([]byte, error)
//	    List(ctx, prefix) ([]string, error)
//	    Delete(ctx, name) error
//	}
package blobstore
