// Package s3 provides an Amazon S3 quarantine sink implementing blobstore.Store.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("quarantine/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
//	report, err := walfile.Check(ctx, "data.bin", walfile.Cleanup,
//	    walfile.WithQuarantine(store, "data.bin"))
//
// Small records are written with a single PutObject carrying a CRC32C
// checksum; records of at least UploadConfig.PartSize bytes go through the
// multipart uploader.
package s3
