// Package minio provides a quarantine sink for MinIO and S3-compatible storage.
//
// It uses the official MinIO Go client, so it works against MinIO, Ceph,
// SeaweedFS, Garage and similar systems without AWS dependencies.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "journals", "quarantine/")
//	report, err := walfile.Check(ctx, path, walfile.Cleanup,
//	    walfile.WithQuarantine(store, filepath.Base(path)))
package minio
