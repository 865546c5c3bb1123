package s3

import (
	"context"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hupe1980/walfile/blobstore"
)

// Store implements blobstore.Store on Amazon S3.
type Store struct {
	client   Client
	bucket   string
	prefix   string
	upload   UploadConfig
	uploader *manager.Uploader
}

// Option configures a Store.
type Option func(*settings)

type settings struct {
	prefix string
	region string
	upload UploadConfig
}

// WithPrefix sets the key prefix (e.g. "quarantine/").
func WithPrefix(prefix string) Option {
	return func(s *settings) { s.prefix = prefix }
}

// WithRegion overrides the region from the default AWS config chain.
func WithRegion(region string) Option {
	return func(s *settings) { s.region = region }
}

// WithUploadConfig overrides the upload settings.
func WithUploadConfig(cfg UploadConfig) Option {
	return func(s *settings) { s.upload = cfg }
}

func applyOptions(opts []Option) settings {
	s := settings{upload: DefaultUploadConfig()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// New creates a Store using the default AWS credential and config chain.
func New(ctx context.Context, bucket string, opts ...Option) (*Store, error) {
	s := applyOptions(opts)

	var loadOpts []func(*config.LoadOptions) error
	if s.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(s.region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	return newStore(s3.NewFromConfig(cfg), bucket, s), nil
}

// NewStore creates a Store on an existing client.
// rootPrefix is prepended to all keys (e.g. "my-app/").
func NewStore(client Client, bucket, rootPrefix string, opts ...Option) *Store {
	s := applyOptions(opts)
	s.prefix = rootPrefix
	return newStore(client, bucket, s)
}

func newStore(client Client, bucket string, s settings) *Store {
	return &Store{
		client:   client,
		bucket:   bucket,
		prefix:   s.prefix,
		upload:   s.upload,
		uploader: newUploader(client, s.upload),
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Put writes a blob. S3 objects become visible only once fully written.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	key := s.key(name)
	if s.upload.PartSize > 0 && int64(len(data)) >= s.upload.PartSize {
		return putMultipart(ctx, s.uploader, s.bucket, key, data)
	}
	return putWithChecksum(ctx, s.client, s.bucket, key, data)
}

// Get returns the contents of a blob.
func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, blobstore.ErrNotFound
		}
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(resp.Body)
}

// Delete removes a blob. S3 treats deleting a missing key as success.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// List returns all blob names with the given prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	return listObjects(ctx, s.client, s.bucket, s.key(prefix), s.prefix)
}

var _ blobstore.Store = (*Store)(nil)
