package storage

import (
	"context"
	"io"
)

// ObjectStore abstracts the blob storage used for run archives and model
// artifacts. The S3 implementation talks to AWS or MinIO; the local
// implementation keeps everything under a base directory.
type ObjectStore interface {
	CreateBucket(ctx context.Context, bucket string) error

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	DeleteObjects(ctx context.Context, bucket, prefix string) error

	DownloadDir(ctx context.Context, bucket, prefix, dest string, overwrite bool) error

	UploadDir(ctx context.Context, bucket, prefix, src string) error
}

type Object struct {
	Name string
	Size int64
}
