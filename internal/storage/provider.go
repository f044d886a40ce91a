package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

type Object struct {
	Name string
	Size int64
}

// Provider is the object storage used for pipeline resources (generation time
// distributions) and case table snapshots.
type Provider interface {
	CreateBucket(ctx context.Context, bucket string) error

	// GetObject returns ErrObjectNotFound (wrapped) if the key does not exist.
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)
}
