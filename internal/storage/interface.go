// internal/storage/interface.go
package storage

import (
	"context"
	"io"

	"github.com/newthinker/s3backup/internal/core"
)

// Service locates and creates buckets on an object store
type Service interface {
	// FindBucket returns the named bucket and whether it exists
	FindBucket(ctx context.Context, name string) (Bucket, bool, error)

	// CreateBucket creates the named bucket
	CreateBucket(ctx context.Context, name string) (Bucket, error)
}

// Bucket is a named container of archive objects
type Bucket interface {
	// Name returns the bucket name
	Name() string

	// Put stores content under key, replacing any existing object
	Put(ctx context.Context, key string, content io.Reader) error

	// List returns every object in the bucket
	List(ctx context.Context) ([]core.Object, error)

	// Delete removes the object at key
	Delete(ctx context.Context, key string) error
}
