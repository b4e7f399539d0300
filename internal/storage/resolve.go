package storage

import (
	"context"

	"github.com/newthinker/s3backup/internal/core"
)

// Resolve returns the named bucket, creating it when it does not exist yet.
// A failed creation is reported as core.ErrBucketCreate.
func Resolve(ctx context.Context, svc Service, name string) (Bucket, error) {
	bucket, ok, err := svc.FindBucket(ctx, name)
	if err != nil {
		return nil, core.WrapError(core.ErrBucketLookup, err)
	}
	if ok {
		return bucket, nil
	}

	bucket, err = svc.CreateBucket(ctx, name)
	if err != nil {
		return nil, core.WrapError(core.ErrBucketCreate, err)
	}
	return bucket, nil
}
