package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/newthinker/s3backup/internal/core"
)

// UploadFile stores the full contents of localPath in bucket under key and
// returns the number of bytes sent.
func UploadFile(ctx context.Context, bucket Bucket, key, localPath string) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", localPath, err)
	}

	if err := bucket.Put(ctx, key, f); err != nil {
		return 0, core.WrapError(core.ErrUploadFailed, fmt.Errorf("%s: %w", key, err))
	}
	return info.Size(), nil
}
