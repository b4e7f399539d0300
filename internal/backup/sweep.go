package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/newthinker/s3backup/internal/core"
	"github.com/newthinker/s3backup/internal/storage"
)

const secondsPerDay = 86400

// Cutoff returns the unix second before which objects are expired.
func Cutoff(now time.Time, retentionDays int) int64 {
	return now.Unix() - int64(retentionDays)*secondsPerDay
}

// Sweep deletes every object in bucket last modified strictly before the
// cutoff and returns the deleted keys. Objects from any run are eligible.
// A retention of 0 expires everything older than now; negative values are
// rejected by config validation and skip the sweep here.
func Sweep(ctx context.Context, bucket storage.Bucket, retentionDays int, now time.Time) ([]string, error) {
	if retentionDays < 0 {
		return nil, nil
	}
	cutoff := Cutoff(now, retentionDays)

	objects, err := bucket.List(ctx)
	if err != nil {
		return nil, core.WrapError(core.ErrSweepFailed, fmt.Errorf("listing %s: %w", bucket.Name(), err))
	}

	var deleted []string
	for _, obj := range objects {
		if obj.LastModified.Unix() >= cutoff {
			continue
		}
		if err := bucket.Delete(ctx, obj.Key); err != nil {
			return deleted, core.WrapError(core.ErrSweepFailed, fmt.Errorf("deleting %s: %w", obj.Key, err))
		}
		deleted = append(deleted, obj.Key)
	}
	return deleted, nil
}
