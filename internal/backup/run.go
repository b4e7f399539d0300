package backup

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/newthinker/s3backup/internal/core"
)

// RunContext is fixed for the duration of one invocation. Every artifact of
// the run is named with Timestamp and written under TmpRoot.
type RunContext struct {
	ID        string
	Started   time.Time
	Timestamp string
	TmpRoot   string
}

// NewRunContext stamps a run at minute precision.
func NewRunContext(now time.Time, tmpRoot string) RunContext {
	return RunContext{
		ID:        uuid.NewString(),
		Started:   now,
		Timestamp: now.Format(core.TimestampLayout),
		TmpRoot:   tmpRoot,
	}
}

// ObjectName names an artifact of category c for this run.
func (rc RunContext) ObjectName(c core.Category, name string) string {
	return c.ObjectName(name, rc.Timestamp)
}

// ArtifactPath is where an object is written locally before upload.
func (rc RunContext) ArtifactPath(object string) string {
	return filepath.Join(rc.TmpRoot, object)
}
