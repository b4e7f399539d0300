package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/s3backup/internal/config"
	"github.com/newthinker/s3backup/internal/core"
	"github.com/newthinker/s3backup/internal/flags"
	"github.com/newthinker/s3backup/internal/logger"
	"github.com/newthinker/s3backup/internal/metrics"
	"github.com/newthinker/s3backup/internal/storage"
)

// Report summarises a completed run.
type Report struct {
	RunID     string
	Timestamp string
	Uploaded  []string
	Pruned    []string
	Duration  time.Duration
}

// Runner drives one backup invocation end to end
type Runner struct {
	cfg       *config.Config
	flags     flags.Flags
	bucket    storage.Bucket
	logger    *zap.Logger
	exec      Executor
	metrics   *metrics.Registry
	producers []Producer
	now       func() time.Time
}

// NewRunner creates a runner with the default shell executor and producers.
func NewRunner(cfg *config.Config, f flags.Flags, bucket storage.Bucket, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		cfg:       cfg,
		flags:     f,
		bucket:    bucket,
		logger:    log,
		exec:      NewShellExecutor(),
		metrics:   metrics.NewRegistry(),
		producers: Producers(cfg),
		now:       time.Now,
	}
}

// SetExecutor replaces the tool executor
func (r *Runner) SetExecutor(e Executor) {
	r.exec = e
}

// SetMetrics replaces the metrics registry
func (r *Runner) SetMetrics(m *metrics.Registry) {
	r.metrics = m
}

// SetClock replaces the time source
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// Metrics returns the registry the run records into
func (r *Runner) Metrics() *metrics.Registry {
	return r.metrics
}

// Run creates tmpRoot, runs every enabled producer in order, removes tmpRoot
// and finally sweeps expired objects. On error the temporary tree is left
// in place.
func (r *Runner) Run(ctx context.Context, tmpRoot string) (*Report, error) {
	rc := NewRunContext(r.now(), tmpRoot)
	log := logger.ForRun(r.logger, rc.ID, rc.Timestamp)
	report := &Report{RunID: rc.ID, Timestamp: rc.Timestamp}

	log.Info("starting backup run",
		zap.String("bucket", r.bucket.Name()),
		zap.String("tmp_root", tmpRoot),
		zap.Bool("only_db", r.flags.OnlyDB),
		zap.Bool("only_files", r.flags.OnlyFiles),
	)

	if err := os.MkdirAll(tmpRoot, 0755); err != nil {
		return report, fmt.Errorf("creating temp root: %w", err)
	}

	for _, p := range r.producers {
		cat := p.Category()
		if !p.Enabled(r.flags) {
			log.Debug("skipping category", zap.String("category", cat.Name))
			continue
		}

		for _, job := range p.Jobs(rc) {
			if err := r.runJob(ctx, log, cat, job); err != nil {
				return report, fmt.Errorf("%s %s: %w", cat.Name, job.Name, err)
			}
			report.Uploaded = append(report.Uploaded, job.Object)
		}

		if f, ok := p.(Finisher); ok {
			if err := f.Finish(rc); err != nil {
				return report, fmt.Errorf("%s cleanup: %w", cat.Name, err)
			}
		}
	}

	if err := os.RemoveAll(tmpRoot); err != nil {
		return report, fmt.Errorf("removing temp root: %w", err)
	}

	pruned, err := Sweep(ctx, r.bucket, r.cfg.RetentionDays, r.now())
	report.Pruned = pruned
	r.metrics.RecordPruned(len(pruned))
	if err != nil {
		return report, err
	}
	for _, key := range pruned {
		log.Info("pruned expired object", zap.String("object", key))
	}

	finished := r.now()
	report.Duration = finished.Sub(rc.Started)
	r.metrics.RecordRun(report.Duration.Seconds(), finished.Unix())

	log.Info("backup run complete",
		zap.Int("uploaded", len(report.Uploaded)),
		zap.Int("pruned", len(report.Pruned)),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (r *Runner) runJob(ctx context.Context, log *zap.Logger, cat core.Category, job Job) error {
	log = log.With(zap.String("category", cat.Name), zap.String("object", job.Object))

	if job.Prepare != nil {
		if err := job.Prepare(); err != nil {
			return fmt.Errorf("preparing scratch: %w", err)
		}
	}

	if err := r.exec.Run(ctx, job.Script); err != nil {
		toolErr := errors.Is(err, core.ErrToolFailed)
		if toolErr {
			r.metrics.RecordToolFailure(cat.Name)
		}
		if r.cfg.StrictTools || !toolErr {
			r.metrics.RecordArchiveFailure(cat.Name)
			return err
		}
		// Tool exit status is advisory; upload whatever was written.
		log.Warn("tool exited with error", zap.Error(err))
	}

	size, err := storage.UploadFile(ctx, r.bucket, job.Object, job.Artifact)
	if err != nil {
		r.metrics.RecordArchiveFailure(cat.Name)
		return err
	}
	r.metrics.RecordArchive(cat.Name, size)
	log.Info("uploaded archive", zap.Int64("bytes", size))

	if job.Scratch != "" {
		if err := os.RemoveAll(job.Scratch); err != nil {
			return fmt.Errorf("removing scratch: %w", err)
		}
	}
	return nil
}
