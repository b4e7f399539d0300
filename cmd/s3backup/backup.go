package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/s3backup/internal/backup"
	"github.com/newthinker/s3backup/internal/config"
	"github.com/newthinker/s3backup/internal/core"
	"github.com/newthinker/s3backup/internal/flags"
	"github.com/newthinker/s3backup/internal/logger"
	"github.com/newthinker/s3backup/internal/storage"
)

func runBackup(cmd *cobra.Command, args []string) error {
	f := flags.Parse(args)
	if f.Has("help") || f.Has("h") {
		return cmd.Help()
	}

	// Load config; without a file, defaults plus environment overrides apply
	cfgFile := f.Lookup("config", "c")
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(f.Has("debug") || cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync()

	if cfgFile == "" {
		log.Warn("no config file specified, using defaults and environment")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	tmpRoot, err := cfg.TmpRoot()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := newService(cfg)
	if err != nil {
		return fmt.Errorf("creating storage client: %w", err)
	}

	bucket, err := storage.Resolve(ctx, svc, cfg.Storage.Bucket)
	if err != nil {
		if errors.Is(err, core.ErrBucketCreate) {
			fmt.Fprintf(cmd.ErrOrStderr(), "There was a problem creating the bucket: %v\n", err)
			return reportedError{err}
		}
		return err
	}

	runner := backup.NewRunner(cfg, f, bucket, log)
	report, runErr := runner.Run(ctx, tmpRoot)

	if pushErr := runner.Metrics().Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); pushErr != nil {
		log.Warn("metrics push failed", zap.Error(pushErr))
	}
	if runErr != nil {
		return runErr
	}

	log.Debug("run report",
		zap.String("run_id", report.RunID),
		zap.Strings("uploaded", report.Uploaded),
		zap.Strings("pruned", report.Pruned),
	)
	return nil
}

func newService(cfg *config.Config) (storage.Service, error) {
	switch cfg.Storage.Type {
	case config.StorageLocalFS:
		return storage.NewLocalFS(cfg.Storage.LocalFS.Path)
	default:
		s3cfg := cfg.Storage.S3
		return storage.NewS3(storage.S3Config{
			Host:      s3cfg.Host,
			Region:    s3cfg.Region,
			AccessKey: s3cfg.AccessKey,
			SecretKey: s3cfg.SecretKey,
			UseSSL:    s3cfg.UseSSL,
			Prefix:    s3cfg.Prefix,
		})
	}
}
