package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "s3backup [--only_db] [--only_files] [--config=<path>] [--debug]",
	Short: "Back up databases and directories to an S3 bucket",
	Long: `s3backup dumps PostgreSQL and MongoDB databases, archives directories and
loose files, uploads every archive to an S3-compatible bucket and prunes
objects older than the retention window.

Flags are switches of the form -name or --name[=value]:
  --only_db        back up databases only
  --only_files     back up directories and file groups only
  --config=<path>  configuration file
  --debug          development logging

Without --config, settings come from built-in defaults and environment
variables named after the config keys (STORAGE_BUCKET, STORAGE_S3_ACCESS_KEY,
STORAGE_S3_SECRET_KEY, ...). At least the bucket and credentials must be set
one way or the other.`,
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: true,
	SilenceErrors:      true,
	SilenceUsage:       true,
	RunE:               runBackup,
}

// reportedError marks failures already explained to the operator.
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error { return e.error }

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
