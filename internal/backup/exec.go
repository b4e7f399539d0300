package backup

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/newthinker/s3backup/internal/core"
)

// Executor runs a shell script built from the configured tool commands.
type Executor interface {
	Run(ctx context.Context, script string) error
}

// ShellExecutor runs scripts through "sh -c" so tool pipelines and
// redirections behave as they would in a terminal.
type ShellExecutor struct {
	Shell string
}

// NewShellExecutor returns an executor using /bin/sh.
func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{Shell: "/bin/sh"}
}

// Run blocks until the script exits. A non-zero exit is reported as
// core.ErrToolFailed carrying the script's stderr.
func (e *ShellExecutor) Run(ctx context.Context, script string) error {
	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, e.Shell, "-c", script)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return core.WrapError(core.ErrToolFailed, err)
		}
		return core.WrapError(core.ErrToolFailed, fmt.Errorf("%w: %s", err, msg))
	}
	return nil
}
