package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultKillDelay is how long a cancelled child gets to exit after the
// interrupt before it is killed.
const DefaultKillDelay = 5 * time.Second

// LocalExecutor runs the executable directly on the host.
// Standard streams are handed to the child as-is, so an *os.File stream
// is inherited without any copying.
type LocalExecutor struct {
	logger    *zap.Logger
	killDelay time.Duration
}

// NewLocalExecutor creates a local process executor.
func NewLocalExecutor(logger *zap.Logger) *LocalExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalExecutor{
		logger:    logger.Named("local"),
		killDelay: DefaultKillDelay,
	}
}

// Execute starts the executable in inv.Dir and waits for it.
func (le *LocalExecutor) Execute(ctx context.Context, inv *Invocation) (Result, error) {
	if err := ValidateDir(inv.Dir); err != nil {
		return Result{}, err
	}

	le.logger.Debug("exec",
		zap.String("path", inv.Path),
		zap.Strings("args", inv.Args),
		zap.String("dir", inv.Dir))

	cmd := exec.CommandContext(ctx, inv.Path, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Env
	cmd.Stdin = inv.Stdin
	cmd.Stdout = inv.Stdout
	cmd.Stderr = inv.Stderr

	// Interrupt first so align can flush its log; kill after killDelay.
	cmd.Cancel = func() error {
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = le.killDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, classifyStartError(inv.Path, err)
	}

	err := cmd.Wait()
	res := Result{Duration: time.Since(start)}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitStatus(exitErr)
	} else if err != nil && ctx.Err() == nil {
		le.logger.Warn("wait error", zap.Error(err))
		return res, fmt.Errorf("wait %s: %w", inv.Path, err)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("%s stopped: %w", inv.Path, ctxErr)
	}

	le.logger.Debug("exited",
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// classifyStartError maps a failed Start to ErrNotFound or ErrNotExecutable.
func classifyStartError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.ENOEXEC):
		return fmt.Errorf("%w: %s: %w", ErrNotExecutable, path, err)
	default:
		return fmt.Errorf("start %s: %w", path, err)
	}
}

// exitStatus returns the child's exit code, or 128+signal if it was killed
// by a signal, the way a POSIX shell reports it.
func exitStatus(exitErr *exec.ExitError) int {
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return exitErr.ExitCode()
}
