// Package executor implements the strategies used to run the align binary:
// Local (a child process on this host) and Docker (an ephemeral container
// with the invocation root bind-mounted).
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Shell-compatible exit codes for failures that happen before or around
// the child process, rather than inside it.
const (
	ExitFailure       = 1
	ExitUsage         = 2
	ExitTimeout       = 124
	ExitNotExecutable = 126
	ExitNotFound      = 127
	ExitInterrupted   = 130
)

var (
	// ErrNotFound means the executable does not exist.
	ErrNotFound = errors.New("executable not found")
	// ErrNotExecutable means the executable exists but cannot be run.
	ErrNotExecutable = errors.New("executable cannot be run")
	// ErrBinDir means the binary directory is missing or unusable.
	ErrBinDir = errors.New("binary directory unavailable")
)

// Invocation describes one run of the external executable.
type Invocation struct {
	Path string   // Executable path on the host
	Args []string // Arguments, without the executable itself
	Dir  string   // Working directory on the host
	Env  []string // nil inherits the launcher's environment

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Result is the outcome of a run that got as far as starting the child.
type Result struct {
	ExitCode int
	Duration time.Duration
}

// Executor is the interface for execution strategies.
type Executor interface {
	// Execute runs inv to completion. A child that runs and fails is
	// reported through Result.ExitCode; the error is reserved for failures
	// to start, supervise, or finish in time.
	Execute(ctx context.Context, inv *Invocation) (Result, error)
}

// ValidateDir checks that the binary directory exists and is a directory.
func ValidateDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBinDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrBinDir, dir)
	}
	return nil
}

// ExitCodeFor maps an Execute error to the status the launcher exits with.
func ExitCodeFor(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotFound):
		return ExitNotFound
	case errors.Is(err, ErrNotExecutable):
		return ExitNotExecutable
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	default:
		return ExitFailure
	}
}
