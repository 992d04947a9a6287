// Package launcher turns "<input> <output>" into a run of the external align
// binary: it re-anchors the caller's paths to the binary directory, builds
// the argument vector and hands it to an executor.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"alignrun/internal/audit"
	"alignrun/internal/config"
	"alignrun/internal/executor"

	"go.uber.org/zap"
)

// UsageMessage is written to stderr, verbatim, when fewer than two
// positional arguments are given.
const UsageMessage = "2 arguments require\n"

// FilterFlag is appended to the align arguments when filtering is enabled.
const FilterFlag = "--filter"

// ErrUsage is returned when fewer than two positional arguments are given.
var ErrUsage = errors.New("2 arguments require")

// ParseArgs returns the input and output paths. Arguments after the first
// two are ignored.
func ParseArgs(args []string) (input, output string, err error) {
	if len(args) < 2 {
		return "", "", ErrUsage
	}
	return args[0], args[1], nil
}

// Reanchor rewrites a path relative to the invocation root so that it
// resolves to the same file from a directory whose route back to the root
// is back (e.g. "../.." for build/bin). Absolute paths are returned as-is.
// An empty path becomes back itself and a trailing separator is kept, so
// "" and "dir/" still name directories.
func Reanchor(back, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if path == "" {
		return back + string(filepath.Separator)
	}
	joined := filepath.Join(back, path)
	if os.IsPathSeparator(path[len(path)-1]) {
		joined += string(filepath.Separator)
	}
	return joined
}

// Options configures a Launcher.
type Options struct {
	Config   *config.Config
	Executor executor.Executor
	Audit    *audit.Logger // nil disables auditing
	Logger   *zap.Logger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Launcher runs align for one input/output pair at a time.
// It keeps no state between runs.
type Launcher struct {
	cfg    *config.Config
	exec   executor.Executor
	audit  *audit.Logger
	logger *zap.Logger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// New creates a Launcher.
func New(opts Options) (*Launcher, error) {
	if opts.Config == nil {
		return nil, errors.New("launcher: config is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("launcher: executor is required")
	}

	auditLog := opts.Audit
	if auditLog == nil {
		var err error
		if auditLog, err = audit.NewLogger(config.AuditConfig{}); err != nil {
			return nil, err
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Launcher{
		cfg:    opts.Config,
		exec:   opts.Executor,
		audit:  auditLog,
		logger: logger.Named("launcher"),
		stdin:  opts.Stdin,
		stdout: opts.Stdout,
		stderr: opts.Stderr,
	}, nil
}

// Build constructs the invocation for one input/output pair:
//
//	<root>/<bin_dir>/<executable> <in> <out> <log> [--filter] [extra...]
//
// run from <root>/<bin_dir>, with in, out and log re-anchored.
func (l *Launcher) Build(input, output string) (*executor.Invocation, error) {
	root, err := filepath.Abs(l.cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", l.cfg.Root, err)
	}

	binDir := l.cfg.BinDir
	if !filepath.IsAbs(binDir) {
		binDir = filepath.Join(root, binDir)
	}
	binDir = filepath.Clean(binDir)

	back, err := filepath.Rel(binDir, root)
	if err != nil {
		return nil, fmt.Errorf("%w: no relative route from %s back to %s: %w", executor.ErrBinDir, binDir, root, err)
	}

	args := []string{
		Reanchor(back, input),
		Reanchor(back, output),
		Reanchor(back, l.cfg.LogFile),
	}
	if l.cfg.Filter {
		args = append(args, FilterFlag)
	}
	args = append(args, l.cfg.ExtraArgs...)

	return &executor.Invocation{
		Path:   filepath.Join(binDir, l.cfg.Executable),
		Args:   args,
		Dir:    binDir,
		Stdin:  l.stdin,
		Stdout: l.stdout,
		Stderr: l.stderr,
	}, nil
}

// Run builds the invocation, executes it synchronously and records the
// outcome in the audit log.
func (l *Launcher) Run(ctx context.Context, input, output string) (executor.Result, error) {
	inv, err := l.Build(input, output)
	if err != nil {
		return executor.Result{}, err
	}

	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	l.logger.Debug("launching",
		zap.String("executor", l.cfg.Executor),
		zap.String("path", inv.Path),
		zap.Strings("args", inv.Args),
		zap.String("dir", inv.Dir))

	res, runErr := l.exec.Execute(ctx, inv)

	entry := audit.Entry{
		Executor: l.cfg.Executor,
		Command:  inv.Path,
		Args:     inv.Args,
		Dir:      inv.Dir,
		ExitCode: res.ExitCode,
		Duration: float64(res.Duration) / float64(time.Millisecond),
	}
	if runErr != nil {
		entry.ExitCode = executor.ExitCodeFor(runErr)
		entry.Error = runErr.Error()
	}
	if err := l.audit.Log(entry); err != nil {
		l.logger.Warn("audit log write failed", zap.Error(err))
	}

	if runErr != nil {
		return res, runErr
	}

	l.logger.Debug("align finished",
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration))
	return res, nil
}
