// Package cli implements the alignrun command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"alignrun/internal/audit"
	"alignrun/internal/config"
	"alignrun/internal/executor"
	"alignrun/internal/launcher"
	"alignrun/internal/logging"
	"alignrun/internal/watch"

	"github.com/docker/docker/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is set at build time with -ldflags "-X alignrun/internal/cli.Version=...".
var Version = "dev"

// flagError marks command-line parsing failures, which exit like usage errors.
type flagError struct{ error }

func (e flagError) Unwrap() error { return e.error }

// app holds the state of one command-line invocation.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	v        *viper.Viper
	cfgFile  string
	noFilter bool
	verbose  bool
	watch    bool

	exitCode int
}

// Execute runs the alignrun command with args (without the program name)
// and returns the process exit status.
func Execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return ExecuteContext(context.Background(), args, stdin, stdout, stderr)
}

// ExecuteContext is Execute with a parent context. Cancelling ctx stops a
// running align, or ends watch mode.
func ExecuteContext(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		v:      config.NewViper(),
	}

	cmd, err := a.command()
	if err != nil {
		fmt.Fprintf(stderr, "alignrun: %v\n", err)
		return executor.ExitFailure
	}
	cmd.SetArgs(args)

	err = cmd.ExecuteContext(ctx)

	var fe flagError
	switch {
	case err == nil:
		return a.exitCode
	case errors.Is(err, launcher.ErrUsage):
		fmt.Fprint(stderr, launcher.UsageMessage)
		return executor.ExitUsage
	case errors.As(err, &fe):
		fmt.Fprintf(stderr, "alignrun: %v\n", err)
		return executor.ExitUsage
	default:
		fmt.Fprintf(stderr, "alignrun: %v\n", err)
		return executor.ExitCodeFor(err)
	}
}

func (a *app) command() (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "alignrun [flags] <inputFile> <outputFile>",
		Short: "Run the align binary from build/bin on an input/output pair",
		Long: `alignrun launches build/bin/align with the given input and output paths,
a log path (log.txt) and --filter. Paths are given relative to the current
directory; they are rewritten so that align, which runs inside build/bin,
resolves them to the same files. align inherits the terminal and its exit
status is returned unchanged.`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(cmd *cobra.Command, args []string) error {
			_, _, err := launcher.ParseArgs(args)
			return err
		},
		RunE: a.run,
	}

	cmd.SetIn(a.stdin)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return flagError{err}
	})

	flags := cmd.Flags()
	// Everything after <inputFile> is positional, so trailing tokens such
	// as --no-filter are ignored like any other extra argument.
	flags.SetInterspersed(false)
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./"+config.DefaultPath+" if present)")
	flags.String("root", "", "directory the input/output paths are relative to (default .)")
	flags.String("bin-dir", "", "directory holding the align executable, relative to root (default build/bin)")
	flags.String("executable", "", "executable name inside bin-dir (default align)")
	flags.String("log-file", "", "log path handed to align, relative to root (default log.txt)")
	flags.BoolVar(&a.noFilter, "no-filter", false, "do not pass --filter to align")
	flags.String("executor", "", "execution strategy: local or docker (default local)")
	flags.String("image", "", "container image for the docker executor")
	flags.String("audit", "", "append a JSON line per run to this file")
	flags.Duration("timeout", 0, "stop align after this long (default no limit)")
	flags.BoolVar(&a.watch, "watch", false, "re-run whenever the input file changes")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log launch details to stderr")

	err := bindFlags(a.v, flags, map[string]string{
		config.KeyRoot:        "root",
		config.KeyBinDir:      "bin-dir",
		config.KeyExecutable:  "executable",
		config.KeyLogFile:     "log-file",
		config.KeyExecutor:    "executor",
		config.KeyDockerImage: "image",
		config.KeyAuditPath:   "audit",
		config.KeyTimeout:     "timeout",
	})
	if err != nil {
		return nil, err
	}

	return cmd, nil
}

// bindFlags binds each config key to the named flag.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("bind --%s to %s: %w", name, key, err)
		}
	}
	return nil
}

// loadConfig layers defaults, the config file, ALIGNRUN_* variables and
// flags, in increasing precedence.
func (a *app) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.cfgFile != "" {
		cfg, err = config.Load(a.cfgFile)
	} else {
		cfg, err = config.LoadOrDefault(config.DefaultPath)
	}
	if err != nil {
		return nil, err
	}

	if a.noFilter {
		a.v.Set(config.KeyFilter, false)
	}
	if a.verbose {
		a.v.Set(config.KeyLogLevel, "debug")
	}
	cfg.Overlay(a.v)

	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (a *app) run(cmd *cobra.Command, args []string) error {
	input, output, err := launcher.ParseArgs(args)
	if err != nil {
		return err
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Log, zapcore.AddSync(a.stderr))
	defer logging.Sync(logger)

	exec, closeExec, err := newExecutor(cfg, logger)
	if err != nil {
		return err
	}
	defer closeExec()

	auditLog, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	l, err := launcher.New(launcher.Options{
		Config:   cfg,
		Executor: exec,
		Audit:    auditLog,
		Logger:   logger,
		Stdin:    a.stdin,
		Stdout:   a.stdout,
		Stderr:   a.stderr,
	})
	if err != nil {
		return err
	}

	// The terminal delivers SIGINT to align as well; the launcher stays
	// alive to report its status.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var res executor.Result
	if a.watch {
		res, err = a.runWatch(ctx, l, cfg, input, output, logger)
	} else {
		res, err = l.Run(ctx, input, output)
	}
	if err != nil {
		return err
	}

	a.exitCode = res.ExitCode
	return nil
}

func (a *app) runWatch(ctx context.Context, l *launcher.Launcher, cfg *config.Config,
	input, output string, logger *zap.Logger) (executor.Result, error) {
	watchPath := input
	if !filepath.IsAbs(watchPath) {
		watchPath = filepath.Join(cfg.Root, watchPath)
	}

	w, err := watch.New(watch.Options{
		Path:   watchPath,
		Logger: logger,
		Run: func(ctx context.Context) (executor.Result, error) {
			return l.Run(ctx, input, output)
		},
	})
	if err != nil {
		return executor.Result{}, err
	}

	res, err := w.Watch(ctx)
	if errors.Is(err, context.Canceled) {
		// Stopping the watch loop is the normal way out
		return res, nil
	}
	return res, err
}

// newExecutor builds the configured execution strategy and a cleanup func.
func newExecutor(cfg *config.Config, logger *zap.Logger) (executor.Executor, func(), error) {
	switch cfg.Executor {
	case config.ExecutorDocker:
		root, err := filepath.Abs(cfg.Root)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve root %q: %w", cfg.Root, err)
		}

		dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, nil, fmt.Errorf("docker client: %w", err)
		}

		de := executor.NewDockerExecutor(dockerClient, executor.DockerOptions{
			Image:    cfg.Docker.Image,
			HostRoot: root,
			Workdir:  cfg.Docker.Workdir,
		}, logger)
		return de, func() { dockerClient.Close() }, nil

	default:
		return executor.NewLocalExecutor(logger), func() {}, nil
	}
}
