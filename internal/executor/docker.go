package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DockerClient is the subset of the Docker SDK client used by DockerExecutor.
type DockerClient interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerAttach(ctx context.Context, containerID string, options container.AttachOptions) (types.HijackedResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

var _ DockerClient = (*client.Client)(nil)

// DockerOptions configures a DockerExecutor.
type DockerOptions struct {
	Image    string // Image the executable runs in
	HostRoot string // Absolute host directory bind-mounted into the container
	Workdir  string // Mount point of HostRoot inside the container
}

// DockerExecutor runs the executable in an ephemeral container.
// HostRoot is mounted at Workdir, so the re-anchored relative arguments
// resolve inside the container exactly as they do on the host.
type DockerExecutor struct {
	client DockerClient
	opts   DockerOptions
	logger *zap.Logger

	mu    sync.Mutex
	stdin *stdinRelay
}

// NewDockerExecutor creates a Docker-based executor.
func NewDockerExecutor(dockerClient DockerClient, opts DockerOptions, logger *zap.Logger) *DockerExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.HostRoot = filepath.Clean(opts.HostRoot)
	return &DockerExecutor{
		client: dockerClient,
		opts:   opts,
		logger: logger.Named("docker"),
	}
}

// Execute runs inv in a fresh container and removes it afterwards.
func (de *DockerExecutor) Execute(ctx context.Context, inv *Invocation) (Result, error) {
	if err := ValidateDir(inv.Dir); err != nil {
		return Result{}, err
	}
	if _, err := os.Stat(inv.Path); err != nil {
		if os.IsNotExist(err) {
			return Result{}, fmt.Errorf("%w: %s", ErrNotFound, inv.Path)
		}
		return Result{}, fmt.Errorf("%w: %s: %w", ErrNotExecutable, inv.Path, err)
	}

	workDir, ok := de.containerPath(inv.Dir)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s is outside the mounted root %s", ErrBinDir, inv.Dir, de.opts.HostRoot)
	}
	exe, _ := de.containerPath(inv.Path)

	containerConfig := de.containerConfig(exe, de.containerArgs(inv.Args), workDir, inv)
	hostConfig := &container.HostConfig{
		Binds: []string{de.opts.HostRoot + ":" + de.opts.Workdir},
	}

	de.logger.Debug("create container",
		zap.String("image", de.opts.Image),
		zap.Strings("cmd", containerConfig.Cmd),
		zap.String("workdir", workDir))

	resp, err := de.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return Result{}, fmt.Errorf("create container: %w", err)
	}

	defer func() {
		removeCtx := context.Background()
		if err := de.client.ContainerRemove(removeCtx, resp.ID, container.RemoveOptions{Force: true}); err != nil {
			de.logger.Warn("remove container", zap.String("id", resp.ID), zap.Error(err))
		}
	}()

	// Attach before starting so no early output is lost
	attachResp, err := de.client.ContainerAttach(ctx, resp.ID, container.AttachOptions{
		Stream: true,
		Stdin:  inv.Stdin != nil,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("attach container: %w", err)
	}
	defer attachResp.Close()

	started := time.Now()
	if err := de.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("start container: %w", err)
	}

	// Not part of the group: a terminal stdin may never reach EOF.
	if inv.Stdin != nil {
		relay := de.relayFor(inv.Stdin)
		stdinDone := make(chan struct{})
		forwarded := make(chan struct{})
		go func() {
			defer close(forwarded)
			eof, err := relay.forward(stdinDone, attachResp.Conn)
			if err != nil {
				de.logger.Debug("stdin forward ended", zap.Error(err))
			}
			if eof {
				_ = attachResp.CloseWrite()
			}
		}()
		defer func() {
			close(stdinDone)
			attachResp.Close()
			<-forwarded
		}()
	}

	stopKill := context.AfterFunc(ctx, func() {
		if err := de.client.ContainerKill(context.Background(), resp.ID, "SIGKILL"); err != nil {
			de.logger.Warn("kill container", zap.String("id", resp.ID), zap.Error(err))
		}
	})
	defer stopKill()

	stdout, stderr := writerOrDiscard(inv.Stdout), writerOrDiscard(inv.Stderr)

	var status container.WaitResponse
	var g errgroup.Group
	g.Go(func() error {
		if _, err := stdcopy.StdCopy(stdout, stderr, attachResp.Reader); err != nil {
			return fmt.Errorf("stream output: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		statusCh, errCh := de.client.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
		select {
		case err := <-errCh:
			// Unblock the output pump
			attachResp.Close()
			return fmt.Errorf("wait container: %w", err)
		case status = <-statusCh:
			return nil
		}
	})
	waitErr := g.Wait()

	res := Result{Duration: time.Since(started)}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("container %s stopped: %w", shortID(resp.ID), ctxErr)
	}
	if waitErr != nil {
		return res, waitErr
	}
	if status.Error != nil {
		return res, fmt.Errorf("wait container: %s", status.Error.Message)
	}

	res.ExitCode = int(status.StatusCode)
	de.logger.Debug("container exited",
		zap.String("id", shortID(resp.ID)),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// relayFor returns the relay reading src, replacing the previous one
// when the source changes.
func (de *DockerExecutor) relayFor(src io.Reader) *stdinRelay {
	de.mu.Lock()
	defer de.mu.Unlock()

	if de.stdin == nil || de.stdin.src != src {
		de.stdin = newStdinRelay(src)
	}
	return de.stdin
}

// containerConfig builds the container definition for one invocation.
func (de *DockerExecutor) containerConfig(exe string, args []string, workDir string, inv *Invocation) *container.Config {
	env := inv.Env
	if env == nil {
		env = os.Environ()
	}

	cfg := &container.Config{
		Image:        de.opts.Image,
		Cmd:          append([]string{exe}, args...),
		WorkingDir:   workDir,
		Env:          ScrubEnvironment(env),
		AttachStdout: true,
		AttachStderr: true,
	}
	if inv.Stdin != nil {
		cfg.AttachStdin = true
		cfg.OpenStdin = true
		cfg.StdinOnce = true
	}

	// Run as the caller so output files are not owned by root
	if uid := os.Getuid(); uid >= 0 {
		cfg.User = fmt.Sprintf("%d:%d", uid, os.Getgid())
	}

	return cfg
}

// containerArgs rewrites absolute host paths under HostRoot to their
// container location. Relative paths already resolve through the mount.
func (de *DockerExecutor) containerArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = arg
		if !filepath.IsAbs(arg) {
			continue
		}
		if mapped, ok := de.containerPath(arg); ok {
			out[i] = mapped
		} else {
			de.logger.Warn("argument is outside the mounted root and will not resolve in the container",
				zap.String("arg", arg))
		}
	}
	return out
}

// containerPath maps a host path under HostRoot to its path in the container.
func (de *DockerExecutor) containerPath(hostPath string) (string, bool) {
	rel, err := filepath.Rel(de.opts.HostRoot, hostPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return path.Join(de.opts.Workdir, filepath.ToSlash(rel)), true
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
