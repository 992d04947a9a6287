// Package watch re-runs align whenever its input file changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"alignrun/internal/executor"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces the burst of events an editor or image tool
// produces when saving a file.
const DefaultDebounce = 500 * time.Millisecond

// RunFunc performs one launch.
type RunFunc func(ctx context.Context) (executor.Result, error)

// Options configures a Watcher.
type Options struct {
	Path     string // Input file to watch
	Run      RunFunc
	Debounce time.Duration
	Logger   *zap.Logger
}

// Watcher runs once at start and again after every write or re-creation of
// the input file. Runs never overlap.
type Watcher struct {
	path     string
	run      RunFunc
	debounce time.Duration
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
}

// New creates a watcher for opts.Path. The parent directory is watched so
// that files replaced by rename are still picked up.
func New(opts Options) (*Watcher, error) {
	if opts.Run == nil {
		return nil, errors.New("watch: run func is required")
	}

	path, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", opts.Path, err)
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		path:     path,
		run:      opts.Run,
		debounce: debounce,
		logger:   logger.Named("watch"),
		watcher:  fw,
	}, nil
}

// Watch blocks until ctx is done and returns the outcome of the last run.
// Run errors are logged and do not stop the loop.
func (w *Watcher) Watch(ctx context.Context) (executor.Result, error) {
	defer w.watcher.Close()

	w.logger.Info("watching input", zap.String("path", w.path))
	last, lastErr := w.runOnce(ctx)

	// Nil until a change is seen; each change restarts the debounce.
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return last, lastErr

		case event, ok := <-w.watcher.Events:
			if !ok {
				return last, lastErr
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Debug("input changed", zap.Stringer("op", event.Op))
				fire = time.After(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return last, lastErr
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			last, lastErr = w.runOnce(ctx)
		}
	}
}

func (w *Watcher) runOnce(ctx context.Context) (executor.Result, error) {
	res, err := w.run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("run failed", zap.Error(err))
		}
		return res, err
	}
	w.logger.Info("run finished", zap.Int("exit_code", res.ExitCode))
	return res, nil
}
