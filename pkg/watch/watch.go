// Package watch blocks until a run reports complete.
//
// The check is re-run on a fixed interval. When the output root is a local
// directory, filesystem events on it also trigger a check (after a short
// debounce), so a finished run is noticed without waiting a full interval.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Defaults.
const (
	DefaultInterval = 30 * time.Second
	DefaultDebounce = 500 * time.Millisecond
)

// ErrTimeout indicates the run did not complete before Config.Timeout.
var ErrTimeout = errors.New("timed out waiting for run to complete")

// CheckFunc reports whether the watched run is complete. An error ends the
// wait.
type CheckFunc func(ctx context.Context) (bool, error)

// Config controls the wait loop.
type Config struct {
	// Interval between checks. Zero uses DefaultInterval.
	Interval time.Duration

	// Timeout bounds the whole wait. Zero waits until ctx is done.
	Timeout time.Duration

	// Dir, when set, is watched for progress-log writes.
	Dir string

	// Debounce coalesces bursts of filesystem events. Zero uses DefaultDebounce.
	Debounce time.Duration
}

// Result describes a finished wait.
type Result struct {
	Checks  int           `json:"checks"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// Option configures Until.
type Option func(*waiter)

// WithLogger sets the logger for progress messages.
func WithLogger(logger *zap.Logger) Option {
	return func(w *waiter) {
		if logger != nil {
			w.logger = logger
		}
	}
}

type waiter struct {
	cfg    Config
	check  CheckFunc
	logger *zap.Logger
}

// Until runs check until it reports true, returns an error, the timeout
// elapses (ErrTimeout) or ctx is cancelled.
func Until(ctx context.Context, cfg Config, check CheckFunc, opts ...Option) (Result, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	w := &waiter{cfg: cfg, check: check, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}

	parent := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	res, err := w.loop(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return res, fmt.Errorf("%w after %s (%d checks)", ErrTimeout, cfg.Timeout, res.Checks)
	}
	return res, err
}

func (w *waiter) loop(ctx context.Context) (Result, error) {
	start := time.Now()
	var res Result

	events, errs, closeWatcher := w.watch()
	defer closeWatcher()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	// A nil channel blocks forever, which disables the debounce case until armed.
	var debounce <-chan time.Time

	for {
		done, err := w.check(ctx)
		res.Checks++
		res.Elapsed = time.Since(start)
		if err != nil {
			return res, err
		}
		if done {
			w.logger.Info("Run complete", zap.Int("checks", res.Checks), zap.Duration("elapsed", res.Elapsed))
			return res, nil
		}
		w.logger.Debug("Run not complete yet", zap.Int("checks", res.Checks))

	wait:
		for {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-ticker.C:
				break wait
			case <-debounce:
				debounce = nil
				break wait
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if relevant(ev) && debounce == nil {
					debounce = time.After(w.cfg.Debounce)
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				w.logger.Warn("Filesystem watch error", zap.Error(err))
			}
		}
	}
}

// watch subscribes to Dir. Failure to watch falls back to polling only.
func (w *waiter) watch() (<-chan fsnotify.Event, <-chan error, func()) {
	noop := func() {}
	if w.cfg.Dir == "" {
		return nil, nil, noop
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("Filesystem watch unavailable, polling only", zap.Error(err))
		return nil, nil, noop
	}
	if err := fw.Add(w.cfg.Dir); err != nil {
		_ = fw.Close()
		w.logger.Debug("Cannot watch output root, polling only", zap.String("dir", w.cfg.Dir), zap.Error(err))
		return nil, nil, noop
	}
	w.logger.Debug("Watching output root", zap.String("dir", w.cfg.Dir))
	return fw.Events, fw.Errors, func() { _ = fw.Close() }
}

// relevant reports whether ev touches a manifest or progress log.
func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(ev.Name)
	return strings.HasPrefix(name, "list_gpu_")
}
