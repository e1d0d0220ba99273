package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gofrs/flock"

	"conform/internal/config"
	"conform/internal/logging"
	"conform/internal/scheduler"
)

// ErrAlreadyRunning reports that another daemon holds the instance lock.
var ErrAlreadyRunning = errors.New("another conform daemon instance is already running")

// Daemon runs the scheduler under a single-instance file lock. Two daemons
// walking the same library would race on the same temp files, so the lock is
// mandatory, not advisory.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	sched  *scheduler.Scheduler

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
}

// New constructs a daemon with an initialized scheduler. Extra options are
// forwarded to the scheduler, primarily for tests.
func New(cfg *config.Config, logger *slog.Logger, opts ...scheduler.Option) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	sched, err := scheduler.New(cfg, logger, opts...)
	if err != nil {
		return nil, err
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		sched:    sched,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Run acquires the instance lock and drives the configured schedule until it
// completes (cron mode) or ctx is cancelled (continuous mode). The lock is
// released before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	d.logger.Info("daemon started",
		logging.String("mode", d.cfg.Schedule.Mode),
		logging.String("library", d.cfg.Source.Path),
		logging.String("lock", d.lockPath),
	)
	defer d.logger.Info("daemon stopped")

	if d.cfg.Schedule.Mode == config.ModeCron {
		_, err := d.sched.RunOnce(ctx)
		return err
	}
	return d.sched.Run(ctx)
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	return d.sched.Close()
}

// LockPath returns the instance lock file location.
func (d *Daemon) LockPath() string {
	return d.lockPath
}
