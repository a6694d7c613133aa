// Package daemon runs myday in the foreground: it keeps the mirror in sync
// with the backend and serves widgets until stopped.
//
// The daemon:
//  1. Loads tasks once and connects the realtime change feed
//  2. Reloads on every debounced remote change
//  3. Reloads shortly after another process edits the mirror file
//  4. Reloads just after local midnight so "today" rolls over
//  5. Serves widget snapshots and handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/magicmac/myday/internal/schema"
)

// Syncer is the part of the repository the daemon drives.
type Syncer interface {
	LoadTasks(ctx context.Context) ([]schema.Task, error)
	ConnectRealtime(ctx context.Context) error
	DisconnectRealtime()
	Run(ctx context.Context) error
	Wait()
}

// MirrorWatcher reports external edits of the mirror file.
type MirrorWatcher interface {
	Start() error
	Stop() error
	Events() <-chan struct{}
	Errors() <-chan error
}

// Service is a component with a Start/Stop lifecycle, such as the widget
// server.
type Service interface {
	Start() error
	Stop() error
}

// Config holds configuration for the daemon.
type Config struct {
	// MirrorReloadDelay is how long to wait after an external mirror edit
	// before reloading. Edits within the delay share one reload.
	MirrorReloadDelay time.Duration

	// RolloverGrace is added to local midnight before the day rollover
	// reload, so the new day key is in effect.
	RolloverGrace time.Duration

	// Logger for daemon activity
	Logger *log.Logger

	// Now returns the current time (default: time.Now)
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MirrorReloadDelay: 300 * time.Millisecond,
		RolloverGrace:     5 * time.Second,
		Logger:            log.New(os.Stderr, "[daemon] ", log.LstdFlags),
		Now:               time.Now,
	}
}

// Daemon orchestrates realtime sync, mirror watching and the widget server.
type Daemon struct {
	repo    Syncer
	watcher MirrorWatcher
	widget  Service
	config  *Config

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

// New creates a new Daemon instance.
//
// watcher and widget may be nil to run without them.
// Use Start() to begin syncing.
func New(repo Syncer, watcher MirrorWatcher, widget Service) (*Daemon, error) {
	return NewWithConfig(repo, watcher, widget, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(repo Syncer, watcher MirrorWatcher, widget Service, config *Config) (*Daemon, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	def := DefaultConfig()
	if config.MirrorReloadDelay <= 0 {
		config.MirrorReloadDelay = def.MirrorReloadDelay
	}
	if config.RolloverGrace <= 0 {
		config.RolloverGrace = def.RolloverGrace
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		repo:    repo,
		watcher: watcher,
		widget:  widget,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The initial load failing is not fatal (the device may be offline); the
// mirror keeps its last snapshot and the next change or rollover retries.
// A missing session is fatal.
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	tasks, err := d.repo.LoadTasks(d.ctx)
	if err != nil {
		d.config.Logger.Printf("Warning: initial load failed: %v", err)
	} else {
		d.config.Logger.Printf("Loaded %d tasks", len(tasks))
	}

	if err := d.repo.ConnectRealtime(d.ctx); err != nil {
		return fmt.Errorf("failed to connect realtime: %w", err)
	}

	if d.widget != nil {
		if err := d.widget.Start(); err != nil {
			d.repo.DisconnectRealtime()
			return fmt.Errorf("failed to start widget server: %w", err)
		}
	}

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			d.config.Logger.Printf("Warning: mirror watching disabled: %v", err)
			d.watcher = nil
		}
	}

	d.wg.Add(2)
	go d.runRealtime()
	go d.rolloverLoop()
	if d.watcher != nil {
		d.wg.Add(1)
		go d.watchMirror()
	}

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. Safe to call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")

		d.cancel()
		d.repo.DisconnectRealtime()

		if d.watcher != nil {
			if err := d.watcher.Stop(); err != nil {
				d.config.Logger.Printf("Error closing watcher: %v", err)
			}
		}

		d.wg.Wait()
		d.repo.Wait()

		if d.widget != nil {
			if err := d.widget.Stop(); err != nil {
				d.stopErr = err
			}
		}

		d.config.Logger.Println("Daemon stopped")
	})
	return d.stopErr
}

// runRealtime reloads on remote changes until shutdown.
func (d *Daemon) runRealtime() {
	defer d.wg.Done()

	if err := d.repo.Run(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
		d.config.Logger.Printf("Realtime loop ended: %v", err)
	}
}

// watchMirror reloads after external mirror edits, such as a widget
// reordering tasks.
func (d *Daemon) watchMirror() {
	defer d.wg.Done()

	var pending <-chan time.Time
	for {
		select {
		case <-d.ctx.Done():
			return

		case _, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			if pending == nil {
				pending = time.After(d.config.MirrorReloadDelay)
			}

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)

		case <-pending:
			pending = nil
			d.reload("mirror edit")
		}
	}
}

// rolloverLoop reloads shortly after every local midnight.
func (d *Daemon) rolloverLoop() {
	defer d.wg.Done()

	for {
		now := d.config.Now()
		next := NextRollover(now, d.config.RolloverGrace)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-d.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			d.reload("day rollover")
		}
	}
}

func (d *Daemon) reload(reason string) {
	d.config.Logger.Printf("Reloading tasks (%s)", reason)
	if _, err := d.repo.LoadTasks(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
		d.config.Logger.Printf("Reload failed: %v", err)
	}
}

// NextRollover returns the next local midnight after now plus grace.
func NextRollover(now time.Time, grace time.Duration) time.Time {
	y, m, day := now.Date()
	midnight := time.Date(y, m, day+1, 0, 0, 0, 0, now.Location())
	return midnight.Add(grace)
}
