package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/magicmac/myday/internal/config"
	"github.com/magicmac/myday/internal/mirror"
	"github.com/magicmac/myday/internal/repository"
	"github.com/magicmac/myday/internal/schema"
	"github.com/magicmac/myday/internal/store"
	"github.com/magicmac/myday/internal/supabase"
)

// app bundles what every command that touches tasks needs.
type app struct {
	cfg     *config.Config
	db      *store.DB
	backend *supabase.Client
	mirror  *mirror.Cache
	repo    *repository.Repository
}

type appOptions struct {
	// mirror, realtime and notifier are shared with the watch daemon
	mirror   *mirror.Cache
	realtime repository.Realtime
	notifier repository.Notifier

	// logOut receives component logs (default: stderr)
	logOut io.Writer
}

func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fatalf("%v", err)
	}
	return cfg
}

// newLogger returns a logger in the bracketed-prefix form used by every
// component.
func newLogger(prefix string, out io.Writer) *log.Logger {
	return log.New(out, "["+prefix+"] ", log.LstdFlags)
}

func openApp(opts appOptions) *app {
	return openAppWith(loadConfig(), opts)
}

func openAppWith(cfg *config.Config, opts appOptions) *app {
	if err := cfg.RequireBackend(); err != nil {
		fatalf("%v", err)
	}

	db, err := store.Open(cfg.DBPath())
	if err != nil {
		fatalf("failed to open local database: %v", err)
	}

	if opts.mirror == nil {
		opts.mirror = mirror.New(cfg.MirrorPath())
	}
	if opts.logOut == nil {
		opts.logOut = os.Stderr
	}

	a := &app{
		cfg:     cfg,
		db:      db,
		backend: supabase.NewClient(nil, cfg.Supabase.URL, cfg.Supabase.AnonKey),
		mirror:  opts.mirror,
	}

	repo, err := repository.New(repository.Config{
		Backend:  a.backend,
		Sessions: db,
		Mirror:   a.mirror,
		Realtime: opts.realtime,
		History:  db,
		Notifier: opts.notifier,
		Logger:   newLogger("repository", opts.logOut),
	})
	if err != nil {
		db.Close()
		fatalf("%v", err)
	}
	a.repo = repo
	return a
}

// close waits for background writes and releases local resources.
func (a *app) close() {
	a.repo.Wait()
	if err := a.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
}

// load refreshes tasks from the backend. When the backend is unreachable the
// last stored history is used and a warning is printed.
func (a *app) load(ctx context.Context) []schema.Task {
	tasks, err := a.repo.LoadTasks(ctx)
	if err == nil {
		if _, serr := a.repo.Session(ctx); errors.Is(serr, repository.ErrNotSignedIn) {
			a.close()
			fatalf("not signed in (run 'myday login')")
		}
		return tasks
	}
	if errors.Is(err, supabase.ErrUnauthorized) {
		a.close()
		fatalf("session expired (run 'myday login')")
	}

	fmt.Fprintf(os.Stderr, "Warning: offline, showing cached tasks (%v)\n", err)
	cached, herr := a.db.ListTasks(ctx)
	if herr != nil {
		a.close()
		fatalf("failed to read cached tasks: %v", herr)
	}
	return cached
}

// todayTasks returns today's tasks from tasks in display order.
func (a *app) todayTasks(tasks []schema.Task) []schema.Task {
	order := make(map[string]int)
	for _, e := range a.mirror.GetEntries() {
		order[e.ID] = e.SortOrder
	}
	return schema.SortForDisplay(schema.FilterDay(tasks, schema.TodayKey()), order)
}
