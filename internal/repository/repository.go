// Package repository coordinates every read and write between the user
// surfaces, the local mirror and the backend.
//
// Mutations are optimistic: the mirror and in-memory state change at once,
// the backend call runs in the background, and a reload from the backend
// follows whether the call succeeded or not. Server truth therefore
// replaces optimistic state within one round trip.
//
// Any backend call rejected with 401 triggers exactly one session refresh.
// If the refresh succeeds the call is retried once with the new token;
// otherwise the device is signed out and the original error is returned.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magicmac/myday/internal/mirror"
	"github.com/magicmac/myday/internal/schema"
	"github.com/magicmac/myday/internal/store"
	"github.com/magicmac/myday/internal/supabase"
)

// ErrNotSignedIn is returned when an operation needs a session and none
// is stored.
var ErrNotSignedIn = errors.New("not signed in")

// Config holds the collaborators of a Repository.
type Config struct {
	// Backend is required.
	Backend Backend

	// Sessions is required.
	Sessions SessionStore

	// Mirror is required.
	Mirror *mirror.Cache

	// Realtime is the change feed (optional).
	Realtime Realtime

	// History stores loaded tasks for offline use (optional).
	History History

	// Notifier is told to redraw widgets (optional).
	Notifier Notifier

	// Logger for sync activity (default: stderr logger)
	Logger *log.Logger

	// Today returns the local day key (default: schema.TodayKey)
	Today func() string

	// Now returns the current time (default: time.Now)
	Now func() time.Time
}

// Repository is the sync coordinator.
type Repository struct {
	backend  Backend
	sessions SessionStore
	mirror   *mirror.Cache
	realtime Realtime
	history  History
	notifier Notifier
	logger   *log.Logger
	today    func() string
	now      func() time.Time

	wg      sync.WaitGroup
	updates chan []schema.Task

	mu    sync.Mutex
	tasks []schema.Task
}

// New creates a Repository.
func New(cfg Config) (*Repository, error) {
	if cfg.Backend == nil || cfg.Sessions == nil || cfg.Mirror == nil {
		return nil, fmt.Errorf("backend, session store and mirror are required")
	}
	if cfg.Realtime == nil {
		cfg.Realtime = noopRealtime{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[repository] ", log.LstdFlags)
	}
	if cfg.Today == nil {
		cfg.Today = schema.TodayKey
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Repository{
		backend:  cfg.Backend,
		sessions: cfg.Sessions,
		mirror:   cfg.Mirror,
		realtime: cfg.Realtime,
		history:  cfg.History,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		today:    cfg.Today,
		now:      cfg.Now,
		updates:  make(chan []schema.Task, 1),
	}, nil
}

// Updates delivers the latest full task set after every load or optimistic
// change. Only the newest unread value is kept.
func (r *Repository) Updates() <-chan []schema.Task {
	return r.updates
}

// Wait blocks until every background mutation has finished, including its
// reconciling reload.
func (r *Repository) Wait() {
	r.wg.Wait()
}

// Session returns the stored session or ErrNotSignedIn.
func (r *Repository) Session(ctx context.Context) (*schema.Session, error) {
	s, err := r.sessions.LoadSession(ctx)
	if errors.Is(err, store.ErrNoSession) {
		return nil, ErrNotSignedIn
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SignIn authenticates with email and password and stores the session.
func (r *Repository) SignIn(ctx context.Context, email, password string) (*schema.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}

	s, err := r.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := r.sessions.SaveSession(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	r.logger.Printf("Signed in as %s", s.Email)
	return s, nil
}

// SignOut disconnects realtime, forgets the session and empties the mirror.
func (r *Repository) SignOut(ctx context.Context) error {
	r.realtime.Disconnect()

	if err := r.sessions.ClearSession(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	if err := r.mirror.Clear(); err != nil {
		r.logger.Printf("Warning: failed to clear mirror: %v", err)
	}
	if r.history != nil {
		if err := r.history.ReplaceTasks(ctx, nil); err != nil {
			r.logger.Printf("Warning: failed to clear history: %v", err)
		}
	}
	r.redraw()

	r.setTasks(nil)

	r.logger.Println("Signed out")
	return nil
}

// ConnectRealtime subscribes to the change feed with the stored session.
func (r *Repository) ConnectRealtime(ctx context.Context) error {
	s, err := r.Session(ctx)
	if err != nil {
		return err
	}
	r.realtime.Connect(s.AccessToken, s.UserID)
	return nil
}

// DisconnectRealtime closes the change feed.
func (r *Repository) DisconnectRealtime() {
	r.realtime.Disconnect()
}

// Run reloads tasks on every change signal until ctx is done or the
// change feed is closed.
func (r *Repository) Run(ctx context.Context) error {
	changes := r.realtime.Changes()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			r.logger.Println("Realtime change detected, reloading tasks")
			if _, err := r.LoadTasks(ctx); err != nil {
				r.logger.Printf("Reload failed: %v", err)
			}
		}
	}
}

// LoadTasks fetches every task of the signed-in user, refreshes the mirror
// with today's subset and publishes the full set.
//
// Without a session it returns an empty set and no error, so completion
// handlers of background mutations tolerate a concurrent sign-out.
func (r *Repository) LoadTasks(ctx context.Context) ([]schema.Task, error) {
	if _, err := r.Session(ctx); errors.Is(err, ErrNotSignedIn) {
		return []schema.Task{}, nil
	}

	var tasks []schema.Task
	err := r.withAutoRefresh(ctx, func(s *schema.Session) error {
		var err error
		tasks, err = r.backend.ListTasks(ctx, s.AccessToken, s.UserID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	if tasks == nil {
		tasks = []schema.Task{}
	}

	if err := r.mirror.SaveFromServerTasks(tasks, r.today()); err != nil {
		r.logger.Printf("Warning: failed to update mirror: %v", err)
	}
	if r.history != nil {
		if err := r.history.ReplaceTasks(ctx, tasks); err != nil {
			r.logger.Printf("Warning: failed to store history: %v", err)
		}
	}
	r.redraw()

	r.setTasks(tasks)
	return tasks, nil
}

// Tasks returns the last loaded task set including optimistic changes.
func (r *Repository) Tasks() []schema.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schema.Task, len(r.tasks))
	copy(out, r.tasks)
	return out
}

// TodayTasks returns today's tasks in display order, using the mirror's
// manual sort order.
func (r *Repository) TodayTasks() []schema.Task {
	order := make(map[string]int)
	for _, e := range r.mirror.GetEntries() {
		order[e.ID] = e.SortOrder
	}
	return schema.SortForDisplay(schema.FilterDay(r.Tasks(), r.today()), order)
}

// Archive groups tasks of the last days before today, newest day first.
// When nothing was loaded in this process the stored history is used.
func (r *Repository) Archive(ctx context.Context, days int) ([]schema.DayGroup, error) {
	tasks := r.Tasks()
	if len(tasks) == 0 && r.history != nil {
		stored, err := r.history.ListTasks(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read history: %w", err)
		}
		tasks = stored
	}
	return schema.Archive(tasks, r.today(), days)
}

// AddTask creates a task for today. The returned task carries a temporary
// id and is visible in the mirror immediately; the stored task replaces
// it on the next reload.
func (r *Repository) AddTask(ctx context.Context, text string) (schema.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return schema.Task{}, fmt.Errorf("task text is required")
	}
	if _, err := r.Session(ctx); err != nil {
		return schema.Task{}, err
	}

	r.realtime.SuppressChanges(0)

	today := r.today()
	task := schema.Task{
		ID:        schema.TempIDPrefix + uuid.NewString(),
		Text:      text,
		CreatedAt: r.now().UTC().Format(time.RFC3339Nano),
		Day:       today,
	}

	err := r.mirror.Update(func(entries []mirror.Entry) []mirror.Entry {
		return append(entries, mirror.Entry{
			ID:        task.ID,
			Text:      task.Text,
			CreatedAt: task.CreatedAt,
			SortOrder: mirror.MaxIncompleteOrder(entries) + 1,
		})
	})
	if err != nil {
		r.logger.Printf("Warning: failed to update mirror: %v", err)
	}
	r.redraw()
	r.mutateTasks(func(tasks []schema.Task) []schema.Task {
		return append([]schema.Task{task}, tasks...)
	})

	r.background("add task", func(ctx context.Context) error {
		return r.withAutoRefresh(ctx, func(s *schema.Session) error {
			_, err := r.backend.InsertTask(ctx, s.AccessToken, supabase.NewTask{
				UserID: s.UserID,
				Text:   text,
				Day:    today,
			})
			return err
		})
	})
	return task, nil
}

// AddFromArchive adds the text of an archived task as a new task today.
func (r *Repository) AddFromArchive(ctx context.Context, text string) (schema.Task, error) {
	return r.AddTask(ctx, text)
}

// ToggleTask sets the completion flag of a task.
func (r *Repository) ToggleTask(ctx context.Context, taskID string, completed bool) error {
	return r.mutate(ctx, "toggle task",
		func(e *mirror.Entry) bool {
			e.Completed = completed
			return true
		},
		func(t *schema.Task) bool {
			t.Completed = completed
			return true
		},
		taskID,
		func(ctx context.Context, s *schema.Session) error {
			return r.backend.SetCompleted(ctx, s.AccessToken, taskID, completed)
		})
}

// UpdateTaskText replaces the text of a task.
func (r *Repository) UpdateTaskText(ctx context.Context, taskID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("task text is required")
	}
	return r.mutate(ctx, "update task",
		func(e *mirror.Entry) bool {
			e.Text = text
			return true
		},
		func(t *schema.Task) bool {
			t.Text = text
			return true
		},
		taskID,
		func(ctx context.Context, s *schema.Session) error {
			return r.backend.SetText(ctx, s.AccessToken, taskID, text)
		})
}

// DeleteTask removes a task.
func (r *Repository) DeleteTask(ctx context.Context, taskID string) error {
	return r.mutate(ctx, "delete task",
		func(*mirror.Entry) bool { return false },
		func(*schema.Task) bool { return false },
		taskID,
		func(ctx context.Context, s *schema.Session) error {
			return r.backend.DeleteTask(ctx, s.AccessToken, taskID)
		})
}

// ClearCompleted deletes today's completed tasks.
func (r *Repository) ClearCompleted(ctx context.Context) error {
	if _, err := r.Session(ctx); err != nil {
		return err
	}
	r.realtime.SuppressChanges(0)

	today := r.today()
	err := r.mirror.Update(func(entries []mirror.Entry) []mirror.Entry {
		kept := entries[:0]
		for _, e := range entries {
			if !e.Completed {
				kept = append(kept, e)
			}
		}
		return kept
	})
	if err != nil {
		r.logger.Printf("Warning: failed to update mirror: %v", err)
	}
	r.redraw()
	r.mutateTasks(func(tasks []schema.Task) []schema.Task {
		kept := make([]schema.Task, 0, len(tasks))
		for _, t := range tasks {
			if !(t.Day == today && t.Completed) {
				kept = append(kept, t)
			}
		}
		return kept
	})

	r.background("clear completed", func(ctx context.Context) error {
		return r.withAutoRefresh(ctx, func(s *schema.Session) error {
			return r.backend.DeleteCompleted(ctx, s.AccessToken, s.UserID, today)
		})
	})
	return nil
}

// Reorder stores a manual order for today's incomplete tasks. The order
// lives only in the mirror.
func (r *Repository) Reorder(ids []string) error {
	if err := r.mirror.Reorder(ids); err != nil {
		return fmt.Errorf("failed to reorder: %w", err)
	}
	r.redraw()
	r.mutateTasks(func(tasks []schema.Task) []schema.Task { return tasks })
	return nil
}

// mutate applies an optimistic change to one task and runs call in the
// background. patchEntry and patchTask return false to drop the item.
// The mirror is only patched when it already has entries.
func (r *Repository) mutate(
	ctx context.Context,
	op string,
	patchEntry func(*mirror.Entry) bool,
	patchTask func(*schema.Task) bool,
	taskID string,
	call func(context.Context, *schema.Session) error,
) error {
	if _, err := r.Session(ctx); err != nil {
		return err
	}
	r.realtime.SuppressChanges(0)

	if len(r.mirror.GetEntries()) > 0 {
		err := r.mirror.Update(func(entries []mirror.Entry) []mirror.Entry {
			out := make([]mirror.Entry, 0, len(entries))
			for _, e := range entries {
				if e.ID == taskID && !patchEntry(&e) {
					continue
				}
				out = append(out, e)
			}
			return out
		})
		if err != nil {
			r.logger.Printf("Warning: failed to update mirror: %v", err)
		}
		r.redraw()
	}

	r.mutateTasks(func(tasks []schema.Task) []schema.Task {
		out := make([]schema.Task, 0, len(tasks))
		for _, t := range tasks {
			if t.ID == taskID && !patchTask(&t) {
				continue
			}
			out = append(out, t)
		}
		return out
	})

	r.background(op, func(ctx context.Context) error {
		return r.withAutoRefresh(ctx, func(s *schema.Session) error {
			return call(ctx, s)
		})
	})
	return nil
}

// background runs a backend mutation and then reloads, on success to pick
// up server state and on failure to roll the optimistic change back.
// In-flight calls are never cancelled.
func (r *Repository) background(op string, call func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx := context.Background()

		func() {
			defer func() {
				if p := recover(); p != nil {
					r.logger.Printf("Recovered from panic in %s: %v", op, p)
				}
			}()
			if err := call(ctx); err != nil {
				r.logger.Printf("Failed to %s, rolling back: %v", op, err)
			}
		}()

		if _, err := r.LoadTasks(ctx); err != nil {
			r.logger.Printf("Reload after %s failed: %v", op, err)
		}
	}()
}

// withAutoRefresh runs call with the stored session. A 401 triggers one
// refresh and one retry; a failed refresh signs the device out.
func (r *Repository) withAutoRefresh(ctx context.Context, call func(*schema.Session) error) error {
	s, err := r.Session(ctx)
	if err != nil {
		return err
	}

	err = call(s)
	if !errors.Is(err, supabase.ErrUnauthorized) {
		return err
	}

	fresh, rerr := r.refreshSession(ctx, s)
	if rerr != nil {
		r.logger.Printf("Session refresh failed, signing out: %v", rerr)
		if serr := r.SignOut(ctx); serr != nil {
			r.logger.Printf("Warning: sign out failed: %v", serr)
		}
		return err
	}
	return call(fresh)
}

func (r *Repository) refreshSession(ctx context.Context, s *schema.Session) (*schema.Session, error) {
	fresh, err := r.backend.RefreshSession(ctx, s.RefreshToken)
	if err != nil {
		return nil, err
	}
	if err := r.sessions.SaveSession(ctx, fresh); err != nil {
		return nil, fmt.Errorf("failed to save refreshed session: %w", err)
	}
	r.realtime.UpdateToken(fresh.AccessToken)
	r.logger.Println("Session refreshed")
	return fresh, nil
}

// mutateTasks replaces the in-memory task set and publishes it under the
// same lock, so Updates never lags behind Tasks.
func (r *Repository) mutateTasks(fn func([]schema.Task) []schema.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := make([]schema.Task, len(r.tasks))
	copy(current, r.tasks)
	r.tasks = fn(current)
	snapshot := make([]schema.Task, len(r.tasks))
	copy(snapshot, r.tasks)
	r.publishLocked(snapshot)
}

func (r *Repository) setTasks(tasks []schema.Task) {
	r.mutateTasks(func([]schema.Task) []schema.Task { return tasks })
}

// publishLocked replaces any unread update with tasks. r.mu must be held.
func (r *Repository) publishLocked(tasks []schema.Task) {
	select {
	case <-r.updates:
	default:
	}
	select {
	case r.updates <- tasks:
	default:
	}
}

func (r *Repository) redraw() {
	if r.notifier != nil {
		r.notifier.Redraw()
	}
}
