package repository

import (
	"context"
	"time"

	"github.com/magicmac/myday/internal/schema"
	"github.com/magicmac/myday/internal/supabase"
)

// Backend is the remote task and auth API.
//
// Every call that takes a token must return supabase.ErrUnauthorized when
// the backend rejects it with 401, so the repository can refresh the
// session and retry once.
type Backend interface {
	// SignInWithPassword exchanges credentials for a session.
	SignInWithPassword(ctx context.Context, email, password string) (*schema.Session, error)

	// RefreshSession exchanges a refresh token for a new session.
	RefreshSession(ctx context.Context, refreshToken string) (*schema.Session, error)

	// ListTasks returns every task of the user, newest first.
	ListTasks(ctx context.Context, token, userID string) ([]schema.Task, error)

	// InsertTask creates a task and returns the stored row.
	InsertTask(ctx context.Context, token string, task supabase.NewTask) (*schema.Task, error)

	// SetCompleted patches the completion flag of a task.
	SetCompleted(ctx context.Context, token, taskID string, completed bool) error

	// SetText patches the text of a task.
	SetText(ctx context.Context, token, taskID, text string) error

	// DeleteTask deletes a task by id.
	DeleteTask(ctx context.Context, token, taskID string) error

	// DeleteCompleted deletes the user's completed tasks of one day.
	DeleteCompleted(ctx context.Context, token, userID, day string) error
}

// SessionStore persists the one session of this device.
//
// LoadSession must return store.ErrNoSession when nothing is stored.
type SessionStore interface {
	SaveSession(ctx context.Context, s *schema.Session) error
	LoadSession(ctx context.Context) (*schema.Session, error)
	ClearSession(ctx context.Context) error
}

// Realtime is the change feed subscription.
type Realtime interface {
	Connect(accessToken, userID string)
	Disconnect()
	UpdateToken(accessToken string)
	SuppressChanges(d time.Duration)
	Changes() <-chan struct{}
}

// History keeps the last loaded task set for offline views.
type History interface {
	ReplaceTasks(ctx context.Context, tasks []schema.Task) error
	ListTasks(ctx context.Context) ([]schema.Task, error)
}

// Notifier is told whenever the mirror changed and widgets should redraw.
type Notifier interface {
	Redraw()
}

// noopRealtime stands in when no change feed is configured, as in one-shot
// CLI commands.
type noopRealtime struct{}

func (noopRealtime) Connect(string, string)        {}
func (noopRealtime) Disconnect()                   {}
func (noopRealtime) UpdateToken(string)            {}
func (noopRealtime) SuppressChanges(time.Duration) {}
func (noopRealtime) Changes() <-chan struct{}      { return nil }
