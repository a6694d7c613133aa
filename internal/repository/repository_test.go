package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/magicmac/myday/internal/mirror"
	"github.com/magicmac/myday/internal/schema"
	"github.com/magicmac/myday/internal/store"
	"github.com/magicmac/myday/internal/supabase"
)

const today = "2024-03-10"

// fakeBackend is an in-memory task table with token checks.
type fakeBackend struct {
	mu         sync.Mutex
	tasks      map[string]schema.Task
	validToken string
	nextID     int
	failWrites bool
	refreshErr error
	refreshes  int
	calls      []string

	// refreshedToken overrides the access token handed out on refresh.
	refreshedToken string

	// gate, when set, holds patch calls until closed.
	gate chan struct{}
}

func newFakeBackend(token string) *fakeBackend {
	return &fakeBackend{tasks: make(map[string]schema.Task), validToken: token}
}

func (f *fakeBackend) check(token, call string) error {
	f.calls = append(f.calls, call+":"+token)
	if token != f.validToken {
		return supabase.ErrUnauthorized
	}
	return nil
}

func (f *fakeBackend) SignInWithPassword(_ context.Context, email, password string) (*schema.Session, error) {
	if password != "secret" {
		return nil, &supabase.APIError{Status: 400, Message: "Invalid login credentials"}
	}
	return &schema.Session{AccessToken: f.validToken, RefreshToken: "r", UserID: "u1", Email: email}, nil
}

func (f *fakeBackend) RefreshSession(_ context.Context, refreshToken string) (*schema.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	token := f.validToken
	if f.refreshedToken != "" {
		token = f.refreshedToken
	}
	return &schema.Session{AccessToken: token, RefreshToken: refreshToken + "+", UserID: "u1", Email: "me@example.com"}, nil
}

func (f *fakeBackend) ListTasks(_ context.Context, token, userID string) ([]schema.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(token, "list"); err != nil {
		return nil, err
	}
	out := make([]schema.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

func (f *fakeBackend) InsertTask(_ context.Context, token string, nt supabase.NewTask) (*schema.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(token, "insert"); err != nil {
		return nil, err
	}
	if f.failWrites {
		return nil, errors.New("network unreachable")
	}
	f.nextID++
	t := schema.Task{
		ID:        fmt.Sprintf("id-%d", f.nextID),
		UserID:    nt.UserID,
		Text:      nt.Text,
		Completed: nt.Completed,
		CreatedAt: fmt.Sprintf("2024-03-10T09:00:%02dZ", f.nextID),
		Day:       nt.Day,
	}
	f.tasks[t.ID] = t
	return &t, nil
}

func (f *fakeBackend) patch(token, id, call string, fn func(*schema.Task)) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(token, call); err != nil {
		return err
	}
	if f.failWrites {
		return errors.New("network unreachable")
	}
	t, ok := f.tasks[id]
	if !ok {
		return nil
	}
	fn(&t)
	f.tasks[id] = t
	return nil
}

func (f *fakeBackend) SetCompleted(_ context.Context, token, id string, completed bool) error {
	return f.patch(token, id, "complete", func(t *schema.Task) { t.Completed = completed })
}

func (f *fakeBackend) SetText(_ context.Context, token, id, text string) error {
	return f.patch(token, id, "text", func(t *schema.Task) { t.Text = text })
}

func (f *fakeBackend) DeleteTask(_ context.Context, token, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(token, "delete"); err != nil {
		return err
	}
	if f.failWrites {
		return errors.New("network unreachable")
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeBackend) DeleteCompleted(_ context.Context, token, userID, day string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(token, "clear"); err != nil {
		return err
	}
	for id, t := range f.tasks {
		if t.UserID == userID && t.Day == day && t.Completed {
			delete(f.tasks, id)
		}
	}
	return nil
}

func (f *fakeBackend) seed(tasks ...schema.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tasks {
		if t.UserID == "" {
			t.UserID = "u1"
		}
		f.tasks[t.ID] = t
	}
}

func (f *fakeBackend) get(id string) (schema.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	return t, ok
}

// memSessions is an in-memory SessionStore.
type memSessions struct {
	mu sync.Mutex
	s  *schema.Session
}

func (m *memSessions) SaveSession(_ context.Context, s *schema.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.s = &cp
	return nil
}

func (m *memSessions) LoadSession(context.Context) (*schema.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s == nil {
		return nil, store.ErrNoSession
	}
	cp := *m.s
	return &cp, nil
}

func (m *memSessions) ClearSession(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	return nil
}

// fakeRealtime records calls.
type fakeRealtime struct {
	mu          sync.Mutex
	tokens      []string
	suppressed  int
	connected   bool
	disconnects int
	changes     chan struct{}
}

func (f *fakeRealtime) Connect(token, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
}

func (f *fakeRealtime) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func (f *fakeRealtime) UpdateToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
}

func (f *fakeRealtime) SuppressChanges(time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suppressed++
}

func (f *fakeRealtime) Changes() <-chan struct{} { return f.changes }

// countingNotifier counts redraws.
type countingNotifier struct {
	mu sync.Mutex
	n  int
}

func (c *countingNotifier) Redraw() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type fixture struct {
	repo     *Repository
	backend  *fakeBackend
	sessions *memSessions
	realtime *fakeRealtime
	notifier *countingNotifier
	mirror   *mirror.Cache
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	f := &fixture{
		backend:  newFakeBackend("good"),
		sessions: &memSessions{},
		realtime: &fakeRealtime{changes: make(chan struct{}, 1)},
		notifier: &countingNotifier{},
		mirror:   mirror.New(filepath.Join(t.TempDir(), mirror.FileName)),
	}
	if token != "" {
		f.sessions.s = &schema.Session{AccessToken: token, RefreshToken: "r", UserID: "u1", Email: "me@example.com"}
	}
	repo, err := New(Config{
		Backend:  f.backend,
		Sessions: f.sessions,
		Mirror:   f.mirror,
		Realtime: f.realtime,
		Notifier: f.notifier,
		Logger:   log.New(io.Discard, "", 0),
		Today:    func() string { return today },
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	f.repo = repo
	return f
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() with empty config should fail")
	}
}

func TestLoadTasks_RefreshesMirror(t *testing.T) {
	f := newFixture(t, "good")
	f.backend.seed(
		schema.Task{ID: "a", Text: "today a", Day: today, CreatedAt: "2024-03-10T08:00:00Z"},
		schema.Task{ID: "b", Text: "yesterday", Day: "2024-03-09", CreatedAt: "2024-03-09T08:00:00Z"},
	)

	tasks, err := f.repo.LoadTasks(context.Background())
	if err != nil {
		t.Fatalf("LoadTasks() failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("LoadTasks() returned %d tasks, want 2", len(tasks))
	}

	entries := f.mirror.GetEntries()
	if len(entries) != 1 || entries[0].ID != "a" {
		t.Errorf("mirror = %+v, want only today's task", entries)
	}
	if f.notifier.count() == 0 {
		t.Error("LoadTasks() did not redraw")
	}

	select {
	case got := <-f.repo.Updates():
		if len(got) != 2 {
			t.Errorf("update carried %d tasks, want 2", len(got))
		}
	default:
		t.Error("LoadTasks() did not publish")
	}
}

func TestLoadTasks_NoSession(t *testing.T) {
	f := newFixture(t, "")
	tasks, err := f.repo.LoadTasks(context.Background())
	if err != nil || len(tasks) != 0 {
		t.Errorf("LoadTasks() without session = %v, %v; want empty, nil", tasks, err)
	}
}

func TestAddTask_Optimistic(t *testing.T) {
	f := newFixture(t, "good")
	ctx := context.Background()

	if err := f.mirror.SaveDirect([]mirror.Entry{
		{ID: "x", SortOrder: 4},
		{ID: "y", SortOrder: 9, Completed: true},
	}); err != nil {
		t.Fatalf("SaveDirect() failed: %v", err)
	}

	task, err := f.repo.AddTask(ctx, "  write report ")
	if err != nil {
		t.Fatalf("AddTask() failed: %v", err)
	}
	if !task.IsTemporary() || task.Text != "write report" || task.Day != today {
		t.Errorf("optimistic task = %+v", task)
	}

	var found bool
	for _, e := range f.mirror.GetEntries() {
		if e.ID == task.ID {
			found = true
			if e.SortOrder != 5 {
				t.Errorf("temp entry sortOrder = %d, want 5", e.SortOrder)
			}
		}
	}
	if !found {
		t.Error("temp entry missing from mirror before sync")
	}
	if f.realtime.suppressed == 0 {
		t.Error("AddTask() did not suppress realtime echo")
	}

	f.repo.Wait()

	tasks := f.repo.Tasks()
	if len(tasks) != 1 || tasks[0].IsTemporary() || tasks[0].Text != "write report" {
		t.Errorf("after sync tasks = %+v, want the stored task", tasks)
	}
	for _, e := range f.mirror.GetEntries() {
		if strings.HasPrefix(e.ID, schema.TempIDPrefix) {
			t.Errorf("temp entry survived reconciliation: %+v", e)
		}
	}
}

func TestAddTask_OfflineRollsBack(t *testing.T) {
	f := newFixture(t, "good")
	f.backend.failWrites = true

	task, err := f.repo.AddTask(context.Background(), "offline")
	if err != nil {
		t.Fatalf("AddTask() failed: %v", err)
	}
	f.repo.Wait()

	for _, e := range f.mirror.GetEntries() {
		if e.ID == task.ID {
			t.Error("optimistic entry not rolled back")
		}
	}
	if got := f.repo.Tasks(); len(got) != 0 {
		t.Errorf("tasks after rollback = %+v, want none", got)
	}
}

func TestAddTask_Validation(t *testing.T) {
	f := newFixture(t, "good")
	if _, err := f.repo.AddTask(context.Background(), "   "); err == nil {
		t.Error("AddTask() with blank text should fail")
	}

	g := newFixture(t, "")
	if _, err := g.repo.AddTask(context.Background(), "x"); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("AddTask() without session = %v, want ErrNotSignedIn", err)
	}
}

func TestToggleTask_LastWriteWins(t *testing.T) {
	f := newFixture(t, "good")
	ctx := context.Background()
	f.backend.seed(schema.Task{ID: "a", Text: "a", Day: today, CreatedAt: "1"})
	if _, err := f.repo.LoadTasks(ctx); err != nil {
		t.Fatalf("LoadTasks() failed: %v", err)
	}

	for _, v := range []bool{true, false, true, true, false} {
		if err := f.repo.ToggleTask(ctx, "a", v); err != nil {
			t.Fatalf("ToggleTask() failed: %v", err)
		}
		f.repo.Wait()
	}

	stored, _ := f.backend.get("a")
	if stored.Completed {
		t.Error("backend completed = true, want the last value false")
	}
	if _, err := f.repo.LoadTasks(ctx); err != nil {
		t.Fatalf("LoadTasks() failed: %v", err)
	}
	entries := f.mirror.GetEntries()
	if len(entries) != 1 || entries[0].Completed != stored.Completed {
		t.Errorf("mirror = %+v, want completed=%v", entries, stored.Completed)
	}
}

func TestToggleTask_ConcurrentConverges(t *testing.T) {
	f := newFixture(t, "good")
	ctx := context.Background()
	f.backend.seed(schema.Task{ID: "a", Text: "a", Day: today, CreatedAt: "1"})
	if _, err := f.repo.LoadTasks(ctx); err != nil {
		t.Fatalf("LoadTasks() failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		if err := f.repo.ToggleTask(ctx, "a", i%2 == 0); err != nil {
			t.Fatalf("ToggleTask() failed: %v", err)
		}
	}
	f.repo.Wait()

	// The backend holds whichever write arrived last; a reload converges on it
	if _, err := f.repo.LoadTasks(ctx); err != nil {
		t.Fatalf("LoadTasks() failed: %v", err)
	}
	stored, _ := f.backend.get("a")
	tasks := f.repo.Tasks()
	if len(tasks) != 1 || tasks[0].Completed != stored.Completed {
		t.Errorf("tasks = %+v, backend completed = %v", tasks, stored.Completed)
	}
}

func TestMutations_SkipEmptyMirror(t *testing.T) {
	f := newFixture(t, "good")
	ctx := context.Background()
	f.backend.seed(schema.Task{ID: "a", Text: "a", Day: "2024-03-01", CreatedAt: "1"})
	f.backend.gate = make(chan struct{})

	before := f.notifier.count()
	if err := f.repo.UpdateTaskText(ctx, "a", "archived edit"); err != nil {
		t.Fatalf("UpdateTaskText() failed: %v", err)
	}
	if f.notifier.count() != before {
		t.Error("empty mirror should not be patched or redrawn")
	}
	close(f.backend.gate)
	f.repo.Wait()

	stored, _ := f.backend.get("a")
	if stored.Text != "archived edit" {
		t.Errorf("backend text = %q, want archived edit", stored.Text)
	}
}

func TestDeleteAndClearCompleted(t *testing.T) {
	f := newFixture(t, "good")
	ctx := context.Background()
	f.backend.seed(
		schema.Task{ID: "a", Text: "a", Day: today, CreatedAt: "3"},
		schema.Task{ID: "b", Text: "b", Day: today, CreatedAt: "2", Completed: true},
		schema.Task{ID: "c", Text: "c", Day: today, CreatedAt: "1"},
		schema.Task{ID: "old", Text: "old", Day: "2024-03-09", CreatedAt: "0", Completed: true},
	)
	if _, err := f.repo.LoadTasks(ctx); err != nil {
		t.Fatalf("LoadTasks() failed: %v", err)
	}

	if err := f.repo.DeleteTask(ctx, "c"); err != nil {
		t.Fatalf("DeleteTask() failed: %v", err)
	}
	for _, e := range f.mirror.GetEntries() {
		if e.ID == "c" {
			t.Error("deleted entry still in mirror")
		}
	}
	f.repo.Wait()

	if err := f.repo.ClearCompleted(ctx); err != nil {
		t.Fatalf("ClearCompleted() failed: %v", err)
	}
	f.repo.Wait()

	if _, ok := f.backend.get("b"); ok {
		t.Error("completed task of today not cleared")
	}
	if _, ok := f.backend.get("old"); !ok {
		t.Error("ClearCompleted() removed an archived task")
	}
	remaining := f.repo.TodayTasks()
	if len(remaining) != 1 || remaining[0].ID != "a" {
		t.Errorf("TodayTasks() = %+v, want [a]", remaining)
	}
}

func TestAuthRetry_RefreshSucceeds(t *testing.T) {
	f := newFixture(t, "expired")
	f.backend.seed(schema.Task{ID: "a", Text: "a", Day: today, CreatedAt: "1"})

	tasks, err := f.repo.LoadTasks(context.Background())
	if err != nil {
		t.Fatalf("LoadTasks() failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("got %d tasks after retry, want 1", len(tasks))
	}
	if f.backend.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", f.backend.refreshes)
	}

	s, err := f.sessions.LoadSession(context.Background())
	if err != nil || s.AccessToken != "good" {
		t.Errorf("stored session = %+v, %v; want refreshed token", s, err)
	}
	if len(f.realtime.tokens) != 1 || f.realtime.tokens[0] != "good" {
		t.Errorf("realtime tokens = %v, want [good]", f.realtime.tokens)
	}
}

func TestAuthRetry_RefreshFailsSignsOut(t *testing.T) {
	f := newFixture(t, "expired")
	f.backend.refreshErr = supabase.ErrUnauthorized
	if err := f.mirror.SaveDirect([]mirror.Entry{{ID: "a"}}); err != nil {
		t.Fatalf("SaveDirect() failed: %v", err)
	}

	_, err := f.repo.LoadTasks(context.Background())
	if !errors.Is(err, supabase.ErrUnauthorized) {
		t.Fatalf("LoadTasks() error = %v, want ErrUnauthorized", err)
	}
	if f.backend.refreshes != 1 {
		t.Errorf("refreshes = %d, want exactly 1", f.backend.refreshes)
	}
	if _, err := f.repo.Session(context.Background()); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("session after failed refresh = %v, want ErrNotSignedIn", err)
	}
	if len(f.mirror.GetEntries()) != 0 {
		t.Error("mirror not cleared on forced sign-out")
	}
	if f.realtime.disconnects == 0 {
		t.Error("realtime not disconnected on forced sign-out")
	}
}

func TestAuthRetry_OnlyOnce(t *testing.T) {
	f := newFixture(t, "expired")
	// Refresh hands back a token the backend still rejects
	f.backend.refreshedToken = "still-bad"

	_, err := f.repo.LoadTasks(context.Background())
	if !errors.Is(err, supabase.ErrUnauthorized) {
		t.Fatalf("LoadTasks() error = %v, want ErrUnauthorized", err)
	}
	if f.backend.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", f.backend.refreshes)
	}
	var lists int
	for _, c := range f.backend.calls {
		if strings.HasPrefix(c, "list:") {
			lists++
		}
	}
	if lists != 2 {
		t.Errorf("list calls = %d, want 2 (original + one retry)", lists)
	}
}

func TestAuthRetry_UpdateTaskText(t *testing.T) {
	f := newFixture(t, "expired")
	ctx := context.Background()
	f.backend.seed(schema.Task{ID: "a", Text: "draft", Day: today, CreatedAt: "1"})
	if err := f.mirror.SaveDirect([]mirror.Entry{{ID: "a", Text: "draft"}}); err != nil {
		t.Fatalf("SaveDirect() failed: %v", err)
	}

	if err := f.repo.UpdateTaskText(ctx, "a", "final"); err != nil {
		t.Fatalf("UpdateTaskText() failed: %v", err)
	}
	f.repo.Wait()

	if f.backend.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", f.backend.refreshes)
	}
	var texts []string
	for _, c := range f.backend.calls {
		if strings.HasPrefix(c, "text:") {
			texts = append(texts, c)
		}
	}
	if len(texts) != 2 || texts[0] != "text:expired" || texts[1] != "text:good" {
		t.Errorf("text calls = %v, want [text:expired text:good]", texts)
	}
	if len(f.realtime.tokens) != 1 || f.realtime.tokens[0] != "good" {
		t.Errorf("realtime tokens = %v, want [good]", f.realtime.tokens)
	}

	stored, _ := f.backend.get("a")
	if stored.Text != "final" {
		t.Errorf("backend text = %q, want final", stored.Text)
	}
	entries := f.mirror.GetEntries()
	if len(entries) != 1 || entries[0].Text != "final" {
		t.Errorf("mirror = %+v, want the edited text", entries)
	}
	if _, err := f.repo.Session(ctx); err != nil {
		t.Errorf("Session() after refresh = %v, want signed in", err)
	}
}

func TestUpdates_MatchesTasksUnderConcurrentWrites(t *testing.T) {
	f := newFixture(t, "good")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.repo.setTasks([]schema.Task{{ID: fmt.Sprintf("t%d", i), Day: today}})
		}(i)
	}
	wg.Wait()

	want := f.repo.Tasks()
	select {
	case got := <-f.repo.Updates():
		if len(got) != 1 || len(want) != 1 || got[0].ID != want[0].ID {
			t.Errorf("latest update = %+v, Tasks() = %+v", got, want)
		}
	default:
		t.Fatal("no update pending")
	}
}

func TestSignInSignOut(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	if _, err := f.repo.SignIn(ctx, "me@example.com", "wrong"); err == nil {
		t.Error("SignIn() with wrong password should fail")
	}
	s, err := f.repo.SignIn(ctx, " me@example.com ", "secret")
	if err != nil {
		t.Fatalf("SignIn() failed: %v", err)
	}
	if s.Email != "me@example.com" {
		t.Errorf("email = %q, want trimmed", s.Email)
	}

	if err := f.repo.ConnectRealtime(ctx); err != nil {
		t.Fatalf("ConnectRealtime() failed: %v", err)
	}
	if !f.realtime.connected {
		t.Error("realtime not connected")
	}

	if err := f.repo.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() failed: %v", err)
	}
	if f.realtime.connected {
		t.Error("realtime still connected after sign out")
	}
	if _, err := f.repo.Session(ctx); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("Session() after sign out = %v", err)
	}
}

func TestReorderAndTodayTasks(t *testing.T) {
	f := newFixture(t, "good")
	ctx := context.Background()
	f.backend.seed(
		schema.Task{ID: "a", Text: "a", Day: today, CreatedAt: "3"},
		schema.Task{ID: "b", Text: "b", Day: today, CreatedAt: "2"},
		schema.Task{ID: "c", Text: "c", Day: today, CreatedAt: "1"},
	)
	if _, err := f.repo.LoadTasks(ctx); err != nil {
		t.Fatalf("LoadTasks() failed: %v", err)
	}

	if err := f.repo.Reorder([]string{"c", "a", "b"}); err != nil {
		t.Fatalf("Reorder() failed: %v", err)
	}
	got := f.repo.TodayTasks()
	if len(got) != 3 || got[0].ID != "c" || got[1].ID != "a" || got[2].ID != "b" {
		t.Errorf("TodayTasks() = %+v, want c a b", got)
	}

	// A reload keeps the manual order
	if _, err := f.repo.LoadTasks(ctx); err != nil {
		t.Fatalf("LoadTasks() failed: %v", err)
	}
	got = f.repo.TodayTasks()
	if got[0].ID != "c" {
		t.Errorf("manual order lost after reload: %+v", got)
	}
}

func TestRun_ReloadsOnChange(t *testing.T) {
	f := newFixture(t, "good")
	f.backend.seed(schema.Task{ID: "a", Text: "a", Day: today, CreatedAt: "1"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.repo.Run(ctx) }()

	f.realtime.changes <- struct{}{}

	select {
	case tasks := <-f.repo.Updates():
		if len(tasks) != 1 {
			t.Errorf("update carried %d tasks, want 1", len(tasks))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop")
	}
}

func TestArchive_FallsBackToHistory(t *testing.T) {
	f := newFixture(t, "good")
	hist := &memHistory{tasks: []schema.Task{
		{ID: "h1", Text: "h1", Day: "2024-03-08"},
		{ID: "h2", Text: "h2", Day: today},
	}}
	f.repo.history = hist

	groups, err := f.repo.Archive(context.Background(), 7)
	if err != nil {
		t.Fatalf("Archive() failed: %v", err)
	}
	if len(groups) != 1 || groups[0].Day != "2024-03-08" {
		t.Errorf("Archive() = %+v", groups)
	}
}

type memHistory struct {
	mu    sync.Mutex
	tasks []schema.Task
}

func (m *memHistory) ReplaceTasks(_ context.Context, tasks []schema.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append([]schema.Task(nil), tasks...)
	return nil
}

func (m *memHistory) ListTasks(context.Context) ([]schema.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schema.Task(nil), m.tasks...), nil
}
