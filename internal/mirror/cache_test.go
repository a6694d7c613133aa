package mirror

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/magicmac/myday/internal/schema"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	return New(filepath.Join(t.TempDir(), FileName))
}

func TestGetEntries_MissingOrCorrupt(t *testing.T) {
	c := testCache(t)

	if got := c.GetEntries(); len(got) != 0 {
		t.Errorf("GetEntries() on missing file = %v, want empty", got)
	}

	if err := os.WriteFile(c.Path(), []byte("{not json"), 0600); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}
	got := c.GetEntries()
	if got == nil || len(got) != 0 {
		t.Errorf("GetEntries() on corrupt file = %v, want empty non-nil", got)
	}
}

func TestSaveFromServerTasks_PreservesSortOrder(t *testing.T) {
	c := testCache(t)
	today := "2024-03-10"

	err := c.SaveDirect([]Entry{
		{ID: "a", Text: "a", SortOrder: 5},
		{ID: "b", Text: "b", SortOrder: 0},
	})
	if err != nil {
		t.Fatalf("SaveDirect() failed: %v", err)
	}

	tasks := []schema.Task{
		{ID: "n1", Text: "new one", Day: today, CreatedAt: "3"},
		{ID: "b", Text: "b edited", Day: today, Completed: true, CreatedAt: "2"},
		{ID: "old", Text: "yesterday", Day: "2024-03-09", CreatedAt: "1"},
		{ID: "a", Text: "a", Day: today, CreatedAt: "1"},
		{ID: "n2", Text: "new two", Day: today, CreatedAt: "0"},
	}
	if err := c.SaveFromServerTasks(tasks, today); err != nil {
		t.Fatalf("SaveFromServerTasks() failed: %v", err)
	}

	got := c.GetEntries()
	want := map[string]int{"n1": 2, "b": 0, "a": 5, "n2": 3}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(got), len(want), got)
	}
	for _, e := range got {
		if e.SortOrder != want[e.ID] {
			t.Errorf("entry %s sortOrder = %d, want %d", e.ID, e.SortOrder, want[e.ID])
		}
		if e.ID == "b" && (!e.Completed || e.Text != "b edited") {
			t.Errorf("entry b not refreshed from server: %+v", e)
		}
	}
}

func TestSaveFromServerTasks_IdempotentOrder(t *testing.T) {
	c := testCache(t)
	today := "2024-03-10"
	tasks := []schema.Task{
		{ID: "x", Text: "x", Day: today},
		{ID: "y", Text: "y", Day: today},
	}
	for i := 0; i < 3; i++ {
		if err := c.SaveFromServerTasks(tasks, today); err != nil {
			t.Fatalf("SaveFromServerTasks() failed: %v", err)
		}
	}
	got := c.GetEntries()
	if got[0].SortOrder != 0 || got[1].SortOrder != 1 {
		t.Errorf("repeated sync changed order: %+v", got)
	}
}

func TestSortedAndReorder(t *testing.T) {
	c := testCache(t)
	err := c.SaveDirect([]Entry{
		{ID: "done-old", Completed: true, CreatedAt: "1", SortOrder: 0},
		{ID: "p", SortOrder: 2},
		{ID: "q", SortOrder: 1},
		{ID: "done-new", Completed: true, CreatedAt: "9", SortOrder: 7},
		{ID: "r", SortOrder: 3},
	})
	if err != nil {
		t.Fatalf("SaveDirect() failed: %v", err)
	}

	assertOrder(t, c.Sorted(), "q", "p", "r", "done-new", "done-old")

	if err := c.Reorder([]string{"r", "p", "done-old", "missing", "q"}); err != nil {
		t.Fatalf("Reorder() failed: %v", err)
	}
	assertOrder(t, c.Sorted(), "r", "p", "q", "done-new", "done-old")

	for _, e := range c.GetEntries() {
		if e.ID == "done-old" && e.SortOrder != 0 {
			t.Errorf("completed entry sortOrder changed to %d", e.SortOrder)
		}
	}
}

func TestMaxIncompleteOrder(t *testing.T) {
	if got := MaxIncompleteOrder(nil); got != -1 {
		t.Errorf("MaxIncompleteOrder(nil) = %d, want -1", got)
	}
	entries := []Entry{{SortOrder: 2}, {SortOrder: 9, Completed: true}, {SortOrder: 4}}
	if got := MaxIncompleteOrder(entries); got != 4 {
		t.Errorf("MaxIncompleteOrder() = %d, want 4", got)
	}
}

func TestIsOwnWrite(t *testing.T) {
	c := testCache(t)
	if err := c.SaveDirect([]Entry{{ID: "a"}}); err != nil {
		t.Fatalf("SaveDirect() failed: %v", err)
	}
	if !c.IsOwnWrite() {
		t.Error("IsOwnWrite() should be true right after our write")
	}

	if err := os.WriteFile(c.Path(), []byte(`[{"id":"b"}]`), 0600); err != nil {
		t.Fatalf("external write failed: %v", err)
	}
	if c.IsOwnWrite() {
		t.Error("IsOwnWrite() should be false after an external write")
	}
}

func assertOrder(t *testing.T, entries []Entry, ids ...string) {
	t.Helper()
	if len(entries) != len(ids) {
		t.Fatalf("got %d entries, want %d", len(entries), len(ids))
	}
	for i, id := range ids {
		if entries[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, entries[i].ID, id)
		}
	}
}
