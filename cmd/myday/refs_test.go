package main

import (
	"strings"
	"testing"
	"time"

	"github.com/magicmac/myday/internal/schema"
)

func displayTasks() []schema.Task {
	return []schema.Task{
		{ID: "aaa111", Text: "Write report"},
		{ID: "aab222", Text: "Gym"},
		{ID: "ccc333", Text: "Groceries"},
		{ID: "ddd444", Text: "Call mom", Completed: true},
	}
}

func TestResolveTask(t *testing.T) {
	tasks := displayTasks()

	got, err := resolveTask(tasks, "2")
	if err != nil || got.ID != "aab222" {
		t.Errorf("Expected #2 to be aab222, got %q (%v)", got.ID, err)
	}
	got, err = resolveTask(tasks, "ccc")
	if err != nil || got.ID != "ccc333" {
		t.Errorf("Expected prefix match ccc333, got %q (%v)", got.ID, err)
	}
	got, err = resolveTask(tasks, "ddd444")
	if err != nil || got.Text != "Call mom" {
		t.Errorf("Expected exact id match, got %+v (%v)", got, err)
	}

	if _, err := resolveTask(tasks, "aa"); err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Errorf("Expected ambiguity error, got %v", err)
	}
	if _, err := resolveTask(tasks, "9"); err == nil {
		t.Error("Expected out-of-range error")
	}
	if _, err := resolveTask(tasks, "zzz"); err == nil {
		t.Error("Expected no-match error")
	}
}

func TestReorderIDs(t *testing.T) {
	ids, err := reorderIDs(displayTasks(), []string{"3", "1"})
	if err != nil {
		t.Fatalf("reorderIDs failed: %v", err)
	}
	want := []string{"ccc333", "aaa111", "aab222"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, ids)
	}

	if _, err := reorderIDs(displayTasks(), []string{"4"}); err == nil {
		t.Error("Expected error when reordering a completed task")
	}
}

func TestParseDayArg(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 30, 0, 0, time.Local)

	cases := map[string]string{
		"2025-03-01": "2025-03-01",
		"yesterday":  "2025-03-13",
		"today":      "2025-03-14",
	}
	for arg, want := range cases {
		got, err := parseDayArg(arg, now)
		if err != nil {
			t.Errorf("parseDayArg(%q) failed: %v", arg, err)
			continue
		}
		if got != want {
			t.Errorf("parseDayArg(%q) = %s, want %s", arg, got, want)
		}
	}

	if _, err := parseDayArg("gibberish", now); err == nil {
		t.Error("Expected error for unrecognized input")
	}
}
