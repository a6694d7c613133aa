package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/magicmac/myday/internal/schema"
)

// resolveTask finds a task by its 1-based position in the displayed list,
// its id, or a unique id prefix.
func resolveTask(tasks []schema.Task, ref string) (schema.Task, error) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(tasks) {
			return schema.Task{}, fmt.Errorf("no task #%d (today has %d)", n, len(tasks))
		}
		return tasks[n-1], nil
	}

	var match *schema.Task
	for i := range tasks {
		t := &tasks[i]
		if t.ID == ref {
			return *t, nil
		}
		if ref != "" && strings.HasPrefix(t.ID, ref) {
			if match != nil {
				return schema.Task{}, fmt.Errorf("task id prefix %q is ambiguous", ref)
			}
			match = t
		}
	}
	if match == nil {
		return schema.Task{}, fmt.Errorf("no task matches %q", ref)
	}
	return *match, nil
}

// reorderIDs puts the named tasks first, in the given order, followed by
// the remaining incomplete tasks in their current order.
func reorderIDs(display []schema.Task, refs []string) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, ref := range refs {
		t, err := resolveTask(display, ref)
		if err != nil {
			return nil, err
		}
		if t.Completed {
			return nil, fmt.Errorf("task %q is completed; only open tasks can be reordered", t.Text)
		}
		if !seen[t.ID] {
			seen[t.ID] = true
			ids = append(ids, t.ID)
		}
	}
	for _, t := range display {
		if !t.Completed && !seen[t.ID] {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

var dayParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDayArg turns "2025-03-14", "yesterday" or "last friday" into a day
// key relative to now.
func parseDayArg(arg string, now time.Time) (string, error) {
	arg = strings.TrimSpace(arg)
	if _, err := schema.ParseDay(arg); err == nil {
		return arg, nil
	}
	r, err := dayParser.Parse(arg, now)
	if err != nil {
		return "", fmt.Errorf("failed to parse day %q: %w", arg, err)
	}
	if r == nil {
		return "", fmt.Errorf("unrecognized day %q", arg)
	}
	return schema.DayKey(r.Time), nil
}
