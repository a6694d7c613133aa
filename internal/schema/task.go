// Package schema provides the data structures shared by the myday client,
// its local caches and the insights server.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DayLayout is the layout of a day key (YYYY-MM-DD).
const DayLayout = "2006-01-02"

// TempIDPrefix marks ids of optimistic tasks that the backend has not
// confirmed yet.
const TempIDPrefix = "temp-"

// Task is a row of the backend tasks table.
//
// A task belongs to exactly one calendar day. The day is set at creation and
// never changes; tasks whose day is not today are considered archived.
type Task struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id,omitempty"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"created_at"` // RFC 3339 timestamp as returned by the API
	Day       string `json:"day"`
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(t.Text) == "" {
		return fmt.Errorf("text is required")
	}
	if _, err := ParseDay(t.Day); err != nil {
		return fmt.Errorf("invalid day %q: %w", t.Day, err)
	}
	return nil
}

// IsTemporary reports whether the task is an optimistic placeholder.
func (t *Task) IsTemporary() bool {
	return strings.HasPrefix(t.ID, TempIDPrefix)
}

// DayKey returns the day key of t in t's location.
func DayKey(t time.Time) string {
	return t.Format(DayLayout)
}

// TodayKey returns the day key for the device's local calendar date.
func TodayKey() string {
	return DayKey(time.Now())
}

// ParseDay parses a day key in the local time zone.
func ParseDay(day string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, day, time.Local)
}

// AddDays shifts a day key by n calendar days.
func AddDays(day string, n int) (string, error) {
	t, err := ParseDay(day)
	if err != nil {
		return "", err
	}
	return DayKey(t.AddDate(0, 0, n)), nil
}

// FilterDay returns the tasks whose day equals day, preserving order.
func FilterDay(tasks []Task, day string) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Day == day {
			out = append(out, t)
		}
	}
	return out
}

// SortForDisplay orders today's tasks the way every surface shows them:
// incomplete tasks first by manual sort order (unknown ids last), then
// completed tasks by recency. Ties fall back to newest first.
func SortForDisplay(tasks []Task, sortOrder map[string]int) []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)

	rank := func(t Task) int {
		if t.Completed {
			return 0
		}
		if order, ok := sortOrder[t.ID]; ok {
			return order
		}
		return int(^uint(0) >> 1)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Completed != b.Completed {
			return !a.Completed
		}
		if ra, rb := rank(a), rank(b); ra != rb {
			return ra < rb
		}
		return a.CreatedAt > b.CreatedAt
	})
	return out
}

// DayGroup is the set of tasks recorded on one archived day.
type DayGroup struct {
	Day   string
	Tasks []Task
}

// Archive groups tasks that are not from today and no older than days
// before today. Groups are ordered newest day first.
func Archive(tasks []Task, today string, days int) ([]DayGroup, error) {
	cutoff, err := AddDays(today, -days)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string][]Task)
	for _, t := range tasks {
		if t.Day == today || t.Day < cutoff {
			continue
		}
		byDay[t.Day] = append(byDay[t.Day], t)
	}

	groups := make([]DayGroup, 0, len(byDay))
	for day, dayTasks := range byDay {
		groups = append(groups, DayGroup{Day: day, Tasks: dayTasks})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Day > groups[j].Day })
	return groups, nil
}
