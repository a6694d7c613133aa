// Package insights turns two weeks of task history into coaching feedback
// from an LLM and serves it, together with the admin user-creation route,
// over HTTP.
package insights

import (
	"fmt"
	"strings"

	"github.com/magicmac/myday/internal/schema"
)

// WindowDays is the number of calendar days, today included, that are
// summarized for a report.
const WindowDays = 14

// MinDays is the fewest distinct days with tasks needed for a report.
const MinDays = 2

// DaySummary aggregates the tasks of one day.
type DaySummary struct {
	Day        string   `json:"day"`
	Total      int      `json:"total"`
	Completed  int      `json:"completed"`
	Incomplete int      `json:"incomplete"`
	Tasks      []string `json:"tasks"`
}

// Cutoff returns the first day of the window that ends on today.
func Cutoff(today string) (string, error) {
	return schema.AddDays(today, -(WindowDays - 1))
}

// Aggregate groups tasks by day. Days appear in the order they are first
// seen, so tasks sorted by day yield summaries sorted by day.
func Aggregate(tasks []schema.Task) []DaySummary {
	index := make(map[string]int)
	var out []DaySummary
	for _, t := range tasks {
		i, ok := index[t.Day]
		if !ok {
			i = len(out)
			index[t.Day] = i
			out = append(out, DaySummary{Day: t.Day})
		}
		s := &out[i]
		s.Total++
		if t.Completed {
			s.Completed++
		} else {
			s.Incomplete++
		}
		s.Tasks = append(s.Tasks, t.Text)
	}
	return out
}

// SummaryText renders one line per day for the prompt.
func SummaryText(days []DaySummary) string {
	lines := make([]string, 0, len(days))
	for _, d := range days {
		lines = append(lines, fmt.Sprintf("%s: %d/%d completed. Tasks: %s",
			d.Day, d.Completed, d.Total, strings.Join(d.Tasks, ", ")))
	}
	return strings.Join(lines, "\n")
}
