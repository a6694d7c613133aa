package schema

import "math"

// VolumeGoal is the number of completed tasks per day that fills the volume
// ring.
const VolumeGoal = 6

// Stats summarizes activity for the ring display.
type Stats struct {
	// DailyCompletionPct is the share of today's tasks that are completed.
	DailyCompletionPct int `json:"daily_completion_pct"`
	// ConsistencyPct is the share of the last 7 days (today included) on
	// which at least 70% of that day's tasks were completed.
	ConsistencyPct int `json:"consistency_pct"`
	// VolumePct is today's completed count against VolumeGoal, capped at 100.
	VolumePct int `json:"volume_pct"`
}

// ComputeStats derives activity stats from a task history.
func ComputeStats(tasks []Task, today string) (Stats, error) {
	type dayCount struct{ total, completed int }
	perDay := make(map[string]*dayCount)
	for _, t := range tasks {
		c, ok := perDay[t.Day]
		if !ok {
			c = &dayCount{}
			perDay[t.Day] = c
		}
		c.total++
		if t.Completed {
			c.completed++
		}
	}

	var s Stats
	if c, ok := perDay[today]; ok && c.total > 0 {
		s.DailyCompletionPct = roundPct(c.completed, c.total)
		s.VolumePct = min(roundPct(c.completed, VolumeGoal), 100)
	}

	const window = 7
	hits := 0
	for i := 0; i < window; i++ {
		day, err := AddDays(today, -i)
		if err != nil {
			return Stats{}, err
		}
		c, ok := perDay[day]
		if !ok || c.total == 0 {
			continue
		}
		if float64(c.completed)/float64(c.total) >= 0.7 {
			hits++
		}
	}
	s.ConsistencyPct = roundPct(hits, window)
	return s, nil
}

func roundPct(n, d int) int {
	return int(math.Round(float64(n) / float64(d) * 100))
}
