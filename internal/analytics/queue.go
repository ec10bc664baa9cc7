// Package analytics aggregates the posting queue for inspection.
package analytics

import (
	"sort"
	"time"

	"threadpromo/internal/model"
)

// DayStatus is the per-status row count of one posting date.
type DayStatus struct {
	Date   time.Time
	Counts map[model.PostStatus]int
}

// QueueByDay buckets queue rows per posting date, oldest first.
func QueueByDay(posts []model.ScheduledPost) []DayStatus {
	buckets := make(map[time.Time]map[model.PostStatus]int)
	for _, p := range posts {
		key := time.Date(p.Date.Year(), p.Date.Month(), p.Date.Day(), 0, 0, 0, 0, time.UTC)
		if _, ok := buckets[key]; !ok {
			buckets[key] = make(map[model.PostStatus]int)
		}
		buckets[key][p.Status]++
	}
	out := make([]DayStatus, 0, len(buckets))
	for k, v := range buckets {
		out = append(out, DayStatus{Date: k, Counts: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
