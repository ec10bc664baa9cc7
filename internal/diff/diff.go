// Package diff ranks freshly scraped threads by activity gained since the last promotion.
package diff

import (
	"sort"

	"threadpromo/internal/model"
)

// Policy controls which threads are eligible and how many survive.
type Policy struct {
	// MinNewThreadActivity gates threads that have never been promoted.
	MinNewThreadActivity int
	// TopN caps the candidates handed to the classifier.
	TopN int
}

// Dedupe collapses repeated ids or urls, keeping the first encounter.
func Dedupe(threads []model.ThreadRecord) []model.ThreadRecord {
	seenURL := make(map[string]struct{}, len(threads))
	seenID := make(map[string]struct{}, len(threads))
	out := make([]model.ThreadRecord, 0, len(threads))
	for _, t := range threads {
		if _, ok := seenURL[t.URL]; ok { continue }
		if t.ID != "" {
			if _, ok := seenID[t.ID]; ok { continue }
			seenID[t.ID] = struct{}{}
		}
		seenURL[t.URL] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Select returns candidate seeds ordered by diff descending, ties in encounter order.
// history must be the snapshot taken before the run.
func Select(threads []model.ThreadRecord, history map[string]model.HistoryEntry, p Policy) []model.Candidate {
	out := make([]model.Candidate, 0)
	for _, t := range Dedupe(threads) {
		h, known := history[t.URL]
		d := t.ActivityCount
		if known {
			d = t.ActivityCount - h.LastCount
			if d <= 0 { continue }
		} else if t.ActivityCount < p.MinNewThreadActivity {
			continue
		}
		out = append(out, model.Candidate{ThreadRecord: t, Diff: d, Known: known})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Diff > out[j].Diff })
	if p.TopN > 0 && len(out) > p.TopN {
		out = out[:p.TopN]
	}
	return out
}

// Observed maps each url to the activity count seen this run.
func Observed(threads []model.ThreadRecord) map[string]int {
	out := make(map[string]int, len(threads))
	for _, t := range Dedupe(threads) {
		out[t.URL] = t.ActivityCount
	}
	return out
}
