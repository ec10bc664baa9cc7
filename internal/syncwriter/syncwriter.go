// Package syncwriter persists one run's outcome: audit table, posting queue and history merge.
package syncwriter

import (
	"context"
	"fmt"
	"sort"
	"time"

	"threadpromo/internal/logging"
	"threadpromo/internal/model"
)

// Store is the persistence surface the writer needs.
type Store interface {
	ReplaceCandidates(ctx context.Context, runID string, cands []model.Candidate) error
	ReplaceQueue(ctx context.Context, posts []model.ScheduledPost) error
	SaveHistory(ctx context.Context, hist map[string]model.HistoryEntry) error
}

type Writer struct {
	store  Store
	runID  string
	dryRun bool
	today  time.Time
}

// New returns a writer stamping merged history entries with today.
func New(store Store, runID string, dryRun bool, today time.Time) *Writer {
	return &Writer{store: store, runID: runID, dryRun: dryRun, today: today}
}

// Sync overwrites both output tables and, unless dry-running, merges observed counts for
// the scheduled urls into history and saves it. It returns the history as persisted.
func (w *Writer) Sync(ctx context.Context, candidates []model.Candidate, scheduled []model.ScheduledPost, history map[string]model.HistoryEntry, observed map[string]int) (map[string]model.HistoryEntry, error) {
	audit := append([]model.Candidate(nil), candidates...)
	sort.SliceStable(audit, func(i, j int) bool { return audit[i].Diff > audit[j].Diff })
	if err := w.store.ReplaceCandidates(ctx, w.runID, audit); err != nil {
		return history, fmt.Errorf("write candidate table: %w", err)
	}
	queue := make([]model.ScheduledPost, len(scheduled))
	for i, p := range scheduled {
		p.Status = model.StatusPending
		queue[i] = p
	}
	if err := w.store.ReplaceQueue(ctx, queue); err != nil {
		return history, fmt.Errorf("write posting queue: %w", err)
	}
	if w.dryRun {
		logging.Info("history_skipped", map[string]any{"run_id": w.runID, "reason": "dry_run"})
		return history, nil
	}
	merged := Merge(history, observed, scheduled, w.today)
	if err := w.store.SaveHistory(ctx, merged); err != nil {
		return history, fmt.Errorf("save history: %w", err)
	}
	return merged, nil
}

// Merge copies history and overwrites entries for exactly the scheduled urls with their observed count.
func Merge(history map[string]model.HistoryEntry, observed map[string]int, scheduled []model.ScheduledPost, today time.Time) map[string]model.HistoryEntry {
	out := make(map[string]model.HistoryEntry, len(history)+len(scheduled))
	for u, e := range history {
		out[u] = e
	}
	for _, p := range scheduled {
		count, ok := observed[p.URL]
		if !ok { continue }
		out[p.URL] = model.HistoryEntry{URL: p.URL, LastCount: count, LastSeen: today}
	}
	return out
}
