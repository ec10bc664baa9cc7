// Package dispatch publishes queue rows whose slot time has passed.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"threadpromo/internal/config"
	"threadpromo/internal/logging"
	"threadpromo/internal/metrics"
	"threadpromo/internal/model"
	"threadpromo/internal/store/sqlitedb"
)

// Poster publishes one post and returns its remote id.
type Poster interface {
	CreatePost(ctx context.Context, text string) (string, error)
}

// QueueStore is the queue and action log the dispatcher works against.
type QueueStore interface {
	LoadQueue(ctx context.Context) ([]sqlitedb.QueueRow, error)
	MarkPost(ctx context.Context, id int64, status model.PostStatus, at time.Time) error
	ActionLog
}

type Result struct {
	Posted   int
	Failed   int
	Deferred int
}

// DueAt is the instant a queue row becomes due: its date and clock time in loc.
func DueAt(p model.ScheduledPost, loc *time.Location) (time.Time, error) {
	clock, err := time.Parse("15:04", p.Time)
	if err != nil { return time.Time{}, fmt.Errorf("queue time %q: %w", p.Time, err) }
	return time.Date(p.Date.Year(), p.Date.Month(), p.Date.Day(), clock.Hour(), clock.Minute(), 0, 0, loc), nil
}

// Due filters the Pending rows that are due at now.
func Due(rows []sqlitedb.QueueRow, now time.Time, loc *time.Location) []sqlitedb.QueueRow {
	var out []sqlitedb.QueueRow
	for _, r := range rows {
		if r.Status != model.StatusPending { continue }
		at, err := DueAt(r.ScheduledPost, loc)
		if err != nil {
			logging.Warn("queue_row_invalid", map[string]any{"id": r.ID, "error": err.Error()})
			continue
		}
		if !at.After(now) { out = append(out, r) }
	}
	return out
}

// DispatchDue posts every due row in calendar order and marks it Posted or Error.
// Rows beyond the post budget stay Pending for the next pass.
func DispatchDue(ctx context.Context, store QueueStore, poster Poster, cfg config.DispatchConfig, now time.Time, loc *time.Location) (Result, error) {
	var res Result
	if loc == nil { loc = time.UTC }
	rows, err := store.LoadQueue(ctx)
	if err != nil { return res, fmt.Errorf("load queue: %w", err) }
	due := Due(rows, now, loc)
	for i, r := range due {
		if err := ctx.Err(); err != nil { return res, err }
		ok, err := Allow(ctx, store, cfg, now, loc)
		if err != nil { return res, fmt.Errorf("check budget: %w", err) }
		if !ok {
			res.Deferred = len(due) - i
			logging.Info("dispatch_deferred", map[string]any{"remaining": res.Deferred})
			break
		}
		id, err := poster.CreatePost(ctx, r.Text)
		if err != nil {
			metrics.IncDispatch("error")
			res.Failed++
			logging.Error("post_failed", map[string]any{"id": r.ID, "url": r.URL, "error": err.Error()})
			if err := store.MarkPost(ctx, r.ID, model.StatusError, now); err != nil { return res, err }
			continue
		}
		metrics.IncDispatch("posted")
		res.Posted++
		logging.Info("posted", map[string]any{"id": r.ID, "url": r.URL, "post_id": id})
		// the post is live: never abort the pass here, the remaining rows still get their turn
		if err := Record(ctx, store, now); err != nil {
			logging.Error("record_action_failed", map[string]any{"id": r.ID, "post_id": id, "error": err.Error()})
		}
		if err := store.MarkPost(ctx, r.ID, model.StatusPosted, now); err != nil {
			logging.Error("mark_posted_failed", map[string]any{"id": r.ID, "url": r.URL, "post_id": id, "error": err.Error()})
		}
	}
	return res, nil
}
