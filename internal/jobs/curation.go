package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"threadpromo/internal/config"
	"threadpromo/internal/diff"
	"threadpromo/internal/llm"
	"threadpromo/internal/logging"
	"threadpromo/internal/metrics"
	"threadpromo/internal/model"
	"threadpromo/internal/retry"
	"threadpromo/internal/risk"
	"threadpromo/internal/schedule"
	"threadpromo/internal/syncwriter"
	"threadpromo/internal/title"
)

// ThreadSource lists the threads currently on the board.
type ThreadSource interface {
	FetchThreads(ctx context.Context) ([]model.ThreadRecord, error)
}

// TextSource returns the concatenated comment text of a thread, or "" when none could be read.
type TextSource interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// HistoryStore is the persistence a curation run reads from and writes to.
type HistoryStore interface {
	LoadHistory(ctx context.Context) (map[string]model.HistoryEntry, error)
	syncwriter.Store
}

// Deps are the collaborators of one curation run.
type Deps struct {
	Threads ThreadSource
	Texts   TextSource
	Store   HistoryStore
	Oracle  llm.Oracle
	// Now defaults to time.Now; Permute defaults to a random shuffle.
	Now     func() time.Time
	Permute func(n int, swap func(i, j int))
}

// Report holds the per-stage counts of a run.
type Report struct {
	RunID        string
	Fetched      int
	Selected     int
	DroppedEmpty int
	Classified   int
	Accepted     int
	Scheduled    int
	Posts        []model.ScheduledPost
}

// RunCurationOnce runs the whole pipeline: diff, classify, title, schedule and sync.
// It holds the run lock for its duration when storage.lockPath is set.
func RunCurationOnce(ctx context.Context, deps Deps, cfg config.Config) (Report, error) {
	rep := Report{RunID: uuid.NewString()}
	if err := cfg.Validate(); err != nil { return rep, fmt.Errorf("invalid config: %w", err) }
	if cfg.Storage.LockPath != "" {
		unlock, err := AcquireRunLock(cfg.Storage.LockPath)
		if err != nil { return rep, err }
		defer unlock()
	}
	start := time.Now()
	defer metrics.ObserveRunDuration(start)
	now := time.Now
	if deps.Now != nil { now = deps.Now }
	loc, err := cfg.Location()
	if err != nil { return rep, fmt.Errorf("load timezone: %w", err) }
	runAt := now().In(loc)
	fields := func(extra map[string]any) map[string]any {
		f := map[string]any{"run_id": rep.RunID}
		for k, v := range extra { f[k] = v }
		return f
	}
	logging.Info("run_start", fields(map[string]any{"dry_run": cfg.DryRun}))

	threads, err := deps.Threads.FetchThreads(ctx)
	if err != nil { return rep, fmt.Errorf("fetch threads: %w", err) }
	threads = diff.Dedupe(threads)
	rep.Fetched = stage(rep.RunID, "fetched", len(threads))

	history, err := deps.Store.LoadHistory(ctx)
	if err != nil { return rep, fmt.Errorf("load history: %w", err) }

	selected := diff.Select(threads, history, diff.Policy{
		MinNewThreadActivity: cfg.Selection.MinNewThreadActivity,
		TopN:                 cfg.Selection.TopN,
	})
	rep.Selected = stage(rep.RunID, "selected", len(selected))

	classifier := risk.NewClassifier(deps.Oracle, cfg.LLM.ClassifyMaxTokens)
	texts := make(map[string]string, len(selected))
	classified := make([]model.Candidate, 0, len(selected))
	var accepted []model.Candidate
	for _, c := range selected {
		if err := ctx.Err(); err != nil { return rep, err }
		text, err := deps.Texts.FetchText(ctx, c.URL)
		if err != nil {
			logging.Warn("thread_text_failed", fields(map[string]any{"url": c.URL, "error": err.Error()}))
		}
		if strings.TrimSpace(text) == "" {
			rep.DroppedEmpty++
			continue
		}
		texts[c.URL] = text
		classifier.Apply(ctx, &c, text)
		logging.Debug("classified", fields(map[string]any{"url": c.URL, "risk": c.Risk.String(), "decision": c.Decision.String()}))
		classified = append(classified, c)
		if c.Decision == model.Accept { accepted = append(accepted, c) }
	}
	stage(rep.RunID, "dropped_empty", rep.DroppedEmpty)
	rep.Classified = stage(rep.RunID, "classified", len(classified))
	rep.Accepted = stage(rep.RunID, "accepted", len(accepted))

	first, err := schedule.FirstPostingDay(runAt, cfg.Schedule.StartCron, loc)
	if err != nil { return rep, fmt.Errorf("first posting day: %w", err) }
	gen := title.NewGenerator(deps.Oracle, title.Rules{
		BannedWords:   cfg.Titles.BannedWords,
		CTA:           cfg.Titles.CTA,
		OverallBudget: cfg.Titles.OverallBudget,
		Sentinel:      cfg.Titles.Sentinel,
	},
		retry.Policy{MaxRetries: cfg.Titles.BaseRetries, Delay: cfg.Titles.RetryBackoff},
		retry.Policy{MaxRetries: cfg.Titles.ExtraRetries, Delay: cfg.Titles.ExtraBackoff},
		cfg.LLM.TitleMaxTokens)
	alloc := &schedule.Allocator{
		PostCount: cfg.Schedule.PostCount,
		Calendar:  schedule.Calendar{Start: first, SlotTimes: [2]string{cfg.Schedule.SlotTimes[0], cfg.Schedule.SlotTimes[1]}},
		Hashtag:   cfg.Titles.Hashtag,
		Tracking:  schedule.Tracking{Source: cfg.Schedule.UTMSource, MediumPrefix: cfg.Schedule.MediumPrefix},
		Titler: schedule.TitlerFunc(func(ctx context.Context, c model.Candidate) (string, error) {
			// the first attempt reuses the text already read for classification
			cached, fresh := texts[c.URL], false
			return gen.GenerateWithRefetch(ctx, func(ctx context.Context) (string, error) {
				if !fresh {
					fresh = true
					return cached, nil
				}
				return deps.Texts.FetchText(ctx, c.URL)
			})
		}),
		Permute: deps.Permute,
		OnSkip: func(c model.Candidate, err error) {
			f := fields(map[string]any{"url": c.URL, "error": err.Error()})
			if errors.Is(err, title.ErrNotViable) {
				logging.Warn("title_skipped", f)
				return
			}
			logging.Error("title_skipped", f)
		},
	}
	rep.Posts = alloc.Allocate(ctx, accepted)
	if err := ctx.Err(); err != nil { return rep, err }
	rep.Scheduled = stage(rep.RunID, "scheduled", len(rep.Posts))

	w := syncwriter.New(deps.Store, rep.RunID, cfg.DryRun, time.Date(runAt.Year(), runAt.Month(), runAt.Day(), 0, 0, 0, 0, loc))
	if _, err := w.Sync(ctx, classified, rep.Posts, history, diff.Observed(threads)); err != nil {
		return rep, err
	}
	logging.Info("run_done", fields(map[string]any{
		"fetched": rep.Fetched, "selected": rep.Selected, "dropped_empty": rep.DroppedEmpty,
		"classified": rep.Classified, "accepted": rep.Accepted, "scheduled": rep.Scheduled,
		"first_day": first.Format(model.DateLabel), "elapsed_ms": time.Since(start).Milliseconds(),
	}))
	return rep, nil
}

func stage(runID, name string, n int) int {
	metrics.AddStage(name, n)
	logging.Info("stage", map[string]any{"run_id": runID, "stage": name, "count": n})
	return n
}
