package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"threadpromo/internal/logging"
)

// Task is one scheduled unit of work in serve mode.
type Task struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Serve runs every task on its cron schedule in loc until ctx is cancelled.
// Overlapping firings of the same task are skipped.
func Serve(ctx context.Context, loc *time.Location, tasks ...Task) error {
	if loc == nil { loc = time.UTC }
	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	for _, t := range tasks {
		if t.Spec == "" { continue }
		t := t
		if _, err := c.AddFunc(t.Spec, func() {
			start := time.Now()
			if err := t.Run(ctx); err != nil {
				logging.Error("task_error", map[string]any{"task": t.Name, "error": err.Error()})
				return
			}
			logging.Info("task_done", map[string]any{"task": t.Name, "elapsed_ms": time.Since(start).Milliseconds()})
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", t.Name, err)
		}
		logging.Info("task_scheduled", map[string]any{"task": t.Name, "spec": t.Spec})
	}
	c.Start()
	<-ctx.Done()
	logging.Info("serve_stop", nil)
	<-c.Stop().Done()
	return ctx.Err()
}
