package dispatch

import (
	"context"
	"time"

	"threadpromo/internal/config"
)

const actionPost = "post"

// ActionLog counts outbound actions for budget accounting.
type ActionLog interface {
	PutAction(ctx context.Context, ts time.Time, typ string) error
	CountActionsWithin(ctx context.Context, start, end time.Time, typ string) (int, error)
}

// Allow reports whether another post fits the hourly and daily budgets. Windows are
// calendar hours and days in loc; a zero budget is unlimited.
func Allow(ctx context.Context, log ActionLog, cfg config.DispatchConfig, now time.Time, loc *time.Location) (bool, error) {
	if loc == nil { loc = time.UTC }
	now = now.In(loc)
	startHour := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, loc)
	startDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if cfg.MaxPerHour > 0 {
		n, err := log.CountActionsWithin(ctx, startHour, startHour.Add(time.Hour), actionPost)
		if err != nil { return false, err }
		if n >= cfg.MaxPerHour { return false, nil }
	}
	if cfg.MaxPerDay > 0 {
		n, err := log.CountActionsWithin(ctx, startDay, startDay.AddDate(0, 0, 1), actionPost)
		if err != nil { return false, err }
		if n >= cfg.MaxPerDay { return false, nil }
	}
	return true, nil
}

// Record logs a successful post against the budgets.
func Record(ctx context.Context, log ActionLog, now time.Time) error {
	return log.PutAction(ctx, now, actionPost)
}
