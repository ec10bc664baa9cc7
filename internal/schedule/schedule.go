package schedule

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/robfig/cron/v3"

	"threadpromo/internal/model"
)

// FirstPostingDay returns the calendar day of the next firing of spec strictly after now, in loc.
// "0 0 * * 1" yields next Monday for weekly runs, "0 0 * * *" the next day for daily runs.
func FirstPostingDay(now time.Time, spec string, loc *time.Location) (time.Time, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse start cron %q: %w", spec, err)
	}
	if loc == nil { loc = time.UTC }
	next := sched.Next(now.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("start cron %q never fires", spec)
	}
	return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, loc), nil
}

// Calendar maps a running slot index to a (date, slot) pair, SlotsPerDay per date.
type Calendar struct {
	Start     time.Time
	SlotTimes [model.SlotsPerDay]string
}

// At returns the date, slot and clock time for slot index i.
func (c Calendar) At(i int) (time.Time, model.Slot, string) {
	date := c.Start.AddDate(0, 0, i/model.SlotsPerDay)
	slot := model.Slot(i % model.SlotsPerDay)
	return date, slot, c.SlotTimes[slot]
}

// Tracking builds the query string appended to promoted urls.
type Tracking struct {
	Source       string
	MediumPrefix string
}

// Link returns threadURL with a deterministic tracking query for thread id and posting date.
func (t Tracking) Link(threadURL, threadID string, date time.Time) string {
	return fmt.Sprintf("%s?utm_source=%s&utm_medium=%s&utm_campaign=%s",
		threadURL, url.QueryEscape(t.Source), url.QueryEscape(t.MediumPrefix+threadID), date.Format("20060102"))
}

// ComposeText builds the post body: title, hashtag, tracked url.
func ComposeText(title, hashtag, link string) string {
	return title + "\n" + hashtag + "\n" + link
}

// Titler produces the decorated title for a candidate or an error when none is viable.
type Titler interface {
	Title(ctx context.Context, c model.Candidate) (string, error)
}

// TitlerFunc adapts a function to Titler.
type TitlerFunc func(ctx context.Context, c model.Candidate) (string, error)

func (f TitlerFunc) Title(ctx context.Context, c model.Candidate) (string, error) { return f(ctx, c) }

// Allocator assigns accepted candidates to calendar slots.
type Allocator struct {
	PostCount int
	Calendar  Calendar
	Hashtag   string
	Tracking  Tracking
	Titler    Titler
	// Permute shuffles presentation order; defaults to math/rand/v2 Shuffle.
	Permute func(n int, swap func(i, j int))
	// OnSkip, if set, observes candidates dropped for lack of a title.
	OnSkip func(c model.Candidate, err error)
}

// Allocate truncates accepted to the quota, permutes it and walks it assigning slots.
// Each url is scheduled at most once; untitled candidates consume no slot.
func (a *Allocator) Allocate(ctx context.Context, accepted []model.Candidate) []model.ScheduledPost {
	pool := append([]model.Candidate(nil), accepted...)
	if len(pool) > a.PostCount {
		pool = pool[:a.PostCount]
	}
	permute := a.Permute
	if permute == nil { permute = rand.Shuffle }
	permute(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	used := make(map[string]struct{}, len(pool))
	out := make([]model.ScheduledPost, 0, len(pool))
	for _, c := range pool {
		if len(out) >= a.PostCount { break }
		if ctx.Err() != nil { break }
		if _, ok := used[c.URL]; ok { continue }
		used[c.URL] = struct{}{}
		t, err := a.Titler.Title(ctx, c)
		if err != nil {
			if a.OnSkip != nil { a.OnSkip(c, err) }
			continue
		}
		date, slot, clock := a.Calendar.At(len(out))
		out = append(out, model.ScheduledPost{
			Date:     date,
			Slot:     slot,
			Time:     clock,
			Text:     ComposeText(t, a.Hashtag, a.Tracking.Link(c.URL, c.ID, date)),
			Status:   model.StatusPending,
			URL:      c.URL,
			ThreadID: c.ID,
		})
	}
	return out
}
