package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"threadpromo/internal/config"
	"threadpromo/internal/model"
	"threadpromo/internal/store/sqlitedb"
)

type fakePoster struct {
	texts []string
	fail  map[string]bool
}

func (f *fakePoster) CreatePost(ctx context.Context, text string) (string, error) {
	if f.fail[text] { return "", errors.New("403 duplicate content") }
	f.texts = append(f.texts, text)
	return "1850000000000000000", nil
}

func day(d int) time.Time { return time.Date(2026, 10, d, 0, 0, 0, 0, time.UTC) }

func seed(t *testing.T) *sqlitedb.DB {
	db, err := sqlitedb.Open(":memory:")
	if err != nil { t.Fatal(err) }
	t.Cleanup(func() { _ = db.Close() })
	posts := []model.ScheduledPost{
		{Date: day(19), Slot: model.Morning, Time: "08:00", Text: "a", URL: "u1"},
		{Date: day(19), Slot: model.Afternoon, Time: "15:00", Text: "b", URL: "u2"},
		{Date: day(20), Slot: model.Morning, Time: "08:00", Text: "c", URL: "u3"},
	}
	if err := db.ReplaceQueue(context.Background(), posts); err != nil { t.Fatal(err) }
	return db
}

func TestDispatchPostsOnlyDueRows(t *testing.T) {
	db := seed(t)
	ctx := context.Background()
	p := &fakePoster{}
	now := time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)
	res, err := DispatchDue(ctx, db, p, config.DispatchConfig{}, now, time.UTC)
	if err != nil { t.Fatal(err) }
	if res.Posted != 2 || len(p.texts) != 2 || p.texts[0] != "a" || p.texts[1] != "b" { t.Fatalf("res=%+v texts=%v", res, p.texts) }
	rows, _ := db.LoadQueue(ctx)
	if rows[0].Status != model.StatusPosted || rows[1].Status != model.StatusPosted || rows[2].Status != model.StatusPending {
		t.Fatalf("unexpected statuses %+v", rows)
	}
	if !rows[0].AttemptedAt.Equal(now) { t.Fatalf("attempted_at = %v", rows[0].AttemptedAt) }
	// second pass has nothing left to do
	res, _ = DispatchDue(ctx, db, p, config.DispatchConfig{}, now, time.UTC)
	if res.Posted != 0 { t.Fatalf("rows must not be posted twice: %+v", res) }
}

func TestDispatchMarksFailures(t *testing.T) {
	db := seed(t)
	ctx := context.Background()
	p := &fakePoster{fail: map[string]bool{"a": true}}
	res, err := DispatchDue(ctx, db, p, config.DispatchConfig{}, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC), time.UTC)
	if err != nil { t.Fatal(err) }
	if res.Failed != 1 || res.Posted != 0 { t.Fatalf("res=%+v", res) }
	rows, _ := db.LoadQueue(ctx)
	if rows[0].Status != model.StatusError { t.Fatalf("status = %s", rows[0].Status) }
}

// stickyStore fails every Posted update, as a locked or full disk would.
type stickyStore struct{ *sqlitedb.DB }

func (s stickyStore) MarkPost(ctx context.Context, id int64, status model.PostStatus, at time.Time) error {
	if status == model.StatusPosted { return errors.New("database is locked") }
	return s.DB.MarkPost(ctx, id, status, at)
}

func TestDispatchKeepsGoingWhenMarkPostedFails(t *testing.T) {
	db := seed(t)
	ctx := context.Background()
	p := &fakePoster{}
	now := time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)
	res, err := DispatchDue(ctx, stickyStore{db}, p, config.DispatchConfig{}, now, time.UTC)
	if err != nil { t.Fatalf("a live post must not abort the pass: %v", err) }
	if res.Posted != 2 || len(p.texts) != 2 { t.Fatalf("res=%+v texts=%v", res, p.texts) }
	// both sends still count against the budgets
	n, _ := db.CountActionsWithin(ctx, day(19), day(20), actionPost)
	if n != 2 { t.Fatalf("actions = %d, want 2", n) }
}

func TestDispatchDefersOverBudget(t *testing.T) {
	db := seed(t)
	ctx := context.Background()
	p := &fakePoster{}
	res, err := DispatchDue(ctx, db, p, config.DispatchConfig{MaxPerHour: 1}, time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC), time.UTC)
	if err != nil { t.Fatal(err) }
	if res.Posted != 1 || res.Deferred != 2 { t.Fatalf("res=%+v", res) }
	n, _ := db.CountActionsWithin(ctx, day(20), day(21), actionPost)
	if n != 1 { t.Fatalf("actions = %d", n) }
}

func TestDueAtUsesLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	at, err := DueAt(model.ScheduledPost{Date: day(19), Time: "08:00"}, tokyo)
	if err != nil { t.Fatal(err) }
	if !at.Equal(time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC)) { t.Fatalf("due at %v", at) }
	if _, err := DueAt(model.ScheduledPost{Date: day(19), Time: "8am"}, tokyo); err == nil { t.Fatal("expected parse error") }
}
