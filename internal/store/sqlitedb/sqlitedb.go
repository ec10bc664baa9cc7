package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"threadpromo/internal/model"
)

const dayLayout = "2006-01-02"

// DB wraps the SQLite database holding history, the candidate audit table and the posting queue.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil { return nil, err }
	// one connection: ":memory:" databases are per-connection and runs are single-writer anyway
	d.SetMaxOpenConns(1)
	// serve mode runs curation and dispatch against the same file; wait on locks instead of SQLITE_BUSY
	if _, err := d.Exec(`PRAGMA busy_timeout=5000; PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil { _ = d.Close(); return nil, err }
	db := &DB{sql: d}
	if err := db.migrate(); err != nil { _ = d.Close(); return nil, err }
	return db, nil
}

// Wrap uses an already opened handle without running migrations.
func Wrap(d *sql.DB) *DB { return &DB{sql: d} }

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS history (
	  url TEXT PRIMARY KEY,
	  last_count INTEGER NOT NULL,
	  last_seen TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS candidates (
	  position INTEGER PRIMARY KEY,
	  run_id TEXT NOT NULL,
	  url TEXT NOT NULL,
	  thread_id TEXT NOT NULL,
	  title TEXT NOT NULL,
	  activity INTEGER NOT NULL,
	  diff INTEGER NOT NULL,
	  risk TEXT NOT NULL,
	  verdict TEXT NOT NULL,
	  decision TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS post_queue (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  date TEXT NOT NULL,
	  slot TEXT NOT NULL,
	  time TEXT NOT NULL,
	  text TEXT NOT NULL,
	  status TEXT NOT NULL,
	  url TEXT NOT NULL,
	  thread_id TEXT NOT NULL,
	  attempted_at INTEGER
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_slot ON post_queue(date, slot);
	CREATE TABLE IF NOT EXISTS actions (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  ts INTEGER NOT NULL,
	  type TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_actions_ts ON actions(ts);
	`)
	return err
}

// LoadHistory returns the full url -> entry map.
func (d *DB) LoadHistory(ctx context.Context) (map[string]model.HistoryEntry, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT url, last_count, last_seen FROM history`)
	if err != nil { return nil, fmt.Errorf("load history: %w", err) }
	defer rows.Close()
	out := make(map[string]model.HistoryEntry)
	for rows.Next() {
		var e model.HistoryEntry
		var seen string
		if err := rows.Scan(&e.URL, &e.LastCount, &seen); err != nil { return nil, fmt.Errorf("load history: %w", err) }
		if e.LastSeen, err = time.Parse(dayLayout, seen); err != nil {
			return nil, fmt.Errorf("load history: url %s: bad last_seen %q: %w", e.URL, seen, err)
		}
		out[e.URL] = e
	}
	return out, rows.Err()
}

// SaveHistory replaces the stored history wholesale.
func (d *DB) SaveHistory(ctx context.Context, hist map[string]model.HistoryEntry) error {
	urls := make([]string, 0, len(hist))
	for u := range hist { urls = append(urls, u) }
	sort.Strings(urls)
	return d.replace(ctx, "history", `INSERT INTO history(url, last_count, last_seen) VALUES(?,?,?)`, len(urls), func(i int) []any {
		e := hist[urls[i]]
		return []any{urls[i], e.LastCount, e.LastSeen.Format(dayLayout)}
	})
}

// ReplaceCandidates overwrites the audit table; rows keep the given order.
func (d *DB) ReplaceCandidates(ctx context.Context, runID string, cands []model.Candidate) error {
	return d.replace(ctx, "candidates", `INSERT INTO candidates(position, run_id, url, thread_id, title, activity, diff, risk, verdict, decision) VALUES(?,?,?,?,?,?,?,?,?,?)`, len(cands), func(i int) []any {
		c := cands[i]
		return []any{i, runID, c.URL, c.ID, c.Title, c.ActivityCount, c.Diff, c.Risk.String(), c.Verdict, c.Decision.String()}
	})
}

// AuditRow is a stored candidate with the run that produced it.
type AuditRow struct {
	RunID         string
	RiskLabel     string
	DecisionLabel string
	model.Candidate
}

func (d *DB) LoadCandidates(ctx context.Context) ([]AuditRow, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT run_id, url, thread_id, title, activity, diff, risk, verdict, decision FROM candidates ORDER BY position`)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []AuditRow
	for rows.Next() {
		var r AuditRow
		if err := rows.Scan(&r.RunID, &r.URL, &r.ID, &r.Title, &r.ActivityCount, &r.Diff, &r.RiskLabel, &r.Verdict, &r.DecisionLabel); err != nil { return nil, err }
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceQueue overwrites the posting queue.
func (d *DB) ReplaceQueue(ctx context.Context, posts []model.ScheduledPost) error {
	return d.replace(ctx, "post_queue", `INSERT INTO post_queue(date, slot, time, text, status, url, thread_id) VALUES(?,?,?,?,?,?,?)`, len(posts), func(i int) []any {
		p := posts[i]
		status := p.Status
		if status == "" { status = model.StatusPending }
		return []any{p.Date.Format(model.DateLabel), p.Slot.String(), p.Time, p.Text, string(status), p.URL, p.ThreadID}
	})
}

// QueueRow is a stored posting-queue row.
type QueueRow struct {
	ID          int64
	AttemptedAt time.Time
	model.ScheduledPost
}

// LoadQueue returns queue rows in calendar order.
func (d *DB) LoadQueue(ctx context.Context) ([]QueueRow, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT id, date, slot, time, text, status, url, thread_id, COALESCE(attempted_at, 0) FROM post_queue ORDER BY date, slot DESC, id`)
	if err != nil { return nil, fmt.Errorf("load queue: %w", err) }
	defer rows.Close()
	var out []QueueRow
	for rows.Next() {
		var r QueueRow
		var date, slot, status string
		var attempted int64
		if err := rows.Scan(&r.ID, &date, &slot, &r.Time, &r.Text, &status, &r.URL, &r.ThreadID, &attempted); err != nil { return nil, fmt.Errorf("load queue: %w", err) }
		if r.Date, err = time.Parse(model.DateLabel, date); err != nil {
			return nil, fmt.Errorf("load queue: row %d: bad date %q: %w", r.ID, date, err)
		}
		var ok bool
		if r.Slot, ok = model.ParseSlot(slot); !ok {
			return nil, fmt.Errorf("load queue: row %d: unknown slot %q", r.ID, slot)
		}
		r.Status = model.PostStatus(status)
		if attempted > 0 { r.AttemptedAt = time.Unix(attempted, 0).UTC() }
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkPost records the dispatcher's outcome for one queue row.
func (d *DB) MarkPost(ctx context.Context, id int64, status model.PostStatus, at time.Time) error {
	res, err := d.sql.ExecContext(ctx, `UPDATE post_queue SET status=?, attempted_at=? WHERE id=?`, string(status), at.Unix(), id)
	if err != nil { return err }
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("queue row %d not found", id)
	}
	return nil
}

// PutAction logs an outbound action for budget accounting.
func (d *DB) PutAction(ctx context.Context, ts time.Time, typ string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO actions(ts, type) VALUES(?,?)`, ts.Unix(), typ)
	return err
}

// CountActionsWithin counts actions of typ in [start, end).
func (d *DB) CountActionsWithin(ctx context.Context, start, end time.Time, typ string) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM actions WHERE ts>=? AND ts<? AND type=?`, start.Unix(), end.Unix(), typ).Scan(&n)
	return n, err
}

// replace clears table and inserts n rows inside one transaction.
func (d *DB) replace(ctx context.Context, table, insert string, n int, row func(i int) []any) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil { return fmt.Errorf("replace %s: %w", table, err) }
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	if n > 0 {
		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil { return fmt.Errorf("replace %s: %w", table, err) }
		defer stmt.Close()
		for i := 0; i < n; i++ {
			if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
				return fmt.Errorf("insert %s row %d: %w", table, i, err)
			}
		}
	}
	if err := tx.Commit(); err != nil { return fmt.Errorf("commit %s: %w", table, err) }
	return nil
}
