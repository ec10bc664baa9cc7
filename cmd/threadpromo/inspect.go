package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"

	"threadpromo/internal/analytics"
	"threadpromo/internal/model"
	"threadpromo/internal/store/sqlitedb"
)

func openStore(cfgPath string) (*sqlitedb.DB, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil { return nil, err }
	return sqlitedb.Open(cfg.Storage.DBPath)
}

func cmdQueue() error {
	fs := flag.NewFlagSet("queue", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "config path")
	summary := fs.Bool("summary", false, "aggregate rows per date and status")
	_ = fs.Parse(os.Args[2:])
	db, err := openStore(*cfgPath)
	if err != nil { return err }
	defer db.Close()
	rows, err := db.LoadQueue(context.Background())
	if err != nil { return err }
	if len(rows) == 0 {
		fmt.Println("queue is empty")
		return nil
	}
	if *summary {
		posts := make([]model.ScheduledPost, len(rows))
		for i, r := range rows { posts[i] = r.ScheduledPost }
		statuses := []model.PostStatus{model.StatusPending, model.StatusPosted, model.StatusError}
		var out [][]string
		for _, d := range analytics.QueueByDay(posts) {
			line := []string{d.Date.Format(model.DateLabel)}
			for _, s := range statuses { line = append(line, strconv.Itoa(d.Counts[s])) }
			out = append(out, line)
		}
		fmt.Println(renderTable([]string{"Date", "Pending", "Posted", "Error"}, out, []columnAlignment{alignLeft, alignRight, alignRight, alignRight}))
		return nil
	}
	var out [][]string
	for _, r := range rows {
		out = append(out, []string{strconv.FormatInt(r.ID, 10), r.Date.Format(model.DateLabel), r.Slot.String(), r.Time, string(r.Status), r.ThreadID, firstLine(r.Text)})
	}
	fmt.Println(renderTable([]string{"ID", "Date", "Slot", "Time", "Status", "Thread", "Title"}, out, []columnAlignment{alignRight}))
	return nil
}

func cmdHistory() error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "config path")
	limit := fs.Int("limit", 50, "max rows, most recently seen first")
	_ = fs.Parse(os.Args[2:])
	db, err := openStore(*cfgPath)
	if err != nil { return err }
	defer db.Close()
	hist, err := db.LoadHistory(context.Background())
	if err != nil { return err }
	entries := make([]model.HistoryEntry, 0, len(hist))
	for _, e := range hist { entries = append(entries, e) }
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].LastSeen.Equal(entries[j].LastSeen) { return entries[i].LastSeen.After(entries[j].LastSeen) }
		return entries[i].URL < entries[j].URL
	})
	if *limit > 0 && len(entries) > *limit { entries = entries[:*limit] }
	var out [][]string
	for _, e := range entries {
		out = append(out, []string{e.URL, strconv.Itoa(e.LastCount), e.LastSeen.Format(model.DateLabel)})
	}
	fmt.Println(renderTable([]string{"URL", "Last count", "Last seen"}, out, []columnAlignment{alignLeft, alignRight}))
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' { return s[:i] }
	}
	return s
}
