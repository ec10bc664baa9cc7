package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "threadpromo.yaml")
	cfg := Default()
	cfg.Schedule.PostCount = 6
	cfg.Forum.PageDelay = 750 * time.Millisecond
	if err := Save(path, cfg); err != nil { t.Fatal(err) }
	got, err := Load(path)
	if err != nil { t.Fatal(err) }
	if got.Schedule.PostCount != 6 { t.Fatalf("postCount = %d", got.Schedule.PostCount) }
	if got.Forum.PageDelay != 750*time.Millisecond { t.Fatalf("pageDelay = %s", got.Forum.PageDelay) }
	if len(got.Titles.BannedWords) != len(cfg.Titles.BannedWords) { t.Fatalf("banned words lost") }
	if err := got.Validate(); err != nil { t.Fatalf("default config should validate: %v", err) }
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("TEST_MODE", "1")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("CLAUDE_API_KEY", "claude-key")
	t.Setenv("THREADPROMO_DB", "/tmp/x.db")
	cfg := Default()
	cfg.ResolveEnv()
	if !cfg.DryRun { t.Fatalf("TEST_MODE=1 should force dry run") }
	if cfg.LLM.APIKey != "claude-key" { t.Fatalf("api key = %q", cfg.LLM.APIKey) }
	if cfg.Storage.DBPath != "/tmp/x.db" { t.Fatalf("db path = %q", cfg.Storage.DBPath) }
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Schedule.PostCount = 0
	cfg.Titles.OverallBudget = 5
	cfg.Schedule.StartCron = "not a cron"
	cfg.Schedule.SlotTimes = []string{"8am"}
	err := cfg.Validate()
	if err == nil { t.Fatal("expected validation error") }
	for _, want := range []string{"postCount", "overallBudget", "startCron", "slotTimes"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}
