package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"threadpromo/internal/cmdlog"
	"threadpromo/internal/config"
	"threadpromo/internal/dispatch"
	"threadpromo/internal/forum"
	"threadpromo/internal/jobs"
	"threadpromo/internal/llm"
	"threadpromo/internal/logging"
	"threadpromo/internal/metrics"
	"threadpromo/internal/store/sqlitedb"
	"threadpromo/internal/theme"
	"threadpromo/internal/xclient"
)

const defaultConfig = "./threadpromo.yaml"

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	var err error
	switch cmd {
	case "init":
		err = cmdlog.Run(cmd, cmdInit)
	case "run":
		err = cmdlog.Run(cmd, cmdRun)
	case "dispatch":
		err = cmdlog.Run(cmd, cmdDispatch)
	case "serve":
		err = cmdlog.Run(cmd, cmdServe)
	case "queue":
		err = cmdlog.Run(cmd, cmdQueue)
	case "history":
		err = cmdlog.Run(cmd, cmdHistory)
	default:
		printHelp()
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: threadpromo <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./threadpromo.yaml")
	fmt.Println("  run         Curate threads and rebuild the posting queue")
	fmt.Println("  dispatch    Post queue rows whose slot time has passed")
	fmt.Println("  serve       Run curation and dispatch on their cron schedules")
	fmt.Println("  queue       Show the posting queue")
	fmt.Println("  history     Show promoted threads and their last activity")
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) { return cfg, fmt.Errorf("load config: %w", err) }
		cfg = config.Default()
		cfg.ResolveEnv()
		logging.Warn("config_missing", map[string]any{"path": path})
	}
	logging.SetLevel(cfg.Log.Level)
	return cfg, cfg.Validate()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func cmdInit() error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", defaultConfig, "path to write config")
	_ = fs.Parse(os.Args[2:])
	if err := config.Save(*path, config.Default()); err != nil { return err }
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
	return nil
}

func cmdRun() error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "config path")
	dryRun := fs.Bool("dry-run", false, "leave history untouched")
	seed := fs.Uint64("seed", 0, "fixed shuffle seed (0 = random)")
	_ = fs.Parse(os.Args[2:])
	cfg, err := loadConfig(*cfgPath)
	if err != nil { return err }
	if *dryRun { cfg.DryRun = true }
	ctx, cancel := signalContext()
	defer cancel()
	rep, err := curate(ctx, cfg, *seed)
	if perr := metrics.Push(cfg.Metrics.PushURL, "threadpromo_run"); perr != nil {
		logging.Warn("metrics_push_failed", map[string]any{"error": perr.Error()})
	}
	if err != nil { return err }
	fmt.Printf("run %s: fetched=%d selected=%d dropped_empty=%d classified=%d accepted=%d scheduled=%d dry_run=%v\n",
		rep.RunID, rep.Fetched, rep.Selected, rep.DroppedEmpty, rep.Classified, rep.Accepted, rep.Scheduled, cfg.DryRun)
	return nil
}

func curate(ctx context.Context, cfg config.Config, seed uint64) (jobs.Report, error) {
	oracle, err := llm.New(cfg.LLM)
	if err != nil { return jobs.Report{}, err }
	db, err := sqlitedb.Open(cfg.Storage.DBPath)
	if err != nil { return jobs.Report{}, fmt.Errorf("open db: %w", err) }
	defer db.Close()
	src := forum.New(cfg.Forum, nil)
	deps := jobs.Deps{Threads: src, Texts: src, Store: db, Oracle: oracle}
	if seed != 0 {
		deps.Permute = rand.New(rand.NewPCG(seed, seed)).Shuffle
	}
	return jobs.RunCurationOnce(ctx, deps, cfg)
}

func dispatchOnce(ctx context.Context, cfg config.Config) (dispatch.Result, error) {
	loc, err := cfg.Location()
	if err != nil { return dispatch.Result{}, err }
	poster := xclient.New(cfg.Credentials)
	if err := poster.Ready(); err != nil { return dispatch.Result{}, err }
	db, err := sqlitedb.Open(cfg.Storage.DBPath)
	if err != nil { return dispatch.Result{}, fmt.Errorf("open db: %w", err) }
	defer db.Close()
	return dispatch.DispatchDue(ctx, db, poster, cfg.Dispatch, time.Now(), loc)
}

func cmdDispatch() error {
	fs := flag.NewFlagSet("dispatch", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "config path")
	_ = fs.Parse(os.Args[2:])
	cfg, err := loadConfig(*cfgPath)
	if err != nil { return err }
	ctx, cancel := signalContext()
	defer cancel()
	res, err := dispatchOnce(ctx, cfg)
	if perr := metrics.Push(cfg.Metrics.PushURL, "threadpromo_dispatch"); perr != nil {
		logging.Warn("metrics_push_failed", map[string]any{"error": perr.Error()})
	}
	if err != nil { return err }
	fmt.Printf("posted=%d failed=%d deferred=%d\n", res.Posted, res.Failed, res.Deferred)
	return nil
}

func cmdServe() error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "config path")
	_ = fs.Parse(os.Args[2:])
	cfg, err := loadConfig(*cfgPath)
	if err != nil { return err }
	loc, err := cfg.Location()
	if err != nil { return err }
	metrics.StartServer(cfg.Metrics.Addr)
	theme.PrintBanner()
	ctx, cancel := signalContext()
	defer cancel()
	err = jobs.Serve(ctx, loc,
		jobs.Task{Name: "run", Spec: cfg.Schedule.RunCron, Run: func(ctx context.Context) error {
			_, err := curate(ctx, cfg, 0)
			return err
		}},
		jobs.Task{Name: "dispatch", Spec: cfg.Schedule.DispatchCron, Run: func(ctx context.Context) error {
			_, err := dispatchOnce(ctx, cfg)
			return err
		}},
	)
	if errors.Is(err, context.Canceled) { return nil }
	return err
}
