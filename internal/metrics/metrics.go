package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	StageItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadpromo_stage_items_total",
		Help: "Items leaving each pipeline stage",
	}, []string{"stage"})
	OracleCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadpromo_oracle_calls_total",
		Help: "Oracle calls by purpose and outcome",
	}, []string{"oracle", "outcome"})
	TitleRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadpromo_title_retries_total",
		Help: "Title generation retries by level (inner, outer)",
	}, []string{"level"})
	DispatchPosts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadpromo_dispatch_posts_total",
		Help: "Queue rows processed by the dispatcher",
	}, []string{"status"})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadpromo_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadpromo_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadpromo_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
	RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "threadpromo_run_duration_seconds",
		Help:    "Curation run duration seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(StageItems, OracleCalls, TitleRetries, DispatchPosts, APIRetries, CommandRuns, CommandErrors, RunDuration)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, mux) }()
}

// Push sends the default registry to a Pushgateway; batch runs exit before a scrape.
func Push(url, job string) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(prometheus.DefaultGatherer).Push()
}

// ObserveRunDuration records a run duration.
func ObserveRunDuration(start time.Time) { RunDuration.Observe(time.Since(start).Seconds()) }

func AddStage(stage string, n int) { StageItems.WithLabelValues(stage).Add(float64(n)) }

func IncOracle(oracle, outcome string) { OracleCalls.WithLabelValues(oracle, outcome).Inc() }

func IncTitleRetry(level string) { TitleRetries.WithLabelValues(level).Inc() }

func IncDispatch(status string) { DispatchPosts.WithLabelValues(status).Inc() }

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

func IncCommandRun(cmd string) { CommandRuns.WithLabelValues(cmd).Inc() }

func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
