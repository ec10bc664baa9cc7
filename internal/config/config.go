package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It captures the forum source, oracle, selection and title rules, the posting calendar and storage.
type Config struct {
	Forum       ForumConfig       `yaml:"forum"`
	LLM         LLMConfig         `yaml:"llm"`
	Selection   SelectionConfig   `yaml:"selection"`
	Titles      TitlesConfig      `yaml:"titles"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Storage     StorageConfig     `yaml:"storage"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
	// DryRun leaves the history store untouched. TEST_MODE=1 forces it on.
	DryRun bool `yaml:"dryRun"`
}

type ForumConfig struct {
	BaseURL   string        `yaml:"baseURL"`
	Board     string        `yaml:"board"`
	MaxPages  int           `yaml:"maxPages"`
	PostPages int           `yaml:"postPages"`
	PageDelay time.Duration `yaml:"pageDelay"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"userAgent"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"` // "anthropic" or "openai"
	Model    string `yaml:"model"`
	// If empty, read from env ANTHROPIC_API_KEY / CLAUDE_API_KEY or OPENAI_API_KEY
	APIKey            string        `yaml:"apiKey"`
	BaseURL           string        `yaml:"baseURL"`
	Timeout           time.Duration `yaml:"timeout"`
	ClassifyMaxTokens int           `yaml:"classifyMaxTokens"`
	TitleMaxTokens    int           `yaml:"titleMaxTokens"`
}

type SelectionConfig struct {
	// Threads without history need at least this much activity
	MinNewThreadActivity int `yaml:"minNewThreadActivity"`
	// Upper bound on candidates sent to the classifier
	TopN int `yaml:"topN"`
}

type TitlesConfig struct {
	BannedWords   []string      `yaml:"bannedWords"`
	CTA           string        `yaml:"cta"`
	OverallBudget int           `yaml:"overallBudget"`
	Sentinel      string        `yaml:"sentinel"`
	Hashtag       string        `yaml:"hashtag"`
	BaseRetries   int           `yaml:"baseRetries"`
	ExtraRetries  int           `yaml:"extraRetries"`
	RetryBackoff  time.Duration `yaml:"retryBackoff"`
	ExtraBackoff  time.Duration `yaml:"extraBackoff"`
}

type ScheduleConfig struct {
	PostCount int `yaml:"postCount"`
	// StartCron picks the first posting day: next firing strictly after the run.
	StartCron    string   `yaml:"startCron"`
	Timezone     string   `yaml:"timezone"`
	SlotTimes    []string `yaml:"slotTimes"`
	UTMSource    string   `yaml:"utmSource"`
	MediumPrefix string   `yaml:"mediumPrefix"`
	// RunCron and DispatchCron drive `serve`
	RunCron      string `yaml:"runCron"`
	DispatchCron string `yaml:"dispatchCron"`
}

type StorageConfig struct {
	DBPath   string `yaml:"dbPath"`
	LockPath string `yaml:"lockPath"`
}

type CredentialsConfig struct {
	// OAuth1.0a user context for POST /2/tweets
	ConsumerKey    string `yaml:"consumerKey"`
	ConsumerSecret string `yaml:"consumerSecret"`
	AccessToken    string `yaml:"accessToken"`
	AccessSecret   string `yaml:"accessSecret"`
}

type DispatchConfig struct {
	MaxPerHour int `yaml:"maxPerHour"`
	MaxPerDay  int `yaml:"maxPerDay"`
}

type MetricsConfig struct {
	Addr    string `yaml:"addr"`
	PushURL string `yaml:"pushURL"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Forum: ForumConfig{
			BaseURL:   "https://www.e-mansion.co.jp",
			Board:     "23ku",
			MaxPages:  3,
			PostPages: 3,
			PageDelay: 300 * time.Millisecond,
			Timeout:   30 * time.Second,
			UserAgent: "Mozilla/5.0 (compatible; threadpromo/1.0)",
		},
		LLM: LLMConfig{
			Provider:          "anthropic",
			Model:             "claude-3-haiku-20240307",
			Timeout:           45 * time.Second,
			ClassifyMaxTokens: 200,
			TitleMaxTokens:    80,
		},
		Selection: SelectionConfig{MinNewThreadActivity: 100, TopN: 20},
		Titles: TitlesConfig{
			BannedWords: []string{
				"意味不明", "共産主義", "中国人", "血税", "糞尿",
				"悩む", "スケベ", "低俗", "トラブル", "酷い", "劣等感",
			},
			CTA:           " 詳しくはこちら👇",
			OverallBudget: 90,
			Sentinel:      "NOT_VIABLE",
			Hashtag:       "#マンションコミュニティ",
			BaseRetries:   3,
			ExtraRetries:  2,
			RetryBackoff:  2 * time.Second,
		},
		Schedule: ScheduleConfig{
			PostCount:    14,
			StartCron:    "0 0 * * 1",
			Timezone:     "Asia/Tokyo",
			SlotTimes:    []string{"08:00", "15:00"},
			UTMSource:    "x",
			MediumPrefix: "em-",
			RunCron:      "0 23 * * 5",
			DispatchCron: "*/5 * * * *",
		},
		Storage:  StorageConfig{DBPath: "./threadpromo.db", LockPath: "./threadpromo.lock"},
		Dispatch: DispatchConfig{MaxPerHour: 2, MaxPerDay: 4},
		Log:      LogConfig{Level: "info"},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "openai":
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		default:
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
			if c.LLM.APIKey == "" {
				c.LLM.APIKey = os.Getenv("CLAUDE_API_KEY")
			}
		}
	}
	if c.Credentials.ConsumerKey == "" {
		c.Credentials.ConsumerKey = os.Getenv("X_CONSUMER_KEY")
	}
	if c.Credentials.ConsumerSecret == "" {
		c.Credentials.ConsumerSecret = os.Getenv("X_CONSUMER_SECRET")
	}
	if c.Credentials.AccessToken == "" {
		c.Credentials.AccessToken = os.Getenv("X_ACCESS_TOKEN")
	}
	if c.Credentials.AccessSecret == "" {
		c.Credentials.AccessSecret = os.Getenv("X_ACCESS_SECRET")
	}
	if v := os.Getenv("THREADPROMO_DB"); v != "" {
		c.Storage.DBPath = v
	}
	if os.Getenv("TEST_MODE") == "1" {
		c.DryRun = true
	}
}

// Location returns the configured posting timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Schedule.Timezone)
}

// Validate checks the invariants the pipeline relies on.
func (c Config) Validate() error {
	var errs []error
	if c.Schedule.PostCount <= 0 {
		errs = append(errs, errors.New("schedule.postCount must be positive"))
	}
	if c.Selection.TopN <= 0 {
		errs = append(errs, errors.New("selection.topN must be positive"))
	}
	if c.Selection.MinNewThreadActivity < 0 {
		errs = append(errs, errors.New("selection.minNewThreadActivity must not be negative"))
	}
	if utf8.RuneCountInString(c.Titles.CTA)+2 > c.Titles.OverallBudget {
		errs = append(errs, fmt.Errorf("titles.cta leaves no room within overallBudget %d", c.Titles.OverallBudget))
	}
	if c.Titles.Sentinel == "" {
		errs = append(errs, errors.New("titles.sentinel is required"))
	}
	if c.Titles.BaseRetries < 0 || c.Titles.ExtraRetries < 0 {
		errs = append(errs, errors.New("titles retries must not be negative"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("schedule.timezone: %w", err))
	}
	if len(c.Schedule.SlotTimes) != 2 {
		errs = append(errs, errors.New("schedule.slotTimes needs exactly two entries"))
	}
	for _, s := range c.Schedule.SlotTimes {
		if _, err := time.Parse("15:04", s); err != nil {
			errs = append(errs, fmt.Errorf("schedule.slotTimes %q: %w", s, err))
		}
	}
	for name, spec := range map[string]string{
		"startCron":    c.Schedule.StartCron,
		"runCron":      c.Schedule.RunCron,
		"dispatchCron": c.Schedule.DispatchCron,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("schedule.%s: %w", name, err))
		}
	}
	if c.Schedule.StartCron == "" {
		errs = append(errs, errors.New("schedule.startCron is required"))
	}
	return errors.Join(errs...)
}

// Load reads YAML config from path on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
