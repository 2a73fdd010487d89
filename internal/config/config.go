// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing or malformed, Load returns an error
// and the process exits.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"gigbot/discovery-service/internal/filter"
	"gigbot/discovery-service/internal/health"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

const defaultFilterConfig = "configs/filter.yaml"

const maxRetryAttempts = 20

// Config holds all runtime configuration for the discovery service.
type Config struct {
	Port         string
	GRPCPort     string
	DatabaseURL  string
	RedisURL     string
	StoreBackend string

	EnabledSources []string
	ScrapeInterval time.Duration
	MaxRunDuration time.Duration

	DelayMin          time.Duration
	DelayMax          time.Duration
	SourceConcurrency int

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	HTTPTimeout    time.Duration
	UserAgent      string

	Health         health.Thresholds
	FailedCooldown time.Duration

	HFAPIToken string
	HFModel    string

	TelegramBotToken string
	TelegramChatID   int64

	AdzunaAppID      string
	AdzunaAppKey     string
	AdzunaCountry    string
	CraigslistCities []string
	RedditSubreddits []string

	Filter filter.Config
}

// Load reads a .env file when present, then the environment, then the filter
// YAML file, and returns a validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv. It does not touch .env files.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}

	cfg := &Config{
		Port:         p.str("DISCOVERY_PORT", "8081"),
		GRPCPort:     p.str("GRPC_PORT", "9091"),
		DatabaseURL:  getenv("DATABASE_URL"),
		RedisURL:     getenv("REDIS_URL"),
		StoreBackend: strings.ToLower(p.str("STORE_BACKEND", StorePostgres)),

		EnabledSources: p.list("ENABLED_SOURCES", []string{"reddit", "craigslist", "adzuna"}),
		ScrapeInterval: p.duration("SCRAPE_INTERVAL", 30*time.Minute),
		MaxRunDuration: p.duration("MAX_RUN_DURATION", 10*time.Minute),

		DelayMin:          p.duration("SCRAPE_DELAY_MIN", time.Second),
		DelayMax:          p.duration("SCRAPE_DELAY_MAX", 3*time.Second),
		SourceConcurrency: p.integer("SOURCE_CONCURRENCY", 1),

		RetryAttempts:  p.integer("RETRY_ATTEMPTS", 5),
		RetryBaseDelay: p.duration("RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:  p.duration("RETRY_MAX_DELAY", 30*time.Second),
		HTTPTimeout:    p.duration("HTTP_TIMEOUT", 15*time.Second),
		UserAgent:      p.str("USER_AGENT", "gigbot-discovery/1.0"),

		Health: health.Thresholds{
			Degraded: p.integer("HEALTH_DEGRADED_AFTER", 3),
			Failed:   p.integer("HEALTH_FAILED_AFTER", 6),
		},
		FailedCooldown: p.duration("FAILED_COOLDOWN", time.Hour),

		HFAPIToken: getenv("HF_API_TOKEN"),
		HFModel:    p.str("HF_MODEL", "facebook/bart-large-mnli"),

		TelegramBotToken: getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   p.integer64("TELEGRAM_CHAT_ID", 0),

		AdzunaAppID:      getenv("ADZUNA_APP_ID"),
		AdzunaAppKey:     getenv("ADZUNA_APP_KEY"),
		AdzunaCountry:    p.str("ADZUNA_COUNTRY", "fr"),
		CraigslistCities: p.list("CRAIGSLIST_CITIES", nil),
		RedditSubreddits: p.list("REDDIT_SUBREDDITS", nil),
	}
	if p.err != nil {
		return nil, p.err
	}

	filterPath := getenv("FILTER_CONFIG")
	fc, err := LoadFilter(filterPath, filterPath != "")
	if err != nil {
		return nil, err
	}
	cfg.Filter = fc

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values and ranges.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StorePostgres, StoreMemory, c.StoreBackend)
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if len(c.EnabledSources) == 0 {
		return fmt.Errorf("ENABLED_SOURCES must name at least one source")
	}
	if c.ScrapeInterval <= 0 {
		return fmt.Errorf("SCRAPE_INTERVAL must be positive")
	}
	if c.DelayMin < 0 || c.DelayMax < c.DelayMin {
		return fmt.Errorf("SCRAPE_DELAY_MIN (%s) must be >= 0 and <= SCRAPE_DELAY_MAX (%s)", c.DelayMin, c.DelayMax)
	}
	if c.SourceConcurrency < 1 {
		return fmt.Errorf("SOURCE_CONCURRENCY must be >= 1, got %d", c.SourceConcurrency)
	}
	if c.RetryAttempts < 1 || c.RetryAttempts > maxRetryAttempts {
		return fmt.Errorf("RETRY_ATTEMPTS must be within [1,%d], got %d", maxRetryAttempts, c.RetryAttempts)
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("RETRY_BASE_DELAY must be positive")
	}
	if c.RetryMaxDelay != 0 && c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("RETRY_MAX_DELAY (%s) must be 0 or >= RETRY_BASE_DELAY (%s)", c.RetryMaxDelay, c.RetryBaseDelay)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if err := c.Health.Validate(); err != nil {
		return fmt.Errorf("HEALTH_DEGRADED_AFTER/HEALTH_FAILED_AFTER: %w", err)
	}
	if c.FailedCooldown < 0 {
		return fmt.Errorf("FAILED_COOLDOWN must not be negative")
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	cls := c.Filter.Classifier
	if cls.Threshold < 0 || cls.Threshold > 1 {
		return fmt.Errorf("classifier threshold must be within [0,1], got %v", cls.Threshold)
	}
	labels := cls.Labels
	if len(labels) == 0 {
		labels = filter.DefaultLabels
	}
	if cls.PositiveLabel != "" && !slices.Contains(labels, cls.PositiveLabel) {
		return fmt.Errorf("classifier positive_label %q is not one of labels %q", cls.PositiveLabel, labels)
	}
	return nil
}

// LoadFilter reads keyword tables and classifier settings from path on top of
// filter.DefaultConfig. A missing file is only an error when required is set.
func LoadFilter(path string, required bool) (filter.Config, error) {
	cfg := filter.DefaultConfig()
	if path == "" {
		path = defaultFilterConfig
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read filter config %s: %w", path, err)
	}

	// fields absent from the file keep their defaults; a keywords table in the
	// file replaces the built-in one instead of merging into it
	var probe struct {
		Keywords map[string]float64 `yaml:"keywords"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return cfg, fmt.Errorf("parse filter config %s: %w", path, err)
	}
	if probe.Keywords != nil {
		cfg.Keywords = nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse filter config %s: %w", path, err)
	}
	return cfg, nil
}

// ─── Parsing helpers ─────────────────────────────────────────────────────────

// parser records the first malformed variable.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) fail(key, val, want string) {
	if p.err == nil {
		p.err = fmt.Errorf("%s must be %s, got %q", key, want, val)
	}
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	s := strings.TrimSpace(p.getenv(key))
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.fail(key, s, "an integer")
		return def
	}
	return v
}

func (p *parser) integer64(key string, def int64) int64 {
	s := strings.TrimSpace(p.getenv(key))
	if s == "" {
		return def
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		p.fail(key, s, "an integer")
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	s := strings.TrimSpace(p.getenv(key))
	if s == "" {
		return def
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		p.fail(key, s, "a duration like 30s or 5m")
		return def
	}
	return v
}

func (p *parser) list(key string, def []string) []string {
	s := strings.TrimSpace(p.getenv(key))
	if s == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
