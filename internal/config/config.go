// Package config handles chatfeed configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ageapps/chatfeed/internal/feed"
)

// Config is the root configuration structure for chatfeed.
type Config struct {
	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Feed holds the annotation rules.
	Feed FeedConfig `yaml:"feed" mapstructure:"feed"`

	// Scroll holds reading-state tuning.
	Scroll ScrollConfig `yaml:"scroll" mapstructure:"scroll"`

	// History selects and tunes the history backend.
	History HistoryConfig `yaml:"history" mapstructure:"history"`

	// Transport selects the live event source.
	Transport TransportConfig `yaml:"transport" mapstructure:"transport"`

	// Metrics settings
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console, auto).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// FeedConfig contains the collapse and day-separator rules.
type FeedConfig struct {
	// CollapseWindow is the maximum gap between two records from the same
	// sender that still collapse into one visual group.
	CollapseWindow time.Duration `yaml:"collapse_window" mapstructure:"collapse_window"`

	// DayMatch is day-of-month or calendar.
	DayMatch string `yaml:"day_match" mapstructure:"day_match"`

	// Timezone is an IANA zone name or Local.
	Timezone string `yaml:"timezone" mapstructure:"timezone"`

	MentionOpen  string `yaml:"mention_open" mapstructure:"mention_open"`
	MentionClose string `yaml:"mention_close" mapstructure:"mention_close"`
}

// ScrollConfig contains reading-state settings.
type ScrollConfig struct {
	// ReadingFactor is the number of viewport heights away from the bottom
	// after which the user counts as reading history.
	ReadingFactor float64 `yaml:"reading_factor" mapstructure:"reading_factor"`

	// EdgeDelay is attached to scroll-to-edge intents for surfaces that
	// cannot observe a render commit.
	EdgeDelay time.Duration `yaml:"edge_delay" mapstructure:"edge_delay"`
}

// HistoryConfig contains history backend settings.
type HistoryConfig struct {
	// Backend is sqlite, redis or file.
	Backend string `yaml:"backend" mapstructure:"backend"`

	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	RedisURL   string `yaml:"redis_url" mapstructure:"redis_url"`

	// File is a JSON history file used by the file backend.
	File string `yaml:"file" mapstructure:"file"`

	PageSize      int           `yaml:"page_size" mapstructure:"page_size"`
	CacheTTL      time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	CacheCapacity int           `yaml:"cache_capacity" mapstructure:"cache_capacity"`

	// RatePerSecond limits requests to the backend. Zero disables limiting.
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`

	FetchTimeout time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
}

// TransportConfig contains live transport settings.
type TransportConfig struct {
	// Backend is nats or none.
	Backend       string `yaml:"backend" mapstructure:"backend"`
	NATSURL       string `yaml:"nats_url" mapstructure:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix" mapstructure:"subject_prefix"`
}

// MetricsConfig contains prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" mapstructure:"addr"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := defaultDataDir()

	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Feed: FeedConfig{
			CollapseWindow: feed.DefaultCollapseWindow,
			DayMatch:       feed.DayOfMonth.String(),
			Timezone:       "Local",
			MentionOpen:    "<span class='mention'>",
			MentionClose:   "</span>",
		},
		Scroll: ScrollConfig{
			ReadingFactor: 1.5,
			EdgeDelay:     250 * time.Millisecond,
		},
		History: HistoryConfig{
			Backend:       "sqlite",
			SQLitePath:    filepath.Join(dataDir, "chatfeed.db"),
			RedisURL:      "redis://localhost:6379/0",
			PageSize:      50,
			CacheTTL:      5 * time.Second,
			CacheCapacity: 128,
			RatePerSecond: 4,
			Burst:         2,
			FetchTimeout:  10 * time.Second,
		},
		Transport: TransportConfig{
			Backend:       "none",
			NATSURL:       "nats://127.0.0.1:4222",
			SubjectPrefix: "chatfeed",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatfeed")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return ".chatfeed"
	}
	return filepath.Join(homeDir, ".local", "share", "chatfeed")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "disabled", "off":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "console", "auto":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	if c.Feed.CollapseWindow <= 0 {
		errs = append(errs, errors.New("feed.collapse_window must be positive"))
	}
	if _, err := feed.ParseDayMatch(c.Feed.DayMatch); err != nil {
		errs = append(errs, fmt.Errorf("feed.day_match: %w", err))
	}
	if _, err := c.Feed.Location(); err != nil {
		errs = append(errs, fmt.Errorf("feed.timezone: %w", err))
	}

	if c.Scroll.ReadingFactor <= 0 {
		errs = append(errs, errors.New("scroll.reading_factor must be positive"))
	}
	if c.Scroll.EdgeDelay < 0 {
		errs = append(errs, errors.New("scroll.edge_delay must not be negative"))
	}

	switch c.History.Backend {
	case "sqlite":
		if strings.TrimSpace(c.History.SQLitePath) == "" {
			errs = append(errs, errors.New("history.sqlite_path is required for the sqlite backend"))
		}
	case "redis":
		if strings.TrimSpace(c.History.RedisURL) == "" {
			errs = append(errs, errors.New("history.redis_url is required for the redis backend"))
		}
	case "file":
		if strings.TrimSpace(c.History.File) == "" {
			errs = append(errs, errors.New("history.file is required for the file backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("history.backend: unknown backend %q", c.History.Backend))
	}
	if c.History.PageSize <= 0 {
		errs = append(errs, errors.New("history.page_size must be positive"))
	}
	if c.History.CacheTTL < 0 {
		errs = append(errs, errors.New("history.cache_ttl must not be negative"))
	}
	if c.History.CacheCapacity < 0 {
		errs = append(errs, errors.New("history.cache_capacity must not be negative"))
	}
	if c.History.RatePerSecond < 0 {
		errs = append(errs, errors.New("history.rate_per_second must not be negative"))
	}
	if c.History.RatePerSecond > 0 && c.History.Burst < 1 {
		errs = append(errs, errors.New("history.burst must be at least 1 when rate limiting is enabled"))
	}
	if c.History.FetchTimeout <= 0 {
		errs = append(errs, errors.New("history.fetch_timeout must be positive"))
	}

	switch c.Transport.Backend {
	case "none":
	case "nats":
		if strings.TrimSpace(c.Transport.NATSURL) == "" {
			errs = append(errs, errors.New("transport.nats_url is required for the nats backend"))
		}
		if strings.TrimSpace(c.Transport.SubjectPrefix) == "" {
			errs = append(errs, errors.New("transport.subject_prefix is required for the nats backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("transport.backend: unknown backend %q", c.Transport.Backend))
	}

	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Addr) == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}

	return errors.Join(errs...)
}

// Location resolves the configured time zone.
func (f FeedConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(f.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// Rules converts the feed section into annotation rules.
func (f FeedConfig) Rules() (feed.Rules, error) {
	match, err := feed.ParseDayMatch(f.DayMatch)
	if err != nil {
		return feed.Rules{}, err
	}
	loc, err := f.Location()
	if err != nil {
		return feed.Rules{}, err
	}
	rules := feed.Rules{
		CollapseWindow: f.CollapseWindow,
		DayMatch:       match,
		Location:       loc,
	}
	if f.MentionOpen != "" || f.MentionClose != "" {
		rules.MentionMarkup = feed.WrapMention(f.MentionOpen, f.MentionClose)
	}
	return rules, nil
}

// EnsureDirectories creates the directories needed by file-backed settings.
func (c *Config) EnsureDirectories() error {
	dirs := make([]string, 0, 2)
	if c.History.Backend == "sqlite" && c.History.SQLitePath != "" {
		dirs = append(dirs, filepath.Dir(c.History.SQLitePath))
	}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
