package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "CHATFEED"

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
	envFile    string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:       viper.New(),
		envFile: ".env",
	}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// SetEnvFile sets the dotenv file read before environment binding.
// An empty path disables dotenv loading.
func (l *Loader) SetEnvFile(path string) {
	l.envFile = path
}

// Load loads configuration with proper precedence:
// defaults < config file < .env < env vars < CLI flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	// godotenv never overrides variables that are already set, so real env
	// vars keep precedence over the file.
	if err := l.loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		// Config file is optional, only error if explicitly specified
		if l.configFile != "" {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (l *Loader) loadEnvFile() error {
	if l.envFile == "" {
		return nil
	}
	err := godotenv.Load(l.envFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// expandPaths expands ~ in all path-related config fields.
func expandPaths(cfg *Config) {
	cfg.Logging.File = expandTilde(cfg.Logging.File)
	cfg.History.SQLitePath = expandTilde(cfg.History.SQLitePath)
	cfg.History.File = expandTilde(cfg.History.File)
}

// setupViper configures Viper with defaults and environment bindings.
func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		v.AddConfigPath(filepath.Join(xdgConfig, "chatfeed"))
	}
	homeDir, _ := os.UserHomeDir()
	if homeDir != "" {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "chatfeed"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	l.setDefaults(cfg)

	// Explicitly bind environment variables (Viper's Unmarshal ignores
	// AutomaticEnv for keys it has not seen).
	bindEnvVars(v)

	v.AutomaticEnv()
}

// configKeys lists every key that has a default and an env override.
var configKeys = []string{
	"logging.level",
	"logging.format",
	"logging.file",
	"logging.enable_caller",
	"feed.collapse_window",
	"feed.day_match",
	"feed.timezone",
	"feed.mention_open",
	"feed.mention_close",
	"scroll.reading_factor",
	"scroll.edge_delay",
	"history.backend",
	"history.sqlite_path",
	"history.redis_url",
	"history.file",
	"history.page_size",
	"history.cache_ttl",
	"history.cache_capacity",
	"history.rate_per_second",
	"history.burst",
	"history.fetch_timeout",
	"transport.backend",
	"transport.nats_url",
	"transport.subject_prefix",
	"metrics.enabled",
	"metrics.addr",
}

// setDefaults sets all default values in Viper.
func (l *Loader) setDefaults(cfg *Config) {
	v := l.v

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.enable_caller", cfg.Logging.EnableCaller)

	v.SetDefault("feed.collapse_window", cfg.Feed.CollapseWindow)
	v.SetDefault("feed.day_match", cfg.Feed.DayMatch)
	v.SetDefault("feed.timezone", cfg.Feed.Timezone)
	v.SetDefault("feed.mention_open", cfg.Feed.MentionOpen)
	v.SetDefault("feed.mention_close", cfg.Feed.MentionClose)

	v.SetDefault("scroll.reading_factor", cfg.Scroll.ReadingFactor)
	v.SetDefault("scroll.edge_delay", cfg.Scroll.EdgeDelay)

	v.SetDefault("history.backend", cfg.History.Backend)
	v.SetDefault("history.sqlite_path", cfg.History.SQLitePath)
	v.SetDefault("history.redis_url", cfg.History.RedisURL)
	v.SetDefault("history.file", cfg.History.File)
	v.SetDefault("history.page_size", cfg.History.PageSize)
	v.SetDefault("history.cache_ttl", cfg.History.CacheTTL)
	v.SetDefault("history.cache_capacity", cfg.History.CacheCapacity)
	v.SetDefault("history.rate_per_second", cfg.History.RatePerSecond)
	v.SetDefault("history.burst", cfg.History.Burst)
	v.SetDefault("history.fetch_timeout", cfg.History.FetchTimeout)

	v.SetDefault("transport.backend", cfg.Transport.Backend)
	v.SetDefault("transport.nats_url", cfg.Transport.NATSURL)
	v.SetDefault("transport.subject_prefix", cfg.Transport.SubjectPrefix)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
}

// loadConfigFile attempts to load the configuration file.
func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}

	return nil
}

// ConfigFileUsed returns the config file that was loaded.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Set sets a Viper value by key. Values set here win over every other source,
// which is how CLI flags are applied.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// Viper returns the underlying Viper instance for advanced use.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}

// LoadDefault loads configuration with default search paths.
func LoadDefault() (*Config, error) {
	return NewLoader().Load()
}

// EnvVar returns the environment variable that overrides key.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// bindEnvVars binds CHATFEED_* environment variables for config keys.
func bindEnvVars(v *viper.Viper) {
	for _, key := range configKeys {
		_ = v.BindEnv(key, EnvVar(key))
	}
}
