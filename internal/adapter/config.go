package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/hangar/internal/store"
	"github.com/spf13/viper"
)

// SecretsBackend selects where session secrets are kept.
type SecretsBackend string

const (
	SecretsKeyring SecretsBackend = "keyring" // OS secret service
	SecretsMemory  SecretsBackend = "memory"  // process memory, lost at exit
)

// DefaultServiceURL is the entryway used for login.
const DefaultServiceURL = "https://bsky.social"

// Config holds all application configuration
type Config struct {
	Service     ServiceConfig     `mapstructure:"service"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Timeline    TimelineConfig    `mapstructure:"timeline"`
	Secrets     SecretsConfig     `mapstructure:"secrets"`
	Browser     BrowserConfig     `mapstructure:"browser"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServiceConfig locates the remote service
type ServiceConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"` // per HTTP attempt
}

// RetryConfig bounds retries of transient failures
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// CoordinatorConfig sizes the background worker pool
type CoordinatorConfig struct {
	Permits        int           `mapstructure:"permits"`
	QueueSize      int           `mapstructure:"queue_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CacheConfig controls the local cache and its eviction policy
type CacheConfig struct {
	Dir           string        `mapstructure:"dir"`
	Disabled      bool          `mapstructure:"disabled"`
	MaxRows       int           `mapstructure:"max_rows"`        // per account
	MaxImageBytes int64         `mapstructure:"max_image_bytes"` // per account
	EvictRatio    float64       `mapstructure:"evict_ratio"`     // trim to (1-ratio) of the threshold
	PinTTL        time.Duration `mapstructure:"pin_ttl"`
}

// TimelineConfig controls paging and polling
type TimelineConfig struct {
	PageSize     int           `mapstructure:"page_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// SecretsConfig selects the credential backend
type SecretsConfig struct {
	Backend SecretsBackend `mapstructure:"backend"`
	Service string         `mapstructure:"service"` // keyring service name
}

// BrowserConfig names the program links are opened with
type BrowserConfig struct {
	Command string   `mapstructure:"command"` // empty for the system default
	Args    []string `mapstructure:"args"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			URL:     DefaultServiceURL,
			Timeout: 30 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   250 * time.Millisecond,
			MaxDelay:    2 * time.Second,
		},
		Coordinator: CoordinatorConfig{
			Permits:        4,
			QueueSize:      1024,
			RequestTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Dir:           defaultDataPath(),
			MaxRows:       5000,
			MaxImageBytes: 100 << 20,
			EvictRatio:    0.1,
			PinTTL:        5 * time.Minute,
		},
		Timeline: TimelineConfig{
			PageSize:     50,
			PollInterval: 30 * time.Second,
		},
		Secrets: SecretsConfig{
			Backend: SecretsKeyring,
			Service: "hangar",
		},
		Logging: LoggingConfig{
			File:  filepath.Join(defaultDataPath(), "hangar.log"),
			Level: "INFO",
		},
	}
}

// defaultDataPath returns the directory for the cache and log file
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "hangar")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "hangar")
	}
}

// DefaultConfigDir returns the default config directory for the current OS
func DefaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "hangar")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "hangar")
	}
}

// newViper prepares a viper instance with every key defaulted, so that
// HANGAR_* environment variables can override any of them.
func newViper(cfg *Config) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("HANGAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("service.url", cfg.Service.URL)
	v.SetDefault("service.timeout", cfg.Service.Timeout)
	v.SetDefault("retry.max_attempts", cfg.Retry.MaxAttempts)
	v.SetDefault("retry.base_delay", cfg.Retry.BaseDelay)
	v.SetDefault("retry.max_delay", cfg.Retry.MaxDelay)
	v.SetDefault("coordinator.permits", cfg.Coordinator.Permits)
	v.SetDefault("coordinator.queue_size", cfg.Coordinator.QueueSize)
	v.SetDefault("coordinator.request_timeout", cfg.Coordinator.RequestTimeout)
	v.SetDefault("cache.dir", cfg.Cache.Dir)
	v.SetDefault("cache.disabled", cfg.Cache.Disabled)
	v.SetDefault("cache.max_rows", cfg.Cache.MaxRows)
	v.SetDefault("cache.max_image_bytes", cfg.Cache.MaxImageBytes)
	v.SetDefault("cache.evict_ratio", cfg.Cache.EvictRatio)
	v.SetDefault("cache.pin_ttl", cfg.Cache.PinTTL)
	v.SetDefault("timeline.page_size", cfg.Timeline.PageSize)
	v.SetDefault("timeline.poll_interval", cfg.Timeline.PollInterval)
	v.SetDefault("secrets.backend", string(cfg.Secrets.Backend))
	v.SetDefault("secrets.service", cfg.Secrets.Service)
	v.SetDefault("browser.command", cfg.Browser.Command)
	v.SetDefault("browser.args", cfg.Browser.Args)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)
	return v
}

// LoadConfig loads configuration from config.yaml in dir (the default
// config directory when empty) and the environment.
func LoadConfig(dir string) (*Config, error) {
	if dir == "" {
		dir = DefaultConfigDir()
	}
	cfg := DefaultConfig()
	v := newViper(cfg)
	v.AddConfigPath(dir)

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// normalize repairs values that would make a component unusable.
func (c *Config) normalize() {
	d := DefaultConfig()
	if c.Coordinator.Permits < 1 {
		c.Coordinator.Permits = 1
	}
	if c.Coordinator.QueueSize < 1 {
		c.Coordinator.QueueSize = d.Coordinator.QueueSize
	}
	if c.Retry.MaxAttempts < 1 {
		c.Retry.MaxAttempts = 1
	}
	if c.Cache.EvictRatio <= 0 || c.Cache.EvictRatio > 1 {
		c.Cache.EvictRatio = d.Cache.EvictRatio
	}
	if c.Timeline.PageSize < 1 || c.Timeline.PageSize > 100 {
		c.Timeline.PageSize = d.Timeline.PageSize
	}
	switch c.Secrets.Backend {
	case SecretsKeyring, SecretsMemory:
	default:
		c.Secrets.Backend = SecretsKeyring
	}
	c.Cache.Dir = expandHome(c.Cache.Dir)
	c.Logging.File = expandHome(c.Logging.File)
}

// SaveConfig writes cfg to config.yaml in dir (the default config
// directory when empty).
func SaveConfig(cfg *Config, dir string) error {
	if dir == "" {
		dir = DefaultConfigDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := newViper(cfg)

	configFile := filepath.Join(dir, "config.yaml")
	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Setting is one effective configuration value.
type Setting struct {
	Key   string
	Value any
}

// Flatten lists the effective configuration sorted by key.
func Flatten(cfg *Config) []Setting {
	v := newViper(cfg)
	keys := v.AllKeys()
	sort.Strings(keys)
	out := make([]Setting, 0, len(keys))
	for _, k := range keys {
		out = append(out, Setting{Key: k, Value: v.Get(k)})
	}
	return out
}

// ClearCache removes the cache database. The directory is kept since the
// log file may live next to it.
func ClearCache(cfg *CacheConfig) error {
	if cfg.Dir == "" {
		return nil
	}
	if err := os.Remove(filepath.Join(cfg.Dir, store.FileName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
