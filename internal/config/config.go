// Package config loads the application configuration from a directory of
// YAML files and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jwulff/mainstream-sync/internal/devicecache"
	"github.com/jwulff/mainstream-sync/internal/logging"
	"github.com/jwulff/mainstream-sync/internal/mainstream"
	"github.com/jwulff/mainstream-sync/internal/scheduler"
	"github.com/jwulff/mainstream-sync/internal/server"
	"github.com/jwulff/mainstream-sync/internal/sink"
	"github.com/jwulff/mainstream-sync/internal/storage/sqlite"
	"github.com/jwulff/mainstream-sync/internal/timestamp"
	"github.com/spf13/viper"
)

const (
	// DefaultDir is the configuration directory used when none is given.
	DefaultDir = "config"

	// EnvPrefix prefixes environment overrides, e.g. MAINSTREAM_SYNC_LOG_LEVEL.
	EnvPrefix = "MAINSTREAM_SYNC"

	// LegacyURLEnv is also accepted for the upstream base URL.
	LegacyURLEnv = "MAIN_STREAM_URL"
)

// Config is the full application configuration.
type Config struct {
	Log        logging.Config   `mapstructure:"log" yaml:"log"`
	MainStream MainStreamConfig `mapstructure:"mainstream" yaml:"mainstream"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Sinks      []SinkConfig     `mapstructure:"sinks" yaml:"sinks,omitempty"`
	Server     server.Config    `mapstructure:"server" yaml:"server"`
}

// MainStreamConfig configures the upstream client and the sync loop.
type MainStreamConfig struct {
	URL               string        `mapstructure:"url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Interval          time.Duration `mapstructure:"interval"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	Window            time.Duration `mapstructure:"window"`
	TimezoneOffset    time.Duration `mapstructure:"timezone_offset"`
	LatestConcurrency int           `mapstructure:"latest_concurrency"`
}

// MarshalYAML writes durations in their string form.
func (c MainStreamConfig) MarshalYAML() (any, error) {
	return struct {
		URL               string `yaml:"url"`
		Timeout           string `yaml:"timeout"`
		Interval          string `yaml:"interval"`
		CacheTTL          string `yaml:"cache_ttl"`
		Window            string `yaml:"window"`
		TimezoneOffset    string `yaml:"timezone_offset"`
		LatestConcurrency int    `yaml:"latest_concurrency"`
	}{
		URL:               c.URL,
		Timeout:           c.Timeout.String(),
		Interval:          c.Interval.String(),
		CacheTTL:          c.CacheTTL.String(),
		Window:            c.Window.String(),
		TimezoneOffset:    c.TimezoneOffset.String(),
		LatestConcurrency: c.LatestConcurrency,
	}, nil
}

// Scheduler returns the loop settings.
func (c MainStreamConfig) Scheduler() scheduler.Config {
	return scheduler.Config{
		BaseURL:           c.URL,
		Interval:          c.Interval,
		CacheTTL:          c.CacheTTL,
		Window:            c.Window,
		LatestConcurrency: c.LatestConcurrency,
	}
}

// StorageConfig selects a storage driver. Keys other than driver are passed
// to the driver as its options.
type StorageConfig struct {
	Driver  string         `mapstructure:"driver" yaml:"driver"`
	Options map[string]any `mapstructure:",remain" yaml:",inline"`
}

// SinkConfig is one entry of the sinks list.
type SinkConfig struct {
	Type    string         `mapstructure:"type" yaml:"type"`
	Enable  bool           `mapstructure:"enable" yaml:"enable"`
	Options map[string]any `mapstructure:",remain" yaml:",inline"`
}

// SinkSpecs converts the sinks list for sink.Build.
func (c *Config) SinkSpecs() []sink.Spec {
	specs := make([]sink.Spec, 0, len(c.Sinks))
	for _, s := range c.Sinks {
		specs = append(specs, sink.Spec{Type: s.Type, Enable: s.Enable, Options: s.Options})
	}
	return specs
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.log_path", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("mainstream.url", "")
	v.SetDefault("mainstream.timeout", mainstream.DefaultTimeout)
	v.SetDefault("mainstream.interval", scheduler.DefaultInterval)
	v.SetDefault("mainstream.cache_ttl", devicecache.DefaultTTL)
	v.SetDefault("mainstream.window", scheduler.DefaultWindow)
	v.SetDefault("mainstream.timezone_offset", timestamp.DefaultOffset)
	v.SetDefault("mainstream.latest_concurrency", 1)

	v.SetDefault("storage.driver", sqlite.DriverName)

	v.SetDefault("server.enable", false)
	v.SetDefault("server.addr", server.DefaultAddr)
}

// Load merges every *.yaml and *.yml file in dir, in name order, then applies
// environment overrides. A missing dir is not an error.
func Load(dir string) (*Config, *viper.Viper, error) {
	if dir == "" {
		dir = DefaultDir
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("mainstream.url", EnvPrefix+"_MAINSTREAM_URL", LegacyURLEnv); err != nil {
		return nil, nil, fmt.Errorf("failed to bind %s: %w", LegacyURLEnv, err)
	}

	if err := mergeDir(v, dir); err != nil {
		return nil, nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, v, nil
}

func mergeDir(v *viper.Viper, dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if c.Storage.Driver == "" {
		return errors.New("storage.driver is required")
	}
	if c.MainStream.Interval <= 0 {
		return fmt.Errorf("mainstream.interval must be positive, got %s", c.MainStream.Interval)
	}
	if c.MainStream.LatestConcurrency < 1 {
		return fmt.Errorf("mainstream.latest_concurrency must be at least 1, got %d", c.MainStream.LatestConcurrency)
	}
	for i, s := range c.Sinks {
		if s.Type == "" {
			return fmt.Errorf("sinks[%d].type is required", i)
		}
	}
	return nil
}
