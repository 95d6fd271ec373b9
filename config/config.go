// Package config loads trackerd configuration from an optional YAML
// file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blanzp/protest-tracker/geocode"
	"github.com/blanzp/protest-tracker/ingest"
	"github.com/blanzp/protest-tracker/lifecycle"
)

// Config holds the full trackerd configuration.
type Config struct {
	Listen string `yaml:"listen"`
	DBPath string `yaml:"db_path"`

	BroadcastBuffer int `yaml:"broadcast_buffer"`

	Geocode   GeocodeConfig       `yaml:"geocode"`
	Lifecycle LifecycleConfig     `yaml:"lifecycle"`
	Scrape    ScrapeConfig        `yaml:"scrape"`
	Permits   ingest.PermitConfig `yaml:"permits"`
	News      ingest.NewsConfig   `yaml:"news"`
	Social    ingest.SocialConfig `yaml:"social"`
}

// GeocodeConfig wraps the resolver settings with the API key.
type GeocodeConfig struct {
	APIKey         string `yaml:"api_key"`
	CacheLimit     int    `yaml:"cache_limit"`
	PerSecond      int    `yaml:"per_second"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// LifecycleConfig configures the status scheduler. Durations are plain
// integers with the unit in the field name.
type LifecycleConfig struct {
	TickMinutes          int `yaml:"tick_minutes"`
	DefaultDurationHours int `yaml:"default_duration_hours"`
}

// SchedulerConfig converts to the scheduler's settings.
func (c LifecycleConfig) SchedulerConfig() lifecycle.Config {
	return lifecycle.Config{
		TickInterval:    time.Duration(c.TickMinutes) * time.Minute,
		DefaultDuration: time.Duration(c.DefaultDurationHours) * time.Hour,
	}
}

// ScrapeConfig configures the background scrape loop.
type ScrapeConfig struct {
	IntervalMinutes       int `yaml:"interval_minutes"`
	AdapterTimeoutMinutes int `yaml:"adapter_timeout_minutes"`
}

// Interval returns the scrape cycle period.
func (c ScrapeConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// AdapterTimeout returns the per-adapter execution bound.
func (c ScrapeConfig) AdapterTimeout() time.Duration {
	return time.Duration(c.AdapterTimeoutMinutes) * time.Minute
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          ":3000",
		DBPath:          "protests.db",
		BroadcastBuffer: 16,
		Geocode: GeocodeConfig{
			CacheLimit:     1000,
			PerSecond:      10,
			TimeoutSeconds: 5,
		},
		Lifecycle: LifecycleConfig{
			TickMinutes:          1,
			DefaultDurationHours: 4,
		},
		Scrape: ScrapeConfig{
			IntervalMinutes:       30,
			AdapterTimeoutMinutes: 5,
		},
		Permits: ingest.PermitConfig{Enabled: true},
	}
}

// Load reads a YAML config file (skipped when path is empty), applies
// environment variable overrides, and returns defaults merged with
// both.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// applyEnv maps the conventional environment variables over the file
// values. Env always wins.
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Listen = ":" + v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("GOOGLE_MAPS_API_KEY"); v != "" {
		c.Geocode.APIKey = v
	}
	if n, ok := envInt("GEOCODING_CACHE_SIZE_LIMIT"); ok {
		c.Geocode.CacheLimit = n
	}
	if n, ok := envInt("GEOCODING_RATE_LIMIT_PER_SECOND"); ok {
		c.Geocode.PerSecond = n
	}
	if n, ok := envInt("DEFAULT_EVENT_DURATION_HOURS"); ok {
		c.Lifecycle.DefaultDurationHours = n
	}
	if v := os.Getenv("NEWS_API_KEY"); v != "" {
		c.News.APIKey = v
	}
	if v := os.Getenv("TWITTER_BEARER_TOKEN"); v != "" {
		c.Social.BearerToken = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Geocode.CacheLimit <= 0 {
		return fmt.Errorf("geocode.cache_limit must be > 0")
	}
	if c.Geocode.PerSecond <= 0 {
		return fmt.Errorf("geocode.per_second must be > 0")
	}
	if c.Geocode.TimeoutSeconds <= 0 {
		return fmt.Errorf("geocode.timeout_seconds must be > 0")
	}
	if c.BroadcastBuffer < 0 {
		return fmt.Errorf("broadcast_buffer must be >= 0")
	}
	if c.Lifecycle.TickMinutes <= 0 {
		return fmt.Errorf("lifecycle.tick_minutes must be > 0")
	}
	if c.Lifecycle.DefaultDurationHours <= 0 {
		return fmt.Errorf("lifecycle.default_duration_hours must be > 0")
	}
	if c.Scrape.IntervalMinutes <= 0 {
		return fmt.Errorf("scrape.interval_minutes must be > 0")
	}
	return nil
}

// ResolverConfig converts the geocode section into resolver settings.
func (c *Config) ResolverConfig() geocode.Config {
	return geocode.Config{
		CacheLimit: c.Geocode.CacheLimit,
		PerSecond:  c.Geocode.PerSecond,
		Timeout:    time.Duration(c.Geocode.TimeoutSeconds) * time.Second,
	}
}
