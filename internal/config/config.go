// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Queue drivers for batch jobs.
const (
	QueueMemory = "memory"
	QueueRedis  = "redis"
)

// Store drivers understood by the application container.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Batch   BatchConfig   `mapstructure:"batch"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs the source adapter, the pagination walker and the batch pacing.
type CrawlerConfig struct {
	UserAgent            string        `mapstructure:"user_agent"`
	SourceBaseURL        string        `mapstructure:"source_base_url"`
	PageDelay            time.Duration `mapstructure:"page_delay"`
	ChapterDelay         time.Duration `mapstructure:"chapter_delay"`
	MaxListPages         int           `mapstructure:"max_list_pages"`
	RequireChapterNumber bool          `mapstructure:"require_chapter_number"`
	RespectRobots        bool          `mapstructure:"respect_robots"`
	// MaxRPS caps requests per second per source host across all workers; 0 disables it.
	MaxRPS    float64 `mapstructure:"max_rps"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// HTTPConfig configures the outbound HTTP client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// BatchConfig sizes the queued batch job workers and picks the queue backend.
type BatchConfig struct {
	Workers     int    `mapstructure:"workers"`
	QueueSize   int    `mapstructure:"queue_size"`
	MaxJobs     int    `mapstructure:"max_jobs"`
	QueueDriver string `mapstructure:"queue_driver"`
	RedisURL    string `mapstructure:"redis_url"`
	QueueKey    string `mapstructure:"queue_key"`
}

// StoreConfig selects and configures the document store backend.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Database string `mapstructure:"database"`
	Migrate  bool   `mapstructure:"migrate"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STORYCRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("crawler.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("crawler.source_base_url", "https://truyenfull.vision")
	v.SetDefault("crawler.page_delay", 300*time.Millisecond)
	v.SetDefault("crawler.chapter_delay", 200*time.Millisecond)
	v.SetDefault("crawler.max_list_pages", 100)
	v.SetDefault("crawler.require_chapter_number", false)
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.max_rps", 0)
	v.SetDefault("crawler.rate_burst", 1)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("batch.workers", 1)
	v.SetDefault("batch.queue_size", 32)
	v.SetDefault("batch.max_jobs", 500)
	v.SetDefault("batch.queue_driver", QueueMemory)
	v.SetDefault("batch.queue_key", "storycrawler:batch_jobs")
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.database", "storycrawler")
	v.SetDefault("store.migrate", true)
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server timeouts must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Crawler.MaxListPages <= 0 {
		return fmt.Errorf("crawler.max_list_pages must be > 0")
	}
	if c.Crawler.PageDelay < 0 || c.Crawler.ChapterDelay < 0 {
		return fmt.Errorf("crawler delays must be >= 0")
	}
	if c.Crawler.MaxRPS < 0 {
		return fmt.Errorf("crawler.max_rps must be >= 0")
	}
	if c.Crawler.SourceBaseURL == "" {
		return fmt.Errorf("crawler.source_base_url is required")
	}
	if c.Batch.Workers <= 0 || c.Batch.QueueSize <= 0 {
		return fmt.Errorf("batch.workers and batch.queue_size must be > 0")
	}
	switch c.Batch.QueueDriver {
	case QueueMemory, "":
	case QueueRedis:
		if c.Batch.RedisURL == "" {
			return fmt.Errorf("batch.redis_url must be set for the redis queue")
		}
	default:
		return fmt.Errorf("batch.queue_driver %q is not supported", c.Batch.QueueDriver)
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres, DriverMongo:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FetchTimeout converts the HTTP timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
