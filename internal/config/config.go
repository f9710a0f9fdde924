// Package config loads and validates crawler configuration from config
// files, environment variables, and defaults via viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/estatewatch/crawler/internal/domain"
	"github.com/estatewatch/crawler/internal/logger"
)

// Backend names accepted by StorageConfig.Backend.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config is the root configuration for all commands.
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Logger  logger.Config `mapstructure:"logger"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Storage StorageConfig `mapstructure:"storage"`
	API     APIConfig     `mapstructure:"api"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// CrawlerConfig holds the crawl pipeline settings.
type CrawlerConfig struct {
	// BaseURL is the root of the source site.
	BaseURL string `mapstructure:"base_url"`
	// Workers is the size of the detail-extraction worker pool.
	Workers int `mapstructure:"workers"`
	// ItemsPerPage is the page size requested from listing endpoints.
	ItemsPerPage int `mapstructure:"items_per_page"`
	// MaxPages bounds pagination when the true page count is undetected.
	MaxPages int `mapstructure:"max_pages"`
	// MaxRPS is the process-wide request-per-second ceiling.
	MaxRPS int `mapstructure:"max_rps"`
	// BurstSize and BurstWindow shape the anti-burst throttle.
	BurstSize   int           `mapstructure:"burst_size"`
	BurstWindow time.Duration `mapstructure:"burst_window"`
	// MaxRetries and RetryBaseDelay drive the retry executor.
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	// MaxSessionUses recycles a worker's browser session after this many
	// acquisitions.
	MaxSessionUses int `mapstructure:"max_session_uses"`
	// PageTimeout bounds a single page load.
	PageTimeout time.Duration `mapstructure:"page_timeout"`
	// CollectBudget is the wall-clock budget for one category's link
	// discovery.
	CollectBudget time.Duration `mapstructure:"collect_budget"`
	// CheckpointEvery persists the checkpoint after this many successes.
	CheckpointEvery int `mapstructure:"checkpoint_every"`
	// LinkTTL is how long a saved link snapshot counts as fresh.
	LinkTTL time.Duration `mapstructure:"link_ttl"`
	// MaxAutoRetries caps the self-diagnosis corrective re-runs.
	MaxAutoRetries int `mapstructure:"max_auto_retries"`
	// MetricsAddr, when set, serves Prometheus metrics during a crawl.
	MetricsAddr string `mapstructure:"metrics_addr"`
	// Categories overrides the built-in category table when non-empty.
	Categories []domain.Category `mapstructure:"categories"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend    string         `mapstructure:"backend"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
	SQLitePath string         `mapstructure:"sqlite_path"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// APIConfig holds the read-only query API settings.
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// SetDefaults registers every default value with viper. Call before
// ReadInConfig so file and environment values take precedence.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "estatecrawl")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "console")

	v.SetDefault("crawler.base_url", "https://www.e-uchina.net")
	v.SetDefault("crawler.workers", 4)
	v.SetDefault("crawler.items_per_page", 50)
	v.SetDefault("crawler.max_pages", 150)
	v.SetDefault("crawler.max_rps", 5)
	v.SetDefault("crawler.burst_size", 5)
	v.SetDefault("crawler.burst_window", "2s")
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.retry_base_delay", "2s")
	v.SetDefault("crawler.max_session_uses", 50)
	v.SetDefault("crawler.page_timeout", "15s")
	v.SetDefault("crawler.collect_budget", "600s")
	v.SetDefault("crawler.checkpoint_every", 10)
	v.SetDefault("crawler.link_ttl", "24h")
	v.SetDefault("crawler.max_auto_retries", 2)

	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("storage.sqlite_path", "output/listings.db")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.sslmode", "disable")

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 5000)
}

// Load builds a Config from the given viper instance.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Category overrides may arrive as loosely typed maps from YAML or
	// JSON; decode them strictly.
	if raw := v.Get("crawler.categories"); raw != nil {
		var cats []domain.Category
		if err := mapstructure.Decode(raw, &cats); err != nil {
			return nil, fmt.Errorf("decode categories: %w", err)
		}
		cfg.Crawler.Categories = cats
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for fatal problems. Missing
// persistence credentials are the only startup-fatal condition besides
// malformed values.
func (c *Config) Validate() error {
	if c.Crawler.BaseURL == "" {
		return errors.New("crawler.base_url must be set")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be positive, got %d", c.Crawler.Workers)
	}
	if c.Crawler.MaxRPS <= 0 {
		return fmt.Errorf("crawler.max_rps must be positive, got %d", c.Crawler.MaxRPS)
	}
	if c.Crawler.ItemsPerPage <= 0 {
		return fmt.Errorf("crawler.items_per_page must be positive, got %d", c.Crawler.ItemsPerPage)
	}

	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path must be set for the sqlite backend")
		}
	case BackendPostgres:
		pg := c.Storage.Postgres
		var missing []string
		if pg.Host == "" {
			missing = append(missing, "host")
		}
		if pg.User == "" {
			missing = append(missing, "user")
		}
		if pg.Password == "" {
			missing = append(missing, "password")
		}
		if pg.DBName == "" {
			missing = append(missing, "dbname")
		}
		if len(missing) > 0 {
			return fmt.Errorf("storage.postgres missing required settings: %s", strings.Join(missing, ", "))
		}
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Storage.Backend)
	}

	return nil
}

// Categories returns the effective category table.
func (c *Config) Categories() []domain.Category {
	if len(c.Crawler.Categories) > 0 {
		return c.Crawler.Categories
	}
	return domain.DefaultCategories(c.Crawler.BaseURL)
}
