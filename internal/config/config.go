// Package config loads and validates archiver configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/ehound/internal/source"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Sites   SitesConfig   `mapstructure:"sites"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Storage StorageConfig `mapstructure:"storage"`
	State   StateConfig   `mapstructure:"state"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Export  ExportConfig  `mapstructure:"export"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs pacing and fan-out.
type CrawlerConfig struct {
	// Interval is the minimum spacing between two requests to one domain.
	Interval           time.Duration `mapstructure:"interval"`
	MaxInFlight        int           `mapstructure:"max_in_flight"`
	BookParallelism    int           `mapstructure:"book_parallelism"`
	ChapterParallelism int           `mapstructure:"chapter_parallelism"`
	ImageParallelism   int           `mapstructure:"image_parallelism"`
	DefaultNext        string        `mapstructure:"default_next"`
}

// HTTPConfig configures the fetch backend and its retry behavior.
type HTTPConfig struct {
	Backend        string        `mapstructure:"backend"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	UserAgent      string        `mapstructure:"user_agent"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

// SitesConfig holds the data-driven page heuristics.
type SitesConfig struct {
	TextKeywords     []string `mapstructure:"text_keywords"`
	ImageKeywords    []string `mapstructure:"image_keywords"`
	MinTextFragments int      `mapstructure:"min_text_fragments"`
	// NextPredicates lists per-domain "next" link texts. It is a list rather than a
	// map because viper splits map keys on dots.
	NextPredicates []NextPredicate `mapstructure:"next_predicates"`
}

// NextPredicate names the anchor text of a domain's "next" link.
type NextPredicate struct {
	Domain string `mapstructure:"domain"`
	Text   string `mapstructure:"text"`
}

// CacheConfig locates the local content cache.
type CacheConfig struct {
	Root string `mapstructure:"root"`
}

// StorageConfig selects the blob store backend.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// StateConfig names the files written by save and read by load.
type StateConfig struct {
	DownloaderPath string `mapstructure:"downloader_path"`
	RetrieverPath  string `mapstructure:"retriever_path"`
	LibraryPath    string `mapstructure:"library_path"`
}

// CatalogConfig controls the optional Postgres archive catalog.
type CatalogConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// PubSubConfig holds metadata for chapter notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ExportConfig controls EPUB output.
type ExportConfig struct {
	Dir    string `mapstructure:"dir"`
	Author string `mapstructure:"author"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Supported backends.
const (
	BackendColly     = "colly"
	BackendRetryable = "retryable"

	StorageLocal  = "local"
	StorageGCS    = "gcs"
	StorageMemory = "memory"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EHOUND")
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
	classifier := source.DefaultClassifier()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "10m")
	v.SetDefault("crawler.interval", "1500ms")
	v.SetDefault("crawler.max_in_flight", 8)
	v.SetDefault("crawler.book_parallelism", 2)
	v.SetDefault("crawler.chapter_parallelism", 4)
	v.SetDefault("crawler.image_parallelism", 4)
	v.SetDefault("crawler.default_next", "Next")
	v.SetDefault("http.backend", BackendColly)
	v.SetDefault("http.request_timeout", "15s")
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial", "250ms")
	v.SetDefault("http.backoff_max", "2s")
	v.SetDefault("http.user_agent", "ehound/0.1")
	v.SetDefault("http.max_body_bytes", 32<<20)
	v.SetDefault("sites.text_keywords", classifier.TextKeywords)
	v.SetDefault("sites.image_keywords", classifier.ImageKeywords)
	v.SetDefault("sites.min_text_fragments", classifier.MinTextFragments)
	v.SetDefault("cache.root", "cache")
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("state.downloader_path", "state/downloader.json")
	v.SetDefault("state.retriever_path", "state/retriever.json")
	v.SetDefault("state.library_path", "state/library.json")
	v.SetDefault("catalog.table", "archived_chapters")
	v.SetDefault("pubsub.topic", "chapter-archived")
	v.SetDefault("export.dir", "epub")
	v.SetDefault("export.author", "ehound")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Interval <= 0 {
		return fmt.Errorf("crawler.interval must be > 0")
	}
	if c.Crawler.MaxInFlight <= 0 {
		return fmt.Errorf("crawler.max_in_flight must be > 0")
	}
	if c.Crawler.BookParallelism <= 0 || c.Crawler.ChapterParallelism <= 0 || c.Crawler.ImageParallelism <= 0 {
		return fmt.Errorf("crawler parallelism settings must be > 0")
	}
	if c.HTTP.RequestTimeout <= 0 {
		return fmt.Errorf("http.request_timeout must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	switch c.HTTP.Backend {
	case BackendColly, BackendRetryable:
	default:
		return fmt.Errorf("http.backend must be %q or %q, got %q", BackendColly, BackendRetryable, c.HTTP.Backend)
	}
	switch c.Storage.Backend {
	case StorageLocal:
		if strings.TrimSpace(c.Cache.Root) == "" {
			return fmt.Errorf("cache.root is required for local storage")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for gcs storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("storage.backend must be one of local, gcs, memory, got %q", c.Storage.Backend)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	for i, p := range c.Sites.NextPredicates {
		if strings.TrimSpace(p.Domain) == "" || p.Text == "" {
			return fmt.Errorf("sites.next_predicates[%d] needs both domain and text", i)
		}
	}
	if c.PubSub.ProjectID != "" && c.PubSub.Topic == "" {
		return fmt.Errorf("pubsub.topic must be set when pubsub.project_id is set")
	}
	return nil
}

// NextPredicateMap indexes sites.next_predicates by lower-cased domain. Later
// entries win.
func (c Config) NextPredicateMap() map[string]string {
	out := make(map[string]string, len(c.Sites.NextPredicates))
	for _, p := range c.Sites.NextPredicates {
		out[strings.ToLower(strings.TrimSpace(p.Domain))] = p.Text
	}
	return out
}

// Classifier builds the visual classifier from the sites section.
func (c Config) Classifier() source.Classifier {
	return source.Classifier{
		TextKeywords:     c.Sites.TextKeywords,
		ImageKeywords:    c.Sites.ImageKeywords,
		MinTextFragments: c.Sites.MinTextFragments,
	}
}
