// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every knob of a pipeline run. All values can be overridden
// through the environment with the WTW_WATCHER prefix, e.g.
// WTW_WATCHER_TMDB_API_KEY or WTW_WATCHER_FETCH_MAX_RETRIES.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	TMDB    TMDBConfig    `mapstructure:"tmdb"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Output  OutputConfig  `mapstructure:"output"`
	Quality QualityConfig `mapstructure:"quality"`
}

// SourceConfig identifies the cinema listings page to poll.
type SourceConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Cinema  string `mapstructure:"cinema"` // site slug, e.g. "st-austell"
	Name    string `mapstructure:"name"`   // display name for the document
}

// WhatsOnURL returns the listings page URL for the configured cinema.
func (s SourceConfig) WhatsOnURL() string {
	return strings.TrimRight(s.BaseURL, "/") + "/" + s.Cinema + "/whats-on/"
}

// FetchConfig configures HTTP retry behavior.
type FetchConfig struct {
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	MaxRetries      int     `mapstructure:"max_retries"`
	RetryDelayMs    int     `mapstructure:"retry_delay_ms"`
	RetryMultiplier float64 `mapstructure:"retry_multiplier"`
	UserAgent       string  `mapstructure:"user_agent"`
}

// TMDBConfig configures metadata enrichment. An empty APIKey disables
// enrichment; that is not an error.
type TMDBConfig struct {
	APIKey   string `mapstructure:"api_key"`
	DelayMs  int    `mapstructure:"delay_ms"` // pause before each external call
	Language string `mapstructure:"language"`
}

// CacheConfig sets the persistent enrichment cache location and retention.
type CacheConfig struct {
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// OutputConfig sets the persisted artifact paths.
type OutputConfig struct {
	DocumentPath    string `mapstructure:"document_path"`
	FingerprintPath string `mapstructure:"fingerprint_path"`
	SitePath        string `mapstructure:"site_path"`
	PostersDir      string `mapstructure:"posters_dir"`
	CertsDir        string `mapstructure:"certs_dir"`
	LockPath        string `mapstructure:"lock_path"`
}

// QualityConfig is the optional missing-enrichment gate. MaxMissingEnrichment
// below zero disables the gate.
type QualityConfig struct {
	MaxMissingEnrichment int `mapstructure:"max_missing_enrichment"`
}

// Load builds a Config from defaults, an optional config file, and the
// environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WTW_WATCHER")
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
	v.SetDefault("source.base_url", "https://wtwcinemas.co.uk")
	v.SetDefault("source.cinema", "st-austell")
	v.SetDefault("source.name", "White River Cinema, St Austell")
	v.SetDefault("fetch.timeout_seconds", 60)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.retry_delay_ms", 1000)
	v.SetDefault("fetch.retry_multiplier", 2.0)
	// Empty defaults register the keys with viper; AutomaticEnv only
	// resolves keys it already knows about.
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("tmdb.api_key", "")
	v.SetDefault("tmdb.delay_ms", 200)
	v.SetDefault("tmdb.language", "en-GB")
	v.SetDefault("cache.path", ".tmdb_cache.json")
	v.SetDefault("cache.retention_days", 30)
	v.SetDefault("output.document_path", "whats_on_data.json")
	v.SetDefault("output.fingerprint_path", ".whats_on_fingerprint")
	v.SetDefault("output.site_path", "index.html")
	v.SetDefault("output.posters_dir", "posters")
	v.SetDefault("output.certs_dir", "certs")
	v.SetDefault("output.lock_path", ".whats_on.lock")
	v.SetDefault("quality.max_missing_enrichment", -1)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url must be set")
	}
	if c.Source.Cinema == "" {
		return fmt.Errorf("source.cinema must be set")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0")
	}
	if c.Fetch.RetryMultiplier < 1 {
		return fmt.Errorf("fetch.retry_multiplier must be >= 1")
	}
	if c.Cache.RetentionDays <= 0 {
		return fmt.Errorf("cache.retention_days must be > 0")
	}
	return nil
}

// FetchTimeout returns the per-attempt timeout as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// RetryDelay returns the initial backoff delay as a duration.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Fetch.RetryDelayMs) * time.Millisecond
}

// EnrichmentDelay returns the pause inserted before each external metadata
// call.
func (c Config) EnrichmentDelay() time.Duration {
	return time.Duration(c.TMDB.DelayMs) * time.Millisecond
}

// CacheRetention returns the cache retention window as a duration.
func (c Config) CacheRetention() time.Duration {
	return time.Duration(c.Cache.RetentionDays) * 24 * time.Hour
}
