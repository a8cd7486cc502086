// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Source  SourceConfig  `mapstructure:"source"`
	Sync    SyncConfig    `mapstructure:"sync"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Mirror  MirrorConfig  `mapstructure:"mirror"`
	Storage StorageConfig `mapstructure:"storage"`
	Journal JournalConfig `mapstructure:"journal"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// SourceConfig identifies the upstream archive.
type SourceConfig struct {
	Name        string `mapstructure:"name"`
	DocumentURL string `mapstructure:"document_url"`
	ListingURL  string `mapstructure:"listing_url"`
	Mode        string `mapstructure:"mode"` // sweep or listing
}

// SyncConfig governs discovery, planning and fetch behavior.
type SyncConfig struct {
	StartLegislature int    `mapstructure:"start_legislature"`
	From             string `mapstructure:"from"` // 2006-01-02; empty resumes from the ledger
	To               string `mapstructure:"to"`   // 2006-01-02; empty means today
	DefaultFrom      string `mapstructure:"default_from"`
	MissThreshold    int    `mapstructure:"miss_threshold"`
	SweepOvershoot   int    `mapstructure:"sweep_overshoot"`
	MaxStepsBack     int    `mapstructure:"max_steps_back"`
	MaxStepsForward  int    `mapstructure:"max_steps_forward"`
	Concurrency      int    `mapstructure:"concurrency"`
	StrictDates      bool   `mapstructure:"strict_dates"`
	PauseSeconds     int    `mapstructure:"pause_seconds"`
	DelayMs          int    `mapstructure:"delay_ms"`
}

// HTTPConfig configures the probe client and retry behavior.
type HTTPConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
}

// MirrorConfig sets the local mirror layout.
type MirrorConfig struct {
	Root string `mapstructure:"root"`
}

// StorageConfig sets the object store destination for uploads.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalRoot string `mapstructure:"local_root"` // fallback store when no bucket is set
	Prefix    string `mapstructure:"prefix"`
	Upload    bool   `mapstructure:"upload"`
}

// JournalConfig controls the Postgres run journal.
type JournalConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for run-summary notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STENOSYNC")
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
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("source.name", "camera")
	v.SetDefault("source.document_url", "https://documenti.camera.it")
	v.SetDefault("source.listing_url", "https://www.senato.it")
	v.SetDefault("source.mode", "sweep")
	v.SetDefault("sync.start_legislature", 19)
	v.SetDefault("sync.default_from", "2013-03-15")
	v.SetDefault("sync.miss_threshold", 50)
	v.SetDefault("sync.sweep_overshoot", 100)
	v.SetDefault("sync.max_steps_back", 20)
	v.SetDefault("sync.max_steps_forward", 10)
	v.SetDefault("sync.concurrency", 1)
	v.SetDefault("sync.pause_seconds", 30)
	v.SetDefault("sync.delay_ms", 500)
	v.SetDefault("http.user_agent", "stenosync/0.1")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("mirror.root", "./mirror")
	v.SetDefault("storage.local_root", "./objects")
	v.SetDefault("storage.prefix", "transcripts")
	v.SetDefault("journal.table", "sync_runs")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.Mode != "sweep" && c.Source.Mode != "listing" {
		return fmt.Errorf("source.mode must be sweep or listing, got %q", c.Source.Mode)
	}
	if c.Sync.StartLegislature <= 0 {
		return fmt.Errorf("sync.start_legislature must be > 0")
	}
	if c.Sync.MissThreshold <= 0 {
		return fmt.Errorf("sync.miss_threshold must be > 0")
	}
	if c.Sync.Concurrency <= 0 {
		return fmt.Errorf("sync.concurrency must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Mirror.Root == "" {
		return fmt.Errorf("mirror.root is required")
	}
	if c.Storage.Upload && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when upload is enabled")
	}
	for field, value := range map[string]string{
		"sync.from":         c.Sync.From,
		"sync.to":           c.Sync.To,
		"sync.default_from": c.Sync.DefaultFrom,
	} {
		if value == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return fmt.Errorf("%s must be a 2006-01-02 date, got %q", field, value)
		}
	}
	return nil
}

// HTTPTimeout converts the configured timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Date parses one of the validated date fields; zero when empty.
func Date(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
