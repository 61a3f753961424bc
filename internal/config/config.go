// Package config loads and validates uploader configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// StorageMode selects the storage backend variant for a run. It is chosen
// once at process start and stays immutable for the run's lifetime.
type StorageMode string

// Supported storage modes.
const (
	StorageModeLocal  StorageMode = "local"
	StorageModeRemote StorageMode = "remote"
)

// ParseStorageMode validates a raw mode string. Unrecognized values are a
// configuration error surfaced at startup.
func ParseStorageMode(raw string) (StorageMode, error) {
	switch StorageMode(strings.ToLower(strings.TrimSpace(raw))) {
	case StorageModeLocal:
		return StorageModeLocal, nil
	case StorageModeRemote:
		return StorageModeRemote, nil
	default:
		return "", fmt.Errorf("unrecognized storage mode %q (want %q or %q)", raw, StorageModeLocal, StorageModeRemote)
	}
}

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	Source   SourceConfig   `mapstructure:"source"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// StorageConfig selects and parameterizes the storage backend.
type StorageConfig struct {
	Mode  string           `mapstructure:"mode"`
	Local LocalStoreConfig `mapstructure:"local"`
	GCS   GCSConfig        `mapstructure:"gcs"`
}

// LocalStoreConfig sets the filesystem store location.
type LocalStoreConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSConfig sets the optional blob bucket for full decision texts.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database in remote mode.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	Table              string `mapstructure:"table"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	ConnLifetimeMinute int    `mapstructure:"conn_lifetime_minutes"`
}

// SourceConfig governs the upstream API client.
type SourceConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	UserAgent         string  `mapstructure:"user_agent"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	PageSize          int     `mapstructure:"page_size"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// PipelineConfig controls retry and failure tolerance behavior.
type PipelineConfig struct {
	MaxPutAttempts   int `mapstructure:"max_put_attempts"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
	FailureThreshold int `mapstructure:"failure_threshold"`
}

// PubSubConfig holds metadata for run summary notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig enables the Prometheus listener when an address is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("UPLOADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The deployment wrapper historically sets STORAGE_MODE without the
	// prefix; honor both spellings.
	if err := v.BindEnv("storage.mode", "UPLOADER_STORAGE_MODE", "STORAGE_MODE"); err != nil {
		return Config{}, fmt.Errorf("bind storage mode env: %w", err)
	}

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
	v.SetDefault("storage.mode", "remote")
	v.SetDefault("storage.local.base_dir", "data/decisions")
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.prefix", "decisions")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "decisions")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("source.base_url", "https://karararama.yargitay.gov.tr")
	v.SetDefault("source.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("source.timeout_seconds", 30)
	v.SetDefault("source.page_size", 50)
	v.SetDefault("source.requests_per_second", 2)
	v.SetDefault("pipeline.max_put_attempts", 3)
	v.SetDefault("pipeline.backoff_initial_ms", 250)
	v.SetDefault("pipeline.backoff_max_ms", 5000)
	v.SetDefault("pipeline.failure_threshold", 5)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	mode, err := ParseStorageMode(c.Storage.Mode)
	if err != nil {
		return err
	}
	if mode == StorageModeRemote && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required in remote storage mode")
	}
	if mode == StorageModeLocal && strings.TrimSpace(c.Storage.Local.BaseDir) == "" {
		return fmt.Errorf("storage.local.base_dir is required in local storage mode")
	}
	if c.Source.PageSize <= 0 {
		return fmt.Errorf("source.page_size must be > 0")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if c.Pipeline.MaxPutAttempts <= 0 {
		return fmt.Errorf("pipeline.max_put_attempts must be > 0")
	}
	if c.Pipeline.FailureThreshold < 0 {
		return fmt.Errorf("pipeline.failure_threshold must be >= 0")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}

// Mode returns the validated storage mode.
func (c Config) Mode() StorageMode {
	mode, _ := ParseStorageMode(c.Storage.Mode)
	return mode
}

// SourceTimeout converts the source timeout config into a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// BackoffInitial converts the initial retry backoff into a duration.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.Pipeline.BackoffInitialMs) * time.Millisecond
}

// BackoffMax converts the retry backoff cap into a duration.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Pipeline.BackoffMaxMs) * time.Millisecond
}

// ConnLifetime converts the pool connection lifetime into a duration.
func (c Config) ConnLifetime() time.Duration {
	return time.Duration(c.DB.ConnLifetimeMinute) * time.Minute
}
