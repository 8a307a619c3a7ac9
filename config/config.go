package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Optionflow OptionflowConfig `yaml:"optionflow"`
	Currencies []string         `yaml:"currencies"`
	Provider   ProviderConfig   `yaml:"provider"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	Output     OutputConfig     `yaml:"output"`
	Storage    StorageConfig    `yaml:"storage"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type OptionflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ProviderConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Retry          RetryConfig          `yaml:"retry"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// AnalyticsConfig carries every derivation threshold. Components receive
// it at construction; there is no process-wide mutable state.
type AnalyticsConfig struct {
	ReferenceTenorDays int            `yaml:"reference_tenor_days"`
	MaxDeltaDistance   float64        `yaml:"max_delta_distance"`
	DeltaProxyK        float64        `yaml:"delta_proxy_k"`
	TopStrikes         int            `yaml:"top_strikes"`
	NearStrikeBandPct  float64        `yaml:"near_strike_band_pct"`
	Hotspots           HotspotConfig  `yaml:"hotspots"`
	Segments           SegmentsConfig `yaml:"segments"`
}

type HotspotConfig struct {
	MinDeviationPct float64 `yaml:"min_deviation_pct"`
	ZThreshold      float64 `yaml:"z_threshold"`
}

type SegmentsConfig struct {
	NearTermMaxDays int `yaml:"near_term_max_days"`
	MidTermMaxDays  int `yaml:"mid_term_max_days"`
}

type OutputConfig struct {
	Directory string        `yaml:"directory"`
	Formats   FormatsConfig `yaml:"formats"`
}

type FormatsConfig struct {
	CSV      bool `yaml:"csv"`
	Markdown bool `yaml:"markdown"`
	Parquet  bool `yaml:"parquet"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type ScheduleConfig struct {
	Cron string `yaml:"cron"` // empty means run once and exit
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

// DefaultConfig returns the configuration used when a field is absent
// from the YAML file. Threshold defaults follow the documented analytics
// rules: 30 day reference tenor, 0.05 max delta distance, proxy k 0.5,
// 20% hotspot deviation with z threshold 1.5.
func DefaultConfig() Config {
	return Config{
		Currencies: []string{"BTC", "ETH"},
		Provider: ProviderConfig{
			BaseURL: "https://www.deribit.com/api/v2",
			Timeout: 15 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 5,
				BurstSize:         10,
			},
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   500 * time.Millisecond,
				MaxDelay:    10 * time.Second,
			},
			ConnectionPool: ConnectionPoolConfig{
				MaxIdleConns:    10,
				MaxConnsPerHost: 10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		Analytics: AnalyticsConfig{
			ReferenceTenorDays: 30,
			MaxDeltaDistance:   0.05,
			DeltaProxyK:        0.5,
			TopStrikes:         5,
			NearStrikeBandPct:  20.0,
			Hotspots: HotspotConfig{
				MinDeviationPct: 20.0,
				ZThreshold:      1.5,
			},
			Segments: SegmentsConfig{
				NearTermMaxDays: 14,
				MidTermMaxDays:  45,
			},
		},
		Output: OutputConfig{
			Directory: "output",
			Formats:   FormatsConfig{CSV: true, Markdown: true, Parquet: false},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Optionflow.Name == "" {
		return fmt.Errorf("optionflow.name is required")
	}
	if cfg.Optionflow.Version == "" {
		return fmt.Errorf("optionflow.version is required")
	}

	if len(cfg.Currencies) == 0 {
		return fmt.Errorf("at least one currency is required")
	}
	for _, c := range cfg.Currencies {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("currencies must not contain empty entries")
		}
	}

	if cfg.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if cfg.Provider.Timeout <= 0 {
		return fmt.Errorf("provider.timeout must be greater than 0")
	}
	if cfg.Provider.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("provider.rate_limit.requests_per_second must be greater than 0")
	}
	if cfg.Provider.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("provider.retry.max_attempts must be greater than 0")
	}

	if cfg.Analytics.ReferenceTenorDays <= 0 {
		return fmt.Errorf("analytics.reference_tenor_days must be greater than 0")
	}
	if cfg.Analytics.MaxDeltaDistance <= 0 {
		return fmt.Errorf("analytics.max_delta_distance must be greater than 0")
	}
	if cfg.Analytics.DeltaProxyK <= 0 {
		return fmt.Errorf("analytics.delta_proxy_k must be greater than 0")
	}
	if cfg.Analytics.TopStrikes <= 0 {
		return fmt.Errorf("analytics.top_strikes must be greater than 0")
	}
	if cfg.Analytics.NearStrikeBandPct <= 0 {
		return fmt.Errorf("analytics.near_strike_band_pct must be greater than 0")
	}
	if cfg.Analytics.Hotspots.MinDeviationPct <= 0 {
		return fmt.Errorf("analytics.hotspots.min_deviation_pct must be greater than 0")
	}
	if cfg.Analytics.Hotspots.ZThreshold <= 0 {
		return fmt.Errorf("analytics.hotspots.z_threshold must be greater than 0")
	}
	if cfg.Analytics.Segments.NearTermMaxDays <= 0 ||
		cfg.Analytics.Segments.MidTermMaxDays <= cfg.Analytics.Segments.NearTermMaxDays {
		return fmt.Errorf("analytics.segments bounds must satisfy 0 < near_term_max_days < mid_term_max_days")
	}

	if cfg.Output.Directory == "" {
		return fmt.Errorf("output.directory is required")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
