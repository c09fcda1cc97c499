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
	Macroflow MacroflowConfig `yaml:"macroflow"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Sources   SourcesConfig   `yaml:"sources"`
	Storage   StorageConfig   `yaml:"storage"`
}

type MacroflowConfig struct {
	Name          string `yaml:"name"`
	Version       string `yaml:"version"`
	DefaultSource string `yaml:"default_source"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Region         string        `yaml:"region"`
	Namespace      string        `yaml:"namespace"`
	Dashboard      string        `yaml:"dashboard"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

type FetchConfig struct {
	// MetadataTimeout bounds control and observation-stream calls;
	// DownloadTimeout bounds bulk table downloads.
	MetadataTimeout time.Duration        `yaml:"metadata_timeout"`
	DownloadTimeout time.Duration        `yaml:"download_timeout"`
	UserAgent       string               `yaml:"user_agent"`
	RateLimit       RateLimitConfig      `yaml:"rate_limit"`
	ConnectionPool  ConnectionPoolConfig `yaml:"connection_pool"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type SourcesConfig struct {
	StatCan      StatCanConfig      `yaml:"statcan"`
	BankOfCanada BankOfCanadaConfig `yaml:"bankofcanada"`
	FRED         FREDConfig         `yaml:"fred"`
}

type StatCanConfig struct {
	BaseURL   string `yaml:"base_url"`
	ProductID string `yaml:"product_id"`
	Language  string `yaml:"language"`
	Geography string `yaml:"geography"`
	Category  string `yaml:"category"`
}

type BankOfCanadaConfig struct {
	BaseURL string `yaml:"base_url"`
	Series  string `yaml:"series"`
}

type FREDConfig struct {
	BaseURL string `yaml:"base_url"`
	Series  string `yaml:"series"`
	APIKey  string `yaml:"api_key"`
}

type StorageConfig struct {
	Local LocalConfig `yaml:"local"`
	S3    S3Config    `yaml:"s3"`
}

type LocalConfig struct {
	ArchiveDir   string `yaml:"archive_dir"`
	SnapshotDir  string `yaml:"snapshot_dir"`
	SnapshotFile string `yaml:"snapshot_file"`
	Compression  string `yaml:"compression"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Sources the pipeline knows how to build. validateConfig and the source
// factory both check against this set.
var knownSources = map[string]bool{
	"statcan":      true,
	"bankofcanada": true,
	"fred":         true,
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	// Secrets come from the environment when present
	if v := os.Getenv("FRED_API_KEY"); v != "" {
		config.Sources.FRED.APIKey = strings.TrimSpace(v)
	}
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

func applyDefaults(cfg *Config) {
	if cfg.Macroflow.DefaultSource == "" {
		cfg.Macroflow.DefaultSource = "statcan"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Metrics.ReportInterval <= 0 {
		cfg.Metrics.ReportInterval = 60 * time.Second
	}
	if cfg.Fetch.MetadataTimeout <= 0 {
		cfg.Fetch.MetadataTimeout = 30 * time.Second
	}
	if cfg.Fetch.DownloadTimeout <= 0 {
		cfg.Fetch.DownloadTimeout = 60 * time.Second
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = "macroflow/1.0"
	}
	if cfg.Fetch.RateLimit.RequestsPerSecond <= 0 {
		cfg.Fetch.RateLimit.RequestsPerSecond = 5
	}
	if cfg.Fetch.RateLimit.BurstSize <= 0 {
		cfg.Fetch.RateLimit.BurstSize = 1
	}
	if cfg.Fetch.ConnectionPool.MaxIdleConns <= 0 {
		cfg.Fetch.ConnectionPool.MaxIdleConns = 10
	}
	if cfg.Fetch.ConnectionPool.MaxConnsPerHost <= 0 {
		cfg.Fetch.ConnectionPool.MaxConnsPerHost = 5
	}
	if cfg.Fetch.ConnectionPool.IdleConnTimeout <= 0 {
		cfg.Fetch.ConnectionPool.IdleConnTimeout = 90 * time.Second
	}
	if cfg.Sources.StatCan.Language == "" {
		cfg.Sources.StatCan.Language = "en"
	}
	if cfg.Storage.Local.ArchiveDir == "" {
		cfg.Storage.Local.ArchiveDir = "data/processed"
	}
	if cfg.Storage.Local.SnapshotDir == "" {
		cfg.Storage.Local.SnapshotDir = "data_outputs"
	}
	if cfg.Storage.Local.SnapshotFile == "" {
		cfg.Storage.Local.SnapshotFile = "inflation_data.csv"
	}
	if cfg.Storage.Local.Compression == "" {
		cfg.Storage.Local.Compression = "snappy"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Macroflow.Name == "" {
		return fmt.Errorf("macroflow.name is required")
	}

	if cfg.Macroflow.Version == "" {
		return fmt.Errorf("macroflow.version is required")
	}

	if !knownSources[cfg.Macroflow.DefaultSource] {
		return fmt.Errorf("macroflow.default_source '%s' is not a known source", cfg.Macroflow.DefaultSource)
	}

	if cfg.Fetch.MetadataTimeout <= 0 {
		return fmt.Errorf("fetch.metadata_timeout must be greater than 0")
	}
	if cfg.Fetch.DownloadTimeout <= 0 {
		return fmt.Errorf("fetch.download_timeout must be greater than 0")
	}

	if cfg.Sources.StatCan.BaseURL == "" {
		return fmt.Errorf("sources.statcan.base_url is required")
	}
	if !isValidProductID(cfg.Sources.StatCan.ProductID) {
		return fmt.Errorf("sources.statcan.product_id '%s' is invalid: must be exactly 8 digits", cfg.Sources.StatCan.ProductID)
	}
	if lang := cfg.Sources.StatCan.Language; lang != "en" && lang != "fr" {
		return fmt.Errorf("sources.statcan.language '%s' is invalid: must be en or fr", lang)
	}
	if cfg.Sources.StatCan.Geography == "" {
		return fmt.Errorf("sources.statcan.geography is required")
	}
	if cfg.Sources.StatCan.Category == "" {
		return fmt.Errorf("sources.statcan.category is required")
	}

	if cfg.Sources.BankOfCanada.BaseURL == "" {
		return fmt.Errorf("sources.bankofcanada.base_url is required")
	}
	if cfg.Sources.BankOfCanada.Series == "" {
		return fmt.Errorf("sources.bankofcanada.series is required")
	}

	if cfg.Sources.FRED.BaseURL == "" {
		return fmt.Errorf("sources.fred.base_url is required")
	}
	if cfg.Sources.FRED.Series == "" {
		return fmt.Errorf("sources.fred.series is required")
	}

	if cfg.Storage.Local.SnapshotFile == "" {
		return fmt.Errorf("storage.local.snapshot_file is required")
	}
	switch cfg.Storage.Local.Compression {
	case "snappy", "gzip", "none":
	default:
		return fmt.Errorf("storage.local.compression '%s' is invalid: must be snappy, gzip or none", cfg.Storage.Local.Compression)
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

// Bulk table identifiers are numeric, eight digits, no separators.
var productIDRegexp = regexp.MustCompile(`^[0-9]{8}$`)

func isValidProductID(id string) bool {
	return productIDRegexp.MatchString(id)
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
