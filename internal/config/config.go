package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the entire application configuration
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Downloader DownloaderConfig `mapstructure:"downloader"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// APIConfig contains Bybit download API settings
type APIConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	UserAgent string `mapstructure:"user_agent"`
	Timeout   string `mapstructure:"timeout"`
}

// DownloaderConfig contains download engine settings
type DownloaderConfig struct {
	OutputDir           string `mapstructure:"output_dir"`
	ConcurrentDownloads int    `mapstructure:"concurrent_downloads"`
	MaxRetries          int    `mapstructure:"max_retries"`
	BaseBackoff         string `mapstructure:"base_backoff"`
	RequestTimeout      string `mapstructure:"request_timeout"`
	BufferSizeKB        int    `mapstructure:"buffer_size_kb"`
}

// DatabaseConfig contains manifest database settings. An empty path
// disables the manifest.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// setDefaults registers the default value for every key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.user_agent", "")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("downloader.output_dir", "./data")
	v.SetDefault("downloader.concurrent_downloads", 5)
	v.SetDefault("downloader.max_retries", 3)
	v.SetDefault("downloader.base_backoff", "1s")
	v.SetDefault("downloader.request_timeout", "60s")
	v.SetDefault("downloader.buffer_size_kb", 8)
	v.SetDefault("database.path", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load loads configuration from the specified file path
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg, _ := Load("")
	return cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Downloader.OutputDir == "" {
		return fmt.Errorf("downloader.output_dir is required")
	}
	if c.Downloader.ConcurrentDownloads < 1 || c.Downloader.ConcurrentDownloads > 20 {
		return fmt.Errorf("downloader.concurrent_downloads must be between 1 and 20")
	}
	if c.Downloader.MaxRetries < 1 {
		return fmt.Errorf("downloader.max_retries must be positive")
	}

	if _, err := time.ParseDuration(c.API.Timeout); err != nil {
		return fmt.Errorf("invalid api.timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Downloader.BaseBackoff); err != nil {
		return fmt.Errorf("invalid downloader.base_backoff: %w", err)
	}
	if _, err := time.ParseDuration(c.Downloader.RequestTimeout); err != nil {
		return fmt.Errorf("invalid downloader.request_timeout: %w", err)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// GetTimeout returns the API request timeout as time.Duration
func (c *APIConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetBaseBackoff returns the retry base backoff as time.Duration
func (c *DownloaderConfig) GetBaseBackoff() time.Duration {
	d, _ := time.ParseDuration(c.BaseBackoff)
	if d == 0 {
		return time.Second
	}
	return d
}

// GetRequestTimeout returns the download request timeout as time.Duration
func (c *DownloaderConfig) GetRequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.RequestTimeout)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}

// GetBufferSize returns the copy buffer size in bytes
func (c *DownloaderConfig) GetBufferSize() int {
	if c.BufferSizeKB <= 0 {
		return 8 * 1024 // 8KB default
	}
	return c.BufferSizeKB * 1024
}
