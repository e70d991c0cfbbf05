package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/idxmirror/internal/types"
	"github.com/dl-alexandre/idxmirror/internal/utils"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "IDXMIRROR_"
)

// Config holds application configuration
type Config struct {
	// BaseURL is the upstream directory-listing root every remote path is appended to
	BaseURL string `json:"baseURL"`

	// MaxRetries is the number of attempts made per file before it counts as failed
	MaxRetries int `json:"maxRetries"`

	// RetryDelay is the fixed pause between attempts in milliseconds
	RetryDelay int `json:"retryDelay"`

	// RequestTimeout bounds the wait for response headers, in seconds
	RequestTimeout int `json:"requestTimeout"`

	// Concurrency is the number of files transferred at once
	Concurrency int `json:"concurrency"`

	// ChunkSize is the copy buffer size used while streaming a body to disk
	ChunkSize int `json:"chunkSize"`

	// LogLevel sets the logging verbosity (quiet, normal, verbose, debug)
	LogLevel string `json:"logLevel"`

	// OutputFormat is the summary format (json, table)
	OutputFormat types.OutputFormat `json:"outputFormat"`

	// ColorOutput enables ANSI colors on console log lines
	ColorOutput bool `json:"colorOutput"`

	// ShowProgress draws a progress bar while a file downloads
	ShowProgress bool `json:"showProgress"`

	// Excludes are patterns applied in addition to --exclude flags
	Excludes []string `json:"excludes,omitempty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        utils.DefaultBaseURL,
		MaxRetries:     utils.DefaultMaxRetries,
		RetryDelay:     utils.DefaultRetryDelayMs,
		RequestTimeout: utils.DefaultRequestTimeoutSecs,
		Concurrency:    utils.DefaultConcurrency,
		ChunkSize:      utils.DefaultChunkSize,
		LogLevel:       "normal",
		OutputFormat:   types.OutputFormatTable,
		ColorOutput:    true,
		ShowProgress:   true,
	}
}

// Load loads configuration with precedence: env vars > config file > defaults.
// CLI flags are applied on top by the caller. An empty path means the
// default location.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return nil, err
		}
		if err := cfg.loadFromFile(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else if err := cfg.loadFromFile(path); err != nil {
		// An explicitly named file must exist
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a JSON file
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if v := os.Getenv(EnvPrefix + "BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "MAX_RETRIES"); v != "" {
		if retries, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = retries
		}
	}
	if v := os.Getenv(EnvPrefix + "RETRY_DELAY"); v != "" {
		if delay, err := strconv.Atoi(v); err == nil {
			c.RetryDelay = delay
		}
	}
	if v := os.Getenv(EnvPrefix + "REQUEST_TIMEOUT"); v != "" {
		if timeout, err := strconv.Atoi(v); err == nil {
			c.RequestTimeout = timeout
		}
	}
	if v := os.Getenv(EnvPrefix + "CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
	if v := os.Getenv(EnvPrefix + "CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ChunkSize = n
		}
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_FORMAT"); v != "" {
		c.OutputFormat = types.OutputFormat(v)
	}
	if v := os.Getenv(EnvPrefix + "COLOR_OUTPUT"); v != "" {
		c.ColorOutput = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "SHOW_PROGRESS"); v != "" {
		c.ShowProgress = parseBool(v)
	}
}

// Save writes the configuration to path
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base URL must be an absolute http(s) URL, got: %q", c.BaseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("base URL must not carry a query or fragment, got: %q", c.BaseURL)
	}

	if c.MaxRetries < 1 || c.MaxRetries > utils.MaxRetries {
		return fmt.Errorf("max retries must be between 1 and %d, got: %d", utils.MaxRetries, c.MaxRetries)
	}

	if c.RetryDelay < 0 || c.RetryDelay > utils.MaxRetryDelayMs {
		return fmt.Errorf("retry delay must be between 0ms and %dms, got: %d", utils.MaxRetryDelayMs, c.RetryDelay)
	}

	if c.RequestTimeout < 1 || c.RequestTimeout > 3600 {
		return fmt.Errorf("request timeout must be between 1 and 3600 seconds, got: %d", c.RequestTimeout)
	}

	if c.Concurrency < 1 || c.Concurrency > utils.MaxConcurrency {
		return fmt.Errorf("concurrency must be between 1 and %d, got: %d", utils.MaxConcurrency, c.Concurrency)
	}

	if c.ChunkSize < utils.MinChunkSize || c.ChunkSize > utils.MaxChunkSize {
		return fmt.Errorf("chunk size must be between %d and %d bytes, got: %d", utils.MinChunkSize, utils.MaxChunkSize, c.ChunkSize)
	}

	if c.OutputFormat != types.OutputFormatJSON && c.OutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s (must be 'json' or 'table')", c.OutputFormat)
	}

	validLogLevels := []string{"quiet", "normal", "verbose", "debug"}
	isValid := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}

// GetRetryDelay returns the retry delay as a duration
func (c *Config) GetRetryDelay() time.Duration {
	return time.Duration(c.RetryDelay) * time.Millisecond
}

// GetRequestTimeout returns the request timeout as a duration
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetConfigPath returns the path to the default config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "idxmirror"), nil
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
