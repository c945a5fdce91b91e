package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/Project-Sylos/Chronicle/internal/types"
)

// Defaults shared by DefaultConfig and LoadFromFile
const (
	DefaultTimeoutMS         = 30000
	DefaultUpdateDelayMS     = 4000
	DefaultOrder             = "update_time"
	DefaultLimitOnFirstFetch = 10
	DefaultLimitPerFetch     = 10
	DefaultAPIHost           = "localhost"
	DefaultAPIPort           = 8087
	MemoryDSN                = ":memory:"
)

// DefaultConfig returns a default configuration
func DefaultConfig() types.Config {
	return types.Config{
		Server: types.ServerConfig{
			BaseURL:   "http://localhost:8080",
			TimeoutMS: DefaultTimeoutMS,
		},
		Cache: types.CacheConfig{
			Backend: types.BackendMemory,
			DBPath:  MemoryDSN,
		},
		Poll: types.PollConfig{
			UpdateDelayMS: DefaultUpdateDelayMS,
		},
		Collection: types.CollectionConfig{
			Order:             DefaultOrder,
			LimitOnFirstFetch: DefaultLimitOnFirstFetch,
			LimitPerFetch:     DefaultLimitPerFetch,
		},
		API: types.APIConfig{
			Host: DefaultAPIHost,
			Port: DefaultAPIPort,
		},
		Log: types.LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(configPath string) (*types.Config, error) {
	// Check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg types.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// File-backed DuckDB caches get an absolute path
	if cfg.Cache.Backend == types.BackendDuckDB && cfg.Cache.DBPath != MemoryDSN && !filepath.IsAbs(cfg.Cache.DBPath) {
		absPath, err := filepath.Abs(cfg.Cache.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
		cfg.Cache.DBPath = absPath
	}

	return &cfg, nil
}

// ApplyDefaults fills every unset optional field
func ApplyDefaults(cfg *types.Config) {
	if cfg.Server.TimeoutMS == 0 {
		cfg.Server.TimeoutMS = DefaultTimeoutMS
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = types.BackendMemory
	}
	if cfg.Cache.DBPath == "" {
		cfg.Cache.DBPath = MemoryDSN
	}
	if cfg.Poll.UpdateDelayMS == 0 {
		cfg.Poll.UpdateDelayMS = DefaultUpdateDelayMS
	}
	if cfg.Collection.Order == "" {
		cfg.Collection.Order = DefaultOrder
	}
	if cfg.Collection.LimitOnFirstFetch == 0 {
		cfg.Collection.LimitOnFirstFetch = DefaultLimitOnFirstFetch
	}
	if cfg.Collection.LimitPerFetch == 0 {
		cfg.Collection.LimitPerFetch = DefaultLimitPerFetch
	}
	if cfg.API.Host == "" {
		cfg.API.Host = DefaultAPIHost
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = DefaultAPIPort
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate checks that the configuration parameters are valid
func Validate(cfg *types.Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if cfg.Server.BaseURL == "" {
		return fmt.Errorf("server base_url is required")
	}
	u, err := url.Parse(cfg.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid server base_url %q: %w", cfg.Server.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server base_url must be http or https, got %q", cfg.Server.BaseURL)
	}
	if cfg.Server.TimeoutMS < 0 {
		return fmt.Errorf("server timeout_ms must be non-negative, got %d", cfg.Server.TimeoutMS)
	}

	switch cfg.Cache.Backend {
	case types.BackendMemory, types.BackendDuckDB:
	default:
		return fmt.Errorf("cache backend must be %q or %q, got %q", types.BackendMemory, types.BackendDuckDB, cfg.Cache.Backend)
	}

	if cfg.Poll.UpdateDelayMS <= 0 {
		return fmt.Errorf("poll update_delay_ms must be positive, got %d", cfg.Poll.UpdateDelayMS)
	}

	if cfg.Collection.LimitOnFirstFetch < 1 {
		return fmt.Errorf("limit_on_first_fetch must be at least 1, got %d", cfg.Collection.LimitOnFirstFetch)
	}
	if cfg.Collection.LimitPerFetch < 1 {
		return fmt.Errorf("limit_per_fetch must be at least 1, got %d", cfg.Collection.LimitPerFetch)
	}

	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		return fmt.Errorf("API port must be between 1 and 65535, got %d", cfg.API.Port)
	}

	switch cfg.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", cfg.Log.Format)
	}

	return nil
}

// SaveToFile saves configuration to a JSON file
func SaveToFile(cfg *types.Config, configPath string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Timeout returns the HTTP client timeout
func Timeout(cfg *types.Config) time.Duration {
	return time.Duration(cfg.Server.TimeoutMS) * time.Millisecond
}

// UpdateDelay returns the polling delay
func UpdateDelay(cfg *types.Config) time.Duration {
	return time.Duration(cfg.Poll.UpdateDelayMS) * time.Millisecond
}

// Overrides are command-line values applied on top of a loaded config.
// Zero values leave the loaded setting alone.
type Overrides struct {
	BaseURL  string
	APIKey   string
	Backend  string
	DBPath   string
	LogLevel string
	Host     string
	Port     int
}

// Load reads configPath, or starts from DefaultConfig when it is empty,
// then applies o and validates the result
func Load(configPath string, o Overrides) (*types.Config, error) {
	var cfg *types.Config
	if configPath != "" {
		loaded, err := LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		defaults := DefaultConfig()
		cfg = &defaults
	}

	if o.BaseURL != "" {
		cfg.Server.BaseURL = o.BaseURL
	}
	if o.APIKey != "" {
		cfg.Server.APIKey = o.APIKey
	}
	if o.Backend != "" {
		cfg.Cache.Backend = o.Backend
	}
	if o.DBPath != "" {
		cfg.Cache.DBPath = o.DBPath
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.Host != "" {
		cfg.API.Host = o.Host
	}
	if o.Port != 0 {
		cfg.API.Port = o.Port
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
