// Package config loads and validates the application configuration: Jira
// credentials, per-workspace queries, and the cache/sync/metrics/logging
// subsections, with environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BaseURL    string                     `yaml:"base_url"`
	Email      string                     `yaml:"email"`
	APIToken   string                     `yaml:"api_token"`
	Workspaces map[string]WorkspaceConfig `yaml:"workspaces"`
	Cache      CacheConfig                `yaml:"cache"`
	Sync       SyncConfig                 `yaml:"sync"`
	Metrics    MetricsConfig              `yaml:"metrics"`
	Logging    LoggingConfig              `yaml:"logging"`
}

type WorkspaceConfig struct {
	Query string `yaml:"query"`
}

type CacheConfig struct {
	DBPath  string `yaml:"db_path"`
	TTLSecs int    `yaml:"ttl_secs"`
}

type SyncConfig struct {
	Budget       int `yaml:"budget"`
	IntervalSecs int `yaml:"interval_secs"`
}

type MetricsConfig struct {
	IntervalSecs int `yaml:"interval_secs"`
}

type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

const (
	defaultCacheTTLSecs     = 30
	defaultSyncBudget       = 1000
	defaultSyncIntervalSecs = 60
	defaultMetricsInterval  = 60
)

func defaultConfig() *Config {
	return &Config{
		Cache:   CacheConfig{TTLSecs: defaultCacheTTLSecs},
		Sync:    SyncConfig{Budget: defaultSyncBudget, IntervalSecs: defaultSyncIntervalSecs},
		Metrics: MetricsConfig{IntervalSecs: defaultMetricsInterval},
	}
}

// Load reads the config file at the XDG-resolved path and applies secret
// overrides from the real process environment.
func Load() (*Config, error) {
	return LoadWithEnv(os.Getenv)
}

// LoadWithEnv loads configuration using the provided environment lookup
// function, so tests can supply an isolated environment.
func LoadWithEnv(getenv func(string) string) (*Config, error) {
	path, err := resolveConfigPath(getenv)
	if err != nil {
		return nil, err
	}
	return LoadFromWithEnv(path, getenv)
}

// LoadFromWithEnv loads a specific config file path, applying env overrides
// and validating the result.
func LoadFromWithEnv(path string, getenv func(string) string) (*Config, error) {
	cfg := defaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg, getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	if v := getenv("JIRA_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := getenv("JIRA_EMAIL"); v != "" {
		cfg.Email = v
	}
	if v := getenv("JIRA_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := getenv("JIRA_CACHE_DB_PATH"); v != "" {
		cfg.Cache.DBPath = v
	}
	if v := getenv("JIRA_CACHE_TTL_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.TTLSecs = n
		}
	}
	if v := getenv("JIRA_SYNC_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.Budget = n
		}
	}
	if v := getenv("JIRA_SYNC_INTERVAL_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.IntervalSecs = n
		}
	}
	if v := getenv("JIRA_METRICS_INTERVAL_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.IntervalSecs = n
		}
	}
	if v := getenv("JIRA_LOGGING_DEBUG"); v != "" {
		cfg.Logging.Debug = strings.EqualFold(v, "true") || v == "1"
	}
}

// Validate enforces spec section 6's constraints.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if strings.TrimSpace(c.Email) == "" {
		return fmt.Errorf("email must not be empty")
	}
	if strings.TrimSpace(c.APIToken) == "" {
		return fmt.Errorf("api_token must not be empty")
	}
	if len(c.Workspaces) == 0 {
		return fmt.Errorf("workspaces must contain at least one entry")
	}
	for name, ws := range c.Workspaces {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("workspaces must not include empty names")
		}
		if strings.TrimSpace(ws.Query) == "" {
			return fmt.Errorf("workspaces.%s.query must not be empty", name)
		}
	}
	if strings.TrimSpace(c.Cache.DBPath) == "" {
		return fmt.Errorf("cache.db_path must not be empty")
	}
	if c.Cache.TTLSecs <= 0 {
		return fmt.Errorf("cache.ttl_secs must be > 0")
	}
	if c.Sync.Budget <= 0 {
		return fmt.Errorf("sync.budget must be > 0")
	}
	if c.Sync.IntervalSecs <= 0 {
		return fmt.Errorf("sync.interval_secs must be > 0")
	}
	if c.Metrics.IntervalSecs <= 0 {
		return fmt.Errorf("metrics.interval_secs must be > 0")
	}
	return nil
}

func resolveConfigPath(getenv func(string) string) (string, error) {
	if xdg := getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "jirafs", "config.yaml"), nil
	}
	home := getenv("HOME")
	if home == "" {
		return "", fmt.Errorf("cannot resolve config path: HOME is not set and XDG_CONFIG_HOME is unset")
	}
	return filepath.Join(home, ".config", "jirafs", "config.yaml"), nil
}
