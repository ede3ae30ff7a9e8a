// Package config holds all service configuration: a YAML file merged over
// defaults, then environment overrides on top. Secrets are expected to
// arrive through the environment, not the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all DecisionDoc configuration.
type Config struct {
	// Env is the deployment environment: dev or prod.
	Env string `yaml:"env"`

	Server     ServerConfig     `yaml:"server"`
	Provider   ProviderConfig   `yaml:"provider"`
	Cache      CacheConfig      `yaml:"cache"`
	Storage    StorageConfig    `yaml:"storage"`
	Render     RenderConfig     `yaml:"render"`
	Ops        OpsConfig        `yaml:"ops"`
	Statuspage StatuspageConfig `yaml:"statuspage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`

	// APIKey guards the generation routes, OpsKey the ops routes. Both
	// come from the environment in production.
	APIKey string `yaml:"api_key"`
	OpsKey string `yaml:"ops_key"`

	// MaintenanceMarker is the marker file path; while it exists every
	// request is refused with a maintenance response.
	MaintenanceMarker string `yaml:"maintenance_marker"`

	RequestTimeout string `yaml:"request_timeout"`
}

// ProviderConfig selects and configures the upstream generator.
type ProviderConfig struct {
	Name    string `yaml:"name"` // mock, gemini, openai
	Timeout string `yaml:"timeout"`

	GeminiAPIKey string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`

	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIModel   string `yaml:"openai_model"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// StorageConfig configures the artifact store.
type StorageConfig struct {
	Root string `yaml:"root"`
}

// RenderConfig selects the template set.
type RenderConfig struct {
	TemplateVersion string `yaml:"template_version"`
}

// OpsConfig configures investigations and the request event log.
type OpsConfig struct {
	// DataDir holds the event log and the dedup KV databases.
	DataDir string `yaml:"data_dir"`

	// DedupTTL suppresses repeat investigations of one incident key.
	DedupTTL string `yaml:"dedup_ttl"`
	// NotifyCooldown throttles outbound notifications per incident.
	NotifyCooldown string `yaml:"notify_cooldown"`
	// BucketSeconds aligns incident keys in time.
	BucketSeconds int64 `yaml:"bucket_seconds"`
	// Strict promotes notification failures to request failures.
	Strict bool `yaml:"strict"`
}

// StatuspageConfig configures the status page integration. Empty api_key
// or page_id leaves it off.
type StatuspageConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	PageID  string `yaml:"page_id"`
	Timeout string `yaml:"timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Env: "dev",

		Server: ServerConfig{
			Addr:              ":8080",
			MaintenanceMarker: "data/maintenance.on",
			RequestTimeout:    "60s",
		},

		Provider: ProviderConfig{
			Name:        "mock",
			Timeout:     "20s",
			GeminiModel: "gemini-2.5-flash",
			OpenAIModel: "gpt-4o-mini",
		},

		Cache: CacheConfig{
			Enabled: true,
			Dir:     "data/cache",
		},

		Storage: StorageConfig{
			Root: "data/artifacts",
		},

		Render: RenderConfig{
			TemplateVersion: "v1",
		},

		Ops: OpsConfig{
			DataDir:        "data/ops",
			DedupTTL:       "300s",
			NotifyCooldown: "600s",
			BucketSeconds:  300,
		},

		Statuspage: StatuspageConfig{
			BaseURL: "https://api.statuspage.io/v1",
			Timeout: "10s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file, merged over defaults, with
// environment overrides applied last. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if env := os.Getenv("DECISIONDOC_ENV"); env != "" {
		c.Env = env
	}
	if addr := os.Getenv("DECISIONDOC_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if key := os.Getenv("DECISIONDOC_API_KEY"); key != "" {
		c.Server.APIKey = key
	}
	if key := os.Getenv("DECISIONDOC_OPS_KEY"); key != "" {
		c.Server.OpsKey = key
	}
	if marker := os.Getenv("DECISIONDOC_MAINTENANCE_MARKER"); marker != "" {
		c.Server.MaintenanceMarker = marker
	}

	if name := os.Getenv("DECISIONDOC_PROVIDER"); name != "" {
		c.Provider.Name = name
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Provider.GeminiAPIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Provider.OpenAIAPIKey = key
	}

	if dir := os.Getenv("DECISIONDOC_CACHE_DIR"); dir != "" {
		c.Cache.Dir = dir
	}
	if enabled := os.Getenv("DECISIONDOC_CACHE_ENABLED"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			c.Cache.Enabled = v
		}
	}
	if root := os.Getenv("DECISIONDOC_STORAGE_ROOT"); root != "" {
		c.Storage.Root = root
	}
	if dir := os.Getenv("DECISIONDOC_OPS_DATA_DIR"); dir != "" {
		c.Ops.DataDir = dir
	}

	if key := os.Getenv("STATUSPAGE_API_KEY"); key != "" {
		c.Statuspage.APIKey = key
	}
	if page := os.Getenv("STATUSPAGE_PAGE_ID"); page != "" {
		c.Statuspage.PageID = page
	}

	if level := os.Getenv("DECISIONDOC_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks the configuration for startup-blocking problems.
func (c *Config) Validate() error {
	if c.Env != "dev" && c.Env != "prod" {
		return fmt.Errorf("env must be dev or prod, got %q", c.Env)
	}
	if c.Env == "prod" {
		if c.Server.APIKey == "" {
			return fmt.Errorf("prod requires an api key (DECISIONDOC_API_KEY)")
		}
		if c.Server.OpsKey == "" {
			return fmt.Errorf("prod requires an ops key (DECISIONDOC_OPS_KEY)")
		}
	}
	switch c.Provider.Name {
	case "", "mock", "gemini", "openai":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider.Name)
	}
	for name, value := range map[string]string{
		"server.request_timeout": c.Server.RequestTimeout,
		"provider.timeout":       c.Provider.Timeout,
		"ops.dedup_ttl":          c.Ops.DedupTTL,
		"ops.notify_cooldown":    c.Ops.NotifyCooldown,
		"statuspage.timeout":     c.Statuspage.Timeout,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Ops.BucketSeconds < 0 {
		return fmt.Errorf("ops.bucket_seconds must not be negative")
	}
	return nil
}

// duration parses a duration string with a fallback.
func duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// RequestTimeout returns the server request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return duration(c.Server.RequestTimeout, 60*time.Second)
}

// ProviderTimeout returns the provider timeout as a duration.
func (c *Config) ProviderTimeout() time.Duration {
	return duration(c.Provider.Timeout, 20*time.Second)
}

// DedupTTL returns the incident dedup TTL as a duration.
func (c *Config) DedupTTL() time.Duration {
	return duration(c.Ops.DedupTTL, 5*time.Minute)
}

// NotifyCooldown returns the notification cooldown as a duration.
func (c *Config) NotifyCooldown() time.Duration {
	return duration(c.Ops.NotifyCooldown, 10*time.Minute)
}

// StatuspageTimeout returns the status page client timeout as a duration.
func (c *Config) StatuspageTimeout() time.Duration {
	return duration(c.Statuspage.Timeout, 10*time.Second)
}
