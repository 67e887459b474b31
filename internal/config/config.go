// ABOUTME: Configuration loading and parsing for evobolt
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Pairing flow defaults, applied when the config file leaves them unset.
const (
	DefaultPollInterval = 3 * time.Second
	DefaultSettleDelay  = 2 * time.Second
	DefaultCeiling      = 5 * time.Minute
)

// DefaultMaxInstances caps how many instances the dashboard lets a user create.
const DefaultMaxInstances = 10

// Config represents the complete evobolt configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Evolution EvolutionConfig `yaml:"evolution"`
	Pairing   PairingConfig   `yaml:"pairing"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration for serving the
// dashboard over a tailnet instead of a plain TCP listener.
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// EvolutionConfig holds the remote Evolution API endpoint configuration
type EvolutionConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`

	RequestTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	RequestTimeoutRaw string `yaml:"request_timeout"`
}

// PairingConfig holds QR pairing flow timing configuration
type PairingConfig struct {
	PollInterval time.Duration `yaml:"-"`
	SettleDelay  time.Duration `yaml:"-"`
	Ceiling      time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	PollIntervalRaw string `yaml:"poll_interval"`
	SettleDelayRaw  string `yaml:"settle_delay"`
	CeilingRaw      string `yaml:"ceiling"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`
	DemoPassword string `yaml:"demo_password"`
}

// DashboardConfig holds dashboard behavior configuration
type DashboardConfig struct {
	MaxInstances int `yaml:"max_instances"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values and defaults applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in defaults for fields the config file left unset.
func (c *Config) applyDefaults() {
	if c.Pairing.PollInterval == 0 {
		c.Pairing.PollInterval = DefaultPollInterval
	}
	if c.Pairing.SettleDelay == 0 {
		c.Pairing.SettleDelay = DefaultSettleDelay
	}
	if c.Pairing.Ceiling == 0 {
		c.Pairing.Ceiling = DefaultCeiling
	}
	if c.Dashboard.MaxInstances == 0 {
		c.Dashboard.MaxInstances = DefaultMaxInstances
	}
	if c.Auth.DemoPassword == "" {
		c.Auth.DemoPassword = "123456"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// A server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Evolution.BaseURL == "" {
		return fmt.Errorf("evolution.base_url is required")
	}
	if c.Evolution.APIKey == "" {
		return fmt.Errorf("evolution.api_key is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"evolution.request_timeout", cfg.Evolution.RequestTimeoutRaw, &cfg.Evolution.RequestTimeout},
		{"pairing.poll_interval", cfg.Pairing.PollIntervalRaw, &cfg.Pairing.PollInterval},
		{"pairing.settle_delay", cfg.Pairing.SettleDelayRaw, &cfg.Pairing.SettleDelay},
		{"pairing.ceiling", cfg.Pairing.CeilingRaw, &cfg.Pairing.Ceiling},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
