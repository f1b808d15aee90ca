// ABOUTME: Configuration loading and parsing for rcon-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the corresponding field is left empty.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultDedupeTTL      = 5 * time.Minute
	DefaultReconnectDelay = time.Second
	DefaultDialTimeout    = 5 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
)

// Reconnect strategies accepted in agents.reconnect_strategy.
const (
	StrategyFixed       = "fixed"
	StrategyExponential = "exponential"
)

// Config represents the complete rcon-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Agents    AgentsConfig    `yaml:"agents" toml:"agents"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`

	// Servers is the game server inventory.
	Servers []ServerEntry `yaml:"servers" toml:"servers"`
	// Inventory optionally points at a legacy servers.json whose servers and
	// tokens are appended to the ones above. Relative paths resolve against
	// the config file's directory.
	Inventory string `yaml:"inventory" toml:"inventory"`
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	HTTPAddr       string        `yaml:"http_addr" toml:"http_addr"`
	RequestTimeout time.Duration `yaml:"-" toml:"-"`

	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// DatabaseConfig holds the API key store location. Empty disables stored keys.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	// Tokens are static API tokens accepted as-is.
	Tokens    []string      `yaml:"tokens" toml:"tokens"`
	JWTSecret string        `yaml:"jwt_secret" toml:"jwt_secret"`
	DedupeTTL time.Duration `yaml:"-" toml:"-"`

	DedupeTTLRaw string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// AgentsConfig holds reconnect and connection timing for every server agent
type AgentsConfig struct {
	ReconnectStrategy string `yaml:"reconnect_strategy" toml:"reconnect_strategy"`
	// MaxAttempts stops reconnecting after that many consecutive failures; 0 never stops.
	MaxAttempts int  `yaml:"max_attempts" toml:"max_attempts"`
	FailFast    bool `yaml:"fail_fast" toml:"fail_fast"`

	ReconnectDelay    time.Duration `yaml:"-" toml:"-"`
	ReconnectMaxDelay time.Duration `yaml:"-" toml:"-"`
	DialTimeout       time.Duration `yaml:"-" toml:"-"`
	WriteTimeout      time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ReconnectDelayRaw    string `yaml:"reconnect_delay" toml:"reconnect_delay"`
	ReconnectMaxDelayRaw string `yaml:"reconnect_max_delay" toml:"reconnect_max_delay"`
	DialTimeoutRaw       string `yaml:"dial_timeout" toml:"dial_timeout"`
	WriteTimeoutRaw      string `yaml:"write_timeout" toml:"write_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// ServerEntry is one game server in the inventory.
type ServerEntry struct {
	Hostname     string `yaml:"hostname" toml:"hostname"`
	Name         string `yaml:"name" toml:"name"`
	IP           string `yaml:"ip" toml:"ip"`
	Port         Port   `yaml:"port" toml:"port"`
	Password     string `yaml:"password" toml:"password"`
	ReceiverPort Port   `yaml:"receiver_port" toml:"receiver_port"`
}

// Address returns the "ip:port" form of the entry.
func (e ServerEntry) Address() string {
	return net.JoinHostPort(e.IP, strconv.Itoa(int(e.Port)))
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Inventory != "" {
		invPath := cfg.Inventory
		if !filepath.IsAbs(invPath) {
			invPath = filepath.Join(filepath.Dir(path), invPath)
		}
		inv, err := LoadInventory(invPath)
		if err != nil {
			return nil, err
		}
		cfg.Servers = append(cfg.Servers, inv.Servers...)
		cfg.Auth.Tokens = append(cfg.Auth.Tokens, inv.Tokens...)
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
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = DefaultRequestTimeout
	}
	if c.Auth.DedupeTTL == 0 {
		c.Auth.DedupeTTL = DefaultDedupeTTL
	}
	if c.Agents.ReconnectStrategy == "" {
		c.Agents.ReconnectStrategy = StrategyFixed
	}
	if c.Agents.ReconnectDelay == 0 {
		c.Agents.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Agents.DialTimeout == 0 {
		c.Agents.DialTimeout = DefaultDialTimeout
	}
	if c.Agents.WriteTimeout == 0 {
		c.Agents.WriteTimeout = DefaultWriteTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// The HTTP address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Agents.ReconnectStrategy {
	case "", StrategyFixed, StrategyExponential:
	default:
		return fmt.Errorf("agents.reconnect_strategy must be %q or %q, got %q",
			StrategyFixed, StrategyExponential, c.Agents.ReconnectStrategy)
	}
	if c.Agents.MaxAttempts < 0 {
		return fmt.Errorf("agents.max_attempts must not be negative")
	}

	seen := make(map[string]int, len(c.Servers))
	for i, s := range c.Servers {
		if s.IP == "" {
			return fmt.Errorf("servers[%d].ip is required", i)
		}
		if s.Port < 1 || s.Port > 65535 {
			return fmt.Errorf("servers[%d].port %d is out of range", i, s.Port)
		}
		if prev, dup := seen[s.Address()]; dup {
			return fmt.Errorf("servers[%d] duplicates servers[%d] (%s)", i, prev, s.Address())
		}
		seen[s.Address()] = i
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
		{"request_timeout", cfg.Server.RequestTimeoutRaw, &cfg.Server.RequestTimeout},
		{"dedupe_ttl", cfg.Auth.DedupeTTLRaw, &cfg.Auth.DedupeTTL},
		{"reconnect_delay", cfg.Agents.ReconnectDelayRaw, &cfg.Agents.ReconnectDelay},
		{"reconnect_max_delay", cfg.Agents.ReconnectMaxDelayRaw, &cfg.Agents.ReconnectMaxDelay},
		{"dial_timeout", cfg.Agents.DialTimeoutRaw, &cfg.Agents.DialTimeout},
		{"write_timeout", cfg.Agents.WriteTimeoutRaw, &cfg.Agents.WriteTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %q", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}
