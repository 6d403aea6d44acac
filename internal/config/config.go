// ABOUTME: Configuration loading and parsing for hvac-gateway
// ABOUTME: YAML or TOML files with environment variable expansion, duration parsing and defaults

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete hvac-gateway configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Tailscale   TailscaleConfig   `yaml:"tailscale" toml:"tailscale"`
	Database    DatabaseConfig    `yaml:"database" toml:"database"`
	Auth        AuthConfig        `yaml:"auth" toml:"auth"`
	Agents      AgentsConfig      `yaml:"agents" toml:"agents"`
	Correlation CorrelationConfig `yaml:"correlation" toml:"correlation"`
	Relay       RelayConfig       `yaml:"relay" toml:"relay"`
	Notify      NotifyConfig      `yaml:"notify" toml:"notify"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"` // serve HTTP on :443 with Tailscale certs
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration. An empty secret disables auth.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// AgentDefinition starts one agent owning a state record.
type AgentDefinition struct {
	ID      string `yaml:"id" toml:"id"`
	StateID int64  `yaml:"state_id" toml:"state_id"`
}

// AgentsConfig configures agent inboxes and delivery.
type AgentsConfig struct {
	InboxCapacity int               `yaml:"inbox_capacity" toml:"inbox_capacity"`
	Predictor     string            `yaml:"predictor" toml:"predictor"` // fixed | sensor
	Delivery      string            `yaml:"delivery" toml:"delivery"`   // block | drop
	Mesh          *bool             `yaml:"mesh" toml:"mesh"`
	Definitions   []AgentDefinition `yaml:"definitions" toml:"definitions"`

	SendTimeout time.Duration `yaml:"-" toml:"-"`
	LockTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	SendTimeoutRaw string `yaml:"send_timeout" toml:"send_timeout"`
	LockTimeoutRaw string `yaml:"lock_timeout" toml:"lock_timeout"`
}

// MeshEnabled reports whether agents share state with each other (default true).
func (a AgentsConfig) MeshEnabled() bool {
	return a.Mesh == nil || *a.Mesh
}

// CorrelationConfig configures the periodic sweep. A zero interval disables it.
type CorrelationConfig struct {
	CandidateLimit int           `yaml:"candidate_limit" toml:"candidate_limit"`
	SweepInterval  time.Duration `yaml:"-" toml:"-"`

	SweepIntervalRaw string `yaml:"sweep_interval" toml:"sweep_interval"`
}

// RelayConfig configures the NATS bridge between gateways.
type RelayConfig struct {
	Enabled       bool          `yaml:"enabled" toml:"enabled"`
	URL           string        `yaml:"url" toml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix" toml:"subject_prefix"`
	NodeID        string        `yaml:"node_id" toml:"node_id"`
	SeenTTL       time.Duration `yaml:"-" toml:"-"`

	SeenTTLRaw string `yaml:"seen_ttl" toml:"seen_ttl"`
}

// NotifyConfig holds alert sink configuration
type NotifyConfig struct {
	Matrix MatrixConfig `yaml:"matrix" toml:"matrix"`
}

// MatrixConfig holds Matrix alert configuration
type MatrixConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Homeserver  string `yaml:"homeserver" toml:"homeserver"`
	UserID      string `yaml:"user_id" toml:"user_id"`
	AccessToken string `yaml:"access_token" toml:"access_token"`
	RoomID      string `yaml:"room_id" toml:"room_id"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Defaults.
const (
	DefaultInboxCapacity = 100
	DefaultSendTimeout   = time.Second
	DefaultLockTimeout   = 250 * time.Millisecond
	DefaultMetricsPath   = "/metrics"
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(expandEnvVars(string(data)), strings.EqualFold(filepath.Ext(path), ".toml"))
}

// Parse decodes an already expanded document.
func Parse(doc string, isTOML bool) (*Config, error) {
	var cfg Config
	if isTOML {
		if _, err := toml.Decode(doc, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(doc), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Agents.InboxCapacity == 0 {
		c.Agents.InboxCapacity = DefaultInboxCapacity
	}
	if c.Agents.SendTimeout == 0 {
		c.Agents.SendTimeout = DefaultSendTimeout
	}
	if c.Agents.LockTimeout == 0 {
		c.Agents.LockTimeout = DefaultLockTimeout
	}
	if c.Agents.Predictor == "" {
		c.Agents.Predictor = "fixed"
	}
	if c.Agents.Delivery == "" {
		c.Agents.Delivery = "block"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
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
	if !c.Tailscale.Enabled {
		if c.Server.GRPCAddr == "" {
			return errors.New("server.grpc_addr is required (or enable tailscale)")
		}
		if c.Server.HTTPAddr == "" {
			return errors.New("server.http_addr is required (or enable tailscale)")
		}
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return errors.New("tailscale.hostname is required when tailscale is enabled")
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 bytes")
	}

	if c.Agents.InboxCapacity < 0 {
		return errors.New("agents.inbox_capacity must be positive")
	}
	switch c.Agents.Predictor {
	case "fixed", "sensor":
	default:
		return fmt.Errorf("agents.predictor %q must be fixed or sensor", c.Agents.Predictor)
	}
	switch c.Agents.Delivery {
	case "block", "drop":
	default:
		return fmt.Errorf("agents.delivery %q must be block or drop", c.Agents.Delivery)
	}
	seen := make(map[string]bool, len(c.Agents.Definitions))
	for i, d := range c.Agents.Definitions {
		if d.ID == "" {
			return fmt.Errorf("agents.definitions[%d].id is required", i)
		}
		if d.StateID <= 0 {
			return fmt.Errorf("agents.definitions[%d].state_id must be positive", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("agents.definitions[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
	}

	if c.Correlation.CandidateLimit < 0 {
		return errors.New("correlation.candidate_limit must not be negative")
	}
	if c.Relay.Enabled && c.Relay.URL == "" {
		return errors.New("relay.url is required when relay is enabled")
	}
	if m := c.Notify.Matrix; m.Enabled {
		if m.Homeserver == "" || m.UserID == "" || m.AccessToken == "" || m.RoomID == "" {
			return errors.New("notify.matrix requires homeserver, user_id, access_token and room_id")
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
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
		{"agents.send_timeout", cfg.Agents.SendTimeoutRaw, &cfg.Agents.SendTimeout},
		{"agents.lock_timeout", cfg.Agents.LockTimeoutRaw, &cfg.Agents.LockTimeout},
		{"correlation.sweep_interval", cfg.Correlation.SweepIntervalRaw, &cfg.Correlation.SweepInterval},
		{"relay.seen_ttl", cfg.Relay.SeenTTLRaw, &cfg.Relay.SeenTTL},
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
			return fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}
	return nil
}

// DefaultPath resolves the config path: HVAC_CONFIG, then
// $XDG_CONFIG_HOME/hvac-mesh/gateway.yaml, then ~/.config/hvac-mesh/gateway.yaml.
func DefaultPath() string {
	if p := os.Getenv("HVAC_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hvac-mesh", "gateway.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "gateway.yaml"
	}
	return filepath.Join(home, ".config", "hvac-mesh", "gateway.yaml")
}

// Example is the document written by `hvac-gateway init`.
const Example = `server:
  grpc_addr: "127.0.0.1:50051"
  http_addr: "127.0.0.1:8080"

database:
  path: "${HOME}/.local/share/hvac-mesh/gateway.db"

auth:
  jwt_secret: "${HVAC_JWT_SECRET}"

agents:
  inbox_capacity: 100
  send_timeout: "1s"
  lock_timeout: "250ms"
  predictor: "fixed"
  delivery: "block"
  definitions:
    - id: "agent-1"
      state_id: 1

correlation:
  sweep_interval: "15m"
  candidate_limit: 0

relay:
  enabled: false
  url: "nats://127.0.0.1:4222"
  subject_prefix: "hvac.mesh"
  seen_ttl: "5m"

notify:
  matrix:
    enabled: false
    homeserver: "https://matrix.example.org"
    user_id: "@hvac:example.org"
    access_token: "${MATRIX_TOKEN}"
    room_id: "!alerts:example.org"

logging:
  level: "info"
  format: "text"

metrics:
  enabled: true
  path: "/metrics"
`
