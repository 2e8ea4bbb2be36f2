// Package config handles configuration loading from YAML files and environment variables.
// Configuration precedence: CLI flags > environment variables > config file > embedded > defaults.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Guliveer/vitalis/console/internal/models"
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "15s", "30s", "1m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds all console configuration.
type Config struct {
	Channels ChannelsConfig `yaml:"channels"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Agents   AgentsConfig   `yaml:"agents"`
	Commands CommandsConfig `yaml:"commands"`
	Fallback FallbackConfig `yaml:"fallback"`
	Host     HostConfig     `yaml:"host"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ChannelsConfig holds live channel endpoints and the reconnect policy shared by all channels.
type ChannelsConfig struct {
	Endpoints         map[string]string `yaml:"endpoints"`
	MaxRetries        int               `yaml:"max_retries"`
	ReconnectDelay    Duration          `yaml:"reconnect_delay"`
	MaxReconnectDelay Duration          `yaml:"max_reconnect_delay"`
	DialTimeout       Duration          `yaml:"dial_timeout"`
	AutoConnect       bool              `yaml:"auto_connect"`
	Control           string            `yaml:"control"`
}

// MetricsConfig holds history buffer and threshold settings.
type MetricsConfig struct {
	BufferCapacity int                         `yaml:"buffer_capacity"`
	Thresholds     map[string]models.Threshold `yaml:"thresholds"`
}

// AlertsConfig holds alert retention settings.
type AlertsConfig struct {
	Retention    Duration `yaml:"retention"`
	DisplayLimit int      `yaml:"display_limit"`
}

// AgentsConfig holds agent status history settings.
type AgentsConfig struct {
	HistorySize int `yaml:"history_size"`
}

// CommandsConfig holds command rate limiting. A zero rate disables limiting.
type CommandsConfig struct {
	RatePerMinute float64 `yaml:"rate_per_minute"`
	Burst         int     `yaml:"burst"`
}

// FallbackConfig holds the pull endpoint used to seed and refresh state.
// An empty URL disables pulling.
type FallbackConfig struct {
	URL             string   `yaml:"url"`
	RefreshInterval Duration `yaml:"refresh_interval"`
	Timeout         Duration `yaml:"timeout"`
	Token           string   `yaml:"token"`
}

// HostConfig holds local host sampling settings. When enabled, samples
// share the cpu, memory and disk series with the live channel.
type HostConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
	DiskPath string   `yaml:"disk_path"`
}

// APIConfig holds the dashboard HTTP surface settings.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ChannelNames lists the live channels every console connects to.
var ChannelNames = []string{
	models.ChannelAgentStatus,
	models.ChannelSystemMetrics,
	models.ChannelQueueStatus,
	models.ChannelControl,
}

// EndpointsFor derives the standard channel endpoints from a WebSocket base URL.
func EndpointsFor(base string) map[string]string {
	base = strings.TrimRight(base, "/")
	out := make(map[string]string, len(ChannelNames))
	for _, name := range ChannelNames {
		out[name] = base + "/ws/" + name
	}
	return out
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Channels: ChannelsConfig{
			Endpoints:         EndpointsFor("ws://localhost:8000"),
			MaxRetries:        5,
			ReconnectDelay:    Duration{3 * time.Second},
			MaxReconnectDelay: Duration{30 * time.Second},
			DialTimeout:       Duration{10 * time.Second},
			AutoConnect:       false,
			Control:           models.ChannelControl,
		},
		Metrics: MetricsConfig{
			BufferCapacity: 50,
			Thresholds:     models.DefaultThresholds(),
		},
		Alerts: AlertsConfig{
			Retention:    Duration{5 * time.Minute},
			DisplayLimit: 10,
		},
		Agents: AgentsConfig{
			HistorySize: 20,
		},
		Commands: CommandsConfig{
			RatePerMinute: 30,
			Burst:         5,
		},
		Fallback: FallbackConfig{
			URL:             "http://localhost:8000",
			RefreshInterval: Duration{30 * time.Second},
			Timeout:         Duration{10 * time.Second},
		},
		Host: HostConfig{
			Enabled:  false,
			Interval: Duration{15 * time.Second},
			DiskPath: "/",
		},
		API: APIConfig{
			Listen: "127.0.0.1:8090",
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "./console.log",
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// CLIOverrides holds values from command-line flags.
// Empty strings are treated as "not set" and skipped.
type CLIOverrides struct {
	ChannelBase string
	FallbackURL string
	Listen      string
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadLayered loads configuration with the full precedence chain:
// CLI flags > env vars > external YAML file > embedded bytes > defaults.
//
// An optional configPath argument controls external-file discovery:
//   - omitted        → auto-discover via Locate()
//   - explicit value  → use that path ("" means no external file)
func LoadLayered(cli CLIOverrides, embedded []byte, configPath ...string) (*Config, error) {
	cfg := DefaultConfig()

	if len(embedded) > 0 {
		if err := yaml.Unmarshal(embedded, cfg); err != nil {
			return nil, fmt.Errorf("parsing embedded config: %w", err)
		}
	}

	var filePath string
	if len(configPath) > 0 {
		filePath = configPath[0]
	} else {
		filePath = Locate()
	}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(cfg)

	if cli.ChannelBase != "" {
		cfg.Channels.Endpoints = EndpointsFor(cli.ChannelBase)
	}
	if cli.FallbackURL != "" {
		cfg.Fallback.URL = cli.FallbackURL
	}
	if cli.Listen != "" {
		cfg.API.Listen = cli.Listen
	}

	return cfg, nil
}

// WriteConfig writes cfg as YAML to path, creating parent directories.
// The fallback token is left out so the file can be shared; supply it
// through VC_FALLBACK_TOKEN instead.
func WriteConfig(cfg *Config, path string) error {
	out := *cfg
	out.Fallback.Token = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append([]byte("# vitalis-console effective configuration\n"), data...)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if base := os.Getenv("VC_CHANNEL_BASE"); base != "" {
		cfg.Channels.Endpoints = EndpointsFor(base)
	}
	if u := os.Getenv("VC_FALLBACK_URL"); u != "" {
		cfg.Fallback.URL = u
	}
	if token := os.Getenv("VC_FALLBACK_TOKEN"); token != "" {
		cfg.Fallback.Token = token
	}
	if listen := os.Getenv("VC_API_LISTEN"); listen != "" {
		cfg.API.Listen = listen
	}
	if level := os.Getenv("VC_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// Validate checks that the configuration can drive a session.
func (c *Config) Validate() error {
	if len(c.Channels.Endpoints) == 0 {
		return fmt.Errorf("at least one channel endpoint is required")
	}
	names := make([]string, 0, len(c.Channels.Endpoints))
	for name := range c.Channels.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		u, err := url.Parse(c.Channels.Endpoints[name])
		if err != nil {
			return fmt.Errorf("channel %s: invalid endpoint: %w", name, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("channel %s: endpoint must use ws or wss (got: %s)", name, c.Channels.Endpoints[name])
		}
	}
	if _, ok := c.Channels.Endpoints[c.Channels.Control]; !ok {
		return fmt.Errorf("control channel %q has no endpoint", c.Channels.Control)
	}
	if c.Channels.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.Channels.ReconnectDelay.Duration <= 0 {
		return fmt.Errorf("reconnect_delay must be positive")
	}
	if c.Metrics.BufferCapacity <= 0 {
		return fmt.Errorf("buffer_capacity must be positive")
	}
	for name, th := range c.Metrics.Thresholds {
		if th.Warning >= th.Critical {
			return fmt.Errorf("threshold %s: warning (%v) must be below critical (%v)", name, th.Warning, th.Critical)
		}
	}
	if c.Alerts.Retention.Duration <= 0 {
		return fmt.Errorf("alert retention must be positive")
	}
	if c.Fallback.URL != "" {
		u, err := url.Parse(c.Fallback.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("fallback url must be http or https (got: %s)", c.Fallback.URL)
		}
	}
	return nil
}
