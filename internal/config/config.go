// Package config provides configuration loading and defaults for the
// spindown daemon.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Actuator presets understood by ActuatorConfig.Preset.
const (
	PresetSmartctl = "smartctl"
	PresetHdparm   = "hdparm"
	PresetCustom   = "custom"
)

// DaemonConfig holds the idle-detection settings. They are read once at
// startup and never changed while the daemon runs.
type DaemonConfig struct {
	// TimeoutMinutes is the idle duration before a device is spun down.
	TimeoutMinutes int `yaml:"timeout_minutes"`
	// IntervalSeconds is the polling period.
	IntervalSeconds int `yaml:"interval_seconds"`
	// StateFile is the path of the persisted last-activity record.
	StateFile string `yaml:"state_file"`
	// ActuatorTimeoutSeconds bounds a single spindown command.
	ActuatorTimeoutSeconds int  `yaml:"actuator_timeout_seconds"`
	Verbose                bool `yaml:"verbose"`
}

// PathsConfig holds filesystem paths used by the counter source and the
// Unraid slot lookup.
type PathsConfig struct {
	Proc   string `yaml:"proc"`
	Sys    string `yaml:"sys"`
	Emhttp string `yaml:"emhttp"`
}

// DeviceFilter holds glob patterns selecting the devices that are managed.
type DeviceFilter struct {
	Allowlist []string `yaml:"allowlist"`
	Denylist  []string `yaml:"denylist"`
}

// ActuatorConfig selects the command used to park a disk.
type ActuatorConfig struct {
	Preset  string   `yaml:"preset"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// CheckPower asks the drive for its power mode first and skips the
	// command when it is already in standby.
	CheckPower bool `yaml:"check_power"`
	// CheckArgs is the power-mode query for the custom preset.
	CheckArgs []string `yaml:"check_args"`
	UseSudo   bool     `yaml:"use_sudo"`
	DryRun    bool     `yaml:"dry_run"`
}

// ServerConfig holds network and authentication settings for the optional
// MCP control surface.
type ServerConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// AuditConfig controls audit logging behaviour.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	LogPath string `yaml:"log_path"`
}

// HistoryConfig controls the spin event journal.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// UnraidConfig holds connection details for the Unraid GraphQL API, used to
// raise notifications when a spindown command fails.
type UnraidConfig struct {
	Notify bool   `yaml:"notify"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	// Timeout is the HTTP request timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// Config is the top-level configuration structure for spindownd.
type Config struct {
	Daemon   DaemonConfig   `yaml:"daemon"`
	Paths    PathsConfig    `yaml:"paths"`
	Devices  DeviceFilter   `yaml:"devices"`
	Actuator ActuatorConfig `yaml:"actuator"`
	Server   ServerConfig   `yaml:"server"`
	Audit    AuditConfig    `yaml:"audit"`
	History  HistoryConfig  `yaml:"history"`
	Unraid   UnraidConfig   `yaml:"unraid"`
}

// LoadConfig reads and parses a YAML configuration file from the given path.
// Keys missing from the file keep their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a new Config populated with default values.
// Each call returns a distinct instance.
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			TimeoutMinutes:         25,
			IntervalSeconds:        10,
			StateFile:              "/config/spindown-state.json",
			ActuatorTimeoutSeconds: 30,
		},
		Paths: PathsConfig{
			Proc:   "/proc",
			Sys:    "/sys",
			Emhttp: "/var/local/emhttp",
		},
		Devices: DeviceFilter{
			Allowlist: []string{"sd*"},
		},
		Actuator: ActuatorConfig{
			Preset:     PresetSmartctl,
			CheckPower: true,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Audit: AuditConfig{
			Enabled: true,
			LogPath: "/config/audit.log",
		},
		History: HistoryConfig{
			Path: "/config/spindown-history.db",
		},
		Unraid: UnraidConfig{
			URL:     "http://localhost/graphql",
			Timeout: 10,
		},
	}
}

// Validate reports the first setting that would make the daemon misbehave.
func (c *Config) Validate() error {
	if c.Daemon.TimeoutMinutes <= 0 {
		return fmt.Errorf("daemon.timeout_minutes must be positive, got %d", c.Daemon.TimeoutMinutes)
	}
	if c.Daemon.IntervalSeconds <= 0 {
		return fmt.Errorf("daemon.interval_seconds must be positive, got %d", c.Daemon.IntervalSeconds)
	}
	if c.Daemon.StateFile == "" {
		return fmt.Errorf("daemon.state_file is required")
	}
	if c.Daemon.ActuatorTimeoutSeconds <= 0 {
		return fmt.Errorf("daemon.actuator_timeout_seconds must be positive, got %d", c.Daemon.ActuatorTimeoutSeconds)
	}
	switch c.Actuator.Preset {
	case PresetSmartctl, PresetHdparm:
	case PresetCustom:
		if c.Actuator.Command == "" {
			return fmt.Errorf("actuator.command is required for the custom preset")
		}
	default:
		return fmt.Errorf("unknown actuator.preset %q (valid: smartctl, hdparm, custom)", c.Actuator.Preset)
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// Timeout returns the idle timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Daemon.TimeoutMinutes) * time.Minute
}

// Interval returns the polling period as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Daemon.IntervalSeconds) * time.Second
}

// ActuatorTimeout returns the ceiling for a single spindown command.
func (c *Config) ActuatorTimeout() time.Duration {
	return time.Duration(c.Daemon.ActuatorTimeoutSeconds) * time.Second
}

// ApplyEnvOverrides updates cfg in place with values from environment variables.
// Recognized variables:
//   - SPINDOWN_AUTH_TOKEN overrides cfg.Server.AuthToken
//   - SPINDOWN_STATE_FILE overrides cfg.Daemon.StateFile
//   - UNRAID_GRAPHQL_URL overrides cfg.Unraid.URL
//   - UNRAID_GRAPHQL_API_KEY overrides cfg.Unraid.APIKey
func ApplyEnvOverrides(cfg *Config) {
	if token := os.Getenv("SPINDOWN_AUTH_TOKEN"); token != "" {
		cfg.Server.AuthToken = token
	}
	if path := os.Getenv("SPINDOWN_STATE_FILE"); path != "" {
		cfg.Daemon.StateFile = path
	}
	if url := os.Getenv("UNRAID_GRAPHQL_URL"); url != "" {
		cfg.Unraid.URL = url
	}
	if key := os.Getenv("UNRAID_GRAPHQL_API_KEY"); key != "" {
		cfg.Unraid.APIKey = key
	}
}

// EnsureAuthToken generates a random auth token and sets it on cfg if
// cfg.Server.AuthToken is empty. It returns the token (existing or generated).
func EnsureAuthToken(cfg *Config) (string, error) {
	if cfg.Server.AuthToken != "" {
		return cfg.Server.AuthToken, nil
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	cfg.Server.AuthToken = hex.EncodeToString(b)
	return cfg.Server.AuthToken, nil
}
