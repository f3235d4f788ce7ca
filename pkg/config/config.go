// Package config loads bigipctl configuration from YAML with environment
// variable expansion layered over defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full bigipctl configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Import    ImportConfig    `yaml:"import"`
	Guard     GuardConfig     `yaml:"guard"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
	Sync      SyncConfig      `yaml:"sync"`
}

// DeviceConfig describes how to reach the BIG-IP management endpoint.
type DeviceConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// TokenAuth trades the credentials for an X-F5-Auth-Token instead of
	// sending basic auth on every request.
	TokenAuth  bool          `yaml:"token_auth"`
	SkipVerify bool          `yaml:"skip_verify"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ImportConfig tunes task polling and upload behavior.
type ImportConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	PollMaxInterval time.Duration `yaml:"poll_max_interval"`
	PollMultiplier  float64       `yaml:"poll_multiplier"`
	PollJitter      bool          `yaml:"poll_jitter"`
	// PollTimeout bounds the whole wait; zero polls until the task ends.
	PollTimeout  time.Duration `yaml:"poll_timeout"`
	UploadSettle time.Duration `yaml:"upload_settle"`
}

// GuardConfig points at an optional Rego admission policy.
type GuardConfig struct {
	PolicyFile string `yaml:"policy_file"`
	Query      string `yaml:"query"`
}

// TelemetryConfig configures the OTLP trace exporter.
type TelemetryConfig struct {
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	Environment string            `yaml:"environment"`
	Headers     map[string]string `yaml:"headers"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// SyncConfig configures directory sync mode.
type SyncConfig struct {
	// Dir is the directory of policy files to keep imported.
	Dir string `yaml:"dir"`
	// Partition receives the synced policies.
	Partition string `yaml:"partition"`
	// Force overwrites device policies that already exist.
	Force bool `yaml:"force"`
	// MetricsAddr, when set, serves Prometheus metrics during sync.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns a configuration with the device API's native poll
// behavior and sane transport defaults.
func Default() Config {
	return Config{
		Device: DeviceConfig{Timeout: 30 * time.Second},
		Import: ImportConfig{
			PollInterval:   time.Second,
			PollMultiplier: 1.0,
			UploadSettle:   2 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the file, expands ${VAR} references from the environment, and
// parses the YAML over the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	cfg := Default()
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that YAML parsing cannot.
func (c Config) Validate() error {
	if c.Import.PollInterval < 0 {
		return fmt.Errorf("import.poll_interval must not be negative")
	}
	if c.Import.PollTimeout < 0 {
		return fmt.Errorf("import.poll_timeout must not be negative")
	}
	if c.Import.PollMultiplier < 0 {
		return fmt.Errorf("import.poll_multiplier must not be negative")
	}
	if c.Guard.Query != "" && c.Guard.PolicyFile == "" {
		return fmt.Errorf("guard.query requires guard.policy_file")
	}
	return nil
}
