// Package config loads and validates the daemon configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "2s" parse
type Duration time.Duration

// UnmarshalYAML implements the yaml.Unmarshaler interface
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds the daemon configuration
type Config struct {
	Device DeviceConfig `yaml:"device"`
	User   UserConfig   `yaml:"user"`
	API    APIConfig    `yaml:"api"`
	Store  StoreConfig  `yaml:"store"`

	// LogLevel is one of debug / info / warn / error
	LogLevel string `yaml:"log_level"`
}

// DeviceConfig selects the peripheral to connect to
type DeviceConfig struct {
	// Name is the advertised device name to match during scans
	Name string `yaml:"name"`

	// Addr optionally pins a specific peripheral address
	Addr string `yaml:"addr"`

	// StepPollInterval is the cadence of the step counter poll
	StepPollInterval Duration `yaml:"step_poll_interval"`
}

// UserConfig describes the wearer
type UserConfig struct {
	ID       string  `yaml:"id"`
	WeightKg float64 `yaml:"weight_kg"`
}

// APIConfig configures the REST endpoint
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// StoreConfig configures session persistence. An empty endpoint selects
// the in-memory store.
type StoreConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:             "NanoHR",
			StepPollInterval: Duration(time.Second),
		},
		User: UserConfig{
			ID: "default",
		},
		API: APIConfig{
			Listen: ":8323",
		},
		LogLevel: "info",
	}
}

// Load reads a YAML configuration file on top of the defaults
func Load(path string) (*Config, error) {

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {

	if c.Device.Name == "" && c.Device.Addr == "" {
		return fmt.Errorf("either device.name or device.addr must be set")
	}
	if c.Device.StepPollInterval <= 0 {
		return fmt.Errorf("device.step_poll_interval must be positive")
	}
	if c.User.ID == "" {
		return fmt.Errorf("user.id must not be empty")
	}
	if c.User.WeightKg < 0 {
		return fmt.Errorf("user.weight_kg must not be negative")
	}
	if c.API.Listen == "" {
		return fmt.Errorf("api.listen must not be empty")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}

	return nil
}
