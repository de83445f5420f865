// Package config loads the light controller configuration.
//
// Values are resolved in order: built-in defaults, the YAML file (with
// ${VAR} references expanded from the environment), then LIGHTCTL_*
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Device kinds.
const (
	KindDiscrete   = "discrete"
	KindContinuous = "continuous"
)

// Config is the root configuration structure.
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Devices   []DeviceConfig  `yaml:"devices"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	HTTP      HTTPConfig      `yaml:"http"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BackendConfig selects the output backend.
type BackendConfig struct {
	// Mode is "auto", "hardware" or "simulation".
	Mode string `yaml:"mode"`
	Chip string `yaml:"chip"`
}

// DeviceConfig describes one light.
type DeviceConfig struct {
	ID        int     `yaml:"id"`
	Name      string  `yaml:"name"`
	Pin       int     `yaml:"pin"`
	Kind      string  `yaml:"kind"`
	Frequency float64 `yaml:"frequency"` // PWM Hz, continuous only
}

// SchedulerConfig contains timer evaluation settings.
type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// HTTPConfig contains API server settings.
type HTTPConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"` // empty allows any origin
}

// MQTTConfig contains event publishing settings.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	// Heartbeat is the interval between HEARTBEAT system events; 0 disables.
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	Output string `yaml:"output"` // stdout, stderr
}

// Load reads configuration from a YAML file. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration: four PWM lights on BCM pins 18-21.
func Default() *Config {
	cfg := defaultConfig()
	cfg.setDefaults()
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Mode: "auto",
			Chip: "gpiochip0",
		},
		Scheduler: SchedulerConfig{
			PollInterval: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr: ":5000",
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "light-controller",
			TopicPrefix: "home/lights",
			Heartbeat:   15 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func defaultDevices() []DeviceConfig {
	return []DeviceConfig{
		{ID: 1, Name: "Living Room", Pin: 18, Kind: KindContinuous},
		{ID: 2, Name: "Kitchen", Pin: 19, Kind: KindContinuous},
		{ID: 3, Name: "Bedroom", Pin: 20, Kind: KindContinuous},
		{ID: 4, Name: "Bathroom", Pin: 21, Kind: KindContinuous},
	}
}

func (c *Config) setDefaults() {
	if len(c.Devices) == 0 {
		c.Devices = defaultDevices()
	}
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Kind == "" {
			d.Kind = KindDiscrete
		}
		d.Kind = strings.ToLower(d.Kind)
		if d.Kind == KindContinuous && d.Frequency == 0 {
			d.Frequency = 1000
		}
		if d.Name == "" {
			d.Name = fmt.Sprintf("Light %d", d.ID)
		}
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "home/lights"
	}
}

// applyEnvOverrides applies LIGHTCTL_SECTION_KEY environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LIGHTCTL_BACKEND_MODE"); v != "" {
		cfg.Backend.Mode = v
	}
	if v := os.Getenv("LIGHTCTL_BACKEND_CHIP"); v != "" {
		cfg.Backend.Chip = v
	}
	if v := os.Getenv("LIGHTCTL_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("LIGHTCTL_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
		cfg.MQTT.Enabled = true
	}
	if v := os.Getenv("LIGHTCTL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	switch c.Backend.Mode {
	case "auto", "hardware", "simulation":
	default:
		errs = append(errs, fmt.Sprintf("backend.mode %q must be auto, hardware or simulation", c.Backend.Mode))
	}

	if len(c.Devices) == 0 {
		errs = append(errs, "at least one device is required")
	}
	ids := make(map[int]bool)
	pins := make(map[int]bool)
	for i, d := range c.Devices {
		if ids[d.ID] {
			errs = append(errs, fmt.Sprintf("devices[%d]: duplicate id %d", i, d.ID))
		}
		ids[d.ID] = true
		if pins[d.Pin] {
			errs = append(errs, fmt.Sprintf("devices[%d]: pin %d already in use", i, d.Pin))
		}
		pins[d.Pin] = true
		if d.Pin < 0 {
			errs = append(errs, fmt.Sprintf("devices[%d]: pin must not be negative", i))
		}
		switch d.Kind {
		case KindDiscrete:
		case KindContinuous:
			if d.Frequency <= 0 {
				errs = append(errs, fmt.Sprintf("devices[%d]: frequency must be positive", i))
			}
		default:
			errs = append(errs, fmt.Sprintf("devices[%d]: kind %q must be discrete or continuous", i, d.Kind))
		}
	}

	if c.Scheduler.PollInterval <= 0 {
		errs = append(errs, "scheduler.poll_interval must be positive")
	}
	if c.MQTT.Heartbeat < 0 {
		errs = append(errs, "mqtt.heartbeat must not be negative")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required when mqtt is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
