package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/RoboSDK/flow/errors"
)

// Config represents the complete runtime configuration.
type Config struct {
	Version string        `yaml:"version" json:"version"`
	Runtime RuntimeConfig `yaml:"runtime" json:"runtime"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// RuntimeConfig sizes the scheduler and the edge channels.
type RuntimeConfig struct {
	// Workers is the advertised scheduler worker count. Defaults to the
	// hardware parallelism.
	Workers int `yaml:"workers" json:"workers"`
	// ChannelCapacity is the default ring capacity; must be a power of two.
	ChannelCapacity int `yaml:"channel_capacity" json:"channel_capacity"`
	// BatchSize is the default publish reservation batch.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" json:"listen"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Runtime: RuntimeConfig{
			Workers:         runtime.NumCPU(),
			ChannelCapacity: 64,
			BatchSize:       8,
		},
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{Enabled: false, Listen: ":9100"},
	}
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Parse", "yaml decoding")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "Config", "Load", "file read")
	}
	return Parse(data)
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}

	// Use JSON marshaling/unmarshaling for deep copy
	data, err := json.Marshal(c)
	if err != nil {
		clone := *c
		return &clone
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		fallback := *c
		return &fallback
	}
	return &clone
}

// SafeConfig provides thread-safe access to configuration.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(
			fmt.Errorf("config cannot be nil: %w", errors.ErrMissingConfig),
			"SafeConfig", "Update", "nil check")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
