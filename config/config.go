// Package config loads the YAML configuration of settingsctl.
//
// The file path comes from the --config flag or, failing that, the
// KVSETTINGS_CONFIG environment variable. Without either, Default is used.
// Fields left out of the file keep their default values.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const EnvConfig = "KVSETTINGS_CONFIG"

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Codec CodecConfig `yaml:"codec"`

	Persist PersistConfig `yaml:"persist"`

	// Schema is the path of the Clay configuration describing the settings.
	Schema string `yaml:"schema"`
}

type CodecConfig struct {
	// RecordSize is the width of every dictionary slot in bytes.
	RecordSize int `yaml:"record_size"`

	// Capacity is the size of message buffers. Must be a multiple of
	// RecordSize.
	Capacity int `yaml:"capacity"`
}

type PersistConfig struct {
	// Journal is the data file backing the store. Empty keeps the store in
	// memory.
	Journal string `yaml:"journal"`

	// DirectIO opens the journal with O_DIRECT.
	DirectIO bool `yaml:"direct_io"`
}

func Default() *Config {
	return &Config{
		LogLevel: "info",
		Codec: CodecConfig{
			RecordSize: 64,
			Capacity:   64 * 20,
		},
	}
}

// Load reads the file named by KVSETTINGS_CONFIG, or returns Default when
// the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfig)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Codec.RecordSize < 9 {
		return fmt.Errorf("codec.record_size %d is below 9: %w", c.Codec.RecordSize, ErrInvalid)
	}
	if c.Codec.Capacity < 0 || c.Codec.Capacity%c.Codec.RecordSize != 0 {
		return fmt.Errorf("codec.capacity %d is not a multiple of record_size %d: %w", c.Codec.Capacity, c.Codec.RecordSize, ErrInvalid)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q: %w", c.LogLevel, ErrInvalid)
	}
	if c.Persist.DirectIO && c.Persist.Journal == "" {
		return fmt.Errorf("persist.direct_io needs persist.journal: %w", ErrInvalid)
	}
	return nil
}
