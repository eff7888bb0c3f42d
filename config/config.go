// Package config loads the YAML configuration for the pump command.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the file leaves the values unset.
const (
	DefaultBatchSize     = 10000
	DefaultFlushInterval = Duration(5 * time.Second)
)

// Duration decodes YAML duration strings such as "5s" or "1m30s".
type Duration time.Duration

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

// ClickHouse holds the connection settings for the pump target.
type ClickHouse struct {
	Addr     []string `yaml:"addr"`
	Database string   `yaml:"database"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Table    string   `yaml:"table"`
}

// Batch controls how event rows are grouped into inserts.
type Batch struct {
	Size     int      `yaml:"size"`
	Interval Duration `yaml:"interval"`
}

// Config is the root of the pump configuration file.
type Config struct {
	ClickHouse ClickHouse `yaml:"clickhouse"`
	Batch      Batch      `yaml:"batch"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.ClickHouse.Addr) == 0 {
		c.ClickHouse.Addr = []string{"localhost:9000"}
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "default"
	}
	if c.ClickHouse.Table == "" {
		c.ClickHouse.Table = "fbtrace_events"
	}
	if c.Batch.Size <= 0 {
		c.Batch.Size = DefaultBatchSize
	}
	if c.Batch.Interval <= 0 {
		c.Batch.Interval = DefaultFlushInterval
	}
}

func (c *Config) validate() error {
	for _, addr := range c.ClickHouse.Addr {
		if addr == "" {
			return errors.New("clickhouse.addr contains an empty address")
		}
	}
	return nil
}
