// Package config loads and validates the YAML run configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/queuebridge/sqlblocks/pkg/emit"
	"github.com/queuebridge/sqlblocks/pkg/mssql"
	"github.com/queuebridge/sqlblocks/pkg/retry"
	"github.com/queuebridge/sqlblocks/pkg/runlog"
)

// RunConfig is the top-level configuration for a block run.
type RunConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`

	Connection mssql.Config  `yaml:"connection"`
	Emit       emit.Config   `yaml:"emit"`
	Retry      retry.Config  `yaml:"retry"`
	RunLog     runlog.Config `yaml:"run_log"`
	Logging    LoggingConfig `yaml:"logging"`
}

// LoggingConfig controls the zerolog output.
type LoggingConfig struct {
	// Level: trace, debug, info, warn, error. Default info.
	Level string `yaml:"level"`

	// Format: console or json. Default console.
	Format string `yaml:"format"`
}

// Load reads, defaults and validates a run config.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// ${VAR} references resolve from the environment, so secrets stay out
	// of the config file.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks all sections.
func (c *RunConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if err := c.Connection.Validate(); err != nil {
		return fmt.Errorf("connection: %w", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	switch c.Emit.Type {
	case "", "stdout", "rabbitmq", "kafka", "xlsx":
	default:
		return fmt.Errorf("emit: unsupported type %q", c.Emit.Type)
	}
	if c.RunLog.Enabled && c.RunLog.Address == "" {
		return fmt.Errorf("run_log: address is required when enabled")
	}
	switch c.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging: unknown format %q", c.Logging.Format)
	}
	return nil
}

// SetDefaults fills optional sections in place.
func (c *RunConfig) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	c.Connection.SetDefaults()
	c.Retry.SetDefaults()
	if c.Emit.Type == "" {
		c.Emit.Type = "stdout"
	}
	if c.RunLog.Name == "" {
		c.RunLog.Name = c.Name
	}
	if c.RunLog.TTL == 0 {
		c.RunLog.TTL = 3600
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// CreateDefault writes a commented starter config to path.
func CreateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("file already exists: %s", path)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0644)
}

const defaultConfigYAML = `# sqlblocks run configuration
name: example-run
description: Query a table and print the rows as NDJSON

connection:
  server: localhost
  port: 1433
  user: sa
  password: ""
  database: master
  schema: dbo
  # encrypt: disable
  # request_timeout: 60s
  max_open_conns: 4
  max_idle_conns: 2
  conn_max_lifetime: 30m

emit:
  type: stdout
  # type: rabbitmq
  # host: localhost
  # queue: sqlblocks-events
  # durable: true
  # type: kafka
  # brokers: ["localhost:9092"]
  # topic: sqlblocks-events
  # type: xlsx
  # path: ./out.xlsx

retry:
  enabled: false
  max_attempts: 3
  initial_delay: 1s
  max_delay: 30s
  backoff: exponential
  jitter: 0.1
  dlq:
    enabled: false
    file_path: ./dlq.json

run_log:
  enabled: false
  address: 127.0.0.1:6379
  ttl: 3600

logging:
  level: info
  format: console
`
