package retry

import (
	"fmt"
	"time"
)

// BackoffStrategy selects how the delay grows between attempts.
type BackoffStrategy string

const (
	BackoffConstant    BackoffStrategy = "constant"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// Config drives the retry behavior around event delivery.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// MaxAttempts includes the first try. 0 means retry forever.
	MaxAttempts int `yaml:"max_attempts"`

	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`

	BackoffStrategy   BackoffStrategy `yaml:"backoff"`
	BackoffMultiplier float64         `yaml:"backoff_multiplier"`

	// Jitter (0.0-1.0) randomizes the delay to avoid thundering herds.
	Jitter float64 `yaml:"jitter"`

	// RetryableErrors lists substrings of errors worth retrying. Empty
	// means every error is retried.
	RetryableErrors []string `yaml:"retryable_errors"`

	// OnRetry is called before each sleep. Not settable from YAML.
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-"`

	DLQ DLQConfig `yaml:"dlq"`
}

// DLQConfig configures the file-backed dead letter queue for events that
// exhausted their retries.
type DLQConfig struct {
	Enabled  bool   `yaml:"enabled"`
	FilePath string `yaml:"file_path"`

	// MaxSize caps the queue; oldest entries are dropped past it.
	MaxSize int `yaml:"max_size"`

	RetentionPeriod time.Duration `yaml:"retention_period"`
}

// Validate checks the config. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must be >= 0, got %d", c.MaxAttempts)
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("initial_delay must be >= 0")
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max_delay (%v) must be >= initial_delay (%v)", c.MaxDelay, c.InitialDelay)
	}
	switch c.BackoffStrategy {
	case BackoffConstant, BackoffLinear, BackoffExponential:
	default:
		return fmt.Errorf("invalid backoff strategy: %s", c.BackoffStrategy)
	}
	if c.BackoffMultiplier < 0 {
		return fmt.Errorf("backoff_multiplier must be >= 0, got %f", c.BackoffMultiplier)
	}
	if c.Jitter < 0 || c.Jitter > 1.0 {
		return fmt.Errorf("jitter must be between 0.0 and 1.0, got %f", c.Jitter)
	}
	return nil
}

// SetDefaults fills zero fields in place so `enabled: true` alone is a
// working config.
func (c *Config) SetDefaults() {
	// MaxAttempts stays untouched: 0 keeps meaning retry forever.
	def := DefaultConfig()
	if c.InitialDelay == 0 {
		c.InitialDelay = def.InitialDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.BackoffStrategy == "" {
		c.BackoffStrategy = def.BackoffStrategy
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
	if c.DLQ.FilePath == "" {
		c.DLQ.FilePath = def.DLQ.FilePath
	}
	if c.DLQ.MaxSize == 0 {
		c.DLQ.MaxSize = def.DLQ.MaxSize
	}
	if c.DLQ.RetentionPeriod == 0 {
		c.DLQ.RetentionPeriod = def.DLQ.RetentionPeriod
	}
}

// DefaultConfig returns a disabled config with sensible values filled in.
func DefaultConfig() Config {
	return Config{
		Enabled:           false,
		MaxAttempts:       3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffStrategy:   BackoffExponential,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		DLQ: DLQConfig{
			Enabled:         false,
			FilePath:        "./dlq.json",
			MaxSize:         10000,
			RetentionPeriod: 7 * 24 * time.Hour,
		},
	}
}

// Enable returns a default config with retry switched on.
func Enable(maxAttempts int, initialDelay time.Duration) Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.MaxAttempts = maxAttempts
	cfg.InitialDelay = initialDelay
	return cfg
}
