package avoidance

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultBatchSize         = 8                      // Samples averaged per batch, lower is more precise and noisier
	DefaultQualityThreshold  = 10.0                   // Samples must have a strictly higher quality to count
	DefaultBlockingDistance  = 1000.0                 // Millimeters, a closer batch blocks the path
	DefaultInterval          = 100 * time.Microsecond // Pause between cycles
	DefaultCommandAttempts   = 1
	DefaultCommandRetryDelay = 50 * time.Millisecond
)

// Config holds the tunables of the obstacle monitor
type Config struct {
	BatchSize        int     `json:"batchSize"`
	QualityThreshold float64 `json:"qualityThreshold"`
	BlockingDistance float64 `json:"blockingDistance"` // mm

	Interval time.Duration `json:"interval"`

	// CommandAttempts is how many times a controller command is tried before
	// the failure is logged and the latch flips anyway.
	CommandAttempts   int           `json:"commandAttempts"`
	CommandRetryDelay time.Duration `json:"commandRetryDelay"`

	// MaxAcquireFailures is the number of consecutive failed sweeps after
	// which the monitor gives up. Zero retries forever.
	MaxAcquireFailures int `json:"maxAcquireFailures"`
}

// DefaultConfig returns the default monitor configuration
func DefaultConfig() Config {
	return Config{
		BatchSize:         DefaultBatchSize,
		QualityThreshold:  DefaultQualityThreshold,
		BlockingDistance:  DefaultBlockingDistance,
		Interval:          DefaultInterval,
		CommandAttempts:   DefaultCommandAttempts,
		CommandRetryDelay: DefaultCommandRetryDelay,
	}
}

// Validate checks the configuration values
func (c Config) Validate() error {
	var errs []error

	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be positive: %d given", c.BatchSize))
	}
	if c.BlockingDistance <= 0 {
		errs = append(errs, fmt.Errorf("blocking distance must be positive: %.1f given", c.BlockingDistance))
	}
	if c.Interval < 0 {
		errs = append(errs, fmt.Errorf("interval must not be negative: %s given", c.Interval))
	}
	if c.CommandAttempts <= 0 {
		errs = append(errs, fmt.Errorf("command attempts must be positive: %d given", c.CommandAttempts))
	}
	if c.CommandRetryDelay < 0 {
		errs = append(errs, fmt.Errorf("command retry delay must not be negative: %s given", c.CommandRetryDelay))
	}
	if c.MaxAcquireFailures < 0 {
		errs = append(errs, fmt.Errorf("max acquire failures must not be negative: %d given", c.MaxAcquireFailures))
	}

	return errors.Join(errs...)
}
