package pipeline

import (
	"fmt"
	"time"

	"github.com/usc-rasc/kinect-bridge2/errors"
)

// Config holds the pipeline's queue marks and timing.
type Config struct {
	// ModalityHighWater is the default mark of each modality queue.
	ModalityHighWater int `json:"modality_high_water" yaml:"modality_high_water"`
	// OutputHighWater is the mark of the shared coded-message queue.
	OutputHighWater int `json:"output_high_water" yaml:"output_high_water"`
	// Pause is how long a producer sleeps at the mark and how long a
	// consumer waits on an empty queue.
	Pause time.Duration `json:"pause" yaml:"pause"`
	// RetryDelay is the wait after a failed acquisition.
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`
	// StatusInterval is the period of the status line; zero disables it.
	StatusInterval time.Duration `json:"status_interval" yaml:"status_interval"`
	// JoinTimeout bounds how long a shutdown phase waits for its pools to drain.
	JoinTimeout time.Duration `json:"join_timeout" yaml:"join_timeout"`
}

// DefaultPause is one frame period at 35 Hz.
const DefaultPause = time.Second / 35

// DefaultConfig returns the capture defaults.
func DefaultConfig() Config {
	return Config{
		ModalityHighWater: 2 * 16,
		OutputHighWater:   2 * 32,
		Pause:             DefaultPause,
		RetryDelay:        DefaultPause,
		StatusInterval:    500 * time.Millisecond,
		JoinTimeout:       10 * time.Second,
	}
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	switch {
	case c.ModalityHighWater <= 0:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("modality_high_water %d", c.ModalityHighWater))
	case c.OutputHighWater <= 0:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("output_high_water %d", c.OutputHighWater))
	case c.Pause <= 0:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "pause must be positive")
	case c.RetryDelay < 0 || c.StatusInterval < 0:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "negative interval")
	case c.JoinTimeout <= 0:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "join_timeout must be positive")
	}
	return nil
}
