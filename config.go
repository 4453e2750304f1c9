package smartqueue

import "time"

// Config holds runtime-wide configuration.
type Config struct {
	// DefaultCapacity is applied to queues created without a capacity.
	DefaultCapacity int

	// ExpiryGrace is how long a called token may wait for service to start
	// before the expiry sweep marks it expired.
	ExpiryGrace time.Duration

	// ExpirySchedule is the cron expression of the expiry sweep.
	ExpirySchedule string

	// RetrainSchedule is the cron expression of estimator retraining.
	// Empty disables periodic retraining.
	RetrainSchedule string

	// OperationTimeout bounds every scheduling operation.
	OperationTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultCapacity:  50,
		ExpiryGrace:      5 * time.Minute,
		ExpirySchedule:   "@every 30s",
		RetrainSchedule:  "@every 15m",
		OperationTimeout: 5 * time.Second,
		ShutdownTimeout:  30 * time.Second,
	}
}
