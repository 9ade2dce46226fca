package config

import "time"

// QueueConfig holds task queue worker pool configuration.
type QueueConfig struct {
	// WorkerCount is the number of concurrent task workers.
	WorkerCount int `yaml:"worker_count"`

	// PollInterval is the base interval between dequeue attempts when the
	// queue is empty.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the maximum random jitter added to PollInterval
	// to avoid thundering herd across workers.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// MaxRetries is the default retry budget for newly submitted tasks.
	MaxRetries int `yaml:"max_retries"`

	// StaleTaskThreshold is how long a task may sit in running state before
	// startup recovery treats it as abandoned by a dead worker.
	StaleTaskThreshold time.Duration `yaml:"stale_task_threshold"`

	// GracefulShutdownTimeout is how long shutdown waits for in-flight
	// tasks to finish before giving up.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// WebhookTimeout bounds each completion callback delivery attempt.
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
}

// DefaultQueueConfig returns the default queue configuration.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             2,
		PollInterval:            500 * time.Millisecond,
		PollIntervalJitter:      100 * time.Millisecond,
		MaxRetries:              3,
		StaleTaskThreshold:      10 * time.Minute,
		GracefulShutdownTimeout: 30 * time.Second,
		WebhookTimeout:          5 * time.Second,
	}
}
