package config

import "time"

// RetentionConfig holds data retention and cleanup scheduling settings.
type RetentionConfig struct {
	// TaskRetentionDays is how long terminal queue tasks are kept.
	TaskRetentionDays int `yaml:"task_retention_days"`

	// ApprovalRetentionDays is how long resolved approval requests are kept.
	ApprovalRetentionDays int `yaml:"approval_retention_days"`

	// HistoryRetentionDays is how long performance and cost history rows
	// are kept.
	HistoryRetentionDays int `yaml:"history_retention_days"`

	// CleanupInterval is how often the cleanup service runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// StartupDelay postpones the first cleanup run after boot so startup
	// work is not competing with a large delete.
	StartupDelay time.Duration `yaml:"startup_delay"`
}

// DefaultRetentionConfig returns the default retention configuration.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		TaskRetentionDays:     30,
		ApprovalRetentionDays: 90,
		HistoryRetentionDays:  180,
		CleanupInterval:       1 * time.Hour,
		StartupDelay:          5 * time.Minute,
	}
}
