package config

import (
	"os"
	"strconv"
	"strings"
)

// HITLConfig holds the human-in-the-loop approval policy.
// Policy knobs are read once at construction; changing the environment of
// a running process has no effect until restart.
type HITLConfig struct {
	// RequireMediumApproval gates MEDIUM risk tasks behind a human when
	// true. HIGH risk tasks are always gated.
	RequireMediumApproval bool `yaml:"require_medium_approval"`

	// TimeoutHours is how long a pending request waits before expiry.
	TimeoutHours int `yaml:"timeout_hours"`

	// SlackWebhookURL receives approval notifications when set.
	SlackWebhookURL string `yaml:"slack_webhook_url"`

	// GenericWebhookURL receives JSON approval events when set.
	GenericWebhookURL string `yaml:"generic_webhook_url"`
}

// DefaultHITLConfig returns the approval policy, honoring HITL_REQUIRE_MED,
// HITL_TIMEOUT_HOURS, SLACK_WEBHOOK_URL, and HITL_WEBHOOK_URL.
func DefaultHITLConfig() *HITLConfig {
	cfg := &HITLConfig{
		RequireMediumApproval: envBool("HITL_REQUIRE_MED", false),
		TimeoutHours:          24,
		SlackWebhookURL:       os.Getenv("SLACK_WEBHOOK_URL"),
		GenericWebhookURL:     os.Getenv("HITL_WEBHOOK_URL"),
	}
	if v := os.Getenv("HITL_TIMEOUT_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours > 0 {
			cfg.TimeoutHours = hours
		}
	}
	return cfg
}

// envBool parses common boolean spellings; unset or unrecognized values
// return the fallback.
func envBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
