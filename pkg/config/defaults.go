package config

// DefaultsConfig holds cross-cutting dispatch and evaluation defaults.
type DefaultsConfig struct {
	// DefaultAgent receives tasks the intent classifier cannot route.
	DefaultAgent string `yaml:"default_agent"`

	// EvalPassScore is the evaluation score threshold for a passing session.
	EvalPassScore float64 `yaml:"eval_pass_score"`

	// MaxSubTasks caps how many sub-tasks a single plan may contain.
	MaxSubTasks int `yaml:"max_sub_tasks"`

	// ContextLimit is how many prior sessions are loaded as agent context.
	ContextLimit int `yaml:"context_limit"`
}

// DefaultDefaultsConfig returns the default dispatch settings.
func DefaultDefaultsConfig() *DefaultsConfig {
	return &DefaultsConfig{
		DefaultAgent:  "KM_AGENT",
		EvalPassScore: 0.7,
		MaxSubTasks:   5,
		ContextLimit:  5,
	}
}
