package models

// StepType is the tagged variant of a workflow step.
type StepType string

const (
	StepAgent     StepType = "AGENT"
	StepCondition StepType = "CONDITION"
	StepLoop      StepType = "LOOP"
	StepParallel  StepType = "PARALLEL"
	StepMerge     StepType = "MERGE"
)

// WorkflowStep is one node of a declarative workflow.
// task_template uses {name} placeholders resolved against the execution
// context; unresolved placeholders are left intact.
type WorkflowStep struct {
	StepID        string         `json:"step_id" yaml:"step_id"`
	Type          StepType       `json:"step_type" yaml:"step_type"`
	AgentName     string         `json:"agent_name,omitempty" yaml:"agent_name,omitempty"`
	TaskTemplate  string         `json:"task_template,omitempty" yaml:"task_template,omitempty"`
	Condition     string         `json:"condition,omitempty" yaml:"condition,omitempty"`
	MaxIterations int            `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	ParallelSteps []WorkflowStep `json:"parallel_steps,omitempty" yaml:"parallel_steps,omitempty"`
	OnSuccess     string         `json:"on_success,omitempty" yaml:"on_success,omitempty"`
	OnFailure     string         `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
}

// WorkflowDefinition is a named, pre-declared graph of steps.
type WorkflowDefinition struct {
	WorkflowID  string         `json:"workflow_id" yaml:"workflow_id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []WorkflowStep `json:"steps" yaml:"steps"`
}

// StepResult records one executed step.
type StepResult struct {
	StepID      string  `json:"step_id"`
	AgentName   string  `json:"agent_name"`
	Success     bool    `json:"success"`
	Output      string  `json:"output"`
	DurationSec float64 `json:"duration_sec"`
	Iteration   int     `json:"iteration,omitempty"`
}

// WorkflowResult is the outcome of one workflow execution.
type WorkflowResult struct {
	WorkflowID  string         `json:"workflow_id"`
	Success     bool           `json:"success"`
	Results     []StepResult   `json:"results"`
	Context     map[string]any `json:"context"`
	DurationSec float64        `json:"duration_sec"`
}
