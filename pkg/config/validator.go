package config

import (
	"fmt"

	"github.com/overseer-ai/overseer/pkg/models"
)

// validate checks the merged configuration for internal consistency.
func validate(cfg *Config) error {
	if err := validateAgents(cfg.Agents); err != nil {
		return err
	}
	if err := validateQueue(cfg.Queue); err != nil {
		return err
	}
	if err := validateHITL(cfg.HITL); err != nil {
		return err
	}
	if err := validateRetention(cfg.Retention); err != nil {
		return err
	}
	if err := validateDefaults(cfg.Defaults); err != nil {
		return err
	}
	for _, wf := range cfg.Workflows {
		if err := ValidateWorkflow(wf); err != nil {
			return err
		}
	}
	return nil
}

func validateAgents(agents map[string]*AgentConfig) error {
	if len(agents) == 0 {
		return NewValidationError("agents", "", "agents", ErrMissingRequiredField)
	}
	for name, agent := range agents {
		if agent.Role == "" {
			return NewValidationError("agent", name, "role", ErrMissingRequiredField)
		}
		for skill, level := range agent.Skills {
			if level < int(models.SkillBeginner) || level > int(models.SkillExpert) {
				return NewValidationError("agent", name, "skills."+skill,
					fmt.Errorf("%w: level %d outside 1..4", ErrInvalidValue, level))
			}
		}
		for _, sla := range agent.SLATargets {
			if sla.Metric == "" {
				return NewValidationError("agent", name, "sla_targets.metric", ErrMissingRequiredField)
			}
			switch sla.Unit {
			case models.SLAUnitSeconds, models.SLAUnitPercent, models.SLAUnitScore:
			default:
				return NewValidationError("agent", name, "sla_targets.unit",
					fmt.Errorf("%w: %q", ErrInvalidValue, sla.Unit))
			}
		}
	}
	return nil
}

func validateQueue(q *QueueConfig) error {
	if q.WorkerCount < 1 {
		return NewValidationError("queue", "", "worker_count",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if q.MaxRetries < 0 {
		return NewValidationError("queue", "", "max_retries",
			fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if q.PollInterval <= 0 {
		return NewValidationError("queue", "", "poll_interval",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func validateHITL(h *HITLConfig) error {
	if h.TimeoutHours < 1 {
		return NewValidationError("hitl", "", "timeout_hours",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	return nil
}

func validateRetention(r *RetentionConfig) error {
	for field, days := range map[string]int{
		"task_retention_days":     r.TaskRetentionDays,
		"approval_retention_days": r.ApprovalRetentionDays,
		"history_retention_days":  r.HistoryRetentionDays,
	} {
		if days < 1 {
			return NewValidationError("retention", "", field,
				fmt.Errorf("%w: must be at least 1 day", ErrInvalidValue))
		}
	}
	return nil
}

func validateDefaults(d *DefaultsConfig) error {
	if d.EvalPassScore < 0 || d.EvalPassScore > 1 {
		return NewValidationError("defaults", "", "eval_pass_score",
			fmt.Errorf("%w: must be within [0,1]", ErrInvalidValue))
	}
	if d.MaxSubTasks < 1 {
		return NewValidationError("defaults", "", "max_sub_tasks",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if d.ContextLimit < 1 {
		return NewValidationError("defaults", "", "context_limit",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	return nil
}

// ValidateWorkflow checks one workflow definition. Exported because the
// workflow engine validates definitions registered at runtime too.
func ValidateWorkflow(wf *models.WorkflowDefinition) error {
	if wf.WorkflowID == "" {
		return NewValidationError("workflow", "", "workflow_id", ErrMissingRequiredField)
	}
	if len(wf.Steps) == 0 {
		return NewValidationError("workflow", wf.WorkflowID, "steps", ErrMissingRequiredField)
	}

	ids := make(map[string]bool, len(wf.Steps))
	for _, step := range wf.Steps {
		if step.StepID == "" {
			return NewValidationError("workflow", wf.WorkflowID, "step_id", ErrMissingRequiredField)
		}
		if ids[step.StepID] {
			return NewValidationError("workflow", wf.WorkflowID, "step_id",
				fmt.Errorf("%w: duplicate step %q", ErrInvalidValue, step.StepID))
		}
		ids[step.StepID] = true
		if err := validateStep(wf.WorkflowID, &step); err != nil {
			return err
		}
	}

	// Branch targets must name declared steps.
	for _, step := range wf.Steps {
		for field, target := range map[string]string{"on_success": step.OnSuccess, "on_failure": step.OnFailure} {
			if target != "" && !ids[target] {
				return NewValidationError("workflow", wf.WorkflowID, field,
					fmt.Errorf("%w: unknown step %q", ErrInvalidValue, target))
			}
		}
	}
	return nil
}

func validateStep(workflowID string, step *models.WorkflowStep) error {
	switch step.Type {
	case models.StepAgent, models.StepLoop:
		if step.AgentName == "" {
			return NewValidationError("workflow", workflowID, step.StepID+".agent_name", ErrMissingRequiredField)
		}
	case models.StepParallel:
		if len(step.ParallelSteps) == 0 {
			return NewValidationError("workflow", workflowID, step.StepID+".parallel_steps", ErrMissingRequiredField)
		}
		for _, sub := range step.ParallelSteps {
			if sub.AgentName == "" {
				return NewValidationError("workflow", workflowID, step.StepID+".parallel_steps.agent_name", ErrMissingRequiredField)
			}
		}
	case models.StepCondition:
		if step.Condition == "" {
			return NewValidationError("workflow", workflowID, step.StepID+".condition", ErrMissingRequiredField)
		}
	case models.StepMerge:
	default:
		return NewValidationError("workflow", workflowID, step.StepID+".step_type",
			fmt.Errorf("%w: %q", ErrInvalidValue, step.Type))
	}
	return nil
}
