package models

// PlanMode is how an execution plan's sub-tasks are scheduled.
type PlanMode string

const (
	PlanSingle     PlanMode = "single"
	PlanSequential PlanMode = "sequential"
	PlanParallel   PlanMode = "parallel"
)

// SubTaskStatus tracks one sub-task through plan execution.
type SubTaskStatus string

const (
	SubTaskPending   SubTaskStatus = "PENDING"
	SubTaskRunning   SubTaskStatus = "RUNNING"
	SubTaskCompleted SubTaskStatus = "COMPLETED"
	SubTaskFailed    SubTaskStatus = "FAILED"
)

// SubTask is one unit of a decomposed instruction.
type SubTask struct {
	TaskID    string        `json:"task_id"`
	AgentName string        `json:"agent_name"`
	Task      string        `json:"task"`
	Priority  int           `json:"priority"`
	DependsOn []string      `json:"depends_on,omitempty"`
	Status    SubTaskStatus `json:"status"`
	Result    *string       `json:"result,omitempty"`
}

// ExecutionPlan is the planner's decomposition of a user instruction.
type ExecutionPlan struct {
	PlanID           string    `json:"plan_id"`
	Mode             PlanMode  `json:"mode"`
	SubTasks         []SubTask `json:"sub_tasks"`
	MergeInstruction string    `json:"merge_instruction,omitempty"`
	CreatedAt        string    `json:"created_at"`
}

// Single reports whether the plan needs no decomposition.
func (p *ExecutionPlan) Single() bool {
	return p.Mode == PlanSingle
}
