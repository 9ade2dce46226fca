package models

// SessionStatus is the terminal outcome of one agent session.
type SessionStatus string

const (
	SessionCompleted SessionStatus = "COMPLETED"
	SessionFailed    SessionStatus = "FAILED"
)

// SessionRecord is the persisted result of one agent invocation.
// Rows are unique per (agent_name, task_id); a repeated commit for the
// same pair updates the mutable columns in place.
type SessionRecord struct {
	ID        int64         `json:"id,omitempty"`
	AgentName string        `json:"agent_name"`
	TaskID    string        `json:"task_id"`
	Task      string        `json:"task"`
	Status    SessionStatus `json:"status"`
	EvalScore float64       `json:"eval_score"`
	RiskLevel RiskLevel     `json:"risk_level"`
	Output    string        `json:"output"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
}

// SessionResult is returned by the EPCC pipeline for every run, whether
// the executor ran, failed, or was held at the approval gate.
type SessionResult struct {
	TaskID    string    `json:"task_id"`
	AgentName string    `json:"agent_name"`
	Success   bool      `json:"success"`
	Output    string    `json:"output"`
	RiskLevel RiskLevel `json:"risk_level"`
	EvalScore float64   `json:"eval_score"`
	Timestamp string    `json:"timestamp"`
}

// ContextEntry is one restored memory line handed to an agent at session
// start.
type ContextEntry struct {
	TaskID    string  `json:"task_id"`
	Task      string  `json:"task"`
	Output    string  `json:"output"`
	Status    string  `json:"status"`
	EvalScore float64 `json:"eval_score"`
	Timestamp string  `json:"timestamp"`
}

// SessionContext is the Explore-phase payload: recent sessions plus a
// textual digest of them.
type SessionContext struct {
	AgentName    string         `json:"agent_name"`
	LastSessions []ContextEntry `json:"last_sessions"`
	LastProgress []string       `json:"last_progress"`
	SessionStart string         `json:"session_start"`
}

// AgentStats aggregates a single agent's session history.
type AgentStats struct {
	AgentName    string  `json:"agent_name"`
	TotalTasks   int     `json:"total_tasks"`
	AvgEvalScore float64 `json:"avg_eval_score"`
	SuccessRate  float64 `json:"success_rate"`
}
