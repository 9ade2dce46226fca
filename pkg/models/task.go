// Package models defines the data types persisted and exchanged by the
// platform: queued tasks, session records, approval requests, agent
// profiles, execution plans, and workflow definitions.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeFormat is the canonical timestamp layout: UTC with microsecond
// precision and a fixed width, so lexical ordering of stored values
// matches chronological ordering.
const TimeFormat = "2006-01-02T15:04:05.000000Z"

// Now returns the current UTC time in the canonical layout.
func Now() string {
	return time.Now().UTC().Format(TimeFormat)
}

// FormatTime renders t in the canonical layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a canonical timestamp, accepting RFC3339 variants for
// values written by external callers.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{TimeFormat, time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// TaskPriority orders tasks at dequeue; lower values claim first.
type TaskPriority int

const (
	PriorityCritical TaskPriority = 0
	PriorityHigh     TaskPriority = 1
	PriorityNormal   TaskPriority = 2
	PriorityLow      TaskPriority = 3
)

func (p TaskPriority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	}
	return fmt.Sprintf("PRIORITY(%d)", int(p))
}

// ParsePriority maps a priority name (case-insensitive) to its value.
func ParsePriority(name string) (TaskPriority, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "CRITICAL":
		return PriorityCritical, nil
	case "HIGH":
		return PriorityHigh, nil
	case "NORMAL", "":
		return PriorityNormal, nil
	case "LOW":
		return PriorityLow, nil
	}
	return PriorityNormal, fmt.Errorf("invalid priority %q", name)
}

// MarshalJSON renders the priority by name, matching the wire format of the
// task API.
func (p TaskPriority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts either a priority name or its numeric value.
func (p *TaskPriority) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, perr := ParsePriority(name)
		if perr != nil {
			return perr
		}
		*p = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid priority %s", data)
	}
	if n < int(PriorityCritical) || n > int(PriorityLow) {
		return fmt.Errorf("invalid priority %d", n)
	}
	*p = TaskPriority(n)
	return nil
}

// TaskStatus tracks a queued task through its lifecycle.
type TaskStatus string

const (
	TaskStatusPending         TaskStatus = "pending"
	TaskStatusRunning         TaskStatus = "running"
	TaskStatusCompleted       TaskStatus = "completed"
	TaskStatusFailed          TaskStatus = "failed"
	TaskStatusCancelled       TaskStatus = "cancelled"
	TaskStatusWaitingApproval TaskStatus = "waiting_approval"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// QueuedTask is one row of the durable task queue.
type QueuedTask struct {
	TaskID      string         `json:"task_id"`
	AgentName   string         `json:"agent_name"`
	Instruction string         `json:"instruction"`
	Priority    TaskPriority   `json:"priority"`
	Status      TaskStatus     `json:"status"`
	CreatedAt   string         `json:"created_at"`
	StartedAt   *string        `json:"started_at"`
	CompletedAt *string        `json:"completed_at"`
	Result      *string        `json:"result"`
	Error       *string        `json:"error"`
	RetryCount  int            `json:"retry_count"`
	MaxRetries  int            `json:"max_retries"`
	CallbackURL *string        `json:"callback_url"`
	Metadata    map[string]any `json:"metadata"`
}

// QueueStats summarizes queue load and today's throughput.
type QueueStats struct {
	Pending        int     `json:"pending"`
	Running        int     `json:"running"`
	CompletedToday int     `json:"completed_today"`
	FailedToday    int     `json:"failed_today"`
	AvgWaitTimeSec float64 `json:"avg_wait_time_sec"`
	WorkerCount    int     `json:"worker_count"`
}
