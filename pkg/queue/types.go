// Package queue implements the durable priority task queue: persistent
// tasks claimed by a pool of workers, exponential-backoff retry, webhook
// completion callbacks, cancellation, and stale-task recovery after a
// crash.
package queue

import (
	"context"
	"errors"
)

// Sentinel errors for queue operations.
var (
	// ErrNoTasksAvailable indicates no pending tasks are claimable.
	ErrNoTasksAvailable = errors.New("no tasks available")

	// ErrTaskNotFound indicates the task id is unknown.
	ErrTaskNotFound = errors.New("task not found")
)

// Executor runs one task. Any returned error counts as a retryable
// failure; the worker applies the task's retry budget before giving up.
type Executor func(ctx context.Context, agentName, instruction string) (string, error)
