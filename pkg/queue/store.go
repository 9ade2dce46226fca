package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/overseer-ai/overseer/pkg/database"
	"github.com/overseer-ai/overseer/pkg/models"
	"github.com/overseer-ai/overseer/pkg/services"
)

// Store owns the tasks table. All row transitions go through it; the
// claim path additionally serializes on a process-wide mutex so two
// workers can never race on the same row.
type Store struct {
	client *database.Client
	logger *slog.Logger

	// claimMu serializes the claim transaction. SQLite has no
	// FOR UPDATE SKIP LOCKED; the mutex plus the status-guarded UPDATE
	// inside the transaction makes the claim a compare-and-set.
	claimMu sync.Mutex
}

// NewStore creates a task store over the shared database client.
func NewStore(client *database.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, logger: logger.With("component", "task-store")}
}

// taskRow is the tasks table row shape.
type taskRow struct {
	TaskID      string  `db:"task_id"`
	AgentName   string  `db:"agent_name"`
	Instruction string  `db:"instruction"`
	Priority    int     `db:"priority"`
	Status      string  `db:"status"`
	CreatedAt   string  `db:"created_at"`
	StartedAt   *string `db:"started_at"`
	CompletedAt *string `db:"completed_at"`
	Result      *string `db:"result"`
	Error       *string `db:"error"`
	RetryCount  int     `db:"retry_count"`
	MaxRetries  int     `db:"max_retries"`
	CallbackURL *string `db:"callback_url"`
	Metadata    string  `db:"metadata"`
}

func (r *taskRow) toModel() *models.QueuedTask {
	task := &models.QueuedTask{
		TaskID:      r.TaskID,
		AgentName:   r.AgentName,
		Instruction: r.Instruction,
		Priority:    models.TaskPriority(r.Priority),
		Status:      models.TaskStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Result:      r.Result,
		Error:       r.Error,
		RetryCount:  r.RetryCount,
		MaxRetries:  r.MaxRetries,
		CallbackURL: r.CallbackURL,
		Metadata:    map[string]any{},
	}
	// Metadata is caller-supplied JSON; a corrupt blob should not make the
	// whole task unreadable.
	_ = json.Unmarshal([]byte(r.Metadata), &task.Metadata)
	return task
}

// Enqueue inserts a new pending task and returns its id.
func (s *Store) Enqueue(ctx context.Context, agentName, instruction string, priority models.TaskPriority, maxRetries int, callbackURL string, metadata map[string]any) (string, error) {
	if agentName == "" {
		return "", services.NewValidationError("agent_name", "required")
	}
	if instruction == "" {
		return "", services.NewValidationError("instruction", "required")
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("%w: metadata not JSON-encodable: %w", services.ErrInvalidInput, err)
	}

	taskID := uuid.NewString()
	var callback *string
	if callbackURL != "" {
		callback = &callbackURL
	}

	_, err = s.client.DB().ExecContext(ctx, `
		INSERT INTO tasks
			(task_id, agent_name, instruction, priority, status, created_at, max_retries, callback_url, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		taskID, agentName, instruction, int(priority), string(models.TaskStatusPending),
		models.Now(), maxRetries, callback, string(metadataJSON))
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Info("Task enqueued",
		"task_id", taskID,
		"agent", agentName,
		"priority", priority.String())
	return taskID, nil
}

// GetStatus loads one task by id.
func (s *Store) GetStatus(ctx context.Context, taskID string) (*models.QueuedTask, error) {
	var row taskRow
	err := s.client.DB().GetContext(ctx, &row,
		`SELECT * FROM tasks WHERE task_id = ?`, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return row.toModel(), nil
}

// GetPending returns pending tasks in claim order: priority first, then
// FIFO within a priority. agentName filters when non-empty.
func (s *Store) GetPending(ctx context.Context, agentName string) ([]*models.QueuedTask, error) {
	query := `
		SELECT * FROM tasks
		WHERE status = ?
		ORDER BY priority ASC, created_at ASC`
	args := []any{string(models.TaskStatusPending)}
	if agentName != "" {
		query = `
			SELECT * FROM tasks
			WHERE status = ? AND agent_name = ?
			ORDER BY priority ASC, created_at ASC`
		args = append(args, agentName)
	}

	var rows []taskRow
	if err := s.client.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query pending tasks: %w", err)
	}
	tasks := make([]*models.QueuedTask, len(rows))
	for i := range rows {
		tasks[i] = rows[i].toModel()
	}
	return tasks, nil
}

// Cancel flips a pending task to cancelled. Returns true only when this
// call performed the transition; running or terminal tasks are untouched.
func (s *Store) Cancel(ctx context.Context, taskID string) (bool, error) {
	res, err := s.client.DB().ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, completed_at = ?
		WHERE task_id = ? AND status = ?`,
		string(models.TaskStatusCancelled), models.Now(),
		taskID, string(models.TaskStatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to cancel task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read cancel result: %w", err)
	}
	if n > 0 {
		s.logger.Info("Task cancelled", "task_id", taskID)
	}
	return n > 0, nil
}

// ClaimNext atomically claims the highest-priority oldest pending task,
// marking it running with started_at=now. Returns ErrNoTasksAvailable
// when nothing is claimable.
func (s *Store) ClaimNext(ctx context.Context) (*models.QueuedTask, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	tx, err := s.client.DB().BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row taskRow
	err = tx.GetContext(ctx, &row, `
		SELECT * FROM tasks
		WHERE status = ?
		ORDER BY priority ASC, created_at ASC
		LIMIT 1`, string(models.TaskStatusPending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoTasksAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query claimable task: %w", err)
	}

	startedAt := models.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, started_at = ?
		WHERE task_id = ? AND status = ?`,
		string(models.TaskStatusRunning), startedAt,
		row.TaskID, string(models.TaskStatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost the row between SELECT and UPDATE; treat as empty queue and
		// let the worker poll again.
		return nil, ErrNoTasksAvailable
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	row.Status = string(models.TaskStatusRunning)
	row.StartedAt = &startedAt
	return row.toModel(), nil
}

// MarkCompleted writes the task's terminal success state.
func (s *Store) MarkCompleted(ctx context.Context, taskID, result string) error {
	_, err := s.client.DB().ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, result = ?, error = NULL, completed_at = ?
		WHERE task_id = ?`,
		string(models.TaskStatusCompleted), result, models.Now(), taskID)
	if err != nil {
		return fmt.Errorf("failed to mark task completed: %w", err)
	}
	return nil
}

// RecordFailure stores the failure and the incremented retry count while
// the worker decides between backoff-and-requeue and giving up.
func (s *Store) RecordFailure(ctx context.Context, taskID, errMsg string, retryCount int) error {
	_, err := s.client.DB().ExecContext(ctx, `
		UPDATE tasks
		SET error = ?, retry_count = ?
		WHERE task_id = ?`,
		errMsg, retryCount, taskID)
	if err != nil {
		return fmt.Errorf("failed to record task failure: %w", err)
	}
	return nil
}

// Requeue returns a running task to pending so any worker can claim it
// again after its retry backoff.
func (s *Store) Requeue(ctx context.Context, taskID string) error {
	_, err := s.client.DB().ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, started_at = NULL
		WHERE task_id = ? AND status = ?`,
		string(models.TaskStatusPending), taskID, string(models.TaskStatusRunning))
	if err != nil {
		return fmt.Errorf("failed to requeue task: %w", err)
	}
	return nil
}

// MarkFailed writes the task's terminal failure state after the retry
// budget is exhausted.
func (s *Store) MarkFailed(ctx context.Context, taskID, errMsg string) error {
	_, err := s.client.DB().ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, error = ?, completed_at = ?
		WHERE task_id = ?`,
		string(models.TaskStatusFailed), errMsg, models.Now(), taskID)
	if err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}
	return nil
}

// RecoverStaleTasks resets running tasks whose started_at is older than
// threshold back to pending with an incremented retry count. These are
// tasks a crashed worker claimed and never finished. Returns the
// recovered ids.
func (s *Store) RecoverStaleTasks(ctx context.Context, threshold time.Duration) ([]string, error) {
	cutoff := models.FormatTime(time.Now().Add(-threshold))

	var ids []string
	err := s.client.DB().SelectContext(ctx, &ids, `
		SELECT task_id FROM tasks
		WHERE status = ? AND started_at IS NOT NULL AND started_at < ?`,
		string(models.TaskStatusRunning), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale tasks: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	for _, id := range ids {
		_, err := s.client.DB().ExecContext(ctx, `
			UPDATE tasks
			SET status = ?, started_at = NULL, retry_count = retry_count + 1
			WHERE task_id = ? AND status = ?`,
			string(models.TaskStatusPending), id, string(models.TaskStatusRunning))
		if err != nil {
			s.logger.Error("Failed to recover stale task", "task_id", id, "error", err)
			continue
		}
		s.logger.Warn("Recovered stale task back to pending", "task_id", id)
	}
	return ids, nil
}

// Stats summarizes queue load and today's throughput.
func (s *Store) Stats(ctx context.Context) (*models.QueueStats, error) {
	stats := &models.QueueStats{}

	var counts []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	err := s.client.DB().SelectContext(ctx, &counts,
		`SELECT status, COUNT(*) AS n FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query task counts: %w", err)
	}
	for _, c := range counts {
		switch models.TaskStatus(c.Status) {
		case models.TaskStatusPending:
			stats.Pending = c.N
		case models.TaskStatusRunning:
			stats.Running = c.N
		}
	}

	today := time.Now().UTC().Format("2006-01-02")
	var terminal []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	err = s.client.DB().SelectContext(ctx, &terminal, `
		SELECT status, COUNT(*) AS n FROM tasks
		WHERE completed_at IS NOT NULL AND substr(completed_at, 1, 10) = ?
		GROUP BY status`, today)
	if err != nil {
		return nil, fmt.Errorf("failed to query today's terminal tasks: %w", err)
	}
	for _, c := range terminal {
		switch models.TaskStatus(c.Status) {
		case models.TaskStatusCompleted:
			stats.CompletedToday = c.N
		case models.TaskStatusFailed:
			stats.FailedToday = c.N
		}
	}

	var waits []struct {
		CreatedAt string `db:"created_at"`
		StartedAt string `db:"started_at"`
	}
	err = s.client.DB().SelectContext(ctx, &waits, `
		SELECT created_at, started_at FROM tasks
		WHERE started_at IS NOT NULL AND substr(created_at, 1, 10) = ?`, today)
	if err != nil {
		return nil, fmt.Errorf("failed to query wait times: %w", err)
	}
	if len(waits) > 0 {
		var total float64
		counted := 0
		for _, w := range waits {
			created, err1 := models.ParseTime(w.CreatedAt)
			started, err2 := models.ParseTime(w.StartedAt)
			if err1 != nil || err2 != nil {
				continue
			}
			total += started.Sub(created).Seconds()
			counted++
		}
		if counted > 0 {
			stats.AvgWaitTimeSec = roundTo2(total / float64(counted))
		}
	}

	return stats, nil
}

// DeleteTerminalBefore removes completed, failed, and cancelled tasks
// that reached their terminal state before cutoff. Returns the number of
// rows removed.
func (s *Store) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.client.DB().ExecContext(ctx, `
		DELETE FROM tasks
		WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		string(models.TaskStatusCompleted), string(models.TaskStatusFailed),
		string(models.TaskStatusCancelled), models.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old tasks: %w", err)
	}
	return res.RowsAffected()
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
