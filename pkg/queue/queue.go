package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/overseer-ai/overseer/pkg/config"
	"github.com/overseer-ai/overseer/pkg/database"
	"github.com/overseer-ai/overseer/pkg/models"
)

// Queue is the durable priority task queue: the task store plus a pool
// of workers executing claimed tasks.
type Queue struct {
	store    *Store
	config   *config.QueueConfig
	executor Executor
	webhooks *WebhookSender
	workers  []*Worker

	mu      sync.Mutex
	started bool
}

// New creates a queue over the shared database client.
func New(client *database.Client, cfg *config.QueueConfig, executor Executor, logger *slog.Logger) *Queue {
	if cfg == nil {
		cfg = config.DefaultQueueConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		store:    NewStore(client, logger),
		config:   cfg,
		executor: executor,
		webhooks: NewWebhookSender(cfg.WebhookTimeout, logger),
	}
}

// Store returns the underlying task store for read-side consumers.
func (q *Queue) Store() *Store {
	return q.store
}

// Enqueue submits a task and returns its id. A zero callbackURL disables
// the completion webhook; nil metadata is stored as an empty object.
func (q *Queue) Enqueue(ctx context.Context, agentName, instruction string, priority models.TaskPriority, callbackURL string, metadata map[string]any) (string, error) {
	return q.store.Enqueue(ctx, agentName, instruction, priority, q.config.MaxRetries, callbackURL, metadata)
}

// Cancel cancels a pending task. True means this call performed the
// pending-to-cancelled transition.
func (q *Queue) Cancel(ctx context.Context, taskID string) (bool, error) {
	return q.store.Cancel(ctx, taskID)
}

// GetStatus loads one task by id.
func (q *Queue) GetStatus(ctx context.Context, taskID string) (*models.QueuedTask, error) {
	return q.store.GetStatus(ctx, taskID)
}

// GetPending lists pending tasks in claim order, optionally filtered by
// agent.
func (q *Queue) GetPending(ctx context.Context, agentName string) ([]*models.QueuedTask, error) {
	return q.store.GetPending(ctx, agentName)
}

// Stats returns queue load counters plus the worker count.
func (q *Queue) Stats(ctx context.Context) (*models.QueueStats, error) {
	stats, err := q.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	q.mu.Lock()
	stats.WorkerCount = len(q.workers)
	q.mu.Unlock()
	return stats, nil
}

// Start recovers stale running tasks from a previous crash, then spawns
// the worker pool. It is safe to call multiple times; subsequent calls
// are no-ops.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		slog.Warn("Queue already started, ignoring duplicate Start call")
		return nil
	}
	q.started = true

	recovered, err := q.store.RecoverStaleTasks(ctx, q.config.StaleTaskThreshold)
	if err != nil {
		// Recovery failure is not fatal: the tasks stay running and the
		// next start will try again.
		slog.Error("Stale task recovery failed", "error", err)
	} else if len(recovered) > 0 {
		slog.Info("Recovered stale tasks", "count", len(recovered))
	}

	slog.Info("Starting task queue", "worker_count", q.config.WorkerCount)
	for i := 0; i < q.config.WorkerCount; i++ {
		worker := NewWorker(fmt.Sprintf("worker-%d", i), q.store, q.config, q.executor, q.webhooks)
		q.workers = append(q.workers, worker)
		worker.Start(ctx)
	}
	slog.Info("Task queue started")
	return nil
}

// Stop shuts the worker pool down. Graceful stop waits (bounded by the
// configured shutdown timeout) for workers to finish their in-flight
// tasks; a non-graceful stop signals and returns immediately, leaving
// in-flight tasks to the stale-task recovery of the next start.
func (q *Queue) Stop(graceful bool) {
	q.mu.Lock()
	workers := q.workers
	q.workers = nil
	q.started = false
	q.mu.Unlock()

	if len(workers) == 0 {
		return
	}

	for _, worker := range workers {
		worker.Signal()
	}
	if !graceful {
		slog.Info("Task queue stopped (immediate)")
		return
	}

	done := make(chan struct{})
	go func() {
		for _, worker := range workers {
			worker.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Task queue stopped gracefully")
	case <-time.After(q.config.GracefulShutdownTimeout):
		slog.Warn("Queue shutdown timeout exceeded, in-flight tasks will be recovered on next start")
	}
}
