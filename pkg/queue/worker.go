package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/overseer-ai/overseer/pkg/config"
	"github.com/overseer-ai/overseer/pkg/models"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID             string       `json:"id"`
	Status         WorkerStatus `json:"status"`
	CurrentTaskID  string       `json:"current_task_id,omitempty"`
	TasksProcessed int          `json:"tasks_processed"`
	LastActivity   time.Time    `json:"last_activity"`
}

// Worker is a single queue worker that polls for and processes tasks.
type Worker struct {
	id       string
	store    *Store
	config   *config.QueueConfig
	executor Executor
	webhooks *WebhookSender
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu             sync.RWMutex
	status         WorkerStatus
	currentTaskID  string
	tasksProcessed int
	lastActivity   time.Time
}

// NewWorker creates a new queue worker. webhooks may be nil (completion
// callbacks disabled).
func NewWorker(id string, store *Store, cfg *config.QueueConfig, executor Executor, webhooks *WebhookSender) *Worker {
	return &Worker{
		id:           id,
		store:        store,
		config:       cfg,
		executor:     executor,
		webhooks:     webhooks,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish its current
// task. It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.Signal()
	w.wg.Wait()
}

// Signal asks the worker to stop without waiting.
func (w *Worker) Signal() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Wait blocks until the worker loop has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:             w.id,
		Status:         w.status,
		CurrentTaskID:  w.currentTaskID,
		TasksProcessed: w.tasksProcessed,
		LastActivity:   w.lastActivity,
	}
}

// run is the main worker loop: claim, execute, settle, repeat.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.claimAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoTasksAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing task", "error", err)
				w.sleep(time.Second) // Brief backoff on store errors
			}
		}
	}
}

// claimAndProcess claims the next task and runs it to a settled state:
// completed, requeued for retry, or failed.
func (w *Worker) claimAndProcess(ctx context.Context) error {
	task, err := w.store.ClaimNext(ctx)
	if err != nil {
		return err
	}

	log := slog.With("worker_id", w.id, "task_id", task.TaskID, "agent", task.AgentName)
	log.Info("Task claimed", "priority", task.Priority.String(), "retry_count", task.RetryCount)

	w.setStatus(WorkerStatusWorking, task.TaskID)
	defer w.setStatus(WorkerStatusIdle, "")

	output, execErr := w.execute(ctx, task)

	// Settlement writes use a background context: the worker may be
	// stopping, but a claimed task must not be left dangling in running.
	settleCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if execErr == nil {
		if err := w.store.MarkCompleted(settleCtx, task.TaskID, output); err != nil {
			return err
		}
		log.Info("Task completed")
		w.deliverWebhook(task.TaskID)
		w.countProcessed()
		return nil
	}

	retryCount := task.RetryCount + 1
	if err := w.store.RecordFailure(settleCtx, task.TaskID, execErr.Error(), retryCount); err != nil {
		return err
	}

	if retryCount <= task.MaxRetries {
		delay := backoffDelay(retryCount)
		log.Warn("Task failed, retrying after backoff",
			"error", execErr,
			"retry_count", retryCount,
			"max_retries", task.MaxRetries,
			"backoff", delay)
		// The backoff sleep is interruptible: on shutdown the task goes
		// straight back to pending and the next start retries it.
		w.sleep(delay)
		if err := w.store.Requeue(settleCtx, task.TaskID); err != nil {
			return err
		}
		return nil
	}

	if err := w.store.MarkFailed(settleCtx, task.TaskID, execErr.Error()); err != nil {
		return err
	}
	log.Error("Task failed permanently, retry budget exhausted",
		"error", execErr,
		"retry_count", retryCount)
	w.deliverWebhook(task.TaskID)
	w.countProcessed()
	return nil
}

// execute invokes the executor, converting a panic into an error so one
// misbehaving agent cannot take the worker down.
func (w *Worker) execute(ctx context.Context, task *models.QueuedTask) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return w.executor(ctx, task.AgentName, task.Instruction)
}

// deliverWebhook fires the completion callback for a now-terminal task.
func (w *Worker) deliverWebhook(taskID string) {
	if w.webhooks == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	task, err := w.store.GetStatus(ctx, taskID)
	if err != nil {
		slog.Warn("Could not reload task for webhook delivery", "task_id", taskID, "error", err)
		return
	}
	w.webhooks.Deliver(task)
}

// backoffDelay returns the sleep before the given retry (1-based):
// 1s, 2s, 4s, doubling each time.
func backoffDelay(retryCount int) time.Duration {
	return time.Duration(1<<(retryCount-1)) * time.Second
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	// Range: [base - jitter, base + jitter]
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentTaskID = taskID
	w.lastActivity = time.Now()
}

func (w *Worker) countProcessed() {
	w.mu.Lock()
	w.tasksProcessed++
	w.mu.Unlock()
}
