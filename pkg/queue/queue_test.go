package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overseer-ai/overseer/pkg/config"
	"github.com/overseer-ai/overseer/pkg/database"
	"github.com/overseer-ai/overseer/pkg/models"
)

func fastQueueConfig() *config.QueueConfig {
	cfg := config.DefaultQueueConfig()
	cfg.WorkerCount = 1
	cfg.PollInterval = 20 * time.Millisecond
	cfg.PollIntervalJitter = 5 * time.Millisecond
	cfg.GracefulShutdownTimeout = 10 * time.Second
	return cfg
}

func newTestQueue(t *testing.T, cfg *config.QueueConfig, executor Executor) *Queue {
	t.Helper()
	client, err := database.NewClient(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return New(client, cfg, executor, nil)
}

// waitForStatus polls until the task reaches the wanted status or the
// deadline passes.
func waitForStatus(t *testing.T, q *Queue, taskID string, want models.TaskStatus, deadline time.Duration) *models.QueuedTask {
	t.Helper()
	var task *models.QueuedTask
	require.Eventually(t, func() bool {
		var err error
		task, err = q.GetStatus(context.Background(), taskID)
		return err == nil && task.Status == want
	}, deadline, 20*time.Millisecond, "task %s never reached %s", taskID, want)
	return task
}

func TestQueue_CompletesTask(t *testing.T) {
	q := newTestQueue(t, fastQueueConfig(), func(_ context.Context, _, _ string) (string, error) {
		return "done", nil
	})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "KM_AGENT", "extract SOP", models.PriorityNormal, "", nil)
	require.NoError(t, err)

	require.NoError(t, q.Start(ctx))
	defer q.Stop(true)

	task := waitForStatus(t, q, id, models.TaskStatusCompleted, 5*time.Second)
	require.NotNil(t, task.Result)
	assert.Equal(t, "done", *task.Result)
	require.NotNil(t, task.CompletedAt)
	assert.Nil(t, task.Error)
}

func TestQueue_PriorityOrdering(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	q := newTestQueue(t, fastQueueConfig(), func(_ context.Context, _, instruction string) (string, error) {
		mu.Lock()
		calls = append(calls, instruction)
		mu.Unlock()
		return "ok", nil
	})
	ctx := context.Background()

	// Enqueued while workers are stopped, deliberately out of order.
	_, err := q.Enqueue(ctx, "A", "low", models.PriorityLow, "", nil)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "A", "normal", models.PriorityNormal, "", nil)
	require.NoError(t, err)
	critID, err := q.Enqueue(ctx, "A", "crit", models.PriorityCritical, "", nil)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "A", "high", models.PriorityHigh, "", nil)
	require.NoError(t, err)

	require.NoError(t, q.Start(ctx))
	defer q.Stop(true)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 4
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"crit", "high", "normal", "low"}, calls)

	task, err := q.GetStatus(ctx, critID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, task.Status)
}

func TestQueue_RetryThenFail(t *testing.T) {
	cfg := fastQueueConfig()
	cfg.MaxRetries = 1

	var mu sync.Mutex
	attempts := 0
	var attemptTimes []time.Time
	q := newTestQueue(t, cfg, func(_ context.Context, _, _ string) (string, error) {
		mu.Lock()
		attempts++
		attemptTimes = append(attemptTimes, time.Now())
		mu.Unlock()
		return "", errors.New("agent exploded")
	})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "A", "doomed", models.PriorityNormal, "", nil)
	require.NoError(t, err)

	require.NoError(t, q.Start(ctx))
	defer q.Stop(true)

	// max_retries=1 means two invocations with a 1s backoff between them.
	task := waitForStatus(t, q, id, models.TaskStatusFailed, 10*time.Second)
	assert.Equal(t, 2, task.RetryCount)
	require.NotNil(t, task.Error)
	assert.Equal(t, "agent exploded", *task.Error)
	require.NotNil(t, task.CompletedAt)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, attempts)
	gap := attemptTimes[1].Sub(attemptTimes[0])
	assert.GreaterOrEqual(t, gap, 1*time.Second)
	assert.Less(t, gap, 3*time.Second)
}

func TestBackoffDelay_Doubles(t *testing.T) {
	assert.Equal(t, 1*time.Second, backoffDelay(1))
	assert.Equal(t, 2*time.Second, backoffDelay(2))
	assert.Equal(t, 4*time.Second, backoffDelay(3))
	assert.Equal(t, 8*time.Second, backoffDelay(4))
}

func TestQueue_WebhookOnCompletion(t *testing.T) {
	received := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload webhookPayload
		_ = json.Unmarshal(body, &payload)
		received <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	q := newTestQueue(t, fastQueueConfig(), func(_ context.Context, _, _ string) (string, error) {
		return "report ready", nil
	})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "KM_AGENT", "extract", models.PriorityNormal, server.URL, nil)
	require.NoError(t, err)

	require.NoError(t, q.Start(ctx))
	defer q.Stop(true)

	select {
	case payload := <-received:
		assert.Equal(t, id, payload.TaskID)
		assert.Equal(t, "KM_AGENT", payload.AgentName)
		assert.Equal(t, string(models.TaskStatusCompleted), payload.Status)
		require.NotNil(t, payload.Result)
		assert.Equal(t, "report ready", *payload.Result)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook never delivered")
	}
}

func TestQueue_StopGraceful_WaitsForInflight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	q := newTestQueue(t, fastQueueConfig(), func(_ context.Context, _, _ string) (string, error) {
		close(started)
		<-release
		return "slow but done", nil
	})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "A", "slow", models.PriorityNormal, "", nil)
	require.NoError(t, err)
	require.NoError(t, q.Start(ctx))

	<-started
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(release)
	}()
	q.Stop(true)

	task, err := q.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, task.Status)
}

func TestQueue_StartRecoversStaleTasks(t *testing.T) {
	cfg := fastQueueConfig()
	q := newTestQueue(t, cfg, func(_ context.Context, _, _ string) (string, error) {
		return "recovered run", nil
	})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "A", "left behind", models.PriorityNormal, "", nil)
	require.NoError(t, err)

	// Simulate a crash: claim the task, then backdate started_at past the
	// stale threshold without ever settling it.
	_, err = q.store.ClaimNext(ctx)
	require.NoError(t, err)
	old := models.FormatTime(time.Now().Add(-cfg.StaleTaskThreshold - time.Minute))
	_, err = q.store.client.DB().ExecContext(ctx,
		`UPDATE tasks SET started_at = ? WHERE task_id = ?`, old, id)
	require.NoError(t, err)

	require.NoError(t, q.Start(ctx))
	defer q.Stop(true)

	task := waitForStatus(t, q, id, models.TaskStatusCompleted, 5*time.Second)
	assert.Equal(t, 1, task.RetryCount)
}
