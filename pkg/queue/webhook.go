package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/overseer-ai/overseer/pkg/models"
)

// WebhookSender delivers completion callbacks for terminal tasks.
// Delivery is best-effort and fire-and-forget: failures are logged and
// never change task state.
type WebhookSender struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// NewWebhookSender creates a sender with the given per-delivery timeout.
func NewWebhookSender(timeout time.Duration, logger *slog.Logger) *WebhookSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookSender{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		logger:     logger.With("component", "webhook"),
	}
}

// webhookPayload is the completion callback body.
type webhookPayload struct {
	TaskID      string  `json:"task_id"`
	AgentName   string  `json:"agent_name"`
	Status      string  `json:"status"`
	Result      *string `json:"result"`
	Error       *string `json:"error"`
	CompletedAt *string `json:"completed_at"`
}

// Deliver posts the task's terminal state to its callback URL on a
// background goroutine. Tasks without a callback are skipped.
func (s *WebhookSender) Deliver(task *models.QueuedTask) {
	if s == nil || task.CallbackURL == nil || *task.CallbackURL == "" {
		return
	}
	url := *task.CallbackURL
	payload := webhookPayload{
		TaskID:      task.TaskID,
		AgentName:   task.AgentName,
		Status:      string(task.Status),
		Result:      task.Result,
		Error:       task.Error,
		CompletedAt: task.CompletedAt,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.post(ctx, url, payload)
	}()
}

func (s *WebhookSender) post(ctx context.Context, url string, payload webhookPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("Webhook payload not encodable", "task_id", payload.TaskID, "error", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("Webhook request build failed", "task_id", payload.TaskID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("Webhook delivery failed",
			"task_id", payload.TaskID, "url", url, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Warn("Webhook endpoint rejected callback",
			"task_id", payload.TaskID, "status", resp.StatusCode)
		return
	}
	s.logger.Debug("Webhook delivered", "task_id", payload.TaskID, "status", payload.Status)
}
