package hitl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/overseer-ai/overseer/pkg/config"
	"github.com/overseer-ai/overseer/pkg/models"
)

// Notifier delivers approval lifecycle notifications. Implementations
// report whether at least one delivery succeeded; they never return an
// error because notification failure must not block the gate.
type Notifier interface {
	NotifyApprovalRequired(ctx context.Context, req *models.ApprovalRequest) bool
	NotifyResolved(ctx context.Context, req *models.ApprovalRequest) bool
}

// webhookTimeout bounds each outbound delivery attempt.
const webhookTimeout = 5 * time.Second

// WebhookNotifier posts approval events to a Slack incoming webhook, a
// generic JSON endpoint, or both, depending on which URLs are configured.
type WebhookNotifier struct {
	slackURL   string
	genericURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWebhookNotifier builds a notifier from the HITL policy. Returns nil
// when no webhook URL is configured; the gate treats a nil notifier as a
// no-op.
func NewWebhookNotifier(cfg *config.HITLConfig, logger *slog.Logger) *WebhookNotifier {
	if cfg == nil || (cfg.SlackWebhookURL == "" && cfg.GenericWebhookURL == "") {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		slackURL:   cfg.SlackWebhookURL,
		genericURL: cfg.GenericWebhookURL,
		httpClient: &http.Client{Timeout: webhookTimeout},
		logger:     logger.With("component", "hitl-notifier"),
	}
}

// NotifyApprovalRequired announces a newly gated request.
func (n *WebhookNotifier) NotifyApprovalRequired(ctx context.Context, req *models.ApprovalRequest) bool {
	if n == nil {
		return false
	}

	sent := false
	if n.slackURL != "" {
		text := fmt.Sprintf(
			"⏳ *審批請求* | 風險等級: `%s`\n*Agent*: %s\n*任務*: %s\n*原因*: %s\n*ID*: `%s`\n請至 Dashboard 或 API 審批。",
			req.RiskLevel, req.AgentName, truncateRunes(req.Task, 200), req.RiskReason, req.RequestID)
		sent = n.postSlack(ctx, text) || sent
	}
	if n.genericURL != "" {
		payload := map[string]any{
			"event":         "approval_required",
			"request_id":    req.RequestID,
			"agent":         req.AgentName,
			"task":          req.Task,
			"risk_level":    req.RiskLevel,
			"risk_reason":   req.RiskReason,
			"created_at":    req.CreatedAt,
			"timeout_hours": req.TimeoutHours,
			"instructions": fmt.Sprintf(
				"請至 Web Dashboard 審批此任務，或呼叫 API:\n  POST /api/approvals/%s/approve\n  POST /api/approvals/%s/reject",
				req.RequestID, req.RequestID),
		}
		sent = n.postJSON(ctx, payload) || sent
	}
	return sent
}

// NotifyResolved announces a resolution.
func (n *WebhookNotifier) NotifyResolved(ctx context.Context, req *models.ApprovalRequest) bool {
	if n == nil {
		return false
	}

	sent := false
	if n.slackURL != "" {
		icon := "❌"
		if req.Status == models.ApprovalApproved {
			icon = "✅"
		}
		text := fmt.Sprintf(
			"%s *審批完成* | %s\n*Agent*: %s\n*ID*: `%s`\n*審批人*: %s",
			icon, req.Status, req.AgentName, req.RequestID, deref(req.ResolvedBy))
		sent = n.postSlack(ctx, text) || sent
	}
	if n.genericURL != "" {
		payload := map[string]any{
			"event":           "approval_resolved",
			"request_id":      req.RequestID,
			"agent":           req.AgentName,
			"task":            req.Task,
			"status":          req.Status,
			"resolved_by":     deref(req.ResolvedBy),
			"resolution_note": deref(req.ResolutionNote),
			"resolved_at":     deref(req.ResolvedAt),
		}
		sent = n.postJSON(ctx, payload) || sent
	}
	return sent
}

func (n *WebhookNotifier) postSlack(ctx context.Context, text string) bool {
	err := goslack.PostWebhookCustomHTTPContext(ctx, n.slackURL, n.httpClient,
		&goslack.WebhookMessage{Text: text})
	if err != nil {
		n.logger.Warn("Slack webhook delivery failed", "error", err)
		return false
	}
	return true
}

func (n *WebhookNotifier) postJSON(ctx context.Context, payload map[string]any) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("webhook payload not encodable", "error", err)
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.genericURL, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("webhook request build failed", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed", "url", n.genericURL, "error", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.logger.Warn("webhook endpoint rejected event", "status", resp.StatusCode)
		return false
	}
	return true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
