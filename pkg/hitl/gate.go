// Package hitl implements the human-in-the-loop approval gate: a
// persistent state machine over approval requests with auto-approval
// policy, human resolution, timeout expiry, and best-effort webhook
// notification.
package hitl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/overseer-ai/overseer/pkg/config"
	"github.com/overseer-ai/overseer/pkg/database"
	"github.com/overseer-ai/overseer/pkg/models"
	"github.com/overseer-ai/overseer/pkg/services"
)

// ErrAlreadyResolved is returned when resolving a request that already
// reached a terminal state. Terminal states are never re-entered.
var ErrAlreadyResolved = errors.New("approval request already resolved")

// Gate owns the approval_requests table. Policy knobs are read once at
// construction; a running gate does not observe environment changes.
type Gate struct {
	client       *database.Client
	requireMed   bool
	timeoutHours int
	notifier     Notifier
	logger       *slog.Logger
}

// NewGate creates the approval gate. notifier may be nil (notifications
// disabled).
func NewGate(client *database.Client, cfg *config.HITLConfig, notifier Notifier, logger *slog.Logger) *Gate {
	if cfg == nil {
		cfg = config.DefaultHITLConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		client:       client,
		requireMed:   cfg.RequireMediumApproval,
		timeoutHours: cfg.TimeoutHours,
		notifier:     notifier,
		logger:       logger.With("component", "hitl-gate"),
	}
}

// RequireMediumApproval reports the gate's MEDIUM-risk policy.
func (g *Gate) RequireMediumApproval() bool {
	return g.requireMed
}

// approvalRow is the approval_requests table row shape.
type approvalRow struct {
	RequestID      string  `db:"request_id"`
	AgentName      string  `db:"agent_name"`
	Task           string  `db:"task"`
	RiskLevel      string  `db:"risk_level"`
	RiskReason     string  `db:"risk_reason"`
	Status         string  `db:"status"`
	CreatedAt      string  `db:"created_at"`
	ResolvedAt     *string `db:"resolved_at"`
	ResolvedBy     *string `db:"resolved_by"`
	ResolutionNote *string `db:"resolution_note"`
	WebhookSent    bool    `db:"webhook_sent"`
	TimeoutHours   int     `db:"timeout_hours"`
}

func (r *approvalRow) toModel() *models.ApprovalRequest {
	return &models.ApprovalRequest{
		RequestID:      r.RequestID,
		AgentName:      r.AgentName,
		Task:           r.Task,
		RiskLevel:      models.RiskLevel(r.RiskLevel),
		RiskReason:     r.RiskReason,
		Status:         models.ApprovalStatus(r.Status),
		CreatedAt:      r.CreatedAt,
		ResolvedAt:     r.ResolvedAt,
		ResolvedBy:     r.ResolvedBy,
		ResolutionNote: r.ResolutionNote,
		WebhookSent:    r.WebhookSent,
		TimeoutHours:   r.TimeoutHours,
	}
}

// CheckAndGate classifies one instruction against the approval policy,
// persists the resulting request, and returns it. LOW risk auto-approves;
// MEDIUM auto-approves unless the gate requires it; HIGH always pends.
// Pending requests trigger a best-effort notification.
func (g *Gate) CheckAndGate(ctx context.Context, task, agentName string, level models.RiskLevel, reason string) (*models.ApprovalRequest, error) {
	if task == "" {
		return nil, services.NewValidationError("task", "required")
	}

	now := models.Now()
	req := &models.ApprovalRequest{
		RequestID:    uuid.NewString(),
		AgentName:    agentName,
		Task:         task,
		RiskLevel:    level,
		RiskReason:   reason,
		CreatedAt:    now,
		TimeoutHours: g.timeoutHours,
	}

	switch {
	case level == models.RiskLow:
		g.autoApprove(req, now, "AUTO_APPROVED: LOW risk")
	case level == models.RiskMedium && !g.requireMed:
		g.autoApprove(req, now, "AUTO_APPROVED: MEDIUM risk (HITL_REQUIRE_MED=false)")
	default:
		req.Status = models.ApprovalPending
	}

	if err := g.insert(ctx, req); err != nil {
		return nil, err
	}

	if req.Status == models.ApprovalPending {
		sent := false
		if g.notifier != nil {
			sent = g.notifier.NotifyApprovalRequired(ctx, req)
		}
		req.WebhookSent = sent
		if _, err := g.client.DB().ExecContext(ctx,
			`UPDATE approval_requests SET webhook_sent = ? WHERE request_id = ?`,
			sent, req.RequestID); err != nil {
			g.logger.Warn("Could not record webhook_sent", "request_id", req.RequestID, "error", err)
		}
		g.logger.Info("Approval required, request pending",
			"request_id", req.RequestID,
			"agent", agentName,
			"risk_level", level,
			"notified", sent)
	} else {
		g.logger.Info("Request auto-approved",
			"request_id", req.RequestID,
			"agent", agentName,
			"risk_level", level)
	}

	return req, nil
}

func (g *Gate) autoApprove(req *models.ApprovalRequest, now, note string) {
	system := "system"
	req.Status = models.ApprovalAutoApproved
	req.ResolvedAt = &now
	req.ResolvedBy = &system
	req.ResolutionNote = &note
}

func (g *Gate) insert(ctx context.Context, req *models.ApprovalRequest) error {
	_, err := g.client.DB().ExecContext(ctx, `
		INSERT INTO approval_requests
			(request_id, agent_name, task, risk_level, risk_reason, status,
			 created_at, resolved_at, resolved_by, resolution_note, webhook_sent, timeout_hours)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.RequestID, req.AgentName, req.Task, string(req.RiskLevel), req.RiskReason,
		string(req.Status), req.CreatedAt, req.ResolvedAt, req.ResolvedBy,
		req.ResolutionNote, req.WebhookSent, req.TimeoutHours)
	if err != nil {
		return fmt.Errorf("failed to persist approval request: %w", err)
	}
	return nil
}

// Get loads one approval request by id.
func (g *Gate) Get(ctx context.Context, requestID string) (*models.ApprovalRequest, error) {
	var row approvalRow
	err := g.client.DB().GetContext(ctx, &row,
		`SELECT * FROM approval_requests WHERE request_id = ?`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load approval request: %w", err)
	}
	return row.toModel(), nil
}

// GetPending lists unresolved requests, newest first.
func (g *Gate) GetPending(ctx context.Context) ([]*models.ApprovalRequest, error) {
	var rows []approvalRow
	err := g.client.DB().SelectContext(ctx, &rows, `
		SELECT * FROM approval_requests
		WHERE status = ?
		ORDER BY created_at DESC`, string(models.ApprovalPending))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending approvals: %w", err)
	}
	requests := make([]*models.ApprovalRequest, len(rows))
	for i := range rows {
		requests[i] = rows[i].toModel()
	}
	return requests, nil
}

// Resolve applies a human decision to a pending request. Resolution is
// monotone: a request already in a terminal state is returned unchanged
// together with ErrAlreadyResolved.
func (g *Gate) Resolve(ctx context.Context, requestID string, action models.ApprovalAction, resolvedBy, note string) (*models.ApprovalRequest, error) {
	var status models.ApprovalStatus
	switch action {
	case models.ActionApprove:
		status = models.ApprovalApproved
	case models.ActionReject:
		status = models.ApprovalRejected
	default:
		return nil, services.NewValidationError("action", fmt.Sprintf("unknown action %q", action))
	}
	if resolvedBy == "" {
		resolvedBy = "unknown"
	}

	now := models.Now()
	res, err := g.client.DB().ExecContext(ctx, `
		UPDATE approval_requests
		SET status = ?, resolved_at = ?, resolved_by = ?, resolution_note = ?
		WHERE request_id = ? AND status = ?`,
		string(status), now, resolvedBy, note,
		requestID, string(models.ApprovalPending))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve approval request: %w", err)
	}

	req, getErr := g.Get(ctx, requestID)
	if getErr != nil {
		return nil, getErr
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return req, ErrAlreadyResolved
	}

	g.logger.Info("Approval request resolved",
		"request_id", requestID,
		"status", status,
		"resolved_by", resolvedBy)
	if g.notifier != nil {
		g.notifier.NotifyResolved(ctx, req)
	}
	return req, nil
}

// IsApproved reports whether the request allows execution: APPROVED or
// AUTO_APPROVED. Unknown ids are not approved.
func (g *Gate) IsApproved(ctx context.Context, requestID string) bool {
	req, err := g.Get(ctx, requestID)
	if err != nil {
		return false
	}
	return req.Status.Approved()
}

// ExpireTimeouts flips every pending request past its deadline
// (created_at + timeout_hours) to TIMEOUT and returns the expired ids.
// Already-terminal requests are untouched.
func (g *Gate) ExpireTimeouts(ctx context.Context) ([]string, error) {
	pending, err := g.GetPending(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var expired []string
	for _, req := range pending {
		created, err := models.ParseTime(req.CreatedAt)
		if err != nil {
			g.logger.Warn("Unparseable created_at on approval request",
				"request_id", req.RequestID, "created_at", req.CreatedAt)
			continue
		}
		deadline := created.Add(time.Duration(req.TimeoutHours) * time.Hour)
		if deadline.After(now) {
			continue
		}

		note := fmt.Sprintf("TIMEOUT: 超過 %d 小時未審批", req.TimeoutHours)
		res, err := g.client.DB().ExecContext(ctx, `
			UPDATE approval_requests
			SET status = ?, resolved_at = ?, resolved_by = ?, resolution_note = ?
			WHERE request_id = ? AND status = ?`,
			string(models.ApprovalTimeout), models.Now(), "system", note,
			req.RequestID, string(models.ApprovalPending))
		if err != nil {
			g.logger.Error("Failed to expire approval request",
				"request_id", req.RequestID, "error", err)
			continue
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Resolved between the scan and the update; leave it be.
			continue
		}
		expired = append(expired, req.RequestID)
		g.logger.Warn("Approval request timed out", "request_id", req.RequestID)
	}
	return expired, nil
}

// DeleteResolvedBefore removes terminal requests resolved before cutoff.
// Pending requests are never touched. Returns the number of rows removed.
func (g *Gate) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := g.client.DB().ExecContext(ctx, `
		DELETE FROM approval_requests
		WHERE status != ? AND COALESCE(resolved_at, created_at) < ?`,
		string(models.ApprovalPending), models.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old approval requests: %w", err)
	}
	return res.RowsAffected()
}

// Stats counts requests by status.
func (g *Gate) Stats(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	err := g.client.DB().SelectContext(ctx, &rows,
		`SELECT status, COUNT(*) AS n FROM approval_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval stats: %w", err)
	}
	stats := make(map[string]int, len(rows))
	for _, r := range rows {
		stats[r.Status] = r.N
	}
	return stats, nil
}
