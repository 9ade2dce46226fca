package models

// ApprovalStatus tracks a human approval request.
type ApprovalStatus string

const (
	ApprovalPending      ApprovalStatus = "PENDING"
	ApprovalApproved     ApprovalStatus = "APPROVED"
	ApprovalRejected     ApprovalStatus = "REJECTED"
	ApprovalTimeout      ApprovalStatus = "TIMEOUT"
	ApprovalAutoApproved ApprovalStatus = "AUTO_APPROVED"
)

// Terminal reports whether the status admits no further transitions.
// Everything except PENDING is terminal.
func (s ApprovalStatus) Terminal() bool {
	return s != ApprovalPending
}

// Approved reports whether the status allows execution to proceed.
func (s ApprovalStatus) Approved() bool {
	return s == ApprovalApproved || s == ApprovalAutoApproved
}

// ApprovalAction is a human resolution verb.
type ApprovalAction string

const (
	ActionApprove ApprovalAction = "approve"
	ActionReject  ApprovalAction = "reject"
)

// ApprovalRequest is one row of the approval gate's ledger.
type ApprovalRequest struct {
	RequestID      string         `json:"request_id"`
	AgentName      string         `json:"agent_name"`
	Task           string         `json:"task"`
	RiskLevel      RiskLevel      `json:"risk_level"`
	RiskReason     string         `json:"risk_reason"`
	Status         ApprovalStatus `json:"status"`
	CreatedAt      string         `json:"created_at"`
	ResolvedAt     *string        `json:"resolved_at"`
	ResolvedBy     *string        `json:"resolved_by"`
	ResolutionNote *string        `json:"resolution_note"`
	WebhookSent    bool           `json:"webhook_sent"`
	TimeoutHours   int            `json:"timeout_hours"`
}
