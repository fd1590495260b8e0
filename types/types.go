package types

import "time"

// RiskLevel classifies the blast radius of a gated action. Levels are
// ordered from least to most dangerous.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ApprovalStatus is the lifecycle state of an approval request.
// StatusPending is the only non-terminal value; once a request reaches
// StatusApproved, StatusDenied or StatusEscalated it never changes again.
type ApprovalStatus string

const (
	StatusPending   ApprovalStatus = "pending"
	StatusApproved  ApprovalStatus = "approved"
	StatusDenied    ApprovalStatus = "denied"
	StatusEscalated ApprovalStatus = "escalated"
)

// Terminal reports whether the status is a final outcome.
func (s ApprovalStatus) Terminal() bool {
	return s == StatusApproved || s == StatusDenied || s == StatusEscalated
}

// Action describes the operation being gated. The workflow treats it as
// opaque payload; only the policy engine inspects its fields.
type Action struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Target      string                 `json:"target"`
	Environment string                 `json:"environment"`
	RiskLevel   RiskLevel              `json:"risk_level"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Description string                 `json:"description,omitempty"`
}

// ApprovalRequest represents one pending human decision over an action.
type ApprovalRequest struct {
	RequestID         string         `json:"request_id"`
	Action            Action         `json:"action"`
	AgentID           string         `json:"agent_id"`
	Reason            string         `json:"reason"`
	RequiredApprovals int            `json:"required_approvals"`
	Status            ApprovalStatus `json:"status"`
	DecidedBy         string         `json:"decided_by,omitempty"`
	DecisionReason    string         `json:"decision_reason,omitempty"`
	CreatedAt         int64          `json:"created_at"`
	ResolvedAt        int64          `json:"resolved_at,omitempty"`
}

// AuditEntry records a single resolved approval request for audit purposes.
type AuditEntry struct {
	ID             uint64         `json:"id"`
	RequestID      string         `json:"request_id"`
	AgentID        string         `json:"agent_id"`
	ActionType     string         `json:"action_type"`
	Outcome        ApprovalStatus `json:"outcome"`
	DecidedBy      string         `json:"decided_by,omitempty"`
	DecisionReason string         `json:"decision_reason,omitempty"`
	ResponseTimeMs int64          `json:"response_time_ms"`
	CreatedAt      time.Time      `json:"created_at"`
}
