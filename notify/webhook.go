package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ghantakiran/ShieldOps-sub011/types"
)

// WebhookOptions configures a WebhookNotifier. An empty URL leaves the
// notifier disabled: every send becomes a no-op.
type WebhookOptions struct {
	URL     string
	Channel string            // primary destination handle included in every payload
	Headers map[string]string // extra headers, e.g. Authorization
	Timeout time.Duration
}

// WebhookNotifier posts approval announcements to a single webhook endpoint.
// Each send is one POST with a bounded timeout and no retries.
type WebhookNotifier struct {
	opts   WebhookOptions
	client *http.Client
}

// NewWebhookNotifier creates a WebhookNotifier. The default request timeout
// is 10 seconds.
func NewWebhookNotifier(opts WebhookOptions) *WebhookNotifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

// Enabled reports whether a destination is configured.
func (n *WebhookNotifier) Enabled() bool {
	return n.opts.URL != ""
}

// SendRequest announces a new pending approval.
func (n *WebhookNotifier) SendRequest(ctx context.Context, req *types.ApprovalRequest) error {
	return n.post(ctx, map[string]interface{}{
		"event":       "approval_requested",
		"channel":     n.opts.Channel,
		"request_id":  req.RequestID,
		"agent_id":    req.AgentID,
		"action":      req.Action,
		"reason":      req.Reason,
		"approvals":   req.RequiredApprovals,
		"description": req.Action.Description,
	})
}

// SendEscalation announces escalation to a specific fallback destination.
func (n *WebhookNotifier) SendEscalation(ctx context.Context, req *types.ApprovalRequest, target string) error {
	return n.post(ctx, map[string]interface{}{
		"event":      "approval_escalated",
		"channel":    target,
		"request_id": req.RequestID,
		"agent_id":   req.AgentID,
		"action":     req.Action,
		"reason":     req.Reason,
	})
}

// SendResolution announces the final outcome.
func (n *WebhookNotifier) SendResolution(ctx context.Context, req *types.ApprovalRequest, status types.ApprovalStatus) error {
	return n.post(ctx, map[string]interface{}{
		"event":      "approval_resolved",
		"channel":    n.opts.Channel,
		"request_id": req.RequestID,
		"status":     string(status),
		"decided_by": req.DecidedBy,
	})
}

// post performs a single webhook delivery. Disabled notifiers return nil
// without touching the network.
func (n *WebhookNotifier) post(ctx context.Context, payload map[string]interface{}) error {
	if !n.Enabled() {
		return nil
	}

	payload["notification_id"] = uuid.NewString()
	payload["sent_at"] = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.opts.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range n.opts.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := n.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook request failed: status=%d", resp.StatusCode)
	}
	return nil
}
