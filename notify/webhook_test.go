package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ghantakiran/ShieldOps-sub011/types"
)

func sampleRequest() *types.ApprovalRequest {
	return &types.ApprovalRequest{
		RequestID:         "req-1",
		AgentID:           "agent-1",
		Reason:            "scaling production",
		RequiredApprovals: 1,
		Status:            types.StatusPending,
		Action: types.Action{
			ID:          "act-1",
			Type:        "scale_deployment",
			Target:      "api-server",
			Environment: "production",
			RiskLevel:   types.RiskHigh,
			Description: "scale api-server to 20 replicas",
		},
	}
}

func TestWebhookNotifierDisabled(t *testing.T) {
	n := NewWebhookNotifier(WebhookOptions{})
	assert.False(t, n.Enabled())

	ctx := context.Background()
	req := sampleRequest()
	assert.NoError(t, n.SendRequest(ctx, req))
	assert.NoError(t, n.SendEscalation(ctx, req, "#oncall"))
	assert.NoError(t, n.SendResolution(ctx, req, types.StatusApproved))
}

func TestWebhookNotifierSends(t *testing.T) {
	var mu sync.Mutex
	var payloads []map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var payload map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		mu.Lock()
		payloads = append(payloads, payload)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookOptions{
		URL:     server.URL,
		Channel: "#approvals",
	})
	assert.True(t, n.Enabled())

	ctx := context.Background()
	req := sampleRequest()
	assert.NoError(t, n.SendRequest(ctx, req))
	assert.NoError(t, n.SendEscalation(ctx, req, "#oncall"))
	assert.NoError(t, n.SendResolution(ctx, req, types.StatusDenied))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, payloads, 3)

	assert.Equal(t, "approval_requested", payloads[0]["event"])
	assert.Equal(t, "#approvals", payloads[0]["channel"])
	assert.Equal(t, "req-1", payloads[0]["request_id"])
	assert.NotEmpty(t, payloads[0]["notification_id"])

	assert.Equal(t, "approval_escalated", payloads[1]["event"])
	assert.Equal(t, "#oncall", payloads[1]["channel"])

	assert.Equal(t, "approval_resolved", payloads[2]["event"])
	assert.Equal(t, "denied", payloads[2]["status"])
}

func TestWebhookNotifierCustomHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookOptions{
		URL:     server.URL,
		Headers: map[string]string{"Authorization": "Bearer token-1"},
	})
	assert.NoError(t, n.SendRequest(context.Background(), sampleRequest()))
}

func TestWebhookNotifierNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookOptions{URL: server.URL})
	err := n.SendRequest(context.Background(), sampleRequest())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status=403")
}

func TestWebhookNotifierTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	n := NewWebhookNotifier(WebhookOptions{URL: server.URL, Timeout: time.Second})
	assert.Error(t, n.SendRequest(context.Background(), sampleRequest()))
	assert.Error(t, n.SendEscalation(context.Background(), sampleRequest(), "#oncall"))
}
