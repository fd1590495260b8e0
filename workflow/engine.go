package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/songzhibin97/gkit/generator"

	"github.com/ghantakiran/ShieldOps-sub011/events"
	"github.com/ghantakiran/ShieldOps-sub011/notify"
	"github.com/ghantakiran/ShieldOps-sub011/policy"
	"github.com/ghantakiran/ShieldOps-sub011/storage"
	"github.com/ghantakiran/ShieldOps-sub011/types"
)

// Standard error definitions
var (
	ErrRequestIDRequired = errors.New("request ID is required")
	ErrDuplicateRequest  = errors.New("approval request already in flight")
)

// Per-request terminal-state cell values. The cell is the single
// arbitration point: whichever of approve, deny or timer exhaustion swaps
// it first owns the outcome.
const (
	cellPending int32 = iota
	cellApproved
	cellDenied
	cellEscalated
)

func cellOf(status types.ApprovalStatus) int32 {
	switch status {
	case types.StatusApproved:
		return cellApproved
	case types.StatusDenied:
		return cellDenied
	default:
		return cellEscalated
	}
}

// Config holds the escalation configuration shared by every request.
type Config struct {
	// Timeout is the primary window during which the original approver
	// may act before escalation begins.
	Timeout time.Duration

	// EscalationTimeout is the wait window per escalation tier, applied
	// identically to every tier.
	EscalationTimeout time.Duration

	// EscalationTargets is the ordered chain of fallback responder
	// handles. Empty means a primary timeout finalizes immediately.
	EscalationTargets []string
}

// pendingEntry is the in-flight state for one request: the request itself,
// the terminal-state cell and a one-shot channel signaling the waiter.
type pendingEntry struct {
	req   *types.ApprovalRequest
	state int32
	done  chan types.ApprovalStatus
}

// claim attempts to win the terminal-state cell for status.
func (e *pendingEntry) claim(status types.ApprovalStatus) bool {
	return atomic.CompareAndSwapInt32(&e.state, cellPending, cellOf(status))
}

// ApprovalWorkflow gates risky actions behind human sign-off. RequestApproval
// blocks through the primary window and the escalation cascade; Approve and
// Deny are called from other goroutines to unblock it.
type ApprovalWorkflow struct {
	config   Config
	policy   *policy.RiskPolicy
	notifier notify.Notifier
	storage  storage.Storage
	bus      *events.Bus
	generate generator.Generator
	mu       sync.RWMutex
	pending  map[string]*pendingEntry
}

// Option defines functional options for configuring an ApprovalWorkflow.
type Option func(*ApprovalWorkflow)

// WithNotifier sets the outbound notifier. Nil disables notifications.
func WithNotifier(n notify.Notifier) Option {
	return func(w *ApprovalWorkflow) { w.notifier = n }
}

// WithStorage sets the archive storage backend.
func WithStorage(s storage.Storage) Option {
	return func(w *ApprovalWorkflow) {
		if s != nil {
			w.storage = s
		}
	}
}

// WithPolicy sets a custom risk policy.
func WithPolicy(p *policy.RiskPolicy) Option {
	return func(w *ApprovalWorkflow) {
		if p != nil {
			w.policy = p
		}
	}
}

// WithEventBus sets a custom lifecycle event bus.
func WithEventBus(bus *events.Bus) Option {
	return func(w *ApprovalWorkflow) {
		if bus != nil {
			w.bus = bus
		}
	}
}

// WithGenerator sets the audit entry ID generator.
func WithGenerator(g generator.Generator) Option {
	return func(w *ApprovalWorkflow) {
		if g != nil {
			w.generate = g
		}
	}
}

// NewApprovalWorkflow creates an ApprovalWorkflow. Storage defaults to
// in-memory, the policy to the standard risk lookup, and audit IDs to a
// snowflake generator.
func NewApprovalWorkflow(config Config, options ...Option) *ApprovalWorkflow {
	w := &ApprovalWorkflow{
		config:   config,
		policy:   policy.NewRiskPolicy(),
		storage:  storage.NewMemoryStorage(),
		bus:      events.NewBus(),
		generate: generator.NewSnowflake(time.Now().Add(-time.Second), 1),
		pending:  make(map[string]*pendingEntry),
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// SubscribeEvent subscribes an event handler to a lifecycle event type.
func (w *ApprovalWorkflow) SubscribeEvent(eventType string, handler events.Handler) {
	w.bus.Subscribe(eventType, handler)
}

// RequiresApproval reports whether the risk level requires human sign-off.
func (w *ApprovalWorkflow) RequiresApproval(level types.RiskLevel) bool {
	return w.policy.RequiresApproval(level)
}

// RequiredApprovals returns how many approvals the risk level takes.
func (w *ApprovalWorkflow) RequiredApprovals(level types.RiskLevel) int {
	return w.policy.RequiredApprovals(level)
}

// EvaluateAction applies the full policy, rules included, to an action.
func (w *ApprovalWorkflow) EvaluateAction(action types.Action) (bool, int) {
	return w.policy.EvaluateAction(action)
}

// RequestApproval registers the request and blocks until a decision arrives,
// every escalation tier is exhausted, or ctx is canceled. The returned
// status is terminal. Independent requests never block one another.
func (w *ApprovalWorkflow) RequestApproval(ctx context.Context, req *types.ApprovalRequest) (types.ApprovalStatus, error) {
	if req == nil || req.RequestID == "" {
		return "", ErrRequestIDRequired
	}
	if req.RequiredApprovals <= 0 {
		req.RequiredApprovals = 1
		if n := w.policy.RequiredApprovals(req.Action.RiskLevel); n > 0 {
			req.RequiredApprovals = n
		}
	}
	req.Status = types.StatusPending
	req.CreatedAt = time.Now().UnixMilli()

	entry := &pendingEntry{req: req, done: make(chan types.ApprovalStatus, 1)}
	w.mu.Lock()
	if _, exists := w.pending[req.RequestID]; exists {
		w.mu.Unlock()
		return "", fmt.Errorf("%w: id=%s", ErrDuplicateRequest, req.RequestID)
	}
	w.pending[req.RequestID] = entry
	w.mu.Unlock()
	defer w.unregister(req.RequestID)

	start := time.Now()
	w.archive(ctx, entry)
	if w.notifier != nil {
		_ = w.notifier.SendRequest(ctx, req)
	}
	w.publish(ctx, events.TypeRequestCreated, req.RequestID, map[string]interface{}{
		"agent_id":   req.AgentID,
		"risk_level": string(req.Action.RiskLevel),
	})

	// Primary window.
	status, err := w.wait(ctx, entry, w.config.Timeout)
	if err != nil {
		return w.abort(entry, start, err)
	}
	if status.Terminal() {
		return w.finish(ctx, entry, status, start), nil
	}

	// Escalation cascade. A decision during tier k's window short-circuits
	// all later tiers.
	for _, target := range w.config.EscalationTargets {
		// A decision racing the previous timer must not trigger another
		// escalation notification.
		if atomic.LoadInt32(&entry.state) != cellPending {
			return w.finish(ctx, entry, <-entry.done, start), nil
		}
		if w.notifier != nil {
			_ = w.notifier.SendEscalation(ctx, req, target)
		}
		w.publish(ctx, events.TypeEscalated, req.RequestID, map[string]interface{}{
			"target": target,
		})

		status, err = w.wait(ctx, entry, w.config.EscalationTimeout)
		if err != nil {
			return w.abort(entry, start, err)
		}
		if status.Terminal() {
			return w.finish(ctx, entry, status, start), nil
		}
	}

	return w.finish(ctx, entry, w.exhaust(entry), start), nil
}

// Approve resolves a pending request as approved. Returns false for an
// unknown ID or a request that already reached a terminal state.
func (w *ApprovalWorkflow) Approve(ctx context.Context, requestID, approver string) bool {
	return w.decide(ctx, requestID, types.StatusApproved, approver, "")
}

// Deny resolves a pending request as denied. Returns false for an unknown ID
// or a request that already reached a terminal state.
func (w *ApprovalWorkflow) Deny(ctx context.Context, requestID, approver, reason string) bool {
	return w.decide(ctx, requestID, types.StatusDenied, approver, reason)
}

// decide arbitrates an external decision against the terminal-state cell.
// Exactly one concurrent caller wins; the winner records the decision
// metadata before signaling the waiter.
func (w *ApprovalWorkflow) decide(ctx context.Context, requestID string, status types.ApprovalStatus, decidedBy, reason string) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}

	w.mu.RLock()
	entry, ok := w.pending[requestID]
	w.mu.RUnlock()
	if !ok {
		return false
	}

	if !entry.claim(status) {
		return false
	}

	w.mu.Lock()
	entry.req.Status = status
	entry.req.DecidedBy = decidedBy
	entry.req.DecisionReason = reason
	w.mu.Unlock()

	entry.done <- status
	return true
}

// GetRequest returns a snapshot of a request, in-flight or archived.
func (w *ApprovalWorkflow) GetRequest(ctx context.Context, requestID string) (types.ApprovalRequest, error) {
	w.mu.RLock()
	entry, ok := w.pending[requestID]
	if ok {
		req := *entry.req
		w.mu.RUnlock()
		return req, nil
	}
	w.mu.RUnlock()

	return w.storage.GetRequest(ctx, requestID)
}

// Audits returns the audit entries recorded for a request.
func (w *ApprovalWorkflow) Audits(ctx context.Context, requestID string) ([]types.AuditEntry, error) {
	return w.storage.ListAudits(ctx, requestID)
}

// Stop gracefully stops the workflow's event bus.
func (w *ApprovalWorkflow) Stop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		w.bus.Stop()
		return nil
	}
}

// wait races the resolution signal against a fresh timer. The timer is
// stopped the instant a decision or cancellation arrives so the next tier
// never fires spuriously.
func (w *ApprovalWorkflow) wait(ctx context.Context, entry *pendingEntry, d time.Duration) (types.ApprovalStatus, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case status := <-entry.done:
		return status, nil
	case <-timer.C:
		return types.StatusPending, nil
	case <-ctx.Done():
		return types.StatusPending, ctx.Err()
	}
}

// exhaust finalizes a request whose every wait window expired. If a decision
// raced the final swap, the decision wins and its status is returned.
func (w *ApprovalWorkflow) exhaust(entry *pendingEntry) types.ApprovalStatus {
	if entry.claim(types.StatusEscalated) {
		w.mu.Lock()
		entry.req.Status = types.StatusEscalated
		w.mu.Unlock()
		return types.StatusEscalated
	}
	return <-entry.done
}

// finish records the terminal outcome: resolution notification, lifecycle
// event, archive and audit trail. All side channels are best effort.
func (w *ApprovalWorkflow) finish(ctx context.Context, entry *pendingEntry, status types.ApprovalStatus, start time.Time) types.ApprovalStatus {
	w.mu.Lock()
	entry.req.ResolvedAt = time.Now().UnixMilli()
	w.mu.Unlock()

	if w.notifier != nil {
		_ = w.notifier.SendResolution(ctx, entry.req, status)
	}
	w.publish(ctx, events.TypeResolved, entry.req.RequestID, map[string]interface{}{
		"status":     string(status),
		"decided_by": entry.req.DecidedBy,
	})
	w.archive(ctx, entry)
	w.audit(ctx, entry, status, start)

	return status
}

// abort finalizes a request whose caller context was canceled, so that late
// Approve and Deny calls are still rejected as no-ops.
func (w *ApprovalWorkflow) abort(entry *pendingEntry, start time.Time, err error) (types.ApprovalStatus, error) {
	status := w.exhaust(entry)
	ctx := context.Background()
	w.archive(ctx, entry)
	w.audit(ctx, entry, status, start)
	return status, err
}

// archive persists the current request snapshot, reporting failures only as
// lifecycle events.
func (w *ApprovalWorkflow) archive(ctx context.Context, entry *pendingEntry) {
	w.mu.RLock()
	req := *entry.req
	w.mu.RUnlock()

	if err := w.storage.SaveRequest(ctx, req); err != nil {
		w.publish(ctx, events.TypeErrorOccurred, req.RequestID, map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// audit appends the resolution to the audit trail, best effort.
func (w *ApprovalWorkflow) audit(ctx context.Context, entry *pendingEntry, status types.ApprovalStatus, start time.Time) {
	id, err := w.generate.NextID()
	if err != nil {
		id = 0
	}

	w.mu.RLock()
	auditEntry := types.AuditEntry{
		ID:             id,
		RequestID:      entry.req.RequestID,
		AgentID:        entry.req.AgentID,
		ActionType:     entry.req.Action.Type,
		Outcome:        status,
		DecidedBy:      entry.req.DecidedBy,
		DecisionReason: entry.req.DecisionReason,
		ResponseTimeMs: time.Since(start).Milliseconds(),
		CreatedAt:      time.Now(),
	}
	w.mu.RUnlock()

	if err := w.storage.SaveAudit(ctx, auditEntry); err != nil {
		w.publish(ctx, events.TypeErrorOccurred, auditEntry.RequestID, map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// publish emits a lifecycle event asynchronously.
func (w *ApprovalWorkflow) publish(ctx context.Context, eventType, requestID string, data map[string]interface{}) {
	go func() {
		_ = w.bus.Publish(ctx, events.Event{
			Type:      eventType,
			RequestID: requestID,
			Data:      data,
		})
	}()
}

// unregister drops a resolved entry from the in-flight registry.
func (w *ApprovalWorkflow) unregister(requestID string) {
	w.mu.Lock()
	delete(w.pending, requestID)
	w.mu.Unlock()
}
