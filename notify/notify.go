// Package notify announces approval lifecycle transitions to an external
// messaging system. Delivery is best effort: the workflow discards every
// error returned here, so an unreachable destination can delay or change
// nothing about the approval outcome.
package notify

import (
	"context"

	"github.com/ghantakiran/ShieldOps-sub011/types"
)

// Notifier is the outbound side channel for approval announcements.
// Implementations must be safe for concurrent use and must not retry.
type Notifier interface {
	// SendRequest announces a new pending approval to the primary destination.
	SendRequest(ctx context.Context, req *types.ApprovalRequest) error

	// SendEscalation announces escalation to a specific fallback destination.
	SendEscalation(ctx context.Context, req *types.ApprovalRequest, target string) error

	// SendResolution announces the final outcome.
	SendResolution(ctx context.Context, req *types.ApprovalRequest, status types.ApprovalStatus) error
}
