package storage

import (
	"context"
	"errors"

	"github.com/ghantakiran/ShieldOps-sub011/types"
)

// Errors
var (
	ErrRequestNotFound = errors.New("approval request not found")
)

// Storage archives approval requests and their audit trail. It is not a
// recovery log: in-flight waits live only in the workflow's memory.
type Storage interface {
	// SaveRequest saves an approval request record, overwriting any
	// previous record with the same ID.
	SaveRequest(ctx context.Context, req types.ApprovalRequest) error

	// GetRequest retrieves an approval request by ID.
	GetRequest(ctx context.Context, id string) (types.ApprovalRequest, error)

	// ListPending lists all requests still in the pending state.
	ListPending(ctx context.Context) ([]types.ApprovalRequest, error)

	// SaveAudit appends an audit entry for a resolved request.
	SaveAudit(ctx context.Context, entry types.AuditEntry) error

	// ListAudits lists the audit entries recorded for a request.
	ListAudits(ctx context.Context, requestID string) ([]types.AuditEntry, error)
}

// withContext is a standalone generic helper function.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
		return fn()
	}
}
