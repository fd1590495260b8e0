package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/ghantakiran/ShieldOps-sub011/types"
)

// MemoryStorage is an in-memory implementation of the Storage interface.
type MemoryStorage struct {
	requests map[string]types.ApprovalRequest
	audits   map[string][]types.AuditEntry
	mu       sync.RWMutex
}

// NewMemoryStorage creates a new MemoryStorage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		requests: make(map[string]types.ApprovalRequest),
		audits:   make(map[string][]types.AuditEntry),
	}
}

// SaveRequest saves an approval request to memory.
func (s *MemoryStorage) SaveRequest(ctx context.Context, req types.ApprovalRequest) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.requests[req.RequestID] = req
		return struct{}{}, nil
	})
	return err
}

// GetRequest retrieves an approval request from memory.
func (s *MemoryStorage) GetRequest(ctx context.Context, id string) (types.ApprovalRequest, error) {
	return withContext(ctx, func() (types.ApprovalRequest, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		req, ok := s.requests[id]
		if !ok {
			return types.ApprovalRequest{}, fmt.Errorf("%w: id=%s", ErrRequestNotFound, id)
		}
		return req, nil
	})
}

// ListPending lists all requests still pending.
func (s *MemoryStorage) ListPending(ctx context.Context) ([]types.ApprovalRequest, error) {
	return withContext(ctx, func() ([]types.ApprovalRequest, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		var pending []types.ApprovalRequest
		for _, req := range s.requests {
			if req.Status == types.StatusPending {
				pending = append(pending, req)
			}
		}
		return pending, nil
	})
}

// SaveAudit appends an audit entry.
func (s *MemoryStorage) SaveAudit(ctx context.Context, entry types.AuditEntry) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.audits[entry.RequestID] = append(s.audits[entry.RequestID], entry)
		return struct{}{}, nil
	})
	return err
}

// ListAudits lists the audit entries recorded for a request.
func (s *MemoryStorage) ListAudits(ctx context.Context, requestID string) ([]types.AuditEntry, error) {
	return withContext(ctx, func() ([]types.AuditEntry, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		entries := s.audits[requestID]
		out := make([]types.AuditEntry, len(entries))
		copy(out, entries)
		return out, nil
	})
}

// ClearResolved removes archived requests that reached a terminal state.
func (s *MemoryStorage) ClearResolved(ctx context.Context) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for id, req := range s.requests {
			if req.Status.Terminal() {
				delete(s.requests, id)
			}
		}
		return struct{}{}, nil
	})
	return err
}
