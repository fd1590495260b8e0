package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ghantakiran/ShieldOps-sub011/types"
)

const (
	requestPrefix = "approval:request:"
	auditPrefix   = "approval:audit:"
	pendingSetKey = "approval:pending"
)

// RedisStorage is a Redis-backed implementation of the Storage interface.
// Requests live at approval:request:<id>, pending IDs in the
// approval:pending set, and audit entries in per-request lists.
type RedisStorage struct {
	client *redis.Client
}

// RedisOptions extends redis.Options with additional configuration.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	IdleTimeout  time.Duration
}

// NewRedisStorage creates a new RedisStorage instance with configurable options.
func NewRedisStorage(opts RedisOptions) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		IdleTimeout:  opts.IdleTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return &RedisStorage{client: client}, nil
}

// withContextError handles context cancellation for operations that only return an error.
func withContextError(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}

// SaveRequest saves an approval request to Redis and keeps the pending set
// index in sync with the request's status.
func (s *RedisStorage) SaveRequest(ctx context.Context, req types.ApprovalRequest) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to marshal request %s: %v", req.RequestID, err)
		}

		key := requestPrefix + req.RequestID
		pipe := s.client.Pipeline()
		pipe.Set(ctx, key, data, 0)
		if req.Status == types.StatusPending {
			pipe.SAdd(ctx, pendingSetKey, req.RequestID)
		} else {
			pipe.SRem(ctx, pendingSetKey, req.RequestID)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to set %s in Redis: %v", key, err)
		}
		return nil
	})
}

// GetRequest retrieves an approval request from Redis.
func (s *RedisStorage) GetRequest(ctx context.Context, id string) (types.ApprovalRequest, error) {
	return withContext(ctx, func() (types.ApprovalRequest, error) {
		key := requestPrefix + id
		data, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return types.ApprovalRequest{}, fmt.Errorf("%w: id=%s", ErrRequestNotFound, id)
		} else if err != nil {
			return types.ApprovalRequest{}, fmt.Errorf("failed to get %s from Redis: %v", key, err)
		}

		var req types.ApprovalRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return types.ApprovalRequest{}, fmt.Errorf("failed to unmarshal %s: %v", key, err)
		}
		return req, nil
	})
}

// ListPending lists all requests indexed in the pending set.
func (s *RedisStorage) ListPending(ctx context.Context) ([]types.ApprovalRequest, error) {
	return withContext(ctx, func() ([]types.ApprovalRequest, error) {
		ids, err := s.client.SMembers(ctx, pendingSetKey).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read pending set: %v", err)
		}

		var pending []types.ApprovalRequest
		for _, id := range ids {
			req, err := s.GetRequest(ctx, id)
			if err != nil {
				// Stale index entry, drop it.
				s.client.SRem(ctx, pendingSetKey, id)
				continue
			}
			pending = append(pending, req)
		}
		return pending, nil
	})
}

// SaveAudit appends an audit entry to the request's audit list.
func (s *RedisStorage) SaveAudit(ctx context.Context, entry types.AuditEntry) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal audit entry %d: %v", entry.ID, err)
		}
		key := auditPrefix + entry.RequestID
		if err := s.client.RPush(ctx, key, data).Err(); err != nil {
			return fmt.Errorf("failed to append %s in Redis: %v", key, err)
		}
		return nil
	})
}

// ListAudits lists the audit entries recorded for a request.
func (s *RedisStorage) ListAudits(ctx context.Context, requestID string) ([]types.AuditEntry, error) {
	return withContext(ctx, func() ([]types.AuditEntry, error) {
		key := auditPrefix + requestID
		raw, err := s.client.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s from Redis: %v", key, err)
		}

		entries := make([]types.AuditEntry, 0, len(raw))
		for _, item := range raw {
			var entry types.AuditEntry
			if err := json.Unmarshal([]byte(item), &entry); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit entry in %s: %v", key, err)
			}
			entries = append(entries, entry)
		}
		return entries, nil
	})
}

// ClearResolved removes archived requests that reached a terminal state.
func (s *RedisStorage) ClearResolved(ctx context.Context) error {
	return withContextError(ctx, func() error {
		keys, err := s.client.Keys(ctx, requestPrefix+"*").Result()
		if err != nil {
			return fmt.Errorf("failed to scan request keys: %v", err)
		}
		if len(keys) == 0 {
			return nil
		}

		pipe := s.client.Pipeline()
		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if err == redis.Nil {
				continue
			} else if err != nil {
				return fmt.Errorf("failed to get %s: %v", key, err)
			}

			var req types.ApprovalRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("failed to unmarshal %s: %v", key, err)
			}
			if req.Status.Terminal() {
				pipe.Del(ctx, key)
				pipe.Del(ctx, auditPrefix+req.RequestID)
			}
		}

		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to execute pipeline for deletion: %v", err)
		}
		return nil
	})
}

// Close closes the Redis client connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
