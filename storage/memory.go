package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/songzhibin97/approval-engine/types"
)

// MemoryStorage is an in-memory implementation of the Storage interface.
// Requests are cloned on the way in and out so callers never share step slices
// with the store.
type MemoryStorage struct {
	requests      map[uint64]types.WorkflowRequest
	notifications map[string]types.Notification
	mu            sync.RWMutex
}

// NewMemoryStorage creates a new MemoryStorage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		requests:      make(map[uint64]types.WorkflowRequest),
		notifications: make(map[string]types.Notification),
	}
}

// getItem is a standalone generic helper function.
func getItem[K comparable, T any](ctx context.Context, mu *sync.RWMutex, m map[K]T, id K, errNotFound error) (T, error) {
	return withContext(ctx, func() (T, error) {
		mu.RLock()
		defer mu.RUnlock()
		item, ok := m[id]
		if !ok {
			var zero T
			return zero, fmt.Errorf("%w: id=%v", errNotFound, id)
		}
		return item, nil
	})
}

// CreateRequest stores a new request in memory.
func (s *MemoryStorage) CreateRequest(ctx context.Context, req types.WorkflowRequest) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.requests[req.ID]; ok {
			return fmt.Errorf("%w: id=%d", ErrRequestExists, req.ID)
		}
		s.requests[req.ID] = req.Clone()
		return nil
	})
}

// GetRequest retrieves a request from memory.
func (s *MemoryStorage) GetRequest(ctx context.Context, id uint64) (types.WorkflowRequest, error) {
	req, err := getItem(ctx, &s.mu, s.requests, id, ErrRequestNotFound)
	if err != nil {
		return types.WorkflowRequest{}, err
	}
	return req.Clone(), nil
}

// UpdateRequest replaces a request if nobody else saved it in the meantime.
func (s *MemoryStorage) UpdateRequest(ctx context.Context, req types.WorkflowRequest, expectedVersion int64) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		current, ok := s.requests[req.ID]
		if !ok {
			return fmt.Errorf("%w: id=%d", ErrRequestNotFound, req.ID)
		}
		if current.Version != expectedVersion {
			return fmt.Errorf("%w: id=%d stored=%d expected=%d", ErrVersionConflict, req.ID, current.Version, expectedVersion)
		}
		s.requests[req.ID] = req.Clone()
		return nil
	})
}

// ListRequests returns copies of all requests ordered by ID.
func (s *MemoryStorage) ListRequests(ctx context.Context) ([]types.WorkflowRequest, error) {
	return withContext(ctx, func() ([]types.WorkflowRequest, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		out := make([]types.WorkflowRequest, 0, len(s.requests))
		for _, req := range s.requests {
			out = append(out, req.Clone())
		}
		sortRequests(out)
		return out, nil
	})
}

// ClearClosed removes cancelled or completed requests.
func (s *MemoryStorage) ClearClosed(ctx context.Context, before time.Time) (int, error) {
	return withContext(ctx, func() (int, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		removed := 0
		for id, req := range s.requests {
			if closed(req, before) {
				delete(s.requests, id)
				removed++
			}
		}
		return removed, nil
	})
}

// AddNotification stores a notification in memory.
func (s *MemoryStorage) AddNotification(ctx context.Context, n types.Notification) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.notifications[n.ID] = n
		return nil
	})
}

// ListNotifications returns the notifications addressed to userID.
func (s *MemoryStorage) ListNotifications(ctx context.Context, userID string) ([]types.Notification, error) {
	return withContext(ctx, func() ([]types.Notification, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		var out []types.Notification
		for _, n := range s.notifications {
			if n.UserID == userID {
				out = append(out, n)
			}
		}
		sortNotifications(out)
		return out, nil
	})
}

// MarkNotificationRead flags a notification as read.
func (s *MemoryStorage) MarkNotificationRead(ctx context.Context, userID, id string) error {
	return withContextError(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		n, ok := s.notifications[id]
		if !ok || n.UserID != userID {
			return fmt.Errorf("%w: id=%s", ErrNotificationNotFound, id)
		}
		n.Read = true
		s.notifications[id] = n
		return nil
	})
}
