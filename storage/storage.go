package storage

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/songzhibin97/approval-engine/types"
)

// Errors
var (
	ErrRequestNotFound      = errors.New("request not found")
	ErrRequestExists        = errors.New("request already exists")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrVersionConflict      = errors.New("request version conflict")
)

// Storage defines the interface for persisting workflow requests and the
// notifications emitted for them.
type Storage interface {
	// CreateRequest persists a new request; it fails if the ID is taken.
	CreateRequest(ctx context.Context, req types.WorkflowRequest) error

	// GetRequest retrieves a request by ID.
	GetRequest(ctx context.Context, id uint64) (types.WorkflowRequest, error)

	// UpdateRequest replaces a stored request when its stored version still
	// equals expectedVersion, otherwise it returns ErrVersionConflict.
	UpdateRequest(ctx context.Context, req types.WorkflowRequest, expectedVersion int64) error

	// ListRequests returns every stored request ordered by ID.
	ListRequests(ctx context.Context) ([]types.WorkflowRequest, error)

	// ClearClosed removes cancelled and completed requests last updated before the cutoff.
	ClearClosed(ctx context.Context, before time.Time) (int, error)

	// AddNotification appends a notification to its user's inbox.
	AddNotification(ctx context.Context, n types.Notification) error

	// ListNotifications returns a user's notifications, newest first.
	ListNotifications(ctx context.Context, userID string) ([]types.Notification, error)

	// MarkNotificationRead flags one of the user's notifications as read.
	MarkNotificationRead(ctx context.Context, userID, id string) error
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

// withContextError handles context cancellation for operations that only return an error.
func withContextError(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}

func closed(req types.WorkflowRequest, before time.Time) bool {
	return (req.Status == types.StatusCancelled || req.Status == types.StatusCompleted) && req.UpdatedAt.Before(before)
}

func sortRequests(reqs []types.WorkflowRequest) {
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].ID < reqs[j].ID })
}

// sortNotifications orders newest first; equal timestamps fall back to ID
// so listings from map-backed stores are repeatable.
func sortNotifications(ns []types.Notification) {
	sort.Slice(ns, func(i, j int) bool {
		if !ns[i].Timestamp.Equal(ns[j].Timestamp) {
			return ns[i].Timestamp.After(ns[j].Timestamp)
		}
		return ns[i].ID < ns[j].ID
	})
}
