package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/songzhibin97/approval-engine/types"
)

// Emitter receives notifications produced by request transitions. Callers
// treat it as fire-and-forget: a failed delivery never undoes a transition.
type Emitter interface {
	AddNotification(ctx context.Context, n types.Notification) error
}

// EmitterFunc is a function adapter for Emitter.
type EmitterFunc func(ctx context.Context, n types.Notification) error

// AddNotification implements Emitter.
func (f EmitterFunc) AddNotification(ctx context.Context, n types.Notification) error {
	return f(ctx, n)
}

// Inbox is the persistence side an emitter appends to.
type Inbox interface {
	AddNotification(ctx context.Context, n types.Notification) error
}

// StoreEmitter appends notifications to an Inbox, filling in the ID and
// timestamp when the caller left them empty.
type StoreEmitter struct {
	inbox Inbox
	now   func() time.Time
}

// NewStoreEmitter creates a StoreEmitter. A nil clock defaults to time.Now.
func NewStoreEmitter(inbox Inbox, now func() time.Time) *StoreEmitter {
	if now == nil {
		now = time.Now
	}
	return &StoreEmitter{inbox: inbox, now: now}
}

// AddNotification implements Emitter.
func (e *StoreEmitter) AddNotification(ctx context.Context, n types.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = e.now()
	}
	return e.inbox.AddNotification(ctx, n)
}

// LogEmitter writes notifications to a zerolog logger.
type LogEmitter struct {
	log zerolog.Logger
}

// NewLogEmitter creates a LogEmitter.
func NewLogEmitter(log zerolog.Logger) *LogEmitter {
	return &LogEmitter{log: log}
}

// AddNotification implements Emitter.
func (e *LogEmitter) AddNotification(_ context.Context, n types.Notification) error {
	e.log.Info().
		Str("user_id", n.UserID).
		Uint64("request_id", n.RequestID).
		Str("type", string(n.Type)).
		Bool("important", n.Important).
		Str("title", n.Title).
		Msg(n.Message)
	return nil
}

// Multi fans a notification out to every emitter and joins their errors.
type Multi []Emitter

// AddNotification implements Emitter.
func (m Multi) AddNotification(ctx context.Context, n types.Notification) error {
	var errs []error
	for _, e := range m {
		if err := e.AddNotification(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
