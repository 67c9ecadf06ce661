package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/songzhibin97/gkit/generator"

	"github.com/songzhibin97/approval-engine/directory"
	"github.com/songzhibin97/approval-engine/events"
	"github.com/songzhibin97/approval-engine/notify"
	"github.com/songzhibin97/approval-engine/rules"
	"github.com/songzhibin97/approval-engine/storage"
	"github.com/songzhibin97/approval-engine/types"
)

// Standard error definitions. Every error returned by a transition wraps
// exactly one of them and is detected before anything is saved.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
)

// Timeline actions.
const (
	ActionCreated   = "created"
	ActionSubmitted = "submitted"
	ActionApproved  = "approved"
	ActionRejected  = "rejected"
	ActionDelegated = "delegated"
	ActionCancelled = "cancelled"
	ActionCompleted = "completed"
)

// Engine owns every workflow request. It is the request store and the
// approval step walker: all changes to status and CurrentStep go through it.
type Engine struct {
	store     storage.Storage
	generate  generator.Generator
	notifier  notify.Emitter
	eventBus  *events.EventBus
	ownsBus   bool
	router    *rules.Router
	directory directory.Directory
	now       func() time.Time
	newStepID func() string
	log       zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets the notification emitter. The default appends to the store.
func WithNotifier(n notify.Emitter) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithEventBus publishes lifecycle events on bus instead of a private one.
func WithEventBus(bus *events.EventBus) Option {
	return func(e *Engine) {
		e.eventBus = bus
	}
}

// WithRouter builds approval chains for drafts that carry no steps.
func WithRouter(r *rules.Router) Option {
	return func(e *Engine) {
		e.router = r
	}
}

// WithDirectory resolves approvers for routed steps and escalations.
func WithDirectory(d directory.Directory) Option {
	return func(e *Engine) {
		e.directory = d
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the engine logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// NewEngine creates a new Engine with the given ID generator and storage.
// A nil store defaults to an in-memory one.
func NewEngine(generate generator.Generator, store storage.Storage, opts ...Option) (*Engine, error) {
	if generate == nil {
		return nil, errors.New("generator is required")
	}
	if store == nil {
		store = storage.NewMemoryStorage()
	}

	e := &Engine{
		store:     store,
		generate:  generate,
		now:       time.Now,
		newStepID: uuid.NewString,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = notify.NewStoreEmitter(store, e.now)
	}
	if e.eventBus == nil {
		e.eventBus = events.NewEventBus()
		e.ownsBus = true
	}
	return e, nil
}

// SubscribeEvent subscribes an event handler to a lifecycle event type.
func (e *Engine) SubscribeEvent(eventType events.Type, handler events.EventHandler) events.Subscription {
	return e.eventBus.Subscribe(eventType, handler)
}

// Stop stops the engine's private event bus.
func (e *Engine) Stop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if e.ownsBus {
			e.eventBus.Stop()
		}
		return nil
	}
}

// load fetches a request and maps storage misses to ErrNotFound.
func (e *Engine) load(ctx context.Context, id uint64) (types.WorkflowRequest, error) {
	req, err := e.store.GetRequest(ctx, id)
	if errors.Is(err, storage.ErrRequestNotFound) {
		return types.WorkflowRequest{}, fmt.Errorf("%w: request %d", ErrNotFound, id)
	}
	if err != nil {
		return types.WorkflowRequest{}, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// mutate loads a request, lets fn change the private copy and saves it with
// an optimistic version check. When fn fails nothing is written.
func (e *Engine) mutate(ctx context.Context, id uint64, fn func(req *types.WorkflowRequest, now time.Time) error) (types.WorkflowRequest, error) {
	select {
	case <-ctx.Done():
		return types.WorkflowRequest{}, ctx.Err()
	default:
	}

	req, err := e.load(ctx, id)
	if err != nil {
		return types.WorkflowRequest{}, err
	}
	expected := req.Version
	now := e.now()
	if err := fn(&req, now); err != nil {
		return types.WorkflowRequest{}, err
	}
	req.Version = expected + 1
	req.UpdatedAt = now

	if err := e.store.UpdateRequest(ctx, req, expected); err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			return types.WorkflowRequest{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		return types.WorkflowRequest{}, fmt.Errorf("failed to save request: %w", err)
	}
	return req, nil
}

// notify hands a notification to the emitter. Failures are logged only.
func (e *Engine) notify(ctx context.Context, n types.Notification) {
	if n.UserID == "" {
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = e.now()
	}
	if err := e.notifier.AddNotification(ctx, n); err != nil {
		e.log.Warn().Err(err).
			Str("user_id", n.UserID).
			Uint64("request_id", n.RequestID).
			Msg("notification: failed to deliver (non-fatal)")
	}
}

// publishEvent publishes a lifecycle event to the event bus.
func (e *Engine) publishEvent(ctx context.Context, eventType events.Type, req types.WorkflowRequest, stepID, actorID string, data map[string]interface{}) {
	err := e.eventBus.Publish(ctx, events.Event{
		Type:       eventType,
		RequestID:  req.ID,
		StepID:     stepID,
		ActorID:    actorID,
		Status:     req.Status,
		OccurredAt: req.UpdatedAt,
		Data:       data,
	})
	if err != nil && !errors.Is(err, events.ErrNoHandler) {
		e.log.Debug().Err(err).Str("event", string(eventType)).Uint64("request_id", req.ID).Msg("event not published")
	}
}

// actionableStep resolves stepID to the active step of req and checks that
// actor may act on it.
func actionableStep(req *types.WorkflowRequest, actor types.User, stepID string) (*types.ApprovalStep, int, error) {
	idx := req.StepIndex(stepID)
	if idx < 0 {
		return nil, -1, fmt.Errorf("%w: step %s of request %d", ErrNotFound, stepID, req.ID)
	}
	if !req.Status.Actionable() {
		return nil, idx, fmt.Errorf("%w: request %d is %s", ErrInvalidState, req.ID, req.Status)
	}
	active, activeIdx, err := req.ActiveStep()
	if err != nil {
		return nil, idx, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if activeIdx != idx {
		return nil, idx, fmt.Errorf("%w: step %s is not the active step of request %d", ErrInvalidState, stepID, req.ID)
	}
	if !active.Entitled(actor.ID) {
		return nil, idx, fmt.Errorf("%w: user %q may not act on step %s", ErrUnauthorized, actor.ID, stepID)
	}
	return active, idx, nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
