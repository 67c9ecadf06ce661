package events

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/songzhibin97/approval-engine/types"
)

var (
	// ErrBusClosed indicates the event bus has been closed.
	ErrBusClosed = errors.New("event bus is closed")
	// ErrChannelFull indicates the event channel is full and cannot accept more events.
	ErrChannelFull = errors.New("event channel is full")
	// ErrNoHandler indicates no handlers are registered for the event type.
	ErrNoHandler = errors.New("no handlers registered for event type")
)

// Type names a request lifecycle event.
type Type string

const (
	RequestCreated   Type = "request_created"
	RequestSubmitted Type = "request_submitted"
	StepApproved     Type = "step_approved"
	StepRejected     Type = "step_rejected"
	StepDelegated    Type = "step_delegated"
	RequestEscalated Type = "request_escalated"
	RequestCancelled Type = "request_cancelled"
	RequestCompleted Type = "request_completed"

	// All subscribes a handler to every event type.
	All Type = "*"
)

// Event describes one state transition of a workflow request.
type Event struct {
	Type       Type
	RequestID  uint64
	StepID     string
	ActorID    string
	Status     types.RequestStatus
	OccurredAt time.Time
	Data       map[string]interface{}
}

// EventHandler defines the interface for handling events.
type EventHandler interface {
	Handle(ctx context.Context, event Event) error
}

// EventHandlerFunc is a function adapter for EventHandler.
type EventHandlerFunc func(ctx context.Context, event Event) error

// Handle implements the EventHandler interface.
func (f EventHandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription identifies a registered handler.
type Subscription struct {
	Type Type
	id   uint64
}

type subscriber struct {
	id      uint64
	handler EventHandler
}

// EventBus manages event subscriptions and publishing.
type EventBus struct {
	handlers     map[Type][]subscriber
	nextID       uint64
	mu           sync.RWMutex
	eventCh      chan Event
	errHandler   func(event Event, err error)
	errHandlerMu sync.RWMutex
	wg           sync.WaitGroup
	closed       bool
	closeMu      sync.RWMutex
}

// EventBusOption defines functional options for configuring EventBus.
type EventBusOption func(*EventBus)

// WithBufferSize sets the event channel buffer size.
func WithBufferSize(size int) EventBusOption {
	return func(eb *EventBus) {
		eb.eventCh = make(chan Event, size)
	}
}

// WithErrorHandler sets a custom error handler function.
func WithErrorHandler(handler func(event Event, err error)) EventBusOption {
	return func(eb *EventBus) {
		eb.errHandlerMu.Lock()
		defer eb.errHandlerMu.Unlock()
		eb.errHandler = handler
	}
}

// NewEventBus creates a new EventBus instance with async processing.
// The default buffer size is 100, and errors are handled by defaultErrorHandler.
func NewEventBus(options ...EventBusOption) *EventBus {
	eb := &EventBus{
		handlers:   make(map[Type][]subscriber),
		eventCh:    make(chan Event, 100),
		errHandler: defaultErrorHandler,
	}

	for _, option := range options {
		option(eb)
	}

	eb.wg.Add(1)
	go eb.processEvents()

	return eb
}

// Subscribe subscribes a handler to an event type, or to every type with All.
func (eb *EventBus) Subscribe(eventType Type, handler EventHandler) Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	eb.handlers[eventType] = append(eb.handlers[eventType], subscriber{id: eb.nextID, handler: handler})
	return Subscription{Type: eventType, id: eb.nextID}
}

// SubscribeFunc subscribes a function as a handler to an event type.
func (eb *EventBus) SubscribeFunc(eventType Type, handlerFunc func(ctx context.Context, event Event) error) Subscription {
	return eb.Subscribe(eventType, EventHandlerFunc(handlerFunc))
}

// Unsubscribe removes a registered handler. It returns false if the
// subscription is unknown.
func (eb *EventBus) Unsubscribe(sub Subscription) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.handlers[sub.Type]
	for i, s := range subs {
		if s.id == sub.id {
			eb.handlers[sub.Type] = append(subs[:i:i], subs[i+1:]...)
			if len(eb.handlers[sub.Type]) == 0 {
				delete(eb.handlers, sub.Type)
			}
			return true
		}
	}
	return false
}

// HasSubscribers checks if any handler would receive an event of the given type.
func (eb *EventBus) HasSubscribers(eventType Type) bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType]) > 0 || len(eb.handlers[All]) > 0
}

// handlersFor returns the handlers of eventType followed by the catch-all ones.
func (eb *EventBus) handlersFor(eventType Type) []EventHandler {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	subs := eb.handlers[eventType]
	all := eb.handlers[All]
	out := make([]EventHandler, 0, len(subs)+len(all))
	for _, s := range subs {
		out = append(out, s.handler)
	}
	if eventType != All {
		for _, s := range all {
			out = append(out, s.handler)
		}
	}
	return out
}

// Publish publishes an event asynchronously to all subscribed handlers.
// Returns an error if the context is canceled, the bus is closed, or the channel is full.
func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	eb.closeMu.RLock()
	defer eb.closeMu.RUnlock()
	if eb.closed {
		return ErrBusClosed
	}

	if !eb.HasSubscribers(event.Type) {
		return ErrNoHandler
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case eb.eventCh <- event:
		return nil
	default:
		return ErrChannelFull
	}
}

// PublishSync publishes an event synchronously and returns all handler errors.
// Execution is subject to a 5-second timeout unless the context specifies otherwise.
func (eb *EventBus) PublishSync(ctx context.Context, event Event) []error {
	eb.closeMu.RLock()
	if eb.closed {
		eb.closeMu.RUnlock()
		return []error{ErrBusClosed}
	}
	eb.closeMu.RUnlock()

	handlers := eb.handlersFor(event.Type)
	if len(handlers) == 0 {
		return []error{ErrNoHandler}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return eb.executeHandlers(timeoutCtx, handlers, event)
}

// Stop stops the event processing goroutine and waits for completion.
// Unprocessed events are discarded.
func (eb *EventBus) Stop() {
	eb.closeMu.Lock()
	if !eb.closed {
		eb.closed = true
		for len(eb.eventCh) > 0 {
			<-eb.eventCh
		}
		close(eb.eventCh)
	}
	eb.closeMu.Unlock()

	eb.wg.Wait()
}

// processEvents handles events asynchronously in a separate goroutine.
func (eb *EventBus) processEvents() {
	defer eb.wg.Done()

	for event := range eb.eventCh {
		handlers := eb.handlersFor(event.Type)
		if len(handlers) == 0 {
			continue
		}

		errs := eb.executeHandlers(context.Background(), handlers, event)

		eb.errHandlerMu.RLock()
		handler := eb.errHandler
		eb.errHandlerMu.RUnlock()

		for _, err := range errs {
			handler(event, err)
		}
	}
}

// executeHandlers runs all handlers concurrently and collects their errors.
func (eb *EventBus) executeHandlers(ctx context.Context, handlers []EventHandler, event Event) []error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(handlers))

	for _, handler := range handlers {
		wg.Add(1)
		go func(h EventHandler) {
			defer wg.Done()
			if err := h.Handle(ctx, event); err != nil {
				errCh <- err
			}
		}(handler)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}

	return errs
}

// defaultErrorHandler logs handler failures with a stack trace.
func defaultErrorHandler(event Event, err error) {
	log.Error().
		Err(err).
		Str("event", string(event.Type)).
		Uint64("request_id", event.RequestID).
		Bytes("stack", debug.Stack()).
		Msg("event handler failed")
}
