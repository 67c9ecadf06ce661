package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/songzhibin97/approval-engine/events"
	"github.com/songzhibin97/approval-engine/storage"
	"github.com/songzhibin97/approval-engine/types"
)

// StepDraft is one approval step supplied by the caller.
type StepDraft struct {
	Role         types.ApproverRole
	ApproverID   string
	ApproverName string
	// Status may be StepSkipped to pre-resolve a step; anything else means pending.
	Status             types.StepStatus
	EscalationDeadline *time.Time
}

// Draft is the input of CreateRequest.
type Draft struct {
	Type      types.RequestType
	Title     string
	Requester types.User
	Priority  types.Priority
	Details   types.Details
	// Steps is the explicit approval chain. When empty the configured
	// router builds one.
	Steps      []StepDraft
	Escalation *types.EscalationPolicy
}

func (d *Draft) validate() error {
	if blank(d.Requester.ID) {
		return fmt.Errorf("%w: requester id is required", ErrValidation)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("%w: unknown request type %q", ErrValidation, d.Type)
	}
	if d.Details == nil {
		return fmt.Errorf("%w: details are required", ErrValidation)
	}
	if d.Details.Kind() != d.Type {
		return fmt.Errorf("%w: %s details on a %s request", ErrValidation, d.Details.Kind(), d.Type)
	}
	switch d.Priority {
	case "", types.PriorityLow, types.PriorityNormal, types.PriorityHigh, types.PriorityUrgent:
	default:
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, d.Priority)
	}
	if d.Escalation != nil && d.Escalation.Enabled && d.Escalation.DaysUntilEscalation < 0 {
		return fmt.Errorf("%w: negative escalation delay", ErrValidation)
	}
	for i, s := range d.Steps {
		if blank(s.ApproverID) {
			return fmt.Errorf("%w: step %d has no approver", ErrValidation, i+1)
		}
		if s.Status != "" && s.Status != types.StepPending && s.Status != types.StepSkipped {
			return fmt.Errorf("%w: step %d cannot start as %s", ErrValidation, i+1, s.Status)
		}
	}
	return nil
}

// CreateRequest stores a new draft request and returns its ID.
func (e *Engine) CreateRequest(ctx context.Context, draft Draft) (uint64, error) {
	if err := draft.validate(); err != nil {
		return 0, err
	}

	now := e.now()
	req := types.WorkflowRequest{
		Type:      draft.Type,
		Title:     draft.Title,
		Requester: draft.Requester,
		Status:    types.StatusDraft,
		Priority:  draft.Priority,
		Details:   draft.Details,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if req.Priority == "" {
		req.Priority = types.PriorityNormal
	}
	if draft.Escalation != nil {
		req.Escalation = clonePolicy(*draft.Escalation)
	}

	steps := draft.Steps
	if len(steps) == 0 {
		routed, policy, err := e.route(ctx, &req)
		if err != nil {
			return 0, err
		}
		steps = routed
		if draft.Escalation == nil && policy != nil {
			req.Escalation = clonePolicy(*policy)
		}
	}
	for i, s := range steps {
		status := s.Status
		if status == "" {
			status = types.StepPending
		}
		step := types.ApprovalStep{
			ID:           e.newStepID(),
			Order:        i + 1,
			ApproverRole: s.Role,
			ApproverID:   s.ApproverID,
			ApproverName: s.ApproverName,
			Status:       status,
		}
		if s.EscalationDeadline != nil {
			d := *s.EscalationDeadline
			step.EscalationDeadline = &d
		}
		req.Steps = append(req.Steps, step)
	}
	req.CurrentStep = req.FirstPending()
	if req.CurrentStep >= len(req.Steps) {
		return 0, fmt.Errorf("%w: a request needs at least one pending step", ErrValidation)
	}

	id, err := e.generate.NextID()
	if err != nil {
		return 0, fmt.Errorf("failed to generate request id: %w", err)
	}
	req.ID = id
	req.Record(now, req.Requester, ActionCreated, "")

	if err := e.store.CreateRequest(ctx, req); err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	e.log.Info().
		Uint64("request_id", id).
		Str("type", string(req.Type)).
		Str("actor", req.Requester.ID).
		Int("steps", len(req.Steps)).
		Msg("request created")
	e.publishEvent(ctx, events.RequestCreated, req, "", req.Requester.ID, nil)
	return id, nil
}

// route builds the approval chain of req from the router and directory.
func (e *Engine) route(ctx context.Context, req *types.WorkflowRequest) ([]StepDraft, *types.EscalationPolicy, error) {
	if e.router == nil || e.directory == nil {
		return nil, nil, fmt.Errorf("%w: steps are required", ErrValidation)
	}
	plan, err := e.router.Route(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	steps := make([]StepDraft, 0, len(plan.Roles))
	for _, role := range plan.Roles {
		approver, err := e.directory.Resolve(ctx, role, req.Requester)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		steps = append(steps, StepDraft{Role: role, ApproverID: approver.ID, ApproverName: approver.Name})
	}
	return steps, plan.Escalation, nil
}

func clonePolicy(p types.EscalationPolicy) types.EscalationPolicy {
	p.EscalationPath = append([]types.ApproverRole(nil), p.EscalationPath...)
	return p
}

// GetRequest returns a copy of a request.
func (e *Engine) GetRequest(ctx context.Context, id uint64) (types.WorkflowRequest, error) {
	return e.load(ctx, id)
}

// SubmitRequest moves a draft into the approval chain. Only the requester may
// submit, and only once.
func (e *Engine) SubmitRequest(ctx context.Context, actor types.User, id uint64) error {
	req, err := e.mutate(ctx, id, func(req *types.WorkflowRequest, now time.Time) error {
		if req.Status != types.StatusDraft {
			return fmt.Errorf("%w: request %d is %s, not draft", ErrInvalidState, req.ID, req.Status)
		}
		if actor.ID != req.Requester.ID {
			return fmt.Errorf("%w: only the requester may submit request %d", ErrUnauthorized, req.ID)
		}
		at := now
		req.Status = types.StatusPending
		req.SubmittedAt = &at
		req.CurrentStep = req.FirstPending()
		req.Record(now, actor, ActionSubmitted, "")
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Info().Uint64("request_id", id).Str("actor", actor.ID).Msg("request submitted")
	e.notifyApprover(ctx, req)
	e.publishEvent(ctx, events.RequestSubmitted, req, "", actor.ID, nil)
	return nil
}

// CancelRequest withdraws a request that is not yet resolved, or closes a
// rejected one. Only the requester may cancel.
func (e *Engine) CancelRequest(ctx context.Context, actor types.User, id uint64, reason string) error {
	var approverID string
	req, err := e.mutate(ctx, id, func(req *types.WorkflowRequest, now time.Time) error {
		switch req.Status {
		case types.StatusDraft, types.StatusPending, types.StatusInReview,
			types.StatusPartiallyApproved, types.StatusEscalated, types.StatusRejected:
		default:
			return fmt.Errorf("%w: request %d is %s", ErrInvalidState, req.ID, req.Status)
		}
		if actor.ID != req.Requester.ID {
			return fmt.Errorf("%w: only the requester may cancel request %d", ErrUnauthorized, req.ID)
		}
		if req.Status.Actionable() {
			if step, _, err := req.ActiveStep(); err == nil {
				approverID = step.ApproverID
			}
		}
		req.Status = types.StatusCancelled
		req.Record(now, actor, ActionCancelled, reason)
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Info().Uint64("request_id", id).Str("actor", actor.ID).Msg("request cancelled")
	e.notify(ctx, types.Notification{
		UserID:    approverID,
		RequestID: req.ID,
		Title:     "Request cancelled",
		Message:   fmt.Sprintf("%s cancelled their %s request.", req.Requester.Name, req.Type),
		Type:      types.NotificationInfo,
	})
	e.publishEvent(ctx, events.RequestCancelled, req, "", actor.ID, map[string]interface{}{"reason": reason})
	return nil
}

// CompleteRequest closes an approved request.
func (e *Engine) CompleteRequest(ctx context.Context, actor types.User, id uint64) error {
	req, err := e.mutate(ctx, id, func(req *types.WorkflowRequest, now time.Time) error {
		if req.Status != types.StatusApproved {
			return fmt.Errorf("%w: request %d is %s, not approved", ErrInvalidState, req.ID, req.Status)
		}
		if actor.ID != req.Requester.ID {
			return fmt.Errorf("%w: only the requester may complete request %d", ErrUnauthorized, req.ID)
		}
		req.Status = types.StatusCompleted
		req.Record(now, actor, ActionCompleted, "")
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Info().Uint64("request_id", id).Str("actor", actor.ID).Msg("request completed")
	e.publishEvent(ctx, events.RequestCompleted, req, "", actor.ID, nil)
	return nil
}

// PurgeClosed deletes cancelled and completed requests untouched for longer
// than olderThan.
func (e *Engine) PurgeClosed(ctx context.Context, olderThan time.Duration) (int, error) {
	n, err := e.store.ClearClosed(ctx, e.now().Add(-olderThan))
	if err != nil {
		return n, fmt.Errorf("failed to purge closed requests: %w", err)
	}
	if n > 0 {
		e.log.Info().Int("purged", n).Msg("closed requests purged")
	}
	return n, nil
}

// ListNotifications returns the user's notifications, newest first.
func (e *Engine) ListNotifications(ctx context.Context, userID string) ([]types.Notification, error) {
	ns, err := e.store.ListNotifications(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return ns, nil
}

// MarkNotificationRead flags one of the user's notifications as read.
func (e *Engine) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	err := e.store.MarkNotificationRead(ctx, userID, notificationID)
	if errors.Is(err, storage.ErrNotificationNotFound) {
		return fmt.Errorf("%w: notification %s", ErrNotFound, notificationID)
	}
	return err
}
