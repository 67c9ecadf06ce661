package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/songzhibin97/approval-engine/events"
	"github.com/songzhibin97/approval-engine/types"
)

// Approve approves the active step of a request on behalf of actor. The
// request becomes approved when no pending step remains, otherwise it
// becomes partially_approved and moves on to the next pending step.
func (e *Engine) Approve(ctx context.Context, actor types.User, requestID uint64, stepID, comment string) error {
	var step types.ApprovalStep
	req, err := e.mutate(ctx, requestID, func(req *types.WorkflowRequest, now time.Time) error {
		s, _, err := actionableStep(req, actor, stepID)
		if err != nil {
			return err
		}
		at := now
		s.Status = types.StepApproved
		s.ActionDate = &at
		s.Comments = comment
		step = *s

		req.CurrentStep = req.FirstPending()
		if req.CurrentStep >= len(req.Steps) {
			req.Status = types.StatusApproved
			req.CompletedAt = &at
		} else {
			req.Status = types.StatusPartiallyApproved
		}
		req.Record(now, actor, ActionApproved, comment)
		return nil
	})
	if err != nil {
		e.log.Debug().Err(err).Uint64("request_id", requestID).Str("step_id", stepID).Str("actor", actor.ID).Msg("approve refused")
		return err
	}

	e.log.Info().
		Uint64("request_id", req.ID).
		Str("step_id", step.ID).
		Str("actor", actor.ID).
		Str("status", string(req.Status)).
		Msg("step approved")

	if req.Status == types.StatusApproved {
		e.notify(ctx, types.Notification{
			UserID:    req.Requester.ID,
			RequestID: req.ID,
			Title:     "Request approved",
			Message:   fmt.Sprintf("Your %s request has been fully approved.", req.Type),
			Type:      types.NotificationSuccess,
			Important: true,
		})
	} else {
		e.notify(ctx, types.Notification{
			UserID:    req.Requester.ID,
			RequestID: req.ID,
			Title:     "Step approved",
			Message:   fmt.Sprintf("%s approved step %d of your %s request.", actor.Name, step.Order, req.Type),
			Type:      types.NotificationInfo,
		})
		e.notifyApprover(ctx, req)
	}
	e.publishEvent(ctx, events.StepApproved, req, step.ID, actor.ID, map[string]interface{}{
		"order":   step.Order,
		"comment": comment,
	})
	return nil
}

// Reject rejects the active step and halts the chain. A rejected request can
// only be cancelled afterwards. The comment is mandatory.
func (e *Engine) Reject(ctx context.Context, actor types.User, requestID uint64, stepID, comment string) error {
	if blank(comment) {
		return fmt.Errorf("%w: a rejection comment is required", ErrValidation)
	}

	var step types.ApprovalStep
	req, err := e.mutate(ctx, requestID, func(req *types.WorkflowRequest, now time.Time) error {
		s, _, err := actionableStep(req, actor, stepID)
		if err != nil {
			return err
		}
		at := now
		s.Status = types.StepRejected
		s.ActionDate = &at
		s.Comments = comment
		step = *s

		req.Status = types.StatusRejected
		req.Record(now, actor, ActionRejected, comment)
		return nil
	})
	if err != nil {
		e.log.Debug().Err(err).Uint64("request_id", requestID).Str("step_id", stepID).Str("actor", actor.ID).Msg("reject refused")
		return err
	}

	e.log.Info().
		Uint64("request_id", req.ID).
		Str("step_id", step.ID).
		Str("actor", actor.ID).
		Msg("step rejected")

	e.notify(ctx, types.Notification{
		UserID:    req.Requester.ID,
		RequestID: req.ID,
		Title:     "Request rejected",
		Message:   fmt.Sprintf("%s rejected your %s request: %s", actor.Name, req.Type, comment),
		Type:      types.NotificationError,
		Important: true,
	})
	e.publishEvent(ctx, events.StepRejected, req, step.ID, actor.ID, map[string]interface{}{
		"order":   step.Order,
		"comment": comment,
	})
	return nil
}

// Delegate lets delegateID act on the active step. Step status and
// CurrentStep are untouched; the original approver stays entitled and the
// previous delegate, if any, is replaced but kept in the step's history.
func (e *Engine) Delegate(ctx context.Context, actor types.User, requestID uint64, stepID, delegateID, delegateName, reason string) error {
	if blank(delegateID) {
		return fmt.Errorf("%w: delegate id is required", ErrValidation)
	}
	if blank(reason) {
		return fmt.Errorf("%w: delegation reason is required", ErrValidation)
	}

	var delegation types.Delegation
	req, err := e.mutate(ctx, requestID, func(req *types.WorkflowRequest, now time.Time) error {
		s, _, err := actionableStep(req, actor, stepID)
		if err != nil {
			return err
		}
		if delegateID == s.ApproverID {
			return fmt.Errorf("%w: cannot delegate step %s to its own approver", ErrValidation, stepID)
		}
		delegation = types.Delegation{
			ID:          delegateID,
			Name:        delegateName,
			Reason:      reason,
			DelegatedBy: actor.ID,
			DelegatedAt: now,
		}
		d := delegation
		s.DelegatedTo = &d
		s.Delegations = append(s.Delegations, delegation)
		req.Record(now, actor, ActionDelegated, fmt.Sprintf("to %s: %s", delegateID, reason))
		return nil
	})
	if err != nil {
		e.log.Debug().Err(err).Uint64("request_id", requestID).Str("step_id", stepID).Str("actor", actor.ID).Msg("delegate refused")
		return err
	}

	e.log.Info().
		Uint64("request_id", req.ID).
		Str("step_id", stepID).
		Str("actor", actor.ID).
		Str("delegate", delegateID).
		Msg("step delegated")

	e.notify(ctx, types.Notification{
		UserID:    delegateID,
		RequestID: req.ID,
		Title:     "Approval delegated to you",
		Message:   fmt.Sprintf("%s delegated a %s approval to you: %s", actor.Name, req.Type, reason),
		Type:      types.NotificationInfo,
		Important: true,
	})
	e.publishEvent(ctx, events.StepDelegated, req, stepID, actor.ID, map[string]interface{}{
		"delegate_id": delegateID,
		"reason":      reason,
	})
	return nil
}

// notifyApprover tells the approver of the active step that it is their turn.
func (e *Engine) notifyApprover(ctx context.Context, req types.WorkflowRequest) {
	step, _, err := req.ActiveStep()
	if err != nil {
		return
	}
	e.notify(ctx, types.Notification{
		UserID:    step.ApproverID,
		RequestID: req.ID,
		Title:     "Approval required",
		Message:   fmt.Sprintf("%s's %s request is waiting for your approval.", req.Requester.Name, req.Type),
		Type:      types.NotificationInfo,
		Important: req.Priority == types.PriorityHigh || req.Priority == types.PriorityUrgent,
	})
}
