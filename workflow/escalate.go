package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/songzhibin97/approval-engine/escalation"
	"github.com/songzhibin97/approval-engine/events"
	"github.com/songzhibin97/approval-engine/types"
)

var errStale = errors.New("escalation no longer applies")

// SweepEscalations escalates every overdue request and returns how many
// changed. Requests that moved on since the plan was made are skipped, so a
// second sweep at the same instant changes nothing.
func (e *Engine) SweepEscalations(ctx context.Context) (int, error) {
	reqs, err := e.store.ListRequests(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list requests: %w", err)
	}

	var errs []error
	escalated := 0
	for _, ch := range escalation.Plan(reqs, e.now()) {
		var approver *types.User
		req, err := e.mutate(ctx, ch.RequestID, func(req *types.WorkflowRequest, now time.Time) error {
			if ch.Advanced && e.directory != nil {
				u, err := e.directory.Resolve(ctx, ch.ToRole, req.Requester)
				if err != nil {
					e.log.Warn().Err(err).
						Uint64("request_id", req.ID).
						Str("role", string(ch.ToRole)).
						Msg("no approver for escalation role, keeping current approver")
				} else {
					approver = &u
				}
			}
			if !escalation.Apply(req, ch, approver, now) {
				return errStale
			}
			return nil
		})
		switch {
		case err == nil:
		case errors.Is(err, errStale), errors.Is(err, ErrInvalidState), errors.Is(err, ErrNotFound):
			e.log.Debug().Err(err).Uint64("request_id", ch.RequestID).Msg("escalation skipped")
			continue
		default:
			errs = append(errs, fmt.Errorf("request %d: %w", ch.RequestID, err))
			continue
		}

		escalated++
		step := req.Steps[ch.StepIndex]
		e.log.Info().
			Uint64("request_id", req.ID).
			Str("step_id", step.ID).
			Str("from_role", string(ch.FromRole)).
			Str("to_role", string(step.ApproverRole)).
			Time("deadline", ch.Deadline).
			Msg("request escalated")

		e.notify(ctx, types.Notification{
			UserID:    req.Requester.ID,
			RequestID: req.ID,
			Title:     "Request escalated",
			Message:   fmt.Sprintf("Your %s request passed its deadline and was escalated to %s.", req.Type, step.ApproverRole),
			Type:      types.NotificationInfo,
			Important: true,
		})
		e.notify(ctx, types.Notification{
			UserID:    step.ApproverID,
			RequestID: req.ID,
			Title:     "Escalated approval required",
			Message:   fmt.Sprintf("%s's %s request is overdue and needs your approval.", req.Requester.Name, req.Type),
			Type:      types.NotificationInfo,
			Important: true,
		})
		e.publishEvent(ctx, events.RequestEscalated, req, step.ID, "system", map[string]interface{}{
			"from_role": string(ch.FromRole),
			"to_role":   string(step.ApproverRole),
			"advanced":  ch.Advanced,
		})
	}
	return escalated, errors.Join(errs...)
}
