// Package escalation decides which requests are overdue and moves them to
// the escalated state. Plan is pure; Scheduler only decides when a sweep runs.
package escalation

import (
	"time"

	"github.com/songzhibin97/approval-engine/types"
)

// ActionEscalated is the timeline action recorded by Apply.
const ActionEscalated = "escalated"

// Change is one planned escalation.
type Change struct {
	RequestID  uint64
	StepIndex  int
	StepID     string
	Deadline   time.Time
	FromStatus types.RequestStatus
	FromRole   types.ApproverRole
	ToRole     types.ApproverRole
	// Advanced is false when the escalation path has no role after FromRole;
	// the request is escalated but keeps its approver.
	Advanced bool
}

// eligible lists the statuses a sweep may escalate. Escalated requests are
// absent, which makes repeated sweeps no-ops.
func eligible(s types.RequestStatus) bool {
	return s == types.StatusPending || s == types.StatusPartiallyApproved
}

// Check reports whether req is overdue at now and, if so, what to change.
func Check(req *types.WorkflowRequest, now time.Time) (Change, bool) {
	if !req.Escalation.Enabled || !eligible(req.Status) {
		return Change{}, false
	}
	step, idx, err := req.ActiveStep()
	if err != nil {
		return Change{}, false
	}
	deadline, ok := req.Deadline(idx)
	if !ok || now.Before(deadline) {
		return Change{}, false
	}
	next, advanced := NextRole(req.Escalation.EscalationPath, step.ApproverRole)
	if !advanced {
		next = step.ApproverRole
	}
	return Change{
		RequestID:  req.ID,
		StepIndex:  idx,
		StepID:     step.ID,
		Deadline:   deadline,
		FromStatus: req.Status,
		FromRole:   step.ApproverRole,
		ToRole:     next,
		Advanced:   advanced,
	}, true
}

// Plan returns the escalations due at now, in the order of reqs.
func Plan(reqs []types.WorkflowRequest, now time.Time) []Change {
	var changes []Change
	for i := range reqs {
		if ch, ok := Check(&reqs[i], now); ok {
			changes = append(changes, ch)
		}
	}
	return changes
}

// NextRole returns the role after current in path. A role missing from the
// path escalates to the first role of the path; the last role has no successor.
func NextRole(path []types.ApproverRole, current types.ApproverRole) (types.ApproverRole, bool) {
	for i, role := range path {
		if role == current {
			if i+1 < len(path) {
				return path[i+1], true
			}
			return "", false
		}
	}
	if len(path) > 0 {
		return path[0], true
	}
	return "", false
}

// Apply performs ch on req. approver, when non-nil, becomes the step's new
// approver after the role advanced. It returns false without touching req if
// the request moved on since the change was planned.
func Apply(req *types.WorkflowRequest, ch Change, approver *types.User, now time.Time) bool {
	if req.ID != ch.RequestID || req.Status != ch.FromStatus || req.CurrentStep != ch.StepIndex {
		return false
	}
	step, _, err := req.ActiveStep()
	if err != nil || step.ID != ch.StepID || step.ApproverRole != ch.FromRole {
		return false
	}

	req.Status = types.StatusEscalated
	req.UpdatedAt = now
	at := now
	step.EscalatedAt = &at
	comment := "deadline passed, no further escalation role"
	if ch.Advanced {
		step.ApproverRole = ch.ToRole
		if approver != nil {
			step.ApproverID = approver.ID
			step.ApproverName = approver.Name
			// a delegate acted for the previous approver only
			step.DelegatedTo = nil
		}
		comment = "deadline passed, escalated from " + string(ch.FromRole) + " to " + string(ch.ToRole)
	}
	req.Record(now, types.User{ID: "system", Name: "escalation"}, ActionEscalated, comment)
	return true
}
