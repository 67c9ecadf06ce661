package types

import (
	"errors"
	"fmt"
	"time"
)

// RequestType is the category of a workflow request.
type RequestType string

const (
	TypeLeave              RequestType = "leave"
	TypeExpense            RequestType = "expense"
	TypeOvertime           RequestType = "overtime"
	TypeBusinessTrip       RequestType = "business_trip"
	TypeRemoteWork         RequestType = "remote_work"
	TypePurchase           RequestType = "purchase"
	TypeBankAccountChange  RequestType = "bank_account_change"
	TypeFamilyInfoChange   RequestType = "family_info_change"
	TypeCommuteRouteChange RequestType = "commute_route_change"
	TypeDocumentApproval   RequestType = "document_approval"
	TypeShiftChange        RequestType = "shift_change"
)

// RequestStatus is the lifecycle status of a workflow request.
type RequestStatus string

const (
	StatusDraft             RequestStatus = "draft"
	StatusPending           RequestStatus = "pending"
	StatusInReview          RequestStatus = "in_review"
	StatusPartiallyApproved RequestStatus = "partially_approved"
	StatusApproved          RequestStatus = "approved"
	StatusRejected          RequestStatus = "rejected"
	StatusCancelled         RequestStatus = "cancelled"
	StatusCompleted         RequestStatus = "completed"
	StatusEscalated         RequestStatus = "escalated"
)

// Actionable reports whether approvers may act on a request in this status.
func (s RequestStatus) Actionable() bool {
	switch s {
	case StatusPending, StatusInReview, StatusPartiallyApproved, StatusEscalated:
		return true
	}
	return false
}

// StepStatus is the status of a single approval step.
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
	StepSkipped  StepStatus = "skipped"
)

// Terminal reports whether the step has been resolved.
func (s StepStatus) Terminal() bool {
	return s == StepApproved || s == StepRejected || s == StepSkipped
}

// Priority of a request.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ApproverRole names the organisational role bound to a step.
type ApproverRole string

const (
	RoleDirectManager  ApproverRole = "direct_manager"
	RoleDepartmentHead ApproverRole = "department_head"
	RoleHRManager      ApproverRole = "hr_manager"
	RoleFinanceManager ApproverRole = "finance_manager"
	RoleGeneralManager ApproverRole = "general_manager"
	RoleCEO            ApproverRole = "ceo"
)

// NotificationType classifies a notification.
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

// ErrBrokenInvariant is returned by ActiveStep when the step sequence and
// CurrentStep disagree.
var ErrBrokenInvariant = errors.New("active step invariant violated")

// User identifies a person acting on or owning a request.
type User struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Department string `json:"department,omitempty" yaml:"department"`
}

// Delegation records who may act on a step in place of its approver.
type Delegation struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Reason      string    `json:"reason"`
	DelegatedBy string    `json:"delegated_by,omitempty"`
	DelegatedAt time.Time `json:"delegated_at"`
}

// ApprovalStep is one ordered stage of a request's approval chain.
type ApprovalStep struct {
	ID                 string       `json:"id"`
	Order              int          `json:"order"`
	ApproverRole       ApproverRole `json:"approver_role"`
	ApproverID         string       `json:"approver_id"`
	ApproverName       string       `json:"approver_name"`
	Status             StepStatus   `json:"status"`
	ActionDate         *time.Time   `json:"action_date,omitempty"`
	Comments           string       `json:"comments,omitempty"`
	DelegatedTo        *Delegation  `json:"delegated_to,omitempty"`
	Delegations        []Delegation `json:"delegations,omitempty"`
	EscalationDeadline *time.Time   `json:"escalation_deadline,omitempty"`
	EscalatedAt        *time.Time   `json:"escalated_at,omitempty"`
}

// Entitled reports whether userID may act on the step, either as its
// approver or as its current delegate.
func (s *ApprovalStep) Entitled(userID string) bool {
	if userID == "" {
		return false
	}
	if s.ApproverID == userID {
		return true
	}
	return s.DelegatedTo != nil && s.DelegatedTo.ID == userID
}

// TimelineEntry is one line of a request's append-only history.
type TimelineEntry struct {
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name,omitempty"`
	Action    string    `json:"action"`
	Comment   string    `json:"comment,omitempty"`
}

// EscalationPolicy controls automatic escalation of overdue steps.
type EscalationPolicy struct {
	Enabled             bool           `json:"enabled" yaml:"enabled"`
	DaysUntilEscalation int            `json:"days_until_escalation" yaml:"daysUntilEscalation"`
	EscalationPath      []ApproverRole `json:"escalation_path,omitempty" yaml:"escalationPath"`
}

// WorkflowRequest is a request travelling through its approval chain.
type WorkflowRequest struct {
	ID          uint64           `json:"id"`
	Type        RequestType      `json:"type"`
	Title       string           `json:"title,omitempty"`
	Requester   User             `json:"requester"`
	Status      RequestStatus    `json:"status"`
	Steps       []ApprovalStep   `json:"steps"`
	CurrentStep int              `json:"current_step"`
	Priority    Priority         `json:"priority"`
	Details     Details          `json:"-"`
	Timeline    []TimelineEntry  `json:"timeline"`
	Escalation  EscalationPolicy `json:"escalation"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	SubmittedAt *time.Time       `json:"submitted_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Version     int64            `json:"version"`
}

// FirstPending returns the index of the first pending step, or len(Steps)
// when every step is resolved.
func (r *WorkflowRequest) FirstPending() int {
	for i := range r.Steps {
		if r.Steps[i].Status == StepPending {
			return i
		}
	}
	return len(r.Steps)
}

// ActiveStep returns the step awaiting action together with its index.
// Steps before it must be terminal and steps after it untouched.
func (r *WorkflowRequest) ActiveStep() (*ApprovalStep, int, error) {
	idx := r.CurrentStep
	if idx < 0 || idx >= len(r.Steps) {
		return nil, idx, fmt.Errorf("%w: request %d has no active step (current=%d, steps=%d)", ErrBrokenInvariant, r.ID, idx, len(r.Steps))
	}
	if r.Steps[idx].Status != StepPending {
		return nil, idx, fmt.Errorf("%w: step %d of request %d is %s", ErrBrokenInvariant, idx, r.ID, r.Steps[idx].Status)
	}
	for i := 0; i < idx; i++ {
		if !r.Steps[i].Status.Terminal() {
			return nil, idx, fmt.Errorf("%w: step %d of request %d precedes the active step but is %s", ErrBrokenInvariant, i, r.ID, r.Steps[i].Status)
		}
	}
	for i := idx + 1; i < len(r.Steps); i++ {
		if r.Steps[i].ActionDate != nil {
			return nil, idx, fmt.Errorf("%w: step %d of request %d follows the active step but was acted on", ErrBrokenInvariant, i, r.ID)
		}
	}
	return &r.Steps[idx], idx, nil
}

// StepIndex returns the index of the step with the given ID, or -1.
func (r *WorkflowRequest) StepIndex(stepID string) int {
	for i := range r.Steps {
		if r.Steps[i].ID == stepID {
			return i
		}
	}
	return -1
}

// Deadline returns the escalation deadline of the step at idx: the
// step-local deadline when set, otherwise CreatedAt plus the policy delay.
// ok is false when escalation is disabled for the request.
func (r *WorkflowRequest) Deadline(idx int) (time.Time, bool) {
	if !r.Escalation.Enabled || idx < 0 || idx >= len(r.Steps) {
		return time.Time{}, false
	}
	if d := r.Steps[idx].EscalationDeadline; d != nil {
		return *d, true
	}
	return r.CreatedAt.AddDate(0, 0, r.Escalation.DaysUntilEscalation), true
}

// Record appends an entry to the timeline.
func (r *WorkflowRequest) Record(at time.Time, actor User, action, comment string) {
	r.Timeline = append(r.Timeline, TimelineEntry{
		Timestamp: at,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Action:    action,
		Comment:   comment,
	})
}

// Clone returns a deep copy of the request.
func (r WorkflowRequest) Clone() WorkflowRequest {
	out := r
	if r.Steps != nil {
		out.Steps = make([]ApprovalStep, len(r.Steps))
		for i, s := range r.Steps {
			out.Steps[i] = s.clone()
		}
	}
	if r.Timeline != nil {
		out.Timeline = append([]TimelineEntry(nil), r.Timeline...)
	}
	if r.Escalation.EscalationPath != nil {
		out.Escalation.EscalationPath = append([]ApproverRole(nil), r.Escalation.EscalationPath...)
	}
	out.SubmittedAt = cloneTime(r.SubmittedAt)
	out.CompletedAt = cloneTime(r.CompletedAt)
	if r.Details != nil {
		out.Details = r.Details.clone()
	}
	return out
}

func (s ApprovalStep) clone() ApprovalStep {
	out := s
	out.ActionDate = cloneTime(s.ActionDate)
	out.EscalationDeadline = cloneTime(s.EscalationDeadline)
	out.EscalatedAt = cloneTime(s.EscalatedAt)
	if s.DelegatedTo != nil {
		d := *s.DelegatedTo
		out.DelegatedTo = &d
	}
	if s.Delegations != nil {
		out.Delegations = append([]Delegation(nil), s.Delegations...)
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Notification is a message addressed to a single user.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	RequestID uint64           `json:"request_id,omitempty"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Read      bool             `json:"read"`
	Important bool             `json:"important"`
}
