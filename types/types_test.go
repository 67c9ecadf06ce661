package types

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest() WorkflowRequest {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return WorkflowRequest{
		ID:        7,
		Type:      TypeExpense,
		Requester: User{ID: "1", Name: "Kim", Department: "Sales"},
		Status:    StatusPending,
		Steps: []ApprovalStep{
			{ID: "s1", Order: 1, ApproverRole: RoleDirectManager, ApproverID: "2", Status: StepPending},
			{ID: "s2", Order: 2, ApproverRole: RoleHRManager, ApproverID: "5", Status: StepPending},
		},
		Priority: PriorityNormal,
		Details: ExpenseDetails{
			Category:   "travel",
			Amount:     120000,
			Currency:   "KRW",
			SpentAt:    created,
			ReceiptIDs: []string{"r-1"},
		},
		Escalation: EscalationPolicy{Enabled: true, DaysUntilEscalation: 3, EscalationPath: []ApproverRole{RoleDirectManager, RoleHRManager}},
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestActiveStep(t *testing.T) {
	t.Run("FirstStep", func(t *testing.T) {
		req := newRequest()
		step, idx, err := req.ActiveStep()
		require.NoError(t, err)
		assert.Equal(t, 0, idx)
		assert.Equal(t, "s1", step.ID)
	})

	t.Run("PointerIntoRequest", func(t *testing.T) {
		req := newRequest()
		step, _, err := req.ActiveStep()
		require.NoError(t, err)
		step.Comments = "edited"
		assert.Equal(t, "edited", req.Steps[0].Comments)
	})

	t.Run("AllResolved", func(t *testing.T) {
		req := newRequest()
		req.Steps[0].Status = StepApproved
		req.Steps[1].Status = StepApproved
		req.CurrentStep = 2
		_, _, err := req.ActiveStep()
		assert.True(t, errors.Is(err, ErrBrokenInvariant))
	})

	t.Run("PendingBeforeCurrent", func(t *testing.T) {
		req := newRequest()
		req.CurrentStep = 1
		_, _, err := req.ActiveStep()
		assert.ErrorIs(t, err, ErrBrokenInvariant)
	})

	t.Run("ActedAfterCurrent", func(t *testing.T) {
		req := newRequest()
		now := time.Now()
		req.Steps[1].ActionDate = &now
		_, _, err := req.ActiveStep()
		assert.ErrorIs(t, err, ErrBrokenInvariant)
	})
}

func TestFirstPending(t *testing.T) {
	req := newRequest()
	assert.Equal(t, 0, req.FirstPending())

	req.Steps[0].Status = StepSkipped
	assert.Equal(t, 1, req.FirstPending())

	req.Steps[1].Status = StepApproved
	assert.Equal(t, 2, req.FirstPending())
}

func TestEntitled(t *testing.T) {
	step := ApprovalStep{ApproverID: "2", Status: StepPending}
	assert.True(t, step.Entitled("2"))
	assert.False(t, step.Entitled("4"))
	assert.False(t, step.Entitled(""))

	step.DelegatedTo = &Delegation{ID: "4", Name: "Lee", Reason: "On leave"}
	assert.True(t, step.Entitled("2"))
	assert.True(t, step.Entitled("4"))
}

func TestDeadline(t *testing.T) {
	req := newRequest()
	d, ok := req.Deadline(0)
	assert.True(t, ok)
	assert.Equal(t, req.CreatedAt.AddDate(0, 0, 3), d)

	local := req.CreatedAt.Add(time.Hour)
	req.Steps[0].EscalationDeadline = &local
	d, ok = req.Deadline(0)
	assert.True(t, ok)
	assert.Equal(t, local, d)

	req.Escalation.Enabled = false
	_, ok = req.Deadline(0)
	assert.False(t, ok)
}

func TestClone(t *testing.T) {
	req := newRequest()
	req.Steps[0].DelegatedTo = &Delegation{ID: "4"}
	req.Record(req.CreatedAt, req.Requester, "created", "")

	cp := req.Clone()
	assert.Equal(t, req, cp)

	cp.Steps[0].Status = StepApproved
	cp.Steps[0].DelegatedTo.ID = "9"
	cp.Timeline[0].Action = "changed"
	cp.Escalation.EscalationPath[0] = RoleCEO
	cp.Details.(ExpenseDetails).ReceiptIDs[0] = "r-9"

	assert.Equal(t, StepPending, req.Steps[0].Status)
	assert.Equal(t, "4", req.Steps[0].DelegatedTo.ID)
	assert.Equal(t, "created", req.Timeline[0].Action)
	assert.Equal(t, RoleDirectManager, req.Escalation.EscalationPath[0])
	assert.Equal(t, "r-1", req.Details.(ExpenseDetails).ReceiptIDs[0])
}

func TestRequestJSONKeepsDetailsVariant(t *testing.T) {
	req := newRequest()
	data, err := json.Marshal(req)
	require.NoError(t, err)

	var got WorkflowRequest
	require.NoError(t, json.Unmarshal(data, &got))
	details, ok := got.Details.(ExpenseDetails)
	require.True(t, ok, "expected ExpenseDetails, got %T", got.Details)
	assert.Equal(t, int64(120000), details.Amount)
	assert.Equal(t, req.Steps, got.Steps)
	assert.Equal(t, req.Type, got.Type)
}

func TestDecodeDetailsUnknownType(t *testing.T) {
	_, err := DecodeDetails("payroll", []byte(`{}`))
	assert.Error(t, err)
	assert.False(t, RequestType("payroll").Valid())
	assert.True(t, TypeShiftChange.Valid())
}

func TestDetailsFields(t *testing.T) {
	fields, err := DetailsFields(PurchaseDetails{Item: "laptop", Quantity: 2, Amount: 3000000})
	require.NoError(t, err)
	assert.Equal(t, "laptop", fields["item"])
	assert.Equal(t, float64(3000000), fields["amount"])
}

func TestRequestStatusActionable(t *testing.T) {
	for _, s := range []RequestStatus{StatusPending, StatusInReview, StatusPartiallyApproved, StatusEscalated} {
		assert.True(t, s.Actionable(), s)
	}
	for _, s := range []RequestStatus{StatusDraft, StatusApproved, StatusRejected, StatusCancelled, StatusCompleted} {
		assert.False(t, s.Actionable(), s)
	}
}
