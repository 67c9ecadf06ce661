package rules

import (
	"errors"
	"testing"

	"github.com/songzhibin97/approval-engine/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterDefaultRoutes(t *testing.T) {
	router := NewRouter(DefaultRoutes(), nil)

	tests := []struct {
		name    string
		req     types.WorkflowRequest
		want    []types.ApproverRole
		escDays int
	}{
		{
			name: "short leave",
			req:  types.WorkflowRequest{Type: types.TypeLeave, Details: types.LeaveDetails{Days: 2}},
			want: []types.ApproverRole{types.RoleDirectManager},
			escDays: 3,
		},
		{
			name: "long leave adds hr",
			req:  types.WorkflowRequest{Type: types.TypeLeave, Details: types.LeaveDetails{Days: 5}},
			want: []types.ApproverRole{types.RoleDirectManager, types.RoleHRManager},
			escDays: 3,
		},
		{
			name: "large purchase",
			req:  types.WorkflowRequest{Type: types.TypePurchase, Details: types.PurchaseDetails{Item: "server", Quantity: 1, Amount: 12000000}},
			want: []types.ApproverRole{types.RoleDepartmentHead, types.RoleFinanceManager, types.RoleGeneralManager},
			escDays: 5,
		},
		{
			name: "priced purchase without amount",
			req:  types.WorkflowRequest{Type: types.TypePurchase, Details: types.PurchaseDetails{Item: "laptop", Quantity: 10, UnitPrice: 1000000}},
			want: []types.ApproverRole{types.RoleDepartmentHead, types.RoleFinanceManager, types.RoleGeneralManager},
			escDays: 5,
		},
		{
			name: "small purchase",
			req:  types.WorkflowRequest{Type: types.TypePurchase, Details: types.PurchaseDetails{Item: "pens", Quantity: 100, UnitPrice: 500}},
			want: []types.ApproverRole{types.RoleDepartmentHead, types.RoleFinanceManager},
			escDays: 5,
		},
		{
			name: "urgent document",
			req:  types.WorkflowRequest{Type: types.TypeDocumentApproval, Priority: types.PriorityUrgent, Details: types.DocumentApprovalDetails{DocumentID: "d1"}},
			want: []types.ApproverRole{types.RoleDepartmentHead, types.RoleGeneralManager},
			escDays: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := router.Route(&tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.Roles)
			require.NotNil(t, plan.Escalation)
			assert.Equal(t, tt.escDays, plan.Escalation.DaysUntilEscalation)
		})
	}
}

func TestRouterRouteSelection(t *testing.T) {
	routes := []Route{
		{Type: types.TypeExpense, When: "department == 'Sales'", Steps: []StepRule{{Role: types.RoleDepartmentHead}}},
		{Type: types.TypeExpense, Steps: []StepRule{{Role: types.RoleDirectManager}}},
	}
	router := NewRouter(routes, NewExprEvaluator())

	sales := types.WorkflowRequest{Type: types.TypeExpense, Requester: types.User{Department: "Sales"}, Details: types.ExpenseDetails{Amount: 10}}
	plan, err := router.Route(&sales)
	require.NoError(t, err)
	assert.Equal(t, []types.ApproverRole{types.RoleDepartmentHead}, plan.Roles)
	assert.Nil(t, plan.Escalation)

	other := sales
	other.Requester.Department = "R&D"
	plan, err = router.Route(&other)
	require.NoError(t, err)
	assert.Equal(t, []types.ApproverRole{types.RoleDirectManager}, plan.Roles)
}

func TestRouterNoRoute(t *testing.T) {
	router := NewRouter([]Route{
		{Type: types.TypeOvertime, Steps: []StepRule{{Role: types.RoleHRManager, When: "hours > 100"}}},
	}, nil)

	_, err := router.Route(&types.WorkflowRequest{Type: types.TypeLeave, Details: types.LeaveDetails{}})
	assert.True(t, errors.Is(err, ErrNoRoute))

	_, err = router.Route(&types.WorkflowRequest{Type: types.TypeOvertime, Details: types.OvertimeDetails{Hours: 2}})
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestRouterConditionError(t *testing.T) {
	router := NewRouter([]Route{
		{Type: types.TypeOvertime, Steps: []StepRule{{Role: types.RoleHRManager, When: "hours + 1"}}},
	}, nil)
	_, err := router.Route(&types.WorkflowRequest{Type: types.TypeOvertime, Details: types.OvertimeDetails{Hours: 2}})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoRoute)
}

func TestEnv(t *testing.T) {
	req := types.WorkflowRequest{
		Type:      types.TypeShiftChange,
		Title:     "swap",
		Priority:  types.PriorityHigh,
		Requester: types.User{ID: "1", Department: "Ops"},
		Details:   types.ShiftChangeDetails{FromShift: "day", ToShift: "night"},
	}
	env, err := Env(&req)
	require.NoError(t, err)
	assert.Equal(t, "shift_change", env["type"])
	assert.Equal(t, "high", env["priority"])
	assert.Equal(t, "Ops", env["department"])
	assert.Equal(t, "night", env["to_shift"])
}
