package rules

import (
	"errors"
	"fmt"

	"github.com/songzhibin97/approval-engine/types"
)

// ErrNoRoute is returned when no route matches a request.
var ErrNoRoute = errors.New("no approval route matches request")

// StepRule adds a step for Role when When evaluates to true. An empty
// condition always matches.
type StepRule struct {
	Role types.ApproverRole `yaml:"role"`
	When string             `yaml:"when"`
}

// Route describes the approval chain for one request type.
type Route struct {
	Type       types.RequestType       `yaml:"type"`
	When       string                  `yaml:"when"`
	Steps      []StepRule              `yaml:"steps"`
	Escalation *types.EscalationPolicy `yaml:"escalation"`
}

// Plan is the outcome of routing a request.
type Plan struct {
	Roles      []types.ApproverRole
	Escalation *types.EscalationPolicy
}

// Router picks the approval chain of a request from an ordered route table.
// The first route whose type and condition match wins.
type Router struct {
	routes    []Route
	evaluator Evaluator
}

// NewRouter creates a Router. A nil evaluator defaults to NewRouteEvaluator.
func NewRouter(routes []Route, evaluator Evaluator) *Router {
	if evaluator == nil {
		evaluator = NewRouteEvaluator()
	}
	return &Router{routes: routes, evaluator: evaluator}
}

// Env builds the expression environment of a request: its details fields
// plus type, priority, department and title.
func Env(req *types.WorkflowRequest) (map[string]interface{}, error) {
	env, err := types.DetailsFields(req.Details)
	if err != nil {
		return nil, fmt.Errorf("failed to flatten details: %w", err)
	}
	env["type"] = string(req.Type)
	env["priority"] = string(req.Priority)
	env["department"] = req.Requester.Department
	env["title"] = req.Title
	return env, nil
}

// Route evaluates the route table against req.
func (r *Router) Route(req *types.WorkflowRequest) (Plan, error) {
	env, err := Env(req)
	if err != nil {
		return Plan{}, err
	}
	for _, route := range r.routes {
		if route.Type != req.Type {
			continue
		}
		ok, err := r.evaluator.Evaluate(route.When, env)
		if err != nil {
			return Plan{}, fmt.Errorf("failed to evaluate route condition '%s': %w", route.When, err)
		}
		if !ok {
			continue
		}
		plan := Plan{Escalation: route.Escalation}
		for _, step := range route.Steps {
			ok, err := r.evaluator.Evaluate(step.When, env)
			if err != nil {
				return Plan{}, fmt.Errorf("failed to evaluate step condition '%s': %w", step.When, err)
			}
			if ok {
				plan.Roles = append(plan.Roles, step.Role)
			}
		}
		if len(plan.Roles) == 0 {
			return Plan{}, fmt.Errorf("%w: route for %s selected no steps", ErrNoRoute, req.Type)
		}
		return plan, nil
	}
	return Plan{}, fmt.Errorf("%w: type=%s", ErrNoRoute, req.Type)
}

// DefaultRoutes is the built-in route table used when configuration does
// not provide one. Amounts are in the smallest currency unit.
func DefaultRoutes() []Route {
	standard := &types.EscalationPolicy{
		Enabled:             true,
		DaysUntilEscalation: 3,
		EscalationPath:      []types.ApproverRole{types.RoleDirectManager, types.RoleDepartmentHead, types.RoleHRManager},
	}
	finance := &types.EscalationPolicy{
		Enabled:             true,
		DaysUntilEscalation: 5,
		EscalationPath:      []types.ApproverRole{types.RoleDepartmentHead, types.RoleFinanceManager, types.RoleGeneralManager},
	}
	return []Route{
		{Type: types.TypeLeave, Escalation: standard, Steps: []StepRule{
			{Role: types.RoleDirectManager},
			{Role: types.RoleHRManager, When: "days > 3"},
		}},
		{Type: types.TypeExpense, Escalation: finance, Steps: []StepRule{
			{Role: types.RoleDirectManager},
			{Role: types.RoleFinanceManager, When: "amount > 500000"},
		}},
		{Type: types.TypeOvertime, Escalation: standard, Steps: []StepRule{
			{Role: types.RoleDirectManager},
			{Role: types.RoleHRManager, When: "hours > 12"},
		}},
		{Type: types.TypeBusinessTrip, Escalation: standard, Steps: []StepRule{
			{Role: types.RoleDirectManager},
			{Role: types.RoleDepartmentHead, When: "estimated_budget > 1000000"},
		}},
		{Type: types.TypeRemoteWork, Escalation: standard, Steps: []StepRule{
			{Role: types.RoleDirectManager},
		}},
		{Type: types.TypePurchase, Escalation: finance, Steps: []StepRule{
			{Role: types.RoleDepartmentHead},
			{Role: types.RoleFinanceManager},
			{Role: types.RoleGeneralManager, When: "amount_total > 5000000"},
			{Role: types.RoleCEO, When: "amount_total > 50000000"},
		}},
		{Type: types.TypeBankAccountChange, Steps: []StepRule{
			{Role: types.RoleHRManager},
			{Role: types.RoleFinanceManager},
		}},
		{Type: types.TypeFamilyInfoChange, Steps: []StepRule{
			{Role: types.RoleHRManager},
		}},
		{Type: types.TypeCommuteRouteChange, Steps: []StepRule{
			{Role: types.RoleDirectManager},
			{Role: types.RoleHRManager},
		}},
		{Type: types.TypeDocumentApproval, Escalation: standard, Steps: []StepRule{
			{Role: types.RoleDepartmentHead},
			{Role: types.RoleGeneralManager, When: "priority == 'urgent'"},
		}},
		{Type: types.TypeShiftChange, Escalation: standard, Steps: []StepRule{
			{Role: types.RoleDirectManager},
		}},
	}
}
