package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/songzhibin97/approval-engine/config"
	"github.com/songzhibin97/approval-engine/directory"
	"github.com/songzhibin97/approval-engine/types"
	"github.com/songzhibin97/approval-engine/workflow"
)

// DemoCmd routes a leave and an expense request through the configured rules
// on an in-memory store and prints where they end up.
// Usage: approvalctl demo --days 5
type DemoCmd struct {
	Days   float64 `long:"days" description:"leave days requested" default:"5"`
	Amount int64   `long:"amount" description:"expense amount in cents" default:"750000"`
}

var demoUsers = []directory.Entry{
	{User: types.User{ID: "1", Name: "Kim", Department: "sales"}},
	{User: types.User{ID: "2", Name: "Lee", Department: "sales"}, Roles: []types.ApproverRole{types.RoleDirectManager}},
	{User: types.User{ID: "3", Name: "Choi", Department: "sales"}, Roles: []types.ApproverRole{types.RoleDepartmentHead}},
	{User: types.User{ID: "5", Name: "Park", Department: "people"}, Roles: []types.ApproverRole{types.RoleHRManager}},
	{User: types.User{ID: "6", Name: "Jung", Department: "finance"}, Roles: []types.ApproverRole{types.RoleFinanceManager}},
}

func (d *DemoCmd) Execute(_ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.Storage.Driver = config.DriverMemory
	if len(cfg.Directory.Users) == 0 {
		cfg.Directory.Users = demoUsers
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := context.Background()
	dir := directory.NewStatic(cfg.Directory.Users)
	requester := cfg.Directory.Users[0].User

	leaveID, err := d.submit(ctx, rt.engine, workflow.Draft{
		Type:      types.TypeLeave,
		Title:     "Demo leave",
		Requester: requester,
		Details: types.LeaveDetails{
			LeaveType: "annual",
			StartDate: time.Now().AddDate(0, 0, 7),
			EndDate:   time.Now().AddDate(0, 0, 7+int(d.Days)),
			Days:      d.Days,
		},
	})
	if err != nil {
		return err
	}
	if err := d.approveAll(ctx, rt.engine, dir, leaveID); err != nil {
		return err
	}

	expenseID, err := d.submit(ctx, rt.engine, workflow.Draft{
		Type:      types.TypeExpense,
		Title:     "Demo expense",
		Requester: requester,
		Priority:  types.PriorityHigh,
		Details: types.ExpenseDetails{
			Category: "travel",
			Amount:   d.Amount,
			Currency: "USD",
			SpentAt:  time.Now(),
		},
	})
	if err != nil {
		return err
	}
	req, err := rt.engine.GetRequest(ctx, expenseID)
	if err != nil {
		return err
	}
	step, _, err := req.ActiveStep()
	if err != nil {
		return err
	}
	approver, _ := dir.Lookup(step.ApproverID)
	if err := rt.engine.Reject(ctx, approver, expenseID, step.ID, "Receipts missing"); err != nil {
		return err
	}
	d.print(ctx, rt.engine, expenseID)

	stats, err := rt.engine.GetStatistics(ctx, requester.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "stats for %s: total=%d approved=%d rejected=%d pending=%d avg_days=%.2f\n",
		requester.Name, stats.Total, stats.Approved, stats.Rejected, stats.Pending, stats.AverageApprovalDays)

	inbox, err := rt.engine.ListNotifications(ctx, requester.ID)
	if err != nil {
		return err
	}
	for _, n := range inbox {
		fmt.Fprintf(os.Stdout, "  [%s] %s: %s\n", n.Type, n.Title, n.Message)
	}
	return nil
}

func (d *DemoCmd) submit(ctx context.Context, engine *workflow.Engine, draft workflow.Draft) (uint64, error) {
	id, err := engine.CreateRequest(ctx, draft)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", draft.Type, err)
	}
	if err := engine.SubmitRequest(ctx, draft.Requester, id); err != nil {
		return 0, fmt.Errorf("submit %s: %w", draft.Type, err)
	}
	return id, nil
}

// approveAll approves every step of a request as its approver.
func (d *DemoCmd) approveAll(ctx context.Context, engine *workflow.Engine, dir *directory.Static, id uint64) error {
	for {
		req, err := engine.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if !req.Status.Actionable() {
			d.print(ctx, engine, id)
			return nil
		}
		step, _, err := req.ActiveStep()
		if err != nil {
			return err
		}
		approver, ok := dir.Lookup(step.ApproverID)
		if !ok {
			return fmt.Errorf("approver %s of step %d is not in the directory", step.ApproverID, step.Order)
		}
		if err := engine.Approve(ctx, approver, id, step.ID, "Looks good"); err != nil {
			return err
		}
	}
}

func (d *DemoCmd) print(ctx context.Context, engine *workflow.Engine, id uint64) {
	req, err := engine.GetRequest(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stdout, "request %d: %v\n", id, err)
		return
	}
	fmt.Fprintf(os.Stdout, "%s request %d is %s\n", req.Type, req.ID, req.Status)
	for _, s := range req.Steps {
		fmt.Fprintf(os.Stdout, "  step %d %-16s %-6s %-9s %s\n", s.Order, s.ApproverRole, s.ApproverID, s.Status, s.Comments)
	}
}
