package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/songzhibin97/approval-engine/types"
)

// Statistics summarises the requests a user submitted.
type Statistics struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	// AverageApprovalDays is the mean of CompletedAt minus CreatedAt over
	// approved and completed requests, zero when there are none.
	AverageApprovalDays float64 `json:"average_approval_days"`
}

// GetPendingApprovals returns the requests waiting on userID, as approver or
// delegate of the active step. The most urgent deadline comes first.
func (e *Engine) GetPendingApprovals(ctx context.Context, userID string) ([]types.WorkflowRequest, error) {
	return e.awaiting(ctx, func(step *types.ApprovalStep) bool {
		return step.Entitled(userID)
	})
}

// GetDelegatedApprovals returns the requests whose active step was delegated
// to userID.
func (e *Engine) GetDelegatedApprovals(ctx context.Context, userID string) ([]types.WorkflowRequest, error) {
	return e.awaiting(ctx, func(step *types.ApprovalStep) bool {
		return step.DelegatedTo != nil && step.DelegatedTo.ID == userID
	})
}

func (e *Engine) awaiting(ctx context.Context, match func(step *types.ApprovalStep) bool) ([]types.WorkflowRequest, error) {
	reqs, err := e.store.ListRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}

	type entry struct {
		req      types.WorkflowRequest
		deadline time.Time
		hasDue   bool
	}
	var out []entry
	for _, req := range reqs {
		if !req.Status.Actionable() {
			continue
		}
		step, idx, err := req.ActiveStep()
		if err != nil {
			e.log.Warn().Err(err).Uint64("request_id", req.ID).Msg("skipping request with broken step sequence")
			continue
		}
		if !match(step) {
			continue
		}
		deadline, ok := req.Deadline(idx)
		out = append(out, entry{req: req, deadline: deadline, hasDue: ok})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.hasDue != b.hasDue {
			return a.hasDue
		}
		if a.hasDue && !a.deadline.Equal(b.deadline) {
			return a.deadline.Before(b.deadline)
		}
		if !a.req.CreatedAt.Equal(b.req.CreatedAt) {
			return a.req.CreatedAt.Before(b.req.CreatedAt)
		}
		return a.req.ID < b.req.ID
	})

	result := make([]types.WorkflowRequest, len(out))
	for i := range out {
		result[i] = out[i].req
	}
	return result, nil
}

// GetMyRequests returns every request submitted by userID, oldest first.
func (e *Engine) GetMyRequests(ctx context.Context, userID string) ([]types.WorkflowRequest, error) {
	reqs, err := e.store.ListRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	var mine []types.WorkflowRequest
	for _, req := range reqs {
		if req.Requester.ID == userID {
			mine = append(mine, req)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool {
		if !mine[i].CreatedAt.Equal(mine[j].CreatedAt) {
			return mine[i].CreatedAt.Before(mine[j].CreatedAt)
		}
		return mine[i].ID < mine[j].ID
	})
	return mine, nil
}

// GetStatistics counts the requests of userID by outcome.
func (e *Engine) GetStatistics(ctx context.Context, userID string) (Statistics, error) {
	mine, err := e.GetMyRequests(ctx, userID)
	if err != nil {
		return Statistics{}, err
	}

	var stats Statistics
	var days float64
	var resolved int
	for _, req := range mine {
		stats.Total++
		switch req.Status {
		case types.StatusPending, types.StatusInReview, types.StatusPartiallyApproved, types.StatusEscalated:
			stats.Pending++
		case types.StatusApproved, types.StatusCompleted:
			stats.Approved++
			if req.CompletedAt != nil {
				days += req.CompletedAt.Sub(req.CreatedAt).Hours() / 24
				resolved++
			}
		case types.StatusRejected:
			stats.Rejected++
		}
	}
	if resolved > 0 {
		stats.AverageApprovalDays = days / float64(resolved)
	}
	return stats, nil
}
