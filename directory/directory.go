// Package directory resolves which user holds an approver role for a given
// requester. The engine never authenticates; it only asks the directory who
// should sit on a step.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/songzhibin97/approval-engine/types"
)

// ErrNoApprover is returned when no user holds the role.
var ErrNoApprover = errors.New("no approver for role")

// Directory resolves a role to the user who approves for requester.
type Directory interface {
	Resolve(ctx context.Context, role types.ApproverRole, requester types.User) (types.User, error)
}

// Entry is one user of a static directory together with the roles they hold.
type Entry struct {
	types.User `yaml:",inline"`
	Roles      []types.ApproverRole `yaml:"roles"`
}

// Static is an in-memory Directory. Department-bound roles resolve to a
// holder in the requester's department first and fall back to any holder.
type Static struct {
	entries []Entry
}

// NewStatic creates a Static directory from entries.
func NewStatic(entries []Entry) *Static {
	return &Static{entries: append([]Entry(nil), entries...)}
}

// departmentScoped roles are held per department.
func departmentScoped(role types.ApproverRole) bool {
	return role == types.RoleDirectManager || role == types.RoleDepartmentHead
}

// Resolve implements Directory.
func (s *Static) Resolve(ctx context.Context, role types.ApproverRole, requester types.User) (types.User, error) {
	if err := ctx.Err(); err != nil {
		return types.User{}, err
	}
	var fallback *types.User
	for i := range s.entries {
		e := &s.entries[i]
		if e.ID == requester.ID || !hasRole(e.Roles, role) {
			continue
		}
		if !departmentScoped(role) || e.Department == requester.Department {
			return e.User, nil
		}
		if fallback == nil {
			fallback = &e.User
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return types.User{}, fmt.Errorf("%w: role=%s requester=%s", ErrNoApprover, role, requester.ID)
}

// Lookup returns the entry for a user ID.
func (s *Static) Lookup(id string) (types.User, bool) {
	for _, e := range s.entries {
		if e.ID == id {
			return e.User, true
		}
	}
	return types.User{}, false
}

func hasRole(roles []types.ApproverRole, role types.ApproverRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
