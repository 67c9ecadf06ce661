package directory

import (
	"context"
	"testing"

	"github.com/songzhibin97/approval-engine/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntries() []Entry {
	return []Entry{
		{User: types.User{ID: "2", Name: "Park", Department: "Sales"}, Roles: []types.ApproverRole{types.RoleDirectManager}},
		{User: types.User{ID: "3", Name: "Choi", Department: "R&D"}, Roles: []types.ApproverRole{types.RoleDirectManager, types.RoleDepartmentHead}},
		{User: types.User{ID: "5", Name: "Jung", Department: "HR"}, Roles: []types.ApproverRole{types.RoleHRManager}},
	}
}

func TestStaticResolve(t *testing.T) {
	dir := NewStatic(testEntries())
	ctx := context.Background()

	t.Run("SameDepartmentFirst", func(t *testing.T) {
		u, err := dir.Resolve(ctx, types.RoleDirectManager, types.User{ID: "1", Department: "R&D"})
		require.NoError(t, err)
		assert.Equal(t, "3", u.ID)
	})

	t.Run("FallbackToAnyHolder", func(t *testing.T) {
		u, err := dir.Resolve(ctx, types.RoleDepartmentHead, types.User{ID: "1", Department: "Sales"})
		require.NoError(t, err)
		assert.Equal(t, "3", u.ID)
	})

	t.Run("CompanyWideRole", func(t *testing.T) {
		u, err := dir.Resolve(ctx, types.RoleHRManager, types.User{ID: "1", Department: "Sales"})
		require.NoError(t, err)
		assert.Equal(t, "5", u.ID)
	})

	t.Run("RequesterNeverApprovesOwnRequest", func(t *testing.T) {
		_, err := dir.Resolve(ctx, types.RoleHRManager, types.User{ID: "5", Department: "HR"})
		assert.ErrorIs(t, err, ErrNoApprover)
	})

	t.Run("UnknownRole", func(t *testing.T) {
		_, err := dir.Resolve(ctx, types.RoleCEO, types.User{ID: "1"})
		assert.ErrorIs(t, err, ErrNoApprover)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := dir.Resolve(cctx, types.RoleHRManager, types.User{ID: "1"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestStaticLookup(t *testing.T) {
	dir := NewStatic(testEntries())
	u, ok := dir.Lookup("5")
	assert.True(t, ok)
	assert.Equal(t, "Jung", u.Name)
	_, ok = dir.Lookup("42")
	assert.False(t, ok)
}
