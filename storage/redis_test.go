package storage

import (
	"context"
	"testing"
	"time"

	"github.com/songzhibin97/approval-engine/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedis connects to a local Redis on a scratch database and skips the
// test when none is running.
func newTestRedis(t *testing.T) *RedisStorage {
	t.Helper()
	store, err := NewRedisStorage(RedisOptions{
		Addr:         "localhost:6379",
		DB:           15,
		PoolSize:     10,
		MinIdleConns: 2,
		IdleTimeout:  5 * time.Minute,
	})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	require.NoError(t, store.client.FlushDB(context.Background()).Err())
	t.Cleanup(func() {
		store.client.FlushDB(context.Background())
		store.Close()
	})
	return store
}

func TestRedisStorage(t *testing.T) {
	t.Run("ConnectionFailure", func(t *testing.T) {
		_, err := NewRedisStorage(RedisOptions{Addr: "invalid:6379"})
		assert.Error(t, err)
	})

	t.Run("CreateAndGetRequest", func(t *testing.T) {
		store := newTestRedis(t)
		ctx := context.Background()

		req := newRequest(1, types.StatusDraft)
		require.NoError(t, store.CreateRequest(ctx, req))

		got, err := store.GetRequest(ctx, 1)
		assert.NoError(t, err)
		assert.Equal(t, req.ID, got.ID)
		assert.Equal(t, req.Steps, got.Steps)
		assert.IsType(t, types.LeaveDetails{}, got.Details)

		_, err = store.GetRequest(ctx, 2)
		assert.ErrorIs(t, err, ErrRequestNotFound)
		assert.ErrorIs(t, store.CreateRequest(ctx, req), ErrRequestExists)
	})

	t.Run("UpdateRequestChecksVersion", func(t *testing.T) {
		store := newTestRedis(t)
		ctx := context.Background()
		require.NoError(t, store.CreateRequest(ctx, newRequest(1, types.StatusDraft)))

		req := newRequest(1, types.StatusPending)
		req.Version = 2
		assert.NoError(t, store.UpdateRequest(ctx, req, 1))
		assert.ErrorIs(t, store.UpdateRequest(ctx, req, 1), ErrVersionConflict)

		got, err := store.GetRequest(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, types.StatusPending, got.Status)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("ListAndClearClosed", func(t *testing.T) {
		store := newTestRedis(t)
		ctx := context.Background()
		require.NoError(t, store.CreateRequest(ctx, newRequest(2, types.StatusPending)))
		require.NoError(t, store.CreateRequest(ctx, newRequest(1, types.StatusCompleted)))

		reqs, err := store.ListRequests(ctx)
		require.NoError(t, err)
		require.Len(t, reqs, 2)
		assert.Equal(t, uint64(1), reqs[0].ID)

		removed, err := store.ClearClosed(ctx, baseTime.Add(time.Hour))
		assert.NoError(t, err)
		assert.Equal(t, 1, removed)

		reqs, err = store.ListRequests(ctx)
		require.NoError(t, err)
		require.Len(t, reqs, 1)
		assert.Equal(t, uint64(2), reqs[0].ID)
	})

	t.Run("Notifications", func(t *testing.T) {
		store := newTestRedis(t)
		ctx := context.Background()

		require.NoError(t, store.AddNotification(ctx, newNotification("a", "1", baseTime)))
		require.NoError(t, store.AddNotification(ctx, newNotification("b", "1", baseTime.Add(time.Minute))))

		ns, err := store.ListNotifications(ctx, "1")
		require.NoError(t, err)
		require.Len(t, ns, 2)
		assert.Equal(t, "b", ns[0].ID)

		require.NoError(t, store.MarkNotificationRead(ctx, "1", "a"))
		ns, _ = store.ListNotifications(ctx, "1")
		assert.True(t, ns[1].Read)
		assert.ErrorIs(t, store.MarkNotificationRead(ctx, "2", "a"), ErrNotificationNotFound)
	})
}
