package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/songzhibin97/approval-engine/storage"
	"github.com/songzhibin97/approval-engine/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreEmitterFillsIDAndTimestamp(t *testing.T) {
	store := storage.NewMemoryStorage()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	emitter := NewStoreEmitter(store, func() time.Time { return at })
	ctx := context.Background()

	err := emitter.AddNotification(ctx, types.Notification{UserID: "1", Title: "Approved", Type: types.NotificationSuccess})
	require.NoError(t, err)

	ns, err := store.ListNotifications(ctx, "1")
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.NotEmpty(t, ns[0].ID)
	assert.Equal(t, at, ns[0].Timestamp)
	assert.Equal(t, "Approved", ns[0].Title)
}

func TestStoreEmitterKeepsCallerFields(t *testing.T) {
	store := storage.NewMemoryStorage()
	emitter := NewStoreEmitter(store, nil)
	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, emitter.AddNotification(context.Background(), types.Notification{ID: "n-1", UserID: "1", Timestamp: at}))
	ns, _ := store.ListNotifications(context.Background(), "1")
	require.Len(t, ns, 1)
	assert.Equal(t, "n-1", ns[0].ID)
	assert.Equal(t, at, ns[0].Timestamp)
}

func TestLogEmitter(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(zerolog.New(&buf))
	err := emitter.AddNotification(context.Background(), types.Notification{UserID: "4", RequestID: 9, Message: "Step delegated to you"})
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), `"user_id":"4"`)
	assert.Contains(t, buf.String(), `"request_id":9`)
	assert.Contains(t, buf.String(), "Step delegated to you")
}

func TestMulti(t *testing.T) {
	var calls int
	ok := EmitterFunc(func(ctx context.Context, n types.Notification) error {
		calls++
		return nil
	})
	boom := errors.New("boom")
	failing := EmitterFunc(func(ctx context.Context, n types.Notification) error {
		calls++
		return boom
	})

	err := Multi{ok, failing, ok}.AddNotification(context.Background(), types.Notification{UserID: "1"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)

	assert.NoError(t, Multi{ok}.AddNotification(context.Background(), types.Notification{}))
}
