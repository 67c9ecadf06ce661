package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/songzhibin97/approval-engine/types"
)

const (
	requestPrefix      = "request:"
	requestIndexKey    = "requests"
	notificationPrefix = "notification:"
	inboxPrefix        = "inbox:"
)

// RedisStorage is a Redis-backed implementation of the Storage interface.
type RedisStorage struct {
	client *redis.Client
}

// RedisOptions extends redis.Options with additional configuration.
type RedisOptions struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"poolSize"`
	MinIdleConns int           `yaml:"minIdleConns"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// NewRedisStorage creates a new RedisStorage instance with configurable options.
func NewRedisStorage(opts RedisOptions) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		IdleTimeout:  opts.IdleTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return &RedisStorage{client: client}, nil
}

func requestKey(id uint64) string {
	return requestPrefix + strconv.FormatUint(id, 10)
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// getFromRedis retrieves and unmarshals a value from Redis.
func getFromRedis[T any](ctx context.Context, cmd getter, key string, errNotFound error) (T, error) {
	return withContext(ctx, func() (T, error) {
		var zero T
		data, err := cmd.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return zero, fmt.Errorf("%w: key=%s", errNotFound, key)
		} else if err != nil {
			return zero, fmt.Errorf("failed to get %s from Redis: %v", key, err)
		}

		var result T
		if err := json.Unmarshal(data, &result); err != nil {
			return zero, fmt.Errorf("failed to unmarshal %s: %v", key, err)
		}
		return result, nil
	})
}

// CreateRequest stores a new request and adds it to the request index.
func (s *RedisStorage) CreateRequest(ctx context.Context, req types.WorkflowRequest) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to marshal request %d: %v", req.ID, err)
		}
		key := requestKey(req.ID)
		ok, err := s.client.SetNX(ctx, key, data, 0).Result()
		if err != nil {
			return fmt.Errorf("failed to set %s in Redis: %v", key, err)
		}
		if !ok {
			return fmt.Errorf("%w: id=%d", ErrRequestExists, req.ID)
		}
		if err := s.client.SAdd(ctx, requestIndexKey, req.ID).Err(); err != nil {
			return fmt.Errorf("failed to index %s: %v", key, err)
		}
		return nil
	})
}

// GetRequest retrieves a request from Redis.
func (s *RedisStorage) GetRequest(ctx context.Context, id uint64) (types.WorkflowRequest, error) {
	return getFromRedis[types.WorkflowRequest](ctx, s.client, requestKey(id), ErrRequestNotFound)
}

// UpdateRequest replaces a request inside a WATCH/MULTI transaction so that
// concurrent writers cannot overwrite each other.
func (s *RedisStorage) UpdateRequest(ctx context.Context, req types.WorkflowRequest, expectedVersion int64) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to marshal request %d: %v", req.ID, err)
		}
		key := requestKey(req.ID)
		err = s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := getFromRedis[types.WorkflowRequest](ctx, tx, key, ErrRequestNotFound)
			if err != nil {
				return err
			}
			if current.Version != expectedVersion {
				return fmt.Errorf("%w: id=%d stored=%d expected=%d", ErrVersionConflict, req.ID, current.Version, expectedVersion)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("%w: id=%d modified concurrently", ErrVersionConflict, req.ID)
		}
		return err
	})
}

// ListRequests loads every indexed request.
func (s *RedisStorage) ListRequests(ctx context.Context) ([]types.WorkflowRequest, error) {
	return withContext(ctx, func() ([]types.WorkflowRequest, error) {
		ids, err := s.client.SMembers(ctx, requestIndexKey).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read request index: %v", err)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = requestPrefix + id
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to load requests: %v", err)
		}
		out := make([]types.WorkflowRequest, 0, len(values))
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				// indexed but deleted
				continue
			}
			var req types.WorkflowRequest
			if err := json.Unmarshal([]byte(raw), &req); err != nil {
				return nil, fmt.Errorf("failed to unmarshal %s: %v", keys[i], err)
			}
			out = append(out, req)
		}
		sortRequests(out)
		return out, nil
	})
}

// ClearClosed removes cancelled and completed requests from Redis.
func (s *RedisStorage) ClearClosed(ctx context.Context, before time.Time) (int, error) {
	reqs, err := s.ListRequests(ctx)
	if err != nil {
		return 0, err
	}
	return withContext(ctx, func() (int, error) {
		pipe := s.client.Pipeline()
		removed := 0
		for _, req := range reqs {
			if closed(req, before) {
				pipe.Del(ctx, requestKey(req.ID))
				pipe.SRem(ctx, requestIndexKey, req.ID)
				removed++
			}
		}
		if removed == 0 {
			return 0, nil
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, fmt.Errorf("failed to execute pipeline for deletion: %v", err)
		}
		return removed, nil
	})
}

// AddNotification stores a notification and appends it to the user's inbox.
func (s *RedisStorage) AddNotification(ctx context.Context, n types.Notification) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("failed to marshal notification %s: %v", n.ID, err)
		}
		pipe := s.client.TxPipeline()
		pipe.Set(ctx, notificationPrefix+n.ID, data, 0)
		pipe.RPush(ctx, inboxPrefix+n.UserID, n.ID)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to store notification %s: %v", n.ID, err)
		}
		return nil
	})
}

// ListNotifications returns the user's inbox, newest first.
func (s *RedisStorage) ListNotifications(ctx context.Context, userID string) ([]types.Notification, error) {
	return withContext(ctx, func() ([]types.Notification, error) {
		ids, err := s.client.LRange(ctx, inboxPrefix+userID, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read inbox of %s: %v", userID, err)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = notificationPrefix + id
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to load notifications: %v", err)
		}
		out := make([]types.Notification, 0, len(values))
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var n types.Notification
			if err := json.Unmarshal([]byte(raw), &n); err != nil {
				return nil, fmt.Errorf("failed to unmarshal %s: %v", keys[i], err)
			}
			out = append(out, n)
		}
		sortNotifications(out)
		return out, nil
	})
}

// MarkNotificationRead flags a notification as read.
func (s *RedisStorage) MarkNotificationRead(ctx context.Context, userID, id string) error {
	key := notificationPrefix + id
	n, err := getFromRedis[types.Notification](ctx, s.client, key, ErrNotificationNotFound)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return fmt.Errorf("%w: id=%s", ErrNotificationNotFound, id)
	}
	n.Read = true
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification %s: %v", id, err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s in Redis: %v", key, err)
	}
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
