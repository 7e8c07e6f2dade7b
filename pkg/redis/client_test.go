package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickcart/quickcart-backend/pkg/config"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	allowed, count, err := client.FixedWindowAllow(ctx, "checkout:user:1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(1), count)
	require.Len(t, mock.expires, 1)
	assert.Equal(t, "qc:rate_limit:checkout:user:1", mock.expires[0].key)
	assert.Equal(t, time.Minute, mock.expires[0].ttl)

	allowed, count, err = client.FixedWindowAllow(ctx, "checkout:user:1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(2), count)
	assert.Len(t, mock.expires, 1, "window must not be extended")

	allowed, _, err = client.FixedWindowAllow(ctx, "checkout:user:1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestFixedWindowAllowPropagatesErrors(t *testing.T) {
	mock := newMockCmdable()
	mock.incrErr = errors.New("connection refused")
	client := &Client{store: mock}

	_, _, err := client.FixedWindowAllow(context.Background(), "scope", 1, time.Second)
	assert.EqualError(t, err, "connection refused")
}

func TestReserveOverwriteAndDelete(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.IdempotencyKey("user:1|POST|/api/v1/checkout", "abc")

	stored, err := client.SetNX(ctx, key, "pending", time.Hour)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = client.SetNX(ctx, key, "other", time.Hour)
	require.NoError(t, err)
	assert.False(t, stored)

	require.NoError(t, client.Set(ctx, key, "done", time.Hour))
	value, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "done", value)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, Nil)
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	ctx := context.Background()
	assert.ErrorIs(t, client.Ping(ctx), errNotInitialized)
	_, err := client.Get(ctx, "k")
	assert.ErrorIs(t, err, errNotInitialized)
	assert.ErrorIs(t, client.Del(ctx, "k"), errNotInitialized)
	_, _, err = client.FixedWindowAllow(ctx, "s", 1, time.Second)
	assert.ErrorIs(t, err, errNotInitialized)
	assert.NoError(t, client.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7})
	require.NoError(t, err)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, "localhost:6379", opts.Addr)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6380", DB: 3, DialTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, time.Second, opts.DialTimeout)
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "qc:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "qc:rate_limit:scope", client.RateLimitKey("scope"))
	assert.Equal(t, "qc:idempotency:scope", client.IdempotencyKey("scope", " "))
}

type expireCall struct {
	key string
	ttl time.Duration
}

type mockCmdable struct {
	data    map[string]string
	counts  map[string]int64
	expires []expireCall
	incrErr error
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: map[string]string{}, counts: map[string]int64{}}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *mockCmdable) Incr(_ context.Context, key string) *redis.IntCmd {
	if m.incrErr != nil {
		return redis.NewIntResult(0, m.incrErr)
	}
	m.counts[key]++
	return redis.NewIntResult(m.counts[key], nil)
}

func (m *mockCmdable) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	m.expires = append(m.expires, expireCall{key: key, ttl: ttl})
	return redis.NewBoolResult(true, nil)
}
