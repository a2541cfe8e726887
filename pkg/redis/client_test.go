package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/leagueledger/backend/pkg/config"
)

func TestOptionsFromConfigRequiresTarget(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)
}

func TestOptionsFromConfigFillsDefaultsFromFields(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{
		Address:      "localhost:6379",
		Password:     "secret",
		DB:           2,
		PoolSize:     15,
		MinIdleConns: 3,
		DialTimeout:  time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", opts.Addr)
	require.Equal(t, "secret", opts.Password)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, 15, opts.PoolSize)
	require.Equal(t, 3, opts.MinIdleConns)
	require.Equal(t, time.Second, opts.DialTimeout)
}

func TestOptionsFromConfigPrefersURL(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{
		URL:      "redis://:pw@redis.internal:6380/1",
		Address:  "ignored:6379",
		PoolSize: 20,
	})
	require.NoError(t, err)
	require.Equal(t, "redis.internal:6380", opts.Addr)
	require.Equal(t, 1, opts.DB)
	require.Equal(t, 20, opts.PoolSize)
}

func TestFixedWindowAllowCountsWithinWindow(t *testing.T) {
	ctx := context.Background()
	store := newFakeCmdable()
	client := &Client{store: store}

	allowed, count, err := client.FixedWindowAllow(ctx, "webhooks", 2, time.Second)
	require.NoError(t, err)
	require.True(t, allowed)
	require.EqualValues(t, 1, count)
	require.Equal(t, []string{"ll:rate_limit:webhooks"}, store.expired)

	allowed, count, err = client.FixedWindowAllow(ctx, "webhooks", 2, time.Second)
	require.NoError(t, err)
	require.True(t, allowed)
	require.EqualValues(t, 2, count)
	// TTL only stamped on window creation.
	require.Len(t, store.expired, 1)

	allowed, _, err = client.FixedWindowAllow(ctx, "webhooks", 2, time.Second)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestSetNXClaimsOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newFakeCmdable()}
	key := client.IdempotencyKey("stripe", "evt_1")

	claimed, err := client.SetNX(ctx, key, "1", time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = client.SetNX(ctx, key, "1", time.Minute)
	require.NoError(t, err)
	require.False(t, claimed)

	require.NoError(t, client.Del(ctx, key))
	claimed, err = client.SetNX(ctx, key, "1", time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)
}

func TestIdempotencyKeySkipsBlankParts(t *testing.T) {
	client := &Client{}
	require.Equal(t, "ll:idem:stripe:evt_1", client.IdempotencyKey("stripe", "evt_1"))
	require.Equal(t, "ll:idem:evt_2", client.IdempotencyKey("  ", "evt_2"))
}

func TestCompareAndDeleteOnlyMatchingValue(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newFakeCmdable()}

	claimed, err := client.SetNX(ctx, "ll:lock:sync", "token-a", time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	deleted, err := client.CompareAndDelete(ctx, "ll:lock:sync", "token-b")
	require.NoError(t, err)
	require.False(t, deleted)

	deleted, err = client.CompareAndDelete(ctx, "ll:lock:sync", "token-a")
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = client.CompareAndDelete(ctx, "ll:lock:sync", "token-a")
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestZeroClientRejectsCommands(t *testing.T) {
	client := &Client{}
	_, err := client.CompareAndDelete(context.Background(), "k", "v")
	require.ErrorIs(t, err, errNotInitialized)
	require.ErrorIs(t, client.Ping(context.Background()), errNotInitialized)
	require.NoError(t, client.Close())
}

type fakeCmdable struct {
	values   map[string]string
	counters map[string]int64
	expired  []string
}

func newFakeCmdable() *fakeCmdable {
	return &fakeCmdable{
		values:   make(map[string]string),
		counters: make(map[string]int64),
	}
}

func (f *fakeCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := f.values[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCmdable) Incr(_ context.Context, key string) *redis.IntCmd {
	f.counters[key]++
	return redis.NewIntResult(f.counters[key], nil)
}

func (f *fakeCmdable) Expire(_ context.Context, key string, _ time.Duration) *redis.BoolCmd {
	f.expired = append(f.expired, key)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(f.values, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// Eval only understands the compare-and-delete script the client ships.
func (f *fakeCmdable) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	if len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected eval arguments"))
	}
	if f.values[keys[0]] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(f.values, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}
