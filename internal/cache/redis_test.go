package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_pos/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a SnapshotCache instance
func setupTestRedis(t *testing.T) (*SnapshotCache, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewSnapshotCache(client, "t1")

	cleanup := func() {
		client.Close()
		mr.Close()
	}
	return cache, mr, cleanup
}

func TestSetGet_RoundTrip(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	raws := []json.RawMessage{
		json.RawMessage(`{"id":"p-1","stock":3}`),
		json.RawMessage(`{"id":"p-2","stock":0}`),
	}
	require.NoError(t, cache.Set(ctx, domain.EntityProduct, raws))

	got, err := cache.Get(ctx, domain.EntityProduct)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"id":"p-1","stock":3}`, string(got[0]))
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	got, err := cache.Get(context.Background(), domain.EntityOrder)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, got)
}

func TestGet_InvalidJSON(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	mr.Set(cache.key(domain.EntityOrder), "not json")

	_, err := cache.Get(context.Background(), domain.EntityOrder)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal orders snapshot failed")
}

func TestSet_EmptyCollectionIsCached(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, domain.EntityExpense, nil))

	got, err := cache.Get(ctx, domain.EntityExpense)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSet_TTLWithJitter(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, cache.Set(context.Background(), domain.EntityCustomer, nil))

	ttl := mr.TTL(cache.key(domain.EntityCustomer))
	assert.GreaterOrEqual(t, ttl, DefaultTTL)
	assert.Less(t, ttl, DefaultTTL+30*time.Minute)
}

func TestSnapshotExpires(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, domain.EntityOrder, nil))
	mr.FastForward(DefaultTTL + time.Hour)

	_, err := cache.Get(ctx, domain.EntityOrder)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestKeysAreScopedPerTerminal(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, domain.EntityOrder, []json.RawMessage{json.RawMessage(`{"id":"o-1"}`)}))

	other := NewSnapshotCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "t2")
	_, err := other.Get(ctx, domain.EntityOrder)
	assert.ErrorIs(t, err, ErrCacheMiss)
}
