package storage

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/types"
)

func setupTestCache(t *testing.T, ttl time.Duration) (*CacheService, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rc := NewRedisCacheFromClient(client)
	t.Cleanup(func() { _ = rc.Close() })

	return NewCacheService(rc, ttl), mr
}

func TestCacheService_SetGet(t *testing.T) {
	cache, mr := setupTestCache(t, 30*time.Second)
	ctx := testContext(t)

	list := &types.TotalList{Items: []types.TotalItem{
		{Symbol: "BTC", ValueUSD: decimal.RequireFromString("25000"), Percentage: decimal.RequireFromString("96.15")},
		{Symbol: "USDT", ValueUSD: decimal.RequireFromString("1000"), Percentage: decimal.RequireFromString("3.85")},
	}}
	require.NoError(t, cache.Set(ctx, "portfolio:total", list))

	assert.True(t, mr.Exists("portfolio:total"))
	assert.Equal(t, 30*time.Second, mr.TTL("portfolio:total"))

	var got types.TotalList
	hit, err := cache.Get(ctx, "portfolio:total", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "BTC", got.Items[0].Symbol)
	assert.True(t, got.Total().Equal(decimal.RequireFromString("26000")))
}

func TestCacheService_MissIsNotAnError(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)

	var got types.TotalList
	hit, err := cache.Get(testContext(t), "portfolio:total", &got)
	assert.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheService_Expiry(t *testing.T) {
	cache, mr := setupTestCache(t, 10*time.Second)
	ctx := testContext(t)

	require.NoError(t, cache.Set(ctx, "k", map[string]int{"a": 1}))
	mr.FastForward(11 * time.Second)

	var got map[string]int
	hit, err := cache.Get(ctx, "k", &got)
	assert.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheService_Invalidate(t *testing.T) {
	cache, mr := setupTestCache(t, time.Minute)
	ctx := testContext(t)

	require.NoError(t, cache.Set(ctx, "a", 1))
	require.NoError(t, cache.Set(ctx, "b", 2))
	require.NoError(t, cache.Invalidate(ctx, "a", "b"))
	require.NoError(t, cache.Invalidate(ctx))

	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
}

func TestCacheService_CorruptValue(t *testing.T) {
	cache, mr := setupTestCache(t, time.Minute)
	require.NoError(t, mr.Set("portfolio:total", "{not json"))

	var got types.TotalList
	hit, err := cache.Get(testContext(t), "portfolio:total", &got)
	assert.False(t, hit)
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryCache, apperrors.Categorize(err).Category)
}

func TestCacheService_ServerDown(t *testing.T) {
	cache, mr := setupTestCache(t, time.Minute)
	mr.Close()

	var got types.TotalList
	_, err := cache.Get(testContext(t), "portfolio:total", &got)
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}
