package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunops/sunops-backend/app/dto"
)

func TestListFilterKey(t *testing.T) {
	assert.Equal(t, "active=false|asof=any", ListFilterKey(false, ""))
	assert.Equal(t, "active=true|asof=2025-02-01", ListFilterKey(true, "2025-02-01"))
	assert.NotEqual(t, ListFilterKey(true, ""), ListFilterKey(false, ""))
}

func TestRateTableCacheDisabled(t *testing.T) {
	cache := NewRateTableCache(nil, "test:", time.Minute)
	ctx := context.Background()

	cache.Set(ctx, 1, ListFilterKey(false, ""), &dto.ListRateTablesResponse{Total: 1})

	resp, ok := cache.Get(ctx, 1, ListFilterKey(false, ""))
	assert.False(t, ok)
	assert.Nil(t, resp)
	assert.NoError(t, cache.InvalidateTenant(ctx, 1))
}

// TestRateTableCacheRedis runs against a live Redis when TEST_REDIS_URL is set
func TestRateTableCacheRedis(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rc := redis.NewClient(opt)
	defer rc.Close()

	ctx := context.Background()
	require.NoError(t, rc.Ping(ctx).Err())

	cache := NewRateTableCache(rc, "test:"+uuid.NewString()+":", time.Minute)
	key := ListFilterKey(true, "2025-02-01")
	listing := &dto.ListRateTablesResponse{
		Items: []dto.RateTableDTO{{ID: 5, Name: "Q1", VigencyStart: "2025-01-01", VigencyEnd: "2025-03-31", Active: true}},
		Total: 1,
	}

	cache.Set(ctx, 9, key, listing)

	got, ok := cache.Get(ctx, 9, key)
	require.True(t, ok)
	assert.Equal(t, listing.Items[0].Name, got.Items[0].Name)
	assert.Equal(t, 1, got.Total)

	_, ok = cache.Get(ctx, 10, key)
	assert.False(t, ok, "listings are isolated by tenant")

	require.NoError(t, cache.InvalidateTenant(ctx, 9))
	_, ok = cache.Get(ctx, 9, key)
	assert.False(t, ok)
}
