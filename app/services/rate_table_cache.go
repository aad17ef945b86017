package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sunops/sunops-backend/app/dto"
)

// RateTableCache is a cache-aside store for rate table listings.
// All listings of a tenant live in one hash so a single DEL invalidates them.
type RateTableCache interface {
	Get(ctx context.Context, tenantID uint, filterKey string) (*dto.ListRateTablesResponse, bool)
	Set(ctx context.Context, tenantID uint, filterKey string, resp *dto.ListRateTablesResponse)
	InvalidateTenant(ctx context.Context, tenantID uint) error
}

// RateTableCacheImpl implements RateTableCache on Redis
type RateTableCacheImpl struct {
	rc     *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRateTableCache creates a Redis-backed listing cache. A nil client disables caching.
func NewRateTableCache(rc *redis.Client, prefix string, ttl time.Duration) RateTableCache {
	return &RateTableCacheImpl{rc: rc, prefix: prefix, ttl: ttl}
}

// ListFilterKey builds the hash field for a listing filter
func ListFilterKey(activeOnly bool, asOf string) string {
	if asOf == "" {
		asOf = "any"
	}
	return "active=" + strconv.FormatBool(activeOnly) + "|asof=" + asOf
}

func (c *RateTableCacheImpl) tenantKey(tenantID uint) string {
	return fmt.Sprintf("%srate_tables:tenant:%d", c.prefix, tenantID)
}

// Get returns a cached listing; any Redis or decode failure is reported as a miss
func (c *RateTableCacheImpl) Get(ctx context.Context, tenantID uint, filterKey string) (*dto.ListRateTablesResponse, bool) {
	if c == nil || c.rc == nil {
		return nil, false
	}

	bs, err := c.rc.HGet(ctx, c.tenantKey(tenantID), filterKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("rate table cache get failed for tenant %d: %v", tenantID, err)
		}
		return nil, false
	}

	var out dto.ListRateTablesResponse
	if err := json.Unmarshal(bs, &out); err != nil {
		return nil, false
	}
	return &out, true
}

// Set stores a listing and refreshes the tenant hash TTL
func (c *RateTableCacheImpl) Set(ctx context.Context, tenantID uint, filterKey string, resp *dto.ListRateTablesResponse) {
	if c == nil || c.rc == nil || resp == nil {
		return
	}

	bs, err := json.Marshal(resp)
	if err != nil {
		return
	}

	key := c.tenantKey(tenantID)
	_, err = c.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, filterKey, bs)
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	if err != nil {
		log.Printf("rate table cache set failed for tenant %d: %v", tenantID, err)
	}
}

// InvalidateTenant drops every cached listing of the tenant
func (c *RateTableCacheImpl) InvalidateTenant(ctx context.Context, tenantID uint) error {
	if c == nil || c.rc == nil {
		return nil
	}
	if err := c.rc.Del(ctx, c.tenantKey(tenantID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate rate table cache for tenant %d: %w", tenantID, err)
	}
	return nil
}
