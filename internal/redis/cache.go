package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RiderCacheTTL bounds how stale a cached rider profile can be.
const RiderCacheTTL = 5 * time.Minute

const riderCachePrefix = "cache:rider:"

// CachedRider represents a cached rider profile.
type CachedRider struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Status string `json:"status"`
}

// CacheStore handles entity caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// GetRider retrieves a rider from cache. A miss returns nil, nil.
func (s *CacheStore) GetRider(ctx context.Context, riderID string) (*CachedRider, error) {
	data, err := s.client.Get(ctx, riderCachePrefix+riderID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var rider CachedRider
	if err := json.Unmarshal(data, &rider); err != nil {
		return nil, err
	}
	return &rider, nil
}

// SetRider stores a rider in cache.
func (s *CacheStore) SetRider(ctx context.Context, rider *CachedRider) error {
	data, err := json.Marshal(rider)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, riderCachePrefix+rider.ID, data, RiderCacheTTL).Err()
}

// InvalidateRider removes a rider from cache.
func (s *CacheStore) InvalidateRider(ctx context.Context, riderID string) error {
	return s.client.Del(ctx, riderCachePrefix+riderID).Err()
}
