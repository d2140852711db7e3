package redis

import (
	"context"
)

// LocationIndexInterface defines the interface for last-known rider positions.
type LocationIndexInterface interface {
	UpdateLocation(ctx context.Context, riderID string, lat, lng float64) error
	FindNearbyRiders(ctx context.Context, lat, lng, radiusKm float64) ([]RiderLocation, error)
	RemoveLocation(ctx context.Context, riderID string) error
}

// RiderCacheInterface defines the interface for cached rider profiles.
type RiderCacheInterface interface {
	GetRider(ctx context.Context, riderID string) (*CachedRider, error)
	SetRider(ctx context.Context, rider *CachedRider) error
	InvalidateRider(ctx context.Context, riderID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationIndexInterface = (*LocationStore)(nil)
	_ RiderCacheInterface    = (*CacheStore)(nil)
)
