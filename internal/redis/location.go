package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const riderLocationKey = "riders:locations"

// RiderLocation represents a rider's last known position.
type RiderLocation struct {
	RiderID    string  `json:"riderId"`
	Lat        float64 `json:"latitude"`
	Lng        float64 `json:"longitude"`
	DistanceKm float64 `json:"distanceKm"`
}

// LocationStore keeps a GEO index of rider positions in Redis.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// UpdateLocation stores a rider's position using GEOADD.
func (s *LocationStore) UpdateLocation(ctx context.Context, riderID string, lat, lng float64) error {
	return s.client.GeoAdd(ctx, riderLocationKey, &redis.GeoLocation{
		Name:      riderID,
		Longitude: lng,
		Latitude:  lat,
	}).Err()
}

// FindNearbyRiders returns riders within radiusKm, nearest first.
func (s *LocationStore) FindNearbyRiders(ctx context.Context, lat, lng, radiusKm float64) ([]RiderLocation, error) {
	results, err := s.client.GeoSearchLocation(ctx, riderLocationKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lng,
			Latitude:   lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}

	locations := make([]RiderLocation, 0, len(results))
	for _, r := range results {
		locations = append(locations, RiderLocation{
			RiderID:    r.Name,
			Lat:        r.Latitude,
			Lng:        r.Longitude,
			DistanceKm: r.Dist,
		})
	}
	return locations, nil
}

// RemoveLocation drops a rider from the geo index.
func (s *LocationStore) RemoveLocation(ctx context.Context, riderID string) error {
	return s.client.ZRem(ctx, riderLocationKey, riderID).Err()
}
