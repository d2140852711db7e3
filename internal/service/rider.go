package service

import (
	"context"
	"errors"
	"log/slog"

	"delivery/internal/domain"
	"delivery/internal/logging"
	"delivery/internal/redis"
	"delivery/internal/repository"
)

// LocationHub is the part of the broadcast hub the rider flow drives.
type LocationHub interface {
	IngestFrom(ctx context.Context, source string, sample domain.LocationSample) error
	StopTracking(riderID string) bool
}

// RiderService handles rider location updates and availability.
type RiderService struct {
	hub       LocationHub
	locations redis.LocationIndexInterface
	cache     redis.RiderCacheInterface
	riders    repository.RiderRepository
	logger    *slog.Logger
}

// NewRiderService creates a new RiderService. locations, cache and riders may be nil.
func NewRiderService(
	hub LocationHub,
	locations redis.LocationIndexInterface,
	cache redis.RiderCacheInterface,
	riders repository.RiderRepository,
	logger *slog.Logger,
) *RiderService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &RiderService{
		hub:       hub,
		locations: locations,
		cache:     cache,
		riders:    riders,
		logger:    logger,
	}
}

// Location sources, used as the ingestion metric label.
const (
	SourceWebsocket = "websocket"
	SourceHTTP      = "http"
	SourceKafka     = "kafka"
)

// UpdateLocation pushes a sample to the hub and refreshes the rider's
// last known position in the geo index.
func (s *RiderService) UpdateLocation(ctx context.Context, source string, sample domain.LocationSample) error {
	if sample.RiderID == "" {
		return ErrInvalidRiderID
	}
	if err := s.hub.IngestFrom(ctx, source, sample); err != nil {
		if reason := sample.Validate(); reason != "" {
			return errors.Join(ErrInvalidLocation, err)
		}
		return err
	}

	if s.locations != nil {
		if err := s.locations.UpdateLocation(ctx, sample.RiderID, sample.Latitude, sample.Longitude); err != nil {
			s.logger.Warn("failed to index rider location", "rider_id", sample.RiderID, "error", err)
		}
	}
	return nil
}

// StopTracking ends the rider's session and takes them off the map.
func (s *RiderService) StopTracking(ctx context.Context, riderID string) (bool, error) {
	if riderID == "" {
		return false, ErrInvalidRiderID
	}
	stopped := s.hub.StopTracking(riderID)
	s.GoOffline(ctx, riderID)
	return stopped, nil
}

// GoOffline removes the rider from the geo index and marks them offline.
func (s *RiderService) GoOffline(ctx context.Context, riderID string) {
	if s.locations != nil {
		if err := s.locations.RemoveLocation(ctx, riderID); err != nil {
			s.logger.Warn("failed to remove rider location", "rider_id", riderID, "error", err)
		}
	}
	if s.riders != nil {
		err := s.riders.UpdateStatus(ctx, riderID, domain.RiderStatusOffline)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("failed to mark rider offline", "rider_id", riderID, "error", err)
		}
	}
	if s.cache != nil {
		_ = s.cache.InvalidateRider(ctx, riderID)
	}
}

// NearbyRiders lists riders with a known position within radiusKm.
func (s *RiderService) NearbyRiders(ctx context.Context, lat, lng, radiusKm float64) ([]redis.RiderLocation, error) {
	if s.locations == nil {
		return nil, ErrLocationIndexDisabled
	}
	probe := domain.LocationSample{RiderID: "probe", Latitude: lat, Longitude: lng, TimestampMillis: 1}
	if probe.Validate() != "" || radiusKm <= 0 {
		return nil, ErrInvalidLocation
	}
	return s.locations.FindNearbyRiders(ctx, lat, lng, radiusKm)
}

// RiderDirectory resolves rider names for the hub, reading through the cache.
type RiderDirectory struct {
	riders repository.RiderRepository
	cache  redis.RiderCacheInterface
}

// NewRiderDirectory creates a directory over riders. cache may be nil.
func NewRiderDirectory(riders repository.RiderRepository, cache redis.RiderCacheInterface) *RiderDirectory {
	return &RiderDirectory{riders: riders, cache: cache}
}

// RiderName returns the rider's display name.
func (d *RiderDirectory) RiderName(ctx context.Context, riderID string) (string, error) {
	if d.cache != nil {
		if cached, err := d.cache.GetRider(ctx, riderID); err == nil && cached != nil {
			return cached.Name, nil
		}
	}

	rider, err := d.riders.GetByID(ctx, riderID)
	if err != nil {
		return "", err
	}
	if d.cache != nil {
		_ = d.cache.SetRider(ctx, &redis.CachedRider{
			ID:     rider.ID,
			Name:   rider.Name,
			Phone:  rider.Phone,
			Status: string(rider.Status),
		})
	}
	return rider.Name, nil
}
