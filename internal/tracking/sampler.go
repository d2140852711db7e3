package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"delivery/internal/domain"
)

const (
	// DefaultInterval is the minimum spacing between emitted samples.
	DefaultInterval = 5 * time.Second
	// MinInterval is the floor callers cannot configure below.
	MinInterval = 3 * time.Second
)

var (
	ErrNotTracking    = errors.New("sampler is not tracking")
	ErrMissingRiderID = errors.New("rider id is required")
)

// Position is a raw fix from the device location provider.
type Position struct {
	Latitude             float64
	Longitude            float64
	AccuracyMeters       float64
	HeadingDegrees       *float64
	SpeedMetersPerSecond *float64
	Timestamp            time.Time
}

// PositionSource streams raw fixes until ctx is done or the source closes the channel.
type PositionSource interface {
	Watch(ctx context.Context) (<-chan Position, error)
}

// Locator answers a single position query.
type Locator interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// BatteryReader reports the device battery level. ok is false when the
// platform cannot report it.
type BatteryReader interface {
	BatteryPercent() (percent int, ok bool)
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithInterval sets the minimum inter-sample interval, clamped to MinInterval.
func WithInterval(d time.Duration) SamplerOption {
	return func(s *Sampler) {
		s.interval = ClampInterval(d)
	}
}

// WithBattery attaches a battery reader.
func WithBattery(b BatteryReader) SamplerOption {
	return func(s *Sampler) {
		s.battery = b
	}
}

// ClampInterval applies the default and the floor to a configured interval.
func ClampInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultInterval
	}
	if d < MinInterval {
		return MinInterval
	}
	return d
}

// Sampler turns raw device fixes for one rider into a rate-limited,
// smoothed sample stream.
type Sampler struct {
	interval time.Duration
	battery  BatteryReader

	mu       sync.Mutex
	tracking bool
	riderID  string
	orderID  string
	window   Window
	lastEmit time.Time
	emitted  bool
}

// NewSampler creates an idle sampler.
func NewSampler(opts ...SamplerOption) *Sampler {
	s := &Sampler{interval: DefaultInterval}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the effective minimum inter-sample interval.
func (s *Sampler) Interval() time.Duration {
	return s.interval
}

// Start begins tracking riderID. Starting while already tracking is a no-op.
func (s *Sampler) Start(riderID, orderID string) error {
	if riderID == "" {
		return ErrMissingRiderID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracking {
		return nil
	}
	s.tracking = true
	s.riderID = riderID
	s.orderID = orderID
	return nil
}

// Stop ends tracking and forgets the smoothing history and rate-limit clock.
// Stopping an idle sampler is a no-op.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracking = false
	s.window = Window{}
	s.lastEmit = time.Time{}
	s.emitted = false
}

// Tracking reports whether Start has been called without a matching Stop.
func (s *Sampler) Tracking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracking
}

// Observe feeds one raw fix. It returns the sample to emit, or false when the
// sampler is idle or the fix arrived inside the rate-limit interval.
// Rate-limited fixes are discarded and do not enter the smoothing window.
func (s *Sampler) Observe(p Position) (domain.LocationSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tracking {
		return domain.LocationSample{}, false
	}
	if s.emitted && p.Timestamp.Sub(s.lastEmit) < s.interval {
		return domain.LocationSample{}, false
	}

	var lat, lng float64
	s.window, lat, lng = s.window.Smooth(p.Latitude, p.Longitude)
	s.lastEmit = p.Timestamp
	s.emitted = true

	sample := s.sampleFrom(p)
	sample.Latitude = lat
	sample.Longitude = lng
	return sample, true
}

func (s *Sampler) sampleFrom(p Position) domain.LocationSample {
	sample := domain.LocationSample{
		RiderID:              s.riderID,
		OrderID:              s.orderID,
		Latitude:             p.Latitude,
		Longitude:            p.Longitude,
		AccuracyMeters:       p.AccuracyMeters,
		HeadingDegrees:       p.HeadingDegrees,
		SpeedMetersPerSecond: p.SpeedMetersPerSecond,
		TimestampMillis:      p.Timestamp.UnixMilli(),
	}
	if s.battery != nil {
		if pct, ok := s.battery.BatteryPercent(); ok {
			sample.BatteryPercent = &pct
		}
	}
	return sample
}

// Run watches source and calls emit for every sample Observe produces. It
// returns when ctx is done or the source closes.
func (s *Sampler) Run(ctx context.Context, source PositionSource, emit func(domain.LocationSample)) error {
	if !s.Tracking() {
		return ErrNotTracking
	}
	positions, err := source.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch positions: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-positions:
			if !ok {
				return nil
			}
			if sample, ok := s.Observe(p); ok {
				emit(sample)
			}
		}
	}
}

// CurrentPosition returns a single unsmoothed sample for initial placement.
// It bypasses the window and the rate limit and does not require Start.
func (s *Sampler) CurrentPosition(ctx context.Context, locator Locator, riderID string) (domain.LocationSample, error) {
	if riderID == "" {
		return domain.LocationSample{}, ErrMissingRiderID
	}
	p, err := locator.CurrentPosition(ctx)
	if err != nil {
		return domain.LocationSample{}, fmt.Errorf("current position: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sample := s.sampleFrom(p)
	sample.RiderID = riderID
	return sample, nil
}
