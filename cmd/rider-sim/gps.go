package main

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"delivery/internal/tracking"
)

const metersPerDegreeLat = 111_320.0

// simulatedGPS walks a rider along a slowly turning heading and adds receiver
// noise to every fix. It alternates between riding and waiting so both
// movement states show up downstream.
type simulatedGPS struct {
	mu       sync.Mutex
	lat      float64
	lng      float64
	heading  float64
	speed    float64
	noiseM   float64
	tick     time.Duration
	rng      *rand.Rand
	now      func() time.Time
	battery  int
	fixCount int
}

func newSimulatedGPS(lat, lng float64, tick time.Duration, seed uint64) *simulatedGPS {
	return &simulatedGPS{
		lat:     lat,
		lng:     lng,
		heading: 90,
		speed:   6,
		noiseM:  8,
		tick:    tick,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:     time.Now,
		battery: 100,
	}
}

// Watch emits one fix per tick until ctx is done.
func (g *simulatedGPS) Watch(ctx context.Context) (<-chan tracking.Position, error) {
	out := make(chan tracking.Position)
	go func() {
		defer close(out)
		ticker := time.NewTicker(g.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case out <- g.next():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// CurrentPosition returns a fix at the current position without advancing.
func (g *simulatedGPS) CurrentPosition(_ context.Context) (tracking.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fixLocked(0), nil
}

// BatteryPercent drains one percent every 30 fixes.
func (g *simulatedGPS) BatteryPercent() (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.battery, true
}

func (g *simulatedGPS) next() tracking.Position {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.fixCount++
	if g.fixCount%30 == 0 && g.battery > 1 {
		g.battery--
	}

	// Ride for 40 fixes, then wait for 10.
	speed := g.speed
	if g.fixCount%50 >= 40 {
		speed = 0
	}

	g.heading = math.Mod(g.heading+g.rng.NormFloat64()*5+360, 360)
	dist := speed * g.tick.Seconds()
	rad := g.heading * math.Pi / 180
	g.lat += dist * math.Cos(rad) / metersPerDegreeLat
	g.lng += dist * math.Sin(rad) / (metersPerDegreeLat * math.Cos(g.lat*math.Pi/180))

	return g.fixLocked(speed)
}

func (g *simulatedGPS) fixLocked(speed float64) tracking.Position {
	noiseLat := g.rng.NormFloat64() * g.noiseM / metersPerDegreeLat
	noiseLng := g.rng.NormFloat64() * g.noiseM / (metersPerDegreeLat * math.Cos(g.lat*math.Pi/180))
	heading := g.heading
	return tracking.Position{
		Latitude:             g.lat + noiseLat,
		Longitude:            g.lng + noiseLng,
		AccuracyMeters:       g.noiseM,
		HeadingDegrees:       &heading,
		SpeedMetersPerSecond: &speed,
		Timestamp:            g.now(),
	}
}

var (
	_ tracking.PositionSource = (*simulatedGPS)(nil)
	_ tracking.Locator        = (*simulatedGPS)(nil)
	_ tracking.BatteryReader  = (*simulatedGPS)(nil)
)
