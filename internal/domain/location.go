package domain

import (
	"math"
	"time"
)

// LocationSample represents a single timestamped position reading from a
// rider's device.
type LocationSample struct {
	RiderID              string   `json:"riderId"`
	OrderID              string   `json:"orderId,omitempty"`
	Latitude             float64  `json:"latitude"`
	Longitude            float64  `json:"longitude"`
	AccuracyMeters       float64  `json:"accuracyMeters"`
	HeadingDegrees       *float64 `json:"headingDegrees,omitempty"`
	SpeedMetersPerSecond *float64 `json:"speedMetersPerSecond,omitempty"`
	TimestampMillis      int64    `json:"timestampMillis"`
	BatteryPercent       *int     `json:"batteryPercent,omitempty"`
}

// Time returns the sample timestamp.
func (s LocationSample) Time() time.Time {
	return time.UnixMilli(s.TimestampMillis)
}

// Moving reports whether the last known speed is above zero.
func (s LocationSample) Moving() bool {
	return s.SpeedMetersPerSecond != nil && *s.SpeedMetersPerSecond > 0
}

// Validate reports why a sample cannot be accepted, or "" when it is usable.
func (s LocationSample) Validate() string {
	switch {
	case s.RiderID == "":
		return "missing_rider"
	case !finite(s.Latitude) || !finite(s.Longitude):
		return "non_finite_coordinates"
	case s.Latitude < -90 || s.Latitude > 90:
		return "latitude_out_of_range"
	case s.Longitude < -180 || s.Longitude > 180:
		return "longitude_out_of_range"
	case !finite(s.AccuracyMeters) || s.AccuracyMeters < 0:
		return "invalid_accuracy"
	case s.TimestampMillis <= 0:
		return "missing_timestamp"
	case s.HeadingDegrees != nil && (!finite(*s.HeadingDegrees) || *s.HeadingDegrees < 0 || *s.HeadingDegrees > 360):
		return "invalid_heading"
	case s.SpeedMetersPerSecond != nil && (!finite(*s.SpeedMetersPerSecond) || *s.SpeedMetersPerSecond < 0):
		return "invalid_speed"
	case s.BatteryPercent != nil && (*s.BatteryPercent < 0 || *s.BatteryPercent > 100):
		return "invalid_battery"
	}
	return ""
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// MovementStatus classifies a rider by their last known speed.
type MovementStatus string

const (
	MovementMoving MovementStatus = "moving"
	MovementIdle   MovementStatus = "idle"
)

// TrackingEventType identifies the kind of event pushed to tracking subscribers.
type TrackingEventType string

const (
	TrackingEventLocation TrackingEventType = "location"
	TrackingEventStopped  TrackingEventType = "tracking_stopped"
)

// StopReason explains why tracking of a rider ended.
type StopReason string

const (
	StopReasonStopped StopReason = "stopped"
	StopReasonStale   StopReason = "stale"
)

// TrackingEvent is pushed to every subscriber of a rider or order topic.
type TrackingEvent struct {
	Type      TrackingEventType `json:"type"`
	RiderID   string            `json:"riderId"`
	RiderName string            `json:"riderName,omitempty"`
	OrderID   string            `json:"orderId,omitempty"`
	Sample    *LocationSample   `json:"sample,omitempty"`
	Reason    StopReason        `json:"reason,omitempty"`
	EmittedAt time.Time         `json:"emittedAt"`
}
