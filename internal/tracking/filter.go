package tracking

import (
	"fmt"
	"strings"
	"time"

	"delivery/internal/domain"
)

// Row is one rider line in a live tracking view.
type Row struct {
	RiderID         string                `json:"riderId"`
	RiderName       string                `json:"riderName,omitempty"`
	OrderID         string                `json:"orderId,omitempty"`
	Movement        domain.MovementStatus `json:"movement"`
	Latitude        float64               `json:"latitude"`
	Longitude       float64               `json:"longitude"`
	TimestampMillis int64                 `json:"timestampMillis"`
	BatteryPercent  *int                  `json:"batteryPercent,omitempty"`
	Freshness       string                `json:"freshness"`
}

// NewRow builds a view row, computing movement and freshness at now.
func NewRow(riderID, riderName, orderID string, sample domain.LocationSample, now time.Time) Row {
	return Row{
		RiderID:         riderID,
		RiderName:       riderName,
		OrderID:         orderID,
		Movement:        MovementOf(sample),
		Latitude:        sample.Latitude,
		Longitude:       sample.Longitude,
		TimestampMillis: sample.TimestampMillis,
		BatteryPercent:  sample.BatteryPercent,
		Freshness:       FreshnessLabel(now, sample.Time()),
	}
}

// MovementOf classifies a sample as moving iff its speed is above zero.
func MovementOf(sample domain.LocationSample) domain.MovementStatus {
	if sample.Moving() {
		return domain.MovementMoving
	}
	return domain.MovementIdle
}

// Filter selects rows by a case-insensitive text query over rider name, rider
// id and order id, and optionally by movement status.
type Filter struct {
	Query    string
	Movement domain.MovementStatus
}

// ParseFilter validates raw query parameters.
func ParseFilter(query, movement string) (Filter, error) {
	f := Filter{Query: strings.TrimSpace(query)}
	switch m := domain.MovementStatus(strings.ToLower(strings.TrimSpace(movement))); m {
	case "", "all":
	case domain.MovementMoving, domain.MovementIdle:
		f.Movement = m
	default:
		return Filter{}, fmt.Errorf("unknown movement filter %q", movement)
	}
	return f, nil
}

// Match reports whether r passes the filter.
func (f Filter) Match(r Row) bool {
	if f.Movement != "" && r.Movement != f.Movement {
		return false
	}
	if f.Query == "" {
		return true
	}
	q := strings.ToLower(f.Query)
	return strings.Contains(strings.ToLower(r.RiderName), q) ||
		strings.Contains(strings.ToLower(r.RiderID), q) ||
		strings.Contains(strings.ToLower(r.OrderID), q)
}

// MatchEvent applies the filter to a hub event. Stop events always pass so
// views can drop the rider.
func (f Filter) MatchEvent(ev domain.TrackingEvent, now time.Time) bool {
	if ev.Type == domain.TrackingEventStopped || ev.Sample == nil {
		return true
	}
	return f.Match(NewRow(ev.RiderID, ev.RiderName, ev.OrderID, *ev.Sample, now))
}
