package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"delivery/internal/domain"
	"delivery/internal/logging"
)

// OrderTransitioned is published after a transition has been persisted.
type OrderTransitioned struct {
	EventID         string             `json:"eventId"`
	OrderID         string             `json:"orderId"`
	From            domain.OrderStatus `json:"from"`
	To              domain.OrderStatus `json:"to"`
	RiderID         string             `json:"riderId,omitempty"`
	PreviousRiderID string             `json:"previousRiderId,omitempty"`
	ActorID         string             `json:"actorId"`
	ActorRole       domain.Role        `json:"actorRole"`
	Reason          string             `json:"reason,omitempty"`
	OccurredAt      time.Time          `json:"occurredAt"`
}

// Publisher delivers transition events to interested parties.
type Publisher interface {
	PublishOrderTransitioned(ctx context.Context, ev OrderTransitioned) error
}

// Handler consumes transition events.
type Handler func(ctx context.Context, ev OrderTransitioned) error

// Dispatcher is an in-process Publisher that calls every registered handler
// in registration order. Handler errors are logged and joined; they never
// stop later handlers.
type Dispatcher struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers []Handler
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{logger: logger}
}

// Subscribe registers h.
func (d *Dispatcher) Subscribe(h Handler) {
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	d.mu.Unlock()
}

func (d *Dispatcher) PublishOrderTransitioned(ctx context.Context, ev OrderTransitioned) error {
	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers...)
	d.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			d.logger.Error("order event handler failed", "order_id", ev.OrderID, "to", ev.To, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Fanout publishes to several publishers, joining their errors.
type Fanout []Publisher

func (f Fanout) PublishOrderTransitioned(ctx context.Context, ev OrderTransitioned) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishOrderTransitioned(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
