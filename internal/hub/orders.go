package hub

import (
	"context"

	"delivery/internal/domain"
	"delivery/internal/events"
)

// OnOrderTransitioned keeps order association in step with the order
// lifecycle: entering delivering binds the assigned rider, leaving it
// releases the order.
func (h *Hub) OnOrderTransitioned(_ context.Context, ev events.OrderTransitioned) error {
	switch {
	case ev.To == domain.OrderStatusDelivering:
		h.BindOrder(ev.RiderID, ev.OrderID)
	case ev.From == domain.OrderStatusDelivering:
		rider := ev.PreviousRiderID
		if rider == "" {
			rider = ev.RiderID
		}
		h.ReleaseOrder(ev.OrderID, rider)
	}
	return nil
}
