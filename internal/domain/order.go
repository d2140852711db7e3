package domain

import "time"

// OrderStatus represents the lifecycle status of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusDelivering OrderStatus = "delivering"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusDisputed   OrderStatus = "disputed"
)

// OrderStatuses lists every order status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusDelivering,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusDisputed,
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Order represents a customer order as stored by the persistence layer.
type Order struct {
	ID            string
	BuyerID       string
	SellerID      string
	AmountMinor   int64 // in the currency's minor unit
	Currency      string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	RiderID       string // empty when no rider is assigned
	DeliveredAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasRider reports whether a rider is assigned to the order.
func (o Order) HasRider() bool {
	return o.RiderID != ""
}

// OrderPatch is a partial update to an order. Nil fields are left untouched.
type OrderPatch struct {
	Status        *OrderStatus
	PaymentStatus *PaymentStatus
	RiderID       *string
	ClearRiderID  bool
	DeliveredAt   *time.Time
}

// SetStatus returns the patch with Status set.
func (p OrderPatch) SetStatus(s OrderStatus) OrderPatch {
	p.Status = &s
	return p
}

// Merge overlays next onto p. Keys present in next win.
func (p OrderPatch) Merge(next OrderPatch) OrderPatch {
	if next.Status != nil {
		p.Status = next.Status
	}
	if next.PaymentStatus != nil {
		p.PaymentStatus = next.PaymentStatus
	}
	if next.ClearRiderID {
		p.ClearRiderID = true
		p.RiderID = nil
	}
	if next.RiderID != nil {
		p.RiderID = next.RiderID
		p.ClearRiderID = false
	}
	if next.DeliveredAt != nil {
		p.DeliveredAt = next.DeliveredAt
	}
	return p
}

// IsEmpty reports whether the patch changes nothing.
func (p OrderPatch) IsEmpty() bool {
	return p.Status == nil && p.PaymentStatus == nil && p.RiderID == nil && !p.ClearRiderID && p.DeliveredAt == nil
}

// Apply returns a copy of o with the patch applied. DeliveredAt is only ever
// set once.
func (p OrderPatch) Apply(o Order) Order {
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.PaymentStatus != nil {
		o.PaymentStatus = *p.PaymentStatus
	}
	if p.ClearRiderID {
		o.RiderID = ""
	}
	if p.RiderID != nil {
		o.RiderID = *p.RiderID
	}
	if p.DeliveredAt != nil && o.DeliveredAt == nil {
		t := *p.DeliveredAt
		o.DeliveredAt = &t
	}
	return o
}

// TransitionRecord is one entry in an order's status history.
type TransitionRecord struct {
	ID         string
	OrderID    string
	From       OrderStatus
	To         OrderStatus
	ActorID    string
	ActorRole  Role
	Reason     string
	RiderID    string
	OccurredAt time.Time
}
