package domain

import "time"

// PaymentStatus represents the payment state of an order as reported by the
// payment gateway.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted,
		PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// Payment represents one gateway transaction started for an order.
type Payment struct {
	ID               string
	OrderID          string
	Reference        string
	AmountMinor      int64
	Currency         string
	Status           PaymentStatus
	AuthorizationURL string
	IdempotencyKey   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
