package repository

import (
	"context"

	"delivery/internal/domain"
)

// PaymentRepository defines the persistence operations for payments.
type PaymentRepository interface {
	// Create persists a new payment. Returns ErrDuplicate if the order
	// already has a payment in flight.
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByReference retrieves a payment by its gateway reference.
	GetByReference(ctx context.Context, reference string) (*domain.Payment, error)

	// GetByIdempotencyKey retrieves a payment by its idempotency key.
	// Returns nil if no payment exists with the given key.
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error)

	// UpdateStatus updates the status of a payment.
	UpdateStatus(ctx context.Context, id string, status domain.PaymentStatus) error
}
