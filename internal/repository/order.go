package repository

import (
	"context"

	"delivery/internal/domain"
)

// OrderRepository defines the persistence operations for orders.
type OrderRepository interface {
	// Create persists a new order.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order by ID.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// ApplyPatch writes patch only if the order's status still equals
	// expectedStatus. Returns ErrNotFound if the order does not exist and
	// ErrConflict if its status has changed.
	ApplyPatch(ctx context.Context, id string, patch domain.OrderPatch, expectedStatus domain.OrderStatus) (*domain.Order, error)
}
