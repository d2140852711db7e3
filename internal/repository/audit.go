package repository

import (
	"context"

	"delivery/internal/domain"
)

// AuditRepository stores the transition history of orders.
type AuditRepository interface {
	Record(ctx context.Context, rec domain.TransitionRecord) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.TransitionRecord, error)
}
