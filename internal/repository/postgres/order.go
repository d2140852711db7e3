package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"delivery/internal/domain"
	"delivery/internal/repository"
)

const orderColumns = `id, buyer_id, seller_id, amount_minor, currency, status, payment_status, rider_id, delivered_at, created_at, updated_at`

// OrderRepository is a PostgreSQL implementation of repository.OrderRepository.
type OrderRepository struct {
	q Querier
}

// NewOrderRepository creates a new PostgreSQL order repository.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{q: db}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (id, buyer_id, seller_id, amount_minor, currency, status, payment_status, rider_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`

	_, err := r.q.ExecContext(ctx, query,
		order.ID,
		order.BuyerID,
		order.SellerID,
		order.AmountMinor,
		order.Currency,
		order.Status,
		order.PaymentStatus,
		nullString(order.RiderID),
		order.CreatedAt,
	)
	return err
}

// GetByID retrieves an order by ID.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

// ApplyPatch performs a conditional update guarded by the expected status.
// Zero rows updated means either the order is missing or another writer got
// there first; a follow-up existence check tells them apart.
func (r *OrderRepository) ApplyPatch(ctx context.Context, id string, patch domain.OrderPatch, expectedStatus domain.OrderStatus) (*domain.Order, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id, expectedStatus}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.Status != nil {
		sets = append(sets, "status = "+arg(*patch.Status))
	}
	if patch.PaymentStatus != nil {
		sets = append(sets, "payment_status = "+arg(*patch.PaymentStatus))
	}
	switch {
	case patch.ClearRiderID:
		sets = append(sets, "rider_id = NULL")
	case patch.RiderID != nil:
		sets = append(sets, "rider_id = "+arg(*patch.RiderID))
	}
	if patch.DeliveredAt != nil {
		sets = append(sets, "delivered_at = COALESCE(delivered_at, "+arg(*patch.DeliveredAt)+")")
	}

	query := `UPDATE orders SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 AND status = $2 RETURNING ` + orderColumns

	order, err := scanOrder(r.q.QueryRowContext(ctx, query, args...))
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, repository.ErrNotFound
	}
	return nil, repository.ErrConflict
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order       domain.Order
		riderID     sql.NullString
		deliveredAt sql.NullTime
	)
	err := row.Scan(
		&order.ID,
		&order.BuyerID,
		&order.SellerID,
		&order.AmountMinor,
		&order.Currency,
		&order.Status,
		&order.PaymentStatus,
		&riderID,
		&deliveredAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	order.RiderID = riderID.String
	if deliveredAt.Valid {
		t := deliveredAt.Time
		order.DeliveredAt = &t
	}
	return &order, nil
}

var _ repository.OrderRepository = (*OrderRepository)(nil)
