package postgres

import (
	"context"
	"database/sql"
	"errors"

	"delivery/internal/domain"
	"delivery/internal/repository"
)

const paymentColumns = `id, order_id, reference, amount_minor, currency, status, COALESCE(authorization_url, ''), idempotency_key, created_at, updated_at`

// PaymentRepository is a PostgreSQL implementation of repository.PaymentRepository.
type PaymentRepository struct {
	q Querier
}

// NewPaymentRepository creates a new PostgreSQL payment repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{q: db}
}

// Create persists a new payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (id, order_id, reference, amount_minor, currency, status, authorization_url, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`

	_, err := r.q.ExecContext(ctx, query,
		payment.ID,
		payment.OrderID,
		payment.Reference,
		payment.AmountMinor,
		payment.Currency,
		payment.Status,
		nullString(payment.AuthorizationURL),
		payment.IdempotencyKey,
		payment.CreatedAt,
	)
	return mapWriteError(err)
}

// GetByReference retrieves a payment by its gateway reference.
func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	payment, err := scanPayment(r.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE reference = $1`, reference))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return payment, nil
}

// GetByIdempotencyKey retrieves the latest payment with the given key.
// Returns nil if no payment exists with the given key.
func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE idempotency_key = $1 ORDER BY created_at DESC LIMIT 1`
	payment, err := scanPayment(r.q.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return payment, nil
}

// UpdateStatus updates the status of a payment.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, status domain.PaymentStatus) error {
	result, err := r.q.ExecContext(ctx, `UPDATE payments SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.Reference,
		&p.AmountMinor,
		&p.Currency,
		&p.Status,
		&p.AuthorizationURL,
		&p.IdempotencyKey,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

var _ repository.PaymentRepository = (*PaymentRepository)(nil)
