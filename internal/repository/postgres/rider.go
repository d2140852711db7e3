package postgres

import (
	"context"
	"database/sql"
	"errors"

	"delivery/internal/domain"
	"delivery/internal/repository"
)

// RiderRepository is a PostgreSQL implementation of repository.RiderRepository.
type RiderRepository struct {
	q Querier
}

// NewRiderRepository creates a new PostgreSQL rider repository.
func NewRiderRepository(db *sql.DB) *RiderRepository {
	return &RiderRepository{q: db}
}

// Create adds a new rider.
func (r *RiderRepository) Create(ctx context.Context, rider *domain.Rider) error {
	query := `INSERT INTO riders (id, name, phone, status) VALUES ($1, $2, $3, $4)`
	_, err := r.q.ExecContext(ctx, query, rider.ID, rider.Name, rider.Phone, rider.Status)
	return err
}

// GetByID retrieves a rider by ID.
func (r *RiderRepository) GetByID(ctx context.Context, id string) (*domain.Rider, error) {
	query := `SELECT id, COALESCE(name, ''), COALESCE(phone, ''), status FROM riders WHERE id = $1`

	var rider domain.Rider
	err := r.q.QueryRowContext(ctx, query, id).Scan(&rider.ID, &rider.Name, &rider.Phone, &rider.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &rider, nil
}

// GetAll retrieves all riders.
func (r *RiderRepository) GetAll(ctx context.Context) ([]*domain.Rider, error) {
	query := `SELECT id, COALESCE(name, ''), COALESCE(phone, ''), status FROM riders ORDER BY id`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var riders []*domain.Rider
	for rows.Next() {
		var rider domain.Rider
		if err := rows.Scan(&rider.ID, &rider.Name, &rider.Phone, &rider.Status); err != nil {
			return nil, err
		}
		riders = append(riders, &rider)
	}
	return riders, rows.Err()
}

// UpdateStatus updates the availability of a rider.
func (r *RiderRepository) UpdateStatus(ctx context.Context, id string, status domain.RiderStatus) error {
	result, err := r.q.ExecContext(ctx, `UPDATE riders SET status = $1 WHERE id = $2`, status, id)
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

// RiderName satisfies hub.RiderDirectory.
func (r *RiderRepository) RiderName(ctx context.Context, riderID string) (string, error) {
	rider, err := r.GetByID(ctx, riderID)
	if err != nil {
		return "", err
	}
	return rider.Name, nil
}

var _ repository.RiderRepository = (*RiderRepository)(nil)
