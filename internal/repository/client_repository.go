package repository

import (
	"context"
	"database/sql"
)

// ClientRepositoryInterface defines methods used by the weekly status refresh
type ClientRepositoryInterface interface {
	Count(ctx context.Context) (int, error)
}

// ClientRepository is the concrete implementation
type ClientRepository struct {
	DB *sql.DB
}

// Count returns the number of clients on file
func (r *ClientRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

var _ ClientRepositoryInterface = (*ClientRepository)(nil)
