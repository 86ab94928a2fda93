package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formbricks/themes/internal/huberrors"
	"github.com/formbricks/themes/internal/models"
)

// CustomersRepository reads the customer directory. It is read-only reference data.
type CustomersRepository struct {
	db *pgxpool.Pool
}

// NewCustomersRepository creates a new customers repository.
func NewCustomersRepository(db *pgxpool.Pool) *CustomersRepository {
	return &CustomersRepository{db: db}
}

// GetByNames returns the customers whose name is in names, keyed by name.
// Unknown names are absent from the result.
func (r *CustomersRepository) GetByNames(ctx context.Context, names []string) (map[string]models.Customer, error) {
	out := make(map[string]models.Customer, len(names))
	if len(names) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, `SELECT name, acv, segment FROM customers WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, fmt.Errorf("get customers by names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.Name, &c.ACV, &c.Segment); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}

		out[c.Name] = c
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating customers: %w", err)
	}

	return out, nil
}

// Get returns a single customer by name.
func (r *CustomersRepository) Get(ctx context.Context, name string) (models.Customer, error) {
	var c models.Customer

	err := r.db.QueryRow(ctx, `SELECT name, acv, segment FROM customers WHERE name = $1`, name).
		Scan(&c.Name, &c.ACV, &c.Segment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Customer{}, huberrors.NewNotFoundError("customer", fmt.Sprintf("customer %q not found", name))
		}

		return models.Customer{}, fmt.Errorf("get customer: %w", err)
	}

	return c, nil
}
