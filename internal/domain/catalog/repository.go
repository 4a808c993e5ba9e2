package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ListActive(ctx context.Context) ([]Package, error) {
	packages := make([]Package, 0)
	err := r.db.SelectContext(ctx, &packages, `
		SELECT id, name, cid_amount, price_usd, is_active, created_at
		FROM packages
		WHERE is_active = TRUE
		ORDER BY cid_amount ASC
	`)
	return packages, err
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Package, error) {
	var p Package
	err := r.db.GetContext(ctx, &p, `
		SELECT id, name, cid_amount, price_usd, is_active, created_at
		FROM packages
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPackageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Seed inserts the default catalog. Existing tiers are left untouched so
// operator price edits survive re-runs.
func (r *Repository) Seed(ctx context.Context) error {
	for _, p := range DefaultPackages() {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO packages (name, cid_amount, price_usd, is_active)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (cid_amount) DO NOTHING
		`, p.Name, p.CIDAmount, p.PriceUSD, p.IsActive)
		if err != nil {
			return err
		}
	}
	return nil
}
