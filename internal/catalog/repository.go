package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unistock-erp/unistock-erp/internal/shared"
	"github.com/unistock-erp/unistock-erp/internal/stock"
)

// Repository persists the catalog in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert adds a consumable and returns it with the assigned id.
func (r *Repository) Insert(ctx context.Context, item stock.Consumable) (stock.Consumable, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO consumables (name, sku, unit, min_stock, has_expiry, created_at, updated_at)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, now(), now())
RETURNING id, created_at, updated_at`,
		item.Name, item.SKU, item.Unit, item.MinStock, item.HasExpiry).
		Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return stock.Consumable{}, shared.E(shared.KindConstraint, "SKU %s sudah terdaftar", item.SKU)
		}
		return stock.Consumable{}, err
	}
	return item, nil
}

// Update replaces the catalog attributes of one consumable.
func (r *Repository) Update(ctx context.Context, item stock.Consumable) error {
	tag, err := r.pool.Exec(ctx, `UPDATE consumables SET name=$2, sku=NULLIF($3, ''), unit=$4, min_stock=$5, has_expiry=$6, updated_at=now()
WHERE id=$1`, item.ID, item.Name, item.SKU, item.Unit, item.MinStock, item.HasExpiry)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.E(shared.KindConstraint, "SKU %s sudah terdaftar", item.SKU)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.E(shared.KindNotFound, "barang tidak ditemukan")
	}
	return nil
}

// Delete removes a consumable. A foreign key violation surfaces as a
// constraint error so the boundary can tell the user the item is in use.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM consumables WHERE id=$1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return shared.E(shared.KindConstraint, "barang masih digunakan oleh stok atau transaksi")
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.E(shared.KindNotFound, "barang tidak ditemukan")
	}
	return nil
}

// Get loads one consumable.
func (r *Repository) Get(ctx context.Context, id int64) (stock.Consumable, error) {
	var item stock.Consumable
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(sku, ''), unit, min_stock, has_expiry, created_at, updated_at
FROM consumables WHERE id=$1`, id).
		Scan(&item.ID, &item.Name, &item.SKU, &item.Unit, &item.MinStock, &item.HasExpiry, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stock.Consumable{}, shared.E(shared.KindNotFound, "barang tidak ditemukan")
		}
		return stock.Consumable{}, err
	}
	return item, nil
}

// List searches by name or SKU, newest first.
func (r *Repository) List(ctx context.Context, search string, limit int) ([]stock.Consumable, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(sku, ''), unit, min_stock, has_expiry, created_at, updated_at
FROM consumables
WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR sku ILIKE '%' || $1 || '%')
ORDER BY name ASC LIMIT $2`, search, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []stock.Consumable
	for rows.Next() {
		var item stock.Consumable
		if err := rows.Scan(&item.ID, &item.Name, &item.SKU, &item.Unit, &item.MinStock,
			&item.HasExpiry, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
